package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"scoreboard/internal/store"
)

// LoadNodes reads every persisted node for the in-memory tree
func (s *Store) LoadNodes() ([]store.Node, error) {
	rows, err := s.db.Query(`SELECT collection, key, value, version FROM nodes`)
	if err != nil {
		return nil, fmt.Errorf("failed to load nodes: %w", err)
	}
	defer rows.Close()

	var nodes []store.Node
	for rows.Next() {
		var (
			collection, key, value string
			version                uint64
		)
		if err := rows.Scan(&collection, &key, &value, &version); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		nodes = append(nodes, store.Node{
			Path:    store.Join(collection, key),
			Value:   json.RawMessage(value),
			Version: version,
		})
	}
	return nodes, rows.Err()
}

// SaveNodes queues one commit's writes, applied in order in one transaction
func (s *Store) SaveNodes(writes []store.Node) error {
	if len(writes) == 0 {
		return nil
	}
	batch := append([]store.Node(nil), writes...)
	now := time.Now().UTC()

	return s.enqueue("nodes", func(tx *sql.Tx) error {
		for _, w := range batch {
			if err := saveNode(tx, w, now); err != nil {
				return err
			}
		}
		return nil
	})
}

func saveNode(tx *sql.Tx, w store.Node, now time.Time) error {
	collection, key := w.Path.Collection(), w.Path.Key()
	switch {
	case w.Deleted && w.Path.IsCollection():
		_, err := tx.Exec(`DELETE FROM nodes WHERE collection = ?`, collection)
		return err
	case w.Deleted:
		_, err := tx.Exec(`DELETE FROM nodes WHERE collection = ? AND key = ?`, collection, key)
		return err
	}

	query := `INSERT INTO nodes (collection, key, value, version, updated_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(collection, key) DO UPDATE SET
			value = excluded.value, version = excluded.version, updated_at = excluded.updated_at`
	_, err := tx.Exec(query, collection, key, string(w.Value), w.Version, now)
	return err
}

// QueryNodes lists persisted nodes, optionally limited to one collection and key
func (s *Store) QueryNodes(collection, key string) ([]NodeRecord, error) {
	query := `SELECT collection, key, value, version, updated_at FROM nodes WHERE 1=1`
	var args []any

	if collection != "" && collection != "*" {
		query += " AND collection = ?"
		args = append(args, collection)
	}
	if key != "" && key != "*" {
		query += " AND key = ?"
		args = append(args, key)
	}
	query += " ORDER BY collection, key"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var out []NodeRecord
	for rows.Next() {
		var n NodeRecord
		if err := rows.Scan(&n.Collection, &n.Key, &n.Value, &n.Version, &n.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration failed: %w", err)
	}
	return out, nil
}
