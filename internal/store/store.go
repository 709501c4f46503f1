// Package store defines the path-addressed, subscribable key-value contract
// shared by the scoreboard components and its local and remote backends.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
)

var (
	ErrInvalidPath  = errors.New("invalid path")
	ErrInvalidValue = errors.New("invalid value")
	ErrConflict     = errors.New("version conflict")
	ErrMissing      = errors.New("path missing")
	ErrClosed       = errors.New("store closed")
	ErrUnavailable  = errors.New("store unavailable")
)

const maxTransformAttempts = 16

var fieldPattern = regexp.MustCompile(`^[A-Za-z0-9_]{1,64}$`)

// Child is one entry of a collection snapshot
type Child struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

// Snapshot is a point-in-time read of a node or a collection
type Snapshot struct {
	Path     Path            `json:"path"`
	Version  uint64          `json:"version"`
	Value    json.RawMessage `json:"value,omitempty"`
	Children []Child         `json:"children,omitempty"`
}

// Exists reports whether the path currently holds data
func (s Snapshot) Exists() bool {
	if s.Path.IsCollection() {
		return len(s.Children) > 0
	}
	return len(s.Value) > 0 && string(s.Value) != "null"
}

// Decode unmarshals a node value into v
func (s Snapshot) Decode(v any) error {
	if !s.Exists() {
		return fmt.Errorf("%s: no value", s.Path)
	}
	return json.Unmarshal(s.Value, v)
}

// Node is a stored value with the revision of its last write. Deleted marks
// a removal of the node, or of every node when Path is a collection.
type Node struct {
	Path    Path            `json:"path"`
	Value   json.RawMessage `json:"value,omitempty"`
	Version uint64          `json:"version"`
	Deleted bool            `json:"deleted,omitempty"`
}

// Change announces the paths written by one commit
type Change struct {
	Revision uint64 `json:"revision"`
	Paths    []Path `json:"paths"`
}

// Op is a mutation kind
type Op string

const (
	OpSet    Op = "set"
	OpMerge  Op = "merge"
	OpDelete Op = "delete"
)

// Mutation is one path write inside a commit. IfVersion guards the write:
// the commit fails with ErrConflict unless the path's current version matches,
// zero meaning the path must be absent. IfExists fails the commit with
// ErrMissing when the node is not stored, so a merge cannot recreate it.
type Mutation struct {
	Op        Op                         `json:"op" validate:"required,oneof=set merge delete"`
	Path      Path                       `json:"path" validate:"required"`
	Value     json.RawMessage            `json:"value,omitempty"`
	Fields    map[string]json.RawMessage `json:"fields,omitempty"`
	IfVersion *uint64                    `json:"ifVersion,omitempty"`
	IfExists  bool                       `json:"ifExists,omitempty"`
}

// Check validates a mutation's shape before it reaches a backend
func (m Mutation) Check() error {
	p, err := ParsePath(string(m.Path))
	if err != nil {
		return err
	}
	switch m.Op {
	case OpSet:
		if p.IsCollection() {
			return fmt.Errorf("%w: set on collection %s", ErrInvalidPath, p)
		}
		if !json.Valid(m.Value) {
			return fmt.Errorf("%w: %s", ErrInvalidValue, p)
		}
	case OpMerge:
		if p.IsCollection() {
			return fmt.Errorf("%w: update on collection %s", ErrInvalidPath, p)
		}
		for name, raw := range m.Fields {
			if !fieldPattern.MatchString(name) {
				return fmt.Errorf("%w: field %q", ErrInvalidValue, name)
			}
			if !json.Valid(raw) {
				return fmt.Errorf("%w: field %q", ErrInvalidValue, name)
			}
		}
	case OpDelete:
		if m.IfExists && p.IsCollection() {
			return fmt.Errorf("%w: ifExists on collection %s", ErrInvalidPath, p)
		}
	default:
		return fmt.Errorf("%w: unknown op %q", ErrInvalidValue, m.Op)
	}
	return nil
}

// Versioned returns a copy of m guarded by version
func (m Mutation) Versioned(version uint64) Mutation {
	m.IfVersion = &version
	return m
}

// Existing returns a copy of m that requires the node to be stored
func (m Mutation) Existing() Mutation {
	m.IfExists = true
	return m
}

// SetOf builds an overwrite mutation
func SetOf(path Path, v any) (Mutation, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return Mutation{}, fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}
	return Mutation{Op: OpSet, Path: path, Value: raw}, nil
}

// MergeOf builds a field-merge mutation
func MergeOf(path Path, fields map[string]any) (Mutation, error) {
	enc := make(map[string]json.RawMessage, len(fields))
	for name, v := range fields {
		raw, err := json.Marshal(v)
		if err != nil {
			return Mutation{}, fmt.Errorf("%w: field %q: %v", ErrInvalidValue, name, err)
		}
		enc[name] = raw
	}
	return Mutation{Op: OpMerge, Path: path, Fields: enc}, nil
}

// DeleteOf builds a removal mutation
func DeleteOf(path Path) Mutation {
	return Mutation{Op: OpDelete, Path: path}
}

// Handle identifies a subscription
type Handle uint64

// Backend is implemented by the in-process tree and the HTTP client.
// Subscribe delivers the current snapshot first, then the latest snapshot
// after changes; intermediate states may be coalesced.
type Backend interface {
	Get(ctx context.Context, path Path) (Snapshot, error)
	Query(ctx context.Context, collection, field string, value json.RawMessage) ([]Child, error)
	Commit(ctx context.Context, muts []Mutation) error
	Subscribe(path Path, onChange func(Snapshot), onError func(error)) (Handle, error)
	Unsubscribe(h Handle)
	Close() error
}

// Store exposes the full adapter contract over a backend
type Store struct {
	backend Backend
	log     hclog.Logger
}

// New wraps a backend
func New(backend Backend, logger hclog.Logger) *Store {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Store{backend: backend, log: logger}
}

// NewKey generates a time-ordered unique key
func NewKey() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func (s *Store) Get(ctx context.Context, path Path) (Snapshot, error) {
	p, err := ParsePath(string(path))
	if err != nil {
		return Snapshot{}, err
	}
	return s.backend.Get(ctx, p)
}

func (s *Store) Subscribe(path Path, onChange func(Snapshot), onError func(error)) (Handle, error) {
	p, err := ParsePath(string(path))
	if err != nil {
		return 0, err
	}
	if onError == nil {
		onError = func(err error) {
			s.log.Warn("subscription error", "path", p, "error", err)
		}
	}
	return s.backend.Subscribe(p, onChange, onError)
}

func (s *Store) Unsubscribe(h Handle) {
	s.backend.Unsubscribe(h)
}

// Set overwrites the value at path
func (s *Store) Set(ctx context.Context, path Path, v any) error {
	m, err := SetOf(path, v)
	if err != nil {
		return err
	}
	return s.Commit(ctx, m)
}

// Update merges fields into the object at path, creating it if absent
func (s *Store) Update(ctx context.Context, path Path, fields map[string]any) error {
	m, err := MergeOf(path, fields)
	if err != nil {
		return err
	}
	return s.Commit(ctx, m)
}

// Push stores v under a generated key and returns the key
func (s *Store) Push(ctx context.Context, collection string, v any) (string, error) {
	key := NewKey()
	if err := s.Set(ctx, Join(collection, key), v); err != nil {
		return "", err
	}
	return key, nil
}

// Remove deletes a node or a whole collection
func (s *Store) Remove(ctx context.Context, path Path) error {
	return s.Commit(ctx, DeleteOf(path))
}

// QueryEqual returns the children of collection whose field equals value
func (s *Store) QueryEqual(ctx context.Context, collection, field string, value any) ([]Child, error) {
	if _, err := ParsePath(collection); err != nil || !Path(collection).IsCollection() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPath, collection)
	}
	if !fieldPattern.MatchString(field) {
		return nil, fmt.Errorf("%w: field %q", ErrInvalidValue, field)
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}
	return s.backend.Query(ctx, collection, field, raw)
}

// Commit applies all mutations or none
func (s *Store) Commit(ctx context.Context, muts ...Mutation) error {
	if len(muts) == 0 {
		return nil
	}
	for _, m := range muts {
		if err := m.Check(); err != nil {
			return err
		}
	}
	return s.backend.Commit(ctx, muts)
}

// Transform replaces the node at path with fn's result using versioned
// commits, re-reading and retrying on conflict. fn receives nil when the
// node is absent; returning an error aborts without writing.
func (s *Store) Transform(ctx context.Context, path Path, fn func(current json.RawMessage) (any, error)) (json.RawMessage, error) {
	for attempt := 0; attempt < maxTransformAttempts; attempt++ {
		snap, err := s.Get(ctx, path)
		if err != nil {
			return nil, err
		}
		var current json.RawMessage
		if snap.Exists() {
			current = snap.Value
		}
		next, err := fn(current)
		if err != nil {
			return nil, err
		}
		m, err := SetOf(path, next)
		if err != nil {
			return nil, err
		}
		err = s.Commit(ctx, m.Versioned(snap.Version))
		if err == nil {
			return m.Value, nil
		}
		if !errors.Is(err, ErrConflict) {
			return nil, err
		}
		s.log.Debug("transform conflict, retrying", "path", path, "attempt", attempt+1)
	}
	return nil, fmt.Errorf("%w: %s after %d attempts", ErrConflict, path, maxTransformAttempts)
}

// Close releases the backend
func (s *Store) Close() error {
	return s.backend.Close()
}
