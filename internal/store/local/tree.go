// Package local is the in-process store backend: a go-memdb node table with
// versioned commits, a watermill change feed and coalescing subscriptions.
package local

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"scoreboard/internal/logging"
	"scoreboard/internal/metrics"
	"scoreboard/internal/store"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-memdb"
	"github.com/hashicorp/go-multierror"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

const (
	nodesTable       = "nodes"
	collectionsTable = "collections"
	changesTopic     = "store.changes"

	closeTimeout = 2 * time.Second
)

// Persister loads the tree on start and receives every committed write in order
type Persister interface {
	LoadNodes() ([]store.Node, error)
	SaveNodes(writes []store.Node) error
}

// Options configures a Tree; every field is optional
type Options struct {
	Persister Persister
	Logger    hclog.Logger
	Metrics   *metrics.Metrics
}

type nodeRow struct {
	Collection string
	Key        string
	Value      []byte
	Version    uint64
}

type collectionRow struct {
	Name    string
	Version uint64
}

func schema() *memdb.DBSchema {
	return &memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			nodesTable: {
				Name: nodesTable,
				Indexes: map[string]*memdb.IndexSchema{
					"id": {
						Name:   "id",
						Unique: true,
						Indexer: &memdb.CompoundIndex{
							Indexes: []memdb.Indexer{
								&memdb.StringFieldIndex{Field: "Collection"},
								&memdb.StringFieldIndex{Field: "Key"},
							},
						},
					},
					"collection": {
						Name:    "collection",
						Indexer: &memdb.StringFieldIndex{Field: "Collection"},
					},
				},
			},
			collectionsTable: {
				Name: collectionsTable,
				Indexes: map[string]*memdb.IndexSchema{
					"id": {
						Name:    "id",
						Unique:  true,
						Indexer: &memdb.StringFieldIndex{Field: "Name"},
					},
				},
			},
		},
	}
}

// Tree implements store.Backend in memory
type Tree struct {
	db      *memdb.MemDB
	pubsub  *gochannel.GoChannel
	persist Persister
	log     hclog.Logger
	metrics *metrics.Metrics

	commitMu sync.Mutex // serializes commits and the revision counter
	rev      uint64

	subsMu     sync.RWMutex
	subs       map[store.Handle]*subscription
	nextHandle store.Handle

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed atomic.Bool
}

// New builds a tree, loading persisted nodes when a Persister is given
func New(opts Options) (*Tree, error) {
	logger := opts.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	db, err := memdb.NewMemDB(schema())
	if err != nil {
		return nil, fmt.Errorf("failed to create node table: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := &Tree{
		db:      db,
		persist: opts.Persister,
		log:     logger,
		metrics: opts.Metrics,
		subs:    make(map[store.Handle]*subscription),
		ctx:     ctx,
		cancel:  cancel,
		pubsub: gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer: 256,
		}, logging.Watermill(logger.Named("pubsub"))),
	}

	if t.persist != nil {
		if err := t.load(); err != nil {
			cancel()
			_ = t.pubsub.Close()
			return nil, err
		}
	}

	changes, err := t.Changes(ctx)
	if err != nil {
		cancel()
		_ = t.pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to change feed: %w", err)
	}
	t.wg.Add(1)
	go t.dispatch(changes)

	return t, nil
}

func (t *Tree) load() error {
	nodes, err := t.persist.LoadNodes()
	if err != nil {
		return fmt.Errorf("failed to load nodes: %w", err)
	}

	txn := t.db.Txn(true)
	defer txn.Abort()

	versions := make(map[string]uint64)
	for _, n := range nodes {
		if n.Deleted || n.Path.IsCollection() {
			continue
		}
		row := &nodeRow{
			Collection: n.Path.Collection(),
			Key:        n.Path.Key(),
			Value:      n.Value,
			Version:    n.Version,
		}
		if err := txn.Insert(nodesTable, row); err != nil {
			return fmt.Errorf("failed to load %s: %w", n.Path, err)
		}
		if n.Version > versions[row.Collection] {
			versions[row.Collection] = n.Version
		}
		if n.Version > t.rev {
			t.rev = n.Version
		}
	}
	for name, v := range versions {
		if err := txn.Insert(collectionsTable, &collectionRow{Name: name, Version: v}); err != nil {
			return err
		}
	}
	txn.Commit()

	t.log.Info("store loaded", "nodes", len(nodes), "revision", t.rev)
	return nil
}

// Revision returns the last committed revision
func (t *Tree) Revision() uint64 {
	t.commitMu.Lock()
	defer t.commitMu.Unlock()
	return t.rev
}

func (t *Tree) Get(ctx context.Context, path store.Path) (store.Snapshot, error) {
	if t.closed.Load() {
		return store.Snapshot{}, store.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return store.Snapshot{}, err
	}

	txn := t.db.Txn(false)
	defer txn.Abort()
	return readSnapshot(txn, path)
}

func readSnapshot(txn *memdb.Txn, path store.Path) (store.Snapshot, error) {
	snap := store.Snapshot{Path: path}

	if !path.IsCollection() {
		row, err := lookup(txn, path)
		if err != nil {
			return snap, err
		}
		if row != nil {
			snap.Value = clone(row.Value)
			snap.Version = row.Version
		}
		return snap, nil
	}

	version, err := collectionVersion(txn, path.Collection())
	if err != nil {
		return snap, err
	}
	snap.Version = version

	rows, err := collectionRows(txn, path.Collection())
	if err != nil {
		return snap, err
	}
	for _, row := range rows {
		snap.Children = append(snap.Children, store.Child{Key: row.Key, Value: clone(row.Value)})
	}
	return snap, nil
}

func (t *Tree) Query(ctx context.Context, collection, field string, value json.RawMessage) ([]store.Child, error) {
	if t.closed.Load() {
		return nil, store.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	want := gjson.ParseBytes(value)

	txn := t.db.Txn(false)
	defer txn.Abort()

	rows, err := collectionRows(txn, collection)
	if err != nil {
		return nil, err
	}
	var out []store.Child
	for _, row := range rows {
		if equalJSON(gjson.GetBytes(row.Value, field), want) {
			out = append(out, store.Child{Key: row.Key, Value: clone(row.Value)})
		}
	}
	return out, nil
}

// equalJSON compares a child field to a query value; a missing field equals null
func equalJSON(got, want gjson.Result) bool {
	if !got.Exists() {
		return want.Type == gjson.Null
	}
	if got.Type != want.Type {
		return false
	}
	switch want.Type {
	case gjson.String:
		return got.Str == want.Str
	case gjson.Number:
		return got.Num == want.Num
	case gjson.True, gjson.False, gjson.Null:
		return true
	default:
		return got.Raw == want.Raw
	}
}

// commitBatch accumulates the effects of one commit
type commitBatch struct {
	rev         uint64
	changed     []store.Path
	writes      []store.Node
	collections map[string]struct{}
}

func (b *commitBatch) touch(path store.Path) {
	b.changed = append(b.changed, path)
	b.collections[path.Collection()] = struct{}{}
}

func (t *Tree) Commit(ctx context.Context, muts []store.Mutation) error {
	if t.closed.Load() {
		return store.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	t.commitMu.Lock()
	defer t.commitMu.Unlock()

	b := &commitBatch{rev: t.rev + 1, collections: make(map[string]struct{})}

	txn := t.db.Txn(true)
	defer txn.Abort()

	for _, m := range muts {
		if err := apply(txn, m, b); err != nil {
			if errors.Is(err, store.ErrConflict) {
				t.metrics.CommitObserved("conflict")
			} else {
				t.metrics.CommitObserved("error")
			}
			return err
		}
	}

	if len(b.changed) == 0 {
		t.metrics.CommitObserved("noop")
		return nil
	}

	for name := range b.collections {
		if err := txn.Insert(collectionsTable, &collectionRow{Name: name, Version: b.rev}); err != nil {
			t.metrics.CommitObserved("error")
			return fmt.Errorf("failed to bump collection %s: %w", name, err)
		}
	}
	txn.Commit()
	t.rev = b.rev
	t.metrics.CommitObserved("ok")

	if t.persist != nil {
		if err := t.persist.SaveNodes(b.writes); err != nil {
			t.log.Warn("failed to persist commit", "revision", b.rev, "error", err)
		}
	}

	t.publish(store.Change{Revision: b.rev, Paths: b.changed})
	return nil
}

func apply(txn *memdb.Txn, m store.Mutation, b *commitBatch) error {
	path := m.Path

	if m.IfExists {
		row, err := lookup(txn, path)
		if err != nil {
			return err
		}
		if row == nil {
			return fmt.Errorf("%w: %s", store.ErrMissing, path)
		}
	}

	if m.IfVersion != nil {
		current, err := currentVersion(txn, path)
		if err != nil {
			return err
		}
		if current != *m.IfVersion {
			return fmt.Errorf("%w: %s is at version %d, expected %d", store.ErrConflict, path, current, *m.IfVersion)
		}
	}

	switch m.Op {
	case store.OpSet:
		if isNull(m.Value) {
			return deleteNode(txn, path, b)
		}
		return putNode(txn, path, m.Value, b)

	case store.OpMerge:
		base := []byte("{}")
		row, err := lookup(txn, path)
		if err != nil {
			return err
		}
		if row != nil {
			if !gjson.ParseBytes(row.Value).IsObject() {
				return fmt.Errorf("%w: %s does not hold an object", store.ErrInvalidValue, path)
			}
			base = clone(row.Value)
		}
		names := make([]string, 0, len(m.Fields))
		for name := range m.Fields {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			base, err = sjson.SetRawBytes(base, name, m.Fields[name])
			if err != nil {
				return fmt.Errorf("%w: field %q: %v", store.ErrInvalidValue, name, err)
			}
		}
		return putNode(txn, path, base, b)

	case store.OpDelete:
		if path.IsCollection() {
			return deleteCollection(txn, path, b)
		}
		return deleteNode(txn, path, b)
	}
	return fmt.Errorf("%w: unknown op %q", store.ErrInvalidValue, m.Op)
}

func putNode(txn *memdb.Txn, path store.Path, value []byte, b *commitBatch) error {
	row := &nodeRow{
		Collection: path.Collection(),
		Key:        path.Key(),
		Value:      clone(value),
		Version:    b.rev,
	}
	if err := txn.Insert(nodesTable, row); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	b.touch(path)
	b.writes = append(b.writes, store.Node{Path: path, Value: row.Value, Version: b.rev})
	return nil
}

func deleteNode(txn *memdb.Txn, path store.Path, b *commitBatch) error {
	row, err := lookup(txn, path)
	if err != nil || row == nil {
		return err
	}
	if err := txn.Delete(nodesTable, row); err != nil {
		return fmt.Errorf("failed to delete %s: %w", path, err)
	}
	b.touch(path)
	b.writes = append(b.writes, store.Node{Path: path, Version: b.rev, Deleted: true})
	return nil
}

func deleteCollection(txn *memdb.Txn, path store.Path, b *commitBatch) error {
	rows, err := collectionRows(txn, path.Collection())
	if err != nil || len(rows) == 0 {
		return err
	}
	for _, row := range rows {
		if err := txn.Delete(nodesTable, row); err != nil {
			return fmt.Errorf("failed to delete %s/%s: %w", row.Collection, row.Key, err)
		}
		b.touch(store.Join(row.Collection, row.Key))
	}
	b.touch(path)
	b.writes = append(b.writes, store.Node{Path: path, Version: b.rev, Deleted: true})
	return nil
}

func lookup(txn *memdb.Txn, path store.Path) (*nodeRow, error) {
	raw, err := txn.First(nodesTable, "id", path.Collection(), path.Key())
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if raw == nil {
		return nil, nil
	}
	return raw.(*nodeRow), nil
}

func collectionRows(txn *memdb.Txn, collection string) ([]*nodeRow, error) {
	it, err := txn.Get(nodesTable, "collection", collection)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", collection, err)
	}
	var rows []*nodeRow
	for obj := it.Next(); obj != nil; obj = it.Next() {
		rows = append(rows, obj.(*nodeRow))
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Key < rows[j].Key })
	return rows, nil
}

func collectionVersion(txn *memdb.Txn, name string) (uint64, error) {
	raw, err := txn.First(collectionsTable, "id", name)
	if err != nil {
		return 0, fmt.Errorf("failed to read %s version: %w", name, err)
	}
	if raw == nil {
		return 0, nil
	}
	return raw.(*collectionRow).Version, nil
}

func currentVersion(txn *memdb.Txn, path store.Path) (uint64, error) {
	if path.IsCollection() {
		return collectionVersion(txn, path.Collection())
	}
	row, err := lookup(txn, path)
	if err != nil || row == nil {
		return 0, err
	}
	return row.Version, nil
}

func (t *Tree) publish(change store.Change) {
	payload, err := json.Marshal(change)
	if err != nil {
		t.log.Error("failed to encode change", "revision", change.Revision, "error", err)
		return
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	if err := t.pubsub.Publish(changesTopic, msg); err != nil {
		t.log.Warn("failed to publish change", "revision", change.Revision, "error", err)
	}
}

// Changes streams commit notifications until ctx is done or the tree closes
func (t *Tree) Changes(ctx context.Context) (<-chan store.Change, error) {
	if t.closed.Load() {
		return nil, store.ErrClosed
	}
	msgs, err := t.pubsub.Subscribe(ctx, changesTopic)
	if err != nil {
		return nil, err
	}

	out := make(chan store.Change, 16)
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		defer close(out)
		for msg := range msgs {
			var change store.Change
			err := json.Unmarshal(msg.Payload, &change)
			msg.Ack()
			if err != nil {
				t.log.Warn("dropping malformed change", "uuid", msg.UUID, "error", err)
				continue
			}
			select {
			case out <- change:
			case <-ctx.Done():
				return
			case <-t.ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Close stops subscriptions, delivering store.ErrClosed to each, and
// shuts the change feed down. The persister is owned by the caller.
func (t *Tree) Close() error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}
	t.cancel()

	var result *multierror.Error
	if err := t.pubsub.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("failed to close change feed: %w", err))
	}

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(closeTimeout):
		result = multierror.Append(result, fmt.Errorf("timeout waiting for subscribers"))
	}

	t.subsMu.Lock()
	for h := range t.subs {
		delete(t.subs, h)
		t.metrics.SubscriptionRemoved()
	}
	t.subsMu.Unlock()

	return result.ErrorOrNil()
}

func isNull(raw []byte) bool {
	return len(raw) == 0 || gjson.ParseBytes(raw).Type == gjson.Null
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}
