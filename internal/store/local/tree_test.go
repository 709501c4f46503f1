package local

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"scoreboard/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memPersister struct {
	mu    sync.Mutex
	nodes map[store.Path]store.Node
}

func newMemPersister() *memPersister {
	return &memPersister{nodes: make(map[store.Path]store.Node)}
}

func (p *memPersister) LoadNodes() ([]store.Node, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]store.Node, 0, len(p.nodes))
	for _, n := range p.nodes {
		out = append(out, n)
	}
	return out, nil
}

func (p *memPersister) SaveNodes(writes []store.Node) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, w := range writes {
		switch {
		case w.Deleted && w.Path.IsCollection():
			for path := range p.nodes {
				if path.Parent() == w.Path {
					delete(p.nodes, path)
				}
			}
		case w.Deleted:
			delete(p.nodes, w.Path)
		default:
			p.nodes[w.Path] = w
		}
	}
	return nil
}

func newStore(t *testing.T, opts Options) (*store.Store, *Tree) {
	t.Helper()
	tree, err := New(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tree.Close() })
	return store.New(tree, nil), tree
}

func TestSetGetAndMerge(t *testing.T) {
	s, _ := newStore(t, Options{})
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "matches/m1", map[string]any{"team1Name": "Alpha", "score1": 0}))
	require.NoError(t, s.Update(ctx, "matches/m1", map[string]any{"score1": 2, "status": "playing"}))

	snap, err := s.Get(ctx, "matches/m1")
	require.NoError(t, err)
	require.True(t, snap.Exists())

	var got map[string]any
	require.NoError(t, snap.Decode(&got))
	assert.Equal(t, "Alpha", got["team1Name"])
	assert.EqualValues(t, 2, got["score1"])
	assert.Equal(t, "playing", got["status"])

	missing, err := s.Get(ctx, "matches/nope")
	require.NoError(t, err)
	assert.False(t, missing.Exists())
	assert.Zero(t, missing.Version)
}

func TestMergeCreatesAbsentNode(t *testing.T) {
	s, _ := newStore(t, Options{})
	ctx := context.Background()

	require.NoError(t, s.Update(ctx, "settings/defaultTeam", map[string]any{"teamId": "t1"}))
	snap, err := s.Get(ctx, "settings/defaultTeam")
	require.NoError(t, err)
	assert.JSONEq(t, `{"teamId":"t1"}`, string(snap.Value))
}

func TestMergeIfExistsLeavesAbsentNodeAlone(t *testing.T) {
	s, _ := newStore(t, Options{})
	ctx := context.Background()

	m, err := store.MergeOf("matches/m1", map[string]any{"score1": 1})
	require.NoError(t, err)
	assert.ErrorIs(t, s.Commit(ctx, m.Existing()), store.ErrMissing)
	assert.ErrorIs(t, s.Commit(ctx, m.Existing().Versioned(3)), store.ErrMissing)

	snap, err := s.Get(ctx, "matches/m1")
	require.NoError(t, err)
	assert.False(t, snap.Exists())

	require.NoError(t, s.Set(ctx, "matches/m1", map[string]any{"score1": 0, "score2": 2}))
	require.NoError(t, s.Commit(ctx, m.Existing()))
	snap, err = s.Get(ctx, "matches/m1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"score1":1,"score2":2}`, string(snap.Value))
}

func TestMergeRejectsScalarNode(t *testing.T) {
	s, _ := newStore(t, Options{})
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "settings/title", "plain"))
	err := s.Update(ctx, "settings/title", map[string]any{"x": 1})
	assert.ErrorIs(t, err, store.ErrInvalidValue)
}

func TestPushAndQueryEqual(t *testing.T) {
	s, _ := newStore(t, Options{})
	ctx := context.Background()

	k1, err := s.Push(ctx, "goals", map[string]any{"matchId": "m1", "half": 1})
	require.NoError(t, err)
	_, err = s.Push(ctx, "goals", map[string]any{"matchId": "m2", "half": 1})
	require.NoError(t, err)
	k3, err := s.Push(ctx, "goals", map[string]any{"matchId": "m1", "half": 2})
	require.NoError(t, err)
	assert.NotEqual(t, k1, k3)

	children, err := s.QueryEqual(ctx, "goals", "matchId", "m1")
	require.NoError(t, err)
	require.Len(t, children, 2)

	keys := []string{children[0].Key, children[1].Key}
	assert.ElementsMatch(t, []string{k1, k3}, keys)

	byHalf, err := s.QueryEqual(ctx, "goals", "half", 2)
	require.NoError(t, err)
	require.Len(t, byHalf, 1)
	assert.Equal(t, k3, byHalf[0].Key)

	_, err = s.QueryEqual(ctx, "goals/x", "matchId", "m1")
	assert.ErrorIs(t, err, store.ErrInvalidPath)
}

func TestCommitIsAllOrNothing(t *testing.T) {
	s, tree := newStore(t, Options{})
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "matches/m1", map[string]any{"score1": 1}))
	before := tree.Revision()

	goal, err := store.SetOf("goals/g1", map[string]any{"matchId": "m1"})
	require.NoError(t, err)
	score, err := store.MergeOf("matches/m1", map[string]any{"score1": 2})
	require.NoError(t, err)

	err = s.Commit(ctx, goal, score.Versioned(before+5))
	require.ErrorIs(t, err, store.ErrConflict)

	snap, err := s.Get(ctx, "goals/g1")
	require.NoError(t, err)
	assert.False(t, snap.Exists())
	assert.Equal(t, before, tree.Revision())

	require.NoError(t, s.Commit(ctx, goal, score.Versioned(before)))
	snap, err = s.Get(ctx, "matches/m1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"score1":2}`, string(snap.Value))
	assert.Equal(t, before+1, snap.Version)
}

func TestVersionZeroRequiresAbsence(t *testing.T) {
	s, _ := newStore(t, Options{})
	ctx := context.Background()

	m, err := store.SetOf("teams/t1", map[string]any{"name": "Alpha"})
	require.NoError(t, err)
	require.NoError(t, s.Commit(ctx, m.Versioned(0)))
	assert.ErrorIs(t, s.Commit(ctx, m.Versioned(0)), store.ErrConflict)
}

func TestRemoveNodeAndCollection(t *testing.T) {
	s, _ := newStore(t, Options{})
	ctx := context.Background()

	for _, k := range []string{"a", "b", "c"} {
		require.NoError(t, s.Set(ctx, store.Join("players", k), map[string]any{"n": k}))
	}
	require.NoError(t, s.Remove(ctx, "players/b"))

	snap, err := s.Get(ctx, "players")
	require.NoError(t, err)
	require.Len(t, snap.Children, 2)
	assert.Equal(t, "a", snap.Children[0].Key)
	assert.Equal(t, "c", snap.Children[1].Key)

	require.NoError(t, s.Remove(ctx, "players"))
	snap, err = s.Get(ctx, "players")
	require.NoError(t, err)
	assert.False(t, snap.Exists())

	// removing something absent is not an error
	require.NoError(t, s.Remove(ctx, "players/zzz"))
}

func TestSetNullDeletes(t *testing.T) {
	s, _ := newStore(t, Options{})
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "coaches/t1", map[string]any{"name": "Coach"}))
	require.NoError(t, s.Set(ctx, "coaches/t1", nil))

	snap, err := s.Get(ctx, "coaches/t1")
	require.NoError(t, err)
	assert.False(t, snap.Exists())
}

func TestTransformConcurrentIncrements(t *testing.T) {
	s, _ := newStore(t, Options{})
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "counters/c", 0))

	const workers = 12
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Transform(ctx, "counters/c", func(cur json.RawMessage) (any, error) {
				var n int
				if cur != nil {
					if err := json.Unmarshal(cur, &n); err != nil {
						return nil, err
					}
				}
				return n + 1, nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	snap, err := s.Get(ctx, "counters/c")
	require.NoError(t, err)
	assert.Equal(t, "12", string(snap.Value))
}

func TestClosedTreeRejectsCalls(t *testing.T) {
	tree, err := New(Options{})
	require.NoError(t, err)
	require.NoError(t, tree.Close())
	require.NoError(t, tree.Close())

	s := store.New(tree, nil)
	_, err = s.Get(context.Background(), "matches/m1")
	assert.ErrorIs(t, err, store.ErrClosed)
	assert.ErrorIs(t, s.Set(context.Background(), "matches/m1", 1), store.ErrClosed)
}

func TestPersistedTreeReloads(t *testing.T) {
	p := newMemPersister()
	ctx := context.Background()

	s, tree := newStore(t, Options{Persister: p})
	require.NoError(t, s.Set(ctx, "matches/m1", map[string]any{"score1": 3}))
	require.NoError(t, s.Set(ctx, "matches/m2", map[string]any{"score1": 1}))
	require.NoError(t, s.Remove(ctx, "matches/m2"))
	rev := tree.Revision()
	require.NoError(t, tree.Close())

	reloaded, err := New(Options{Persister: p})
	require.NoError(t, err)
	defer reloaded.Close()

	snap, err := reloaded.Get(ctx, "matches")
	require.NoError(t, err)
	require.Len(t, snap.Children, 1)
	assert.Equal(t, "m1", snap.Children[0].Key)
	assert.JSONEq(t, `{"score1":3}`, string(snap.Children[0].Value))
	assert.LessOrEqual(t, reloaded.Revision(), rev)
}

func TestChangesFeed(t *testing.T) {
	s, tree := newStore(t, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes, err := tree.Changes(ctx)
	require.NoError(t, err)

	require.NoError(t, s.Set(context.Background(), "matches/m1", map[string]any{"a": 1}))

	select {
	case change := <-changes:
		assert.Equal(t, []store.Path{"matches/m1"}, change.Paths)
		assert.Equal(t, tree.Revision(), change.Revision)
	case <-time.After(2 * time.Second):
		t.Fatal("no change published")
	}
}
