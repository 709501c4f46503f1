package control

import (
	"context"
	"sync"
	"testing"
	"time"

	"scoreboard/internal/identity"
	"scoreboard/internal/ledger"
	"scoreboard/internal/lifecycle"
	"scoreboard/internal/model"
	"scoreboard/internal/store"
	"scoreboard/internal/store/local"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type views struct {
	mu   sync.Mutex
	seen []lifecycle.View
}

func (v *views) add(view lifecycle.View) {
	v.mu.Lock()
	v.seen = append(v.seen, view)
	v.mu.Unlock()
}

func (v *views) last() lifecycle.View {
	v.mu.Lock()
	defer v.mu.Unlock()
	if len(v.seen) == 0 {
		return lifecycle.View{}
	}
	return v.seen[len(v.seen)-1]
}

type fixture struct {
	deps  Deps
	clock *clock
	match model.Match
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	tree, err := local.New(local.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = tree.Close() })

	s := store.New(tree, nil)
	c := &clock{now: time.Date(2024, 6, 1, 18, 0, 0, 0, time.UTC)}
	engine := lifecycle.New(s, lifecycle.Options{Now: c.Now, Location: time.UTC})
	deps := Deps{Store: s, Engine: engine, Ledger: ledger.New(s, engine, ledger.Options{})}

	m, err := engine.Create(context.Background(), lifecycle.CreateRequest{Team1Name: "Alpha", Team2Name: "Beta"},
		&identity.Identity{UID: "op", Email: "op@example.com"})
	require.NoError(t, err)
	return &fixture{deps: deps, clock: c, match: m}
}

func (f *fixture) stored() model.Match {
	m, _ := f.deps.Engine.Get(context.Background(), f.match.ID)
	return m
}

func running(s *Session, name string) func() bool {
	return func() bool { return s.tasks.Running(name) }
}

func stopped(s *Session, name string) func() bool {
	return func() bool { return !s.tasks.Running(name) }
}

func TestOpenRendersAndFollows(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	seen := &views{}
	s, err := Open(ctx, f.deps, f.match.ID, Options{OnChange: seen.add, Debounce: -1})
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, model.StatusWaiting, seen.last().DisplayStatus)
	assert.Equal(t, f.match.ID, s.ID())

	// a write from another operator reaches the session
	_, err = f.deps.Engine.ChangeScore(ctx, f.match.ID, model.Side2, 2)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return seen.last().Match.Score2 == 2 }, time.Second, time.Millisecond)
	assert.Equal(t, 2, s.Match().Score2)
}

func TestOpenMissingMatch(t *testing.T) {
	f := newFixture(t)
	_, err := Open(context.Background(), f.deps, "nope", Options{})
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestTimerSyncFollowsPlayingState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var (
		mu    sync.Mutex
		ticks []time.Duration
	)
	done := make(chan struct{})
	s, err := Open(ctx, f.deps, f.match.ID, Options{
		SyncInterval: 5 * time.Millisecond,
		Halftime:     40 * time.Millisecond,
		HalftimeTick: 10 * time.Millisecond,
		Debounce:     -1,
		OnHalftimeTick: func(d time.Duration) {
			mu.Lock()
			ticks = append(ticks, d)
			mu.Unlock()
		},
		OnHalftimeDone: func() { close(done) },
	})
	require.NoError(t, err)
	defer s.Close()
	assert.False(t, s.tasks.Running(taskSync))

	_, err = s.StartHalf(ctx, 1)
	require.NoError(t, err)
	require.Eventually(t, running(s, taskSync), time.Second, time.Millisecond)

	f.clock.Advance(65 * time.Second)
	require.Eventually(t, func() bool { return f.stored().Time == "00:01:05" }, time.Second, time.Millisecond)
	assert.Equal(t, "00:01:05", s.View().Clock)

	_, err = s.StopHalf(ctx, 1)
	require.NoError(t, err)
	assert.True(t, s.HalftimeRunning())
	require.Eventually(t, stopped(s, taskSync), time.Second, time.Millisecond)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("halftime countdown never finished")
	}
	mu.Lock()
	assert.Equal(t, 40*time.Millisecond, ticks[0])
	mu.Unlock()

	// the stored time no longer moves once stopped
	f.clock.Advance(time.Minute)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, "00:01:05", f.stored().Time)

	_, err = s.StartHalf(ctx, 2)
	require.NoError(t, err)
	assert.False(t, s.HalftimeRunning())
	require.Eventually(t, running(s, taskSync), time.Second, time.Millisecond)

	_, err = s.EndMatch(ctx)
	require.NoError(t, err)
	require.Eventually(t, stopped(s, taskSync), time.Second, time.Millisecond)
}

func TestSyncStopsWhenAnotherOperatorEnds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s, err := Open(ctx, f.deps, f.match.ID, Options{SyncInterval: time.Hour, Debounce: -1})
	require.NoError(t, err)
	defer s.Close()

	_, err = f.deps.Engine.StartHalf(ctx, f.match.ID, 1)
	require.NoError(t, err)
	require.Eventually(t, running(s, taskSync), time.Second, time.Millisecond)

	_, err = f.deps.Engine.EndMatch(ctx, f.match.ID)
	require.NoError(t, err)
	require.Eventually(t, stopped(s, taskSync), time.Second, time.Millisecond)
	assert.Equal(t, model.StatusEnded, s.Match().Status)
}

func TestDuplicateActionsRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s, err := Open(ctx, f.deps, f.match.ID, Options{Debounce: time.Hour})
	require.NoError(t, err)
	defer s.Close()

	score, err := s.ChangeScore(ctx, model.Side1, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, score)

	_, err = s.ChangeScore(ctx, model.Side1, 1)
	assert.ErrorIs(t, err, ErrDuplicateAction)

	// other actions have their own limiter
	_, err = s.ChangeScore(ctx, model.Side2, 1)
	require.NoError(t, err)

	plan, err := s.RequestGoalRemoval(ctx, model.Side2)
	require.NoError(t, err)
	assert.Equal(t, ledger.RemovalDecremented, plan.Action)
	assert.Equal(t, 0, plan.Score)

	m := f.stored()
	assert.Equal(t, 1, m.Score1)
	assert.Equal(t, 0, m.Score2)
}

func TestCloseIsFinal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	seen := &views{}
	s, err := Open(ctx, f.deps, f.match.ID, Options{OnChange: seen.add, SyncInterval: time.Hour, Debounce: -1})
	require.NoError(t, err)

	_, err = s.StartHalf(ctx, 1)
	require.NoError(t, err)

	s.Close()
	s.Close()
	assert.False(t, s.tasks.Running(taskSync))

	_, err = s.ChangeScore(ctx, model.Side1, 1)
	assert.ErrorIs(t, err, ErrClosed)
	_, _, err = s.RecordGoal(ctx, "", true)
	assert.ErrorIs(t, err, ErrClosed)

	_, err = f.deps.Engine.ChangeScore(ctx, f.match.ID, model.Side1, 3)
	require.NoError(t, err)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 0, seen.last().Match.Score1)
}
