// Package control implements the operator's view of one open match: a live
// subscription, the timer sync, the halftime countdown and guarded actions.
package control

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"scoreboard/internal/ledger"
	"scoreboard/internal/lifecycle"
	"scoreboard/internal/model"
	"scoreboard/internal/store"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/time/rate"
)

var (
	ErrDuplicateAction = errors.New("duplicate action")
	ErrClosed          = errors.New("control session closed")
)

const (
	DefaultSyncInterval = 10 * time.Second
	DefaultHalftime     = 5 * time.Minute
	DefaultDebounce     = 300 * time.Millisecond

	taskSync     = "sync"
	taskHalftime = "halftime"
)

// Deps are the shared components a session drives
type Deps struct {
	Store  *store.Store
	Engine *lifecycle.Engine
	Ledger *ledger.Ledger
	Logger hclog.Logger
}

// Options holds the session callbacks and timings. A negative Debounce
// disables duplicate suppression.
type Options struct {
	OnChange       func(lifecycle.View)
	OnError        func(error)
	OnHalftimeTick func(remaining time.Duration)
	OnHalftimeDone func()
	SyncInterval   time.Duration
	Halftime       time.Duration
	HalftimeTick   time.Duration
	Debounce       time.Duration
}

// Session is bound to one match from Open until Close
type Session struct {
	id     string
	deps   Deps
	opts   Options
	log    hclog.Logger
	tasks  *Tasks
	handle store.Handle

	mu       sync.Mutex
	match    model.Match
	limiters map[string]*rate.Limiter
	closed   bool
}

// Open reads the match once, renders it, then follows it with a
// subscription. The timer sync runs whenever the match is playing.
func Open(ctx context.Context, deps Deps, matchID string, opts Options) (*Session, error) {
	if opts.SyncInterval <= 0 {
		opts.SyncInterval = DefaultSyncInterval
	}
	if opts.Halftime <= 0 {
		opts.Halftime = DefaultHalftime
	}
	if opts.HalftimeTick <= 0 {
		opts.HalftimeTick = time.Second
	}
	if opts.Debounce == 0 {
		opts.Debounce = DefaultDebounce
	}
	log := deps.Logger
	if log == nil {
		log = hclog.NewNullLogger()
	}
	log = log.With("match", matchID)

	m, err := deps.Engine.Get(ctx, matchID)
	if err != nil {
		return nil, err
	}

	s := &Session{
		id:       matchID,
		deps:     deps,
		opts:     opts,
		log:      log,
		tasks:    NewTasks(context.Background()),
		match:    m,
		limiters: make(map[string]*rate.Limiter),
	}
	s.emit(m)
	s.reconcile(m)

	h, err := deps.Store.Subscribe(lifecycle.Path(matchID), s.onSnapshot, s.onError)
	if err != nil {
		s.tasks.Close()
		return nil, err
	}
	s.mu.Lock()
	s.handle = h
	s.mu.Unlock()

	log.Debug("control session opened", "status", m.Status)
	return s, nil
}

func (s *Session) onSnapshot(snap store.Snapshot) {
	if !snap.Exists() {
		s.onError(fmt.Errorf("match %s: %w", s.id, model.ErrNotFound))
		s.tasks.Cancel(taskSync)
		return
	}
	m, err := model.DecodeMatch(s.id, snap.Value)
	if err != nil {
		s.onError(err)
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.match = m
	s.mu.Unlock()

	s.emit(m)
	s.reconcile(m)
}

func (s *Session) onError(err error) {
	if s.opts.OnError != nil {
		s.opts.OnError(err)
		return
	}
	s.log.Warn("control session error", "error", err)
}

func (s *Session) emit(m model.Match) {
	if s.opts.OnChange != nil {
		s.opts.OnChange(lifecycle.Render(m, s.deps.Engine.Now(), s.deps.Engine.Location()))
	}
}

// reconcile keeps the timer sync running exactly while the match is playing
func (s *Session) reconcile(m model.Match) {
	if m.Status != model.StatusPlaying {
		s.tasks.Cancel(taskSync)
		return
	}
	if s.tasks.Running(taskSync) {
		return
	}
	s.tasks.Every(taskSync, s.opts.SyncInterval, s.syncTime)
}

func (s *Session) syncTime(ctx context.Context) {
	label, err := s.deps.Engine.SyncTime(ctx, s.id)
	switch {
	case errors.Is(err, model.ErrNotPlaying), errors.Is(err, model.ErrNotFound):
		s.tasks.Cancel(taskSync)
	case err != nil:
		s.onError(fmt.Errorf("timer sync: %w", err))
	default:
		s.log.Trace("timer synced", "time", label)
	}
}

// guard rejects actions after Close and repeats of the same action within the debounce window
func (s *Session) guard(action string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.opts.Debounce < 0 {
		return nil
	}
	lim, ok := s.limiters[action]
	if !ok {
		lim = rate.NewLimiter(rate.Every(s.opts.Debounce), 1)
		s.limiters[action] = lim
	}
	if !lim.Allow() {
		return fmt.Errorf("%w: %s", ErrDuplicateAction, action)
	}
	return nil
}

// Match returns the most recent state seen by the session
func (s *Session) Match() model.Match {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.match
}

// View renders the most recent state at the current instant
func (s *Session) View() lifecycle.View {
	return lifecycle.Render(s.Match(), s.deps.Engine.Now(), s.deps.Engine.Location())
}

func (s *Session) ID() string { return s.id }

// HalftimeRunning reports whether the halftime countdown is active
func (s *Session) HalftimeRunning() bool {
	return s.tasks.Running(taskHalftime)
}

func (s *Session) StartHalf(ctx context.Context, half int) (model.Match, error) {
	if err := s.guard(fmt.Sprintf("start_half%d", half)); err != nil {
		return model.Match{}, err
	}
	m, err := s.deps.Engine.StartHalf(ctx, s.id, half)
	if err != nil {
		return m, err
	}
	s.tasks.Cancel(taskHalftime)
	s.apply(m)
	return m, nil
}

// StopHalf ends the running half; stopping half 1 starts the halftime countdown
func (s *Session) StopHalf(ctx context.Context, half int) (model.Match, error) {
	if err := s.guard(fmt.Sprintf("stop_half%d", half)); err != nil {
		return model.Match{}, err
	}
	m, err := s.deps.Engine.StopHalf(ctx, s.id, half)
	if err != nil {
		return m, err
	}
	s.apply(m)
	if half == 1 {
		s.tasks.Countdown(taskHalftime, s.opts.Halftime, s.opts.HalftimeTick, s.opts.OnHalftimeTick, s.opts.OnHalftimeDone)
	}
	return m, nil
}

func (s *Session) EndMatch(ctx context.Context) (model.Match, error) {
	if err := s.guard("end"); err != nil {
		return model.Match{}, err
	}
	m, err := s.deps.Engine.EndMatch(ctx, s.id)
	if err != nil {
		return m, err
	}
	s.tasks.Cancel(taskHalftime)
	s.apply(m)
	return m, nil
}

func (s *Session) ChangeScore(ctx context.Context, side model.Side, delta int) (int, error) {
	if err := s.guard(fmt.Sprintf("score%d:%+d", side, delta)); err != nil {
		return 0, err
	}
	return s.deps.Engine.ChangeScore(ctx, s.id, side, delta)
}

func (s *Session) RecordGoal(ctx context.Context, playerID string, isOwnGoal bool) (model.Goal, int, error) {
	if err := s.guard(fmt.Sprintf("goal:%s:%t", playerID, isOwnGoal)); err != nil {
		return model.Goal{}, 0, err
	}
	return s.deps.Ledger.RecordGoal(ctx, s.id, playerID, isOwnGoal)
}

func (s *Session) RequestGoalRemoval(ctx context.Context, side model.Side) (ledger.RemovalPlan, error) {
	if err := s.guard(fmt.Sprintf("remove%d", side)); err != nil {
		return ledger.RemovalPlan{}, err
	}
	return s.deps.Ledger.RequestGoalRemoval(ctx, s.id, side)
}

func (s *Session) RemoveGoal(ctx context.Context, goalID string, side model.Side) (int, error) {
	if err := s.guard("remove_goal:" + goalID); err != nil {
		return 0, err
	}
	return s.deps.Ledger.RemoveGoal(ctx, s.id, goalID, side)
}

func (s *Session) Goals(ctx context.Context) ([]model.Goal, error) {
	return s.deps.Ledger.Goals(ctx, s.id)
}

// apply adopts a state returned by a write before its notification arrives
func (s *Session) apply(m model.Match) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.match = m
	s.mu.Unlock()
	s.reconcile(m)
}

// Close tears down the subscription and every periodic task; it is safe to call twice
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	h := s.handle
	s.mu.Unlock()

	s.deps.Store.Unsubscribe(h)
	s.tasks.Close()
	s.log.Debug("control session closed")
}
