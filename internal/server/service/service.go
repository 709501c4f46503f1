// Package service wires the scoreboard components behind the HTTP layer:
// the store tree and its persistence, the match components, operator
// accounts and long-poll waiters.
package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"scoreboard/internal/ledger"
	"scoreboard/internal/lifecycle"
	"scoreboard/internal/metrics"
	"scoreboard/internal/roster"
	"scoreboard/internal/server/storage"
	"scoreboard/internal/store"
	"scoreboard/internal/store/local"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
)

const (
	SessionTTL         = 7 * 24 * time.Hour
	CleanupJobInterval = 1 * time.Hour
)

// Options configures a Service; Storage may be nil to run in memory
type Options struct {
	Storage      *storage.Store
	Secret       []byte
	TokenTTL     time.Duration
	Location     *time.Location
	AtomicScores bool
	WaitTimeout  time.Duration
	Now          func() time.Time
	Logger       hclog.Logger
	Metrics      *metrics.Metrics
}

// Service owns the shared state every request works against
type Service struct {
	sql      *storage.Store
	tree     *local.Tree
	store    *store.Store
	engine   *lifecycle.Engine
	ledger   *ledger.Ledger
	roster   *roster.Roster
	waiter   *WaitRegistry
	metrics  *metrics.Metrics
	log      hclog.Logger
	secret   []byte
	tokenTTL time.Duration
	now      func() time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New loads the tree from storage and starts forwarding its changes to waiters
func New(opts Options) (*Service, error) {
	log := opts.Logger
	if log == nil {
		log = hclog.NewNullLogger()
	}
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = SessionTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	treeOpts := local.Options{Logger: log.Named("tree"), Metrics: opts.Metrics}
	if opts.Storage != nil {
		treeOpts.Persister = opts.Storage
	}
	tree, err := local.New(treeOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to load store: %w", err)
	}

	st := store.New(tree, log.Named("store"))
	engine := lifecycle.New(st, lifecycle.Options{
		Now:          opts.Now,
		Location:     opts.Location,
		Logger:       log.Named("lifecycle"),
		Metrics:      opts.Metrics,
		AtomicScores: opts.AtomicScores,
	})

	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		sql:      opts.Storage,
		tree:     tree,
		store:    st,
		engine:   engine,
		ledger:   ledger.New(st, engine, ledger.Options{Logger: log.Named("ledger"), Metrics: opts.Metrics}),
		roster:   roster.New(st, roster.Options{Now: opts.Now, Logger: log.Named("roster")}),
		waiter:   NewWaitRegistry(opts.Metrics, opts.WaitTimeout),
		metrics:  opts.Metrics,
		log:      log,
		secret:   opts.Secret,
		tokenTTL: opts.TokenTTL,
		now:      opts.Now,
		cancel:   cancel,
	}

	changes, err := tree.Changes(ctx)
	if err != nil {
		cancel()
		tree.Close()
		return nil, err
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for change := range changes {
			s.waiter.NotifyChange(change)
		}
	}()

	log.Info("store loaded", "revision", tree.Revision(), "persistent", opts.Storage != nil)
	return s, nil
}

func (s *Service) Store() *store.Store { return s.store }
func (s *Service) Engine() *lifecycle.Engine { return s.engine }
func (s *Service) Ledger() *ledger.Ledger { return s.ledger }
func (s *Service) Roster() *roster.Roster { return s.roster }
func (s *Service) Metrics() *metrics.Metrics { return s.metrics }
func (s *Service) Logger() hclog.Logger { return s.log }
func (s *Service) Now() time.Time { return s.now() }
func (s *Service) Location() *time.Location { return s.engine.Location() }
func (s *Service) Revision() uint64 { return s.tree.Revision() }
func (s *Service) StorageEnabled() bool { return s.sql != nil }
func (s *Service) Waiters(path store.Path) int { return s.waiter.Count(path) }

// GetStorageHealth returns the storage component status
func (s *Service) GetStorageHealth() string {
	if s.sql == nil {
		return "disabled"
	}
	if s.sql.IsHealthy() {
		return "ok"
	}
	return "degraded"
}

// RegisterWait parks a long-poll client on path
func (s *Service) RegisterWait(ctx context.Context, path store.Path, version uint64) <-chan struct{} {
	return s.waiter.RegisterWait(ctx, path, version)
}

// Shutdown releases waiters, stops the change feed and closes the tree.
// Storage is owned by the caller.
func (s *Service) Shutdown(timeout time.Duration) error {
	var result *multierror.Error

	if err := s.waiter.Shutdown(timeout); err != nil {
		result = multierror.Append(result, fmt.Errorf("wait registry: %w", err))
	}

	s.cancel()
	if err := s.tree.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("store: %w", err))
	}
	s.wg.Wait()

	return result.ErrorOrNil()
}

// RunCleanupJob periodically deletes expired sessions
func (s *Service) RunCleanupJob(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.cleanupExpired()
		}
	}
}

func (s *Service) cleanupExpired() {
	if s.sql == nil {
		return
	}
	if deleted, err := s.sql.DeleteExpiredSessions(); err != nil {
		s.log.Warn("cleanup: failed to delete expired sessions", "error", err)
	} else if deleted > 0 {
		s.log.Info("cleanup: deleted expired sessions", "count", deleted)
	}
}
