package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"scoreboard/internal/metrics"
	"scoreboard/internal/store"
)

const (
	// WaitTimeout is the maximum time a client can wait for notifications
	WaitTimeout = 25 * time.Second

	// WaitChannelBuffer size for notification channels
	WaitChannelBuffer = 1
)

// WaitRegistry parks long-polling clients until the path they watch changes
type WaitRegistry struct {
	mu       sync.RWMutex
	waiters  map[store.Path][]*WaitRequest
	metrics  *metrics.Metrics
	timeout  time.Duration
	shutdown chan struct{}
	closed   bool
	wg       sync.WaitGroup
}

// WaitRequest represents a single client waiting for a path update
type WaitRequest struct {
	Version uint64          // Last version the client saw
	Notify  chan struct{}   // Buffered channel for notifications
	Timer   *time.Timer     // Timeout timer
	Context context.Context // Client connection context
	Path    store.Path      // Path being watched
}

func NewWaitRegistry(m *metrics.Metrics, timeout time.Duration) *WaitRegistry {
	if timeout <= 0 {
		timeout = WaitTimeout
	}
	return &WaitRegistry{
		waiters:  make(map[store.Path][]*WaitRequest),
		metrics:  m,
		timeout:  timeout,
		shutdown: make(chan struct{}),
	}
}

// RegisterWait parks a client on path until a change, the timeout, client
// disconnect or shutdown. The returned channel receives or closes once.
func (w *WaitRegistry) RegisterWait(ctx context.Context, path store.Path, version uint64) <-chan struct{} {
	w.mu.Lock()
	defer w.mu.Unlock()

	req := &WaitRequest{
		Version: version,
		Notify:  make(chan struct{}, WaitChannelBuffer),
		Context: ctx,
		Path:    path,
	}
	if w.closed {
		close(req.Notify)
		return req.Notify
	}

	req.Timer = time.AfterFunc(w.timeout, func() {
		w.signal(req)
	})
	w.waiters[path] = append(w.waiters[path], req)
	w.metrics.WaiterAdded()

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		select {
		case <-ctx.Done():
			w.removeWaiter(req)
		case <-w.shutdown:
		}
	}()

	return req.Notify
}

// NotifyChange wakes the waiters on each changed path and on its collection
func (w *WaitRegistry) NotifyChange(change store.Change) {
	seen := make(map[store.Path]bool, len(change.Paths)*2)
	for _, p := range change.Paths {
		for _, target := range []store.Path{p, p.Parent()} {
			if seen[target] {
				continue
			}
			seen[target] = true
			w.notifyPath(target, change.Revision)
		}
	}
}

func (w *WaitRegistry) notifyPath(path store.Path, revision uint64) {
	w.mu.RLock()
	waitList := w.waiters[path]
	w.mu.RUnlock()

	for _, req := range waitList {
		if req.Version != revision {
			w.signal(req)
		}
	}
}

// Count reports parked clients per path
func (w *WaitRegistry) Count(path store.Path) int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.waiters[path])
}

// Shutdown releases every parked client
func (w *WaitRegistry) Shutdown(timeout time.Duration) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.shutdown)
	for path, waitList := range w.waiters {
		for _, req := range waitList {
			req.Timer.Stop()
			close(req.Notify)
			w.metrics.WaiterRemoved()
		}
		delete(w.waiters, path)
	}
	w.mu.Unlock()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("wait registry shutdown timed out")
	}
}

func (w *WaitRegistry) signal(req *WaitRequest) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return
	}
	select {
	case req.Notify <- struct{}{}:
	default:
	}
}

// removeWaiter drops a request once its client is gone
func (w *WaitRegistry) removeWaiter(req *WaitRequest) {
	w.mu.Lock()
	defer w.mu.Unlock()

	waitList := w.waiters[req.Path]
	for i, waiter := range waitList {
		if waiter == req {
			w.waiters[req.Path] = append(waitList[:i], waitList[i+1:]...)
			w.metrics.WaiterRemoved()
			break
		}
	}
	if len(w.waiters[req.Path]) == 0 {
		delete(w.waiters, req.Path)
	}
	req.Timer.Stop()
}
