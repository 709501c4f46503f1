package control

import (
	"context"
	"sync"
	"time"
)

// Tasks is a named group of periodic goroutines sharing one lifetime.
// Starting a name that is already running replaces it.
type Tasks struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	running map[string]*task
	seq     uint64
}

type task struct {
	id     uint64
	cancel context.CancelFunc
}

func NewTasks(parent context.Context) *Tasks {
	ctx, cancel := context.WithCancel(parent)
	return &Tasks{ctx: ctx, cancel: cancel, running: make(map[string]*task)}
}

// Every runs fn each interval until cancelled
func (t *Tasks) Every(name string, interval time.Duration, fn func(ctx context.Context)) bool {
	return t.start(name, func(ctx context.Context) {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fn(ctx)
			}
		}
	})
}

// Countdown reports the remaining time every tick, starting with the full
// duration, and calls onDone once it reaches zero.
func (t *Tasks) Countdown(name string, total, tick time.Duration, onTick func(remaining time.Duration), onDone func()) bool {
	return t.start(name, func(ctx context.Context) {
		deadline := time.Now().Add(total)
		ticker := time.NewTicker(tick)
		defer ticker.Stop()

		if onTick != nil {
			onTick(total)
		}
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				remaining := deadline.Sub(now)
				if remaining <= 0 {
					if onTick != nil {
						onTick(0)
					}
					if onDone != nil {
						onDone()
					}
					return
				}
				if onTick != nil {
					onTick(remaining.Round(tick))
				}
			}
		}
	})
}

func (t *Tasks) start(name string, run func(ctx context.Context)) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ctx.Err() != nil {
		return false
	}
	if prev, ok := t.running[name]; ok {
		prev.cancel()
	}

	ctx, cancel := context.WithCancel(t.ctx)
	t.seq++
	tk := &task{id: t.seq, cancel: cancel}
	t.running[name] = tk

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		defer t.finish(name, tk.id)
		run(ctx)
	}()
	return true
}

func (t *Tasks) finish(name string, id uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if tk, ok := t.running[name]; ok && tk.id == id {
		tk.cancel()
		delete(t.running, name)
	}
}

// Cancel stops a task; unknown names are ignored
func (t *Tasks) Cancel(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if tk, ok := t.running[name]; ok {
		tk.cancel()
		delete(t.running, name)
	}
}

func (t *Tasks) Running(name string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.running[name]
	return ok
}

// Close cancels every task and waits for them to return
func (t *Tasks) Close() {
	t.mu.Lock()
	t.cancel()
	t.running = make(map[string]*task)
	t.mu.Unlock()
	t.wg.Wait()
}
