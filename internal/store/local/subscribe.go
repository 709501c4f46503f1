package local

import (
	"errors"
	"fmt"

	"scoreboard/internal/store"
)

type subscription struct {
	handle   store.Handle
	path     store.Path
	onChange func(store.Snapshot)
	onError  func(error)
	wake     chan struct{}
	done     chan struct{}
}

// notify marks the subscription dirty without blocking; pending wakes coalesce
func (s *subscription) notify() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscription) stopped() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

func (t *Tree) Subscribe(path store.Path, onChange func(store.Snapshot), onError func(error)) (store.Handle, error) {
	if t.closed.Load() {
		return 0, store.ErrClosed
	}
	if onChange == nil {
		return 0, fmt.Errorf("%w: nil change callback", store.ErrInvalidValue)
	}
	if onError == nil {
		onError = func(error) {}
	}

	sub := &subscription{
		path:     path,
		onChange: onChange,
		onError:  onError,
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}

	t.subsMu.Lock()
	t.nextHandle++
	sub.handle = t.nextHandle
	t.subs[sub.handle] = sub
	t.subsMu.Unlock()

	t.metrics.SubscriptionAdded()
	sub.notify()

	t.wg.Add(1)
	go t.deliver(sub)

	t.log.Debug("subscribed", "path", path, "handle", sub.handle)
	return sub.handle, nil
}

func (t *Tree) Unsubscribe(h store.Handle) {
	t.subsMu.Lock()
	sub, ok := t.subs[h]
	delete(t.subs, h)
	t.subsMu.Unlock()

	if !ok {
		return
	}
	close(sub.done)
	t.metrics.SubscriptionRemoved()
	t.log.Debug("unsubscribed", "path", sub.path, "handle", h)
}

// deliver runs one subscriber: the first wake always delivers, later wakes
// deliver only when the observed version moved.
func (t *Tree) deliver(sub *subscription) {
	defer t.wg.Done()

	var (
		last      uint64
		delivered bool
	)
	for {
		select {
		case <-sub.done:
			return
		case <-t.ctx.Done():
			if !sub.stopped() {
				sub.onError(store.ErrClosed)
			}
			return
		case <-sub.wake:
		}

		snap, err := t.Get(t.ctx, sub.path)
		if err != nil {
			if errors.Is(err, store.ErrClosed) {
				continue
			}
			if !sub.stopped() {
				sub.onError(err)
			}
			continue
		}
		if delivered && snap.Version == last {
			continue
		}
		if sub.stopped() {
			return
		}
		delivered = true
		last = snap.Version
		sub.onChange(snap)
	}
}

// dispatch wakes every subscriber observing a changed path
func (t *Tree) dispatch(changes <-chan store.Change) {
	defer t.wg.Done()

	for change := range changes {
		t.subsMu.RLock()
		for _, sub := range t.subs {
			for _, p := range change.Paths {
				if sub.path.Observes(p) {
					sub.notify()
					break
				}
			}
		}
		t.subsMu.RUnlock()
	}
}
