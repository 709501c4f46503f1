package control

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEveryRunsUntilCancelled(t *testing.T) {
	tasks := NewTasks(context.Background())
	defer tasks.Close()

	var n atomic.Int32
	require.True(t, tasks.Every("tick", 5*time.Millisecond, func(context.Context) { n.Add(1) }))
	assert.True(t, tasks.Running("tick"))

	require.Eventually(t, func() bool { return n.Load() >= 3 }, time.Second, time.Millisecond)

	tasks.Cancel("tick")
	assert.False(t, tasks.Running("tick"))
	time.Sleep(20 * time.Millisecond)
	stopped := n.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, stopped, n.Load())

	tasks.Cancel("unknown")
}

func TestEveryReplacesSameName(t *testing.T) {
	tasks := NewTasks(context.Background())
	defer tasks.Close()

	var first, second atomic.Int32
	tasks.Every("job", 5*time.Millisecond, func(context.Context) { first.Add(1) })
	tasks.Every("job", 5*time.Millisecond, func(context.Context) { second.Add(1) })

	require.Eventually(t, func() bool { return second.Load() >= 2 }, time.Second, time.Millisecond)
	before := first.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, before, first.Load())
	assert.True(t, tasks.Running("job"))
}

func TestCountdownTicksDown(t *testing.T) {
	tasks := NewTasks(context.Background())
	defer tasks.Close()

	var (
		mu    sync.Mutex
		ticks []time.Duration
	)
	done := make(chan struct{})
	tasks.Countdown("halftime", 50*time.Millisecond, 10*time.Millisecond,
		func(remaining time.Duration) {
			mu.Lock()
			ticks = append(ticks, remaining)
			mu.Unlock()
		},
		func() { close(done) })

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("countdown never finished")
	}

	mu.Lock()
	defer mu.Unlock()
	require.GreaterOrEqual(t, len(ticks), 2)
	assert.Equal(t, 50*time.Millisecond, ticks[0])
	assert.Equal(t, time.Duration(0), ticks[len(ticks)-1])
	for i := 1; i < len(ticks); i++ {
		assert.LessOrEqual(t, ticks[i], ticks[i-1])
	}
	require.Eventually(t, func() bool { return !tasks.Running("halftime") }, time.Second, time.Millisecond)
}

func TestCloseStopsEverything(t *testing.T) {
	tasks := NewTasks(context.Background())

	var n atomic.Int32
	tasks.Every("a", time.Millisecond, func(context.Context) { n.Add(1) })
	tasks.Countdown("b", time.Hour, time.Millisecond, nil, nil)

	tasks.Close()
	assert.False(t, tasks.Running("a"))
	assert.False(t, tasks.Running("b"))

	after := n.Load()
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, after, n.Load())

	assert.False(t, tasks.Every("late", time.Millisecond, func(context.Context) {}))
}
