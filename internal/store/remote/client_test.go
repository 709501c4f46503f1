package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"scoreboard/internal/server/core"
	apihttp "scoreboard/internal/server/http"
	"scoreboard/internal/server/processor"
	"scoreboard/internal/server/service"
	"scoreboard/internal/store"

	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRemote(t *testing.T) (*store.Store, *Client) {
	t.Helper()
	svc, err := service.New(service.Options{
		Secret:      []byte("0123456789abcdef0123456789abcdef"),
		Location:    time.UTC,
		WaitTimeout: 300 * time.Millisecond,
	})
	require.NoError(t, err)

	opts := apihttp.DefaultOptions()
	opts.AccessLog = false
	opts.RateLimit = -1
	opts.AnonymousWrites = true
	app := apihttp.NewFiberApp(processor.New(svc, 10), svc, opts)

	srv := httptest.NewServer(adaptor.FiberApp(app))
	t.Cleanup(func() {
		srv.Close()
		_ = svc.Shutdown(time.Second)
	})

	client := New(Options{BaseURL: srv.URL, MaxRetryWait: 50 * time.Millisecond})
	st := store.New(client, nil)
	t.Cleanup(func() { _ = st.Close() })
	return st, client
}

type recorder struct {
	mu     sync.Mutex
	snaps  []store.Snapshot
	errs   []error
	signal chan struct{}
}

func newRecorder() *recorder {
	return &recorder{signal: make(chan struct{}, 16)}
}

func (r *recorder) onChange(s store.Snapshot) {
	r.mu.Lock()
	r.snaps = append(r.snaps, s)
	r.mu.Unlock()
	select {
	case r.signal <- struct{}{}:
	default:
	}
}

func (r *recorder) onError(err error) {
	r.mu.Lock()
	r.errs = append(r.errs, err)
	r.mu.Unlock()
}

func (r *recorder) last() store.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snaps[len(r.snaps)-1]
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.snaps)
}

func TestReadWriteThroughServer(t *testing.T) {
	st, _ := newRemote(t)
	ctx := context.Background()

	require.NoError(t, st.Set(ctx, "teams/t1", map[string]any{"name": "Alpha", "color": "#112233"}))
	require.NoError(t, st.Update(ctx, "teams/t1", map[string]any{"logo": "a.png"}))

	snap, err := st.Get(ctx, "teams/t1")
	require.NoError(t, err)
	assert.Equal(t, store.Path("teams/t1"), snap.Path)
	assert.JSONEq(t, `{"name":"Alpha","color":"#112233","logo":"a.png"}`, string(snap.Value))

	key, err := st.Push(ctx, "teams", map[string]any{"name": "Beta"})
	require.NoError(t, err)

	found, err := st.QueryEqual(ctx, "teams", "name", "Beta")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, key, found[0].Key)

	all, err := st.Get(ctx, "teams")
	require.NoError(t, err)
	assert.Len(t, all.Children, 2)

	require.NoError(t, st.Remove(ctx, "teams"))
	all, err = st.Get(ctx, "teams")
	require.NoError(t, err)
	assert.False(t, all.Exists())
}

func TestServerErrorsMapToSentinels(t *testing.T) {
	st, _ := newRemote(t)
	ctx := context.Background()

	require.NoError(t, st.Set(ctx, "notes/n1", 1))
	snap, err := st.Get(ctx, "notes/n1")
	require.NoError(t, err)

	m, err := store.SetOf("notes/n1", 2)
	require.NoError(t, err)
	err = st.Commit(ctx, m.Versioned(snap.Version+5))
	assert.ErrorIs(t, err, store.ErrConflict)

	out, err := st.Transform(ctx, "notes/n1", func(cur json.RawMessage) (any, error) {
		var n int
		require.NoError(t, json.Unmarshal(cur, &n))
		return n + 1, nil
	})
	require.NoError(t, err)
	assert.JSONEq(t, "2", string(out))
}

func TestSubscribeFollowsChanges(t *testing.T) {
	st, _ := newRemote(t)
	ctx := context.Background()
	rec := newRecorder()

	h, err := st.Subscribe("notes/n1", rec.onChange, rec.onError)
	require.NoError(t, err)
	defer st.Unsubscribe(h)

	<-rec.signal
	assert.False(t, rec.last().Exists(), "initial snapshot of a missing node")

	require.NoError(t, st.Set(ctx, "notes/n1", map[string]int{"a": 1}))
	require.Eventually(t, func() bool {
		return rec.count() >= 2 && rec.last().Exists()
	}, 2*time.Second, 10*time.Millisecond)
	assert.JSONEq(t, `{"a":1}`, string(rec.last().Value))

	// a server-side wait timeout returns the same version and is not delivered
	time.Sleep(400 * time.Millisecond)
	before := rec.count()
	time.Sleep(400 * time.Millisecond)
	assert.Equal(t, before, rec.count())
}

func TestSubscribeRetriesWithBackoff(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		switch {
		case n <= 2:
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(core.ErrorResponse{Error: "storage down", Code: core.ErrStoreUnavailable})
		case r.URL.Query().Get("wait") == "true":
			time.Sleep(20 * time.Millisecond)
			_ = json.NewEncoder(w).Encode(store.Snapshot{Version: 7, Value: json.RawMessage(`1`)})
		default:
			_ = json.NewEncoder(w).Encode(store.Snapshot{Version: 7, Value: json.RawMessage(`1`)})
		}
	}))
	defer srv.Close()

	client := New(Options{BaseURL: srv.URL, MaxRetryWait: 20 * time.Millisecond})
	defer client.Close()

	rec := newRecorder()
	_, err := client.Subscribe("notes/n1", rec.onChange, rec.onError)
	require.NoError(t, err)

	select {
	case <-rec.signal:
	case <-time.After(2 * time.Second):
		t.Fatal("no snapshot after retries")
	}
	assert.Equal(t, uint64(7), rec.last().Version)

	rec.mu.Lock()
	errs := append([]error(nil), rec.errs...)
	rec.mu.Unlock()
	require.Len(t, errs, 2)
	assert.ErrorIs(t, errs[0], store.ErrUnavailable)

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, rec.count(), "unchanged versions are not redelivered")
}

func TestClosedClientRejectsCalls(t *testing.T) {
	client := New(Options{BaseURL: "http://127.0.0.1:1"})
	require.NoError(t, client.Close())

	_, err := client.Get(context.Background(), "notes/n1")
	assert.ErrorIs(t, err, store.ErrClosed)
	_, err = client.Subscribe("notes/n1", func(store.Snapshot) {}, nil)
	assert.ErrorIs(t, err, store.ErrClosed)
}
