// Package remote is a store backend speaking the server's HTTP store API.
// Subscriptions follow a path by long-polling it.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"scoreboard/internal/metrics"
	"scoreboard/internal/server/core"
	"scoreboard/internal/store"

	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/go-hclog"
)

const (
	DefaultRequestTimeout = 10 * time.Second
	DefaultPollTimeout    = 60 * time.Second
	DefaultMaxRetryWait   = 15 * time.Second

	apiPrefix = "/api/v1"
)

// Options configures a Client. Token is called before each request and may
// return "" for anonymous access.
type Options struct {
	BaseURL        string
	Token          func() string
	HTTPClient     *http.Client
	RequestTimeout time.Duration
	PollTimeout    time.Duration
	MaxRetryWait   time.Duration
	Logger         hclog.Logger
	Metrics        *metrics.Metrics
}

// Client implements store.Backend over HTTP
type Client struct {
	base    string
	token   func() string
	http    *http.Client
	opts    Options
	log     hclog.Logger
	metrics *metrics.Metrics

	ctx    context.Context
	cancel context.CancelFunc
	closed atomic.Bool

	mu         sync.Mutex
	nextHandle store.Handle
	subs       map[store.Handle]*subscription
	wg         sync.WaitGroup
}

type subscription struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func New(opts Options) *Client {
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	if opts.Token == nil {
		opts.Token = func() string { return "" }
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = DefaultPollTimeout
	}
	if opts.MaxRetryWait <= 0 {
		opts.MaxRetryWait = DefaultMaxRetryWait
	}
	log := opts.Logger
	if log == nil {
		log = hclog.NewNullLogger()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		base:    strings.TrimRight(opts.BaseURL, "/"),
		token:   opts.Token,
		http:    opts.HTTPClient,
		opts:    opts,
		log:     log,
		metrics: opts.Metrics,
		ctx:     ctx,
		cancel:  cancel,
		subs:    make(map[store.Handle]*subscription),
	}
}

// do sends one request and decodes a JSON reply into result when non-nil
func (c *Client) do(ctx context.Context, timeout time.Duration, method, path string, body any, result any) error {
	if c.closed.Load() {
		return store.ErrClosed
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%w: %v", store.ErrInvalidValue, err)
		}
		reader = bytes.NewReader(data)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil && errors.Is(ctx.Err(), context.Canceled) {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	if resp.StatusCode >= 400 {
		return decodeError(resp.StatusCode, data)
	}
	if result != nil && len(data) > 0 {
		if err := json.Unmarshal(data, result); err != nil {
			return fmt.Errorf("%w: bad response from %s: %v", store.ErrUnavailable, path, err)
		}
	}
	return nil
}

// decodeError maps an error body back onto the sentinel its code stands for
func decodeError(status int, data []byte) error {
	var resp core.ErrorResponse
	if err := json.Unmarshal(data, &resp); err != nil || resp.Code == "" {
		if status >= 500 {
			return fmt.Errorf("%w: status %d", store.ErrUnavailable, status)
		}
		return fmt.Errorf("request failed with status %d", status)
	}

	msg := resp.Error
	if resp.Details != "" {
		msg += ": " + resp.Details
	}
	if sentinel := core.Sentinel(resp.Code); sentinel != nil {
		return fmt.Errorf("%w: %s", sentinel, msg)
	}
	if status >= 500 {
		return fmt.Errorf("%w: %s", store.ErrUnavailable, msg)
	}
	return fmt.Errorf("%s (%s)", msg, resp.Code)
}

func storeURL(path store.Path) string {
	return apiPrefix + "/store/" + string(path)
}

func (c *Client) Get(ctx context.Context, path store.Path) (store.Snapshot, error) {
	var snap store.Snapshot
	if err := c.do(ctx, c.opts.RequestTimeout, http.MethodGet, storeURL(path), nil, &snap); err != nil {
		return store.Snapshot{}, err
	}
	snap.Path = path
	return snap, nil
}

// wait long-polls path until its version moves past version or the server
// times the wait out, in which case the unchanged snapshot comes back
func (c *Client) wait(ctx context.Context, path store.Path, version uint64) (store.Snapshot, error) {
	q := url.Values{}
	q.Set("wait", "true")
	q.Set("version", strconv.FormatUint(version, 10))

	var snap store.Snapshot
	if err := c.do(ctx, c.opts.PollTimeout, http.MethodGet, storeURL(path)+"?"+q.Encode(), nil, &snap); err != nil {
		return store.Snapshot{}, err
	}
	snap.Path = path
	return snap, nil
}

func (c *Client) Query(ctx context.Context, collection, field string, value json.RawMessage) ([]store.Child, error) {
	q := url.Values{}
	q.Set("field", field)
	q.Set("equal", string(value))

	var resp core.QueryResponse
	path := storeURL(store.Path(collection)) + "?" + q.Encode()
	if err := c.do(ctx, c.opts.RequestTimeout, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Children, nil
}

func (c *Client) Commit(ctx context.Context, muts []store.Mutation) error {
	err := c.do(ctx, c.opts.RequestTimeout, http.MethodPost, apiPrefix+"/commit", core.CommitRequest{Mutations: muts}, nil)
	if err != nil {
		c.metrics.CommitObserved("error")
		return err
	}
	c.metrics.CommitObserved("ok")
	return nil
}

// Subscribe reads path once and then long-polls it. Failed polls are
// reported to onError and retried with exponential backoff; errors the
// server will keep returning end the subscription.
func (c *Client) Subscribe(path store.Path, onChange func(store.Snapshot), onError func(error)) (store.Handle, error) {
	if c.closed.Load() {
		return 0, store.ErrClosed
	}
	if onChange == nil {
		return 0, fmt.Errorf("%w: nil change callback", store.ErrInvalidValue)
	}
	if onError == nil {
		onError = func(error) {}
	}

	ctx, cancel := context.WithCancel(c.ctx)
	sub := &subscription{cancel: cancel, done: make(chan struct{})}

	c.mu.Lock()
	c.nextHandle++
	h := c.nextHandle
	c.subs[h] = sub
	c.wg.Add(1)
	c.mu.Unlock()
	c.metrics.SubscriptionAdded()

	go func() {
		defer c.wg.Done()
		defer close(sub.done)
		defer c.metrics.SubscriptionRemoved()
		c.follow(ctx, path, onChange, onError)
	}()
	return h, nil
}

func (c *Client) follow(ctx context.Context, path store.Path, onChange func(store.Snapshot), onError func(error)) {
	b := backoff.NewExponentialBackOff()
	b.MaxInterval = c.opts.MaxRetryWait
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(b, ctx)

	var (
		version uint64
		first   = true
	)
	for ctx.Err() == nil {
		op := func() (store.Snapshot, error) {
			var (
				snap store.Snapshot
				err  error
			)
			if first {
				snap, err = c.Get(ctx, path)
			} else {
				snap, err = c.wait(ctx, path, version)
			}
			if err != nil && permanent(err) {
				return snap, backoff.Permanent(err)
			}
			return snap, err
		}
		notify := func(err error, next time.Duration) {
			c.log.Debug("poll failed, retrying", "path", path, "in", next, "error", err)
			onError(err)
		}

		snap, err := backoff.RetryNotifyWithData(op, policy, notify)
		if err != nil {
			if ctx.Err() == nil {
				c.log.Warn("subscription stopped", "path", path, "error", err)
				onError(err)
			}
			return
		}
		b.Reset()

		if first || snap.Version != version {
			onChange(snap)
		}
		first = false
		version = snap.Version
	}
}

// permanent reports errors a retry cannot fix
func permanent(err error) bool {
	return errors.Is(err, store.ErrInvalidPath) ||
		errors.Is(err, store.ErrInvalidValue) ||
		errors.Is(err, store.ErrClosed)
}

func (c *Client) Unsubscribe(h store.Handle) {
	c.mu.Lock()
	sub, ok := c.subs[h]
	delete(c.subs, h)
	c.mu.Unlock()
	if !ok {
		return
	}
	sub.cancel()
	<-sub.done
}

// Close stops every subscription; later calls fail with store.ErrClosed
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.cancel()
	c.mu.Lock()
	c.subs = make(map[store.Handle]*subscription)
	c.mu.Unlock()
	c.wg.Wait()
	return nil
}
