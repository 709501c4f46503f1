package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"scoreboard/internal/lifecycle"
	"scoreboard/internal/metrics"
	"scoreboard/internal/model"
	"scoreboard/internal/server/core"
	"scoreboard/internal/server/processor"
	"scoreboard/internal/server/service"
	"scoreboard/internal/server/storage"
	"scoreboard/internal/store"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	t   *testing.T
	app *fiber.App
	svc *service.Service
}

func newTestServer(t *testing.T, persistent bool, tune func(*Options)) *testServer {
	t.Helper()
	opts := service.Options{
		Secret:      []byte("0123456789abcdef0123456789abcdef"),
		Location:    time.UTC,
		WaitTimeout: 2 * time.Second,
		Metrics:     metrics.New(),
	}
	if persistent {
		st, err := storage.NewStore(filepath.Join(t.TempDir(), "scoreboard.db"), true, nil)
		require.NoError(t, err)
		require.NoError(t, st.InitDB())
		t.Cleanup(func() { _ = st.Close() })
		opts.Storage = st
	}
	svc, err := service.New(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Shutdown(time.Second) })

	appOpts := DefaultOptions()
	appOpts.AccessLog = false
	appOpts.RateLimit = -1
	if tune != nil {
		tune(&appOpts)
	}
	return &testServer{t: t, app: NewFiberApp(processor.New(svc, 10), svc, appOpts), svc: svc}
}

// do sends a request; body may be a string of raw JSON or a value to encode
func (s *testServer) do(method, path string, body any, token string) (int, []byte) {
	s.t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(s.t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := s.app.Test(req, -1)
	require.NoError(s.t, err)
	data, err := io.ReadAll(resp.Body)
	require.NoError(s.t, err)
	return resp.StatusCode, data
}

func (s *testServer) register(username string) string {
	s.t.Helper()
	status, data := s.do("POST", "/api/v1/auth/register", RegisterRequest{
		Username: username,
		Email:    username + "@example.com",
		Password: "whistle123",
	}, "")
	require.Equal(s.t, fiber.StatusCreated, status, string(data))
	var auth AuthResponse
	require.NoError(s.t, json.Unmarshal(data, &auth))
	return auth.Token
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(data, &v), string(data))
	return v
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t, false, nil)

	status, data := s.do("GET", "/health", nil, "")
	assert.Equal(t, fiber.StatusOK, status)
	health := decode[map[string]any](t, data)
	assert.Equal(t, "healthy", health["status"])
	assert.Equal(t, "disabled", health["storage"])

	status, data = s.do("GET", "/metrics", nil, "")
	assert.Equal(t, fiber.StatusOK, status)
	assert.Contains(t, string(data), "scoreboard_http_long_poll_waiters")
}

func TestAuthFlow(t *testing.T) {
	s := newTestServer(t, true, nil)

	token := s.register("referee")

	status, data := s.do("GET", "/api/v1/auth/me", nil, token)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "referee@example.com", decode[UserResponse](t, data).Email)

	status, data = s.do("POST", "/api/v1/auth/register", RegisterRequest{
		Username: "referee", Email: "referee@example.com", Password: "whistle123",
	}, "")
	assert.Equal(t, fiber.StatusConflict, status)
	assert.Equal(t, core.ErrUserExists, decode[core.ErrorResponse](t, data).Code)

	status, _ = s.do("POST", "/api/v1/auth/register", RegisterRequest{
		Username: "linesman", Email: "l@example.com", Password: "password",
	}, "")
	assert.Equal(t, fiber.StatusBadRequest, status, "password without a digit")

	status, _ = s.do("POST", "/api/v1/auth/login", LoginRequest{Identifier: "referee", Password: "nope12345"}, "")
	assert.Equal(t, fiber.StatusUnauthorized, status)

	status, data = s.do("POST", "/api/v1/auth/login", LoginRequest{Identifier: "REFEREE@example.com", Password: "whistle123"}, "")
	require.Equal(t, fiber.StatusOK, status)
	second := decode[AuthResponse](t, data).Token

	status, _ = s.do("POST", "/api/v1/auth/logout", nil, token)
	assert.Equal(t, fiber.StatusNoContent, status)
	status, _ = s.do("GET", "/api/v1/auth/me", nil, token)
	assert.Equal(t, fiber.StatusUnauthorized, status, "logged out token is revoked")

	status, _ = s.do("GET", "/api/v1/auth/me", nil, second)
	assert.Equal(t, fiber.StatusOK, status)
}

func TestAccountsNeedStorage(t *testing.T) {
	s := newTestServer(t, false, nil)
	status, data := s.do("POST", "/api/v1/auth/login", LoginRequest{Identifier: "a", Password: "b"}, "")
	assert.Equal(t, fiber.StatusServiceUnavailable, status)
	assert.Equal(t, core.ErrStoreUnavailable, decode[core.ErrorResponse](t, data).Code)
}

func TestWritesRequireAuth(t *testing.T) {
	s := newTestServer(t, true, nil)

	status, data := s.do("POST", "/api/v1/matches", lifecycle.CreateRequest{Team1Name: "A", Team2Name: "B"}, "")
	assert.Equal(t, fiber.StatusUnauthorized, status)
	assert.Equal(t, core.ErrUnauthorized, decode[core.ErrorResponse](t, data).Code)

	status, _ = s.do("POST", "/api/v1/matches", lifecycle.CreateRequest{Team1Name: "A", Team2Name: "B"}, "not-a-token")
	assert.Equal(t, fiber.StatusUnauthorized, status)

	status, _ = s.do("PUT", "/api/v1/store/notes/n1", `{"a":1}`, "")
	assert.Equal(t, fiber.StatusUnauthorized, status)

	status, _ = s.do("GET", "/api/v1/matches", nil, "")
	assert.Equal(t, fiber.StatusOK, status, "reads are public")
}

func TestAnonymousWritesInDevelopment(t *testing.T) {
	s := newTestServer(t, false, func(o *Options) { o.AnonymousWrites = true })

	status, data := s.do("POST", "/api/v1/matches", lifecycle.CreateRequest{Team1Name: "A", Team2Name: "B"}, "")
	require.Equal(t, fiber.StatusCreated, status, string(data))
	view := decode[lifecycle.View](t, data)
	assert.Equal(t, "dev", view.Match.CreatedBy)
}

func TestMatchRoutes(t *testing.T) {
	s := newTestServer(t, true, nil)
	token := s.register("referee")

	status, data := s.do("POST", "/api/v1/matches", lifecycle.CreateRequest{Team1Name: "Alpha", Team2Name: "Beta"}, token)
	require.Equal(t, fiber.StatusCreated, status, string(data))
	view := decode[lifecycle.View](t, data)
	assert.Equal(t, "referee@example.com", view.Match.CreatedByEmail)
	base := "/api/v1/matches/" + view.ID

	status, data = s.do("POST", base+"/halves/1/start", nil, token)
	require.Equal(t, fiber.StatusOK, status, string(data))
	assert.Equal(t, model.StatusPlaying, decode[lifecycle.View](t, data).Match.Status)

	status, _ = s.do("POST", base+"/halves/3/start", nil, token)
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, data = s.do("POST", base+"/halves/2/start", nil, token)
	assert.Equal(t, fiber.StatusConflict, status)
	assert.Equal(t, core.ErrInvalidTransition, decode[core.ErrorResponse](t, data).Code)

	status, data = s.do("POST", base+"/score", core.ScoreRequest{Side: 1, Delta: 1}, token)
	require.Equal(t, fiber.StatusOK, status, string(data))
	assert.Equal(t, 1, decode[core.ScoreResponse](t, data).Score)

	status, data = s.do("POST", base+"/goals", `{}`, token)
	require.Equal(t, fiber.StatusCreated, status, string(data))
	goal := decode[core.GoalResponse](t, data)
	assert.Equal(t, 2, goal.Score, "unattributed goals go to side 1 without a tracked team")

	status, data = s.do("GET", "/api/v1/widget/"+view.ID, nil, "")
	require.Equal(t, fiber.StatusOK, status)
	widget := decode[processor.WidgetResponse](t, data)
	assert.Equal(t, 2, widget.Match.Score1)
	assert.Len(t, widget.Goals, 1)

	status, _ = s.do("DELETE", base+"/goals/"+goal.Goal.ID, nil, token)
	assert.Equal(t, fiber.StatusBadRequest, status, "side is required")
	status, data = s.do("DELETE", base+"/goals/"+goal.Goal.ID+"?side=1", nil, token)
	require.Equal(t, fiber.StatusOK, status, string(data))
	assert.Equal(t, 1, decode[core.ScoreResponse](t, data).Score)

	status, _ = s.do("PUT", base+"/date", core.DateRequest{Date: "2024-06-02"}, token)
	assert.Equal(t, fiber.StatusOK, status)

	status, _ = s.do("POST", base+"/end", nil, token)
	require.Equal(t, fiber.StatusOK, status)
	status, data = s.do("POST", base+"/score", core.ScoreRequest{Side: 2, Delta: 1}, token)
	assert.Equal(t, fiber.StatusConflict, status)
	assert.Equal(t, core.ErrMatchEnded, decode[core.ErrorResponse](t, data).Code)

	status, data = s.do("GET", "/api/v1/matches?limit=5", nil, "")
	require.Equal(t, fiber.StatusOK, status)
	assert.Contains(t, string(data), view.ID)

	status, _ = s.do("DELETE", base, nil, token)
	assert.Equal(t, fiber.StatusNoContent, status)
	status, data = s.do("GET", base, nil, "")
	assert.Equal(t, fiber.StatusNotFound, status)
	assert.Equal(t, core.ErrNotFound, decode[core.ErrorResponse](t, data).Code)

	status, _ = s.do("GET", "/api/v1/matches/bad.id", nil, "")
	assert.Equal(t, fiber.StatusBadRequest, status)
}

func TestRequestValidation(t *testing.T) {
	s := newTestServer(t, true, nil)
	token := s.register("referee")

	status, data := s.do("POST", "/api/v1/matches", `{"team1Name":"Alpha"}`, token)
	assert.Equal(t, fiber.StatusBadRequest, status)
	resp := decode[core.ErrorResponse](t, data)
	assert.Equal(t, core.ErrValidation, resp.Code)
	assert.Contains(t, resp.Details, "Team2Name is required")

	status, _ = s.do("POST", "/api/v1/matches", `{"team1Name":`, token)
	assert.Equal(t, fiber.StatusBadRequest, status)

	req := httptest.NewRequest("POST", "/api/v1/matches", strings.NewReader("team1Name=A"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+token)
	r, err := s.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnsupportedMediaType, r.StatusCode)

	status, data = s.do("POST", "/api/v1/matches/abc/score", core.ScoreRequest{Side: 1, Delta: 0}, token)
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Contains(t, decode[core.ErrorResponse](t, data).Details, "Delta is required")

	status, _ = s.do("POST", "/api/v1/teams", `{"name":"Alpha","color":"blue"}`, token)
	assert.Equal(t, fiber.StatusBadRequest, status)
}

func TestRosterRoutes(t *testing.T) {
	s := newTestServer(t, true, nil)
	token := s.register("coach")

	status, data := s.do("POST", "/api/v1/teams", `{"name":"Alpha","color":"#112233"}`, token)
	require.Equal(t, fiber.StatusCreated, status, string(data))
	team := decode[core.TeamResponse](t, data).Team

	status, _ = s.do("POST", "/api/v1/teams", `{"name":"Alpha","color":"#445566"}`, token)
	assert.Equal(t, fiber.StatusOK, status, "same name updates")

	status, data = s.do("POST", "/api/v1/teams/"+team.ID+"/players", `{"number":7,"firstName":"Ana","lastName":"Silva"}`, token)
	require.Equal(t, fiber.StatusCreated, status, string(data))
	player := decode[core.PlayerView](t, data)

	status, _ = s.do("POST", "/api/v1/teams/"+team.ID+"/players", `{"number":7,"firstName":"Rui","lastName":"Costa"}`, token)
	assert.Equal(t, fiber.StatusBadRequest, status, "number taken")

	status, _ = s.do("PUT", "/api/v1/players/"+player.ID, `{"number":8,"firstName":"Ana","lastName":"Silva","isGoalkeeper":true}`, token)
	assert.Equal(t, fiber.StatusOK, status)
	status, _ = s.do("POST", "/api/v1/players/"+player.ID+"/absent", nil, token)
	assert.Equal(t, fiber.StatusOK, status)

	status, data = s.do("GET", "/api/v1/teams/"+team.ID+"/players?active=true", nil, "")
	require.Equal(t, fiber.StatusOK, status)
	assert.Empty(t, decode[[]core.PlayerView](t, data))

	status, _ = s.do("PUT", "/api/v1/teams/"+team.ID+"/coach", `{"name":"Rui"}`, token)
	assert.Equal(t, fiber.StatusOK, status)
	status, data = s.do("GET", "/api/v1/teams/"+team.ID+"/coach", nil, "")
	require.Equal(t, fiber.StatusOK, status)
	assert.Contains(t, string(data), `"name":"Rui"`)

	status, _ = s.do("PUT", "/api/v1/settings/default-team", core.DefaultTeamRequest{TeamID: team.ID}, token)
	assert.Equal(t, fiber.StatusOK, status)
	status, data = s.do("GET", "/api/v1/settings/default-team", nil, "")
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, team.ID, decode[core.DefaultTeamResponse](t, data).TeamID)

	status, data = s.do("POST", "/api/v1/championships", core.ChampionshipRequest{Title: "Spring Cup"}, token)
	require.Equal(t, fiber.StatusOK, status, string(data))
	assert.Equal(t, "spring_cup", decode[core.ChampionshipView](t, data).Key)
	status, _ = s.do("DELETE", "/api/v1/championships/spring_cup", nil, token)
	assert.Equal(t, fiber.StatusNoContent, status)

	status, _ = s.do("DELETE", "/api/v1/teams/"+team.ID, nil, token)
	assert.Equal(t, fiber.StatusNoContent, status)
	status, _ = s.do("GET", "/api/v1/teams/"+team.ID, nil, "")
	assert.Equal(t, fiber.StatusNotFound, status)
}

func TestStoreRoutes(t *testing.T) {
	s := newTestServer(t, true, nil)
	token := s.register("operator")

	status, data := s.do("PUT", "/api/v1/store/notes/n1", `{"a":1,"tag":"x"}`, token)
	require.Equal(t, fiber.StatusNoContent, status, string(data))

	status, data = s.do("PATCH", "/api/v1/store/notes/n1", `{"b":2}`, token)
	require.Equal(t, fiber.StatusNoContent, status, string(data))

	status, data = s.do("GET", "/api/v1/store/notes/n1", nil, "")
	require.Equal(t, fiber.StatusOK, status)
	snap := decode[store.Snapshot](t, data)
	assert.JSONEq(t, `{"a":1,"tag":"x","b":2}`, string(snap.Value))

	status, data = s.do("PATCH", "/api/v1/store/notes/n1", `[1,2]`, token)
	assert.Equal(t, fiber.StatusBadRequest, status, string(data))

	status, data = s.do("POST", "/api/v1/store/notes", `{"a":2,"tag":"y"}`, token)
	require.Equal(t, fiber.StatusCreated, status, string(data))
	pushed := decode[core.PushResponse](t, data)
	assert.Equal(t, store.Join("notes", pushed.Key), pushed.Path)

	status, data = s.do("GET", "/api/v1/store/notes?field=tag&equal=%22y%22", nil, "")
	require.Equal(t, fiber.StatusOK, status, string(data))
	query := decode[core.QueryResponse](t, data)
	require.Len(t, query.Children, 1)
	assert.Equal(t, pushed.Key, query.Children[0].Key)

	status, _ = s.do("GET", "/api/v1/store/notes?field=tag&equal=y", nil, "")
	assert.Equal(t, fiber.StatusBadRequest, status, "equal must be JSON")

	stale := uint64(1)
	status, data = s.do("POST", "/api/v1/commit", core.CommitRequest{Mutations: []store.Mutation{
		{Op: store.OpDelete, Path: "notes/n1", IfVersion: &stale},
	}}, token)
	assert.Equal(t, fiber.StatusConflict, status)
	assert.Equal(t, core.ErrConflict, decode[core.ErrorResponse](t, data).Code)

	status, data = s.do("POST", "/api/v1/commit", core.CommitRequest{Mutations: []store.Mutation{
		{Op: store.OpDelete, Path: "notes/n1"},
		{Op: store.OpSet, Path: "notes/n2", Value: json.RawMessage(`{"a":3}`)},
	}}, token)
	require.Equal(t, fiber.StatusNoContent, status, string(data))

	status, data = s.do("POST", "/api/v1/commit", `{"mutations":[{"op":"rename","path":"notes/n2"}]}`, token)
	assert.Equal(t, fiber.StatusBadRequest, status, string(data))

	status, data = s.do("GET", "/api/v1/store/notes", nil, "")
	require.Equal(t, fiber.StatusOK, status)
	assert.Len(t, decode[store.Snapshot](t, data).Children, 2)

	status, _ = s.do("DELETE", "/api/v1/store/notes", nil, token)
	assert.Equal(t, fiber.StatusNoContent, status)
	status, data = s.do("GET", "/api/v1/store/notes", nil, "")
	require.Equal(t, fiber.StatusOK, status)
	assert.Empty(t, decode[store.Snapshot](t, data).Children)
}

func TestLongPollWakesOnChange(t *testing.T) {
	s := newTestServer(t, true, nil)
	token := s.register("operator")

	status, _ := s.do("PUT", "/api/v1/store/notes/n1", `{"a":1}`, token)
	require.Equal(t, fiber.StatusNoContent, status)
	_, data := s.do("GET", "/api/v1/store/notes/n1", nil, "")
	version := decode[store.Snapshot](t, data).Version

	status, data = s.do("GET", fmt.Sprintf("/api/v1/store/notes/n1?wait=true&version=%d", version-1), nil, "")
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, version, decode[store.Snapshot](t, data).Version, "stale version returns at once")

	done := make(chan store.Snapshot, 1)
	go func() {
		req := httptest.NewRequest("GET", fmt.Sprintf("/api/v1/store/notes?wait=true&version=%d", version), nil)
		resp, err := s.app.Test(req, -1)
		if err != nil {
			close(done)
			return
		}
		var snap store.Snapshot
		_ = json.NewDecoder(resp.Body).Decode(&snap)
		done <- snap
	}()

	require.Eventually(t, func() bool { return s.svc.Waiters("notes") == 1 }, time.Second, 5*time.Millisecond)
	status, _ = s.do("PATCH", "/api/v1/store/notes/n1", `{"a":2}`, token)
	require.Equal(t, fiber.StatusNoContent, status)

	select {
	case snap := <-done:
		assert.Greater(t, snap.Version, version)
		require.Len(t, snap.Children, 1)
		assert.JSONEq(t, `{"a":2}`, string(snap.Children[0].Value))
	case <-time.After(time.Second):
		t.Fatal("long poll did not wake")
	}
}

func TestCancelledLongPollIsUnavailable(t *testing.T) {
	s := newTestServer(t, true, nil)
	token := s.register("operator")
	status, _ := s.do("PUT", "/api/v1/store/notes/n1", `{"a":1}`, token)
	require.Equal(t, fiber.StatusNoContent, status)
	_, data := s.do("GET", "/api/v1/store/notes/n1", nil, "")
	version := decode[store.Snapshot](t, data).Version

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := NewHTTPHandler(processor.New(s.svc, 10), s.svc)
	app := fiber.New()
	app.Get("/store/:collection/:key", func(c *fiber.Ctx) error {
		c.SetUserContext(ctx)
		return h.GetNode(c)
	})

	go func() {
		for s.svc.Waiters("notes/n1") == 0 {
			time.Sleep(5 * time.Millisecond)
		}
		cancel()
	}()

	req := httptest.NewRequest("GET", fmt.Sprintf("/store/notes/n1?wait=true&version=%d", version), nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, core.ErrStoreUnavailable, decode[core.ErrorResponse](t, body).Code)
}

func TestRateLimit(t *testing.T) {
	s := newTestServer(t, false, func(o *Options) { o.RateLimit = 2 })

	for i := 0; i < 2; i++ {
		status, _ := s.do("GET", "/api/v1/teams", nil, "")
		require.Equal(t, fiber.StatusOK, status)
	}
	status, data := s.do("GET", "/api/v1/teams", nil, "")
	assert.Equal(t, fiber.StatusTooManyRequests, status)
	assert.Equal(t, core.ErrRateLimitExceeded, decode[core.ErrorResponse](t, data).Code)
}
