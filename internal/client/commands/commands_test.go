package commands

import (
	"bytes"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	apihttp "scoreboard/internal/server/http"
	"scoreboard/internal/server/processor"
	"scoreboard/internal/server/service"
	"scoreboard/internal/server/storage"

	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (b *syncBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf.Reset()
}

type console struct {
	t        *testing.T
	out      *syncBuffer
	session  *Session
	registry *Registry
}

func newConsole(t *testing.T) *console {
	t.Helper()
	st, err := storage.NewStore(filepath.Join(t.TempDir(), "scoreboard.db"), true, nil)
	require.NoError(t, err)
	require.NoError(t, st.InitDB())

	svc, err := service.New(service.Options{
		Storage:     st,
		Secret:      []byte("0123456789abcdef0123456789abcdef"),
		Location:    time.UTC,
		WaitTimeout: 300 * time.Millisecond,
	})
	require.NoError(t, err)

	opts := apihttp.DefaultOptions()
	opts.AccessLog = false
	opts.RateLimit = -1
	srv := httptest.NewServer(adaptor.FiberApp(apihttp.NewFiberApp(processor.New(svc, 10), svc, opts)))
	t.Cleanup(func() {
		srv.Close()
		_ = svc.Shutdown(time.Second)
		_ = st.Close()
	})

	out := &syncBuffer{}
	session := NewSession(Config{
		APIURL:       srv.URL,
		Location:     time.UTC,
		SyncInterval: time.Hour,
		Debounce:     -1,
		MaxRetryWait: 50 * time.Millisecond,
	}, out)
	session.ReadPassword = func(string) (string, error) { return "whistle123", nil }
	t.Cleanup(func() { _ = session.Close() })

	return &console{t: t, out: out, session: session, registry: NewRegistry(session)}
}

// run executes a line and returns what it printed synchronously
func (c *console) run(line string) string {
	c.t.Helper()
	c.out.Reset()
	require.True(c.t, c.registry.Execute(line), line)
	return c.out.String()
}

func (c *console) eventually(want string) {
	c.t.Helper()
	require.Eventually(c.t, func() bool {
		return strings.Contains(c.out.String(), want)
	}, 5*time.Second, 20*time.Millisecond, "waiting for %q", want)
}

func TestRegistryBasics(t *testing.T) {
	c := newConsole(t)

	assert.Contains(t, c.run("nope"), "Unknown command: nope")
	help := c.run("help")
	assert.Contains(t, help, "Match Commands")
	assert.Contains(t, help, "Roster Commands")
	assert.Contains(t, c.run("help goal"), "Usage: goal [number|own]")
	assert.Contains(t, c.run("start 1"), "no match open")
	assert.Contains(t, c.run("start 3"), "half must be 1 or 2")
	assert.Contains(t, c.run("more"), "dashboard not open")
	assert.Contains(t, c.run(`new "unterminated`), "unterminated quote")
	assert.Contains(t, c.run("whoami"), "Not authenticated")
	assert.Contains(t, c.run("health"), "healthy")

	c.out.Reset()
	assert.False(t, c.registry.Execute("exit"))
	assert.Contains(t, c.out.String(), "Goodbye")
}

func TestAuthCommands(t *testing.T) {
	c := newConsole(t)

	out := c.run("register referee ref@example.com")
	assert.Contains(t, out, "Registered successfully")
	assert.Contains(t, c.run("whoami"), "ref@example.com")

	assert.Contains(t, c.run("logout"), "Logged out")
	assert.Contains(t, c.run("whoami"), "Not authenticated")

	assert.Contains(t, c.run("login referee wrong-password1"), "Error:")
	assert.Contains(t, c.run("login ref@example.com"), "Logged in successfully")
	assert.Equal(t, "referee", c.session.Client.Username())
}

func TestWritesNeedSignIn(t *testing.T) {
	c := newConsole(t)
	assert.Contains(t, c.run("new Alpha Beta"), "Error:")
	assert.Contains(t, c.run("team Alpha"), "not signed in")
}

func TestMatchControlFlow(t *testing.T) {
	c := newConsole(t)
	c.run("register referee ref@example.com")

	assert.Contains(t, c.run(`team "FC Alpha" --color "#112233"`), "Team FC Alpha created")
	assert.Contains(t, c.run(`default "fc alpha"`), "Tracking goals for FC Alpha")
	assert.Contains(t, c.run(`player "FC Alpha" 9 Ada Striker`), "Added #9 Ada Striker")
	assert.Contains(t, c.run("players"), "Ada Striker")
	assert.Contains(t, c.run(`coach "FC Alpha" Grace Hopper`), "FC Alpha coach: Grace Hopper")
	assert.Contains(t, c.run(`coach "FC Alpha"`), "FC Alpha: Grace Hopper")
	assert.Contains(t, c.run("champs Spring Cup"), "Championship saved: Spring Cup")

	assert.Contains(t, c.run(`new "FC Alpha" Beta --championship "Spring Cup"`), "Match created")
	assert.Contains(t, c.run(`new Gamma Delta --at "2001-01-01 10:00"`), "in the past")

	c.run("matches")
	c.eventually("FC Alpha 0 : 0 Beta")

	c.run("open 1")
	c.eventually("> ")

	assert.Contains(t, c.run("start 1"), "Half 1 started")
	assert.Contains(t, c.run("goal 9"), "score 1")
	c.eventually("FC Alpha 1 : 0 Beta")
	assert.Contains(t, c.run("goal 77"), "no active player with number 77")

	assert.Contains(t, c.run("goals"), "#9 Ada Striker")
	assert.Contains(t, c.run("score 2 +2"), "Side 2 score: 2")

	out := c.run("minus 1")
	assert.Contains(t, out, "Pick the goal to remove")
	assert.Contains(t, out, "#9 Ada Striker")
	assert.Contains(t, c.run("remove 2"), "pick a goal between 1 and 1")
	assert.Contains(t, c.run("remove 1"), "Goal removed, side 1 score: 0")
	assert.Contains(t, c.run("remove 1"), "nothing to remove")

	// the untracked side has no ledger entries to pick from
	assert.Contains(t, c.run("minus 2"), "Side 2 score: 1")

	assert.Contains(t, c.run("stop 1"), "Half 1 stopped")
	assert.Contains(t, c.run("date 2024-06-01"), "Match date: 01.06.2024")
	assert.Contains(t, c.run("end"), "Match ended 0 : 1")
	assert.Contains(t, c.run("score 1 +1"), "Error:")

	assert.Contains(t, c.run(`matches --championship "Spring Cup"`), "FC Alpha 0 : 1 Beta")

	assert.Contains(t, c.run("close"), "Released match")
	assert.Contains(t, c.run("delete 1"), "deleted")
	c.eventually("No matches")
}

func TestDashboardPaging(t *testing.T) {
	c := newConsole(t)
	c.session.cfg.PageSize = 2
	c.run("register referee ref@example.com")
	for _, name := range []string{"A", "B", "C"} {
		require.Contains(t, c.run("new "+name+" Z"), "Match created")
	}

	c.run("matches")
	c.eventually("2 of 3")
	c.run("more")
	c.eventually("3 of 3")

	c.run("open 1")
	c.eventually("> ")
	c.run("end")
	c.run("ended")
	c.eventually("2 of 2, ended hidden")

	c.run("unwatch")
	assert.Contains(t, c.run("more"), "dashboard not open")
}
