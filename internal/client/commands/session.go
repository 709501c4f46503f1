package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"
	"time"

	"scoreboard/internal/client/api"
	"scoreboard/internal/client/display"
	"scoreboard/internal/control"
	"scoreboard/internal/dashboard"
	"scoreboard/internal/ledger"
	"scoreboard/internal/lifecycle"
	"scoreboard/internal/roster"
	"scoreboard/internal/store"
	"scoreboard/internal/store/remote"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/term"
)

const commandTimeout = 15 * time.Second

// Config holds the console's connection and timing settings
type Config struct {
	APIURL       string
	Location     *time.Location
	Now          func() time.Time
	PageSize     int
	SyncInterval time.Duration
	Halftime     time.Duration
	HalftimeTick time.Duration
	Debounce     time.Duration
	MaxRetryWait time.Duration
	Logger       hclog.Logger
}

// Session is the console state shared by all commands: the API client, the
// store over the server, and whatever dashboard or match is open.
type Session struct {
	Client *api.Client
	Store  *store.Store
	Engine *lifecycle.Engine
	Ledger *ledger.Ledger
	Roster *roster.Roster

	// ReadPassword prompts for a password without echo
	ReadPassword func(prompt string) (string, error)

	cfg Config
	log hclog.Logger
	out *lockedWriter

	mu        sync.Mutex
	verbose   bool
	dashboard *dashboard.View
	page      dashboard.Page
	control   *control.Session
	plan      *ledger.RemovalPlan
}

// lockedWriter serializes command output with subscription callbacks
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

func NewSession(cfg Config, out io.Writer) *Session {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = dashboard.DefaultPageSize
	}
	if cfg.HalftimeTick <= 0 {
		cfg.HalftimeTick = 30 * time.Second
	}
	log := cfg.Logger
	if log == nil {
		log = hclog.NewNullLogger()
	}

	s := &Session{
		Client: api.New(cfg.APIURL),
		cfg:    cfg,
		log:    log,
		out:    &lockedWriter{w: out},
	}
	s.Client.Log = s.out
	s.ReadPassword = func(prompt string) (string, error) {
		fmt.Fprint(s.out, prompt)
		pw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(s.out)
		return string(pw), err
	}
	s.connect()
	return s
}

// connect builds the store stack against the client's current base URL
func (s *Session) connect() {
	backend := remote.New(remote.Options{
		BaseURL:      s.Client.BaseURL(),
		Token:        s.Client.Token,
		MaxRetryWait: s.cfg.MaxRetryWait,
		Logger:       s.log.Named("remote"),
	})
	s.Store = store.New(backend, s.log.Named("store"))
	s.Engine = lifecycle.New(s.Store, lifecycle.Options{
		Now:      s.cfg.Now,
		Location: s.cfg.Location,
		Logger:   s.log.Named("lifecycle"),
	})
	s.Ledger = ledger.New(s.Store, s.Engine, ledger.Options{Logger: s.log.Named("ledger")})
	s.Roster = roster.New(s.Store, roster.Options{Now: s.cfg.Now, Logger: s.log.Named("roster")})
}

// Reconnect points the session at another server, closing open views
func (s *Session) Reconnect(url string) {
	s.closeViews()
	_ = s.Store.Close()
	s.Client.SetBaseURL(url)
	s.connect()
}

func (s *Session) Out() io.Writer { return s.out }

func (s *Session) SetVerbose(v bool) {
	s.mu.Lock()
	s.verbose = v
	s.mu.Unlock()
	s.Client.Verbose = v
}

func (s *Session) IsVerbose() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.verbose
}

// OpenMatchID is the id of the match under control, empty when none
func (s *Session) OpenMatchID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.control == nil {
		return ""
	}
	return s.control.ID()
}

func (s *Session) context() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), commandTimeout)
}

func (s *Session) printf(format string, args ...any) {
	fmt.Fprintf(s.out, format, args...)
}

// resolveMatch maps a dashboard row number to its match id; anything else is
// taken as an id
func (s *Session) resolveMatch(arg string) string {
	n, err := strconv.Atoi(arg)
	if err != nil {
		return arg
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if n >= 1 && n <= len(s.page.Matches) {
		return s.page.Matches[n-1].ID
	}
	return arg
}

// controlled returns the open control session or an error naming how to open one
func (s *Session) controlled() (*control.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.control == nil {
		return nil, fmt.Errorf("no match open: use 'open <match>'")
	}
	return s.control, nil
}

func (s *Session) onDashboard(page dashboard.Page) {
	s.mu.Lock()
	s.page = page
	s.mu.Unlock()
	s.printf("\n%sMatches%s\n", display.Cyan, display.Reset)
	display.PrintPage(s.out, page)
}

func (s *Session) onError(err error) {
	display.Error(s.out, err)
}

func (s *Session) closeViews() {
	s.mu.Lock()
	dash, ctl := s.dashboard, s.control
	s.dashboard, s.control, s.plan = nil, nil, nil
	s.page = dashboard.Page{}
	s.mu.Unlock()
	if dash != nil {
		dash.Close()
	}
	if ctl != nil {
		ctl.Close()
	}
}

// Close releases subscriptions and the store
func (s *Session) Close() error {
	s.closeViews()
	return s.Store.Close()
}
