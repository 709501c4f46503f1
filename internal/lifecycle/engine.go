// Package lifecycle owns the match state machine: creation, half start and
// stop, ending, score changes and the observer-side clock.
package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"scoreboard/internal/identity"
	"scoreboard/internal/metrics"
	"scoreboard/internal/model"
	"scoreboard/internal/store"

	"github.com/hashicorp/go-hclog"
	"github.com/tidwall/sjson"
)

// Options configures an Engine; zero values select wall time, the local zone,
// a null logger and non-atomic score writes.
type Options struct {
	Now          func() time.Time
	Location     *time.Location
	Logger       hclog.Logger
	Metrics      *metrics.Metrics
	AtomicScores bool
}

// Engine validates and executes match transitions against the store
type Engine struct {
	store   *store.Store
	now     func() time.Time
	loc     *time.Location
	log     hclog.Logger
	metrics *metrics.Metrics
	atomic  bool
}

func New(s *store.Store, opts Options) *Engine {
	e := &Engine{
		store:   s,
		now:     opts.Now,
		loc:     opts.Location,
		log:     opts.Logger,
		metrics: opts.Metrics,
		atomic:  opts.AtomicScores,
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.loc == nil {
		e.loc = time.Local
	}
	if e.log == nil {
		e.log = hclog.NewNullLogger()
	}
	return e
}

// Now returns the engine clock reading
func (e *Engine) Now() time.Time { return e.now() }

// Location returns the zone used for calendar dates
func (e *Engine) Location() *time.Location { return e.loc }

// Atomic reports whether score writes use versioned commits
func (e *Engine) Atomic() bool { return e.atomic }

// Path returns the store path of a match
func Path(id string) store.Path {
	return store.Join(model.CollectionMatches, id)
}

// CreateRequest carries the operator's input for a new match
type CreateRequest struct {
	Team1Name         string `json:"team1Name" validate:"required,max=100"`
	Team2Name         string `json:"team2Name" validate:"required,max=100"`
	Team1Color        string `json:"team1Color" validate:"omitempty,hexcolor"`
	Team2Color        string `json:"team2Color" validate:"omitempty,hexcolor"`
	Team1Logo         string `json:"team1Logo"`
	Team2Logo         string `json:"team2Logo"`
	ScheduledTime     *int64 `json:"scheduledTime" validate:"omitempty,min=0"`
	ChampionshipTitle string `json:"championshipTitle" validate:"max=200"`
}

// Create stores a new match in waiting state, or scheduled when the
// scheduled time lies in the future.
func (e *Engine) Create(ctx context.Context, req CreateRequest, who *identity.Identity) (m model.Match, err error) {
	defer func() { e.observe("create", err) }()

	if who == nil {
		return m, model.ErrUnauthenticated
	}
	req.Team1Name = strings.TrimSpace(req.Team1Name)
	req.Team2Name = strings.TrimSpace(req.Team2Name)
	req.ChampionshipTitle = strings.TrimSpace(req.ChampionshipTitle)
	if err := model.Validate(&req); err != nil {
		return m, err
	}

	now := e.now()
	m = model.Match{
		ID:                store.NewKey(),
		Team1Name:         req.Team1Name,
		Team2Name:         req.Team2Name,
		Team1Color:        orDefault(req.Team1Color, model.DefaultTeam1Color),
		Team2Color:        orDefault(req.Team2Color, model.DefaultTeam2Color),
		Team1Logo:         req.Team1Logo,
		Team2Logo:         req.Team2Logo,
		Status:            model.StatusWaiting,
		Time:              "00:00:00",
		ChampionshipTitle: req.ChampionshipTitle,
		CreatedBy:         who.UID,
		CreatedByEmail:    who.Email,
		CreatedAt:         model.Millis(now),
	}
	if req.ScheduledTime != nil {
		at := *req.ScheduledTime
		day := model.FromMillis(at, e.loc).Format(model.DateLayout)
		m.ScheduledTime = &at
		m.MatchDate = &day
		if at > model.Millis(now) {
			m.Status = model.StatusScheduled
		}
	}

	mut, err := store.SetOf(Path(m.ID), m)
	if err != nil {
		return m, err
	}
	if err := e.store.Commit(ctx, mut.Versioned(0)); err != nil {
		return m, fmt.Errorf("failed to create match: %w", err)
	}

	e.log.Info("match created", "match", m.ID, "team1", m.Team1Name, "team2", m.Team2Name, "status", m.Status)
	return m, nil
}

// Get reads and decodes a match
func (e *Engine) Get(ctx context.Context, id string) (model.Match, error) {
	m, _, err := e.read(ctx, id)
	return m, err
}

func (e *Engine) read(ctx context.Context, id string) (model.Match, uint64, error) {
	if id == "" {
		return model.Match{}, 0, fmt.Errorf("%w: empty match id", model.ErrValidation)
	}
	snap, err := e.store.Get(ctx, Path(id))
	if err != nil {
		return model.Match{}, 0, err
	}
	if !snap.Exists() {
		return model.Match{}, 0, fmt.Errorf("match %s: %w", id, model.ErrNotFound)
	}
	m, err := model.DecodeMatch(id, snap.Value)
	return m, snap.Version, err
}

// List decodes every match, skipping records that fail validation
func (e *Engine) List(ctx context.Context) ([]model.Match, error) {
	snap, err := e.store.Get(ctx, store.Path(model.CollectionMatches))
	if err != nil {
		return nil, err
	}
	return DecodeAll(snap.Children, e.log), nil
}

// ByChampionship lists matches carrying a championship title
func (e *Engine) ByChampionship(ctx context.Context, title string) ([]model.Match, error) {
	children, err := e.store.QueryEqual(ctx, model.CollectionMatches, "championshipTitle", strings.TrimSpace(title))
	if err != nil {
		return nil, err
	}
	return DecodeAll(children, e.log), nil
}

// DecodeAll decodes collection children into matches, logging and skipping bad records
func DecodeAll(children []store.Child, log hclog.Logger) []model.Match {
	out := make([]model.Match, 0, len(children))
	for _, c := range children {
		m, err := model.DecodeMatch(c.Key, c.Value)
		if err != nil {
			log.Warn("skipping malformed match", "match", c.Key, "error", err)
			continue
		}
		out = append(out, m)
	}
	return out
}

// transition reads the match, lets check reject it, then merges fields.
// Atomic engines guard the merge with the version that was read.
func (e *Engine) transition(ctx context.Context, op, id string, check func(model.Match) error, fields func(model.Match, time.Time) map[string]any) (m model.Match, err error) {
	defer func() { e.observe(op, err) }()

	m, version, err := e.read(ctx, id)
	if err != nil {
		return m, err
	}
	if err := check(m); err != nil {
		return m, err
	}

	now := e.now()
	mut, err := store.MergeOf(Path(id), fields(m, now))
	if err != nil {
		return m, err
	}
	if e.atomic {
		mut = mut.Versioned(version)
	}
	if err := e.commitExisting(ctx, id, mut); err != nil {
		return m, fmt.Errorf("%s: %w", op, err)
	}

	updated, err := e.Get(ctx, id)
	if err != nil {
		return m, err
	}
	e.log.Info("match transition", "op", op, "match", id, "status", updated.Status, "half", updated.CurrentHalf)
	return updated, nil
}

// StartHalf starts half 1 from waiting or scheduled, or half 2 after half 1 ended
func (e *Engine) StartHalf(ctx context.Context, id string, half int) (model.Match, error) {
	op := fmt.Sprintf("start_half%d", half)
	if half != 1 && half != 2 {
		e.observe(op, model.ErrValidation)
		return model.Match{}, fmt.Errorf("%w: half must be 1 or 2", model.ErrValidation)
	}

	check := func(m model.Match) error {
		if m.Status == model.StatusEnded {
			return fmt.Errorf("%w: %w", model.ErrInvalidTransition, model.ErrMatchEnded)
		}
		switch {
		case half == 1 && (m.Status == model.StatusWaiting || m.Status == model.StatusScheduled):
			return nil
		case half == 2 && m.Status == model.StatusHalf1Ended:
			return nil
		}
		return fmt.Errorf("%w: cannot start half %d from %s", model.ErrInvalidTransition, half, m.Status)
	}

	fields := func(m model.Match, now time.Time) map[string]any {
		f := map[string]any{
			"status":        model.StatusPlaying,
			"currentHalf":   half,
			"startTime":     model.Millis(now),
			"scheduledTime": nil,
			"time":          "00:00:00",
		}
		if half == 1 {
			f["matchStartedAt"] = model.Millis(now)
		}
		if m.MatchDate == nil || *m.MatchDate == "" {
			f["matchDate"] = now.In(e.loc).Format(model.DateLayout)
		}
		return f
	}

	return e.transition(ctx, op, id, check, fields)
}

// StopHalf ends the half that is being played
func (e *Engine) StopHalf(ctx context.Context, id string, half int) (model.Match, error) {
	op := fmt.Sprintf("stop_half%d", half)
	if half != 1 && half != 2 {
		e.observe(op, model.ErrValidation)
		return model.Match{}, fmt.Errorf("%w: half must be 1 or 2", model.ErrValidation)
	}

	check := func(m model.Match) error {
		if m.Status == model.StatusEnded {
			return fmt.Errorf("%w: %w", model.ErrInvalidTransition, model.ErrMatchEnded)
		}
		if m.Status != model.StatusPlaying || m.CurrentHalf != half {
			return fmt.Errorf("%w: cannot stop half %d while %s in half %d", model.ErrInvalidTransition, half, m.Status, m.CurrentHalf)
		}
		return nil
	}

	fields := func(m model.Match, now time.Time) map[string]any {
		return map[string]any{
			"status": model.HalfEnded(half),
			"time":   model.FormatClock(Elapsed(m, now)),
		}
	}

	return e.transition(ctx, op, id, check, fields)
}

// EndMatch finishes the match from any state; ending an ended match is a no-op
func (e *Engine) EndMatch(ctx context.Context, id string) (model.Match, error) {
	m, err := e.Get(ctx, id)
	if err != nil {
		e.observe("end", err)
		return m, err
	}
	if m.Status == model.StatusEnded {
		e.observe("end", nil)
		return m, nil
	}

	check := func(m model.Match) error { return nil }
	fields := func(m model.Match, now time.Time) map[string]any {
		f := map[string]any{"status": model.StatusEnded}
		if m.Status == model.StatusPlaying {
			f["time"] = model.FormatClock(Elapsed(m, now))
		}
		return f
	}
	return e.transition(ctx, "end", id, check, fields)
}

// ChangeScore adds delta to a side's score, clamping at zero, and returns
// the stored value.
func (e *Engine) ChangeScore(ctx context.Context, id string, side model.Side, delta int) (score int, err error) {
	defer func() { e.observe("score", err) }()

	if !side.Valid() {
		return 0, fmt.Errorf("%w: side must be 1 or 2", model.ErrValidation)
	}
	if e.atomic {
		return e.changeScoreAtomic(ctx, id, side, delta)
	}

	m, err := e.Get(ctx, id)
	if err != nil {
		return 0, err
	}
	if m.Status == model.StatusEnded {
		return m.Score(side), model.ErrMatchEnded
	}

	score = max(0, m.Score(side)+delta)
	if err := e.mergeExisting(ctx, id, map[string]any{side.ScoreField(): score}); err != nil {
		return m.Score(side), fmt.Errorf("score: %w", err)
	}
	e.log.Debug("score changed", "match", id, "side", int(side), "score", score)
	return score, nil
}

func (e *Engine) changeScoreAtomic(ctx context.Context, id string, side model.Side, delta int) (int, error) {
	var score int
	_, err := e.store.Transform(ctx, Path(id), func(current json.RawMessage) (any, error) {
		if current == nil {
			return nil, fmt.Errorf("match %s: %w", id, model.ErrNotFound)
		}
		m, err := model.DecodeMatch(id, current)
		if err != nil {
			return nil, err
		}
		if m.Status == model.StatusEnded {
			return nil, model.ErrMatchEnded
		}
		score = max(0, m.Score(side)+delta)
		next, err := sjson.SetBytes(current, side.ScoreField(), score)
		if err != nil {
			return nil, err
		}
		return json.RawMessage(next), nil
	})
	if err != nil {
		return 0, err
	}
	e.log.Debug("score changed", "match", id, "side", int(side), "score", score, "atomic", true)
	return score, nil
}

// SyncTime writes the advisory clock of a playing match
func (e *Engine) SyncTime(ctx context.Context, id string) (string, error) {
	m, err := e.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if m.Status != model.StatusPlaying {
		return m.Time, model.ErrNotPlaying
	}
	label := model.FormatClock(Elapsed(m, e.now()))
	if err := e.mergeExisting(ctx, id, map[string]any{"time": label}); err != nil {
		return label, fmt.Errorf("sync time: %w", err)
	}
	return label, nil
}

// UpdateMatchDate sets the calendar date used by the dashboard's played tier
func (e *Engine) UpdateMatchDate(ctx context.Context, id, date string) (model.Match, error) {
	date = strings.TrimSpace(date)
	if !model.ValidDate(date) {
		e.observe("date", model.ErrValidation)
		return model.Match{}, fmt.Errorf("%w: date must be YYYY-MM-DD, got %q", model.ErrValidation, date)
	}
	check := func(model.Match) error { return nil }
	fields := func(model.Match, time.Time) map[string]any {
		return map[string]any{"matchDate": date}
	}
	return e.transition(ctx, "date", id, check, fields)
}

// Delete removes the match and its goals in one commit
func (e *Engine) Delete(ctx context.Context, id string) (err error) {
	defer func() { e.observe("delete", err) }()

	if _, _, err := e.read(ctx, id); err != nil {
		return err
	}
	goals, err := e.store.QueryEqual(ctx, model.CollectionGoals, "matchId", id)
	if err != nil {
		return err
	}

	muts := []store.Mutation{store.DeleteOf(Path(id))}
	for _, g := range goals {
		muts = append(muts, store.DeleteOf(store.Join(model.CollectionGoals, g.Key)))
	}
	if err := e.store.Commit(ctx, muts...); err != nil {
		return fmt.Errorf("delete %s: %w", id, err)
	}
	e.log.Info("match deleted", "match", id, "goals", len(goals))
	return nil
}

// mergeExisting merges fields into a match that must still be stored
func (e *Engine) mergeExisting(ctx context.Context, id string, fields map[string]any) error {
	mut, err := store.MergeOf(Path(id), fields)
	if err != nil {
		return err
	}
	return e.commitExisting(ctx, id, mut)
}

// commitExisting fails with ErrNotFound when the match was deleted after it
// was read, instead of recreating it as a partial record
func (e *Engine) commitExisting(ctx context.Context, id string, mut store.Mutation) error {
	err := e.store.Commit(ctx, mut.Existing())
	if errors.Is(err, store.ErrMissing) {
		return fmt.Errorf("match %s: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("match %s: %w", id, err)
	}
	return nil
}

func (e *Engine) observe(op string, err error) {
	e.metrics.OperationObserved(op, resultLabel(err))
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, model.ErrValidation):
		return "invalid"
	case errors.Is(err, model.ErrNotFound):
		return "not_found"
	case errors.Is(err, model.ErrInvalidTransition), errors.Is(err, model.ErrMatchEnded):
		return "rejected"
	case errors.Is(err, store.ErrConflict):
		return "conflict"
	}
	return "error"
}

func orDefault(v, def string) string {
	if v = strings.TrimSpace(v); v == "" {
		return def
	}
	return v
}

