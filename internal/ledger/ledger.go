// Package ledger records goal events and keeps the match score fields in
// step with them.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"scoreboard/internal/lifecycle"
	"scoreboard/internal/metrics"
	"scoreboard/internal/model"
	"scoreboard/internal/store"

	"github.com/hashicorp/go-hclog"
	"github.com/tidwall/gjson"
)

// ErrPartial reports that the goal record and the score write diverged:
// the first step succeeded, the second failed and was not rolled back.
var ErrPartial = errors.New("partial goal update")

// Options configures a Ledger
type Options struct {
	Logger  hclog.Logger
	Metrics *metrics.Metrics
}

// Ledger appends and removes goals against one store
type Ledger struct {
	store   *store.Store
	engine  *lifecycle.Engine
	log     hclog.Logger
	metrics *metrics.Metrics
}

// New shares the engine's clock and atomic-score mode
func New(s *store.Store, engine *lifecycle.Engine, opts Options) *Ledger {
	l := &Ledger{store: s, engine: engine, log: opts.Logger, metrics: opts.Metrics}
	if l.log == nil {
		l.log = hclog.NewNullLogger()
	}
	return l
}

func goalPath(id string) store.Path {
	return store.Join(model.CollectionGoals, id)
}

// TrackedTeam returns the configured default team id, empty when none is set.
// The setting holds either a bare id string or an object with a teamId field.
func (l *Ledger) TrackedTeam(ctx context.Context) (string, error) {
	snap, err := l.store.Get(ctx, store.Join(model.CollectionSettings, model.SettingDefaultTeam))
	if err != nil {
		return "", err
	}
	if !snap.Exists() {
		return "", nil
	}
	v := gjson.ParseBytes(snap.Value)
	if v.Type == gjson.String {
		return v.Str, nil
	}
	return v.Get("teamId").String(), nil
}

func (l *Ledger) team(ctx context.Context, id string) (*model.Team, error) {
	if id == "" {
		return nil, nil
	}
	snap, err := l.store.Get(ctx, store.Join(model.CollectionTeams, id))
	if err != nil || !snap.Exists() {
		return nil, err
	}
	t, err := model.DecodeTeam(id, snap.Value)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// SideOf matches a team name against the match's team names, case-insensitive
// and trimmed, defaulting to side 1.
func SideOf(m model.Match, teamName string) model.Side {
	if side, ok := PlayingSide(m, teamName); ok {
		return side
	}
	return model.Side1
}

// PlayingSide reports the side a team plays on, and false when neither
// team name matches
func PlayingSide(m model.Match, teamName string) (model.Side, bool) {
	name := strings.ToLower(strings.TrimSpace(teamName))
	if name == "" {
		return model.Side1, false
	}
	switch name {
	case strings.ToLower(strings.TrimSpace(m.Team1Name)):
		return model.Side1, true
	case strings.ToLower(strings.TrimSpace(m.Team2Name)):
		return model.Side2, true
	}
	return model.Side1, false
}

// TrackedSide resolves which side the tracked team occupies in a match
func (l *Ledger) TrackedSide(ctx context.Context, m model.Match) (side model.Side, teamID string, err error) {
	teamID, err = l.TrackedTeam(ctx)
	if err != nil {
		return model.Side1, "", err
	}
	t, err := l.team(ctx, teamID)
	if err != nil {
		return model.Side1, teamID, err
	}
	if t == nil {
		return model.Side1, teamID, nil
	}
	return SideOf(m, t.Name), teamID, nil
}

// TimeLabel is MM:SS since the half started while playing, wall-clock HH:MM:SS otherwise
func TimeLabel(m model.Match, now time.Time, loc *time.Location) string {
	if m.Status == model.StatusPlaying && m.StartTime > 0 {
		return model.FormatHalfClock(lifecycle.Elapsed(m, now))
	}
	return now.In(loc).Format("15:04:05")
}

// RecordGoal appends a goal and increments the scoring side by one. A scorer
// whose team plays in the match attributes the goal to that team; own goals
// and every other goal go to the tracked team. Returns the stored goal and
// the new side score.
func (l *Ledger) RecordGoal(ctx context.Context, matchID, playerID string, isOwnGoal bool) (g model.Goal, score int, err error) {
	defer func() { l.metrics.OperationObserved("goal", result(err)) }()

	m, version, err := l.readMatch(ctx, matchID)
	if err != nil {
		return g, 0, err
	}
	if m.Status == model.StatusEnded {
		return g, 0, model.ErrMatchEnded
	}

	trackedSide, trackedID, err := l.TrackedSide(ctx, m)
	if err != nil {
		return g, 0, err
	}

	now := l.engine.Now()
	g = model.Goal{
		ID:        store.NewKey(),
		MatchID:   matchID,
		IsOwnGoal: isOwnGoal,
		Half:      m.CurrentHalf,
		MatchTime: TimeLabel(m, now, l.engine.Location()),
		Timestamp: model.Millis(now),
		CreatedAt: model.Millis(now),
	}
	side := trackedSide
	if trackedID != "" {
		g.TeamID = &trackedID
	}

	if playerID = strings.TrimSpace(playerID); playerID != "" && !isOwnGoal {
		p, err := l.player(ctx, playerID)
		if err != nil {
			return g, 0, err
		}
		g.PlayerID = &p.ID
		number, keeper := p.Number, p.IsGoalkeeper
		g.PlayerNumber = &number
		g.IsGoalkeeper = &keeper
		if p.TeamID != "" {
			if t, err := l.team(ctx, p.TeamID); err == nil && t != nil {
				if playing, ok := PlayingSide(m, t.Name); ok {
					teamID := p.TeamID
					g.TeamID = &teamID
					side = playing
				}
			}
		}
	}

	if l.engine.Atomic() {
		score, err = l.recordAtomic(ctx, m, version, g, side)
	} else {
		score, err = l.recordSequential(ctx, m, g, side)
	}
	if err != nil {
		return g, score, err
	}

	l.log.Info("goal recorded", "match", matchID, "goal", g.ID, "side", int(side), "score", score, "time", g.MatchTime)
	return g, score, nil
}

func (l *Ledger) recordSequential(ctx context.Context, m model.Match, g model.Goal, side model.Side) (int, error) {
	if err := l.store.Set(ctx, goalPath(g.ID), g); err != nil {
		return m.Score(side), fmt.Errorf("failed to save goal: %w", err)
	}
	score, err := l.engine.ChangeScore(ctx, m.ID, side, 1)
	if err != nil {
		return m.Score(side), fmt.Errorf("%w: goal %s saved, score not updated: %w", ErrPartial, g.ID, err)
	}
	return score, nil
}

func (l *Ledger) recordAtomic(ctx context.Context, m model.Match, version uint64, g model.Goal, side model.Side) (int, error) {
	goal, err := store.SetOf(goalPath(g.ID), g)
	if err != nil {
		return 0, err
	}
	score := m.Score(side) + 1
	bump, err := store.MergeOf(lifecycle.Path(m.ID), map[string]any{side.ScoreField(): score})
	if err != nil {
		return 0, err
	}
	if err := l.store.Commit(ctx, goal.Versioned(0), bump.Versioned(version)); err != nil {
		return m.Score(side), fmt.Errorf("failed to record goal: %w", err)
	}
	return score, nil
}

// RemoveGoal deletes a goal and decrements the side's score, floored at 0
func (l *Ledger) RemoveGoal(ctx context.Context, matchID, goalID string, side model.Side) (score int, err error) {
	defer func() { l.metrics.OperationObserved("remove_goal", result(err)) }()

	if !side.Valid() {
		return 0, fmt.Errorf("%w: side must be 1 or 2", model.ErrValidation)
	}
	m, version, err := l.readMatch(ctx, matchID)
	if err != nil {
		return 0, err
	}
	if m.Status == model.StatusEnded {
		return m.Score(side), model.ErrMatchEnded
	}

	snap, err := l.store.Get(ctx, goalPath(goalID))
	if err != nil {
		return m.Score(side), err
	}
	if !snap.Exists() {
		return m.Score(side), fmt.Errorf("goal %s: %w", goalID, model.ErrNotFound)
	}
	if gjson.GetBytes(snap.Value, "matchId").String() != matchID {
		return m.Score(side), fmt.Errorf("%w: goal %s belongs to another match", model.ErrValidation, goalID)
	}

	score = max(0, m.Score(side)-1)
	remove := store.DeleteOf(goalPath(goalID))
	bump, err := store.MergeOf(lifecycle.Path(matchID), map[string]any{side.ScoreField(): score})
	if err != nil {
		return m.Score(side), err
	}

	if l.engine.Atomic() {
		err = l.store.Commit(ctx, remove.Versioned(snap.Version), bump.Versioned(version))
		if err != nil {
			return m.Score(side), fmt.Errorf("failed to remove goal: %w", err)
		}
	} else {
		if err := l.store.Commit(ctx, remove); err != nil {
			return m.Score(side), fmt.Errorf("failed to remove goal: %w", err)
		}
		if err := l.store.Commit(ctx, bump); err != nil {
			return m.Score(side), fmt.Errorf("%w: goal %s removed, score not updated: %w", ErrPartial, goalID, err)
		}
	}

	l.log.Info("goal removed", "match", matchID, "goal", goalID, "side", int(side), "score", score)
	return score, nil
}

// RemovalAction tells the operator what a removal request resolved to
type RemovalAction string

const (
	// RemovalDecremented: the score was decremented without touching the ledger
	RemovalDecremented RemovalAction = "decremented"
	// RemovalChoose: the operator picks one of Candidates to remove
	RemovalChoose RemovalAction = "choose"
)

// RemovalPlan is the outcome of RequestGoalRemoval
type RemovalPlan struct {
	Action     RemovalAction `json:"action"`
	Side       model.Side    `json:"side"`
	Score      int           `json:"score"`
	Candidates []model.Goal  `json:"candidates,omitempty"`
}

// RequestGoalRemoval handles the operator's minus button for a side. A zero
// score is rejected. The untracked side is decremented directly; the tracked
// side offers its goals newest first, or is decremented when it has none.
func (l *Ledger) RequestGoalRemoval(ctx context.Context, matchID string, side model.Side) (plan RemovalPlan, err error) {
	defer func() { l.metrics.OperationObserved("request_removal", result(err)) }()

	if !side.Valid() {
		return plan, fmt.Errorf("%w: side must be 1 or 2", model.ErrValidation)
	}
	m, _, err := l.readMatch(ctx, matchID)
	if err != nil {
		return plan, err
	}
	plan.Side = side
	plan.Score = m.Score(side)

	if m.Status == model.StatusEnded {
		return plan, model.ErrMatchEnded
	}
	if m.Score(side) <= 0 {
		return plan, fmt.Errorf("side %d: %w", side, model.ErrScoreZero)
	}

	trackedSide, trackedID, err := l.TrackedSide(ctx, m)
	if err != nil {
		return plan, err
	}

	if trackedID != "" && side == trackedSide {
		goals, err := l.Goals(ctx, matchID)
		if err != nil {
			return plan, err
		}
		for _, g := range goals {
			if g.TeamID != nil && *g.TeamID == trackedID {
				plan.Candidates = append(plan.Candidates, g)
			}
		}
		if len(plan.Candidates) > 0 {
			model.SortGoalsNewestFirst(plan.Candidates)
			plan.Action = RemovalChoose
			return plan, nil
		}
	}

	score, err := l.engine.ChangeScore(ctx, matchID, side, -1)
	if err != nil {
		return plan, err
	}
	plan.Action = RemovalDecremented
	plan.Score = score
	return plan, nil
}

// Goals lists a match's goals in display order, skipping malformed records
func (l *Ledger) Goals(ctx context.Context, matchID string) ([]model.Goal, error) {
	children, err := l.store.QueryEqual(ctx, model.CollectionGoals, "matchId", matchID)
	if err != nil {
		return nil, err
	}
	return DecodeGoals(children, l.log), nil
}

// DecodeGoals decodes a goals snapshot in display order
func DecodeGoals(children []store.Child, log hclog.Logger) []model.Goal {
	goals := make([]model.Goal, 0, len(children))
	for _, c := range children {
		g, err := model.DecodeGoal(c.Key, c.Value)
		if err != nil {
			log.Warn("skipping malformed goal", "goal", c.Key, "error", err)
			continue
		}
		goals = append(goals, g)
	}
	model.SortGoalsForDisplay(goals)
	return goals
}

func (l *Ledger) readMatch(ctx context.Context, id string) (model.Match, uint64, error) {
	if id == "" {
		return model.Match{}, 0, fmt.Errorf("%w: empty match id", model.ErrValidation)
	}
	snap, err := l.store.Get(ctx, lifecycle.Path(id))
	if err != nil {
		return model.Match{}, 0, err
	}
	if !snap.Exists() {
		return model.Match{}, 0, fmt.Errorf("match %s: %w", id, model.ErrNotFound)
	}
	m, err := model.DecodeMatch(id, snap.Value)
	return m, snap.Version, err
}

func (l *Ledger) player(ctx context.Context, id string) (model.Player, error) {
	snap, err := l.store.Get(ctx, store.Join(model.CollectionPlayers, id))
	if err != nil {
		return model.Player{}, err
	}
	if !snap.Exists() {
		return model.Player{}, fmt.Errorf("player %s: %w", id, model.ErrNotFound)
	}
	p, err := model.DecodePlayer(id, snap.Value)
	if err != nil {
		return p, err
	}
	if p.IsDeleted {
		return p, fmt.Errorf("player %s: %w", id, model.ErrNotFound)
	}
	return p, nil
}

func result(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrPartial):
		return "partial"
	case errors.Is(err, model.ErrNotFound):
		return "not_found"
	case errors.Is(err, model.ErrValidation):
		return "invalid"
	case errors.Is(err, model.ErrMatchEnded), errors.Is(err, model.ErrScoreZero):
		return "rejected"
	case errors.Is(err, store.ErrConflict):
		return "conflict"
	}
	return "error"
}
