// Package roster manages the reference records the match components read:
// teams, players, coaches, championships and the tracked team setting.
package roster

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"scoreboard/internal/identity"
	"scoreboard/internal/model"
	"scoreboard/internal/store"

	"github.com/hashicorp/go-hclog"
	"github.com/tidwall/gjson"
)

var ErrNumberTaken = errors.New("player number already taken")

type Options struct {
	Now    func() time.Time
	Logger hclog.Logger
}

// Roster reads and writes reference records through the store
type Roster struct {
	store *store.Store
	now   func() time.Time
	log   hclog.Logger
}

func New(s *store.Store, opts Options) *Roster {
	r := &Roster{store: s, now: opts.Now, log: opts.Logger}
	if r.now == nil {
		r.now = time.Now
	}
	if r.log == nil {
		r.log = hclog.NewNullLogger()
	}
	return r
}

func teamPath(id string) store.Path {
	return store.Join(model.CollectionTeams, id)
}

func defaultTeamPath() store.Path {
	return store.Join(model.CollectionSettings, model.SettingDefaultTeam)
}

// TeamInput is the editable part of a team
type TeamInput struct {
	Name  string `json:"name" validate:"required,max=100"`
	Color string `json:"color" validate:"omitempty,hexcolor"`
	Logo  string `json:"logo"`
}

// SaveTeam updates the caller's team of the same name or creates a new one
func (r *Roster) SaveTeam(ctx context.Context, in TeamInput, who *identity.Identity) (model.Team, bool, error) {
	if who == nil {
		return model.Team{}, false, model.ErrUnauthenticated
	}
	in.Name = strings.TrimSpace(in.Name)
	if err := model.Validate(&in); err != nil {
		return model.Team{}, false, err
	}

	same, err := r.store.QueryEqual(ctx, model.CollectionTeams, "name", in.Name)
	if err != nil {
		return model.Team{}, false, err
	}
	now := model.Millis(r.now())
	for _, c := range same {
		if gjson.GetBytes(c.Value, "createdBy").String() != who.UID {
			continue
		}
		fields := map[string]any{
			"name":      in.Name,
			"color":     in.Color,
			"logo":      in.Logo,
			"createdBy": who.UID,
			"updatedAt": now,
		}
		if err := r.store.Update(ctx, teamPath(c.Key), fields); err != nil {
			return model.Team{}, false, fmt.Errorf("failed to update team: %w", err)
		}
		t, err := r.Team(ctx, c.Key)
		r.log.Info("team updated", "team", c.Key, "name", in.Name)
		return t, false, err
	}

	t := model.Team{
		Name:      in.Name,
		Color:     in.Color,
		Logo:      in.Logo,
		CreatedBy: who.UID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	id, err := r.store.Push(ctx, model.CollectionTeams, t)
	if err != nil {
		return model.Team{}, false, fmt.Errorf("failed to create team: %w", err)
	}
	t.ID = id
	r.log.Info("team created", "team", id, "name", in.Name)
	return t, true, nil
}

// Team reads one team
func (r *Roster) Team(ctx context.Context, id string) (model.Team, error) {
	snap, err := r.store.Get(ctx, teamPath(id))
	if err != nil {
		return model.Team{}, err
	}
	if !snap.Exists() {
		return model.Team{}, fmt.Errorf("team %s: %w", id, model.ErrNotFound)
	}
	return model.DecodeTeam(id, snap.Value)
}

// Teams lists all teams by name
func (r *Roster) Teams(ctx context.Context) ([]model.Team, error) {
	snap, err := r.store.Get(ctx, store.Path(model.CollectionTeams))
	if err != nil {
		return nil, err
	}
	teams := make([]model.Team, 0, len(snap.Children))
	for _, c := range snap.Children {
		t, err := model.DecodeTeam(c.Key, c.Value)
		if err != nil {
			r.log.Warn("skipping malformed team", "team", c.Key, "error", err)
			continue
		}
		teams = append(teams, t)
	}
	sort.SliceStable(teams, func(i, j int) bool {
		return strings.ToLower(teams[i].Name) < strings.ToLower(teams[j].Name)
	})
	return teams, nil
}

// BadgeInput sets the roster badge images of a team
type BadgeInput struct {
	GoalkeeperBadge  string `json:"goalkeeperBadge"`
	FieldPlayerBadge string `json:"fieldPlayerBadge"`
}

func (r *Roster) SetBadges(ctx context.Context, teamID string, in BadgeInput) (model.Team, error) {
	if _, err := r.Team(ctx, teamID); err != nil {
		return model.Team{}, err
	}
	err := r.store.Update(ctx, teamPath(teamID), map[string]any{
		"goalkeeperBadge":  in.GoalkeeperBadge,
		"fieldPlayerBadge": in.FieldPlayerBadge,
		"updatedAt":        model.Millis(r.now()),
	})
	if err != nil {
		return model.Team{}, err
	}
	return r.Team(ctx, teamID)
}

// DeleteTeam removes a team with its players and coach in one commit, and
// clears the tracked team setting when it pointed at this team.
func (r *Roster) DeleteTeam(ctx context.Context, id string) error {
	if _, err := r.Team(ctx, id); err != nil {
		return err
	}
	players, err := r.store.QueryEqual(ctx, model.CollectionPlayers, "teamId", id)
	if err != nil {
		return err
	}

	muts := []store.Mutation{
		store.DeleteOf(teamPath(id)),
		store.DeleteOf(coachPath(id)),
	}
	for _, p := range players {
		muts = append(muts, store.DeleteOf(playerPath(p.Key)))
	}
	if tracked, err := r.DefaultTeamID(ctx); err == nil && tracked == id {
		muts = append(muts, store.DeleteOf(defaultTeamPath()))
	}

	if err := r.store.Commit(ctx, muts...); err != nil {
		return fmt.Errorf("failed to delete team: %w", err)
	}
	r.log.Info("team deleted", "team", id, "players", len(players))
	return nil
}

// DefaultTeamID returns the tracked team id, empty when unset
func (r *Roster) DefaultTeamID(ctx context.Context) (string, error) {
	snap, err := r.store.Get(ctx, defaultTeamPath())
	if err != nil || !snap.Exists() {
		return "", err
	}
	v := gjson.ParseBytes(snap.Value)
	if v.Type == gjson.String {
		return v.Str, nil
	}
	return v.Get("teamId").String(), nil
}

// DefaultTeam returns the tracked team, nil when unset or dangling
func (r *Roster) DefaultTeam(ctx context.Context) (*model.Team, error) {
	id, err := r.DefaultTeamID(ctx)
	if err != nil || id == "" {
		return nil, err
	}
	t, err := r.Team(ctx, id)
	if errors.Is(err, model.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// SetDefaultTeam stores the tracked team id; an empty id clears it
func (r *Roster) SetDefaultTeam(ctx context.Context, teamID string) error {
	teamID = strings.TrimSpace(teamID)
	if teamID == "" {
		return r.store.Remove(ctx, defaultTeamPath())
	}
	if _, err := r.Team(ctx, teamID); err != nil {
		return err
	}
	if err := r.store.Set(ctx, defaultTeamPath(), teamID); err != nil {
		return err
	}
	r.log.Info("default team set", "team", teamID)
	return nil
}
