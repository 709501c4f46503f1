package roster

import (
	"context"
	"fmt"
	"strings"

	"scoreboard/internal/model"
	"scoreboard/internal/store"
)

func playerPath(id string) store.Path {
	return store.Join(model.CollectionPlayers, id)
}

// PlayerInput is the editable part of a player; Number is a pointer so that
// zero is distinguishable from missing.
type PlayerInput struct {
	Number       *int   `json:"number" validate:"required,min=0,max=99"`
	FirstName    string `json:"firstName" validate:"required,max=50"`
	LastName     string `json:"lastName" validate:"required,max=50"`
	IsGoalkeeper bool   `json:"isGoalkeeper"`
	Photo        string `json:"photo"`
}

func (in *PlayerInput) normalize() error {
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	return model.Validate(in)
}

// AddPlayer creates a player on a team with a number unused on that team
func (r *Roster) AddPlayer(ctx context.Context, teamID string, in PlayerInput) (model.Player, error) {
	if err := in.normalize(); err != nil {
		return model.Player{}, err
	}
	if _, err := r.Team(ctx, teamID); err != nil {
		return model.Player{}, err
	}
	if err := r.checkNumber(ctx, teamID, *in.Number, ""); err != nil {
		return model.Player{}, err
	}

	now := model.Millis(r.now())
	p := model.Player{
		TeamID:       teamID,
		Number:       *in.Number,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		IsGoalkeeper: in.IsGoalkeeper,
		Photo:        in.Photo,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	id, err := r.store.Push(ctx, model.CollectionPlayers, p)
	if err != nil {
		return model.Player{}, fmt.Errorf("failed to add player: %w", err)
	}
	p.ID = id
	r.log.Info("player added", "team", teamID, "player", id, "number", p.Number)
	return p, nil
}

// UpdatePlayer rewrites a player's editable fields; an empty photo keeps the existing one
func (r *Roster) UpdatePlayer(ctx context.Context, playerID string, in PlayerInput) (model.Player, error) {
	if err := in.normalize(); err != nil {
		return model.Player{}, err
	}
	p, err := r.Player(ctx, playerID)
	if err != nil {
		return model.Player{}, err
	}
	if err := r.checkNumber(ctx, p.TeamID, *in.Number, playerID); err != nil {
		return model.Player{}, err
	}

	p.Number = *in.Number
	p.FirstName = in.FirstName
	p.LastName = in.LastName
	p.IsGoalkeeper = in.IsGoalkeeper
	if in.Photo != "" {
		p.Photo = in.Photo
	}
	p.UpdatedAt = model.Millis(r.now())

	if err := r.store.Set(ctx, playerPath(playerID), p); err != nil {
		return model.Player{}, fmt.Errorf("failed to update player: %w", err)
	}
	return p, nil
}

func (r *Roster) checkNumber(ctx context.Context, teamID string, number int, except string) error {
	players, err := r.Players(ctx, teamID)
	if err != nil {
		return err
	}
	for _, p := range players {
		if p.ID != except && p.Number == number && !p.IsDeleted {
			return fmt.Errorf("%w: %w: #%d is %s", model.ErrValidation, ErrNumberTaken, number, p.FullName())
		}
	}
	return nil
}

// ToggleAbsent flips a player's availability and returns the updated record
func (r *Roster) ToggleAbsent(ctx context.Context, playerID string) (model.Player, error) {
	p, err := r.Player(ctx, playerID)
	if err != nil {
		return model.Player{}, err
	}
	p.IsAbsent = !p.IsAbsent
	if err := r.store.Update(ctx, playerPath(playerID), map[string]any{"isAbsent": p.IsAbsent}); err != nil {
		return model.Player{}, err
	}
	return p, nil
}

func (r *Roster) DeletePlayer(ctx context.Context, playerID string) error {
	if _, err := r.Player(ctx, playerID); err != nil {
		return err
	}
	return r.store.Remove(ctx, playerPath(playerID))
}

func (r *Roster) Player(ctx context.Context, id string) (model.Player, error) {
	snap, err := r.store.Get(ctx, playerPath(id))
	if err != nil {
		return model.Player{}, err
	}
	if !snap.Exists() {
		return model.Player{}, fmt.Errorf("player %s: %w", id, model.ErrNotFound)
	}
	return model.DecodePlayer(id, snap.Value)
}

// Players lists a team's players by number
func (r *Roster) Players(ctx context.Context, teamID string) ([]model.Player, error) {
	children, err := r.store.QueryEqual(ctx, model.CollectionPlayers, "teamId", teamID)
	if err != nil {
		return nil, err
	}
	players := make([]model.Player, 0, len(children))
	for _, c := range children {
		p, err := model.DecodePlayer(c.Key, c.Value)
		if err != nil {
			r.log.Warn("skipping malformed player", "player", c.Key, "error", err)
			continue
		}
		players = append(players, p)
	}
	model.SortPlayersByNumber(players)
	return players, nil
}

// ActivePlayers lists the players available for goal attribution
func (r *Roster) ActivePlayers(ctx context.Context, teamID string) ([]model.Player, error) {
	all, err := r.Players(ctx, teamID)
	if err != nil {
		return nil, err
	}
	active := all[:0]
	for _, p := range all {
		if p.Active() {
			active = append(active, p)
		}
	}
	return active, nil
}
