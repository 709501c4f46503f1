package roster

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"scoreboard/internal/identity"
	"scoreboard/internal/model"
	"scoreboard/internal/store"
)

func coachPath(teamID string) store.Path {
	return store.Join(model.CollectionCoaches, teamID)
}

func championshipPath(key string) store.Path {
	return store.Join(model.CollectionChampionships, key)
}

type CoachInput struct {
	Name  string `json:"name" validate:"required,max=100"`
	Photo string `json:"photo"`
}

// SaveCoach writes the team's coach, keeping the original creation time
func (r *Roster) SaveCoach(ctx context.Context, teamID string, in CoachInput) (model.Coach, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := model.Validate(&in); err != nil {
		return model.Coach{}, err
	}
	if _, err := r.Team(ctx, teamID); err != nil {
		return model.Coach{}, err
	}

	now := model.Millis(r.now())
	c := model.Coach{TeamID: teamID, Name: in.Name, Photo: in.Photo, CreatedAt: now, UpdatedAt: now}
	if existing, err := r.Coach(ctx, teamID); err != nil {
		return model.Coach{}, err
	} else if existing != nil {
		c.CreatedAt = existing.CreatedAt
		if c.Photo == "" {
			c.Photo = existing.Photo
		}
	}

	if err := r.store.Set(ctx, coachPath(teamID), c); err != nil {
		return model.Coach{}, fmt.Errorf("failed to save coach: %w", err)
	}
	return c, nil
}

// Coach returns the team's coach, nil when none is stored
func (r *Roster) Coach(ctx context.Context, teamID string) (*model.Coach, error) {
	snap, err := r.store.Get(ctx, coachPath(teamID))
	if err != nil || !snap.Exists() {
		return nil, err
	}
	c, err := model.DecodeCoach(snap.Value)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *Roster) DeleteCoach(ctx context.Context, teamID string) error {
	return r.store.Remove(ctx, coachPath(teamID))
}

// SaveChampionship registers a title under its sanitized key; saving an
// existing key returns the stored record.
func (r *Roster) SaveChampionship(ctx context.Context, title string, who *identity.Identity) (model.Championship, error) {
	if who == nil {
		return model.Championship{}, model.ErrUnauthenticated
	}
	title = strings.TrimSpace(title)
	key := model.ChampionshipKey(title)
	if title == "" || strings.Trim(key, "_") == "" {
		return model.Championship{}, fmt.Errorf("%w: championship title %q", model.ErrValidation, title)
	}

	c := model.Championship{Key: key, Title: title, CreatedBy: who.UID, CreatedAt: model.Millis(r.now())}
	m, err := store.SetOf(championshipPath(key), c)
	if err != nil {
		return c, err
	}
	err = r.store.Commit(ctx, m.Versioned(0))
	if errors.Is(err, store.ErrConflict) {
		return r.Championship(ctx, key)
	}
	if err != nil {
		return c, fmt.Errorf("failed to save championship: %w", err)
	}
	r.log.Info("championship created", "key", key, "title", title)
	return c, nil
}

func (r *Roster) Championship(ctx context.Context, key string) (model.Championship, error) {
	snap, err := r.store.Get(ctx, championshipPath(key))
	if err != nil {
		return model.Championship{}, err
	}
	if !snap.Exists() {
		return model.Championship{}, fmt.Errorf("championship %s: %w", key, model.ErrNotFound)
	}
	return model.DecodeChampionship(key, snap.Value)
}

// Championships lists all championships by title
func (r *Roster) Championships(ctx context.Context) ([]model.Championship, error) {
	snap, err := r.store.Get(ctx, store.Path(model.CollectionChampionships))
	if err != nil {
		return nil, err
	}
	out := make([]model.Championship, 0, len(snap.Children))
	for _, c := range snap.Children {
		ch, err := model.DecodeChampionship(c.Key, c.Value)
		if err != nil {
			r.log.Warn("skipping malformed championship", "key", c.Key, "error", err)
			continue
		}
		out = append(out, ch)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Title < out[j].Title })
	return out, nil
}

func (r *Roster) DeleteChampionship(ctx context.Context, key string) error {
	if _, err := r.Championship(ctx, key); err != nil {
		return err
	}
	return r.store.Remove(ctx, championshipPath(key))
}
