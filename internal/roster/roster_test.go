package roster

import (
	"context"
	"testing"
	"time"

	"scoreboard/internal/identity"
	"scoreboard/internal/model"
	"scoreboard/internal/store"
	"scoreboard/internal/store/local"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	alice = &identity.Identity{UID: "u-alice", Email: "alice@example.com"}
	bob   = &identity.Identity{UID: "u-bob", Email: "bob@example.com"}
)

func newRoster(t *testing.T) (*Roster, *store.Store) {
	t.Helper()
	tree, err := local.New(local.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = tree.Close() })

	s := store.New(tree, nil)
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	return New(s, Options{Now: func() time.Time { return now }}), s
}

func num(n int) *int { return &n }

func TestSaveTeamUpsertsPerCreator(t *testing.T) {
	r, _ := newRoster(t)
	ctx := context.Background()

	first, created, err := r.SaveTeam(ctx, TeamInput{Name: " Alpha ", Color: "#112233"}, alice)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "Alpha", first.Name)

	again, created, err := r.SaveTeam(ctx, TeamInput{Name: "Alpha", Color: "#445566"}, alice)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, "#445566", again.Color)

	other, created, err := r.SaveTeam(ctx, TeamInput{Name: "Alpha"}, bob)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, first.ID, other.ID)

	teams, err := r.Teams(ctx)
	require.NoError(t, err)
	assert.Len(t, teams, 2)

	_, _, err = r.SaveTeam(ctx, TeamInput{Name: "  "}, alice)
	assert.ErrorIs(t, err, model.ErrValidation)
	_, _, err = r.SaveTeam(ctx, TeamInput{Name: "X"}, nil)
	assert.ErrorIs(t, err, model.ErrUnauthenticated)
}

func TestPlayersNumberRules(t *testing.T) {
	r, _ := newRoster(t)
	ctx := context.Background()

	team, _, err := r.SaveTeam(ctx, TeamInput{Name: "Alpha"}, alice)
	require.NoError(t, err)

	p10, err := r.AddPlayer(ctx, team.ID, PlayerInput{Number: num(10), FirstName: gofakeit.FirstName(), LastName: gofakeit.LastName()})
	require.NoError(t, err)
	_, err = r.AddPlayer(ctx, team.ID, PlayerInput{Number: num(0), FirstName: "Zero", LastName: "Keeper", IsGoalkeeper: true})
	require.NoError(t, err)

	_, err = r.AddPlayer(ctx, team.ID, PlayerInput{Number: num(10), FirstName: "Dup", LastName: "Licate"})
	assert.ErrorIs(t, err, ErrNumberTaken)
	assert.ErrorIs(t, err, model.ErrValidation)

	_, err = r.AddPlayer(ctx, team.ID, PlayerInput{Number: num(100), FirstName: "Too", LastName: "High"})
	assert.ErrorIs(t, err, model.ErrValidation)
	_, err = r.AddPlayer(ctx, team.ID, PlayerInput{FirstName: "No", LastName: "Number"})
	assert.ErrorIs(t, err, model.ErrValidation)
	_, err = r.AddPlayer(ctx, "missing", PlayerInput{Number: num(5), FirstName: "No", LastName: "Team"})
	assert.ErrorIs(t, err, model.ErrNotFound)

	// keeping one's own number is fine
	updated, err := r.UpdatePlayer(ctx, p10.ID, PlayerInput{Number: num(10), FirstName: "New", LastName: "Name"})
	require.NoError(t, err)
	assert.Equal(t, "New Name", updated.FullName())
	assert.Equal(t, p10.CreatedAt, updated.CreatedAt)

	_, err = r.UpdatePlayer(ctx, p10.ID, PlayerInput{Number: num(0), FirstName: "New", LastName: "Name"})
	assert.ErrorIs(t, err, ErrNumberTaken)

	players, err := r.Players(ctx, team.ID)
	require.NoError(t, err)
	require.Len(t, players, 2)
	assert.Equal(t, 0, players[0].Number)
	assert.Equal(t, 10, players[1].Number)
}

func TestActivePlayersExcludeAbsent(t *testing.T) {
	r, _ := newRoster(t)
	ctx := context.Background()

	team, _, err := r.SaveTeam(ctx, TeamInput{Name: "Alpha"}, alice)
	require.NoError(t, err)

	var ids []string
	for _, n := range []int{9, 3, 7} {
		p, err := r.AddPlayer(ctx, team.ID, PlayerInput{Number: num(n), FirstName: "P", LastName: gofakeit.LastName()})
		require.NoError(t, err)
		ids = append(ids, p.ID)
	}

	toggled, err := r.ToggleAbsent(ctx, ids[1])
	require.NoError(t, err)
	assert.True(t, toggled.IsAbsent)

	active, err := r.ActivePlayers(ctx, team.ID)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, 7, active[0].Number)
	assert.Equal(t, 9, active[1].Number)

	toggled, err = r.ToggleAbsent(ctx, ids[1])
	require.NoError(t, err)
	assert.False(t, toggled.IsAbsent)

	require.NoError(t, r.DeletePlayer(ctx, ids[0]))
	assert.ErrorIs(t, r.DeletePlayer(ctx, ids[0]), model.ErrNotFound)
}

func TestCoachKeepsCreationTime(t *testing.T) {
	r, _ := newRoster(t)
	ctx := context.Background()

	team, _, err := r.SaveTeam(ctx, TeamInput{Name: "Alpha"}, alice)
	require.NoError(t, err)

	none, err := r.Coach(ctx, team.ID)
	require.NoError(t, err)
	assert.Nil(t, none)

	first, err := r.SaveCoach(ctx, team.ID, CoachInput{Name: "Pat", Photo: "data:image/png;base64,AA=="})
	require.NoError(t, err)

	r.now = func() time.Time { return time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC) }
	second, err := r.SaveCoach(ctx, team.ID, CoachInput{Name: "Pat Jr"})
	require.NoError(t, err)
	assert.Equal(t, first.CreatedAt, second.CreatedAt)
	assert.Greater(t, second.UpdatedAt, first.UpdatedAt)
	assert.Equal(t, first.Photo, second.Photo)

	_, err = r.SaveCoach(ctx, team.ID, CoachInput{})
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestChampionships(t *testing.T) {
	r, _ := newRoster(t)
	ctx := context.Background()

	c, err := r.SaveChampionship(ctx, " Spring Cup 2024 ", alice)
	require.NoError(t, err)
	assert.Equal(t, "spring_cup_2024", c.Key)
	assert.Equal(t, "Spring Cup 2024", c.Title)

	again, err := r.SaveChampionship(ctx, "spring cup 2024", bob)
	require.NoError(t, err)
	assert.Equal(t, alice.UID, again.CreatedBy)
	assert.Equal(t, "Spring Cup 2024", again.Title)

	_, err = r.SaveChampionship(ctx, "!!!", alice)
	assert.ErrorIs(t, err, model.ErrValidation)

	all, err := r.Championships(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)

	require.NoError(t, r.DeleteChampionship(ctx, c.Key))
	assert.ErrorIs(t, r.DeleteChampionship(ctx, c.Key), model.ErrNotFound)
}

func TestDefaultTeamAndTeamDeletion(t *testing.T) {
	r, s := newRoster(t)
	ctx := context.Background()

	team, _, err := r.SaveTeam(ctx, TeamInput{Name: "Alpha"}, alice)
	require.NoError(t, err)
	_, err = r.AddPlayer(ctx, team.ID, PlayerInput{Number: num(1), FirstName: "A", LastName: "B"})
	require.NoError(t, err)
	_, err = r.SaveCoach(ctx, team.ID, CoachInput{Name: "Coach"})
	require.NoError(t, err)

	assert.ErrorIs(t, r.SetDefaultTeam(ctx, "missing"), model.ErrNotFound)
	require.NoError(t, r.SetDefaultTeam(ctx, team.ID))

	tracked, err := r.DefaultTeam(ctx)
	require.NoError(t, err)
	require.NotNil(t, tracked)
	assert.Equal(t, team.ID, tracked.ID)

	require.NoError(t, r.DeleteTeam(ctx, team.ID))

	tracked, err = r.DefaultTeam(ctx)
	require.NoError(t, err)
	assert.Nil(t, tracked)

	players, err := s.Get(ctx, store.Path(model.CollectionPlayers))
	require.NoError(t, err)
	assert.False(t, players.Exists())
	coach, err := r.Coach(ctx, team.ID)
	require.NoError(t, err)
	assert.Nil(t, coach)
}

func TestSetBadges(t *testing.T) {
	r, _ := newRoster(t)
	ctx := context.Background()

	team, _, err := r.SaveTeam(ctx, TeamInput{Name: "Alpha"}, alice)
	require.NoError(t, err)

	got, err := r.SetBadges(ctx, team.ID, BadgeInput{GoalkeeperBadge: "gk.png", FieldPlayerBadge: "fp.png"})
	require.NoError(t, err)
	assert.Equal(t, "gk.png", got.GoalkeeperBadge)
	assert.Equal(t, "fp.png", got.FieldPlayerBadge)
	assert.Equal(t, "Alpha", got.Name)
}
