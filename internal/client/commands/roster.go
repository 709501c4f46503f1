package commands

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"scoreboard/internal/client/display"
	"scoreboard/internal/model"
	"scoreboard/internal/roster"

	"github.com/spf13/pflag"
)

func (r *Registry) registerRosterCommands() {
	for _, cmd := range []*Command{
		{
			Name:        "teams",
			ShortName:   "t",
			Description: "List teams, * marks the default",
			Usage:       "teams",
			Handler:     teamsHandler,
		},
		{
			Name:        "team",
			Description: "Create or update one of your teams",
			Usage:       "team <name> [--color #hex] [--logo url]",
			Handler:     teamHandler,
		},
		{
			Name:        "default",
			Description: "Set the team whose goals are tracked",
			Usage:       "default <team>",
			Handler:     defaultTeamHandler,
		},
		{
			Name:        "players",
			ShortName:   "p",
			Description: "List a team's players",
			Usage:       "players [team]",
			Handler:     playersHandler,
		},
		{
			Name:        "player",
			Description: "Add a player",
			Usage:       "player <team> <number> <first> <last> [--gk]",
			Handler:     playerHandler,
		},
		{
			Name:        "absent",
			Description: "Toggle a player's absence",
			Usage:       "absent <playerId>",
			Handler:     absentHandler,
		},
		{
			Name:        "coach",
			Description: "Show or set a team's coach",
			Usage:       "coach <team> [name]",
			Handler:     coachHandler,
		},
		{
			Name:        "champs",
			Description: "List championships, or add one",
			Usage:       "champs [title]",
			Handler:     championshipsHandler,
		},
	} {
		cmd.Category = categoryRoster
		r.Register(cmd)
	}
}

// resolveTeam accepts a team id or a case-insensitive team name
func resolveTeam(ctx context.Context, s *Session, arg string) (model.Team, error) {
	teams, err := s.Roster.Teams(ctx)
	if err != nil {
		return model.Team{}, err
	}
	for _, t := range teams {
		if t.ID == arg {
			return t, nil
		}
	}
	for _, t := range teams {
		if strings.EqualFold(strings.TrimSpace(t.Name), strings.TrimSpace(arg)) {
			return t, nil
		}
	}
	return model.Team{}, fmt.Errorf("team %q: %w", arg, model.ErrNotFound)
}

func teamsHandler(s *Session, args []string) error {
	ctx, cancel := s.context()
	defer cancel()
	teams, err := s.Roster.Teams(ctx)
	if err != nil {
		return err
	}
	defaultID, err := s.Roster.DefaultTeamID(ctx)
	if err != nil {
		return err
	}
	display.PrintTeams(s.out, teams, defaultID)
	return nil
}

func teamHandler(s *Session, args []string) error {
	fs := pflag.NewFlagSet("team", pflag.ContinueOnError)
	fs.SetOutput(s.out)
	color := fs.String("color", "", "Team color")
	logo := fs.String("logo", "", "Logo URL")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return usage("team <name> [--color #hex] [--logo url]")
	}

	ctx, cancel := s.context()
	defer cancel()
	team, created, err := s.Roster.SaveTeam(ctx, roster.TeamInput{
		Name:  fs.Arg(0),
		Color: *color,
		Logo:  *logo,
	}, s.Client.Current())
	if err != nil {
		return err
	}
	verb := "updated"
	if created {
		verb = "created"
	}
	display.Success(s.out, "Team %s %s: %s", team.Name, verb, team.ID)
	return nil
}

func defaultTeamHandler(s *Session, args []string) error {
	if len(args) != 1 {
		return usage("default <team>")
	}
	ctx, cancel := s.context()
	defer cancel()
	team, err := resolveTeam(ctx, s, args[0])
	if err != nil {
		return err
	}
	if err := s.Roster.SetDefaultTeam(ctx, team.ID); err != nil {
		return err
	}
	display.Success(s.out, "Tracking goals for %s", team.Name)
	return nil
}

func playersHandler(s *Session, args []string) error {
	ctx, cancel := s.context()
	defer cancel()

	var teamID string
	switch len(args) {
	case 0:
		id, err := s.Roster.DefaultTeamID(ctx)
		if err != nil {
			return err
		}
		if id == "" {
			return fmt.Errorf("no default team set: use 'players <team>'")
		}
		teamID = id
	case 1:
		team, err := resolveTeam(ctx, s, args[0])
		if err != nil {
			return err
		}
		teamID = team.ID
	default:
		return usage("players [team]")
	}

	players, err := s.Roster.Players(ctx, teamID)
	if err != nil {
		return err
	}
	display.PrintPlayers(s.out, players)
	return nil
}

func playerHandler(s *Session, args []string) error {
	fs := pflag.NewFlagSet("player", pflag.ContinueOnError)
	fs.SetOutput(s.out)
	goalkeeper := fs.Bool("gk", false, "Player is a goalkeeper")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 4 {
		return usage("player <team> <number> <first> <last> [--gk]")
	}
	number, err := strconv.Atoi(fs.Arg(1))
	if err != nil {
		return fmt.Errorf("number must be an integer, got %q", fs.Arg(1))
	}

	ctx, cancel := s.context()
	defer cancel()
	team, err := resolveTeam(ctx, s, fs.Arg(0))
	if err != nil {
		return err
	}
	p, err := s.Roster.AddPlayer(ctx, team.ID, roster.PlayerInput{
		Number:       &number,
		FirstName:    fs.Arg(2),
		LastName:     fs.Arg(3),
		IsGoalkeeper: *goalkeeper,
	})
	if err != nil {
		return err
	}
	display.Success(s.out, "Added #%d %s to %s: %s", p.Number, p.FullName(), team.Name, p.ID)
	return nil
}

func absentHandler(s *Session, args []string) error {
	if len(args) != 1 {
		return usage("absent <playerId>")
	}
	ctx, cancel := s.context()
	defer cancel()
	p, err := s.Roster.ToggleAbsent(ctx, args[0])
	if err != nil {
		return err
	}
	state := "available"
	if p.IsAbsent {
		state = "absent"
	}
	display.Success(s.out, "#%d %s is %s", p.Number, p.FullName(), state)
	return nil
}

func coachHandler(s *Session, args []string) error {
	if len(args) < 1 {
		return usage("coach <team> [name]")
	}
	ctx, cancel := s.context()
	defer cancel()
	team, err := resolveTeam(ctx, s, args[0])
	if err != nil {
		return err
	}

	if len(args) == 1 {
		coach, err := s.Roster.Coach(ctx, team.ID)
		if err != nil {
			return err
		}
		if coach == nil {
			s.printf("%s%s has no coach%s\n", display.Yellow, team.Name, display.Reset)
			return nil
		}
		s.printf("%s: %s\n", team.Name, coach.Name)
		return nil
	}

	coach, err := s.Roster.SaveCoach(ctx, team.ID, roster.CoachInput{Name: strings.Join(args[1:], " ")})
	if err != nil {
		return err
	}
	display.Success(s.out, "%s coach: %s", team.Name, coach.Name)
	return nil
}

func championshipsHandler(s *Session, args []string) error {
	ctx, cancel := s.context()
	defer cancel()

	if len(args) > 0 {
		c, err := s.Roster.SaveChampionship(ctx, strings.Join(args, " "), s.Client.Current())
		if err != nil {
			return err
		}
		display.Success(s.out, "Championship saved: %s", c.Title)
		return nil
	}

	champs, err := s.Roster.Championships(ctx)
	if err != nil {
		return err
	}
	if len(champs) == 0 {
		s.printf("%sNo championships%s\n", display.Yellow, display.Reset)
		return nil
	}
	for _, c := range champs {
		s.printf("  %s\n", c.Title)
	}
	return nil
}
