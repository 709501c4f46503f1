package commands

import (
	"fmt"
	"strconv"
	"time"

	"scoreboard/internal/client/display"
	"scoreboard/internal/control"
	"scoreboard/internal/dashboard"
	"scoreboard/internal/ledger"
	"scoreboard/internal/lifecycle"
	"scoreboard/internal/model"

	"github.com/spf13/pflag"
)

func (r *Registry) registerMatchCommands() {
	for _, cmd := range []*Command{
		{
			Name:        "matches",
			ShortName:   "ls",
			Description: "Show the live dashboard",
			Usage:       "matches [--hide-ended] [--championship <title>]",
			Handler:     matchesHandler,
		},
		{
			Name:        "more",
			ShortName:   "+",
			Description: "Show the next dashboard page",
			Usage:       "more",
			Handler:     moreHandler,
		},
		{
			Name:        "ended",
			Description: "Toggle hiding ended matches",
			Usage:       "ended",
			Handler:     endedHandler,
		},
		{
			Name:        "unwatch",
			Description: "Stop following the dashboard",
			Usage:       "unwatch",
			Handler:     unwatchHandler,
		},
		{
			Name:        "new",
			ShortName:   "n",
			Description: "Create a match",
			Usage:       `new <team1> <team2> [--at "tomorrow 18:00"] [--championship <title>] [--color1 #hex] [--color2 #hex]`,
			Handler:     newMatchHandler,
		},
		{
			Name:        "open",
			ShortName:   "o",
			Description: "Take control of a match",
			Usage:       "open <row|matchId>",
			Handler:     openHandler,
		},
		{
			Name:        "close",
			Description: "Release the open match",
			Usage:       "close",
			Handler:     closeHandler,
		},
		{
			Name:        "show",
			ShortName:   "s",
			Description: "Show the open match or another one",
			Usage:       "show [row|matchId]",
			Handler:     showHandler,
		},
		{
			Name:        "start",
			Description: "Start a half",
			Usage:       "start <1|2>",
			Handler:     startHandler,
		},
		{
			Name:        "stop",
			Description: "Stop a half",
			Usage:       "stop <1|2>",
			Handler:     stopHandler,
		},
		{
			Name:        "end",
			Description: "End the match",
			Usage:       "end",
			Handler:     endHandler,
		},
		{
			Name:        "score",
			Description: "Adjust a score without a goal record",
			Usage:       "score <1|2> <+n|-n>",
			Handler:     scoreHandler,
		},
		{
			Name:        "goal",
			ShortName:   "g",
			Description: "Record a goal for a player number, an own goal, or unattributed",
			Usage:       "goal [number|own]",
			Handler:     goalHandler,
		},
		{
			Name:        "minus",
			Description: "Take a goal back from a side",
			Usage:       "minus <1|2>",
			Handler:     minusHandler,
		},
		{
			Name:        "remove",
			Description: "Remove a goal offered by minus",
			Usage:       "remove <n>",
			Handler:     removeHandler,
		},
		{
			Name:        "goals",
			Description: "List the open match's goals",
			Usage:       "goals",
			Handler:     goalsHandler,
		},
		{
			Name:        "date",
			Description: "Set the open match's date",
			Usage:       "date <YYYY-MM-DD>",
			Handler:     dateHandler,
		},
		{
			Name:        "delete",
			ShortName:   "d",
			Description: "Delete a match and its goals",
			Usage:       "delete <row|matchId>",
			Handler:     deleteHandler,
		},
	} {
		cmd.Category = categoryMatch
		r.Register(cmd)
	}
}

func matchesHandler(s *Session, args []string) error {
	fs := pflag.NewFlagSet("matches", pflag.ContinueOnError)
	fs.SetOutput(s.out)
	hideEnded := fs.Bool("hide-ended", false, "Hide ended matches")
	championship := fs.String("championship", "", "List one championship's matches")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *championship != "" {
		ctx, cancel := s.context()
		defer cancel()
		matches, err := s.Engine.ByChampionship(ctx, *championship)
		if err != nil {
			return err
		}
		page := dashboard.Build(matches, *hideEnded, len(matches), s.cfg.Now(), s.cfg.Location)
		s.printf("%s%s%s\n", display.Cyan, *championship, display.Reset)
		display.PrintPage(s.out, page)
		return nil
	}

	s.mu.Lock()
	view := s.dashboard
	s.mu.Unlock()
	if view != nil {
		if fs.Changed("hide-ended") {
			view.SetHideEnded(*hideEnded)
			return nil
		}
		s.onDashboard(view.Page())
		return nil
	}

	view, err := dashboard.Open(s.Store, dashboard.Options{
		HideEnded: *hideEnded,
		PageSize:  s.cfg.PageSize,
		Now:       s.cfg.Now,
		Location:  s.cfg.Location,
		Logger:    s.log.Named("dashboard"),
	}, s.onDashboard, s.onError)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.dashboard = view
	s.mu.Unlock()
	return nil
}

func openDashboard(s *Session) (*dashboard.View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dashboard == nil {
		return nil, fmt.Errorf("dashboard not open: use 'matches'")
	}
	return s.dashboard, nil
}

func moreHandler(s *Session, args []string) error {
	view, err := openDashboard(s)
	if err != nil {
		return err
	}
	view.LoadMore()
	return nil
}

func endedHandler(s *Session, args []string) error {
	view, err := openDashboard(s)
	if err != nil {
		return err
	}
	view.SetHideEnded(!view.Page().HideEnded)
	return nil
}

func unwatchHandler(s *Session, args []string) error {
	s.mu.Lock()
	view := s.dashboard
	s.dashboard = nil
	s.mu.Unlock()
	if view != nil {
		view.Close()
	}
	return nil
}

func newMatchHandler(s *Session, args []string) error {
	fs := pflag.NewFlagSet("new", pflag.ContinueOnError)
	fs.SetOutput(s.out)
	at := fs.String("at", "", "Kickoff time, e.g. 2024-06-05 18:30 or \"tomorrow at 6pm\"")
	championship := fs.String("championship", "", "Championship title")
	color1 := fs.String("color1", "", "Team 1 color")
	color2 := fs.String("color2", "", "Team 2 color")
	logo1 := fs.String("logo1", "", "Team 1 logo URL")
	logo2 := fs.String("logo2", "", "Team 2 logo URL")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 2 {
		return usage(`new <team1> <team2> [--at "tomorrow 18:00"] [--championship <title>]`)
	}

	req := lifecycle.CreateRequest{
		Team1Name:         fs.Arg(0),
		Team2Name:         fs.Arg(1),
		Team1Color:        *color1,
		Team2Color:        *color2,
		Team1Logo:         *logo1,
		Team2Logo:         *logo2,
		ChampionshipTitle: *championship,
	}
	if *at != "" {
		kickoff, err := ParseSchedule(*at, s.cfg.Now(), s.cfg.Location)
		if err != nil {
			return err
		}
		ms := model.Millis(kickoff)
		req.ScheduledTime = &ms
	}

	ctx, cancel := s.context()
	defer cancel()
	m, err := s.Engine.Create(ctx, req, s.Client.Current())
	if err != nil {
		return err
	}

	display.Success(s.out, "Match created: %s", m.ID)
	s.printf("%s\n", display.MatchLine(lifecycle.Render(m, s.cfg.Now(), s.cfg.Location)))
	return nil
}

func openHandler(s *Session, args []string) error {
	if len(args) != 1 {
		return usage("open <row|matchId>")
	}
	id := s.resolveMatch(args[0])

	s.mu.Lock()
	prev := s.control
	s.control, s.plan = nil, nil
	s.mu.Unlock()
	if prev != nil {
		prev.Close()
	}

	ctx, cancel := s.context()
	defer cancel()
	ctl, err := control.Open(ctx, control.Deps{
		Store:  s.Store,
		Engine: s.Engine,
		Ledger: s.Ledger,
		Logger: s.log.Named("control"),
	}, id, control.Options{
		OnChange: func(v lifecycle.View) {
			s.printf("%s> %s%s\n", display.Cyan, display.Reset, display.MatchLine(v))
		},
		OnError: s.onError,
		OnHalftimeTick: func(remaining time.Duration) {
			s.printf("%s\n", display.Countdown(remaining))
		},
		OnHalftimeDone: func() {
			s.printf("%sHalftime over%s\n", display.Yellow, display.Reset)
		},
		SyncInterval: s.cfg.SyncInterval,
		Halftime:     s.cfg.Halftime,
		HalftimeTick: s.cfg.HalftimeTick,
		Debounce:     s.cfg.Debounce,
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.control = ctl
	s.mu.Unlock()
	return nil
}

func closeHandler(s *Session, args []string) error {
	s.mu.Lock()
	ctl := s.control
	s.control, s.plan = nil, nil
	s.mu.Unlock()
	if ctl == nil {
		return fmt.Errorf("no match open")
	}
	ctl.Close()
	display.Success(s.out, "Released match %s", ctl.ID())
	return nil
}

func showHandler(s *Session, args []string) error {
	if len(args) == 0 {
		ctl, err := s.controlled()
		if err != nil {
			return err
		}
		s.printf("%s\n", display.MatchLine(ctl.View()))
		if ctl.HalftimeRunning() {
			s.printf("%sHalftime break running%s\n", display.Yellow, display.Reset)
		}
		return nil
	}

	ctx, cancel := s.context()
	defer cancel()
	m, err := s.Engine.Get(ctx, s.resolveMatch(args[0]))
	if err != nil {
		return err
	}
	v := lifecycle.Render(m, s.cfg.Now(), s.cfg.Location)
	if s.IsVerbose() {
		display.PrettyPrintJSON(s.out, v)
		return nil
	}
	s.printf("%s\n", display.MatchLine(v))
	return nil
}

func parseHalf(args []string, cmd string) (int, error) {
	if len(args) != 1 {
		return 0, usage(cmd + " <1|2>")
	}
	half, err := strconv.Atoi(args[0])
	if err != nil || (half != 1 && half != 2) {
		return 0, fmt.Errorf("half must be 1 or 2, got %q", args[0])
	}
	return half, nil
}

func startHandler(s *Session, args []string) error {
	half, err := parseHalf(args, "start")
	if err != nil {
		return err
	}
	ctl, err := s.controlled()
	if err != nil {
		return err
	}
	ctx, cancel := s.context()
	defer cancel()
	if _, err := ctl.StartHalf(ctx, half); err != nil {
		return err
	}
	display.Success(s.out, "Half %d started", half)
	return nil
}

func stopHandler(s *Session, args []string) error {
	half, err := parseHalf(args, "stop")
	if err != nil {
		return err
	}
	ctl, err := s.controlled()
	if err != nil {
		return err
	}
	ctx, cancel := s.context()
	defer cancel()
	m, err := ctl.StopHalf(ctx, half)
	if err != nil {
		return err
	}
	display.Success(s.out, "Half %d stopped at %s", half, m.Time)
	return nil
}

func endHandler(s *Session, args []string) error {
	ctl, err := s.controlled()
	if err != nil {
		return err
	}
	ctx, cancel := s.context()
	defer cancel()
	m, err := ctl.EndMatch(ctx)
	if err != nil {
		return err
	}
	display.Success(s.out, "Match ended %d : %d", m.Score1, m.Score2)
	return nil
}

func scoreHandler(s *Session, args []string) error {
	if len(args) != 2 {
		return usage("score <1|2> <+n|-n>")
	}
	side, err := model.ParseSide(args[0])
	if err != nil {
		return err
	}
	delta, err := strconv.Atoi(args[1])
	if err != nil || delta == 0 {
		return fmt.Errorf("delta must be a non-zero integer, got %q", args[1])
	}
	ctl, err := s.controlled()
	if err != nil {
		return err
	}
	ctx, cancel := s.context()
	defer cancel()
	score, err := ctl.ChangeScore(ctx, side, delta)
	if err != nil {
		return err
	}
	display.Success(s.out, "Side %d score: %d", side, score)
	return nil
}

func goalHandler(s *Session, args []string) error {
	if len(args) > 1 {
		return usage("goal [number|own]")
	}
	ctl, err := s.controlled()
	if err != nil {
		return err
	}
	ctx, cancel := s.context()
	defer cancel()

	var (
		playerID string
		ownGoal  bool
	)
	if len(args) == 1 {
		if args[0] == "own" {
			ownGoal = true
		} else {
			number, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("expected a shirt number or 'own', got %q", args[0])
			}
			p, err := playerByNumber(s, number)
			if err != nil {
				return err
			}
			playerID = p.ID
		}
	}

	g, score, err := ctl.RecordGoal(ctx, playerID, ownGoal)
	if err != nil {
		return err
	}
	display.Success(s.out, "Goal at %s, score %d", g.MatchTime, score)
	return nil
}

// playerByNumber finds an active player of the tracked team by shirt number
func playerByNumber(s *Session, number int) (model.Player, error) {
	ctx, cancel := s.context()
	defer cancel()
	teamID, err := s.Ledger.TrackedTeam(ctx)
	if err != nil {
		return model.Player{}, err
	}
	if teamID == "" {
		return model.Player{}, fmt.Errorf("no default team set: use 'default <team>'")
	}
	players, err := s.Roster.ActivePlayers(ctx, teamID)
	if err != nil {
		return model.Player{}, err
	}
	for _, p := range players {
		if p.Number == number {
			return p, nil
		}
	}
	return model.Player{}, fmt.Errorf("no active player with number %d", number)
}

// trackedPlayers maps the tracked team's players by id, absent ones included
func trackedPlayers(s *Session) map[string]model.Player {
	ctx, cancel := s.context()
	defer cancel()
	players := make(map[string]model.Player)
	teamID, err := s.Ledger.TrackedTeam(ctx)
	if err != nil || teamID == "" {
		return players
	}
	list, err := s.Roster.Players(ctx, teamID)
	if err != nil {
		return players
	}
	for _, p := range list {
		players[p.ID] = p
	}
	return players
}

func minusHandler(s *Session, args []string) error {
	if len(args) != 1 {
		return usage("minus <1|2>")
	}
	side, err := model.ParseSide(args[0])
	if err != nil {
		return err
	}
	ctl, err := s.controlled()
	if err != nil {
		return err
	}
	ctx, cancel := s.context()
	defer cancel()
	plan, err := ctl.RequestGoalRemoval(ctx, side)
	if err != nil {
		return err
	}

	if plan.Action == ledger.RemovalDecremented {
		s.mu.Lock()
		s.plan = nil
		s.mu.Unlock()
		display.Success(s.out, "Side %d score: %d", side, plan.Score)
		return nil
	}

	s.mu.Lock()
	s.plan = &plan
	s.mu.Unlock()
	s.printf("%sPick the goal to remove with 'remove <n>':%s\n", display.Yellow, display.Reset)
	display.PrintGoals(s.out, plan.Candidates, trackedPlayers(s))
	return nil
}

func removeHandler(s *Session, args []string) error {
	if len(args) != 1 {
		return usage("remove <n>")
	}
	ctl, err := s.controlled()
	if err != nil {
		return err
	}
	s.mu.Lock()
	plan := s.plan
	s.mu.Unlock()
	if plan == nil {
		return fmt.Errorf("nothing to remove: use 'minus <1|2>' first")
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 1 || n > len(plan.Candidates) {
		return fmt.Errorf("pick a goal between 1 and %d", len(plan.Candidates))
	}
	goal := plan.Candidates[n-1]

	ctx, cancel := s.context()
	defer cancel()
	score, err := ctl.RemoveGoal(ctx, goal.ID, plan.Side)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.plan = nil
	s.mu.Unlock()
	display.Success(s.out, "Goal removed, side %d score: %d", plan.Side, score)
	return nil
}

func goalsHandler(s *Session, args []string) error {
	ctl, err := s.controlled()
	if err != nil {
		return err
	}
	ctx, cancel := s.context()
	defer cancel()
	goals, err := ctl.Goals(ctx)
	if err != nil {
		return err
	}
	display.PrintGoals(s.out, goals, trackedPlayers(s))
	return nil
}

func dateHandler(s *Session, args []string) error {
	if len(args) != 1 {
		return usage("date <YYYY-MM-DD>")
	}
	ctl, err := s.controlled()
	if err != nil {
		return err
	}
	ctx, cancel := s.context()
	defer cancel()
	m, err := s.Engine.UpdateMatchDate(ctx, ctl.ID(), args[0])
	if err != nil {
		return err
	}
	display.Success(s.out, "Match date: %s", model.DisplayDate(m, s.cfg.Location))
	return nil
}

func deleteHandler(s *Session, args []string) error {
	if len(args) != 1 {
		return usage("delete <row|matchId>")
	}
	id := s.resolveMatch(args[0])

	s.mu.Lock()
	var ctl *control.Session
	if s.control != nil && s.control.ID() == id {
		ctl = s.control
		s.control, s.plan = nil, nil
	}
	s.mu.Unlock()
	if ctl != nil {
		ctl.Close()
	}

	ctx, cancel := s.context()
	defer cancel()
	if err := s.Engine.Delete(ctx, id); err != nil {
		return err
	}
	display.Success(s.out, "Match %s deleted", id)
	return nil
}
