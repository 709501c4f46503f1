package processor

import (
	"context"
	"errors"
	"fmt"

	"scoreboard/internal/dashboard"
	"scoreboard/internal/ledger"
	"scoreboard/internal/lifecycle"
	"scoreboard/internal/model"
	"scoreboard/internal/roster"
	"scoreboard/internal/server/core"
	"scoreboard/internal/server/service"

	"github.com/hashicorp/go-hclog"
)

// WidgetResponse is the public view of one match for overlays
type WidgetResponse struct {
	lifecycle.View
	Goals []core.GoalView `json:"goals"`
}

// Processor executes operator commands against the service components
type Processor struct {
	svc      *service.Service
	pageSize int
	log      hclog.Logger
}

// New creates a processor; pageSize bounds list results when a command gives none
func New(svc *service.Service, pageSize int) *Processor {
	if pageSize <= 0 {
		pageSize = dashboard.DefaultPageSize
	}
	return &Processor{
		svc:      svc,
		pageSize: pageSize,
		log:      svc.Logger().Named("processor"),
	}
}

// Execute runs one command and wraps its outcome
func (p *Processor) Execute(ctx context.Context, cmd Command) ProcessorResponse {
	data, err := p.dispatch(ctx, cmd)
	if err != nil {
		return p.errorResponse(cmd, err)
	}
	return ProcessorResponse{Success: true, Data: data}
}

func (p *Processor) dispatch(ctx context.Context, cmd Command) (any, error) {
	switch cmd.Type {
	case CmdCreateMatch:
		return p.handleCreateMatch(ctx, cmd)
	case CmdListMatches:
		return p.handleListMatches(ctx, cmd)
	case CmdGetMatch:
		return p.handleGetMatch(ctx, cmd)
	case CmdWidget:
		return p.handleWidget(ctx, cmd)
	case CmdDeleteMatch:
		return nil, p.svc.Engine().Delete(ctx, cmd.MatchID)
	case CmdStartHalf, CmdStopHalf:
		return p.handleHalf(ctx, cmd)
	case CmdEndMatch:
		return p.viewOf(p.svc.Engine().EndMatch(ctx, cmd.MatchID))
	case CmdChangeScore:
		return p.handleChangeScore(ctx, cmd)
	case CmdUpdateDate:
		args, ok := cmd.Args.(core.DateRequest)
		if !ok {
			return nil, errInvalidArgs
		}
		return p.viewOf(p.svc.Engine().UpdateMatchDate(ctx, cmd.MatchID, args.Date))
	case CmdListGoals:
		return p.handleListGoals(ctx, cmd)
	case CmdRecordGoal:
		return p.handleRecordGoal(ctx, cmd)
	case CmdRemoveGoal:
		return p.handleRemoveGoal(ctx, cmd)
	case CmdRequestRemoval:
		return p.handleRequestRemoval(ctx, cmd)
	default:
		return p.dispatchRoster(ctx, cmd)
	}
}

var errInvalidArgs = fmt.Errorf("%w: invalid arguments", model.ErrValidation)

func (p *Processor) handleCreateMatch(ctx context.Context, cmd Command) (any, error) {
	args, ok := cmd.Args.(lifecycle.CreateRequest)
	if !ok {
		return nil, errInvalidArgs
	}
	if cmd.Identity == nil {
		return nil, model.ErrUnauthenticated
	}
	return p.viewOf(p.svc.Engine().Create(ctx, args, cmd.Identity))
}

func (p *Processor) handleListMatches(ctx context.Context, cmd Command) (any, error) {
	args, _ := cmd.Args.(ListArgs)
	limit := args.Limit
	if limit <= 0 {
		limit = p.pageSize
	}

	var (
		matches []model.Match
		err     error
	)
	if args.Championship != "" {
		matches, err = p.svc.Engine().ByChampionship(ctx, args.Championship)
	} else {
		matches, err = p.svc.Engine().List(ctx)
	}
	if err != nil {
		return nil, err
	}
	return dashboard.Build(matches, args.HideEnded, limit, p.svc.Now(), p.svc.Location()), nil
}

func (p *Processor) handleGetMatch(ctx context.Context, cmd Command) (any, error) {
	return p.viewOf(p.svc.Engine().Get(ctx, cmd.MatchID))
}

func (p *Processor) handleWidget(ctx context.Context, cmd Command) (any, error) {
	m, err := p.svc.Engine().Get(ctx, cmd.MatchID)
	if err != nil {
		return nil, err
	}
	goals, err := p.svc.Ledger().Goals(ctx, cmd.MatchID)
	if err != nil {
		return nil, err
	}
	model.SortGoalsForDisplay(goals)
	return WidgetResponse{
		View:  lifecycle.Render(m, p.svc.Now(), p.svc.Location()),
		Goals: core.NewGoalViews(goals),
	}, nil
}

func (p *Processor) handleHalf(ctx context.Context, cmd Command) (any, error) {
	half, ok := cmd.Args.(int)
	if !ok {
		return nil, errInvalidArgs
	}
	if cmd.Type == CmdStartHalf {
		return p.viewOf(p.svc.Engine().StartHalf(ctx, cmd.MatchID, half))
	}
	return p.viewOf(p.svc.Engine().StopHalf(ctx, cmd.MatchID, half))
}

func (p *Processor) handleChangeScore(ctx context.Context, cmd Command) (any, error) {
	args, ok := cmd.Args.(core.ScoreRequest)
	if !ok {
		return nil, errInvalidArgs
	}
	score, err := p.svc.Engine().ChangeScore(ctx, cmd.MatchID, model.Side(args.Side), args.Delta)
	if err != nil {
		return nil, err
	}
	return core.ScoreResponse{MatchID: cmd.MatchID, Side: args.Side, Score: score}, nil
}

func (p *Processor) handleListGoals(ctx context.Context, cmd Command) (any, error) {
	if _, err := p.svc.Engine().Get(ctx, cmd.MatchID); err != nil {
		return nil, err
	}
	goals, err := p.svc.Ledger().Goals(ctx, cmd.MatchID)
	if err != nil {
		return nil, err
	}
	model.SortGoalsForDisplay(goals)
	return core.GoalsResponse{MatchID: cmd.MatchID, Goals: core.NewGoalViews(goals)}, nil
}

func (p *Processor) handleRecordGoal(ctx context.Context, cmd Command) (any, error) {
	args, ok := cmd.Args.(core.GoalRequest)
	if !ok {
		return nil, errInvalidArgs
	}
	g, score, err := p.svc.Ledger().RecordGoal(ctx, cmd.MatchID, args.PlayerID, args.IsOwnGoal)
	if err != nil {
		return nil, err
	}
	return core.GoalResponse{Goal: core.NewGoalView(g), Score: score}, nil
}

func (p *Processor) handleRemoveGoal(ctx context.Context, cmd Command) (any, error) {
	args, ok := cmd.Args.(core.RemoveGoalRequest)
	if !ok {
		return nil, errInvalidArgs
	}
	score, err := p.svc.Ledger().RemoveGoal(ctx, cmd.MatchID, cmd.TargetID, model.Side(args.Side))
	if err != nil {
		return nil, err
	}
	return core.ScoreResponse{MatchID: cmd.MatchID, Side: args.Side, Score: score}, nil
}

func (p *Processor) handleRequestRemoval(ctx context.Context, cmd Command) (any, error) {
	args, ok := cmd.Args.(core.RemovalRequest)
	if !ok {
		return nil, errInvalidArgs
	}
	plan, err := p.svc.Ledger().RequestGoalRemoval(ctx, cmd.MatchID, model.Side(args.Side))
	if err != nil {
		return nil, err
	}
	resp := core.RemovalResponse{Action: plan.Action, Side: int(plan.Side), Score: plan.Score}
	if plan.Action == ledger.RemovalChoose {
		resp.Candidates = core.NewGoalViews(plan.Candidates)
	}
	return resp, nil
}

func (p *Processor) dispatchRoster(ctx context.Context, cmd Command) (any, error) {
	r := p.svc.Roster()
	switch cmd.Type {
	case CmdSaveTeam:
		args, ok := cmd.Args.(roster.TeamInput)
		if !ok {
			return nil, errInvalidArgs
		}
		if cmd.Identity == nil {
			return nil, model.ErrUnauthenticated
		}
		t, created, err := r.SaveTeam(ctx, args, cmd.Identity)
		if err != nil {
			return nil, err
		}
		return core.TeamResponse{Team: core.NewTeamView(t), Created: created}, nil
	case CmdListTeams:
		teams, err := r.Teams(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]core.TeamView, 0, len(teams))
		for _, t := range teams {
			out = append(out, core.NewTeamView(t))
		}
		return out, nil
	case CmdGetTeam:
		t, err := r.Team(ctx, cmd.TargetID)
		if err != nil {
			return nil, err
		}
		return core.NewTeamView(t), nil
	case CmdDeleteTeam:
		return nil, r.DeleteTeam(ctx, cmd.TargetID)
	case CmdSetBadges:
		args, ok := cmd.Args.(roster.BadgeInput)
		if !ok {
			return nil, errInvalidArgs
		}
		t, err := r.SetBadges(ctx, cmd.TargetID, args)
		if err != nil {
			return nil, err
		}
		return core.NewTeamView(t), nil

	case CmdListPlayers:
		activeOnly, _ := cmd.Args.(bool)
		if _, err := r.Team(ctx, cmd.TargetID); err != nil {
			return nil, err
		}
		var (
			players []model.Player
			err     error
		)
		if activeOnly {
			players, err = r.ActivePlayers(ctx, cmd.TargetID)
		} else {
			players, err = r.Players(ctx, cmd.TargetID)
		}
		if err != nil {
			return nil, err
		}
		out := make([]core.PlayerView, 0, len(players))
		for _, pl := range players {
			out = append(out, core.NewPlayerView(pl))
		}
		return out, nil
	case CmdAddPlayer, CmdUpdatePlayer:
		args, ok := cmd.Args.(PlayerArgs)
		if !ok {
			return nil, errInvalidArgs
		}
		var (
			pl  model.Player
			err error
		)
		if cmd.Type == CmdAddPlayer {
			pl, err = r.AddPlayer(ctx, args.TeamID, args.Input)
		} else {
			pl, err = r.UpdatePlayer(ctx, cmd.TargetID, args.Input)
		}
		if err != nil {
			return nil, err
		}
		return core.NewPlayerView(pl), nil
	case CmdToggleAbsent:
		pl, err := r.ToggleAbsent(ctx, cmd.TargetID)
		if err != nil {
			return nil, err
		}
		return core.NewPlayerView(pl), nil
	case CmdDeletePlayer:
		return nil, r.DeletePlayer(ctx, cmd.TargetID)

	case CmdGetCoach:
		c, err := r.Coach(ctx, cmd.TargetID)
		if err != nil {
			return nil, err
		}
		if c == nil {
			return nil, fmt.Errorf("coach of team %s: %w", cmd.TargetID, model.ErrNotFound)
		}
		return c, nil
	case CmdSaveCoach:
		args, ok := cmd.Args.(roster.CoachInput)
		if !ok {
			return nil, errInvalidArgs
		}
		if _, err := r.Team(ctx, cmd.TargetID); err != nil {
			return nil, err
		}
		return r.SaveCoach(ctx, cmd.TargetID, args)
	case CmdDeleteCoach:
		return nil, r.DeleteCoach(ctx, cmd.TargetID)

	case CmdListChampionships:
		list, err := r.Championships(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]core.ChampionshipView, 0, len(list))
		for _, c := range list {
			out = append(out, core.NewChampionshipView(c))
		}
		return out, nil
	case CmdSaveChampionship:
		args, ok := cmd.Args.(core.ChampionshipRequest)
		if !ok {
			return nil, errInvalidArgs
		}
		if cmd.Identity == nil {
			return nil, model.ErrUnauthenticated
		}
		c, err := r.SaveChampionship(ctx, args.Title, cmd.Identity)
		if err != nil {
			return nil, err
		}
		return core.NewChampionshipView(c), nil
	case CmdDeleteChampionship:
		return nil, r.DeleteChampionship(ctx, cmd.TargetID)

	case CmdGetDefaultTeam:
		return p.defaultTeam(ctx)
	case CmdSetDefaultTeam:
		args, ok := cmd.Args.(core.DefaultTeamRequest)
		if !ok {
			return nil, errInvalidArgs
		}
		if err := r.SetDefaultTeam(ctx, args.TeamID); err != nil {
			return nil, err
		}
		return p.defaultTeam(ctx)
	}
	return nil, fmt.Errorf("%w: unknown command", model.ErrValidation)
}

func (p *Processor) defaultTeam(ctx context.Context) (core.DefaultTeamResponse, error) {
	t, err := p.svc.Roster().DefaultTeam(ctx)
	if err != nil {
		return core.DefaultTeamResponse{}, err
	}
	if t == nil {
		return core.DefaultTeamResponse{}, nil
	}
	v := core.NewTeamView(*t)
	return core.DefaultTeamResponse{TeamID: t.ID, Team: &v}, nil
}

func (p *Processor) viewOf(m model.Match, err error) (any, error) {
	if err != nil {
		return nil, err
	}
	return lifecycle.Render(m, p.svc.Now(), p.svc.Location()), nil
}

// errorResponse classifies err into a code the HTTP layer maps to a status
func (p *Processor) errorResponse(cmd Command, err error) ProcessorResponse {
	code, status := core.Classify(err)
	if status >= 500 {
		p.log.Error("command failed", "command", cmd.Type, "match", cmd.MatchID, "error", err)
	} else {
		p.log.Debug("command rejected", "command", cmd.Type, "match", cmd.MatchID, "code", code, "error", err)
	}

	message := err.Error()
	if errors.Is(err, model.ErrUnauthenticated) {
		message = "authentication required"
	}
	return ProcessorResponse{
		Success: false,
		Error: &core.ErrorResponse{
			Error: message,
			Code:  code,
		},
	}
}
