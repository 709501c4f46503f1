package processor

import (
	"scoreboard/internal/identity"
	"scoreboard/internal/lifecycle"
	"scoreboard/internal/roster"
	"scoreboard/internal/server/core"
)

// CommandType defines the type of command being executed
type CommandType int

const (
	CmdCreateMatch CommandType = iota
	CmdListMatches
	CmdGetMatch
	CmdWidget
	CmdDeleteMatch
	CmdStartHalf
	CmdStopHalf
	CmdEndMatch
	CmdChangeScore
	CmdUpdateDate
	CmdListGoals
	CmdRecordGoal
	CmdRemoveGoal
	CmdRequestRemoval

	CmdSaveTeam
	CmdListTeams
	CmdGetTeam
	CmdDeleteTeam
	CmdSetBadges
	CmdListPlayers
	CmdAddPlayer
	CmdUpdatePlayer
	CmdToggleAbsent
	CmdDeletePlayer
	CmdGetCoach
	CmdSaveCoach
	CmdDeleteCoach
	CmdListChampionships
	CmdSaveChampionship
	CmdDeleteChampionship
	CmdGetDefaultTeam
	CmdSetDefaultTeam
)

var commandNames = map[CommandType]string{
	CmdCreateMatch:        "create_match",
	CmdListMatches:        "list_matches",
	CmdGetMatch:           "get_match",
	CmdWidget:             "widget",
	CmdDeleteMatch:        "delete_match",
	CmdStartHalf:          "start_half",
	CmdStopHalf:           "stop_half",
	CmdEndMatch:           "end_match",
	CmdChangeScore:        "change_score",
	CmdUpdateDate:         "update_date",
	CmdListGoals:          "list_goals",
	CmdRecordGoal:         "record_goal",
	CmdRemoveGoal:         "remove_goal",
	CmdRequestRemoval:     "request_removal",
	CmdSaveTeam:           "save_team",
	CmdListTeams:          "list_teams",
	CmdGetTeam:            "get_team",
	CmdDeleteTeam:         "delete_team",
	CmdSetBadges:          "set_badges",
	CmdListPlayers:        "list_players",
	CmdAddPlayer:          "add_player",
	CmdUpdatePlayer:       "update_player",
	CmdToggleAbsent:       "toggle_absent",
	CmdDeletePlayer:       "delete_player",
	CmdGetCoach:           "get_coach",
	CmdSaveCoach:          "save_coach",
	CmdDeleteCoach:        "delete_coach",
	CmdListChampionships:  "list_championships",
	CmdSaveChampionship:   "save_championship",
	CmdDeleteChampionship: "delete_championship",
	CmdGetDefaultTeam:     "get_default_team",
	CmdSetDefaultTeam:     "set_default_team",
}

func (t CommandType) String() string {
	if name, ok := commandNames[t]; ok {
		return name
	}
	return "unknown"
}

// Command is a unified structure for all processor operations
type Command struct {
	Type     CommandType
	Identity *identity.Identity // Signed-in operator, nil for public reads
	MatchID  string             // For match-specific commands
	TargetID string             // Team, player, goal or championship key
	Args     any                // Command-specific arguments
}

// ListArgs selects a dashboard page
type ListArgs struct {
	HideEnded    bool
	Limit        int
	Championship string
}

// PlayerArgs carries a player edit
type PlayerArgs struct {
	TeamID string
	Input  roster.PlayerInput
}

// ProcessorResponse wraps the response with metadata
type ProcessorResponse struct {
	Success bool                `json:"success"`
	Data    any                 `json:"data,omitempty"`
	Error   *core.ErrorResponse `json:"error,omitempty"`
}

func NewCreateMatchCommand(req lifecycle.CreateRequest, who *identity.Identity) Command {
	return Command{Type: CmdCreateMatch, Identity: who, Args: req}
}

func NewListMatchesCommand(args ListArgs) Command {
	return Command{Type: CmdListMatches, Args: args}
}

func NewGetMatchCommand(matchID string) Command {
	return Command{Type: CmdGetMatch, MatchID: matchID}
}

func NewWidgetCommand(matchID string) Command {
	return Command{Type: CmdWidget, MatchID: matchID}
}

func NewDeleteMatchCommand(matchID string) Command {
	return Command{Type: CmdDeleteMatch, MatchID: matchID}
}

func NewStartHalfCommand(matchID string, half int) Command {
	return Command{Type: CmdStartHalf, MatchID: matchID, Args: half}
}

func NewStopHalfCommand(matchID string, half int) Command {
	return Command{Type: CmdStopHalf, MatchID: matchID, Args: half}
}

func NewEndMatchCommand(matchID string) Command {
	return Command{Type: CmdEndMatch, MatchID: matchID}
}

func NewChangeScoreCommand(matchID string, req core.ScoreRequest) Command {
	return Command{Type: CmdChangeScore, MatchID: matchID, Args: req}
}

func NewUpdateDateCommand(matchID string, req core.DateRequest) Command {
	return Command{Type: CmdUpdateDate, MatchID: matchID, Args: req}
}

func NewListGoalsCommand(matchID string) Command {
	return Command{Type: CmdListGoals, MatchID: matchID}
}

func NewRecordGoalCommand(matchID string, req core.GoalRequest) Command {
	return Command{Type: CmdRecordGoal, MatchID: matchID, Args: req}
}

func NewRemoveGoalCommand(matchID, goalID string, req core.RemoveGoalRequest) Command {
	return Command{Type: CmdRemoveGoal, MatchID: matchID, TargetID: goalID, Args: req}
}

func NewRequestRemovalCommand(matchID string, req core.RemovalRequest) Command {
	return Command{Type: CmdRequestRemoval, MatchID: matchID, Args: req}
}

func NewSaveTeamCommand(req roster.TeamInput, who *identity.Identity) Command {
	return Command{Type: CmdSaveTeam, Identity: who, Args: req}
}

func NewListTeamsCommand() Command {
	return Command{Type: CmdListTeams}
}

func NewGetTeamCommand(teamID string) Command {
	return Command{Type: CmdGetTeam, TargetID: teamID}
}

func NewDeleteTeamCommand(teamID string) Command {
	return Command{Type: CmdDeleteTeam, TargetID: teamID}
}

func NewSetBadgesCommand(teamID string, req roster.BadgeInput) Command {
	return Command{Type: CmdSetBadges, TargetID: teamID, Args: req}
}

func NewListPlayersCommand(teamID string, activeOnly bool) Command {
	return Command{Type: CmdListPlayers, TargetID: teamID, Args: activeOnly}
}

func NewAddPlayerCommand(teamID string, req roster.PlayerInput) Command {
	return Command{Type: CmdAddPlayer, TargetID: teamID, Args: PlayerArgs{TeamID: teamID, Input: req}}
}

func NewUpdatePlayerCommand(playerID string, req roster.PlayerInput) Command {
	return Command{Type: CmdUpdatePlayer, TargetID: playerID, Args: PlayerArgs{Input: req}}
}

func NewToggleAbsentCommand(playerID string) Command {
	return Command{Type: CmdToggleAbsent, TargetID: playerID}
}

func NewDeletePlayerCommand(playerID string) Command {
	return Command{Type: CmdDeletePlayer, TargetID: playerID}
}

func NewGetCoachCommand(teamID string) Command {
	return Command{Type: CmdGetCoach, TargetID: teamID}
}

func NewSaveCoachCommand(teamID string, req roster.CoachInput) Command {
	return Command{Type: CmdSaveCoach, TargetID: teamID, Args: req}
}

func NewDeleteCoachCommand(teamID string) Command {
	return Command{Type: CmdDeleteCoach, TargetID: teamID}
}

func NewListChampionshipsCommand() Command {
	return Command{Type: CmdListChampionships}
}

func NewSaveChampionshipCommand(req core.ChampionshipRequest, who *identity.Identity) Command {
	return Command{Type: CmdSaveChampionship, Identity: who, Args: req}
}

func NewDeleteChampionshipCommand(key string) Command {
	return Command{Type: CmdDeleteChampionship, TargetID: key}
}

func NewGetDefaultTeamCommand() Command {
	return Command{Type: CmdGetDefaultTeam}
}

func NewSetDefaultTeamCommand(req core.DefaultTeamRequest) Command {
	return Command{Type: CmdSetDefaultTeam, Args: req}
}
