package core

import (
	"scoreboard/internal/ledger"
	"scoreboard/internal/model"
	"scoreboard/internal/store"
)

// Request types

type ScoreRequest struct {
	Side  int `json:"side" validate:"required,oneof=1 2"`
	Delta int `json:"delta" validate:"required,min=-99,max=99"`
}

type DateRequest struct {
	Date string `json:"date" validate:"required,len=10"`
}

type GoalRequest struct {
	PlayerID  string `json:"playerId" validate:"omitempty,max=128"`
	IsOwnGoal bool   `json:"isOwnGoal"`
}

type RemoveGoalRequest struct {
	Side int `json:"side" validate:"required,oneof=1 2"`
}

type RemovalRequest struct {
	Side int `json:"side" validate:"required,oneof=1 2"`
}

type CommitRequest struct {
	Mutations []store.Mutation `json:"mutations" validate:"required,min=1,max=200,dive"`
}

type ChampionshipRequest struct {
	Title string `json:"title" validate:"required,max=200"`
}

type DefaultTeamRequest struct {
	TeamID string `json:"teamId" validate:"max=128"`
}

// Response types

type ScoreResponse struct {
	MatchID string `json:"matchId"`
	Side    int    `json:"side"`
	Score   int    `json:"score"`
}

type GoalView struct {
	ID string `json:"id"`
	model.Goal
}

type GoalResponse struct {
	Goal  GoalView `json:"goal"`
	Score int      `json:"score"`
}

type GoalsResponse struct {
	MatchID string     `json:"matchId"`
	Goals   []GoalView `json:"goals"`
}

type RemovalResponse struct {
	Action     ledger.RemovalAction `json:"action"`
	Side       int                  `json:"side"`
	Score      int                  `json:"score"`
	Candidates []GoalView           `json:"candidates,omitempty"`
}

type TeamView struct {
	ID string `json:"id"`
	model.Team
}

type TeamResponse struct {
	Team    TeamView `json:"team"`
	Created bool     `json:"created"`
}

type PlayerView struct {
	ID string `json:"id"`
	model.Player
}

type ChampionshipView struct {
	Key string `json:"key"`
	model.Championship
}

type DefaultTeamResponse struct {
	TeamID string    `json:"teamId"`
	Team   *TeamView `json:"team,omitempty"`
}

func NewGoalView(g model.Goal) GoalView { return GoalView{ID: g.ID, Goal: g} }

func NewGoalViews(goals []model.Goal) []GoalView {
	out := make([]GoalView, 0, len(goals))
	for _, g := range goals {
		out = append(out, NewGoalView(g))
	}
	return out
}

func NewTeamView(t model.Team) TeamView { return TeamView{ID: t.ID, Team: t} }

func NewPlayerView(p model.Player) PlayerView { return PlayerView{ID: p.ID, Player: p} }

func NewChampionshipView(c model.Championship) ChampionshipView {
	return ChampionshipView{Key: c.Key, Championship: c}
}

// Store API payloads

type QueryResponse struct {
	Collection string        `json:"collection"`
	Field      string        `json:"field"`
	Children   []store.Child `json:"children"`
}

type PushResponse struct {
	Key  string     `json:"key"`
	Path store.Path `json:"path"`
}
