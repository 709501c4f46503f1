// Package model holds the typed records stored under the scoreboard paths
// and their decoding at the store boundary.
package model

import (
	"fmt"
	"strings"
	"time"
)

// Status is the stored lifecycle state of a match
type Status string

const (
	StatusWaiting    Status = "waiting"
	StatusScheduled  Status = "scheduled"
	StatusPlaying    Status = "playing"
	StatusHalf1Ended Status = "half1_ended"
	StatusHalf2Ended Status = "half2_ended"
	StatusEnded      Status = "ended"
)

// Upcoming reports whether the status sorts into the dashboard's first tier
func (s Status) Upcoming() bool {
	switch s {
	case StatusScheduled, StatusWaiting, StatusPlaying, StatusHalf1Ended:
		return true
	}
	return false
}

// Played reports whether the status sorts into the dashboard's second tier
func (s Status) Played() bool {
	return s == StatusHalf2Ended || s == StatusEnded
}

// HalfEnded returns the status stored when half n is stopped
func HalfEnded(n int) Status {
	return Status(fmt.Sprintf("half%d_ended", n))
}

// Text returns the operator-facing label for a status
func (s Status) Text() string {
	switch s {
	case StatusScheduled:
		return "Scheduled"
	case StatusWaiting:
		return "Ready to start"
	case StatusPlaying:
		return "Live"
	case StatusHalf1Ended:
		return "Half-time"
	case StatusHalf2Ended:
		return "Second half over"
	case StatusEnded:
		return "Full time"
	default:
		return string(s)
	}
}

// Side identifies which score field a team occupies
type Side int

const (
	Side1 Side = 1
	Side2 Side = 2
)

func (s Side) Valid() bool { return s == Side1 || s == Side2 }

// ScoreField is the match field holding this side's score
func (s Side) ScoreField() string {
	return fmt.Sprintf("score%d", int(s))
}

// ParseSide accepts "1" or "2"
func ParseSide(v string) (Side, error) {
	switch strings.TrimSpace(v) {
	case "1":
		return Side1, nil
	case "2":
		return Side2, nil
	}
	return 0, fmt.Errorf("%w: side must be 1 or 2, got %q", ErrValidation, v)
}

// Match is the record stored at matches/{id}
type Match struct {
	ID                string  `json:"-"`
	Team1Name         string  `json:"team1Name" validate:"required"`
	Team2Name         string  `json:"team2Name" validate:"required"`
	Team1Color        string  `json:"team1Color"`
	Team2Color        string  `json:"team2Color"`
	Team1Logo         string  `json:"team1Logo"`
	Team2Logo         string  `json:"team2Logo"`
	Score1            int     `json:"score1" validate:"min=0"`
	Score2            int     `json:"score2" validate:"min=0"`
	Status            Status  `json:"status" validate:"oneof=waiting scheduled playing half1_ended half2_ended ended"`
	CurrentHalf       int     `json:"currentHalf" validate:"oneof=0 1 2"`
	StartTime         int64   `json:"startTime" validate:"min=0"`
	Time              string  `json:"time"`
	ScheduledTime     *int64  `json:"scheduledTime"`
	MatchDate         *string `json:"matchDate"`
	ChampionshipTitle string  `json:"championshipTitle,omitempty"`
	CreatedBy         string  `json:"createdBy"`
	CreatedByEmail    string  `json:"createdByEmail"`
	CreatedAt         int64   `json:"createdAt"`
	MatchStartedAt    *int64  `json:"matchStartedAt"`
}

// Score returns the score held by side
func (m Match) Score(side Side) int {
	if side == Side2 {
		return m.Score2
	}
	return m.Score1
}

// SetScore assigns the score held by side
func (m *Match) SetScore(side Side, v int) {
	if side == Side2 {
		m.Score2 = v
		return
	}
	m.Score1 = v
}

// TeamName returns the team name on side
func (m Match) TeamName(side Side) string {
	if side == Side2 {
		return m.Team2Name
	}
	return m.Team1Name
}

// Millis converts t to epoch milliseconds
func Millis(t time.Time) int64 {
	return t.UnixMilli()
}

// FromMillis converts epoch milliseconds to a time in loc
func FromMillis(ms int64, loc *time.Location) time.Time {
	return time.UnixMilli(ms).In(loc)
}
