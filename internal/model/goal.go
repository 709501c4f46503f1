package model

import (
	"sort"
	"strconv"
	"strings"
)

// Goal is the record stored at goals/{id}
type Goal struct {
	ID           string  `json:"-"`
	MatchID      string  `json:"matchId" validate:"required"`
	TeamID       *string `json:"teamId"`
	PlayerID     *string `json:"playerId"`
	IsOwnGoal    bool    `json:"isOwnGoal"`
	Half         int     `json:"half" validate:"oneof=0 1 2"`
	MatchTime    string  `json:"matchTime"`
	Timestamp    int64   `json:"timestamp"`
	CreatedAt    int64   `json:"createdAt"`
	PlayerNumber *int    `json:"playerNumber,omitempty"`
	IsGoalkeeper *bool   `json:"isGoalkeeper,omitempty"`
}

// SortGoalsForDisplay orders goals by half, then by match time. Clock labels
// of the same shape compare by value, so "100:00" follows "99:59".
func SortGoalsForDisplay(goals []Goal) {
	sort.SliceStable(goals, func(i, j int) bool {
		if goals[i].Half != goals[j].Half {
			return goals[i].Half < goals[j].Half
		}
		a, aParts, aOK := clockSeconds(goals[i].MatchTime)
		b, bParts, bOK := clockSeconds(goals[j].MatchTime)
		if aOK && bOK && aParts == bParts {
			return a < b
		}
		return goals[i].MatchTime < goals[j].MatchTime
	})
}

// clockSeconds parses MM:SS or HH:MM:SS, returning the seconds and the field count
func clockSeconds(label string) (int, int, bool) {
	fields := strings.Split(label, ":")
	if len(fields) < 2 || len(fields) > 3 {
		return 0, 0, false
	}
	total := 0
	for _, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil || n < 0 {
			return 0, 0, false
		}
		total = total*60 + n
	}
	return total, len(fields), true
}

// SortGoalsNewestFirst orders goals by descending timestamp
func SortGoalsNewestFirst(goals []Goal) {
	sort.SliceStable(goals, func(i, j int) bool {
		return goals[i].Timestamp > goals[j].Timestamp
	})
}
