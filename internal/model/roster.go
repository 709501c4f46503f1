package model

import (
	"sort"
	"strings"
)

const (
	DefaultTeam1Color = "#08399A"
	DefaultTeam2Color = "#4A90E2"
)

// Team is the record stored at teams/{id}
type Team struct {
	ID               string `json:"-"`
	Name             string `json:"name" validate:"required,max=100"`
	Color            string `json:"color,omitempty"`
	Logo             string `json:"logo,omitempty"`
	GoalkeeperBadge  string `json:"goalkeeperBadge,omitempty"`
	FieldPlayerBadge string `json:"fieldPlayerBadge,omitempty"`
	CreatedBy        string `json:"createdBy"`
	CreatedAt        int64  `json:"createdAt"`
	UpdatedAt        int64  `json:"updatedAt"`
}

// Player is the record stored at players/{id}
type Player struct {
	ID           string `json:"-"`
	TeamID       string `json:"teamId" validate:"required"`
	Number       int    `json:"number" validate:"min=0,max=99"`
	FirstName    string `json:"firstName" validate:"required"`
	LastName     string `json:"lastName" validate:"required"`
	IsGoalkeeper bool   `json:"isGoalkeeper"`
	IsAbsent     bool   `json:"isAbsent"`
	IsDeleted    bool   `json:"isDeleted,omitempty"`
	Photo        string `json:"photo,omitempty"`
	CreatedAt    int64  `json:"createdAt"`
	UpdatedAt    int64  `json:"updatedAt"`
}

// FullName joins first and last name
func (p Player) FullName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

// Active reports whether the player is available for goal attribution
func (p Player) Active() bool {
	return !p.IsAbsent && !p.IsDeleted
}

// SortPlayersByNumber orders players by shirt number
func SortPlayersByNumber(players []Player) {
	sort.SliceStable(players, func(i, j int) bool {
		return players[i].Number < players[j].Number
	})
}

// Coach is the record stored at coaches/{teamId}
type Coach struct {
	TeamID    string `json:"teamId" validate:"required"`
	Name      string `json:"name" validate:"required"`
	Photo     string `json:"photo,omitempty"`
	CreatedAt int64  `json:"createdAt"`
	UpdatedAt int64  `json:"updatedAt"`
}

// Championship is the record stored at championships/{key}
type Championship struct {
	Key       string `json:"-"`
	Title     string `json:"title" validate:"required"`
	CreatedBy string `json:"createdBy"`
	CreatedAt int64  `json:"createdAt"`
}

// ChampionshipKey derives a stable key from a championship title
func ChampionshipKey(title string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(title)) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}
