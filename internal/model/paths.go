package model

// Store collections
const (
	CollectionMatches       = "matches"
	CollectionGoals         = "goals"
	CollectionTeams         = "teams"
	CollectionPlayers       = "players"
	CollectionCoaches       = "coaches"
	CollectionChampionships = "championships"
	CollectionSettings      = "settings"

	SettingDefaultTeam = "defaultTeam"
)
