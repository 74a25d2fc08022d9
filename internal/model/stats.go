package model

import "time"

// EcosystemStat is the population-wide aggregate for one calendar date.
// StatDate is YYYY-MM-DD in UTC; re-running a cycle on the same date
// overwrites the row.
type EcosystemStat struct {
	StatDate            string         `json:"stat_date"`
	CapturedAt          time.Time      `json:"captured_at"`
	TotalServers        int            `json:"total_servers"`
	ActiveServers       int            `json:"active_servers"`
	TotalPlayers        int            `json:"total_players"`
	SoloSessions        int            `json:"solo_sessions"`
	MultiplayerSessions int            `json:"multiplayer_sessions"`
	UniqueHosts         int            `json:"unique_hosts"`
	DiscordLinked       int            `json:"discord_linked"`
	SRSEnabled          int            `json:"srs_enabled"`
	PasswordProtected   int            `json:"password_protected"`
	FrameworkCounts     map[string]int `json:"framework_counts"`
	TerrainCounts       map[string]int `json:"terrain_counts"`
}
