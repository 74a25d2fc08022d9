// Package model defines the domain types shared by the ingest pipeline and
// the stores.
package model

import "time"

// ServerRow is one scraped listing as it arrives in a batch. Optional fields
// are pointers so absent and zero-valued inputs stay distinguishable.
type ServerRow struct {
	Name             string  `json:"server_name"`
	Host             string  `json:"ip_address"`
	Port             int     `json:"port"`
	PlayersCurrent   *int    `json:"players_current,omitempty"`
	PlayersMax       *int    `json:"players_max,omitempty"`
	PasswordRequired *bool   `json:"password_required,omitempty"`
	GameVersion      *string `json:"game_version,omitempty"`
	Mission          *string `json:"mission,omitempty"`
	MissionTimeSecs  *int    `json:"mission_time_seconds,omitempty"`
	Description      *string `json:"description,omitempty"`
}

// Enrichment holds the derived classification tags and contact endpoints for
// a server. Every field is nullable; once set in the store a field only
// changes when a later sighting derives a non-null value.
type Enrichment struct {
	Terrain          *string `json:"terrain,omitempty"`
	Era              *string `json:"era,omitempty"`
	GameMode         *string `json:"game_mode,omitempty"`
	Framework        *string `json:"framework,omitempty"`
	Language         *string `json:"language,omitempty"`
	DiscordURL       *string `json:"discord_url,omitempty"`
	SRSAddress       *string `json:"srs_address,omitempty"`
	QQGroup          *string `json:"qq_group,omitempty"`
	WebsiteURL       *string `json:"website_url,omitempty"`
	TacviewAddress   *string `json:"tacview_address,omitempty"`
	TeamspeakAddress *string `json:"teamspeak_address,omitempty"`
}

// Server is one persisted server entity. Identity is the (Host, Port) pair;
// Fingerprint tracks name drift for diagnostics only.
type Server struct {
	ID          string `json:"id"`
	Fingerprint string `json:"fingerprint"`

	Name string `json:"server_name"`
	Host string `json:"ip_address"`
	Port int    `json:"port"`

	PlayersCurrent   *int    `json:"players_current,omitempty"`
	PlayersMax       *int    `json:"players_max,omitempty"`
	PasswordRequired *bool   `json:"password_required,omitempty"`
	GameVersion      *string `json:"game_version,omitempty"`
	Mission          *string `json:"mission,omitempty"`
	MissionTimeSecs  *int    `json:"mission_time_seconds,omitempty"`
	Description      *string `json:"description,omitempty"`

	Enrichment Enrichment `json:"enrichment"`

	HostClusterID *string `json:"host_cluster_id,omitempty"`

	FirstSeen    time.Time `json:"first_seen"`
	LastSeen     time.Time `json:"last_seen"`
	LastEnriched time.Time `json:"last_enriched"`
}

// Snapshot is one point-in-time capture of a server's operational state.
type Snapshot struct {
	ID              string    `json:"id"`
	ServerID        string    `json:"server_id"`
	CapturedAt      time.Time `json:"captured_at"`
	Name            string    `json:"server_name"`
	PlayersCurrent  *int      `json:"players_current,omitempty"`
	PlayersMax      *int      `json:"players_max,omitempty"`
	Mission         *string   `json:"mission,omitempty"`
	MissionTimeSecs *int      `json:"mission_time_seconds,omitempty"`
	GameVersion     *string   `json:"game_version,omitempty"`
	IsOnline        bool      `json:"is_online"`
	ContentHash     string    `json:"content_hash"`
}
