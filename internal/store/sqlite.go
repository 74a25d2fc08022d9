package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/dcswatch/servertrack/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS servers (
	id                TEXT PRIMARY KEY,
	fingerprint       TEXT NOT NULL,
	server_name       TEXT NOT NULL,
	ip_address        TEXT NOT NULL,
	port              INTEGER NOT NULL,
	players_current   INTEGER,
	players_max       INTEGER,
	password_required BOOLEAN,
	game_version      TEXT,
	mission           TEXT,
	mission_time_secs INTEGER,
	description       TEXT,
	terrain           TEXT,
	era               TEXT,
	game_mode         TEXT,
	framework         TEXT,
	language          TEXT,
	discord_url       TEXT,
	srs_address       TEXT,
	qq_group          TEXT,
	website_url       TEXT,
	tacview_address   TEXT,
	teamspeak_address TEXT,
	host_cluster_id   TEXT,
	first_seen        DATETIME NOT NULL,
	last_seen         DATETIME NOT NULL,
	last_enriched     DATETIME NOT NULL,
	UNIQUE (ip_address, port)
);

CREATE INDEX IF NOT EXISTS idx_servers_last_seen ON servers(last_seen);
CREATE INDEX IF NOT EXISTS idx_servers_ip_address ON servers(ip_address);
CREATE INDEX IF NOT EXISTS idx_servers_server_name ON servers(server_name);

CREATE TABLE IF NOT EXISTS server_snapshots (
	id                TEXT PRIMARY KEY,
	server_id         TEXT NOT NULL REFERENCES servers(id),
	captured_at       DATETIME NOT NULL,
	server_name       TEXT NOT NULL,
	players_current   INTEGER,
	players_max       INTEGER,
	mission           TEXT,
	mission_time_secs INTEGER,
	game_version      TEXT,
	is_online         BOOLEAN NOT NULL DEFAULT 1,
	content_hash      TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_snapshots_server_id ON server_snapshots(server_id);
CREATE INDEX IF NOT EXISTS idx_snapshots_captured_at ON server_snapshots(captured_at);

CREATE TABLE IF NOT EXISTS server_lineage (
	id                 TEXT PRIMARY KEY,
	current_server_id  TEXT NOT NULL REFERENCES servers(id),
	previous_server_id TEXT NOT NULL REFERENCES servers(id),
	match_type         TEXT NOT NULL,
	similarity_score   REAL NOT NULL,
	status             TEXT NOT NULL,
	created_at         DATETIME NOT NULL,
	UNIQUE (current_server_id, previous_server_id)
);

CREATE INDEX IF NOT EXISTS idx_lineage_status ON server_lineage(status);

CREATE TABLE IF NOT EXISTS host_clusters (
	id           TEXT PRIMARY KEY,
	ip_address   TEXT NOT NULL UNIQUE,
	server_count INTEGER NOT NULL,
	first_seen   DATETIME NOT NULL,
	last_seen    DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS ecosystem_stats (
	stat_date            TEXT PRIMARY KEY,
	captured_at          DATETIME NOT NULL,
	total_servers        INTEGER NOT NULL,
	active_servers       INTEGER NOT NULL,
	total_players        INTEGER NOT NULL,
	solo_sessions        INTEGER NOT NULL,
	multiplayer_sessions INTEGER NOT NULL,
	unique_hosts         INTEGER NOT NULL,
	discord_linked       INTEGER NOT NULL,
	srs_enabled          INTEGER NOT NULL,
	password_protected   INTEGER NOT NULL,
	framework_counts     TEXT NOT NULL DEFAULT '{}',
	terrain_counts       TEXT NOT NULL DEFAULT '{}'
);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// RunCycle wraps one ingestion cycle in a transaction. SQLite allows a
// single writer, so the whole cycle also serializes against concurrent
// cycles at the storage layer.
func (s *SQLiteStore) RunCycle(ctx context.Context, fn func(Cycle) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin cycle")
	}
	defer tx.Rollback() //nolint:errcheck

	if err := fn(&sqliteCycle{tx: tx}); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit cycle")
}

// sqliteCycle implements Cycle over one database/sql transaction.
type sqliteCycle struct {
	tx *sql.Tx
}

const sqliteUpsertServer = `
INSERT INTO servers (
	id, fingerprint, server_name, ip_address, port,
	players_current, players_max, password_required,
	game_version, mission, mission_time_secs, description,
	terrain, era, game_mode, framework, language,
	discord_url, srs_address, qq_group, website_url,
	tacview_address, teamspeak_address,
	first_seen, last_seen, last_enriched
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (ip_address, port) DO UPDATE SET
	fingerprint       = excluded.fingerprint,
	server_name       = excluded.server_name,
	players_current   = excluded.players_current,
	players_max       = excluded.players_max,
	password_required = excluded.password_required,
	game_version      = excluded.game_version,
	mission           = excluded.mission,
	mission_time_secs = excluded.mission_time_secs,
	description       = excluded.description,
	terrain           = COALESCE(excluded.terrain, terrain),
	era               = COALESCE(excluded.era, era),
	game_mode         = COALESCE(excluded.game_mode, game_mode),
	framework         = COALESCE(excluded.framework, framework),
	language          = COALESCE(excluded.language, language),
	discord_url       = COALESCE(excluded.discord_url, discord_url),
	srs_address       = COALESCE(excluded.srs_address, srs_address),
	qq_group          = COALESCE(excluded.qq_group, qq_group),
	website_url       = COALESCE(excluded.website_url, website_url),
	tacview_address   = COALESCE(excluded.tacview_address, tacview_address),
	teamspeak_address = COALESCE(excluded.teamspeak_address, teamspeak_address),
	last_seen         = excluded.last_seen,
	last_enriched     = excluded.last_enriched
RETURNING id`

// UpsertServer applies one sighting as a single conflict-aware statement.
// SQLite has no xmax equivalent, so insert-vs-update is classified by a key
// lookup beforehand; the transaction holds the write lock, so the
// classification cannot race with the upsert itself.
func (c *sqliteCycle) UpsertServer(ctx context.Context, srv *model.Server) (string, bool, error) {
	if srv.ID == "" {
		srv.ID = uuid.New().String()
	}

	var existing string
	err := c.tx.QueryRowContext(ctx,
		`SELECT id FROM servers WHERE ip_address = ? AND port = ?`,
		srv.Host, srv.Port,
	).Scan(&existing)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return "", false, eris.Wrapf(err, "sqlite: lookup server %s:%d", srv.Host, srv.Port)
	}
	inserted := errors.Is(err, sql.ErrNoRows)

	e := srv.Enrichment
	var id string
	err = c.tx.QueryRowContext(ctx, sqliteUpsertServer,
		srv.ID, srv.Fingerprint, srv.Name, srv.Host, srv.Port,
		srv.PlayersCurrent, srv.PlayersMax, srv.PasswordRequired,
		srv.GameVersion, srv.Mission, srv.MissionTimeSecs, srv.Description,
		e.Terrain, e.Era, e.GameMode, e.Framework, e.Language,
		e.DiscordURL, e.SRSAddress, e.QQGroup, e.WebsiteURL,
		e.TacviewAddress, e.TeamspeakAddress,
		srv.FirstSeen, srv.LastSeen, srv.LastEnriched,
	).Scan(&id)
	if err != nil {
		return "", false, eris.Wrapf(err, "sqlite: upsert server %s:%d", srv.Host, srv.Port)
	}
	return id, inserted, nil
}

func (c *sqliteCycle) InsertSnapshot(ctx context.Context, snap model.Snapshot) error {
	if snap.ID == "" {
		snap.ID = uuid.New().String()
	}
	_, err := c.tx.ExecContext(ctx,
		`INSERT INTO server_snapshots (
			id, server_id, captured_at, server_name, players_current, players_max,
			mission, mission_time_secs, game_version, is_online, content_hash
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		snap.ID, snap.ServerID, snap.CapturedAt, snap.Name, snap.PlayersCurrent, snap.PlayersMax,
		snap.Mission, snap.MissionTimeSecs, snap.GameVersion, snap.IsOnline, snap.ContentHash,
	)
	return eris.Wrapf(err, "sqlite: insert snapshot for %s", snap.ServerID)
}

func (c *sqliteCycle) StaleCandidates(ctx context.Context, currentID string, before time.Time) ([]Candidate, error) {
	rows, err := c.tx.QueryContext(ctx,
		`SELECT id, server_name FROM servers WHERE id != ? AND last_seen < ?`,
		currentID, before,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: stale candidates")
	}
	defer rows.Close()

	var out []Candidate
	for rows.Next() {
		var cand Candidate
		if err := rows.Scan(&cand.ID, &cand.Name); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan candidate")
		}
		out = append(out, cand)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: stale candidates iterate")
}

func (c *sqliteCycle) LineageExists(ctx context.Context, currentID, previousID string) (bool, error) {
	var one int
	err := c.tx.QueryRowContext(ctx,
		`SELECT 1 FROM server_lineage WHERE current_server_id = ? AND previous_server_id = ?`,
		currentID, previousID,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, eris.Wrap(err, "sqlite: lineage exists")
	}
	return true, nil
}

func (c *sqliteCycle) InsertLineage(ctx context.Context, lin model.Lineage) error {
	if lin.ID == "" {
		lin.ID = uuid.New().String()
	}
	_, err := c.tx.ExecContext(ctx,
		`INSERT INTO server_lineage (id, current_server_id, previous_server_id, match_type, similarity_score, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		lin.ID, lin.CurrentServerID, lin.PreviousServerID,
		string(lin.MatchType), lin.SimilarityScore, string(lin.Status), lin.CreatedAt,
	)
	return eris.Wrapf(err, "sqlite: insert lineage %s -> %s", lin.CurrentServerID, lin.PreviousServerID)
}

// RefreshHostClusters regroups by address; see the Postgres counterpart for
// the pruning rule.
func (c *sqliteCycle) RefreshHostClusters(ctx context.Context, now time.Time) (int, error) {
	_, err := c.tx.ExecContext(ctx,
		`INSERT INTO host_clusters (id, ip_address, server_count, first_seen, last_seen)
		 SELECT lower(hex(randomblob(16))), ip_address, COUNT(*), MIN(first_seen), MAX(last_seen)
		 FROM servers
		 GROUP BY ip_address
		 HAVING COUNT(*) > 1
		 ON CONFLICT (ip_address) DO UPDATE SET
			server_count = excluded.server_count,
			last_seen = excluded.last_seen`,
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: upsert host clusters")
	}

	_, err = c.tx.ExecContext(ctx,
		`DELETE FROM host_clusters
		 WHERE (SELECT COUNT(*) FROM servers s WHERE s.ip_address = host_clusters.ip_address) <= 1`,
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prune host clusters")
	}

	_, err = c.tx.ExecContext(ctx,
		`UPDATE servers SET host_cluster_id =
			(SELECT id FROM host_clusters hc WHERE hc.ip_address = servers.ip_address)`,
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: backfill cluster refs")
	}

	var count int
	err = c.tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM host_clusters`).Scan(&count)
	return count, eris.Wrap(err, "sqlite: count host clusters")
}

const sqliteUpsertStats = `
INSERT INTO ecosystem_stats (
	stat_date, captured_at,
	total_servers, active_servers, total_players,
	solo_sessions, multiplayer_sessions,
	unique_hosts, discord_linked, srs_enabled, password_protected,
	framework_counts, terrain_counts
)
SELECT
	?, ?,
	COUNT(*),
	COUNT(*) FILTER (WHERE players_current > 0),
	COALESCE(SUM(players_current), 0),
	COUNT(*) FILTER (WHERE players_current = 1),
	COUNT(*) FILTER (WHERE players_current > 1),
	COUNT(DISTINCT ip_address),
	COUNT(*) FILTER (WHERE discord_url IS NOT NULL),
	COUNT(*) FILTER (WHERE srs_address IS NOT NULL),
	COUNT(*) FILTER (WHERE password_required),
	(SELECT COALESCE(json_group_object(framework, cnt), '{}') FROM (
		SELECT framework, COUNT(*) AS cnt FROM servers
		WHERE framework IS NOT NULL GROUP BY framework
	)),
	(SELECT COALESCE(json_group_object(terrain, cnt), '{}') FROM (
		SELECT terrain, COUNT(*) AS cnt FROM servers
		WHERE terrain IS NOT NULL GROUP BY terrain
	))
FROM servers
WHERE true
ON CONFLICT (stat_date) DO UPDATE SET
	captured_at          = excluded.captured_at,
	total_servers        = excluded.total_servers,
	active_servers       = excluded.active_servers,
	total_players        = excluded.total_players,
	solo_sessions        = excluded.solo_sessions,
	multiplayer_sessions = excluded.multiplayer_sessions,
	unique_hosts         = excluded.unique_hosts,
	discord_linked       = excluded.discord_linked,
	srs_enabled          = excluded.srs_enabled,
	password_protected   = excluded.password_protected,
	framework_counts     = excluded.framework_counts,
	terrain_counts       = excluded.terrain_counts`

func (c *sqliteCycle) UpsertEcosystemStats(ctx context.Context, now time.Time) error {
	_, err := c.tx.ExecContext(ctx, sqliteUpsertStats, now.UTC().Format("2006-01-02"), now.UTC())
	return eris.Wrap(err, "sqlite: upsert ecosystem stats")
}

func (s *SQLiteStore) ListPendingLineage(ctx context.Context, limit int) ([]model.Lineage, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, current_server_id, previous_server_id, match_type, similarity_score, status, created_at
		 FROM server_lineage WHERE status = ? ORDER BY created_at ASC LIMIT ?`,
		string(model.LineageStatusPendingReview), limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list pending lineage")
	}
	defer rows.Close()

	var out []model.Lineage
	for rows.Next() {
		var l model.Lineage
		if err := rows.Scan(&l.ID, &l.CurrentServerID, &l.PreviousServerID,
			&l.MatchType, &l.SimilarityScore, &l.Status, &l.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan lineage")
		}
		out = append(out, l)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list pending lineage iterate")
}

func (s *SQLiteStore) ReviewLineage(ctx context.Context, id string, status model.LineageStatus) error {
	if status != model.LineageStatusConfirmed && status != model.LineageStatusRejected {
		return eris.Errorf("invalid review status: %s", status)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE server_lineage SET status = ? WHERE id = ? AND status = ?`,
		string(status), id, string(model.LineageStatusPendingReview),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: review lineage %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Errorf("lineage %s not found or not pending review", id)
	}
	return nil
}

func (s *SQLiteStore) StatsForDate(ctx context.Context, date string) (*model.EcosystemStat, error) {
	var st model.EcosystemStat
	var frameworkJSON, terrainJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT stat_date, captured_at, total_servers, active_servers, total_players,
		        solo_sessions, multiplayer_sessions, unique_hosts,
		        discord_linked, srs_enabled, password_protected,
		        framework_counts, terrain_counts
		 FROM ecosystem_stats WHERE stat_date = ?`,
		date,
	).Scan(&st.StatDate, &st.CapturedAt, &st.TotalServers, &st.ActiveServers, &st.TotalPlayers,
		&st.SoloSessions, &st.MultiplayerSessions, &st.UniqueHosts,
		&st.DiscordLinked, &st.SRSEnabled, &st.PasswordProtected,
		&frameworkJSON, &terrainJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: stats for %s", date)
	}
	if err := json.Unmarshal([]byte(frameworkJSON), &st.FrameworkCounts); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal framework counts")
	}
	if err := json.Unmarshal([]byte(terrainJSON), &st.TerrainCounts); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal terrain counts")
	}
	return &st, nil
}
