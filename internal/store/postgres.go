package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/dcswatch/servertrack/internal/db"
	"github.com/dcswatch/servertrack/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS servers (
	id                TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
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
	first_seen        TIMESTAMPTZ NOT NULL,
	last_seen         TIMESTAMPTZ NOT NULL,
	last_enriched     TIMESTAMPTZ NOT NULL,
	UNIQUE (ip_address, port)
);

CREATE INDEX IF NOT EXISTS idx_servers_last_seen ON servers(last_seen);
CREATE INDEX IF NOT EXISTS idx_servers_ip_address ON servers(ip_address);
CREATE INDEX IF NOT EXISTS idx_servers_server_name ON servers(server_name);

CREATE TABLE IF NOT EXISTS server_snapshots (
	id                TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	server_id         TEXT NOT NULL REFERENCES servers(id),
	captured_at       TIMESTAMPTZ NOT NULL,
	server_name       TEXT NOT NULL,
	players_current   INTEGER,
	players_max       INTEGER,
	mission           TEXT,
	mission_time_secs INTEGER,
	game_version      TEXT,
	is_online         BOOLEAN NOT NULL DEFAULT true,
	content_hash      TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_snapshots_server_id ON server_snapshots(server_id);
CREATE INDEX IF NOT EXISTS idx_snapshots_captured_at ON server_snapshots(captured_at);

CREATE TABLE IF NOT EXISTS server_lineage (
	id                 TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	current_server_id  TEXT NOT NULL REFERENCES servers(id),
	previous_server_id TEXT NOT NULL REFERENCES servers(id),
	match_type         TEXT NOT NULL,
	similarity_score   DOUBLE PRECISION NOT NULL,
	status             TEXT NOT NULL,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (current_server_id, previous_server_id)
);

CREATE INDEX IF NOT EXISTS idx_lineage_status ON server_lineage(status);

CREATE TABLE IF NOT EXISTS host_clusters (
	id           TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	ip_address   TEXT NOT NULL UNIQUE,
	server_count INTEGER NOT NULL,
	first_seen   TIMESTAMPTZ NOT NULL,
	last_seen    TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS ecosystem_stats (
	stat_date            DATE PRIMARY KEY,
	captured_at          TIMESTAMPTZ NOT NULL,
	total_servers        INTEGER NOT NULL,
	active_servers       INTEGER NOT NULL,
	total_players        INTEGER NOT NULL,
	solo_sessions        INTEGER NOT NULL,
	multiplayer_sessions INTEGER NOT NULL,
	unique_hosts         INTEGER NOT NULL,
	discord_linked       INTEGER NOT NULL,
	srs_enabled          INTEGER NOT NULL,
	password_protected   INTEGER NOT NULL,
	framework_counts     JSONB NOT NULL DEFAULT '{}',
	terrain_counts       JSONB NOT NULL DEFAULT '{}'
);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// RunCycle wraps one ingestion cycle in a transaction. The returned Cycle is
// only valid until fn returns.
func (s *PostgresStore) RunCycle(ctx context.Context, fn func(Cycle) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin cycle")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := fn(&pgCycle{tx: tx}); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit cycle")
}

// pgCycle implements Cycle over one pgx transaction.
type pgCycle struct {
	tx pgx.Tx
}

const pgUpsertServer = `
INSERT INTO servers (
	id, fingerprint, server_name, ip_address, port,
	players_current, players_max, password_required,
	game_version, mission, mission_time_secs, description,
	terrain, era, game_mode, framework, language,
	discord_url, srs_address, qq_group, website_url,
	tacview_address, teamspeak_address,
	first_seen, last_seen, last_enriched
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
	$14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26
)
ON CONFLICT (ip_address, port) DO UPDATE SET
	fingerprint       = EXCLUDED.fingerprint,
	server_name       = EXCLUDED.server_name,
	players_current   = EXCLUDED.players_current,
	players_max       = EXCLUDED.players_max,
	password_required = EXCLUDED.password_required,
	game_version      = EXCLUDED.game_version,
	mission           = EXCLUDED.mission,
	mission_time_secs = EXCLUDED.mission_time_secs,
	description       = EXCLUDED.description,
	terrain           = COALESCE(EXCLUDED.terrain, servers.terrain),
	era               = COALESCE(EXCLUDED.era, servers.era),
	game_mode         = COALESCE(EXCLUDED.game_mode, servers.game_mode),
	framework         = COALESCE(EXCLUDED.framework, servers.framework),
	language          = COALESCE(EXCLUDED.language, servers.language),
	discord_url       = COALESCE(EXCLUDED.discord_url, servers.discord_url),
	srs_address       = COALESCE(EXCLUDED.srs_address, servers.srs_address),
	qq_group          = COALESCE(EXCLUDED.qq_group, servers.qq_group),
	website_url       = COALESCE(EXCLUDED.website_url, servers.website_url),
	tacview_address   = COALESCE(EXCLUDED.tacview_address, servers.tacview_address),
	teamspeak_address = COALESCE(EXCLUDED.teamspeak_address, servers.teamspeak_address),
	last_seen         = EXCLUDED.last_seen,
	last_enriched     = EXCLUDED.last_enriched
RETURNING id, (xmax = 0) AS inserted`

// UpsertServer applies one sighting as a single conflict-aware statement.
// xmax = 0 distinguishes a genuine insert from a conflict-path update.
func (c *pgCycle) UpsertServer(ctx context.Context, srv *model.Server) (string, bool, error) {
	if srv.ID == "" {
		srv.ID = uuid.New().String()
	}
	e := srv.Enrichment

	var id string
	var inserted bool
	err := c.tx.QueryRow(ctx, pgUpsertServer,
		srv.ID, srv.Fingerprint, srv.Name, srv.Host, srv.Port,
		srv.PlayersCurrent, srv.PlayersMax, srv.PasswordRequired,
		srv.GameVersion, srv.Mission, srv.MissionTimeSecs, srv.Description,
		e.Terrain, e.Era, e.GameMode, e.Framework, e.Language,
		e.DiscordURL, e.SRSAddress, e.QQGroup, e.WebsiteURL,
		e.TacviewAddress, e.TeamspeakAddress,
		srv.FirstSeen, srv.LastSeen, srv.LastEnriched,
	).Scan(&id, &inserted)
	if err != nil {
		return "", false, eris.Wrapf(err, "postgres: upsert server %s:%d", srv.Host, srv.Port)
	}
	return id, inserted, nil
}

func (c *pgCycle) InsertSnapshot(ctx context.Context, snap model.Snapshot) error {
	if snap.ID == "" {
		snap.ID = uuid.New().String()
	}
	_, err := c.tx.Exec(ctx,
		`INSERT INTO server_snapshots (
			id, server_id, captured_at, server_name, players_current, players_max,
			mission, mission_time_secs, game_version, is_online, content_hash
		 ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		snap.ID, snap.ServerID, snap.CapturedAt, snap.Name, snap.PlayersCurrent, snap.PlayersMax,
		snap.Mission, snap.MissionTimeSecs, snap.GameVersion, snap.IsOnline, snap.ContentHash,
	)
	return eris.Wrapf(err, "postgres: insert snapshot for %s", snap.ServerID)
}

func (c *pgCycle) StaleCandidates(ctx context.Context, currentID string, before time.Time) ([]Candidate, error) {
	rows, err := c.tx.Query(ctx,
		`SELECT id, server_name FROM servers WHERE id != $1 AND last_seen < $2`,
		currentID, before,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: stale candidates")
	}
	defer rows.Close()

	var out []Candidate
	for rows.Next() {
		var cand Candidate
		if err := rows.Scan(&cand.ID, &cand.Name); err != nil {
			return nil, eris.Wrap(err, "postgres: scan candidate")
		}
		out = append(out, cand)
	}
	return out, eris.Wrap(rows.Err(), "postgres: stale candidates iterate")
}

func (c *pgCycle) LineageExists(ctx context.Context, currentID, previousID string) (bool, error) {
	var one int
	err := c.tx.QueryRow(ctx,
		`SELECT 1 FROM server_lineage WHERE current_server_id = $1 AND previous_server_id = $2`,
		currentID, previousID,
	).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, eris.Wrap(err, "postgres: lineage exists")
	}
	return true, nil
}

func (c *pgCycle) InsertLineage(ctx context.Context, lin model.Lineage) error {
	if lin.ID == "" {
		lin.ID = uuid.New().String()
	}
	_, err := c.tx.Exec(ctx,
		`INSERT INTO server_lineage (id, current_server_id, previous_server_id, match_type, similarity_score, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		lin.ID, lin.CurrentServerID, lin.PreviousServerID,
		string(lin.MatchType), lin.SimilarityScore, string(lin.Status), lin.CreatedAt,
	)
	return eris.Wrapf(err, "postgres: insert lineage %s -> %s", lin.CurrentServerID, lin.PreviousServerID)
}

// RefreshHostClusters regroups by address. Clusters whose address dropped
// back to a single server are pruned rather than left dangling, so cluster
// existence always implies more than one member.
func (c *pgCycle) RefreshHostClusters(ctx context.Context, now time.Time) (int, error) {
	_, err := c.tx.Exec(ctx,
		`INSERT INTO host_clusters (ip_address, server_count, first_seen, last_seen)
		 SELECT ip_address, COUNT(*), MIN(first_seen), MAX(last_seen)
		 FROM servers
		 GROUP BY ip_address
		 HAVING COUNT(*) > 1
		 ON CONFLICT (ip_address) DO UPDATE SET
			server_count = EXCLUDED.server_count,
			last_seen = EXCLUDED.last_seen`,
	)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: upsert host clusters")
	}

	_, err = c.tx.Exec(ctx,
		`DELETE FROM host_clusters
		 WHERE (SELECT COUNT(*) FROM servers s WHERE s.ip_address = host_clusters.ip_address) <= 1`,
	)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: prune host clusters")
	}

	_, err = c.tx.Exec(ctx,
		`UPDATE servers SET host_cluster_id =
			(SELECT id FROM host_clusters hc WHERE hc.ip_address = servers.ip_address)`,
	)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: backfill cluster refs")
	}

	var count int
	err = c.tx.QueryRow(ctx, `SELECT COUNT(*) FROM host_clusters`).Scan(&count)
	return count, eris.Wrap(err, "postgres: count host clusters")
}

const pgUpsertStats = `
INSERT INTO ecosystem_stats (
	stat_date, captured_at,
	total_servers, active_servers, total_players,
	solo_sessions, multiplayer_sessions,
	unique_hosts, discord_linked, srs_enabled, password_protected,
	framework_counts, terrain_counts
)
SELECT
	$1, $2,
	COUNT(*),
	COUNT(*) FILTER (WHERE players_current > 0),
	COALESCE(SUM(players_current), 0),
	COUNT(*) FILTER (WHERE players_current = 1),
	COUNT(*) FILTER (WHERE players_current > 1),
	COUNT(DISTINCT ip_address),
	COUNT(*) FILTER (WHERE discord_url IS NOT NULL),
	COUNT(*) FILTER (WHERE srs_address IS NOT NULL),
	COUNT(*) FILTER (WHERE password_required),
	(SELECT COALESCE(jsonb_object_agg(framework, cnt), '{}'::jsonb) FROM (
		SELECT framework, COUNT(*) AS cnt FROM servers
		WHERE framework IS NOT NULL GROUP BY framework
	) f),
	(SELECT COALESCE(jsonb_object_agg(terrain, cnt), '{}'::jsonb) FROM (
		SELECT terrain, COUNT(*) AS cnt FROM servers
		WHERE terrain IS NOT NULL GROUP BY terrain
	) t)
FROM servers
ON CONFLICT (stat_date) DO UPDATE SET
	captured_at          = EXCLUDED.captured_at,
	total_servers        = EXCLUDED.total_servers,
	active_servers       = EXCLUDED.active_servers,
	total_players        = EXCLUDED.total_players,
	solo_sessions        = EXCLUDED.solo_sessions,
	multiplayer_sessions = EXCLUDED.multiplayer_sessions,
	unique_hosts         = EXCLUDED.unique_hosts,
	discord_linked       = EXCLUDED.discord_linked,
	srs_enabled          = EXCLUDED.srs_enabled,
	password_protected   = EXCLUDED.password_protected,
	framework_counts     = EXCLUDED.framework_counts,
	terrain_counts       = EXCLUDED.terrain_counts`

func (c *pgCycle) UpsertEcosystemStats(ctx context.Context, now time.Time) error {
	_, err := c.tx.Exec(ctx, pgUpsertStats, now.UTC().Format("2006-01-02"), now.UTC())
	return eris.Wrap(err, "postgres: upsert ecosystem stats")
}

func (s *PostgresStore) ListPendingLineage(ctx context.Context, limit int) ([]model.Lineage, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, current_server_id, previous_server_id, match_type, similarity_score, status, created_at
		 FROM server_lineage WHERE status = $1 ORDER BY created_at ASC LIMIT $2`,
		string(model.LineageStatusPendingReview), limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list pending lineage")
	}
	defer rows.Close()

	var out []model.Lineage
	for rows.Next() {
		var l model.Lineage
		if err := rows.Scan(&l.ID, &l.CurrentServerID, &l.PreviousServerID,
			&l.MatchType, &l.SimilarityScore, &l.Status, &l.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan lineage")
		}
		out = append(out, l)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list pending lineage iterate")
}

func (s *PostgresStore) ReviewLineage(ctx context.Context, id string, status model.LineageStatus) error {
	if status != model.LineageStatusConfirmed && status != model.LineageStatusRejected {
		return eris.Errorf("invalid review status: %s", status)
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE server_lineage SET status = $1 WHERE id = $2 AND status = $3`,
		string(status), id, string(model.LineageStatusPendingReview),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: review lineage %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("lineage %s not found or not pending review", id)
	}
	return nil
}

func (s *PostgresStore) StatsForDate(ctx context.Context, date string) (*model.EcosystemStat, error) {
	var st model.EcosystemStat
	var frameworkJSON, terrainJSON []byte
	err := s.pool.QueryRow(ctx,
		`SELECT stat_date::text, captured_at, total_servers, active_servers, total_players,
		        solo_sessions, multiplayer_sessions, unique_hosts,
		        discord_linked, srs_enabled, password_protected,
		        framework_counts, terrain_counts
		 FROM ecosystem_stats WHERE stat_date = $1`,
		date,
	).Scan(&st.StatDate, &st.CapturedAt, &st.TotalServers, &st.ActiveServers, &st.TotalPlayers,
		&st.SoloSessions, &st.MultiplayerSessions, &st.UniqueHosts,
		&st.DiscordLinked, &st.SRSEnabled, &st.PasswordProtected,
		&frameworkJSON, &terrainJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: stats for %s", date)
	}
	if err := json.Unmarshal(frameworkJSON, &st.FrameworkCounts); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal framework counts")
	}
	if err := json.Unmarshal(terrainJSON, &st.TerrainCounts); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal terrain counts")
	}
	return &st, nil
}
