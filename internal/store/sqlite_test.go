package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dcswatch/servertrack/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func runCycle(t *testing.T, st *SQLiteStore, fn func(Cycle) error) {
	t.Helper()
	require.NoError(t, st.RunCycle(context.Background(), fn))
}

var testNow = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

func testServer(host string, port int, name string) *model.Server {
	return &model.Server{
		Fingerprint:  "fp-" + name,
		Name:         name,
		Host:         host,
		Port:         port,
		FirstSeen:    testNow,
		LastSeen:     testNow,
		LastEnriched: testNow,
	}
}

// --- Servers ---

func TestSQLite_UpsertServer_InsertThenUpdate(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	var firstID string
	runCycle(t, st, func(cy Cycle) error {
		id, inserted, err := cy.UpsertServer(ctx, testServer("1.2.3.4", 10308, "Alpha"))
		require.NoError(t, err)
		assert.True(t, inserted)
		firstID = id
		return nil
	})

	players := 12
	runCycle(t, st, func(cy Cycle) error {
		srv := testServer("1.2.3.4", 10308, "Alpha Renamed")
		srv.PlayersCurrent = &players
		srv.LastSeen = testNow.Add(time.Hour)
		id, inserted, err := cy.UpsertServer(ctx, srv)
		require.NoError(t, err)
		assert.False(t, inserted)
		assert.Equal(t, firstID, id)
		return nil
	})

	var name string
	var gotPlayers int
	err := st.db.QueryRow(`SELECT server_name, players_current FROM servers WHERE id = ?`, firstID).
		Scan(&name, &gotPlayers)
	require.NoError(t, err)
	assert.Equal(t, "Alpha Renamed", name)
	assert.Equal(t, 12, gotPlayers)

	var count int
	require.NoError(t, st.db.QueryRow(`SELECT COUNT(*) FROM servers`).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestSQLite_UpsertServer_DistinctPortsAreDistinctServers(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	runCycle(t, st, func(cy Cycle) error {
		_, ins1, err := cy.UpsertServer(ctx, testServer("1.2.3.4", 10308, "Alpha"))
		require.NoError(t, err)
		_, ins2, err := cy.UpsertServer(ctx, testServer("1.2.3.4", 10309, "Alpha"))
		require.NoError(t, err)
		assert.True(t, ins1)
		assert.True(t, ins2)
		return nil
	})

	var count int
	require.NoError(t, st.db.QueryRow(`SELECT COUNT(*) FROM servers`).Scan(&count))
	assert.Equal(t, 2, count)
}

func TestSQLite_UpsertServer_EnrichmentFillsIfNull(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	terrain := "caucasus"
	var id string
	runCycle(t, st, func(cy Cycle) error {
		srv := testServer("1.2.3.4", 10308, "Alpha")
		srv.Enrichment.Terrain = &terrain
		var err error
		id, _, err = cy.UpsertServer(ctx, srv)
		return err
	})

	// A later sighting deriving nothing must not blank earlier enrichment,
	// while newly derived axes fill in.
	era := "modern"
	runCycle(t, st, func(cy Cycle) error {
		srv := testServer("1.2.3.4", 10308, "Alpha")
		srv.Enrichment.Era = &era
		_, _, err := cy.UpsertServer(ctx, srv)
		return err
	})

	var gotTerrain, gotEra string
	require.NoError(t, st.db.QueryRow(
		`SELECT terrain, era FROM servers WHERE id = ?`, id).Scan(&gotTerrain, &gotEra))
	assert.Equal(t, "caucasus", gotTerrain)
	assert.Equal(t, "modern", gotEra)
}

func TestSQLite_RunCycle_RollsBackOnError(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	err := st.RunCycle(ctx, func(cy Cycle) error {
		_, _, err := cy.UpsertServer(ctx, testServer("1.2.3.4", 10308, "Alpha"))
		require.NoError(t, err)
		return eris.New("cycle failed midway")
	})
	require.Error(t, err)

	var count int
	require.NoError(t, st.db.QueryRow(`SELECT COUNT(*) FROM servers`).Scan(&count))
	assert.Equal(t, 0, count)
}

// --- Snapshots ---

func TestSQLite_InsertSnapshot(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	runCycle(t, st, func(cy Cycle) error {
		id, _, err := cy.UpsertServer(ctx, testServer("1.2.3.4", 10308, "Alpha"))
		require.NoError(t, err)

		players := 4
		return cy.InsertSnapshot(ctx, model.Snapshot{
			ServerID:       id,
			CapturedAt:     testNow,
			Name:           "Alpha",
			PlayersCurrent: &players,
			IsOnline:       true,
			ContentHash:    "abc123",
		})
	})

	var count int
	var hash string
	require.NoError(t, st.db.QueryRow(
		`SELECT COUNT(*), MAX(content_hash) FROM server_snapshots`).Scan(&count, &hash))
	assert.Equal(t, 1, count)
	assert.Equal(t, "abc123", hash)
}

// --- Stale candidates ---

func TestSQLite_StaleCandidates(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	var staleID, currentID string
	runCycle(t, st, func(cy Cycle) error {
		stale := testServer("1.1.1.1", 10308, "Old Guard")
		stale.LastSeen = testNow.Add(-48 * time.Hour)
		var err error
		staleID, _, err = cy.UpsertServer(ctx, stale)
		require.NoError(t, err)

		fresh := testServer("2.2.2.2", 10308, "Fresh")
		_, _, err = cy.UpsertServer(ctx, fresh)
		require.NoError(t, err)

		currentID, _, err = cy.UpsertServer(ctx, testServer("3.3.3.3", 10308, "Newcomer"))
		return err
	})

	runCycle(t, st, func(cy Cycle) error {
		cands, err := cy.StaleCandidates(ctx, currentID, testNow.Add(-24*time.Hour))
		require.NoError(t, err)
		require.Len(t, cands, 1)
		assert.Equal(t, staleID, cands[0].ID)
		assert.Equal(t, "Old Guard", cands[0].Name)
		return nil
	})

	// The current server never matches itself even when stale.
	runCycle(t, st, func(cy Cycle) error {
		cands, err := cy.StaleCandidates(ctx, staleID, testNow.Add(-24*time.Hour))
		require.NoError(t, err)
		assert.Empty(t, cands)
		return nil
	})
}

// --- Lineage ---

func TestSQLite_Lineage_InsertExistsAndDedup(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	var curID, prevID string
	runCycle(t, st, func(cy Cycle) error {
		var err error
		curID, _, err = cy.UpsertServer(ctx, testServer("1.1.1.1", 10308, "Alpha"))
		require.NoError(t, err)
		prevID, _, err = cy.UpsertServer(ctx, testServer("2.2.2.2", 10308, "Alpha Old"))
		return err
	})

	runCycle(t, st, func(cy Cycle) error {
		exists, err := cy.LineageExists(ctx, curID, prevID)
		require.NoError(t, err)
		assert.False(t, exists)

		require.NoError(t, cy.InsertLineage(ctx, model.Lineage{
			CurrentServerID:  curID,
			PreviousServerID: prevID,
			MatchType:        model.MatchTypeFuzzyName,
			SimilarityScore:  0.85,
			Status:           model.LineageStatusPendingReview,
			CreatedAt:        testNow,
		}))

		exists, err = cy.LineageExists(ctx, curID, prevID)
		require.NoError(t, err)
		assert.True(t, exists)
		return nil
	})

	// The (current, previous) pair is unique at the schema level too.
	err := st.RunCycle(ctx, func(cy Cycle) error {
		return cy.InsertLineage(ctx, model.Lineage{
			CurrentServerID:  curID,
			PreviousServerID: prevID,
			MatchType:        model.MatchTypeFuzzyName,
			SimilarityScore:  0.85,
			Status:           model.LineageStatusPendingReview,
			CreatedAt:        testNow,
		})
	})
	require.Error(t, err)
}

func TestSQLite_ReviewLineage_Transitions(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	var curID, prevID string
	runCycle(t, st, func(cy Cycle) error {
		var err error
		curID, _, err = cy.UpsertServer(ctx, testServer("1.1.1.1", 10308, "Alpha"))
		require.NoError(t, err)
		prevID, _, err = cy.UpsertServer(ctx, testServer("2.2.2.2", 10308, "Alpha Old"))
		require.NoError(t, err)
		return cy.InsertLineage(ctx, model.Lineage{
			CurrentServerID:  curID,
			PreviousServerID: prevID,
			MatchType:        model.MatchTypeFuzzyName,
			SimilarityScore:  0.85,
			Status:           model.LineageStatusPendingReview,
			CreatedAt:        testNow,
		})
	})

	edges, err := st.ListPendingLineage(ctx, 10)
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, curID, edges[0].CurrentServerID)
	assert.Equal(t, prevID, edges[0].PreviousServerID)
	assert.Equal(t, model.MatchTypeFuzzyName, edges[0].MatchType)
	assert.InDelta(t, 0.85, edges[0].SimilarityScore, 0.001)

	require.NoError(t, st.ReviewLineage(ctx, edges[0].ID, model.LineageStatusConfirmed))

	after, err := st.ListPendingLineage(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, after)

	// Confirmed edges are immutable.
	err = st.ReviewLineage(ctx, edges[0].ID, model.LineageStatusRejected)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not pending review")
}

func TestSQLite_ReviewLineage_InvalidStatus(t *testing.T) {
	st := newTestSQLiteStore(t)
	err := st.ReviewLineage(context.Background(), "some-id", model.LineageStatusPendingReview)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid review status")
}

func TestSQLite_ReviewLineage_UnknownID(t *testing.T) {
	st := newTestSQLiteStore(t)
	err := st.ReviewLineage(context.Background(), "missing", model.LineageStatusConfirmed)
	require.Error(t, err)
}

// --- Host clusters ---

func TestSQLite_RefreshHostClusters_GroupAndPrune(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	runCycle(t, st, func(cy Cycle) error {
		for _, port := range []int{10308, 10309, 10310} {
			if _, _, err := cy.UpsertServer(ctx, testServer("10.0.0.1", port, "Shared Host")); err != nil {
				return err
			}
		}
		_, _, err := cy.UpsertServer(ctx, testServer("10.0.0.2", 10308, "Loner"))
		return err
	})

	runCycle(t, st, func(cy Cycle) error {
		count, err := cy.RefreshHostClusters(ctx, testNow)
		require.NoError(t, err)
		assert.Equal(t, 1, count)
		return nil
	})

	var clusterID string
	var members int
	require.NoError(t, st.db.QueryRow(
		`SELECT id, server_count FROM host_clusters WHERE ip_address = '10.0.0.1'`).
		Scan(&clusterID, &members))
	assert.Equal(t, 3, members)

	var linked int
	require.NoError(t, st.db.QueryRow(
		`SELECT COUNT(*) FROM servers WHERE host_cluster_id = ?`, clusterID).Scan(&linked))
	assert.Equal(t, 3, linked)

	var lonerCluster *string
	require.NoError(t, st.db.QueryRow(
		`SELECT host_cluster_id FROM servers WHERE ip_address = '10.0.0.2'`).Scan(&lonerCluster))
	assert.Nil(t, lonerCluster)

	// Dropping the address back to one server prunes the cluster and nulls
	// the surviving reference.
	_, err := st.db.Exec(`DELETE FROM servers WHERE ip_address = '10.0.0.1' AND port != 10308`)
	require.NoError(t, err)

	runCycle(t, st, func(cy Cycle) error {
		count, err := cy.RefreshHostClusters(ctx, testNow)
		require.NoError(t, err)
		assert.Equal(t, 0, count)
		return nil
	})

	var remaining int
	require.NoError(t, st.db.QueryRow(`SELECT COUNT(*) FROM host_clusters`).Scan(&remaining))
	assert.Equal(t, 0, remaining)

	var survivorCluster *string
	require.NoError(t, st.db.QueryRow(
		`SELECT host_cluster_id FROM servers WHERE ip_address = '10.0.0.1'`).Scan(&survivorCluster))
	assert.Nil(t, survivorCluster)
}

func TestSQLite_RefreshHostClusters_StableAcrossRuns(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	runCycle(t, st, func(cy Cycle) error {
		for _, port := range []int{10308, 10309} {
			if _, _, err := cy.UpsertServer(ctx, testServer("10.0.0.1", port, "Shared Host")); err != nil {
				return err
			}
		}
		return nil
	})

	var firstID string
	runCycle(t, st, func(cy Cycle) error {
		_, err := cy.RefreshHostClusters(ctx, testNow)
		return err
	})
	require.NoError(t, st.db.QueryRow(`SELECT id FROM host_clusters`).Scan(&firstID))

	// A second refresh updates in place instead of recreating the cluster.
	runCycle(t, st, func(cy Cycle) error {
		count, err := cy.RefreshHostClusters(ctx, testNow.Add(time.Hour))
		require.NoError(t, err)
		assert.Equal(t, 1, count)
		return nil
	})
	var secondID string
	require.NoError(t, st.db.QueryRow(`SELECT id FROM host_clusters`).Scan(&secondID))
	assert.Equal(t, firstID, secondID)
}

// --- Ecosystem stats ---

func TestSQLite_EcosystemStats_UpsertAndRead(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	discord := "discord.gg/abc"
	foothold := "foothold"
	caucasus := "caucasus"
	yes := true
	five, one, zero := 5, 1, 0

	runCycle(t, st, func(cy Cycle) error {
		a := testServer("1.1.1.1", 10308, "Busy")
		a.PlayersCurrent = &five
		a.PasswordRequired = &yes
		a.Enrichment.DiscordURL = &discord
		a.Enrichment.Framework = &foothold
		a.Enrichment.Terrain = &caucasus
		if _, _, err := cy.UpsertServer(ctx, a); err != nil {
			return err
		}

		b := testServer("1.1.1.1", 10309, "Solo")
		b.PlayersCurrent = &one
		b.Enrichment.Terrain = &caucasus
		if _, _, err := cy.UpsertServer(ctx, b); err != nil {
			return err
		}

		c := testServer("2.2.2.2", 10308, "Empty")
		c.PlayersCurrent = &zero
		if _, _, err := cy.UpsertServer(ctx, c); err != nil {
			return err
		}

		return cy.UpsertEcosystemStats(ctx, testNow)
	})

	stat, err := st.StatsForDate(ctx, "2026-08-01")
	require.NoError(t, err)
	require.NotNil(t, stat)

	assert.Equal(t, "2026-08-01", stat.StatDate)
	assert.Equal(t, 3, stat.TotalServers)
	assert.Equal(t, 2, stat.ActiveServers)
	assert.Equal(t, 6, stat.TotalPlayers)
	assert.Equal(t, 1, stat.SoloSessions)
	assert.Equal(t, 1, stat.MultiplayerSessions)
	assert.Equal(t, 2, stat.UniqueHosts)
	assert.Equal(t, 1, stat.DiscordLinked)
	assert.Equal(t, 0, stat.SRSEnabled)
	assert.Equal(t, 1, stat.PasswordProtected)
	assert.Equal(t, map[string]int{"foothold": 1}, stat.FrameworkCounts)
	assert.Equal(t, map[string]int{"caucasus": 2}, stat.TerrainCounts)
}

func TestSQLite_EcosystemStats_SameDateOverwrites(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	runCycle(t, st, func(cy Cycle) error {
		if _, _, err := cy.UpsertServer(ctx, testServer("1.1.1.1", 10308, "Alpha")); err != nil {
			return err
		}
		return cy.UpsertEcosystemStats(ctx, testNow)
	})

	runCycle(t, st, func(cy Cycle) error {
		if _, _, err := cy.UpsertServer(ctx, testServer("2.2.2.2", 10308, "Bravo")); err != nil {
			return err
		}
		return cy.UpsertEcosystemStats(ctx, testNow.Add(2*time.Hour))
	})

	stat, err := st.StatsForDate(ctx, "2026-08-01")
	require.NoError(t, err)
	require.NotNil(t, stat)
	assert.Equal(t, 2, stat.TotalServers)

	var rows int
	require.NoError(t, st.db.QueryRow(`SELECT COUNT(*) FROM ecosystem_stats`).Scan(&rows))
	assert.Equal(t, 1, rows)
}

func TestSQLite_StatsForDate_Missing(t *testing.T) {
	st := newTestSQLiteStore(t)
	stat, err := st.StatsForDate(context.Background(), "1999-01-01")
	require.NoError(t, err)
	assert.Nil(t, stat)
}
