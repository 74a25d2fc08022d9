package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dcswatch/servertrack/internal/model"
	"github.com/dcswatch/servertrack/internal/store"
)

// fakeCycle is an in-memory Cycle for exercising detection logic directly.
type fakeCycle struct {
	candidates []store.Candidate
	existing   map[[2]string]bool
	inserted   []model.Lineage
}

func (f *fakeCycle) UpsertServer(ctx context.Context, srv *model.Server) (string, bool, error) {
	return srv.ID, false, nil
}

func (f *fakeCycle) InsertSnapshot(ctx context.Context, snap model.Snapshot) error { return nil }

func (f *fakeCycle) StaleCandidates(ctx context.Context, currentID string, before time.Time) ([]store.Candidate, error) {
	return f.candidates, nil
}

func (f *fakeCycle) LineageExists(ctx context.Context, currentID, previousID string) (bool, error) {
	return f.existing[[2]string{currentID, previousID}], nil
}

func (f *fakeCycle) InsertLineage(ctx context.Context, lin model.Lineage) error {
	f.inserted = append(f.inserted, lin)
	return nil
}

func (f *fakeCycle) RefreshHostClusters(ctx context.Context, now time.Time) (int, error) {
	return 0, nil
}

func (f *fakeCycle) UpsertEcosystemStats(ctx context.Context, now time.Time) error { return nil }

func detectIngestor() *Ingestor {
	return New(nil, nil, testConfig(), zap.NewNop())
}

func TestLineageStatus_ConfirmBoundary(t *testing.T) {
	ing := detectIngestor()

	// The confirm threshold is inclusive.
	assert.Equal(t, model.LineageStatusConfirmed, ing.lineageStatus(0.9))
	assert.Equal(t, model.LineageStatusConfirmed, ing.lineageStatus(0.95))
	assert.Equal(t, model.LineageStatusPendingReview, ing.lineageStatus(0.8999))
	assert.Equal(t, model.LineageStatusPendingReview, ing.lineageStatus(0.71))
}

func TestLineageMatchType_ExactBoundary(t *testing.T) {
	ing := detectIngestor()

	// The exact threshold is exclusive.
	assert.Equal(t, model.MatchTypeFuzzyName, ing.lineageMatchType(0.99))
	assert.Equal(t, model.MatchTypeExactName, ing.lineageMatchType(0.995))
	assert.Equal(t, model.MatchTypeExactName, ing.lineageMatchType(1.0))
	assert.Equal(t, model.MatchTypeFuzzyName, ing.lineageMatchType(0.85))
}

func TestDetectMigration_NoCandidates(t *testing.T) {
	ing := detectIngestor()
	cy := &fakeCycle{}

	migrated, err := ing.detectMigration(context.Background(), cy, "cur-1", "Alpha Squadron", testStart)
	require.NoError(t, err)
	assert.False(t, migrated)
	assert.Empty(t, cy.inserted)
}

func TestDetectMigration_ThresholdIsStrict(t *testing.T) {
	ing := detectIngestor()
	cfg := testConfig()
	cfg.SimilarityThreshold = 1.0
	ing.cfg = cfg

	// Even a perfect match fails a threshold it only equals.
	cy := &fakeCycle{candidates: []store.Candidate{{ID: "a", Name: "Alpha Squadron"}}}
	migrated, err := ing.detectMigration(context.Background(), cy, "cur-1", "Alpha Squadron", testStart)
	require.NoError(t, err)
	assert.False(t, migrated)
}

func TestDetectMigration_PicksBestCandidate(t *testing.T) {
	ing := detectIngestor()
	cy := &fakeCycle{candidates: []store.Candidate{
		{ID: "weak", Name: "Baltic Dragons PvP"},
		{ID: "strong", Name: "Nevada Night Ops"},
	}}

	migrated, err := ing.detectMigration(context.Background(), cy, "cur-1", "Nevada Night Ops!!", testStart)
	require.NoError(t, err)
	assert.True(t, migrated)
	require.Len(t, cy.inserted, 1)

	edge := cy.inserted[0]
	assert.Equal(t, "cur-1", edge.CurrentServerID)
	assert.Equal(t, "strong", edge.PreviousServerID)
	assert.Equal(t, model.MatchTypeExactName, edge.MatchType)
	assert.Equal(t, model.LineageStatusConfirmed, edge.Status)
	assert.Equal(t, 1.0, edge.SimilarityScore)
	assert.Equal(t, testStart, edge.CreatedAt)
}

func TestDetectMigration_TieBreaksToLowestID(t *testing.T) {
	ing := detectIngestor()
	cy := &fakeCycle{candidates: []store.Candidate{
		{ID: "b-2", Name: "Alpha Squadron"},
		{ID: "a-1", Name: "Alpha Squadron"},
	}}

	migrated, err := ing.detectMigration(context.Background(), cy, "cur-1", "Alpha Squadron", testStart)
	require.NoError(t, err)
	assert.True(t, migrated)
	require.Len(t, cy.inserted, 1)
	assert.Equal(t, "a-1", cy.inserted[0].PreviousServerID)
}

func TestDetectMigration_SkipsExistingEdge(t *testing.T) {
	ing := detectIngestor()
	cy := &fakeCycle{
		candidates: []store.Candidate{{ID: "prev-1", Name: "Alpha Squadron"}},
		existing:   map[[2]string]bool{{"cur-1", "prev-1"}: true},
	}

	migrated, err := ing.detectMigration(context.Background(), cy, "cur-1", "Alpha Squadron", testStart)
	require.NoError(t, err)
	assert.False(t, migrated)
	assert.Empty(t, cy.inserted)
}
