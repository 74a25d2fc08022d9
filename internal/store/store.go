// Package store persists the server population, lineage edges, host
// clusters and ecosystem stats behind a backend-neutral interface.
package store

import (
	"context"
	"time"

	"github.com/dcswatch/servertrack/internal/model"
)

// Candidate is a minimal view of a server considered as a migration
// predecessor.
type Candidate struct {
	ID   string
	Name string
}

// Cycle is the transaction-scoped view of the store used by one ingestion
// cycle. Every write issued through a Cycle commits or rolls back as one
// unit.
type Cycle interface {
	// UpsertServer reconciles one enriched sighting against the (host, port)
	// key in a single conflict-aware statement: operational fields are
	// overwritten, enrichment fields merge fill-if-null, and the reported
	// bool is true only for a genuine insert.
	UpsertServer(ctx context.Context, srv *model.Server) (id string, inserted bool, err error)

	// InsertSnapshot records one point-in-time capture for a server.
	InsertSnapshot(ctx context.Context, snap model.Snapshot) error

	// StaleCandidates lists servers other than currentID whose last sighting
	// is older than `before`, for migration matching.
	StaleCandidates(ctx context.Context, currentID string, before time.Time) ([]Candidate, error)

	// LineageExists reports whether any edge, in any status, exists for the
	// ordered (current, previous) pair.
	LineageExists(ctx context.Context, currentID, previousID string) (bool, error)

	// InsertLineage persists a new lineage edge.
	InsertLineage(ctx context.Context, lin model.Lineage) error

	// RefreshHostClusters regroups servers by address: addresses with more
	// than one server get an upserted cluster, clusters whose address
	// dropped to one server are pruned, and every server's cluster
	// reference is re-pointed (or nulled). Returns the cluster count after
	// the refresh.
	RefreshHostClusters(ctx context.Context, now time.Time) (int, error)

	// UpsertEcosystemStats computes the population-wide counts and writes
	// the single row for now's calendar date, overwriting a prior row.
	UpsertEcosystemStats(ctx context.Context, now time.Time) error
}

// Store is the persistence interface for the ingest pipeline.
type Store interface {
	// RunCycle executes fn inside one transaction; any error aborts the
	// whole cycle with nothing persisted.
	RunCycle(ctx context.Context, fn func(Cycle) error) error

	// ListPendingLineage returns edges awaiting review, oldest first.
	ListPendingLineage(ctx context.Context, limit int) ([]model.Lineage, error)

	// ReviewLineage moves a pending edge to confirmed or rejected. Edges in
	// any other status are immutable and cause an error.
	ReviewLineage(ctx context.Context, id string, status model.LineageStatus) error

	// StatsForDate returns the ecosystem snapshot for a YYYY-MM-DD date, or
	// nil if none exists.
	StatsForDate(ctx context.Context, date string) (*model.EcosystemStat, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
