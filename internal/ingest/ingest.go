// Package ingest runs one ingestion cycle: it reconciles a batch of scraped
// rows into the server population, detects migrations, and refreshes the
// derived aggregates, all inside one store transaction.
package ingest

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dcswatch/servertrack/internal/config"
	"github.com/dcswatch/servertrack/internal/enrich"
	"github.com/dcswatch/servertrack/internal/model"
	"github.com/dcswatch/servertrack/internal/normalize"
	"github.com/dcswatch/servertrack/internal/store"
)

// Result holds the per-cycle counts reported back to the caller.
type Result struct {
	Inserted   int `json:"inserted"`
	Updated    int `json:"updated"`
	Snapshots  int `json:"snapshots"`
	Migrations int `json:"migrations"`
}

// RunOptions toggles the optional per-cycle outputs.
type RunOptions struct {
	Snapshots bool
	Stats     bool
}

// Ingestor executes ingestion cycles against one store.
type Ingestor struct {
	store    store.Store
	enricher *enrich.Enricher
	cfg      config.IngestConfig
	log      *zap.Logger
	now      func() time.Time
}

// New creates an Ingestor. A nil logger falls back to the global zap logger.
func New(st store.Store, enricher *enrich.Enricher, cfg config.IngestConfig, log *zap.Logger) *Ingestor {
	if log == nil {
		log = zap.L()
	}
	return &Ingestor{
		store:    st,
		enricher: enricher,
		cfg:      cfg,
		now:      time.Now,
		log:      log,
	}
}

// enrichedRow is one eligible row with its derived values precomputed.
type enrichedRow struct {
	row         model.ServerRow
	enrichment  model.Enrichment
	fingerprint string
}

// Run executes one cycle over the batch. Rows missing a host or a name are
// skipped. Enrichment is pure and runs concurrently; all writes happen
// sequentially inside a single transaction, so a failure anywhere persists
// nothing.
func (ing *Ingestor) Run(ctx context.Context, rows []model.ServerRow, opts RunOptions) (Result, error) {
	now := ing.now().UTC()

	prepared, err := ing.prepare(ctx, rows)
	if err != nil {
		return Result{}, err
	}

	var res Result
	err = ing.store.RunCycle(ctx, func(cy store.Cycle) error {
		for _, er := range prepared {
			srv := ing.buildServer(er, now)
			id, inserted, err := cy.UpsertServer(ctx, srv)
			if err != nil {
				return err
			}

			if inserted {
				res.Inserted++
				// Only a genuine insert can be the landing point of a
				// migration; an updated entity cannot migrate to itself.
				migrated, err := ing.detectMigration(ctx, cy, id, er.row.Name, now)
				if err != nil {
					return err
				}
				if migrated {
					res.Migrations++
				}
			} else {
				res.Updated++
			}

			if opts.Snapshots {
				if err := cy.InsertSnapshot(ctx, buildSnapshot(id, er, now)); err != nil {
					return err
				}
				res.Snapshots++
			}
		}

		if _, err := cy.RefreshHostClusters(ctx, now); err != nil {
			return err
		}
		if opts.Stats {
			if err := cy.UpsertEcosystemStats(ctx, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Result{}, eris.Wrap(err, "ingest: cycle failed")
	}

	ing.log.Info("ingest cycle complete",
		zap.Int("rows", len(rows)),
		zap.Int("inserted", res.Inserted),
		zap.Int("updated", res.Updated),
		zap.Int("snapshots", res.Snapshots),
		zap.Int("migrations", res.Migrations),
	)
	return res, nil
}

// prepare filters out ineligible rows and enriches the rest concurrently.
// Output order matches input order so upserts stay deterministic.
func (ing *Ingestor) prepare(ctx context.Context, rows []model.ServerRow) ([]*enrichedRow, error) {
	slots := make([]*enrichedRow, len(rows))

	g, ctx := errgroup.WithContext(ctx)
	workers := ing.cfg.EnrichWorkers
	if workers <= 0 {
		workers = 4
	}
	g.SetLimit(workers)

	for i, row := range rows {
		if row.Host == "" || row.Name == "" {
			continue
		}
		if row.Port == 0 {
			row.Port = ing.cfg.DefaultPort
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			slots[i] = &enrichedRow{
				row:         row,
				enrichment:  ing.enricher.Enrich(row),
				fingerprint: normalize.Fingerprint(row.Host, row.Port, row.Name),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "ingest: enrich batch")
	}

	out := make([]*enrichedRow, 0, len(rows))
	for _, er := range slots {
		if er != nil {
			out = append(out, er)
		}
	}
	return out, nil
}

func (ing *Ingestor) buildServer(er *enrichedRow, now time.Time) *model.Server {
	return &model.Server{
		Fingerprint:      er.fingerprint,
		Name:             er.row.Name,
		Host:             er.row.Host,
		Port:             er.row.Port,
		PlayersCurrent:   er.row.PlayersCurrent,
		PlayersMax:       er.row.PlayersMax,
		PasswordRequired: er.row.PasswordRequired,
		GameVersion:      er.row.GameVersion,
		Mission:          er.row.Mission,
		MissionTimeSecs:  er.row.MissionTimeSecs,
		Description:      er.row.Description,
		Enrichment:       er.enrichment,
		FirstSeen:        now,
		LastSeen:         now,
		LastEnriched:     now,
	}
}

func buildSnapshot(serverID string, er *enrichedRow, now time.Time) model.Snapshot {
	return model.Snapshot{
		ServerID:        serverID,
		CapturedAt:      now,
		Name:            er.row.Name,
		PlayersCurrent:  er.row.PlayersCurrent,
		PlayersMax:      er.row.PlayersMax,
		Mission:         er.row.Mission,
		MissionTimeSecs: er.row.MissionTimeSecs,
		GameVersion:     er.row.GameVersion,
		IsOnline:        true,
		ContentHash:     normalize.ContentHash(er.row.PlayersCurrent, er.row.Mission, er.row.GameVersion),
	}
}
