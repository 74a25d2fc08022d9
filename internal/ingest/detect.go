package ingest

import (
	"context"
	"time"

	"github.com/dcswatch/servertrack/internal/model"
	"github.com/dcswatch/servertrack/internal/normalize"
	"github.com/dcswatch/servertrack/internal/similarity"
	"github.com/dcswatch/servertrack/internal/store"
)

// detectMigration looks for a stale predecessor of a freshly-inserted
// server: the best name match among servers not seen within the staleness
// window. A proposal is recorded only when the best score strictly exceeds
// the detection threshold and no edge already exists for the pair; existing
// edges are never re-adjudicated, so reruns are no-ops. Returns whether a
// new edge was recorded.
func (ing *Ingestor) detectMigration(ctx context.Context, cy store.Cycle, currentID, name string, now time.Time) (bool, error) {
	cutoff := now.Add(-time.Duration(ing.cfg.StaleAfterHours) * time.Hour)
	candidates, err := cy.StaleCandidates(ctx, currentID, cutoff)
	if err != nil {
		return false, err
	}
	if len(candidates) == 0 {
		return false, nil
	}

	normalized := normalize.Text(name)
	var best store.Candidate
	bestScore := 0.0
	for _, cand := range candidates {
		score := similarity.Score(normalized, normalize.Text(cand.Name))
		// Ties break to the smallest ID so reruns pick the same predecessor.
		if score > bestScore || (score == bestScore && best.ID != "" && cand.ID < best.ID) {
			best = cand
			bestScore = score
		}
	}
	if bestScore <= ing.cfg.SimilarityThreshold {
		return false, nil
	}

	exists, err := cy.LineageExists(ctx, currentID, best.ID)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	err = cy.InsertLineage(ctx, model.Lineage{
		CurrentServerID:  currentID,
		PreviousServerID: best.ID,
		MatchType:        ing.lineageMatchType(bestScore),
		SimilarityScore:  bestScore,
		Status:           ing.lineageStatus(bestScore),
		CreatedAt:        now,
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

// lineageMatchType treats near-perfect scores as an exact rename signal;
// anything else that cleared the detection threshold is a fuzzy match.
func (ing *Ingestor) lineageMatchType(score float64) model.MatchType {
	if score > ing.cfg.ExactThreshold {
		return model.MatchTypeExactName
	}
	return model.MatchTypeFuzzyName
}

// lineageStatus auto-confirms high-confidence proposals and queues the
// rest for manual review.
func (ing *Ingestor) lineageStatus(score float64) model.LineageStatus {
	if score >= ing.cfg.ConfirmThreshold {
		return model.LineageStatusConfirmed
	}
	return model.LineageStatusPendingReview
}
