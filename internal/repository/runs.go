package repository

import (
	"context"
	"fmt"

	"matchengine/internal/model"
)

// RecordRun inserts one row in the run log.
func (s *Store) RecordRun(ctx context.Context, run *model.MatchRun) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO match_runs (id, buyer_id, triggered_by, saved, passed_count, failed_count,
			ranked_count, notified_count, status, error, started_at, finished_at)
		VALUES (:id, :buyer_id, :triggered_by, :saved, :passed_count, :failed_count,
			:ranked_count, :notified_count, :status, :error, :started_at, :finished_at)`, run)
	if err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}
	return nil
}

// ListRuns returns the newest runs for a buyer.
func (s *Store) ListRuns(ctx context.Context, buyerID string, limit int) ([]model.MatchRun, error) {
	if limit <= 0 {
		limit = 20
	}
	runs := []model.MatchRun{}
	query := s.db.Rebind(`
		SELECT id, buyer_id, triggered_by, saved, passed_count, failed_count, ranked_count,
			notified_count, status, error, started_at, finished_at
		FROM match_runs WHERE buyer_id = ?
		ORDER BY started_at DESC, id ASC LIMIT ?`)
	if err := s.db.SelectContext(ctx, &runs, query, buyerID, limit); err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, nil
}
