package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"

	"matchengine/internal/model"
)

const upsertMatchSQL = `
	INSERT INTO matches (buyer_id, property_id, match_score, match_reason, hard_filter_passed, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (buyer_id, property_id) DO UPDATE SET
		match_score = excluded.match_score,
		match_reason = excluded.match_reason,
		hard_filter_passed = excluded.hard_filter_passed,
		updated_at = excluded.updated_at`

// Reconcile converges stored match state for one buyer with a fresh result,
// inside one transaction:
//   - every failed candidate is upserted with hard_filter_passed=false, score 0
//   - every ranked match is upserted with hard_filter_passed=true
//   - passing records not in the ranked set are deleted; failing records are
//     never deleted here
//
// Both upserts and the delete are idempotent. The returned count is the
// number of records written, identical for identical inputs.
func (s *Store) Reconcile(ctx context.Context, buyerID string, failed []model.ExcludedCandidate, ranked []model.RankedMatch) (int, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	now := s.now()

	stmt, err := tx.PreparexContext(ctx, tx.Rebind(upsertMatchSQL))
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	count := 0
	for _, f := range failed {
		if _, err := stmt.ExecContext(ctx, buyerID, f.PropertyID, 0, f.Reason, false, now, now); err != nil {
			return 0, fmt.Errorf("upsert failed candidate %s: %w", f.PropertyID, err)
		}
		count++
	}

	rankedIDs := make([]string, 0, len(ranked))
	for _, r := range ranked {
		if _, err := stmt.ExecContext(ctx, buyerID, r.PropertyID, r.Score, r.Reason, true, now, now); err != nil {
			return 0, fmt.Errorf("upsert ranked match %s: %w", r.PropertyID, err)
		}
		rankedIDs = append(rankedIDs, r.PropertyID)
		count++
	}

	if err := deleteStalePasses(ctx, tx, buyerID, rankedIDs); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return count, nil
}

func deleteStalePasses(ctx context.Context, tx *sqlx.Tx, buyerID string, keep []string) error {
	if len(keep) == 0 {
		query := tx.Rebind(`DELETE FROM matches WHERE buyer_id = ? AND hard_filter_passed = ?`)
		if _, err := tx.ExecContext(ctx, query, buyerID, true); err != nil {
			return fmt.Errorf("delete stale passing matches: %w", err)
		}
		return nil
	}

	query, args, err := sqlx.In(
		`DELETE FROM matches WHERE buyer_id = ? AND hard_filter_passed = ? AND property_id NOT IN (?)`,
		buyerID, true, keep,
	)
	if err != nil {
		return fmt.Errorf("failed to expand query: %w", err)
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind(query), args...); err != nil {
		return fmt.Errorf("delete stale passing matches: %w", err)
	}
	return nil
}

// ListMatches returns stored records for a buyer; passed filters by partition when set.
func (s *Store) ListMatches(ctx context.Context, buyerID string, passed *bool) ([]model.MatchRecord, error) {
	query := `SELECT buyer_id, property_id, match_score, match_reason, hard_filter_passed, created_at, updated_at
		FROM matches WHERE buyer_id = ?`
	args := []any{buyerID}
	if passed != nil {
		query += ` AND hard_filter_passed = ?`
		args = append(args, *passed)
	}
	query += ` ORDER BY hard_filter_passed DESC, match_score DESC, property_id ASC`

	records := []model.MatchRecord{}
	if err := s.db.SelectContext(ctx, &records, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list matches: %w", err)
	}
	return records, nil
}

// ExclusionSummary counts failing records by reason prefix (text before ": ").
func (s *Store) ExclusionSummary(ctx context.Context, buyerID string) ([]model.ExclusionCount, error) {
	var rows []model.ExclusionCount
	query := s.db.Rebind(`
		SELECT match_reason AS reason, COUNT(*) AS count
		FROM matches
		WHERE buyer_id = ? AND hard_filter_passed = ?
		GROUP BY match_reason`)
	if err := s.db.SelectContext(ctx, &rows, query, buyerID, false); err != nil {
		return nil, fmt.Errorf("failed to summarize exclusions: %w", err)
	}

	byPrefix := make(map[string]int, len(rows))
	for _, r := range rows {
		prefix, _, _ := strings.Cut(r.Reason, ": ")
		byPrefix[prefix] += r.Count
	}

	out := make([]model.ExclusionCount, 0, len(byPrefix))
	for reason, n := range byPrefix {
		out = append(out, model.ExclusionCount{Reason: reason, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Reason < out[j].Reason
	})
	return out, nil
}

func inQuery(s *Store, query string, args ...any) (string, []any, error) {
	q, a, err := sqlx.In(query, args...)
	if err != nil {
		return "", nil, fmt.Errorf("failed to expand query: %w", err)
	}
	return s.db.Rebind(q), a, nil
}
