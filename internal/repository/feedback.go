package repository

import (
	"context"
	"fmt"

	"matchengine/internal/model"
)

// InsertFeedback stores an agent verdict and sets fb.ID.
func (s *Store) InsertFeedback(ctx context.Context, fb *model.Feedback) error {
	if fb.CreatedAt.IsZero() {
		fb.CreatedAt = s.now()
	}
	query := s.db.Rebind(`
		INSERT INTO property_feedback (buyer_id, property_id, agent_id, status, note, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING id`)
	err := s.db.QueryRowxContext(ctx, query,
		fb.BuyerID, fb.PropertyID, fb.AgentID, string(fb.Status), fb.Note, fb.CreatedAt,
	).Scan(&fb.ID)
	if err != nil {
		return fmt.Errorf("failed to insert feedback: %w", err)
	}
	return nil
}

// ListFeedback returns a buyer's feedback, newest first, joined with the
// property fields the ranking prompt needs.
func (s *Store) ListFeedback(ctx context.Context, buyerID string) ([]model.Feedback, error) {
	query := s.db.Rebind(`
		SELECT f.id, f.buyer_id, f.property_id, f.agent_id, f.status, f.note, f.created_at,
			COALESCE(p.address, '') AS address,
			COALESCE(p.city, '') AS city,
			p.neighborhood, p.rooms, p.price
		FROM property_feedback f
		LEFT JOIN properties p ON p.id = f.property_id
		WHERE f.buyer_id = ?
		ORDER BY f.created_at DESC, f.id DESC`)
	out := []model.Feedback{}
	if err := s.db.SelectContext(ctx, &out, query, buyerID); err != nil {
		return nil, fmt.Errorf("failed to list feedback: %w", err)
	}
	return out, nil
}
