package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"matchengine/internal/model"
)

const buyerColumns = `id, name, budget_min, budget_max, min_rooms, target_cities, target_neighborhoods,
	required_features, floor_min, floor_max, taste_liked, taste_disliked, taste_summary,
	taste_embedding, created_at, updated_at`

// GetBuyer loads a buyer with criteria and taste profile.
func (s *Store) GetBuyer(ctx context.Context, id string) (*model.Buyer, error) {
	var buyer model.Buyer
	query := s.db.Rebind(`SELECT ` + buyerColumns + ` FROM buyers WHERE id = ?`)
	if err := s.db.GetContext(ctx, &buyer, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get buyer: %w", err)
	}
	return &buyer, nil
}

// CreateBuyer inserts a buyer row.
func (s *Store) CreateBuyer(ctx context.Context, b *model.Buyer) error {
	now := s.now()
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	b.UpdatedAt = now
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO buyers (`+buyerColumns+`)
		VALUES (:id, :name, :budget_min, :budget_max, :min_rooms, :target_cities, :target_neighborhoods,
			:required_features, :floor_min, :floor_max, :taste_liked, :taste_disliked, :taste_summary,
			:taste_embedding, :created_at, :updated_at)`, b)
	if err != nil {
		return fmt.Errorf("failed to create buyer: %w", err)
	}
	return nil
}

// UpdateCriteria replaces the hard-filter fields of a buyer.
func (s *Store) UpdateCriteria(ctx context.Context, buyerID string, c model.Criteria) error {
	query := s.db.Rebind(`
		UPDATE buyers SET
			budget_min = ?, budget_max = ?, min_rooms = ?,
			target_cities = ?, target_neighborhoods = ?, required_features = ?,
			floor_min = ?, floor_max = ?, updated_at = ?
		WHERE id = ?`)
	res, err := s.db.ExecContext(ctx, query,
		c.BudgetMin, c.BudgetMax, c.MinRooms,
		c.TargetCities, c.TargetNeighborhoods, c.RequiredFeatures,
		c.FloorMin, c.FloorMax, s.now(), buyerID,
	)
	if err != nil {
		return fmt.Errorf("failed to update criteria: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update criteria: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// LinkAgent records an agent relationship for a buyer.
func (s *Store) LinkAgent(ctx context.Context, buyerID, agentID string) error {
	query := s.db.Rebind(`
		INSERT INTO buyer_agents (buyer_id, agent_id, created_at) VALUES (?, ?, ?)
		ON CONFLICT (buyer_id, agent_id) DO NOTHING`)
	if _, err := s.db.ExecContext(ctx, query, buyerID, agentID, s.now()); err != nil {
		return fmt.Errorf("failed to link agent: %w", err)
	}
	return nil
}

// PrimaryAgent returns the first agent linked to the buyer. ok is false when
// the buyer has no agent.
func (s *Store) PrimaryAgent(ctx context.Context, buyerID string) (agentID string, ok bool, err error) {
	query := s.db.Rebind(`
		SELECT agent_id FROM buyer_agents
		WHERE buyer_id = ?
		ORDER BY created_at ASC, agent_id ASC
		LIMIT 1`)
	if err := s.db.GetContext(ctx, &agentID, query, buyerID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to get primary agent: %w", err)
	}
	return agentID, true, nil
}
