package repository

import (
	"context"
	"fmt"

	"matchengine/internal/model"
)

const propertyColumns = `id, address, city, neighborhood, price, rooms, size, floor,
	has_safe_room, has_sun_balcony, has_elevator, parking_spots, description, status,
	embedding, created_at, updated_at`

// ListAvailableProperties returns the inventory that takes part in matching.
func (s *Store) ListAvailableProperties(ctx context.Context) ([]model.Property, error) {
	var props []model.Property
	query := s.db.Rebind(`SELECT ` + propertyColumns + ` FROM properties WHERE status = ? ORDER BY id`)
	if err := s.db.SelectContext(ctx, &props, query, model.PropertyStatusAvailable); err != nil {
		return nil, fmt.Errorf("failed to list properties: %w", err)
	}
	return props, nil
}

// GetProperties loads the given properties keyed by id.
func (s *Store) GetProperties(ctx context.Context, ids []string) (map[string]model.Property, error) {
	out := make(map[string]model.Property, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	query, args, err := inQuery(s, `SELECT `+propertyColumns+` FROM properties WHERE id IN (?)`, ids)
	if err != nil {
		return nil, err
	}
	var props []model.Property
	if err := s.db.SelectContext(ctx, &props, query, args...); err != nil {
		return nil, fmt.Errorf("failed to get properties: %w", err)
	}
	for _, p := range props {
		out[p.ID] = p
	}
	return out, nil
}

// CreateProperty inserts a property row.
func (s *Store) CreateProperty(ctx context.Context, p *model.Property) error {
	now := s.now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	if p.Status == "" {
		p.Status = model.PropertyStatusAvailable
	}
	p.UpdatedAt = now
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO properties (`+propertyColumns+`)
		VALUES (:id, :address, :city, :neighborhood, :price, :rooms, :size, :floor,
			:has_safe_room, :has_sun_balcony, :has_elevator, :parking_spots, :description, :status,
			:embedding, :created_at, :updated_at)`, p)
	if err != nil {
		return fmt.Errorf("failed to create property: %w", err)
	}
	return nil
}

// AssignedPropertyIDs returns the properties already offered to the buyer.
func (s *Store) AssignedPropertyIDs(ctx context.Context, buyerID string) (map[string]struct{}, error) {
	var ids []string
	query := s.db.Rebind(`SELECT property_id FROM property_assignments WHERE buyer_id = ?`)
	if err := s.db.SelectContext(ctx, &ids, query, buyerID); err != nil {
		return nil, fmt.Errorf("failed to list assignments: %w", err)
	}
	out := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		out[id] = struct{}{}
	}
	return out, nil
}

// MarkAssigned records that a property was offered to the buyer.
func (s *Store) MarkAssigned(ctx context.Context, buyerID, propertyID string) error {
	query := s.db.Rebind(`
		INSERT INTO property_assignments (buyer_id, property_id, created_at) VALUES (?, ?, ?)
		ON CONFLICT (buyer_id, property_id) DO NOTHING`)
	if _, err := s.db.ExecContext(ctx, query, buyerID, propertyID, s.now()); err != nil {
		return fmt.Errorf("failed to mark assignment: %w", err)
	}
	return nil
}
