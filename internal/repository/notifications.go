package repository

import (
	"context"
	"fmt"

	"matchengine/internal/model"
)

// InsertNotifications appends notifications in one transaction. The engine
// never updates or deletes them.
func (s *Store) InsertNotifications(ctx context.Context, notifications []model.Notification) error {
	if len(notifications) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, tx.Rebind(`
		INSERT INTO notifications (id, agent_id, buyer_id, property_id, run_id, match_score, title, message, is_read, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`))
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	now := s.now()
	for i := range notifications {
		n := &notifications[i]
		if n.CreatedAt.IsZero() {
			n.CreatedAt = now
		}
		if _, err := stmt.ExecContext(ctx, n.ID, n.AgentID, n.BuyerID, n.PropertyID, n.RunID,
			n.MatchScore, n.Title, n.Message, n.IsRead, n.CreatedAt); err != nil {
			return fmt.Errorf("insert notification for property %s: %w", n.PropertyID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ListNotifications returns the newest notifications for an agent.
func (s *Store) ListNotifications(ctx context.Context, agentID string, unreadOnly bool, limit int) ([]model.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, agent_id, buyer_id, property_id, run_id, match_score, title, message, is_read, created_at
		FROM notifications WHERE agent_id = ?`
	args := []any{agentID}
	if unreadOnly {
		query += ` AND is_read = ?`
		args = append(args, false)
	}
	query += ` ORDER BY created_at DESC, id ASC LIMIT ?`
	args = append(args, limit)

	out := []model.Notification{}
	if err := s.db.SelectContext(ctx, &out, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	return out, nil
}
