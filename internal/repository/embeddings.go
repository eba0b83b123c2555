package repository

import (
	"context"
	"fmt"

	"github.com/pgvector/pgvector-go"

	"matchengine/internal/model"
)

// BatchUpdateEmbeddings updates embeddings for properties and buyer taste
// profiles. Unknown ids and kinds are reported per item; the rest commit.
func (s *Store) BatchUpdateEmbeddings(ctx context.Context, items []model.EmbeddingItem) (int, []string) {
	success := 0
	var errors []string

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		errors = append(errors, fmt.Sprintf("failed to start transaction: %v", err))
		return success, errors
	}
	defer tx.Rollback()

	propStmt, err := tx.PreparexContext(ctx, tx.Rebind(`UPDATE properties SET embedding = ?, updated_at = ? WHERE id = ?`))
	if err != nil {
		errors = append(errors, fmt.Sprintf("failed to prepare statement: %v", err))
		return success, errors
	}
	defer propStmt.Close()

	buyerStmt, err := tx.PreparexContext(ctx, tx.Rebind(`UPDATE buyers SET taste_embedding = ?, updated_at = ? WHERE id = ?`))
	if err != nil {
		errors = append(errors, fmt.Sprintf("failed to prepare statement: %v", err))
		return success, errors
	}
	defer buyerStmt.Close()

	now := s.now()
	for _, item := range items {
		vec := pgvector.NewVector(item.Embedding)

		var stmtErr error
		var affected int64
		switch item.Kind {
		case model.EmbeddingKindProperty:
			res, err := propStmt.ExecContext(ctx, vec, now, item.ID)
			stmtErr = err
			if err == nil {
				affected, stmtErr = res.RowsAffected()
			}
		case model.EmbeddingKindBuyer:
			res, err := buyerStmt.ExecContext(ctx, vec, now, item.ID)
			stmtErr = err
			if err == nil {
				affected, stmtErr = res.RowsAffected()
			}
		default:
			errors = append(errors, fmt.Sprintf("%s %s: unknown kind", item.Kind, item.ID))
			continue
		}

		if stmtErr != nil {
			errors = append(errors, fmt.Sprintf("%s %s: %v", item.Kind, item.ID, stmtErr))
			continue
		}
		if affected == 0 {
			errors = append(errors, fmt.Sprintf("%s %s: not found", item.Kind, item.ID))
			continue
		}
		success++
	}

	if err := tx.Commit(); err != nil {
		errors = append(errors, fmt.Sprintf("failed to commit transaction: %v", err))
		return 0, errors
	}

	return success, errors
}

// PropertiesMissingEmbedding returns available properties without a vector.
func (s *Store) PropertiesMissingEmbedding(ctx context.Context, limit int) ([]model.Property, error) {
	var props []model.Property
	query := s.db.Rebind(`SELECT ` + propertyColumns + ` FROM properties
		WHERE embedding IS NULL AND status = ? ORDER BY id LIMIT ?`)
	if err := s.db.SelectContext(ctx, &props, query, model.PropertyStatusAvailable, limit); err != nil {
		return nil, fmt.Errorf("failed to list properties without embedding: %w", err)
	}
	return props, nil
}

// BuyersMissingEmbedding returns buyers with taste text but no taste vector.
func (s *Store) BuyersMissingEmbedding(ctx context.Context, limit int) ([]model.Buyer, error) {
	var buyers []model.Buyer
	query := s.db.Rebind(`SELECT ` + buyerColumns + ` FROM buyers
		WHERE taste_embedding IS NULL
			AND (COALESCE(taste_liked, '') <> '' OR COALESCE(taste_disliked, '') <> '' OR COALESCE(taste_summary, '') <> '')
		ORDER BY id LIMIT ?`)
	if err := s.db.SelectContext(ctx, &buyers, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list buyers without embedding: %w", err)
	}
	return buyers, nil
}
