package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"matchengine/internal/model"
)

// Embedder computes vectors for a batch of texts.
type Embedder interface {
	CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
}

// EmbeddingSource lists rows that still lack a vector and stores new ones.
type EmbeddingSource interface {
	PropertiesMissingEmbedding(ctx context.Context, limit int) ([]model.Property, error)
	BuyersMissingEmbedding(ctx context.Context, limit int) ([]model.Buyer, error)
	BatchUpdateEmbeddings(ctx context.Context, items []model.EmbeddingItem) (int, []string)
}

// EmbeddingRefresher fills in missing property and taste embeddings.
type EmbeddingRefresher struct {
	embedder Embedder
	source   EmbeddingSource
	logger   *zap.Logger
}

// RefreshStats summarizes one refresh pass.
type RefreshStats struct {
	Properties int
	Buyers     int
	Errors     []string
}

func NewEmbeddingRefresher(embedder Embedder, source EmbeddingSource, log *zap.Logger) *EmbeddingRefresher {
	if log == nil {
		log = zap.NewNop()
	}
	return &EmbeddingRefresher{embedder: embedder, source: source, logger: log}
}

// Refresh embeds up to limit properties and limit buyers.
func (r *EmbeddingRefresher) Refresh(ctx context.Context, limit int) (*RefreshStats, error) {
	if limit <= 0 {
		limit = 500
	}
	stats := &RefreshStats{}

	props, err := r.source.PropertiesMissingEmbedding(ctx, limit)
	if err != nil {
		return nil, err
	}
	propItems := make([]pendingEmbedding, 0, len(props))
	for i := range props {
		propItems = append(propItems, pendingEmbedding{kind: model.EmbeddingKindProperty, id: props[i].ID, text: props[i].EmbeddingText()})
	}
	n, errs, err := r.embed(ctx, propItems)
	if err != nil {
		return nil, fmt.Errorf("embed properties: %w", err)
	}
	stats.Properties = n
	stats.Errors = append(stats.Errors, errs...)

	buyers, err := r.source.BuyersMissingEmbedding(ctx, limit)
	if err != nil {
		return nil, err
	}
	buyerItems := make([]pendingEmbedding, 0, len(buyers))
	for i := range buyers {
		if text := buyers[i].TasteText(); text != "" {
			buyerItems = append(buyerItems, pendingEmbedding{kind: model.EmbeddingKindBuyer, id: buyers[i].ID, text: text})
		}
	}
	n, errs, err = r.embed(ctx, buyerItems)
	if err != nil {
		return nil, fmt.Errorf("embed buyers: %w", err)
	}
	stats.Buyers = n
	stats.Errors = append(stats.Errors, errs...)

	r.logger.Info("embedding refresh finished",
		zap.Int("properties", stats.Properties),
		zap.Int("buyers", stats.Buyers),
		zap.Int("errors", len(stats.Errors)),
	)
	return stats, nil
}

type pendingEmbedding struct {
	kind model.EmbeddingKind
	id   string
	text string
}

func (r *EmbeddingRefresher) embed(ctx context.Context, pending []pendingEmbedding) (int, []string, error) {
	if len(pending) == 0 {
		return 0, nil, nil
	}
	texts := make([]string, len(pending))
	for i, p := range pending {
		texts[i] = p.text
	}
	vectors, err := r.embedder.CreateEmbeddings(ctx, texts)
	if err != nil {
		return 0, nil, err
	}
	if len(vectors) != len(pending) {
		return 0, nil, fmt.Errorf("expected %d embeddings, got %d", len(pending), len(vectors))
	}

	items := make([]model.EmbeddingItem, len(pending))
	for i, p := range pending {
		items[i] = model.EmbeddingItem{Kind: p.kind, ID: p.id, Embedding: vectors[i]}
	}
	n, errs := r.source.BatchUpdateEmbeddings(ctx, items)
	return n, errs, nil
}
