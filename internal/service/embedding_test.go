package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"matchengine/internal/model"
)

type fakeEmbedder struct {
	texts [][]string
	err   error
}

func (f *fakeEmbedder) CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.texts = append(f.texts, texts)
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(i), 1, 0}
	}
	return out, nil
}

type fakeEmbeddingSource struct {
	properties []model.Property
	buyers     []model.Buyer
	stored     []model.EmbeddingItem
}

func (f *fakeEmbeddingSource) PropertiesMissingEmbedding(ctx context.Context, limit int) ([]model.Property, error) {
	return f.properties, nil
}

func (f *fakeEmbeddingSource) BuyersMissingEmbedding(ctx context.Context, limit int) ([]model.Buyer, error) {
	return f.buyers, nil
}

func (f *fakeEmbeddingSource) BatchUpdateEmbeddings(ctx context.Context, items []model.EmbeddingItem) (int, []string) {
	f.stored = append(f.stored, items...)
	return len(items), nil
}

func TestEmbeddingRefresh(t *testing.T) {
	source := &fakeEmbeddingSource{
		properties: []model.Property{
			{ID: "A", Address: "Herzl 10", City: "Tel Aviv", HasElevator: true, Description: ptr("Bright corner unit")},
		},
		buyers: []model.Buyer{
			{ID: "dana", TasteLiked: ptr("quiet streets")},
			{ID: "blank"},
		},
	}
	embedder := &fakeEmbedder{}
	r := NewEmbeddingRefresher(embedder, source, nil)

	stats, err := r.Refresh(context.Background(), 0)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if stats.Properties != 1 || stats.Buyers != 1 || len(stats.Errors) != 0 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if len(embedder.texts) != 2 {
		t.Fatalf("expected two embedding calls, got %d", len(embedder.texts))
	}
	if text := embedder.texts[0][0]; !strings.Contains(text, "Herzl 10") || !strings.Contains(text, "elevator") || !strings.Contains(text, "Bright corner unit") {
		t.Fatalf("unexpected property text %q", text)
	}
	if text := embedder.texts[1][0]; text != "Likes: quiet streets" {
		t.Fatalf("unexpected taste text %q", text)
	}
	if len(source.stored) != 2 || source.stored[1].Kind != model.EmbeddingKindBuyer || source.stored[1].ID != "dana" {
		t.Fatalf("unexpected stored items: %+v", source.stored)
	}
}

func TestEmbeddingRefreshPropagatesEmbedderError(t *testing.T) {
	source := &fakeEmbeddingSource{properties: []model.Property{{ID: "A"}}}
	r := NewEmbeddingRefresher(&fakeEmbedder{err: errors.New("boom")}, source, nil)

	if _, err := r.Refresh(context.Background(), 10); err == nil {
		t.Fatalf("expected error")
	}
	if len(source.stored) != 0 {
		t.Fatalf("nothing should be stored on embedder failure")
	}
}
