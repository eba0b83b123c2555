package service

import (
	"math"
	"sort"

	"github.com/pgvector/pgvector-go"

	"matchengine/internal/model"
)

// Ranker shortlists passing candidates before the oracle call so the
// request stays bounded. It never decides a match on its own.
type Ranker struct {
	weightSimilarity float64
	weightPrice      float64
}

// NewRanker creates a new ranker with specified weights
func NewRanker(weightSimilarity, weightPrice float64) *Ranker {
	return &Ranker{
		weightSimilarity: weightSimilarity,
		weightPrice:      weightPrice,
	}
}

type scoredCandidate struct {
	property model.Property
	score    float64
}

// Shortlist returns at most limit candidates, best first. When the input
// already fits, it is returned unchanged.
func (r *Ranker) Shortlist(buyer *model.Buyer, candidates []model.Property, limit int) []model.Property {
	if limit <= 0 || len(candidates) <= limit {
		return candidates
	}

	scored := make([]scoredCandidate, len(candidates))
	for i, p := range candidates {
		scored[i] = scoredCandidate{property: p, score: r.Score(buyer, &candidates[i])}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].score > scored[j].score
	})

	out := make([]model.Property, limit)
	for i := 0; i < limit; i++ {
		out[i] = scored[i].property
	}
	return out
}

// Score combines taste similarity and price fit, each normalized to 0-1.
func (r *Ranker) Score(buyer *model.Buyer, p *model.Property) float64 {
	similarity := r.calculateSimilarityScore(buyer.TasteEmbedding, p.Embedding)
	price := r.calculatePriceScore(p.Price, &buyer.Criteria)
	return r.weightSimilarity*similarity + r.weightPrice*price
}

// calculateSimilarityScore maps cosine similarity from [-1,1] to [0,1]
func (r *Ranker) calculateSimilarityScore(taste, embedding *pgvector.Vector) float64 {
	if taste == nil || embedding == nil {
		return 0.5 // Neutral score if either side has no embedding
	}
	cos, ok := cosineSimilarity(taste.Slice(), embedding.Slice())
	if !ok {
		return 0.5
	}
	return (cos + 1) / 2
}

// calculatePriceScore calculates how well the price matches the buyer's budget
func (r *Ranker) calculatePriceScore(price *float64, c *model.Criteria) float64 {
	if price == nil {
		return 0.5 // Neutral score if no price
	}

	if c == nil || (c.BudgetMin == nil && c.BudgetMax == nil) {
		return 1.0 // Full score if no budget
	}

	actual := *price

	// Within range, score based on distance from midpoint
	if c.BudgetMin != nil && c.BudgetMax != nil {
		minPrice := *c.BudgetMin
		maxPrice := *c.BudgetMax

		midpoint := (minPrice + maxPrice) / 2
		half := (maxPrice - minPrice) / 2
		if half == 0 {
			if actual == midpoint {
				return 1.0
			}
			half = midpoint * 0.2
			if half == 0 {
				return 0.0
			}
		}

		score := 1.0 - math.Abs(actual-midpoint)/half
		if score < 0 {
			score = 0
		}
		return score
	}

	// Only min or max specified
	if c.BudgetMin != nil {
		if actual < *c.BudgetMin {
			return 0.5
		}
		return 1.0
	}

	if actual > *c.BudgetMax {
		return 0.5
	}
	return 1.0
}

func cosineSimilarity(a, b []float32) (float64, bool) {
	if len(a) == 0 || len(a) != len(b) {
		return 0, false
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0, false
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), true
}
