package model

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pgvector/pgvector-go"

	"matchengine/internal/utils"
)

// Criteria holds a buyer's hard constraints. A nil bound or an empty set is
// "no constraint". TargetNeighborhoods is a wildcard when empty: it matches
// any neighborhood inside the allowed cities, not "no neighborhood allowed".
type Criteria struct {
	BudgetMin           *float64   `json:"budget_min" db:"budget_min"`
	BudgetMax           *float64   `json:"budget_max" db:"budget_max"`
	MinRooms            *float64   `json:"min_rooms" db:"min_rooms"`
	TargetCities        StringSet  `json:"target_cities" db:"target_cities"`
	TargetNeighborhoods StringSet  `json:"target_neighborhoods" db:"target_neighborhoods"`
	RequiredFeatures    FeatureSet `json:"required_features" db:"required_features"`
	FloorMin            *int       `json:"floor_min" db:"floor_min"`
	FloorMax            *int       `json:"floor_max" db:"floor_max"`
}

// ErrInvalidCriteria is wrapped by every Criteria.Validate failure.
var ErrInvalidCriteria = errors.New("invalid criteria")

// Validate rejects inverted or negative bounds. Inverted ranges are never swapped.
func (c *Criteria) Validate() error {
	if c.BudgetMin != nil && *c.BudgetMin < 0 {
		return fmt.Errorf("%w: budget_min must not be negative", ErrInvalidCriteria)
	}
	if c.BudgetMax != nil && *c.BudgetMax < 0 {
		return fmt.Errorf("%w: budget_max must not be negative", ErrInvalidCriteria)
	}
	if c.BudgetMin != nil && c.BudgetMax != nil && *c.BudgetMin > *c.BudgetMax {
		return fmt.Errorf("%w: budget_min %.0f exceeds budget_max %.0f", ErrInvalidCriteria, *c.BudgetMin, *c.BudgetMax)
	}
	if c.MinRooms != nil && *c.MinRooms < 0 {
		return fmt.Errorf("%w: min_rooms must not be negative", ErrInvalidCriteria)
	}
	if c.FloorMin != nil && c.FloorMax != nil && *c.FloorMin > *c.FloorMax {
		return fmt.Errorf("%w: floor_min %d exceeds floor_max %d", ErrInvalidCriteria, *c.FloorMin, *c.FloorMax)
	}
	return nil
}

// Normalize trims and dedupes the location sets and required features in place.
func (c *Criteria) Normalize() {
	c.TargetCities = utils.NormalizeSet(c.TargetCities)
	c.TargetNeighborhoods = utils.NormalizeSet(c.TargetNeighborhoods)
	if len(c.RequiredFeatures) > 0 {
		seen := make(map[Feature]struct{}, len(c.RequiredFeatures))
		out := c.RequiredFeatures[:0]
		for _, f := range c.RequiredFeatures {
			if _, ok := seen[f]; ok {
				continue
			}
			seen[f] = struct{}{}
			out = append(out, f)
		}
		c.RequiredFeatures = out
	}
}

// Buyer is read-only from the engine's point of view, except for criteria
// edits that arrive through the criteria update entry point.
type Buyer struct {
	ID   string `json:"id" db:"id"`
	Name string `json:"name" db:"name"`
	Criteria
	TasteLiked     *string          `json:"taste_liked,omitempty" db:"taste_liked"`
	TasteDisliked  *string          `json:"taste_disliked,omitempty" db:"taste_disliked"`
	TasteSummary   *string          `json:"taste_summary,omitempty" db:"taste_summary"`
	TasteEmbedding *pgvector.Vector `json:"-" db:"taste_embedding"`
	CreatedAt      time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at" db:"updated_at"`
}

// HasTasteProfile reports whether at least one taste field carries text.
func (b *Buyer) HasTasteProfile() bool {
	for _, field := range []*string{b.TasteLiked, b.TasteDisliked, b.TasteSummary} {
		if field != nil && strings.TrimSpace(*field) != "" {
			return true
		}
	}
	return false
}

// TasteText joins the taste fields into the text used for embeddings.
func (b *Buyer) TasteText() string {
	var parts []string
	if b.TasteSummary != nil && strings.TrimSpace(*b.TasteSummary) != "" {
		parts = append(parts, strings.TrimSpace(*b.TasteSummary))
	}
	if b.TasteLiked != nil && strings.TrimSpace(*b.TasteLiked) != "" {
		parts = append(parts, "Likes: "+strings.TrimSpace(*b.TasteLiked))
	}
	if b.TasteDisliked != nil && strings.TrimSpace(*b.TasteDisliked) != "" {
		parts = append(parts, "Dislikes: "+strings.TrimSpace(*b.TasteDisliked))
	}
	return strings.Join(parts, "\n")
}
