package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/pgvector/pgvector-go"
)

// PropertyStatusAvailable marks inventory that takes part in matching
const PropertyStatusAvailable = "available"

// Property represents a listing in the inventory. Immutable for a matching run.
type Property struct {
	ID            string           `json:"id" db:"id"`
	Address       string           `json:"address" db:"address"`
	City          string           `json:"city" db:"city"`
	Neighborhood  *string          `json:"neighborhood,omitempty" db:"neighborhood"`
	Price         *float64         `json:"price,omitempty" db:"price"`
	Rooms         *float64         `json:"rooms,omitempty" db:"rooms"`
	Size          *float64         `json:"size,omitempty" db:"size"`
	Floor         *int             `json:"floor,omitempty" db:"floor"`
	HasSafeRoom   bool             `json:"has_safe_room" db:"has_safe_room"`
	HasSunBalcony bool             `json:"has_sun_balcony" db:"has_sun_balcony"`
	HasElevator   bool             `json:"has_elevator" db:"has_elevator"`
	ParkingSpots  *int             `json:"parking_spots,omitempty" db:"parking_spots"`
	Description   *string          `json:"description,omitempty" db:"description"`
	Status        string           `json:"status" db:"status"`
	Embedding     *pgvector.Vector `json:"-" db:"embedding"`
	CreatedAt     time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at" db:"updated_at"`
}

// HasFeature reports whether the property offers f. Parking is numeric and
// counts as present when the property has at least one spot.
func (p *Property) HasFeature(f Feature) bool {
	switch f {
	case FeatureSafeRoom:
		return p.HasSafeRoom
	case FeatureSunBalcony:
		return p.HasSunBalcony
	case FeatureElevator:
		return p.HasElevator
	case FeatureParking:
		return p.ParkingSpots != nil && *p.ParkingSpots > 0
	default:
		return false
	}
}

// Features lists the features the property offers.
func (p *Property) Features() []Feature {
	var out []Feature
	for _, f := range AllFeatures {
		if p.HasFeature(f) {
			out = append(out, f)
		}
	}
	return out
}

// Summary is a one-line description used in prompts and feedback context.
func (p *Property) Summary() string {
	var b strings.Builder
	b.WriteString(p.Address)
	if p.City != "" {
		if b.Len() > 0 {
			b.WriteString(", ")
		}
		b.WriteString(p.City)
	}
	if p.Neighborhood != nil && *p.Neighborhood != "" {
		fmt.Fprintf(&b, " (%s)", *p.Neighborhood)
	}
	if p.Rooms != nil {
		fmt.Fprintf(&b, ", %g rooms", *p.Rooms)
	}
	if p.Price != nil {
		fmt.Fprintf(&b, ", price %.0f", *p.Price)
	}
	return b.String()
}

// EmbeddingText is the text the embedding refresher sends for this property.
func (p *Property) EmbeddingText() string {
	text := p.Summary()
	if labels := FeatureLabels(p.Features()); labels != "" {
		text += ". Features: " + labels
	}
	if p.Description != nil && strings.TrimSpace(*p.Description) != "" {
		text += ". " + strings.TrimSpace(*p.Description)
	}
	return text
}

// FeatureLabels joins the human labels of features with ", ".
func FeatureLabels(features []Feature) string {
	labels := make([]string, len(features))
	for i, f := range features {
		labels[i] = f.Label()
	}
	return strings.Join(labels, ", ")
}
