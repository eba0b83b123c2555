package model

import (
	"encoding/json"
	"fmt"
	"strings"

	"matchengine/internal/utils"
)

// Feature is an enumerated property amenity a buyer can require.
type Feature string

const (
	FeatureSafeRoom   Feature = "safe_room"
	FeatureSunBalcony Feature = "sun_balcony"
	FeatureElevator   Feature = "elevator"
	FeatureParking    Feature = "parking"
)

// AllFeatures lists every supported feature in display order.
var AllFeatures = []Feature{FeatureSafeRoom, FeatureSunBalcony, FeatureElevator, FeatureParking}

// ParseFeature accepts canonical names, has_-prefixed names and common aliases.
func ParseFeature(s string) (Feature, error) {
	canonical, ok := utils.CanonicalFeature(s)
	if !ok {
		return "", fmt.Errorf("unknown feature %q", s)
	}
	return Feature(canonical), nil
}

// Label is the human-readable name used in exclusion reasons and prompts.
func (f Feature) Label() string {
	return strings.ReplaceAll(string(f), "_", " ")
}

// UnmarshalJSON implements json.Unmarshaler
func (f *Feature) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("feature must be a string: %w", err)
	}
	parsed, err := ParseFeature(s)
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}
