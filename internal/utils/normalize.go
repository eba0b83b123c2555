package utils

import (
	"strings"

	"golang.org/x/text/cases"
)

// NormalizeKey returns the comparison form of a free-text location value:
// surrounding and repeated whitespace collapsed, case folded.
// "  Tel  Aviv " and "tel aviv" produce the same key.
func NormalizeKey(s string) string {
	collapsed := strings.Join(strings.Fields(s), " ")
	if collapsed == "" {
		return ""
	}
	// Casers are stateful, so one is built per call.
	return cases.Fold().String(collapsed)
}

// NormalizeSet trims every value, drops empties and removes duplicates by
// NormalizeKey while keeping the first spelling seen.
func NormalizeSet(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		display := strings.Join(strings.Fields(v), " ")
		key := NormalizeKey(display)
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, display)
	}
	return out
}

// ContainsKey reports whether value matches any entry of set by NormalizeKey.
func ContainsKey(set []string, value string) bool {
	key := NormalizeKey(value)
	if key == "" {
		return false
	}
	for _, candidate := range set {
		if NormalizeKey(candidate) == key {
			return true
		}
	}
	return false
}

// featureAliases maps the spellings agents actually type to canonical feature names.
var featureAliases = map[string][]string{
	"safe_room":   {"safe room", "saferoom", "mamad", "mamad room", "shelter", "protected room"},
	"sun_balcony": {"sun balcony", "balcony", "sukkah balcony", "terrace"},
	"elevator":    {"lift", "elevators"},
	"parking":     {"parking spot", "parking spots", "car park", "garage", "covered parking"},
}

// CanonicalFeature resolves a feature name or alias to its canonical form.
// A "has_" prefix is ignored, so "has_elevator" resolves to "elevator".
func CanonicalFeature(name string) (string, bool) {
	n := strings.ToLower(strings.TrimSpace(name))
	n = strings.TrimPrefix(n, "has_")
	n = strings.TrimPrefix(n, "has ")
	spaced := strings.ReplaceAll(strings.ReplaceAll(n, "_", " "), "-", " ")
	spaced = strings.Join(strings.Fields(spaced), " ")

	for canonical, aliases := range featureAliases {
		if n == canonical || spaced == strings.ReplaceAll(canonical, "_", " ") {
			return canonical, true
		}
		for _, alias := range aliases {
			if spaced == alias {
				return canonical, true
			}
		}
	}
	return "", false
}
