package utils

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var (
	fencedJSONRe   = regexp.MustCompile("(?s)```json\\s*(.+?)\\s*```")
	fencedAnyRe    = regexp.MustCompile("(?s)```\\s*(.+?)\\s*```")
	trailingComma  = regexp.MustCompile(`,\s*([}\]])`)
	unquotedKeyRe  = regexp.MustCompile(`([{,]\s*)(\w+)(\s*:)`)
	controlCharsRe = regexp.MustCompile(`[\x00-\x08\x0B\x0C\x0E-\x1F]`)
)

// ParseAIJSON extracts and parses a JSON object from model output that may contain:
// - Pure JSON
// - JSON wrapped in markdown code blocks (```json ... ```)
// - JSON with surrounding prose
// - Trailing commas, unquoted keys or single quotes
// When several objects appear, the first one that decodes into target wins.
func ParseAIJSON(input string, target interface{}) error {
	input = strings.TrimSpace(strings.TrimPrefix(input, "\ufeff"))
	if input == "" {
		return fmt.Errorf("empty input")
	}

	if err := json.Unmarshal([]byte(input), target); err == nil {
		return nil
	}

	if extracted := extractFromMarkdown(input); extracted != "" {
		if err := json.Unmarshal([]byte(extracted), target); err == nil {
			return nil
		}
		if err := json.Unmarshal([]byte(cleanAndFixJSON(extracted)), target); err == nil {
			return nil
		}
	}

	for _, snippet := range objectSnippets(input) {
		if err := json.Unmarshal([]byte(snippet), target); err == nil {
			return nil
		}
		if err := json.Unmarshal([]byte(cleanAndFixJSON(snippet)), target); err == nil {
			return nil
		}
	}

	return fmt.Errorf("failed to parse JSON from input: %s", TruncateForLog(input, 100))
}

// extractFromMarkdown extracts JSON from markdown code blocks
// Supports: ```json {...} ```, ```{...}```, or ```\n{...}\n```
func extractFromMarkdown(input string) string {
	if matches := fencedJSONRe.FindStringSubmatch(input); len(matches) > 1 {
		return strings.TrimSpace(matches[1])
	}

	if matches := fencedAnyRe.FindStringSubmatch(input); len(matches) > 1 {
		content := strings.TrimSpace(matches[1])
		if strings.HasPrefix(content, "{") {
			return content
		}
	}

	return ""
}

// objectSnippets returns every balanced top-level {...} block in text order.
func objectSnippets(input string) []string {
	var snippets []string
	for i := 0; i < len(input); i++ {
		if input[i] != '{' {
			continue
		}
		if extracted := extractBalancedBraces(input[i:], '{', '}'); extracted != "" {
			snippets = append(snippets, extracted)
			i += len(extracted) - 1
		}
	}
	return snippets
}

// extractBalancedBraces extracts content with balanced braces
func extractBalancedBraces(input string, open, close rune) string {
	depth := 0
	inString := false
	escape := false
	start := 0

	for i, ch := range input {
		if escape {
			escape = false
			continue
		}

		switch {
		case ch == '\\':
			escape = true
		case ch == '"':
			inString = !inString
		case inString:
		case ch == open:
			if depth == 0 {
				start = i
			}
			depth++
		case ch == close:
			depth--
			if depth == 0 {
				return input[start : i+1]
			}
		}
	}

	return ""
}

// cleanAndFixJSON attempts to fix common JSON formatting issues
func cleanAndFixJSON(input string) string {
	s := strings.TrimSpace(input)
	s = trailingComma.ReplaceAllString(s, "$1")
	s = unquotedKeyRe.ReplaceAllString(s, `$1"$2"$3`)
	s = fixSingleQuotes(s)
	return controlCharsRe.ReplaceAllString(s, "")
}

// fixSingleQuotes converts single-quoted strings to double-quoted ones.
// A single quote opens a string only where a JSON value or key may start.
func fixSingleQuotes(input string) string {
	var result strings.Builder
	inDouble, inSingle, escape := false, false, false
	var prev rune

	for _, ch := range input {
		switch {
		case escape:
			escape = false
		case ch == '\\':
			escape = true
		case inSingle && ch == '\'':
			inSingle = false
			ch = '"'
		case inSingle && ch == '"':
			result.WriteString(`\"`)
			continue
		case ch == '"' && !inSingle:
			inDouble = !inDouble
		case ch == '\'' && !inDouble && (prev == 0 || strings.ContainsRune(":,[{", prev)):
			inSingle = true
			ch = '"'
		}
		result.WriteRune(ch)
		if ch != ' ' && ch != '\n' && ch != '\t' {
			prev = ch
		}
	}

	return result.String()
}

// TruncateForLog shortens the provided string to the specified limit, appending an ellipsis when truncated.
func TruncateForLog(s string, limit int) string {
	s = strings.TrimSpace(s)
	if limit <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}
