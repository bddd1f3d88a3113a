package agent

import (
	"strings"

	"github.com/tidwall/gjson"
)

// extractJSON locates the first JSON value in free-form model output.
// Fenced ```json blocks win; otherwise the first balanced object or array
// found by scanning is used. Returns false when no valid JSON is present.
func extractJSON(text string) (string, bool) {
	// Fenced block first.
	if idx := strings.Index(text, "```json"); idx >= 0 {
		rest := text[idx+len("```json"):]
		if end := strings.Index(rest, "```"); end >= 0 {
			candidate := strings.TrimSpace(rest[:end])
			if gjson.Valid(candidate) {
				return candidate, true
			}
		}
	}
	// Generic fence.
	if idx := strings.Index(text, "```"); idx >= 0 {
		rest := text[idx+3:]
		if end := strings.Index(rest, "```"); end >= 0 {
			candidate := strings.TrimSpace(rest[:end])
			if gjson.Valid(candidate) {
				return candidate, true
			}
		}
	}

	// Balanced scan from the first opening bracket.
	for i := 0; i < len(text); i++ {
		if text[i] != '{' && text[i] != '[' {
			continue
		}
		if candidate, ok := balancedFrom(text, i); ok {
			return candidate, true
		}
		// A false start; keep scanning past it.
	}

	return "", false
}

// balancedFrom extracts a balanced JSON value starting at text[start],
// respecting strings and escapes, and verifies it parses.
func balancedFrom(text string, start int) (string, bool) {
	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(text); i++ {
		c := text[i]

		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			inString = true
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				candidate := text[start : i+1]
				if gjson.Valid(candidate) {
					return candidate, true
				}
				return "", false
			}
		}
	}

	return "", false
}
