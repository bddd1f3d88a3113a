package agent

import (
	"strings"
)

// parsedSelectors is the raw scan of a selector response.
type parsedSelectors struct {
	CSS         []string
	XPath       []string
	Explanation string
}

// parseSelectorResponse scans a model response for css:/xpath: prefixed
// lines, fenced or bare, deduplicating while preserving order. An
// explanation: line captures the remainder of its line plus following
// unprefixed lines.
func parseSelectorResponse(text string) *parsedSelectors {
	out := &parsedSelectors{}
	seen := make(map[string]bool)
	inExplanation := false

	add := func(dst *[]string, raw string) {
		sel := cleanSelectorToken(raw)
		if sel == "" || seen[sel] {
			return
		}
		seen[sel] = true
		*dst = append(*dst, sel)
	}

	for _, rawLine := range strings.Split(text, "\n") {
		line := strings.TrimSpace(rawLine)
		if line == "" || strings.HasPrefix(line, "```") {
			continue
		}
		// Tolerate bulleted prefixed lines ("- css: .foo").
		line = strings.TrimLeft(line, "-*• ")

		lower := strings.ToLower(line)
		switch {
		case strings.HasPrefix(lower, "css:"):
			inExplanation = false
			add(&out.CSS, line[len("css:"):])
		case strings.HasPrefix(lower, "xpath:"):
			inExplanation = false
			add(&out.XPath, line[len("xpath:"):])
		case strings.HasPrefix(lower, "explanation:"):
			inExplanation = true
			out.Explanation = strings.TrimSpace(line[len("explanation:"):])
		case inExplanation:
			if out.Explanation != "" {
				out.Explanation += " "
			}
			out.Explanation += line
		}
	}

	return out
}

// firstLineSelector extracts a single selector from a response expected to
// hold just one: the first non-empty, non-fence line, stripped of wrapping.
func firstLineSelector(text string) string {
	for _, rawLine := range strings.Split(text, "\n") {
		line := strings.TrimSpace(rawLine)
		if line == "" || strings.HasPrefix(line, "```") {
			continue
		}
		// Strip a css:/xpath: prefix if the model added one anyway.
		lower := strings.ToLower(line)
		if strings.HasPrefix(lower, "css:") {
			line = line[len("css:"):]
		} else if strings.HasPrefix(lower, "xpath:") {
			line = line[len("xpath:"):]
		}
		return cleanSelectorToken(line)
	}
	return ""
}
