package agent

import (
	"fmt"
	"regexp"
	"strings"
)

// detectedPattern is a repeated structural pattern found in page HTML.
type detectedPattern struct {
	Name  string
	Count int
}

// minRepeats is the threshold below which a repeated pattern is ignored.
// Fewer repeats usually means navigation chrome, not content.
const minRepeats = 3

var patternDetectors = []struct {
	name     string
	patterns []string
}{
	{"products", []string{
		`class="[^"]*product[^"]*"`,
		`data-product`,
		`itemtype="[^"]*Product"`,
	}},
	{"articles", []string{
		`<article`,
		`class="[^"]*article[^"]*"`,
		`class="[^"]*post[^"]*"`,
	}},
	{"jobs", []string{
		`class="[^"]*job[^"]*"`,
		`class="[^"]*vacancy[^"]*"`,
		`class="[^"]*position[^"]*"`,
	}},
	{"events", []string{
		`class="[^"]*event[^"]*"`,
		`class="[^"]*webinar[^"]*"`,
	}},
	{"items", []string{
		`class="[^"]*card[^"]*"`,
		`class="[^"]*tile[^"]*"`,
		`class="[^"]*grid-item[^"]*"`,
	}},
}

// detectRepeats scans raw HTML for repeated structural patterns that
// suggest the page is a listing. Run before truncation so the counts see
// the whole page.
func detectRepeats(content string) []detectedPattern {
	lower := strings.ToLower(content)

	var detected []detectedPattern
	for _, d := range patternDetectors {
		count := countPatterns(lower, d.patterns)
		if count >= minRepeats {
			detected = append(detected, detectedPattern{Name: d.name, Count: count})
		}
	}

	// Fall back to generic list rows when nothing named matched.
	if len(detected) == 0 {
		if liCount := strings.Count(lower, "<li"); liCount >= 5 {
			detected = append(detected, detectedPattern{Name: "items", Count: liCount})
		}
	}

	// Sort by count descending.
	for i := 0; i < len(detected)-1; i++ {
		for j := i + 1; j < len(detected); j++ {
			if detected[j].Count > detected[i].Count {
				detected[i], detected[j] = detected[j], detected[i]
			}
		}
	}

	return detected
}

// countPatterns returns the highest match count of any single pattern.
func countPatterns(content string, patterns []string) int {
	maxCount := 0
	for _, pattern := range patterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			continue
		}
		if n := len(re.FindAllString(content, -1)); n > maxCount {
			maxCount = n
		}
	}
	return maxCount
}

// hintsPromptSection renders detected patterns as a prompt section, or
// empty when there is nothing to hint.
func hintsPromptSection(detected []detectedPattern) string {
	if len(detected) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("\n## Structural Hints\n")
	sb.WriteString("Automated analysis of the full page found repeated elements:\n")
	for _, d := range detected {
		sb.WriteString(fmt.Sprintf("- ~%d repeated %q elements\n", d.Count, d.Name))
	}
	sb.WriteString("This page is likely a listing; prefer list fields and per-item selectors.\n")
	return sb.String()
}
