// Package pagequery evaluates selectors against a page. Two implementations
// exist: StaticPage over parsed HTML and RodPage over a live browser page.
// Callers never learn which one they hold.
package pagequery

import "strings"

// Querier evaluates selectors against a page. Every method is fallible;
// implementations return errors instead of panicking on bad selectors.
type Querier interface {
	// Count returns how many elements match the selector.
	Count(selector string) (int, error)

	// Read returns the text content of the first match, or the named
	// attribute when attribute is non-empty.
	Read(selector, attribute string) (string, error)

	// ReadAll returns text or attribute values for every match.
	ReadAll(selector, attribute string) ([]string, error)

	// ElementHTML returns the outer HTML of up to max matches.
	// max <= 0 means no limit.
	ElementHTML(selector string, max int) ([]string, error)

	// Highlight visually marks matches where the page supports it and
	// returns the match count. Static pages count without marking.
	Highlight(selector, label string) (int, error)

	// ClearHighlights removes marks left by Highlight.
	ClearHighlights(selector string) error
}

// IsXPath reports whether a selector string is XPath rather than CSS.
// XPath selectors start with "/", "./" or "(".
func IsXPath(selector string) bool {
	s := strings.TrimSpace(selector)
	return strings.HasPrefix(s, "/") ||
		strings.HasPrefix(s, "./") ||
		strings.HasPrefix(s, "(")
}
