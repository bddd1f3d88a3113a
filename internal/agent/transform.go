package agent

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// currencyStripper removes currency symbols, grouping separators and
// whitespace ahead of numeric parsing.
var currencyStripper = strings.NewReplacer(
	"$", "", "£", "", "€", "", "¥", "", "₹", "",
	",", "", " ", "", " ", "",
)

var booleanTokens = map[string]bool{
	"true": true, "yes": true, "1": true, "on": true, "✓": true, "checked": true,
	"false": false, "no": false, "0": false, "off": false, "✗": false,
}

// applyTransform normalizes a raw extracted string. On failure the raw
// value is returned along with the error so callers can keep it and report
// the problem instead of dropping data.
func applyTransform(value, transform, baseURL string) (any, error) {
	switch transform {
	case "", "trim":
		return strings.TrimSpace(value), nil

	case "lowercase":
		return strings.ToLower(strings.TrimSpace(value)), nil

	case "uppercase":
		return strings.ToUpper(strings.TrimSpace(value)), nil

	case "number":
		return parseNumber(value)

	case "boolean":
		return parseBoolean(value)

	case "url":
		return resolveURL(value, baseURL)

	default:
		// Unknown transforms degrade to trim rather than failing.
		return strings.TrimSpace(value), nil
	}
}

// parseNumber extracts a float from text carrying currency symbols and
// grouping separators, e.g. "$1,234.56" -> 1234.56.
func parseNumber(value string) (any, error) {
	cleaned := currencyStripper.Replace(strings.TrimSpace(value))
	if cleaned == "" {
		return value, fmt.Errorf("no numeric content in %q", value)
	}

	n, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return value, fmt.Errorf("cannot parse %q as number", value)
	}
	return n, nil
}

// parseBoolean maps common truthy/falsy tokens to a bool.
func parseBoolean(value string) (any, error) {
	token := strings.ToLower(strings.TrimSpace(value))
	b, ok := booleanTokens[token]
	if !ok {
		return value, fmt.Errorf("cannot parse %q as boolean", value)
	}
	return b, nil
}

// resolveURL makes a URL absolute against the page origin. Root-relative
// paths resolve against the origin; already absolute URLs pass through.
func resolveURL(value, baseURL string) (any, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return value, fmt.Errorf("empty URL")
	}

	ref, err := url.Parse(value)
	if err != nil {
		return value, fmt.Errorf("invalid URL %q", value)
	}
	if ref.IsAbs() {
		return ref.String(), nil
	}

	base, err := url.Parse(baseURL)
	if err != nil || base.Scheme == "" {
		return value, fmt.Errorf("cannot resolve %q without a valid base URL", value)
	}
	return base.ResolveReference(ref).String(), nil
}
