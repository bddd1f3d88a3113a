// Package fetch retrieves page HTML for the pipeline. The colly-backed
// implementation harvests links and flags pages that look like they need
// JavaScript rendering.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
)

// Sentinel errors distinguishing fetch failure kinds.
var (
	// ErrTimeout indicates the page did not respond within the deadline.
	ErrTimeout = errors.New("fetch timeout")

	// ErrNetwork indicates a DNS or connection level failure.
	ErrNetwork = errors.New("network error")
)

// StatusError indicates the page answered with a non-success HTTP status.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("page returned status %d: %s", e.Code, e.URL)
}

// Result holds a fetched page.
type Result struct {
	URL        string
	HTML       string
	Links      []string
	StatusCode int
	FetchedAt  time.Time

	// RecommendDynamic is set when the page looks like a JS-rendered SPA
	// and a browser-backed querier would see more content.
	RecommendDynamic bool
}

// Fetcher retrieves page content.
type Fetcher interface {
	Fetch(ctx context.Context, targetURL string) (*Result, error)
}

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// CollyFetcher is the static HTTP implementation of Fetcher.
type CollyFetcher struct {
	timeout   time.Duration
	userAgent string
	logger    *slog.Logger
}

// NewCollyFetcher creates a fetcher with a hard per-request timeout.
// A zero timeout defaults to 30s.
func NewCollyFetcher(timeout time.Duration, logger *slog.Logger) *CollyFetcher {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CollyFetcher{
		timeout:   timeout,
		userAgent: defaultUserAgent,
		logger:    logger.With("component", "fetcher"),
	}
}

// Fetch retrieves targetURL, collecting same-domain links along the way.
func (f *CollyFetcher) Fetch(ctx context.Context, targetURL string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := &Result{URL: targetURL}
	var links []string

	c := colly.NewCollector(
		colly.UserAgent(f.userAgent),
		colly.AllowURLRevisit(),
	)
	c.SetRequestTimeout(f.timeout)

	c.OnResponse(func(r *colly.Response) {
		result.HTML = string(r.Body)
		result.StatusCode = r.StatusCode

		bodyStr := result.HTML
		if strings.Contains(bodyStr, "__NEXT_DATA__") ||
			strings.Contains(bodyStr, "window.__NUXT__") ||
			strings.Contains(bodyStr, "ng-app") ||
			strings.Contains(bodyStr, "id=\"app\"") && strings.Count(bodyStr, "<div") < 10 {
			result.RecommendDynamic = true
		}
	})

	c.OnHTML("a[href]", func(e *colly.HTMLElement) {
		href := e.Attr("href")
		if href != "" && !strings.HasPrefix(href, "#") && !strings.HasPrefix(href, "javascript:") {
			if absURL := e.Request.AbsoluteURL(href); absURL != "" {
				links = append(links, absURL)
			}
		}
	})

	c.OnHTML("script", func(e *colly.HTMLElement) {
		src := e.Attr("src")
		if strings.Contains(src, "react") || strings.Contains(src, "vue") || strings.Contains(src, "angular") {
			result.RecommendDynamic = true
		}
	})

	var statusErr *StatusError
	c.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode > 0 {
			statusErr = &StatusError{Code: r.StatusCode, URL: targetURL}
			result.StatusCode = r.StatusCode
		}
	})

	if err := c.Visit(targetURL); err != nil {
		f.logger.Warn("fetch failed", "url", targetURL, "error", err)
		if statusErr != nil {
			return nil, statusErr
		}
		return nil, classifyFetchError(err, targetURL)
	}
	if statusErr != nil {
		return nil, statusErr
	}

	result.Links = filterLinks(targetURL, links)
	result.FetchedAt = time.Now()

	f.logger.Debug("fetched page",
		"url", targetURL,
		"size", len(result.HTML),
		"links", len(result.Links),
		"recommend_dynamic", result.RecommendDynamic,
	)

	return result, nil
}

// classifyFetchError maps a transport error to one of the fetch sentinels.
func classifyFetchError(err error, targetURL string) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %s: %v", ErrTimeout, targetURL, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s: %v", ErrTimeout, targetURL, err)
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded") {
		return fmt.Errorf("%w: %s: %v", ErrTimeout, targetURL, err)
	}
	return fmt.Errorf("%w: %s: %v", ErrNetwork, targetURL, err)
}

// filterLinks deduplicates links and keeps only same-domain, content-like
// paths.
func filterLinks(baseURL string, links []string) []string {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return links
	}
	baseDomain := parsed.Host

	seen := make(map[string]bool)
	var filtered []string

	for _, link := range links {
		linkParsed, err := url.Parse(link)
		if err != nil {
			continue
		}

		if linkParsed.Host != baseDomain {
			continue
		}

		// Skip common non-content links
		path := strings.ToLower(linkParsed.Path)
		if strings.Contains(path, "login") ||
			strings.Contains(path, "signup") ||
			strings.Contains(path, "cart") ||
			strings.Contains(path, "checkout") ||
			strings.Contains(path, "account") ||
			strings.Contains(path, "privacy") ||
			strings.Contains(path, "terms") {
			continue
		}

		if seen[link] {
			continue
		}
		seen[link] = true
		filtered = append(filtered, link)
	}

	return filtered
}
