package pagequery

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

// StaticPage queries a parsed HTML document. CSS selectors go through
// cascadia/goquery, XPath through htmlquery, both over the same node tree.
type StaticPage struct {
	root    *html.Node
	doc     *goquery.Document
	baseURL string
}

var _ Querier = (*StaticPage)(nil)

// NewStaticPage parses an HTML document for querying. baseURL is kept for
// callers that resolve relative links against the page origin.
func NewStaticPage(htmlStr, baseURL string) (*StaticPage, error) {
	root, err := html.Parse(strings.NewReader(htmlStr))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	return &StaticPage{
		root:    root,
		doc:     goquery.NewDocumentFromNode(root),
		baseURL: baseURL,
	}, nil
}

// BaseURL returns the page origin URL the document was loaded from.
func (p *StaticPage) BaseURL() string {
	return p.baseURL
}

// cssMatcher compiles a CSS selector, returning an error for selectors
// goquery.Find would panic on.
func cssMatcher(selector string) (cascadia.Selector, error) {
	m, err := cascadia.Compile(selector)
	if err != nil {
		return nil, fmt.Errorf("invalid CSS selector %q: %w", selector, err)
	}
	return m, nil
}

// Count returns the number of elements matching the selector.
func (p *StaticPage) Count(selector string) (int, error) {
	if IsXPath(selector) {
		nodes, err := htmlquery.QueryAll(p.root, selector)
		if err != nil {
			return 0, fmt.Errorf("invalid XPath %q: %w", selector, err)
		}
		return len(nodes), nil
	}

	m, err := cssMatcher(selector)
	if err != nil {
		return 0, err
	}
	return p.doc.FindMatcher(m).Length(), nil
}

// Read returns the text or attribute value of the first match.
func (p *StaticPage) Read(selector, attribute string) (string, error) {
	values, err := p.read(selector, attribute, 1)
	if err != nil {
		return "", err
	}
	if len(values) == 0 {
		return "", fmt.Errorf("no element matches %q", selector)
	}
	return values[0], nil
}

// ReadAll returns text or attribute values for every match.
func (p *StaticPage) ReadAll(selector, attribute string) ([]string, error) {
	return p.read(selector, attribute, 0)
}

func (p *StaticPage) read(selector, attribute string, max int) ([]string, error) {
	if IsXPath(selector) {
		nodes, err := htmlquery.QueryAll(p.root, selector)
		if err != nil {
			return nil, fmt.Errorf("invalid XPath %q: %w", selector, err)
		}
		var values []string
		for _, node := range nodes {
			if max > 0 && len(values) >= max {
				break
			}
			if attribute != "" {
				values = append(values, htmlquery.SelectAttr(node, attribute))
			} else {
				values = append(values, strings.TrimSpace(htmlquery.InnerText(node)))
			}
		}
		return values, nil
	}

	m, err := cssMatcher(selector)
	if err != nil {
		return nil, err
	}

	var values []string
	p.doc.FindMatcher(m).EachWithBreak(func(i int, s *goquery.Selection) bool {
		if max > 0 && len(values) >= max {
			return false
		}
		if attribute != "" {
			val, _ := s.Attr(attribute)
			values = append(values, val)
		} else {
			values = append(values, strings.TrimSpace(s.Text()))
		}
		return true
	})
	return values, nil
}

// ElementHTML returns the outer HTML of up to max matches.
func (p *StaticPage) ElementHTML(selector string, max int) ([]string, error) {
	if IsXPath(selector) {
		nodes, err := htmlquery.QueryAll(p.root, selector)
		if err != nil {
			return nil, fmt.Errorf("invalid XPath %q: %w", selector, err)
		}
		var out []string
		for _, node := range nodes {
			if max > 0 && len(out) >= max {
				break
			}
			out = append(out, htmlquery.OutputHTML(node, true))
		}
		return out, nil
	}

	m, err := cssMatcher(selector)
	if err != nil {
		return nil, err
	}

	var out []string
	var renderErr error
	p.doc.FindMatcher(m).EachWithBreak(func(i int, s *goquery.Selection) bool {
		if max > 0 && len(out) >= max {
			return false
		}
		h, err := goquery.OuterHtml(s)
		if err != nil {
			renderErr = err
			return false
		}
		out = append(out, h)
		return true
	})
	if renderErr != nil {
		return nil, fmt.Errorf("failed to render element: %w", renderErr)
	}
	return out, nil
}

// Highlight counts matches. Static documents have nothing to mark, so this
// is the count with no side effect.
func (p *StaticPage) Highlight(selector, label string) (int, error) {
	return p.Count(selector)
}

// ClearHighlights is a no-op for static documents.
func (p *StaticPage) ClearHighlights(selector string) error {
	return nil
}
