package pagequery

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-rod/rod"
)

// RodPage queries a live browser page through go-rod. Unlike StaticPage it
// can see JS-rendered content and can visibly highlight matches. Browser
// calls can fail at any time (navigation, crash, detach), so every method
// converts panics from the CDP layer into errors.
type RodPage struct {
	page   *rod.Page
	logger *slog.Logger
}

var _ Querier = (*RodPage)(nil)

// NewRodPage wraps an already navigated rod page.
func NewRodPage(page *rod.Page, logger *slog.Logger) *RodPage {
	if logger == nil {
		logger = slog.Default()
	}
	return &RodPage{page: page, logger: logger.With("component", "rod-page")}
}

// recoverErr converts a panic from the browser layer into an error.
func recoverErr(err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("browser call failed: %v", r)
	}
}

func (p *RodPage) elements(selector string) (rod.Elements, error) {
	if IsXPath(selector) {
		return p.page.ElementsX(selector)
	}
	return p.page.Elements(selector)
}

// Count returns the number of elements matching the selector.
func (p *RodPage) Count(selector string) (count int, err error) {
	defer recoverErr(&err)

	els, err := p.elements(selector)
	if err != nil {
		return 0, fmt.Errorf("selector %q failed: %w", selector, err)
	}
	return len(els), nil
}

// Read returns the text or attribute value of the first match.
func (p *RodPage) Read(selector, attribute string) (value string, err error) {
	defer recoverErr(&err)

	els, err := p.elements(selector)
	if err != nil {
		return "", fmt.Errorf("selector %q failed: %w", selector, err)
	}
	if len(els) == 0 {
		return "", fmt.Errorf("no element matches %q", selector)
	}
	return p.readElement(els[0], attribute)
}

// ReadAll returns text or attribute values for every match.
func (p *RodPage) ReadAll(selector, attribute string) (values []string, err error) {
	defer recoverErr(&err)

	els, err := p.elements(selector)
	if err != nil {
		return nil, fmt.Errorf("selector %q failed: %w", selector, err)
	}
	for _, el := range els {
		v, err := p.readElement(el, attribute)
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, nil
}

func (p *RodPage) readElement(el *rod.Element, attribute string) (string, error) {
	if attribute != "" {
		attr, err := el.Attribute(attribute)
		if err != nil {
			return "", fmt.Errorf("failed to read attribute %q: %w", attribute, err)
		}
		if attr == nil {
			return "", nil
		}
		return *attr, nil
	}

	text, err := el.Text()
	if err != nil {
		return "", fmt.Errorf("failed to read text: %w", err)
	}
	return strings.TrimSpace(text), nil
}

// ElementHTML returns the outer HTML of up to max matches.
func (p *RodPage) ElementHTML(selector string, max int) (out []string, err error) {
	defer recoverErr(&err)

	els, err := p.elements(selector)
	if err != nil {
		return nil, fmt.Errorf("selector %q failed: %w", selector, err)
	}
	for _, el := range els {
		if max > 0 && len(out) >= max {
			break
		}
		h, err := el.HTML()
		if err != nil {
			return nil, fmt.Errorf("failed to read element HTML: %w", err)
		}
		out = append(out, h)
	}
	return out, nil
}

// highlightJS outlines every match and tags it with a label attribute so
// highlights can be cleared later.
const highlightJS = `(sel, label) => {
	const nodes = document.querySelectorAll(sel);
	for (const n of nodes) {
		n.style.outline = '2px solid #f60';
		n.style.outlineOffset = '1px';
		n.setAttribute('data-gleaner-highlight', label || '1');
	}
	return nodes.length;
}`

const clearHighlightJS = `(sel) => {
	const nodes = document.querySelectorAll(sel + '[data-gleaner-highlight]');
	for (const n of nodes) {
		n.style.outline = '';
		n.style.outlineOffset = '';
		n.removeAttribute('data-gleaner-highlight');
	}
	return nodes.length;
}`

// Highlight outlines matching elements in the live page and returns the
// match count. XPath selectors fall back to counting without highlighting
// since the in-page script only speaks CSS.
func (p *RodPage) Highlight(selector, label string) (count int, err error) {
	defer recoverErr(&err)

	if IsXPath(selector) {
		return p.Count(selector)
	}

	res, err := p.page.Eval(highlightJS, selector, label)
	if err != nil {
		return 0, fmt.Errorf("highlight failed for %q: %w", selector, err)
	}
	return res.Value.Int(), nil
}

// ClearHighlights removes outlines previously added by Highlight.
func (p *RodPage) ClearHighlights(selector string) (err error) {
	defer recoverErr(&err)

	if IsXPath(selector) {
		return nil
	}

	if _, err := p.page.Eval(clearHighlightJS, selector); err != nil {
		return fmt.Errorf("clear highlights failed for %q: %w", selector, err)
	}
	return nil
}
