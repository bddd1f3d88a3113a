package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jmylchreest/gleaner/internal/models"
	"github.com/jmylchreest/gleaner/internal/pagequery"
)

// SelectorAgent derives CSS/XPath selectors for described page targets.
type SelectorAgent struct {
	gateway Gateway
	logger  *slog.Logger

	// concurrency bounds GenerateMultiSelectors fan-out.
	concurrency int
}

// NewSelectorAgent creates a selector agent. concurrency <= 0 defaults to 4.
func NewSelectorAgent(gateway Gateway, concurrency int, logger *slog.Logger) *SelectorAgent {
	if logger == nil {
		logger = slog.Default()
	}
	if concurrency <= 0 {
		concurrency = 4
	}
	return &SelectorAgent{
		gateway:     gateway,
		logger:      logger.With("component", "selector-agent"),
		concurrency: concurrency,
	}
}

// GenerateSelectors asks the model for selectors matching the described
// target in the given HTML.
func (a *SelectorAgent) GenerateSelectors(ctx context.Context, targetDescription, pageHTML string, cfg CallConfig) *models.SelectorResult {
	return a.generate(ctx, targetDescription, buildSelectorPrompt(targetDescription, truncateHTML(pageHTML, maxHTMLSample), false), false, cfg)
}

// GenerateRobustSelectors is GenerateSelectors with a bias towards stable
// ids, data attributes and semantic structure.
func (a *SelectorAgent) GenerateRobustSelectors(ctx context.Context, targetDescription, pageHTML string, cfg CallConfig) *models.SelectorResult {
	result := a.generate(ctx, targetDescription, buildSelectorPrompt(targetDescription, truncateHTML(pageHTML, maxHTMLSample), true), true, cfg)
	return result
}

// ImproveSelectors asks for replacements for selectors that matched
// nothing.
func (a *SelectorAgent) ImproveSelectors(ctx context.Context, targetDescription string, failed []string, pageHTML string, cfg CallConfig) *models.SelectorResult {
	prompt := buildImproveSelectorsPrompt(targetDescription, failed, truncateHTML(pageHTML, maxHTMLSample))
	return a.generate(ctx, targetDescription, prompt, false, cfg)
}

func (a *SelectorAgent) generate(ctx context.Context, targetDescription, prompt string, robust bool, cfg CallConfig) *models.SelectorResult {
	meta := models.SelectorMetadata{
		Timestamp:         time.Now(),
		TargetDescription: targetDescription,
	}

	resp, err := a.gateway.Query(ctx, prompt, cfg.options(0.2, 1024))
	if err != nil {
		a.logger.Warn("selector query failed", "target", targetDescription, "error", err)
		return &models.SelectorResult{
			Success:  false,
			Metadata: meta,
			Error:    err.Error(),
		}
	}
	meta.Model = resp.Model

	parsed := parseSelectorResponse(resp.Text)
	result := &models.SelectorResult{
		Success:        len(parsed.CSS) > 0 || len(parsed.XPath) > 0,
		CSSSelectors:   parsed.CSS,
		XPathSelectors: parsed.XPath,
		Explanation:    parsed.Explanation,
		IsRobust:       robust,
		Metadata:       meta,
	}
	if !result.Success {
		result.Error = "no selectors found in model response"
	}
	return result
}

// ConvertSelector converts a selector between CSS and XPath. Selectors
// already in the requested kind short-circuit without a model call.
func (a *SelectorAgent) ConvertSelector(ctx context.Context, selector, to string, cfg CallConfig) (string, error) {
	isXPath := pagequery.IsXPath(selector)
	if (to == "xpath" && isXPath) || (to == "css" && !isXPath) {
		return selector, nil
	}

	from := "css"
	if isXPath {
		from = "xpath"
	}

	resp, err := a.gateway.Query(ctx, buildConvertSelectorPrompt(selector, from, to), cfg.options(0.1, 256))
	if err != nil {
		return "", fmt.Errorf("convert query failed: %w", err)
	}

	converted := firstLineSelector(resp.Text)
	if converted == "" {
		return "", fmt.Errorf("model returned no selector for conversion of %q", selector)
	}
	return converted, nil
}

// MultiTarget names one target in a batched selector generation call.
type MultiTarget struct {
	Field       string
	Description string
}

// GenerateMultiSelectors generates selectors for several targets with
// bounded concurrency. A failing target yields a failed SelectorResult in
// its slot; other targets are unaffected. Results line up with targets.
func (a *SelectorAgent) GenerateMultiSelectors(ctx context.Context, targets []MultiTarget, pageHTML string, cfg CallConfig) []*models.SelectorResult {
	results := make([]*models.SelectorResult, len(targets))
	sample := truncateHTML(pageHTML, maxHTMLSample)

	sem := make(chan struct{}, a.concurrency)
	var wg sync.WaitGroup

	for i, target := range targets {
		wg.Add(1)
		go func(i int, target MultiTarget) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			defer func() {
				if r := recover(); r != nil {
					a.logger.Error("selector generation panicked",
						"field", target.Field, "panic", r)
					results[i] = &models.SelectorResult{
						Success: false,
						Error:   fmt.Sprintf("selector generation failed: %v", r),
						Metadata: models.SelectorMetadata{
							Timestamp:         time.Now(),
							TargetDescription: target.Description,
						},
					}
				}
			}()

			results[i] = a.generate(ctx, target.Description,
				buildSelectorPrompt(target.Description, sample, false), false, cfg)
		}(i, target)
	}
	wg.Wait()

	return results
}
