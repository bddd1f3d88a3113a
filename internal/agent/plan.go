package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmylchreest/gleaner/internal/models"
)

// Planner drafts extraction plans from a goal and a page HTML sample.
type Planner struct {
	gateway Gateway
	logger  *slog.Logger
}

// NewPlanner creates a planner.
func NewPlanner(gateway Gateway, logger *slog.Logger) *Planner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Planner{gateway: gateway, logger: logger.With("component", "planner")}
}

// CreatePlan asks the model for an extraction plan. A partially parseable
// response still yields a usable plan; Success is false only when nothing
// could be parsed at all.
func (p *Planner) CreatePlan(ctx context.Context, targetURL, goal, pageHTML string, cfg CallConfig) (*models.ExtractionPlan, error) {
	detected := detectRepeats(pageHTML)
	sample := truncateHTML(pageHTML, maxHTMLSample)
	prompt := buildPlanPrompt(targetURL, goal, sample, detected)

	resp, err := p.gateway.Query(ctx, prompt, cfg.options(0.2, 4096))
	if err != nil {
		return nil, fmt.Errorf("plan query failed: %w", err)
	}

	sections, state := parsePlanText(resp.Text)
	plan := sectionsToPlan(sections, state)
	plan.Metadata = models.PlanMetadata{
		Timestamp:      time.Now(),
		TargetURL:      targetURL,
		ExtractionGoal: goal,
		Model:          resp.Model,
		Provider:       resp.Provider,
	}

	p.logger.Info("plan created",
		"url", targetURL,
		"fields", len(plan.KeyFields),
		"targets", len(plan.TargetElements),
		"parse_state", int(state),
		"provider", resp.Provider,
	)

	return plan, nil
}

// RefinePlan revises an existing plan against fresh HTML and feedback.
// The refined plan keeps the original plan's timestamp in its metadata.
func (p *Planner) RefinePlan(ctx context.Context, current *models.ExtractionPlan, pageHTML, feedback string, cfg CallConfig) (*models.ExtractionPlan, error) {
	sample := truncateHTML(pageHTML, maxHTMLSample/2)
	prompt := buildRefinePrompt(current, sample, feedback)

	resp, err := p.gateway.Query(ctx, prompt, cfg.options(0.2, 4096))
	if err != nil {
		return nil, fmt.Errorf("refine query failed: %w", err)
	}

	sections, state := parsePlanText(resp.Text)
	if state == ParseStateEmpty {
		// Keep the current plan rather than replacing it with nothing.
		p.logger.Warn("refine response unparseable, keeping current plan",
			"url", current.Metadata.TargetURL)
		return current, nil
	}

	plan := sectionsToPlan(sections, state)
	origTS := current.Metadata.Timestamp
	plan.Metadata = models.PlanMetadata{
		Timestamp:      time.Now(),
		TargetURL:      current.Metadata.TargetURL,
		ExtractionGoal: current.Metadata.ExtractionGoal,
		Model:          resp.Model,
		Provider:       resp.Provider,
		Refined:        true,
		OriginalPlanAt: &origTS,
	}
	plan.IsMultiPage = current.IsMultiPage
	plan.Pagination = current.Pagination

	return plan, nil
}

// CreateMultiPagePlan drafts a content plan and then asks the model how
// the listing paginates, merging both into one plan. Pagination parsing is
// best effort; a plan without pagination is still returned.
func (p *Planner) CreateMultiPagePlan(ctx context.Context, targetURL, goal, pageHTML string, cfg CallConfig) (*models.ExtractionPlan, error) {
	plan, err := p.CreatePlan(ctx, targetURL, goal, pageHTML, cfg)
	if err != nil {
		return nil, err
	}

	sample := truncateHTML(pageHTML, maxHTMLSample/2)
	resp, err := p.gateway.Query(ctx, buildPaginationPrompt(targetURL, sample), cfg.options(0.1, 1024))
	if err != nil {
		p.logger.Warn("pagination query failed, returning single-page plan",
			"url", targetURL, "error", err)
		return plan, nil
	}

	if pg := parsePaginationResponse(resp.Text); pg != nil {
		plan.IsMultiPage = true
		plan.Pagination = pg
	}

	return plan, nil
}

// parsePaginationResponse decodes the pagination json the model returned.
// Returns nil when no strategy could be parsed or the strategy is empty.
func parsePaginationResponse(text string) *models.PaginationStrategy {
	raw, ok := extractJSON(text)
	if !ok {
		return nil
	}

	var decoded struct {
		NextPageSelector   string         `json:"nextPageSelector"`
		URLPattern         string         `json:"urlPattern"`
		PageNumberSelector string         `json:"pageNumberSelector"`
		MaxPages           models.FlexInt `json:"maxPages"`
		EndIndicator       string         `json:"endIndicator"`
	}
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return nil
	}

	pg := &models.PaginationStrategy{
		NextPageSelector:   cleanSelectorToken(decoded.NextPageSelector),
		URLPattern:         decoded.URLPattern,
		PageNumberSelector: cleanSelectorToken(decoded.PageNumberSelector),
		MaxPages:           decoded.MaxPages.Int(),
		EndIndicator:       decoded.EndIndicator,
	}
	if pg.NextPageSelector == "" && pg.URLPattern == "" && pg.PageNumberSelector == "" {
		return nil
	}
	return pg
}
