// Package orchestrator runs the extraction pipeline end to end: fetch a
// page sample, draft a plan, derive selectors per field, extract, recover
// failed selectors and validate. Every stage contributes to a shared
// accumulator so partial state survives stage failures.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/jmylchreest/gleaner/internal/agent"
	"github.com/jmylchreest/gleaner/internal/fetch"
	"github.com/jmylchreest/gleaner/internal/models"
	"github.com/jmylchreest/gleaner/internal/pagequery"
)

// maxRecoveryAttempts bounds recovery calls per failed field.
const maxRecoveryAttempts = 2

// Request is one extraction request.
type Request struct {
	// Instruction is the natural-language extraction goal.
	Instruction string

	// TargetURL is the page to extract from.
	TargetURL string

	// Page optionally supplies an already-loaded page (for example a live
	// browser page). When nil the page is fetched and parsed statically.
	Page pagequery.Querier

	// ProviderHint routes model calls to a specific provider; empty uses
	// the gateway default.
	ProviderHint string

	// FallbackProvider is tried once when the primary provider fails.
	FallbackProvider string

	// Model optionally pins a model id.
	Model string

	// MaxItems caps extracted items; 0 means no cap.
	MaxItems int
}

// Orchestrator wires the agents and collaborators into the pipeline.
type Orchestrator struct {
	fetcher   fetch.Fetcher
	planner   *agent.Planner
	selectors *agent.SelectorAgent
	extractor *agent.Extractor
	validator *agent.Validator
	recoverer *agent.Recoverer
	logger    *slog.Logger
}

// New creates an orchestrator.
func New(fetcher fetch.Fetcher, planner *agent.Planner, selectors *agent.SelectorAgent, extractor *agent.Extractor, validator *agent.Validator, recoverer *agent.Recoverer, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		fetcher:   fetcher,
		planner:   planner,
		selectors: selectors,
		extractor: extractor,
		validator: validator,
		recoverer: recoverer,
		logger:    logger.With("component", "orchestrator"),
	}
}

// accumulator is the mutable pipeline state threaded through stages.
type accumulator struct {
	mu        sync.Mutex
	requestID string
	plan      *models.ExtractionPlan
	pageHTML  string
	selectors map[string]string
	data      []models.ExtractedItem
	issues    []models.OrchestrationIssue
}

func (a *accumulator) sampleHTML() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pageHTML
}

func (a *accumulator) addIssue(source, field, issue string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.issues = append(a.issues, models.OrchestrationIssue{Source: source, Field: field, Issue: issue})
}

func (a *accumulator) setSelector(field, selector string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.selectors[field] = selector
}

// result assembles the envelope from whatever state the pipeline reached.
func (a *accumulator) result(success bool, errMsg string) *models.OrchestrationResult {
	a.mu.Lock()
	defer a.mu.Unlock()

	data := a.data
	if data == nil {
		data = []models.ExtractedItem{}
	}
	return &models.OrchestrationResult{
		Success:   success,
		RequestID: a.requestID,
		Plan:      a.plan,
		Selectors: a.selectors,
		Data:      data,
		Issues:    a.issues,
		Error:     errMsg,
	}
}

// ProcessRequest runs the full pipeline. It never panics out; a panicking
// stage yields a failed result carrying everything produced before it.
func (o *Orchestrator) ProcessRequest(ctx context.Context, req Request) (result *models.OrchestrationResult) {
	acc := &accumulator{
		requestID: ulid.Make().String(),
		selectors: make(map[string]string),
	}

	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("pipeline panicked", "request_id", acc.requestID, "panic", r)
			acc.addIssue(models.IssueSourceOrchestration, "", fmt.Sprintf("pipeline panic: %v", r))
			result = acc.result(false, fmt.Sprintf("pipeline panic: %v", r))
		}
	}()

	log := o.logger.With("request_id", acc.requestID, "url", req.TargetURL)
	log.Info("processing extraction request")

	cfg := agent.CallConfig{
		Provider:         req.ProviderHint,
		Model:            req.Model,
		FallbackProvider: req.FallbackProvider,
	}

	// Fetch sample.
	page, pageHTML, err := o.loadPage(ctx, req)
	if err != nil {
		acc.addIssue(models.IssueSourceOrchestration, "", fmt.Sprintf("fetch failed: %v", err))
		return acc.result(false, fmt.Sprintf("fetch failed: %v", err))
	}
	acc.pageHTML = pageHTML

	// Plan.
	plan, err := o.planner.CreatePlan(ctx, req.TargetURL, req.Instruction, pageHTML, cfg)
	if err != nil {
		acc.addIssue(models.IssueSourcePlanning, "", err.Error())
		return acc.result(false, fmt.Sprintf("planning failed: %v", err))
	}
	acc.plan = plan
	if !plan.Success {
		acc.addIssue(models.IssueSourcePlanning, "", plan.Error)
		return acc.result(false, "planning produced no usable plan")
	}

	// Select per field, concurrently, verified against the page.
	o.selectPerField(ctx, page, pageHTML, plan, acc, cfg)

	// Highlight is a best-effort side effect; failures never stop the run.
	o.highlight(page, acc)

	// Extract.
	extraction := o.extractor.Extract(ctx, page, o.extractInput(req, plan, acc), cfg)
	if !extraction.Success {
		acc.addIssue(models.IssueSourceExtraction, "", extraction.Error)
	}
	acc.data = extraction.Data

	// Recover fields that produced nothing, then extract again if any
	// selector was replaced.
	if recovered := o.recoverFailed(ctx, page, pageHTML, plan, acc, cfg); recovered {
		extraction = o.extractor.Extract(ctx, page, o.extractInput(req, plan, acc), cfg)
		if extraction.Success {
			acc.data = extraction.Data
		}
	}

	// Validate and clean each item.
	o.validate(req, plan, acc)

	log.Info("extraction request complete",
		"items", len(acc.data),
		"issues", len(acc.issues))
	return acc.result(true, "")
}

// loadPage returns the querier and raw HTML the pipeline works on. A
// caller-supplied page wins; otherwise the URL is fetched and parsed.
func (o *Orchestrator) loadPage(ctx context.Context, req Request) (pagequery.Querier, string, error) {
	if req.Page != nil {
		// For a live page the HTML sample comes from the document root.
		blocks, err := req.Page.ElementHTML("html", 1)
		if err != nil || len(blocks) == 0 {
			return req.Page, "", nil
		}
		return req.Page, blocks[0], nil
	}

	fetched, err := o.fetcher.Fetch(ctx, req.TargetURL)
	if err != nil {
		return nil, "", err
	}
	if fetched.RecommendDynamic {
		o.logger.Warn("page looks JS-rendered, static extraction may be incomplete",
			"url", req.TargetURL)
	}

	page, err := pagequery.NewStaticPage(fetched.HTML, req.TargetURL)
	if err != nil {
		return nil, "", err
	}
	return page, fetched.HTML, nil
}

// selectPerField fills the accumulator's selector map: plan-provided
// selectors that match the page are kept, everything else goes through the
// selector agent concurrently.
func (o *Orchestrator) selectPerField(ctx context.Context, page pagequery.Querier, pageHTML string, plan *models.ExtractionPlan, acc *accumulator, cfg agent.CallConfig) {
	var needed []agent.MultiTarget
	for _, field := range plan.KeyFields {
		if sel := plan.Schema[field.Name].Selector; sel != "" {
			if n, err := page.Count(sel); err == nil && n > 0 {
				acc.setSelector(field.Name, sel)
				continue
			}
		}
		needed = append(needed, agent.MultiTarget{
			Field:       field.Name,
			Description: fieldDescription(field),
		})
	}
	if len(needed) == 0 {
		return
	}

	results := o.selectors.GenerateMultiSelectors(ctx, needed, pageHTML, cfg)
	for i, res := range results {
		field := needed[i].Field
		if res == nil || !res.Success {
			msg := "selector generation failed"
			if res != nil && res.Error != "" {
				msg = res.Error
			}
			acc.addIssue(models.IssueSourceSelection, field, msg)
			continue
		}

		sel := o.firstMatching(page, res)
		if sel == "" {
			acc.addIssue(models.IssueSourceSelection, field, "no generated selector matched the page")
			continue
		}
		acc.setSelector(field, sel)
		o.applySelector(plan, field, sel)
	}
}

// firstMatching returns the first candidate selector that matches at least
// one element, CSS candidates before XPath.
func (o *Orchestrator) firstMatching(page pagequery.Querier, res *models.SelectorResult) string {
	for _, sel := range append(append([]string{}, res.CSSSelectors...), res.XPathSelectors...) {
		if n, err := page.Count(sel); err == nil && n > 0 {
			return sel
		}
	}
	return ""
}

// applySelector writes a chosen selector into the plan schema so the
// extractor sees it.
func (o *Orchestrator) applySelector(plan *models.ExtractionPlan, field, selector string) {
	fc, ok := plan.Schema[field]
	if !ok {
		def, _ := plan.Field(field)
		fc = models.SchemaConfigForType(def.Type)
	}
	fc.Selector = selector
	plan.Schema[field] = fc
}

// highlight marks each chosen selector on the page for operator review.
func (o *Orchestrator) highlight(page pagequery.Querier, acc *accumulator) {
	acc.mu.Lock()
	selectors := make(map[string]string, len(acc.selectors))
	for field, sel := range acc.selectors {
		selectors[field] = sel
	}
	acc.mu.Unlock()

	for field, sel := range selectors {
		if _, err := page.Highlight(sel, field); err != nil {
			o.logger.Debug("highlight failed", "field", field, "error", err)
		}
	}
}

// extractInput assembles the extractor input from the current plan state.
func (o *Orchestrator) extractInput(req Request, plan *models.ExtractionPlan, acc *accumulator) agent.ExtractInput {
	kinds := make(map[string]bool, len(plan.KeyFields))
	for _, field := range plan.KeyFields {
		kinds[field.Name] = field.IsList
	}

	return agent.ExtractInput{
		ItemSelectors: plan.TargetElements,
		Schema:        plan.Schema,
		FieldKinds:    kinds,
		Goal:          plan.ExtractionGoal,
		BaseURL:       req.TargetURL,
		PageHTML:      acc.sampleHTML(),
		MaxItems:      req.MaxItems,
	}
}

// recoverFailed finds required fields absent from every extracted item and
// runs bounded recovery for each, concurrently across fields. Reports
// whether any selector was replaced.
func (o *Orchestrator) recoverFailed(ctx context.Context, page pagequery.Querier, pageHTML string, plan *models.ExtractionPlan, acc *accumulator, cfg agent.CallConfig) bool {
	failed := o.failedFields(plan, acc)
	if len(failed) == 0 {
		return false
	}

	// Snapshot the failing selectors up front; applySelector writes into
	// plan.Schema from the recovery goroutines below.
	failedSels := make(map[string]string, len(failed))
	for _, field := range failed {
		failedSels[field.Name] = plan.Schema[field.Name].Selector
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		recovered bool
	)
	for _, field := range failed {
		wg.Add(1)
		go func(field models.FieldDefinition) {
			defer wg.Done()

			failedSel := failedSels[field.Name]
			for attempt := 1; attempt <= maxRecoveryAttempts; attempt++ {
				res := o.recoverer.AttemptRecovery(ctx, field, failedSel, "field missing from every extracted item", pageHTML, page, cfg)
				if !res.RecoverySuccessful {
					if attempt == maxRecoveryAttempts {
						acc.addIssue(models.IssueSourceExtraction, field.Name,
							fmt.Sprintf("recovery failed after %d attempts: %s", attempt, res.Error))
					}
					continue
				}

				sel := res.AlternativeSelectors[0]
				mu.Lock()
				o.applySelector(plan, field.Name, sel)
				recovered = true
				mu.Unlock()
				acc.setSelector(field.Name, sel)
				o.logger.Info("field selector recovered",
					"field", field.Name, "selector", sel, "strategy", res.StrategyUsed)
				return
			}
		}(field)
	}
	wg.Wait()

	return recovered
}

// failedFields returns the required fields no extracted item carries.
func (o *Orchestrator) failedFields(plan *models.ExtractionPlan, acc *accumulator) []models.FieldDefinition {
	acc.mu.Lock()
	data := acc.data
	acc.mu.Unlock()

	var failed []models.FieldDefinition
	for _, field := range plan.RequiredFields() {
		present := false
		for _, item := range data {
			if v, ok := item[field.Name]; ok && v != nil {
				present = true
				break
			}
		}
		if !present {
			failed = append(failed, field)
		}
	}
	return failed
}

// validate cleans every extracted item in place and merges the issues.
func (o *Orchestrator) validate(req Request, plan *models.ExtractionPlan, acc *accumulator) {
	acc.mu.Lock()
	data := acc.data
	acc.mu.Unlock()

	cleaned := make([]models.ExtractedItem, 0, len(data))
	for i, item := range data {
		vr := o.validator.ValidateData(item, plan, req.TargetURL)
		cleaned = append(cleaned, vr.ValidatedData)
		for _, issue := range vr.Issues {
			acc.addIssue(models.IssueSourceValidation, issue.Field,
				fmt.Sprintf("item %d: %s", i, issue.Issue))
		}
	}

	acc.mu.Lock()
	acc.data = cleaned
	acc.mu.Unlock()
}

func fieldDescription(field models.FieldDefinition) string {
	desc := fmt.Sprintf("%s (%s)", field.Name, field.Type)
	if field.Description != "" {
		desc += ": " + field.Description
	}
	return desc
}
