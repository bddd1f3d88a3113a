package agent

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/jmylchreest/gleaner/internal/models"
	"github.com/jmylchreest/gleaner/internal/pagequery"
)

// maxRecoveryCandidates caps the alternatives considered per strategy.
const maxRecoveryCandidates = 5

// Recoverer finds replacement selectors for fields whose selector stopped
// matching. Candidates are tested live against the page before being
// accepted.
type Recoverer struct {
	gateway Gateway
	logger  *slog.Logger
}

// NewRecoverer creates a recoverer.
func NewRecoverer(gateway Gateway, logger *slog.Logger) *Recoverer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recoverer{gateway: gateway, logger: logger.With("component", "recoverer")}
}

// recoveryStrategy proposes candidate selectors for a failed field.
type recoveryStrategy struct {
	name    string
	propose func(ctx context.Context, r *Recoverer, field models.FieldDefinition, failedSelector, failureReason, pageHTML string, cfg CallConfig) []string
}

var recoveryStrategies = []recoveryStrategy{
	{name: "model-alternatives", propose: proposeModelAlternatives},
	{name: "selector-relaxation", propose: proposeRelaxedSelectors},
}

// AttemptRecovery runs each strategy in order and returns on the first one
// producing a selector that matches at least one element on the live page.
// A panicking strategy is skipped, not fatal.
func (r *Recoverer) AttemptRecovery(ctx context.Context, field models.FieldDefinition, failedSelector, failureReason, pageHTML string, q pagequery.Querier, cfg CallConfig) *models.RecoveryAttemptResult {
	for _, strategy := range recoveryStrategies {
		candidates := r.runStrategy(ctx, strategy, field, failedSelector, failureReason, pageHTML, cfg)

		var working []string
		for _, candidate := range candidates {
			if candidate == "" || candidate == failedSelector {
				continue
			}
			n, err := q.Count(candidate)
			if err != nil || n == 0 {
				continue
			}
			working = append(working, candidate)
		}

		if len(working) > 0 {
			r.logger.Info("selector recovered",
				"field", field.Name,
				"strategy", strategy.name,
				"selector", working[0])
			return &models.RecoveryAttemptResult{
				RecoverySuccessful:   true,
				AlternativeSelectors: working,
				StrategyUsed:         strategy.name,
			}
		}
	}

	return &models.RecoveryAttemptResult{
		RecoverySuccessful: false,
		Error:              "no alternative selector matched the page",
	}
}

func (r *Recoverer) runStrategy(ctx context.Context, strategy recoveryStrategy, field models.FieldDefinition, failedSelector, failureReason, pageHTML string, cfg CallConfig) (candidates []string) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("recovery strategy panicked",
				"strategy", strategy.name, "field", field.Name, "panic", p)
			candidates = nil
		}
	}()
	return strategy.propose(ctx, r, field, failedSelector, failureReason, pageHTML, cfg)
}

// proposeModelAlternatives asks the model for replacement selectors.
func proposeModelAlternatives(ctx context.Context, r *Recoverer, field models.FieldDefinition, failedSelector, failureReason, pageHTML string, cfg CallConfig) []string {
	sample := truncateHTML(pageHTML, maxHTMLSample)
	prompt := buildRecoveryPrompt(field, failedSelector, failureReason, sample)

	resp, err := r.gateway.Query(ctx, prompt, cfg.options(0.3, 512))
	if err != nil {
		r.logger.Warn("recovery query failed", "field", field.Name, "error", err)
		return nil
	}

	raw, ok := extractJSON(resp.Text)
	if !ok {
		return nil
	}
	var proposed []string
	if err := json.Unmarshal([]byte(raw), &proposed); err != nil {
		return nil
	}

	var out []string
	for _, sel := range proposed {
		sel = cleanSelectorToken(sel)
		if sel != "" {
			out = append(out, sel)
		}
		if len(out) == maxRecoveryCandidates {
			break
		}
	}
	return out
}

// proposeRelaxedSelectors derives cheaper variants of the failed selector
// without a model call: strip pseudo-classes, drop leading ancestors, fall
// back to the last class or tag alone.
func proposeRelaxedSelectors(_ context.Context, _ *Recoverer, _ models.FieldDefinition, failedSelector, _, _ string, _ CallConfig) []string {
	if failedSelector == "" || pagequery.IsXPath(failedSelector) {
		return nil
	}

	var out []string
	add := func(sel string) {
		sel = strings.TrimSpace(sel)
		if sel == "" || sel == failedSelector {
			return
		}
		for _, existing := range out {
			if existing == sel {
				return
			}
		}
		out = append(out, sel)
	}

	// Without positional pseudo-classes.
	if i := strings.Index(failedSelector, ":"); i > 0 {
		add(failedSelector[:i])
	}

	// Last compound only ("div.card > span.price" -> "span.price").
	parts := strings.FieldsFunc(failedSelector, func(r rune) bool {
		return r == ' ' || r == '>'
	})
	if len(parts) > 1 {
		add(parts[len(parts)-1])
	}

	// Last class alone.
	last := failedSelector
	if len(parts) > 0 {
		last = parts[len(parts)-1]
	}
	if i := strings.Index(last, ":"); i > 0 {
		last = last[:i]
	}
	if i := strings.LastIndex(last, "."); i >= 0 && i+1 < len(last) {
		add("." + last[i+1:])
	}

	if len(out) > maxRecoveryCandidates {
		out = out[:maxRecoveryCandidates]
	}
	return out
}
