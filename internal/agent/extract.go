package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jmylchreest/gleaner/internal/models"
	"github.com/jmylchreest/gleaner/internal/pagequery"
)

// maxModelContext bounds the HTML handed to the model fallback.
const maxModelContext = 12000

// ExtractInput carries everything one extraction pass needs.
type ExtractInput struct {
	// ItemSelectors are container selector candidates tried in order; the
	// first with at least one match wins. Empty falls back to "body",
	// treating the page as a single item.
	ItemSelectors []string

	// Schema maps field names to their read configuration. Field selectors
	// are evaluated inside each matched item element.
	Schema map[string]models.SchemaFieldConfig

	// FieldKinds marks list fields, which collect all matches instead of
	// the first. Keyed by field name; missing entries mean scalar.
	FieldKinds map[string]bool

	// Goal and BaseURL feed the model fallback prompt and URL resolution.
	Goal    string
	BaseURL string

	// PageHTML is fallback context when no item element matched.
	PageHTML string

	// MaxItems caps extracted items; 0 means no cap.
	MaxItems int

	// DisableModelFallback restricts the pass to selector evaluation.
	DisableModelFallback bool
}

// Extractor pulls field values out of a page, selector evaluation first
// and a model call as fallback.
type Extractor struct {
	gateway Gateway
	logger  *slog.Logger
}

// NewExtractor creates an extractor.
func NewExtractor(gateway Gateway, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{gateway: gateway, logger: logger.With("component", "extractor")}
}

// Extract runs one extraction pass. It never panics out; any internal
// panic is converted into a failed result.
func (e *Extractor) Extract(ctx context.Context, q pagequery.Querier, in ExtractInput, cfg CallConfig) (result *models.ExtractionResult) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("extraction panicked", "panic", r)
			result = &models.ExtractionResult{
				Success: false,
				Data:    []models.ExtractedItem{},
				Error:   fmt.Sprintf("extraction failed: %v", r),
			}
		}
	}()

	domResult := e.extractDOM(q, in)
	if domResult.Success && domResult.Metadata.ElementsExtracted > 0 {
		return domResult
	}

	if in.DisableModelFallback {
		return domResult
	}

	e.logger.Info("selector extraction empty, trying model fallback",
		"elements_found", domResult.Metadata.ElementsFound)
	return e.extractModel(ctx, q, in, domResult, cfg)
}

// extractDOM evaluates the item selectors and reads each schema field
// inside every matched element.
func (e *Extractor) extractDOM(q pagequery.Querier, in ExtractInput) *models.ExtractionResult {
	selectors := in.ItemSelectors
	if len(selectors) == 0 {
		selectors = []string{"body"}
	}

	var (
		used  string
		found int
	)
	for _, sel := range selectors {
		if sel == "" {
			continue
		}
		n, err := q.Count(sel)
		if err != nil {
			e.logger.Debug("item selector failed", "selector", sel, "error", err)
			continue
		}
		if n > 0 {
			used, found = sel, n
			break
		}
	}

	meta := models.ExtractionMetadata{
		ExtractionMethod: models.ExtractionMethodDOM,
		ElementsFound:    found,
	}
	if used != "" {
		meta.SelectorsUsed = []string{used}
	}

	if found == 0 {
		// Completed with nothing matched; emptiness is observable via
		// ElementsExtracted, not an error.
		return &models.ExtractionResult{
			Success:  true,
			Data:     []models.ExtractedItem{},
			Metadata: meta,
		}
	}

	blocks, err := q.ElementHTML(used, in.MaxItems)
	if err != nil {
		return &models.ExtractionResult{
			Success:  false,
			Data:     []models.ExtractedItem{},
			Metadata: meta,
			Error:    fmt.Sprintf("failed to read item elements: %v", err),
		}
	}

	var data []models.ExtractedItem
	for _, block := range blocks {
		item := e.extractItem(block, in)
		if len(item) > 0 {
			data = append(data, item)
		}
	}
	if data == nil {
		data = []models.ExtractedItem{}
	}

	meta.ElementsExtracted = len(data)
	return &models.ExtractionResult{
		Success:  true,
		Data:     data,
		Metadata: meta,
	}
}

// extractItem reads every schema field from one item element's HTML.
// Fields that produce nothing are simply absent from the item.
func (e *Extractor) extractItem(itemHTML string, in ExtractInput) models.ExtractedItem {
	page, err := pagequery.NewStaticPage(itemHTML, in.BaseURL)
	if err != nil {
		return nil
	}

	item := models.ExtractedItem{}
	for field, cfg := range in.Schema {
		if in.FieldKinds[field] {
			values := e.readFieldAll(page, cfg)
			if len(values) > 0 {
				item[field] = values
			}
			continue
		}
		value, ok := e.readField(page, cfg)
		if ok {
			item[field] = value
		}
	}
	return item
}

func (e *Extractor) readField(page *pagequery.StaticPage, cfg models.SchemaFieldConfig) (any, bool) {
	raw, err := page.Read(e.fieldSelector(cfg), cfg.Attribute)
	if err != nil || strings.TrimSpace(raw) == "" {
		return nil, false
	}

	value, terr := applyTransform(raw, cfg.Transform, page.BaseURL())
	if terr != nil {
		// Keep the raw value; validation reports the mismatch.
		return strings.TrimSpace(raw), true
	}
	return value, true
}

func (e *Extractor) readFieldAll(page *pagequery.StaticPage, cfg models.SchemaFieldConfig) []any {
	raws, err := page.ReadAll(e.fieldSelector(cfg), cfg.Attribute)
	if err != nil {
		return nil
	}

	var values []any
	for _, raw := range raws {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		value, terr := applyTransform(raw, cfg.Transform, page.BaseURL())
		if terr != nil {
			values = append(values, strings.TrimSpace(raw))
			continue
		}
		values = append(values, value)
	}
	return values
}

// fieldSelector picks where to read a field inside an item fragment. A
// field without its own selector reads the item element itself; the
// fragment parser wraps it in html/body, so the element is body's child.
func (e *Extractor) fieldSelector(cfg models.SchemaFieldConfig) string {
	if cfg.Selector != "" {
		return cfg.Selector
	}
	return "body > *"
}

// extractModel asks the model to extract the fields from HTML context when
// selector evaluation matched nothing usable.
func (e *Extractor) extractModel(ctx context.Context, q pagequery.Querier, in ExtractInput, domResult *models.ExtractionResult, cfg CallConfig) *models.ExtractionResult {
	htmlContext := e.modelContext(q, in, domResult)
	prompt := buildModelExtractionPrompt(in.Goal, in.Schema, htmlContext)

	opts := cfg.options(0.1, 4096)
	opts.JSONMode = true
	resp, err := e.gateway.Query(ctx, prompt, opts)
	if err != nil {
		return &models.ExtractionResult{
			Success:  false,
			Data:     []models.ExtractedItem{},
			Metadata: models.ExtractionMetadata{ExtractionMethod: models.ExtractionMethodModel},
			Error:    fmt.Sprintf("model extraction failed: %v", err),
		}
	}

	data, err := parseModelItems(resp.Text)
	if err != nil {
		return &models.ExtractionResult{
			Success:  false,
			Data:     []models.ExtractedItem{},
			Metadata: models.ExtractionMetadata{ExtractionMethod: models.ExtractionMethodModel},
			Error:    fmt.Sprintf("JSON parse error: %v", err),
		}
	}

	return &models.ExtractionResult{
		Success: true,
		Data:    data,
		Metadata: models.ExtractionMetadata{
			ExtractionMethod:  models.ExtractionMethodModel,
			ElementsFound:     domResult.Metadata.ElementsFound,
			ElementsExtracted: len(data),
		},
	}
}

// modelContext prefers matched element HTML over the whole page, keeping
// the prompt inside the context budget.
func (e *Extractor) modelContext(q pagequery.Querier, in ExtractInput, domResult *models.ExtractionResult) string {
	if len(domResult.Metadata.SelectorsUsed) > 0 {
		blocks, err := q.ElementHTML(domResult.Metadata.SelectorsUsed[0], 20)
		if err == nil && len(blocks) > 0 {
			joined := strings.Join(blocks, "\n")
			if len(joined) <= maxModelContext {
				return joined
			}
			return truncateHTML(joined, maxModelContext)
		}
	}
	return truncateHTML(in.PageHTML, maxModelContext)
}

// parseModelItems decodes the model's extraction response: a json array of
// objects or a single object.
func parseModelItems(text string) ([]models.ExtractedItem, error) {
	raw, ok := extractJSON(text)
	if !ok {
		return nil, fmt.Errorf("no JSON value in response")
	}

	var items []models.ExtractedItem
	if err := json.Unmarshal([]byte(raw), &items); err == nil {
		return items, nil
	}

	var single models.ExtractedItem
	if err := json.Unmarshal([]byte(raw), &single); err == nil {
		return []models.ExtractedItem{single}, nil
	}

	return nil, fmt.Errorf("response JSON is neither an object nor an array of objects")
}
