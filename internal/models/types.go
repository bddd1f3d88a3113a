// Package models defines the shared data types that flow through the
// extraction pipeline: plans, selector results, extraction results,
// validation output and the final orchestration envelope.
package models

import "time"

// Field types a plan may declare for extracted values.
const (
	FieldTypeString  = "string"
	FieldTypeNumber  = "number"
	FieldTypeBoolean = "boolean"
	FieldTypeURL     = "url"
	FieldTypeImage   = "image"
	FieldTypeDate    = "date"
	FieldTypeArray   = "array"
	FieldTypeObject  = "object"
)

// Issue sources identify which pipeline stage produced an issue.
const (
	IssueSourcePlanning      = "planning"
	IssueSourceSelection     = "selection"
	IssueSourceExtraction    = "extraction"
	IssueSourceValidation    = "validation"
	IssueSourceOrchestration = "orchestration"
)

// Extraction methods recorded in ExtractionMetadata.
const (
	ExtractionMethodDOM   = "dom"
	ExtractionMethodModel = "model"
)

// FieldDefinition describes one field the plan expects to extract.
type FieldDefinition struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
	IsList      bool   `json:"isList,omitempty"`
	Optional    bool   `json:"optional,omitempty"`
}

// SchemaFieldConfig configures how a single field is read from the page.
type SchemaFieldConfig struct {
	Type      string `json:"type"`
	Selector  string `json:"selector,omitempty"`
	Attribute string `json:"attribute,omitempty"`
	Transform string `json:"transform,omitempty"`
}

// PlanMetadata carries provenance for an extraction plan.
type PlanMetadata struct {
	Timestamp      time.Time  `json:"timestamp"`
	TargetURL      string     `json:"targetUrl"`
	ExtractionGoal string     `json:"extractionGoal"`
	Model          string     `json:"model,omitempty"`
	Provider       string     `json:"provider,omitempty"`
	Refined        bool       `json:"refined,omitempty"`
	OriginalPlanAt *time.Time `json:"originalPlanAt,omitempty"`
}

// PaginationStrategy describes how to walk a multi-page listing.
type PaginationStrategy struct {
	NextPageSelector   string `json:"nextPageSelector,omitempty"`
	URLPattern         string `json:"urlPattern,omitempty"`
	PageNumberSelector string `json:"pageNumberSelector,omitempty"`
	MaxPages           int    `json:"maxPages,omitempty"`
	EndIndicator       string `json:"endIndicator,omitempty"`
}

// ExtractionPlan is the model-drafted blueprint for an extraction run.
// Success is false only when the model response yielded nothing usable;
// a partially parsed plan is still returned with Success true.
type ExtractionPlan struct {
	Success             bool                         `json:"success"`
	ExtractionGoal      string                       `json:"extractionGoal,omitempty"`
	DataStructure       string                       `json:"dataStructure,omitempty"`
	KeyFields           []FieldDefinition            `json:"keyFields,omitempty"`
	TargetElements      []string                     `json:"targetElements,omitempty"`
	ExtractionStrategy  string                       `json:"extractionStrategy,omitempty"`
	PotentialChallenges []string                     `json:"potentialChallenges,omitempty"`
	Schema              map[string]SchemaFieldConfig `json:"schema,omitempty"`
	IsMultiPage         bool                         `json:"isMultiPage,omitempty"`
	Pagination          *PaginationStrategy          `json:"pagination,omitempty"`
	Metadata            PlanMetadata                 `json:"metadata"`
	Error               string                       `json:"error,omitempty"`
}

// RequiredFields returns the key fields that are not marked optional.
func (p *ExtractionPlan) RequiredFields() []FieldDefinition {
	var out []FieldDefinition
	for _, f := range p.KeyFields {
		if !f.Optional {
			out = append(out, f)
		}
	}
	return out
}

// Field returns the key field with the given name, if declared.
func (p *ExtractionPlan) Field(name string) (FieldDefinition, bool) {
	for _, f := range p.KeyFields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldDefinition{}, false
}

// SelectorMetadata carries provenance for a selector generation call.
type SelectorMetadata struct {
	Timestamp         time.Time `json:"timestamp"`
	TargetDescription string    `json:"targetDescription,omitempty"`
	Model             string    `json:"model,omitempty"`
}

// SelectorResult is the outcome of a selector generation call for one target.
type SelectorResult struct {
	Success        bool             `json:"success"`
	CSSSelectors   []string         `json:"cssSelectors,omitempty"`
	XPathSelectors []string         `json:"xpathSelectors,omitempty"`
	Explanation    string           `json:"explanation,omitempty"`
	IsRobust       bool             `json:"isRobust,omitempty"`
	Metadata       SelectorMetadata `json:"metadata"`
	Error          string           `json:"error,omitempty"`
}

// Best returns the preferred selector from a result: first CSS selector,
// falling back to the first XPath selector. Empty when the result holds none.
func (r *SelectorResult) Best() string {
	if len(r.CSSSelectors) > 0 {
		return r.CSSSelectors[0]
	}
	if len(r.XPathSelectors) > 0 {
		return r.XPathSelectors[0]
	}
	return ""
}

// ExtractedItem is one extracted record, field name to value.
type ExtractedItem map[string]any

// ExtractionMetadata describes how an extraction pass ran.
type ExtractionMetadata struct {
	ExtractionMethod  string   `json:"extractionMethod"`
	ElementsFound     int      `json:"elementsFound"`
	ElementsExtracted int      `json:"elementsExtracted"`
	SelectorsUsed     []string `json:"selectorsUsed,omitempty"`
}

// ExtractionResult is the outcome of an extraction pass. Success true with
// ElementsExtracted == 0 means the pass completed but matched nothing.
type ExtractionResult struct {
	Success  bool               `json:"success"`
	Data     []ExtractedItem    `json:"data"`
	Metadata ExtractionMetadata `json:"metadata"`
	Error    string             `json:"error,omitempty"`
}

// ValidationIssue records a single per-field validation finding.
type ValidationIssue struct {
	Field         string `json:"field"`
	Issue         string `json:"issue"`
	Value         any    `json:"value,omitempty"`
	OriginalCount int    `json:"originalCount,omitempty"`
}

// ValidationResult holds cleaned data plus the issues found while cleaning.
// Validation never fails outright; it reports and repairs.
type ValidationResult struct {
	Valid         bool              `json:"valid"`
	ValidatedData ExtractedItem     `json:"validatedData"`
	Issues        []ValidationIssue `json:"issues,omitempty"`
}

// RecoveryAttemptResult is the outcome of one selector recovery attempt.
type RecoveryAttemptResult struct {
	RecoverySuccessful   bool     `json:"recoverySuccessful"`
	AlternativeSelectors []string `json:"alternativeSelectors,omitempty"`
	StrategyUsed         string   `json:"strategyUsed,omitempty"`
	Error                string   `json:"error,omitempty"`
}

// OrchestrationIssue is an issue surfaced in the final envelope, tagged with
// the stage that produced it.
type OrchestrationIssue struct {
	Source string `json:"source"`
	Field  string `json:"field,omitempty"`
	Issue  string `json:"issue"`
}

// OrchestrationResult is the final envelope returned to callers. Partial
// state survives stage failures: whatever was produced before the failure
// is carried alongside the issues.
type OrchestrationResult struct {
	Success   bool                 `json:"success"`
	RequestID string               `json:"requestId,omitempty"`
	Plan      *ExtractionPlan      `json:"plan,omitempty"`
	Selectors map[string]string    `json:"selectors,omitempty"`
	Data      []ExtractedItem      `json:"data"`
	Issues    []OrchestrationIssue `json:"issues,omitempty"`
	Error     string               `json:"error,omitempty"`
}
