package agent

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/araddon/dateparse"

	"github.com/jmylchreest/gleaner/internal/models"
)

// Validator reconciles extracted items against the plan's field
// definitions. It repairs what it can and reports what it cannot; it
// never discards a value outright.
type Validator struct {
	logger *slog.Logger
}

// NewValidator creates a validator.
func NewValidator(logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{logger: logger.With("component", "validator")}
}

// ValidateData cleans one extracted item against the plan. Cleaning is
// idempotent: validating already-validated data yields the same item with
// no new issues. baseURL resolves relative url/image values.
func (v *Validator) ValidateData(item models.ExtractedItem, plan *models.ExtractionPlan, baseURL string) *models.ValidationResult {
	result := &models.ValidationResult{
		Valid:         true,
		ValidatedData: models.ExtractedItem{},
	}

	// Carry fields the plan does not know about untouched.
	known := make(map[string]bool, len(plan.KeyFields))
	for _, f := range plan.KeyFields {
		known[f.Name] = true
	}
	for name, value := range item {
		if !known[name] {
			result.ValidatedData[name] = value
		}
	}

	for _, field := range plan.KeyFields {
		value, present := item[field.Name]
		if !present || value == nil {
			if !field.Optional {
				result.Valid = false
				result.Issues = append(result.Issues, models.ValidationIssue{
					Field: field.Name,
					Issue: "required field missing",
				})
			}
			continue
		}

		value, shapeIssue := v.reconcileShape(field, value)
		if shapeIssue != nil {
			result.Valid = false
			result.Issues = append(result.Issues, *shapeIssue)
		}

		cleaned, cleanIssues := v.cleanValue(field, value, baseURL)
		result.ValidatedData[field.Name] = cleaned
		if len(cleanIssues) > 0 {
			result.Valid = false
			result.Issues = append(result.Issues, cleanIssues...)
		}
	}

	return result
}

// reconcileShape aligns a value's cardinality with the field definition:
// a scalar for a list field is wrapped, a list for a scalar field is cut
// to its first element. The repaired value is kept; the mismatch is still
// an issue.
func (v *Validator) reconcileShape(field models.FieldDefinition, value any) (any, *models.ValidationIssue) {
	list, isList := value.([]any)

	if field.IsList && !isList {
		return []any{value}, &models.ValidationIssue{
			Field:         field.Name,
			Issue:         "expected a list, got a single value; wrapped",
			Value:         value,
			OriginalCount: 1,
		}
	}

	if !field.IsList && isList {
		if len(list) == 0 {
			return nil, &models.ValidationIssue{
				Field:         field.Name,
				Issue:         "expected a single value, got an empty list",
				OriginalCount: 0,
			}
		}
		return list[0], &models.ValidationIssue{
			Field:         field.Name,
			Issue:         fmt.Sprintf("expected a single value, got %d; kept the first", len(list)),
			Value:         list[0],
			OriginalCount: len(list),
		}
	}

	return value, nil
}

// cleanValue coerces a shaped value to its declared type. List fields
// clean element-wise.
func (v *Validator) cleanValue(field models.FieldDefinition, value any, baseURL string) (any, []models.ValidationIssue) {
	if list, ok := value.([]any); ok {
		var issues []models.ValidationIssue
		cleaned := make([]any, 0, len(list))
		for _, elem := range list {
			c, iss := v.cleanScalar(field, elem, baseURL)
			cleaned = append(cleaned, c)
			issues = append(issues, iss...)
		}
		return cleaned, issues
	}
	return v.cleanScalar(field, value, baseURL)
}

func (v *Validator) cleanScalar(field models.FieldDefinition, value any, baseURL string) (any, []models.ValidationIssue) {
	issue := func(msg string) []models.ValidationIssue {
		return []models.ValidationIssue{{Field: field.Name, Issue: msg, Value: value}}
	}

	switch field.Type {
	case models.FieldTypeNumber:
		switch n := value.(type) {
		case float64:
			return n, nil
		case int:
			return float64(n), nil
		case string:
			parsed, err := parseNumber(n)
			if err != nil {
				return value, issue(fmt.Sprintf("not a number: %v", err))
			}
			return parsed, nil
		default:
			return value, issue(fmt.Sprintf("unexpected type %T for number field", value))
		}

	case models.FieldTypeBoolean:
		switch b := value.(type) {
		case bool:
			return b, nil
		case string:
			parsed, err := parseBoolean(b)
			if err != nil {
				return value, issue(fmt.Sprintf("not a boolean: %v", err))
			}
			return parsed, nil
		default:
			return value, issue(fmt.Sprintf("unexpected type %T for boolean field", value))
		}

	case models.FieldTypeURL, models.FieldTypeImage:
		s, ok := value.(string)
		if !ok {
			return value, issue(fmt.Sprintf("unexpected type %T for %s field", value, field.Type))
		}
		resolved, err := resolveURL(s, baseURL)
		if err != nil {
			return value, issue(fmt.Sprintf("invalid url: %v", err))
		}
		return resolved, nil

	case models.FieldTypeDate:
		s, ok := value.(string)
		if !ok {
			return value, issue(fmt.Sprintf("unexpected type %T for date field", value))
		}
		// Already-normalized dates pass through unchanged.
		if _, err := time.Parse(time.RFC3339, s); err == nil {
			return s, nil
		}
		parsed, err := dateparse.ParseAny(s)
		if err != nil {
			return value, issue(fmt.Sprintf("unparseable date %q", s))
		}
		return parsed.Format(time.RFC3339), nil

	default:
		return value, nil
	}
}
