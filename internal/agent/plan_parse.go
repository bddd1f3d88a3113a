package agent

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/jmylchreest/gleaner/internal/models"
)

// ParseState reports how much of a plan response the parser understood.
type ParseState int

const (
	// ParseStateFull means key fields and at least one other section parsed.
	ParseStateFull ParseState = iota
	// ParseStatePartial means something parsed, but the plan is incomplete.
	ParseStatePartial
	// ParseStateEmpty means the response yielded nothing usable.
	ParseStateEmpty
)

// planSections is the raw parse of a plan response, before it becomes an
// ExtractionPlan.
type planSections struct {
	Goal          string
	DataStructure string
	Fields        []models.FieldDefinition
	Targets       []string
	Strategy      string
	Challenges    []string
	Schema        map[string]models.SchemaFieldConfig
}

// Section headers in the plan grammar, matched case-insensitively with an
// optional markdown heading prefix.
var sectionRe = regexp.MustCompile(`(?i)^(?:#+\s*)?(EXTRACTION GOAL|DATA STRUCTURE|KEY FIELDS|TARGET ELEMENTS|EXTRACTION STRATEGY|POTENTIAL CHALLENGES|SCHEMA)\s*:?\s*(.*)$`)

// Key field bullet: "- name [type]: description". The type bracket and the
// description are optional; models drop them under pressure.
var fieldBulletRe = regexp.MustCompile(`^[-*•]\s*` + "`?" + `([A-Za-z_][A-Za-z0-9_.]*)` + "`?" + `\s*(?:\[([A-Za-z]+)\])?\s*:?\s*(.*)$`)

var bulletRe = regexp.MustCompile(`^[-*•]\s*(.+)$`)

var validFieldTypes = map[string]bool{
	models.FieldTypeString:  true,
	models.FieldTypeNumber:  true,
	models.FieldTypeBoolean: true,
	models.FieldTypeURL:     true,
	models.FieldTypeImage:   true,
	models.FieldTypeDate:    true,
	models.FieldTypeArray:   true,
	models.FieldTypeObject:  true,
}

// parsePlanText parses a plan response in the fixed section grammar.
// Parsing is best effort: unknown lines are skipped, missing sections
// degrade the state rather than failing the parse.
func parsePlanText(text string) (*planSections, ParseState) {
	out := &planSections{}

	// Pull a fenced schema block out first so its lines don't confuse the
	// line scanner.
	schemaText, body := splitSchemaBlock(text)
	if schemaText != "" {
		var schema map[string]models.SchemaFieldConfig
		if err := json.Unmarshal([]byte(schemaText), &schema); err == nil && len(schema) > 0 {
			out.Schema = schema
		}
	}

	current := ""
	for _, rawLine := range strings.Split(body, "\n") {
		line := strings.TrimSpace(rawLine)
		if line == "" || line == "```" {
			continue
		}

		if m := sectionRe.FindStringSubmatch(line); m != nil {
			current = strings.ToUpper(m[1])
			inline := strings.TrimSpace(m[2])
			switch current {
			case "EXTRACTION GOAL":
				out.Goal = inline
			case "DATA STRUCTURE":
				out.DataStructure = strings.ToLower(inline)
			case "EXTRACTION STRATEGY":
				out.Strategy = inline
			}
			continue
		}

		switch current {
		case "EXTRACTION GOAL":
			if out.Goal == "" {
				out.Goal = line
			}
		case "DATA STRUCTURE":
			if out.DataStructure == "" {
				out.DataStructure = strings.ToLower(line)
			}
		case "KEY FIELDS":
			if f, ok := parseFieldBullet(line); ok {
				out.Fields = append(out.Fields, f)
			}
		case "TARGET ELEMENTS":
			if m := bulletRe.FindStringSubmatch(line); m != nil {
				out.Targets = append(out.Targets, cleanSelectorToken(m[1]))
			}
		case "EXTRACTION STRATEGY":
			if out.Strategy == "" {
				out.Strategy = line
			} else {
				out.Strategy += " " + line
			}
		case "POTENTIAL CHALLENGES":
			if m := bulletRe.FindStringSubmatch(line); m != nil {
				out.Challenges = append(out.Challenges, m[1])
			}
		}
	}

	return out, planParseState(out)
}

func planParseState(s *planSections) ParseState {
	if len(s.Fields) > 0 && (s.Goal != "" || s.DataStructure != "" || len(s.Targets) > 0) {
		return ParseStateFull
	}
	if len(s.Fields) > 0 || s.Goal != "" || len(s.Targets) > 0 || s.Schema != nil {
		return ParseStatePartial
	}
	return ParseStateEmpty
}

// parseFieldBullet parses one "- name [type]: description" bullet.
func parseFieldBullet(line string) (models.FieldDefinition, bool) {
	m := fieldBulletRe.FindStringSubmatch(line)
	if m == nil {
		return models.FieldDefinition{}, false
	}

	field := models.FieldDefinition{
		Name:        m[1],
		Type:        strings.ToLower(m[2]),
		Description: strings.TrimSpace(m[3]),
	}
	if field.Type == "" || !validFieldTypes[field.Type] {
		field.Type = models.FieldTypeString
	}

	desc := strings.ToLower(field.Description)
	if strings.Contains(desc, "optional") {
		field.Optional = true
	}
	if field.Type == models.FieldTypeArray || strings.Contains(desc, "list of") || strings.Contains(desc, "(list)") {
		field.IsList = true
	}

	return field, true
}

// splitSchemaBlock removes the first fenced json block that decodes as a
// schema from the text, returning (block, remainder).
func splitSchemaBlock(text string) (string, string) {
	idx := strings.Index(text, "```json")
	if idx < 0 {
		return "", text
	}
	rest := text[idx+len("```json"):]
	end := strings.Index(rest, "```")
	if end < 0 {
		return "", text
	}
	block := strings.TrimSpace(rest[:end])
	remainder := text[:idx] + rest[end+3:]
	return block, remainder
}

// cleanSelectorToken strips backticks and quotes a model may wrap a
// selector in.
func cleanSelectorToken(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, "`")
	s = strings.Trim(s, `"'`)
	return strings.TrimSpace(s)
}

// sectionsToPlan assembles an ExtractionPlan from parsed sections. A
// schema missing from the response is synthesized from the key fields.
func sectionsToPlan(s *planSections, state ParseState) *models.ExtractionPlan {
	plan := &models.ExtractionPlan{
		Success:             state != ParseStateEmpty,
		ExtractionGoal:      s.Goal,
		DataStructure:       s.DataStructure,
		KeyFields:           s.Fields,
		TargetElements:      s.Targets,
		ExtractionStrategy:  s.Strategy,
		PotentialChallenges: s.Challenges,
		Schema:              s.Schema,
	}
	if plan.Schema == nil {
		plan.Schema = models.SchemaFromFields(s.Fields)
	}
	if state == ParseStateEmpty {
		plan.Error = "no plan sections could be parsed from the model response"
	}
	return plan
}
