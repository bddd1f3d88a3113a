package agent

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jmylchreest/gleaner/internal/models"
)

// maxHTMLSample is the character budget for HTML embedded in prompts.
const maxHTMLSample = 15000

// truncateHTML cuts HTML content to maxLen, preferring a tag boundary so
// the model does not see a torn-open element. An explicit marker tells the
// model the sample is partial.
func truncateHTML(content string, maxLen int) string {
	if len(content) <= maxLen {
		return content
	}

	truncated := content[:maxLen]
	if lastClose := strings.LastIndex(truncated, ">"); lastClose > maxLen/2 {
		truncated = truncated[:lastClose+1]
	}
	return truncated + "\n<!-- content truncated -->"
}

// buildPlanPrompt asks the model to draft an extraction plan in the fixed
// section format the parser understands.
func buildPlanPrompt(targetURL, goal, htmlSample string, detected []detectedPattern) string {
	var sb strings.Builder

	sb.WriteString("You are planning a structured data extraction from a web page.\n\n")
	sb.WriteString("## Target\n")
	sb.WriteString(fmt.Sprintf("URL: %s\n", targetURL))
	sb.WriteString(fmt.Sprintf("Goal: %s\n\n", goal))
	sb.WriteString("## Page HTML Sample\n```html\n")
	sb.WriteString(htmlSample)
	sb.WriteString("\n```\n")
	sb.WriteString(hintsPromptSection(detected))

	sb.WriteString(`
## Your Task

Produce an extraction plan in EXACTLY this format:

EXTRACTION GOAL: <one sentence restating what to extract>
DATA STRUCTURE: <list or single>
KEY FIELDS:
- fieldName [type]: description (append "optional" if the field may be absent, "list" if it holds multiple values)
TARGET ELEMENTS:
- <CSS selector of a container element holding one item>
EXTRACTION STRATEGY: <one or two sentences>
POTENTIAL CHALLENGES:
- <challenge>

Valid field types: string, number, boolean, url, image, date, array, object.

Optionally add a SCHEMA section with a fenced json block mapping each field
name to {"type", "selector", "attribute", "transform"} if you are confident
about concrete selectors.
`)

	return sb.String()
}

// buildRefinePrompt asks the model to revise an existing plan given
// feedback and a fresh HTML sample.
func buildRefinePrompt(plan *models.ExtractionPlan, htmlSample, feedback string) string {
	var sb strings.Builder

	sb.WriteString("You previously produced this extraction plan:\n\n")
	planJSON, _ := json.MarshalIndent(plan, "", "  ")
	sb.WriteString("```json\n")
	sb.Write(planJSON)
	sb.WriteString("\n```\n\n")

	if feedback != "" {
		sb.WriteString("## Feedback\n")
		sb.WriteString(feedback)
		sb.WriteString("\n\n")
	}

	sb.WriteString("## Fresh Page HTML Sample\n```html\n")
	sb.WriteString(htmlSample)
	sb.WriteString("\n```\n\n")
	sb.WriteString("Revise the plan. Respond in the same EXTRACTION GOAL / DATA STRUCTURE / KEY FIELDS / TARGET ELEMENTS / EXTRACTION STRATEGY / POTENTIAL CHALLENGES format as before.\n")

	return sb.String()
}

// buildPaginationPrompt asks the model how to walk a multi-page listing.
func buildPaginationPrompt(targetURL, htmlSample string) string {
	var sb strings.Builder

	sb.WriteString("Analyze how this listing page paginates.\n\n")
	sb.WriteString(fmt.Sprintf("URL: %s\n\n", targetURL))
	sb.WriteString("## Page HTML Sample\n```html\n")
	sb.WriteString(htmlSample)
	sb.WriteString("\n```\n\n")
	sb.WriteString(`Respond with a single json object:
{"nextPageSelector": "<CSS selector of the next-page link or empty>",
 "urlPattern": "<URL pattern with {page} placeholder or empty>",
 "pageNumberSelector": "<CSS selector of page number links or empty>",
 "maxPages": <estimated page count or 0>,
 "endIndicator": "<text or selector that marks the last page, or empty>"}
`)

	return sb.String()
}

// buildSelectorPrompt asks for selectors for one described target.
func buildSelectorPrompt(targetDescription, htmlSample string, robust bool) string {
	var sb strings.Builder

	sb.WriteString("Find selectors in this HTML for the described target.\n\n")
	sb.WriteString(fmt.Sprintf("Target: %s\n\n", targetDescription))
	sb.WriteString("## Page HTML Sample\n```html\n")
	sb.WriteString(htmlSample)
	sb.WriteString("\n```\n\n")
	sb.WriteString(`Respond with one selector per line, prefixed:
css: <selector>
xpath: <selector>
explanation: <one sentence on why these selectors were chosen>

Give up to 3 css and up to 2 xpath candidates, most specific first.
`)
	if robust {
		sb.WriteString("\nPrefer ROBUST selectors: stable ids, data attributes and semantic tags over deep positional paths or generated class names.\n")
	}

	return sb.String()
}

// buildImproveSelectorsPrompt asks for better selectors given ones that
// did not work.
func buildImproveSelectorsPrompt(targetDescription string, failed []string, htmlSample string) string {
	var sb strings.Builder

	sb.WriteString("These selectors matched nothing for the described target:\n")
	for _, s := range failed {
		sb.WriteString(fmt.Sprintf("- %s\n", s))
	}
	sb.WriteString(fmt.Sprintf("\nTarget: %s\n\n", targetDescription))
	sb.WriteString("## Page HTML Sample\n```html\n")
	sb.WriteString(htmlSample)
	sb.WriteString("\n```\n\n")
	sb.WriteString("Propose different selectors. Respond with one per line prefixed css: or xpath:, plus an explanation: line.\n")

	return sb.String()
}

// buildConvertSelectorPrompt asks for a conversion between selector kinds.
func buildConvertSelectorPrompt(selector, from, to string) string {
	return fmt.Sprintf(
		"Convert this %s selector to an equivalent %s selector. Respond with ONLY the converted selector on one line, no prose.\n\n%s\n",
		from, to, selector)
}

// buildModelExtractionPrompt asks the model to extract field values from
// HTML when selector evaluation produced nothing.
func buildModelExtractionPrompt(goal string, schema map[string]models.SchemaFieldConfig, htmlContext string) string {
	var sb strings.Builder

	sb.WriteString("Extract structured data from this HTML.\n\n")
	sb.WriteString(fmt.Sprintf("Goal: %s\n\n", goal))

	schemaJSON, _ := json.MarshalIndent(schema, "", "  ")
	sb.WriteString("## Fields\n```json\n")
	sb.Write(schemaJSON)
	sb.WriteString("\n```\n\n")

	sb.WriteString("## HTML\n```html\n")
	sb.WriteString(htmlContext)
	sb.WriteString("\n```\n\n")
	sb.WriteString("Respond with ONLY json: an array of objects (one per item) or a single object, keyed by field name. Use null for values not present.\n")

	return sb.String()
}

// buildRecoveryPrompt asks for alternative selectors for a field whose
// selector stopped matching.
func buildRecoveryPrompt(field models.FieldDefinition, failedSelector, failureReason, htmlSample string) string {
	var sb strings.Builder

	sb.WriteString("A selector stopped matching on this page.\n\n")
	sb.WriteString(fmt.Sprintf("Field: %s (%s)", field.Name, field.Type))
	if field.Description != "" {
		sb.WriteString(" - " + field.Description)
	}
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("Failed selector: %s\n", failedSelector))
	if failureReason != "" {
		sb.WriteString(fmt.Sprintf("Failure: %s\n", failureReason))
	}
	sb.WriteString("\n## Page HTML Sample\n```html\n")
	sb.WriteString(htmlSample)
	sb.WriteString("\n```\n\n")
	sb.WriteString("Respond with ONLY a json array of up to 5 alternative CSS selectors, most likely first. Example: [\".price\", \"span.amount\"]\n")

	return sb.String()
}
