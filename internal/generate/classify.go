package generate

import "strings"

// ErrorCategory buckets a failed attempt so the retry prompt can carry a
// targeted corrective checklist.
type ErrorCategory string

const (
	CategoryJSONParse    ErrorCategory = "JSON_PARSE"
	CategoryMissingField ErrorCategory = "MISSING_FIELD"
	CategoryFormat       ErrorCategory = "FORMAT"
	CategoryUniqueness   ErrorCategory = "UNIQUENESS"
	CategoryValidation   ErrorCategory = "VALIDATION"
	CategoryOther        ErrorCategory = "OTHER"
)

// Keyword tables checked in order; first hit wins.
var categoryKeywords = []struct {
	category ErrorCategory
	keywords []string
}{
	{CategoryJSONParse, []string{"json", "parse", "unmarshal", "unexpected end", "invalid character", "no object found"}},
	{CategoryMissingField, []string{"missing field", "required field", "missing key", "field is required", "no field"}},
	{CategoryUniqueness, []string{"duplicate", "unique", "already exists", "repeated"}},
	{CategoryFormat, []string{"format", "malformed", "wrong type", "expected array", "expected object", "expected string"}},
	{CategoryValidation, []string{"validation", "invalid", "constraint", "out of range", "too short", "too long"}},
}

// Classify maps an error message to its category by keyword match.
func Classify(message string) ErrorCategory {
	lower := strings.ToLower(message)
	for _, entry := range categoryKeywords {
		for _, kw := range entry.keywords {
			if strings.Contains(lower, kw) {
				return entry.category
			}
		}
	}
	return CategoryOther
}

// Corrective checklist appended to a retry prompt per category. OTHER gets
// no checklist: there is nothing specific to correct.
var correctiveChecklists = map[ErrorCategory]string{
	CategoryJSONParse: `Checklist before answering:
- Output a single JSON object and nothing else
- No markdown code fences, no commentary before or after the JSON
- Every string quoted, no trailing commas, no comments inside the JSON`,
	CategoryMissingField: `Checklist before answering:
- Include every field named in the task, even if a value must be empty
- Do not rename fields; use the exact keys requested
- Nest fields exactly as specified`,
	CategoryFormat: `Checklist before answering:
- Match the requested structure exactly (objects vs arrays, strings vs numbers)
- Keep dates, currencies and percentages in the requested format
- Do not wrap scalar values in extra objects`,
	CategoryUniqueness: `Checklist before answering:
- Every list entry must be distinct; remove duplicates before answering
- Vary phrasing so no two entries repeat the same wording
- Check identifiers and titles for collisions`,
	CategoryValidation: `Checklist before answering:
- Re-read each stated constraint and verify your output against it
- Keep numeric values inside their allowed ranges
- Respect required lengths and allowed enumeration values`,
}

// ChecklistFor returns the corrective checklist for a category, or "" when
// none applies.
func ChecklistFor(category ErrorCategory) string {
	return correctiveChecklists[category]
}
