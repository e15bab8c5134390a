package generate

import (
	"fmt"
	"strings"
)

// StripFences removes markdown code-fence delimiters from LLM output.
func StripFences(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// ExtractJSON isolates the JSON object embedded in raw model output: code
// fences are stripped and anything outside the first '{' and the last '}'
// is discarded. Returns an error when no object span exists; the caller
// classifies that as a parse failure and retries.
func ExtractJSON(raw string) (string, error) {
	s := StripFences(raw)
	start := strings.Index(s, "{")
	if start == -1 {
		return "", fmt.Errorf("no object found in output")
	}
	end := strings.LastIndex(s, "}")
	if end == -1 || end < start {
		return "", fmt.Errorf("no object found in output: unbalanced braces")
	}
	return s[start : end+1], nil
}
