package action

import "strings"

// InvalidResults enumerates observation strings that carry no information:
// empty result sets, lone NULLs and zero aggregates rendered row-style.
var InvalidResults = map[string]struct{}{
	"[]":             {},
	"[()]":           {},
	"[(None,)]":      {},
	"[(None, None)]": {},
	"[(0,)]":         {},
	"[('',)]":        {},
	"None":           {},
	"[(0.0,)]":       {},
}

// IsValidAction reports whether a Parse result is an executable expression
// rather than an error message or the terminal sentinel.
func IsValidAction(actionStr string) bool {
	if actionStr == "" {
		return false
	}
	if strings.HasPrefix(actionStr, "Error") || strings.HasPrefix(actionStr, DoneSentinel) {
		return false
	}
	return true
}

// IsValidResult reports whether an observation is informative: not one of
// the empty-result renderings, not an error, not a rejected feature.
func IsValidResult(result string) bool {
	if _, empty := InvalidResults[result]; empty {
		return false
	}
	if strings.Contains(result, "Error") {
		return false
	}
	if strings.Contains(result, " not supported") {
		return false
	}
	return true
}

// Preprocess normalizes one sampled completion: everything past a second
// action is dropped, whitespace is flattened, and the action marker is put
// back on its own line so downstream splitting stays stable.
func Preprocess(content string) string {
	if strings.Contains(content, "\nAction: ") {
		parts := strings.Split(content, "\nAction: ")
		content = strings.Join(parts[:2], "\nAction: ")
	}
	content = strings.ReplaceAll(content, "\n", " ")
	content = strings.Join(strings.Fields(content), " ")
	content = strings.ReplaceAll(content, "Action:", "\nAction:")
	content = strings.ReplaceAll(content, "[END]", "")
	return content
}
