package executor

import (
	"fmt"
	"strings"
)

// formatStatistics prepares a catalog statistics string for display in
// column search results. Value histograms collapse to their key list, and
// long text is truncated with an explicit omission note.
func formatStatistics(stats string) string {
	if keys, ok := parseHistogramKeys(stats); ok {
		out := "categorical field. " + reprStringList(keys)
		if len(out) > 400 {
			out = out[:400] + fmt.Sprintf("...(Omit %d chars)", len(out)-400)
		}
		return out
	}
	if len(stats) > 200 {
		return stats[:200] + fmt.Sprintf("...(Omit %d chars)", len(stats)-200)
	}
	return stats
}

func reprStringList(keys []string) string {
	parts := make([]string, len(keys))
	for i, k := range keys {
		if strings.Contains(k, "'") {
			parts[i] = `"` + k + `"`
		} else {
			parts[i] = "'" + k + "'"
		}
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// parseHistogramKeys extracts the keys of a histogram rendered as a
// Python dict literal with quoted string keys, in order. Returns false for
// anything that is not such a literal.
func parseHistogramKeys(s string) ([]string, bool) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "{") || !strings.HasSuffix(s, "}") {
		return nil, false
	}
	body := s[1 : len(s)-1]
	var keys []string
	i := 0
	for i < len(body) {
		// key
		for i < len(body) && (body[i] == ' ' || body[i] == ',') {
			i++
		}
		if i >= len(body) {
			break
		}
		quote := body[i]
		if quote != '\'' && quote != '"' {
			return nil, false
		}
		i++
		var key strings.Builder
		for i < len(body) && body[i] != quote {
			if body[i] == '\\' && i+1 < len(body) {
				i++
			}
			key.WriteByte(body[i])
			i++
		}
		if i >= len(body) {
			return nil, false
		}
		i++ // closing quote
		keys = append(keys, key.String())

		// skip ": value" up to the next top-level comma
		for i < len(body) && body[i] != ':' {
			i++
		}
		if i >= len(body) {
			return nil, false
		}
		depth := 0
		inStr := byte(0)
		for i < len(body) {
			c := body[i]
			if inStr != 0 {
				if c == '\\' {
					i++
				} else if c == inStr {
					inStr = 0
				}
			} else if c == '\'' || c == '"' {
				inStr = c
			} else if c == '[' || c == '{' || c == '(' {
				depth++
			} else if c == ']' || c == '}' || c == ')' {
				depth--
			} else if c == ',' && depth == 0 {
				break
			}
			i++
		}
	}
	return keys, len(keys) > 0
}
