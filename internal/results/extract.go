// Package results turns saved dialog records into final SQL predictions in
// the layouts the downstream evaluators expect.
package results

import (
	"fmt"
	"regexp"
	"strings"

	"sqlscout/internal/llm"
)

// starQueryPrefix marks the exploratory probe queries the model issues
// early in a dialog. They only become the answer when nothing better exists.
const starQueryPrefix = "SELECT * FROM"

// ExtractFinalSQL walks the dialog backwards and returns the SQL of the
// last ExecuteSQL call, skipping bare table dumps unless they are all there
// is. Returns "None" when no call parses.
func ExtractFinalSQL(dialog []llm.Message) string {
	defaultSQL := ""
	for i := len(dialog) - 1; i >= 0; i-- {
		m := dialog[i]
		if m.Role != "assistant" {
			continue
		}
		idx := strings.Index(m.Content, "ExecuteSQL(")
		if idx == -1 {
			continue
		}
		rest := m.Content[idx+len("ExecuteSQL("):]
		if len(rest) == 0 {
			continue
		}
		rest = rest[:len(rest)-1]
		sql, err := unquote(rest)
		if err != nil {
			continue
		}
		if !strings.HasPrefix(sql, starQueryPrefix) {
			return sql
		}
		if defaultSQL == "" {
			defaultSQL = sql
		}
	}
	if defaultSQL != "" {
		return defaultSQL
	}
	return "None"
}

var castRe = regexp.MustCompile(`(?i)CAST\((.*?) AS [^\)]+\)`)

// RemoveCast rewrites CAST(expr AS type) to expr. The Spider evaluator does
// not understand the CAST syntax.
func RemoveCast(sql string) string {
	return castRe.ReplaceAllString(sql, "$1")
}

// PostProcess applies the evaluator compatibility rewrites.
func PostProcess(sql string) string {
	if strings.Contains(strings.ToLower(sql), "cast(") {
		sql = RemoveCast(sql)
	}
	return strings.ReplaceAll(sql, " * 1.0)", ")")
}

// unquote parses one quoted string literal the way the dialog renders SQL
// arguments: single or double quoted, backslash escapes.
func unquote(s string) (string, error) {
	s = strings.TrimSpace(s)
	if len(s) < 2 {
		return "", fmt.Errorf("not a string literal: %q", s)
	}
	q := s[0]
	if q != '\'' && q != '"' {
		return "", fmt.Errorf("not a string literal: %q", s)
	}
	if s[len(s)-1] != q {
		return "", fmt.Errorf("unterminated string literal: %q", s)
	}
	body := s[1 : len(s)-1]
	var b strings.Builder
	for i := 0; i < len(body); i++ {
		c := body[i]
		if c == q {
			return "", fmt.Errorf("unescaped quote in literal: %q", s)
		}
		if c != '\\' {
			b.WriteByte(c)
			continue
		}
		i++
		if i >= len(body) {
			return "", fmt.Errorf("dangling escape in literal: %q", s)
		}
		switch body[i] {
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		case '\\', '\'', '"':
			b.WriteByte(body[i])
		default:
			b.WriteByte('\\')
			b.WriteByte(body[i])
		}
	}
	return b.String(), nil
}
