// Package executor dispatches parsed actions against one database: column
// search over the embedding catalog, value search over the full-text index,
// join-path search over the schema graph, and guarded SQL execution.
package executor

import (
	"regexp"
	"strings"
)

// The guard helpers below inspect a lowercased SQL string with any
// subquery tail cut off. They are heuristics over model-written SQL, not a
// SQL parser.

var (
	tableAliasRe  = regexp.MustCompile(`(?:\b(?:from|join)\s+\w+\s+)(?:as\s+)?\b\w+\b`)
	inClauseRe    = regexp.MustCompile(`(?i)WHERE\s+\w+\s+IN\s*\(.*?\)`)
	selectListRe  = regexp.MustCompile(`(?is)SELECT\s+(.*?)\s+FROM`)
	aggregateRe   = regexp.MustCompile(`(?i)(COUNT|SUM|MAX|MIN|AVG)\(\s*[^)]+\s*\)`)
	whereClauseRe = regexp.MustCompile(`(?is)\bwhere\s+(.*)$`)
	whereTailRe   = regexp.MustCompile(`(?i)\s+(group\s+by|order\s+by|having|limit|union|except|intersect)\b.*$`)
)

// guardView lowercases sql and drops everything from the first subquery
// on, so the guards only judge the outer query.
func guardView(sql string) string {
	lower := strings.ToLower(sql)
	if idx := strings.Index(lower, "(select"); idx != -1 {
		lower = lower[:idx]
	}
	return lower
}

// extractTableAliases returns the table aliases used in FROM/JOIN clauses.
func extractTableAliases(sql string) []string {
	matches := tableAliasRe.FindAllString(strings.ToLower(sql), -1)

	replacer := strings.NewReplacer(
		"from", "",
		"join", "",
		" where", "",
		" group", "",
		" on", "",
		" order", "",
		" except", "",
		" union", "",
	)
	var aliases []string
	for _, m := range matches {
		m = strings.TrimSpace(replacer.Replace(m))
		if strings.Count(m, " ") > 0 {
			aliases = append(aliases, m)
		}
	}
	return aliases
}

// containsInClause reports a "WHERE col IN (...)" construct.
func containsInClause(sql string) bool {
	return inClauseRe.MatchString(sql)
}

// extractWhereClause returns the WHERE clause text, or "" when the query
// has none or the clause wraps a subquery.
func extractWhereClause(sql string) string {
	m := whereClauseRe.FindStringSubmatch(sql)
	if m == nil {
		return ""
	}
	clause := whereTailRe.ReplaceAllString(m[1], "")
	clause = strings.TrimSpace(clause)
	if strings.Contains(strings.ToLower(clause), "select ") {
		return ""
	}
	return clause
}

// containsAggregateInSelect reports an aggregate call in the SELECT list.
func containsAggregateInSelect(sql string) bool {
	m := selectListRe.FindStringSubmatch(sql)
	if m == nil {
		return false
	}
	return aggregateRe.MatchString(m[1])
}

// containsMultiColumnsInSelect reports a SELECT list with more than one
// column.
func containsMultiColumnsInSelect(sql string) bool {
	if strings.Contains(strings.ToLower(sql), "select * from") {
		return true
	}
	m := selectListRe.FindStringSubmatch(sql)
	if m == nil {
		return false
	}
	return strings.Count(m[1], ", ") > 0
}
