package schema

import (
	"database/sql"
	"fmt"
	"strings"

	"sqlscout/internal/pyfmt"
)

// enumerableLimit is the distinct-value count past which a text column is
// treated as free text rather than an enumeration.
const enumerableLimit = 50

// sentenceSpaces is the space count past which a single value is treated
// as a sentence.
const sentenceSpaces = 8

// ColumnProfile is the statistics summary of one column, as surfaced in
// column search results.
type ColumnProfile struct {
	Table      string
	Column     string
	Type       string
	Statistics string
	// TextField marks free-text columns whose values go into the
	// full-text index.
	TextField bool
}

// ProfileColumn computes the statistics line for one column. The shape of
// the summary depends on the declared type: enumerations keep their value
// histogram, numerics and dates report their range, free text keeps a
// short sample.
func ProfileColumn(db *sql.DB, table string, col Column) (ColumnProfile, error) {
	p := ColumnProfile{Table: table, Column: col.Name, Type: col.Type}

	count, err := RowCount(db, table)
	if err != nil {
		return p, err
	}
	if count == 0 {
		p.Statistics = "empty column."
		return p, nil
	}

	format := strings.ToUpper(col.Type)
	switch {
	case format == "TEXT" || strings.Contains(format, "CHAR") || strings.Contains(format, "VAR"):
		return profileText(db, table, p)
	case containsAny(format, "INTEGER", "INT", "ID"):
		return profileInteger(db, table, p)
	case containsAny(format, "REAL", "NUMERIC", "DECIMAL", "NUMBER", "DOUBLE", "FLOAT"):
		return profileRange(db, table, p)
	case containsAny(format, "DATE", "TIME", "YEAR"):
		return profileRange(db, table, p)
	case strings.Contains(format, "BOOL"):
		return profileBool(db, table, p)
	default:
		// BLOB and friends carry no useful statistics.
		return p, nil
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// profileText decides between an enumerable column (full value histogram)
// and a free-text column (short sample, flagged for full-text indexing).
func profileText(db *sql.DB, table string, p ColumnProfile) (ColumnProfile, error) {
	rows, err := db.Query(fmt.Sprintf("SELECT `%s` FROM `%s`", p.Column, table))
	if err != nil {
		return p, fmt.Errorf("failed to read %s.%s: %w", table, p.Column, err)
	}
	defer rows.Close()

	counts := map[string]int{}
	var order []string
	isText := false
	for rows.Next() {
		var v sql.NullString
		if err := rows.Scan(&v); err != nil {
			return p, err
		}
		if !v.Valid {
			continue
		}
		if strings.Count(strings.TrimSpace(v.String), " ") > sentenceSpaces {
			isText = true
		}
		if _, seen := counts[v.String]; !seen {
			order = append(order, v.String)
			if len(order) > enumerableLimit {
				isText = true
				break
			}
		}
		counts[v.String]++
	}
	if err := rows.Err(); err != nil {
		return p, err
	}

	if isText {
		sample := strings.Join(order, ", ")
		if len(sample) > 100 {
			sample = sample[:100]
		}
		p.Statistics = "text field. e.g. " + sample + " ..."
		p.TextField = true
		return p, nil
	}
	if len(order) == 0 {
		p.Statistics = "empty column."
		return p, nil
	}
	hist := make(pyfmt.Dict, 0, len(order))
	for _, v := range order {
		hist = append(hist, pyfmt.Pair{Key: v, Value: counts[v]})
	}
	p.Statistics = pyfmt.Repr(hist)
	return p, nil
}

func profileInteger(db *sql.DB, table string, p ColumnProfile) (ColumnProfile, error) {
	var minV, maxV sql.NullString
	var distinct int64
	err := db.QueryRow(fmt.Sprintf(
		"SELECT MIN(`%s`), MAX(`%s`), COUNT(DISTINCT `%s`) FROM `%s`",
		p.Column, p.Column, p.Column, table,
	)).Scan(&minV, &maxV, &distinct)
	if err != nil {
		return p, fmt.Errorf("failed to profile %s.%s: %w", table, p.Column, err)
	}
	if !minV.Valid || !maxV.Valid {
		p.Statistics = "dirty data, column value is none."
		return p, nil
	}
	p.Statistics = fmt.Sprintf("min: %s, max: %s. distinct count: %d", minV.String, maxV.String, distinct)
	return p, nil
}

func profileRange(db *sql.DB, table string, p ColumnProfile) (ColumnProfile, error) {
	var minV, maxV sql.NullString
	err := db.QueryRow(fmt.Sprintf(
		"SELECT MIN(`%s`), MAX(`%s`) FROM `%s`", p.Column, p.Column, table,
	)).Scan(&minV, &maxV)
	if err != nil {
		return p, fmt.Errorf("failed to profile %s.%s: %w", table, p.Column, err)
	}
	if minV.Valid && maxV.Valid {
		p.Statistics = fmt.Sprintf("min: %s, max: %s", minV.String, maxV.String)
	}
	return p, nil
}

func profileBool(db *sql.DB, table string, p ColumnProfile) (ColumnProfile, error) {
	rows, err := db.Query(fmt.Sprintf(
		"SELECT `%s`, COUNT(*) FROM `%s` GROUP BY `%s`", p.Column, table, p.Column,
	))
	if err != nil {
		return p, fmt.Errorf("failed to profile %s.%s: %w", table, p.Column, err)
	}
	defer rows.Close()

	var hist pyfmt.Dict
	for rows.Next() {
		var v interface{}
		var n int64
		if err := rows.Scan(&v, &n); err != nil {
			return p, err
		}
		hist = append(hist, pyfmt.Pair{Key: normalizeScalar(v), Value: n})
	}
	if err := rows.Err(); err != nil {
		return p, err
	}
	if len(hist) == 0 {
		p.Statistics = "empty column."
		return p, nil
	}
	p.Statistics = fmt.Sprintf("distinct count: %s", pyfmt.Repr(hist))
	return p, nil
}

// normalizeScalar maps driver-specific scan types onto the small set pyfmt
// understands.
func normalizeScalar(v interface{}) interface{} {
	switch x := v.(type) {
	case []byte:
		return string(x)
	default:
		return v
	}
}

// TextValues returns the distinct non-empty values of a text column for
// full-text indexing.
func TextValues(db *sql.DB, table, column string) ([]string, error) {
	rows, err := db.Query(fmt.Sprintf(
		"SELECT DISTINCT `%s` FROM `%s` WHERE `%s` IS NOT NULL AND `%s` != ''",
		column, table, column, column,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to read values of %s.%s: %w", table, column, err)
	}
	defer rows.Close()

	var values []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, rows.Err()
}
