package executor

import (
	"database/sql"
	"sort"

	"sqlscout/internal/pyfmt"
)

// readRows scans a result set into tuples of plain Go values.
func readRows(rows *sql.Rows) ([]pyfmt.Tuple, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []pyfmt.Tuple
	for rows.Next() {
		vals := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		tuple := make(pyfmt.Tuple, len(cols))
		for i, v := range vals {
			if b, ok := v.([]byte); ok {
				v = string(b)
			}
			tuple[i] = v
		}
		out = append(out, tuple)
	}
	return out, rows.Err()
}

// dedupeAndSort removes duplicate rows and orders the rest, nulls first,
// numbers by value, text lexicographically. The stable ordering keeps
// observations deterministic across runs.
func dedupeAndSort(tuples []pyfmt.Tuple) []pyfmt.Tuple {
	seen := map[string]struct{}{}
	var unique []pyfmt.Tuple
	for _, t := range tuples {
		key := pyfmt.Repr(t)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		unique = append(unique, t)
	}
	sort.SliceStable(unique, func(i, j int) bool {
		return compareTuples(unique[i], unique[j]) < 0
	})
	return unique
}

func compareTuples(a, b pyfmt.Tuple) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if c := compareValues(a[i], b[i]); c != 0 {
			return c
		}
	}
	return len(a) - len(b)
}

func compareValues(a, b interface{}) int {
	an, aNum := asNumber(a)
	bn, bNum := asNumber(b)
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	case aNum && bNum:
		switch {
		case an < bn:
			return -1
		case an > bn:
			return 1
		default:
			return 0
		}
	}
	as, bs := pyfmt.Repr(a), pyfmt.Repr(b)
	switch {
	case as < bs:
		return -1
	case as > bs:
		return 1
	default:
		return 0
	}
}

func asNumber(v interface{}) (float64, bool) {
	switch x := v.(type) {
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

// renderRows renders deduplicated, sorted tuples as a Python list literal.
func renderRows(tuples []pyfmt.Tuple) string {
	items := make([]interface{}, len(tuples))
	for i, t := range tuples {
		items[i] = t
	}
	return pyfmt.Repr(items)
}
