// Package pyfmt renders Go values as Python-style literals. Observations
// shown to the model use this rendering, and the empty-result detection in
// the dialog loop matches against these exact forms, so the formatting
// rules here are load-bearing: single-quoted strings, None for nulls,
// trailing comma in one-element tuples, floats always with a decimal point.
package pyfmt

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Tuple renders as "(a, b)", with the trailing comma Python uses for a
// one-element tuple: "(5,)".
type Tuple []interface{}

// Pair is one entry of a Dict.
type Pair struct {
	Key   interface{}
	Value interface{}
}

// Dict renders as "{'k': v, ...}" preserving entry order.
type Dict []Pair

// Repr renders v as a Python literal.
func Repr(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return "None"
	case bool:
		if x {
			return "True"
		}
		return "False"
	case string:
		return quote(x)
	case []byte:
		return quote(string(x))
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return reprFloat(x)
	case float32:
		return reprFloat(float64(x))
	case Tuple:
		return reprTuple(x)
	case Dict:
		return reprDict(x)
	case []interface{}:
		return reprList(x)
	case []string:
		items := make([]interface{}, len(x))
		for i, s := range x {
			items[i] = s
		}
		return reprList(items)
	default:
		return quote(fmt.Sprintf("%v", x))
	}
}

func reprList(items []interface{}) string {
	parts := make([]string, len(items))
	for i, item := range items {
		parts[i] = Repr(item)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func reprTuple(t Tuple) string {
	parts := make([]string, len(t))
	for i, item := range t {
		parts[i] = Repr(item)
	}
	if len(t) == 1 {
		return "(" + parts[0] + ",)"
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

func reprDict(d Dict) string {
	parts := make([]string, len(d))
	for i, p := range d {
		parts[i] = Repr(p.Key) + ": " + Repr(p.Value)
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// reprFloat keeps a decimal point on integral floats so 0.0 renders as
// "0.0", never "0".
func reprFloat(f float64) string {
	if math.IsInf(f, 1) {
		return "inf"
	}
	if math.IsInf(f, -1) {
		return "-inf"
	}
	if math.IsNaN(f) {
		return "nan"
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}

// quote renders a string the way Python repr does: single quotes by
// default, double quotes when the text contains a single quote and no
// double quote.
func quote(s string) string {
	q := byte('\'')
	if strings.Contains(s, "'") && !strings.Contains(s, `"`) {
		q = '"'
	}
	var b strings.Builder
	b.WriteByte(q)
	for _, r := range s {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		case rune(q):
			b.WriteByte('\\')
			b.WriteRune(r)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte(q)
	return b.String()
}
