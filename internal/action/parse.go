// Package action extracts one structured capability invocation from raw
// model output and ranks sampled candidates by action popularity.
//
// Parsing never panics and never returns a Go error to the dialog loop:
// the outcome is always a string that is either a well-formed action
// expression, an "Error..." message that becomes the next observation, or
// the terminal "Done" sentinel.
package action

import (
	"fmt"
	"strings"
)

// Kind identifies one of the four capabilities or the terminal sentinel.
type Kind string

const (
	KindSearchColumn     Kind = "SearchColumn"
	KindSearchValue      Kind = "SearchValue"
	KindFindShortestPath Kind = "FindShortestPath"
	KindExecuteSQL       Kind = "ExecuteSQL"
	KindDone             Kind = "Done"
)

// capabilityNames in recognition order; Done included because the terminal
// keyword competes for the earliest position.
var capabilityNames = []string{
	"SearchColumn",
	"SearchValue",
	"FindShortestPath",
	"ExecuteSQL",
	"Done",
}

// Marker is the literal that introduces the action in model output.
const Marker = "Action:"

// DoneSentinel signals the model believes the task is finished.
const DoneSentinel = "Done"

const (
	errNoAction       = "Error: No valid action found. Please provide an action after `Action:` ."
	errMultipleAction = "Error: More than one `Action:` found. Please provide only one action."
	errUnknownAction  = "Error: Action no found, action must be one of [SearchColumn, SearchValue, FindShortestPath, ExecuteSQL, Done], one at a time."
)

// Parse extracts the single action expression from raw model text.
// The result is the normalized expression, an "Error..." string, or "Done".
func Parse(text string) string {
	text = strings.TrimSpace(text)

	parts := strings.Split(text, Marker)
	if len(parts) < 2 {
		return errNoAction
	}
	if len(parts) > 2 {
		return errMultipleAction
	}

	actionStr := parts[1]

	// Earliest occurrence of any recognized name wins.
	start := -1
	for _, name := range capabilityNames {
		if idx := strings.Index(actionStr, name); idx != -1 && (start == -1 || idx < start) {
			start = idx
		}
	}
	if start == -1 {
		return errUnknownAction
	}
	actionStr = strings.TrimSpace(actionStr[start:])

	if strings.HasPrefix(actionStr, DoneSentinel) {
		return DoneSentinel
	}

	// Multi-line SQL is legal model output; flatten newlines in the
	// ExecuteSQL segment only.
	if idx := strings.Index(actionStr, "ExecuteSQL"); idx != -1 {
		actionStr = actionStr[:idx] + strings.TrimSpace(strings.ReplaceAll(actionStr[idx:], "\n", " "))
	}

	// Trailing commentary after a syntactically closed call is dropped by
	// cutting at the last closing parenthesis.
	actionStr = actionStr[:strings.LastIndex(actionStr, ")")+1]

	return actionStr
}

// ParseError describes a failure to interpret an action expression. Kind
// mirrors the exception-class naming the rendered observation carries.
type ParseError struct {
	Kind    string // SyntaxError, TypeError, ValueError
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Render formats the error the way it is surfaced as an observation.
func (e *ParseError) Render() string {
	return fmt.Sprintf("Error: Action parsing error. %s", e.Error())
}

// Call is the tagged-variant form of a parsed action expression, dispatched
// by switching on Kind rather than evaluating the expression text.
type Call struct {
	Kind Kind
	Raw  string

	// SearchColumn / SearchValue
	Query  []string
	Table  []string
	Column []string
	TopK   int

	// FindShortestPath
	Start []string
	End   []string
	Debug bool

	// ExecuteSQL
	SQL     string
	StrMode bool
}

// ParseCall interprets an action expression previously produced by Parse
// into a Call. It assumes the expression names a known capability.
func ParseCall(expr string) (*Call, *ParseError) {
	expr = strings.TrimSpace(expr)

	var kind Kind
	switch {
	case strings.HasPrefix(expr, string(KindSearchColumn)):
		kind = KindSearchColumn
	case strings.HasPrefix(expr, string(KindSearchValue)):
		kind = KindSearchValue
	case strings.HasPrefix(expr, string(KindFindShortestPath)):
		kind = KindFindShortestPath
	case strings.HasPrefix(expr, string(KindExecuteSQL)):
		kind = KindExecuteSQL
	case strings.HasPrefix(expr, DoneSentinel):
		return &Call{Kind: KindDone, Raw: expr}, nil
	default:
		return nil, &ParseError{Kind: "ValueError", Message: fmt.Sprintf("unknown action %q", firstToken(expr))}
	}

	open := strings.Index(expr, "(")
	end := strings.LastIndex(expr, ")")
	if open == -1 || end == -1 || end < open {
		return nil, &ParseError{Kind: "SyntaxError", Message: "malformed call, expected Name(...)"}
	}

	pos, kw, perr := parseArgs(expr[open+1 : end])
	if perr != nil {
		return nil, perr
	}

	call := &Call{Kind: kind, Raw: expr, TopK: 5, StrMode: true}
	switch kind {
	case KindSearchColumn:
		return bindSearchColumn(call, pos, kw)
	case KindSearchValue:
		return bindSearchValue(call, pos, kw)
	case KindFindShortestPath:
		return bindFindShortestPath(call, pos, kw)
	case KindExecuteSQL:
		return bindExecuteSQL(call, pos, kw)
	}
	return nil, &ParseError{Kind: "ValueError", Message: "unreachable"}
}

func firstToken(s string) string {
	for i, r := range s {
		if r == '(' || r == ' ' {
			return s[:i]
		}
	}
	return s
}

// =============================================================================
// ARGUMENT BINDING
// =============================================================================

func bindSearchColumn(call *Call, pos []argValue, kw map[string]argValue) (*Call, *ParseError) {
	args := newBinder(pos, kw)
	query, err := args.stringList("query", 0, true)
	if err != nil {
		return nil, err
	}
	call.Query = query
	if call.TopK, err = args.intOr("topk", 1, 5); err != nil {
		return nil, err
	}
	return call, nil
}

func bindSearchValue(call *Call, pos []argValue, kw map[string]argValue) (*Call, *ParseError) {
	args := newBinder(pos, kw)
	query, err := args.stringList("query", 0, true)
	if err != nil {
		return nil, err
	}
	call.Query = query
	if call.Table, err = args.stringListOr("table", 1); err != nil {
		return nil, err
	}
	if call.Column, err = args.stringListOr("column", 2); err != nil {
		return nil, err
	}
	if call.TopK, err = args.intOr("topk", 3, 5); err != nil {
		return nil, err
	}
	return call, nil
}

func bindFindShortestPath(call *Call, pos []argValue, kw map[string]argValue) (*Call, *ParseError) {
	args := newBinder(pos, kw)
	start, err := args.stringList("start", 0, true)
	if err != nil {
		return nil, err
	}
	end, err := args.stringList("end", 1, true)
	if err != nil {
		return nil, err
	}
	call.Start, call.End = start, end
	if call.Debug, err = args.boolOr("debug", 2, false); err != nil {
		return nil, err
	}
	return call, nil
}

func bindExecuteSQL(call *Call, pos []argValue, kw map[string]argValue) (*Call, *ParseError) {
	args := newBinder(pos, kw)
	sql, err := args.oneString("sql", 0, true)
	if err != nil {
		return nil, err
	}
	call.SQL = sql
	if call.StrMode, err = args.boolOr("str_mode", 1, true); err != nil {
		return nil, err
	}
	return call, nil
}

// binder resolves an argument by keyword first, position second.
type binder struct {
	pos []argValue
	kw  map[string]argValue
}

func newBinder(pos []argValue, kw map[string]argValue) *binder {
	return &binder{pos: pos, kw: kw}
}

func (b *binder) lookup(name string, idx int) (argValue, bool) {
	if v, ok := b.kw[name]; ok {
		return v, true
	}
	if idx >= 0 && idx < len(b.pos) {
		return b.pos[idx], true
	}
	return argValue{}, false
}

func (b *binder) oneString(name string, idx int, required bool) (string, *ParseError) {
	v, ok := b.lookup(name, idx)
	if !ok {
		if required {
			return "", &ParseError{Kind: "TypeError", Message: fmt.Sprintf("missing required argument %q", name)}
		}
		return "", nil
	}
	if v.kind != argString {
		return "", &ParseError{Kind: "TypeError", Message: fmt.Sprintf("argument %q must be a string", name)}
	}
	return v.str, nil
}

// stringList accepts a single string or a list of strings.
func (b *binder) stringList(name string, idx int, required bool) ([]string, *ParseError) {
	v, ok := b.lookup(name, idx)
	if !ok {
		if required {
			return nil, &ParseError{Kind: "TypeError", Message: fmt.Sprintf("missing required argument %q", name)}
		}
		return nil, nil
	}
	return v.asStringList(name)
}

func (b *binder) stringListOr(name string, idx int) ([]string, *ParseError) {
	v, ok := b.lookup(name, idx)
	if !ok {
		return nil, nil
	}
	return v.asStringList(name)
}

func (b *binder) intOr(name string, idx int, def int) (int, *ParseError) {
	v, ok := b.lookup(name, idx)
	if !ok {
		return def, nil
	}
	if v.kind != argNumber {
		return 0, &ParseError{Kind: "TypeError", Message: fmt.Sprintf("argument %q must be an integer", name)}
	}
	return int(v.num), nil
}

func (b *binder) boolOr(name string, idx int, def bool) (bool, *ParseError) {
	v, ok := b.lookup(name, idx)
	if !ok {
		return def, nil
	}
	if v.kind != argBool {
		return false, &ParseError{Kind: "TypeError", Message: fmt.Sprintf("argument %q must be a boolean", name)}
	}
	return v.boolean, nil
}
