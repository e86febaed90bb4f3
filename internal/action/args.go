package action

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// argKind tags the literal forms the argument reader accepts.
type argKind int

const (
	argString argKind = iota
	argNumber
	argBool
	argList
)

type argValue struct {
	kind    argKind
	str     string
	num     float64
	boolean bool
	list    []argValue
}

func (v argValue) asStringList(name string) ([]string, *ParseError) {
	switch v.kind {
	case argString:
		return []string{v.str}, nil
	case argList:
		out := make([]string, 0, len(v.list))
		for _, item := range v.list {
			if item.kind != argString {
				return nil, &ParseError{Kind: "TypeError", Message: fmt.Sprintf("argument %q must contain only strings", name)}
			}
			out = append(out, item.str)
		}
		return out, nil
	default:
		return nil, &ParseError{Kind: "TypeError", Message: fmt.Sprintf("argument %q must be a string or a list of strings", name)}
	}
}

// parseArgs reads a comma-separated argument segment of literals. Positional
// arguments must precede keyword arguments.
func parseArgs(s string) ([]argValue, map[string]argValue, *ParseError) {
	lx := &lexer{input: s}
	var pos []argValue
	kw := map[string]argValue{}

	lx.skipSpace()
	for !lx.done() {
		name, v, err := lx.readArg()
		if err != nil {
			return nil, nil, err
		}
		if name == "" {
			if len(kw) > 0 {
				return nil, nil, &ParseError{Kind: "SyntaxError", Message: "positional argument follows keyword argument"}
			}
			pos = append(pos, v)
		} else {
			kw[name] = v
		}
		lx.skipSpace()
		if lx.done() {
			break
		}
		if !lx.consume(',') {
			return nil, nil, &ParseError{Kind: "SyntaxError", Message: fmt.Sprintf("unexpected character %q in arguments", lx.peek())}
		}
		lx.skipSpace()
	}
	return pos, kw, nil
}

type lexer struct {
	input string
	pos   int
}

func (l *lexer) done() bool { return l.pos >= len(l.input) }

func (l *lexer) peek() byte {
	if l.done() {
		return 0
	}
	return l.input[l.pos]
}

func (l *lexer) consume(c byte) bool {
	if !l.done() && l.input[l.pos] == c {
		l.pos++
		return true
	}
	return false
}

func (l *lexer) skipSpace() {
	for !l.done() && unicode.IsSpace(rune(l.input[l.pos])) {
		l.pos++
	}
}

// readArg reads either `name=value` or a bare value.
func (l *lexer) readArg() (string, argValue, *ParseError) {
	if isIdentStart(l.peek()) {
		save := l.pos
		ident := l.readIdent()
		l.skipSpace()
		if l.consume('=') {
			l.skipSpace()
			v, err := l.readValue()
			return ident, v, err
		}
		l.pos = save
	}
	v, err := l.readValue()
	return "", v, err
}

func (l *lexer) readValue() (argValue, *ParseError) {
	l.skipSpace()
	switch c := l.peek(); {
	case c == '\'' || c == '"':
		s, err := l.readString()
		return argValue{kind: argString, str: s}, err
	case c == '[':
		return l.readList()
	case c == '-' || c >= '0' && c <= '9':
		return l.readNumber()
	case isIdentStart(c):
		ident := l.readIdent()
		switch ident {
		case "True", "true":
			return argValue{kind: argBool, boolean: true}, nil
		case "False", "false":
			return argValue{kind: argBool, boolean: false}, nil
		}
		return argValue{}, &ParseError{Kind: "SyntaxError", Message: fmt.Sprintf("unexpected bare word %q", ident)}
	default:
		return argValue{}, &ParseError{Kind: "SyntaxError", Message: fmt.Sprintf("unexpected character %q", c)}
	}
}

func (l *lexer) readString() (string, *ParseError) {
	quote := l.input[l.pos]
	l.pos++
	var b strings.Builder
	for !l.done() {
		c := l.input[l.pos]
		if c == '\\' && l.pos+1 < len(l.input) {
			next := l.input[l.pos+1]
			switch next {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case '\\', '\'', '"':
				b.WriteByte(next)
			default:
				b.WriteByte(c)
				b.WriteByte(next)
			}
			l.pos += 2
			continue
		}
		if c == quote {
			l.pos++
			return b.String(), nil
		}
		b.WriteByte(c)
		l.pos++
	}
	return "", &ParseError{Kind: "SyntaxError", Message: "unterminated string literal"}
}

func (l *lexer) readList() (argValue, *ParseError) {
	l.pos++ // '['
	var items []argValue
	l.skipSpace()
	for !l.done() && l.peek() != ']' {
		v, err := l.readValue()
		if err != nil {
			return argValue{}, err
		}
		items = append(items, v)
		l.skipSpace()
		if l.peek() == ',' {
			l.pos++
			l.skipSpace()
		}
	}
	if !l.consume(']') {
		return argValue{}, &ParseError{Kind: "SyntaxError", Message: "unterminated list literal"}
	}
	return argValue{kind: argList, list: items}, nil
}

func (l *lexer) readNumber() (argValue, *ParseError) {
	start := l.pos
	if l.peek() == '-' {
		l.pos++
	}
	for !l.done() {
		c := l.input[l.pos]
		if c >= '0' && c <= '9' || c == '.' {
			l.pos++
			continue
		}
		break
	}
	text := l.input[start:l.pos]
	n, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return argValue{}, &ParseError{Kind: "ValueError", Message: fmt.Sprintf("bad number literal %q", text)}
	}
	return argValue{kind: argNumber, num: n}, nil
}

func (l *lexer) readIdent() string {
	start := l.pos
	for !l.done() && isIdentPart(l.input[l.pos]) {
		l.pos++
	}
	return l.input[start:l.pos]
}

func isIdentStart(c byte) bool {
	return c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || c >= '0' && c <= '9'
}
