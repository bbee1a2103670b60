// Package lexer turns source text into a lazy stream of tokens.
//
// The token classes are declared as a table of named regular
// expressions (name plus pattern), each compiled once at init time and
// tried in order against the byte cursor's remaining input. This is a
// hand-rolled scanner built directly on regexp, not a lexer engine
// from an external library: no ready-made lexer generator in the
// dependency pack offers "skip exactly one illegal byte and resume
// mid-stream" recovery, which this scanner requires — illegal bytes
// are reported and skipped, never fatal — so NextToken walks the rule
// table itself against the cursor and recovers by advancing one byte
// on no match.
package lexer

import (
	"regexp"

	"github.com/skx/cc32/syscalltab"
	"github.com/skx/cc32/token"
)

// ruleDef names one token class and the (uncompiled) regular
// expression that recognizes it.
type ruleDef struct {
	Name    string
	Pattern string
}

// rule pairs a compiled token-class regex with the handler that turns
// a raw match into a token.Token.
type rule struct {
	def     ruleDef
	pattern *regexp.Regexp
	build   func(match string) (token.Token, bool) // ok=false means "skip, produced no token"
}

// Lexer holds our scanning state: the full source, a byte cursor, and
// line/column counters. Errors are collected rather than returned,
// since lexing never aborts: an illegal byte is reported and skipped
// so the rest of the file still gets tokenized.
type Lexer struct {
	input  string
	pos    int
	line   int
	column int

	// Errors accumulates one message per illegal byte encountered.
	Errors []string
}

// New creates a Lexer over the given source text.
func New(input string) *Lexer {
	return &Lexer{input: input, line: 1, column: 1}
}

var rules []rule

func init() {
	syscallAlt := ""
	for i, name := range syscalltab.Names() {
		if i > 0 {
			syscallAlt += "|"
		}
		syscallAlt += regexp.QuoteMeta(name)
	}

	defs := []ruleDef{
		{Name: "Comment", Pattern: `//[^\n]*|/\*[\s\S]*?\*/`},
		{Name: "Whitespace", Pattern: `[ \t\r\n]+`},
		{Name: "Ellipsis", Pattern: `\.\.\.`},
		{Name: "Shift", Pattern: `<<|>>>|>>`},
		{Name: "RelOp", Pattern: `[<>]\|?=?|[=!]=`},
		{Name: "Eq", Pattern: `=`},
		{Name: "And", Pattern: `&&`},
		{Name: "Or", Pattern: `\|\|`},
		{Name: "Syscall", Pattern: `\$(?:` + syscallAlt + `)`},
		{Name: "Int", Pattern: `-?[0-9]+`},
		{Name: "Char", Pattern: `'(?:\\.|[^'\\])'`},
		{Name: "String", Pattern: `"(?:\\.|[^"\\])*"`},
		{Name: "Ident", Pattern: `[A-Za-z_][A-Za-z0-9_]*`},
		{Name: "Punct", Pattern: `[(){}\[\];,+\-*/\\%@#&|^~!]`},
	}

	rules = make([]rule, 0, len(defs))
	for _, d := range defs {
		rules = append(rules, rule{
			def:     d,
			pattern: regexp.MustCompile(`^(?:` + d.Pattern + `)`),
			build:   buildFor(d.Name),
		})
	}
}

func buildFor(name string) func(string) (token.Token, bool) {
	switch name {
	case "Comment", "Whitespace":
		return func(string) (token.Token, bool) { return token.Token{}, false }
	case "Ellipsis":
		return func(m string) (token.Token, bool) { return token.Token{Kind: token.ELLIPSIS, Literal: m}, true }
	case "Shift":
		return func(m string) (token.Token, bool) { return token.Token{Kind: token.SHIFT, Literal: m}, true }
	case "RelOp":
		return func(m string) (token.Token, bool) { return token.Token{Kind: token.RELOP, Literal: m}, true }
	case "Eq":
		return func(m string) (token.Token, bool) { return token.Token{Kind: token.EQ, Literal: m}, true }
	case "And":
		return func(m string) (token.Token, bool) { return token.Token{Kind: token.AND, Literal: m}, true }
	case "Or":
		return func(m string) (token.Token, bool) { return token.Token{Kind: token.OR, Literal: m}, true }
	case "Syscall":
		return func(m string) (token.Token, bool) { return token.Token{Kind: token.SYSCALL, Literal: m}, true }
	case "Int":
		return func(m string) (token.Token, bool) { return token.Token{Kind: token.INT, Literal: m}, true }
	case "Char":
		return func(m string) (token.Token, bool) {
			return token.Token{Kind: token.CHAR, Literal: decodeChar(m[1 : len(m)-1])}, true
		}
	case "String":
		return func(m string) (token.Token, bool) {
			return token.Token{Kind: token.STRING, Literal: m[1 : len(m)-1]}, true
		}
	case "Ident":
		return func(m string) (token.Token, bool) {
			kind, _ := token.LookupIdentifier(m)
			return token.Token{Kind: kind, Literal: m}, true
		}
	case "Punct":
		return func(m string) (token.Token, bool) {
			kind, _ := token.Punctuation(rune(m[0]))
			return token.Token{Kind: kind, Literal: m}, true
		}
	default:
		return func(m string) (token.Token, bool) { return token.Token{Kind: token.ERROR, Literal: m}, true }
	}
}

// decodeChar turns the raw text between a pair of single quotes
// ("x", or an escape like "\n") into the one character it denotes.
func decodeChar(raw string) string {
	if len(raw) == 2 && raw[0] == '\\' {
		switch raw[1] {
		case 'n':
			return "\n"
		case 't':
			return "\t"
		case 'r':
			return "\r"
		case '0':
			return "\x00"
		default:
			return raw[1:]
		}
	}
	return raw
}

// NextToken scans and returns the next token, skipping comments and
// whitespace. At end of input it returns a token.EOF token forever.
func (l *Lexer) NextToken() token.Token {
	for {
		if l.pos >= len(l.input) {
			return token.Token{Kind: token.EOF, Line: l.line, Column: l.column}
		}

		remaining := l.input[l.pos:]
		matched := false
		for _, r := range rules {
			loc := r.pattern.FindStringIndex(remaining)
			if loc == nil || loc[0] != 0 {
				continue
			}
			text := remaining[:loc[1]]
			line, col := l.line, l.column
			l.advance(text)
			matched = true
			tok, ok := r.build(text)
			if !ok {
				// whitespace/comment: keep scanning for a real token
				break
			}
			tok.Line = line
			tok.Column = col
			return tok
		}
		if matched {
			continue
		}

		// illegal byte: report and skip it, never fatal.
		l.Errors = append(l.Errors, illegalByteMessage(remaining[0], l.line, l.column))
		l.advance(remaining[:1])
	}
}

func illegalByteMessage(b byte, line, col int) string {
	return "illegal character '" + string(rune(b)) + "' at line " +
		itoa(line) + ", column " + itoa(col)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// Rules exposes the token-class rule table (name plus pattern), for
// introspection and testing.
func Rules() []ruleDef {
	out := make([]ruleDef, len(rules))
	for i, r := range rules {
		out[i] = r.def
	}
	return out
}

// advance moves the cursor past text, updating line/column.
func (l *Lexer) advance(text string) {
	for _, ch := range text {
		if ch == '\n' {
			l.line++
			l.column = 1
		} else {
			l.column++
		}
	}
	l.pos += len(text)
}
