// Package lexer turns Covenant source bytes into a token stream.
//
// Grounded on the teacher's hand-rolled parsing idiom (internal/mangle's
// recursive-descent validators) generalised to a real tokenizer with
// span tracking, the way a compiler front end in this corpus is built
// (cf. the retrieval pack's CWBudde-go-dws token/lexer pair).
package lexer

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"covenant/internal/diag"
	"covenant/internal/source"
	"covenant/internal/token"
)

// Lexer scans one source.File into tokens on demand.
type Lexer struct {
	file *source.File
	src  []byte
	pos  int
	diags *diag.Bag
}

// New creates a Lexer over file, reporting lexical errors into diags.
func New(file *source.File, diags *diag.Bag) *Lexer {
	return &Lexer{file: file, src: file.Bytes, diags: diags}
}

func (l *Lexer) span(start int) source.Span {
	return source.Span{File: l.file, Start: start, End: l.pos}
}

func (l *Lexer) errSpan(start int) source.Span {
	end := l.pos
	if end <= start {
		end = start + 1
	}
	return source.Span{File: l.file, Start: start, End: end}
}

// Tokens scans the entire file and returns the resulting token slice,
// always terminated by a single EOF token. Lexical errors are reported
// as diagnostics rather than aborting the scan, so the parser can still
// attempt recovery (spec.md §4.1 "Recovery: resynchronise at the next
// `end`").
func (l *Lexer) Tokens() []token.Token {
	var toks []token.Token
	for {
		t := l.next()
		toks = append(toks, t)
		if t.Kind == token.EOF {
			return toks
		}
	}
}

func (l *Lexer) peekByte() byte {
	if l.pos >= len(l.src) {
		return 0
	}
	return l.src[l.pos]
}

func (l *Lexer) byteAt(off int) byte {
	if l.pos+off >= len(l.src) {
		return 0
	}
	return l.src[l.pos+off]
}

func (l *Lexer) next() token.Token {
	l.skipTrivia()
	start := l.pos
	if l.pos >= len(l.src) {
		return token.Token{Kind: token.EOF, Span: l.span(start)}
	}

	c := l.src[l.pos]
	switch {
	case c == '"':
		if l.byteAt(1) == '"' && l.byteAt(2) == '"' {
			return l.lexTripleString(start)
		}
		return l.lexString(start)
	case c == '=':
		l.pos++
		return token.Token{Kind: token.Equals, Literal: "=", Span: l.span(start)}
	case c == '[':
		l.pos++
		return token.Token{Kind: token.LBracket, Literal: "[", Span: l.span(start)}
	case c == ']':
		l.pos++
		return token.Token{Kind: token.RBracket, Literal: "]", Span: l.span(start)}
	case c == '{':
		l.pos++
		return token.Token{Kind: token.LBrace, Literal: "{", Span: l.span(start)}
	case c == '}':
		l.pos++
		return token.Token{Kind: token.RBrace, Literal: "}", Span: l.span(start)}
	case c == ',':
		l.pos++
		return token.Token{Kind: token.Comma, Literal: ",", Span: l.span(start)}
	case c == ':':
		l.pos++
		return token.Token{Kind: token.Colon, Literal: ":", Span: l.span(start)}
	case c == '-' || isDigit(c):
		return l.lexNumber(start)
	case isIdentStart(c):
		return l.lexIdent(start)
	default:
		l.pos++
		l.diags.Errorf(diag.FamilyParse, "E-PARSE-001", l.errSpan(start), "unexpected character %q", c)
		return token.Token{Kind: token.Illegal, Literal: string(c), Span: l.span(start)}
	}
}

// skipTrivia consumes whitespace and `//` line comments. Comments are
// stripped permanently (spec.md §4.1); they never reach the AST.
func (l *Lexer) skipTrivia() {
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch {
		case c == ' ' || c == '\t' || c == '\r' || c == '\n':
			l.pos++
		case c == '/' && l.byteAt(1) == '/':
			for l.pos < len(l.src) && l.src[l.pos] != '\n' {
				l.pos++
			}
		default:
			return
		}
	}
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentCont(c byte) bool {
	return isIdentStart(c) || isDigit(c) || c == '.'
}

func (l *Lexer) lexIdent(start int) token.Token {
	for l.pos < len(l.src) && isIdentCont(l.src[l.pos]) {
		l.pos++
	}
	lit := string(l.src[start:l.pos])
	switch lit {
	case "true":
		return token.Token{Kind: token.True, Literal: lit, Span: l.span(start)}
	case "false":
		return token.Token{Kind: token.False, Literal: lit, Span: l.span(start)}
	case "none":
		return token.Token{Kind: token.None, Literal: lit, Span: l.span(start)}
	default:
		return token.Token{Kind: token.Ident, Literal: lit, Span: l.span(start)}
	}
}

func (l *Lexer) lexNumber(start int) token.Token {
	if l.src[l.pos] == '-' {
		l.pos++
	}
	for l.pos < len(l.src) && isDigit(l.src[l.pos]) {
		l.pos++
	}
	isFloat := false
	if l.pos < len(l.src) && l.src[l.pos] == '.' && l.byteAt(1) >= '0' && l.byteAt(1) <= '9' {
		isFloat = true
		l.pos++
		for l.pos < len(l.src) && isDigit(l.src[l.pos]) {
			l.pos++
		}
	}
	lit := string(l.src[start:l.pos])
	if isFloat {
		return token.Token{Kind: token.Float, Literal: lit, Span: l.span(start)}
	}
	return token.Token{Kind: token.Int, Literal: lit, Span: l.span(start)}
}

func (l *Lexer) lexString(start int) token.Token {
	l.pos++ // opening quote
	var sb strings.Builder
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		if c == '"' {
			l.pos++
			return token.Token{Kind: token.String, Literal: sb.String(), Span: l.span(start)}
		}
		if c == '\\' {
			l.pos++
			if l.pos >= len(l.src) {
				break
			}
			switch l.src[l.pos] {
			case '"':
				sb.WriteByte('"')
			case '\\':
				sb.WriteByte('\\')
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			default:
				l.diags.Errorf(diag.FamilyParse, "E-PARSE-001", l.errSpan(l.pos-1), "unknown escape sequence \\%c", l.src[l.pos])
				sb.WriteByte(l.src[l.pos])
			}
			l.pos++
			continue
		}
		r, size := decodeRuneAt(l.src, l.pos)
		sb.WriteRune(r)
		l.pos += size
	}
	l.diags.Errorf(diag.FamilyParse, "E-PARSE-001", l.errSpan(start), "unterminated string literal")
	return token.Token{Kind: token.String, Literal: sb.String(), Span: l.span(start)}
}

func (l *Lexer) lexTripleString(start int) token.Token {
	l.pos += 3
	bodyStart := l.pos
	for l.pos < len(l.src) {
		if l.src[l.pos] == '"' && l.byteAt(1) == '"' && l.byteAt(2) == '"' {
			lit := string(l.src[bodyStart:l.pos])
			l.pos += 3
			return token.Token{Kind: token.TripleString, Literal: lit, Span: l.span(start)}
		}
		l.pos++
	}
	l.diags.Errorf(diag.FamilyParse, "E-PARSE-001", l.errSpan(start), "unterminated triple-quoted string")
	return token.Token{Kind: token.TripleString, Literal: string(l.src[bodyStart:l.pos]), Span: l.span(start)}
}

func decodeRuneAt(b []byte, i int) (rune, int) {
	r, size := utf8.DecodeRune(b[i:])
	if r == utf8.RuneError && size <= 1 {
		return rune(b[i]), 1
	}
	return r, size
}

// ParseStringLiteral re-decodes a Token's Literal for diagnostics that
// need to echo a value (e.g. suggestion text). Kept as a small helper so
// callers outside the lexer do not need to duplicate escape handling.
func ParseStringLiteral(t token.Token) (string, error) {
	if t.Kind != token.String && t.Kind != token.TripleString {
		return "", fmt.Errorf("not a string token: %s", t.Kind)
	}
	return t.Literal, nil
}

// ParseInt decodes an Int token's literal.
func ParseInt(lit string) (int64, error) {
	return strconv.ParseInt(lit, 10, 64)
}

// ParseFloat decodes a Float token's literal.
func ParseFloat(lit string) (float64, error) {
	return strconv.ParseFloat(lit, 64)
}
