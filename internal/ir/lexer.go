package ir

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

type tokKind uint8

const (
	tokEOF tokKind = iota
	tokIdent
	tokLocal
	tokGlobal
	tokNumber
	tokPunct
)

func (k tokKind) String() string {
	switch k {
	case tokEOF:
		return "end of input"
	case tokIdent:
		return "identifier"
	case tokLocal:
		return "local name"
	case tokGlobal:
		return "global name"
	case tokNumber:
		return "number"
	default:
		return "punctuation"
	}
}

type token struct {
	kind tokKind
	text string
	// quoted marks @"..." and %"..." names, which never denote unnamed slots.
	quoted bool
	line   int
	col    int
}

func (t token) String() string {
	switch t.kind {
	case tokEOF:
		return "end of input"
	case tokLocal:
		return "%" + t.text
	case tokGlobal:
		return "@" + t.text
	default:
		return fmt.Sprintf("%q", t.text)
	}
}

// SyntaxError reports a malformed module text.
type SyntaxError struct {
	File string
	Line int
	Col  int
	Msg  string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("%s:%d:%d: %s", e.File, e.Line, e.Col, e.Msg)
}

type lexer struct {
	file string
	src  string
	pos  int
	line int
	col  int
}

func lex(file, src string) ([]token, error) {
	lx := &lexer{file: file, src: src, line: 1, col: 1}
	var toks []token
	for {
		tok, err := lx.next()
		if err != nil {
			return nil, err
		}
		toks = append(toks, tok)
		if tok.kind == tokEOF {
			return toks, nil
		}
	}
}

func (lx *lexer) errorf(line, col int, format string, args ...any) error {
	return &SyntaxError{File: lx.file, Line: line, Col: col, Msg: fmt.Sprintf(format, args...)}
}

func (lx *lexer) peekByte() byte {
	if lx.pos >= len(lx.src) {
		return 0
	}
	return lx.src[lx.pos]
}

func (lx *lexer) advance() rune {
	r, size := utf8.DecodeRuneInString(lx.src[lx.pos:])
	lx.pos += size
	if r == '\n' {
		lx.line++
		lx.col = 1
	} else {
		lx.col++
	}
	return r
}

func isIdentStart(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c == '_' || c == '.' || c == '$'
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || c >= '0' && c <= '9'
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func (lx *lexer) skipSpace() {
	for lx.pos < len(lx.src) {
		c := lx.src[lx.pos]
		switch {
		case c == ' ' || c == '\t' || c == '\r' || c == '\n':
			lx.advance()
		case c == ';':
			for lx.pos < len(lx.src) && lx.src[lx.pos] != '\n' {
				lx.advance()
			}
		default:
			return
		}
	}
}

func (lx *lexer) next() (token, error) {
	lx.skipSpace()
	line, col := lx.line, lx.col
	if lx.pos >= len(lx.src) {
		return token{kind: tokEOF, line: line, col: col}, nil
	}
	c := lx.src[lx.pos]
	switch {
	case c == '%' || c == '@':
		lx.advance()
		kind := tokLocal
		if c == '@' {
			kind = tokGlobal
		}
		name, quoted, err := lx.name(line, col)
		if err != nil {
			return token{}, err
		}
		return token{kind: kind, text: name, quoted: quoted, line: line, col: col}, nil
	case isDigit(c) || ((c == '-' || c == '+') && lx.pos+1 < len(lx.src) && isDigit(lx.src[lx.pos+1])):
		return token{kind: tokNumber, text: lx.number(), line: line, col: col}, nil
	case isIdentStart(c):
		if strings.HasPrefix(lx.src[lx.pos:], "...") {
			lx.pos += 3
			lx.col += 3
			return token{kind: tokPunct, text: "...", line: line, col: col}, nil
		}
		start := lx.pos
		for lx.pos < len(lx.src) && isIdentPart(lx.src[lx.pos]) {
			lx.advance()
		}
		return token{kind: tokIdent, text: lx.src[start:lx.pos], line: line, col: col}, nil
	case strings.ContainsRune("=,(){}[]<>*:", rune(c)):
		lx.advance()
		return token{kind: tokPunct, text: string(c), line: line, col: col}, nil
	default:
		r := lx.advance()
		return token{}, lx.errorf(line, col, "unexpected character %q", r)
	}
}

func (lx *lexer) name(line, col int) (string, bool, error) {
	if lx.peekByte() == '"' {
		lx.advance()
		var sb strings.Builder
		for {
			if lx.pos >= len(lx.src) {
				return "", false, lx.errorf(line, col, "unterminated quoted name")
			}
			r := lx.advance()
			switch r {
			case '"':
				return sb.String(), true, nil
			case '\\':
				if lx.pos >= len(lx.src) {
					return "", false, lx.errorf(line, col, "unterminated quoted name")
				}
				sb.WriteRune(lx.advance())
			case '\n':
				return "", false, lx.errorf(line, col, "newline in quoted name")
			default:
				sb.WriteRune(r)
			}
		}
	}
	start := lx.pos
	for lx.pos < len(lx.src) && isIdentPart(lx.src[lx.pos]) {
		lx.advance()
	}
	if start == lx.pos {
		return "", false, lx.errorf(line, col, "empty name")
	}
	return lx.src[start:lx.pos], false, nil
}

// number consumes an integer, decimal float or 0x-prefixed hex literal.
func (lx *lexer) number() string {
	start := lx.pos
	if c := lx.peekByte(); c == '-' || c == '+' {
		lx.advance()
	}
	if strings.HasPrefix(lx.src[lx.pos:], "0x") || strings.HasPrefix(lx.src[lx.pos:], "0X") {
		lx.advance()
		lx.advance()
		for lx.pos < len(lx.src) && strings.IndexByte("0123456789abcdefABCDEF", lx.src[lx.pos]) >= 0 {
			lx.advance()
		}
		return lx.src[start:lx.pos]
	}
	for lx.pos < len(lx.src) && isDigit(lx.src[lx.pos]) {
		lx.advance()
	}
	if lx.peekByte() == '.' {
		lx.advance()
		for lx.pos < len(lx.src) && isDigit(lx.src[lx.pos]) {
			lx.advance()
		}
	}
	if c := lx.peekByte(); c == 'e' || c == 'E' {
		lx.advance()
		if c := lx.peekByte(); c == '-' || c == '+' {
			lx.advance()
		}
		for lx.pos < len(lx.src) && isDigit(lx.src[lx.pos]) {
			lx.advance()
		}
	}
	return lx.src[start:lx.pos]
}
