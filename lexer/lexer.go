// Package lexer scans a source byte stream into a list of tokens.
//
// Matching is regex-driven and longest-first: at every offset each
// candidate pattern is tried in priority order and the longest match
// wins; ties are broken by priority, which is why multi-character
// operators are listed ahead of their single-character prefixes.
// Keywords have no patterns of their own: an identifier-shaped match is
// looked up in the keyword table, so a keyword spelling yields its
// keyword Kind rather than IDENT.
package lexer

import (
	"regexp"

	"github.com/skx/c64c/token"
)

// rule pairs a regular expression with the Kind it produces. A rule with
// ident set is "identifier-shaped": the matched text is looked up against
// the keyword table to decide between a keyword Kind and token.IDENT.
type rule struct {
	kind    token.Kind
	re      *regexp.Regexp
	literal bool // keep the matched text as Token.Literal
	ident   bool // run token.LookupIdentifier on the match
}

// Patterns are listed in priority order: operators that are prefixes of
// longer operators (e.g. "<" vs "<<" vs "<<=") are listed after their
// longer forms, so a same-length tie never arises for them; where two
// patterns could both match at maximal length the earlier rule in this
// slice wins. Keyword vs identifier is settled after matching, by the
// keyword-table lookup on the identifier rule.
var rules = []rule{
	{kind: token.SHL_EQ, re: regexp.MustCompile(`^<<=`)},
	{kind: token.SHR_EQ, re: regexp.MustCompile(`^>>=`)},
	{kind: token.SHL, re: regexp.MustCompile(`^<<`)},
	{kind: token.SHR, re: regexp.MustCompile(`^>>`)},
	{kind: token.AND_AND, re: regexp.MustCompile(`^&&`)},
	{kind: token.OR_OR, re: regexp.MustCompile(`^\|\|`)},
	{kind: token.EQ, re: regexp.MustCompile(`^==`)},
	{kind: token.NEQ, re: regexp.MustCompile(`^!=`)},
	{kind: token.LE, re: regexp.MustCompile(`^<=`)},
	{kind: token.GE, re: regexp.MustCompile(`^>=`)},
	{kind: token.PLUS_EQ, re: regexp.MustCompile(`^\+=`)},
	{kind: token.MINUS_EQ, re: regexp.MustCompile(`^-=`)},
	{kind: token.STAR_EQ, re: regexp.MustCompile(`^\*=`)},
	{kind: token.SLASH_EQ, re: regexp.MustCompile(`^/=`)},
	{kind: token.PERCENT_EQ, re: regexp.MustCompile(`^%=`)},
	{kind: token.AND_EQ, re: regexp.MustCompile(`^&=`)},
	{kind: token.OR_EQ, re: regexp.MustCompile(`^\|=`)},
	{kind: token.XOR_EQ, re: regexp.MustCompile(`^\^=`)},
	{kind: token.INC, re: regexp.MustCompile(`^\+\+`)},
	{kind: token.DEC, re: regexp.MustCompile(`^--`)},

	{kind: token.LPAREN, re: regexp.MustCompile(`^\(`)},
	{kind: token.RPAREN, re: regexp.MustCompile(`^\)`)},
	{kind: token.LBRACE, re: regexp.MustCompile(`^\{`)},
	{kind: token.RBRACE, re: regexp.MustCompile(`^\}`)},
	{kind: token.COMMA, re: regexp.MustCompile(`^,`)},
	{kind: token.SEMI, re: regexp.MustCompile(`^;`)},
	{kind: token.COLON, re: regexp.MustCompile(`^:`)},
	{kind: token.QMARK, re: regexp.MustCompile(`^\?`)},

	{kind: token.PLUS, re: regexp.MustCompile(`^\+`)},
	{kind: token.MINUS, re: regexp.MustCompile(`^-`)},
	{kind: token.STAR, re: regexp.MustCompile(`^\*`)},
	{kind: token.SLASH, re: regexp.MustCompile(`^/`)},
	{kind: token.PERCENT, re: regexp.MustCompile(`^%`)},
	{kind: token.TILDE, re: regexp.MustCompile(`^~`)},
	{kind: token.BANG, re: regexp.MustCompile(`^!`)},
	{kind: token.LT, re: regexp.MustCompile(`^<`)},
	{kind: token.GT, re: regexp.MustCompile(`^>`)},
	{kind: token.AMP, re: regexp.MustCompile(`^&`)},
	{kind: token.PIPE, re: regexp.MustCompile(`^\|`)},
	{kind: token.CARET, re: regexp.MustCompile(`^\^`)},
	{kind: token.ASSIGN, re: regexp.MustCompile(`^=`)},

	{kind: token.INT, re: regexp.MustCompile(`^[0-9]+`), literal: true},
	{kind: token.IDENT, re: regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*`), literal: true, ident: true},
}

var whitespace = regexp.MustCompile(`^[ \t\r\n]+`)

// Lexer holds scanning state over an immutable input buffer.
type Lexer struct {
	src []byte
	pos int
}

// New creates a Lexer over input.
func New(input string) *Lexer {
	return &Lexer{src: []byte(input)}
}

// All scans the whole input and returns every recognized token,
// terminated by a single EOF token. Unrecognized bytes are skipped
// silently, one at a time, per spec: the lexer never errors.
func (l *Lexer) All() []token.Token {
	var toks []token.Token
	for {
		tok, ok := l.next()
		if !ok {
			break
		}
		toks = append(toks, tok)
	}
	toks = append(toks, token.Token{Kind: token.EOF, Pos: token.Pos{Start: len(l.src), End: len(l.src)}})
	return toks
}

// next scans one token, returning ok=false once the input is exhausted.
func (l *Lexer) next() (token.Token, bool) {
	for l.pos < len(l.src) {
		if loc := whitespace.FindIndex(l.src[l.pos:]); loc != nil && loc[0] == 0 {
			l.pos += loc[1]
			continue
		}

		best := -1
		bestLen := 0
		for i, r := range rules {
			loc := r.re.FindIndex(l.src[l.pos:])
			if loc == nil || loc[0] != 0 {
				continue
			}
			n := loc[1]
			if n > bestLen {
				bestLen = n
				best = i
			}
		}

		if best == -1 {
			// Unrecognized byte: skip it and keep scanning.
			l.pos++
			continue
		}

		r := rules[best]
		start := l.pos
		end := l.pos + bestLen
		lexeme := string(l.src[start:end])
		l.pos = end

		kind := r.kind
		if r.ident {
			kind = token.LookupIdentifier(lexeme)
		}

		tok := token.Token{Kind: kind, Pos: token.Pos{Start: start, End: end}}
		if r.literal && (!r.ident || kind == token.IDENT) {
			tok.Literal = lexeme
		}
		return tok, true
	}
	return token.Token{}, false
}
