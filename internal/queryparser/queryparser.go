// Package queryparser transforms the textual query grammar described in
// the qualia query language into a queryast.Query. It is a small
// hand-written lexer/parser, in the same spirit as the teacher's
// configurable ID parser (nanostore's parseID): every failure is wrapped
// with positional context rather than a bare "parse error".
package queryparser

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/pianohacker/qualia/internal/queryast"
	"github.com/pianohacker/qualia/internal/value"
	"github.com/pianohacker/qualia/qerr"
)

type tokenKind int

const (
	tEOF tokenKind = iota
	tIdent
	tColon
	tComma
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

type lexer struct {
	src string
	pos int
}

func newLexer(src string) *lexer { return &lexer{src: src} }

func (l *lexer) skipSpace() {
	for l.pos < len(l.src) {
		r, size := utf8.DecodeRuneInString(l.src[l.pos:])
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' {
			l.pos += size
			continue
		}
		break
	}
}

func (l *lexer) next() (token, error) {
	l.skipSpace()
	if l.pos >= len(l.src) {
		return token{kind: tEOF, pos: l.pos}, nil
	}

	start := l.pos
	r, size := utf8.DecodeRuneInString(l.src[l.pos:])

	switch r {
	case ':':
		l.pos += size
		return token{kind: tColon, pos: start}, nil
	case ',':
		l.pos += size
		return token{kind: tComma, pos: start}, nil
	case '"':
		l.pos += size
		var sb strings.Builder
		closed := false
		for l.pos < len(l.src) {
			r, size := utf8.DecodeRuneInString(l.src[l.pos:])
			l.pos += size
			if r == '"' {
				closed = true
				break
			}
			sb.WriteRune(r)
		}
		if !closed {
			return token{}, qerr.NewAt(qerr.ParseError, "queryparser.Parse", start, errUnbalancedQuote)
		}
		return token{kind: tIdent, text: sb.String(), pos: start}, nil
	default:
		for l.pos < len(l.src) {
			r, size := utf8.DecodeRuneInString(l.src[l.pos:])
			if r == ':' || r == ',' || r == ' ' || r == '\t' || r == '\n' || r == '\r' {
				break
			}
			l.pos += size
		}
		return token{kind: tIdent, text: l.src[start:l.pos], pos: start}, nil
	}
}

type parser struct {
	lex *lexer
	cur token
}

func (p *parser) advance() error {
	tok, err := p.lex.next()
	if err != nil {
		return err
	}
	p.cur = tok
	return nil
}

// Parse compiles query text into a Query AST. An empty (or all-whitespace)
// query is valid and matches every object.
func Parse(src string) (*queryast.Query, error) {
	p := &parser{lex: newLexer(src)}
	if err := p.advance(); err != nil {
		return nil, err
	}

	q := &queryast.Query{}
	if p.cur.kind == tEOF {
		return q, nil
	}

	for {
		clause, err := p.parseClause()
		if err != nil {
			return nil, err
		}
		q.Clauses = append(q.Clauses, clause)

		if p.cur.kind == tComma {
			if err := p.advance(); err != nil {
				return nil, err
			}
			continue
		}
		break
	}

	if p.cur.kind != tEOF {
		return nil, p.errorf("unexpected trailing text after query")
	}

	return q, nil
}

func (p *parser) errorf(msg string) error {
	return qerr.NewAt(qerr.ParseError, "queryparser.Parse", p.cur.pos, errString(msg))
}

type errString string

func (e errString) Error() string { return string(e) }

const errUnbalancedQuote = errString("unbalanced quote")

func (p *parser) parseClause() (queryast.Clause, error) {
	if p.cur.kind != tIdent {
		return queryast.Clause{}, p.errorf("expected field name")
	}
	field := p.cur.text
	if err := p.advance(); err != nil {
		return queryast.Clause{}, err
	}

	if p.cur.kind != tColon {
		return queryast.Clause{}, p.errorf("expected ':' after field name")
	}
	if err := p.advance(); err != nil {
		return queryast.Clause{}, err
	}

	if p.cur.kind != tIdent {
		return queryast.Clause{}, p.errorf("expected a value after ':'")
	}

	switch strings.ToLower(p.cur.text) {
	case "exactly":
		if err := p.advance(); err != nil {
			return queryast.Clause{}, err
		}
		return p.parseExactly(field)
	case "between":
		if err := p.advance(); err != nil {
			return queryast.Clause{}, err
		}
		return p.parseBetween(field)
	default:
		return p.parseBareValue(field)
	}
}

func (p *parser) parseExactly(field string) (queryast.Clause, error) {
	if p.cur.kind != tIdent {
		return queryast.Clause{}, p.errorf("expected a value after 'exactly'")
	}
	raw := p.cur.text
	if err := p.advance(); err != nil {
		return queryast.Clause{}, err
	}

	if d, ok := asDate(raw); ok {
		return queryast.Clause{Field: field, Kind: queryast.DateEqual, DateLow: d, DateHigh: d}, nil
	}
	return queryast.Clause{Field: field, Kind: queryast.PhraseExact, Phrase: value.NormalizePhrase(raw)}, nil
}

func (p *parser) parseBetween(field string) (queryast.Clause, error) {
	if p.cur.kind == tIdent && strings.EqualFold(p.cur.text, "dates") {
		if err := p.advance(); err != nil {
			return queryast.Clause{}, err
		}
		lo, err := p.expectDate()
		if err != nil {
			return queryast.Clause{}, err
		}
		if err := p.expectKeyword("and"); err != nil {
			return queryast.Clause{}, err
		}
		hi, err := p.expectDate()
		if err != nil {
			return queryast.Clause{}, err
		}
		return queryast.Clause{Field: field, Kind: queryast.DateRange, DateLow: lo, DateHigh: hi}, nil
	}

	lo, err := p.expectInteger()
	if err != nil {
		return queryast.Clause{}, err
	}
	if err := p.expectKeyword("and"); err != nil {
		return queryast.Clause{}, err
	}
	hi, err := p.expectInteger()
	if err != nil {
		return queryast.Clause{}, err
	}
	if field == "object_id" {
		return queryast.Clause{}, p.errorf("object_id does not support 'between'")
	}
	return queryast.Clause{Field: field, Kind: queryast.IntegerRange, IntLow: lo, IntHigh: hi}, nil
}

func (p *parser) parseBareValue(field string) (queryast.Clause, error) {
	raw := p.cur.text
	if err := p.advance(); err != nil {
		return queryast.Clause{}, err
	}

	if field == "object_id" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return queryast.Clause{}, p.errorf("object_id requires an integer value")
		}
		return queryast.Clause{Field: field, Kind: queryast.ObjectIDEqual, IntLow: n, IntHigh: n}, nil
	}

	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		// Ambiguous per the grammar: may be an integer-equality match, or
		// (if this field holds phrases) a phrase-contains match for the
		// literal decimal text. The executor resolves this against the
		// actual stored variants; both interpretations are carried here.
		return queryast.Clause{
			Field:  field,
			Kind:   queryast.IntegerEqual,
			IntLow: n, IntHigh: n,
			Tokens: value.Tokenize(raw, nil),
		}, nil
	}

	if d, ok := asDate(raw); ok {
		return queryast.Clause{Field: field, Kind: queryast.DateEqual, DateLow: d, DateHigh: d}, nil
	}

	return queryast.Clause{Field: field, Kind: queryast.PhraseContains, Tokens: value.Tokenize(raw, nil)}, nil
}

func (p *parser) expectKeyword(word string) error {
	if p.cur.kind != tIdent || !strings.EqualFold(p.cur.text, word) {
		return p.errorf("expected '" + word + "'")
	}
	return p.advance()
}

func (p *parser) expectInteger() (int64, error) {
	if p.cur.kind != tIdent {
		return 0, p.errorf("expected an integer")
	}
	n, err := strconv.ParseInt(p.cur.text, 10, 64)
	if err != nil {
		return 0, p.errorf("expected an integer")
	}
	if err := p.advance(); err != nil {
		return 0, err
	}
	return n, nil
}

func (p *parser) expectDate() (value.Date, error) {
	if p.cur.kind != tIdent {
		return value.Date{}, p.errorf("expected a date (YYYY-MM-DD)")
	}
	d, ok := asDate(p.cur.text)
	if !ok {
		return value.Date{}, p.errorf("expected a date (YYYY-MM-DD)")
	}
	if err := p.advance(); err != nil {
		return value.Date{}, err
	}
	return d, nil
}

func asDate(raw string) (value.Date, bool) {
	v := value.Classify(raw)
	if v.Tag != value.DateTag {
		return value.Date{}, false
	}
	return v.Date, true
}
