// SPDX-License-Identifier: Apache-2.0

package datalayer

import (
	"errors"
	"strconv"
	"strings"
	"unicode"

	"searchdal/internal/json"
)

// parseWhere parses the legacy where clause. The JSON form is tried first;
// only on its well defined failure is the comparison grammar attempted. The
// order matters: it decides which malformed inputs are rejected outright and
// which are reinterpreted. A double failure aborts the request.
func parseWhere(where string) (map[string]any, error) {
	terms := map[string]any{}
	if err := json.UnmarshalString(where, &terms); err == nil {
		return terms, nil
	}

	terms, err := parseComparisons(where)
	if err != nil {
		return nil, ErrMalformedFilter{Where: where}
	}
	return terms, nil
}

var errWhereSyntax = errors.New("where clause syntax error")

// parseComparisons parses conjunctions of equality comparisons, e.g.
//
//	title == "tool review" and qty == 3
//
// into one term match map. Only == and "and" are supported; anything else is
// a syntax error.
func parseComparisons(input string) (map[string]any, error) {
	p := &whereParser{input: input}
	terms := map[string]any{}

	for {
		field, err := p.ident()
		if err != nil {
			return nil, err
		}
		if err := p.expect("=="); err != nil {
			return nil, err
		}
		value, err := p.literal()
		if err != nil {
			return nil, err
		}
		terms[field] = value

		p.skipSpace()
		if p.done() {
			return terms, nil
		}
		if err := p.keyword("and"); err != nil {
			return nil, err
		}
	}
}

type whereParser struct {
	input string
	pos   int
}

func (p *whereParser) done() bool {
	return p.pos >= len(p.input)
}

func (p *whereParser) skipSpace() {
	for !p.done() && unicode.IsSpace(rune(p.input[p.pos])) {
		p.pos++
	}
}

func (p *whereParser) ident() (string, error) {
	p.skipSpace()
	start := p.pos
	for !p.done() {
		c := rune(p.input[p.pos])
		if !unicode.IsLetter(c) && !unicode.IsDigit(c) && c != '_' && c != '.' {
			break
		}
		p.pos++
	}
	if p.pos == start {
		return "", errWhereSyntax
	}
	return p.input[start:p.pos], nil
}

func (p *whereParser) expect(token string) error {
	p.skipSpace()
	if !strings.HasPrefix(p.input[p.pos:], token) {
		return errWhereSyntax
	}
	p.pos += len(token)
	return nil
}

func (p *whereParser) keyword(word string) error {
	ident, err := p.ident()
	if err != nil {
		return err
	}
	if !strings.EqualFold(ident, word) {
		return errWhereSyntax
	}
	return nil
}

func (p *whereParser) literal() (any, error) {
	p.skipSpace()
	if p.done() {
		return nil, errWhereSyntax
	}

	switch c := p.input[p.pos]; {
	case c == '"' || c == '\'':
		return p.quotedString(c)
	default:
		return p.bareLiteral()
	}
}

func (p *whereParser) quotedString(quote byte) (any, error) {
	p.pos++ // opening quote
	start := p.pos
	for !p.done() && p.input[p.pos] != quote {
		p.pos++
	}
	if p.done() {
		return nil, errWhereSyntax
	}
	value := p.input[start:p.pos]
	p.pos++ // closing quote
	return value, nil
}

func (p *whereParser) bareLiteral() (any, error) {
	start := p.pos
	for !p.done() && !unicode.IsSpace(rune(p.input[p.pos])) {
		p.pos++
	}
	word := p.input[start:p.pos]

	switch strings.ToLower(word) {
	case "true":
		return true, nil
	case "false":
		return false, nil
	}
	if i, err := strconv.ParseInt(word, 10, 64); err == nil {
		return i, nil
	}
	if f, err := strconv.ParseFloat(word, 64); err == nil {
		return f, nil
	}
	return nil, errWhereSyntax
}
