package kpi

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// evalFormula evaluates a small arithmetic expression against a variable map.
// Supported grammar: + - * /, parentheses, unary minus, numeric literals, and
// identifiers resolved from vars. Anything else is rejected, which keeps
// formula KPIs free of the arbitrary-evaluation hole the method replaces.
func evalFormula(formula string, vars map[string]float64) (float64, error) {
	tokens, err := tokenize(formula)
	if err != nil {
		return 0, err
	}
	parser := &formulaParser{tokens: tokens, vars: vars}
	value, err := parser.parseExpr()
	if err != nil {
		return 0, err
	}
	if !parser.done() {
		return 0, fmt.Errorf("unexpected token %q in formula", parser.peek().text)
	}
	return value, nil
}

type tokenKind int

const (
	tokenNumber tokenKind = iota
	tokenIdent
	tokenOperator
	tokenLeftParen
	tokenRightParen
)

type token struct {
	kind tokenKind
	text string
}

func tokenize(formula string) ([]token, error) {
	var tokens []token
	runes := []rune(formula)
	for i := 0; i < len(runes); {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case r == '(':
			tokens = append(tokens, token{tokenLeftParen, "("})
			i++
		case r == ')':
			tokens = append(tokens, token{tokenRightParen, ")"})
			i++
		case r == '+' || r == '-' || r == '*' || r == '/':
			tokens = append(tokens, token{tokenOperator, string(r)})
			i++
		case unicode.IsDigit(r) || r == '.':
			start := i
			for i < len(runes) && (unicode.IsDigit(runes[i]) || runes[i] == '.') {
				i++
			}
			tokens = append(tokens, token{tokenNumber, string(runes[start:i])})
		case unicode.IsLetter(r) || r == '_':
			start := i
			for i < len(runes) && (unicode.IsLetter(runes[i]) || unicode.IsDigit(runes[i]) || runes[i] == '_') {
				i++
			}
			tokens = append(tokens, token{tokenIdent, string(runes[start:i])})
		default:
			return nil, fmt.Errorf("illegal character %q in formula", r)
		}
	}
	if len(tokens) == 0 {
		return nil, fmt.Errorf("empty formula")
	}
	return tokens, nil
}

type formulaParser struct {
	tokens []token
	pos    int
	vars   map[string]float64
}

func (p *formulaParser) done() bool {
	return p.pos >= len(p.tokens)
}

func (p *formulaParser) peek() token {
	if p.done() {
		return token{}
	}
	return p.tokens[p.pos]
}

func (p *formulaParser) next() token {
	t := p.peek()
	p.pos++
	return t
}

// parseExpr handles + and -
func (p *formulaParser) parseExpr() (float64, error) {
	value, err := p.parseTerm()
	if err != nil {
		return 0, err
	}
	for !p.done() && p.peek().kind == tokenOperator &&
		(p.peek().text == "+" || p.peek().text == "-") {
		op := p.next().text
		right, err := p.parseTerm()
		if err != nil {
			return 0, err
		}
		if op == "+" {
			value += right
		} else {
			value -= right
		}
	}
	return value, nil
}

// parseTerm handles * and /
func (p *formulaParser) parseTerm() (float64, error) {
	value, err := p.parseFactor()
	if err != nil {
		return 0, err
	}
	for !p.done() && p.peek().kind == tokenOperator &&
		(p.peek().text == "*" || p.peek().text == "/") {
		op := p.next().text
		right, err := p.parseFactor()
		if err != nil {
			return 0, err
		}
		if op == "*" {
			value *= right
		} else {
			if right == 0 {
				return 0, fmt.Errorf("division by zero in formula")
			}
			value /= right
		}
	}
	return value, nil
}

// parseFactor handles literals, identifiers, parentheses, and unary minus
func (p *formulaParser) parseFactor() (float64, error) {
	if p.done() {
		return 0, fmt.Errorf("unexpected end of formula")
	}
	t := p.next()
	switch t.kind {
	case tokenNumber:
		value, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid number %q in formula", t.text)
		}
		return value, nil
	case tokenIdent:
		value, ok := p.vars[t.text]
		if !ok {
			return 0, fmt.Errorf("unknown variable %q in formula", t.text)
		}
		return value, nil
	case tokenLeftParen:
		value, err := p.parseExpr()
		if err != nil {
			return 0, err
		}
		if p.done() || p.peek().kind != tokenRightParen {
			return 0, fmt.Errorf("missing closing parenthesis")
		}
		p.next()
		return value, nil
	case tokenOperator:
		if t.text == "-" {
			value, err := p.parseFactor()
			if err != nil {
				return 0, err
			}
			return -value, nil
		}
	}
	return 0, fmt.Errorf("unexpected token %q in formula", strings.TrimSpace(t.text))
}
