package expr

import (
	"fmt"
	"strings"
	"unicode"
)

// Parse parses a mapping-rule expression.
//
// Grammar:
//
//	expr     := literal | fieldRef | funcCall
//	fieldRef := [table '.'] column
//	funcCall := NAME '(' arg (',' arg)* ')'
//
// The first argument of IF is parsed as a condition (see ParseCondition);
// every other argument position is an expression. A bare identifier that
// matches a known function name without parentheses is still a field
// reference.
func Parse(input string) (Node, error) {
	p := &parser{input: input}
	n, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if !p.eof() {
		return nil, fmt.Errorf("unexpected trailing input at offset %d in %q", p.pos, input)
	}
	return n, nil
}

// ParseCondition parses a standalone condition, as used by business
// rules: comparisons joined by && and ||, with && binding tighter.
func ParseCondition(input string) (Node, error) {
	p := &parser{input: input}
	n, err := p.parseCondition()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if !p.eof() {
		return nil, fmt.Errorf("unexpected trailing input at offset %d in %q", p.pos, input)
	}
	return n, nil
}

type parser struct {
	input string
	pos   int
}

func (p *parser) eof() bool { return p.pos >= len(p.input) }

func (p *parser) peek() byte {
	if p.eof() {
		return 0
	}
	return p.input[p.pos]
}

func (p *parser) skipSpace() {
	for !p.eof() && (p.input[p.pos] == ' ' || p.input[p.pos] == '\t' || p.input[p.pos] == '\n' || p.input[p.pos] == '\r') {
		p.pos++
	}
}

// parseCondition handles the || level (lowest precedence).
func (p *parser) parseCondition() (Node, error) {
	left, err := p.parseConjunction()
	if err != nil {
		return nil, err
	}
	for {
		p.skipSpace()
		if !strings.HasPrefix(p.input[p.pos:], "||") {
			return left, nil
		}
		p.pos += 2
		right, err := p.parseConjunction()
		if err != nil {
			return nil, err
		}
		left = Logical{Op: "||", Left: left, Right: right}
	}
}

// parseConjunction handles the && level.
func (p *parser) parseConjunction() (Node, error) {
	left, err := p.parseComparison()
	if err != nil {
		return nil, err
	}
	for {
		p.skipSpace()
		if !strings.HasPrefix(p.input[p.pos:], "&&") {
			return left, nil
		}
		p.pos += 2
		right, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		left = Logical{Op: "&&", Left: left, Right: right}
	}
}

var comparisonOps = []string{"==", "!=", ">=", "<=", ">", "<"}

func (p *parser) parseComparison() (Node, error) {
	left, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	for _, op := range comparisonOps {
		if strings.HasPrefix(p.input[p.pos:], op) {
			p.pos += len(op)
			right, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			return Comparison{Left: left, Op: op, Right: right}, nil
		}
	}
	return nil, fmt.Errorf("expected comparison operator at offset %d in %q", p.pos, p.input)
}

func (p *parser) parseExpr() (Node, error) {
	p.skipSpace()
	if p.eof() {
		return nil, fmt.Errorf("unexpected end of expression in %q", p.input)
	}

	switch c := p.peek(); {
	case c == '"' || c == '\'':
		return p.parseString(c)
	case c == '-' || unicode.IsDigit(rune(c)):
		return p.parseNumber()
	case isIdentStart(c):
		return p.parseIdentOrCall()
	default:
		return nil, fmt.Errorf("unexpected character %q at offset %d in %q", c, p.pos, p.input)
	}
}

func (p *parser) parseString(quote byte) (Node, error) {
	p.pos++ // opening quote
	start := p.pos
	for !p.eof() && p.input[p.pos] != quote {
		p.pos++
	}
	if p.eof() {
		return nil, fmt.Errorf("unterminated string starting at offset %d in %q", start-1, p.input)
	}
	val := p.input[start:p.pos]
	p.pos++ // closing quote
	return Literal{Value: val}, nil
}

// parseNumber reads a numeric literal. Numbers stay strings in the
// value model; typed comparison happens at evaluation time.
func (p *parser) parseNumber() (Node, error) {
	start := p.pos
	if p.peek() == '-' {
		p.pos++
	}
	for !p.eof() && (unicode.IsDigit(rune(p.peek())) || p.peek() == '.') {
		p.pos++
	}
	if p.pos == start || (p.pos == start+1 && p.input[start] == '-') {
		return nil, fmt.Errorf("invalid number at offset %d in %q", start, p.input)
	}
	return Literal{Value: p.input[start:p.pos]}, nil
}

func (p *parser) parseIdentOrCall() (Node, error) {
	name := p.readIdent()

	p.skipSpace()
	if p.peek() == '(' {
		return p.parseCall(name)
	}

	// table.column or bare column
	if p.peek() == '.' {
		p.pos++
		if !isIdentStart(p.peek()) {
			return nil, fmt.Errorf("expected column name after %q. at offset %d", name, p.pos)
		}
		return FieldRef{Table: name, Column: p.readIdent()}, nil
	}
	return FieldRef{Column: name}, nil
}

func (p *parser) parseCall(name string) (Node, error) {
	arity, known := Functions[name]
	if !known {
		return nil, fmt.Errorf("unknown function %q", name)
	}

	p.pos++ // '('
	var args []Node
	for {
		p.skipSpace()
		if p.peek() == ')' {
			break
		}

		var arg Node
		var err error
		if name == "IF" && len(args) == 0 {
			arg, err = p.parseCondition()
		} else {
			arg, err = p.parseExpr()
		}
		if err != nil {
			return nil, err
		}
		args = append(args, arg)

		p.skipSpace()
		if p.peek() == ',' {
			p.pos++
			continue
		}
		break
	}
	p.skipSpace()
	if p.peek() != ')' {
		return nil, fmt.Errorf("expected ')' at offset %d in %q", p.pos, p.input)
	}
	p.pos++

	if len(args) < arity[0] {
		return nil, fmt.Errorf("%s: want at least %d argument(s), got %d", name, arity[0], len(args))
	}
	if arity[1] >= 0 && len(args) > arity[1] {
		return nil, fmt.Errorf("%s: want at most %d argument(s), got %d", name, arity[1], len(args))
	}
	return Call{Name: name, Args: args}, nil
}

func (p *parser) readIdent() string {
	start := p.pos
	for !p.eof() && isIdentPart(p.input[p.pos]) {
		p.pos++
	}
	return p.input[start:p.pos]
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}
