package expr

import (
	"fmt"
	"strconv"
)

// ============================================================================
// AST node types
// ============================================================================

type nodeKind int

const (
	ndNumber  nodeKind = iota // float64 literal
	ndString                  // string literal
	ndBool                    // true / false
	ndIdent                   // scope variable or constant
	ndUnary                   // -x, +x, not x
	ndBinary                  // arithmetic, comparison
	ndAnd                     // a and b (short-circuit)
	ndOr                      // a or b (short-circuit)
	ndTernary                 // c ? a : b
	ndCall                    // fn(args...)
)

type astNode struct {
	kind     nodeKind
	op       string
	num      float64
	str      string
	children []*astNode
}

// ============================================================================
// Parser: recursive descent
// ============================================================================

const maxDepth = 128

type parser struct {
	tokens []token
	pos    int
	depth  int
}

func (p *parser) peek() token {
	if p.pos < len(p.tokens) {
		return p.tokens[p.pos]
	}
	return token{kind: tkEOF, pos: -1}
}

func (p *parser) advance() token {
	t := p.peek()
	if p.pos < len(p.tokens) {
		p.pos++
	}
	return t
}

func (p *parser) expect(kind tokenKind, what string) (token, error) {
	t := p.advance()
	if t.kind != kind {
		return t, fmt.Errorf("expected %s but got %s at position %d", what, describeToken(t), t.pos)
	}
	return t, nil
}

func (p *parser) enter() error {
	p.depth++
	if p.depth > maxDepth {
		return fmt.Errorf("expression nested deeper than %d levels", maxDepth)
	}
	return nil
}

func (p *parser) leave() { p.depth-- }

// Operator precedence (lowest to highest):
//   ?:                 ternary, right-assoc
//   or ||              (1)
//   and &&             (2)
//   == !=              (3)
//   < > <= >=          (4)
//   + -                (5)
//   * / %              (6)
//   unary - + not !
//   ^ **               right-assoc, binds tighter than unary minus

func (p *parser) parseTernary() (*astNode, error) {
	if err := p.enter(); err != nil {
		return nil, err
	}
	defer p.leave()

	cond, err := p.parseExpression(1)
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tkQuestion {
		return cond, nil
	}
	p.advance()
	then, err := p.parseTernary()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tkColon, "':'"); err != nil {
		return nil, err
	}
	otherwise, err := p.parseTernary()
	if err != nil {
		return nil, err
	}
	return &astNode{kind: ndTernary, children: []*astNode{cond, then, otherwise}}, nil
}

func (p *parser) parseExpression(minPrec int) (*astNode, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		prec, kind, op := infixInfo(p.peek())
		if prec < minPrec {
			break
		}
		p.advance()
		right, err := p.parseExpression(prec + 1)
		if err != nil {
			return nil, err
		}
		left = &astNode{kind: kind, op: op, children: []*astNode{left, right}}
	}
	return left, nil
}

func infixInfo(tok token) (int, nodeKind, string) {
	switch tok.kind {
	case tkOrOr:
		return 1, ndOr, "or"
	case tkAndAnd:
		return 2, ndAnd, "and"
	case tkEq, tkNe:
		return 3, ndBinary, tok.value
	case tkLt, tkGt, tkLe, tkGe:
		return 4, ndBinary, tok.value
	case tkPlus, tkMinus:
		return 5, ndBinary, tok.value
	case tkStar, tkSlash, tkPercent:
		return 6, ndBinary, tok.value
	case tkIdent:
		switch tok.value {
		case "or":
			return 1, ndOr, "or"
		case "and":
			return 2, ndAnd, "and"
		}
	}
	return -1, 0, ""
}

func (p *parser) parseUnary() (*astNode, error) {
	tok := p.peek()
	var op string
	switch {
	case tok.kind == tkMinus:
		op = "-"
	case tok.kind == tkPlus:
		op = "+"
	case tok.kind == tkBang, tok.kind == tkIdent && tok.value == "not":
		op = "not"
	default:
		return p.parsePower()
	}
	p.advance()
	if err := p.enter(); err != nil {
		return nil, err
	}
	defer p.leave()
	operand, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	return &astNode{kind: ndUnary, op: op, children: []*astNode{operand}}, nil
}

func (p *parser) parsePower() (*astNode, error) {
	base, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tkCaret {
		return base, nil
	}
	p.advance()
	if err := p.enter(); err != nil {
		return nil, err
	}
	defer p.leave()
	exponent, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	return &astNode{kind: ndBinary, op: "^", children: []*astNode{base, exponent}}, nil
}

func (p *parser) parsePrimary() (*astNode, error) {
	tok := p.advance()
	switch tok.kind {
	case tkNumber:
		f, err := strconv.ParseFloat(tok.value, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q at position %d", tok.value, tok.pos)
		}
		return &astNode{kind: ndNumber, num: f}, nil
	case tkString:
		return &astNode{kind: ndString, str: tok.value}, nil
	case tkLParen:
		inner, err := p.parseTernary()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tkRParen, "')'"); err != nil {
			return nil, err
		}
		return inner, nil
	case tkIdent:
		switch tok.value {
		case "true":
			return &astNode{kind: ndBool, num: 1}, nil
		case "false":
			return &astNode{kind: ndBool, num: 0}, nil
		case "and", "or", "not":
			return nil, fmt.Errorf("unexpected keyword %q at position %d", tok.value, tok.pos)
		}
		if p.peek().kind == tkLParen {
			p.advance()
			args, err := p.parseArgList()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(tkRParen, "')'"); err != nil {
				return nil, err
			}
			if err := checkCall(tok.value, len(args)); err != nil {
				return nil, fmt.Errorf("%w at position %d", err, tok.pos)
			}
			return &astNode{kind: ndCall, str: tok.value, children: args}, nil
		}
		return &astNode{kind: ndIdent, str: tok.value}, nil
	}
	return nil, fmt.Errorf("unexpected %s at position %d", describeToken(tok), tok.pos)
}

func (p *parser) parseArgList() ([]*astNode, error) {
	var args []*astNode
	if p.peek().kind == tkRParen {
		return args, nil
	}
	for {
		arg, err := p.parseTernary()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
		if p.peek().kind != tkComma {
			return args, nil
		}
		p.advance()
	}
}

func describeToken(t token) string {
	if t.kind == tkEOF {
		return "end of expression"
	}
	return fmt.Sprintf("%q", t.value)
}
