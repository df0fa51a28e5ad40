// Package expr implements the restricted arithmetic language used by
// calculator documents. Expressions can read variables from a scope and call
// an allow-listed set of math functions; nothing else is reachable.
package expr

import (
	"fmt"
	"math"
	"strings"
)

// MaxLength bounds the source length accepted by Compile.
const MaxLength = 4096

// Program is a compiled expression. It is immutable and safe for concurrent
// use.
type Program struct {
	src  string
	root *astNode
	vars []string
}

// Compile parses src into a Program.
func Compile(src string) (*Program, error) {
	src = strings.TrimSpace(src)
	if src == "" {
		return nil, fmt.Errorf("expr: empty expression")
	}
	if len(src) > MaxLength {
		return nil, fmt.Errorf("expr: expression exceeds %d characters", MaxLength)
	}

	tokens, err := tokenize(src)
	if err != nil {
		return nil, fmt.Errorf("expr: tokenize: %w", err)
	}

	p := &parser{tokens: tokens}
	root, err := p.parseTernary()
	if err != nil {
		return nil, fmt.Errorf("expr: parse: %w", err)
	}
	if tok := p.peek(); tok.kind != tkEOF {
		return nil, fmt.Errorf("expr: parse: unexpected %s at position %d", describeToken(tok), tok.pos)
	}

	prog := &Program{src: src, root: root}
	seen := make(map[string]bool)
	collectIdents(root, seen, &prog.vars)
	return prog, nil
}

// Eval evaluates the program against scope. The result is a float64, bool
// or string. Numeric results must be finite.
func (p *Program) Eval(scope map[string]any) (any, error) {
	ctx := &evalContext{scope: scope}
	v, err := ctx.eval(p.root)
	if err != nil {
		return nil, err
	}
	if f, ok := v.(float64); ok && (math.IsNaN(f) || math.IsInf(f, 0)) {
		return nil, fmt.Errorf("result is not a finite number")
	}
	return v, nil
}

// Variables returns the identifiers referenced by the program in order of
// first appearance. Built-in constants are included since a scope may
// shadow them.
func (p *Program) Variables() []string {
	out := make([]string, len(p.vars))
	copy(out, p.vars)
	return out
}

func (p *Program) String() string { return p.src }

func collectIdents(n *astNode, seen map[string]bool, out *[]string) {
	if n.kind == ndIdent && !seen[n.str] {
		seen[n.str] = true
		*out = append(*out, n.str)
	}
	for _, c := range n.children {
		collectIdents(c, seen, out)
	}
}
