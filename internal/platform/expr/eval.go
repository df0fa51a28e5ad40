package expr

import (
	"encoding/json"
	"fmt"
	"math"
)

// ============================================================================
// Evaluator
// ============================================================================

// value is float64, bool or string.
type value = any

type evalContext struct {
	scope map[string]any
}

func (ctx *evalContext) eval(node *astNode) (value, error) {
	switch node.kind {
	case ndNumber:
		return node.num, nil
	case ndString:
		return node.str, nil
	case ndBool:
		return node.num == 1, nil
	case ndIdent:
		return ctx.lookup(node.str)
	case ndUnary:
		return ctx.evalUnary(node)
	case ndBinary:
		return ctx.evalBinary(node)
	case ndAnd, ndOr:
		return ctx.evalLogical(node)
	case ndTernary:
		cond, err := ctx.eval(node.children[0])
		if err != nil {
			return nil, err
		}
		ok, err := truthy(cond)
		if err != nil {
			return nil, err
		}
		if ok {
			return ctx.eval(node.children[1])
		}
		return ctx.eval(node.children[2])
	case ndCall:
		return ctx.evalCall(node)
	}
	return nil, fmt.Errorf("unsupported node kind %d", node.kind)
}

func (ctx *evalContext) lookup(name string) (value, error) {
	if raw, ok := ctx.scope[name]; ok {
		v, err := normalize(raw)
		if err != nil {
			return nil, fmt.Errorf("variable %s: %w", name, err)
		}
		return v, nil
	}
	if c, ok := constants[name]; ok {
		return c, nil
	}
	return nil, fmt.Errorf("undefined symbol %s", name)
}

func (ctx *evalContext) evalUnary(node *astNode) (value, error) {
	v, err := ctx.eval(node.children[0])
	if err != nil {
		return nil, err
	}
	if node.op == "not" {
		b, err := truthy(v)
		if err != nil {
			return nil, err
		}
		return !b, nil
	}
	f, err := toNumber(v)
	if err != nil {
		return nil, err
	}
	if node.op == "-" {
		return -f, nil
	}
	return f, nil
}

func (ctx *evalContext) evalBinary(node *astNode) (value, error) {
	lv, err := ctx.eval(node.children[0])
	if err != nil {
		return nil, err
	}
	rv, err := ctx.eval(node.children[1])
	if err != nil {
		return nil, err
	}

	switch node.op {
	case "==", "!=":
		eq, err := equal(lv, rv)
		if err != nil {
			return nil, err
		}
		return eq == (node.op == "=="), nil
	}

	l, err := toNumber(lv)
	if err != nil {
		return nil, err
	}
	r, err := toNumber(rv)
	if err != nil {
		return nil, err
	}

	switch node.op {
	case "<":
		return l < r, nil
	case ">":
		return l > r, nil
	case "<=":
		return l <= r, nil
	case ">=":
		return l >= r, nil
	case "+":
		return l + r, nil
	case "-":
		return l - r, nil
	case "*":
		return l * r, nil
	case "/":
		if r == 0 {
			return nil, fmt.Errorf("division by zero")
		}
		return l / r, nil
	case "%":
		if r == 0 {
			return nil, fmt.Errorf("division by zero")
		}
		return math.Mod(l, r), nil
	case "^":
		return math.Pow(l, r), nil
	}
	return nil, fmt.Errorf("unsupported operator %s", node.op)
}

func (ctx *evalContext) evalLogical(node *astNode) (value, error) {
	lv, err := ctx.eval(node.children[0])
	if err != nil {
		return nil, err
	}
	l, err := truthy(lv)
	if err != nil {
		return nil, err
	}
	if node.kind == ndAnd && !l {
		return false, nil
	}
	if node.kind == ndOr && l {
		return true, nil
	}
	rv, err := ctx.eval(node.children[1])
	if err != nil {
		return nil, err
	}
	return truthy(rv)
}

func (ctx *evalContext) evalCall(node *astNode) (value, error) {
	fn := functions[node.str]
	args := make([]float64, len(node.children))
	for i, child := range node.children {
		v, err := ctx.eval(child)
		if err != nil {
			return nil, err
		}
		f, err := toNumber(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", node.str, err)
		}
		args[i] = f
	}
	res, err := fn.call(args)
	if err != nil {
		return nil, err
	}
	if math.IsNaN(res) || math.IsInf(res, 0) {
		return nil, fmt.Errorf("%s: result is not a finite number", node.str)
	}
	return res, nil
}

// ============================================================================
// Value helpers
// ============================================================================

func normalize(raw any) (value, error) {
	switch v := raw.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case uint:
		return float64(v), nil
	case uint32:
		return float64(v), nil
	case uint64:
		return float64(v), nil
	case json.Number:
		return v.Float64()
	case bool:
		return v, nil
	case string:
		return v, nil
	case nil:
		return nil, fmt.Errorf("value is null")
	}
	return nil, fmt.Errorf("unsupported value of type %T", raw)
}

func toNumber(v value) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	case string:
		return 0, fmt.Errorf("cannot use string %q as a number", x)
	}
	return 0, fmt.Errorf("cannot use %T as a number", v)
}

func truthy(v value) (bool, error) {
	switch x := v.(type) {
	case bool:
		return x, nil
	case float64:
		return x != 0, nil
	case string:
		return x != "", nil
	}
	return false, fmt.Errorf("cannot use %T as a condition", v)
}

func equal(l, r value) (bool, error) {
	ls, lok := l.(string)
	rs, rok := r.(string)
	if lok || rok {
		if !lok || !rok {
			return false, nil
		}
		return ls == rs, nil
	}
	lf, err := toNumber(l)
	if err != nil {
		return false, err
	}
	rf, err := toNumber(r)
	if err != nil {
		return false, err
	}
	return lf == rf, nil
}
