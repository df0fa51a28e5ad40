package calculator

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/medcalc/medcalc/internal/platform/apperr"
	"github.com/medcalc/medcalc/internal/platform/expr"
)

// Options configures an Engine.
type Options struct {
	// ResolveDependencies extends the evaluated set with every expression an
	// output transitively references. When false only expressions named
	// exactly like a requested output are evaluated.
	ResolveDependencies bool
}

// Engine validates inputs against a schema and evaluates its expressions.
// It holds no per-request state and is safe for concurrent use.
type Engine struct {
	opts Options
}

// NewEngine creates a calculation engine.
func NewEngine(opts Options) *Engine {
	return &Engine{opts: opts}
}

// Compute runs the whole pipeline: validate, resolve, filter, evaluate and
// format. Evaluation stops with a Timeout error once ctx is done.
func (e *Engine) Compute(ctx context.Context, s *Schema, inputs map[string]any, mode string) (Results, error) {
	if errs := ValidateInputs(inputs, s, mode); len(errs) > 0 {
		return nil, apperr.Validation(errs)
	}
	set := ResolveExpressionSet(s, mode)
	filtered, err := e.FilterExpressions(set, ResolveRequiredOutputs(s, mode))
	if err != nil {
		return nil, err
	}
	results, err := Evaluate(ctx, filtered, prepareScope(inputs, s))
	if err != nil {
		return nil, err
	}
	return FormatResults(results, s, mode), nil
}

// ============================================================================
// Mode resolution
// ============================================================================

// ResolveRequiredInputs returns the input specs that must be supplied. A
// mode with required_inputs narrows the schema's list; an unknown mode falls
// back to the full list.
func ResolveRequiredInputs(s *Schema, mode string) []InputSpec {
	m, ok := s.Mode(mode)
	if !ok || m.RequiredInputs == nil {
		return s.Inputs
	}
	want := make(map[string]bool, len(m.RequiredInputs))
	for _, name := range m.RequiredInputs {
		want[name] = true
	}
	out := make([]InputSpec, 0, len(m.RequiredInputs))
	for _, in := range s.Inputs {
		if want[in.Name] {
			out = append(out, in)
		}
	}
	return out
}

// ResolveExpressionSet merges the mode's expressions into the schema's. An
// override keeps the position of the expression it replaces; additions are
// appended in mode order.
func ResolveExpressionSet(s *Schema, mode string) []Expression {
	out := make([]Expression, len(s.Expressions))
	copy(out, s.Expressions)
	m, ok := s.Mode(mode)
	if !ok || m.Expressions == nil {
		return out
	}
	index := make(map[string]int, len(out))
	for i, x := range out {
		index[x.Name] = i
	}
	for _, x := range m.Expressions {
		if i, ok := index[x.Name]; ok {
			out[i] = x
			continue
		}
		index[x.Name] = len(out)
		out = append(out, x)
	}
	return out
}

// ResolveRequiredOutputs returns the output names to compute.
func ResolveRequiredOutputs(s *Schema, mode string) []string {
	specs := resolveOutputSpecs(s, mode)
	out := make([]string, 0, len(specs))
	for _, o := range specs {
		out = append(out, o.Name)
	}
	return out
}

func resolveOutputSpecs(s *Schema, mode string) []OutputSpec {
	if m, ok := s.Mode(mode); ok && m.Outputs != nil {
		return m.Outputs
	}
	return s.Outputs
}

// ============================================================================
// Validation
// ============================================================================

// ValidateInputs checks inputs against the mode's required input specs and
// returns every violation found. A nil result means the inputs are valid.
func ValidateInputs(inputs map[string]any, s *Schema, mode string) []string {
	var errs []string
	for _, spec := range ResolveRequiredInputs(s, mode) {
		v, present := inputs[spec.Name]
		if !present || v == nil {
			errs = append(errs, "Missing required input: "+spec.Name)
			continue
		}
		if str, ok := v.(string); ok && str == "" {
			errs = append(errs, "Missing required input: "+spec.Name)
			continue
		}

		switch spec.Type {
		case InputNumber:
			f, ok := numericValue(v)
			if !ok {
				errs = append(errs, fmt.Sprintf("Input %s must be a valid number", spec.Name))
				continue
			}
			if spec.Min != nil && f < *spec.Min {
				errs = append(errs, fmt.Sprintf("Input %s must be >= %s", spec.Name, formatFloat(*spec.Min)))
			}
			if spec.Max != nil && f > *spec.Max {
				errs = append(errs, fmt.Sprintf("Input %s must be <= %s", spec.Name, formatFloat(*spec.Max)))
			}
		case InputSelect:
			if !matchesOption(v, spec.Options) {
				values := make([]string, 0, len(spec.Options))
				for _, o := range spec.Options {
					values = append(values, o.Value)
				}
				errs = append(errs, fmt.Sprintf("Input %s must be one of: %s", spec.Name, strings.Join(values, ", ")))
			}
		case InputBoolean:
			if _, ok := booleanValue(v); !ok {
				errs = append(errs, fmt.Sprintf("Input %s must be true or false", spec.Name))
			}
		}
	}
	return errs
}

// numericValue accepts JSON numbers and strings holding a finite number.
func numericValue(v any) (float64, bool) {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int:
		f = float64(x)
	case int64:
		f = float64(x)
	case json.Number:
		var err error
		if f, err = x.Float64(); err != nil {
			return 0, false
		}
	case string:
		var err error
		if f, err = strconv.ParseFloat(strings.TrimSpace(x), 64); err != nil {
			return 0, false
		}
	default:
		return 0, false
	}
	return f, !math.IsNaN(f) && !math.IsInf(f, 0)
}

func booleanValue(v any) (bool, bool) {
	switch x := v.(type) {
	case bool:
		return x, true
	case string:
		switch strings.ToLower(strings.TrimSpace(x)) {
		case "true":
			return true, true
		case "false":
			return false, true
		}
	}
	return false, false
}

func matchesOption(v any, opts []Option) bool {
	var s string
	switch x := v.(type) {
	case string:
		s = x
	case bool:
		s = strconv.FormatBool(x)
	default:
		f, ok := numericValue(v)
		if !ok {
			return false
		}
		s = formatFloat(f)
	}
	for _, o := range opts {
		if o.Value == s {
			return true
		}
	}
	return false
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// ============================================================================
// Filtering and evaluation
// ============================================================================

// FilterExpressions keeps the expressions named by required, in that order.
// With ResolveDependencies set, expressions referenced by a kept expression
// are included ahead of it; reference cycles are an ExpressionError.
func (e *Engine) FilterExpressions(set []Expression, required []string) ([]Expression, error) {
	byName := make(map[string]Expression, len(set))
	for _, x := range set {
		byName[x.Name] = x
	}

	var out []Expression
	if !e.opts.ResolveDependencies {
		for _, name := range required {
			if x, ok := byName[name]; ok {
				out = append(out, x)
			}
		}
		return out, nil
	}

	const (
		visiting = 1
		done     = 2
	)
	state := make(map[string]int, len(set))
	var visit func(name string, path []string) error
	visit = func(name string, path []string) error {
		switch state[name] {
		case done:
			return nil
		case visiting:
			return apperr.New(apperr.ExpressionError, "expression cycle: %s", strings.Join(append(path, name), " -> "))
		}
		x := byName[name]
		state[name] = visiting
		if prog, err := x.Compile(); err == nil {
			for _, ref := range prog.Variables() {
				if ref == name {
					continue
				}
				if _, ok := byName[ref]; !ok {
					continue
				}
				if err := visit(ref, append(path, name)); err != nil {
					return err
				}
			}
		}
		state[name] = done
		out = append(out, x)
		return nil
	}
	for _, name := range required {
		if _, ok := byName[name]; !ok {
			continue
		}
		if err := visit(name, nil); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// prepareScope coerces declared boolean inputs given as "true"/"false".
func prepareScope(inputs map[string]any, s *Schema) map[string]any {
	scope := make(map[string]any, len(inputs))
	for k, v := range inputs {
		scope[k] = v
	}
	for _, spec := range s.Inputs {
		if spec.Type != InputBoolean {
			continue
		}
		if str, ok := scope[spec.Name].(string); ok {
			if b, ok := booleanValue(str); ok {
				scope[spec.Name] = b
			}
		}
	}
	return scope
}

// Evaluate runs the expressions in order against a copy of inputs. String
// values that parse as numbers become numbers. Each result is written back
// to the scope so later expressions can use it. Every expression is checked
// by the safety filter before any is evaluated. ctx is checked before each
// expression.
func Evaluate(ctx context.Context, exprs []Expression, inputs map[string]any) (map[string]any, error) {
	for _, x := range exprs {
		if ContainsUnsafeConstruct(x.Source) {
			return nil, apperr.New(apperr.UnsafeExpression, "Unsafe operation detected in expression: %s", x.Name)
		}
	}

	scope := make(map[string]any, len(inputs)+len(exprs))
	for k, v := range inputs {
		if str, ok := v.(string); ok {
			if f, err := strconv.ParseFloat(strings.TrimSpace(str), 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
				scope[k] = f
				continue
			}
		}
		scope[k] = v
	}

	results := make(map[string]any, len(exprs))
	for _, x := range exprs {
		if err := ctx.Err(); err != nil {
			return nil, apperr.Wrap(apperr.Timeout, err, "calculation stopped before expression '%s'", x.Name)
		}
		prog, err := x.Compile()
		if err != nil {
			return nil, apperr.Wrap(apperr.ExpressionError, err, "Error evaluating expression '%s'", x.Name)
		}
		v, err := prog.Eval(scope)
		if err != nil {
			return nil, apperr.Wrap(apperr.ExpressionError, err, "Error evaluating expression '%s'", x.Name)
		}
		results[x.Name] = v
		scope[x.Name] = v
	}
	return results, nil
}

// ============================================================================
// Formatting
// ============================================================================

// FormatResults presents results per the mode's output specs. Outputs
// without a computed value are omitted.
func FormatResults(results map[string]any, s *Schema, mode string) Results {
	out := make(Results)
	for _, spec := range resolveOutputSpecs(s, mode) {
		v, ok := results[spec.Name]
		if !ok {
			continue
		}
		if f, isNum := v.(float64); isNum && spec.Decimals != nil && (spec.Type == "" || spec.Type == InputNumber) {
			v = expr.RoundTo(f, *spec.Decimals)
		}
		r := FormattedResult{Value: v, Label: spec.Label}
		if r.Label == "" {
			r.Label = spec.Name
		}
		if spec.Unit != "" {
			unit := spec.Unit
			r.Unit = &unit
		}
		if spec.Description != "" {
			desc := spec.Description
			r.Description = &desc
		}
		out[spec.Name] = r
	}
	return out
}
