package calculator

import "fmt"

// Lint reports authoring problems that do not prevent a schema from
// loading but will make some calculations fail or come back incomplete.
func Lint(s *Schema) []string {
	var out []string
	out = append(out, lintSet(s, "", s.Expressions, s.Outputs)...)
	for _, m := range s.Modes {
		out = append(out, lintSet(s, m.Name, ResolveExpressionSet(s, m.Name), resolveOutputSpecs(s, m.Name))...)
	}
	return out
}

func lintSet(s *Schema, mode string, set []Expression, outputs []OutputSpec) []string {
	var out []string
	where := ""
	if mode != "" {
		where = fmt.Sprintf(" (mode %s)", mode)
	}

	inputs := make(map[string]bool, len(s.Inputs))
	for _, in := range s.Inputs {
		inputs[in.Name] = true
	}
	outputNames := make(map[string]bool, len(outputs))
	for _, o := range outputs {
		outputNames[o.Name] = true
	}
	exprNames := make(map[string]bool, len(set))
	for _, x := range set {
		exprNames[x.Name] = true
	}

	for _, o := range outputs {
		if !exprNames[o.Name] {
			out = append(out, fmt.Sprintf("output %s%s has no expression and will never be returned", o.Name, where))
		}
	}
	for _, x := range set {
		if ContainsUnsafeConstruct(x.Source) {
			out = append(out, fmt.Sprintf("expression %s%s contains an unsafe construct", x.Name, where))
			continue
		}
		prog, err := x.Compile()
		if err != nil {
			out = append(out, fmt.Sprintf("expression %s%s does not compile: %v", x.Name, where, err))
			continue
		}
		if !outputNames[x.Name] {
			continue
		}
		for _, ref := range prog.Variables() {
			if ref != x.Name && exprNames[ref] && !outputNames[ref] && !inputs[ref] {
				out = append(out, fmt.Sprintf("expression %s%s references intermediate %s which is not evaluated unless dependencies are resolved", x.Name, where, ref))
			}
		}
	}
	return out
}
