package calculator

import (
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/medcalc/medcalc/internal/platform/apperr"
	"github.com/medcalc/medcalc/internal/platform/document"
)

var schemaExts = map[string]bool{".json": true, ".yaml": true, ".yml": true}

// LoadSchemas parses every calculator document at the root of fsys. The
// file stem is the calculator id. Any invalid document fails the whole load.
func LoadSchemas(fsys fs.FS) (map[string]*Schema, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, apperr.Wrap(apperr.SchemaLoadError, err, "read calculator repository")
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") || !schemaExts[strings.ToLower(path.Ext(e.Name()))] {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	out := make(map[string]*Schema, len(names))
	source := make(map[string]string, len(names))
	for _, name := range names {
		id := strings.TrimSuffix(name, path.Ext(name))
		if prev, dup := source[id]; dup {
			return nil, apperr.New(apperr.SchemaLoadError, "calculator %s: defined by both %s and %s", id, prev, name)
		}
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, apperr.Wrap(apperr.SchemaLoadError, err, "read %s", name)
		}
		s, err := ParseSchema(id, data)
		if err != nil {
			return nil, apperr.Wrap(apperr.SchemaLoadError, err, "calculator %s", name)
		}
		out[id] = s
		source[id] = name
	}
	return out, nil
}

// ParseSchema decodes and structurally validates one calculator document.
// Expressions are compiled eagerly; compile failures are kept on the
// expression and surface when it is evaluated.
func ParseSchema(id string, data []byte) (*Schema, error) {
	root, err := document.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	if root.Kind != yaml.MappingNode {
		return nil, errors.New("calculator schema must be a mapping")
	}
	for _, field := range []string{"name", "inputs", "expressions", "outputs"} {
		if document.IsNull(document.Lookup(root, field)) {
			return nil, fmt.Errorf("calculator schema missing required field: %s", field)
		}
	}

	s := &Schema{ID: id}
	if s.Name, err = document.String(document.Lookup(root, "name")); err != nil {
		return nil, fmt.Errorf("name: %w", err)
	}
	if strings.TrimSpace(s.Name) == "" {
		return nil, errors.New("calculator schema missing required field: name")
	}
	if s.Description, err = document.OptionalString(document.Lookup(root, "description")); err != nil {
		return nil, fmt.Errorf("description: %w", err)
	}
	if s.Category, err = document.OptionalString(document.Lookup(root, "category")); err != nil {
		return nil, fmt.Errorf("category: %w", err)
	}

	items, err := document.Items(document.Lookup(root, "inputs"))
	if err != nil {
		return nil, fmt.Errorf("calculator schema inputs must be an array: %w", err)
	}
	seen := make(map[string]bool, len(items))
	for i, it := range items {
		in, err := parseInput(it)
		if err != nil {
			return nil, fmt.Errorf("inputs[%d]: %w", i, err)
		}
		if seen[in.Name] {
			return nil, fmt.Errorf("inputs[%d]: duplicate input %s", i, in.Name)
		}
		seen[in.Name] = true
		s.Inputs = append(s.Inputs, in)
	}

	if s.Expressions, err = parseExpressions(document.Lookup(root, "expressions")); err != nil {
		return nil, err
	}

	if s.Outputs, err = parseOutputs(document.Lookup(root, "outputs")); err != nil {
		return nil, err
	}

	if mn := document.Lookup(root, "modes"); !document.IsNull(mn) {
		modes, err := document.Entries(mn)
		if err != nil {
			return nil, fmt.Errorf("modes: %w", err)
		}
		for _, m := range modes {
			mode, err := parseMode(m.Key, m.Value, seen)
			if err != nil {
				return nil, fmt.Errorf("mode %s: %w", m.Key, err)
			}
			s.Modes = append(s.Modes, mode)
		}
	}
	return s, nil
}

func parseInput(n *yaml.Node) (InputSpec, error) {
	var in InputSpec
	var err error
	if in.Name, err = document.String(document.Lookup(n, "name")); err != nil {
		return in, fmt.Errorf("name: %w", err)
	}
	if strings.TrimSpace(in.Name) == "" {
		return in, errors.New("name must not be empty")
	}
	if in.Type, err = document.OptionalString(document.Lookup(n, "type")); err != nil {
		return in, fmt.Errorf("%s.type: %w", in.Name, err)
	}
	switch in.Type {
	case "", InputNumber, InputText, InputSelect, InputBoolean:
	default:
		return in, fmt.Errorf("%s: unsupported input type %q", in.Name, in.Type)
	}
	if in.Label, err = document.OptionalString(document.Lookup(n, "label")); err != nil {
		return in, fmt.Errorf("%s.label: %w", in.Name, err)
	}
	if in.Unit, err = document.OptionalString(document.Lookup(n, "unit")); err != nil {
		return in, fmt.Errorf("%s.unit: %w", in.Name, err)
	}
	if in.Min, err = document.OptionalFloat(document.Lookup(n, "min")); err != nil {
		return in, fmt.Errorf("%s.min: %w", in.Name, err)
	}
	if in.Max, err = document.OptionalFloat(document.Lookup(n, "max")); err != nil {
		return in, fmt.Errorf("%s.max: %w", in.Name, err)
	}
	if in.Min != nil && in.Max != nil && *in.Min > *in.Max {
		return in, fmt.Errorf("%s: min is greater than max", in.Name)
	}

	if on := document.Lookup(n, "options"); !document.IsNull(on) {
		opts, err := document.Items(on)
		if err != nil {
			return in, fmt.Errorf("%s.options: %w", in.Name, err)
		}
		for i, o := range opts {
			var opt Option
			if o.Kind == yaml.ScalarNode {
				opt.Value, err = document.String(o)
			} else {
				if opt.Value, err = document.String(document.Lookup(o, "value")); err == nil {
					opt.Label, err = document.OptionalString(document.Lookup(o, "label"))
				}
			}
			if err != nil {
				return in, fmt.Errorf("%s.options[%d]: %w", in.Name, i, err)
			}
			in.Options = append(in.Options, opt)
		}
	}
	if in.Type == InputSelect && len(in.Options) == 0 {
		return in, fmt.Errorf("%s: select input needs options", in.Name)
	}
	return in, nil
}

func parseExpressions(n *yaml.Node) ([]Expression, error) {
	entries, err := document.Entries(n)
	if err != nil {
		return nil, fmt.Errorf("calculator schema expressions must be an object: %w", err)
	}
	out := make([]Expression, 0, len(entries))
	for _, e := range entries {
		src, err := document.String(e.Value)
		if err != nil || e.Value.ShortTag() != "!!str" {
			return nil, fmt.Errorf("expression %s must be a string", e.Key)
		}
		x := Expression{Name: e.Key, Source: src}
		x.precompile()
		out = append(out, x)
	}
	return out, nil
}

func parseOutputs(n *yaml.Node) ([]OutputSpec, error) {
	items, err := document.Items(n)
	if err != nil {
		return nil, fmt.Errorf("calculator schema outputs must be an array: %w", err)
	}
	out := make([]OutputSpec, 0, len(items))
	for i, it := range items {
		o, err := parseOutput(it)
		if err != nil {
			return nil, fmt.Errorf("outputs[%d]: %w", i, err)
		}
		out = append(out, o)
	}
	return out, nil
}

func parseOutput(n *yaml.Node) (OutputSpec, error) {
	var o OutputSpec
	var err error
	if o.Name, err = document.String(document.Lookup(n, "name")); err != nil {
		return o, fmt.Errorf("name: %w", err)
	}
	if o.Type, err = document.OptionalString(document.Lookup(n, "type")); err != nil {
		return o, fmt.Errorf("%s.type: %w", o.Name, err)
	}
	if o.Unit, err = document.OptionalString(document.Lookup(n, "unit")); err != nil {
		return o, fmt.Errorf("%s.unit: %w", o.Name, err)
	}
	if o.Label, err = document.OptionalString(document.Lookup(n, "label")); err != nil {
		return o, fmt.Errorf("%s.label: %w", o.Name, err)
	}
	if o.Description, err = document.OptionalString(document.Lookup(n, "description")); err != nil {
		return o, fmt.Errorf("%s.description: %w", o.Name, err)
	}
	d, err := document.OptionalFloat(document.Lookup(n, "decimals"))
	if err != nil {
		return o, fmt.Errorf("%s.decimals: %w", o.Name, err)
	}
	if d != nil {
		if *d < 0 || *d > 15 || *d != float64(int(*d)) {
			return o, fmt.Errorf("%s.decimals must be an integer between 0 and 15", o.Name)
		}
		places := int(*d)
		o.Decimals = &places
	}
	return o, nil
}

func parseMode(name string, n *yaml.Node, inputs map[string]bool) (Mode, error) {
	m := Mode{Name: name}
	if n.Kind != yaml.MappingNode {
		return m, errors.New("mode must be a mapping")
	}
	if rn := document.Lookup(n, "required_inputs"); !document.IsNull(rn) {
		req, err := document.StringList(rn)
		if err != nil {
			return m, fmt.Errorf("required_inputs: %w", err)
		}
		for _, r := range req {
			if !inputs[r] {
				return m, fmt.Errorf("required_inputs names unknown input %s", r)
			}
		}
		m.RequiredInputs = append([]string{}, req...)
	}
	if en := document.Lookup(n, "expressions"); !document.IsNull(en) {
		exprs, err := parseExpressions(en)
		if err != nil {
			return m, err
		}
		m.Expressions = exprs
	}
	if on := document.Lookup(n, "outputs"); !document.IsNull(on) {
		outs, err := parseOutputs(on)
		if err != nil {
			return m, err
		}
		m.Outputs = outs
	}
	return m, nil
}
