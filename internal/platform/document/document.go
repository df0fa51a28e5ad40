// Package document reads JSON or YAML documents into yaml.v3 node trees so
// that mapping key order survives parsing.
package document

import (
	"errors"
	"fmt"
	"math"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Entry is one key/value pair of a mapping node, in document order.
type Entry struct {
	Key   string
	Value *yaml.Node
}

// Parse decodes data and returns the root node of the first document.
func Parse(data []byte) (*yaml.Node, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, errors.New("empty document")
	}
	return resolve(doc.Content[0]), nil
}

func resolve(n *yaml.Node) *yaml.Node {
	for n != nil && n.Kind == yaml.AliasNode {
		n = n.Alias
	}
	return n
}

// IsNull reports whether n is absent or an explicit null.
func IsNull(n *yaml.Node) bool {
	n = resolve(n)
	return n == nil || (n.Kind == yaml.ScalarNode && n.ShortTag() == "!!null")
}

// Entries returns the pairs of a mapping node in order. Duplicate keys are
// rejected.
func Entries(n *yaml.Node) ([]Entry, error) {
	n = resolve(n)
	if n == nil || n.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("expected a mapping, got %s", describe(n))
	}
	out := make([]Entry, 0, len(n.Content)/2)
	seen := make(map[string]struct{}, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		k := resolve(n.Content[i])
		if k.Kind != yaml.ScalarNode {
			return nil, fmt.Errorf("line %d: mapping key must be a scalar", k.Line)
		}
		if _, dup := seen[k.Value]; dup {
			return nil, fmt.Errorf("line %d: duplicate key %q", k.Line, k.Value)
		}
		seen[k.Value] = struct{}{}
		out = append(out, Entry{Key: k.Value, Value: resolve(n.Content[i+1])})
	}
	return out, nil
}

// Lookup returns the value stored under key in a mapping node, or nil.
func Lookup(n *yaml.Node, key string) *yaml.Node {
	n = resolve(n)
	if n == nil || n.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == key {
			return resolve(n.Content[i+1])
		}
	}
	return nil
}

// Items returns the elements of a sequence node.
func Items(n *yaml.Node) ([]*yaml.Node, error) {
	n = resolve(n)
	if n == nil || n.Kind != yaml.SequenceNode {
		return nil, fmt.Errorf("expected a sequence, got %s", describe(n))
	}
	out := make([]*yaml.Node, len(n.Content))
	for i, c := range n.Content {
		out[i] = resolve(c)
	}
	return out, nil
}

// String returns the value of a scalar node. Numbers and booleans are
// returned in their source spelling.
func String(n *yaml.Node) (string, error) {
	n = resolve(n)
	if n == nil || n.Kind != yaml.ScalarNode || n.ShortTag() == "!!null" {
		return "", fmt.Errorf("expected a scalar, got %s", describe(n))
	}
	return n.Value, nil
}

// OptionalString returns "" for absent or null nodes.
func OptionalString(n *yaml.Node) (string, error) {
	if IsNull(n) {
		return "", nil
	}
	return String(n)
}

// Float returns the finite number held by a scalar node.
func Float(n *yaml.Node) (float64, error) {
	n = resolve(n)
	if n == nil || n.Kind != yaml.ScalarNode || (n.ShortTag() != "!!int" && n.ShortTag() != "!!float") {
		return 0, fmt.Errorf("expected a number, got %s", describe(n))
	}
	f, err := strconv.ParseFloat(n.Value, 64)
	if err != nil {
		var v float64
		if derr := n.Decode(&v); derr != nil {
			return 0, fmt.Errorf("line %d: invalid number %q", n.Line, n.Value)
		}
		f = v
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("line %d: number must be finite", n.Line)
	}
	return f, nil
}

// OptionalFloat returns nil for absent or null nodes.
func OptionalFloat(n *yaml.Node) (*float64, error) {
	if IsNull(n) {
		return nil, nil
	}
	f, err := Float(n)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// StringList decodes a sequence of scalars.
func StringList(n *yaml.Node) ([]string, error) {
	items, err := Items(n)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		s, err := String(it)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func describe(n *yaml.Node) string {
	if n == nil {
		return "nothing"
	}
	switch n.Kind {
	case yaml.MappingNode:
		return fmt.Sprintf("a mapping at line %d", n.Line)
	case yaml.SequenceNode:
		return fmt.Sprintf("a sequence at line %d", n.Line)
	case yaml.ScalarNode:
		if n.ShortTag() == "!!null" {
			return fmt.Sprintf("null at line %d", n.Line)
		}
		return fmt.Sprintf("%q at line %d", n.Value, n.Line)
	default:
		return fmt.Sprintf("node kind %d at line %d", n.Kind, n.Line)
	}
}
