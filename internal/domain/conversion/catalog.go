package conversion

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"

	"github.com/medcalc/medcalc/internal/platform/apperr"
	"github.com/medcalc/medcalc/internal/platform/document"
)

// Catalog file locations inside a catalog directory. Each may be JSON or
// YAML; the first existing extension wins.
const (
	UnitFactorsFile     = "units/units.factors"
	UnitSynonymsFile    = "units/units.synonyms"
	AnalyteCatalogFile  = "analytes/analytes.catalog"
	AnalyteSynonymsFile = "analytes/analytes.synonyms"
)

var documentExts = []string{".json", ".yaml", ".yml"}

// Catalog is the immutable set of unit and analyte lookup tables.
type Catalog struct {
	dimensions      []Dimension
	factors         map[string]map[string]float64
	unitSynonyms    map[string]string
	analytes        []Analyte
	analyteIndex    map[string]int
	analyteSynonyms map[string]string
	warnings        []string
}

// fold is the lookup key for user supplied unit and analyte strings.
// NFKC maps the micro sign onto Greek mu so both spellings agree.
func fold(s string) string {
	return strings.ToLower(norm.NFKC.String(strings.TrimSpace(s)))
}

// NewCatalog validates the tables and builds a Catalog. Unit factors,
// analyte factors and valences must be strictly positive. Synonyms whose
// targets do not exist are kept but reported by Warnings.
func NewCatalog(dimensions []Dimension, unitSynonyms map[string]string, analytes []Analyte, analyteSynonyms map[string]string) (*Catalog, error) {
	c := &Catalog{
		factors:         make(map[string]map[string]float64, len(dimensions)),
		unitSynonyms:    make(map[string]string),
		analyteIndex:    make(map[string]int, len(analytes)),
		analyteSynonyms: make(map[string]string, len(analyteSynonyms)),
	}

	unitHome := make(map[string]string)
	for _, d := range dimensions {
		if d.Name == "" {
			return nil, errors.New("dimension name is empty")
		}
		if _, dup := c.factors[d.Name]; dup {
			return nil, fmt.Errorf("duplicate dimension %q", d.Name)
		}
		units := make(map[string]float64, len(d.Units))
		for _, u := range d.Units {
			if strings.TrimSpace(u.Name) == "" {
				return nil, fmt.Errorf("dimension %s: empty unit name", d.Name)
			}
			if !(u.Factor > 0) {
				return nil, fmt.Errorf("dimension %s: unit %s: factor must be positive", d.Name, u.Name)
			}
			if _, dup := units[u.Name]; dup {
				return nil, fmt.Errorf("dimension %s: duplicate unit %s", d.Name, u.Name)
			}
			units[u.Name] = u.Factor
			if first, ok := unitHome[u.Name]; ok {
				c.warnf("unit %s appears in dimensions %s and %s; validation uses %s", u.Name, first, d.Name, first)
			} else {
				unitHome[u.Name] = d.Name
			}
		}
		c.factors[d.Name] = units
		c.dimensions = append(c.dimensions, Dimension{Name: d.Name, Units: append([]Unit(nil), d.Units...)})
	}

	for alias, target := range unitSynonyms {
		key := fold(alias)
		if key == "" {
			return nil, errors.New("unit synonym with empty alias")
		}
		target = strings.TrimSpace(target)
		c.unitSynonyms[key] = target
		if _, ok := unitHome[target]; !ok {
			c.warnf("unit synonym %q points at unknown unit %q", alias, target)
		}
	}
	// Canonical units are reachable under their own folded spelling unless a
	// synonym already claims it.
	for _, d := range c.dimensions {
		for _, u := range d.Units {
			if _, ok := c.unitSynonyms[fold(u.Name)]; !ok {
				c.unitSynonyms[fold(u.Name)] = u.Name
			}
		}
	}

	for _, a := range analytes {
		a.Key = fold(a.Key)
		if a.Key == "" {
			return nil, errors.New("analyte with empty key")
		}
		if _, dup := c.analyteIndex[a.Key]; dup {
			return nil, fmt.Errorf("duplicate analyte %q", a.Key)
		}
		if a.Name == "" {
			a.Name = a.Key
		}
		if cc := a.CanonicalConversion; cc != nil {
			if !(cc.Factor > 0) {
				return nil, fmt.Errorf("analyte %s: conversion factor must be positive", a.Key)
			}
			if cc.ConventionalUnit == "" || cc.SIUnit == "" {
				return nil, fmt.Errorf("analyte %s: conventional and SI units are required", a.Key)
			}
		}
		if mc := a.MeqConversion; mc != nil && !(mc.Valence > 0) {
			return nil, fmt.Errorf("analyte %s: valence must be positive", a.Key)
		}
		c.analyteIndex[a.Key] = len(c.analytes)
		c.analytes = append(c.analytes, a)
	}

	for alias, target := range analyteSynonyms {
		key := fold(alias)
		if key == "" {
			return nil, errors.New("analyte synonym with empty alias")
		}
		target = strings.TrimSpace(target)
		c.analyteSynonyms[key] = target
		if _, ok := c.analyteIndex[target]; !ok {
			c.warnf("analyte synonym %q points at unknown analyte %q", alias, target)
		}
	}

	return c, nil
}

func (c *Catalog) warnf(format string, args ...any) {
	c.warnings = append(c.warnings, fmt.Sprintf(format, args...))
}

// Warnings lists non-fatal problems found while building the catalog.
func (c *Catalog) Warnings() []string {
	return append([]string(nil), c.warnings...)
}

// ============================================================================
// Loading
// ============================================================================

// LoadCatalog reads the four catalog documents from fsys.
func LoadCatalog(fsys fs.FS) (*Catalog, error) {
	root, name, err := readDocument(fsys, UnitFactorsFile)
	if err != nil {
		return nil, err
	}
	dims, err := parseDimensions(root)
	if err != nil {
		return nil, apperr.Wrap(apperr.SchemaLoadError, err, "catalog %s", name)
	}

	root, name, err = readDocument(fsys, UnitSynonymsFile)
	if err != nil {
		return nil, err
	}
	unitSyn, err := parseSynonyms(root)
	if err != nil {
		return nil, apperr.Wrap(apperr.SchemaLoadError, err, "catalog %s", name)
	}

	root, name, err = readDocument(fsys, AnalyteCatalogFile)
	if err != nil {
		return nil, err
	}
	analytes, err := parseAnalytes(root)
	if err != nil {
		return nil, apperr.Wrap(apperr.SchemaLoadError, err, "catalog %s", name)
	}

	root, name, err = readDocument(fsys, AnalyteSynonymsFile)
	if err != nil {
		return nil, err
	}
	analyteSyn, err := parseSynonyms(root)
	if err != nil {
		return nil, apperr.Wrap(apperr.SchemaLoadError, err, "catalog %s", name)
	}

	cat, err := NewCatalog(dims, unitSyn, analytes, analyteSyn)
	if err != nil {
		return nil, apperr.Wrap(apperr.SchemaLoadError, err, "catalog")
	}
	return cat, nil
}

func readDocument(fsys fs.FS, stem string) (*yaml.Node, string, error) {
	for _, ext := range documentExts {
		name := stem + ext
		data, err := fs.ReadFile(fsys, name)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, name, apperr.Wrap(apperr.SchemaLoadError, err, "read %s", name)
		}
		root, err := document.Parse(data)
		if err != nil {
			return nil, name, apperr.Wrap(apperr.SchemaLoadError, err, "parse %s", name)
		}
		return root, name, nil
	}
	return nil, stem, apperr.New(apperr.SchemaLoadError, "catalog document %s not found", stem)
}

func parseDimensions(root *yaml.Node) ([]Dimension, error) {
	entries, err := document.Entries(document.Lookup(root, "dimensions"))
	if err != nil {
		return nil, fmt.Errorf("dimensions: %w", err)
	}
	dims := make([]Dimension, 0, len(entries))
	for _, e := range entries {
		units, err := document.Entries(document.Lookup(e.Value, "units"))
		if err != nil {
			return nil, fmt.Errorf("dimension %s: units: %w", e.Key, err)
		}
		d := Dimension{Name: e.Key, Units: make([]Unit, 0, len(units))}
		for _, u := range units {
			f, err := document.Float(u.Value)
			if err != nil {
				return nil, fmt.Errorf("dimension %s: unit %s: %w", e.Key, u.Key, err)
			}
			d.Units = append(d.Units, Unit{Name: u.Key, Factor: f})
		}
		dims = append(dims, d)
	}
	return dims, nil
}

func parseSynonyms(root *yaml.Node) (map[string]string, error) {
	entries, err := document.Entries(document.Lookup(root, "synonyms"))
	if err != nil {
		return nil, fmt.Errorf("synonyms: %w", err)
	}
	out := make(map[string]string, len(entries))
	for _, e := range entries {
		target, err := document.String(e.Value)
		if err != nil {
			return nil, fmt.Errorf("synonym %s: %w", e.Key, err)
		}
		if _, dup := out[fold(e.Key)]; dup {
			return nil, fmt.Errorf("synonym %s defined twice", e.Key)
		}
		out[fold(e.Key)] = target
	}
	return out, nil
}

func parseAnalytes(root *yaml.Node) ([]Analyte, error) {
	entries, err := document.Entries(document.Lookup(root, "analytes"))
	if err != nil {
		return nil, fmt.Errorf("analytes: %w", err)
	}
	out := make([]Analyte, 0, len(entries))
	for _, e := range entries {
		a, err := parseAnalyte(e.Key, e.Value)
		if err != nil {
			return nil, fmt.Errorf("analyte %s: %w", e.Key, err)
		}
		out = append(out, a)
	}
	return out, nil
}

func parseAnalyte(key string, n *yaml.Node) (Analyte, error) {
	a := Analyte{Key: key}
	var err error
	if a.Name, err = document.OptionalString(document.Lookup(n, "name")); err != nil {
		return a, fmt.Errorf("name: %w", err)
	}
	if a.Category, err = document.OptionalString(document.Lookup(n, "category")); err != nil {
		return a, fmt.Errorf("category: %w", err)
	}

	if cn := document.Lookup(n, "canonical_conversion"); !document.IsNull(cn) {
		cc := &CanonicalConversion{}
		if cc.ConventionalUnit, err = document.String(document.Lookup(cn, "conventional_unit")); err != nil {
			return a, fmt.Errorf("conventional_unit: %w", err)
		}
		if cc.SIUnit, err = document.String(document.Lookup(cn, "si_unit")); err != nil {
			return a, fmt.Errorf("si_unit: %w", err)
		}
		if cc.Factor, err = document.Float(document.Lookup(cn, "factor")); err != nil {
			return a, fmt.Errorf("factor: %w", err)
		}
		a.CanonicalConversion = cc
	}

	if mn := document.Lookup(n, "meq_conversion"); !document.IsNull(mn) {
		v, err := document.Float(document.Lookup(mn, "valence"))
		if err != nil {
			return a, fmt.Errorf("valence: %w", err)
		}
		a.MeqConversion = &MeqConversion{Valence: v}
	}

	if rn := document.Lookup(n, "reference_ranges"); !document.IsNull(rn) {
		items, err := document.Items(rn)
		if err != nil {
			return a, fmt.Errorf("reference_ranges: %w", err)
		}
		for i, it := range items {
			var r ReferenceRange
			if r.Population, err = document.OptionalString(document.Lookup(it, "population")); err != nil {
				return a, fmt.Errorf("reference_ranges[%d]: %w", i, err)
			}
			if r.Unit, err = document.OptionalString(document.Lookup(it, "unit")); err != nil {
				return a, fmt.Errorf("reference_ranges[%d]: %w", i, err)
			}
			if r.Min, err = document.OptionalFloat(document.Lookup(it, "min")); err != nil {
				return a, fmt.Errorf("reference_ranges[%d].min: %w", i, err)
			}
			if r.Max, err = document.OptionalFloat(document.Lookup(it, "max")); err != nil {
				return a, fmt.Errorf("reference_ranges[%d].max: %w", i, err)
			}
			a.ReferenceRanges = append(a.ReferenceRanges, r)
		}
	}
	return a, nil
}
