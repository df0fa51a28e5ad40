package conversion

import (
	"math"
	"strings"

	"github.com/medcalc/medcalc/internal/platform/apperr"
)

// Engine performs dimensional, analyte and electrolyte conversions over an
// immutable Catalog. It holds no mutable state and is safe for concurrent
// use.
type Engine struct {
	cat *Catalog
}

// NewEngine returns an Engine backed by cat.
func NewEngine(cat *Catalog) *Engine {
	return &Engine{cat: cat}
}

// Catalog returns the tables the engine reads.
func (e *Engine) Catalog() *Catalog { return e.cat }

// NormalizeUnit trims and lowercases raw and substitutes a synonym when one
// is defined. Unknown units are returned folded, not rejected.
func (e *Engine) NormalizeUnit(raw string) (string, error) {
	key := fold(raw)
	if key == "" {
		return "", apperr.New(apperr.InvalidArgument, "Unit must be a non-empty string")
	}
	if canonical, ok := e.cat.unitSynonyms[key]; ok {
		return canonical, nil
	}
	return key, nil
}

// NormalizeAnalyte applies the same algorithm over the analyte synonyms.
func (e *Engine) NormalizeAnalyte(raw string) (string, error) {
	key := fold(raw)
	if key == "" {
		return "", apperr.New(apperr.InvalidArgument, "Analyte must be a non-empty string")
	}
	if canonical, ok := e.cat.analyteSynonyms[key]; ok {
		return canonical, nil
	}
	return key, nil
}

// UnitFactor returns the factor of unit within dimension. A missing
// dimension or unit is reported through ok, never as an error.
func (e *Engine) UnitFactor(unit, dimension string) (factor float64, ok bool) {
	units, ok := e.cat.factors[dimension]
	if !ok {
		return 0, false
	}
	normalized, err := e.NormalizeUnit(unit)
	if err != nil {
		return 0, false
	}
	factor, ok = units[normalized]
	return factor, ok
}

// ConvertValue converts value between two units of one dimension:
// value × from / to. Only linear scales are supported; affine scales such
// as temperature cannot be expressed by a single factor.
func (e *Engine) ConvertValue(value float64, fromUnit, toUnit, dimension string) (float64, error) {
	if err := checkFinite(value); err != nil {
		return 0, err
	}
	if _, err := e.NormalizeUnit(fromUnit); err != nil {
		return 0, err
	}
	if _, err := e.NormalizeUnit(toUnit); err != nil {
		return 0, err
	}
	from, ok := e.UnitFactor(fromUnit, dimension)
	if !ok {
		return 0, apperr.New(apperr.UnknownUnit, "Unknown unit '%s' for dimension '%s'", fromUnit, dimension)
	}
	to, ok := e.UnitFactor(toUnit, dimension)
	if !ok {
		return 0, apperr.New(apperr.UnknownUnit, "Unknown unit '%s' for dimension '%s'", toUnit, dimension)
	}
	return value * (from / to), nil
}

// AnalyteData returns the catalog record for an analyte key or synonym.
func (e *Engine) AnalyteData(analyte string) (*Analyte, bool) {
	key, err := e.NormalizeAnalyte(analyte)
	if err != nil {
		return nil, false
	}
	i, ok := e.cat.analyteIndex[key]
	if !ok {
		return nil, false
	}
	a := e.cat.analytes[i]
	return &a, true
}

func (e *Engine) requireAnalyte(analyte string) (*Analyte, error) {
	if _, err := e.NormalizeAnalyte(analyte); err != nil {
		return nil, err
	}
	a, ok := e.AnalyteData(analyte)
	if !ok {
		return nil, apperr.New(apperr.UnknownAnalyte, "Unknown analyte: %s", analyte)
	}
	return a, nil
}

// ConvertAnalyteValue converts between an analyte's conventional and SI
// units.
func (e *Engine) ConvertAnalyteValue(value float64, analyte string, direction Direction) (AnalyteResult, error) {
	if err := checkFinite(value); err != nil {
		return AnalyteResult{}, err
	}
	a, err := e.requireAnalyte(analyte)
	if err != nil {
		return AnalyteResult{}, err
	}
	cc := a.CanonicalConversion
	if cc == nil {
		return AnalyteResult{}, apperr.New(apperr.NoConversionData, "No conversion data available for analyte: %s", analyte)
	}

	switch direction {
	case ConventionalToSI:
		return AnalyteResult{Value: value * cc.Factor, FromUnit: cc.ConventionalUnit, ToUnit: cc.SIUnit, Analyte: a.Name}, nil
	case SIToConventional:
		return AnalyteResult{Value: value / cc.Factor, FromUnit: cc.SIUnit, ToUnit: cc.ConventionalUnit, Analyte: a.Name}, nil
	}
	return AnalyteResult{}, apperr.New(apperr.InvalidArgument, `Direction must be "conventional_to_si" or "si_to_conventional"`)
}

// ConvertElectrolyte converts between mEq/L and mmol/L using the analyte's
// valence.
func (e *Engine) ConvertElectrolyte(value float64, analyte string, direction Direction) (AnalyteResult, error) {
	if err := checkFinite(value); err != nil {
		return AnalyteResult{}, err
	}
	a, err := e.requireAnalyte(analyte)
	if err != nil {
		return AnalyteResult{}, err
	}
	mc := a.MeqConversion
	if mc == nil {
		return AnalyteResult{}, apperr.New(apperr.NoConversionData, "No mEq conversion data available for analyte: %s", analyte)
	}
	valence := mc.Valence

	switch direction {
	case MeqToMmol:
		return AnalyteResult{Value: value / valence, FromUnit: UnitMeqPerL, ToUnit: UnitMmolPerL, Analyte: a.Name, Valence: &valence}, nil
	case MmolToMeq:
		return AnalyteResult{Value: value * valence, FromUnit: UnitMmolPerL, ToUnit: UnitMeqPerL, Analyte: a.Name, Valence: &valence}, nil
	}
	return AnalyteResult{}, apperr.New(apperr.InvalidArgument, `Direction must be "meq_to_mmol" or "mmol_to_meq"`)
}

// ValidateConversion reports whether both units belong to the same
// dimension. Dimensions are scanned in catalog order and the first one
// containing a unit is the one recorded for it.
func (e *Engine) ValidateConversion(fromUnit, toUnit string) (Validation, error) {
	from, err := e.NormalizeUnit(fromUnit)
	if err != nil {
		return Validation{}, err
	}
	to, err := e.NormalizeUnit(toUnit)
	if err != nil {
		return Validation{}, err
	}

	v := Validation{NormalizedFromUnit: from, NormalizedToUnit: to}
	for i := range e.cat.dimensions {
		name := e.cat.dimensions[i].Name
		units := e.cat.factors[name]
		if _, ok := units[from]; ok && v.FromDimension == nil {
			v.FromDimension = &name
		}
		if _, ok := units[to]; ok && v.ToDimension == nil {
			v.ToDimension = &name
		}
	}
	v.IsValid = v.FromDimension != nil && v.ToDimension != nil && *v.FromDimension == *v.ToDimension
	return v, nil
}

// Dimensions lists dimension names in catalog order.
func (e *Engine) Dimensions() []string {
	out := make([]string, len(e.cat.dimensions))
	for i, d := range e.cat.dimensions {
		out[i] = d.Name
	}
	return out
}

// UnitsForDimension lists canonical unit names of a dimension in catalog
// order. An unknown dimension yields an empty list.
func (e *Engine) UnitsForDimension(dimension string) []string {
	out := []string{}
	for _, d := range e.cat.dimensions {
		if d.Name != dimension {
			continue
		}
		for _, u := range d.Units {
			out = append(out, u.Name)
		}
	}
	return out
}

// AnalyteFilter narrows Analytes. Zero values match everything.
type AnalyteFilter struct {
	Category      string
	HasConversion *bool
}

// Analytes lists analyte summaries in catalog order.
func (e *Engine) Analytes(f AnalyteFilter) []AnalyteSummary {
	out := []AnalyteSummary{}
	for _, a := range e.cat.analytes {
		s := AnalyteSummary{
			ID:               a.Key,
			Name:             a.Name,
			Category:         a.Category,
			HasConversion:    a.CanonicalConversion != nil,
			HasMeqConversion: a.MeqConversion != nil,
		}
		if f.Category != "" && !strings.EqualFold(s.Category, f.Category) {
			continue
		}
		if f.HasConversion != nil && s.HasConversion != *f.HasConversion {
			continue
		}
		out = append(out, s)
	}
	return out
}

// ParseDirection accepts snake_case and camelCase spellings.
func ParseDirection(s string) (Direction, error) {
	switch strings.TrimSpace(s) {
	case "conventional_to_si", "conventionalToSi", "conventionalToSI":
		return ConventionalToSI, nil
	case "si_to_conventional", "siToConventional", "SIToConventional":
		return SIToConventional, nil
	case "meq_to_mmol", "meqToMmol":
		return MeqToMmol, nil
	case "mmol_to_meq", "mmolToMeq":
		return MmolToMeq, nil
	}
	return "", apperr.New(apperr.InvalidArgument, "unknown direction %q", s)
}

func checkFinite(v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return apperr.New(apperr.InvalidArgument, "Value must be a valid number")
	}
	return nil
}
