package conversion

import (
	"fmt"
	"strings"

	"github.com/medcalc/medcalc/internal/platform/apperr"
)

// Kind returns the conversion strategy Convert will use. An unrecognised
// ConversionType counts as unset. An unset type is taken from Direction when
// one is given, and is auto-detection otherwise.
func (r ConvertRequest) Kind() ConversionType {
	switch r.ConversionType {
	case TypeDimensional, TypeAnalyte, TypeElectrolyte:
		return r.ConversionType
	}
	if strings.TrimSpace(r.Direction) == "" {
		return TypeAuto
	}
	if d, err := ParseDirection(r.Direction); err == nil && (d == MeqToMmol || d == MmolToMeq) {
		return TypeElectrolyte
	}
	return TypeAnalyte
}

// Convert runs the conversion selected by req.Kind(). Auto-detection
// validates the unit pair and converts within its shared dimension. Analyte
// and electrolyte conversions with an explicit Direction do not need units.
func (e *Engine) Convert(req ConvertRequest) (ConvertResult, error) {
	if req.Value == nil {
		return ConvertResult{}, apperr.New(apperr.InvalidArgument, "Value must be a valid number")
	}
	value := *req.Value
	if err := checkFinite(value); err != nil {
		return ConvertResult{}, err
	}
	kind := req.Kind()
	explicit := strings.TrimSpace(req.Direction) != "" && (kind == TypeAnalyte || kind == TypeElectrolyte)
	if !explicit && (strings.TrimSpace(req.FromUnit) == "" || strings.TrimSpace(req.ToUnit) == "") {
		return ConvertResult{}, apperr.New(apperr.InvalidArgument, "Both fromUnit and toUnit are required")
	}

	switch kind {
	case TypeDimensional:
		if req.Dimension == "" {
			return ConvertResult{}, apperr.New(apperr.InvalidArgument, "Dimension is required for dimensional conversions")
		}
		return e.convertDimensional(value, req.FromUnit, req.ToUnit, req.Dimension)
	case TypeAnalyte:
		return e.convertAnalyte(value, req)
	case TypeElectrolyte:
		return e.convertElectrolyte(value, req)
	}

	v, err := e.ValidateConversion(req.FromUnit, req.ToUnit)
	if err != nil {
		return ConvertResult{}, err
	}
	if !v.IsValid {
		return ConvertResult{}, &apperr.Error{
			Kind:    apperr.InvalidArgument,
			Message: "Cannot convert between incompatible units",
			Details: describeValidation(v),
		}
	}
	return e.convertDimensional(value, req.FromUnit, req.ToUnit, *v.FromDimension)
}

func (e *Engine) convertDimensional(value float64, fromUnit, toUnit, dimension string) (ConvertResult, error) {
	out, err := e.ConvertValue(value, fromUnit, toUnit, dimension)
	if err != nil {
		return ConvertResult{}, err
	}
	from, _ := e.NormalizeUnit(fromUnit)
	to, _ := e.NormalizeUnit(toUnit)
	return ConvertResult{
		Value:          out,
		FromUnit:       from,
		ToUnit:         to,
		Dimension:      dimension,
		ConversionType: TypeDimensional,
	}, nil
}

// convertAnalyte uses req.Direction when set and otherwise infers the
// direction from the unit pair.
func (e *Engine) convertAnalyte(value float64, req ConvertRequest) (ConvertResult, error) {
	if req.Analyte == "" {
		return ConvertResult{}, apperr.New(apperr.InvalidArgument, "Analyte is required for analyte conversions")
	}

	var dir Direction
	if strings.TrimSpace(req.Direction) != "" {
		d, err := ParseDirection(req.Direction)
		if err != nil {
			return ConvertResult{}, err
		}
		dir = d
	} else {
		a, err := e.requireAnalyte(req.Analyte)
		if err != nil {
			return ConvertResult{}, err
		}
		cc := a.CanonicalConversion
		if cc == nil {
			return ConvertResult{}, apperr.New(apperr.NoConversionData, "No conversion data available for analyte: %s", req.Analyte)
		}

		from, _ := e.NormalizeUnit(req.FromUnit)
		to, _ := e.NormalizeUnit(req.ToUnit)
		conventional, _ := e.NormalizeUnit(cc.ConventionalUnit)
		si, _ := e.NormalizeUnit(cc.SIUnit)

		switch {
		case fold(from) == fold(conventional) && fold(to) == fold(si):
			dir = ConventionalToSI
		case fold(from) == fold(si) && fold(to) == fold(conventional):
			dir = SIToConventional
		default:
			return ConvertResult{}, apperr.New(apperr.InvalidArgument, "Invalid unit combination for analyte %s", req.Analyte)
		}
	}

	r, err := e.ConvertAnalyteValue(value, req.Analyte, dir)
	if err != nil {
		return ConvertResult{}, err
	}
	return ConvertResult{
		Value:          r.Value,
		FromUnit:       r.FromUnit,
		ToUnit:         r.ToUnit,
		Analyte:        r.Analyte,
		ConversionType: TypeAnalyte,
	}, nil
}

// convertElectrolyte uses req.Direction when set and otherwise infers the
// direction from "meq" and "mol" in the unit names.
func (e *Engine) convertElectrolyte(value float64, req ConvertRequest) (ConvertResult, error) {
	if req.Analyte == "" {
		return ConvertResult{}, apperr.New(apperr.InvalidArgument, "Analyte is required for electrolyte conversions")
	}

	var dir Direction
	if strings.TrimSpace(req.Direction) != "" {
		d, err := ParseDirection(req.Direction)
		if err != nil {
			return ConvertResult{}, err
		}
		dir = d
	} else {
		from := fold(req.FromUnit)
		to := fold(req.ToUnit)
		switch {
		case strings.Contains(from, "meq") && strings.Contains(to, "mol"):
			dir = MeqToMmol
		case strings.Contains(from, "mol") && strings.Contains(to, "meq"):
			dir = MmolToMeq
		default:
			return ConvertResult{}, apperr.New(apperr.InvalidArgument, "Invalid units for electrolyte conversion")
		}
	}

	r, err := e.ConvertElectrolyte(value, req.Analyte, dir)
	if err != nil {
		return ConvertResult{}, err
	}
	return ConvertResult{
		Value:          r.Value,
		FromUnit:       r.FromUnit,
		ToUnit:         r.ToUnit,
		Analyte:        r.Analyte,
		Valence:        r.Valence,
		ConversionType: TypeElectrolyte,
	}, nil
}

func describeValidation(v Validation) []string {
	dim := func(d *string) string {
		if d == nil {
			return "unknown"
		}
		return *d
	}
	return []string{
		fmt.Sprintf("fromUnit %s: dimension %s", v.NormalizedFromUnit, dim(v.FromDimension)),
		fmt.Sprintf("toUnit %s: dimension %s", v.NormalizedToUnit, dim(v.ToDimension)),
	}
}
