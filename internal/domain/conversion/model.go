package conversion

// Unit is a canonical unit and its factor relative to the implicit base unit
// of its dimension.
type Unit struct {
	Name   string  `json:"name"`
	Factor float64 `json:"factor"`
}

// Dimension groups units that can be converted into one another.
type Dimension struct {
	Name  string `json:"name"`
	Units []Unit `json:"units"`
}

// CanonicalConversion relates conventional and SI units of an analyte:
// SI = conventional × Factor.
type CanonicalConversion struct {
	ConventionalUnit string  `json:"conventional_unit"`
	SIUnit           string  `json:"si_unit"`
	Factor           float64 `json:"factor"`
}

// MeqConversion holds the ionic valence used for mEq/L = mmol/L × valence.
type MeqConversion struct {
	Valence float64 `json:"valence"`
}

// ReferenceRange is an informational normal range for a population.
type ReferenceRange struct {
	Population string   `json:"population"`
	Unit       string   `json:"unit"`
	Min        *float64 `json:"min,omitempty"`
	Max        *float64 `json:"max,omitempty"`
}

// Analyte is a laboratory measurand in the catalog.
type Analyte struct {
	Key                 string               `json:"key"`
	Name                string               `json:"name"`
	Category            string               `json:"category"`
	CanonicalConversion *CanonicalConversion `json:"canonical_conversion,omitempty"`
	MeqConversion       *MeqConversion       `json:"meq_conversion,omitempty"`
	ReferenceRanges     []ReferenceRange     `json:"reference_ranges,omitempty"`
}

// AnalyteSummary is the listing view of an analyte.
type AnalyteSummary struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	Category         string `json:"category"`
	HasConversion    bool   `json:"hasConversion"`
	HasMeqConversion bool   `json:"hasMeqConversion"`
}

// Direction selects the way an analyte or electrolyte conversion goes.
type Direction string

const (
	ConventionalToSI Direction = "conventional_to_si"
	SIToConventional Direction = "si_to_conventional"
	MeqToMmol        Direction = "meq_to_mmol"
	MmolToMeq        Direction = "mmol_to_meq"
)

const (
	UnitMeqPerL  = "mEq/L"
	UnitMmolPerL = "mmol/L"
)

// AnalyteResult is returned by analyte and electrolyte conversions. Analyte
// carries the display name.
type AnalyteResult struct {
	Value    float64  `json:"value"`
	FromUnit string   `json:"fromUnit"`
	ToUnit   string   `json:"toUnit"`
	Analyte  string   `json:"analyte"`
	Valence  *float64 `json:"valence,omitempty"`
}

// Validation reports whether two units share a dimension.
type Validation struct {
	IsValid            bool    `json:"isValid"`
	FromDimension      *string `json:"fromDimension"`
	ToDimension        *string `json:"toDimension"`
	NormalizedFromUnit string  `json:"normalizedFromUnit"`
	NormalizedToUnit   string  `json:"normalizedToUnit"`
}

// ConversionType selects the composite conversion strategy.
type ConversionType string

const (
	TypeAuto        ConversionType = ""
	TypeDimensional ConversionType = "dimensional"
	TypeAnalyte     ConversionType = "analyte"
	TypeElectrolyte ConversionType = "electrolyte"
)

// ConvertRequest is the input of the composite Convert operation.
type ConvertRequest struct {
	Value          *float64       `json:"value"`
	FromUnit       string         `json:"fromUnit"`
	ToUnit         string         `json:"toUnit"`
	Dimension      string         `json:"dimension,omitempty"`
	Analyte        string         `json:"analyte,omitempty"`
	ConversionType ConversionType `json:"conversionType,omitempty"`
	Direction      string         `json:"direction,omitempty"`
}

// ConvertResult is the output of the composite Convert operation.
type ConvertResult struct {
	Value          float64        `json:"value"`
	FromUnit       string         `json:"fromUnit"`
	ToUnit         string         `json:"toUnit"`
	Dimension      string         `json:"dimension,omitempty"`
	Analyte        string         `json:"analyte,omitempty"`
	Valence        *float64       `json:"valence,omitempty"`
	ConversionType ConversionType `json:"conversionType"`
}
