package conversion

import (
	"testing"
	"testing/fstest"
)

const testUnitFactors = `{
  "dimensions": {
    "mass":   {"units": {"kg": 1000, "g": 1, "mg": 0.001, "µg": 0.000001}},
    "volume": {"units": {"l": 1, "dl": 0.1, "ml": 0.001}},
    "amount": {"units": {"mol": 1, "mmol": 0.001, "µmol": 0.000001}},
    "weight": {"units": {"kg": 1, "lb": 0.45359237}}
  }
}`

const testUnitSynonyms = `{
  "synonyms": {
    "mcg": "µg",
    "gram": "g",
    "grams": "g",
    "milligram": "mg",
    "liter": "l",
    "deciliter": "dl",
    "phantom": "zz"
  }
}`

const testAnalytes = `{
  "analytes": {
    "glucose": {
      "name": "Glucose",
      "category": "Metabolic",
      "canonical_conversion": {"conventional_unit": "mg/dL", "si_unit": "mmol/L", "factor": 0.0555},
      "reference_ranges": [{"population": "adult fasting", "unit": "mg/dL", "min": 70, "max": 99}]
    },
    "potassium": {
      "name": "Potassium",
      "category": "Electrolyte",
      "meq_conversion": {"valence": 1}
    },
    "calcium": {
      "name": "Calcium",
      "category": "Electrolyte",
      "canonical_conversion": {"conventional_unit": "mg/dL", "si_unit": "mmol/L", "factor": 0.2495},
      "meq_conversion": {"valence": 2}
    },
    "sodium": {
      "name": "Sodium",
      "category": "electrolyte",
      "meq_conversion": {"valence": 1}
    }
  }
}`

const testAnalyteSynonyms = `
synonyms:
  k: potassium
  "k+": potassium
  ca: calcium
  glu: glucose
  blood sugar: glucose
`

func testCatalogFS() fstest.MapFS {
	return fstest.MapFS{
		"units/units.factors.json":        {Data: []byte(testUnitFactors)},
		"units/units.synonyms.json":       {Data: []byte(testUnitSynonyms)},
		"analytes/analytes.catalog.json":  {Data: []byte(testAnalytes)},
		"analytes/analytes.synonyms.yaml": {Data: []byte(testAnalyteSynonyms)},
	}
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	cat, err := LoadCatalog(testCatalogFS())
	if err != nil {
		t.Fatalf("LoadCatalog: %v", err)
	}
	return NewEngine(cat)
}
