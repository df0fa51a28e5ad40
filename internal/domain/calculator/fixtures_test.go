package calculator

import (
	"testing"
	"testing/fstest"

	"github.com/rs/zerolog"
)

const bmiDoc = `{
  "name": "Body Mass Index",
  "description": "Weight relative to height squared",
  "category": "General",
  "inputs": [{"name": "weight", "type": "number", "min": 0}],
  "expressions": {"bmi": "weight / (height*height)"},
  "outputs": [{"name": "bmi", "decimals": 1}]
}`

const qtcDoc = `
name: Corrected QT Interval
description: Heart-rate corrected QT interval
category: Cardiology
inputs:
  - {name: qt, type: number, min: 200, max: 700, unit: ms}
  - {name: heart_rate, type: number, min: 20, max: 300, unit: bpm}
  - name: sex
    type: select
    options:
      - male
      - {value: female, label: Female}
expressions:
  rr: "60 / heart_rate"
  qtc: "qt / sqrt(rr)"
outputs:
  - {name: qtc, decimals: 0, unit: ms, label: QTc}
modes:
  fridericia:
    required_inputs: [qt, heart_rate]
    expressions:
      qtc: "qt / cbrt(60 / heart_rate)"
      prolonged: "qtc > 450"
    outputs:
      - {name: qtc, decimals: 0, unit: ms, label: QTc (Fridericia)}
      - {name: prolonged, type: boolean, description: QTc above 450 ms}
`

const sepsisDoc = `{
  "name": "Shock Check",
  "category": "Critical Care",
  "inputs": [
    {"name": "map", "type": "number"},
    {"name": "on_pressors", "type": "boolean"},
    {"name": "note", "type": "text"}
  ],
  "expressions": {"shock": "on_pressors and map < 65"},
  "outputs": [{"name": "shock", "type": "boolean", "label": "Shock"}]
}`

func mustParse(t *testing.T, id, doc string) *Schema {
	t.Helper()
	s, err := ParseSchema(id, []byte(doc))
	if err != nil {
		t.Fatalf("ParseSchema(%s): %v", id, err)
	}
	return s
}

func testSchemaFS() fstest.MapFS {
	return fstest.MapFS{
		"bmi.json":   {Data: []byte(bmiDoc)},
		"qtc.yaml":   {Data: []byte(qtcDoc)},
		"shock.json": {Data: []byte(sepsisDoc)},
		"README.md":  {Data: []byte("# not a calculator")},
	}
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(testSchemaFS(), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return store
}

func newTestService(t *testing.T) (*Service, AuditRepository) {
	t.Helper()
	audit := NewMemoryAuditRepo(100)
	return NewService(newTestStore(t), NewEngine(Options{}), audit, zerolog.Nop()), audit
}
