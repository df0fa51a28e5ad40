package calculator

import (
	"time"

	"github.com/google/uuid"

	"github.com/medcalc/medcalc/internal/platform/expr"
)

// Input types understood by ValidateInputs.
const (
	InputNumber  = "number"
	InputText    = "text"
	InputSelect  = "select"
	InputBoolean = "boolean"
)

// DefaultMode is reported when a calculation is requested without a mode.
const DefaultMode = "default"

// Option is one allowed value of a select input.
type Option struct {
	Value string `json:"value"`
	Label string `json:"label,omitempty"`
}

// InputSpec describes one caller-supplied input.
type InputSpec struct {
	Name    string   `json:"name"`
	Type    string   `json:"type"`
	Label   string   `json:"label,omitempty"`
	Unit    string   `json:"unit,omitempty"`
	Min     *float64 `json:"min,omitempty"`
	Max     *float64 `json:"max,omitempty"`
	Options []Option `json:"options,omitempty"`
}

// OutputSpec describes how a computed value is presented.
type OutputSpec struct {
	Name        string `json:"name"`
	Type        string `json:"type,omitempty"`
	Decimals    *int   `json:"decimals,omitempty"`
	Unit        string `json:"unit,omitempty"`
	Label       string `json:"label,omitempty"`
	Description string `json:"description,omitempty"`
}

// Expression is a named expression string. The compiled program is cached
// at load time; expressions that fail to compile keep the error and report
// it when evaluated.
type Expression struct {
	Name   string `json:"name"`
	Source string `json:"expression"`

	program    *expr.Program
	compileErr error
}

// Compile returns the program cached by the loader, or compiles Source for
// expressions built in code.
func (e *Expression) Compile() (*expr.Program, error) {
	if e.program != nil || e.compileErr != nil {
		return e.program, e.compileErr
	}
	return expr.Compile(e.Source)
}

func (e *Expression) precompile() {
	e.program, e.compileErr = expr.Compile(e.Source)
}

// Mode narrows or extends a schema. A nil slice means the mode does not
// override that part of the schema; an empty non-nil slice overrides it
// with nothing.
type Mode struct {
	Name           string       `json:"name"`
	RequiredInputs []string     `json:"required_inputs,omitempty"`
	Expressions    []Expression `json:"expressions,omitempty"`
	Outputs        []OutputSpec `json:"outputs,omitempty"`
}

// Schema is a declarative calculator definition.
type Schema struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Category    string       `json:"category,omitempty"`
	Inputs      []InputSpec  `json:"inputs"`
	Expressions []Expression `json:"expressions"`
	Outputs     []OutputSpec `json:"outputs"`
	Modes       []Mode       `json:"modes,omitempty"`
}

// Mode returns the named mode, if the schema defines it.
func (s *Schema) Mode(name string) (*Mode, bool) {
	if name == "" {
		return nil, false
	}
	for i := range s.Modes {
		if s.Modes[i].Name == name {
			return &s.Modes[i], true
		}
	}
	return nil, false
}

// ModeNames lists the schema's modes in document order.
func (s *Schema) ModeNames() []string {
	out := make([]string, 0, len(s.Modes))
	for _, m := range s.Modes {
		out = append(out, m.Name)
	}
	return out
}

// Summary is the listing view of a calculator.
type Summary struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Category    string   `json:"category,omitempty"`
	Modes       []string `json:"modes,omitempty"`
}

// FormattedResult is one presented output value.
type FormattedResult struct {
	Value       any     `json:"value"`
	Unit        *string `json:"unit"`
	Label       string  `json:"label"`
	Description *string `json:"description"`
}

// Results maps output names to formatted values.
type Results map[string]FormattedResult

// Calculation is the response of a successful compute.
type Calculation struct {
	Success      bool      `json:"success"`
	Results      Results   `json:"results"`
	CalculatorID string    `json:"calculatorId"`
	Mode         string    `json:"mode"`
	Timestamp    time.Time `json:"timestamp"`
}

// Record is one audit log entry for a compute request.
type Record struct {
	ID           uuid.UUID `json:"id"`
	CalculatorID string    `json:"calculatorId"`
	Mode         string    `json:"mode"`
	Status       string    `json:"status"`
	ErrorKind    string    `json:"errorKind,omitempty"`
	DurationMS   float64   `json:"durationMs"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Record statuses.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)
