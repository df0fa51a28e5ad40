package calculator

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/medcalc/medcalc/internal/platform/apperr"
)

// =========== Compute ===========

func TestCompute_BMI(t *testing.T) {
	s := mustParse(t, "bmi", bmiDoc)
	res, err := NewEngine(Options{}).Compute(context.Background(), s, map[string]any{"weight": 70.0, "height": 1.75}, "")
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	got, ok := res["bmi"]
	if !ok {
		t.Fatalf("missing bmi in %v", res)
	}
	if got.Value != 22.9 {
		t.Errorf("expected 22.9, got %v", got.Value)
	}
	if got.Unit != nil || got.Description != nil || got.Label != "bmi" {
		t.Errorf("unexpected presentation %+v", got)
	}
}

func TestCompute_NumericStrings(t *testing.T) {
	s := mustParse(t, "bmi", bmiDoc)
	res, err := NewEngine(Options{}).Compute(context.Background(), s, map[string]any{"weight": "70", "height": "1.75"}, "")
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if res["bmi"].Value != 22.9 {
		t.Errorf("expected 22.9, got %v", res["bmi"].Value)
	}
}

func TestCompute_MissingInput(t *testing.T) {
	s := mustParse(t, "bmi", bmiDoc)
	_, err := NewEngine(Options{}).Compute(context.Background(), s, map[string]any{"height": 1.75}, "")
	if !apperr.Is(err, apperr.ValidationFailed) {
		t.Fatalf("expected ValidationFailed, got %v", err)
	}
	details := apperr.DetailsOf(err)
	if len(details) != 1 || details[0] != "Missing required input: weight" {
		t.Errorf("unexpected details %v", details)
	}
}

func TestCompute_UnsafeExpression(t *testing.T) {
	s := mustParse(t, "bad", `{
	  "name": "Bad",
	  "inputs": [],
	  "expressions": {"x": "1 + 1", "y": "Function('return 1')()"},
	  "outputs": [{"name": "x"}, {"name": "y"}]
	}`)
	_, err := NewEngine(Options{}).Compute(context.Background(), s, map[string]any{}, "")
	if !apperr.Is(err, apperr.UnsafeExpression) {
		t.Fatalf("expected UnsafeExpression, got %v", err)
	}
	if !strings.Contains(err.Error(), "y") {
		t.Errorf("error should name the expression: %v", err)
	}
}

func TestCompute_IntermediateNotEvaluated(t *testing.T) {
	s := mustParse(t, "qtc", qtcDoc)
	inputs := map[string]any{"qt": 400.0, "heart_rate": 60.0, "sex": "male"}

	_, err := NewEngine(Options{}).Compute(context.Background(), s, inputs, "")
	if !apperr.Is(err, apperr.ExpressionError) {
		t.Fatalf("expected ExpressionError, got %v", err)
	}
	if !strings.Contains(err.Error(), "Error evaluating expression 'qtc'") {
		t.Errorf("unexpected message %q", err.Error())
	}

	res, err := NewEngine(Options{ResolveDependencies: true}).Compute(context.Background(), s, inputs, "")
	if err != nil {
		t.Fatalf("Compute with dependencies: %v", err)
	}
	if res["qtc"].Value != 400.0 {
		t.Errorf("expected 400, got %v", res["qtc"].Value)
	}
	if _, leaked := res["rr"]; leaked {
		t.Error("intermediate rr should not be formatted")
	}
}

func TestCompute_Mode(t *testing.T) {
	s := mustParse(t, "qtc", qtcDoc)
	res, err := NewEngine(Options{}).Compute(context.Background(), s, map[string]any{"qt": 400.0, "heart_rate": 75.0}, "fridericia")
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if res["qtc"].Value != 431.0 {
		t.Errorf("expected 431, got %v", res["qtc"].Value)
	}
	if res["qtc"].Label != "QTc (Fridericia)" || res["qtc"].Unit == nil || *res["qtc"].Unit != "ms" {
		t.Errorf("unexpected presentation %+v", res["qtc"])
	}
	if res["prolonged"].Value != false {
		t.Errorf("expected prolonged=false, got %v", res["prolonged"].Value)
	}
	if res["prolonged"].Description == nil {
		t.Error("expected description to be set")
	}
}

func TestCompute_UnknownModeUsesDefaults(t *testing.T) {
	s := mustParse(t, "qtc", qtcDoc)
	_, err := NewEngine(Options{}).Compute(context.Background(), s, map[string]any{"qt": 400.0, "heart_rate": 75.0}, "bazett")
	if !apperr.Is(err, apperr.ValidationFailed) {
		t.Fatalf("expected full input list to apply, got %v", err)
	}
}

func TestCompute_BooleanInputs(t *testing.T) {
	s := mustParse(t, "shock", sepsisDoc)
	res, err := NewEngine(Options{}).Compute(context.Background(), s, map[string]any{"map": 58.0, "on_pressors": "true", "note": "post-op"}, "")
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if res["shock"].Value != true || res["shock"].Label != "Shock" {
		t.Errorf("unexpected result %+v", res["shock"])
	}
}

// =========== Validation ===========

func TestValidateInputs(t *testing.T) {
	s := mustParse(t, "qtc", qtcDoc)
	tests := []struct {
		name   string
		inputs map[string]any
		want   []string
	}{
		{"valid", map[string]any{"qt": 400.0, "heart_rate": 60.0, "sex": "female"}, nil},
		{"empty string", map[string]any{"qt": "", "heart_rate": 60.0, "sex": "male"}, []string{"Missing required input: qt"}},
		{"null", map[string]any{"qt": nil, "heart_rate": 60.0, "sex": "male"}, []string{"Missing required input: qt"}},
		{"not a number", map[string]any{"qt": "long", "heart_rate": 60.0, "sex": "male"}, []string{"Input qt must be a valid number"}},
		{"below min", map[string]any{"qt": 100.0, "heart_rate": 60.0, "sex": "male"}, []string{"Input qt must be >= 200"}},
		{"above max", map[string]any{"qt": 400.0, "heart_rate": 301.0, "sex": "male"}, []string{"Input heart_rate must be <= 300"}},
		{"bad option", map[string]any{"qt": 400.0, "heart_rate": 60.0, "sex": "other"}, []string{"Input sex must be one of: male, female"}},
		{"all errors collected", map[string]any{"qt": 100.0}, []string{
			"Input qt must be >= 200",
			"Missing required input: heart_rate",
			"Missing required input: sex",
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ValidateInputs(tt.inputs, s, "")
			if strings.Join(got, "|") != strings.Join(tt.want, "|") {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestValidateInputs_ModeNarrowsRequired(t *testing.T) {
	s := mustParse(t, "qtc", qtcDoc)
	if errs := ValidateInputs(map[string]any{"qt": 400.0, "heart_rate": 60.0}, s, "fridericia"); len(errs) != 0 {
		t.Errorf("sex should not be required in fridericia mode: %v", errs)
	}
}

func TestValidateInputs_Boolean(t *testing.T) {
	s := mustParse(t, "shock", sepsisDoc)
	errs := ValidateInputs(map[string]any{"map": 70.0, "on_pressors": "yes", "note": "x"}, s, "")
	if len(errs) != 1 || errs[0] != "Input on_pressors must be true or false" {
		t.Errorf("unexpected errors %v", errs)
	}
}

func TestNumericValue(t *testing.T) {
	if _, ok := numericValue(math.Inf(1)); ok {
		t.Error("infinity is not a valid number")
	}
	if _, ok := numericValue("NaN"); ok {
		t.Error("NaN is not a valid number")
	}
	if f, ok := numericValue(" 12.5 "); !ok || f != 12.5 {
		t.Errorf("expected 12.5, got %v %v", f, ok)
	}
	if _, ok := numericValue(true); ok {
		t.Error("booleans are not numbers")
	}
}

// =========== Resolution ===========

func TestResolveExpressionSet_OverrideKeepsPosition(t *testing.T) {
	s := mustParse(t, "qtc", qtcDoc)
	set := ResolveExpressionSet(s, "fridericia")
	var names []string
	for _, x := range set {
		names = append(names, x.Name)
	}
	if strings.Join(names, ",") != "rr,qtc,prolonged" {
		t.Errorf("unexpected order %v", names)
	}
	if set[1].Source != "qt / cbrt(60 / heart_rate)" {
		t.Errorf("override not applied: %q", set[1].Source)
	}
	if base := ResolveExpressionSet(s, ""); len(base) != 2 || base[1].Source != "qt / sqrt(rr)" {
		t.Errorf("base set modified: %+v", base)
	}
}

func TestResolveRequiredOutputs(t *testing.T) {
	s := mustParse(t, "qtc", qtcDoc)
	if got := ResolveRequiredOutputs(s, ""); strings.Join(got, ",") != "qtc" {
		t.Errorf("default outputs = %v", got)
	}
	if got := ResolveRequiredOutputs(s, "fridericia"); strings.Join(got, ",") != "qtc,prolonged" {
		t.Errorf("mode outputs = %v", got)
	}
}

func TestFilterExpressions(t *testing.T) {
	set := []Expression{
		{Name: "a", Source: "x + 1"},
		{Name: "b", Source: "a * 2"},
		{Name: "c", Source: "b + a"},
	}

	got, err := NewEngine(Options{}).FilterExpressions(set, []string{"c", "a", "missing"})
	if err != nil {
		t.Fatalf("FilterExpressions: %v", err)
	}
	if len(got) != 2 || got[0].Name != "c" || got[1].Name != "a" {
		t.Errorf("name filtering should follow output order, got %+v", got)
	}

	got, err = NewEngine(Options{ResolveDependencies: true}).FilterExpressions(set, []string{"c"})
	if err != nil {
		t.Fatalf("FilterExpressions: %v", err)
	}
	var names []string
	for _, x := range got {
		names = append(names, x.Name)
	}
	if strings.Join(names, ",") != "a,b,c" {
		t.Errorf("dependency order = %v", names)
	}
}

func TestFilterExpressions_Cycle(t *testing.T) {
	set := []Expression{
		{Name: "a", Source: "b + 1"},
		{Name: "b", Source: "a + 1"},
	}
	_, err := NewEngine(Options{ResolveDependencies: true}).FilterExpressions(set, []string{"a"})
	if !apperr.Is(err, apperr.ExpressionError) {
		t.Fatalf("expected ExpressionError, got %v", err)
	}
	if !strings.Contains(err.Error(), "a -> b -> a") {
		t.Errorf("unexpected message %q", err.Error())
	}
}

func TestFilterExpressions_SelfReferenceReadsInput(t *testing.T) {
	set := []Expression{{Name: "weight", Source: "weight * 0.45359237"}}
	got, err := NewEngine(Options{ResolveDependencies: true}).FilterExpressions(set, []string{"weight"})
	if err != nil || len(got) != 1 {
		t.Fatalf("unexpected result %v %v", got, err)
	}
	res, err := Evaluate(context.Background(), got, map[string]any{"weight": 100.0})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if math.Abs(res["weight"].(float64)-45.359237) > 1e-9 {
		t.Errorf("unexpected weight %v", res["weight"])
	}
}

// =========== Evaluation ===========

func TestEvaluate_ScopeChaining(t *testing.T) {
	exprs := []Expression{
		{Name: "double", Source: "x * 2"},
		{Name: "quad", Source: "double * 2"},
	}
	inputs := map[string]any{"x": "3"}
	res, err := Evaluate(context.Background(), exprs, inputs)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if res["quad"] != 12.0 {
		t.Errorf("expected 12, got %v", res["quad"])
	}
	if inputs["x"] != "3" {
		t.Error("caller inputs must not be modified")
	}
	if _, ok := inputs["double"]; ok {
		t.Error("results must not leak into caller inputs")
	}
}

func TestEvaluate_NoPartialResults(t *testing.T) {
	exprs := []Expression{
		{Name: "ok", Source: "1 + 1"},
		{Name: "broken", Source: "1 / 0"},
	}
	res, err := Evaluate(context.Background(), exprs, nil)
	if res != nil {
		t.Errorf("expected no results, got %v", res)
	}
	if !apperr.Is(err, apperr.ExpressionError) || !strings.Contains(err.Error(), "division by zero") {
		t.Errorf("unexpected error %v", err)
	}
}

func TestEvaluate_CompileErrorIsExpressionError(t *testing.T) {
	_, err := Evaluate(context.Background(), []Expression{{Name: "x", Source: "1 +"}}, nil)
	if !apperr.Is(err, apperr.ExpressionError) {
		t.Errorf("expected ExpressionError, got %v", err)
	}
}

// =========== Formatting ===========

func TestFormatResults(t *testing.T) {
	two := 2
	s := &Schema{Outputs: []OutputSpec{
		{Name: "ratio", Decimals: &two, Unit: "mmHg", Description: "P/F ratio"},
		{Name: "label", Type: "text", Decimals: &two},
		{Name: "absent"},
	}}
	got := FormatResults(map[string]any{"ratio": 3.14159, "label": "high", "extra": 1.0}, s, "")
	if len(got) != 2 {
		t.Fatalf("expected 2 results, got %v", got)
	}
	if got["ratio"].Value != 3.14 || *got["ratio"].Unit != "mmHg" || *got["ratio"].Description != "P/F ratio" {
		t.Errorf("unexpected ratio %+v", got["ratio"])
	}
	if got["label"].Value != "high" {
		t.Errorf("unexpected label %+v", got["label"])
	}
}

func TestEvaluate_StopsWhenContextDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Evaluate(ctx, []Expression{{Name: "x", Source: "1 + 1"}}, nil)
	if !apperr.Is(err, apperr.Timeout) {
		t.Fatalf("expected Timeout, got %v", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected the context error to be wrapped, got %v", err)
	}
}

func TestCompute_RoundPlacesMustBeWhole(t *testing.T) {
	doc := `{"name": "Rounded", "inputs": [{"name": "weight"}], "expressions": {"w": "round(weight, places)"}, "outputs": [{"name": "w"}]}`
	s := mustParse(t, "rounded", doc)
	for _, places := range []float64{1e300, 1.5} {
		_, err := NewEngine(Options{}).Compute(context.Background(), s, map[string]any{"weight": 70.0, "places": places}, "")
		if !apperr.Is(err, apperr.ExpressionError) {
			t.Errorf("round(weight, %v): expected ExpressionError, got %v", places, err)
		}
	}
}
