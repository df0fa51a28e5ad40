package expr

import (
	"fmt"
	"math"
)

// ============================================================================
// Function allow-list
// ============================================================================

const maxRoundPlaces = 15

type function struct {
	minArgs int
	maxArgs int // -1 for variadic
	call    func(args []float64) (float64, error)
}

func unary(f func(float64) float64) function {
	return function{minArgs: 1, maxArgs: 1, call: func(a []float64) (float64, error) {
		return f(a[0]), nil
	}}
}

var functions = map[string]function{
	"abs":   unary(math.Abs),
	"sqrt":  unary(math.Sqrt),
	"cbrt":  unary(math.Cbrt),
	"exp":   unary(math.Exp),
	"ln":    unary(math.Log),
	"log10": unary(math.Log10),
	"log2":  unary(math.Log2),
	"floor": unary(math.Floor),
	"ceil":  unary(math.Ceil),
	"sin":   unary(math.Sin),
	"cos":   unary(math.Cos),
	"tan":   unary(math.Tan),
	"sign": unary(func(x float64) float64 {
		switch {
		case x > 0:
			return 1
		case x < 0:
			return -1
		}
		return 0
	}),
	"pow": {minArgs: 2, maxArgs: 2, call: func(a []float64) (float64, error) {
		return math.Pow(a[0], a[1]), nil
	}},
	"log": {minArgs: 1, maxArgs: 2, call: func(a []float64) (float64, error) {
		if len(a) == 1 {
			return math.Log(a[0]), nil
		}
		if a[1] <= 0 || a[1] == 1 {
			return 0, fmt.Errorf("log base must be positive and not 1")
		}
		return math.Log(a[0]) / math.Log(a[1]), nil
	}},
	"round": {minArgs: 1, maxArgs: 2, call: func(a []float64) (float64, error) {
		if len(a) == 1 {
			return math.Round(a[0]), nil
		}
		places := a[1]
		if places != math.Trunc(places) || math.Abs(places) > maxRoundPlaces {
			return 0, fmt.Errorf("round places must be a whole number between -%d and %d", maxRoundPlaces, maxRoundPlaces)
		}
		return RoundTo(a[0], int(places)), nil
	}},
	"min": {minArgs: 1, maxArgs: -1, call: func(a []float64) (float64, error) {
		m := a[0]
		for _, v := range a[1:] {
			m = math.Min(m, v)
		}
		return m, nil
	}},
	"max": {minArgs: 1, maxArgs: -1, call: func(a []float64) (float64, error) {
		m := a[0]
		for _, v := range a[1:] {
			m = math.Max(m, v)
		}
		return m, nil
	}},
	"clamp": {minArgs: 3, maxArgs: 3, call: func(a []float64) (float64, error) {
		if a[1] > a[2] {
			return 0, fmt.Errorf("clamp lower bound exceeds upper bound")
		}
		return math.Min(math.Max(a[0], a[1]), a[2]), nil
	}},
}

// constants are used only when the scope does not define the name.
var constants = map[string]float64{
	"pi": math.Pi,
	"e":  math.E,
}

func checkCall(name string, n int) error {
	fn, ok := functions[name]
	if !ok {
		return fmt.Errorf("unknown function %q", name)
	}
	if n < fn.minArgs || (fn.maxArgs >= 0 && n > fn.maxArgs) {
		return fmt.Errorf("wrong number of arguments for %s: %d", name, n)
	}
	return nil
}

// RoundTo rounds x to the given number of decimal places, half away from
// zero. Negative places round to tens, hundreds and so on.
func RoundTo(x float64, places int) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return x
	}
	if places > 15 {
		places = 15
	}
	if places < -15 {
		places = -15
	}
	p := math.Pow(10, float64(places))
	if math.IsInf(x*p, 0) {
		return x
	}
	return math.Round(x*p) / p
}
