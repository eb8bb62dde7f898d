package deriv

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/exprbake/internal/eval"
	"github.com/roach88/exprbake/internal/flatten"
	"github.com/roach88/exprbake/internal/ir"
	"github.com/roach88/exprbake/internal/mathlib"
)

func flat(n ir.Node) ir.Node {
	o := flatten.DefaultOptions()
	o.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	return flatten.Flatten(n, o)
}

func run(t *testing.T, n ir.Node, x, y float64) float64 {
	t.Helper()
	v, err := eval.Eval(n, &ir.Env{Args: []any{x, y}, State: ir.State{}})
	require.NoError(t, err)
	return v.(float64)
}

func params() (*ir.Param, *ir.Param) {
	return ir.NewParam("x", ir.TFloat, 0), ir.NewParam("y", ir.TFloat, 1)
}

func TestScenarioDerivatives(t *testing.T) {
	x, y := params()
	f := ir.Add(ir.Mul(ir.F(3), x), ir.Mul(ir.F(0), y))

	dx, err := Derivative(f, x, ir.F(1))
	require.NoError(t, err)
	assert.Equal(t, "3", ir.Format(flat(dx)))

	dy, err := Derivative(f, y, ir.F(1))
	require.NoError(t, err)
	assert.Equal(t, "0", ir.Format(flat(dy)))
}

func TestDerivativeMatchesFiniteDifference(t *testing.T) {
	x, y := params()
	cases := map[string]ir.Node{
		"sin":    ir.CallFn(mathlib.MathSin, x),
		"cos":    ir.CallFn(mathlib.MathCos, x),
		"sindeg": ir.CallFn(mathlib.FnSinDeg, ir.Mul(x, ir.F(50))),
		"square": ir.CallFn(mathlib.MathPow, x, ir.F(2)),
		"x*y":    ir.Mul(x, y),
		"x/y":    ir.Div(x, y),
		"min":    ir.CallFn(mathlib.MathMin, x, y),
		"max":    ir.CallFn(mathlib.MathMax, x, y),
		"sqrt":   ir.CallFn(mathlib.MathSqrt, ir.Add(x, ir.F(3))),
		"exp":    ir.CallFn(mathlib.MathExp, ir.Mul(x, y)),
		"lerp":   ir.CallFn(mathlib.FnLerp, y, ir.F(4), x),
	}
	samples := [][2]float64{{0.3, 1.7}, {-1.2, 0.8}, {2.5, -2}, {1.1, 3.3}}
	const h = 1e-6

	for name, f := range cases {
		d, err := Derivative(f, x, ir.F(1))
		require.NoError(t, err, name)
		d = flat(d)
		for _, s := range samples {
			want := (run(t, f, s[0]+h, s[1]) - run(t, f, s[0]-h, s[1])) / (2 * h)
			assert.InDelta(t, want, run(t, d, s[0], s[1]), 1e-3, "%s at %v", name, s)
		}
	}
}

func TestDerivativeOfVectorValue(t *testing.T) {
	x, _ := params()
	f := ir.CallFn(mathlib.FnCosSin, x)
	d, err := Derivative(f, x, ir.F(1))
	require.NoError(t, err)
	got, err := eval.Eval(d, &ir.Env{Args: []any{0.0}})
	require.NoError(t, err)
	assert.Equal(t, ir.V2(0, 1), got)
}

func TestAssignmentsAreTracked(t *testing.T) {
	x, y := params()
	v := ir.NewVar("v", ir.TFloat)
	// v = x*x; v = v*y; v
	f := ir.Scope([]*ir.Var{v}, ir.Set(v, ir.Mul(x, x)), ir.Set(v, ir.Mul(v, y)), v)
	d, err := Derivative(f, x, ir.F(1))
	require.NoError(t, err)
	for _, s := range [][2]float64{{1, 2}, {3, -1}} {
		assert.InDelta(t, 2*s[0]*s[1], run(t, flat(d), s[0], s[1]), 1e-9)
	}
}

func TestConditionalKeepsPrimalTest(t *testing.T) {
	x, y := params()
	f := ir.If(ir.Lt(x, y), ir.Mul(x, x), ir.Neg(x))
	d, err := Derivative(f, x, ir.F(1))
	require.NoError(t, err)
	assert.Equal(t, "(if (< $x $y) (+ $x $x) -1)", ir.Format(flat(d)))
}

func TestSeeds(t *testing.T) {
	x, y := params()
	d, err := New(x, ir.F(1)).WithSeed(y, ir.F(2)).Differentiate(ir.Add(x, y))
	require.NoError(t, err)
	assert.Equal(t, "3", ir.Format(flat(d)))
}

func TestDifferentiationErrors(t *testing.T) {
	x, y := params()
	v := ir.NewVar("v", ir.TFloat)
	failing := map[string]ir.Node{
		"variable exponent": ir.CallFn(mathlib.MathPow, x, y),
		"unknown call":      ir.CallFn(mathlib.MathAtan2, x, y),
		"modulo":            ir.Mod(x, y),
		"try":               ir.TryCatch(ir.Set(v, x), nil),
		"impure product":    ir.Mul(ir.Seq(ir.Set(v, x), v), y),
		"script function":   ir.Invoke(&ir.Lambda{Name: "f", Sig: ir.Sig(ir.TFloat, ir.TFloat)}, x),
	}
	for name, f := range failing {
		_, err := Derivative(f, x, ir.F(1))
		require.Error(t, err, name)
		assert.True(t, IsError(err), "%s: %v", name, err)
	}

	_, err := Derivative(ir.CallFn(mathlib.MathPow, x, ir.Add(ir.F(1), ir.F(2))), x, ir.F(1))
	assert.NoError(t, err, "a constant-folding exponent is accepted")
}

func TestFloorIsFlat(t *testing.T) {
	x, _ := params()
	d, err := Derivative(ir.CallFn(mathlib.MathFloor, ir.Mul(x, ir.F(3))), x, ir.F(1))
	require.NoError(t, err)
	assert.Equal(t, "0", ir.Format(flat(d)))
}
