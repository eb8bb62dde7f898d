package eval

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/exprbake/internal/ir"
	"github.com/roach88/exprbake/internal/mathlib"
)

func call(t *testing.T, n ir.Node, args ...any) any {
	t.Helper()
	p, err := Compile(n)
	require.NoError(t, err)
	return p.Callable()(&ir.Env{Args: args, State: ir.State{}})
}

func TestArithmetic(t *testing.T) {
	x := ir.NewParam("x", ir.TFloat, 0)
	y := ir.NewParam("y", ir.TFloat, 1)
	n := ir.Add(ir.Mul(ir.F(3), x), ir.Div(y, ir.F(2)))
	assert.Equal(t, 3*1.5+4.0/2, call(t, n, 1.5, 4.0))

	v := ir.NewParam("v", ir.TVec2, 0)
	assert.Equal(t, ir.V2(2, 4), call(t, ir.Mul(v, ir.F(2)), ir.V2(1, 2)))
	assert.Equal(t, 5.0, call(t, ir.Field(v, "Mag"), ir.V2(3, 4)))

	i := ir.NewParam("i", ir.TInt, 0)
	assert.Equal(t, int64(2), call(t, ir.Mod(i, ir.I(5)), int64(7)))
	assert.Equal(t, int64(3), call(t, ir.Conv(ir.F(3.9), ir.TInt)))
	assert.Equal(t, float32(0.5), call(t, ir.Conv(ir.Lit(float32(0.5)), ir.TFloat32)))
}

func TestShortCircuit(t *testing.T) {
	st := ir.State{}
	v := ir.NewVar("v", ir.TBool)
	side := ir.Seq(ir.Set(v, ir.B(true)), ir.B(true))
	n := ir.Scope([]*ir.Var{v}, ir.And(ir.B(false), side), v)
	p, err := Compile(n)
	require.NoError(t, err)
	assert.Equal(t, false, p.Callable()(&ir.Env{State: st}))
}

func TestLoopAndVariables(t *testing.T) {
	n := ir.NewParam("n", ir.TFloat, 0)
	i := ir.NewVar("i", ir.TFloat)
	acc := ir.NewVar("acc", ir.TFloat)
	sum := ir.Scope([]*ir.Var{i, acc},
		ir.While(ir.Lt(i, n), ir.Void(
			ir.Set(i, ir.Add(i, ir.F(1))),
			ir.Set(acc, ir.Add(acc, i)))),
		acc)
	assert.Equal(t, 15.0, call(t, sum, 5.0))
	assert.Equal(t, 0.0, call(t, sum, 0.0), "variables start at zero on every call")
}

func TestTryCatch(t *testing.T) {
	v := ir.NewVar("v", ir.TInt)
	n := ir.Scope([]*ir.Var{v},
		ir.TryCatch(ir.Set(v, ir.Div(ir.I(1), ir.Sub(v, v))), ir.Set(v, ir.I(-1))),
		v)
	assert.Equal(t, int64(-1), call(t, n))
}

func TestSideTable(t *testing.T) {
	n := ir.Seq(
		ir.DynStore("count", ir.Add(ir.Dyn("count", ir.F(0)), ir.F(1))),
		ir.Dyn("count", ir.F(0)))
	p, err := Compile(n)
	require.NoError(t, err)
	fn := p.Callable()
	env := &ir.Env{State: ir.State{}}
	assert.Equal(t, 1.0, fn(env))
	assert.Equal(t, 2.0, fn(env), "state persists across calls for the same entity")
	assert.Equal(t, 1.0, fn(&ir.Env{State: ir.State{}}))
}

func TestCallsAndTables(t *testing.T) {
	x := ir.NewParam("x", ir.TFloat, 0)
	assert.Equal(t, math.Sin(0.3), call(t, ir.CallFn(mathlib.MathSin, x), 0.3))
	assert.Equal(t, ir.V2(1, 0), call(t, ir.CallFn(mathlib.FnCosSin, x), 0.0))

	tab := mathlib.SineTable()
	got := call(t, ir.FetchAt(tab, ir.I(int64(mathlib.TableSize/4))))
	assert.InDelta(t, 1.0, got, 1e-12)
}

func TestHoistedProxies(t *testing.T) {
	h := &ir.Hoisted{Index: 0, T: ir.TFloat, Val: 2.0}
	p, err := Compile(ir.Mul(h, ir.F(3)))
	require.NoError(t, err)
	assert.Equal(t, 6.0, p.Callable()(&ir.Env{}))
	assert.Equal(t, 12.0, p.Bind([]any{4.0})(&ir.Env{}))
}

func TestApplyRecursion(t *testing.T) {
	fib := &ir.Lambda{Name: "fib", Sig: ir.Sig(ir.TFloat, ir.TFloat)}
	n := ir.NewParam("n", ir.TFloat, 0)
	body := ir.If(ir.Lt(n, ir.F(2)), n,
		ir.Add(ir.Invoke(fib, ir.Sub(n, ir.F(1))), ir.Invoke(fib, ir.Sub(n, ir.F(2)))))
	p, err := Compile(body)
	require.NoError(t, err)
	fib.SetImpl(p.Callable())
	assert.Equal(t, 55.0, fib.Invoke(&ir.Env{Args: []any{10.0}}))
}

func TestNamedConstantsEvaluate(t *testing.T) {
	c := ir.Opaque(&ir.Named{Name: "cfg.Speed", Value: 2.5})
	assert.Equal(t, 5.0, call(t, ir.Mul(c, ir.F(2))))
}
