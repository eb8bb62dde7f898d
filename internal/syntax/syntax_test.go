package syntax

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/exprbake/internal/argctx"
	"github.com/roach88/exprbake/internal/eval"
	"github.com/roach88/exprbake/internal/ir"
	"github.com/roach88/exprbake/internal/mathlib"
	"github.com/roach88/exprbake/internal/printer"
)

func scriptCtx() *argctx.Context {
	return argctx.New([]argctx.Slot{
		{Name: "x", Type: ir.TFloat},
		{Name: "y", Type: ir.TFloat},
		{Name: "v", Type: ir.TVec2},
	})
}

func TestParseExpr(t *testing.T) {
	cases := []struct {
		src  string
		want string
	}{
		{"3.0*x + 0*y", "(+ (* 3 $x) (* 0 $y))"},
		{"-x", "(neg $x)"},
		{"sin(x) + cosdeg(y)", "(+ (mathlib.Sin $x) (mathlib.CosDeg $y))"},
		{"pow(x, 2)", "(math.Pow $x 2)"},
		{"cond(x < y, x, y)", "(if (< $x $y) $x $y)"},
		{"v.X * v.Mag()", "(* (.X $v) (.Mag $v))"},
		{"vec2(x, y) + v", "(+ (ir.V2 $x $y) $v)"},
		{"x * v", "(* $x $v)"},
		{"get(\"prev\", x)", "(get \"prev\" $x)"},
		{"int(x) & int(7)", "(& (int $x) (int 7))"},
	}
	for _, c := range cases {
		n, err := ParseExpr(c.src, scriptCtx(), Resolver{})
		require.NoError(t, err, c.src)
		assert.Equal(t, c.want, ir.Format(n), c.src)
	}
}

func TestParseExprLetAndStore(t *testing.T) {
	c := scriptCtx()
	n, err := ParseExpr("let(d, x * x, d + d)", c, Resolver{})
	require.NoError(t, err)
	assert.Equal(t, "(do [d0] (set d0 (* $x $x)) (+ d0 d0))", ir.Format(n))
	assert.Equal(t, 0, c.Depth(), "let released its alias")

	n, err = ParseExpr("store(\"prev\", x + 1)", c, Resolver{})
	require.NoError(t, err)
	assert.Equal(t, "(do [store0] (set store0 (+ $x 1)) (put \"prev\" store0) store0)", ir.Format(n))
}

func TestParseExprErrors(t *testing.T) {
	_, err := ParseExpr("x + z", scriptCtx(), Resolver{})
	assert.True(t, argctx.IsResolutionError(err))

	_, err = ParseExpr("nosuch(x)", scriptCtx(), Resolver{})
	assert.True(t, argctx.IsResolutionError(err))

	_, err = ParseExpr("x + v", scriptCtx(), Resolver{})
	assert.True(t, ir.IsTypeError(err))

	_, err = ParseExpr("x +", scriptCtx(), Resolver{})
	assert.True(t, IsError(err))

	_, err = ParseExpr("cond(x, y)", scriptCtx(), Resolver{})
	assert.True(t, IsError(err))

	c := scriptCtx()
	_, err = ParseExpr("let(d, x, d + q)", c, Resolver{})
	assert.True(t, argctx.IsResolutionError(err))
	assert.Equal(t, 0, c.Depth(), "alias released on failure")
}

func TestParseExprResolver(t *testing.T) {
	fib := &ir.Lambda{Name: "fib", Sig: ir.Sig(ir.TFloat, ir.TFloat)}
	speed := ir.Opaque(&ir.Named{Name: "tuning.Speed", Import: "example.com/tuning", Value: 4.0})
	r := Resolver{
		Funcs: func(name string) (*ir.Lambda, bool) { return fib, name == "fib" },
		Consts: func(name string) (ir.Node, bool) {
			return speed, name == "speed" || name == "tuning.Speed"
		},
	}
	n, err := ParseExpr("fib(x - 1) * speed + tuning.Speed", scriptCtx(), r)
	require.NoError(t, err)
	assert.Equal(t, "(+ (* (call fib (- $x 1)) tuning.Speed) tuning.Speed)", ir.Format(n))
}

// roundTrip prints body, reads the source back and runs both versions on
// the same inputs with separate side tables.
func roundTrip(t *testing.T, body ir.Node, args ...any) (live, loaded any, src string) {
	t.Helper()
	out, err := (&printer.Printer{}).PrintFunc(printer.Func{Name: "f_rt", Body: body, Ret: body.Type()})
	require.NoError(t, err)

	sig := ir.Signature{Ret: body.Type()}
	for _, a := range args {
		at, ok := ir.TypeOfValue(a)
		require.True(t, ok)
		sig.Params = append(sig.Params, at)
	}
	fn, err := ReadFunc(SigDirective+sig.String()+"\n"+out.Source, Options{})
	require.NoError(t, err, out.Source)
	assert.Equal(t, body.Type(), fn.Sig.Ret)

	want, err := eval.Eval(body, &ir.Env{Args: args, State: ir.State{}})
	require.NoError(t, err)
	got, err := eval.Eval(fn.Body, &ir.Env{Args: args, State: ir.State{}})
	require.NoError(t, err)
	return want, got, out.Source
}

func TestRoundTrip(t *testing.T) {
	x := ir.NewParam("x", ir.TFloat, 0)
	y := ir.NewParam("y", ir.TFloat, 1)
	v := ir.NewParam("v", ir.TVec2, 2)
	i := ir.NewVar("i", ir.TFloat)
	acc := ir.NewVar("acc", ir.TFloat)
	flag := ir.NewVar("flag", ir.TBool)
	tab := mathlib.SineTable()

	trees := map[string]ir.Node{
		"arith":   ir.Sub(ir.Mul(ir.F(3), x), ir.Div(y, ir.F(-2.5))),
		"cond":    ir.Add(x, ir.If(ir.Lt(x, y), ir.Neg(x), ir.Mul(y, y))),
		"mod":     ir.Add(ir.Mod(x, ir.F(1.5)), ir.Conv(ir.Mod(ir.Conv(y, ir.TFloat32), ir.Lit(float32(0.75))), ir.TFloat)),
		"convert": ir.Conv(ir.Add(ir.Conv(x, ir.TInt), ir.I(-3)), ir.TFloat),
		"vector":  ir.Field(ir.Add(ir.Mul(x, v), ir.Construct(ir.CtorVec2, ir.CallFn(mathlib.FnCos, y), ir.Field(v, "Mag"))), "Y"),
		"table":   ir.FetchAt(tab, ir.BitAnd(ir.Conv(ir.Mul(x, ir.F(1000)), ir.TInt), ir.I(tab.Mask()))),
		"literal": ir.Field(ir.Add(v, ir.Lit(ir.V2(0.5, math.Inf(-1)))), "X"),
		"loop": ir.Scope([]*ir.Var{i, acc},
			ir.Set(acc, ir.Dyn("acc", ir.F(1))),
			ir.While(ir.Lt(i, x), ir.Void(
				ir.Set(i, ir.Add(i, ir.F(1))),
				ir.Set(acc, ir.Mul(acc, ir.F(1.5))))),
			ir.TryCatch(ir.DynStore("acc", acc), nil),
			acc),
		"loop-cond-stmts": ir.Scope([]*ir.Var{i},
			ir.While(ir.If(ir.Lt(i, ir.F(3)), ir.Lt(i, x), ir.B(false)),
				ir.Set(i, ir.Add(i, ir.F(1)))),
			i),
		"and-stmts": ir.Scope([]*ir.Var{flag},
			ir.If(ir.And(ir.Gt(x, ir.F(0)), ir.Set(flag, ir.Lt(y, ir.F(10)))), x, ir.Mul(y, ir.F(2)))),
		"spill": ir.Scope([]*ir.Var{acc}, ir.Add(acc, ir.Seq(ir.Set(acc, x), acc))),
	}
	inputs := [][]any{
		{0.5, 2.0, ir.V2(3, 4)},
		{4.0, -1.25, ir.V2(-1, 0.5)},
		{-7.5, 12.0, ir.V2(0, 0)},
	}
	for name, tree := range trees {
		for _, in := range inputs {
			live, loaded, src := roundTrip(t, tree, in...)
			assert.Equal(t, live, loaded, "%s on %v\n%s", name, in, src)
		}
	}
}

func TestRoundTripVoidAndTry(t *testing.T) {
	x := ir.NewParam("x", ir.TFloat, 0)
	body := ir.Void(
		ir.When(ir.Gt(x, ir.F(1)), ir.DynStore("big", x), ir.DynStore("small", x)),
		ir.TryCatch(ir.DynStore("div", ir.Conv(ir.Div(ir.I(1), ir.Conv(x, ir.TInt)), ir.TFloat)), ir.DynStore("div", ir.F(-1))),
	)
	out, err := (&printer.Printer{}).PrintFunc(printer.Func{Name: "f_void", Body: body, Ret: ir.TVoid})
	require.NoError(t, err)
	fn, err := ReadFunc(out.Source, Options{})
	require.NoError(t, err)
	assert.Equal(t, ir.TVoid, fn.Sig.Ret)

	for _, in := range []float64{0.5, 4} {
		live, loaded := ir.State{}, ir.State{}
		_, err := eval.Eval(body, &ir.Env{Args: []any{in}, State: live})
		require.NoError(t, err)
		_, err = eval.Eval(fn.Body, &ir.Env{Args: []any{in}, State: loaded})
		require.NoError(t, err)
		assert.Equal(t, live, loaded)
	}
}

func TestReadFuncsResolvesCalls(t *testing.T) {
	src := map[string][]byte{
		"a.go": []byte(`package baked

import "github.com/roach88/exprbake/internal/ir"

//exprbake:sig float(float)
func f_fib(proxy []any, env *ir.Env) float64 {
	var t0 float64
	if (env.Args[0].(float64) < 2.0) {
		t0 = env.Args[0].(float64)
	} else {
		t0 = (f_fib(nil, env.With((env.Args[0].(float64) - 1.0))) + f_fib(nil, env.With((env.Args[0].(float64) - 2.0))))
	}
	return t0
}
`),
		"b.go": []byte(`package baked

import "github.com/roach88/exprbake/internal/ir"

//exprbake:sig float(float,float)
func f_scaled(proxy []any, env *ir.Env) float64 {
	return (f_fib(nil, env.With(env.Args[1].(float64))) * proxy[0].(float64))
}

func helper() {}
`),
	}
	fns, err := ReadFuncs(src, Options{})
	require.NoError(t, err)
	require.Len(t, fns, 2)
	assert.Equal(t, "f_fib", fns[0].Name)
	assert.Equal(t, "f_scaled", fns[1].Name)
	assert.Equal(t, 1, fns[1].Proxies)
	assert.Equal(t, "float(float,float)", fns[1].Sig.String(), "unused parameter kept by the directive")

	for _, fn := range fns {
		p, err := eval.Compile(fn.Body)
		require.NoError(t, err)
		fn.Lambda.SetImpl(p.Callable())
	}
	p, err := eval.Compile(fns[1].Body)
	require.NoError(t, err)
	got := p.Bind([]any{2.0})(&ir.Env{Args: []any{0.0, 10.0}})
	assert.Equal(t, 110.0, got)
}

func TestReadFuncErrors(t *testing.T) {
	_, err := ReadFunc("func f(proxy []any, env *ir.Env) float64 {\n\treturn g(nil, env)\n}\n", Options{})
	assert.True(t, IsError(err))

	_, err = ReadFunc("func f(proxy []any, env *ir.Env) float64 {\n\treturn env.Args[1].(float64)\n}\n", Options{})
	assert.True(t, IsError(err), "parameter 0 cannot be inferred")

	_, err = ReadFunc("func f(proxy []any, env *ir.Env) float64 {\n\treturn true\n}\n", Options{})
	assert.True(t, IsError(err))

	_, err = ReadFunc("func f(proxy []any, env *ir.Env) float64 {\n\treturn tuning.Speed\n}\n", Options{})
	assert.True(t, IsError(err))

	fn, err := ReadFunc("func f(proxy []any, env *ir.Env) float64 {\n\treturn tuning.Speed\n}\n", Options{
		Consts: func(expr string) (ir.Node, bool) {
			return ir.Opaque(&ir.Named{Name: "tuning.Speed", Value: 2.0}), expr == "tuning.Speed"
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "(do tuning.Speed)", ir.Format(fn.Body))
}

func TestReadFuncUnreachable(t *testing.T) {
	src := SigDirective + "float(float)\nfunc f(proxy []any, env *ir.Env) float64 {\n\tpanic(\"unreachable: constant *tuning.Knob has no textual form\")\n}\n"
	fn, err := ReadFunc(src, Options{})
	require.NoError(t, err)
	assert.Nil(t, fn.Body)
	assert.Equal(t, "constant *tuning.Knob has no textual form", fn.Broken)
	assert.Equal(t, "float(float)", fn.Sig.String())

	_, err = ReadFunc("func f(proxy []any, env *ir.Env) float64 {\n\tpanic(\"boom\")\n}\n", Options{})
	assert.True(t, IsError(err), "only unreachable panics stand in for a body")
}
