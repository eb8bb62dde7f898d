// Package mathlib describes the function libraries formulas may call: the
// standard "math" package and the domain library in this package, whose
// trigonometric functions the optimizer replaces with table lookups.
package mathlib

import (
	"math"

	"github.com/roach88/exprbake/internal/ir"
)

// ImportPath is the import path of this package, used by generated code.
const ImportPath = "github.com/roach88/exprbake/internal/mathlib"

const (
	Lib    = "mathlib"
	StdLib = "math"
)

// Sin is the sine of a in radians.
func Sin(a float64) float64 { return math.Sin(a) }

// Cos is the cosine of a in radians.
func Cos(a float64) float64 { return math.Cos(a) }

// CosSin returns (cos a, sin a) as a vector.
func CosSin(a float64) ir.Vec2 {
	s, c := math.Sincos(a)
	return ir.Vec2{X: c, Y: s}
}

// SinDeg is the sine of a in degrees.
func SinDeg(a float64) float64 { return math.Sin(a * DegToRad) }

// CosDeg is the cosine of a in degrees.
func CosDeg(a float64) float64 { return math.Cos(a * DegToRad) }

// CosSinDeg returns (cos a, sin a) for a in degrees.
func CosSinDeg(a float64) ir.Vec2 { return CosSin(a * DegToRad) }

// Lerp interpolates between a and b.
func Lerp(a, b, t float64) float64 { return a + (b-a)*t }

// Clamp limits x to [lo, hi].
func Clamp(x, lo, hi float64) float64 { return math.Max(lo, math.Min(hi, x)) }

// DegToRad converts degrees to radians.
const DegToRad = math.Pi / 180

func f1(fn func(float64) float64) func([]any) any {
	return func(a []any) any { return fn(a[0].(float64)) }
}

func f2(fn func(float64, float64) float64) func([]any) any {
	return func(a []any) any { return fn(a[0].(float64), a[1].(float64)) }
}

func f3(fn func(float64, float64, float64) float64) func([]any) any {
	return func(a []any) any { return fn(a[0].(float64), a[1].(float64), a[2].(float64)) }
}

var (
	float1 = []ir.Type{ir.TFloat}
	float2 = []ir.Type{ir.TFloat, ir.TFloat}
	float3 = []ir.Type{ir.TFloat, ir.TFloat, ir.TFloat}
)

func std(name, op string, params []ir.Type, impl func([]any) any) *ir.Func {
	return &ir.Func{Lib: StdLib, Name: name, Import: "math", Op: op, Params: params, Ret: ir.TFloat, Pure: true, Impl: impl}
}

// Standard library functions.
var (
	MathSin   = std("Sin", "sin", float1, f1(math.Sin))
	MathCos   = std("Cos", "cos", float1, f1(math.Cos))
	MathTan   = std("Tan", "tan", float1, f1(math.Tan))
	MathSqrt  = std("Sqrt", "sqrt", float1, f1(math.Sqrt))
	MathExp   = std("Exp", "exp", float1, f1(math.Exp))
	MathLog   = std("Log", "log", float1, f1(math.Log))
	MathAbs   = std("Abs", "abs", float1, f1(math.Abs))
	MathFloor = std("Floor", "floor", float1, f1(math.Floor))
	MathCeil  = std("Ceil", "ceil", float1, f1(math.Ceil))
	MathPow   = std("Pow", "pow", float2, f2(math.Pow))
	MathMin   = std("Min", "min", float2, f2(math.Min))
	MathMax   = std("Max", "max", float2, f2(math.Max))
	MathAtan2 = std("Atan2", "atan2", float2, f2(math.Atan2))
	MathHypot = std("Hypot", "hypot", float2, f2(math.Hypot))
)

func dom(name, op string, deg bool, trig ir.Trig, params []ir.Type, ret ir.Type, impl func([]any) any) *ir.Func {
	return &ir.Func{Lib: Lib, Name: name, Import: ImportPath, Op: op, Degrees: deg, Trig: trig,
		Params: params, Ret: ret, Pure: true, Impl: impl}
}

// Domain library functions.
var (
	FnSin       = dom("Sin", "sin", false, ir.TrigSin, float1, ir.TFloat, f1(Sin))
	FnCos       = dom("Cos", "cos", false, ir.TrigCos, float1, ir.TFloat, f1(Cos))
	FnCosSin    = dom("CosSin", "cossin", false, ir.TrigCosSin, float1, ir.TVec2, func(a []any) any { return CosSin(a[0].(float64)) })
	FnSinDeg    = dom("SinDeg", "sin", true, ir.TrigSin, float1, ir.TFloat, f1(SinDeg))
	FnCosDeg    = dom("CosDeg", "cos", true, ir.TrigCos, float1, ir.TFloat, f1(CosDeg))
	FnCosSinDeg = dom("CosSinDeg", "cossin", true, ir.TrigCosSin, float1, ir.TVec2, func(a []any) any { return CosSinDeg(a[0].(float64)) })
	FnLerp      = dom("Lerp", "lerp", false, ir.TrigNone, float3, ir.TFloat, f3(Lerp))
	FnClamp     = dom("Clamp", "clamp", false, ir.TrigNone, float3, ir.TFloat, f3(Clamp))
)

var (
	stdFuncs    = []*ir.Func{MathSin, MathCos, MathTan, MathSqrt, MathExp, MathLog, MathAbs, MathFloor, MathCeil, MathPow, MathMin, MathMax, MathAtan2, MathHypot}
	domainFuncs = []*ir.Func{FnSin, FnCos, FnCosSin, FnSinDeg, FnCosDeg, FnCosSinDeg, FnLerp, FnClamp}
)

// Funcs lists every known library function.
func Funcs() []*ir.Func {
	out := make([]*ir.Func, 0, len(stdFuncs)+len(domainFuncs))
	out = append(out, stdFuncs...)
	return append(out, domainFuncs...)
}

// ByGoName finds a function by its qualified Go name, e.g. "math.Sin".
func ByGoName(name string) (*ir.Func, bool) {
	for _, f := range Funcs() {
		if f.GoName() == name {
			return f, true
		}
	}
	return nil, false
}

// Lookup finds the function of library lib implementing op.
func Lookup(lib, op string, degrees bool) (*ir.Func, bool) {
	for _, f := range Funcs() {
		if f.Lib == lib && f.Op == op && f.Degrees == degrees {
			return f, true
		}
	}
	return nil, false
}

// IsPureLib reports whether calls into lib may be evaluated at compile time.
func IsPureLib(lib string) bool {
	return lib == StdLib || lib == Lib
}
