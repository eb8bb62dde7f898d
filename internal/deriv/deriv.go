// Package deriv computes symbolic derivatives of IR trees.
//
// The output is not simplified; callers flatten it afterwards. Operators and
// calls without a rule are errors, never silently treated as constants.
package deriv

import (
	"fmt"
	"math"

	"github.com/roach88/exprbake/internal/flatten"
	"github.com/roach88/exprbake/internal/ir"
	"github.com/roach88/exprbake/internal/mathlib"
)

// Differentiator computes d(expr)/d(x) seeded with dx.
type Differentiator struct {
	x       ir.Node
	dx      ir.Node
	seeds   map[*ir.Param]ir.Node
	tracked map[*ir.Var]*ir.Var
	order   []*ir.Var
}

// New creates a Differentiator for the parameter or variable x with seed dx.
// dx must have the type of x.
func New(x, dx ir.Node) *Differentiator {
	if x.Type() != dx.Type() {
		panic(fmt.Sprintf("deriv: seed is %s, variable is %s", dx.Type(), x.Type()))
	}
	return &Differentiator{x: x, dx: dx, seeds: map[*ir.Param]ir.Node{}}
}

// WithSeed maps another parameter to a known derivative. Unmapped parameters
// have derivative zero.
func (d *Differentiator) WithSeed(p *ir.Param, dp ir.Node) *Differentiator {
	d.seeds[p] = dp
	return d
}

// Derivative is New(x, dx).Differentiate(expr).
func Derivative(expr, x, dx ir.Node) (ir.Node, error) {
	return New(x, dx).Differentiate(expr)
}

// Differentiate returns the derivative tree of expr. Variables introduced to
// track the derivatives of assigned variables are declared by an enclosing
// block.
func (d *Differentiator) Differentiate(expr ir.Node) (out ir.Node, err error) {
	d.tracked = map[*ir.Var]*ir.Var{}
	d.order = nil
	defer func() {
		if r := recover(); r != nil {
			switch e := r.(type) {
			case *Error:
				out, err = nil, e
			case *ir.TypeError:
				out, err = nil, &Error{Op: e.Op, Message: e.Error()}
			default:
				panic(r)
			}
		}
	}()
	out = d.diff(expr)
	if len(d.order) > 0 {
		out = ir.Scope(d.order, out)
	}
	return out, nil
}

func fail(op, format string, args ...any) {
	panic(&Error{Op: op, Message: fmt.Sprintf(format, args...)})
}

func zero(t ir.Type) ir.Node {
	if t == ir.TVoid {
		return ir.Void()
	}
	return ir.ZeroOf(t)
}

func (d *Differentiator) diff(n ir.Node) ir.Node {
	if n == d.x {
		return d.dx
	}
	switch n := n.(type) {
	case *ir.Const, *ir.Hoisted, *ir.DynGet, *ir.Member:
		return zero(n.Type())
	case *ir.Param:
		if s, ok := d.seeds[n]; ok {
			return s
		}
		return zero(n.T)
	case *ir.Var:
		if dv, ok := d.tracked[n]; ok {
			return dv
		}
		return zero(n.T)
	case *ir.Binary:
		return d.binary(n)
	case *ir.Unary:
		if n.Op != ir.OpNeg {
			fail(n.Op.Symbol(), "no derivative rule")
		}
		return ir.Neg(d.diff(n.X))
	case *ir.Convert:
		if !n.X.Type().IsFloat() || !n.T.IsFloat() {
			return zero(n.T)
		}
		return ir.Conv(d.diff(n.X), n.T)
	case *ir.Cond:
		then, els := d.diff(n.Then), d.diff(n.Else)
		if n.T == ir.TVoid {
			return ir.When(n.Test, then, els)
		}
		return ir.If(n.Test, then, els)
	case *ir.Block:
		stmts := make([]ir.Node, len(n.Stmts))
		for i, s := range n.Stmts {
			stmts[i] = d.diff(s)
		}
		return &ir.Block{Vars: n.Vars, Stmts: stmts, T: n.T}
	case *ir.Assign:
		return d.assign(n)
	case *ir.Loop:
		return ir.While(n.Cond, d.diff(n.Body))
	case *ir.Try:
		fail("try", "cannot differentiate through a try block")
	case *ir.Call:
		return d.call(n)
	case *ir.New:
		args := make([]ir.Node, len(n.Args))
		for i, a := range n.Args {
			args[i] = d.diff(a)
		}
		return ir.Construct(n.Ctor, args...)
	case *ir.Fetch:
		fail("fetch "+n.Table.Name, "table reads have no derivative; differentiate before flattening")
	case *ir.DynSet:
		return n
	case *ir.Apply:
		fail(n.Fn.Name, "no derivative rule for script functions")
	}
	panic(fmt.Sprintf("deriv: unknown node %T", n))
}

// assign tracks the derivative of the target in a companion variable. The
// derivative is stored before the primal so it sees the old value.
func (d *Differentiator) assign(n *ir.Assign) ir.Node {
	if ir.HasEffects(n.Value) {
		fail("assign "+n.Target.Name, "assigned value has side effects")
	}
	dv, ok := d.tracked[n.Target]
	if !ok {
		dv = ir.NewVar("d_"+n.Target.Name, n.Target.T)
		d.tracked[n.Target] = dv
		d.order = append(d.order, dv)
	}
	return ir.Seq(ir.Set(dv, d.diff(n.Value)), &ir.Assign{Target: n.Target, Value: n.Value}, dv)
}

func pure(op string, ns ...ir.Node) {
	for _, n := range ns {
		if ir.HasEffects(n) {
			fail(op, "operand with side effects is used more than once")
		}
	}
}

func (d *Differentiator) binary(n *ir.Binary) ir.Node {
	l, r := n.L, n.R
	switch n.Op {
	case ir.OpAdd:
		return ir.Add(d.diff(l), d.diff(r))
	case ir.OpSub:
		return ir.Sub(d.diff(l), d.diff(r))
	case ir.OpMul:
		pure("*", l, r)
		return ir.Add(ir.Mul(d.diff(l), r), ir.Mul(l, d.diff(r)))
	case ir.OpDiv:
		pure("/", l, r)
		num := ir.Sub(ir.Mul(d.diff(l), r), ir.Mul(l, d.diff(r)))
		return ir.Div(num, ir.Mul(r, r))
	}
	fail(n.Op.Symbol(), "no derivative rule")
	return nil
}

// degScale is the chain-rule factor for functions taking degrees.
func degScale(fn *ir.Func, n ir.Node) ir.Node {
	if fn.Degrees {
		return ir.Mul(ir.F(math.Pi/180), n)
	}
	return n
}

func sibling(fn *ir.Func, op string) *ir.Func {
	f, ok := mathlib.Lookup(fn.Lib, op, fn.Degrees)
	if !ok {
		fail(fn.GoName(), "no %s counterpart in %s", op, fn.Lib)
	}
	return f
}

func (d *Differentiator) call(n *ir.Call) ir.Node {
	fn, args := n.Fn, n.Args
	if !mathlib.IsPureLib(fn.Lib) {
		fail(fn.GoName(), "no derivative rule")
	}
	pure(fn.GoName(), args...)
	switch fn.Op {
	case "sin":
		u := args[0]
		return ir.Mul(degScale(fn, d.diff(u)), ir.CallFn(sibling(fn, "cos"), u))
	case "cos":
		u := args[0]
		return ir.Neg(ir.Mul(degScale(fn, d.diff(u)), ir.CallFn(sibling(fn, "sin"), u)))
	case "cossin":
		u := args[0]
		cs := ir.CallFn(fn, u)
		turned := ir.Construct(ir.CtorVec2, ir.Neg(ir.Field(cs, "Y")), ir.Field(cs, "X"))
		return ir.Mul(degScale(fn, d.diff(u)), turned)
	case "pow":
		u, e := args[0], args[1]
		c, ok := ir.ConstValue(flatten.Flatten(e, flatten.Options{ReducePureCalls: true, ReduceConstantFields: true}))
		if !ok {
			fail(fn.GoName(), "exponent %s is not a compile-time constant", ir.Format(e))
		}
		k := c.(float64)
		return ir.Mul(ir.Mul(ir.F(k), ir.CallFn(fn, u, ir.F(k-1))), d.diff(u))
	case "floor", "ceil":
		return ir.F(0)
	case "min":
		return ir.If(ir.Le(args[0], args[1]), d.diff(args[0]), d.diff(args[1]))
	case "max":
		return ir.If(ir.Ge(args[0], args[1]), d.diff(args[0]), d.diff(args[1]))
	case "sqrt":
		u := args[0]
		return ir.Div(d.diff(u), ir.Mul(ir.F(2), ir.CallFn(fn, u)))
	case "exp":
		u := args[0]
		return ir.Mul(d.diff(u), ir.CallFn(fn, u))
	case "log":
		u := args[0]
		return ir.Div(d.diff(u), u)
	case "abs":
		u := args[0]
		du := d.diff(u)
		return ir.If(ir.Ge(u, ir.F(0)), du, ir.Neg(du))
	case "lerp":
		a, b, t := args[0], args[1], args[2]
		da, db, dt := d.diff(a), d.diff(b), d.diff(t)
		return ir.Add(ir.Add(da, ir.Mul(ir.Sub(db, da), t)), ir.Mul(ir.Sub(b, a), dt))
	case "clamp":
		x, lo, hi := args[0], args[1], args[2]
		return ir.If(ir.Lt(x, lo), d.diff(lo), ir.If(ir.Gt(x, hi), d.diff(hi), d.diff(x)))
	}
	fail(fn.GoName(), "no derivative rule")
	return nil
}
