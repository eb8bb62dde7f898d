// Package syntax reads Go syntax into IR.
//
// Two dialects are accepted. Script expressions are the formulas authors
// write: plain Go expressions over argument names and a small set of
// builtins (sin, pow, vec2, cond, get, let, ...). Generated source is the
// exact output of the printer package, read back so exported files can be
// verified and executed without the Go toolchain.
package syntax

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"strconv"

	"github.com/roach88/exprbake/internal/argctx"
	"github.com/roach88/exprbake/internal/ir"
	"github.com/roach88/exprbake/internal/mathlib"
)

// Resolver supplies names a script may use beyond the arguments in scope.
// Either field may be nil.
type Resolver struct {
	Funcs  func(name string) (*ir.Lambda, bool)
	Consts func(name string) (ir.Node, bool)
}

var builtins = map[string]*ir.Func{
	"sin":       mathlib.FnSin,
	"cos":       mathlib.FnCos,
	"cossin":    mathlib.FnCosSin,
	"sindeg":    mathlib.FnSinDeg,
	"cosdeg":    mathlib.FnCosDeg,
	"cossindeg": mathlib.FnCosSinDeg,
	"lerp":      mathlib.FnLerp,
	"clamp":     mathlib.FnClamp,
	"tan":       mathlib.MathTan,
	"sqrt":      mathlib.MathSqrt,
	"exp":       mathlib.MathExp,
	"log":       mathlib.MathLog,
	"abs":       mathlib.MathAbs,
	"floor":     mathlib.MathFloor,
	"ceil":      mathlib.MathCeil,
	"pow":       mathlib.MathPow,
	"min":       mathlib.MathMin,
	"max":       mathlib.MathMax,
	"atan2":     mathlib.MathAtan2,
	"hypot":     mathlib.MathHypot,
}

var conversions = map[string]ir.Type{
	"int":     ir.TInt,
	"float":   ir.TFloat,
	"float32": ir.TFloat32,
}

var ctors = map[string]*ir.Ctor{
	"vec2": ir.CtorVec2,
	"vec3": ir.CtorVec3,
	"rv2":  ir.CtorV2RV2,
}

// ParseExpr parses a script expression. Free names resolve against c
// first, then r. Unknown names fail with *argctx.ResolutionError and
// ill-typed operations with *ir.TypeError.
func ParseExpr(src string, c *argctx.Context, r Resolver) (n ir.Node, err error) {
	e, perr := parser.ParseExpr(src)
	if perr != nil {
		return nil, &Error{Message: "parse " + strconv.Quote(src), Err: perr}
	}
	s := &script{c: c, r: r}
	defer catch(&err)
	return s.expr(e), nil
}

type script struct {
	c *argctx.Context
	r Resolver
}

func (s *script) fail(at ast.Node, format string, args ...any) {
	// ParseExpr positions are 1-based offsets into a single line.
	panic(&Error{Pos: fmt.Sprintf("col %d", at.Pos()), Message: fmt.Sprintf(format, args...)})
}

func (s *script) exprs(es []ast.Expr) []ir.Node {
	out := make([]ir.Node, len(es))
	for i, e := range es {
		out[i] = s.expr(e)
	}
	return out
}

func (s *script) expr(e ast.Expr) ir.Node {
	switch e := e.(type) {
	case *ast.ParenExpr:
		return s.expr(e.X)
	case *ast.BasicLit:
		return ir.F(s.number(e))
	case *ast.Ident:
		return s.ident(e.Name)
	case *ast.UnaryExpr:
		x := s.expr(e.X)
		switch e.Op {
		case token.SUB:
			return ir.Neg(x)
		case token.NOT:
			return ir.Not(x)
		case token.ADD:
			return x
		}
		s.fail(e, "unsupported operator %s", e.Op)
	case *ast.BinaryExpr:
		op, ok := ir.ParseBinaryOp(e.Op.String())
		if !ok {
			s.fail(e, "unsupported operator %s", e.Op)
		}
		return ir.Bin(op, s.expr(e.X), s.expr(e.Y))
	case *ast.SelectorExpr:
		if id, ok := e.X.(*ast.Ident); ok && s.r.Consts != nil {
			if _, bound := s.c.Lookup(id.Name); !bound {
				if n, ok := s.r.Consts(id.Name + "." + e.Sel.Name); ok {
					return n
				}
			}
		}
		return ir.Field(s.expr(e.X), e.Sel.Name)
	case *ast.CallExpr:
		return s.call(e)
	}
	s.fail(e, "unsupported expression %T", e)
	return nil
}

func (s *script) number(lit *ast.BasicLit) float64 {
	switch lit.Kind {
	case token.FLOAT:
		f, err := strconv.ParseFloat(lit.Value, 64)
		if err == nil {
			return f
		}
	case token.INT:
		i, err := strconv.ParseInt(lit.Value, 0, 64)
		if err == nil {
			return float64(i)
		}
	}
	s.fail(lit, "bad number %s", lit.Value)
	return 0
}

func (s *script) ident(name string) ir.Node {
	switch name {
	case "true":
		return ir.B(true)
	case "false":
		return ir.B(false)
	}
	if n, ok := s.c.Lookup(name); ok {
		return n
	}
	if s.r.Consts != nil {
		if n, ok := s.r.Consts(name); ok {
			return n
		}
	}
	panic(&argctx.ResolutionError{Name: name})
}

func (s *script) key(e ast.Expr) string {
	lit, ok := e.(*ast.BasicLit)
	if ok && lit.Kind == token.STRING {
		if k, err := strconv.Unquote(lit.Value); err == nil {
			return k
		}
	}
	s.fail(e, "want a string key")
	return ""
}

func (s *script) arity(call *ast.CallExpr, name string, n int) {
	if len(call.Args) != n {
		s.fail(call, "%s takes %d arguments, got %d", name, n, len(call.Args))
	}
}

func (s *script) call(call *ast.CallExpr) ir.Node {
	if sel, ok := call.Fun.(*ast.SelectorExpr); ok {
		// v.Mag() reads a computed member.
		s.arity(call, sel.Sel.Name, 0)
		return ir.Field(s.expr(sel.X), sel.Sel.Name)
	}
	id, ok := call.Fun.(*ast.Ident)
	if !ok {
		s.fail(call, "unsupported call")
	}
	name, args := id.Name, call.Args

	switch name {
	case "cond":
		s.arity(call, name, 3)
		return ir.If(s.expr(args[0]), s.expr(args[1]), s.expr(args[2]))
	case "get":
		s.arity(call, name, 2)
		return ir.Dyn(s.key(args[0]), s.expr(args[1]))
	case "store":
		s.arity(call, name, 2)
		key, v := s.key(args[0]), s.expr(args[1])
		tmp := s.c.NewVar("store", v.Type())
		return ir.Scope([]*ir.Var{tmp}, ir.Set(tmp, v), ir.DynStore(key, tmp), tmp)
	case "let":
		s.arity(call, name, 3)
		bound, ok := args[0].(*ast.Ident)
		if !ok {
			s.fail(args[0], "let wants a name")
		}
		value := s.expr(args[1])
		return s.c.Let(bound.Name, value, func(*ir.Var) ir.Node { return s.expr(args[2]) })
	}
	if t, ok := conversions[name]; ok {
		s.arity(call, name, 1)
		return ir.Conv(s.expr(args[0]), t)
	}
	if c, ok := ctors[name]; ok {
		return ir.Construct(c, s.exprs(args)...)
	}
	if fn, ok := builtins[name]; ok {
		return ir.CallFn(fn, s.exprs(args)...)
	}
	if s.r.Funcs != nil {
		if fn, ok := s.r.Funcs(name); ok {
			return ir.Invoke(fn, s.exprs(args)...)
		}
	}
	panic(&argctx.ResolutionError{Name: name, Message: "unknown function"})
}
