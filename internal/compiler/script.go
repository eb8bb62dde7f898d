package compiler

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"go.uber.org/multierr"

	"github.com/roach88/exprbake/internal/argctx"
	"github.com/roach88/exprbake/internal/bake"
	"github.com/roach88/exprbake/internal/ir"
	"github.com/roach88/exprbake/internal/syntax"
)

// Script is a parsed formula script:
//
//	script: "bullets"
//	consts: { speed: 2.5 }
//	functions: fib: { params: [{name: "n", type: "float"}], returns: "float", expr: "cond(n < 2.0, n, fib(n-1.0) + fib(n-2.0))" }
//	formulas: arc: { params: [{name: "t", type: "float"}], returns: "float", expr: "speed * sin(t)", wrt: "t" }
//
// Consts compile first, then functions, then formulas, each in declaration
// order. Serving relies on that order.
type Script struct {
	Name      string
	Key       ir.FileKey
	Consts    []*Formula
	Functions []*Formula
	Formulas  []*Formula
}

// constRef stands for a script constant in other formulas. Printed code
// calls the constant's generated function instead of repeating its value.
type constRef struct {
	name  string
	value any
}

func (c *constRef) IRValue() any { return c.value }

// LoadScript reads and parses a script file.
func LoadScript(path string) (*Script, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load script: %w", err)
	}
	return ParseScript(path, src)
}

// ParseScript parses a CUE script. The script's file key is derived from
// its text, so any edit gives a new file.
func ParseScript(filename string, src []byte) (*Script, error) {
	v := cuecontext.New().CompileBytes(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError("script", err)
	}

	s := &Script{Key: ir.ScriptKey(string(src))}
	s.Name = strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	if nameVal := v.LookupPath(cue.ParsePath("script")); nameVal.Exists() {
		name, err := nameVal.String()
		if err != nil {
			return nil, formatCUEError("script", err)
		}
		s.Name = name
	}

	consts := map[string]*constRef{}
	if err := eachField(v, "consts", func(name string, cv cue.Value) error {
		value, err := constValue(cv)
		if err != nil {
			return err
		}
		ref := &constRef{name: name, value: value}
		consts[name] = ref
		s.Consts = append(s.Consts, &Formula{
			Name:     name,
			Ret:      ir.Lit(value).T,
			Build:    func(*argctx.Context) (ir.Node, error) { return ir.Lit(value), nil },
			Decl:     name,
			Original: ref,
			Constant: true,
		})
		return nil
	}); err != nil {
		return nil, err
	}

	lambdas := map[string]*ir.Lambda{}
	type pending struct {
		f    *Formula
		expr string
		caps []string
	}
	var fns, forms []pending

	if err := eachField(v, "functions", func(name string, fv cue.Value) error {
		f, expr, err := parseFormula(name, fv)
		if err != nil {
			return err
		}
		if _, dup := consts[name]; dup {
			return &CompileError{Code: ErrCodeScript, Formula: name, Message: "name is also a constant", Pos: fv.Pos()}
		}
		f.Decl = name
		f.Lambda = &ir.Lambda{Name: name, Sig: f.Signature()}
		lambdas[name] = f.Lambda
		fns = append(fns, pending{f: f, expr: expr})
		return nil
	}); err != nil {
		return nil, err
	}

	if err := eachField(v, "formulas", func(name string, fv cue.Value) error {
		f, expr, err := parseFormula(name, fv)
		if err != nil {
			return err
		}
		if wrt := fv.LookupPath(cue.ParsePath("wrt")); wrt.Exists() {
			if f.Wrt, err = wrt.String(); err != nil {
				return formatCUEError(name+".wrt", err)
			}
		}
		var caps []string
		if err := eachField(fv, "captures", func(cname string, cv cue.Value) error {
			value, err := constValue(cv)
			if err != nil {
				return err
			}
			caps = append(caps, cname)
			f.Captures = append(f.Captures, value)
			return nil
		}); err != nil {
			return err
		}
		forms = append(forms, pending{f: f, expr: expr, caps: caps})
		return nil
	}); err != nil {
		return nil, err
	}

	resolver := func(caps []string) func(ctx *argctx.Context) syntax.Resolver {
		return func(ctx *argctx.Context) syntax.Resolver {
			return syntax.Resolver{
				Funcs: func(name string) (*ir.Lambda, bool) {
					l, ok := lambdas[name]
					return l, ok
				},
				Consts: func(name string) (ir.Node, bool) {
					for i, c := range caps {
						if c == name {
							return ctx.Capture(i), true
						}
					}
					if ref, ok := consts[name]; ok {
						return ir.Opaque(ref), true
					}
					return nil, false
				},
			}
		}
	}
	bind := func(p pending) *Formula {
		expr, r := p.expr, resolver(p.caps)
		p.f.Build = func(ctx *argctx.Context) (ir.Node, error) {
			return syntax.ParseExpr(expr, ctx, r(ctx))
		}
		return p.f
	}
	for _, p := range fns {
		s.Functions = append(s.Functions, bind(p))
	}
	for _, p := range forms {
		s.Formulas = append(s.Formulas, bind(p))
	}
	return s, nil
}

// All lists the script's formulas in compile order.
func (s *Script) All() []*Formula {
	all := make([]*Formula, 0, len(s.Consts)+len(s.Functions)+len(s.Formulas))
	all = append(all, s.Consts...)
	all = append(all, s.Functions...)
	return append(all, s.Formulas...)
}

// Lookup finds a formula of any kind by name.
func (s *Script) Lookup(name string) (*Formula, bool) {
	for _, f := range s.All() {
		if f.Name == name {
			return f, true
		}
	}
	return nil, false
}

func eachField(v cue.Value, path string, fn func(name string, fv cue.Value) error) error {
	fv := v.LookupPath(cue.ParsePath(path))
	if !fv.Exists() {
		return nil
	}
	iter, err := fv.Fields()
	if err != nil {
		return formatCUEError(path, err)
	}
	for iter.Next() {
		if err := fn(iter.Label(), iter.Value()); err != nil {
			return err
		}
	}
	return nil
}

func parseFormula(name string, v cue.Value) (*Formula, string, error) {
	f := &Formula{Name: name}

	retVal := v.LookupPath(cue.ParsePath("returns"))
	if !retVal.Exists() {
		return nil, "", &CompileError{Code: ErrCodeScript, Formula: name, Message: "returns is required", Pos: v.Pos()}
	}
	ret, err := typeField(name+".returns", retVal)
	if err != nil {
		return nil, "", err
	}
	f.Ret = ret

	exprVal := v.LookupPath(cue.ParsePath("expr"))
	if !exprVal.Exists() {
		return nil, "", &CompileError{Code: ErrCodeScript, Formula: name, Message: "expr is required", Pos: v.Pos()}
	}
	expr, err := exprVal.String()
	if err != nil {
		return nil, "", formatCUEError(name+".expr", err)
	}

	paramsVal := v.LookupPath(cue.ParsePath("params"))
	if paramsVal.Exists() {
		iter, err := paramsVal.List()
		if err != nil {
			return nil, "", formatCUEError(name+".params", err)
		}
		for iter.Next() {
			pv := iter.Value()
			pname, err := pv.LookupPath(cue.ParsePath("name")).String()
			if err != nil {
				return nil, "", formatCUEError(name+".params", err)
			}
			ptype, err := typeField(name+".params."+pname, pv.LookupPath(cue.ParsePath("type")))
			if err != nil {
				return nil, "", err
			}
			slot := argctx.Slot{Name: pname, Type: ptype}
			if prio := pv.LookupPath(cue.ParsePath("priority")); prio.Exists() {
				if slot.Priority, err = prio.Bool(); err != nil {
					return nil, "", formatCUEError(name+".params."+pname+".priority", err)
				}
			}
			f.Params = append(f.Params, slot)
		}
	}
	return f, expr, nil
}

func typeField(field string, v cue.Value) (ir.Type, error) {
	s, err := v.String()
	if err != nil {
		return 0, formatCUEError(field, err)
	}
	t, err := ir.ParseType(s)
	if err != nil {
		return 0, &CompileError{Code: ErrCodeScript, Formula: field, Err: err, Pos: v.Pos()}
	}
	return t, nil
}

// constValue reads a number, a bool, or a list of two or three numbers
// (vec2, vec3).
func constValue(v cue.Value) (any, error) {
	field := v.Path().String()
	switch v.Kind() {
	case cue.IntKind:
		i, err := v.Int64()
		if err != nil {
			return nil, formatCUEError(field, err)
		}
		return float64(i), nil
	case cue.FloatKind:
		f, err := v.Float64()
		if err != nil {
			return nil, formatCUEError(field, err)
		}
		return f, nil
	case cue.BoolKind:
		b, err := v.Bool()
		if err != nil {
			return nil, formatCUEError(field, err)
		}
		return b, nil
	case cue.ListKind:
		iter, err := v.List()
		if err != nil {
			return nil, formatCUEError(field, err)
		}
		var xs []float64
		for iter.Next() {
			x, err := constValue(iter.Value())
			if err != nil {
				return nil, err
			}
			f, ok := x.(float64)
			if !ok {
				return nil, &CompileError{Code: ErrCodeScript, Formula: field, Message: "vector components must be numbers", Pos: v.Pos()}
			}
			xs = append(xs, f)
		}
		switch len(xs) {
		case 2:
			return ir.V2(xs[0], xs[1]), nil
		case 3:
			return ir.V3(xs[0], xs[1], xs[2]), nil
		}
		return nil, &CompileError{Code: ErrCodeScript, Formula: field, Message: fmt.Sprintf("a vector has 2 or 3 components, got %d", len(xs)), Pos: v.Pos()}
	}
	return nil, &CompileError{Code: ErrCodeScript, Formula: field, Message: fmt.Sprintf("unsupported constant of kind %s", v.Kind()), Pos: v.Pos()}
}

// Compiled holds the callables of a compiled script by name.
type Compiled struct {
	Script   *Script
	Consts   map[string]ir.Callable
	Funcs    map[string]ir.Callable
	Formulas map[string]ir.Callable
}

// CompileScript compiles every formula of s under one file context of rec.
// rec may be nil. A formula that fails to build or differentiate is skipped
// and reported in the returned error, which joins all such failures. Baking
// still records its place, so serving reports the same failure for it and
// the formulas after it line up. A serving failure stops the script.
func (c *Compiler) CompileScript(rec *bake.Recorder, s *Script) (*Compiled, error) {
	out := &Compiled{
		Script:   s,
		Consts:   map[string]ir.Callable{},
		Funcs:    map[string]ir.Callable{},
		Formulas: map[string]ir.Callable{},
	}

	var fc *bake.FileContext
	if rec != nil {
		var err error
		if fc, err = rec.Open(s.Key); err != nil {
			return nil, &CompileError{Code: ErrCodeServe, Formula: s.Name, Err: err}
		}
		defer fc.Close()
		if rec.Mode() == bake.ModeBake {
			for _, f := range s.Functions {
				if _, err := fc.Reserve(f.Lambda); err != nil {
					return nil, &CompileError{Code: ErrCodeScript, Formula: f.Name, Err: err}
				}
			}
		}
	}

	var errs error
	groups := []struct {
		formulas []*Formula
		into     map[string]ir.Callable
	}{
		{s.Consts, out.Consts},
		{s.Functions, out.Funcs},
		{s.Formulas, out.Formulas},
	}
	for _, g := range groups {
		for _, f := range g.formulas {
			call, err := c.Compile(fc, f)
			if err != nil {
				if IsServeError(err) {
					return nil, err
				}
				errs = multierr.Append(errs, err)
				continue
			}
			g.into[f.Name] = call
		}
	}
	c.logger.Info("script compiled", "script", s.Name, "id", s.Key.MustID(), "formulas", len(s.All()), "failed", len(multierr.Errors(errs)))
	return out, errs
}

// Callable finds a compiled constant, function or formula by name.
func (c *Compiled) Callable(name string) (ir.Callable, bool) {
	for _, m := range []map[string]ir.Callable{c.Consts, c.Funcs, c.Formulas} {
		if fn, ok := m[name]; ok {
			return fn, true
		}
	}
	return nil, false
}
