// Package compiler is the compile entry point: it builds a formula's tree,
// optionally differentiates it, flattens it and turns it into a callable,
// recording or serving it through a bake.FileContext when one is given.
package compiler

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/exprbake/internal/argctx"
	"github.com/roach88/exprbake/internal/bake"
	"github.com/roach88/exprbake/internal/deriv"
	"github.com/roach88/exprbake/internal/eval"
	"github.com/roach88/exprbake/internal/flatten"
	"github.com/roach88/exprbake/internal/ir"
	"github.com/roach88/exprbake/internal/syntax"
)

// Formula is one compilation request.
type Formula struct {
	Name     string
	Params   []argctx.Slot
	Ret      ir.Type
	Captures []any // values read through proxy slots at run time
	// Wrt names the parameter to differentiate with respect to; empty
	// compiles the formula itself.
	Wrt   string
	Build func(c *argctx.Context) (ir.Node, error)

	// Script-level declarations.
	Decl   string
	Lambda *ir.Lambda // callable by other formulas; receives the implementation
	// Original is the host object the formula was compiled for, used to
	// share one generated function between references to it.
	Original any
	// Constant formulas take no parameters and are computed once.
	Constant bool
}

// Signature is the formula's compiled signature.
func (f *Formula) Signature() ir.Signature {
	params := make([]ir.Type, len(f.Params))
	for i, s := range f.Params {
		params[i] = s.Type
	}
	return ir.Sig(f.Ret, params...)
}

// Compiler compiles formulas.
type Compiler struct {
	flatten flatten.Options
	logger  *slog.Logger
}

// Option configures a Compiler.
type Option func(*Compiler)

// WithFlattenOptions selects the rewrites applied before compiling.
// Defaults to flatten.DefaultOptions().
func WithFlattenOptions(opts flatten.Options) Option {
	return func(c *Compiler) {
		c.flatten = opts
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Compiler) {
		c.logger = l
	}
}

// New creates a Compiler.
func New(opts ...Option) *Compiler {
	c := &Compiler{
		flatten: flatten.DefaultOptions(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.flatten.Logger == nil {
		c.flatten.Logger = c.logger
	}
	return c
}

// Tree builds f and returns the flattened tree that Compile would run.
func (c *Compiler) Tree(f *Formula) (ir.Node, error) {
	ctx := argctx.New(f.Params, f.Captures...)
	body, err := build(f, ctx)
	if err != nil {
		return nil, err
	}

	if f.Wrt != "" {
		x, ok := ctx.Lookup(f.Wrt)
		if !ok {
			return nil, &CompileError{Code: ErrCodeResolution, Formula: f.Name, Message: fmt.Sprintf("cannot differentiate with respect to unknown %q", f.Wrt)}
		}
		if !x.Type().IsFloat() {
			return nil, &CompileError{Code: ErrCodeDifferentiation, Formula: f.Name, Message: fmt.Sprintf("%s is %s, want a float", f.Wrt, x.Type())}
		}
		d, err := deriv.Derivative(body, x, ir.Lit(ir.One(x.Type())))
		if err != nil {
			return nil, &CompileError{Code: ErrCodeDifferentiation, Formula: f.Name, Err: err}
		}
		body = d
	}

	fl := flatten.New(c.flatten)
	body = fl.Flatten(body)
	c.logger.Debug("formula flattened", "formula", f.Name, "stats", fmt.Sprintf("%+v", fl.Stats()))

	if body.Type() != f.Ret {
		return nil, &CompileError{Code: ErrCodeType, Formula: f.Name, Message: fmt.Sprintf("formula yields %s, declared %s", body.Type(), f.Ret)}
	}
	return body, nil
}

// Compile returns a callable for f. With a serving fc the next baked
// artifact is returned and f is never built. With a baking fc the tree is
// also recorded; the returned callable is the same one compiled without
// baking. fc may be nil.
func (c *Compiler) Compile(fc *bake.FileContext, f *Formula) (ir.Callable, error) {
	if fc != nil && fc.Mode() == bake.ModeServe {
		call, err := fc.Next(f.Signature(), f.Captures...)
		var fe *bake.FormulaError
		if errors.As(err, &fe) {
			return nil, &CompileError{Code: fe.Code, Formula: f.Name, Message: fe.Reason, Err: err}
		}
		if err != nil {
			return nil, &CompileError{Code: ErrCodeServe, Formula: f.Name, Err: err}
		}
		if f.Lambda != nil {
			f.Lambda.SetImpl(call)
		}
		return call, nil
	}

	body, err := c.Tree(f)
	var prog *eval.Program
	if err == nil {
		if prog, err = eval.Compile(body); err != nil {
			err = &CompileError{Code: ErrCodeType, Formula: f.Name, Err: err}
		}
	}
	if err != nil {
		c.logger.Warn("formula not compiled", "formula", f.Name, "error", err)
		if fc != nil {
			// Keep the formula's place so serving lines up with this run.
			fc.Record(failed(f, err))
		}
		return nil, err
	}
	return c.finish(fc, f, body, prog), nil
}

func (c *Compiler) finish(fc *bake.FileContext, f *Formula, body ir.Node, prog *eval.Program) ir.Callable {
	call := prog.Callable()
	if len(f.Captures) > 0 {
		call = prog.Bind(f.Captures)
	}
	if f.Lambda != nil {
		f.Lambda.SetImpl(call)
	}

	if fc != nil {
		fc.Record(record(f, body))
	}
	return call
}

// failed records f as a formula that did not compile.
func failed(f *Formula, err error) *bake.GenFunc {
	g := record(f, nil)
	g.Failed, g.Broken = ErrCodeType, err.Error()
	var ce *CompileError
	if errors.As(err, &ce) {
		g.Failed, g.Broken = ce.Code, ce.detail()
	}
	return g
}

// record describes f, compiled to body, for a baking context.
func record(f *Formula, body ir.Node) *bake.GenFunc {
	names := make([]string, len(f.Params))
	for i, s := range f.Params {
		names[i] = s.Name
	}
	g := &bake.GenFunc{
		Body:     body,
		Sig:      f.Signature(),
		Params:   names,
		Original: f.Original,
		Decl:     f.Decl,
		Strategy: strategy(f),
		Proxies:  len(f.Captures),
	}
	if g.Original == nil && f.Lambda != nil {
		g.Original = f.Lambda
	}
	return g
}

func strategy(f *Formula) bake.Strategy {
	switch {
	case len(f.Captures) > 0:
		return bake.StrategyLazy
	case f.Constant && len(f.Params) == 0:
		return bake.StrategyInline
	}
	return bake.StrategyStatic
}

// build runs f.Build, turning resolution and type panics raised by IR
// builders into a CompileError.
func build(f *Formula, ctx *argctx.Context) (n ir.Node, err error) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		e, ok := r.(error)
		if !ok || classify(e) == "" {
			panic(r)
		}
		n, err = nil, &CompileError{Code: classify(e), Formula: f.Name, Err: e}
	}()
	n, err = f.Build(ctx)
	if err != nil {
		code := classify(err)
		if code == "" {
			code = ErrCodeSyntax
		}
		return nil, &CompileError{Code: code, Formula: f.Name, Err: err}
	}
	return n, nil
}

func classify(err error) string {
	switch {
	case argctx.IsResolutionError(err):
		return ErrCodeResolution
	case ir.IsTypeError(err):
		return ErrCodeType
	case deriv.IsError(err):
		return ErrCodeDifferentiation
	case syntax.IsError(err):
		return ErrCodeSyntax
	}
	return ""
}
