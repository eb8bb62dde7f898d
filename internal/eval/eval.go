// Package eval compiles IR trees into Go closures. It is the run-time
// compiler used when a formula is not served from baked artifacts, and the
// backend that executes baked source re-read from disk.
package eval

import (
	"fmt"

	"github.com/roach88/exprbake/internal/ir"
)

type frame struct {
	env   *ir.Env
	proxy []any
	vars  []any
}

type code func(fr *frame) any

// Program is a compiled tree. Bind it to proxy values to obtain a callable.
type Program struct {
	root  code
	zeros []any
	ret   ir.Type
}

// Compile translates n into a Program.
func Compile(n ir.Node) (p *Program, err error) {
	c := &compiler{slots: map[*ir.Var]int{}}
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(*Error); ok {
				p, err = nil, e
				return
			}
			panic(r)
		}
	}()
	root := c.compile(n)
	return &Program{root: root, zeros: c.zeros, ret: n.Type()}, nil
}

// Ret is the result type.
func (p *Program) Ret() ir.Type { return p.ret }

// Bind returns a callable reading hoisted values from proxy. With a nil
// proxy, hoisted nodes yield the value seen when the tree was built.
func (p *Program) Bind(proxy []any) ir.Callable {
	return func(env *ir.Env) any {
		fr := &frame{env: env, proxy: proxy}
		if len(p.zeros) > 0 {
			fr.vars = make([]any, len(p.zeros))
			copy(fr.vars, p.zeros)
		}
		return p.root(fr)
	}
}

// Callable is Bind(nil).
func (p *Program) Callable() ir.Callable { return p.Bind(nil) }

// Eval compiles and runs n once.
func Eval(n ir.Node, env *ir.Env) (any, error) {
	p, err := Compile(n)
	if err != nil {
		return nil, err
	}
	return p.Callable()(env), nil
}

// Error reports a tree the closure compiler cannot translate.
type Error struct {
	Node    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("eval: %s: %s", e.Node, e.Message)
}

type compiler struct {
	slots map[*ir.Var]int
	zeros []any
}

func (c *compiler) slot(v *ir.Var) int {
	if i, ok := c.slots[v]; ok {
		return i
	}
	i := len(c.zeros)
	c.slots[v] = i
	c.zeros = append(c.zeros, ir.Zero(v.T))
	return i
}

func (c *compiler) all(ns []ir.Node) []code {
	out := make([]code, len(ns))
	for i, n := range ns {
		out[i] = c.compile(n)
	}
	return out
}

func run(cs []code, fr *frame) []any {
	vals := make([]any, len(cs))
	for i, a := range cs {
		vals[i] = a(fr)
	}
	return vals
}

func (c *compiler) compile(n ir.Node) code {
	switch n := n.(type) {
	case *ir.Const:
		v := n.Value()
		return func(*frame) any { return v }
	case *ir.Param:
		i := n.Index
		return func(fr *frame) any { return fr.env.Args[i] }
	case *ir.Var:
		i := c.slot(n)
		return func(fr *frame) any { return fr.vars[i] }
	case *ir.Hoisted:
		i, val := n.Index, n.Val
		return func(fr *frame) any {
			if fr.proxy != nil {
				return fr.proxy[i]
			}
			return val
		}
	case *ir.Binary:
		return c.binary(n)
	case *ir.Unary:
		x, op := c.compile(n.X), n.Op
		return func(fr *frame) any {
			v, err := ir.EvalUnary(op, x(fr))
			if err != nil {
				panic(err)
			}
			return v
		}
	case *ir.Convert:
		return c.convert(n)
	case *ir.Cond:
		test, then, els := c.compile(n.Test), c.compile(n.Then), c.compile(n.Else)
		void := n.T == ir.TVoid
		return func(fr *frame) any {
			var v any
			if test(fr).(bool) {
				v = then(fr)
			} else {
				v = els(fr)
			}
			if void {
				return nil
			}
			return v
		}
	case *ir.Block:
		for _, v := range n.Vars {
			c.slot(v)
		}
		stmts := c.all(n.Stmts)
		void := n.T == ir.TVoid
		return func(fr *frame) any {
			var v any
			for _, s := range stmts {
				v = s(fr)
			}
			if void {
				return nil
			}
			return v
		}
	case *ir.Assign:
		i, val := c.slot(n.Target), c.compile(n.Value)
		return func(fr *frame) any {
			v := val(fr)
			fr.vars[i] = v
			return v
		}
	case *ir.Loop:
		cond, body := c.compile(n.Cond), c.compile(n.Body)
		return func(fr *frame) any {
			for cond(fr).(bool) {
				body(fr)
			}
			return nil
		}
	case *ir.Try:
		body, catch := c.compile(n.Body), c.compile(n.Catch)
		return func(fr *frame) any {
			if !protect(body, fr) {
				catch(fr)
			}
			return nil
		}
	case *ir.Call:
		args, impl := c.all(n.Args), n.Fn.Impl
		if impl == nil {
			panic(&Error{Node: n.Fn.GoName(), Message: "function has no implementation"})
		}
		return func(fr *frame) any { return impl(run(args, fr)) }
	case *ir.New:
		args, impl := c.all(n.Args), n.Ctor.Impl
		return func(fr *frame) any { return impl(run(args, fr)) }
	case *ir.Member:
		x, get := c.compile(n.X), n.M.Get
		return func(fr *frame) any { return get(x(fr)) }
	case *ir.Fetch:
		idx, tab := c.compile(n.Index), n.Table
		return func(fr *frame) any { return tab.At(idx(fr).(int64)) }
	case *ir.DynGet:
		def, key := c.compile(n.Default), n.Key
		return func(fr *frame) any { return fr.env.State.GetAny(key, def(fr)) }
	case *ir.DynSet:
		val, key := c.compile(n.Value), n.Key
		return func(fr *frame) any {
			fr.env.State.Set(key, val(fr))
			return nil
		}
	case *ir.Apply:
		args, fn := c.all(n.Args), n.Fn
		return func(fr *frame) any { return fn.Invoke(fr.env.With(run(args, fr)...)) }
	}
	panic(&Error{Node: fmt.Sprintf("%T", n), Message: "unknown node"})
}

// protect runs body and reports whether it completed without panicking.
func protect(body code, fr *frame) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	body(fr)
	return true
}
