// Package flatten is the optimizing rewriter: constant folding, algebraic
// identities, pure-call evaluation, constant propagation and lookup-table
// substitution for the domain trigonometric functions.
//
// The rewrite is a single bottom-up pass that always allocates new nodes.
// Its output is a fixed point: flattening it again yields the same tree.
package flatten

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/roach88/exprbake/internal/ir"
	"github.com/roach88/exprbake/internal/mathlib"
)

// Options selects the rewrites applied.
type Options struct {
	ReducePureCalls      bool // evaluate whitelisted library calls with constant arguments
	ReduceConstantFields bool // read plain fields of constant values at compile time
	// Table replaces domain trigonometric calls with lookups when non-nil.
	Table  *ir.Table
	Logger *slog.Logger
}

// DefaultOptions enables every rewrite with the process-wide sine table.
func DefaultOptions() Options {
	return Options{ReducePureCalls: true, ReduceConstantFields: true, Table: mathlib.SineTable()}
}

// Stats counts the rewrites performed by one Flatten call.
type Stats struct {
	Folds         int // operators, conversions and constructors evaluated
	Identities    int // algebraic identities applied
	Calls         int // pure calls evaluated
	Lookups       int // trigonometric calls replaced by table reads
	Propagations  int // variable reads replaced by constants
	DeadBranches  int // conditionals resolved at compile time
	ConstantReads int // fields and table entries read at compile time
}

// Flattener holds the state of one rewrite. It is not safe for concurrent use.
type Flattener struct {
	opts   Options
	log    *slog.Logger
	consts map[*ir.Var]*ir.Const
	// suspended > 0 while inside a loop, a try block or an unresolved branch
	suspended int
	temps     int
	stats     Stats
}

// New creates a Flattener.
func New(opts Options) *Flattener {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Flattener{opts: opts, log: log}
}

// Flatten rewrites n with a fresh Flattener.
func Flatten(n ir.Node, opts Options) ir.Node {
	return New(opts).Flatten(n)
}

// Flatten rewrites n. Each call starts with empty propagation state.
func (f *Flattener) Flatten(n ir.Node) ir.Node {
	f.consts = map[*ir.Var]*ir.Const{}
	f.suspended = 0
	f.stats = Stats{}
	out := f.visit(n)
	f.log.Debug("flattened",
		"nodes_in", ir.Size(n),
		"nodes_out", ir.Size(out),
		"folds", f.stats.Folds,
		"identities", f.stats.Identities,
		"lookups", f.stats.Lookups,
		"propagations", f.stats.Propagations)
	return out
}

// Stats returns the counters of the last Flatten call.
func (f *Flattener) Stats() Stats { return f.stats }

func (f *Flattener) visit(n ir.Node) ir.Node {
	switch n := n.(type) {
	case *ir.Const, *ir.Param, *ir.Hoisted:
		return n
	case *ir.Var:
		if c, ok := f.consts[n]; ok {
			f.stats.Propagations++
			return c
		}
		return n
	case *ir.Binary:
		return f.binary(n.Op, f.visit(n.L), f.visit(n.R), n)
	case *ir.Unary:
		return f.unary(n.Op, f.visit(n.X), n)
	case *ir.Convert:
		return f.convert(f.visit(n.X), n.T)
	case *ir.Cond:
		return f.cond(n)
	case *ir.Block:
		return f.block(n)
	case *ir.Assign:
		return f.assign(n)
	case *ir.Loop:
		return f.loop(n)
	case *ir.Try:
		f.invalidate(n)
		f.suspended++
		body, catch := f.visit(n.Body), f.visit(n.Catch)
		f.suspended--
		return &ir.Try{Body: body, Catch: catch}
	case *ir.Call:
		return f.call(n.Fn, f.visitAll(n.Args))
	case *ir.New:
		return f.construct(n.Ctor, f.visitAll(n.Args))
	case *ir.Member:
		return f.member(f.visit(n.X), n.M)
	case *ir.Fetch:
		idx := f.visit(n.Index)
		if v, ok := ir.ConstValue(idx); ok {
			f.stats.ConstantReads++
			return ir.F(n.Table.At(v.(int64)))
		}
		return &ir.Fetch{Table: n.Table, Index: idx}
	case *ir.DynGet:
		return &ir.DynGet{Key: n.Key, Default: f.visit(n.Default)}
	case *ir.DynSet:
		return &ir.DynSet{Key: n.Key, Value: f.visit(n.Value)}
	case *ir.Apply:
		return &ir.Apply{Fn: n.Fn, Args: f.visitAll(n.Args)}
	}
	panic(fmt.Sprintf("flatten: unknown node %T", n))
}

func (f *Flattener) visitAll(ns []ir.Node) []ir.Node {
	out := make([]ir.Node, len(ns))
	for i, a := range ns {
		out[i] = f.visit(a)
	}
	return out
}

// invalidate forgets constants for every variable assigned within n.
func (f *Flattener) invalidate(n ir.Node) {
	if len(f.consts) == 0 {
		return
	}
	for v := range ir.AssignedVars(n) {
		delete(f.consts, v)
	}
}

func (f *Flattener) assign(n *ir.Assign) ir.Node {
	val := f.visit(n.Value)
	if c, ok := val.(*ir.Const); ok && ir.IsConst(c) && f.suspended == 0 {
		f.consts[n.Target] = c
	} else {
		delete(f.consts, n.Target)
	}
	return &ir.Assign{Target: n.Target, Value: val}
}

func (f *Flattener) cond(n *ir.Cond) ir.Node {
	test := f.visit(n.Test)
	if v, ok := ir.ConstValue(test); ok {
		f.stats.DeadBranches++
		taken := n.Else
		if v.(bool) {
			taken = n.Then
		}
		out := f.visit(taken)
		if n.T == ir.TVoid && out.Type() != ir.TVoid {
			return ir.Void(out)
		}
		return out
	}
	f.invalidate(n.Then)
	f.invalidate(n.Else)
	f.suspended++
	then, els := f.visit(n.Then), f.visit(n.Else)
	f.suspended--
	return &ir.Cond{Test: test, Then: then, Else: els, T: n.T}
}

func (f *Flattener) loop(n *ir.Loop) ir.Node {
	f.invalidate(n)
	f.suspended++
	cond := f.visit(n.Cond)
	body := f.visit(n.Body)
	f.suspended--
	if v, ok := ir.ConstValue(cond); ok && !v.(bool) {
		f.stats.DeadBranches++
		return ir.Void()
	}
	return &ir.Loop{Cond: cond, Body: body}
}

func (f *Flattener) block(n *ir.Block) ir.Node {
	stmts := make([]ir.Node, 0, len(n.Stmts))
	for i, s := range n.Stmts {
		out := f.visit(s)
		if i < len(n.Stmts)-1 && isInert(out) {
			continue
		}
		stmts = append(stmts, out)
	}
	if len(n.Vars) == 0 && len(stmts) == 1 && stmts[0].Type() == n.T {
		return stmts[0]
	}
	return &ir.Block{Vars: n.Vars, Stmts: stmts, T: n.T}
}

// isInert reports whether a statement can be dropped when its value is unused.
func isInert(n ir.Node) bool {
	switch n := n.(type) {
	case *ir.Const, *ir.Param, *ir.Var, *ir.Hoisted:
		return true
	case *ir.Block:
		return len(n.Stmts) == 0
	}
	return false
}

func (f *Flattener) binary(op ir.Op, l, r ir.Node, orig *ir.Binary) ir.Node {
	lv, lc := ir.ConstValue(l)
	rv, rc := ir.ConstValue(r)
	if lc && rc {
		if v, err := ir.EvalBinary(op, lv, rv); err == nil {
			f.stats.Folds++
			return ir.Lit(v)
		}
	}
	t := orig.T
	switch op {
	case ir.OpAdd:
		if rc && ir.IsZeroValue(rv) && l.Type() == t {
			return f.identity(l)
		}
		if lc && ir.IsZeroValue(lv) && r.Type() == t {
			return f.identity(r)
		}
	case ir.OpSub:
		if rc && ir.IsZeroValue(rv) {
			return f.identity(l)
		}
	case ir.OpMul:
		if rc && ir.IsOneValue(rv) && l.Type() == t {
			return f.identity(l)
		}
		if lc && ir.IsOneValue(lv) && r.Type() == t {
			return f.identity(r)
		}
		if rc && ir.IsZeroValue(rv) && !ir.HasEffects(l) {
			return f.identity(ir.ZeroOf(t))
		}
		if lc && ir.IsZeroValue(lv) && !ir.HasEffects(r) {
			return f.identity(ir.ZeroOf(t))
		}
	case ir.OpDiv:
		if rc && ir.IsOneValue(rv) {
			return f.identity(l)
		}
		if lc && ir.IsZeroValue(lv) && l.Type() == t && !ir.HasEffects(r) {
			return f.identity(ir.ZeroOf(t))
		}
	case ir.OpAnd:
		if lc {
			if lv.(bool) {
				return f.identity(r)
			}
			return f.identity(l)
		}
		if rc {
			if rv.(bool) {
				return f.identity(l)
			}
			if !ir.HasEffects(l) {
				return f.identity(r)
			}
		}
	case ir.OpOr:
		if lc {
			if lv.(bool) {
				return f.identity(l)
			}
			return f.identity(r)
		}
		if rc {
			if !rv.(bool) {
				return f.identity(l)
			}
			if !ir.HasEffects(l) {
				return f.identity(r)
			}
		}
	}
	if l == orig.L && r == orig.R {
		return orig
	}
	return &ir.Binary{Op: op, L: l, R: r, T: t}
}

func (f *Flattener) identity(n ir.Node) ir.Node {
	f.stats.Identities++
	return n
}

func (f *Flattener) unary(op ir.Op, x ir.Node, orig *ir.Unary) ir.Node {
	if v, ok := ir.ConstValue(x); ok {
		if out, err := ir.EvalUnary(op, v); err == nil {
			f.stats.Folds++
			return ir.Lit(out)
		}
	}
	if inner, ok := x.(*ir.Unary); ok && inner.Op == op {
		return f.identity(inner.X)
	}
	if x == orig.X {
		return orig
	}
	return &ir.Unary{Op: op, X: x, T: orig.T}
}

func (f *Flattener) convert(x ir.Node, t ir.Type) ir.Node {
	if x.Type() == t {
		return x
	}
	if v, ok := ir.ConstValue(x); ok {
		if out, err := ir.EvalConvert(v, t); err == nil {
			f.stats.Folds++
			return ir.Lit(out)
		}
	}
	// After an exact widening the outer conversion sees the value the
	// widening was given, so it can take it directly. Any other inner
	// conversion rounds or truncates and must stay.
	if inner, ok := x.(*ir.Convert); ok && ir.Exact(inner.X.Type(), inner.T) {
		f.stats.Identities++
		return f.convert(inner.X, t)
	}
	return &ir.Convert{X: x, T: t}
}

func (f *Flattener) construct(c *ir.Ctor, args []ir.Node) ir.Node {
	if c.Pure {
		if vals, ok := constArgs(args); ok {
			f.stats.Folds++
			return ir.Lit(c.Impl(vals))
		}
	}
	return &ir.New{Ctor: c, Args: args}
}

func (f *Flattener) member(x ir.Node, m *ir.MemberInfo) ir.Node {
	if f.opts.ReduceConstantFields && !m.Computed {
		if v, ok := ir.ConstValue(x); ok {
			f.stats.ConstantReads++
			return ir.Lit(m.Get(v))
		}
	}
	return &ir.Member{X: x, M: m}
}

func (f *Flattener) call(fn *ir.Func, args []ir.Node) ir.Node {
	if fn.Trig != ir.TrigNone && fn.Lib == mathlib.Lib && f.opts.Table != nil {
		return f.lookup(fn, args[0])
	}
	if f.opts.ReducePureCalls && fn.Pure && mathlib.IsPureLib(fn.Lib) {
		if vals, ok := constArgs(args); ok {
			f.stats.Calls++
			return ir.Lit(fn.Impl(vals))
		}
	}
	return &ir.Call{Fn: fn, Args: args}
}

// lookup rewrites a domain trig call into table reads. The table spans one
// turn, so the index is angle*len/turn masked to the table size; cosine is
// sine a quarter turn later.
func (f *Flattener) lookup(fn *ir.Func, angle ir.Node) ir.Node {
	f.stats.Lookups++
	tab := f.opts.Table
	turn := 2 * math.Pi
	if fn.Degrees {
		turn = 360
	}
	scale := float64(tab.Len()) / turn
	quarter := int64(tab.Len() / 4)

	if v, ok := ir.ConstValue(angle); ok {
		idx, _ := ir.EvalConvert(v.(float64)*scale, ir.TInt)
		i := idx.(int64)
		switch fn.Trig {
		case ir.TrigSin:
			return ir.F(tab.At(i))
		case ir.TrigCos:
			return ir.F(tab.At(i + quarter))
		default:
			return ir.Lit(ir.V2(tab.At(i+quarter), tab.At(i)))
		}
	}

	index := ir.Conv(ir.Mul(angle, ir.F(scale)), ir.TInt)
	fetch := func(idx ir.Node, offset int64) ir.Node {
		if offset != 0 {
			idx = ir.Add(idx, ir.I(offset))
		}
		return ir.FetchAt(tab, ir.BitAnd(idx, ir.I(tab.Mask())))
	}
	switch fn.Trig {
	case ir.TrigSin:
		return fetch(index, 0)
	case ir.TrigCos:
		return fetch(index, quarter)
	}
	tmp := ir.NewVar(fmt.Sprintf("trig%d", f.temps), ir.TInt)
	f.temps++
	return ir.Scope([]*ir.Var{tmp},
		ir.Set(tmp, index),
		ir.Construct(ir.CtorVec2, fetch(tmp, quarter), fetch(tmp, 0)))
}

func constArgs(args []ir.Node) ([]any, bool) {
	vals := make([]any, len(args))
	for i, a := range args {
		v, ok := ir.ConstValue(a)
		if !ok {
			return nil, false
		}
		vals[i] = v
	}
	return vals, true
}
