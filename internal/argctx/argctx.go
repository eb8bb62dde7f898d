// Package argctx resolves names and types to IR nodes while a formula is
// being built.
//
// A Context is a tree of scopes. Every scope holds ordered, typed slots;
// all scopes of one tree share a root that owns the disambiguation
// counters, the stack of active let-bound aliases and the values the
// formula captured. A Context is used by one goroutine for the duration of
// one compilation and is then discarded.
package argctx

import (
	"fmt"

	"github.com/roach88/exprbake/internal/ir"
)

// Slot declares a named, typed argument.
type Slot struct {
	Name string
	Type ir.Type
	// Priority makes the slot win type-based lookups over newer slots of the
	// same type that lack it.
	Priority bool
}

type entry struct {
	slot Slot
	node ir.Node
}

type alias struct {
	name string
	node ir.Node
}

type root struct {
	counters map[string]int
	aliases  []alias
	captures []any
	params   []*ir.Param
}

// Context is one scope of an argument context tree.
type Context struct {
	root    *root
	parent  *Context
	entries []entry
}

// New creates a root context with one parameter per slot, in order, and the
// values the formula captured from its construction environment.
func New(slots []Slot, captures ...any) *Context {
	r := &root{counters: map[string]int{}, captures: captures}
	c := &Context{root: r}
	for i, s := range slots {
		p := ir.NewParam(s.Name, s.Type, i)
		r.params = append(r.params, p)
		c.entries = append(c.entries, entry{slot: s, node: p})
	}
	return c
}

// Params returns the parameters of the root context in declaration order.
func (c *Context) Params() []*ir.Param { return c.root.params }

// Param returns the i-th parameter.
func (c *Context) Param(i int) *ir.Param { return c.root.params[i] }

// Lookup resolves name: active aliases newest first, then slots of this
// scope newest first, then enclosing scopes.
func (c *Context) Lookup(name string) (ir.Node, bool) {
	for i := len(c.root.aliases) - 1; i >= 0; i-- {
		if c.root.aliases[i].name == name {
			return c.root.aliases[i].node, true
		}
	}
	for s := c; s != nil; s = s.parent {
		for i := len(s.entries) - 1; i >= 0; i-- {
			if s.entries[i].slot.Name == name {
				return s.entries[i].node, true
			}
		}
	}
	return nil, false
}

// ByType resolves the most recently declared priority slot of type t, or the
// most recently declared slot of type t when none has priority.
func (c *Context) ByType(t ir.Type) (ir.Node, bool) {
	var fallback ir.Node
	for s := c; s != nil; s = s.parent {
		for i := len(s.entries) - 1; i >= 0; i-- {
			e := s.entries[i]
			if e.node.Type() != t {
				continue
			}
			if e.slot.Priority {
				return e.node, true
			}
			if fallback == nil {
				fallback = e.node
			}
		}
	}
	return fallback, fallback != nil
}

// Resolve looks name up and falls back to a lookup by type.
func (c *Context) Resolve(name string, t ir.Type) (ir.Node, error) {
	if n, ok := c.Lookup(name); ok {
		if n.Type() != t {
			return nil, &ResolutionError{Name: name, Type: t, Message: fmt.Sprintf("%q is %s", name, n.Type())}
		}
		return n, nil
	}
	if n, ok := c.ByType(t); ok {
		return n, nil
	}
	return nil, &ResolutionError{Name: name, Type: t}
}

// Ref is Lookup that panics with *ResolutionError when name is unknown.
// Formula bodies use it; the compile entry point recovers the panic.
func (c *Context) Ref(name string) ir.Node {
	n, ok := c.Lookup(name)
	if !ok {
		panic(&ResolutionError{Name: name})
	}
	return n
}

// RefType is ByType that panics with *ResolutionError.
func (c *Context) RefType(t ir.Type) ir.Node {
	n, ok := c.ByType(t)
	if !ok {
		panic(&ResolutionError{Type: t})
	}
	return n
}

// RefAs is Resolve that panics with *ResolutionError.
func (c *Context) RefAs(name string, t ir.Type) ir.Node {
	n, err := c.Resolve(name, t)
	if err != nil {
		panic(err)
	}
	return n
}

// With returns a child scope in which name resolves to node. The child
// shares the root bookkeeping and must not outlive the current compilation.
func (c *Context) With(name string, node ir.Node) *Context {
	return &Context{
		root:    c.root,
		parent:  c,
		entries: []entry{{slot: Slot{Name: name, Type: node.Type()}, node: node}},
	}
}

// Child returns a child scope declaring extra slots bound to the given nodes.
func (c *Context) Child(slots []Slot, nodes []ir.Node) *Context {
	if len(slots) != len(nodes) {
		panic(fmt.Sprintf("argctx: %d slots for %d nodes", len(slots), len(nodes)))
	}
	child := &Context{root: c.root, parent: c}
	for i, s := range slots {
		child.entries = append(child.entries, entry{slot: s, node: nodes[i]})
	}
	return child
}

// Fresh returns a name with the given prefix that is unique within the tree.
func (c *Context) Fresh(prefix string) string {
	n := c.root.counters[prefix]
	c.root.counters[prefix] = n + 1
	return fmt.Sprintf("%s%d", prefix, n)
}

// NewVar declares a fresh local variable.
func (c *Context) NewVar(prefix string, t ir.Type) *ir.Var {
	return ir.NewVar(c.Fresh(prefix), t)
}

// Captures returns the captured values.
func (c *Context) Captures() []any { return c.root.captures }

// Capture returns a node reading the i-th captured value. At run time the
// value is supplied through the proxy slice of the compiled function.
func (c *Context) Capture(i int) *ir.Hoisted {
	if i < 0 || i >= len(c.root.captures) {
		panic(&ResolutionError{Name: fmt.Sprintf("capture %d", i), Message: fmt.Sprintf("formula captures %d values", len(c.root.captures))})
	}
	v := c.root.captures[i]
	probe := v
	if vl, ok := v.(ir.Valuer); ok {
		probe = vl.IRValue()
	}
	t, ok := ir.TypeOfValue(probe)
	if !ok {
		panic(&ir.TypeError{Op: fmt.Sprintf("capture %d", i), Message: fmt.Sprintf("%T is not an IR value", v)})
	}
	return &ir.Hoisted{Index: i, T: t, Val: probe}
}

// Dyn reads key from the per-call side table, yielding def when absent.
// Use it for state that must persist across separate compiled calls made for
// the same entity.
func (c *Context) Dyn(key string, def ir.Node) ir.Node {
	return ir.Dyn(key, def)
}

// Store writes value under key in the per-call side table.
func (c *Context) Store(key string, value ir.Node) ir.Node {
	return ir.DynStore(key, value)
}
