package argctx

import "github.com/roach88/exprbake/internal/ir"

// Binding is an active alias pushed by Bind. It must be released exactly
// once, in reverse order of binding.
type Binding struct {
	c        *Context
	depth    int
	name     string
	released bool
}

// Bind makes name resolve to node until the returned binding is released.
//
//	b := c.Bind("t", tmp)
//	defer b.Release()
func (c *Context) Bind(name string, node ir.Node) *Binding {
	c.root.aliases = append(c.root.aliases, alias{name: name, node: node})
	return &Binding{c: c, depth: len(c.root.aliases), name: name}
}

// Release pops the alias. Releasing out of order or twice panics with
// *ScopeError: the alias stack is corrupt and the compilation cannot go on.
func (b *Binding) Release() {
	if b.released {
		panic(&ScopeError{Name: b.name, Message: "released twice"})
	}
	if len(b.c.root.aliases) != b.depth {
		panic(&ScopeError{Name: b.name, Message: "released out of order"})
	}
	b.released = true
	b.c.root.aliases = b.c.root.aliases[:b.depth-1]
}

// Let declares a local variable initialised to value, binds name to it while
// body builds, and returns a block that assigns the variable and then
// evaluates body. The alias is released even when body panics.
func (c *Context) Let(name string, value ir.Node, body func(v *ir.Var) ir.Node) *ir.Block {
	v := c.NewVar(name, value.Type())
	b := c.Bind(name, v)
	defer b.Release()
	inner := body(v)
	return ir.Scope([]*ir.Var{v}, ir.Set(v, value), inner)
}

// Depth is the number of active aliases.
func (c *Context) Depth() int { return len(c.root.aliases) }
