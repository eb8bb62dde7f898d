package ir

import "fmt"

// Children returns the direct operands of n in evaluation order.
func Children(n Node) []Node {
	switch n := n.(type) {
	case *Const, *Param, *Var, *Hoisted:
		return nil
	case *Binary:
		return []Node{n.L, n.R}
	case *Unary:
		return []Node{n.X}
	case *Convert:
		return []Node{n.X}
	case *Cond:
		return []Node{n.Test, n.Then, n.Else}
	case *Block:
		return n.Stmts
	case *Assign:
		return []Node{n.Value}
	case *Loop:
		return []Node{n.Cond, n.Body}
	case *Try:
		return []Node{n.Body, n.Catch}
	case *Call:
		return n.Args
	case *New:
		return n.Args
	case *Member:
		return []Node{n.X}
	case *Fetch:
		return []Node{n.Index}
	case *DynGet:
		return []Node{n.Default}
	case *DynSet:
		return []Node{n.Value}
	case *Apply:
		return n.Args
	}
	panic(unknownNode(n))
}

// Walk visits n and its descendants in pre-order. Returning false from fn
// skips the children of that node.
func Walk(n Node, fn func(Node) bool) {
	if !fn(n) {
		return
	}
	for _, c := range Children(n) {
		Walk(c, fn)
	}
}

// HasEffects reports whether evaluating n can change state observable
// outside of n, or can fail to terminate.
func HasEffects(n Node) bool {
	effects := false
	Walk(n, func(m Node) bool {
		if effects {
			return false
		}
		switch m := m.(type) {
		case *Assign, *DynSet, *Loop, *Try, *Apply:
			effects = true
		case *Call:
			effects = !m.Fn.Pure
		case *New:
			effects = !m.Ctor.Pure
		}
		return !effects
	})
	return effects
}

// AssignedVars returns every variable assigned anywhere within n.
func AssignedVars(n Node) map[*Var]bool {
	out := map[*Var]bool{}
	Walk(n, func(m Node) bool {
		if a, ok := m.(*Assign); ok {
			out[a.Target] = true
		}
		return true
	})
	return out
}

// Params returns the distinct parameters referenced by n in first-use order.
func Params(n Node) []*Param {
	var out []*Param
	seen := map[*Param]bool{}
	Walk(n, func(m Node) bool {
		if p, ok := m.(*Param); ok && !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
		return true
	})
	return out
}

// Size counts the nodes in n.
func Size(n Node) int {
	count := 0
	Walk(n, func(Node) bool { count++; return true })
	return count
}

func unknownNode(n Node) error {
	return &TypeError{Op: "walk", Message: fmt.Sprintf("unknown node type %T", n)}
}
