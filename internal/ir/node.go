package ir

// Node is a sealed interface over the IR node variants.
// Only types in this package implement it; rewriters switch exhaustively on
// the concrete pointer types below.
//
// Nodes are immutable once built. Rewrites always allocate new nodes, so a
// subtree can be shared between trees and memoized by pointer.
type Node interface {
	Type() Type
	node() // Marker method - seals interface to this package
}

// Const is a literal value. Val is an IR value (see TypeOfValue), a *Named
// handle, or a Valuer.
type Const struct {
	Val any
	T   Type
}

// Param is a formula parameter. Index is its position in Env.Args.
// Params are compared by identity.
type Param struct {
	Name  string
	T     Type
	Index int
}

// Var is a local variable. Vars are compared by identity; Name is only a hint
// for printing.
type Var struct {
	Name string
	T    Type
}

// Hoisted reads a value captured by the formula at construction time. At run
// time the value comes from the proxy slice bound to the compiled function;
// Val is the value seen while building.
type Hoisted struct {
	Index int
	T     Type
	Val   any
}

// Binary applies a binary operator.
type Binary struct {
	Op   Op
	L, R Node
	T    Type
}

// Unary applies a unary operator.
type Unary struct {
	Op Op
	X  Node
	T  Type
}

// Convert is a numeric conversion to T.
type Convert struct {
	X Node
	T Type
}

// Cond evaluates Then or Else depending on Test. T is TVoid when the
// conditional is used as a statement.
type Cond struct {
	Test, Then, Else Node
	T                Type
}

// Block evaluates Stmts in order; its value is the last statement's value,
// or nothing when T is TVoid. Vars lists the variables scoped to the block.
type Block struct {
	Vars  []*Var
	Stmts []Node
	T     Type
}

// Assign stores Value into Target. The node's value is the stored value.
type Assign struct {
	Target *Var
	Value  Node
}

// Loop repeats Body while Cond holds.
type Loop struct {
	Cond Node
	Body Node
}

// Try runs Body; if Body panics, Catch runs instead of propagating.
type Try struct {
	Body  Node
	Catch Node
}

// Call invokes a library function.
type Call struct {
	Fn   *Func
	Args []Node
}

// New constructs a value type.
type New struct {
	Ctor *Ctor
	Args []Node
}

// Member reads a field or computed property of X.
type Member struct {
	X Node
	M *MemberInfo
}

// Fetch reads entry Index of a lookup table.
type Fetch struct {
	Table *Table
	Index Node
}

// DynGet reads Key from the per-call side table, or Default when absent.
type DynGet struct {
	Key     string
	Default Node
}

// DynSet writes Value under Key in the per-call side table.
type DynSet struct {
	Key   string
	Value Node
}

// Apply calls a script-level function.
type Apply struct {
	Fn   *Lambda
	Args []Node
}

func (n *Const) Type() Type   { return n.T }
func (n *Param) Type() Type   { return n.T }
func (n *Var) Type() Type     { return n.T }
func (n *Hoisted) Type() Type { return n.T }
func (n *Binary) Type() Type  { return n.T }
func (n *Unary) Type() Type   { return n.T }
func (n *Convert) Type() Type { return n.T }
func (n *Cond) Type() Type    { return n.T }
func (n *Block) Type() Type   { return n.T }
func (n *Assign) Type() Type  { return n.Target.T }
func (n *Loop) Type() Type    { return TVoid }
func (n *Try) Type() Type     { return TVoid }
func (n *Call) Type() Type    { return n.Fn.Ret }
func (n *New) Type() Type     { return n.Ctor.Ret }
func (n *Member) Type() Type  { return n.M.T }
func (n *Fetch) Type() Type   { return TFloat }
func (n *DynGet) Type() Type  { return n.Default.Type() }
func (n *DynSet) Type() Type  { return TVoid }
func (n *Apply) Type() Type   { return n.Fn.Sig.Ret }

func (*Const) node()   {}
func (*Param) node()   {}
func (*Var) node()     {}
func (*Hoisted) node() {}
func (*Binary) node()  {}
func (*Unary) node()   {}
func (*Convert) node() {}
func (*Cond) node()    {}
func (*Block) node()   {}
func (*Assign) node()  {}
func (*Loop) node()    {}
func (*Try) node()     {}
func (*Call) node()    {}
func (*New) node()     {}
func (*Member) node()  {}
func (*Fetch) node()   {}
func (*DynGet) node()  {}
func (*DynSet) node()  {}
func (*Apply) node()   {}

// Valuer is implemented by host objects that stand in for an IR constant.
// The printer may render them symbolically; evaluation uses IRValue.
type Valuer interface {
	IRValue() any
}

// Named is a constant that generated code refers to by a qualified Go name
// (for example "tuning.BaseSpeed") instead of by its literal value.
type Named struct {
	Name   string
	Import string // import path providing Name, empty for builtins
	Value  any
}

// IRValue implements Valuer.
func (n *Named) IRValue() any { return n.Value }

// ConstValue returns the literal IR value of n when n is a plain constant.
// Named and Valuer constants are deliberately not reported: folding them
// would erase the symbolic reference.
func ConstValue(n Node) (any, bool) {
	c, ok := n.(*Const)
	if !ok {
		return nil, false
	}
	if _, isIR := TypeOfValue(c.Val); !isIR {
		return nil, false
	}
	return c.Val, true
}

// IsConst reports whether n is a plain literal constant.
func IsConst(n Node) bool {
	_, ok := ConstValue(n)
	return ok
}

// Value resolves the run-time value of a constant node's payload.
func (n *Const) Value() any {
	if v, ok := n.Val.(Valuer); ok {
		return v.IRValue()
	}
	return n.Val
}
