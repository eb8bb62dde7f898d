package ir

import "fmt"

// Lit builds a constant from an IR value.
func Lit(v any) *Const {
	t, ok := TypeOfValue(v)
	if !ok {
		typePanic("literal", "%T is not an IR value", v)
	}
	return &Const{Val: v, T: t}
}

// F builds a float constant.
func F(v float64) *Const { return &Const{Val: v, T: TFloat} }

// I builds an int constant.
func I(v int64) *Const { return &Const{Val: v, T: TInt} }

// B builds a bool constant.
func B(v bool) *Const { return &Const{Val: v, T: TBool} }

// ZeroOf builds the zero constant of t.
func ZeroOf(t Type) *Const { return &Const{Val: Zero(t), T: t} }

// Opaque builds a constant around a Valuer, such as a *Named handle.
func Opaque(v Valuer) *Const {
	t, ok := TypeOfValue(v.IRValue())
	if !ok {
		typePanic("constant", "%T yields non-IR value %T", v, v.IRValue())
	}
	return &Const{Val: v, T: t}
}

// NewParam builds a parameter at position index.
func NewParam(name string, t Type, index int) *Param {
	return &Param{Name: name, T: t, Index: index}
}

// NewVar builds a fresh local variable.
func NewVar(name string, t Type) *Var {
	if t == TVoid {
		typePanic("var "+name, "variables cannot be void")
	}
	return &Var{Name: name, T: t}
}

// Bin builds l op r, checking operand types.
func Bin(op Op, l, r Node) *Binary {
	t, err := BinaryResult(op, l.Type(), r.Type())
	if err != nil {
		panic(err)
	}
	return &Binary{Op: op, L: l, R: r, T: t}
}

func Add(l, r Node) *Binary    { return Bin(OpAdd, l, r) }
func Sub(l, r Node) *Binary    { return Bin(OpSub, l, r) }
func Mul(l, r Node) *Binary    { return Bin(OpMul, l, r) }
func Div(l, r Node) *Binary    { return Bin(OpDiv, l, r) }
func Mod(l, r Node) *Binary    { return Bin(OpMod, l, r) }
func Lt(l, r Node) *Binary     { return Bin(OpLt, l, r) }
func Le(l, r Node) *Binary     { return Bin(OpLe, l, r) }
func Gt(l, r Node) *Binary     { return Bin(OpGt, l, r) }
func Ge(l, r Node) *Binary     { return Bin(OpGe, l, r) }
func Eq(l, r Node) *Binary     { return Bin(OpEq, l, r) }
func Ne(l, r Node) *Binary     { return Bin(OpNe, l, r) }
func And(l, r Node) *Binary    { return Bin(OpAnd, l, r) }
func Or(l, r Node) *Binary     { return Bin(OpOr, l, r) }
func BitAnd(l, r Node) *Binary { return Bin(OpBitAnd, l, r) }

// Un builds op x, checking the operand type.
func Un(op Op, x Node) *Unary {
	t, err := UnaryResult(op, x.Type())
	if err != nil {
		panic(err)
	}
	return &Unary{Op: op, X: x, T: t}
}

func Neg(x Node) *Unary { return Un(OpNeg, x) }
func Not(x Node) *Unary { return Un(OpNot, x) }

// Conv builds a numeric conversion.
func Conv(x Node, t Type) *Convert {
	if !x.Type().IsNumeric() || !t.IsNumeric() {
		panic(&TypeError{Op: "convert to " + t.String(), Got: []Type{x.Type()}})
	}
	return &Convert{X: x, T: t}
}

// If builds a conditional expression; both branches must share a type.
func If(test, then, els Node) *Cond {
	if test.Type() != TBool {
		typePanic("if", "test is %s, want bool", test.Type())
	}
	if then.Type() != els.Type() {
		typePanic("if", "branches differ: %s and %s", then.Type(), els.Type())
	}
	return &Cond{Test: test, Then: then, Else: els, T: then.Type()}
}

// When builds a statement conditional. els may be nil.
func When(test, then, els Node) *Cond {
	if test.Type() != TBool {
		typePanic("when", "test is %s, want bool", test.Type())
	}
	if els == nil {
		els = Void()
	}
	return &Cond{Test: test, Then: then, Else: els, T: TVoid}
}

// Seq builds a block whose value is its last statement.
func Seq(stmts ...Node) *Block {
	return Scope(nil, stmts...)
}

// Scope builds a block declaring vars.
func Scope(vars []*Var, stmts ...Node) *Block {
	t := TVoid
	if len(stmts) > 0 {
		t = stmts[len(stmts)-1].Type()
	}
	return &Block{Vars: vars, Stmts: stmts, T: t}
}

// Void builds a block with no value.
func Void(stmts ...Node) *Block {
	return &Block{Stmts: stmts, T: TVoid}
}

// Set builds an assignment.
func Set(v *Var, value Node) *Assign {
	if v.T != value.Type() {
		typePanic("assign "+v.Name, "value is %s, variable is %s", value.Type(), v.T)
	}
	return &Assign{Target: v, Value: value}
}

// While builds a loop.
func While(cond, body Node) *Loop {
	if cond.Type() != TBool {
		typePanic("while", "condition is %s, want bool", cond.Type())
	}
	return &Loop{Cond: cond, Body: body}
}

// TryCatch builds a try block. catch may be nil.
func TryCatch(body, catch Node) *Try {
	if catch == nil {
		catch = Void()
	}
	return &Try{Body: body, Catch: catch}
}

// CallFn builds a library call.
func CallFn(fn *Func, args ...Node) *Call {
	if len(args) != len(fn.Params) {
		typePanic(fn.GoName(), "got %d arguments, want %d", len(args), len(fn.Params))
	}
	for i, a := range args {
		if a.Type() != fn.Params[i] {
			typePanic(fn.GoName(), "argument %d is %s, want %s", i, a.Type(), fn.Params[i])
		}
	}
	return &Call{Fn: fn, Args: args}
}

// Construct builds a constructor call.
func Construct(c *Ctor, args ...Node) *New {
	if len(args) != len(c.Params) {
		typePanic(c.Name, "got %d arguments, want %d", len(args), len(c.Params))
	}
	for i, a := range args {
		if a.Type() != c.Params[i] {
			typePanic(c.Name, "argument %d is %s, want %s", i, a.Type(), c.Params[i])
		}
	}
	return &New{Ctor: c, Args: args}
}

// Field builds a member access.
func Field(x Node, name string) *Member {
	m, ok := LookupMember(x.Type(), name)
	if !ok {
		typePanic("."+name, "%s has no member %s", x.Type(), name)
	}
	return &Member{X: x, M: m}
}

// FetchAt builds a table read.
func FetchAt(t *Table, idx Node) *Fetch {
	if idx.Type() != TInt {
		typePanic("fetch "+t.Name, "index is %s, want int", idx.Type())
	}
	return &Fetch{Table: t, Index: idx}
}

// Dyn builds a side-table read with a default.
func Dyn(key string, def Node) *DynGet {
	if def.Type() == TVoid {
		typePanic(fmt.Sprintf("dyn %q", key), "default cannot be void")
	}
	return &DynGet{Key: key, Default: def}
}

// DynStore builds a side-table write.
func DynStore(key string, v Node) *DynSet {
	if v.Type() == TVoid {
		typePanic(fmt.Sprintf("store %q", key), "value cannot be void")
	}
	return &DynSet{Key: key, Value: v}
}

// Invoke builds a call to a script-level function.
func Invoke(fn *Lambda, args ...Node) *Apply {
	if len(args) != len(fn.Sig.Params) {
		typePanic(fn.Name, "got %d arguments, want %d", len(args), len(fn.Sig.Params))
	}
	for i, a := range args {
		if a.Type() != fn.Sig.Params[i] {
			typePanic(fn.Name, "argument %d is %s, want %s", i, a.Type(), fn.Sig.Params[i])
		}
	}
	return &Apply{Fn: fn, Args: args}
}
