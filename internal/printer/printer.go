// Package printer emits Go source for IR trees.
//
// A printed function has the form
//
//	func name(proxy []any, env *ir.Env) T
//
// Parameters are read from env.Args, hoisted values from proxy and the side
// table through env.State. Conditionals, blocks and assignments nested in
// expressions are lowered to statements over temporaries; operands evaluated
// before such a lowering are spilled first so evaluation order is kept.
package printer

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/roach88/exprbake/internal/ir"
)

// BakeImport is the import path of the runtime helpers used by printed code.
const BakeImport = "github.com/roach88/exprbake/internal/bake"

// Lookup gives a textual form to a constant the printer does not know.
type Lookup func(v any) (expr, importPath string, ok bool)

// Printer prints functions. Refs and Lookup are optional.
type Printer struct {
	Refs   *Refs
	Lookup Lookup
}

// Func is a function to print.
type Func struct {
	Name string
	Body ir.Node
	Ret  ir.Type
}

// Output is a printed function.
type Output struct {
	Source  string
	Imports []string
}

// PrintFunc prints f. It fails with *Error when some node or constant has no
// textual form; it never returns source that would not compile.
func (p *Printer) PrintFunc(f Func) (out Output, err error) {
	if f.Body.Type() != f.Ret {
		return Output{}, &Error{Node: f.Name, Message: fmt.Sprintf("body is %s, function returns %s", f.Body.Type(), f.Ret)}
	}
	w := &writer{p: p, imports: map[string]bool{ir.ImportPath: true}, vars: map[*ir.Var]string{}, used: map[string]bool{}}
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(*Error); ok {
				out, err = Output{}, e
				return
			}
			panic(r)
		}
	}()

	w.collectVars(f.Body)
	w.indent = 1
	if f.Ret == ir.TVoid {
		w.stmt(f.Body)
		w.line("return struct{}{}")
	} else {
		w.line("return %s", w.expr(f.Body))
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "func %s(proxy []any, env *ir.Env) %s {\n", f.Name, f.Ret.GoType())
	for _, v := range w.order {
		fmt.Fprintf(&sb, "\tvar %s %s\n\t_ = %s\n", w.vars[v], v.T.GoType(), w.vars[v])
	}
	sb.WriteString(w.body.String())
	sb.WriteString("}\n")

	imports := make([]string, 0, len(w.imports))
	for imp := range w.imports {
		imports = append(imports, imp)
	}
	sort.Strings(imports)
	return Output{Source: sb.String(), Imports: imports}, nil
}

type writer struct {
	p       *Printer
	imports map[string]bool
	vars    map[*ir.Var]string
	order   []*ir.Var
	used    map[string]bool
	temps   int
	indent  int
	body    strings.Builder
}

func fail(node, format string, args ...any) {
	panic(&Error{Node: node, Message: fmt.Sprintf(format, args...)})
}

func (w *writer) line(format string, args ...any) {
	w.body.WriteString(strings.Repeat("\t", w.indent))
	fmt.Fprintf(&w.body, format, args...)
	w.body.WriteByte('\n')
}

func (w *writer) use(importPath string) {
	if importPath != "" {
		w.imports[importPath] = true
	}
}

func (w *writer) temp() string {
	t := fmt.Sprintf("t%d", w.temps)
	w.temps++
	return t
}

func (w *writer) collectVars(n ir.Node) {
	add := func(v *ir.Var) {
		if _, ok := w.vars[v]; ok {
			return
		}
		base := "l_" + sanitize(v.Name)
		name := base
		for i := 2; w.used[name]; i++ {
			name = base + "_" + strconv.Itoa(i)
		}
		w.used[name] = true
		w.vars[v] = name
		w.order = append(w.order, v)
	}
	ir.Walk(n, func(m ir.Node) bool {
		switch m := m.(type) {
		case *ir.Block:
			for _, v := range m.Vars {
				add(v)
			}
		case *ir.Assign:
			add(m.Target)
		case *ir.Var:
			add(m)
		}
		return true
	})
}

func sanitize(name string) string {
	var sb strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			sb.WriteRune(r)
		default:
			sb.WriteByte('_')
		}
	}
	if sb.Len() == 0 {
		return "v"
	}
	return sb.String()
}

// needsStmts reports whether n cannot be written as a single Go expression.
func needsStmts(n ir.Node) bool {
	needs := false
	ir.Walk(n, func(m ir.Node) bool {
		switch m.(type) {
		case *ir.Cond, *ir.Block, *ir.Assign, *ir.Loop, *ir.Try, *ir.DynSet:
			needs = true
		}
		return !needs
	})
	return needs
}

// stable reports whether the value of n cannot change between evaluations.
func stable(n ir.Node) bool {
	switch n.(type) {
	case *ir.Const, *ir.Param, *ir.Hoisted:
		return true
	}
	return false
}

func (w *writer) typ(t ir.Type) string {
	return t.GoType()
}

// operands prints ns in order, spilling an operand to a temporary when a
// later operand must emit statements first.
func (w *writer) operands(ns []ir.Node) []string {
	out := make([]string, len(ns))
	for i, a := range ns {
		s := w.expr(a)
		if !stable(a) && anyNeedsStmts(ns[i+1:]) {
			t := w.temp()
			w.line("%s := %s", t, s)
			s = t
		}
		out[i] = s
	}
	return out
}

func anyNeedsStmts(ns []ir.Node) bool {
	for _, n := range ns {
		if needsStmts(n) {
			return true
		}
	}
	return false
}

func (w *writer) expr(n ir.Node) string {
	switch n := n.(type) {
	case *ir.Const:
		return w.constant(n)
	case *ir.Param:
		return fmt.Sprintf("env.Args[%d].(%s)", n.Index, w.typ(n.T))
	case *ir.Var:
		return w.vars[n]
	case *ir.Hoisted:
		return fmt.Sprintf("proxy[%d].(%s)", n.Index, w.typ(n.T))
	case *ir.Binary:
		return w.binary(n)
	case *ir.Unary:
		x := w.expr(n.X)
		if fn := ir.VectorFunc(n.Op, n.X.Type(), n.X.Type()); fn != "" {
			return "ir." + fn + "(" + x + ")"
		}
		if strings.HasPrefix(x, "-") {
			return "(" + n.Op.Symbol() + " " + x + ")"
		}
		return "(" + n.Op.Symbol() + x + ")"
	case *ir.Convert:
		if v, ok := ir.ConstValue(n.X); ok {
			folded, err := ir.EvalConvert(v, n.T)
			if err != nil {
				fail("convert", "%v", err)
			}
			return w.literal(folded)
		}
		return w.typ(n.T) + "(" + w.expr(n.X) + ")"
	case *ir.Cond:
		if n.T == ir.TVoid {
			w.stmt(n)
			return "struct{}{}"
		}
		test := w.expr(n.Test)
		t := w.temp()
		w.line("var %s %s", t, w.typ(n.T))
		w.line("if %s {", test)
		w.indent++
		w.line("%s = %s", t, w.expr(n.Then))
		w.indent--
		w.line("} else {")
		w.indent++
		w.line("%s = %s", t, w.expr(n.Else))
		w.indent--
		w.line("}")
		return t
	case *ir.Block:
		if n.T == ir.TVoid || len(n.Stmts) == 0 {
			w.stmt(n)
			return "struct{}{}"
		}
		for _, s := range n.Stmts[:len(n.Stmts)-1] {
			w.stmt(s)
		}
		return w.expr(n.Stmts[len(n.Stmts)-1])
	case *ir.Assign:
		v := w.expr(n.Value)
		name := w.vars[n.Target]
		w.line("%s = %s", name, v)
		return name
	case *ir.Loop, *ir.Try, *ir.DynSet:
		w.stmt(n)
		return "struct{}{}"
	case *ir.Call:
		w.use(n.Fn.Import)
		return n.Fn.GoName() + "(" + strings.Join(w.operands(n.Args), ", ") + ")"
	case *ir.New:
		w.use(n.Ctor.Import)
		return n.Ctor.Name + "(" + strings.Join(w.operands(n.Args), ", ") + ")"
	case *ir.Member:
		x := w.expr(n.X)
		if n.M.Computed {
			return x + "." + n.M.Name + "()"
		}
		return x + "." + n.M.Name
	case *ir.Fetch:
		w.use(n.Table.Import)
		return n.Table.Accessor + ".At(" + w.expr(n.Index) + ")"
	case *ir.DynGet:
		return fmt.Sprintf("ir.Get(env.State, %s, %s)", strconv.Quote(n.Key), w.expr(n.Default))
	case *ir.Apply:
		name := w.lambda(n.Fn)
		args := w.operands(n.Args)
		return fmt.Sprintf("%s(nil, env.With(%s))", name, strings.Join(args, ", "))
	}
	fail(fmt.Sprintf("%T", n), "unknown node")
	return ""
}

func (w *writer) binary(n *ir.Binary) string {
	if (n.Op == ir.OpAnd || n.Op == ir.OpOr) && needsStmts(n.R) {
		t := w.temp()
		w.line("%s := %s", t, w.expr(n.L))
		if n.Op == ir.OpAnd {
			w.line("if %s {", t)
		} else {
			w.line("if !%s {", t)
		}
		w.indent++
		w.line("%s = %s", t, w.expr(n.R))
		w.indent--
		w.line("}")
		return t
	}

	// Go rejects some constant expressions (float division by zero, overflow)
	// that are valid at run time, so constant operands are folded here.
	if lv, ok := ir.ConstValue(n.L); ok {
		if rv, ok := ir.ConstValue(n.R); ok {
			v, err := ir.EvalBinary(n.Op, lv, rv)
			if err != nil {
				fail(n.Op.Symbol(), "%v", err)
			}
			return w.literal(v)
		}
	}

	lt, rt := n.L.Type(), n.R.Type()
	if (n.Op == ir.OpDiv || n.Op == ir.OpMod) && lt == ir.TInt {
		if v, ok := ir.ConstValue(n.R); ok && v.(int64) == 0 {
			fail("/", "integer division by constant zero")
		}
	}
	ops := w.operands([]ir.Node{n.L, n.R})
	l, r := ops[0], ops[1]
	if fn := ir.VectorFunc(n.Op, lt, rt); fn != "" {
		return "ir." + fn + "(" + l + ", " + r + ")"
	}
	if n.Op == ir.OpMod && lt.IsFloat() {
		w.use("math")
		if lt == ir.TFloat32 {
			return "float32(math.Mod(float64(" + l + "), float64(" + r + ")))"
		}
		return "math.Mod(" + l + ", " + r + ")"
	}
	return "(" + l + " " + n.Op.Symbol() + " " + r + ")"
}

func (w *writer) constant(c *ir.Const) string {
	if named, ok := c.Val.(*ir.Named); ok {
		w.use(named.Import)
		return named.Name
	}
	if name, ok := w.p.Refs.Name(c.Val); ok {
		return name + "(nil, env)"
	}
	if lit, imps, err := Literal(c.Val); err == nil {
		for _, imp := range imps {
			w.use(imp)
		}
		return lit
	}
	if w.p.Lookup != nil {
		if expr, imp, ok := w.p.Lookup(c.Val); ok {
			w.use(imp)
			return expr
		}
	}
	if gs, ok := c.Val.(fmt.GoStringer); ok {
		return gs.GoString()
	}
	fail(fmt.Sprintf("constant %T", c.Val), "no textual form")
	return ""
}

func (w *writer) literal(v any) string {
	lit, imps, err := Literal(v)
	if err != nil {
		panic(err)
	}
	for _, imp := range imps {
		w.use(imp)
	}
	return lit
}

func (w *writer) lambda(fn *ir.Lambda) string {
	if name, ok := w.p.Refs.Name(fn); ok {
		return name
	}
	if fn.Static != "" {
		w.use(fn.Import)
		return fn.Static
	}
	fail("function "+fn.Name, "not recorded in this run and not bound to a static function")
	return ""
}

func (w *writer) stmt(n ir.Node) {
	switch n := n.(type) {
	case *ir.Const, *ir.Param, *ir.Var, *ir.Hoisted:
	case *ir.Assign:
		v := w.expr(n.Value)
		w.line("%s = %s", w.vars[n.Target], v)
	case *ir.Block:
		for _, s := range n.Stmts {
			w.stmt(s)
		}
	case *ir.Cond:
		w.line("if %s {", w.expr(n.Test))
		w.indent++
		w.stmt(n.Then)
		w.indent--
		if !isEmpty(n.Else) {
			w.line("} else {")
			w.indent++
			w.stmt(n.Else)
			w.indent--
		}
		w.line("}")
	case *ir.Loop:
		if !needsStmts(n.Cond) {
			w.line("for %s {", w.expr(n.Cond))
			w.indent++
		} else {
			w.line("for {")
			w.indent++
			w.line("if !%s {", w.expr(n.Cond))
			w.line("\tbreak")
			w.line("}")
		}
		w.stmt(n.Body)
		w.indent--
		w.line("}")
	case *ir.Try:
		w.use(BakeImport)
		w.line("bake.Try(func() {")
		w.indent++
		w.stmt(n.Body)
		w.indent--
		w.line("}, func() {")
		w.indent++
		w.stmt(n.Catch)
		w.indent--
		w.line("})")
	case *ir.DynSet:
		v := w.expr(n.Value)
		w.line("env.State.Set(%s, %s)", strconv.Quote(n.Key), v)
	default:
		w.line("_ = %s", w.expr(n))
	}
}

func isEmpty(n ir.Node) bool {
	b, ok := n.(*ir.Block)
	return ok && len(b.Stmts) == 0
}
