package syntax

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"go/types"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/roach88/exprbake/internal/ir"
	"github.com/roach88/exprbake/internal/mathlib"
)

// SigDirective starts the comment line that records a generated function's
// signature. Unused parameters leave no trace in a body, so the signature
// cannot always be recovered from the code alone.
const SigDirective = "//exprbake:sig "

// Unreachable prefixes the panic message of a function whose body could not
// be printed. Such a function has no body to read back.
const Unreachable = "unreachable: "

// Func is a generated function read back from source.
type Func struct {
	Name    string
	Sig     ir.Signature
	Proxies int     // number of proxy slots the body reads
	Body    ir.Node // nil when Broken is set
	Broken  string  // reason the body was replaced by an unreachable panic
	// Lambda stands for the function in calls from other generated
	// functions. Its implementation is attached by whoever compiles Body.
	Lambda *ir.Lambda
}

// Options configures ReadFuncs.
type Options struct {
	// Tables resolves table reads by accessor. Defaults to the sine table.
	Tables []*ir.Table
	// Consts resolves qualified constants such as "tuning.Speed".
	Consts func(expr string) (ir.Node, bool)
}

// ReadFuncs parses generated Go files and returns their functions, ordered
// by file name and then by position. Declarations that do not have the
// generated shape are ignored.
func ReadFuncs(files map[string][]byte, opts Options) ([]*Func, error) {
	if opts.Tables == nil {
		opts.Tables = []*ir.Table{mathlib.SineTable()}
	}
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	fset := token.NewFileSet()
	type pending struct {
		fn   *Func
		decl *ast.FuncDecl
	}
	var all []pending
	lambdas := map[string]*ir.Lambda{}
	for _, name := range names {
		f, err := parser.ParseFile(fset, name, files[name], parser.ParseComments)
		if err != nil {
			return nil, &Error{Pos: name, Message: "parse", Err: err}
		}
		for _, d := range f.Decls {
			fd, ok := d.(*ast.FuncDecl)
			if !ok || !generatedShape(fd) {
				continue
			}
			sig, err := signatureOf(fd)
			if err != nil {
				return nil, &Error{Pos: fset.Position(fd.Pos()).String(), Message: fd.Name.Name, Err: err}
			}
			if _, dup := lambdas[fd.Name.Name]; dup {
				return nil, &Error{Pos: fset.Position(fd.Pos()).String(), Message: "duplicate function " + fd.Name.Name}
			}
			fn := &Func{Name: fd.Name.Name, Sig: sig, Lambda: &ir.Lambda{Name: fd.Name.Name, Sig: sig}}
			lambdas[fn.Name] = fn.Lambda
			all = append(all, pending{fn: fn, decl: fd})
		}
	}

	out := make([]*Func, 0, len(all))
	for _, p := range all {
		r := &reader{
			fset:    fset,
			sig:     p.fn.Sig,
			lambdas: lambdas,
			opts:    opts,
			params:  make([]*ir.Param, len(p.fn.Sig.Params)),
			vars:    map[string]*ir.Var{},
		}
		body, err := r.funcBody(p.decl)
		if err != nil {
			return nil, err
		}
		p.fn.Body, p.fn.Proxies, p.fn.Broken = body, r.proxies, r.broken
		out = append(out, p.fn)
	}
	return out, nil
}

// ReadFunc parses the source of a single generated function.
func ReadFunc(src string, opts Options) (*Func, error) {
	fns, err := ReadFuncs(map[string][]byte{"func.go": []byte("package p\n\n" + src)}, opts)
	if err != nil {
		return nil, err
	}
	if len(fns) != 1 {
		return nil, &Error{Message: fmt.Sprintf("want one generated function, found %d", len(fns))}
	}
	return fns[0], nil
}

func generatedShape(fd *ast.FuncDecl) bool {
	if fd.Recv != nil || fd.Body == nil || fd.Type.Results == nil || len(fd.Type.Results.List) != 1 {
		return false
	}
	ps := fd.Type.Params.List
	return len(ps) == 2 && len(ps[0].Names) == 1 && len(ps[1].Names) == 1 &&
		ps[0].Names[0].Name == "proxy" && types.ExprString(ps[0].Type) == "[]any" &&
		ps[1].Names[0].Name == "env" && types.ExprString(ps[1].Type) == "*ir.Env"
}

func signatureOf(fd *ast.FuncDecl) (ir.Signature, error) {
	if fd.Doc != nil {
		for _, c := range fd.Doc.List {
			if text, ok := strings.CutPrefix(c.Text, SigDirective); ok {
				return ir.ParseSignature(strings.TrimSpace(text))
			}
		}
	}
	ret, ok := ir.TypeFromGo(types.ExprString(fd.Type.Results.List[0].Type))
	if !ok {
		return ir.Signature{}, fmt.Errorf("unknown result type %s", types.ExprString(fd.Type.Results.List[0].Type))
	}
	found := map[int]ir.Type{}
	ast.Inspect(fd.Body, func(n ast.Node) bool {
		if ta, ok := n.(*ast.TypeAssertExpr); ok {
			if i, ok := argIndex(ta.X, "env.Args"); ok {
				if t, ok := ir.TypeFromGo(types.ExprString(ta.Type)); ok {
					found[i] = t
				}
			}
		}
		return true
	})
	sig := ir.Signature{Ret: ret, Params: make([]ir.Type, len(found))}
	for i := range sig.Params {
		t, ok := found[i]
		if !ok {
			return ir.Signature{}, fmt.Errorf("parameter %d is never read; add a %s comment", i, strings.TrimSpace(SigDirective))
		}
		sig.Params[i] = t
	}
	return sig, nil
}

// argIndex matches base[i] with a literal index.
func argIndex(e ast.Expr, base string) (int, bool) {
	ix, ok := e.(*ast.IndexExpr)
	if !ok || types.ExprString(ix.X) != base {
		return 0, false
	}
	lit, ok := ix.Index.(*ast.BasicLit)
	if !ok || lit.Kind != token.INT {
		return 0, false
	}
	i, err := strconv.Atoi(lit.Value)
	return i, err == nil
}

type reader struct {
	fset    *token.FileSet
	sig     ir.Signature
	lambdas map[string]*ir.Lambda
	opts    Options
	params  []*ir.Param
	vars    map[string]*ir.Var
	order   []*ir.Var
	proxies int
	broken  string
}

func (r *reader) fail(at ast.Node, format string, args ...any) {
	panic(&Error{Pos: r.fset.Position(at.Pos()).String(), Message: fmt.Sprintf(format, args...)})
}

func (r *reader) funcBody(fd *ast.FuncDecl) (body ir.Node, err error) {
	defer catch(&err)
	list := fd.Body.List
	if len(list) == 0 {
		r.fail(fd, "empty body")
	}
	if reason, ok := unreachable(list); ok {
		r.broken = reason
		return nil, nil
	}
	ret, ok := list[len(list)-1].(*ast.ReturnStmt)
	if !ok || len(ret.Results) != 1 {
		r.fail(fd, "body must end in a single-value return")
	}
	stmts := r.stmts(list[:len(list)-1])
	if r.sig.Ret == ir.TVoid {
		stmts = append(stmts, ir.Void())
	} else {
		v := r.expr(ret.Results[0])
		if v.Type() != r.sig.Ret {
			r.fail(ret, "returns %s, signature says %s", v.Type(), r.sig.Ret)
		}
		stmts = append(stmts, v)
	}
	return ir.Scope(r.order, stmts...), nil
}

// unreachable matches a body that is only panic("unreachable: ...").
func unreachable(list []ast.Stmt) (string, bool) {
	if len(list) != 1 {
		return "", false
	}
	es, ok := list[0].(*ast.ExprStmt)
	if !ok {
		return "", false
	}
	call, ok := es.X.(*ast.CallExpr)
	if !ok || types.ExprString(call.Fun) != "panic" || len(call.Args) != 1 {
		return "", false
	}
	lit, ok := call.Args[0].(*ast.BasicLit)
	if !ok || lit.Kind != token.STRING {
		return "", false
	}
	msg, err := strconv.Unquote(lit.Value)
	if err != nil {
		return "", false
	}
	return strings.CutPrefix(msg, Unreachable)
}

func (r *reader) declare(at ast.Node, name string, t ir.Type) *ir.Var {
	if _, dup := r.vars[name]; dup {
		r.fail(at, "%s declared twice", name)
	}
	v := ir.NewVar(strings.TrimPrefix(name, "l_"), t)
	r.vars[name] = v
	r.order = append(r.order, v)
	return v
}

func (r *reader) variable(e ast.Expr) *ir.Var {
	if id, ok := e.(*ast.Ident); ok {
		if v, ok := r.vars[id.Name]; ok {
			return v
		}
	}
	r.fail(e, "%s is not a declared variable", types.ExprString(e))
	return nil
}

func (r *reader) typ(e ast.Expr) ir.Type {
	t, ok := ir.TypeFromGo(types.ExprString(e))
	if !ok {
		r.fail(e, "unknown type %s", types.ExprString(e))
	}
	return t
}

func (r *reader) stmts(list []ast.Stmt) []ir.Node {
	var out []ir.Node
	for _, s := range list {
		if n := r.stmt(s); n != nil {
			out = append(out, n)
		}
	}
	return out
}

func (r *reader) stmt(s ast.Stmt) ir.Node {
	switch s := s.(type) {
	case *ast.DeclStmt:
		gen, ok := s.Decl.(*ast.GenDecl)
		if !ok || gen.Tok != token.VAR {
			r.fail(s, "unsupported declaration")
		}
		for _, spec := range gen.Specs {
			vs := spec.(*ast.ValueSpec)
			if vs.Type == nil || len(vs.Values) > 0 {
				r.fail(vs, "variables are declared with a type and no value")
			}
			t := r.typ(vs.Type)
			for _, name := range vs.Names {
				r.declare(name, name.Name, t)
			}
		}
		return nil
	case *ast.AssignStmt:
		if len(s.Lhs) != 1 || len(s.Rhs) != 1 {
			r.fail(s, "multiple assignment")
		}
		lhs, rhs := s.Lhs[0], s.Rhs[0]
		switch s.Tok {
		case token.DEFINE:
			id, ok := lhs.(*ast.Ident)
			if !ok {
				r.fail(lhs, "bad temporary")
			}
			v := r.expr(rhs)
			return ir.Set(r.declare(id, id.Name, v.Type()), v)
		case token.ASSIGN:
			if id, ok := lhs.(*ast.Ident); ok && id.Name == "_" {
				if rid, ok := rhs.(*ast.Ident); ok && r.vars[rid.Name] != nil {
					return nil
				}
				return r.expr(rhs)
			}
			return ir.Set(r.variable(lhs), r.expr(rhs))
		}
		r.fail(s, "unsupported assignment %s", s.Tok)
	case *ast.IfStmt:
		if s.Init != nil {
			r.fail(s, "if with init")
		}
		test := r.expr(s.Cond)
		then := ir.Void(r.stmts(s.Body.List)...)
		var els ir.Node
		if s.Else != nil {
			blk, ok := s.Else.(*ast.BlockStmt)
			if !ok {
				r.fail(s.Else, "else if")
			}
			els = ir.Void(r.stmts(blk.List)...)
		}
		return ir.When(test, then, els)
	case *ast.ForStmt:
		return r.loop(s)
	case *ast.ExprStmt:
		call, ok := s.X.(*ast.CallExpr)
		if ok {
			switch types.ExprString(call.Fun) {
			case "bake.Try":
				if len(call.Args) != 2 {
					r.fail(call, "bake.Try takes two functions")
				}
				return ir.TryCatch(r.funcLit(call.Args[0]), r.funcLit(call.Args[1]))
			case "env.State.Set":
				if len(call.Args) != 2 {
					r.fail(call, "env.State.Set takes a key and a value")
				}
				return ir.DynStore(r.key(call.Args[0]), r.expr(call.Args[1]))
			}
		}
		return r.expr(s.X)
	}
	r.fail(s, "unsupported statement %T", s)
	return nil
}

func (r *reader) funcLit(e ast.Expr) ir.Node {
	lit, ok := e.(*ast.FuncLit)
	if !ok || lit.Type.Params.NumFields() != 0 || lit.Type.Results != nil {
		r.fail(e, "want func() literal")
	}
	return ir.Void(r.stmts(lit.Body.List)...)
}

// loop reads either "for cond { body }" or, when the condition needed
// statements, "for { stmts; if !cond { break }; body }".
func (r *reader) loop(s *ast.ForStmt) ir.Node {
	if s.Init != nil || s.Post != nil {
		r.fail(s, "three-clause for")
	}
	if s.Cond != nil {
		cond := r.expr(s.Cond)
		return ir.While(cond, ir.Void(r.stmts(s.Body.List)...))
	}
	list := s.Body.List
	for i, st := range list {
		brk, ok := breakUnless(st)
		if !ok {
			continue
		}
		pre := r.stmts(list[:i])
		cond := ir.Seq(append(pre, r.expr(brk))...)
		return ir.While(cond, ir.Void(r.stmts(list[i+1:])...))
	}
	r.fail(s, "loop without exit")
	return nil
}

// breakUnless matches "if !x { break }" and returns x.
func breakUnless(s ast.Stmt) (ast.Expr, bool) {
	is, ok := s.(*ast.IfStmt)
	if !ok || is.Init != nil || is.Else != nil || len(is.Body.List) != 1 {
		return nil, false
	}
	if br, ok := is.Body.List[0].(*ast.BranchStmt); !ok || br.Tok != token.BREAK {
		return nil, false
	}
	not, ok := is.Cond.(*ast.UnaryExpr)
	if !ok || not.Op != token.NOT {
		return nil, false
	}
	return not.X, true
}

func (r *reader) key(e ast.Expr) string {
	lit, ok := e.(*ast.BasicLit)
	if ok && lit.Kind == token.STRING {
		if k, err := strconv.Unquote(lit.Value); err == nil {
			return k
		}
	}
	r.fail(e, "want a string key")
	return ""
}

func (r *reader) param(at ast.Node, i int, t ir.Type) *ir.Param {
	if i < 0 || i >= len(r.sig.Params) || r.sig.Params[i] != t {
		r.fail(at, "argument %d read as %s does not match signature %s", i, t, r.sig)
	}
	if r.params[i] == nil {
		r.params[i] = ir.NewParam(fmt.Sprintf("a%d", i), t, i)
	}
	return r.params[i]
}

func (r *reader) expr(e ast.Expr) ir.Node {
	switch e := e.(type) {
	case *ast.ParenExpr:
		return r.expr(e.X)
	case *ast.BasicLit:
		if e.Kind != token.FLOAT {
			r.fail(e, "untyped literal %s", e.Value)
		}
		return ir.F(r.float(e))
	case *ast.Ident:
		switch e.Name {
		case "true":
			return ir.B(true)
		case "false":
			return ir.B(false)
		}
		return r.variable(e)
	case *ast.UnaryExpr:
		switch e.Op {
		case token.SUB:
			if lit, ok := e.X.(*ast.BasicLit); ok && lit.Kind == token.FLOAT {
				return ir.F(-r.float(lit))
			}
			return ir.Neg(r.expr(e.X))
		case token.NOT:
			return ir.Not(r.expr(e.X))
		}
		r.fail(e, "unsupported operator %s", e.Op)
	case *ast.BinaryExpr:
		op, ok := ir.ParseBinaryOp(e.Op.String())
		if !ok {
			r.fail(e, "unsupported operator %s", e.Op)
		}
		return ir.Bin(op, r.expr(e.X), r.expr(e.Y))
	case *ast.TypeAssertExpr:
		t := r.typ(e.Type)
		if i, ok := argIndex(e.X, "env.Args"); ok {
			return r.param(e, i, t)
		}
		if i, ok := argIndex(e.X, "proxy"); ok {
			r.proxies = max(r.proxies, i+1)
			return &ir.Hoisted{Index: i, T: t}
		}
		r.fail(e, "unsupported type assertion")
	case *ast.CompositeLit:
		return r.composite(e)
	case *ast.SelectorExpr:
		if id, ok := e.X.(*ast.Ident); ok && r.vars[id.Name] == nil {
			if r.opts.Consts != nil {
				if n, ok := r.opts.Consts(types.ExprString(e)); ok {
					return n
				}
			}
			r.fail(e, "unknown constant %s", types.ExprString(e))
		}
		return ir.Field(r.expr(e.X), e.Sel.Name)
	case *ast.CallExpr:
		return r.call(e)
	}
	r.fail(e, "unsupported expression %T", e)
	return nil
}

func (r *reader) float(lit *ast.BasicLit) float64 {
	f, err := strconv.ParseFloat(lit.Value, 64)
	if err != nil {
		r.fail(lit, "bad float %s", lit.Value)
	}
	return f
}

// intLit matches an integer literal, possibly negated.
func intLit(e ast.Expr) (int64, bool) {
	neg := false
	if u, ok := e.(*ast.UnaryExpr); ok && u.Op == token.SUB {
		neg, e = true, u.X
	}
	lit, ok := e.(*ast.BasicLit)
	if !ok || lit.Kind != token.INT {
		return 0, false
	}
	i, err := strconv.ParseInt(lit.Value, 0, 64)
	if err != nil {
		return 0, false
	}
	if neg {
		i = -i
	}
	return i, true
}

func (r *reader) composite(e *ast.CompositeLit) ir.Node {
	t := r.typ(e.Type)
	if t == ir.TVoid {
		return ir.Lit(struct{}{})
	}
	fields := map[string]float64{}
	for _, elt := range e.Elts {
		kv, ok := elt.(*ast.KeyValueExpr)
		if !ok {
			r.fail(elt, "want keyed fields")
		}
		id, ok := kv.Key.(*ast.Ident)
		if !ok {
			r.fail(kv.Key, "bad field name")
		}
		v, ok := ir.ConstValue(r.expr(kv.Value))
		f, isFloat := v.(float64)
		if !ok || !isFloat {
			r.fail(kv.Value, "field %s is not a float literal", id.Name)
		}
		fields[id.Name] = f
	}
	switch t {
	case ir.TVec2:
		return ir.Lit(ir.Vec2{X: fields["X"], Y: fields["Y"]})
	case ir.TVec3:
		return ir.Lit(ir.Vec3{X: fields["X"], Y: fields["Y"], Z: fields["Z"]})
	case ir.TV2RV2:
		return ir.Lit(ir.V2RV2{NX: fields["NX"], NY: fields["NY"], RX: fields["RX"], RY: fields["RY"], Angle: fields["Angle"]})
	}
	r.fail(e, "%s has no composite literal", t)
	return nil
}

func (r *reader) args(es []ast.Expr) []ir.Node {
	out := make([]ir.Node, len(es))
	for i, e := range es {
		out[i] = r.expr(e)
	}
	return out
}

func (r *reader) call(call *ast.CallExpr) ir.Node {
	fun := types.ExprString(call.Fun)
	args := call.Args

	switch fun {
	case "int64", "float32", "float64":
		if len(args) != 1 {
			r.fail(call, "conversion takes one argument")
		}
		t := r.typ(call.Fun)
		if i, ok := intLit(args[0]); ok && t == ir.TInt {
			return ir.I(i)
		}
		x := r.expr(args[0])
		if v, ok := ir.ConstValue(x); ok && t == ir.TFloat32 {
			if f, ok := v.(float64); ok {
				return ir.Lit(float32(f))
			}
		}
		return ir.Conv(x, t)
	case "math.NaN":
		return ir.F(math.NaN())
	case "math.Inf":
		if len(args) == 1 {
			if sign, ok := intLit(args[0]); ok {
				return ir.F(math.Inf(int(sign)))
			}
		}
		r.fail(call, "math.Inf wants a literal sign")
	case "math.Copysign":
		if len(args) == 2 {
			mag, ok1 := intLit(args[0])
			sign, ok2 := intLit(args[1])
			if ok1 && ok2 {
				return ir.F(math.Copysign(float64(mag), float64(sign)))
			}
		}
		r.fail(call, "math.Copysign wants literal arguments")
	case "math.Mod":
		if len(args) != 2 {
			r.fail(call, "math.Mod takes two arguments")
		}
		return ir.Mod(r.expr(args[0]), r.expr(args[1]))
	case "ir.Get":
		if len(args) != 3 || types.ExprString(args[0]) != "env.State" {
			r.fail(call, "ir.Get wants env.State, a key and a default")
		}
		return ir.Dyn(r.key(args[1]), r.expr(args[2]))
	}

	if name, ok := strings.CutPrefix(fun, "ir."); ok {
		if op, _, ok := ir.VectorOp(name); ok {
			if op == ir.OpNeg && len(args) == 1 {
				return ir.Neg(r.expr(args[0]))
			}
			if len(args) == 2 {
				return ir.Bin(op, r.expr(args[0]), r.expr(args[1]))
			}
			r.fail(call, "%s: wrong argument count", fun)
		}
		if c, ok := ir.CtorByName(fun); ok {
			return ir.Construct(c, r.args(args)...)
		}
	}
	if fn, ok := mathlib.ByGoName(fun); ok {
		return ir.CallFn(fn, r.args(args)...)
	}

	switch f := call.Fun.(type) {
	case *ast.SelectorExpr:
		if f.Sel.Name == "At" && len(args) == 1 {
			acc := types.ExprString(f.X)
			for _, tab := range r.opts.Tables {
				if tab.Accessor == acc {
					return ir.FetchAt(tab, r.expr(args[0]))
				}
			}
		}
		if len(args) == 0 {
			if id, ok := f.X.(*ast.Ident); !ok || r.vars[id.Name] != nil {
				return ir.Field(r.expr(f.X), f.Sel.Name)
			}
		}
	case *ast.Ident:
		if fn, ok := r.lambdas[f.Name]; ok {
			return r.apply(call, fn)
		}
	}
	r.fail(call, "unknown function %s", fun)
	return nil
}

// apply reads name(nil, env) and name(nil, env.With(args...)).
func (r *reader) apply(call *ast.CallExpr, fn *ir.Lambda) ir.Node {
	if len(call.Args) != 2 || types.ExprString(call.Args[0]) != "nil" {
		r.fail(call, "generated call wants (nil, env...)")
	}
	switch e := call.Args[1].(type) {
	case *ast.Ident:
		if e.Name == "env" {
			return ir.Invoke(fn)
		}
	case *ast.CallExpr:
		if types.ExprString(e.Fun) == "env.With" {
			return ir.Invoke(fn, r.args(e.Args)...)
		}
	}
	r.fail(call, "generated call wants (nil, env...)")
	return nil
}
