package bake

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"go/types"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/roach88/exprbake/internal/eval"
	"github.com/roach88/exprbake/internal/ir"
	"github.com/roach88/exprbake/internal/syntax"
)

// LoadDir reads an exported package back and returns its files as a
// Registry. Function bodies are re-read from source and compiled with the
// closure compiler, so serving from the result exercises exactly what was
// written without rebuilding the program.
func LoadDir(dir string, opts syntax.Options) (*Registry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", dir, err)
	}
	sources := map[string][]byte{}
	var index []byte
	for _, ent := range entries {
		name := ent.Name()
		if ent.IsDir() || !strings.HasSuffix(name, ".go") || strings.HasSuffix(name, "_test.go") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", dir, err)
		}
		if name == IndexFile {
			index = data
			continue
		}
		sources[name] = data
	}
	if index == nil {
		return nil, fmt.Errorf("load %s: no %s", dir, IndexFile)
	}

	fns, err := syntax.ReadFuncs(sources, opts)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", dir, err)
	}
	loaded := make(map[string]*loadedFunc, len(fns))
	for _, fn := range fns {
		lf := &loadedFunc{fn: fn}
		if fn.Broken == "" {
			if lf.prog, err = eval.Compile(fn.Body); err != nil {
				return nil, fmt.Errorf("load %s: compile %s: %w", dir, fn.Name, err)
			}
		}
		fn.Lambda.SetImpl(lf.bind(nil))
		loaded[fn.Name] = lf
	}

	files, err := readIndex(index, loaded)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", dir, err)
	}
	reg := NewRegistry()
	for _, f := range files {
		if err := reg.Add(f); err != nil {
			return nil, fmt.Errorf("load %s: %w", dir, err)
		}
	}
	return reg, nil
}

type loadedFunc struct {
	fn   *syntax.Func
	prog *eval.Program
}

func (lf *loadedFunc) bind(proxy []any) ir.Callable {
	if lf.prog == nil {
		msg := syntax.Unreachable + lf.fn.Broken
		return func(*ir.Env) any { panic(msg) }
	}
	return lf.prog.Bind(proxy)
}

// readIndex interprets the bake.Register calls of a generated index.
func readIndex(src []byte, funcs map[string]*loadedFunc) ([]File, error) {
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, IndexFile, src, 0)
	if err != nil {
		return nil, err
	}
	var files []File
	var failure error
	ast.Inspect(f, func(n ast.Node) bool {
		if failure != nil {
			return false
		}
		call, ok := n.(*ast.CallExpr)
		if !ok || types.ExprString(call.Fun) != "bake.Register" {
			return true
		}
		file, err := readFileLit(call, funcs)
		if err != nil {
			failure = fmt.Errorf("%s: %w", fset.Position(call.Pos()), err)
			return false
		}
		files = append(files, file)
		return false
	})
	if failure != nil {
		return nil, failure
	}
	return files, nil
}

func readFileLit(call *ast.CallExpr, funcs map[string]*loadedFunc) (File, error) {
	if len(call.Args) != 1 {
		return File{}, fmt.Errorf("bake.Register takes one file")
	}
	lit, ok := call.Args[0].(*ast.CompositeLit)
	if !ok || types.ExprString(lit.Type) != "bake.File" {
		return File{}, fmt.Errorf("bake.Register argument is not a bake.File literal")
	}
	file := File{Decls: map[string]int{}}
	for _, elt := range lit.Elts {
		kv, ok := elt.(*ast.KeyValueExpr)
		if !ok {
			return File{}, fmt.Errorf("bake.File fields must be keyed")
		}
		switch types.ExprString(kv.Key) {
		case "ID":
			id, err := stringLit(kv.Value)
			if err != nil {
				return File{}, fmt.Errorf("ID: %w", err)
			}
			file.ID = id
		case "Artifacts":
			list, ok := kv.Value.(*ast.CompositeLit)
			if !ok {
				return File{}, fmt.Errorf("Artifacts is not a literal")
			}
			for i, e := range list.Elts {
				a, err := readArtifact(e, funcs)
				if err != nil {
					return File{}, fmt.Errorf("artifact %d: %w", i, err)
				}
				file.Artifacts = append(file.Artifacts, a)
			}
		case "Decls":
			m, ok := kv.Value.(*ast.CompositeLit)
			if !ok {
				return File{}, fmt.Errorf("Decls is not a literal")
			}
			for _, e := range m.Elts {
				entry, ok := e.(*ast.KeyValueExpr)
				if !ok {
					return File{}, fmt.Errorf("Decls entries must be keyed")
				}
				name, err := stringLit(entry.Key)
				if err != nil {
					return File{}, fmt.Errorf("Decls: %w", err)
				}
				i, err := intLit(entry.Value)
				if err != nil {
					return File{}, fmt.Errorf("Decls[%s]: %w", name, err)
				}
				file.Decls[name] = i
			}
		default:
			return File{}, fmt.Errorf("unknown bake.File field %s", types.ExprString(kv.Key))
		}
	}
	if file.ID == "" {
		return File{}, fmt.Errorf("bake.File without ID")
	}
	for name, i := range file.Decls {
		if i < 0 || i >= len(file.Artifacts) {
			return File{}, fmt.Errorf("%s: declaration %s points past the artifacts", file.ID, name)
		}
	}
	return file, nil
}

func readArtifact(e ast.Expr, funcs map[string]*loadedFunc) (Artifact, error) {
	call, ok := e.(*ast.CallExpr)
	if !ok {
		return Artifact{}, fmt.Errorf("not an artifact constructor")
	}
	ctor := types.ExprString(call.Fun)
	want := 2
	switch ctor {
	case "bake.Lazy":
		want = 3
	case "bake.Failed":
		want = 4
	}
	if len(call.Args) != want {
		return Artifact{}, fmt.Errorf("%s takes %d arguments", ctor, want)
	}
	sig, err := stringLit(call.Args[0])
	if err != nil {
		return Artifact{}, err
	}
	id, ok := call.Args[len(call.Args)-1].(*ast.Ident)
	if !ok {
		return Artifact{}, fmt.Errorf("%s: function is not a name", ctor)
	}
	lf, ok := funcs[id.Name]
	if !ok {
		return Artifact{}, fmt.Errorf("function %s not found", id.Name)
	}
	if got := lf.fn.Sig.String(); got != sig {
		return Artifact{}, fmt.Errorf("%s is %s, index says %s", id.Name, got, sig)
	}

	var a Artifact
	switch ctor {
	case "bake.Direct":
		a = Artifact{Sig: sig, Strategy: StrategyStatic, bind: lf.bind}
	case "bake.Lazy":
		n, err := intLit(call.Args[1])
		if err != nil {
			return Artifact{}, err
		}
		if lf.fn.Proxies > n {
			return Artifact{}, fmt.Errorf("%s reads %d proxy values, index binds %d", id.Name, lf.fn.Proxies, n)
		}
		a = Artifact{Sig: sig, Strategy: StrategyLazy, Proxies: n, bind: lf.bind}
	case "bake.Constant":
		a = constantArtifact(sig, lf.bind(nil))
	case "bake.Failed":
		code, err := stringLit(call.Args[1])
		if err != nil {
			return Artifact{}, err
		}
		reason, err := stringLit(call.Args[2])
		if err != nil {
			return Artifact{}, err
		}
		return Artifact{Name: id.Name, Sig: sig, Failed: code, Broken: reason, bind: lf.bind}, nil
	default:
		return Artifact{}, fmt.Errorf("unknown artifact constructor %s", ctor)
	}
	a.Name, a.Broken = id.Name, lf.fn.Broken
	return a, nil
}

func stringLit(e ast.Expr) (string, error) {
	lit, ok := e.(*ast.BasicLit)
	if !ok || lit.Kind != token.STRING {
		return "", fmt.Errorf("want a string literal, got %s", types.ExprString(e))
	}
	return strconv.Unquote(lit.Value)
}

func intLit(e ast.Expr) (int, error) {
	lit, ok := e.(*ast.BasicLit)
	if !ok || lit.Kind != token.INT {
		return 0, fmt.Errorf("want an integer literal, got %s", types.ExprString(e))
	}
	return strconv.Atoi(lit.Value)
}
