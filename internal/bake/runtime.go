package bake

import (
	"fmt"
	"sort"
	"sync"

	"github.com/roach88/exprbake/internal/ir"
)

// Artifact is one baked function as served: a signature and a way to bind
// proxy values to obtain the callable.
type Artifact struct {
	Name     string
	Sig      string
	Strategy Strategy
	Proxies  int
	// Broken is set on artifacts loaded from source whose body could not be
	// printed when baked. Calling them panics.
	Broken string
	// Failed is the compile error code of a formula that did not compile
	// when baked. Such artifacts are never bound.
	Failed string
	bind   func(proxy []any) ir.Callable
}

// Bind returns the callable for proxy. Only lazy artifacts take proxy values.
func (a Artifact) Bind(proxy []any) (ir.Callable, error) {
	if len(proxy) != a.Proxies {
		return nil, fmt.Errorf("artifact %s takes %d proxy values, got %d", a.label(), a.Proxies, len(proxy))
	}
	if a.bind == nil {
		return nil, fmt.Errorf("artifact %s has no implementation", a.label())
	}
	return a.bind(proxy), nil
}

func (a Artifact) label() string {
	if a.Name != "" {
		return a.Name
	}
	return a.Sig
}

// box turns a generated function's result into the value a Callable
// returns; void functions return struct{}{} and box to nil.
func box[T any](v T) any {
	if _, void := any(v).(struct{}); void {
		return nil
	}
	return v
}

// Direct wraps a static generated function.
func Direct[T any](sig string, fn func(proxy []any, env *ir.Env) T) Artifact {
	return Artifact{
		Sig:      sig,
		Strategy: StrategyStatic,
		bind: func([]any) ir.Callable {
			return func(env *ir.Env) any { return box(fn(nil, env)) }
		},
	}
}

// Lazy wraps a generated function that reads proxies proxy values.
func Lazy[T any](sig string, proxies int, fn func(proxy []any, env *ir.Env) T) Artifact {
	return Artifact{
		Sig:      sig,
		Strategy: StrategyLazy,
		Proxies:  proxies,
		bind: func(proxy []any) ir.Callable {
			return func(env *ir.Env) any { return box(fn(proxy, env)) }
		},
	}
}

// Failed stands in for a formula that failed to compile with code when
// baked. fn is its unreachable stub.
func Failed[T any](sig, code, reason string, fn func(proxy []any, env *ir.Env) T) Artifact {
	return Artifact{
		Sig:    sig,
		Failed: code,
		Broken: reason,
		bind: func([]any) ir.Callable {
			return func(env *ir.Env) any { return box(fn(nil, env)) }
		},
	}
}

// Constant wraps a parameterless generated function. Its value is computed
// on the first call and shared by every later one.
func Constant[T any](sig string, fn func(proxy []any, env *ir.Env) T) Artifact {
	return constantArtifact(sig, func(env *ir.Env) any { return box(fn(nil, env)) })
}

func constantArtifact(sig string, call ir.Callable) Artifact {
	var (
		once sync.Once
		v    any
	)
	c := func(env *ir.Env) any {
		once.Do(func() { v = call(env) })
		return v
	}
	return Artifact{
		Sig:      sig,
		Strategy: StrategyInline,
		bind:     func([]any) ir.Callable { return c },
	}
}

// Try runs body and, if it panics, catch.
func Try(body, catch func()) {
	defer func() {
		if r := recover(); r != nil {
			catch()
		}
	}()
	body()
}

// File is the serving form of one exported file.
type File struct {
	ID        string
	Artifacts []Artifact
	Decls     map[string]int
}

// Decl returns the artifact recorded for a script-level declaration.
func (f *File) Decl(name string) (Artifact, bool) {
	i, ok := f.Decls[name]
	if !ok || i < 0 || i >= len(f.Artifacts) {
		return Artifact{}, false
	}
	return f.Artifacts[i], true
}

// ArtifactSource provides baked files by id.
type ArtifactSource interface {
	File(id string) (*File, bool)
}

// Registry is an ArtifactSource built at run time. It is safe for
// concurrent use.
type Registry struct {
	mu    sync.RWMutex
	files map[string]*File
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{files: map[string]*File{}}
}

// Add registers f. Registering an id twice is an error.
func (r *Registry) Add(f File) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.files[f.ID]; dup {
		return fmt.Errorf("file %s registered twice", f.ID)
	}
	if f.Decls == nil {
		f.Decls = map[string]int{}
	}
	r.files[f.ID] = &f
	return nil
}

// File implements ArtifactSource.
func (r *Registry) File(id string) (*File, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.files[id]
	return f, ok
}

// IDs lists registered file ids in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.files))
	for id := range r.files {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

var compiled = NewRegistry()

// Register adds a file to the compiled-in registry. Generated index files
// call it from init; a duplicate id panics.
func Register(f File) {
	if err := compiled.Add(f); err != nil {
		panic("bake: " + err.Error())
	}
}

// Compiled returns the registry filled by generated code linked into the
// program.
func Compiled() *Registry { return compiled }
