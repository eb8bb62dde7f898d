// Package bake records compiled formulas as Go source and serves them back.
//
// A Recorder runs in one of two modes. Baking, it collects the printed form
// of every formula compiled inside an open FileContext and, when the context
// closes, turns the collection into an ExportedFile awaiting ExportAll.
// Serving, it hands out previously baked artifacts for a file in the exact
// order they were recorded.
//
// There is no ambient current context: compile calls take the FileContext
// they belong to, and every Open is paired with a Close, normally deferred.
// A Recorder is not safe for concurrent use.
package bake

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/roach88/exprbake/internal/ir"
	"github.com/roach88/exprbake/internal/printer"
	"github.com/roach88/exprbake/internal/syntax"
)

// Mode says whether a Recorder bakes or serves.
type Mode uint8

const (
	ModeBake Mode = iota
	ModeServe
)

func (m Mode) String() string {
	if m == ModeServe {
		return "serve"
	}
	return "bake"
}

// Recorder owns the context stack, the set of files opened in this run, the
// identity map of printed objects and the export buffer.
type Recorder struct {
	mode    Mode
	source  ArtifactSource
	logger  *slog.Logger
	lookup  printer.Lookup
	stack   []*FileContext
	seen    map[string]bool
	names   map[string]int // next generated name per file id, across duplicates
	refs    *printer.Refs
	pending []ExportedFile
	done    []ExportedFile
	failure error
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) RecorderOption {
	return func(r *Recorder) {
		r.logger = l
	}
}

// WithLookup sets the printer fallback for constants with no literal form.
func WithLookup(l printer.Lookup) RecorderOption {
	return func(r *Recorder) {
		r.lookup = l
	}
}

// NewBaker returns a recorder in bake mode.
func NewBaker(opts ...RecorderOption) *Recorder {
	return newRecorder(ModeBake, nil, opts)
}

// NewServer returns a recorder serving artifacts from src.
func NewServer(src ArtifactSource, opts ...RecorderOption) *Recorder {
	return newRecorder(ModeServe, src, opts)
}

func newRecorder(mode Mode, src ArtifactSource, opts []RecorderOption) *Recorder {
	r := &Recorder{
		mode:   mode,
		source: src,
		logger: slog.Default(),
		seen:   map[string]bool{},
		names:  map[string]int{},
		refs:   printer.NewRefs(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Mode returns the recorder's mode.
func (r *Recorder) Mode() Mode { return r.mode }

// Refs is the identity map of printed objects.
func (r *Recorder) Refs() *printer.Refs { return r.refs }

// Current returns the innermost open context, or nil.
func (r *Recorder) Current() *FileContext {
	if len(r.stack) == 0 {
		return nil
	}
	return r.stack[len(r.stack)-1]
}

// Err returns the serving failure that poisoned the recorder, if any.
func (r *Recorder) Err() error { return r.failure }

// Pending is the number of closed files not yet exported.
func (r *Recorder) Pending() int { return len(r.pending) }

// Open pushes a context for key. Opening a key already opened in this run
// gives a duplicate context: it behaves normally but is never exported.
func (r *Recorder) Open(key ir.FileKey) (*FileContext, error) {
	id, err := key.ID()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", key, err)
	}
	if r.mode == ModeServe && r.failure != nil {
		return nil, r.poisoned(id)
	}
	fc := &FileContext{
		rec:       r,
		Key:       key,
		ID:        id,
		parent:    r.Current(),
		duplicate: r.seen[id],
		decls:     map[string]int{},
		reserved:  map[*ir.Lambda]string{},
	}
	r.seen[id] = true
	r.stack = append(r.stack, fc)
	r.logger.Debug("file context opened", "id", id, "key", key.String(), "mode", r.mode.String(), "duplicate", fc.duplicate, "depth", len(r.stack))
	return fc, nil
}

func (r *Recorder) poisoned(id string) error {
	return &ServeError{Code: ErrCodePoisoned, FileID: id, Index: -1, Err: r.failure}
}

// FileContext is one open file. Close must be called exactly once, and
// contexts must close innermost first.
type FileContext struct {
	Key ir.FileKey
	ID  string

	rec       *Recorder
	parent    *FileContext
	duplicate bool
	closed    bool

	// bake
	funcs    []*GenFunc
	decls    map[string]int
	reserved map[*ir.Lambda]string

	// serve
	file   *File
	loaded bool
	cursor int
}

// Parent is the context that was innermost when this one opened.
func (fc *FileContext) Parent() *FileContext { return fc.parent }

// Duplicate reports whether the key was already opened in this run.
func (fc *FileContext) Duplicate() bool { return fc.duplicate }

// Mode is the owning recorder's mode.
func (fc *FileContext) Mode() Mode { return fc.rec.mode }

// Len is the number of functions recorded so far.
func (fc *FileContext) Len() int { return len(fc.funcs) }

// Close pops the context. A baking context that recorded functions and is
// not a duplicate becomes an ExportedFile.
func (fc *FileContext) Close() {
	r := fc.rec
	if fc.closed {
		panic(&DisciplineError{FileID: fc.ID, Message: "closed twice"})
	}
	if r.Current() != fc {
		panic(&DisciplineError{FileID: fc.ID, Message: "closed while an inner context is open"})
	}
	r.stack = r.stack[:len(r.stack)-1]
	fc.closed = true

	if r.mode == ModeServe {
		if fc.loaded && fc.file != nil && fc.cursor < len(fc.file.Artifacts) {
			r.logger.Debug("file context closed with unused artifacts", "id", fc.ID, "used", fc.cursor, "baked", len(fc.file.Artifacts))
		}
		return
	}

	unrecorded := make([]*ir.Lambda, 0, len(fc.reserved))
	for fn := range fc.reserved {
		unrecorded = append(unrecorded, fn)
	}
	sort.Slice(unrecorded, func(i, j int) bool { return fc.reserved[unrecorded[i]] < fc.reserved[unrecorded[j]] })
	for _, fn := range unrecorded {
		name := fc.reserved[fn]
		r.logger.Warn("reserved function never recorded", "id", fc.ID, "function", fn.Name, "name", name)
		fc.funcs = append(fc.funcs, stub(name, fn.Sig, "function "+fn.Name+" was never compiled", true))
	}
	fc.reserved = nil

	switch {
	case fc.duplicate:
		r.logger.Debug("duplicate file context not exported", "id", fc.ID)
	case len(fc.funcs) == 0:
		r.logger.Debug("empty file context not exported", "id", fc.ID)
	default:
		r.pending = append(r.pending, ExportedFile{ID: fc.ID, Kind: fc.Key.Kind, Funcs: fc.funcs, Decls: fc.decls})
		r.logger.Info("file recorded", "id", fc.ID, "functions", len(fc.funcs))
	}
}

func (fc *FileContext) check(op string, want Mode) {
	if fc.closed {
		panic(&DisciplineError{FileID: fc.ID, Message: op + " after close"})
	}
	if fc.rec.mode != want {
		panic(&DisciplineError{FileID: fc.ID, Message: fmt.Sprintf("%s in %s mode", op, fc.rec.mode)})
	}
}

func (fc *FileContext) nextName() string {
	_, hash, err := ir.ParseFileID(fc.ID)
	if err != nil {
		hash = strings.ReplaceAll(fc.ID, "-", "")
	}
	n := fc.rec.names[fc.ID]
	fc.rec.names[fc.ID] = n + 1
	name := fmt.Sprintf("f_%s_%d", hash[:min(8, len(hash))], n)
	return name
}

// Reserve assigns the name fn will be recorded under, so bodies printed
// before fn is recorded, including fn's own, can call it.
func (fc *FileContext) Reserve(fn *ir.Lambda) (string, error) {
	fc.check("reserve", ModeBake)
	if name, ok := fc.rec.refs.Name(fn); ok {
		return name, nil
	}
	name := fc.nextName()
	if err := fc.rec.refs.Add(fn, name); err != nil {
		return "", fmt.Errorf("reserve %s: %w", fn.Name, err)
	}
	fc.reserved[fn] = name
	return name, nil
}

// Record appends g to the file and returns its name. A body that cannot be
// printed is logged and replaced by an unreachable stub, so the rest of the
// file still exports.
func (fc *FileContext) Record(g *GenFunc) string {
	fc.check("record", ModeBake)
	r := fc.rec

	if lam, ok := g.Original.(*ir.Lambda); ok {
		if name, reserved := fc.reserved[lam]; reserved {
			delete(fc.reserved, lam)
			g.Name = name
		}
	}
	if g.Name == "" && g.Original != nil && g.Failed == "" {
		if name, ok := r.refs.Name(g.Original); ok {
			g.Name, g.Alias = name, true
		}
	}
	if g.Name == "" {
		g.Name = fc.nextName()
		// A duplicate is never exported, so nothing may refer to its names.
		if g.Original != nil && g.Failed == "" && !fc.duplicate {
			if err := r.refs.Add(g.Original, g.Name); err != nil {
				r.logger.Warn("original not tracked", "id", fc.ID, "name", g.Name, "error", err)
			}
		}
	}

	switch {
	case g.Failed != "":
		r.logger.Warn("formula failed to compile, recording its place", "id", fc.ID, "name", g.Name, "code", g.Failed, "reason", g.Broken)
		s := stub(g.Name, g.Sig, g.Broken, false)
		g.Source, g.Imports = s.Source, s.Imports
	case !g.Alias:
		p := &printer.Printer{Refs: r.refs, Lookup: r.lookup}
		out, err := p.PrintFunc(printer.Func{Name: g.Name, Body: g.Body, Ret: g.Sig.Ret})
		if err != nil {
			r.logger.Warn("function not printable, emitting stub", "id", fc.ID, "name", g.Name, "error", err)
			s := stub(g.Name, g.Sig, err.Error(), false)
			g.Source, g.Imports, g.Broken = s.Source, s.Imports, s.Broken
		} else {
			g.Source, g.Imports = out.Source, out.Imports
		}
	}

	if g.Decl != "" {
		fc.decls[g.Decl] = len(fc.artifacts())
	}
	fc.funcs = append(fc.funcs, g)
	r.logger.Debug("function recorded", "id", fc.ID, "name", g.Name, "sig", g.Sig.String(), "strategy", g.Strategy.String(), "alias", g.Alias)
	return g.Name
}

func (fc *FileContext) artifacts() []*GenFunc {
	return ExportedFile{Funcs: fc.funcs}.Artifacts()
}

// Decl returns the name recorded for a script-level declaration.
func (fc *FileContext) Decl(name string) (string, bool) {
	i, ok := fc.decls[name]
	if !ok {
		return "", false
	}
	return fc.artifacts()[i].Name, true
}

// stub is a function whose body panics with the reason it could not be
// printed.
func stub(name string, sig ir.Signature, reason string, detached bool) *GenFunc {
	src := fmt.Sprintf("func %s(proxy []any, env *ir.Env) %s {\n\tpanic(%q)\n}\n", name, sig.Ret.GoType(), syntax.Unreachable+reason)
	return &GenFunc{
		Name:     name,
		Sig:      sig,
		Source:   src,
		Imports:  []string{ir.ImportPath},
		Broken:   reason,
		Detached: detached,
	}
}

// Next returns the next baked artifact bound to proxy. The artifact's
// signature must be sig. Any failure is fatal and poisons the recorder.
func (fc *FileContext) Next(sig ir.Signature, proxy ...any) (ir.Callable, error) {
	fc.check("next", ModeServe)
	r := fc.rec
	if r.failure != nil {
		return nil, r.poisoned(fc.ID)
	}
	fail := func(err *ServeError) (ir.Callable, error) {
		r.failure = err
		r.logger.Error("serving failed", "id", fc.ID, "code", err.Code, "index", err.Index, "error", err)
		return nil, err
	}

	if !fc.loaded {
		fc.loaded = true
		if r.source != nil {
			fc.file, _ = r.source.File(fc.ID)
		}
	}
	if fc.file == nil {
		return fail(&ServeError{Code: ErrCodeMissingFile, FileID: fc.ID, Index: fc.cursor, Message: "no artifacts were baked for " + fc.Key.String()})
	}
	if fc.cursor >= len(fc.file.Artifacts) {
		return fail(&ServeError{Code: ErrCodeExhausted, FileID: fc.ID, Index: fc.cursor, Message: fmt.Sprintf("only %d artifacts were baked", len(fc.file.Artifacts))})
	}
	i := fc.cursor
	a := fc.file.Artifacts[i]
	fc.cursor++
	if a.Sig != sig.String() {
		return fail(&ServeError{Code: ErrCodeSignatureMismatch, FileID: fc.ID, Index: i, Message: fmt.Sprintf("baked %s, requested %s", a.Sig, sig)})
	}
	if a.Failed != "" {
		r.logger.Warn("served a formula that failed to compile when baked", "id", fc.ID, "index", i, "code", a.Failed)
		return nil, &FormulaError{FileID: fc.ID, Index: i, Code: a.Failed, Reason: a.Broken}
	}
	c, err := a.Bind(proxy)
	if err != nil {
		return fail(&ServeError{Code: ErrCodeProxyMismatch, FileID: fc.ID, Index: i, Err: err})
	}
	return c, nil
}
