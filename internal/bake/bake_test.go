package bake

import (
	"context"
	"go/format"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"github.com/roach88/exprbake/internal/eval"
	"github.com/roach88/exprbake/internal/ir"
	"github.com/roach88/exprbake/internal/store"
	"github.com/roach88/exprbake/internal/syntax"
)

func quiet() RecorderOption {
	return WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

type fixedIDs []string

func (f *fixedIDs) Generate() string {
	id := (*f)[0]
	*f = (*f)[1:]
	return id
}

// knob is a host constant with no textual form.
type knob struct{ v float64 }

func (k *knob) IRValue() any { return k.v }

// formula is one baked test case: the function, its proxy values and the
// argument sets it is checked on.
type formula struct {
	g     *GenFunc
	proxy []any
}

func testFormulas(t *testing.T) ([]formula, *ir.Lambda) {
	t.Helper()
	x := ir.NewParam("x", ir.TFloat, 0)
	v := ir.NewParam("v", ir.TVec2, 1)

	fib := &ir.Lambda{Name: "fib", Sig: ir.Sig(ir.TFloat, ir.TFloat)}
	fibBody := ir.If(ir.Lt(x, ir.F(2)), x,
		ir.Add(ir.Invoke(fib, ir.Sub(x, ir.F(1))), ir.Invoke(fib, ir.Sub(x, ir.F(2)))))
	prog, err := eval.Compile(fibBody)
	require.NoError(t, err)
	fib.SetImpl(prog.Callable())

	return []formula{
		{g: &GenFunc{Body: ir.Add(ir.Mul(ir.F(3), x), ir.F(1)), Sig: ir.Sig(ir.TFloat, ir.TFloat), Params: []string{"x"}}},
		{g: &GenFunc{Body: ir.Mul(ir.Field(v, "X"), x), Sig: ir.Sig(ir.TFloat, ir.TFloat, ir.TVec2), Params: []string{"x", "v"}}},
		{
			g:     &GenFunc{Body: ir.Mul(x, &ir.Hoisted{Index: 0, T: ir.TFloat, Val: 4.0}), Sig: ir.Sig(ir.TFloat, ir.TFloat), Strategy: StrategyLazy, Proxies: 1},
			proxy: []any{4.0},
		},
		{g: &GenFunc{Body: ir.Mul(ir.F(2.5), ir.F(2)), Sig: ir.Sig(ir.TFloat), Strategy: StrategyInline, Decl: "base"}},
		{g: &GenFunc{Body: fibBody, Sig: fib.Sig, Original: fib, Decl: "fib", Params: []string{"n"}}},
	}, fib
}

var testArgs = [][]any{
	{0.0, ir.V2(1, 2)},
	{3.0, ir.V2(-2, 0.5)},
	{7.5, ir.V2(0, 0)},
}

func argsFor(sig ir.Signature, args []any) []any {
	return args[:len(sig.Params)]
}

func bakeFormulas(t *testing.T, key ir.FileKey, fs []formula, fib *ir.Lambda) *Recorder {
	t.Helper()
	rec := NewBaker(quiet())
	fc, err := rec.Open(key)
	require.NoError(t, err)
	_, err = fc.Reserve(fib)
	require.NoError(t, err)
	for _, f := range fs {
		fc.Record(f.g)
	}
	fc.Close()
	return rec
}

func TestRoundTrip(t *testing.T) {
	ctx := context.Background()
	key := ir.ScriptKey("bullets.cue")
	fs, fib := testFormulas(t)
	rec := bakeFormulas(t, key, fs, fib)
	require.Equal(t, 1, rec.Pending())

	dir := t.TempDir()
	report, err := rec.ExportAll(ctx, &Exporter{Dir: dir, Package: "baked", IDs: &fixedIDs{"run-1"}})
	require.NoError(t, err)
	assert.Equal(t, "run-1", report.RunID)
	assert.Equal(t, 1, report.Files)
	assert.Equal(t, 5, report.Functions)
	assert.Equal(t, []string{"baked_000.go"}, report.Batches)
	assert.NoError(t, report.Broken)
	assert.Equal(t, 0, rec.Pending())

	reg, err := LoadDir(dir, syntax.Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{key.MustID()}, reg.IDs())

	srv := NewServer(reg, quiet())
	fc, err := srv.Open(key)
	require.NoError(t, err)
	defer fc.Close()

	for i, f := range fs {
		direct, err := eval.Compile(f.g.Body)
		require.NoError(t, err)
		want := direct.Bind(f.proxy)

		got, err := fc.Next(f.g.Sig, f.proxy...)
		require.NoError(t, err, "formula %d", i)
		for _, args := range testArgs {
			a := argsFor(f.g.Sig, args)
			assert.Equal(t, want(&ir.Env{Args: a}), got(&ir.Env{Args: a}), "formula %d at %v", i, a)
		}
	}

	file, ok := reg.File(key.MustID())
	require.True(t, ok)
	a, ok := file.Decl("fib")
	require.True(t, ok)
	c, err := a.Bind(nil)
	require.NoError(t, err)
	assert.Equal(t, 55.0, c(&ir.Env{Args: []any{10.0}}))
}

func TestServeExhaustionIsFatal(t *testing.T) {
	key := ir.ScriptKey("bullets.cue")
	fs, fib := testFormulas(t)
	rec := bakeFormulas(t, key, fs, fib)
	dir := t.TempDir()
	_, err := rec.ExportAll(context.Background(), &Exporter{Dir: dir})
	require.NoError(t, err)
	reg, err := LoadDir(dir, syntax.Options{})
	require.NoError(t, err)

	srv := NewServer(reg, quiet())
	fc, err := srv.Open(key)
	require.NoError(t, err)
	for _, f := range fs {
		_, err := fc.Next(f.g.Sig, f.proxy...)
		require.NoError(t, err)
	}

	_, err = fc.Next(ir.Sig(ir.TFloat, ir.TFloat))
	require.Error(t, err)
	assert.True(t, IsExhausted(err))
	assert.True(t, IsServeError(err))

	// Poisoned: every later request fails, in any context.
	_, err = fc.Next(ir.Sig(ir.TFloat, ir.TFloat))
	assert.True(t, IsExhausted(err))
	var se *ServeError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, ErrCodePoisoned, se.Code)
	fc.Close()

	_, err = srv.Open(key)
	assert.True(t, IsExhausted(err))
}

func TestServeSignatureMismatch(t *testing.T) {
	key := ir.StringKey("3.0*x")
	fs, fib := testFormulas(t)
	rec := bakeFormulas(t, key, fs, fib)
	dir := t.TempDir()
	_, err := rec.ExportAll(context.Background(), &Exporter{Dir: dir})
	require.NoError(t, err)
	reg, err := LoadDir(dir, syntax.Options{})
	require.NoError(t, err)

	fc, err := NewServer(reg, quiet()).Open(key)
	require.NoError(t, err)
	defer fc.Close()
	_, err = fc.Next(ir.Sig(ir.TVec2, ir.TFloat))
	var se *ServeError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, ErrCodeSignatureMismatch, se.Code)
	assert.Equal(t, 0, se.Index)
	assert.False(t, IsExhausted(err))
}

func TestServeMissingFileAndProxyMismatch(t *testing.T) {
	fc, err := NewServer(NewRegistry(), quiet()).Open(ir.SiteKey("ui.go", 12))
	require.NoError(t, err)
	defer fc.Close()
	_, err = fc.Next(ir.Sig(ir.TFloat))
	var se *ServeError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, ErrCodeMissingFile, se.Code)

	reg := NewRegistry()
	key := ir.ImportPath + ".consts"
	require.NoError(t, reg.Add(File{
		ID:        ir.ImportKey(key).MustID(),
		Artifacts: []Artifact{Lazy("float()", 1, func(proxy []any, env *ir.Env) float64 { return proxy[0].(float64) })},
	}))
	fc2, err := NewServer(reg, quiet()).Open(ir.ImportKey(key))
	require.NoError(t, err)
	defer fc2.Close()
	_, err = fc2.Next(ir.Sig(ir.TFloat))
	require.ErrorAs(t, err, &se)
	assert.Equal(t, ErrCodeProxyMismatch, se.Code)
}

func TestRuntimeArtifacts(t *testing.T) {
	calls := 0
	c := Constant("float()", func(proxy []any, env *ir.Env) float64 {
		calls++
		return 2.5
	})
	f1, err := c.Bind(nil)
	require.NoError(t, err)
	f2, err := c.Bind(nil)
	require.NoError(t, err)
	assert.Equal(t, 2.5, f1(nil))
	assert.Equal(t, 2.5, f2(nil))
	assert.Equal(t, 1, calls, "constants are computed once")

	void := Direct("void(float)", func(proxy []any, env *ir.Env) struct{} { return struct{}{} })
	f, err := void.Bind(nil)
	require.NoError(t, err)
	assert.Nil(t, f(&ir.Env{Args: []any{1.0}}))

	caught := false
	Try(func() { panic("boom") }, func() { caught = true })
	assert.True(t, caught)
}

func recoverDiscipline(f func()) (err *DisciplineError) {
	defer func() {
		if r := recover(); r != nil {
			err, _ = r.(*DisciplineError)
		}
	}()
	f()
	return nil
}

func TestContextDiscipline(t *testing.T) {
	rec := NewBaker(quiet())
	outer, err := rec.Open(ir.ScriptKey("outer.cue"))
	require.NoError(t, err)
	inner, err := rec.Open(ir.ScriptKey("inner.cue"))
	require.NoError(t, err)
	assert.Same(t, inner, rec.Current())
	assert.Same(t, outer, inner.Parent())

	derr := recoverDiscipline(outer.Close)
	require.NotNil(t, derr, "closing the outer context first panics")
	assert.Equal(t, outer.ID, derr.FileID)
	assert.True(t, IsDisciplineError(derr))

	inner.Close()
	assert.NotNil(t, recoverDiscipline(inner.Close), "closing twice panics")
	assert.NotNil(t, recoverDiscipline(func() { inner.Record(&GenFunc{Body: ir.F(1), Sig: ir.Sig(ir.TFloat)}) }))
	assert.NotNil(t, recoverDiscipline(func() { _, _ = outer.Next(ir.Sig(ir.TFloat)) }), "bake contexts do not serve")

	outer.Close()
	assert.Nil(t, rec.Current())
}

func TestDuplicateAndEmptyFilesAreNotExported(t *testing.T) {
	rec := NewBaker(quiet())
	key := ir.ScriptKey("bullets.cue")
	body := ir.Mul(ir.F(2), ir.NewParam("x", ir.TFloat, 0))

	first, err := rec.Open(key)
	require.NoError(t, err)
	n1 := first.Record(&GenFunc{Body: body, Sig: ir.Sig(ir.TFloat, ir.TFloat)})
	first.Close()

	again, err := rec.Open(key)
	require.NoError(t, err)
	assert.True(t, again.Duplicate())
	shared := &knob{v: 2}
	n2 := again.Record(&GenFunc{Body: body, Sig: ir.Sig(ir.TFloat, ir.TFloat), Original: shared})
	again.Close()
	assert.NotEqual(t, n1, n2, "names stay unique across duplicate contexts")
	_, tracked := rec.Refs().Name(shared)
	assert.False(t, tracked, "functions of a duplicate are never referenced")

	later, err := rec.Open(ir.ScriptKey("later.cue"))
	require.NoError(t, err)
	g := &GenFunc{Body: body, Sig: ir.Sig(ir.TFloat, ir.TFloat), Original: shared}
	n3 := later.Record(g)
	later.Close()
	assert.False(t, g.Alias)
	assert.NotEmpty(t, g.Source)
	assert.NotEqual(t, n2, n3)

	empty, err := rec.Open(ir.ScriptKey("empty.cue"))
	require.NoError(t, err)
	empty.Close()

	assert.Equal(t, 2, rec.Pending())
}

func TestReferencesAreByIdentity(t *testing.T) {
	rec := NewBaker(quiet())
	fc, err := rec.Open(ir.ScriptKey("refs.cue"))
	require.NoError(t, err)
	defer fc.Close()

	same := &knob{v: 1}
	twin := &knob{v: 1}
	body := ir.F(1)
	a := fc.Record(&GenFunc{Body: body, Sig: ir.Sig(ir.TFloat), Original: same})
	g := &GenFunc{Body: body, Sig: ir.Sig(ir.TFloat), Original: same}
	b := fc.Record(g)
	c := fc.Record(&GenFunc{Body: body, Sig: ir.Sig(ir.TFloat), Original: twin})

	assert.Equal(t, a, b)
	assert.True(t, g.Alias)
	assert.Empty(t, g.Source)
	assert.NotEqual(t, a, c, "equal contents are not the same object")
	assert.Equal(t, 3, fc.Len())

	name, ok := rec.Refs().Name(same)
	require.True(t, ok)
	assert.Equal(t, a, name)
}

func TestUnprintableBodyBecomesStub(t *testing.T) {
	ctx := context.Background()
	rec := NewBaker(quiet())
	key := ir.ScriptKey("knobs.cue")
	fc, err := rec.Open(key)
	require.NoError(t, err)
	x := ir.NewParam("x", ir.TFloat, 0)
	bad := &GenFunc{Body: ir.Mul(x, ir.Opaque(&knob{v: 2})), Sig: ir.Sig(ir.TFloat, ir.TFloat)}
	fc.Record(bad)
	good := &GenFunc{Body: ir.Add(x, ir.F(1)), Sig: ir.Sig(ir.TFloat, ir.TFloat)}
	fc.Record(good)

	// A reservation that is never recorded still gets a body.
	_, err = fc.Reserve(&ir.Lambda{Name: "orphan", Sig: ir.Sig(ir.TFloat, ir.TFloat)})
	require.NoError(t, err)
	fc.Close()

	assert.NotEmpty(t, bad.Broken)
	assert.Contains(t, bad.Source, syntax.Unreachable)
	assert.Empty(t, good.Broken)

	dir := t.TempDir()
	report, err := rec.ExportAll(ctx, &Exporter{Dir: dir})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Functions, "the orphan stub is not an artifact")
	assert.Len(t, multierr.Errors(report.Broken), 1)

	reg, err := LoadDir(dir, syntax.Options{})
	require.NoError(t, err)
	loaded, ok := reg.File(key.MustID())
	require.True(t, ok)
	assert.Equal(t, bad.Broken, loaded.Artifacts[0].Broken)
	assert.Empty(t, loaded.Artifacts[1].Broken)

	srv, err := NewServer(reg, quiet()).Open(key)
	require.NoError(t, err)
	defer srv.Close()

	stubbed, err := srv.Next(bad.Sig)
	require.NoError(t, err)
	assert.PanicsWithValue(t, syntax.Unreachable+bad.Broken, func() { stubbed(&ir.Env{Args: []any{1.0}}) })
	working, err := srv.Next(good.Sig)
	require.NoError(t, err)
	assert.Equal(t, 3.0, working(&ir.Env{Args: []any{2.0}}))
}

func TestExportBatchesAndLedger(t *testing.T) {
	ctx := context.Background()
	rec := NewBaker(quiet())
	x := ir.NewParam("x", ir.TFloat, 0)
	for _, src := range []string{"a.cue", "b.cue", "c.cue"} {
		fc, err := rec.Open(ir.ScriptKey(src))
		require.NoError(t, err)
		for i := 0; i < 3; i++ {
			fc.Record(&GenFunc{Body: ir.Add(x, ir.F(float64(i))), Sig: ir.Sig(ir.TFloat, ir.TFloat)})
		}
		fc.Close()
	}

	ledger, err := store.Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	defer ledger.Close()

	dir := t.TempDir()
	report, err := rec.ExportAll(ctx, &Exporter{Dir: dir, Package: "baked", BatchSize: 4, Ledger: ledger, IDs: &fixedIDs{"run-1"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"baked_000.go", "baked_001.go", "baked_002.go"}, report.Batches)

	for _, name := range report.Batches {
		data, err := os.ReadFile(filepath.Join(dir, name))
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(string(data), generatedHeader))
		assert.LessOrEqual(t, strings.Count(string(data), "\nfunc "), 4)
	}

	run, err := ledger.LatestRun(ctx)
	require.NoError(t, err)
	assert.Equal(t, "run-1", run.ID)
	assert.Equal(t, 3, run.Batches)
	require.Len(t, run.Files, 3)
	assert.Equal(t, "baked_000.go", run.Files[0].Functions[0].Batch)
	assert.Equal(t, "baked_002.go", run.Files[2].Functions[2].Batch)
	assert.Equal(t, "static", run.Files[1].Functions[0].Strategy)

	// Nothing new: the second export writes nothing and records no run.
	again, err := rec.ExportAll(ctx, &Exporter{Dir: dir, Ledger: ledger})
	require.NoError(t, err)
	assert.Empty(t, again.RunID)
	runs, err := ledger.Runs(ctx)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestExporterCapsBatchSize(t *testing.T) {
	e := &Exporter{Dir: "out", BatchSize: 1000}
	require.NoError(t, e.defaults())
	assert.Equal(t, MaxBatch, e.BatchSize)
	assert.Equal(t, DefaultPackage, e.Package)

	assert.Error(t, (&Exporter{}).defaults())
}

func TestGoldenIndex(t *testing.T) {
	sig := ir.Sig(ir.TFloat, ir.TFloat)
	fib := &GenFunc{Name: "f_01234567_0", Sig: sig, Decl: "fib"}
	files := []ExportedFile{{
		ID:   "script-0123456789abcdef",
		Kind: ir.KindScript,
		Funcs: []*GenFunc{
			fib,
			{Name: "f_01234567_1", Sig: ir.Sig(ir.TVec2, ir.TFloat), Strategy: StrategyLazy, Proxies: 2},
			{Name: "f_01234567_2", Sig: ir.Sig(ir.TFloat), Strategy: StrategyInline},
			{Name: "f_01234567_0", Sig: sig, Alias: true},
			{Name: "f_01234567_3", Sig: sig, Detached: true},
		},
		Decls: map[string]int{"fib": 0, "base": 2},
	}}

	src, err := format.Source(indexSource("baked", files))
	require.NoError(t, err)

	g := goldie.New(t, goldie.WithFixtureDir("testdata/golden"), goldie.WithNameSuffix(".golden"))
	g.Assert(t, "index", src)
}

func TestFailedFormulaKeepsItsPlace(t *testing.T) {
	key := ir.ScriptKey("mixed.cue")
	x := ir.NewParam("x", ir.TFloat, 0)
	sig := ir.Sig(ir.TFloat, ir.TFloat)

	rec := NewBaker(quiet())
	fc, err := rec.Open(key)
	require.NoError(t, err)
	fc.Record(&GenFunc{Body: ir.Add(x, ir.F(1)), Sig: sig, Params: []string{"x"}})
	failedName := fc.Record(&GenFunc{Sig: sig, Params: []string{"x"}, Failed: "RESOLUTION", Broken: "unknown name y"})
	fc.Record(&GenFunc{Body: ir.Add(x, ir.F(100)), Sig: sig, Params: []string{"x"}})
	fc.Close()

	dir := t.TempDir()
	report, err := rec.ExportAll(context.Background(), &Exporter{Dir: dir})
	require.NoError(t, err)
	assert.Equal(t, 3, report.Functions)
	require.Len(t, multierr.Errors(report.Broken), 1)
	index, err := os.ReadFile(filepath.Join(dir, IndexFile))
	require.NoError(t, err)
	assert.Contains(t, string(index), `bake.Failed("float(float)", "RESOLUTION", "unknown name y", `+failedName+`)`)

	reg, err := LoadDir(dir, syntax.Options{})
	require.NoError(t, err)
	srv := NewServer(reg, quiet())
	sfc, err := srv.Open(key)
	require.NoError(t, err)
	defer sfc.Close()

	first, err := sfc.Next(sig)
	require.NoError(t, err)
	assert.Equal(t, 3.0, first(&ir.Env{Args: []any{2.0}}))

	_, err = sfc.Next(sig)
	var fe *FormulaError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "RESOLUTION", fe.Code)
	assert.Equal(t, "unknown name y", fe.Reason)
	assert.Equal(t, 1, fe.Index)
	assert.False(t, IsServeError(err))

	third, err := sfc.Next(sig)
	require.NoError(t, err, "the formula after the failed one is served in order")
	assert.Equal(t, 102.0, third(&ir.Env{Args: []any{2.0}}))
	assert.NoError(t, srv.Err())
}

func TestCompiledFailedArtifact(t *testing.T) {
	key := ir.SiteKey("hud.go", 12)
	reg := NewRegistry()
	require.NoError(t, reg.Add(File{
		ID: key.MustID(),
		Artifacts: []Artifact{
			Failed("float(float)", "DIFFERENTIATION", "pow exponent is not constant", func(proxy []any, env *ir.Env) float64 {
				panic(syntax.Unreachable + "pow exponent is not constant")
			}),
			Direct("float(float)", func(proxy []any, env *ir.Env) float64 { return env.Args[0].(float64) * 2 }),
		},
	}))

	srv := NewServer(reg, quiet())
	fc, err := srv.Open(key)
	require.NoError(t, err)
	defer fc.Close()

	_, err = fc.Next(ir.Sig(ir.TFloat, ir.TFloat), 1.0)
	require.True(t, IsFormulaError(err), "a failed artifact is reported before its proxies are bound")
	next, err := fc.Next(ir.Sig(ir.TFloat, ir.TFloat))
	require.NoError(t, err)
	assert.Equal(t, 8.0, next(&ir.Env{Args: []any{4.0}}))
}
