package harness

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"

	"github.com/roach88/exprbake/internal/bake"
	"github.com/roach88/exprbake/internal/compiler"
	"github.com/roach88/exprbake/internal/ir"
	"github.com/roach88/exprbake/internal/store"
	"github.com/roach88/exprbake/internal/syntax"
	"github.com/roach88/exprbake/internal/testutil"
)

// Harness runs scenarios with a fixed run id generator and an in-memory
// export ledger.
type Harness struct {
	store    *store.Store
	compiler *compiler.Compiler
	ids      bake.IDGenerator
	logger   *slog.Logger
}

// Option configures a Harness.
type Option func(*Harness)

// WithCompiler replaces the default compiler.
func WithCompiler(c *compiler.Compiler) Option {
	return func(h *Harness) { h.compiler = c }
}

// WithLogger sets the logger passed to the recorders and the exporter.
func WithLogger(l *slog.Logger) Option {
	return func(h *Harness) { h.logger = l }
}

// Run executes a scenario in a fresh harness.
//
// Execution flow:
//  1. Compile the script under a bake recorder (the live callables)
//  2. Export to a temporary directory, recording the run in the ledger
//  3. Load the directory and compile a fresh parse of the script served
//  4. Evaluate every sample live and served and compare
//
// Failing to compile, export or load is an error. Mismatches are reported
// in the result.
func Run(scenario *Scenario, opts ...Option) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	h := &Harness{
		store:  st,
		ids:    testutil.NewFixedRunGenerator(scenario.RunID),
		logger: testutil.DiscardLogger(),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.compiler == nil {
		h.compiler = compiler.New(compiler.WithLogger(h.logger))
	}

	dir, err := os.MkdirTemp("", "exprbake-harness-*")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	return h.run(context.Background(), scenario, dir)
}

func (h *Harness) run(ctx context.Context, sc *Scenario, dir string) (*Result, error) {
	script, err := compiler.LoadScript(sc.Script)
	if err != nil {
		return nil, err
	}
	baker := bake.NewBaker(bake.WithLogger(h.logger))
	live, err := h.compiler.CompileScript(baker, script)
	if err != nil {
		return nil, fmt.Errorf("bake %s: %w", script.Name, err)
	}

	report, err := baker.ExportAll(ctx, &bake.Exporter{
		Dir:       dir,
		BatchSize: sc.BatchSize,
		Ledger:    h.store,
		IDs:       h.ids,
		Logger:    h.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}

	result := NewResult()
	result.RunID, result.Files, result.Functions = report.RunID, report.Files, report.Functions
	if report.Broken != nil {
		result.AddError(fmt.Sprintf("broken functions: %v", report.Broken))
	}
	if err := h.checkLedger(ctx, report, result); err != nil {
		return nil, err
	}

	reg, err := bake.LoadDir(dir, syntax.Options{})
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", dir, err)
	}
	describe(reg, result)

	again, err := compiler.LoadScript(sc.Script)
	if err != nil {
		return nil, err
	}
	served, err := h.compiler.CompileScript(bake.NewServer(reg, bake.WithLogger(h.logger)), again)
	if err != nil {
		result.AddError(fmt.Sprintf("serve %s: %v", again.Name, err))
		return result, nil
	}

	for i, sample := range sc.Samples {
		h.sample(i, sample, sc.Tolerance, script, live, served, result)
	}
	return result, nil
}

// checkLedger reads the run back and checks it covers the report.
func (h *Harness) checkLedger(ctx context.Context, report bake.ExportReport, result *Result) error {
	run, err := h.store.ReadRun(ctx, report.RunID)
	if err != nil {
		return fmt.Errorf("ledger: %w", err)
	}
	n := 0
	for _, f := range run.Files {
		n += len(f.Functions)
	}
	if len(run.Files) != report.Files || n != report.Functions {
		result.AddError(fmt.Sprintf("ledger run %s holds %d files and %d functions, exported %d and %d",
			run.ID, len(run.Files), n, report.Files, report.Functions))
	}
	return nil
}

func describe(reg *bake.Registry, result *Result) {
	for _, id := range reg.IDs() {
		f, _ := reg.File(id)
		for i, a := range f.Artifacts {
			line := fmt.Sprintf("%d %s %s", i, a.Strategy, a.Sig)
			if a.Proxies > 0 {
				line += fmt.Sprintf(" proxies=%d", a.Proxies)
			}
			result.Artifacts = append(result.Artifacts, line)
		}
		for name, i := range f.Decls {
			result.Decls = append(result.Decls, fmt.Sprintf("%s=%d", name, i))
		}
	}
	sort.Strings(result.Decls)
}

func (h *Harness) sample(i int, s Sample, tol float64, script *compiler.Script, live, served *compiler.Compiled, result *Result) {
	fail := func(format string, args ...any) {
		result.AddError(fmt.Sprintf("samples[%d] %s: ", i, s.Formula) + fmt.Sprintf(format, args...))
	}
	f, ok := script.Lookup(s.Formula)
	if !ok {
		fail("no such formula")
		return
	}
	liveFn, ok := live.Callable(s.Formula)
	if !ok {
		fail("not compiled")
		return
	}
	servedFn, ok := served.Callable(s.Formula)
	if !ok {
		fail("not served")
		return
	}
	if len(s.Args) != len(f.Params) {
		fail("takes %d arguments, got %d", len(f.Params), len(s.Args))
		return
	}
	args := make([]any, len(s.Args))
	for j, a := range s.Args {
		v, err := convert(a, f.Params[j].Type)
		if err != nil {
			fail("argument %s: %v", f.Params[j].Name, err)
			return
		}
		args[j] = v
	}
	state := func() (ir.State, error) {
		st := ir.State{}
		for k, v := range s.State {
			sv, err := stateValue(v)
			if err != nil {
				return nil, fmt.Errorf("state %s: %w", k, err)
			}
			st.Set(k, sv)
		}
		return st, nil
	}

	var got [2]any
	for k, fn := range []ir.Callable{liveFn, servedFn} {
		st, err := state()
		if err != nil {
			fail("%v", err)
			return
		}
		if got[k], err = call(fn, &ir.Env{Args: args, State: st}); err != nil {
			fail("%s call: %v", [2]string{"live", "served"}[k], err)
			return
		}
	}
	result.Samples = append(result.Samples, SampleResult{Formula: s.Formula, Args: args, Live: got[0], Served: got[1]})

	if !within(got[0], got[1], 0) {
		fail("live %s, served %s", formatValue(got[0]), formatValue(got[1]))
	}
	if s.Expect != nil {
		want, err := convert(s.Expect, f.Ret)
		if err != nil {
			fail("expect: %v", err)
			return
		}
		if !within(want, got[0], tol) {
			fail("want %s, got %s", formatValue(want), formatValue(got[0]))
		}
	}
}

// call runs fn, turning a panic into an error.
func call(fn ir.Callable, env *ir.Env) (v any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(env), nil
}
