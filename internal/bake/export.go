package bake

import (
	"bytes"
	"context"
	"fmt"
	"go/format"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/roach88/exprbake/internal/printer"
	"github.com/roach88/exprbake/internal/store"
	"github.com/roach88/exprbake/internal/syntax"
)

// MaxBatch is the largest number of functions written to one source file.
const MaxBatch = 300

// DefaultPackage names the generated package when Exporter.Package is empty.
const DefaultPackage = "baked"

// IndexFile is the name of the generated index.
const IndexFile = "index.go"

const generatedHeader = "// Code generated by exprbake. DO NOT EDIT.\n\n"

// Ledger records export runs.
type Ledger interface {
	RecordRun(ctx context.Context, run store.Run) (store.Run, error)
}

// IDGenerator produces export run ids.
type IDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 run ids.
type UUIDv7Generator struct{}

// Generate returns a new hyphenated UUIDv7.
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Exporter writes recorded files as a Go package.
type Exporter struct {
	Dir       string
	Package   string
	BatchSize int    // functions per batch file, at most MaxBatch
	Ledger    Ledger // optional
	IDs       IDGenerator
	Logger    *slog.Logger
}

// ExportReport summarizes one ExportAll call.
type ExportReport struct {
	RunID     string
	Files     int
	Functions int
	Batches   []string
	// Broken joins the printing failures of stubbed functions. They do not
	// fail the export.
	Broken error
}

func (e *Exporter) defaults() error {
	if e.Dir == "" {
		return fmt.Errorf("export: no output directory")
	}
	if e.Package == "" {
		e.Package = DefaultPackage
	}
	if e.BatchSize <= 0 || e.BatchSize > MaxBatch {
		e.BatchSize = MaxBatch
	}
	if e.IDs == nil {
		e.IDs = UUIDv7Generator{}
	}
	if e.Logger == nil {
		e.Logger = slog.Default()
	}
	return nil
}

// ExportAll writes every file closed so far and clears the pending buffer.
// The output always covers all files this recorder has exported, so calling
// it again with nothing new leaves the directory as it is.
func (r *Recorder) ExportAll(ctx context.Context, e *Exporter) (ExportReport, error) {
	if err := e.defaults(); err != nil {
		return ExportReport{}, err
	}
	if len(r.pending) == 0 {
		e.Logger.Info("nothing to export", "dir", e.Dir)
		return ExportReport{}, nil
	}
	all := append(append([]ExportedFile(nil), r.done...), r.pending...)

	written, err := writePackage(e, all)
	if err != nil {
		return ExportReport{}, err
	}
	r.done, r.pending = all, nil

	report := ExportReport{RunID: e.IDs.Generate(), Files: len(all), Batches: written.batches}
	run := store.Run{ID: report.RunID, Dir: e.Dir, Package: e.Package, Batches: len(written.batches)}
	for _, f := range all {
		rf := store.File{ID: f.ID, Kind: string(f.Kind), Functions: []store.Function{}}
		decls := map[int]string{}
		for name, i := range f.Decls {
			decls[i] = name
		}
		for i, g := range f.Artifacts() {
			report.Functions++
			if g.Broken != "" && !g.Alias {
				report.Broken = multierr.Append(report.Broken, fmt.Errorf("%s %s: %s", f.ID, g.Name, g.Broken))
			}
			imports := g.Imports
			if imports == nil {
				imports = []string{}
			}
			rf.Functions = append(rf.Functions, store.Function{
				Name:     g.Name,
				Sig:      g.Sig.String(),
				Strategy: g.Strategy.String(),
				Decl:     decls[i],
				Batch:    written.batchOf[g],
				Imports:  imports,
				Broken:   g.Broken,
			})
		}
		run.Files = append(run.Files, rf)
	}

	if e.Ledger != nil {
		if _, err := e.Ledger.RecordRun(ctx, run); err != nil {
			return report, fmt.Errorf("export: record run: %w", err)
		}
	}
	e.Logger.Info("export complete", "run", report.RunID, "dir", e.Dir, "files", report.Files, "functions", report.Functions, "batches", len(report.Batches), "broken", len(multierr.Errors(report.Broken)))
	return report, nil
}

type writeResult struct {
	batches []string
	batchOf map[*GenFunc]string
}

func writePackage(e *Exporter, files []ExportedFile) (writeResult, error) {
	if err := os.MkdirAll(e.Dir, 0o755); err != nil {
		return writeResult{}, fmt.Errorf("export: %w", err)
	}
	stale, err := filepath.Glob(filepath.Join(e.Dir, "baked_*.go"))
	if err != nil {
		return writeResult{}, fmt.Errorf("export: %w", err)
	}
	for _, path := range stale {
		if err := os.Remove(path); err != nil {
			return writeResult{}, fmt.Errorf("export: remove stale batch: %w", err)
		}
	}

	var sources []*GenFunc
	for _, f := range files {
		for _, g := range f.Funcs {
			if !g.Alias {
				sources = append(sources, g)
			}
		}
	}

	res := writeResult{batchOf: map[*GenFunc]string{}}
	for start := 0; start < len(sources); start += e.BatchSize {
		batch := sources[start:min(start+e.BatchSize, len(sources))]
		name := fmt.Sprintf("baked_%03d.go", len(res.batches))
		if err := writeSource(filepath.Join(e.Dir, name), batchSource(e.Package, batch)); err != nil {
			return writeResult{}, err
		}
		for _, g := range batch {
			res.batchOf[g] = name
		}
		res.batches = append(res.batches, name)
	}
	for _, f := range files {
		for _, g := range f.Funcs {
			if g.Alias {
				res.batchOf[g] = ""
			}
		}
	}

	if err := writeSource(filepath.Join(e.Dir, IndexFile), indexSource(e.Package, files)); err != nil {
		return writeResult{}, err
	}
	return res, nil
}

func writeSource(path string, src []byte) error {
	formatted, err := format.Source(src)
	if err != nil {
		return fmt.Errorf("export: format %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, formatted, 0o644); err != nil {
		return fmt.Errorf("export: %w", err)
	}
	return nil
}

func batchSource(pkg string, funcs []*GenFunc) []byte {
	imports := map[string]bool{}
	for _, g := range funcs {
		for _, imp := range g.Imports {
			imports[imp] = true
		}
	}
	var buf bytes.Buffer
	buf.WriteString(generatedHeader)
	fmt.Fprintf(&buf, "package %s\n\n", pkg)
	writeImports(&buf, imports)
	for _, g := range funcs {
		if len(g.Params) > 0 {
			label := g.Decl
			if label == "" {
				label = "formula"
			}
			fmt.Fprintf(&buf, "// %s(%s)\n", label, strings.Join(g.Params, ", "))
		}
		fmt.Fprintf(&buf, "%s%s\n", syntax.SigDirective, g.Sig)
		buf.WriteString(g.Source)
		buf.WriteString("\n")
	}
	return buf.Bytes()
}

func indexSource(pkg string, files []ExportedFile) []byte {
	var buf bytes.Buffer
	buf.WriteString(generatedHeader)
	fmt.Fprintf(&buf, "package %s\n\n", pkg)
	writeImports(&buf, map[string]bool{printer.BakeImport: true})
	buf.WriteString("func init() {\n")
	for _, f := range files {
		fmt.Fprintf(&buf, "bake.Register(bake.File{\nID: %s,\nArtifacts: []bake.Artifact{\n", strconv.Quote(f.ID))
		for _, g := range f.Artifacts() {
			sig := strconv.Quote(g.Sig.String())
			switch {
			case g.Failed != "":
				fmt.Fprintf(&buf, "bake.Failed(%s, %s, %s, %s),\n", sig, strconv.Quote(g.Failed), strconv.Quote(g.Broken), g.Name)
			case g.Strategy == StrategyLazy:
				fmt.Fprintf(&buf, "bake.Lazy(%s, %d, %s),\n", sig, g.Proxies, g.Name)
			case g.Strategy == StrategyInline:
				fmt.Fprintf(&buf, "bake.Constant(%s, %s),\n", sig, g.Name)
			default:
				fmt.Fprintf(&buf, "bake.Direct(%s, %s),\n", sig, g.Name)
			}
		}
		buf.WriteString("},\n")
		if len(f.Decls) > 0 {
			names := make([]string, 0, len(f.Decls))
			for name := range f.Decls {
				names = append(names, name)
			}
			sort.Strings(names)
			buf.WriteString("Decls: map[string]int{\n")
			for _, name := range names {
				fmt.Fprintf(&buf, "%s: %d,\n", strconv.Quote(name), f.Decls[name])
			}
			buf.WriteString("},\n")
		}
		buf.WriteString("})\n")
	}
	buf.WriteString("}\n")
	return buf.Bytes()
}

func writeImports(buf *bytes.Buffer, imports map[string]bool) {
	paths := make([]string, 0, len(imports))
	for imp := range imports {
		if imp != "" {
			paths = append(paths, imp)
		}
	}
	sort.Strings(paths)
	buf.WriteString("import (\n")
	for _, imp := range paths {
		fmt.Fprintf(buf, "\t%s\n", strconv.Quote(imp))
	}
	buf.WriteString(")\n\n")
}
