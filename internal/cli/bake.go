package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/roach88/exprbake/internal/bake"
	"github.com/roach88/exprbake/internal/compiler"
	"github.com/roach88/exprbake/internal/config"
	"github.com/roach88/exprbake/internal/store"
)

// BakeOptions holds flags for the bake command.
type BakeOptions struct {
	*RootOptions
	Config string // path to exprbake.yaml
}

// BakeResult summarizes one bake.
type BakeResult struct {
	RunID     string   `json:"run_id,omitempty"`
	Dir       string   `json:"dir"`
	Package   string   `json:"package"`
	Scripts   int      `json:"scripts"`
	Files     int      `json:"files"`
	Functions int      `json:"functions"`
	Batches   []string `json:"batches"`
	Broken    []string `json:"broken,omitempty"`
}

// WriteText renders the result for text output.
func (r BakeResult) WriteText(w io.Writer) {
	fmt.Fprintf(w, "✓ Baked %d script(s): %d file(s), %d function(s) in %d batch(es)\n",
		r.Scripts, r.Files, r.Functions, len(r.Batches))
	fmt.Fprintf(w, "  package %s in %s\n", r.Package, r.Dir)
	if r.RunID != "" {
		fmt.Fprintf(w, "  run %s\n", r.RunID)
	}
	for _, b := range r.Broken {
		fmt.Fprintf(w, "  ! %s\n", b)
	}
}

// NewBakeCommand creates the bake command.
func NewBakeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &BakeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "bake",
		Short: "Compile configured scripts and export them as Go source",
		Long: `Compile every script listed in the configuration under bake contexts and
export all recorded functions as a generated Go package.

Scripts must compile cleanly: a single failing formula aborts the bake and
nothing is written. Functions whose bodies cannot be printed are exported
as unreachable stubs and listed in the output.

Exit codes:
  0 - Package written
  1 - A formula failed to compile
  2 - Command error (configuration, missing scripts, export failure)`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBake(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Config, "config", "c", config.DefaultFile, "configuration file")

	return cmd
}

func runBake(opts *BakeOptions, cmd *cobra.Command) error {
	out := formatter(opts.RootOptions, cmd)
	logger := out.Logger()

	cfg, err := config.Load(opts.Config)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return out.Fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("config not found: %s", opts.Config), nil)
		}
		return out.Fail(ExitCommandError, ErrCodeConfig, err.Error(), nil)
	}
	if len(cfg.Scripts) == 0 {
		return out.Fail(ExitCommandError, ErrCodeConfig, "no scripts configured", nil)
	}
	out.VerboseLog("Baking %d script(s) into %s", len(cfg.Scripts), cfg.OutputDir)

	scripts, loadErrs := LoadScripts(cfg.Scripts, LoadModeCollectAll)
	if len(loadErrs) > 0 {
		return out.Fail(ExitCommandError, ErrCodeScript, fmt.Sprintf("%d script(s) failed to load", len(loadErrs)), errorStrings(loadErrs))
	}

	comp := compiler.New(compiler.WithFlattenOptions(cfg.FlattenOptions()), compiler.WithLogger(logger))
	rec := bake.NewBaker(bake.WithLogger(logger))
	var compileErrs error
	for _, s := range scripts {
		if _, err := comp.CompileScript(rec, s); err != nil {
			compileErrs = multierr.Append(compileErrs, err)
		}
	}
	if compileErrs != nil {
		errs := multierr.Errors(compileErrs)
		return out.Fail(ExitFailure, ErrCodeCompile, fmt.Sprintf("%d formula(s) failed to compile", len(errs)), errorStrings(errs))
	}

	exporter := cfg.Exporter()
	exporter.Logger = logger
	if cfg.Ledger != "" {
		st, err := store.Open(cfg.Ledger)
		if err != nil {
			return out.Fail(ExitCommandError, ErrCodeLedger, err.Error(), nil)
		}
		defer st.Close()
		exporter.Ledger = st
	}

	report, err := rec.ExportAll(cmd.Context(), exporter)
	if err != nil {
		return out.Fail(ExitCommandError, ErrCodeExport, err.Error(), nil)
	}

	return out.Success(BakeResult{
		RunID:     report.RunID,
		Dir:       exporter.Dir,
		Package:   exporter.Package,
		Scripts:   len(scripts),
		Files:     report.Files,
		Functions: report.Functions,
		Batches:   report.Batches,
		Broken:    errorStrings(multierr.Errors(report.Broken)),
	})
}
