package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/exprbake/internal/queryir"
	"github.com/roach88/exprbake/internal/store"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Ledger string // path to the ledger database
	Run    string // show one run in detail
	Where  string // list functions matching a filter
	Latest bool   // restrict --where to the latest run
}

// HistoryResult lists export runs, oldest first.
type HistoryResult struct {
	Runs    []store.Run   `json:"runs,omitempty"`
	Matches []store.Match `json:"matches,omitempty"`
	query   bool
}

// WriteText renders the result for text output.
func (r HistoryResult) WriteText(w io.Writer) {
	if r.query {
		if len(r.Matches) == 0 {
			fmt.Fprintln(w, "No matching functions.")
			return
		}
		for _, m := range r.Matches {
			line := fmt.Sprintf("%4d  %s  %s %s %s", m.Seq, m.FileID, m.Name, m.Strategy, m.Sig)
			if m.Decl != "" {
				line += " = " + m.Decl
			}
			if m.Broken != "" {
				line += " ! " + m.Broken
			}
			fmt.Fprintln(w, line)
		}
		return
	}
	if len(r.Runs) == 0 {
		fmt.Fprintln(w, "No export runs recorded.")
		return
	}
	for _, run := range r.Runs {
		fmt.Fprintf(w, "%4d  %s  %s (package %s, %d batch(es))\n", run.Seq, run.ID, run.Dir, run.Package, run.Batches)
		for _, f := range run.Files {
			fmt.Fprintf(w, "      %s: %d function(s)\n", f.ID, len(f.Functions))
			for _, fn := range f.Functions {
				line := fmt.Sprintf("        %s %s %s", fn.Name, fn.Strategy, fn.Sig)
				if fn.Decl != "" {
					line += " = " + fn.Decl
				}
				if fn.Broken != "" {
					line += " ! " + fn.Broken
				}
				fmt.Fprintln(w, line)
			}
		}
	}
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List export runs recorded in the ledger",
		Long: `List the export runs recorded in an export ledger, oldest first.
With --run, show the files and functions of one run.

With --where, list the exported functions matching a filter instead.
A filter is comma-separated field=value terms; a value ending in * matches
by prefix. Fields: run, file, kind, name, sig, strategy, decl, batch, broken.

Examples:
  exprbake history --ledger exports.db
  exprbake history --ledger exports.db --where strategy=lazy
  exprbake history --ledger exports.db --where "decl=fan*,kind=script" --latest`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Ledger, "ledger", "", "path to the export ledger (required)")
	cmd.Flags().StringVar(&opts.Run, "run", "", "show one run in detail")
	cmd.Flags().StringVar(&opts.Where, "where", "", "list functions matching field=value terms")
	cmd.Flags().BoolVar(&opts.Latest, "latest", false, "with --where, search only the latest run")
	_ = cmd.MarkFlagRequired("ledger")
	cmd.MarkFlagsMutuallyExclusive("run", "where")

	return cmd
}

func runHistory(opts *HistoryOptions, cmd *cobra.Command) error {
	out := formatter(opts.RootOptions, cmd)

	// Opening would create an empty ledger.
	if _, err := os.Stat(opts.Ledger); os.IsNotExist(err) {
		return out.Fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("ledger not found: %s", opts.Ledger), nil)
	}
	st, err := store.Open(opts.Ledger)
	if err != nil {
		return out.Fail(ExitCommandError, ErrCodeLedger, err.Error(), nil)
	}
	defer st.Close()

	ctx := cmd.Context()
	if opts.Where != "" || opts.Latest {
		filter, err := queryir.Parse(opts.Where)
		if err != nil {
			return out.Fail(ExitCommandError, ErrCodeLedger, fmt.Sprintf("invalid --where: %v", err), nil)
		}
		matches, err := st.FindFunctions(ctx, queryir.Select{Filter: filter, Latest: opts.Latest})
		if err != nil {
			return out.Fail(ExitCommandError, ErrCodeLedger, err.Error(), nil)
		}
		return out.Success(HistoryResult{Matches: matches, query: true})
	}
	if opts.Run != "" {
		run, err := st.ReadRun(ctx, opts.Run)
		if errors.Is(err, store.ErrRunNotFound) {
			return out.Fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("run not found: %s", opts.Run), nil)
		}
		if err != nil {
			return out.Fail(ExitCommandError, ErrCodeLedger, err.Error(), nil)
		}
		return out.Success(HistoryResult{Runs: []store.Run{run}})
	}

	runs, err := st.Runs(ctx)
	if err != nil {
		return out.Fail(ExitCommandError, ErrCodeLedger, err.Error(), nil)
	}
	if runs == nil {
		runs = []store.Run{}
	}
	return out.Success(HistoryResult{Runs: runs})
}
