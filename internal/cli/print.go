package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/exprbake/internal/compiler"
	"github.com/roach88/exprbake/internal/config"
	"github.com/roach88/exprbake/internal/ir"
)

// PrintOptions holds flags for the print command.
type PrintOptions struct {
	*RootOptions
	Wrt     string // differentiate formulas taking this parameter
	Formula string // print only this formula
	Config  string // optional configuration for flatten settings
}

// PrintedFormula is one flattened formula.
type PrintedFormula struct {
	Name  string `json:"name"`
	Sig   string `json:"sig"`
	Wrt   string `json:"wrt,omitempty"`
	Tree  string `json:"tree,omitempty"`
	Error string `json:"error,omitempty"`
}

// PrintResult lists the formulas of one script.
type PrintResult struct {
	Script   string           `json:"script"`
	ID       string           `json:"id"`
	Formulas []PrintedFormula `json:"formulas"`
}

// WriteText renders the result for text output.
func (r PrintResult) WriteText(w io.Writer) {
	fmt.Fprintf(w, "script %s (%s)\n", r.Script, r.ID)
	for _, f := range r.Formulas {
		name := f.Name
		if f.Wrt != "" {
			name = fmt.Sprintf("d%s/d%s", f.Name, f.Wrt)
		}
		if f.Error != "" {
			fmt.Fprintf(w, "  %s %s: error: %s\n", name, f.Sig, f.Error)
			continue
		}
		fmt.Fprintf(w, "  %s %s = %s\n", name, f.Sig, f.Tree)
	}
}

// NewPrintCommand creates the print command.
func NewPrintCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PrintOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "print <script>",
		Short: "Show the flattened trees of a script",
		Long: `Compile every constant, function and formula of a script and print the
flattened expression trees. With --wrt, formulas that take the named
parameter are differentiated with respect to it first.

Examples:
  exprbake print scripts/bullets.cue
  exprbake print scripts/bullets.cue --wrt t
  exprbake print scripts/bullets.cue --formula arc --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPrint(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Wrt, "wrt", "", "differentiate with respect to this parameter")
	cmd.Flags().StringVar(&opts.Formula, "formula", "", "print only this formula")
	cmd.Flags().StringVarP(&opts.Config, "config", "c", "", "configuration file for flatten settings")

	return cmd
}

func runPrint(opts *PrintOptions, path string, cmd *cobra.Command) error {
	out := formatter(opts.RootOptions, cmd)

	cfg := config.Default()
	if opts.Config != "" {
		var err error
		if cfg, err = config.Load(opts.Config); err != nil {
			return out.Fail(ExitCommandError, ErrCodeConfig, err.Error(), nil)
		}
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return out.Fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("script not found: %s", path), nil)
	}
	s, err := compiler.LoadScript(path)
	if err != nil {
		return out.Fail(ExitCommandError, ErrCodeScript, convertCompileError(path, err).Error(), nil)
	}

	formulas := s.All()
	if opts.Formula != "" {
		f, ok := s.Lookup(opts.Formula)
		if !ok {
			return out.Fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("no formula %q in %s", opts.Formula, s.Name), nil)
		}
		formulas = []*compiler.Formula{f}
	}

	comp := compiler.New(compiler.WithFlattenOptions(cfg.FlattenOptions()), compiler.WithLogger(out.Logger()))
	result := PrintResult{Script: s.Name, ID: s.Key.MustID(), Formulas: []PrintedFormula{}}
	failed := 0
	for _, f := range formulas {
		if opts.Wrt != "" && takes(f, opts.Wrt) {
			d := *f
			d.Wrt = opts.Wrt
			f = &d
		}
		pf := PrintedFormula{Name: f.Name, Sig: f.Signature().String(), Wrt: f.Wrt}
		tree, err := comp.Tree(f)
		if err != nil {
			pf.Error = err.Error()
			failed++
		} else {
			pf.Tree = ir.Format(tree)
		}
		result.Formulas = append(result.Formulas, pf)
	}

	if err := out.Success(result); err != nil {
		return err
	}
	if failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d formula(s) failed to compile", failed))
	}
	return nil
}

func takes(f *compiler.Formula, name string) bool {
	for _, p := range f.Params {
		if p.Name == name {
			return true
		}
	}
	return false
}
