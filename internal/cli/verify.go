package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/exprbake/internal/bake"
	"github.com/roach88/exprbake/internal/syntax"
)

// VerifyResult describes a loaded export directory.
type VerifyResult struct {
	Dir       string       `json:"dir"`
	Files     []VerifyFile `json:"files"`
	Artifacts int          `json:"artifacts"`
	Broken    int          `json:"broken"`
}

// VerifyFile describes one exported file.
type VerifyFile struct {
	ID        string         `json:"id"`
	Artifacts int            `json:"artifacts"`
	Decls     map[string]int `json:"decls,omitempty"`
	Broken    []string       `json:"broken,omitempty"`
}

// WriteText renders the result for text output.
func (r VerifyResult) WriteText(w io.Writer) {
	for _, f := range r.Files {
		fmt.Fprintf(w, "  %s: %d artifact(s)\n", f.ID, f.Artifacts)
		for _, b := range f.Broken {
			fmt.Fprintf(w, "    ! %s\n", b)
		}
	}
	mark := "✓"
	if r.Broken > 0 {
		mark = "✗"
	}
	fmt.Fprintf(w, "%s %d file(s), %d artifact(s), %d broken\n", mark, len(r.Files), r.Artifacts, r.Broken)
}

// NewVerifyCommand creates the verify command.
func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify <dir>",
		Short: "Load an exported package and check every artifact",
		Long: `Load a package written by bake, re-read every function body and compile
it, and bind every artifact listed in the index.

Exit codes:
  0 - Every artifact loads and none is broken
  1 - Some artifacts are unreachable stubs
  2 - The package does not load`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runVerify(opts *RootOptions, dir string, cmd *cobra.Command) error {
	out := formatter(opts, cmd)

	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return out.Fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("directory not found: %s", dir), nil)
	}
	reg, err := bake.LoadDir(dir, syntax.Options{})
	if err != nil {
		return out.Fail(ExitCommandError, ErrCodeLoad, err.Error(), nil)
	}

	result := VerifyResult{Dir: dir, Files: []VerifyFile{}}
	for _, id := range reg.IDs() {
		f, _ := reg.File(id)
		vf := VerifyFile{ID: id, Artifacts: len(f.Artifacts), Decls: f.Decls}
		for i, a := range f.Artifacts {
			if _, err := a.Bind(make([]any, a.Proxies)); err != nil {
				return out.Fail(ExitCommandError, ErrCodeLoad, fmt.Sprintf("%s[%d]: %v", id, i, err), nil)
			}
			if a.Broken != "" {
				vf.Broken = append(vf.Broken, fmt.Sprintf("%s %s: %s", a.Name, a.Sig, a.Broken))
			}
		}
		out.VerboseLog("%s: %d artifact(s)", id, len(f.Artifacts))
		result.Files = append(result.Files, vf)
		result.Artifacts += vf.Artifacts
		result.Broken += len(vf.Broken)
	}

	if err := out.Success(result); err != nil {
		return err
	}
	if result.Broken > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d broken artifact(s)", result.Broken))
	}
	return nil
}
