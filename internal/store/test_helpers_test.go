package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// createTestStore creates a new store in a temporary directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ledger.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestRun builds a run with one file of two functions.
func createTestRun(id string) Run {
	return Run{
		ID:      id,
		Dir:     "baked",
		Package: "baked",
		Batches: 1,
		Files: []File{{
			ID:   "script-0123456789abcdef",
			Kind: "script",
			Functions: []Function{
				{Name: "f_01234567_0", Sig: "float(float)", Strategy: "static", Decl: "fib", Batch: "baked_000.go", Imports: []string{"github.com/roach88/exprbake/internal/ir"}},
				{Name: "f_01234567_1", Sig: "float(float)", Strategy: "lazy", Batch: "baked_000.go", Imports: []string{"math", "github.com/roach88/exprbake/internal/ir"}, Broken: "cannot print constant"},
			},
		}},
	}
}
