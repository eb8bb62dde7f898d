package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/exprbake/internal/bake"
	"github.com/roach88/exprbake/internal/mathlib"
)

func TestParseEmptyUsesDefaults(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)

	if diff := cmp.Diff(Default(), cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "baked", cfg.OutputDir)
	assert.Equal(t, "baked", cfg.Package)
	assert.Equal(t, bake.MaxBatch, cfg.BatchSize)
	assert.Empty(t, cfg.Ledger)
	assert.Empty(t, cfg.Scripts)
}

func TestLoadResolvesRelativePaths(t *testing.T) {
	cfg, err := Load(filepath.Join("testdata", "exprbake.yaml"))
	require.NoError(t, err)

	want := &Config{
		OutputDir: filepath.Join("testdata", "gen", "baked"),
		Package:   "bullets",
		BatchSize: 120,
		Ledger:    filepath.Join("testdata", "exports.db"),
		Scripts:   []string{filepath.Join("testdata", "scripts", "bullets.cue"), "/abs/enemies.cue"},
		Flatten: Flatten{
			ReducePureCalls:      true,
			ReduceConstantFields: true,
			LookupTables:         false,
		},
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	_, err := Parse([]byte("output_dir: out\nbatchsize: 10\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "batchsize")

	_, err = Parse([]byte("flatten:\n  lookup_table: true\n"))
	require.Error(t, err)
}

func TestBatchSizeIsCapped(t *testing.T) {
	cfg, err := Parse([]byte("batch_size: 5000\n"))
	require.NoError(t, err)
	assert.Equal(t, bake.MaxBatch, cfg.BatchSize)

	_, err = Parse([]byte("batch_size: -1\n"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"empty output", "output_dir: \"\"\n"},
		{"bad package", "package: 9lives\n"},
		{"dashed package", "package: my-pkg\n"},
		{"blank script", "scripts: [\"  \"]\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid config")
		})
	}
}

func TestFlattenOptions(t *testing.T) {
	cfg := Default()
	opts := cfg.FlattenOptions()
	assert.True(t, opts.ReducePureCalls)
	assert.True(t, opts.ReduceConstantFields)
	assert.Same(t, mathlib.SineTable(), opts.Table)

	cfg.Flatten.LookupTables = false
	assert.Nil(t, cfg.FlattenOptions().Table)
}

func TestExporter(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, DefaultFile)
	require.NoError(t, os.WriteFile(path, []byte("package: gen\nbatch_size: 50\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	e := cfg.Exporter()
	assert.Equal(t, filepath.Join(dir, "baked"), e.Dir)
	assert.Equal(t, "gen", e.Package)
	assert.Equal(t, 50, e.BatchSize)
	assert.Nil(t, e.Ledger)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}
