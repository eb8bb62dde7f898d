package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// copyScenario copies the turret scenario and script into a fresh tree.
func copyScenario(t *testing.T) (dir, scenario string) {
	t.Helper()
	root := t.TempDir()
	for _, rel := range []string{"scenarios/turret.yaml", "scripts/turret.cue"} {
		data, err := os.ReadFile(filepath.Join("testdata", rel))
		require.NoError(t, err)
		dst := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(dst), 0755))
		require.NoError(t, os.WriteFile(dst, data, 0644))
	}
	dir = filepath.Join(root, "scenarios")
	return dir, filepath.Join(dir, "turret.yaml")
}

func TestTestCommandMissingArgs(t *testing.T) {
	_, err := execute(t, "test")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires at least 1 arg")
}

func TestTestCommandNonExistentPath(t *testing.T) {
	out, err := execute(t, "test", filepath.Join(t.TempDir(), "absent"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "scenario path not found")
}

func TestTestCommandEmptyDir(t *testing.T) {
	dir := t.TempDir()

	out, err := execute(t, "test", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found.")

	out, err = execute(t, "--format", "json", "test", dir)
	require.NoError(t, err)
	var result TestResult
	resp := decode(t, out, &result)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 0, result.Total)
	assert.Empty(t, result.Scenarios)
}

func TestTestCommandHelp(t *testing.T) {
	out, err := execute(t, "test", "--help")
	require.NoError(t, err)
	assert.Contains(t, out, "--update")
	assert.Contains(t, out, "--filter")
}

func TestTestCommandRunsScenario(t *testing.T) {
	out, err := execute(t, "test", filepath.Join("testdata", "scenarios", "turret.yaml"))
	require.NoError(t, err)
	assert.Contains(t, out, "✓ turret_roundtrip")
	assert.Contains(t, out, "Test Summary: 1 passed, 0 failed, 1 total")
	assert.Contains(t, out, "✓ All scenarios passed")
}

func TestTestCommandGoldenLifecycle(t *testing.T) {
	dir, scenario := copyScenario(t)
	golden := filepath.Join(dir, "golden", "turret.golden")

	out, err := execute(t, "test", dir, "--update")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ turret_roundtrip (golden updated)")
	require.FileExists(t, golden)

	out, err = execute(t, "--format", "json", "test", scenario)
	require.NoError(t, err)
	var result TestResult
	decode(t, out, &result)
	require.Len(t, result.Scenarios, 1)
	assert.True(t, result.Scenarios[0].Pass)
	assert.Equal(t, "match", result.Scenarios[0].Golden)

	require.NoError(t, os.WriteFile(golden, []byte(`{"scenario":"stale"}`), 0644))
	out, err = execute(t, "test", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ turret_roundtrip")
	assert.Contains(t, out, "snapshot does not match golden file")
	assert.Contains(t, out, "Test Summary: 0 passed, 1 failed, 1 total")
}

func TestTestCommandFailingScenario(t *testing.T) {
	dir, _ := copyScenario(t)
	bad := `name: wrong_rate
script: ../scripts/turret.cue
samples:
  - formula: rate
    expect: 5.0
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "wrong.yaml"), []byte(bad), 0644))

	out, err := execute(t, "--format", "json", "test", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	resp := decode(t, out, nil)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeTest, resp.Error.Code)
	assert.Equal(t, "1 scenario(s) failed", resp.Error.Message)

	out, err = execute(t, "test", dir, "--filter", "turret")
	require.NoError(t, err)
	assert.Contains(t, out, "1 passed, 0 failed, 1 total")
}

func TestTestCommandInvalidScenario(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.yaml"), []byte("name: broken\n"), 0644))

	out, err := execute(t, "test", dir)
	require.Error(t, err)
	assert.Contains(t, out, "✗ broken.yaml")
	assert.Contains(t, out, "failed to load scenario")
}

func TestFindScenarioFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "nested"), 0755))
	for _, name := range []string{"a.yaml", "b.yml", "notes.txt", "nested/c.yaml", "nested/other.yaml"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("name: x\n"), 0644))
	}

	t.Run("directory", func(t *testing.T) {
		files, err := findScenarioFiles(dir, "")
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{
			filepath.Join(dir, "a.yaml"),
			filepath.Join(dir, "b.yml"),
			filepath.Join(dir, "nested", "c.yaml"),
			filepath.Join(dir, "nested", "other.yaml"),
		}, files)
	})

	t.Run("filter", func(t *testing.T) {
		files, err := findScenarioFiles(dir, "[ac]")
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{
			filepath.Join(dir, "a.yaml"),
			filepath.Join(dir, "nested", "c.yaml"),
		}, files)
	})

	t.Run("single file", func(t *testing.T) {
		file := filepath.Join(dir, "notes.txt")
		files, err := findScenarioFiles(file, "")
		require.NoError(t, err)
		assert.Equal(t, []string{file}, files)
	})

	t.Run("bad filter", func(t *testing.T) {
		_, err := findScenarioFiles(dir, "[")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid filter pattern")
	})

	t.Run("missing", func(t *testing.T) {
		_, err := findScenarioFiles(filepath.Join(dir, "none"), "")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "scenario path not found")
	})
}

func TestGoldenFilePath(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"scenarios/turret.yaml", "scenarios/golden/turret.golden"},
		{"/abs/path/volley.yml", "/abs/path/golden/volley.golden"},
		{"plain.yaml", "golden/plain.golden"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, filepath.FromSlash(tt.want), goldenFilePath(filepath.FromSlash(tt.input)))
		})
	}
}
