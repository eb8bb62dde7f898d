package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "exprbake", cmd.Use)
	assert.Contains(t, cmd.Long, "generated Go source")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range []string{"bake", "verify", "print", "history", "test"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err, "command %s should exist", name)
			assert.Equal(t, name, sub.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verbose := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verbose)
	assert.Equal(t, "v", verbose.Shorthand)
	assert.Equal(t, "false", verbose.DefValue)

	format := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, format)
	assert.Equal(t, "text", format.DefValue)
}

func TestCommandFlags(t *testing.T) {
	cmd := NewRootCommand()

	bakeCmd, _, err := cmd.Find([]string{"bake"})
	require.NoError(t, err)
	cfg := bakeCmd.Flags().Lookup("config")
	require.NotNil(t, cfg)
	assert.Equal(t, "c", cfg.Shorthand)
	assert.Equal(t, "exprbake.yaml", cfg.DefValue)

	printCmd, _, err := cmd.Find([]string{"print"})
	require.NoError(t, err)
	assert.NotNil(t, printCmd.Flags().Lookup("wrt"))
	assert.NotNil(t, printCmd.Flags().Lookup("formula"))

	historyCmd, _, err := cmd.Find([]string{"history"})
	require.NoError(t, err)
	assert.NotNil(t, historyCmd.Flags().Lookup("ledger"))

	testCmd, _, err := cmd.Find([]string{"test"})
	require.NoError(t, err)
	assert.NotNil(t, testCmd.Flags().Lookup("update"))
	assert.NotNil(t, testCmd.Flags().Lookup("filter"))
}

func TestInvalidFormat(t *testing.T) {
	_, err := execute(t, "--format", "xml", "verify", ".")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "invalid format")
}
