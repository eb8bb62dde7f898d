package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(path)
	assert.NoError(t, err, "database file was not created")
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		require.NoError(t, err, "Open() iteration %d", i)
		s.Close()
	}

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	for _, table := range []string{"runs", "files", "functions"} {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?",
			table,
		).Scan(&name)
		assert.NoError(t, err, "table %q not found", table)
	}
}

func TestOpen_Pragmas(t *testing.T) {
	s := createTestStore(t)

	assert.NoError(t, s.verifyPragma("journal_mode", "wal"))
	assert.NoError(t, s.verifyPragma("foreign_keys", "1"))
	assert.NoError(t, s.verifyPragma("user_version", "1"))
}

func TestOpen_MigratesOlderLedger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	s, err := Open(path)
	require.NoError(t, err)
	_, err = s.RecordRun(context.Background(), createTestRun("run-1"))
	require.NoError(t, err)
	_, err = s.db.Exec("DROP INDEX idx_functions_file")
	require.NoError(t, err)
	_, err = s.db.Exec("PRAGMA user_version = 0")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	assert.NoError(t, s.verifyPragma("user_version", "1"))
	var name string
	err = s.db.QueryRow("SELECT name FROM sqlite_master WHERE type='index' AND name='idx_functions_file'").Scan(&name)
	assert.NoError(t, err, "index not re-created")

	runs, err := s.Runs(context.Background())
	require.NoError(t, err)
	assert.Len(t, runs, 1, "migration keeps recorded runs")
}

func TestRecordRun_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	want := createTestRun("run-1")
	got, err := s.RecordRun(ctx, want)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Seq)

	read, err := s.ReadRun(ctx, "run-1")
	require.NoError(t, err)
	want.Seq = 1
	if diff := cmp.Diff(want, read); diff != "" {
		t.Errorf("ReadRun mismatch (-want +got):\n%s", diff)
	}
}

func TestRecordRun_Idempotent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, err := s.RecordRun(ctx, createTestRun("run-1"))
	require.NoError(t, err)
	again, err := s.RecordRun(ctx, createTestRun("run-1"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), again.Seq)

	runs, err := s.Runs(ctx)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestRuns_OrderedBySeq(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"run-b", "run-a", "run-c"} {
		_, err := s.RecordRun(ctx, createTestRun(id))
		require.NoError(t, err)
	}

	runs, err := s.Runs(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, "run-b", runs[0].ID)
	assert.Equal(t, "run-a", runs[1].ID)
	assert.Equal(t, "run-c", runs[2].ID)
	assert.Equal(t, int64(3), runs[2].Seq)
	assert.Nil(t, runs[0].Files, "listing does not load files")

	latest, err := s.LatestRun(ctx)
	require.NoError(t, err)
	assert.Equal(t, "run-c", latest.ID)
	assert.Len(t, latest.Files, 1)
}

func TestReadRun_NotFound(t *testing.T) {
	s := createTestStore(t)

	_, err := s.ReadRun(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrRunNotFound)

	_, err = s.LatestRun(context.Background())
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestRuns_EmptyLedger(t *testing.T) {
	s := createTestStore(t)

	runs, err := s.Runs(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, runs)
	assert.Empty(t, runs)
}

func TestMarshalImports_Canonical(t *testing.T) {
	data, err := marshalImports([]string{"math", "github.com/roach88/exprbake/internal/ir"})
	require.NoError(t, err)
	assert.Equal(t, `["math","github.com/roach88/exprbake/internal/ir"]`, data)

	back, err := unmarshalImports(data)
	require.NoError(t, err)
	assert.Equal(t, []string{"math", "github.com/roach88/exprbake/internal/ir"}, back)

	empty, err := unmarshalImports("[]")
	require.NoError(t, err)
	assert.Equal(t, []string{}, empty)
}
