package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/exprbake/internal/queryir"
)

func TestFindFunctions(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	for _, id := range []string{"run-2", "run-1"} {
		_, err := s.RecordRun(ctx, createTestRun(id))
		require.NoError(t, err)
	}

	all, err := s.FindFunctions(ctx, queryir.Select{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "run-2", all[0].RunID, "ordered by recording, not id")
	assert.Equal(t, "f_01234567_0", all[0].Name)
	assert.Equal(t, "f_01234567_1", all[1].Name)
	assert.Equal(t, int64(2), all[3].Seq)
	assert.Equal(t, "script", all[0].Kind)
	assert.Equal(t, "script-0123456789abcdef", all[0].FileID)

	lazy, err := s.FindFunctions(ctx, queryir.Select{Filter: queryir.Equals{Field: queryir.FieldStrategy, Value: "lazy"}})
	require.NoError(t, err)
	require.Len(t, lazy, 2)
	for _, m := range lazy {
		assert.Equal(t, "cannot print constant", m.Broken)
	}

	latest, err := s.FindFunctions(ctx, queryir.Select{
		Latest: true,
		Filter: queryir.Prefix{Field: queryir.FieldDecl, Value: "fi"},
	})
	require.NoError(t, err)
	require.Len(t, latest, 1)
	assert.Equal(t, "run-1", latest[0].RunID)
	assert.Equal(t, "fib", latest[0].Decl)
	assert.Equal(t, "baked_000.go", latest[0].Batch)
}

func TestFindFunctions_NoMatch(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	_, err := s.RecordRun(ctx, createTestRun("run-1"))
	require.NoError(t, err)

	got, err := s.FindFunctions(ctx, queryir.Select{Filter: queryir.Prefix{Field: queryir.FieldName, Value: "f_0123%"}})
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got, "percent matches literally")

	_, err = s.FindFunctions(ctx, queryir.Select{Filter: queryir.Equals{Field: "color", Value: "red"}})
	require.Error(t, err)
}
