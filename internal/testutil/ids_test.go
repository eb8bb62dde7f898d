package testutil

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFixedRunGenerator(t *testing.T) {
	gen := NewFixedRunGenerator("run-123")
	assert.Equal(t, "run-123", gen.Generate())
	assert.Equal(t, "run-123", gen.Generate())

	assert.Equal(t, "test-run-default", NewFixedRunGenerator("").Generate())
}

func TestSequenceGenerator(t *testing.T) {
	gen := NewSequenceGenerator("export")
	assert.Equal(t, "export-001", gen.Generate())
	assert.Equal(t, "export-002", gen.Generate())

	gen.Reset()
	assert.Equal(t, "export-001", gen.Generate())

	assert.Equal(t, "run-001", NewSequenceGenerator("").Generate())
}

func TestSequenceGeneratorConcurrent(t *testing.T) {
	gen := NewSequenceGenerator("c")

	var mu sync.Mutex
	seen := map[string]bool{}
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				id := gen.Generate()
				mu.Lock()
				seen[id] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Len(t, seen, 500)
	assert.True(t, seen["c-500"])
}

func TestDiscardLogger(t *testing.T) {
	log := DiscardLogger()
	require.NotNil(t, log)
	log.Info("dropped", "k", 1)
}
