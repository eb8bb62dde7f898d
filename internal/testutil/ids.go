// Package testutil holds deterministic stand-ins used by tests across the
// module: run id generators and a silent logger.
package testutil

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// FixedRunGenerator returns the same export run id every time.
//
// Golden comparisons of ledger contents need a stable id. Two exports made
// with the same generator share the id, so the ledger keeps only the first.
type FixedRunGenerator struct {
	id string
}

// NewFixedRunGenerator creates a fixed generator. An empty id becomes
// "test-run-default".
func NewFixedRunGenerator(id string) *FixedRunGenerator {
	if id == "" {
		id = "test-run-default"
	}
	return &FixedRunGenerator{id: id}
}

// Generate implements bake.IDGenerator.
func (g *FixedRunGenerator) Generate() string {
	return g.id
}

// SequenceGenerator returns "<prefix>-001", "<prefix>-002", ...
//
// Safe for concurrent use.
type SequenceGenerator struct {
	mu     sync.Mutex
	prefix string
	seq    int
}

// NewSequenceGenerator creates a generator starting at 1.
func NewSequenceGenerator(prefix string) *SequenceGenerator {
	if prefix == "" {
		prefix = "run"
	}
	return &SequenceGenerator{prefix: prefix}
}

// Generate implements bake.IDGenerator.
func (g *SequenceGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq++
	return fmt.Sprintf("%s-%03d", g.prefix, g.seq)
}

// Reset restarts the sequence. The next id is "<prefix>-001".
func (g *SequenceGenerator) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq = 0
}

// DiscardLogger returns a logger that drops every record.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
