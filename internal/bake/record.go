package bake

import (
	"github.com/roach88/exprbake/internal/ir"
)

// Strategy selects how an artifact is constructed in generated code.
type Strategy uint8

const (
	// StrategyStatic is a plain function called with a nil proxy.
	StrategyStatic Strategy = iota
	// StrategyInline is a parameterless constant, computed once on first use.
	StrategyInline
	// StrategyLazy is a loader whose proxy values are bound when served.
	StrategyLazy
)

var strategyNames = [...]string{"static", "inline", "lazy"}

func (s Strategy) String() string {
	if int(s) < len(strategyNames) {
		return strategyNames[s]
	}
	return "unknown"
}

// GenFunc is one recorded function. Callers fill Body, Sig and the optional
// fields; Record assigns Name and prints Source.
type GenFunc struct {
	Name     string
	Body     ir.Node
	Sig      ir.Signature
	Params   []string
	Original any    // identity used to deduplicate references
	Decl     string // script-level declaration name
	Strategy Strategy
	Proxies  int

	Source  string
	Imports []string
	Broken  string // printing failure; Source is then an unreachable stub

	// Failed holds the compile error code of a formula that could not be
	// built. The record only keeps the formula's place in the file, with
	// Broken as the reason and an unreachable stub as Source.
	Failed string

	// Alias marks a record whose Original was already printed under Name.
	// It adds an artifact but no source.
	Alias bool
	// Detached functions are emitted but not listed as artifacts. They stand
	// in for reserved names that were never recorded.
	Detached bool
}

// ExportedFile is the immutable result of closing a baking context.
type ExportedFile struct {
	ID    string
	Kind  ir.FileKind
	Funcs []*GenFunc
	Decls map[string]int // declaration name to artifact index
}

// Artifacts returns the functions listed in the file's index entry.
func (f ExportedFile) Artifacts() []*GenFunc {
	out := make([]*GenFunc, 0, len(f.Funcs))
	for _, g := range f.Funcs {
		if !g.Detached {
			out = append(out, g)
		}
	}
	return out
}
