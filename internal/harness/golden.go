package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/exprbake/internal/ir"
)

// Snapshot is the deterministic part of a result: what was exported and
// what the samples evaluated to.
type Snapshot struct {
	Scenario  string
	RunID     string
	Files     int
	Functions int
	Artifacts []string
	Decls     []string
	Samples   []SampleResult
}

// toCanonicalMap converts the snapshot for ir.MarshalCanonical, which only
// accepts strings, integers, booleans, lists and objects. Values are
// rendered with formatValue.
func (s *Snapshot) toCanonicalMap() map[string]any {
	strs := func(xs []string) []any {
		out := make([]any, len(xs))
		for i, x := range xs {
			out[i] = x
		}
		return out
	}
	samples := make([]any, len(s.Samples))
	for i, r := range s.Samples {
		args := make([]any, len(r.Args))
		for j, a := range r.Args {
			args[j] = formatValue(a)
		}
		samples[i] = map[string]any{
			"formula": r.Formula,
			"args":    args,
			"value":   formatValue(r.Live),
		}
	}
	return map[string]any{
		"scenario":  s.Scenario,
		"run_id":    s.RunID,
		"files":     s.Files,
		"functions": s.Functions,
		"artifacts": strs(s.Artifacts),
		"decls":     strs(s.Decls),
		"samples":   samples,
	}
}

// SnapshotJSON renders the snapshot of result as canonical JSON, the
// content of a golden file.
func SnapshotJSON(scenarioName string, result *Result) ([]byte, error) {
	snapshot := Snapshot{
		Scenario:  scenarioName,
		RunID:     result.RunID,
		Files:     result.Files,
		Functions: result.Functions,
		Artifacts: result.Artifacts,
		Decls:     result.Decls,
		Samples:   result.Samples,
	}
	return ir.MarshalCanonical(snapshot.toCanonicalMap())
}

// RunWithGolden runs a scenario and compares its snapshot against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	return result, AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares an existing result against a golden file without
// re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	data, err := SnapshotJSON(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)
	return nil
}
