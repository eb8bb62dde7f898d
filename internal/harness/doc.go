// Package harness runs round-trip scenarios for formula scripts.
//
// A scenario names a CUE script and a list of samples. Running it compiles
// the script live under a bake recorder, exports the recorded functions to a
// temporary package, loads that package back, compiles the script again
// under a serving recorder and evaluates every sample both ways. The two
// results must be identical; a sample may also state the value it expects,
// compared within the scenario tolerance.
//
// # Scenario Format
//
//	name: volley_roundtrip
//	description: "Constants, recursion and captures survive export"
//	script: ../scripts/volley.cue
//	tolerance: 1e-9
//	run_id: volley-run
//	samples:
//	  - formula: fact
//	    args: [5.0]
//	    expect: 120.0
//	  - formula: combo
//	    args: [3.7]
//	    state: {bonus: 0.5}
//	    expect: 6.5
//
// Arguments and expected values are converted by the formula's parameter
// and return types: vectors are written as lists. State values are floats,
// booleans or vectors.
//
// # Deterministic Testing
//
// Every run records its export in an in-memory ledger under a fixed run id
// (run_id, or "test-run-default"), so snapshots compared with AssertGolden
// are byte-identical across runs. Regenerate golden files with
//
//	go test ./internal/harness -update
package harness
