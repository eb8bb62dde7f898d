package harness

// SampleResult is the outcome of one sample.
type SampleResult struct {
	Formula string `json:"formula"`
	Args    []any  `json:"args"`
	Live    any    `json:"live"`
	Served  any    `json:"served"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every sample matched.
	Pass bool `json:"pass"`

	RunID     string `json:"run_id"`
	Files     int    `json:"files"`
	Functions int    `json:"functions"`

	// Artifacts describes every loaded artifact as "<index> <strategy> <sig>",
	// in file then index order.
	Artifacts []string `json:"artifacts"`

	// Decls lists script-level declarations as "<name>=<index>", sorted.
	Decls []string `json:"decls"`

	Samples []SampleResult `json:"samples"`

	// Errors contains mismatch and evaluation messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:      true,
		Artifacts: []string{},
		Decls:     []string{},
		Samples:   []SampleResult{},
		Errors:    []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
