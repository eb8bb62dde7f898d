package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Scenario defines one round-trip scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Script is the CUE formula script. Relative paths are resolved against
	// the scenario file.
	Script string `yaml:"script"`

	// Samples are evaluated live and served, in order.
	Samples []Sample `yaml:"samples"`

	// Tolerance bounds the difference between a result and its expect
	// value. Live and served results are always compared exactly.
	Tolerance float64 `yaml:"tolerance,omitempty"`

	// RunID fixes the export run id recorded in the ledger.
	RunID string `yaml:"run_id,omitempty"`

	// BatchSize overrides the functions per generated file.
	BatchSize int `yaml:"batch_size,omitempty"`
}

// Sample is one evaluation of a named constant, function or formula.
type Sample struct {
	Formula string         `yaml:"formula"`
	Args    []any          `yaml:"args,omitempty"`
	State   map[string]any `yaml:"state,omitempty"`
	// Expect is optional. If nil only live and served results are compared.
	Expect any `yaml:"expect,omitempty"`
}

// LoadScenario reads and parses a scenario YAML file. The script path is
// resolved relative to the file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data, filepath.Dir(path))
}

// ParseScenario parses scenario YAML, resolving the script path against
// basePath when it is relative.
func ParseScenario(data []byte, basePath string) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Script != "" && !filepath.IsAbs(scenario.Script) && basePath != "" {
		scenario.Script = filepath.Join(basePath, scenario.Script)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Script == "" {
		return fmt.Errorf("script is required")
	}
	if _, err := os.Stat(s.Script); os.IsNotExist(err) {
		return fmt.Errorf("script file not found: %s", s.Script)
	}
	if len(s.Samples) == 0 {
		return fmt.Errorf("samples list is required and must be non-empty")
	}
	if s.Tolerance < 0 {
		return fmt.Errorf("tolerance must be non-negative")
	}
	if s.BatchSize < 0 {
		return fmt.Errorf("batch_size must be non-negative")
	}
	for i, sample := range s.Samples {
		if sample.Formula == "" {
			return fmt.Errorf("samples[%d]: formula is required", i)
		}
	}
	return nil
}
