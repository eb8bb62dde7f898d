// Package config loads exprbake.yaml, the settings of the offline export.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/exprbake/internal/bake"
	"github.com/roach88/exprbake/internal/flatten"
	"github.com/roach88/exprbake/internal/mathlib"
)

// DefaultFile is the configuration file looked up when none is given.
const DefaultFile = "exprbake.yaml"

// Config is the export configuration.
type Config struct {
	// OutputDir receives the generated package.
	OutputDir string `yaml:"output_dir"`

	// Package names the generated package.
	Package string `yaml:"package"`

	// BatchSize is the number of functions per batch file, at most
	// bake.MaxBatch.
	BatchSize int `yaml:"batch_size"`

	// Ledger is the SQLite export ledger. Empty disables it.
	Ledger string `yaml:"ledger"`

	// Scripts lists the CUE formula scripts to bake, in order.
	Scripts []string `yaml:"scripts"`

	Flatten Flatten `yaml:"flatten"`
}

// Flatten toggles the optional rewrites of the flattener.
type Flatten struct {
	ReducePureCalls      bool `yaml:"reduce_pure_calls"`
	ReduceConstantFields bool `yaml:"reduce_constant_fields"`
	LookupTables         bool `yaml:"lookup_tables"`
}

// Default returns the configuration used for absent keys.
func Default() *Config {
	return &Config{
		OutputDir: "baked",
		Package:   bake.DefaultPackage,
		BatchSize: bake.MaxBatch,
		Scripts:   []string{},
		Flatten: Flatten{
			ReducePureCalls:      true,
			ReduceConstantFields: true,
			LookupTables:         true,
		},
	}
}

// Load reads path. Relative paths inside the file are resolved against the
// directory holding it.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	cfg.Resolve(filepath.Dir(path))
	return cfg, nil
}

// Parse decodes a YAML document over the defaults. Unknown keys are errors.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate checks field values and caps the batch size.
func (c *Config) Validate() error {
	if c.OutputDir == "" {
		return fmt.Errorf("output_dir is required")
	}
	if !isIdent(c.Package) {
		return fmt.Errorf("package %q is not a Go identifier", c.Package)
	}
	switch {
	case c.BatchSize < 0:
		return fmt.Errorf("batch_size must be positive, got %d", c.BatchSize)
	case c.BatchSize == 0 || c.BatchSize > bake.MaxBatch:
		c.BatchSize = bake.MaxBatch
	}
	for i, s := range c.Scripts {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("scripts[%d]: empty path", i)
		}
	}
	return nil
}

// Resolve makes relative paths absolute against base.
func (c *Config) Resolve(base string) {
	join := func(p string) string {
		if p == "" || filepath.IsAbs(p) || base == "" {
			return p
		}
		return filepath.Join(base, p)
	}
	c.OutputDir = join(c.OutputDir)
	c.Ledger = join(c.Ledger)
	for i, s := range c.Scripts {
		c.Scripts[i] = join(s)
	}
}

// FlattenOptions converts the flatten section.
func (c *Config) FlattenOptions() flatten.Options {
	opts := flatten.Options{
		ReducePureCalls:      c.Flatten.ReducePureCalls,
		ReduceConstantFields: c.Flatten.ReduceConstantFields,
	}
	if c.Flatten.LookupTables {
		opts.Table = mathlib.SineTable()
	}
	return opts
}

// Exporter returns an exporter for the configured package. The ledger and
// logger are left to the caller.
func (c *Config) Exporter() *bake.Exporter {
	return &bake.Exporter{Dir: c.OutputDir, Package: c.Package, BatchSize: c.BatchSize}
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}
