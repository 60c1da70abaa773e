// Package config loads harness settings from an optional YAML file and the
// environment.
//
// Precedence, lowest first: built-in defaults, the config file, then the
// TEST_VIM and PLUGTEST_DRIVER environment variables.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"

	"github.com/roach88/plugtest/internal/coverage"
)

//go:embed schema.cue
var schemaCUE string

const (
	// DefaultFile is read from the working directory when no path is given.
	DefaultFile = ".plugtest.yaml"

	DefaultInterpreter = "vim"
	DefaultPattern     = "*_test.vim"
	DefaultBenchCount  = 100

	// DriverScriptName is looked up next to the executable when no driver
	// script is configured.
	DriverScriptName = "testing.vim"

	EnvInterpreter  = "TEST_VIM"
	EnvDriverScript = "PLUGTEST_DRIVER"
)

// ErrInvalidConfig indicates the config file failed to parse or validate.
var ErrInvalidConfig = errors.New("invalid config")

// Config holds harness settings.
type Config struct {
	Interpreter  string `yaml:"interpreter"`
	DriverScript string `yaml:"driver_script"`
	Pattern      string `yaml:"pattern"`
	CoverageTool string `yaml:"coverage_tool"`
	BenchCount   int    `yaml:"bench_count"`

	// Source is the file the config was read from, empty for defaults.
	Source string `yaml:"-"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Interpreter:  DefaultInterpreter,
		DriverScript: defaultDriverScript(),
		Pattern:      DefaultPattern,
		CoverageTool: coverage.DefaultTool,
		BenchCount:   DefaultBenchCount,
	}
}

func defaultDriverScript() string {
	exe, err := os.Executable()
	if err != nil {
		return DriverScriptName
	}
	return filepath.Join(filepath.Dir(exe), DriverScriptName)
}

// Load builds the configuration. An empty path reads DefaultFile if it
// exists; an explicit path must exist. getenv is usually os.Getenv.
func Load(path string, getenv func(string) string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := cfg.merge(data); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		cfg.Source = path
	case errors.Is(err, os.ErrNotExist) && !explicit:
		// no project config
	default:
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if getenv != nil {
		if v := getenv(EnvInterpreter); v != "" {
			cfg.Interpreter = v
		}
		if v := getenv(EnvDriverScript); v != "" {
			cfg.DriverScript = v
		}
	}
	return cfg, nil
}

// merge validates YAML data against the schema and overlays it on cfg.
func (c *Config) merge(data []byte) error {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if raw == nil {
		raw = map[string]any{}
	}
	if err := Validate(raw); err != nil {
		return err
	}

	var file Config
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	if file.Interpreter != "" {
		c.Interpreter = file.Interpreter
	}
	if file.DriverScript != "" {
		c.DriverScript = file.DriverScript
	}
	if file.Pattern != "" {
		c.Pattern = file.Pattern
	}
	if file.CoverageTool != "" {
		c.CoverageTool = file.CoverageTool
	}
	if file.BenchCount != 0 {
		c.BenchCount = file.BenchCount
	}
	return nil
}

// Validate checks decoded config values against the embedded CUE schema.
func Validate(raw map[string]any) error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("config schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	v := ctx.Encode(raw)
	if err := v.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	if err := def.Unify(v).Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, cueerrors.Details(err, nil))
	}
	return nil
}
