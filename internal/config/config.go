// Package config loads the optional leash.yaml session configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultFile is the configuration file name looked for in the working
// directory when no path is given.
const DefaultFile = "leash.yaml"

// DefaultSignature matches the common JavaScript test runners, the
// environment this layer most often guards.
const DefaultSignature = `(?:^|[/\s])(?:jest|vitest|mocha)(?:\s|$)`

// Config is the full session configuration.
type Config struct {
	// Strict makes intercepted invocations with no registered mock fail
	// instead of degrading to the default behavior.
	Strict bool `yaml:"strict"`

	// Default is the behavior substituted for unregistered commands when
	// strict mode is off.
	Default DefaultBehavior `yaml:"default"`

	Cleanup Cleanup `yaml:"cleanup"`
}

// DefaultBehavior mirrors the registry behavior fields that make sense as
// a fallback.
type DefaultBehavior struct {
	Stdout   string `yaml:"stdout"`
	Stderr   string `yaml:"stderr"`
	ExitCode int    `yaml:"exitCode"`
}

// Cleanup configures the sweep and teardown phases.
type Cleanup struct {
	// Signature is the regular expression identifying test-runner
	// processes in the process table.
	Signature string `yaml:"signature"`

	// Workers bounds concurrent terminations.
	Workers int `yaml:"workers"`

	// GracefulTimeout bounds the cooperative phase per process.
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`

	// LogDir overrides cleanup log directory resolution.
	LogDir string `yaml:"logDir"`

	// Containers enables the leaked-container sweep during teardown.
	Containers bool `yaml:"containers"`

	compiled *regexp.Regexp
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	cfg := &Config{
		Cleanup: Cleanup{
			Signature:       DefaultSignature,
			Workers:         4,
			GracefulTimeout: 5 * time.Second,
		},
	}
	if err := cfg.Validate(); err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from the provided path. A missing file at the
// default path yields the default configuration rather than an error.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	f, err := os.Open(absPath)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			cfg := Default()
			applyEnvOverrides(cfg)
			return cfg, nil
		}
		return nil, fmt.Errorf("open config file: %w", err)
	}
	defer f.Close()

	decoder := yaml.NewDecoder(f)
	decoder.KnownFields(true)
	cfg := Default()
	if err := decoder.Decode(cfg); err != nil {
		return nil, fmt.Errorf("%s: decode: %w", absPath, err)
	}

	cfg.Cleanup.LogDir = os.ExpandEnv(cfg.Cleanup.LogDir)
	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", absPath, err)
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LEASH_STRICT_MOCKS"); v != "" {
		if strict, err := strconv.ParseBool(v); err == nil {
			cfg.Strict = strict
		}
	}
}

// Validate checks field ranges and compiles the signature.
func (c *Config) Validate() error {
	if c.Cleanup.Signature == "" {
		return fmt.Errorf("cleanup.signature must not be empty")
	}
	compiled, err := regexp.Compile(c.Cleanup.Signature)
	if err != nil {
		return fmt.Errorf("cleanup.signature: %w", err)
	}
	c.Cleanup.compiled = compiled

	if c.Cleanup.Workers < 1 {
		return fmt.Errorf("cleanup.workers must be at least 1, got %d", c.Cleanup.Workers)
	}
	if c.Cleanup.GracefulTimeout < 0 {
		return fmt.Errorf("cleanup.gracefulTimeout must not be negative")
	}
	if c.Default.ExitCode < 0 || c.Default.ExitCode > 255 {
		return fmt.Errorf("default.exitCode must be within [0, 255], got %d", c.Default.ExitCode)
	}
	return nil
}

// SignatureRegexp returns the compiled cleanup signature. Validate must have
// succeeded first.
func (c *Config) SignatureRegexp() *regexp.Regexp {
	return c.Cleanup.compiled
}
