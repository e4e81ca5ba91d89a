// Package config holds CLI defaults loaded from an optional YAML or TOML file
// and environment overrides. Command-line flags are applied on top by the CLI.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"ctxpack/internal/draft"
)

// Environment variables read by Load.
const (
	EnvModel               = "CTXPACK_MODEL"
	EnvMergeMaxTokens      = "CTXPACK_MERGE_MAX_TOKENS"
	EnvStrictOrder         = "CTXPACK_STRICT_ORDER"
	EnvLogLevel            = "CTXPACK_LOG_LEVEL"
	EnvDeterminismCheck    = "CTX_DETERMINISM_CHECK"
	EnvDeterminismMismatch = "CTX_DETERMINISM_FORCE_MISMATCH"
	EnvDeterminismParallel = "CTXPACK_DETERMINISM_PARALLEL"
	EnvDeterminismSeed     = "CTXPACK_DETERMINISM_SEED"
)

// Config holds ctxpack settings.
type Config struct {
	Model          string                      `yaml:"model" toml:"model"`
	MergeMaxTokens int                         `yaml:"merge_max_tokens" toml:"merge_max_tokens"`
	StrictOrder    bool                        `yaml:"strict_order" toml:"strict_order"`
	SectionCaps    map[string]draft.SectionCap `yaml:"section_caps" toml:"section_caps"`

	Determinism DeterminismConfig `yaml:"determinism" toml:"determinism"`
	Log         LogConfig         `yaml:"log" toml:"log"`
}

// DeterminismConfig configures the double-run check.
type DeterminismConfig struct {
	Enabled       bool   `yaml:"enabled" toml:"enabled"`
	Parallel      bool   `yaml:"parallel" toml:"parallel"`
	Seed          uint64 `yaml:"seed" toml:"seed"`
	ForceMismatch bool   `yaml:"force_mismatch" toml:"force_mismatch"`
}

// LogConfig configures the zap logger. An empty level disables logging.
type LogConfig struct {
	Level string `yaml:"level" toml:"level"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Model:       "gpt-4",
		SectionCaps: map[string]draft.SectionCap{},
		Determinism: DeterminismConfig{Seed: 1},
	}
}

// Load returns Default() merged with the file at path (when path is not
// empty) and then with environment overrides. The file format follows the
// extension: .toml for TOML, anything else is read as YAML.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := cfg.decode(path, data); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) decode(path string, data []byte) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if err := toml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("parse config %s: %w", path, err)
		}
	default:
		if err := yaml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if c.SectionCaps == nil {
		c.SectionCaps = map[string]draft.SectionCap{}
	}
	return nil
}

func (c *Config) applyEnvOverrides() error {
	overrideString(&c.Model, EnvModel)
	overrideString(&c.Log.Level, EnvLogLevel)
	if err := overrideInt(&c.MergeMaxTokens, EnvMergeMaxTokens); err != nil {
		return err
	}
	if err := overrideUint(&c.Determinism.Seed, EnvDeterminismSeed); err != nil {
		return err
	}
	overrideBool(&c.StrictOrder, EnvStrictOrder)
	overrideBool(&c.Determinism.Enabled, EnvDeterminismCheck)
	overrideBool(&c.Determinism.ForceMismatch, EnvDeterminismMismatch)
	overrideBool(&c.Determinism.Parallel, EnvDeterminismParallel)
	return nil
}

// Validate rejects settings no run could use.
func (c *Config) Validate() error {
	if c.MergeMaxTokens < 0 {
		return fmt.Errorf("merge_max_tokens must be non-negative, got %d", c.MergeMaxTokens)
	}
	for name, cp := range c.SectionCaps {
		if !draft.IsKnownSection(name) {
			return fmt.Errorf("section_caps: unknown section %q", name)
		}
		if (cp.Tokens != nil && *cp.Tokens < 0) || (cp.Files != nil && *cp.Files < 0) {
			return fmt.Errorf("section_caps.%s: caps must be non-negative", name)
		}
	}
	return nil
}

// ParseSectionCap parses the CLI form "name=tokens,files". Either number may
// be empty ("extras=500," or "extras=,3") to leave that dimension unbounded.
func ParseSectionCap(s string) (string, draft.SectionCap, error) {
	name, limits, ok := strings.Cut(s, "=")
	name = strings.TrimSpace(name)
	if !ok || name == "" {
		return "", draft.SectionCap{}, fmt.Errorf("section cap %q: want name=tokens,files", s)
	}
	if !draft.IsKnownSection(name) {
		return "", draft.SectionCap{}, fmt.Errorf("section cap %q: unknown section %q", s, name)
	}
	tok, files, _ := strings.Cut(limits, ",")
	var cp draft.SectionCap
	var err error
	if cp.Tokens, err = capValue(tok); err != nil {
		return "", draft.SectionCap{}, fmt.Errorf("section cap %q: tokens: %w", s, err)
	}
	if cp.Files, err = capValue(files); err != nil {
		return "", draft.SectionCap{}, fmt.Errorf("section cap %q: files: %w", s, err)
	}
	if cp.Tokens == nil && cp.Files == nil {
		return "", draft.SectionCap{}, fmt.Errorf("section cap %q: no limits given", s)
	}
	return name, cp, nil
}

func capValue(s string) (*int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, fmt.Errorf("must be non-negative, got %d", n)
	}
	return &n, nil
}

func overrideString(dest *string, key string) {
	if val := os.Getenv(key); val != "" {
		*dest = val
	}
}

func overrideBool(dest *bool, key string) {
	if val := os.Getenv(key); val != "" {
		switch strings.ToLower(val) {
		case "1", "true", "yes", "y", "on":
			*dest = true
		case "0", "false", "no", "n", "off":
			*dest = false
		}
	}
}

func overrideInt(dest *int, key string) error {
	if val := os.Getenv(key); val != "" {
		parsed, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dest = parsed
	}
	return nil
}

func overrideUint(dest *uint64, key string) error {
	if val := os.Getenv(key); val != "" {
		parsed, err := strconv.ParseUint(val, 10, 64)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dest = parsed
	}
	return nil
}
