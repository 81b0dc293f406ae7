// Package config loads the harness configuration from covregress.yaml,
// environment variables prefixed COVREGRESS_ and built-in defaults. Flags
// override loaded values in the command layer.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"

	"github.com/zjy-dev/covregress/internal/scrub"
)

// Config holds the harness configuration.
type Config struct {
	// SuiteRoot is the directory whose subdirectories are fixtures.
	SuiteRoot string `mapstructure:"suite_root"`
	// Generator is exported to recipes as the GCOVR environment variable.
	Generator string `mapstructure:"generator"`
	// Make is the build tool executable.
	Make string `mapstructure:"make"`
	// ReferenceDir is the per-fixture golden file directory name.
	ReferenceDir string `mapstructure:"reference_dir"`
	// Formats restricts the run to a subset of the known formats.
	Formats []string `mapstructure:"formats"`
	// Timeout bounds each make invocation.
	Timeout time.Duration `mapstructure:"timeout"`
	// Parallel is the number of fixtures built concurrently.
	Parallel int `mapstructure:"parallel"`
	// SkipClean leaves build artifacts in place after each fixture.
	SkipClean bool `mapstructure:"skip_clean"`
	// GenerateReference stores missing reference files from fresh output.
	GenerateReference bool `mapstructure:"generate_reference"`
	// UpdateReference overwrites stale reference files from fresh output.
	UpdateReference bool `mapstructure:"update_reference"`
	// TAPFile is an optional TAP stream output path.
	TAPFile string `mapstructure:"tap_file"`
	// JSONReport is an optional JSON report output path.
	JSONReport string `mapstructure:"json_report"`
	// LogLevel is debug, info, warn or error.
	LogLevel string `mapstructure:"log_level"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		SuiteRoot:    ".",
		Generator:    "gcovr",
		Make:         "make",
		ReferenceDir: "reference",
		Formats:      append([]string(nil), scrub.KnownFormats...),
		Timeout:      5 * time.Minute,
		Parallel:     1,
		LogLevel:     "info",
	}
}

// Load reads the configuration. With an empty configFile it searches for
// covregress.yaml in ".", ".." and "configs"; a missing file is fine and
// yields the defaults. An explicit configFile must exist.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("covregress")
		v.AddConfigPath(".")
		v.AddConfigPath("..")
		v.AddConfigPath("configs")
	}

	v.SetEnvPrefix("COVREGRESS")
	v.AutomaticEnv()

	defaults := Default()
	v.SetDefault("suite_root", defaults.SuiteRoot)
	v.SetDefault("generator", defaults.Generator)
	v.SetDefault("make", defaults.Make)
	v.SetDefault("reference_dir", defaults.ReferenceDir)
	v.SetDefault("formats", defaults.Formats)
	v.SetDefault("timeout", defaults.Timeout)
	v.SetDefault("parallel", defaults.Parallel)
	v.SetDefault("skip_clean", defaults.SkipClean)
	v.SetDefault("generate_reference", defaults.GenerateReference)
	v.SetDefault("update_reference", defaults.UpdateReference)
	v.SetDefault("tap_file", defaults.TAPFile)
	v.SetDefault("json_report", defaults.JSONReport)
	v.SetDefault("log_level", defaults.LogLevel)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config data: %w", err)
	}

	root, err := homedir.Expand(cfg.SuiteRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to expand suite root: %w", err)
	}
	cfg.SuiteRoot = root

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints and normalizes Parallel.
func (c *Config) Validate() error {
	for _, format := range c.Formats {
		if !scrub.IsKnown(format) {
			return fmt.Errorf("unknown format %q (known formats: %s)", format, strings.Join(scrub.KnownFormats, ", "))
		}
	}
	if c.GenerateReference && c.UpdateReference {
		return errors.New("generate_reference and update_reference are mutually exclusive")
	}
	if c.Parallel < 1 {
		c.Parallel = 1
	}
	return nil
}
