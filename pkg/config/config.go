// Package config holds scan configuration, loaded from flags or a YAML
// file. Validation runs before any request is sent; invalid configuration
// aborts the scan at startup.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/xssed/xssed/pkg/defaults"
	"github.com/xssed/xssed/pkg/duration"
)

// Config holds all scan options.
type Config struct {
	// Target settings
	Target   string `yaml:"target" json:"target"`
	ListFile string `yaml:"list_file,omitempty" json:"list_file,omitempty"`

	// Phase concurrency
	ReflectionConcurrency int `yaml:"reflection_concurrency" json:"reflection_concurrency"`
	VerifyConcurrency     int `yaml:"verify_concurrency" json:"verify_concurrency"`

	// Request settings
	TimeoutSeconds int    `yaml:"timeout_seconds" json:"timeout_seconds"`
	RateLimit      int    `yaml:"rate_limit" json:"rate_limit"` // requests per second, 0 disables
	Proxy          string `yaml:"proxy,omitempty" json:"proxy,omitempty"`

	// Scan shape
	WAFCheck    bool   `yaml:"waf_check" json:"waf_check"`
	MaxURLs     int    `yaml:"max_urls" json:"max_urls"`
	PayloadFile string `yaml:"payload_file,omitempty" json:"payload_file,omitempty"`

	// Verification side effects
	Screenshots   bool   `yaml:"screenshots" json:"screenshots"`
	ScreenshotDir string `yaml:"screenshot_dir,omitempty" json:"screenshot_dir,omitempty"`

	// Output settings
	OutputFile string `yaml:"output_file,omitempty" json:"output_file,omitempty"`
	Silent     bool   `yaml:"silent" json:"silent"`
	NoColor    bool   `yaml:"no_color" json:"no_color"`
}

// Default returns the standard scan configuration.
func Default() Config {
	return Config{
		ReflectionConcurrency: defaults.ConcurrencyReflection,
		VerifyConcurrency:     defaults.ConcurrencyVerify,
		TimeoutSeconds:        int(duration.HTTPScanning / time.Second),
		RateLimit:             defaults.RateLimitDefault,
		WAFCheck:              true,
		MaxURLs:               defaults.MaxURLs,
	}
}

// Load reads a YAML configuration file over the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("%w: read %s: %v", ErrInvalidConfig, path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("%w: parse %s: %v", ErrInvalidConfig, path, err)
	}
	return cfg, nil
}

// Timeout returns the per-request timeout as a duration.
func (c Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Validate checks the configuration before any request is sent.
func (c Config) Validate() error {
	if c.Target == "" && c.ListFile == "" {
		return fmt.Errorf("%w: target or list file", ErrMissingRequired)
	}
	if c.ReflectionConcurrency < 1 || c.ReflectionConcurrency > defaults.ConcurrencyMax {
		return fmt.Errorf("%w: reflection concurrency %d out of range [1, %d]",
			ErrInvalidConfig, c.ReflectionConcurrency, defaults.ConcurrencyMax)
	}
	if c.VerifyConcurrency < 1 || c.VerifyConcurrency > defaults.ConcurrencyMax {
		return fmt.Errorf("%w: verify concurrency %d out of range [1, %d]",
			ErrInvalidConfig, c.VerifyConcurrency, defaults.ConcurrencyMax)
	}
	if c.TimeoutSeconds <= 0 {
		return fmt.Errorf("%w: timeout must be positive, got %d", ErrInvalidConfig, c.TimeoutSeconds)
	}
	if c.MaxURLs < 0 {
		return fmt.Errorf("%w: max urls must not be negative, got %d", ErrInvalidConfig, c.MaxURLs)
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("%w: rate limit must not be negative, got %d", ErrInvalidConfig, c.RateLimit)
	}
	if c.PayloadFile != "" {
		if _, err := os.Stat(c.PayloadFile); err != nil {
			return fmt.Errorf("%w: payload file %s: %v", ErrInvalidConfig, c.PayloadFile, err)
		}
	}
	return nil
}
