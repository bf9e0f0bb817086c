// Package clientconfig loads the client's configuration from compiled-in
// defaults, an optional YAML file, and process environment overrides.
package clientconfig

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// Config is the client's full configuration surface: connection parameters
// plus the ambient logging and diagnostics settings.
type Config struct {
	EndpointURL       string        `yaml:"endpoint_url"`
	InitialBackoff    time.Duration `yaml:"initial_backoff_ms"`
	MaxBackoff        time.Duration `yaml:"max_backoff_ms"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
	DiagAddr          string        `yaml:"diag_addr"`
	LogLevel          string        `yaml:"log_level"`
}

// Defaults returns the compiled-in configuration: the documented backoff
// defaults (5s initial, 300s cap, ×2), no diagnostics server, info logging.
func Defaults() Config {
	return Config{
		InitialBackoff:    5 * time.Second,
		MaxBackoff:        300 * time.Second,
		BackoffMultiplier: 2,
		LogLevel:          "info",
	}
}

// fileConfig mirrors Config's YAML shape but with millisecond integers for
// the backoff fields (initial_backoff_ms, max_backoff_ms), the natural unit
// for a human-edited configuration file.
type fileConfig struct {
	EndpointURL       string  `yaml:"endpoint_url"`
	InitialBackoffMs  int64   `yaml:"initial_backoff_ms"`
	MaxBackoffMs      int64   `yaml:"max_backoff_ms"`
	BackoffMultiplier float64 `yaml:"backoff_multiplier"`
	DiagAddr          string  `yaml:"diag_addr"`
	LogLevel          string  `yaml:"log_level"`
}

func (fc fileConfig) toOverlay() Config {
	overlay := Config{
		EndpointURL:       fc.EndpointURL,
		BackoffMultiplier: fc.BackoffMultiplier,
		DiagAddr:          fc.DiagAddr,
		LogLevel:          fc.LogLevel,
	}
	if fc.InitialBackoffMs != 0 {
		overlay.InitialBackoff = time.Duration(fc.InitialBackoffMs) * time.Millisecond
	}
	if fc.MaxBackoffMs != 0 {
		overlay.MaxBackoff = time.Duration(fc.MaxBackoffMs) * time.Millisecond
	}
	return overlay
}

// Load starts with defaults, then merges user config on top to preserve
// unset defaults: an optional YAML file overrides any default for which it
// supplies a non-zero value, then environment overrides win unconditionally
// when present. ctx is accepted for consistency with the rest of the
// package's context-threaded calls; loading is a local file read and never
// blocks on it.
func Load(ctx context.Context, path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("clientconfig: read %s: %w", path, err)
			}
		} else {
			var fc fileConfig
			if err := yaml.Unmarshal(data, &fc); err != nil {
				return nil, fmt.Errorf("clientconfig: parse %s: %w", path, err)
			}
			overlay := fc.toOverlay()
			if err := mergo.Merge(&cfg, overlay, mergo.WithOverride); err != nil {
				return nil, fmt.Errorf("clientconfig: merge %s: %w", path, err)
			}
		}
	}

	applyEnv(&cfg)

	if cfg.EndpointURL == "" {
		return nil, errors.New("clientconfig: endpoint_url is required")
	}
	return &cfg, nil
}

// applyEnv overrides cfg fields from FSYNC_* environment variables, when
// present and parseable. Malformed values are ignored rather than failing
// the whole load, matching operators' expectation that a typo in an
// optional override doesn't take down the client.
func applyEnv(cfg *Config) {
	if v := os.Getenv("FSYNC_ENDPOINT_URL"); v != "" {
		cfg.EndpointURL = v
	}
	if v := os.Getenv("FSYNC_INITIAL_BACKOFF_MS"); v != "" {
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.InitialBackoff = time.Duration(ms) * time.Millisecond
		}
	}
	if v := os.Getenv("FSYNC_MAX_BACKOFF_MS"); v != "" {
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.MaxBackoff = time.Duration(ms) * time.Millisecond
		}
	}
	if v := os.Getenv("FSYNC_BACKOFF_MULTIPLIER"); v != "" {
		if m, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.BackoffMultiplier = m
		}
	}
	if v := os.Getenv("FSYNC_DIAG_ADDR"); v != "" {
		cfg.DiagAddr = v
	}
	if v := os.Getenv("FSYNC_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
}
