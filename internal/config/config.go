// Package config loads KNN serving engine configuration from environment
// variables, following the layered defaults-then-env-override pattern the
// rest of the stack uses, via koanf.
package config

import (
	"errors"
	"fmt"
)

// ErrInvalidConfig indicates a structurally invalid configuration.
var ErrInvalidConfig = errors.New("invalid configuration")

// ModelConfig describes one user-embedding computer to load for every
// country.
type ModelConfig struct {
	Name      string `koanf:"name" json:"name"`
	Path      string `koanf:"path" json:"path"`
	ModelType string `koanf:"model_type" json:"model_type"` // "average", "tensorflow", "xla"
	IsDefault bool   `koanf:"is_default" json:"is_default"`
	Version   string `koanf:"version" json:"version"`
}

// ServerConfig holds the external boundary's listener settings.
type ServerConfig struct {
	HTTPAddr      string `koanf:"http_addr"`
	WorkerThreads int    `koanf:"worker_threads"`
}

// Config holds the complete KNN serving engine configuration.
type Config struct {
	Platform         string        `koanf:"platform"`
	EmbeddingVersion string        `koanf:"embedding_version"`
	IndicesRoot      string        `koanf:"indices_root"`
	ModelRoot        string        `koanf:"model_root"`
	Countries        []string      `koanf:"countries"`
	Models           []ModelConfig `koanf:"models"`
	Server           ServerConfig  `koanf:"server"`
	// FallbackCountry defaults to "XX". The Router does not read it: its
	// fallback for a country with no loaded service is always "XX".
	FallbackCountry string `koanf:"fallback_country"`
	// ONNXLibraryPath overrides where the neural evaluator looks for the
	// ONNX Runtime shared library. Empty means use the platform default
	// search.
	ONNXLibraryPath string `koanf:"onnx_library_path"`
}

// applyDefaults fills in the documented defaults.
func (c *Config) applyDefaults() {
	if c.FallbackCountry == "" {
		c.FallbackCountry = "XX"
	}
	if c.Server.WorkerThreads == 0 {
		c.Server.WorkerThreads = 8
	}
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = ":8981"
	}
}

// Validate checks the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.Platform == "" {
		return fmt.Errorf("%w: platform is required", ErrInvalidConfig)
	}
	if c.EmbeddingVersion == "" {
		return fmt.Errorf("%w: embedding_version is required", ErrInvalidConfig)
	}
	if c.IndicesRoot == "" {
		return fmt.Errorf("%w: indices_root is required", ErrInvalidConfig)
	}
	if len(c.Countries) == 0 {
		return fmt.Errorf("%w: at least one country is required", ErrInvalidConfig)
	}

	seenDefault := ""
	for _, m := range c.Models {
		if m.Name == "" {
			return fmt.Errorf("%w: model name is required", ErrInvalidConfig)
		}
		if m.IsDefault {
			if seenDefault != "" {
				return fmt.Errorf("%w: multiple default models (%q and %q)", ErrInvalidConfig, seenDefault, m.Name)
			}
			seenDefault = m.Name
		}
	}
	return nil
}
