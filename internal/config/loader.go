package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// envPrefix is the prefix reserved for configuration overrides.
const envPrefix = "KNN_"

// Load builds a Config from KNN_-prefixed environment variables, applying
// the documented defaults for anything left unset.
//
// Environment variables use underscores and are uppercased, e.g.:
//
//	KNN_PLATFORM=web
//	KNN_EMBEDDING_VERSION=v3
//	KNN_INDICES_ROOT=/data/indices
//	KNN_COUNTRIES=FR,DE,XX
//	KNN_SERVER_HTTP_ADDR=:8981
//	KNN_ONNX_LIBRARY_PATH=/opt/onnxruntime/lib/libonnxruntime.so
//	KNN_MODELS_JSON=[{"name":"avg","model_type":"average","is_default":true}]
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(env.Provider(envPrefix, ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("loading environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// Scalar-to-struct env mapping covers everything except the two list
	// fields (countries, models), which koanf's flat env provider cannot
	// decode unassisted: countries is a comma list, models is a JSON blob.
	if raw := os.Getenv(envPrefix + "COUNTRIES"); raw != "" {
		cfg.Countries = splitList(raw)
	}
	if raw := os.Getenv(envPrefix + "MODELS_JSON"); raw != "" {
		var models []ModelConfig
		if err := json.Unmarshal([]byte(raw), &models); err != nil {
			return nil, fmt.Errorf("parsing %sMODELS_JSON: %w", envPrefix, err)
		}
		cfg.Models = models
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// envTransform maps KNN_SERVER_HTTP_ADDR -> server.http_addr, KNN_PLATFORM
// -> platform, the same section.field_name flattening the rest of the
// stack uses for its own prefix.
func envTransform(s string) string {
	trimmed := strings.ToLower(strings.TrimPrefix(s, envPrefix))
	parts := strings.SplitN(trimmed, "_", 2)
	if len(parts) == 1 {
		return parts[0]
	}

	switch parts[0] {
	case "server":
		return "server." + parts[1]
	default:
		return trimmed
	}
}

// splitList splits a comma-separated environment value, trimming whitespace
// and dropping empty entries.
func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
