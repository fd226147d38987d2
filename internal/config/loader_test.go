package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, e := range os.Environ() {
		if len(e) > len(envPrefix) && e[:len(envPrefix)] == envPrefix {
			key := e[:len(e)]
			for i, c := range e {
				if c == '=' {
					key = e[:i]
					break
				}
			}
			os.Unsetenv(key)
		}
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	os.Setenv("KNN_PLATFORM", "web")
	os.Setenv("KNN_EMBEDDING_VERSION", "v3")
	os.Setenv("KNN_INDICES_ROOT", "/data/indices")
	os.Setenv("KNN_COUNTRIES", "FR, DE ,XX")
	defer clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "web", cfg.Platform)
	assert.Equal(t, "v3", cfg.EmbeddingVersion)
	assert.Equal(t, []string{"FR", "DE", "XX"}, cfg.Countries)
	assert.Equal(t, "XX", cfg.FallbackCountry)
	assert.Equal(t, 8, cfg.Server.WorkerThreads)
	assert.Equal(t, ":8981", cfg.Server.HTTPAddr)
}

func TestLoad_ModelsJSON(t *testing.T) {
	clearEnv(t)
	os.Setenv("KNN_PLATFORM", "web")
	os.Setenv("KNN_EMBEDDING_VERSION", "v3")
	os.Setenv("KNN_INDICES_ROOT", "/data/indices")
	os.Setenv("KNN_COUNTRIES", "FR")
	os.Setenv("KNN_MODELS_JSON", `[{"name":"avg","model_type":"average","is_default":true}]`)
	defer clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	require.Len(t, cfg.Models, 1)
	assert.Equal(t, "avg", cfg.Models[0].Name)
	assert.True(t, cfg.Models[0].IsDefault)
}

func TestConfig_Validate(t *testing.T) {
	cfg := &Config{}
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)

	cfg = &Config{
		Platform:         "web",
		EmbeddingVersion: "v3",
		IndicesRoot:      "/data",
		Countries:        []string{"FR"},
		Models: []ModelConfig{
			{Name: "a", ModelType: "average", IsDefault: true},
			{Name: "b", ModelType: "average", IsDefault: true},
		},
	}
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)

	cfg.Models[1].IsDefault = false
	assert.NoError(t, cfg.Validate())
}
