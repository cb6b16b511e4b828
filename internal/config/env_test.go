package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEnv_Defaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")

	env, err := LoadEnv()
	require.NoError(t, err)

	assert.Equal(t, "agents/registry.yaml", env.Registry)
	assert.Equal(t, time.Hour, env.TickWindow)
	assert.Equal(t, 4, env.Concurrency)
	assert.Equal(t, "sk-test", env.OpenAIAPIKey)
	assert.Equal(t, 60*time.Second, env.RequestTimeout)
	assert.Equal(t, 3, env.MaxAttempts)
	assert.Equal(t, "local", env.StorageEnv.Type)
	assert.Equal(t, "out", env.BaseDir)
}

func TestLoadEnv_NamespacedKeyWins(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-plain")
	t.Setenv("STEGAGENTS_OPENAI_API_KEY", "sk-namespaced")

	env, err := LoadEnv()
	require.NoError(t, err)
	assert.Equal(t, "sk-namespaced", env.OpenAIAPIKey)
}

func TestLoadEnv_S3RequiresBucket(t *testing.T) {
	t.Setenv("STEGAGENTS_STORAGE_TYPE", "s3")

	_, err := LoadEnv()
	assert.ErrorContains(t, err, "S3_BUCKET")
}

func TestLoadEnv_RejectsZeroConcurrency(t *testing.T) {
	t.Setenv("STEGAGENTS_CONCURRENCY", "0")

	_, err := LoadEnv()
	assert.Error(t, err)
}

func TestSlogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, (&BaseEnv{LogLevel: "debug"}).SlogLevel())
	assert.Equal(t, slog.LevelWarn, (&BaseEnv{LogLevel: "WARN"}).SlogLevel())
	assert.Equal(t, slog.LevelInfo, (&BaseEnv{LogLevel: "nonsense"}).SlogLevel())
	assert.Equal(t, slog.LevelInfo, (*BaseEnv)(nil).SlogLevel())
}
