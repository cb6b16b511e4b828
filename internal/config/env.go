package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type BaseEnv struct {
	Env         string        `envconfig:"ENV" default:"local"`
	LogLevel    string        `envconfig:"LOG_LEVEL" default:"info"`
	Registry    string        `envconfig:"REGISTRY" default:"agents/registry.yaml"`
	TickWindow  time.Duration `envconfig:"TICK_WINDOW" default:"1h"`
	Concurrency int           `envconfig:"CONCURRENCY" default:"4"`
}

type LLMEnv struct {
	// Read from STEGAGENTS_OPENAI_API_KEY, falling back to OPENAI_API_KEY.
	OpenAIAPIKey   string        `envconfig:"OPENAI_API_KEY"`
	OpenAIBaseURL  string        `envconfig:"OPENAI_BASE_URL" default:"https://api.openai.com/v1"`
	DefaultModel   string        `envconfig:"DEFAULT_MODEL" default:"gpt-4o-mini"`
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"60s"`
	MaxAttempts    int           `envconfig:"MAX_ATTEMPTS" default:"3"`
	InitialBackoff time.Duration `envconfig:"INITIAL_BACKOFF" default:"2s"`
	MaxBackoff     time.Duration `envconfig:"MAX_BACKOFF" default:"30s"`
}

type StorageEnv struct {
	Type    string `envconfig:"STORAGE_TYPE" default:"local"`
	BaseDir string `envconfig:"STORAGE_BASE_DIR" default:"out"`
	// S3 settings (used when Type == "s3")
	S3Bucket string `envconfig:"S3_BUCKET"`
	S3Prefix string `envconfig:"S3_PREFIX" default:"stegagents/"`
	S3Region string `envconfig:"S3_REGION" default:"us-east-1"`
}

type LedgerEnv struct {
	// Empty disables the run ledger.
	Path string `envconfig:"LEDGER_PATH" default:".stegagents/ledger.db"`
}

type HookEnv struct {
	Timeout time.Duration `envconfig:"HOOK_TIMEOUT" default:"30s"`
}

type ServerEnv struct {
	HTTPHost string `envconfig:"HTTP_HOST" default:""`
	HTTPPort string `envconfig:"HTTP_PORT" default:"3200"`
	APIKey   string `envconfig:"API_KEY"`
}

type Env struct {
	BaseEnv
	LLMEnv
	StorageEnv
	LedgerEnv
	HookEnv
	ServerEnv
}

const namespace = "STEGAGENTS"

func LoadEnv() (*Env, error) {
	var env Env
	if err := envconfig.Process(namespace, &env); err != nil {
		return nil, fmt.Errorf("failed to load env: %w", err)
	}
	if err := env.validate(); err != nil {
		return nil, fmt.Errorf("invalid env: %w", err)
	}
	return &env, nil
}

func (e *Env) validate() error {
	if e.TickWindow <= 0 {
		return fmt.Errorf("%s_TICK_WINDOW must be positive", namespace)
	}
	if e.Concurrency < 1 {
		return fmt.Errorf("%s_CONCURRENCY must be at least 1", namespace)
	}
	if e.MaxAttempts < 1 {
		return fmt.Errorf("%s_MAX_ATTEMPTS must be at least 1", namespace)
	}
	switch e.StorageEnv.Type {
	case "local":
	case "s3":
		if e.S3Bucket == "" {
			return fmt.Errorf("%s_S3_BUCKET is required for s3 storage", namespace)
		}
	default:
		return fmt.Errorf("unknown storage type %q", e.StorageEnv.Type)
	}
	return nil
}

func (e *BaseEnv) SlogLevel() slog.Level {
	if e == nil {
		return slog.LevelInfo
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(e.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}
