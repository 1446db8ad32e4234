// Package config loads mealgen configuration from config.yaml and the
// environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// DefaultPath is read when no explicit path is given.
const DefaultPath = "config.yaml"

// EnvPrefix marks environment overrides. Nested keys use "__", so
// MEALGEN_SERVER__PORT sets server.port.
const EnvPrefix = "MEALGEN_"

// Default generator endpoints.
const (
	DefaultRecipeEndpoint  = "https://mt10o4tzpf.execute-api.ap-northeast-1.amazonaws.com/dev/ask"
	DefaultGroceryEndpoint = "https://mt10o4tzpf.execute-api.ap-northeast-1.amazonaws.com/dev/grocery"
)

type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Generators GeneratorsConfig `koanf:"generators"`
	Storage    StorageConfig    `koanf:"storage"`
	Telemetry  TelemetryConfig  `koanf:"telemetry"`
	Log        LogConfig        `koanf:"log"`
	Upstream   UpstreamConfig   `koanf:"upstream"`
}

type ServerConfig struct {
	Port           int           `koanf:"port"`
	RequestTimeout time.Duration `koanf:"request_timeout"`
	SessionTTL     time.Duration `koanf:"session_ttl"`
}

type GeneratorsConfig struct {
	Recipe  GeneratorConfig `koanf:"recipe"`
	Grocery GeneratorConfig `koanf:"grocery"`
	// Timeout bounds a single generate call.
	Timeout time.Duration `koanf:"timeout"`
}

type GeneratorConfig struct {
	Endpoint string `koanf:"endpoint"`
}

type StorageConfig struct {
	Type   string       `koanf:"type"` // memory, sqlite, none
	SQLite SQLiteConfig `koanf:"sqlite"`
}

type SQLiteConfig struct {
	Path string `koanf:"path"`
}

type TelemetryConfig struct {
	Enabled     bool   `koanf:"enabled"`
	ServiceName string `koanf:"service_name"`
}

type LogConfig struct {
	Level  string `koanf:"level"`  // debug, info, warn, error
	Format string `koanf:"format"` // json, text
}

// UpstreamConfig configures the local gateway stand-in.
type UpstreamConfig struct {
	Port  int         `koanf:"port"`
	LLM   LLMConfig   `koanf:"llm"`
	Retry RetryConfig `koanf:"retry"`
}

type LLMConfig struct {
	BaseURL         string `koanf:"base_url"`
	APIKey          string `koanf:"api_key"`
	Model           string `koanf:"model"`
	MaxPromptTokens int    `koanf:"max_prompt_tokens"`
}

type RetryConfig struct {
	MaxAttempts int           `koanf:"max_attempts"`
	BaseDelay   time.Duration `koanf:"base_delay"`
	MaxWait     time.Duration `koanf:"max_wait"`
}

var defaults = map[string]any{
	"server.port":                    8080,
	"server.request_timeout":         "30s",
	"server.session_ttl":             "2h",
	"generators.recipe.endpoint":     DefaultRecipeEndpoint,
	"generators.grocery.endpoint":    DefaultGroceryEndpoint,
	"generators.timeout":             "60s",
	"storage.type":                   "memory",
	"storage.sqlite.path":            "mealgen.db",
	"telemetry.service_name":         "mealgen",
	"log.level":                      "info",
	"log.format":                     "json",
	"upstream.port":                  8081,
	"upstream.llm.base_url":          "https://api.openai.com/v1",
	"upstream.llm.model":             "gpt-4o-mini",
	"upstream.llm.max_prompt_tokens": 4096,
	"upstream.retry.max_attempts":    5,
	"upstream.retry.base_delay":      "500ms",
	"upstream.retry.max_wait":        "20s",
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Load reads path (DefaultPath when empty), applies environment overrides and
// fills in defaults. A missing file is not an error.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}

	k := koanf.New(".")

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	for key, value := range defaults {
		if !k.Exists(key) {
			if err := k.Set(key, value); err != nil {
				return nil, fmt.Errorf("set default %s: %w", key, err)
			}
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.Upstream.LLM.APIKey = substituteEnvVars(cfg.Upstream.LLM.APIKey)
	cfg.Generators.Recipe.Endpoint = substituteEnvVars(cfg.Generators.Recipe.Endpoint)
	cfg.Generators.Grocery.Endpoint = substituteEnvVars(cfg.Generators.Grocery.Endpoint)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	switch c.Storage.Type {
	case "memory", "sqlite", "none":
	default:
		return fmt.Errorf("unsupported storage type %q", c.Storage.Type)
	}
	if c.Storage.Type == "sqlite" && c.Storage.SQLite.Path == "" {
		return errors.New("storage.sqlite.path is required for sqlite storage")
	}
	if c.Server.Port <= 0 || c.Upstream.Port <= 0 {
		return errors.New("ports must be positive")
	}
	if c.Generators.Recipe.Endpoint == "" || c.Generators.Grocery.Endpoint == "" {
		return errors.New("generator endpoints must not be empty")
	}
	if c.Generators.Timeout <= 0 {
		return errors.New("generators.timeout must be positive")
	}
	if c.Upstream.Retry.MaxAttempts < 1 {
		return errors.New("upstream.retry.max_attempts must be at least 1")
	}
	return nil
}

func substituteEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}
