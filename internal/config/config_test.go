package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing.yaml")

	t.Run("defaults", func(t *testing.T) {
		cfg, err := Load(missing)
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}

		if cfg.Server.Port != 8080 {
			t.Errorf("Server.Port = %v, want 8080", cfg.Server.Port)
		}
		if cfg.Server.RequestTimeout != 30*time.Second {
			t.Errorf("Server.RequestTimeout = %v, want 30s", cfg.Server.RequestTimeout)
		}
		if cfg.Generators.Timeout != time.Minute {
			t.Errorf("Generators.Timeout = %v, want 1m", cfg.Generators.Timeout)
		}
		if cfg.Generators.Recipe.Endpoint != DefaultRecipeEndpoint {
			t.Errorf("recipe endpoint = %q", cfg.Generators.Recipe.Endpoint)
		}
		if cfg.Storage.Type != "memory" {
			t.Errorf("Storage.Type = %q, want memory", cfg.Storage.Type)
		}
		if cfg.Upstream.Retry.MaxAttempts != 5 || cfg.Upstream.Retry.BaseDelay != 500*time.Millisecond {
			t.Errorf("Upstream.Retry = %+v", cfg.Upstream.Retry)
		}
	})

	t.Run("env var port override", func(t *testing.T) {
		t.Setenv("MEALGEN_SERVER__PORT", "9000")
		t.Setenv("MEALGEN_GENERATORS__TIMEOUT", "5s")

		cfg, err := Load(missing)
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if cfg.Server.Port != 9000 {
			t.Errorf("Server.Port = %v, want 9000", cfg.Server.Port)
		}
		if cfg.Generators.Timeout != 5*time.Second {
			t.Errorf("Generators.Timeout = %v, want 5s", cfg.Generators.Timeout)
		}
	})

	t.Run("file values", func(t *testing.T) {
		t.Setenv("TEST_LLM_KEY", "sk-test")
		path := writeConfig(t, t.TempDir(), `
server:
  port: 9100
generators:
  recipe:
    endpoint: http://localhost:8081/dev/ask
storage:
  type: sqlite
  sqlite:
    path: /tmp/history.db
upstream:
  llm:
    api_key: ${TEST_LLM_KEY}
`)

		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if cfg.Server.Port != 9100 {
			t.Errorf("Server.Port = %v, want 9100", cfg.Server.Port)
		}
		if cfg.Generators.Recipe.Endpoint != "http://localhost:8081/dev/ask" {
			t.Errorf("recipe endpoint = %q", cfg.Generators.Recipe.Endpoint)
		}
		if cfg.Generators.Grocery.Endpoint != DefaultGroceryEndpoint {
			t.Errorf("grocery endpoint = %q, want default", cfg.Generators.Grocery.Endpoint)
		}
		if cfg.Storage.Type != "sqlite" || cfg.Storage.SQLite.Path != "/tmp/history.db" {
			t.Errorf("Storage = %+v", cfg.Storage)
		}
		if cfg.Upstream.LLM.APIKey != "sk-test" {
			t.Errorf("APIKey = %q, want sk-test", cfg.Upstream.LLM.APIKey)
		}
	})

	t.Run("invalid storage type", func(t *testing.T) {
		t.Setenv("MEALGEN_STORAGE__TYPE", "postgres")
		if _, err := Load(missing); err == nil {
			t.Fatal("Load() should reject unknown storage type")
		}
	})

	t.Run("malformed yaml", func(t *testing.T) {
		path := writeConfig(t, t.TempDir(), "server: [")
		if _, err := Load(path); err == nil {
			t.Fatal("Load() should fail on malformed yaml")
		}
	})
}

func TestSubstituteEnvVars(t *testing.T) {
	t.Setenv("TEST_VAR", "test-value")

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "simple substitution",
			input: "${TEST_VAR}",
			want:  "test-value",
		},
		{
			name:  "substitution in string",
			input: "prefix-${TEST_VAR}-suffix",
			want:  "prefix-test-value-suffix",
		},
		{
			name:  "no substitution",
			input: "plain-string",
			want:  "plain-string",
		},
		{
			name:  "undefined var",
			input: "${UNDEFINED_VAR}",
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := substituteEnvVars(tt.input); got != tt.want {
				t.Errorf("substituteEnvVars(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestWatcherReload(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "generators:\n  timeout: 10s\n")

	w, err := NewWatcher(path, nil)
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	defer w.Close()

	if got := w.Current().Generators.Timeout; got != 10*time.Second {
		t.Fatalf("initial timeout = %v, want 10s", got)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changed := make(chan *Config, 4)
	if err := w.Watch(ctx, func(c *Config) { changed <- c }); err != nil {
		t.Fatalf("Watch() error = %v", err)
	}

	writeConfig(t, dir, "generators:\n  timeout: 20s\n")

	deadline := time.After(5 * time.Second)
	for {
		select {
		case cfg := <-changed:
			if cfg.Generators.Timeout == 20*time.Second {
				if w.Current().Generators.Timeout != 20*time.Second {
					t.Fatal("Current() not updated after reload")
				}
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for config reload")
		}
	}
}
