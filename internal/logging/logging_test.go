package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewWithWriter(t *testing.T) {
	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewWithWriter(&buf, "info", "json")
		logger.Debug("hidden")
		logger.Info("shown", slog.String("generator", "recipe"))

		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
		if len(lines) != 1 {
			t.Fatalf("got %d lines, want 1: %q", len(lines), buf.String())
		}
		var entry map[string]any
		if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
			t.Fatalf("log line is not JSON: %v", err)
		}
		if entry["msg"] != "shown" || entry["generator"] != "recipe" {
			t.Errorf("unexpected entry %v", entry)
		}
	})

	t.Run("text", func(t *testing.T) {
		var buf bytes.Buffer
		NewWithWriter(&buf, "debug", "text").Debug("hello")
		if !strings.Contains(buf.String(), "msg=hello") {
			t.Errorf("text output = %q", buf.String())
		}
	})
}
