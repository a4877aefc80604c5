package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/opensource-finance/fraudlens/internal/domain"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"info":    slog.LevelInfo,
		"bogus":   slog.LevelInfo,
		"":        slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewWithWriter(t *testing.T) {
	t.Run("JSON", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewWithWriter(domain.LoggingConfig{Level: "info", Format: "json"}, &buf)
		logger.Debug("hidden")
		logger.Info("scored", "session_id", "s1")

		var rec map[string]any
		if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
			t.Fatalf("expected a single JSON record, got %q: %v", buf.String(), err)
		}
		if rec["msg"] != "scored" || rec["session_id"] != "s1" {
			t.Errorf("unexpected record: %v", rec)
		}
	})

	t.Run("Text", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewWithWriter(domain.LoggingConfig{Level: "debug", Format: "TEXT"}, &buf)
		logger.Debug("visible")

		if !strings.Contains(buf.String(), "msg=visible") {
			t.Errorf("expected text output, got %q", buf.String())
		}
	})
}
