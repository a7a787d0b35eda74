package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestLevelFromString(t *testing.T) {
	t.Parallel()

	cases := map[string]slog.Level{
		"error":   slog.LevelError,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		" debug ": slog.LevelDebug,
		"info":    slog.LevelInfo,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := levelFromString(in); got != want {
			t.Fatalf("levelFromString(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewWriterJSON(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := NewWriter(&buf, "info", "json")
	logger.Debug("hidden")
	logger.Info("score recorded", "publication_id", "p1")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one record above debug, got %d", len(lines))
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if rec["msg"] != "score recorded" || rec["publication_id"] != "p1" || rec["app"] != "papertriage" {
		t.Fatalf("unexpected record %v", rec)
	}
}

func TestNewWriterText(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	NewWriter(&buf, "debug", "").Debug("cache hit")
	if !strings.Contains(buf.String(), "msg=\"cache hit\"") {
		t.Fatalf("unexpected text output %q", buf.String())
	}
}
