package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestJSONFormatAndLevel(t *testing.T) {
	defer slog.SetDefault(slog.Default())
	var buf bytes.Buffer
	log := newWithWriter(&buf, "warn", "json")

	log.Info("dropped")
	log.Warn("kept", "quiz_id", 7)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one line, got %q", buf.String())
	}
	var entry map[string]interface{}
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("expected json output: %v", err)
	}
	if entry["msg"] != "kept" || entry["quiz_id"] != float64(7) {
		t.Fatalf("unexpected entry %v", entry)
	}
}

func TestTextFormat(t *testing.T) {
	defer slog.SetDefault(slog.Default())
	var buf bytes.Buffer
	log := newWithWriter(&buf, "debug", "text")
	log.Debug("hello", "session_id", "abc")
	if !strings.Contains(buf.String(), "session_id=abc") {
		t.Fatalf("expected text output, got %q", buf.String())
	}
}
