package slogutil

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestHumanFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, slog.LevelInfo, FormatHuman)

	logger.Info("connection accepted", "peer", "127.0.0.1:5000", "bytes", 42)

	out := buf.String()
	for _, want := range []string{"[info] connection accepted", " | peer=127.0.0.1:5000", "bytes=42"} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q missing %q", out, want)
		}
	}
	if !strings.HasSuffix(out, "\n") {
		t.Errorf("output %q should end with a newline", out)
	}
}

func TestHumanQuotesValues(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, slog.LevelInfo, FormatHuman)

	logger.Info("x", "error", "read tcp: reset by peer", "empty", "")

	out := buf.String()
	if !strings.Contains(out, `error="read tcp: reset by peer"`) {
		t.Errorf("output %q should quote values with spaces", out)
	}
	if !strings.Contains(out, `empty=""`) {
		t.Errorf("output %q should quote empty values", out)
	}
}

func TestHumanLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, slog.LevelWarn, FormatHuman)

	logger.Info("hidden")
	logger.Warn("shown")

	if strings.Contains(buf.String(), "hidden") {
		t.Error("info record should be filtered at warn level")
	}
	if !strings.Contains(buf.String(), "[warn] shown") {
		t.Errorf("output %q missing warn record", buf.String())
	}
}

func TestHumanWithAttrsAndGroup(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, slog.LevelInfo, FormatHuman).
		With("conn", "abc").
		WithGroup("upstream")

	logger.Info("fetch", "status", 200)

	out := buf.String()
	if !strings.Contains(out, "conn=abc") {
		t.Errorf("output %q missing pre-set attr", out)
	}
	if !strings.Contains(out, "upstream.status=200") {
		t.Errorf("output %q missing grouped attr", out)
	}
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, slog.LevelInfo, "JSON")

	logger.Info("listening", "addr", "localhost:8888")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, buf.String())
	}
	if entry["msg"] != "listening" || entry["addr"] != "localhost:8888" {
		t.Errorf("entry = %v", entry)
	}
}

func TestLevelFromString(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
		"":        slog.LevelInfo,
	}
	for in, want := range tests {
		if got := LevelFromString(in); got != want {
			t.Errorf("LevelFromString(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestDiscardLogger(t *testing.T) {
	logger := NewDiscardLogger()
	if logger.Enabled(context.Background(), slog.LevelError) {
		t.Error("discard logger should not be enabled for any level")
	}
}
