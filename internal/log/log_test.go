package log

import (
	"bytes"
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
		{"WARN", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"critical", LevelCritical},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestCriticalRendersName(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "info", "text")

	Critical(l, "revert failed", "param", "ExposureTime")

	out := buf.String()
	if !strings.Contains(out, "level=CRITICAL") {
		t.Errorf("expected CRITICAL level in output, got %q", out)
	}
	if !strings.Contains(out, "param=ExposureTime") {
		t.Errorf("expected attribute in output, got %q", out)
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "error", "json")

	l.Warn("dropped")
	if buf.Len() != 0 {
		t.Errorf("warn should be filtered at error level, got %q", buf.String())
	}

	Critical(l, "kept")
	if !strings.Contains(buf.String(), `"level":"CRITICAL"`) {
		t.Errorf("expected JSON CRITICAL entry, got %q", buf.String())
	}
}
