package logger

import (
	"log/slog"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		if got := parseLevel(tt.input); got != tt.expected {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got, tt.expected)
		}
	}
}

func TestNewDoesNotPanic(t *testing.T) {
	for _, format := range []string{"text", "json", ""} {
		log := New("debug", format)
		if log == nil {
			t.Fatalf("New returned nil for format %q", format)
		}
		log.WithComponent("test").WithCollection("docs").Debug("ok")
	}
}
