package logging

import (
	"log/slog"
	"testing"
)

func TestNewLevels(t *testing.T) {
	tests := []struct {
		level string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			l := New(tt.level)
			if l == nil || l.Logger == nil {
				t.Fatal("expected non-nil logger")
			}
			if !l.Enabled(nil, tt.want) {
				t.Errorf("level %q should be enabled at %v", tt.level, tt.want)
			}
		})
	}
}

func TestWithSession(t *testing.T) {
	l := Default().WithSession("sess-1")
	if l == nil || l.Logger == nil {
		t.Fatal("expected non-nil logger")
	}

	var nilLogger *Logger
	if got := nilLogger.WithSession("sess-2"); got == nil {
		t.Fatal("nil receiver should still return a usable logger")
	}
}

func TestWithComponent(t *testing.T) {
	l := Default().WithComponent("pipeline")
	if l == nil || l.Logger == nil {
		t.Fatal("expected non-nil logger")
	}

	var nilLogger *Logger
	if got := nilLogger.WithComponent("store"); got == nil {
		t.Fatal("nil receiver should still return a usable logger")
	}
}
