package logger

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
		{"DEBUG", slog.LevelDebug},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"info", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}

	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestSetLevel(t *testing.T) {
	prev := Level()
	t.Cleanup(func() { level.Set(prev) })

	SetLevel("error")
	if Level() != slog.LevelError {
		t.Errorf("expected error level, got %v", Level())
	}
	SetLevel("debug")
	if Level() != slog.LevelDebug {
		t.Errorf("expected debug level, got %v", Level())
	}
}

func TestNewConnLogger(t *testing.T) {
	_, id1 := NewConnLogger()
	_, id2 := NewConnLogger()
	if id1 == "" || id1 == id2 {
		t.Errorf("expected distinct non-empty ids, got %q and %q", id1, id2)
	}
}

func TestInit_Writer(t *testing.T) {
	prev := slog.Default()
	prevLevel := Level()
	t.Cleanup(func() {
		slog.SetDefault(prev)
		level.Set(prevLevel)
	})

	t.Run("non-terminal defaults to json", func(t *testing.T) {
		var buf bytes.Buffer
		Init(Config{Level: "info", Writer: &buf})
		slog.Info("hello", "k", "v")

		var rec map[string]any
		if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
			t.Fatalf("expected json log line, got %q", buf.String())
		}
		if rec["msg"] != "hello" || rec["k"] != "v" {
			t.Errorf("unexpected record %v", rec)
		}
	})

	t.Run("text format and level", func(t *testing.T) {
		var buf bytes.Buffer
		Init(Config{Level: "warn", Format: "text", Writer: &buf})
		slog.Info("dropped")
		slog.Warn("kept")

		out := buf.String()
		if strings.Contains(out, "dropped") || !strings.Contains(out, "msg=kept") {
			t.Errorf("unexpected output %q", out)
		}
	})
}
