package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/term"
)

type Config struct {
	Level  string // debug | info | warn | error
	Format string // text | json; empty picks text on a terminal, json otherwise
	File   string // empty = Writer
	// Writer receives logs when File is empty. Nil means stdout.
	Writer io.Writer
}

var level = new(slog.LevelVar)

// Init initializes the global slog logger.
// The level can be changed later with SetLevel without re-initializing.
func Init(cfg Config) {
	level.Set(ParseLevel(cfg.Level))
	opts := &slog.HandlerOptions{Level: level}

	var w io.Writer = os.Stdout
	if cfg.Writer != nil {
		w = cfg.Writer
	}
	isTTY := false
	if f, ok := w.(*os.File); ok {
		isTTY = term.IsTerminal(int(f.Fd()))
	}

	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0755); err != nil {
			slog.Error("failed to create log directory, using default output", "file", cfg.File, "error", err)
		} else {
			f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
			if err != nil {
				slog.Error("failed to open log file, using default output", "file", cfg.File, "error", err)
			} else {
				w = f
				isTTY = false
			}
		}
	}

	format := cfg.Format
	if format == "" {
		format = "json"
		if isTTY {
			format = "text"
		}
	}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	slog.SetDefault(slog.New(handler))
}

// SetLevel changes the level of the logger installed by Init.
func SetLevel(s string) {
	level.Set(ParseLevel(s))
}

func Level() slog.Level {
	return level.Level()
}

func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewConnLogger creates a logger tagged with a fresh connection id.
func NewConnLogger() (*slog.Logger, string) {
	id := uuid.Must(uuid.NewV7()).String()
	return slog.With("connId", id), id
}

// LogPanic logs a recovered panic value with the current stack.
func LogPanic(r any, msg string, args ...any) {
	args = append(args, "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
	slog.Error(msg, args...)
}
