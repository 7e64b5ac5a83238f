// Package logging builds the process logger: JSON for machines, tint-colored
// lines on a terminal, and an optional rotating log file.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"golang.org/x/term"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Output formats.
const (
	FormatJSON   = "json"
	FormatPretty = "pretty"
	FormatAuto   = "auto"
)

// Config controls the logger.
type Config struct {
	Format string
	Level  string
	// File receives JSON logs in addition to the console when set.
	File       string
	MaxSizeMB  int
	MaxBackups int

	// Stdout defaults to os.Stdout.
	Stdout io.Writer
}

// New returns a logger and a closer for the log file (a no-op without one).
func New(cfg Config) (*slog.Logger, io.Closer, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}

	out := cfg.Stdout
	if out == nil {
		out = os.Stdout
	}

	console, err := consoleHandler(out, cfg.Format, level)
	if err != nil {
		return nil, nil, err
	}
	if cfg.File == "" {
		return slog.New(console), nopCloser{}, nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
		return nil, nil, fmt.Errorf("create log directory: %w", err)
	}
	rotator := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    orDefault(cfg.MaxSizeMB, 100),
		MaxBackups: orDefault(cfg.MaxBackups, 5),
		Compress:   true,
		LocalTime:  true,
	}
	file := slog.NewJSONHandler(rotator, &slog.HandlerOptions{Level: level})
	return slog.New(fanout{console, file}), rotator, nil
}

// ParseLevel accepts debug, info, warn or error. Empty means info.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if strings.TrimSpace(s) == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", s, err)
	}
	return level, nil
}

func consoleHandler(out io.Writer, format string, level slog.Level) (slog.Handler, error) {
	switch strings.ToLower(format) {
	case FormatJSON:
		return slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level}), nil
	case FormatPretty:
		return prettyHandler(out, level), nil
	case FormatAuto, "":
		if isTerminal(out) {
			return prettyHandler(out, level), nil
		}
		return slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level}), nil
	default:
		return nil, fmt.Errorf("unknown log format: %s (valid: json, pretty, auto)", format)
	}
}

func prettyHandler(out io.Writer, level slog.Level) slog.Handler {
	return tint.NewHandler(out, &tint.Options{
		Level:      level,
		TimeFormat: time.TimeOnly,
		NoColor:    !isTerminal(out),
	})
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
