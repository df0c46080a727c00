// Package logger builds the service's slog logger. The console format
// renders through zerolog's ConsoleWriter.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Formats accepted by New.
const (
	FormatJSON    = "json"
	FormatText    = "text"
	FormatConsole = "console"
)

type Config struct {
	Level  string
	Format string
}

// ParseLevel maps debug|info|warn|error to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// New creates a logger writing to out (stdout when nil).
func New(cfg Config, out io.Writer) (*slog.Logger, error) {
	if out == nil {
		out = os.Stdout
	}
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(cfg.Format) {
	case "", FormatJSON:
		return slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level})), nil
	case FormatText:
		return slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level})), nil
	case FormatConsole:
		zl := zerolog.New(zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}).
			With().Timestamp().Logger()
		return slog.New(&zlHandler{zl: &zl, level: level}), nil
	}
	return nil, fmt.Errorf("unknown log format %q", cfg.Format)
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ForDebugLevel narrows l to the verbosity of a visualization debug level:
// 0 keeps warnings and errors, 1 adds info and 2 adds debug. The result
// never logs more than l would.
func ForDebugLevel(l *slog.Logger, debugLevel int) *slog.Logger {
	if l == nil {
		l = slog.Default()
	}
	floor := slog.LevelWarn
	switch {
	case debugLevel >= 2:
		floor = slog.LevelDebug
	case debugLevel == 1:
		floor = slog.LevelInfo
	}
	return slog.New(&levelHandler{min: floor, next: l.Handler()})
}

type levelHandler struct {
	min  slog.Level
	next slog.Handler
}

func (h *levelHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.min && h.next.Enabled(ctx, level)
}

func (h *levelHandler) Handle(ctx context.Context, r slog.Record) error {
	return h.next.Handle(ctx, r)
}

func (h *levelHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &levelHandler{min: h.min, next: h.next.WithAttrs(attrs)}
}

func (h *levelHandler) WithGroup(name string) slog.Handler {
	return &levelHandler{min: h.min, next: h.next.WithGroup(name)}
}
