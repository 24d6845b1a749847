// Package logging builds the structured slog logger used across the planner,
// with optional rotated file output and run context injected into every record.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Config defines logger settings. File enables lumberjack rotation, with
// MaxSize in MB and MaxAge in days.
type Config struct {
	Level      string `mapstructure:"level" yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	Format     string `mapstructure:"format" yaml:"format" validate:"omitempty,oneof=json text"`
	File       string `mapstructure:"file" yaml:"file"`
	MaxSize    int    `mapstructure:"max_size" yaml:"max_size" validate:"gte=0"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups" validate:"gte=0"`
	MaxAge     int    `mapstructure:"max_age" yaml:"max_age" validate:"gte=0"`
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

type ctxKey int

const (
	runIDKey ctxKey = iota
	runKey
	stageKey
)

// WithRun returns a context whose log records carry run_id and run.
func WithRun(ctx context.Context, runID string, run int) context.Context {
	ctx = context.WithValue(ctx, runIDKey, runID)
	return context.WithValue(ctx, runKey, run)
}

// WithStage returns a context whose log records carry stage.
func WithStage(ctx context.Context, stage string) context.Context {
	return context.WithValue(ctx, stageKey, stage)
}

// RunID returns the run id stored in ctx, if any.
func RunID(ctx context.Context) string {
	id, _ := ctx.Value(runIDKey).(string)
	return id
}

// RunHandler is a slog.Handler decorator that injects run_id, run and stage
// from the context into every record.
type RunHandler struct {
	slog.Handler
}

// Handle adds the run attributes present in ctx and forwards the record.
func (h *RunHandler) Handle(ctx context.Context, r slog.Record) error {
	if id, ok := ctx.Value(runIDKey).(string); ok {
		r.AddAttrs(slog.String("run_id", id))
	}
	if run, ok := ctx.Value(runKey).(int); ok {
		r.AddAttrs(slog.Int("run", run))
	}
	if stage, ok := ctx.Value(stageKey).(string); ok {
		r.AddAttrs(slog.String("stage", stage))
	}
	return h.Handler.Handle(ctx, r)
}

// WithAttrs keeps the decorator on derived handlers.
func (h *RunHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &RunHandler{Handler: h.Handler.WithAttrs(attrs)}
}

// WithGroup keeps the decorator on derived handlers.
func (h *RunHandler) WithGroup(name string) slog.Handler {
	return &RunHandler{Handler: h.Handler.WithGroup(name)}
}

// ParseLevel maps debug|info|warn|error to a slog level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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

// New creates a logger writing to w, or to a lumberjack-rotated file when
// cfg.File is set. A nil w means stderr.
func New(cfg Config, w io.Writer) *slog.Logger {
	if cfg.File != "" {
		w = &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		}
	} else if w == nil {
		w = os.Stderr
	}

	opts := &slog.HandlerOptions{
		Level: ParseLevel(cfg.Level),
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				a.Key = "timestamp"
			}
			return a
		},
	}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}
	return slog.New(&RunHandler{Handler: handler})
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
