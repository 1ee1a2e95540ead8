package internal

import (
	"context"
	"log/slog"
	"os"
	"sync"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"go.opentelemetry.io/contrib/bridges/otelslog"
)

// logger wraps a slog logger tagged with the component scope and name.
type logger struct {
	log *slog.Logger
}

func newLogger(scope, name string) *logger {
	return &logger{
		log: slog.New(baseHandler()).With("scope", scope, "name", name),
	}
}

func (l *logger) info(msg string, args ...any) {
	l.log.Info(msg, args...)
}

func (l *logger) warn(msg string, args ...any) {
	l.log.Warn(msg, args...)
}

func (l *logger) error(msg string, err error, args ...any) {
	l.log.Error(msg, append([]any{"error", err}, args...)...)
}

var baseHandler = sync.OnceValue(func() slog.Handler {
	var console slog.Handler
	if isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd()) {
		console = tint.NewHandler(colorable.NewColorable(os.Stderr), &tint.Options{
			Level: slog.LevelInfo,
		})
	} else {
		console = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}

	return &teeHandler{
		handlers: []slog.Handler{
			console,
			otelslog.NewHandler(scopePrefix),
		},
	}
})

// teeHandler fans every record out to the console handler and to the
// OpenTelemetry log bridge.
type teeHandler struct {
	handlers []slog.Handler
}

func (t *teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range t.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (t *teeHandler) Handle(ctx context.Context, record slog.Record) error {
	var firstErr error
	for _, h := range t.handlers {
		if !h.Enabled(ctx, record.Level) {
			continue
		}
		if err := h.Handle(ctx, record.Clone()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (t *teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	handlers := make([]slog.Handler, len(t.handlers))
	for idx, h := range t.handlers {
		handlers[idx] = h.WithAttrs(attrs)
	}
	return &teeHandler{handlers: handlers}
}

func (t *teeHandler) WithGroup(name string) slog.Handler {
	handlers := make([]slog.Handler, len(t.handlers))
	for idx, h := range t.handlers {
		handlers[idx] = h.WithGroup(name)
	}
	return &teeHandler{handlers: handlers}
}
