package app

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"gopkg.in/natefinch/lumberjack.v2"
)

// NewLogger creates the console logger and, when a log file is configured,
// tees every record at or above the file level into a rotating log file.
// The returned closer releases the log file.
func NewLogger(settings *Settings, console io.Writer) (*slog.Logger, io.Closer) {
	consoleHandler := slog.NewTextHandler(console, &slog.HandlerOptions{Level: settings.LogLevel})

	if settings.LogFile == "" {
		return slog.New(consoleHandler), io.NopCloser(nil)
	}

	file := &lumberjack.Logger{
		Filename:   settings.LogFile,
		MaxSize:    settings.LogMaxSizeMB,
		MaxBackups: settings.LogMaxBackups,
	}
	fileHandler := slog.NewTextHandler(file, &slog.HandlerOptions{Level: settings.LogFileLevel})

	return slog.New(newFanoutHandler(consoleHandler, fileHandler)), file
}

// fanoutHandler passes every record to all handlers enabled for its level
type fanoutHandler struct {
	handlers []slog.Handler
}

func newFanoutHandler(handlers ...slog.Handler) *fanoutHandler {
	return &fanoutHandler{handlers: handlers}
}

func (h *fanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *fanoutHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, handler := range h.handlers {
		if !handler.Enabled(ctx, r.Level) {
			continue
		}
		if err := handler.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (h *fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithAttrs(attrs)
	}
	return newFanoutHandler(handlers...)
}

func (h *fanoutHandler) WithGroup(name string) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithGroup(name)
	}
	return newFanoutHandler(handlers...)
}
