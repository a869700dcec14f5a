package logger

import (
	"io"
	"log/slog"
	"os"
)

// NewSlogLogger returns a module-less Logger writing JSON records to w at
// the given level. A nil writer logs text to stdout. Mainly for tests and
// for components constructed without a configured CentralLogger.
func NewSlogLogger(w io.Writer, level LogLevel) Logger {
	lvl := parseLogLevel(string(level))
	var handler slog.Handler
	if w == nil {
		handler = newTextHandler(os.Stdout, lvl)
	} else {
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})
	}
	return &moduleLogger{logger: slog.New(handler), level: lvl}
}

// NewDiscardLogger returns a Logger that drops everything.
func NewDiscardLogger() Logger {
	return NewSlogLogger(io.Discard, LogLevelError)
}
