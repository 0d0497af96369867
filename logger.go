package gidref

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/hupe1980/gidref/core"
	"github.com/hupe1980/gidref/gid"
	"github.com/hupe1980/gidref/handle"
)

// Logger is the structured logger of a locality and its authority. The
// embedded slog.Logger is handed to the agas, credit and handle packages so
// every record carries the same locality attribute.
type Logger struct {
	*slog.Logger
}

// NewLogger wraps handler. A nil handler logs text at info level to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		return NewTextLogger(nil, slog.LevelInfo)
	}
	return &Logger{Logger: slog.New(handler)}
}

// NewJSONLogger logs JSON records at or above level to w (stderr if nil).
func NewJSONLogger(w io.Writer, level slog.Leveler) *Logger {
	return &Logger{Logger: slog.New(slog.NewJSONHandler(orStderr(w), &slog.HandlerOptions{Level: level}))}
}

// NewTextLogger logs key=value records at or above level to w (stderr if
// nil).
func NewTextLogger(w io.Writer, level slog.Leveler) *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(orStderr(w), &slog.HandlerOptions{Level: level}))}
}

// NoopLogger discards everything.
func NoopLogger() *Logger {
	return &Logger{Logger: slog.New(slog.DiscardHandler)}
}

func orStderr(w io.Writer) io.Writer {
	if w == nil {
		return os.Stderr
	}
	return w
}

// WithLocality returns a logger tagging every record with the locality.
func (l *Logger) WithLocality(id core.LocalityID) *Logger {
	return &Logger{Logger: l.With("locality", id)}
}

// LogCreate logs a component creation.
func (l *Logger) LogCreate(ctx context.Context, g gid.GID, t core.ComponentType, err error) {
	if err != nil {
		l.ErrorContext(ctx, "create failed",
			"type", t,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "component created",
			"gid", g,
			"type", t,
		)
	}
}

// LogDestroy logs a component destruction.
func (l *Logger) LogDestroy(ctx context.Context, g gid.GID, err error) {
	if err != nil {
		l.ErrorContext(ctx, "destroy failed",
			"gid", g,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "component destroyed",
			"gid", g,
		)
	}
}

// LogEncode logs an outgoing parcel.
func (l *Logger) LogEncode(ctx context.Context, action string, handles, size int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "encode failed",
			"action", action,
			"handles", handles,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "parcel encoded",
			"action", action,
			"handles", handles,
			"bytes", size,
		)
	}
}

// LogRelease logs the final release of a handle.
func (l *Logger) LogRelease(ctx context.Context, g gid.GID, res handle.ReleaseResult) {
	if res.Err != nil {
		l.ErrorContext(ctx, "release failed",
			"gid", g,
			"outcome", res.Outcome,
			"error", res.Err,
		)
	} else {
		l.DebugContext(ctx, "handle released",
			"gid", g,
			"outcome", res.Outcome,
		)
	}
}

// LogShutdown logs a locality shutdown.
func (l *Logger) LogShutdown(ctx context.Context, pending int64, err error) {
	if err != nil {
		l.ErrorContext(ctx, "shutdown incomplete",
			"pending", pending,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "shutdown completed")
	}
}
