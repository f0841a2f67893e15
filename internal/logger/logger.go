// Package logger provides structured logging for campwatch. Besides the
// package-level logger, a run carries a scoped logger in its context so
// that every line an adapter emits names the run and the competitor.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
)

var (
	defaultLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	mu            sync.RWMutex
)

// Options configures the logger.
type Options struct {
	Debug  bool         // debug level
	Quiet  bool         // errors only, wins over Debug
	JSON   bool         // JSON lines instead of logfmt-style text
	Output io.Writer    // default: stderr
	Logger *slog.Logger // used as is, ignoring the other options
}

// Level returns the minimum level the options select.
func (o Options) Level() slog.Level {
	switch {
	case o.Quiet:
		return slog.LevelError
	case o.Debug:
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

// Init replaces the package logger. Contexts already scoped with ForRun
// keep the logger they were scoped with.
func Init(opts Options) {
	l := opts.Logger
	if l == nil {
		out := opts.Output
		if out == nil {
			out = os.Stderr
		}
		hopts := &slog.HandlerOptions{Level: opts.Level()}
		if opts.JSON {
			l = slog.New(slog.NewJSONHandler(out, hopts))
		} else {
			l = slog.New(slog.NewTextHandler(out, hopts))
		}
	}
	SetLogger(l)
}

// SetLogger replaces the package logger with l.
func SetLogger(l *slog.Logger) {
	mu.Lock()
	defer mu.Unlock()
	defaultLogger = l
}

func current() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return defaultLogger
}

// Debug logs at debug level.
func Debug(msg string, args ...any) { current().Debug(msg, args...) }

// Info logs at info level.
func Info(msg string, args ...any) { current().Info(msg, args...) }

// Warn logs at warn level.
func Warn(msg string, args ...any) { current().Warn(msg, args...) }

// Error logs at error level.
func Error(msg string, args ...any) { current().Error(msg, args...) }

// With returns the package logger with attrs added.
func With(args ...any) *slog.Logger { return current().With(args...) }

type scopeKey struct{}

// scope is the logger a context carries and the identifiers already on it.
type scope struct {
	log     *slog.Logger
	runID   string
	adapter string
}

func scopeOf(ctx context.Context) scope {
	if sc, ok := ctx.Value(scopeKey{}).(scope); ok {
		return sc
	}
	return scope{log: current()}
}

// ForRun returns a context whose logger tags every line with run_id.
func ForRun(ctx context.Context, runID string) context.Context {
	sc := scopeOf(ctx)
	if sc.runID == runID {
		return ctx
	}
	sc.log = sc.log.With("run_id", runID)
	sc.runID = runID
	return context.WithValue(ctx, scopeKey{}, sc)
}

// ForAdapter returns a context whose logger also tags lines with the
// adapter name. It is a no-op when ctx is already scoped to name.
func ForAdapter(ctx context.Context, name string) context.Context {
	sc := scopeOf(ctx)
	if sc.adapter == name {
		return ctx
	}
	sc.log = sc.log.With("adapter", name)
	sc.adapter = name
	return context.WithValue(ctx, scopeKey{}, sc)
}

// FromContext returns the logger scoped on ctx, or the package logger.
func FromContext(ctx context.Context) *slog.Logger {
	return scopeOf(ctx).log
}

// RunID returns the run id ctx is scoped to, if any.
func RunID(ctx context.Context) string {
	return scopeOf(ctx).runID
}
