// Package logging wires the process's structured logger: a
// logiface.Logger[*islog.Event] backed by a log/slog JSON or text handler,
// matching the corpus's --json-logs/--debug flag pair.
package logging

import (
	"log/slog"
	"os"

	"github.com/joeycumines/logiface"
	islog "github.com/joeycumines/logiface-slog"
)

// Logger is the event logger shared by the worker supervisor, each worker's
// dispatch engine, and its health supervisor.
type Logger = logiface.Logger[*islog.Event]

// Options configures the root logger.
type Options struct {
	// JSON forces a JSON handler; otherwise a human-readable text handler is
	// used, mirroring the corpus's TTY-vs-pipe convention.
	JSON bool
	// Debug lowers the minimum level to Debug; otherwise it is Info.
	Debug bool
}

// New builds the root logger from opts, writing to stderr.
func New(opts Options) *Logger {
	level := slog.LevelInfo
	if opts.Debug {
		level = slog.LevelDebug
	}

	handlerOpts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if opts.JSON {
		handler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}

	logifaceLevel := logiface.LevelInformational
	if opts.Debug {
		logifaceLevel = logiface.LevelDebug
	}

	return logiface.New[*islog.Event](
		islog.WithSlogHandler(handler),
		logiface.WithLevel[*islog.Event](logifaceLevel),
	)
}

// WithWorker returns a child logger tagged with the given worker index.
func WithWorker(l *Logger, worker int) *Logger {
	return l.Clone().Int("worker", worker).Logger()
}

// WithBackend returns a child logger tagged with the given backend name.
func WithBackend(l *Logger, backend string) *Logger {
	return l.Clone().Str("backend", backend).Logger()
}
