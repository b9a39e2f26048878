// Package logging provides structured logging configuration using log/slog.
//
// Logs go to the console and, optionally, to two rotating files in a log
// directory: datafinder.log with everything at the configured level and
// datafinder_error.log with errors only. The files are diagnostic; nothing
// reads them back.
//
// This package integrates with chi's RequestID middleware to propagate
// request IDs through structured log entries.
package logging

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Log file names inside Options.Dir.
const (
	GeneralLogFile = "datafinder.log"
	ErrorLogFile   = "datafinder_error.log"
)

// Options configures Setup.
type Options struct {
	Level  string // debug, info, warn, error (default: info)
	Format string // text or json (default: text)

	// Console receives every record at Level. nil means os.Stdout.
	Console io.Writer

	ToFile          bool
	Dir             string
	MaxSizeMB       int
	MaxBackups      int
	ErrorMaxSizeMB  int
	ErrorMaxBackups int
}

// New builds a logger from opts. The returned closer releases the log files
// and must be called on shutdown.
func New(opts Options) (*slog.Logger, io.Closer, error) {
	level := parseLevel(opts.Level)
	console := opts.Console
	if console == nil {
		console = os.Stdout
	}

	handlers := []slog.Handler{newHandler(console, opts.Format, level)}
	var closers multiCloser

	if opts.ToFile {
		if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
			return nil, nil, err
		}
		general := &lumberjack.Logger{
			Filename:   filepath.Join(opts.Dir, GeneralLogFile),
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
		}
		errorsOnly := &lumberjack.Logger{
			Filename:   filepath.Join(opts.Dir, ErrorLogFile),
			MaxSize:    opts.ErrorMaxSizeMB,
			MaxBackups: opts.ErrorMaxBackups,
		}
		closers = append(closers, general, errorsOnly)
		handlers = append(handlers,
			newHandler(general, opts.Format, level),
			newHandler(errorsOnly, opts.Format, slog.LevelError),
		)
	}

	return slog.New(fanout(handlers)), closers, nil
}

// Setup builds a logger with New and installs it as the slog default.
func Setup(opts Options) (io.Closer, error) {
	logger, closer, err := New(opts)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	return closer, nil
}

func newHandler(w io.Writer, format string, level slog.Level) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	if strings.ToLower(format) == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// parseLevel converts a string log level to slog.Level.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// fanout sends each record to every handler that accepts its level.
type fanout []slog.Handler

func (f fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range f {
		if h.Enabled(ctx, r.Level) {
			if err := h.Handle(ctx, r.Clone()); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (f fanout) WithGroup(name string) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithGroup(name)
	}
	return out
}

type multiCloser []io.Closer

func (m multiCloser) Close() error {
	var errs []error
	for _, c := range m {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// FromContext returns the default logger enriched with the chi request id
// carried by ctx, if any.
func FromContext(ctx context.Context) *slog.Logger {
	logger := slog.Default()
	if reqID := middleware.GetReqID(ctx); reqID != "" {
		logger = logger.With("request_id", reqID)
	}
	return logger
}

// WithFields returns a request-scoped logger with additional fields.
//
//	runLogger := logging.WithFields(ctx, "run_id", id, "kind", "merge")
//	runLogger.Info("run started")
func WithFields(ctx context.Context, args ...any) *slog.Logger {
	return FromContext(ctx).With(args...)
}
