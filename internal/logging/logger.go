package logging

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Option configures a Logger.
type Option func(*config) error

type config struct {
	writers          []io.Writer
	closers          []io.Closer
	useDefaultWriter bool
	level            slog.Level
	format           string
}

func defaultConfig() *config {
	return &config{writers: []io.Writer{os.Stderr}, useDefaultWriter: true, format: "text"}
}

// WithWriter adds w as an output.
func WithWriter(w io.Writer) Option {
	return func(cfg *config) error {
		if w == nil {
			return errors.New("writer cannot be nil")
		}
		cfg.writers = append(cfg.writers, w)
		return nil
	}
}

// WithFile appends log output to path, creating it if needed. The file is
// closed by Logger.Close.
func WithFile(path string) Option {
	return func(cfg *config) error {
		if strings.TrimSpace(path) == "" {
			return errors.New("file path cannot be empty")
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return err
		}
		cfg.writers = append(cfg.writers, f)
		cfg.closers = append(cfg.closers, f)
		return nil
	}
}

// WithoutStderr drops the default stderr output. Stdout is never a default
// because it carries command output and the worker protocol.
func WithoutStderr() Option {
	return func(cfg *config) error {
		cfg.useDefaultWriter = false
		filtered := cfg.writers[:0]
		for _, w := range cfg.writers {
			if w == os.Stderr {
				continue
			}
			filtered = append(filtered, w)
		}
		cfg.writers = filtered
		return nil
	}
}

// WithLevel sets the minimum level by name (debug, info, warn, error).
func WithLevel(level string) Option {
	return func(cfg *config) error {
		if strings.TrimSpace(level) == "" {
			return nil
		}
		if err := cfg.level.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
			return fmt.Errorf("invalid log level %q", level)
		}
		return nil
	}
}

// WithFormat selects "text" or "json" records.
func WithFormat(format string) Option {
	return func(cfg *config) error {
		switch f := strings.ToLower(strings.TrimSpace(format)); f {
		case "":
		case "text", "json":
			cfg.format = f
		default:
			return fmt.Errorf("unknown log format %q", format)
		}
		return nil
	}
}

// Logger is a slog.Logger that owns the files it writes to.
type Logger struct {
	*slog.Logger

	mu      sync.Mutex
	closers []io.Closer
}

// New builds a logger tagged with component.
func New(component string, opts ...Option) (*Logger, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			for _, closer := range cfg.closers {
				_ = closer.Close()
			}
			return nil, err
		}
	}
	if !cfg.useDefaultWriter && len(cfg.writers) == 0 {
		return nil, errors.New("no writers configured for logger")
	}
	writer := io.MultiWriter(cfg.writers...)
	handlerOpts := &slog.HandlerOptions{Level: cfg.level}
	var handler slog.Handler
	if cfg.format == "json" {
		handler = slog.NewJSONHandler(writer, handlerOpts)
	} else {
		handler = slog.NewTextHandler(writer, handlerOpts)
	}
	logger := slog.New(handler)
	if component != "" {
		logger = logger.With("component", component)
	}
	return &Logger{Logger: logger, closers: cfg.closers}, nil
}

// Close releases files opened by WithFile.
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	var firstErr error
	for _, closer := range l.closers {
		if err := closer.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	l.closers = nil
	return firstErr
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
