// Package logger writes vgate's structured diagnostics to a JSON file inside the
// workspace. Terminal output stays reserved for reports and progress.
package logger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	logDir  = ".vgate/logs"
	logName = "vgate.log"

	// DefaultMaxBytes is the size at which Setup rotates the log to vgate.log.1.
	DefaultMaxBytes int64 = 8 << 20
)

type Config struct {
	Root  string
	Debug bool

	// MaxBytes rotates an existing log that has grown past it; zero uses
	// DefaultMaxBytes, negative disables rotation.
	MaxBytes int64
}

type sink struct {
	handler slog.Handler
	file    *os.File
	path    string
	opened  time.Time
}

var (
	mu      sync.RWMutex
	current = discardSink()
)

func discardSink() *sink {
	return &sink{handler: slog.NewJSONHandler(io.Discard, nil)}
}

// Setup routes every vgate logger to <root>/.vgate/logs/vgate.log until the
// returned cleanup runs. Loggers obtained earlier from Component follow along.
func Setup(cfg Config) (func() error, error) {
	root := cfg.Root
	if root == "" {
		root = "."
	}
	dir := filepath.Join(filepath.Clean(root), filepath.FromSlash(logDir))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}

	path := filepath.Join(dir, logName)
	if err := rotate(path, cfg.MaxBytes); err != nil {
		return nil, fmt.Errorf("logger: rotate: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}

	opts := &slog.HandlerOptions{Level: slog.LevelInfo, ReplaceAttr: utcTime}
	if cfg.Debug {
		opts.Level = slog.LevelDebug
		opts.AddSource = true
	}

	s := &sink{
		handler: slog.NewJSONHandler(f, opts),
		file:    f,
		path:    path,
		opened:  time.Now().UTC(),
	}

	mu.Lock()
	prev := current
	current = s
	mu.Unlock()
	if prev.file != nil {
		_ = prev.file.Close()
	}

	L().Info("logger.opened", "path", path, "debug", cfg.Debug, "pid", os.Getpid())

	cleanup := func() error {
		mu.Lock()
		defer mu.Unlock()
		if current != s {
			return nil
		}
		current = discardSink()
		return s.file.Close()
	}
	return cleanup, nil
}

// rotate moves path aside once it exceeds limit so long watch sessions stay bounded.
func rotate(path string, limit int64) error {
	if limit == 0 {
		limit = DefaultMaxBytes
	}
	if limit < 0 {
		return nil
	}
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if info.Size() < limit {
		return nil
	}
	return os.Rename(path, path+".1")
}

func utcTime(_ []string, a slog.Attr) slog.Attr {
	if a.Key == slog.TimeKey && a.Value.Kind() == slog.KindTime {
		a.Value = slog.StringValue(a.Value.Time().UTC().Format(time.RFC3339Nano))
	}
	return a
}

func active() *sink {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// L returns a logger bound to the current sink.
func L() *slog.Logger {
	return slog.New(active().handler)
}

// Component returns a logger tagged with a "component" attribute. It resolves
// the sink on every record, so it can be created before Setup runs.
func Component(name string) *slog.Logger {
	return slog.New(&followHandler{}).With(slog.String("component", name))
}

// Path is the open log file, or "" when logging is discarded.
func Path() string {
	return active().path
}

// OpenedAt is when Setup last opened the log, zero when logging is discarded.
func OpenedAt() time.Time {
	return active().opened
}

// followHandler forwards to whichever sink is active when a record is handled.
type followHandler struct {
	ops []func(slog.Handler) slog.Handler
}

func (h *followHandler) resolve() slog.Handler {
	out := active().handler
	for _, op := range h.ops {
		out = op(out)
	}
	return out
}

func (h *followHandler) Enabled(ctx context.Context, l slog.Level) bool {
	return active().handler.Enabled(ctx, l)
}

func (h *followHandler) Handle(ctx context.Context, r slog.Record) error {
	return h.resolve().Handle(ctx, r)
}

func (h *followHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return h.with(func(next slog.Handler) slog.Handler { return next.WithAttrs(attrs) })
}

func (h *followHandler) WithGroup(name string) slog.Handler {
	return h.with(func(next slog.Handler) slog.Handler { return next.WithGroup(name) })
}

func (h *followHandler) with(op func(slog.Handler) slog.Handler) slog.Handler {
	ops := make([]func(slog.Handler) slog.Handler, len(h.ops), len(h.ops)+1)
	copy(ops, h.ops)
	return &followHandler{ops: append(ops, op)}
}
