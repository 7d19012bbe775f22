// Package localexec runs cell commands directly on the host with os/exec.
package localexec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aalvaropc/vgate/internal/domain"
	"github.com/aalvaropc/vgate/internal/ports"
)

const (
	defaultMaxOutput = 256 * 1024
	waitDelay        = 5 * time.Second
)

// Executor hosts cells for the platform the process runs on.
type Executor struct {
	host      domain.Platform
	hostKnown bool
	maxOutput int64
	env       []string
	log       *slog.Logger
}

type Option func(*Executor)

// WithMaxOutput bounds the captured combined output of each command.
func WithMaxOutput(n int64) Option {
	return func(e *Executor) {
		if n > 0 {
			e.maxOutput = n
		}
	}
}

// WithEnv adds KEY=VALUE entries to every command.
func WithEnv(env ...string) Option {
	return func(e *Executor) { e.env = append(e.env, env...) }
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Executor) {
		if l != nil {
			e.log = l
		}
	}
}

// withHost overrides host detection (tests).
func withHost(p domain.Platform) Option {
	return func(e *Executor) { e.host, e.hostKnown = p, true }
}

func NewExecutor(opts ...Option) *Executor {
	host, ok := domain.PlatformForGOOS(runtime.GOOS)
	e := &Executor{
		host:      host,
		hostKnown: ok,
		maxOutput: defaultMaxOutput,
		log:       slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

var _ ports.Executor = (*Executor)(nil)

func (e *Executor) Name() string { return domain.ExecutorLocal }

func (e *Executor) Supports(p domain.Platform) bool {
	return e.hostKnown && p == e.host
}

// Open checks the working tree and gives the cell its own cargo target dir so
// cells sharing a tree never contend for the build lock.
func (e *Executor) Open(_ context.Context, cell domain.Cell, srcDir string) (ports.Session, error) {
	if !e.Supports(cell.Platform) {
		return nil, &domain.OpError{
			Op:   "localexec.open",
			Kind: domain.KindExecution,
			Err:  fmt.Errorf("host %s cannot run %s cells: %w", runtime.GOOS, cell.Platform, domain.ErrUnsupported),
		}
	}

	info, err := os.Stat(srcDir)
	if err != nil || !info.IsDir() {
		if err == nil {
			err = errors.New("not a directory")
		}
		return nil, &domain.OpError{Op: "localexec.open", Kind: domain.KindNotFound, Path: srcDir, Err: err}
	}

	target := filepath.Join(srcDir, "target", "vgate", cellSlug(cell))
	env := append([]string{}, e.env...)
	env = append(env, "CARGO_TARGET_DIR="+target, "CARGO_TERM_COLOR=never")

	return &session{
		dir:       srcDir,
		env:       env,
		maxOutput: e.maxOutput,
		log:       e.log.With("cell", cell.ID()),
	}, nil
}

type session struct {
	dir       string
	env       []string
	maxOutput int64
	log       *slog.Logger

	mu     sync.Mutex
	closed bool
}

func (s *session) Run(ctx context.Context, cmd domain.Command) (ports.ExecResult, error) {
	res := ports.ExecResult{ExitCode: -1}

	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return res, errors.New("session closed")
	}
	if len(cmd.Argv) == 0 {
		return res, errors.New("empty command")
	}

	runCtx := ctx
	if cmd.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, cmd.Timeout)
		defer cancel()
	}

	c := exec.CommandContext(runCtx, cmd.Argv[0], cmd.Argv[1:]...)
	c.Dir = s.dir
	c.Env = buildEnv(os.Environ(), s.env, cmd.Env)
	setupProcessGroup(c)
	c.Cancel = func() error { return killProcessGroup(c) }
	c.WaitDelay = waitDelay

	var buf bytes.Buffer
	out := &limitedWriter{w: &buf, max: s.maxOutput}
	c.Stdout = out
	c.Stderr = out

	s.log.Debug("exec.start", "cmd", cmd.String(), "dir", s.dir)

	start := time.Now()
	err := c.Run()
	res.Duration = time.Since(start)
	res.Output = domain.Output{Text: buf.String(), Truncated: out.truncated}

	if err == nil {
		res.ExitCode = 0
		return res, nil
	}

	switch {
	case ctx.Err() != nil:
		return res, ctx.Err()
	case runCtx.Err() == context.DeadlineExceeded:
		return res, fmt.Errorf("%s: %w", cmd.Argv[0], context.DeadlineExceeded)
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		s.log.Debug("exec.exit", "cmd", cmd.Argv[0], "code", res.ExitCode, "duration", res.Duration)
		return res, nil
	}

	return res, err
}

func (s *session) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// buildEnv layers environments; later entries override earlier keys.
func buildEnv(base, extra []string, cmdEnv domain.Vars) []string {
	merged := map[string]string{}
	var order []string
	set := func(kv string) {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return
		}
		if _, seen := merged[k]; !seen {
			order = append(order, k)
		}
		merged[k] = v
	}

	for _, kv := range base {
		set(kv)
	}
	for _, kv := range extra {
		set(kv)
	}

	keys := make([]string, 0, len(cmdEnv))
	for k := range cmdEnv {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		set(k + "=" + cmdEnv[k])
	}

	out := make([]string, 0, len(order))
	for _, k := range order {
		out = append(out, k+"="+merged[k])
	}
	return out
}

func cellSlug(c domain.Cell) string {
	r := strings.NewReplacer("/", "-", "\\", "-", ":", "-", " ", "-")
	return r.Replace(c.ID())
}

// limitedWriter is an io.Writer that limits total bytes written.
type limitedWriter struct {
	w         io.Writer
	max       int64
	written   int64
	truncated bool
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)

	if lw.written >= lw.max {
		lw.truncated = true
		return n, nil // Pretend we wrote it
	}

	remaining := lw.max - lw.written
	if int64(n) > remaining {
		lw.truncated = true
		written, err := lw.w.Write(p[:remaining])
		lw.written += int64(written)
		return n, err // Return original length to avoid "short write" errors
	}

	written, err := lw.w.Write(p)
	lw.written += int64(written)
	return written, err
}
