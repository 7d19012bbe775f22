// Package containerexec runs linux cells inside rust containers through Dagger.
package containerexec

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"dagger.io/dagger"

	"github.com/aalvaropc/vgate/internal/domain"
	"github.com/aalvaropc/vgate/internal/ports"
)

const (
	workdir         = "/workspace/project"
	cargoHome       = "/usr/local/cargo"
	defaultImage    = "rust"
	defaultMaxBytes = 256 * 1024
)

// Executor opens one Dagger connection lazily and shares it between cells.
type Executor struct {
	image     string
	cache     bool
	maxOutput int64
	logOutput io.Writer
	log       *slog.Logger

	connect func(ctx context.Context) (*dagger.Client, error)

	mu     sync.Mutex
	client *dagger.Client
}

type Option func(*Executor)

// WithImage sets the image repository, "rust" by default.
func WithImage(image string) Option {
	return func(e *Executor) {
		if strings.TrimSpace(image) != "" {
			e.image = image
		}
	}
}

// WithCache toggles the shared cargo registry cache volume.
func WithCache(on bool) Option {
	return func(e *Executor) { e.cache = on }
}

func WithMaxOutput(n int64) Option {
	return func(e *Executor) {
		if n > 0 {
			e.maxOutput = n
		}
	}
}

// WithLogOutput forwards the engine's progress log.
func WithLogOutput(w io.Writer) Option {
	return func(e *Executor) { e.logOutput = w }
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Executor) {
		if l != nil {
			e.log = l
		}
	}
}

func NewExecutor(opts ...Option) *Executor {
	e := &Executor{
		image:     defaultImage,
		cache:     true,
		maxOutput: defaultMaxBytes,
		log:       slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.connect = func(ctx context.Context) (*dagger.Client, error) {
		var copts []dagger.ClientOpt
		if e.logOutput != nil {
			copts = append(copts, dagger.WithLogOutput(e.logOutput))
		}
		return dagger.Connect(ctx, copts...)
	}
	return e
}

var _ ports.Executor = (*Executor)(nil)

func (e *Executor) Name() string { return domain.ExecutorContainer }

// Supports is linux only; the engine runs linux containers.
func (e *Executor) Supports(p domain.Platform) bool {
	return p == domain.PlatformLinux
}

// ImageFor maps a toolchain to an image reference. Versions use the matching
// official tag; channels start from the latest image and install via rustup.
func ImageFor(repo string, tc domain.Toolchain) string {
	if strings.TrimSpace(repo) == "" {
		repo = defaultImage
	}
	if tc == "" || tc.IsChannel() {
		return repo + ":latest"
	}
	return repo + ":" + string(tc)
}

func (e *Executor) dag(ctx context.Context) (*dagger.Client, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.client != nil {
		return e.client, nil
	}
	c, err := e.connect(ctx)
	if err != nil {
		return nil, &domain.OpError{Op: "containerexec.connect", Kind: domain.KindExecution, Err: err}
	}
	e.client = c
	return c, nil
}

// Open builds the base container for the cell: image, source mount and caches.
// No work runs until the first command.
func (e *Executor) Open(ctx context.Context, cell domain.Cell, srcDir string) (ports.Session, error) {
	if !e.Supports(cell.Platform) {
		return nil, &domain.OpError{
			Op:   "containerexec.open",
			Kind: domain.KindExecution,
			Err:  fmt.Errorf("%s cells cannot run in containers: %w", cell.Platform, domain.ErrUnsupported),
		}
	}
	if info, err := os.Stat(srcDir); err != nil || !info.IsDir() {
		if err == nil {
			err = errors.New("not a directory")
		}
		return nil, &domain.OpError{Op: "containerexec.open", Kind: domain.KindNotFound, Path: srcDir, Err: err}
	}

	dag, err := e.dag(ctx)
	if err != nil {
		return nil, err
	}

	src := dag.Host().Directory(srcDir, dagger.HostDirectoryOpts{
		Exclude: []string{"target/", ".vgate/"},
	})

	ctr := dag.Container().
		From(ImageFor(e.image, cell.Toolchain)).
		WithMountedDirectory(workdir, src).
		WithWorkdir(workdir).
		WithEnvVariable("CARGO_TERM_COLOR", "never")

	if e.cache {
		ctr = ctr.
			WithMountedCache(cargoHome+"/registry", dag.CacheVolume("vgate-cargo-registry")).
			WithMountedCache(workdir+"/target", dag.CacheVolume("vgate-target-"+cacheKey(cell)))
	}

	return &session{
		ctr:       ctr,
		maxOutput: e.maxOutput,
		log:       e.log.With("cell", cell.ID()),
	}, nil
}

// Close releases the engine connection.
func (e *Executor) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.client == nil {
		return nil
	}
	err := e.client.Close()
	e.client = nil
	return err
}

type session struct {
	mu        sync.Mutex
	ctr       *dagger.Container
	maxOutput int64
	log       *slog.Logger
}

// Run chains the command onto the container. A successful command's container
// becomes the base for the next one, so provisioning carries over.
func (s *session) Run(ctx context.Context, cmd domain.Command) (ports.ExecResult, error) {
	res := ports.ExecResult{ExitCode: -1}
	if len(cmd.Argv) == 0 {
		return res, errors.New("empty command")
	}

	s.mu.Lock()
	ctr := s.ctr
	s.mu.Unlock()
	if ctr == nil {
		return res, errors.New("session closed")
	}

	runCtx := ctx
	if cmd.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, cmd.Timeout)
		defer cancel()
	}

	for _, k := range sortedKeys(cmd.Env) {
		ctr = ctr.WithEnvVariable(k, cmd.Env[k])
	}
	next := ctr.WithExec(cmd.Argv)

	s.log.Debug("exec.start", "cmd", cmd.String())

	start := time.Now()
	stdout, err := next.Stdout(runCtx)
	res.Duration = time.Since(start)

	if err == nil {
		stderr, _ := next.Stderr(runCtx)
		res.ExitCode = 0
		res.Output = s.bound(stdout + stderr)

		s.mu.Lock()
		if s.ctr != nil {
			s.ctr = next
		}
		s.mu.Unlock()
		return res, nil
	}

	switch {
	case ctx.Err() != nil:
		return res, ctx.Err()
	case runCtx.Err() == context.DeadlineExceeded:
		return res, fmt.Errorf("%s: %w", cmd.Argv[0], context.DeadlineExceeded)
	}

	var execErr *dagger.ExecError
	if errors.As(err, &execErr) {
		res.ExitCode = execErr.ExitCode
		res.Output = s.bound(execErr.Stdout + execErr.Stderr)
		return res, nil
	}
	return res, err
}

func (s *session) Close() error {
	s.mu.Lock()
	s.ctr = nil
	s.mu.Unlock()
	return nil
}

func (s *session) bound(text string) domain.Output {
	if int64(len(text)) > s.maxOutput {
		return domain.Output{Text: text[:s.maxOutput], Truncated: true}
	}
	return domain.Output{Text: text}
}

func cacheKey(c domain.Cell) string {
	return strings.NewReplacer("/", "-", ".", "_").Replace(c.ID())
}

func sortedKeys(v domain.Vars) []string {
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
