package gitcheckout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/aalvaropc/vgate/internal/domain"
	"github.com/aalvaropc/vgate/internal/ports"
)

// Worktrees gives every cell a detached worktree of the resolved commit.
// Cells never share a tree, so concurrent builds do not interfere.
type Worktrees struct {
	repo   string
	root   string
	subdir string
	log    *slog.Logger

	// worktree add/remove touch shared admin files under .git/worktrees.
	mu sync.Mutex
}

type Option func(*Worktrees)

// WithSubdir makes Checkout return <worktree>/<dir>, for crates that live below
// the repository root.
func WithSubdir(dir string) Option {
	return func(w *Worktrees) {
		if dir = filepath.Clean(dir); dir != "." {
			w.subdir = dir
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(w *Worktrees) {
		if l != nil {
			w.log = l
		}
	}
}

// NewWorktrees checks out under root, which should live outside the tracked tree
// or be ignored by it.
func NewWorktrees(repo, root string, opts ...Option) *Worktrees {
	w := &Worktrees{
		repo: repo,
		root: root,
		log:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

var _ ports.SourceProvider = (*Worktrees)(nil)

func (w *Worktrees) Resolve(ctx context.Context, revision string) (string, error) {
	sha, err := revParse(ctx, w.repo, revision)
	if err != nil {
		return "", &domain.OpError{
			Op:   "gitcheckout.resolve",
			Kind: domain.KindNotFound,
			Path: w.repo,
			Err:  fmt.Errorf("revision %q: %w: %w", revision, domain.ErrNotFound, err),
		}
	}
	return sha, nil
}

func (w *Worktrees) Checkout(ctx context.Context, revision string, cell domain.Cell, runID string) (string, func() error, error) {
	dir := filepath.Join(w.root, safeName(runID), safeName(cell.ID()))

	if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
		return "", nil, &domain.OpError{Op: "gitcheckout.checkout", Kind: domain.KindExecution, Path: dir, Err: err}
	}

	w.mu.Lock()
	_, err := git(ctx, w.repo, "worktree", "add", "--detach", "--force", dir, revision)
	w.mu.Unlock()
	if err != nil {
		return "", nil, &domain.OpError{Op: "gitcheckout.checkout", Kind: domain.KindExecution, Path: dir, Err: err}
	}

	w.log.Debug("worktree.added", "cell", cell.ID(), "dir", dir)

	var once sync.Once
	var releaseErr error
	release := func() error {
		once.Do(func() { releaseErr = w.remove(dir) })
		return releaseErr
	}
	return filepath.Join(dir, w.subdir), release, nil
}

// remove runs detached from the run context so cancelled runs still clean up.
func (w *Worktrees) remove(dir string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	_, err := git(context.Background(), w.repo, "worktree", "remove", "--force", dir)
	if err != nil && strings.Contains(err.Error(), "is not a working tree") {
		err = nil
	}
	if err != nil {
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			return errors.Join(err, rmErr)
		}
		_, _ = git(context.Background(), w.repo, "worktree", "prune")
	}

	// Drop the per-run directory once its last cell is gone.
	_ = os.Remove(filepath.Dir(dir))

	w.log.Debug("worktree.removed", "dir", dir)
	return nil
}

// InPlace evaluates the caller's working tree as-is, uncommitted edits included.
// Every cell shares the directory; executors keep build output apart.
type InPlace struct {
	dir string
}

func NewInPlace(dir string) *InPlace {
	return &InPlace{dir: dir}
}

var _ ports.SourceProvider = (*InPlace)(nil)

// Resolve reports HEAD's commit when dir is a repository, or "" otherwise.
// Only HEAD can be evaluated in place.
func (p *InPlace) Resolve(ctx context.Context, revision string) (string, error) {
	switch strings.TrimSpace(revision) {
	case "", "HEAD":
	default:
		return "", &domain.OpError{
			Op:   "gitcheckout.resolve",
			Kind: domain.KindInvalidConfig,
			Path: p.dir,
			Err:  fmt.Errorf("revision %q: in-place runs evaluate the working tree; use worktree checkout: %w", revision, domain.ErrInvalidConfig),
		}
	}

	sha, err := revParse(ctx, p.dir, "HEAD")
	if err != nil {
		return "", nil
	}
	return sha, nil
}

func (p *InPlace) Checkout(_ context.Context, _ string, _ domain.Cell, _ string) (string, func() error, error) {
	return p.dir, func() error { return nil }, nil
}

func safeName(s string) string {
	s = strings.NewReplacer("/", "-", "\\", "-", ":", "-", " ", "-").Replace(s)
	s = strings.Trim(s, ".-")
	if s == "" {
		return "_"
	}
	return s
}
