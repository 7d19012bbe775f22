// Package gitwatch triggers a callback when a repository's HEAD moves.
package gitwatch

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultDebounce = 500 * time.Millisecond

// HeadFunc reports the commit HEAD currently resolves to.
type HeadFunc func(ctx context.Context) (string, error)

// Watcher observes HEAD, packed-refs and refs/heads under a git dir. Bursts of
// ref updates (commit, rebase, pull) collapse into one callback per new HEAD.
type Watcher struct {
	gitDir   string
	head     HeadFunc
	debounce time.Duration
	log      *slog.Logger

	mu   sync.Mutex
	last string
}

type Option func(*Watcher)

func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(w *Watcher) {
		if l != nil {
			w.log = l
		}
	}
}

func New(gitDir string, head HeadFunc, opts ...Option) *Watcher {
	w := &Watcher{
		gitDir:   gitDir,
		head:     head,
		debounce: defaultDebounce,
		log:      slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Watch blocks until ctx is done. onChange runs on the watch goroutine with the
// new commit; the HEAD at start is recorded but not reported.
func (w *Watcher) Watch(ctx context.Context, onChange func(sha string)) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	if err := fw.Add(w.gitDir); err != nil {
		return err
	}
	heads := filepath.Join(w.gitDir, "refs", "heads")
	if err := addTree(fw, heads); err != nil {
		w.log.Warn("gitwatch.refs_unwatched", "dir", heads, "err", err)
	}

	if sha, err := w.head(ctx); err == nil {
		w.setLast(sha)
	}

	w.log.Info("gitwatch.started", "git_dir", w.gitDir)

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info("gitwatch.stopped")
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if ev.Op&fsnotify.Create != 0 && w.underHeads(ev.Name) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					_ = addTree(fw, ev.Name)
				}
			}
			if !w.relevant(ev) {
				continue
			}
			w.log.Debug("gitwatch.event", "op", ev.Op.String(), "path", ev.Name)
			timer.Reset(w.debounce)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.Error("gitwatch.error", "err", err)

		case <-timer.C:
			sha, err := w.head(ctx)
			if err != nil {
				w.log.Warn("gitwatch.head_unresolved", "err", err)
				continue
			}
			if w.setLast(sha) {
				onChange(sha)
			}
		}
	}
}

// setLast records sha and reports whether it differs from the previous value.
func (w *Watcher) setLast(sha string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if sha == w.last {
		return false
	}
	w.last = sha
	return true
}

func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename|fsnotify.Remove) == 0 {
		return false
	}
	if strings.HasSuffix(ev.Name, ".lock") {
		return false
	}
	switch filepath.Base(ev.Name) {
	case "HEAD", "packed-refs":
		return filepath.Dir(ev.Name) == filepath.Clean(w.gitDir)
	}
	return w.underHeads(ev.Name)
}

func (w *Watcher) underHeads(path string) bool {
	heads := filepath.Join(w.gitDir, "refs", "heads") + string(filepath.Separator)
	return strings.HasPrefix(path, heads)
}

func addTree(fw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return fw.Add(path)
		}
		return nil
	})
}
