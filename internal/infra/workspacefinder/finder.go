package workspacefinder

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/aalvaropc/vgate/internal/domain"
	"github.com/aalvaropc/vgate/internal/ports"
)

var _ ports.WorkspaceLocator = (*Finder)(nil)

// Finder walks up from a directory looking for vgate.yaml. The walk ends at the
// root of the enclosing git repository, so a crate never picks up a workspace
// belonging to some parent checkout or the home directory.
type Finder struct {
	ConfigFile string

	// CrossRepos lets the walk continue past a repository root.
	CrossRepos bool
}

func NewFinder() *Finder {
	return &Finder{ConfigFile: ConfigFile}
}

func (f *Finder) FindRoot(startDir string) (string, error) {
	const op = "workspacefinder.findroot"

	if startDir == "" {
		return "", &domain.OpError{Op: op, Kind: domain.KindInvalidConfig, Err: errors.New("start directory is empty")}
	}

	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", &domain.OpError{Op: op, Kind: domain.KindExecution, Path: startDir, Err: err}
	}
	if info, err := os.Stat(dir); err == nil && !info.IsDir() {
		dir = filepath.Dir(dir)
	}

	name := f.ConfigFile
	if name == "" {
		name = ConfigFile
	}

	for dir = filepath.Clean(dir); ; {
		if exists(filepath.Join(dir, name)) {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir || (!f.CrossRepos && exists(filepath.Join(dir, ".git"))) {
			return "", &domain.OpError{Op: op, Kind: domain.KindNotFound, Path: startDir, Err: domain.ErrNotFound}
		}
		dir = parent
	}
}

// exists accepts files and directories; a worktree's .git is a file.
func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
