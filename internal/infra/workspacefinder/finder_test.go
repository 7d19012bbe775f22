package workspacefinder

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/aalvaropc/vgate/internal/domain"
)

func TestFindRoot_FindsWorkspaceFromNestedDir(t *testing.T) {
	tmp := t.TempDir()
	root := filepath.Join(tmp, "crate")
	nested := filepath.Join(root, "src", "ring")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, ConfigFile), []byte("vgate: {}\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	got, err := NewFinder().FindRoot(nested)
	if err != nil {
		t.Fatalf("FindRoot returned error: %v", err)
	}
	if got != root {
		t.Fatalf("expected root=%s, got=%s", root, got)
	}
}

func TestFindRoot_StartingFromFile(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, ConfigFile), []byte("vgate: {}\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	file := filepath.Join(root, "Cargo.toml")
	if err := os.WriteFile(file, []byte("[package]\n"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	got, err := NewFinder().FindRoot(file)
	if err != nil {
		t.Fatalf("FindRoot returned error: %v", err)
	}
	if got != root {
		t.Fatalf("expected root=%s, got=%s", root, got)
	}
}

func TestFindRoot_NotFound(t *testing.T) {
	tmp := t.TempDir()
	_ = os.MkdirAll(filepath.Join(tmp, "a", "b"), 0o755)

	_, err := NewFinder().FindRoot(filepath.Join(tmp, "a", "b"))
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.KindNotFound) {
		t.Fatalf("expected KindNotFound, got: %v", err)
	}
}

func TestFindRoot_EmptyStart(t *testing.T) {
	_, err := NewFinder().FindRoot("")
	if !domain.IsKind(err, domain.KindInvalidConfig) {
		t.Fatalf("expected KindInvalidConfig, got: %v", err)
	}
}

func TestFindRoot_StopsAtRepositoryRoot(t *testing.T) {
	outer := t.TempDir()
	if err := os.WriteFile(filepath.Join(outer, ConfigFile), []byte("vgate: {}\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	repo := filepath.Join(outer, "checkouts", "crate")
	if err := os.MkdirAll(filepath.Join(repo, "src"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	// Worktrees carry a .git file rather than a directory.
	if err := os.WriteFile(filepath.Join(repo, ".git"), []byte("gitdir: /elsewhere\n"), 0o644); err != nil {
		t.Fatalf("write .git: %v", err)
	}

	_, err := NewFinder().FindRoot(filepath.Join(repo, "src"))
	if !domain.IsKind(err, domain.KindNotFound) {
		t.Fatalf("expected the walk to stop at the repository, got %v", err)
	}

	f := NewFinder()
	f.CrossRepos = true
	got, err := f.FindRoot(filepath.Join(repo, "src"))
	if err != nil {
		t.Fatalf("FindRoot returned error: %v", err)
	}
	if got != outer {
		t.Fatalf("expected root=%s, got=%s", outer, got)
	}
}

func TestFindRoot_ConfigAtRepositoryRoot(t *testing.T) {
	repo := t.TempDir()
	if err := os.Mkdir(filepath.Join(repo, ".git"), 0o755); err != nil {
		t.Fatalf("mkdir .git: %v", err)
	}
	if err := os.WriteFile(filepath.Join(repo, ConfigFile), []byte("vgate: {}\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	nested := filepath.Join(repo, "benches")
	if err := os.Mkdir(nested, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	got, err := NewFinder().FindRoot(nested)
	if err != nil || got != repo {
		t.Fatalf("expected %s, got %s (%v)", repo, got, err)
	}
}
