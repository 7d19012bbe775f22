// Package gitcheckout materializes revisions with the git CLI.
package gitcheckout

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
)

// git runs a git subcommand in repo and returns trimmed stdout.
// Stderr is folded into the error.
func git(ctx context.Context, repo string, args ...string) (string, error) {
	full := append([]string{"-C", repo}, args...)
	cmd := exec.CommandContext(ctx, "git", full...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return "", fmt.Errorf("git %s: %w", args[0], err)
		}
		return "", fmt.Errorf("git %s: %w: %s", args[0], err, msg)
	}
	return strings.TrimSpace(stdout.String()), nil
}

// revParse resolves rev to a full commit id. Empty means HEAD.
func revParse(ctx context.Context, repo, rev string) (string, error) {
	if strings.TrimSpace(rev) == "" {
		rev = "HEAD"
	}
	if strings.HasPrefix(rev, "-") {
		return "", fmt.Errorf("invalid revision %q", rev)
	}
	return git(ctx, repo, "rev-parse", "--verify", "--quiet", rev+"^{commit}")
}

// TopLevel returns the root of the work tree containing dir.
func TopLevel(ctx context.Context, dir string) (string, error) {
	return git(ctx, dir, "rev-parse", "--show-toplevel")
}

// Head returns the commit HEAD points to.
func Head(ctx context.Context, repo string) (string, error) {
	return revParse(ctx, repo, "HEAD")
}

// GitDir returns the absolute administrative directory of repo.
func GitDir(ctx context.Context, repo string) (string, error) {
	return git(ctx, repo, "rev-parse", "--absolute-git-dir")
}

// HooksDir returns the directory git reads hooks from, honoring core.hooksPath.
func HooksDir(ctx context.Context, repo string) (string, error) {
	p, err := git(ctx, repo, "rev-parse", "--git-path", "hooks")
	if err != nil {
		return "", err
	}
	if !filepath.IsAbs(p) {
		p = filepath.Join(repo, p)
	}
	return p, nil
}
