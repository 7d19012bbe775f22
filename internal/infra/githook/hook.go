// Package githook installs the gate as a git pre-push hook.
package githook

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/aalvaropc/vgate/internal/domain"
)

// Marker identifies hooks written by vgate; others are never overwritten or removed
// without force.
const Marker = "# managed-by: vgate"

const hookName = "pre-push"

//go:embed templates/pre-push.tmpl
var prePushTemplate string

var prePush = template.Must(template.New(hookName).Parse(prePushTemplate))

// Spec describes the command the hook runs. Empty filters select every cell.
type Spec struct {
	Binary    string
	Workspace string
	Workflow  string
	Executor  string

	Jobs       []string
	Toolchains []string
	Platforms  []string
}

// flags renders the optional run flags, each value quoted.
func (s Spec) flags() string {
	var b strings.Builder
	if strings.TrimSpace(s.Executor) != "" {
		b.WriteString(" --executor " + shellQuote(s.Executor))
	}
	for _, group := range []struct {
		name   string
		values []string
	}{
		{"--job", s.Jobs},
		{"--toolchain", s.Toolchains},
		{"--platform", s.Platforms},
	} {
		for _, v := range group.values {
			b.WriteString(" " + group.name + " " + shellQuote(v))
		}
	}
	return b.String()
}

// Render returns the hook script. Paths are single-quoted for sh.
func Render(s Spec) ([]byte, error) {
	if strings.TrimSpace(s.Binary) == "" {
		s.Binary = "vgate"
	}
	if strings.TrimSpace(s.Workflow) == "" {
		s.Workflow = "ci"
	}
	if strings.TrimSpace(s.Workspace) == "" {
		s.Workspace = "."
	}

	var buf bytes.Buffer
	err := prePush.Execute(&buf, map[string]string{
		"Marker":    Marker,
		"Binary":    shellQuote(s.Binary),
		"Workspace": shellQuote(s.Workspace),
		"Workflow":  shellQuote(s.Workflow),
		"Flags":     s.flags(),
	})
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Install writes the pre-push hook into hooksDir and returns its path.
func Install(hooksDir string, s Spec, force bool) (string, error) {
	path := filepath.Join(hooksDir, hookName)

	if existing, err := os.ReadFile(path); err == nil {
		if !bytes.Contains(existing, []byte(Marker)) && !force {
			return "", &domain.OpError{
				Op:   "githook.install",
				Kind: domain.KindInvalidConfig,
				Path: path,
				Err:  fmt.Errorf("a pre-push hook not managed by vgate exists (use --force to replace): %w", domain.ErrInvalidConfig),
			}
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", &domain.OpError{Op: "githook.install", Kind: domain.KindExecution, Path: path, Err: err}
	}

	script, err := Render(s)
	if err != nil {
		return "", &domain.OpError{Op: "githook.install", Kind: domain.KindExecution, Path: path, Err: err}
	}

	if err := os.MkdirAll(hooksDir, 0o755); err != nil {
		return "", &domain.OpError{Op: "githook.install", Kind: domain.KindExecution, Path: hooksDir, Err: err}
	}
	if err := os.WriteFile(path, script, 0o755); err != nil {
		return "", &domain.OpError{Op: "githook.install", Kind: domain.KindExecution, Path: path, Err: err}
	}
	// WriteFile keeps the mode of an existing file.
	if err := os.Chmod(path, 0o755); err != nil {
		return "", &domain.OpError{Op: "githook.install", Kind: domain.KindExecution, Path: path, Err: err}
	}
	return path, nil
}

// Uninstall removes the hook if vgate wrote it. A missing hook is not an error.
func Uninstall(hooksDir string) error {
	path := filepath.Join(hooksDir, hookName)

	existing, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return &domain.OpError{Op: "githook.uninstall", Kind: domain.KindExecution, Path: path, Err: err}
	}
	if !bytes.Contains(existing, []byte(Marker)) {
		return &domain.OpError{
			Op:   "githook.uninstall",
			Kind: domain.KindInvalidConfig,
			Path: path,
			Err:  fmt.Errorf("pre-push hook is not managed by vgate: %w", domain.ErrInvalidConfig),
		}
	}
	if err := os.Remove(path); err != nil {
		return &domain.OpError{Op: "githook.uninstall", Kind: domain.KindExecution, Path: path, Err: err}
	}
	return nil
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
