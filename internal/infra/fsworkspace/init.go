package fsworkspace

import (
	"bufio"
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/aalvaropc/vgate/internal/domain"
	"github.com/aalvaropc/vgate/internal/ports"
)

const templatesRoot = "templates"

// gitignoreHeader marks the block vgate appends to an existing .gitignore.
const gitignoreHeader = "# vgate"

var ignoredPaths = []string{"runs/", ".vgate/", "target/"}

var msrvLine = regexp.MustCompile(`(?m)^msrv:\s*"[^"]*"`)

// Initializer scaffolds a vgate workspace next to a cargo project.
// When the project's Cargo.toml declares a rust-version, the generated
// gate uses it as the MSRV toolchain.
type Initializer struct{}

func NewInitializer() *Initializer {
	return &Initializer{}
}

var _ ports.WorkspaceInitializer = (*Initializer)(nil)

func (i *Initializer) Init(spec domain.WorkspaceSpec, force bool) error {
	root := filepath.Clean(spec.Root)
	if info, err := os.Stat(root); err == nil && !info.IsDir() {
		return fmt.Errorf("fsworkspace: %s is not a directory", root)
	}

	for _, dir := range workspaceDirs(root) {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("fsworkspace: create %s: %w", dir, err)
		}
	}

	if err := ensureGitignore(root); err != nil {
		return fmt.Errorf("fsworkspace: update .gitignore: %w", err)
	}

	msrv := cargoRustVersion(filepath.Join(root, "Cargo.toml"))

	return fs.WalkDir(templatesFS, templatesRoot, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, _ := strings.CutPrefix(p, templatesRoot+"/")
		dst := filepath.Join(root, filepath.FromSlash(rel))
		if !force && exists(dst) {
			return nil
		}

		content, err := fs.ReadFile(templatesFS, p)
		if err != nil {
			return err
		}
		if msrv != "" && path.Dir(rel) == "workflows" {
			content = msrvLine.ReplaceAll(content, []byte(fmt.Sprintf("msrv: %q", msrv)))
		}
		return writeScaffold(dst, content)
	})
}

// workspaceDirs lists the directories a fresh workspace needs, laid out
// per the built-in path defaults.
func workspaceDirs(root string) []string {
	paths := domain.DefaultConfig().Paths
	return []string{
		filepath.Join(root, filepath.FromSlash(paths.WorkflowsDir)),
		filepath.Join(root, filepath.FromSlash(paths.RunsDir)),
		filepath.Join(root, filepath.FromSlash(paths.WorktreesDir)),
		filepath.Join(root, ".vgate", "logs"),
	}
}

func writeScaffold(dst string, content []byte) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("fsworkspace: create %s: %w", filepath.Dir(dst), err)
	}
	if err := os.WriteFile(dst, content, 0o644); err != nil {
		return fmt.Errorf("fsworkspace: write %s: %w", dst, err)
	}
	return nil
}

// cargoRustVersion returns package.rust-version from a Cargo.toml, or ""
// when the file is missing or does not declare one. Workspace-inherited
// values (rust-version.workspace = true) are ignored.
func cargoRustVersion(manifest string) string {
	b, err := os.ReadFile(manifest)
	if err != nil {
		return ""
	}

	section := ""
	sc := bufio.NewScanner(bytes.NewReader(b))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if strings.HasPrefix(line, "[") {
			section = strings.Trim(line, "[] ")
			continue
		}
		if section != "package" && section != "workspace.package" {
			continue
		}
		key, val, ok := strings.Cut(line, "=")
		if !ok || strings.TrimSpace(key) != "rust-version" {
			continue
		}
		val, _, _ = strings.Cut(strings.TrimSpace(val), "#")
		val = strings.TrimSpace(val)
		if len(val) < 2 || val[0] != '"' || val[len(val)-1] != '"' {
			continue
		}
		return val[1 : len(val)-1]
	}
	return ""
}

func ensureGitignore(root string) error {
	p := filepath.Join(root, ".gitignore")
	existing, err := os.ReadFile(p)
	if err != nil && !os.IsNotExist(err) {
		return err
	}

	updated, changed := withIgnoredPaths(string(existing))
	if !changed {
		return nil
	}
	return os.WriteFile(p, []byte(updated), 0o644)
}

// withIgnoredPaths appends whatever vgate entries are missing from a
// .gitignore body. The header is written at most once.
func withIgnoredPaths(body string) (string, bool) {
	seen := map[string]bool{}
	for _, line := range strings.Split(body, "\n") {
		seen[strings.TrimSpace(line)] = true
	}

	var add []string
	if !seen[gitignoreHeader] {
		add = append(add, gitignoreHeader)
	}
	missing := 0
	for _, e := range ignoredPaths {
		if !seen[e] {
			add = append(add, e)
			missing++
		}
	}
	if missing == 0 {
		return body, false
	}

	var b strings.Builder
	if body != "" {
		b.WriteString(body)
		if !strings.HasSuffix(body, "\n") {
			b.WriteByte('\n')
		}
		b.WriteByte('\n')
	}
	b.WriteString(strings.Join(add, "\n"))
	b.WriteByte('\n')
	return b.String(), true
}

func exists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
