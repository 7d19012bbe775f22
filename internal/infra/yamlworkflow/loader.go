package yamlworkflow

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/aalvaropc/vgate/internal/domain"
	"github.com/aalvaropc/vgate/internal/infra/config"
	"github.com/aalvaropc/vgate/internal/ports"
)

type Loader struct {
	rootDir      string
	workflowsDir string
}

type Option func(*Loader)

func WithWorkflowsDir(dir string) Option {
	return func(l *Loader) {
		if strings.TrimSpace(dir) != "" {
			l.workflowsDir = dir
		}
	}
}

func NewLoader(root string, opts ...Option) *Loader {
	l := &Loader{rootDir: root, workflowsDir: "workflows"}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

var _ ports.WorkflowLoader = (*Loader)(nil)

// LoadWorkflow accepts either a workflow name (e.g., "ci") or a path to a YAML file.
func (l *Loader) LoadWorkflow(nameOrPath string) (domain.Workflow, error) {
	return config.LoadWorkflow(l.Resolve(nameOrPath))
}

// Resolve maps a workflow name to its file under the workflows dir. Paths are
// returned cleaned and unchanged.
func (l *Loader) Resolve(nameOrPath string) string {
	if isPath(nameOrPath) {
		return filepath.Clean(nameOrPath)
	}

	dir := filepath.Join(l.rootDir, l.workflowsDir)
	for _, ext := range []string{".yaml", ".yml"} {
		p := filepath.Join(dir, nameOrPath+ext)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return filepath.Join(dir, nameOrPath+".yaml")
}

func (l *Loader) ListWorkflows(root string) ([]domain.WorkflowRef, error) {
	dir := filepath.Join(root, l.workflowsDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &domain.OpError{
			Op:   "yamlworkflow.list",
			Kind: domain.KindNotFound,
			Path: dir,
			Err:  err,
		}
	}

	var refs []domain.WorkflowRef
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml") {
			continue
		}

		p := filepath.Join(dir, name)
		n, _ := readWorkflowName(p)
		if strings.TrimSpace(n) == "" {
			n = strings.TrimSuffix(name, filepath.Ext(name))
		}

		refs = append(refs, domain.WorkflowRef{Name: n, Path: p})
	}

	sort.Slice(refs, func(i, j int) bool { return refs[i].Name < refs[j].Name })
	return refs, nil
}

func isPath(s string) bool {
	return strings.HasSuffix(s, ".yaml") ||
		strings.HasSuffix(s, ".yml") ||
		strings.ContainsRune(s, '/') ||
		strings.ContainsRune(s, filepath.Separator)
}

func readWorkflowName(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	var v struct {
		Name string `yaml:"name"`
	}
	if err := yaml.Unmarshal(b, &v); err != nil {
		return "", err
	}
	return v.Name, nil
}
