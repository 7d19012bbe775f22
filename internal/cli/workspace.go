package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aalvaropc/vgate/internal/domain"
	"github.com/aalvaropc/vgate/internal/infra/containerexec"
	"github.com/aalvaropc/vgate/internal/infra/gitcheckout"
	"github.com/aalvaropc/vgate/internal/infra/localexec"
	"github.com/aalvaropc/vgate/internal/infra/logger"
	"github.com/aalvaropc/vgate/internal/infra/runstore"
	"github.com/aalvaropc/vgate/internal/infra/workspacefinder"
	"github.com/aalvaropc/vgate/internal/infra/yamlworkflow"
	"github.com/aalvaropc/vgate/internal/ports"
	"github.com/aalvaropc/vgate/internal/usecase"
)

type workspaceCtx struct {
	root string
	cfg  domain.Config

	workflows *yamlworkflow.Loader
	store     *runstore.JSONStore
}

func loadWorkspace(workspaceFlag string) (*workspaceCtx, error) {
	root, err := resolveWorkspaceRoot(workspaceFlag)
	if err != nil {
		return nil, err
	}
	return loadWorkspaceAt(root)
}

func loadWorkspaceAt(root string) (*workspaceCtx, error) {
	cfg, err := workspacefinder.LoadConfig(root)
	if err != nil {
		return nil, err
	}

	loader := yamlworkflow.NewLoader(root, yamlworkflow.WithWorkflowsDir(cfg.Paths.WorkflowsDir))

	store := runstore.NewJSONStore(root, cfg,
		runstore.WithIndex(true),
		runstore.WithSecrets(runstore.SecretsFromEnv(os.Environ())...),
	)

	return &workspaceCtx{
		root:      root,
		cfg:       cfg,
		workflows: loader,
		store:     store,
	}, nil
}

func resolveWorkspaceRoot(workspaceFlag string) (string, error) {
	w := strings.TrimSpace(workspaceFlag)
	if w != "" {
		abs, err := filepath.Abs(w)
		if err != nil {
			return "", fmt.Errorf("invalid workspace path: %w", err)
		}
		return abs, nil
	}

	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get working directory: %w", err)
	}

	locator := workspacefinder.NewFinder()
	root, err := locator.FindRoot(wd)
	if err != nil {
		return "", fmt.Errorf("workspace not found from %q (tip: run `vgate init`): %w", wd, err)
	}
	return root, nil
}

// resolveWorkflowPath accepts a workflow name, a file under the workflows dir,
// or a path relative to the workspace root. Empty means the configured default.
func resolveWorkflowPath(ws *workspaceCtx, arg string) (string, error) {
	in := strings.TrimSpace(arg)
	if in == "" {
		in = ws.cfg.Defaults.Workflow
	}
	if in == "" {
		return "", fmt.Errorf("workflow is required (use --workflow or -f)")
	}

	if looksLikePath(in) {
		p := in
		if !filepath.IsAbs(p) {
			p = filepath.Join(ws.root, p)
		}
		return filepath.Clean(p), nil
	}

	workflowsDir := filepath.Join(ws.root, ws.cfg.Paths.WorkflowsDir)

	// "ci.yaml" is a file under the workflows dir.
	if hasYAMLExt(in) {
		p := filepath.Join(workflowsDir, in)
		if fileExists(p) {
			return p, nil
		}
	}

	p := ws.workflows.Resolve(in)
	if fileExists(p) {
		return p, nil
	}

	// As a last resort: match by workflow "name" field.
	refs, err := ws.workflows.ListWorkflows(ws.root)
	if err == nil {
		for _, r := range refs {
			if strings.EqualFold(r.Name, in) {
				return r.Path, nil
			}
		}
	}

	return "", &domain.OpError{
		Op:   "cli.workflow",
		Kind: domain.KindNotFound,
		Path: workflowsDir,
		Err:  fmt.Errorf("workflow %q: %w", in, domain.ErrNotFound),
	}
}

// newExecutor builds the named executor. The returned closer releases engine
// connections and is never nil.
func newExecutor(ws *workspaceCtx, name string, progress io.Writer) (ports.Executor, func() error, error) {
	if strings.TrimSpace(name) == "" {
		name = ws.cfg.Defaults.Executor
	}

	switch name {
	case domain.ExecutorLocal, "":
		ex := localexec.NewExecutor(
			localexec.WithMaxOutput(ws.cfg.Defaults.MaxOutputBytes),
			localexec.WithLogger(logger.Component("localexec")),
		)
		return ex, func() error { return nil }, nil

	case domain.ExecutorContainer:
		opts := []containerexec.Option{
			containerexec.WithImage(ws.cfg.Container.Image),
			containerexec.WithCache(ws.cfg.Container.CacheVolumes),
			containerexec.WithMaxOutput(ws.cfg.Defaults.MaxOutputBytes),
			containerexec.WithLogger(logger.Component("containerexec")),
		}
		if progress != nil {
			opts = append(opts, containerexec.WithLogOutput(progress))
		}
		ex := containerexec.NewExecutor(opts...)
		return ex, ex.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown executor %q (expected local|container)", name)
	}
}

// newSource evaluates the working tree in place unless a revision is requested,
// in which case every cell gets its own worktree of that commit.
func newSource(ctx context.Context, ws *workspaceCtx, revision string) (ports.SourceProvider, error) {
	if strings.TrimSpace(revision) == "" {
		return gitcheckout.NewInPlace(ws.root), nil
	}

	top, err := gitcheckout.TopLevel(ctx, ws.root)
	if err != nil {
		return nil, &domain.OpError{Op: "cli.source", Kind: domain.KindNotFound, Path: ws.root, Err: err}
	}
	top, _ = filepath.EvalSymlinks(top)
	root, _ := filepath.EvalSymlinks(ws.root)
	rel, err := filepath.Rel(top, root)
	if err != nil {
		rel = "."
	}

	return gitcheckout.NewWorktrees(top, filepath.Join(ws.root, ws.cfg.Paths.WorktreesDir),
		gitcheckout.WithSubdir(rel),
		gitcheckout.WithLogger(logger.Component("gitcheckout")),
	), nil
}

type gateOptions struct {
	revision string
	executor string
	observer ports.RunObserver
	noSave   bool
	progress io.Writer
}

// newGate wires the gate use case for the workspace. The closer must be called
// once the run is over.
func newGate(ctx context.Context, ws *workspaceCtx, o gateOptions) (*usecase.RunGate, func() error, error) {
	ex, closeEx, err := newExecutor(ws, o.executor, o.progress)
	if err != nil {
		return nil, nil, err
	}
	src, err := newSource(ctx, ws, o.revision)
	if err != nil {
		_ = closeEx()
		return nil, nil, err
	}

	var store ports.ArtifactStore = ws.store
	if o.noSave {
		store = nil
	}

	uc := usecase.NewRunGate(ws.workflows, src, ex, store,
		usecase.WithObserver(o.observer),
		usecase.WithLogger(logger.Component("gate")),
	)
	return uc, closeEx, nil
}

// setupLogging routes the package logger to the workspace log file.
func setupLogging(cmd *cobra.Command, root string) func() {
	debug, _ := cmd.Flags().GetBool("debug")
	cleanup, err := logger.Setup(logger.Config{Root: root, Debug: debug})
	if err != nil || cleanup == nil {
		return func() {}
	}
	return func() { _ = cleanup() }
}

// parseVars turns repeated KEY=VALUE flags into vars.
func parseVars(in []string) (domain.Vars, error) {
	out := domain.Vars{}
	for _, kv := range in {
		k, v, ok := strings.Cut(kv, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid --var %q (expected KEY=VALUE)", kv)
		}
		out[k] = v
	}
	return out, nil
}

// hostPlatforms lists the platforms the named executor can host on this machine.
func hostPlatforms(ws *workspaceCtx, executor string) ([]string, error) {
	ex, closeEx, err := newExecutor(ws, executor, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = closeEx() }()

	var out []string
	for _, p := range []domain.Platform{domain.PlatformLinux, domain.PlatformMacOS, domain.PlatformWindows} {
		if ex.Supports(p) {
			out = append(out, string(p))
		}
	}
	return out, nil
}

func parseFilter(jobs, toolchains, platforms []string) (domain.MatrixFilter, error) {
	f := domain.MatrixFilter{Jobs: jobs}
	for _, t := range toolchains {
		f.Toolchains = append(f.Toolchains, domain.Toolchain(strings.TrimSpace(t)))
	}
	for _, p := range platforms {
		pl, ok := domain.ParsePlatform(p)
		if !ok {
			return domain.MatrixFilter{}, fmt.Errorf("unknown platform %q (expected linux|macos|windows)", p)
		}
		f.Platforms = append(f.Platforms, pl)
	}
	return f, nil
}

func looksLikePath(s string) bool {
	return strings.Contains(s, "/") || strings.Contains(s, string(filepath.Separator))
}

func hasYAMLExt(s string) bool {
	ext := strings.ToLower(filepath.Ext(s))
	return ext == ".yaml" || ext == ".yml"
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
