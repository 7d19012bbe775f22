package workspacefinder

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aalvaropc/vgate/internal/domain"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, ConfigFile), []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return root
}

func TestLoadConfig_AppliesDefaults(t *testing.T) {
	root := writeConfig(t, "vgate:\n  defaults:\n    workflow: gate\n")

	cfg, err := LoadConfig(root)
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}

	def := domain.DefaultConfig()
	if cfg.Defaults.Workflow != "gate" {
		t.Fatalf("expected workflow=gate, got=%s", cfg.Defaults.Workflow)
	}
	if cfg.Defaults.Executor != domain.ExecutorLocal {
		t.Fatalf("expected default executor local, got=%s", cfg.Defaults.Executor)
	}
	if cfg.Defaults.Parallel != def.Defaults.Parallel {
		t.Fatalf("expected default parallel, got=%d", cfg.Defaults.Parallel)
	}
	if cfg.Paths != def.Paths {
		t.Fatalf("expected default paths, got=%+v", cfg.Paths)
	}
	if cfg.Container != def.Container {
		t.Fatalf("expected default container, got=%+v", cfg.Container)
	}
}

func TestLoadConfig_FullFile(t *testing.T) {
	root := writeConfig(t, `
vgate:
  defaults:
    workflow: ci
    executor: container
    parallel: 3
    step_timeout: 45m
    max_output_bytes: 1024
  paths:
    workflows_dir: .gate
    runs_dir: .gate/runs
    worktrees_dir: /tmp/wt
  container:
    image: ghcr.io/acme/rust
    cache: false
`)

	cfg, err := LoadConfig(root)
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if cfg.Defaults.Executor != domain.ExecutorContainer || cfg.Defaults.Parallel != 3 {
		t.Fatalf("unexpected defaults %+v", cfg.Defaults)
	}
	if cfg.Defaults.StepTimeout != 45*time.Minute || cfg.Defaults.MaxOutputBytes != 1024 {
		t.Fatalf("unexpected limits %+v", cfg.Defaults)
	}
	if cfg.Paths.WorkflowsDir != ".gate" || cfg.Paths.RunsDir != ".gate/runs" || cfg.Paths.WorktreesDir != "/tmp/wt" {
		t.Fatalf("unexpected paths %+v", cfg.Paths)
	}
	if cfg.Container.Image != "ghcr.io/acme/rust" || cfg.Container.CacheVolumes {
		t.Fatalf("unexpected container %+v", cfg.Container)
	}
}

func TestLoadConfig_InvalidValues(t *testing.T) {
	cases := map[string]string{
		"vgate.defaults.executor":         "vgate:\n  defaults:\n    executor: vm\n",
		"vgate.defaults.parallel":         "vgate:\n  defaults:\n    parallel: 0\n",
		"vgate.defaults.step_timeout":     "vgate:\n  defaults:\n    step_timeout: soon\n",
		"vgate.defaults.max_output_bytes": "vgate:\n  defaults:\n    max_output_bytes: -1\n",
	}
	for field, content := range cases {
		t.Run(field, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, content))
			if !domain.IsKind(err, domain.KindInvalidConfig) {
				t.Fatalf("expected invalid config, got %v", err)
			}
			if !strings.Contains(err.Error(), field) {
				t.Fatalf("expected %s in error, got %v", field, err)
			}
		})
	}
}

func TestLoadConfig_Missing(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	if !domain.IsKind(err, domain.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if cfg.Defaults.Workflow != "ci" {
		t.Fatalf("defaults should still be returned")
	}
}

func TestLoadConfig_Malformed(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, "vgate: [\n"))
	if !domain.IsKind(err, domain.KindInvalidConfig) {
		t.Fatalf("expected invalid config, got %v", err)
	}
}
