package workspacefinder

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/aalvaropc/vgate/internal/domain"
)

// ConfigFile is the marker file of a vgate workspace.
const ConfigFile = "vgate.yaml"

// LoadConfig loads vgate.yaml from the workspace root and applies defaults.
func LoadConfig(root string) (domain.Config, error) {
	cfg := domain.DefaultConfig()

	path := filepath.Join(root, ConfigFile)
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, &domain.OpError{
			Op:   "workspacefinder.loadconfig",
			Kind: domain.KindNotFound,
			Path: path,
			Err:  err,
		}
	}

	var y yamlConfig
	if err := yaml.Unmarshal(b, &y); err != nil {
		return cfg, &domain.OpError{
			Op:   "workspacefinder.loadconfig",
			Kind: domain.KindInvalidConfig,
			Path: path,
			Err:  err,
		}
	}

	// Apply parsed values on top of defaults.
	d := y.VGate.Defaults
	if d.Workflow != "" {
		cfg.Defaults.Workflow = d.Workflow
	}
	if d.Executor != "" {
		switch ex := strings.ToLower(strings.TrimSpace(d.Executor)); ex {
		case domain.ExecutorLocal, domain.ExecutorContainer:
			cfg.Defaults.Executor = ex
		default:
			return cfg, invalidConfig(path, "vgate.defaults.executor", fmt.Sprintf("unknown executor %q", d.Executor))
		}
	}
	if d.Parallel != nil {
		if *d.Parallel < 1 {
			return cfg, invalidConfig(path, "vgate.defaults.parallel", "must be at least 1")
		}
		cfg.Defaults.Parallel = *d.Parallel
	}
	if d.StepTimeout != "" {
		dur, err := time.ParseDuration(d.StepTimeout)
		if err != nil || dur < 0 {
			return cfg, invalidConfig(path, "vgate.defaults.step_timeout", fmt.Sprintf("invalid duration %q", d.StepTimeout))
		}
		cfg.Defaults.StepTimeout = dur
	}
	if d.MaxOutputBytes != nil {
		if *d.MaxOutputBytes <= 0 {
			return cfg, invalidConfig(path, "vgate.defaults.max_output_bytes", "must be positive")
		}
		cfg.Defaults.MaxOutputBytes = *d.MaxOutputBytes
	}

	p := y.VGate.Paths
	if p.WorkflowsDir != "" {
		cfg.Paths.WorkflowsDir = p.WorkflowsDir
	}
	if p.RunsDir != "" {
		cfg.Paths.RunsDir = p.RunsDir
	}
	if p.WorktreesDir != "" {
		cfg.Paths.WorktreesDir = p.WorktreesDir
	}

	c := y.VGate.Container
	if c.Image != "" {
		cfg.Container.Image = c.Image
	}
	if c.Cache != nil {
		cfg.Container.CacheVolumes = *c.Cache
	}

	return cfg, nil
}

func invalidConfig(path, field, msg string) error {
	return &domain.OpError{
		Op:   "workspacefinder.loadconfig",
		Kind: domain.KindInvalidConfig,
		Path: path,
		Err:  fmt.Errorf("field %s: %s: %w", field, msg, domain.ErrInvalidConfig),
	}
}

type yamlConfig struct {
	VGate struct {
		Defaults struct {
			Workflow       string `yaml:"workflow"`
			Executor       string `yaml:"executor"`
			Parallel       *int   `yaml:"parallel"`
			StepTimeout    string `yaml:"step_timeout"`
			MaxOutputBytes *int64 `yaml:"max_output_bytes"`
		} `yaml:"defaults"`

		Paths struct {
			WorkflowsDir string `yaml:"workflows_dir"`
			RunsDir      string `yaml:"runs_dir"`
			WorktreesDir string `yaml:"worktrees_dir"`
		} `yaml:"paths"`

		Container struct {
			Image string `yaml:"image"`
			Cache *bool  `yaml:"cache"`
		} `yaml:"container"`
	} `yaml:"vgate"`
}
