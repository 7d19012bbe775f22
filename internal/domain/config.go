package domain

import (
	"runtime"
	"time"
)

// Config represents the vgate configuration loaded from vgate.yaml.
type Config struct {
	Defaults  DefaultsConfig
	Paths     PathsConfig
	Container ContainerConfig
}

type DefaultsConfig struct {
	Workflow string
	Executor string

	// Parallel bounds how many cells run at once.
	Parallel int

	// StepTimeout is zero for no timeout.
	StepTimeout time.Duration

	MaxOutputBytes int64
}

type PathsConfig struct {
	WorkflowsDir string
	RunsDir      string
	WorktreesDir string
}

type ContainerConfig struct {
	Image        string
	CacheVolumes bool
}

const (
	ExecutorLocal     = "local"
	ExecutorContainer = "container"
)

// DefaultConfig provides sane defaults if vgate.yaml is partially missing.
func DefaultConfig() Config {
	return Config{
		Defaults: DefaultsConfig{
			Workflow:       "ci",
			Executor:       ExecutorLocal,
			Parallel:       runtime.NumCPU(),
			MaxOutputBytes: 256 * 1024,
		},
		Paths: PathsConfig{
			WorkflowsDir: "workflows",
			RunsDir:      "runs",
			WorktreesDir: ".vgate/worktrees",
		},
		Container: ContainerConfig{
			Image:        "rust",
			CacheVolumes: true,
		},
	}
}
