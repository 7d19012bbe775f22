package ports

import (
	"context"
	"time"

	"github.com/aalvaropc/vgate/internal/domain"
)

// Executor provides isolated environments in which a cell's commands run.
type Executor interface {
	Name() string

	// Supports reports whether the executor can host cells for the platform.
	Supports(p domain.Platform) bool

	// Open prepares an environment for one cell with srcDir as the working tree.
	Open(ctx context.Context, cell domain.Cell, srcDir string) (Session, error)
}

// Session runs commands for a single cell. Sessions are not shared between cells.
type Session interface {
	// Run executes cmd to completion. A non-zero exit is reported through
	// ExecResult.ExitCode with a nil error; err is reserved for commands that
	// could not be started or were interrupted.
	Run(ctx context.Context, cmd domain.Command) (ExecResult, error)
	Close() error
}

// ExecResult is the raw outcome of one command.
type ExecResult struct {
	ExitCode int
	Output   domain.Output
	Duration time.Duration
}
