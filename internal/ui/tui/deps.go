package tui

import (
	"context"
	"log/slog"

	"github.com/aalvaropc/vgate/internal/domain"
	"github.com/aalvaropc/vgate/internal/ports"
)

// GateFunc runs one gate, reporting progress to obs.
type GateFunc func(ctx context.Context, obs ports.RunObserver) (domain.GateRun, string, error)

type Deps struct {
	WorkspaceLocator     ports.WorkspaceLocator
	WorkspaceInitializer ports.WorkspaceInitializer

	// NewGate prepares a gate for the workspace at root.
	NewGate func(root string) (GateFunc, error)
	// ListRuns returns the stored runs of the workspace at root, newest first.
	ListRuns func(root string) ([]domain.RunRef, error)

	Logger *slog.Logger
	Debug  bool

	// Root skips workspace discovery when set.
	Root string
	// AutoRun opens straight into a gate run.
	AutoRun bool
}
