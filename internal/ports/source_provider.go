package ports

import (
	"context"

	"github.com/aalvaropc/vgate/internal/domain"
)

// SourceProvider materializes the revision under test for each cell.
type SourceProvider interface {
	// Resolve turns a user-supplied revision (branch, tag, "HEAD") into an immutable id.
	Resolve(ctx context.Context, revision string) (string, error)

	// Checkout returns a private working tree for the cell. release removes it.
	Checkout(ctx context.Context, revision string, cell domain.Cell, runID string) (dir string, release func() error, err error)
}
