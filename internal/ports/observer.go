package ports

import "github.com/aalvaropc/vgate/internal/domain"

// RunObserver receives progress while a gate run is in flight. Calls arrive from
// concurrent cell workers; implementations must be safe for concurrent use.
type RunObserver interface {
	CellStarted(cell domain.Cell)
	StepFinished(cell domain.Cell, step domain.StepResult)
	CellFinished(result domain.CellResult)
}
