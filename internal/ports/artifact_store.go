package ports

import "github.com/aalvaropc/vgate/internal/domain"

// ArtifactStore persists gate runs for reproducibility.
type ArtifactStore interface {
	SaveRun(run domain.GateRun) (id string, err error)
	ListRuns() ([]domain.RunRef, error)
	LoadRun(id string) (domain.GateRun, error)
}
