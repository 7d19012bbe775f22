package ports

import "github.com/aalvaropc/vgate/internal/domain"

// WorkflowLoader loads gate workflows from a source (e.g., filesystem).
type WorkflowLoader interface {
	LoadWorkflow(path string) (domain.Workflow, error)
	ListWorkflows(root string) ([]domain.WorkflowRef, error)
}
