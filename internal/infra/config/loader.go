package config

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/aalvaropc/vgate/internal/domain"
)

func LoadWorkflow(path string) (domain.Workflow, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return domain.Workflow{}, &domain.OpError{
			Op:   "config.load_workflow",
			Kind: domain.KindNotFound,
			Path: path,
			Err:  err,
		}
	}

	return ParseWorkflow(path, b)
}

// ParseWorkflow decodes workflow YAML. path is used for error messages only.
func ParseWorkflow(path string, b []byte) (domain.Workflow, error) {
	var dto YAMLWorkflow
	if err := yaml.Unmarshal(b, &dto); err != nil {
		return domain.Workflow{}, &domain.OpError{
			Op:   "config.load_workflow",
			Kind: domain.KindInvalidConfig,
			Path: path,
			Err:  err,
		}
	}

	return MapWorkflow(path, dto)
}
