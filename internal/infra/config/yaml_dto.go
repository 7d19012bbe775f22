package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

type YAMLWorkflow struct {
	Name string            `yaml:"name"`
	On   YAMLStrings       `yaml:"on"`
	MSRV string            `yaml:"msrv"`
	Vars map[string]string `yaml:"vars"`
	Jobs YAMLJobs          `yaml:"jobs"`
}

type YAMLJob struct {
	ID      string      `yaml:"-"`
	Name    string      `yaml:"name"`
	Matrix  YAMLMatrix  `yaml:"matrix"`
	Install YAMLInstall `yaml:"install"`
	Steps   []YAMLStep  `yaml:"steps"`
}

type YAMLMatrix struct {
	Toolchain YAMLStrings `yaml:"toolchain"`
	Platform  YAMLStrings `yaml:"platform"`

	// OS accepts hosted-runner labels (ubuntu-latest, ...) as platform aliases.
	OS YAMLStrings `yaml:"os"`
}

type YAMLInstall struct {
	Toolchain  string   `yaml:"toolchain"`
	Components []string `yaml:"components"`
	Profile    string   `yaml:"profile"`
}

type YAMLStep struct {
	Name     string            `yaml:"name"`
	Check    string            `yaml:"check"`
	Features string            `yaml:"features"`
	Run      YAMLStrings       `yaml:"run"`
	Env      map[string]string `yaml:"env"`
}

// YAMLJobs keeps jobs in file order; a plain map would lose it.
type YAMLJobs []YAMLJob

func (j *YAMLJobs) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: jobs must be a mapping of job id to job", value.Line)
	}

	out := make(YAMLJobs, 0, len(value.Content)/2)
	for i := 0; i+1 < len(value.Content); i += 2 {
		key, body := value.Content[i], value.Content[i+1]

		var job YAMLJob
		if err := body.Decode(&job); err != nil {
			return fmt.Errorf("jobs.%s: %w", key.Value, err)
		}
		job.ID = key.Value
		out = append(out, job)
	}
	*j = out
	return nil
}

// YAMLStrings accepts either a scalar or a sequence of scalars.
type YAMLStrings []string

func (s *YAMLStrings) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		if value.Value == "" {
			*s = nil
			return nil
		}
		*s = YAMLStrings{value.Value}
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := value.Decode(&list); err != nil {
			return err
		}
		*s = list
		return nil
	default:
		return fmt.Errorf("line %d: expected a string or a list of strings", value.Line)
	}
}
