package config

import (
	"fmt"
	"strings"

	"github.com/aalvaropc/vgate/internal/domain"
)

func MapWorkflow(path string, yw YAMLWorkflow) (domain.Workflow, error) {
	if strings.TrimSpace(yw.Name) == "" {
		return domain.Workflow{}, invalidField(path, "name", "workflow name is required")
	}
	if len(yw.Jobs) == 0 {
		return domain.Workflow{}, invalidField(path, "jobs", "at least one job is required")
	}

	wf := domain.Workflow{
		Name:    yw.Name,
		Trigger: strings.Join(yw.On, ","),
		MSRV:    domain.Toolchain(strings.TrimSpace(yw.MSRV)),
		Vars:    domain.Vars(yw.Vars),
		Jobs:    make([]domain.Job, 0, len(yw.Jobs)),
	}
	if wf.Vars == nil {
		wf.Vars = domain.Vars{}
	}

	for _, yj := range yw.Jobs {
		job, err := mapJob(path, yj)
		if err != nil {
			return domain.Workflow{}, err
		}
		wf.Jobs = append(wf.Jobs, job)
	}

	return wf, nil
}

func mapJob(path string, yj YAMLJob) (domain.Job, error) {
	prefix := "jobs." + yj.ID
	if strings.TrimSpace(yj.ID) == "" {
		return domain.Job{}, invalidField(path, "jobs", "job id is required")
	}

	job := domain.Job{
		ID:   yj.ID,
		Name: yj.Name,
		Install: domain.Install{
			Toolchain:  domain.Toolchain(strings.TrimSpace(yj.Install.Toolchain)),
			Components: yj.Install.Components,
			Profile:    strings.TrimSpace(yj.Install.Profile),
		},
	}
	if job.Name == "" {
		job.Name = yj.ID
	}

	if len(yj.Matrix.Toolchain) == 0 {
		return domain.Job{}, invalidField(path, prefix+".matrix.toolchain", "at least one toolchain is required")
	}
	for i, tc := range yj.Matrix.Toolchain {
		tc = strings.TrimSpace(tc)
		if tc == "" {
			return domain.Job{}, invalidField(path, fmt.Sprintf("%s.matrix.toolchain[%d]", prefix, i), "toolchain is empty")
		}
		job.Matrix.Toolchains = append(job.Matrix.Toolchains, domain.Toolchain(tc))
	}

	platforms := append(append([]string{}, yj.Matrix.Platform...), yj.Matrix.OS...)
	if len(platforms) == 0 {
		return domain.Job{}, invalidField(path, prefix+".matrix.platform", "at least one platform is required")
	}
	for i, raw := range platforms {
		p, ok := domain.ParsePlatform(raw)
		if !ok {
			return domain.Job{}, invalidField(path, fmt.Sprintf("%s.matrix.platform[%d]", prefix, i), fmt.Sprintf("unknown platform %q", raw))
		}
		job.Matrix.Platforms = append(job.Matrix.Platforms, p)
	}

	if len(yj.Steps) == 0 {
		return domain.Job{}, invalidField(path, prefix+".steps", "at least one step is required")
	}
	names := map[string]bool{}
	for i, ys := range yj.Steps {
		field := fmt.Sprintf("%s.steps[%d]", prefix, i)
		step, err := mapStep(path, field, ys)
		if err != nil {
			return domain.Job{}, err
		}
		if names[step.Name] {
			return domain.Job{}, invalidField(path, field+".name", fmt.Sprintf("duplicate step name %q", step.Name))
		}
		names[step.Name] = true
		job.Steps = append(job.Steps, step)
	}

	return job, nil
}

func mapStep(path, field string, ys YAMLStep) (domain.Step, error) {
	step := domain.Step{
		Name: strings.TrimSpace(ys.Name),
		Run:  mapArgv(ys.Run),
		Env:  domain.Vars(ys.Env),
	}

	check, err := parseCheck(ys.Check, len(step.Run) > 0)
	if err != nil {
		return domain.Step{}, invalidField(path, field+".check", err.Error())
	}
	step.Check = check

	if check == domain.CheckCustom && len(step.Run) == 0 {
		return domain.Step{}, invalidField(path, field+".run", "custom steps require run")
	}

	features, err := parseFeatures(ys.Features)
	if err != nil {
		return domain.Step{}, invalidField(path, field+".features", err.Error())
	}
	step.Features = features

	if step.Name == "" {
		step.Name = defaultStepName(step)
	}
	return step, nil
}

// mapArgv treats a single scalar as a whitespace-separated command line.
func mapArgv(run YAMLStrings) []string {
	if len(run) == 1 {
		return strings.Fields(run[0])
	}
	return []string(run)
}

func parseCheck(s string, hasRun bool) (domain.CheckKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		if hasRun {
			return domain.CheckCustom, nil
		}
		return "", fmt.Errorf("check is required when run is empty")
	case "test":
		return domain.CheckTest, nil
	case "lint", "clippy":
		return domain.CheckLint, nil
	case "format", "fmt":
		return domain.CheckFormat, nil
	case "custom":
		return domain.CheckCustom, nil
	default:
		return "", fmt.Errorf("unknown check %q (want test, lint, format or custom)", s)
	}
}

func parseFeatures(s string) (domain.FeatureSet, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "default", "full":
		return domain.FeaturesDefault, nil
	case "none", "no-default", "reduced":
		return domain.FeaturesNone, nil
	default:
		return "", fmt.Errorf("unknown feature set %q (want default or none)", s)
	}
}

func defaultStepName(s domain.Step) string {
	if len(s.Run) > 0 {
		return strings.Join(s.Run, " ")
	}
	if s.Features == domain.FeaturesNone && s.Check != domain.CheckFormat {
		return string(s.Check) + "-no-default"
	}
	return string(s.Check)
}

func invalidField(path, field, msg string) error {
	return &domain.OpError{
		Op:   "config.map",
		Kind: domain.KindInvalidConfig,
		Path: path,
		Err:  fmt.Errorf("field %s: %s: %w", field, msg, domain.ErrInvalidConfig),
	}
}
