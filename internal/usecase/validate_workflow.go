package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/aalvaropc/vgate/internal/domain"
	"github.com/aalvaropc/vgate/internal/ports"
)

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Finding is a single validation message.
type Finding struct {
	Severity Severity
	Job      string
	Step     string
	Message  string
}

func (f Finding) String() string {
	loc := f.Job
	if f.Step != "" {
		loc += "." + f.Step
	}
	if loc == "" {
		return fmt.Sprintf("%s: %s", f.Severity, f.Message)
	}
	return fmt.Sprintf("%s: %s: %s", f.Severity, loc, f.Message)
}

// ValidationReport lists everything found wrong or suspicious in a workflow.
type ValidationReport struct {
	Workflow string
	Cells    int
	Findings []Finding
}

func (r ValidationReport) Errors() []Finding   { return r.filter(SeverityError) }
func (r ValidationReport) Warnings() []Finding { return r.filter(SeverityWarning) }

func (r ValidationReport) filter(s Severity) []Finding {
	var out []Finding
	for _, f := range r.Findings {
		if f.Severity == s {
			out = append(out, f)
		}
	}
	return out
}

type ValidateWorkflow struct {
	workflows ports.WorkflowLoader
	resolver  *domain.VarResolver
}

type ValidateOption func(*ValidateWorkflow)

func WithVarResolver(vr *domain.VarResolver) ValidateOption {
	return func(uc *ValidateWorkflow) {
		if vr != nil {
			uc.resolver = vr
		}
	}
}

func NewValidateWorkflow(wl ports.WorkflowLoader, opts ...ValidateOption) *ValidateWorkflow {
	uc := &ValidateWorkflow{
		workflows: wl,
		resolver:  domain.NewVarResolver(),
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// Execute checks a workflow without running anything. It expands the matrix,
// derives every command and resolves its {{vars}} against each job's first cell.
// The returned error is non-nil when loading fails or the report has errors.
func (uc *ValidateWorkflow) Execute(ctx context.Context, path string, overrides domain.Vars) (ValidationReport, error) {
	wf, err := uc.workflows.LoadWorkflow(path)
	if err != nil {
		return ValidationReport{}, err
	}

	rep := ValidationReport{Workflow: wf.Name}
	add := func(sev Severity, job, step, format string, args ...any) {
		rep.Findings = append(rep.Findings, Finding{Severity: sev, Job: job, Step: step, Message: fmt.Sprintf(format, args...)})
	}

	if len(wf.Jobs) == 0 {
		add(SeverityError, "", "", "workflow declares no jobs")
	}

	vars := workflowVars(wf, overrides)
	resolved, err := resolveMatrix(uc.resolver, wf, vars)
	if err != nil {
		add(SeverityError, "", "", "%v", err)
		return rep, invalid(path, rep)
	}

	seen := map[string]bool{}
	for _, job := range resolved.Jobs {
		if err := ctx.Err(); err != nil {
			return rep, err
		}

		if seen[job.ID] {
			add(SeverityError, job.ID, "", "duplicate job id")
		}
		seen[job.ID] = true

		uc.checkJob(job, vars, add)
		rep.Cells += len(domain.ExpandJob(job))
	}

	return rep, invalid(path, rep)
}

type addFunc func(sev Severity, job, step, format string, args ...any)

func (uc *ValidateWorkflow) checkJob(job domain.Job, vars domain.Vars, add addFunc) {
	if len(job.Matrix.Toolchains) == 0 {
		add(SeverityError, job.ID, "", "matrix has no toolchains")
	}
	if len(job.Matrix.Platforms) == 0 {
		add(SeverityError, job.ID, "", "matrix has no platforms")
	}
	if len(job.Steps) == 0 {
		add(SeverityError, job.ID, "", "job has no steps")
	}

	if pin := job.Install.Toolchain; pin != "" {
		for _, tc := range job.Matrix.Toolchains {
			if tc != pin {
				add(SeverityWarning, job.ID, "", "matrix declares %s but install pins %s; cells run on %s", tc, pin, pin)
			}
		}
	}

	cells := domain.ExpandJob(job)
	if len(cells) == 0 {
		return
	}
	rt := uc.resolver.NewRuntime(vars, cells[0])

	runs := map[domain.CheckKind]map[domain.FeatureSet]int{}
	for _, step := range job.Steps {
		cmd, err := domain.StepCommand(cells[0], step)
		if err != nil {
			add(SeverityError, job.ID, step.Name, "%v", err)
			continue
		}
		resolved, err := rt.ResolveCommand(cmd)
		if err != nil {
			add(SeverityError, job.ID, step.Name, "%v", err)
			continue
		}

		switch step.Check {
		case domain.CheckLint:
			if !domain.IsStrictLint(resolved) {
				add(SeverityError, job.ID, step.Name, "lint does not deny warnings: %s", resolved.String())
			}
		case domain.CheckFormat:
			if !domain.IsVerifyOnlyFormat(resolved.Argv) {
				add(SeverityError, job.ID, step.Name, "format step would rewrite sources; add --check")
			}
		}

		if step.Check == domain.CheckTest || step.Check == domain.CheckLint {
			fs := step.Features
			if len(step.Run) > 0 && domain.UsesReducedFeatures(resolved.Argv) {
				fs = domain.FeaturesNone
			}
			if runs[step.Check] == nil {
				runs[step.Check] = map[domain.FeatureSet]int{}
			}
			runs[step.Check][normalizeFeatures(fs)]++
		}
	}

	// Each test cell runs the suite once per feature set. Lint coverage is advisory.
	for _, check := range []domain.CheckKind{domain.CheckTest, domain.CheckLint} {
		sets, ok := runs[check]
		if !ok {
			continue
		}
		for _, fs := range []domain.FeatureSet{domain.FeaturesDefault, domain.FeaturesNone} {
			n := sets[fs]
			switch {
			case check == domain.CheckTest && n != 1:
				add(SeverityError, job.ID, "", "test runs with %s %d times, want exactly once", featureLabel(fs), n)
			case n == 0:
				add(SeverityWarning, job.ID, "", "%s never runs with %s", check, featureLabel(fs))
			case n > 1:
				add(SeverityWarning, job.ID, "", "%s runs with %s %d times", check, featureLabel(fs), n)
			}
		}
	}
}

func featureLabel(fs domain.FeatureSet) string {
	if fs == domain.FeaturesNone {
		return "default features disabled"
	}
	return "default features"
}

func normalizeFeatures(f domain.FeatureSet) domain.FeatureSet {
	if f == "" {
		return domain.FeaturesDefault
	}
	return f
}

func invalid(path string, rep ValidationReport) error {
	errs := rep.Errors()
	if len(errs) == 0 {
		return nil
	}
	msgs := make([]string, 0, len(errs))
	for _, f := range errs {
		msgs = append(msgs, f.String())
	}
	return &domain.OpError{
		Op:   "workflow.validate",
		Kind: domain.KindInvalidConfig,
		Path: path,
		Err:  fmt.Errorf("%s: %w", strings.Join(msgs, "; "), domain.ErrInvalidConfig),
	}
}
