package domain

import (
	"context"
	"errors"
	"time"
)

// Status is the lifecycle state of a step, a cell, or a whole run.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSuccess   Status = "success"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
	StatusCancelled Status = "cancelled"
)

// Done reports whether the status is terminal.
func (s Status) Done() bool {
	switch s {
	case StatusSuccess, StatusFailed, StatusSkipped, StatusCancelled:
		return true
	}
	return false
}

// FailureKind classifies why a command failed.
type FailureKind string

const (
	FailureProvision   FailureKind = "provision"
	FailureTest        FailureKind = "test"
	FailureLint        FailureKind = "lint"
	FailureFormat      FailureKind = "format"
	FailureCommand     FailureKind = "command"
	FailureUnsupported FailureKind = "unsupported"
	FailureCancelled   FailureKind = "cancelled"
)

// FailureFor maps a check kind to the failure it produces when its command exits non-zero.
func FailureFor(k CheckKind) FailureKind {
	switch k {
	case CheckTest:
		return FailureTest
	case CheckLint:
		return FailureLint
	case CheckFormat:
		return FailureFormat
	default:
		return FailureCommand
	}
}

// Failure is the structured reason a step or cell did not succeed.
type Failure struct {
	Kind    FailureKind `json:"kind"`
	Message string      `json:"message"`
}

// Output is a bounded capture of a command's combined stdout/stderr.
type Output struct {
	Text      string `json:"text,omitempty"`
	Truncated bool   `json:"truncated,omitempty"`
}

// StepResult is the outcome of a single command invocation inside a cell.
type StepResult struct {
	Name     string        `json:"name"`
	Check    CheckKind     `json:"check,omitempty"`
	Features FeatureSet    `json:"features,omitempty"`
	Command  []string      `json:"command,omitempty"`
	Status   Status        `json:"status"`
	ExitCode int           `json:"exit_code"`
	Duration time.Duration `json:"duration"`
	Output   Output        `json:"output"`
	Failure  *Failure      `json:"failure,omitempty"`
}

// Passed reports whether the step ran and exited zero.
func (r StepResult) Passed() bool {
	return r.Status == StatusSuccess
}

// CellResult is the outcome of one matrix cell.
type CellResult struct {
	Cell      Cell         `json:"cell"`
	Status    Status       `json:"status"`
	Provision StepResult   `json:"provision"`
	Steps     []StepResult `json:"steps"`
	StartedAt time.Time    `json:"started_at"`
	EndedAt   time.Time    `json:"ended_at"`
	Failure   *Failure     `json:"failure,omitempty"`
	Executor  string       `json:"executor,omitempty"`
	SourceDir string       `json:"source_dir,omitempty"`
}

// Passed reports whether every command of the cell succeeded.
func (c CellResult) Passed() bool {
	return c.Status == StatusSuccess
}

// FailedStep returns the first step that failed, if any.
func (c CellResult) FailedStep() (StepResult, bool) {
	if c.Provision.Status == StatusFailed {
		return c.Provision, true
	}
	for _, s := range c.Steps {
		if s.Status == StatusFailed {
			return s, true
		}
	}
	return StepResult{}, false
}

// Verdict is the aggregate decision over every cell of a run.
type Verdict string

const (
	VerdictPass Verdict = "pass"
	VerdictFail Verdict = "fail"
)

// Decide returns pass iff there is at least one cell and every cell succeeded.
func Decide(cells []CellResult) Verdict {
	if len(cells) == 0 {
		return VerdictFail
	}
	for _, c := range cells {
		if !c.Passed() {
			return VerdictFail
		}
	}
	return VerdictPass
}

// GateRun is a complete gate evaluation for one revision, persisted for reproducibility.
type GateRun struct {
	ID string `json:"id"`

	WorkflowName string `json:"workflow_name"`
	WorkflowPath string `json:"workflow_path"`
	Revision     string `json:"revision,omitempty"`
	Executor     string `json:"executor"`

	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`

	Cells   []CellResult `json:"cells"`
	Verdict Verdict      `json:"verdict"`
}

// Summary counts cells by status.
type Summary struct {
	Total     int `json:"total"`
	Passed    int `json:"passed"`
	Failed    int `json:"failed"`
	Cancelled int `json:"cancelled"`
}

func (r GateRun) Summary() Summary {
	s := Summary{Total: len(r.Cells)}
	for _, c := range r.Cells {
		switch c.Status {
		case StatusSuccess:
			s.Passed++
		case StatusCancelled:
			s.Cancelled++
		default:
			s.Failed++
		}
	}
	return s
}

// FailedCells returns the cells that did not pass, in run order.
func (r GateRun) FailedCells() []CellResult {
	var out []CellResult
	for _, c := range r.Cells {
		if !c.Passed() {
			out = append(out, c)
		}
	}
	return out
}

// Duration is the wall time of the run, zero when timestamps are missing.
func (r GateRun) Duration() time.Duration {
	if r.StartedAt.IsZero() || r.EndedAt.IsZero() {
		return 0
	}
	return r.EndedAt.Sub(r.StartedAt)
}

// IsCancellation reports whether err stems from the run being aborted.
func IsCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// RunRef is an index entry for a stored run.
type RunRef struct {
	ID           string    `json:"id"`
	WorkflowName string    `json:"workflow_name"`
	Revision     string    `json:"revision,omitempty"`
	Verdict      Verdict   `json:"verdict"`
	StartedAt    time.Time `json:"started_at"`
	Cells        int       `json:"cells"`
	Failed       int       `json:"failed"`
}

// Ref builds the index entry for the run.
func (r GateRun) Ref() RunRef {
	s := r.Summary()
	return RunRef{
		ID:           r.ID,
		WorkflowName: r.WorkflowName,
		Revision:     r.Revision,
		Verdict:      r.Verdict,
		StartedAt:    r.StartedAt,
		Cells:        s.Total,
		Failed:       s.Failed + s.Cancelled,
	}
}
