package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func cellWith(status Status) CellResult {
	return CellResult{Status: status}
}

func TestDecide(t *testing.T) {
	cases := []struct {
		name  string
		cells []CellResult
		want  Verdict
	}{
		{"empty fails", nil, VerdictFail},
		{"all pass", []CellResult{cellWith(StatusSuccess), cellWith(StatusSuccess)}, VerdictPass},
		{"one failed", []CellResult{cellWith(StatusSuccess), cellWith(StatusFailed)}, VerdictFail},
		{"one cancelled", []CellResult{cellWith(StatusSuccess), cellWith(StatusCancelled)}, VerdictFail},
		{"one never ran", []CellResult{cellWith(StatusSuccess), cellWith(StatusPending)}, VerdictFail},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Decide(tc.cells); got != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
		})
	}
}

func TestDecide_SingleFailureAmongFifteen(t *testing.T) {
	cells := make([]CellResult, 15)
	for i := range cells {
		cells[i] = cellWith(StatusSuccess)
	}
	cells[7].Status = StatusFailed

	if got := Decide(cells); got != VerdictFail {
		t.Fatalf("expected fail, got %s", got)
	}
}

func TestGateRun_Summary(t *testing.T) {
	r := GateRun{Cells: []CellResult{
		cellWith(StatusSuccess),
		cellWith(StatusSuccess),
		cellWith(StatusFailed),
		cellWith(StatusCancelled),
	}}

	s := r.Summary()
	if s.Total != 4 || s.Passed != 2 || s.Failed != 1 || s.Cancelled != 1 {
		t.Fatalf("unexpected summary %+v", s)
	}
	if got := len(r.FailedCells()); got != 2 {
		t.Fatalf("expected 2 non-passing cells, got %d", got)
	}
}

func TestCellResult_FailedStep(t *testing.T) {
	c := CellResult{
		Provision: StepResult{Name: "provision", Status: StatusSuccess},
		Steps: []StepResult{
			{Name: "test", Status: StatusSuccess},
			{Name: "test-no-default", Status: StatusFailed},
			{Name: "after", Status: StatusSkipped},
		},
	}
	s, ok := c.FailedStep()
	if !ok || s.Name != "test-no-default" {
		t.Fatalf("expected test-no-default, got %+v ok=%v", s, ok)
	}

	c.Provision.Status = StatusFailed
	s, ok = c.FailedStep()
	if !ok || s.Name != "provision" {
		t.Fatalf("provision failure should be reported first, got %+v", s)
	}

	if _, ok := (CellResult{}).FailedStep(); ok {
		t.Fatalf("empty cell has no failed step")
	}
}

func TestGateRun_Duration(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	r := GateRun{StartedAt: start, EndedAt: start.Add(90 * time.Second)}
	if r.Duration() != 90*time.Second {
		t.Fatalf("unexpected duration %s", r.Duration())
	}
	if (GateRun{StartedAt: start}).Duration() != 0 {
		t.Fatalf("missing end should give zero duration")
	}
}

func TestFailureFor(t *testing.T) {
	cases := map[CheckKind]FailureKind{
		CheckTest:   FailureTest,
		CheckLint:   FailureLint,
		CheckFormat: FailureFormat,
		CheckCustom: FailureCommand,
	}
	for in, want := range cases {
		if got := FailureFor(in); got != want {
			t.Fatalf("%s: expected %s, got %s", in, want, got)
		}
	}
}

func TestIsCancellation(t *testing.T) {
	if !IsCancellation(fmt.Errorf("run: %w", context.Canceled)) {
		t.Fatalf("wrapped Canceled should count")
	}
	if !IsCancellation(context.DeadlineExceeded) {
		t.Fatalf("DeadlineExceeded should count")
	}
	if IsCancellation(errors.New("boom")) {
		t.Fatalf("plain error is not a cancellation")
	}
}

func TestStatusDone(t *testing.T) {
	if StatusPending.Done() || StatusRunning.Done() {
		t.Fatalf("pending/running are not terminal")
	}
	for _, s := range []Status{StatusSuccess, StatusFailed, StatusSkipped, StatusCancelled} {
		if !s.Done() {
			t.Fatalf("%s should be terminal", s)
		}
	}
}
