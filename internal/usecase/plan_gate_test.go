package usecase

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/aalvaropc/vgate/internal/domain"
)

func TestPlanGate_DefaultGate(t *testing.T) {
	uc := NewPlanGate(fakeWorkflowLoader{wf: gateWorkflow()})

	plan, err := uc.Execute("ci.yaml", domain.MatrixFilter{}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if plan.Workflow != "ci" || len(plan.Cells) != 15 {
		t.Fatalf("unexpected plan %s with %d cells", plan.Workflow, len(plan.Cells))
	}

	first := plan.Cells[0]
	want := []string{
		"rustup toolchain install 1.63.0 --profile minimal --no-self-update",
		"cargo +1.63.0 test",
		"cargo +1.63.0 test --no-default-features",
	}
	if diff := cmp.Diff(want, first.Commands); diff != "" {
		t.Fatalf("commands mismatch (-want +got):\n%s", diff)
	}

	last := plan.Cells[len(plan.Cells)-1]
	if last.Cell.Declared != domain.ToolchainNightly || last.Cell.Toolchain != domain.ToolchainStable {
		t.Fatalf("expected pinned lint cell, got %+v", last.Cell)
	}
	if !strings.HasPrefix(last.Commands[1], "cargo +stable clippy") {
		t.Fatalf("lint must run on the installed toolchain, got %q", last.Commands[1])
	}
}

func TestPlanGate_ReportsUnresolvableStepsInline(t *testing.T) {
	wf := gateWorkflow()
	wf.Jobs[0].Steps = append(wf.Jobs[0].Steps, domain.Step{Name: "doc", Check: domain.CheckCustom, Run: []string{"cargo", "doc", "-p", "{{crate}}"}})
	uc := NewPlanGate(fakeWorkflowLoader{wf: wf})

	plan, err := uc.Execute("ci.yaml", domain.MatrixFilter{Jobs: []string{"test"}}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := plan.Cells[0].Commands[3]
	if !strings.HasPrefix(got, "<doc:") || !strings.Contains(got, "missing variable: crate") {
		t.Fatalf("unexpected inline error %q", got)
	}
}

func TestPlanGate_MatrixResolutionError(t *testing.T) {
	wf := gateWorkflow()
	wf.MSRV = ""
	uc := NewPlanGate(fakeWorkflowLoader{wf: wf})

	if _, err := uc.Execute("ci.yaml", domain.MatrixFilter{}, nil); !domain.IsKind(err, domain.KindMissingVar) {
		t.Fatalf("expected missing var, got %v", err)
	}
}
