package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/aalvaropc/vgate/internal/domain"
	"github.com/aalvaropc/vgate/internal/ports"
)

func newGate(ex *fakeExecutor, store *fakeStore, opts ...RunGateOption) (*RunGate, *fakeSource) {
	src := &fakeSource{}
	var st ports.ArtifactStore
	if store != nil {
		st = store
	}
	opts = append([]RunGateOption{WithRunID(func() string { return "run-uuid" })}, opts...)
	return NewRunGate(fakeWorkflowLoader{wf: gateWorkflow()}, src, ex, st, opts...), src
}

func cellByID(t *testing.T, run domain.GateRun, id string) domain.CellResult {
	t.Helper()
	for _, c := range run.Cells {
		if c.Cell.ID() == id {
			return c
		}
	}
	t.Fatalf("cell %s not in run", id)
	return domain.CellResult{}
}

func TestRunGate_AllCellsPass(t *testing.T) {
	ex := newFakeExecutor(nil)
	store := &fakeStore{}
	uc, src := newGate(ex, store)

	run, id, err := uc.Execute(context.Background(), GateRequest{WorkflowPath: "workflows/ci.yaml", Parallel: 4})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "run-123" {
		t.Fatalf("expected stored id, got %q", id)
	}
	if !store.saved {
		t.Fatalf("expected run to be saved")
	}

	if run.Verdict != domain.VerdictPass {
		t.Fatalf("expected pass, got %s", run.Verdict)
	}
	if run.ID != "run-uuid" || run.Revision != "sha-HEAD" || run.Executor != "fake" {
		t.Fatalf("unexpected run header %+v", run)
	}
	if len(run.Cells) != 15 {
		t.Fatalf("expected 15 cells, got %d", len(run.Cells))
	}
	if run.StartedAt.IsZero() || run.EndedAt.IsZero() {
		t.Fatalf("expected timestamps")
	}

	// Results keep expansion order regardless of completion order.
	if got := run.Cells[0].Cell.ID(); got != "test/1.63.0/macos" {
		t.Fatalf("unexpected first cell %s", got)
	}
	if got := run.Cells[14].Cell.ID(); got != "lint/nightly/windows" {
		t.Fatalf("unexpected last cell %s", got)
	}

	for _, c := range run.Cells {
		if c.Status != domain.StatusSuccess {
			t.Fatalf("%s: expected success, got %s", c.Cell.ID(), c.Status)
		}
		if c.Provision.Status != domain.StatusSuccess {
			t.Fatalf("%s: provision not successful", c.Cell.ID())
		}
	}

	if len(src.checkout) != 15 || src.released != 15 {
		t.Fatalf("expected 15 checkouts released, got %d/%d", len(src.checkout), src.released)
	}
	if ex.opened != 15 || ex.closed != 15 {
		t.Fatalf("expected 15 sessions opened and closed, got %d/%d", ex.opened, ex.closed)
	}
}

func TestRunGate_EachTestCellRunsBothFeatureSetsOnce(t *testing.T) {
	ex := newFakeExecutor(nil)
	uc, _ := newGate(ex, nil)

	run, _, err := uc.Execute(context.Background(), GateRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, c := range run.Cells {
		if c.Cell.Job != "test" {
			continue
		}
		tc := "+" + string(c.Cell.Toolchain)
		want := []string{
			"rustup toolchain install " + string(c.Cell.Toolchain) + " --profile minimal --no-self-update",
			"cargo " + tc + " test",
			"cargo " + tc + " test --no-default-features",
		}
		if diff := cmp.Diff(want, ex.calls(c.Cell.ID())); diff != "" {
			t.Fatalf("%s: commands mismatch (-want +got):\n%s", c.Cell.ID(), diff)
		}
	}
}

func TestRunGate_LintCellsInstallPinnedToolchain(t *testing.T) {
	ex := newFakeExecutor(nil)
	uc, _ := newGate(ex, nil)

	run, _, err := uc.Execute(context.Background(), GateRequest{Filter: domain.MatrixFilter{Jobs: []string{"lint"}}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(run.Cells) != 3 {
		t.Fatalf("expected 3 lint cells, got %d", len(run.Cells))
	}

	for _, c := range run.Cells {
		if c.Cell.Declared != domain.ToolchainNightly || c.Cell.Toolchain != domain.ToolchainStable {
			t.Fatalf("%s: expected nightly label installed as stable, got %+v", c.Cell.ID(), c.Cell)
		}
		calls := ex.calls(c.Cell.ID())
		want := []string{
			"rustup toolchain install stable --profile minimal --no-self-update --component clippy --component rustfmt",
			"cargo +stable clippy -- -D warnings",
			"cargo +stable clippy --no-default-features -- -D warnings",
			"cargo +stable fmt --all -- --check",
		}
		if diff := cmp.Diff(want, calls); diff != "" {
			t.Fatalf("%s: commands mismatch (-want +got):\n%s", c.Cell.ID(), diff)
		}
	}
}

func TestRunGate_ReducedFeatureFailureFailsOnlyThatCell(t *testing.T) {
	ex := newFakeExecutor(func(_ context.Context, cell domain.Cell, cmd domain.Command) (ports.ExecResult, error) {
		if cell.ID() == "test/beta/windows" && isCargo(cmd, "test") && hasArg(cmd, "--no-default-features") {
			return ports.ExecResult{ExitCode: 101, Output: domain.Output{Text: "error[E0433]: failed to resolve: use of undeclared crate `std`"}}, nil
		}
		return ports.ExecResult{}, nil
	})
	uc, _ := newGate(ex, nil)

	run, _, err := uc.Execute(context.Background(), GateRequest{Parallel: 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if run.Verdict != domain.VerdictFail {
		t.Fatalf("expected fail, got %s", run.Verdict)
	}

	sum := run.Summary()
	if sum.Failed != 1 || sum.Passed != 14 {
		t.Fatalf("expected 14 passed / 1 failed, got %+v", sum)
	}

	bad := cellByID(t, run, "test/beta/windows")
	step, ok := bad.FailedStep()
	if !ok || step.Name != "test-no-default" {
		t.Fatalf("expected test-no-default to fail, got %+v", step)
	}
	if step.ExitCode != 101 || step.Failure == nil || step.Failure.Kind != domain.FailureTest {
		t.Fatalf("unexpected failed step %+v", step)
	}
	if !strings.Contains(step.Output.Text, "E0433") {
		t.Fatalf("expected captured output, got %q", step.Output.Text)
	}
	if bad.Failure == nil || bad.Failure.Kind != domain.FailureTest {
		t.Fatalf("expected cell failure kind test, got %+v", bad.Failure)
	}
}

func TestRunGate_FullFeatureFailureAttributedToOneCell(t *testing.T) {
	ex := newFakeExecutor(func(_ context.Context, cell domain.Cell, cmd domain.Command) (ports.ExecResult, error) {
		if cell.ID() == "test/stable/linux" && isCargo(cmd, "test") && !hasArg(cmd, "--no-default-features") {
			return ports.ExecResult{ExitCode: 101, Output: domain.Output{Text: "test result: FAILED. 11 passed; 1 failed"}}, nil
		}
		return ports.ExecResult{}, nil
	})
	uc, _ := newGate(ex, nil)

	run, _, err := uc.Execute(context.Background(), GateRequest{Parallel: 4})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if run.Verdict != domain.VerdictFail {
		t.Fatalf("expected fail, got %s", run.Verdict)
	}

	sum := run.Summary()
	if sum.Failed != 1 || sum.Passed != 14 {
		t.Fatalf("expected 14 passed / 1 failed, got %+v", sum)
	}

	failed := run.FailedCells()
	if len(failed) != 1 || failed[0].Cell.ID() != "test/stable/linux" {
		t.Fatalf("expected only test/stable/linux to fail, got %v", failed)
	}

	bad := failed[0]
	step, ok := bad.FailedStep()
	if !ok || step.Name != "test" {
		t.Fatalf("expected the full-feature test to fail, got %+v", step)
	}
	if step.Failure == nil || step.Failure.Kind != domain.FailureTest {
		t.Fatalf("expected failure kind test, got %+v", step.Failure)
	}

	var reduced *domain.StepResult
	for i := range bad.Steps {
		if bad.Steps[i].Name == "test-no-default" {
			reduced = &bad.Steps[i]
		}
	}
	if reduced == nil || reduced.Status != domain.StatusSkipped {
		t.Fatalf("expected test-no-default to be skipped, got %+v", reduced)
	}
	for _, c := range ex.calls("test/stable/linux") {
		if strings.Contains(c, "--no-default-features") {
			t.Fatalf("skipped step must not run, got %q", c)
		}
	}

	for _, c := range run.Cells {
		if c.Cell.Job == "lint" && !c.Passed() {
			t.Fatalf("lint cell %s should pass, got %s", c.Cell.ID(), c.Status)
		}
	}
}

func TestRunGate_LintWarningFailsEveryLintCell(t *testing.T) {
	ex := newFakeExecutor(func(_ context.Context, _ domain.Cell, cmd domain.Command) (ports.ExecResult, error) {
		if isCargo(cmd, "clippy") && !hasArg(cmd, "--no-default-features") {
			return ports.ExecResult{ExitCode: 101, Output: domain.Output{Text: "warning: unused variable: `x`"}}, nil
		}
		return ports.ExecResult{}, nil
	})
	uc, _ := newGate(ex, nil)

	run, _, err := uc.Execute(context.Background(), GateRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if run.Verdict != domain.VerdictFail {
		t.Fatalf("expected fail")
	}

	failed := run.FailedCells()
	if len(failed) != 3 {
		t.Fatalf("expected 3 failed cells, got %d", len(failed))
	}
	for _, c := range failed {
		if c.Cell.Job != "lint" || c.Failure.Kind != domain.FailureLint {
			t.Fatalf("unexpected failure %s %+v", c.Cell.ID(), c.Failure)
		}
		if len(c.Steps) != 3 {
			t.Fatalf("expected every step reported, got %d", len(c.Steps))
		}
		for _, s := range c.Steps[1:] {
			if s.Status != domain.StatusSkipped {
				t.Fatalf("%s: expected %s skipped, got %s", c.Cell.ID(), s.Name, s.Status)
			}
		}
		if got := len(ex.calls(c.Cell.ID())); got != 2 {
			t.Fatalf("expected provision + clippy only, got %d commands", got)
		}
	}
}

func TestRunGate_ProvisionFailureSkipsSteps(t *testing.T) {
	ex := newFakeExecutor(func(_ context.Context, cell domain.Cell, cmd domain.Command) (ports.ExecResult, error) {
		if cmd.Argv[0] == "rustup" && cell.Toolchain == "1.63.0" {
			return ports.ExecResult{ExitCode: 1, Output: domain.Output{Text: "error: toolchain '1.63.0' is not installable"}}, nil
		}
		return ports.ExecResult{}, nil
	})
	uc, _ := newGate(ex, nil)

	run, _, err := uc.Execute(context.Background(), GateRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, c := range run.Cells {
		if c.Cell.Toolchain != "1.63.0" {
			if !c.Passed() {
				t.Fatalf("%s should pass", c.Cell.ID())
			}
			continue
		}
		if c.Failure == nil || c.Failure.Kind != domain.FailureProvision {
			t.Fatalf("%s: expected provision failure, got %+v", c.Cell.ID(), c.Failure)
		}
		for _, s := range c.Steps {
			if s.Status != domain.StatusSkipped {
				t.Fatalf("%s: step %s should be skipped", c.Cell.ID(), s.Name)
			}
		}
		if got := len(ex.calls(c.Cell.ID())); got != 1 {
			t.Fatalf("%s: expected only provisioning to run, got %d", c.Cell.ID(), got)
		}
	}
}

func TestRunGate_UnsupportedPlatformFailsCell(t *testing.T) {
	ex := newFakeExecutor(nil)
	ex.platforms = map[domain.Platform]bool{domain.PlatformLinux: true}
	uc, src := newGate(ex, nil)

	run, _, err := uc.Execute(context.Background(), GateRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if run.Verdict != domain.VerdictFail {
		t.Fatalf("cells that cannot run must fail the gate")
	}

	sum := run.Summary()
	if sum.Passed != 5 || sum.Failed != 10 {
		t.Fatalf("unexpected summary %+v", sum)
	}
	for _, c := range run.FailedCells() {
		if c.Failure.Kind != domain.FailureUnsupported {
			t.Fatalf("%s: expected unsupported, got %s", c.Cell.ID(), c.Failure.Kind)
		}
		if c.Status != domain.StatusFailed {
			t.Fatalf("%s: unsupported must be failed, not %s", c.Cell.ID(), c.Status)
		}
	}
	if len(src.checkout) != 5 {
		t.Fatalf("expected checkouts only for linux cells, got %d", len(src.checkout))
	}
}

func TestRunGate_CheckoutFailureIsProvisioning(t *testing.T) {
	ex := newFakeExecutor(nil)
	src := &fakeSource{failFor: "test/stable/linux"}
	uc := NewRunGate(fakeWorkflowLoader{wf: gateWorkflow()}, src, ex, nil)

	run, _, err := uc.Execute(context.Background(), GateRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	c := cellByID(t, run, "test/stable/linux")
	if c.Failure == nil || c.Failure.Kind != domain.FailureProvision {
		t.Fatalf("expected provision failure, got %+v", c.Failure)
	}
	if !strings.Contains(c.Failure.Message, "worktree add failed") {
		t.Fatalf("unexpected message %q", c.Failure.Message)
	}
	if len(run.FailedCells()) != 1 {
		t.Fatalf("other cells must be unaffected")
	}
}

func TestRunGate_MissingBinaryIsProvisioning(t *testing.T) {
	ex := newFakeExecutor(func(_ context.Context, _ domain.Cell, cmd domain.Command) (ports.ExecResult, error) {
		if cmd.Argv[0] == "cargo" {
			return ports.ExecResult{ExitCode: -1}, errors.New(`exec: "cargo": executable file not found in $PATH`)
		}
		return ports.ExecResult{}, nil
	})
	uc, _ := newGate(ex, nil)

	run, _, err := uc.Execute(context.Background(), GateRequest{Filter: domain.MatrixFilter{Jobs: []string{"test"}, Platforms: []domain.Platform{domain.PlatformLinux}}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, c := range run.Cells {
		if c.Failure == nil || c.Failure.Kind != domain.FailureProvision {
			t.Fatalf("%s: expected provision failure, got %+v", c.Cell.ID(), c.Failure)
		}
	}
}

func TestRunGate_StepTimeout(t *testing.T) {
	ex := newFakeExecutor(func(_ context.Context, _ domain.Cell, cmd domain.Command) (ports.ExecResult, error) {
		if cmd.Timeout != 5*time.Second {
			return ports.ExecResult{}, errors.New("timeout not propagated")
		}
		if isCargo(cmd, "test") {
			return ports.ExecResult{ExitCode: -1}, context.DeadlineExceeded
		}
		return ports.ExecResult{}, nil
	})
	uc, _ := newGate(ex, nil)

	run, _, err := uc.Execute(context.Background(), GateRequest{
		Filter:      domain.MatrixFilter{Jobs: []string{"test"}, Toolchains: []domain.Toolchain{domain.ToolchainStable}, Platforms: []domain.Platform{domain.PlatformLinux}},
		StepTimeout: 5 * time.Second,
	})
	if err != nil {
		t.Fatalf("a step timeout is a cell failure, not a run error: %v", err)
	}
	c := run.Cells[0]
	if c.Failure == nil || c.Failure.Kind != domain.FailureTest || !strings.Contains(c.Failure.Message, "timed out") {
		t.Fatalf("unexpected failure %+v", c.Failure)
	}
}

func TestRunGate_BoundedParallelism(t *testing.T) {
	ex := newFakeExecutor(nil)
	ex.delay = 5 * time.Millisecond
	uc, _ := newGate(ex, nil)

	if _, _, err := uc.Execute(context.Background(), GateRequest{Parallel: 2}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := ex.maxRunning.Load(); got > 2 {
		t.Fatalf("expected at most 2 concurrent commands, saw %d", got)
	}
}

func TestRunGate_VarsOverrideMSRV(t *testing.T) {
	ex := newFakeExecutor(nil)
	uc, _ := newGate(ex, nil)

	run, _, err := uc.Execute(context.Background(), GateRequest{
		Filter: domain.MatrixFilter{Jobs: []string{"test"}, Platforms: []domain.Platform{domain.PlatformLinux}},
		Vars:   domain.Vars{"msrv": "1.70.0"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := run.Cells[0].Cell.Toolchain; got != "1.70.0" {
		t.Fatalf("expected msrv override, got %s", got)
	}
}

func TestRunGate_ObserverSeesEveryCell(t *testing.T) {
	obs := &recordingObserver{}
	ex := newFakeExecutor(nil)
	uc, _ := newGate(ex, nil, WithObserver(obs))

	if _, _, err := uc.Execute(context.Background(), GateRequest{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if obs.started != 15 || len(obs.finished) != 15 {
		t.Fatalf("expected 15 started/finished, got %d/%d", obs.started, len(obs.finished))
	}
	// 12 test cells x (provision + 2) + 3 lint cells x (provision + 3)
	if obs.steps != 48 {
		t.Fatalf("expected 48 step events, got %d", obs.steps)
	}
}

func TestRunGate_NoCellsSelected(t *testing.T) {
	ex := newFakeExecutor(nil)
	uc, _ := newGate(ex, nil)

	_, _, err := uc.Execute(context.Background(), GateRequest{Filter: domain.MatrixFilter{Jobs: []string{"bench"}}})
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.KindInvalidConfig) {
		t.Fatalf("expected invalid config, got %v", err)
	}
	if ex.total() != 0 {
		t.Fatalf("nothing should run")
	}
}

func TestRunGate_LoadErrorIsReturned(t *testing.T) {
	loadErr := &domain.OpError{Op: "workflow.load", Kind: domain.KindNotFound, Err: domain.ErrNotFound}
	uc := NewRunGate(fakeWorkflowLoader{err: loadErr}, &fakeSource{}, newFakeExecutor(nil), nil)

	_, id, err := uc.Execute(context.Background(), GateRequest{WorkflowPath: "missing.yaml"})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if id != "" {
		t.Fatalf("expected no id")
	}
}

func TestRunGate_StoreErrorReturnsRun(t *testing.T) {
	store := &fakeStore{err: errors.New("disk full")}
	uc, _ := newGate(newFakeExecutor(nil), store)

	run, id, err := uc.Execute(context.Background(), GateRequest{})
	if err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Fatalf("expected store error, got %v", err)
	}
	if id != "" || len(run.Cells) != 15 {
		t.Fatalf("expected evaluated run without id")
	}
}

func TestRunGate_InvalidCustomStepFailsCell(t *testing.T) {
	wf := gateWorkflow()
	wf.Jobs[1].Steps = append(wf.Jobs[1].Steps, domain.Step{Name: "docs", Check: domain.CheckCustom})
	ex := newFakeExecutor(nil)
	uc := NewRunGate(fakeWorkflowLoader{wf: wf}, &fakeSource{}, ex, nil)

	run, _, err := uc.Execute(context.Background(), GateRequest{Filter: domain.MatrixFilter{Jobs: []string{"lint"}}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, c := range run.Cells {
		if c.Failure == nil || c.Failure.Kind != domain.FailureCommand {
			t.Fatalf("%s: expected command failure, got %+v", c.Cell.ID(), c.Failure)
		}
	}
}

func TestRunGate_UnresolvedRunVariable(t *testing.T) {
	wf := gateWorkflow()
	wf.Jobs[0].Steps = []domain.Step{{Name: "doc", Check: domain.CheckCustom, Run: []string{"cargo", "+{{toolchain}}", "doc", "-p", "{{crate}}"}}}
	ex := newFakeExecutor(nil)
	uc := NewRunGate(fakeWorkflowLoader{wf: wf}, &fakeSource{}, ex, nil)

	run, _, err := uc.Execute(context.Background(), GateRequest{Filter: domain.MatrixFilter{Jobs: []string{"test"}, Platforms: []domain.Platform{domain.PlatformLinux}}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	c := run.Cells[0]
	if c.Failure == nil || !strings.Contains(c.Failure.Message, "missing variable: crate") {
		t.Fatalf("unexpected failure %+v", c.Failure)
	}

	run, _, err = uc.Execute(context.Background(), GateRequest{
		Filter: domain.MatrixFilter{Jobs: []string{"test"}, Platforms: []domain.Platform{domain.PlatformLinux}},
		Vars:   domain.Vars{"crate": "mirror"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if run.Verdict != domain.VerdictPass {
		t.Fatalf("expected pass once crate is set")
	}
	if got := ex.calls(run.Cells[0].Cell.ID()); got[len(got)-1] != "cargo +1.63.0 doc -p mirror" {
		t.Fatalf("unexpected resolved argv %v", got)
	}
}
