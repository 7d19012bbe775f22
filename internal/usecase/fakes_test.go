package usecase

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aalvaropc/vgate/internal/domain"
	"github.com/aalvaropc/vgate/internal/ports"
)

var (
	_ ports.WorkflowLoader = fakeWorkflowLoader{}
	_ ports.SourceProvider = (*fakeSource)(nil)
	_ ports.Executor       = (*fakeExecutor)(nil)
	_ ports.ArtifactStore  = (*fakeStore)(nil)
	_ ports.RunObserver    = (*recordingObserver)(nil)
)

// gateWorkflow mirrors the default gate: a 4x3 test matrix and a lint matrix
// labelled nightly whose install is pinned to stable.
func gateWorkflow() domain.Workflow {
	all := []domain.Platform{domain.PlatformMacOS, domain.PlatformLinux, domain.PlatformWindows}
	return domain.Workflow{
		Name: "ci",
		MSRV: "1.63.0",
		Jobs: []domain.Job{
			{
				ID: "test",
				Matrix: domain.Matrix{
					Toolchains: []domain.Toolchain{"{{msrv}}", domain.ToolchainStable, domain.ToolchainBeta, domain.ToolchainNightly},
					Platforms:  all,
				},
				Steps: []domain.Step{
					{Name: "test", Check: domain.CheckTest, Features: domain.FeaturesDefault},
					{Name: "test-no-default", Check: domain.CheckTest, Features: domain.FeaturesNone},
				},
			},
			{
				ID: "lint",
				Matrix: domain.Matrix{
					Toolchains: []domain.Toolchain{domain.ToolchainNightly},
					Platforms:  all,
				},
				Install: domain.Install{Toolchain: domain.ToolchainStable, Components: []string{"clippy", "rustfmt"}},
				Steps: []domain.Step{
					{Name: "clippy", Check: domain.CheckLint, Features: domain.FeaturesDefault},
					{Name: "clippy-no-default", Check: domain.CheckLint, Features: domain.FeaturesNone},
					{Name: "fmt", Check: domain.CheckFormat},
				},
			},
		},
	}
}

type fakeWorkflowLoader struct {
	wf  domain.Workflow
	err error
}

func (f fakeWorkflowLoader) LoadWorkflow(_ string) (domain.Workflow, error) {
	return f.wf, f.err
}

func (f fakeWorkflowLoader) ListWorkflows(_ string) ([]domain.WorkflowRef, error) {
	return []domain.WorkflowRef{{Name: f.wf.Name, Path: "workflows/ci.yaml"}}, nil
}

type fakeSource struct {
	mu       sync.Mutex
	checkout []string
	released int
	failFor  string
}

func (s *fakeSource) Resolve(_ context.Context, rev string) (string, error) {
	if rev == "" {
		rev = "HEAD"
	}
	return "sha-" + rev, nil
}

func (s *fakeSource) Checkout(_ context.Context, _ string, cell domain.Cell, runID string) (string, func() error, error) {
	if s.failFor != "" && cell.ID() == s.failFor {
		return "", nil, errString("worktree add failed")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkout = append(s.checkout, cell.ID())
	release := func() error {
		s.mu.Lock()
		s.released++
		s.mu.Unlock()
		return nil
	}
	return "/tmp/" + runID + "/" + cell.ID(), release, nil
}

// execScript decides the outcome of a command for a cell.
type execScript func(ctx context.Context, cell domain.Cell, cmd domain.Command) (ports.ExecResult, error)

type fakeExecutor struct {
	platforms map[domain.Platform]bool // nil = everything
	script    execScript
	delay     time.Duration

	mu       sync.Mutex
	commands map[string][]domain.Command
	opened   int
	closed   int

	running    atomic.Int32
	maxRunning atomic.Int32
}

func newFakeExecutor(script execScript) *fakeExecutor {
	return &fakeExecutor{script: script, commands: map[string][]domain.Command{}}
}

func (e *fakeExecutor) Name() string { return "fake" }

func (e *fakeExecutor) Supports(p domain.Platform) bool {
	return e.platforms == nil || e.platforms[p]
}

func (e *fakeExecutor) Open(_ context.Context, cell domain.Cell, _ string) (ports.Session, error) {
	e.mu.Lock()
	e.opened++
	e.mu.Unlock()
	return &fakeSession{exec: e, cell: cell}, nil
}

func (e *fakeExecutor) calls(cellID string) []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []string
	for _, c := range e.commands[cellID] {
		out = append(out, c.String())
	}
	return out
}

func (e *fakeExecutor) total() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, cs := range e.commands {
		n += len(cs)
	}
	return n
}

type fakeSession struct {
	exec *fakeExecutor
	cell domain.Cell
}

func (s *fakeSession) Run(ctx context.Context, cmd domain.Command) (ports.ExecResult, error) {
	e := s.exec

	n := e.running.Add(1)
	defer e.running.Add(-1)
	for {
		peak := e.maxRunning.Load()
		if n <= peak || e.maxRunning.CompareAndSwap(peak, n) {
			break
		}
	}

	e.mu.Lock()
	e.commands[s.cell.ID()] = append(e.commands[s.cell.ID()], cmd)
	e.mu.Unlock()

	if e.delay > 0 {
		select {
		case <-time.After(e.delay):
		case <-ctx.Done():
			return ports.ExecResult{ExitCode: -1}, ctx.Err()
		}
	}

	if e.script == nil {
		return ports.ExecResult{Output: domain.Output{Text: "ok"}}, nil
	}
	return e.script(ctx, s.cell, cmd)
}

func (s *fakeSession) Close() error {
	s.exec.mu.Lock()
	s.exec.closed++
	s.exec.mu.Unlock()
	return nil
}

type fakeStore struct {
	mu    sync.Mutex
	saved bool
	last  domain.GateRun
	err   error
}

func (s *fakeStore) SaveRun(run domain.GateRun) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	s.saved = true
	s.last = run
	return "run-123", nil
}

func (s *fakeStore) ListRuns() ([]domain.RunRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.saved {
		return nil, nil
	}
	ref := s.last.Ref()
	ref.ID = "run-123"
	return []domain.RunRef{ref}, nil
}

func (s *fakeStore) LoadRun(id string) (domain.GateRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.saved || id != "run-123" {
		return domain.GateRun{}, &domain.OpError{Op: "runstore.load", Kind: domain.KindNotFound, Err: domain.ErrNotFound}
	}
	return s.last, nil
}

type recordingObserver struct {
	mu       sync.Mutex
	started  int
	steps    int
	finished []domain.CellResult
}

func (o *recordingObserver) CellStarted(domain.Cell) {
	o.mu.Lock()
	o.started++
	o.mu.Unlock()
}

func (o *recordingObserver) StepFinished(domain.Cell, domain.StepResult) {
	o.mu.Lock()
	o.steps++
	o.mu.Unlock()
}

func (o *recordingObserver) CellFinished(r domain.CellResult) {
	o.mu.Lock()
	o.finished = append(o.finished, r)
	o.mu.Unlock()
}

type errString string

func (e errString) Error() string { return string(e) }

func hasArg(cmd domain.Command, arg string) bool {
	for _, a := range cmd.Argv {
		if a == arg {
			return true
		}
	}
	return false
}

func isCargo(cmd domain.Command, sub string) bool {
	return len(cmd.Argv) >= 3 && cmd.Argv[0] == "cargo" && cmd.Argv[2] == sub
}
