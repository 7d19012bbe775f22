package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/aalvaropc/vgate/internal/domain"
	"github.com/aalvaropc/vgate/internal/ports"
)

// GateRequest selects what a gate run evaluates.
type GateRequest struct {
	WorkflowPath string

	// Revision is passed to the source provider; empty means HEAD.
	Revision string

	Filter domain.MatrixFilter

	// Parallel bounds concurrently running cells. Zero means runtime.NumCPU().
	Parallel int

	// StepTimeout is applied to every command. Zero disables it.
	StepTimeout time.Duration

	Vars domain.Vars
}

type RunGate struct {
	workflows ports.WorkflowLoader
	source    ports.SourceProvider
	executor  ports.Executor
	store     ports.ArtifactStore

	observer ports.RunObserver
	resolver *domain.VarResolver
	log      *slog.Logger
	now      func() time.Time
	newID    func() string
}

type RunGateOption func(*RunGate)

// WithObserver streams per-cell progress to o.
func WithObserver(o ports.RunObserver) RunGateOption {
	return func(uc *RunGate) {
		if o != nil {
			uc.observer = o
		}
	}
}

func WithLogger(l *slog.Logger) RunGateOption {
	return func(uc *RunGate) {
		if l != nil {
			uc.log = l
		}
	}
}

// WithClock overrides time.Now (tests).
func WithClock(now func() time.Time) RunGateOption {
	return func(uc *RunGate) {
		if now != nil {
			uc.now = now
		}
	}
}

// WithRunID overrides run id generation (tests).
func WithRunID(f func() string) RunGateOption {
	return func(uc *RunGate) {
		if f != nil {
			uc.newID = f
		}
	}
}

// NewRunGate wires the gate. store may be nil, in which case runs are not persisted.
func NewRunGate(wl ports.WorkflowLoader, src ports.SourceProvider, ex ports.Executor, store ports.ArtifactStore, opts ...RunGateOption) *RunGate {
	uc := &RunGate{
		workflows: wl,
		source:    src,
		executor:  ex,
		store:     store,
		observer:  nopObserver{},
		resolver:  domain.NewVarResolver(),
		log:       slog.New(slog.DiscardHandler),
		now:       time.Now,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// Execute evaluates every selected cell and returns the aggregate run.
//
// Cells run independently: a failing cell never stops or cancels the others.
// When ctx is cancelled, running commands are interrupted, cells that had not
// finished are reported as cancelled, and the partial run is returned together
// with ctx's error. Cancelled runs are not persisted.
func (uc *RunGate) Execute(ctx context.Context, req GateRequest) (domain.GateRun, string, error) {
	wf, err := uc.workflows.LoadWorkflow(req.WorkflowPath)
	if err != nil {
		return domain.GateRun{}, "", err
	}

	vars := workflowVars(wf, req.Vars)
	wf, err = resolveMatrix(uc.resolver, wf, vars)
	if err != nil {
		return domain.GateRun{}, "", err
	}

	cells := domain.Expand(wf, req.Filter)
	if len(cells) == 0 {
		return domain.GateRun{}, "", &domain.OpError{
			Op:   "gate.expand",
			Kind: domain.KindInvalidConfig,
			Path: req.WorkflowPath,
			Err:  fmt.Errorf("no matrix cells selected: %w", domain.ErrInvalidConfig),
		}
	}

	rev, err := uc.source.Resolve(ctx, req.Revision)
	if err != nil {
		return domain.GateRun{}, "", err
	}

	run := domain.GateRun{
		ID:           uc.newID(),
		WorkflowName: wf.Name,
		WorkflowPath: req.WorkflowPath,
		Revision:     rev,
		Executor:     uc.executor.Name(),
		StartedAt:    uc.now(),
		Cells:        make([]domain.CellResult, len(cells)),
	}

	parallel := req.Parallel
	if parallel <= 0 {
		parallel = runtime.NumCPU()
	}

	uc.log.Info("gate.started",
		"run_id", run.ID,
		"workflow", wf.Name,
		"revision", rev,
		"cells", len(cells),
		"parallel", parallel,
		"executor", run.Executor,
	)

	var g errgroup.Group
	g.SetLimit(parallel)
	for i, cell := range cells {
		job, _ := wf.Job(cell.Job)
		g.Go(func() error {
			run.Cells[i] = uc.runCell(ctx, cellRun{
				cell:    cell,
				job:     job,
				vars:    vars,
				rev:     rev,
				runID:   run.ID,
				timeout: req.StepTimeout,
			})
			return nil
		})
	}
	_ = g.Wait() // failures are captured per cell

	run.EndedAt = uc.now()
	run.Verdict = domain.Decide(run.Cells)

	sum := run.Summary()
	uc.log.Info("gate.finished",
		"run_id", run.ID,
		"verdict", run.Verdict,
		"passed", sum.Passed,
		"failed", sum.Failed,
		"cancelled", sum.Cancelled,
		"duration", run.Duration(),
	)

	if err := ctx.Err(); err != nil {
		return run, "", err
	}

	if uc.store == nil {
		return run, "", nil
	}

	id, err := uc.store.SaveRun(run)
	if err != nil {
		return run, "", err
	}
	return run, id, nil
}

type cellRun struct {
	cell    domain.Cell
	job     domain.Job
	vars    domain.Vars
	rev     string
	runID   string
	timeout time.Duration
}

func (uc *RunGate) runCell(ctx context.Context, cr cellRun) (res domain.CellResult) {
	cell := cr.cell
	log := uc.log.With("cell", cell.ID())

	res = domain.CellResult{
		Cell:      cell,
		Status:    domain.StatusRunning,
		Executor:  uc.executor.Name(),
		StartedAt: uc.now(),
		Provision: domain.StepResult{Name: provisionStep, Status: domain.StatusPending},
	}

	defer func() {
		res.EndedAt = uc.now()
		log.Info("cell.finished", "status", res.Status, "duration", res.EndedAt.Sub(res.StartedAt))
		uc.observer.CellFinished(res)
	}()

	uc.observer.CellStarted(cell)

	if err := ctx.Err(); err != nil {
		return cancelCell(res, cr.job, "cancelled before start")
	}

	if !uc.executor.Supports(cell.Platform) {
		msg := fmt.Sprintf("executor %q cannot host platform %s", uc.executor.Name(), cell.Platform)
		res.Provision = failedStep(res.Provision, domain.FailureUnsupported, msg)
		return failCell(res, cr.job, res.Provision.Failure)
	}

	dir, release, err := uc.source.Checkout(ctx, cr.rev, cell, cr.runID)
	if err != nil {
		if ctx.Err() != nil {
			return cancelCell(res, cr.job, "cancelled during checkout")
		}
		res.Provision = failedStep(res.Provision, domain.FailureProvision, "checkout: "+err.Error())
		return failCell(res, cr.job, res.Provision.Failure)
	}
	res.SourceDir = dir
	defer func() {
		if release == nil {
			return
		}
		if err := release(); err != nil {
			log.Warn("checkout.release_failed", "dir", dir, "err", err)
		}
	}()

	sess, err := uc.executor.Open(ctx, cell, dir)
	if err != nil {
		if ctx.Err() != nil {
			return cancelCell(res, cr.job, "cancelled while opening session")
		}
		res.Provision = failedStep(res.Provision, domain.FailureProvision, "open session: "+err.Error())
		return failCell(res, cr.job, res.Provision.Failure)
	}
	defer func() {
		if err := sess.Close(); err != nil {
			log.Warn("session.close_failed", "err", err)
		}
	}()

	rt := uc.resolver.NewRuntime(cr.vars, cell)

	res.Provision = uc.runStep(ctx, sess, rt, cell, res.Provision, domain.ProvisionCommand(cell, cr.job.Install), cr.timeout, domain.FailureProvision)
	switch res.Provision.Status {
	case domain.StatusCancelled:
		return cancelCell(res, cr.job, "cancelled during provisioning")
	case domain.StatusFailed:
		return failCell(res, cr.job, res.Provision.Failure)
	}

	for _, step := range cr.job.Steps {
		sr := domain.StepResult{
			Name:     step.Name,
			Check:    step.Check,
			Features: step.Features,
			Status:   domain.StatusPending,
		}

		cmd, err := domain.StepCommand(cell, step)
		if err != nil {
			sr = failedStep(sr, domain.FailureCommand, err.Error())
			res.Steps = append(res.Steps, sr)
			uc.observer.StepFinished(cell, sr)
			return failCell(res, cr.job, sr.Failure)
		}

		sr = uc.runStep(ctx, sess, rt, cell, sr, cmd, cr.timeout, domain.FailureFor(step.Check))
		res.Steps = append(res.Steps, sr)

		switch sr.Status {
		case domain.StatusCancelled:
			return cancelCell(res, cr.job, "cancelled during "+step.Name)
		case domain.StatusFailed:
			return failCell(res, cr.job, sr.Failure)
		}
	}

	res.Status = domain.StatusSuccess
	return res
}

func (uc *RunGate) runStep(
	ctx context.Context,
	sess ports.Session,
	rt *domain.RuntimeResolver,
	cell domain.Cell,
	sr domain.StepResult,
	cmd domain.Command,
	timeout time.Duration,
	kind domain.FailureKind,
) domain.StepResult {
	defer func() { uc.observer.StepFinished(cell, sr) }()

	resolved, err := rt.ResolveCommand(cmd)
	if err != nil {
		sr = failedStep(sr, domain.FailureCommand, err.Error())
		return sr
	}
	if timeout > 0 {
		resolved.Timeout = timeout
	}
	sr.Command = resolved.Argv

	if ctx.Err() != nil {
		sr.Status = domain.StatusCancelled
		return sr
	}

	uc.log.Debug("step.started", "cell", cell.ID(), "step", sr.Name, "cmd", resolved.String())

	out, err := sess.Run(ctx, resolved)
	sr.ExitCode = out.ExitCode
	sr.Output = out.Output
	sr.Duration = out.Duration

	switch {
	case err != nil && ctx.Err() != nil:
		sr.Status = domain.StatusCancelled
		sr.Failure = &domain.Failure{Kind: domain.FailureCancelled, Message: "interrupted"}
	case err != nil && errors.Is(err, context.DeadlineExceeded):
		sr = failedStep(sr, kind, fmt.Sprintf("%s timed out after %s", sr.Name, resolved.Timeout))
	case err != nil:
		// The command never produced an exit status, typically a missing binary.
		sr = failedStep(sr, domain.FailureProvision, err.Error())
	case out.ExitCode != 0:
		sr = failedStep(sr, kind, fmt.Sprintf("%s exited with code %d", sr.Name, out.ExitCode))
	default:
		sr.Status = domain.StatusSuccess
	}
	return sr
}

const provisionStep = "provision"

func failedStep(sr domain.StepResult, kind domain.FailureKind, msg string) domain.StepResult {
	sr.Status = domain.StatusFailed
	sr.Failure = &domain.Failure{Kind: kind, Message: msg}
	return sr
}

func failCell(res domain.CellResult, job domain.Job, f *domain.Failure) domain.CellResult {
	res.Status = domain.StatusFailed
	res.Failure = f
	res.Steps = skipRemaining(res.Steps, job)
	return res
}

func cancelCell(res domain.CellResult, job domain.Job, msg string) domain.CellResult {
	res.Status = domain.StatusCancelled
	res.Failure = &domain.Failure{Kind: domain.FailureCancelled, Message: msg}
	if !res.Provision.Status.Done() {
		res.Provision.Status = domain.StatusSkipped
	}
	res.Steps = skipRemaining(res.Steps, job)
	return res
}

// skipRemaining appends a skipped entry for every job step that has no result yet.
func skipRemaining(done []domain.StepResult, job domain.Job) []domain.StepResult {
	out := done
	for _, s := range job.Steps[len(done):] {
		out = append(out, domain.StepResult{
			Name:     s.Name,
			Check:    s.Check,
			Features: s.Features,
			Status:   domain.StatusSkipped,
		})
	}
	return out
}

type nopObserver struct{}

func (nopObserver) CellStarted(domain.Cell)                     {}
func (nopObserver) StepFinished(domain.Cell, domain.StepResult) {}
func (nopObserver) CellFinished(domain.CellResult)              {}
