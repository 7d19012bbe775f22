package usecase

import (
	"fmt"

	"github.com/aalvaropc/vgate/internal/domain"
	"github.com/aalvaropc/vgate/internal/ports"
)

// PlannedCell is a cell together with the commands it would run.
type PlannedCell struct {
	Cell     domain.Cell
	Commands []string
}

// Plan is the dry-run view of a gate.
type Plan struct {
	Workflow string
	Cells    []PlannedCell
}

type PlanGate struct {
	workflows ports.WorkflowLoader
	resolver  *domain.VarResolver
}

func NewPlanGate(wl ports.WorkflowLoader) *PlanGate {
	return &PlanGate{workflows: wl, resolver: domain.NewVarResolver()}
}

// Execute expands the matrix and derives each cell's command list without
// running anything. Commands that cannot be resolved are reported inline.
func (uc *PlanGate) Execute(path string, filter domain.MatrixFilter, overrides domain.Vars) (Plan, error) {
	wf, err := uc.workflows.LoadWorkflow(path)
	if err != nil {
		return Plan{}, err
	}

	vars := workflowVars(wf, overrides)
	wf, err = resolveMatrix(uc.resolver, wf, vars)
	if err != nil {
		return Plan{}, err
	}

	plan := Plan{Workflow: wf.Name}
	for _, cell := range domain.Expand(wf, filter) {
		job, _ := wf.Job(cell.Job)
		rt := uc.resolver.NewRuntime(vars, cell)

		pc := PlannedCell{Cell: cell}
		pc.Commands = append(pc.Commands, domain.ProvisionCommand(cell, job.Install).String())
		for _, step := range job.Steps {
			pc.Commands = append(pc.Commands, planCommand(rt, cell, step))
		}
		plan.Cells = append(plan.Cells, pc)
	}
	return plan, nil
}

func planCommand(rt *domain.RuntimeResolver, cell domain.Cell, step domain.Step) string {
	cmd, err := domain.StepCommand(cell, step)
	if err != nil {
		return fmt.Sprintf("<%s: %v>", step.Name, err)
	}
	resolved, err := rt.ResolveCommand(cmd)
	if err != nil {
		return fmt.Sprintf("<%s: %v>", step.Name, err)
	}
	return resolved.String()
}
