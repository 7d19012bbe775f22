package usecase

import (
	"fmt"

	"github.com/aalvaropc/vgate/internal/domain"
)

// workflowVars merges variable sources for a run.
// msrv < workflow vars < caller overrides.
func workflowVars(wf domain.Workflow, overrides domain.Vars) domain.Vars {
	out := domain.Vars{}
	if wf.MSRV != "" {
		out["msrv"] = string(wf.MSRV)
	}
	for k, v := range wf.Vars {
		out[k] = v
	}
	for k, v := range overrides {
		out[k] = v
	}
	return out
}

// resolveMatrix substitutes {{vars}} in matrix labels and install pins so that
// expansion works on concrete toolchains. The input workflow is not modified.
func resolveMatrix(vr *domain.VarResolver, wf domain.Workflow, vars domain.Vars) (domain.Workflow, error) {
	out := wf
	out.Jobs = make([]domain.Job, len(wf.Jobs))

	for i, j := range wf.Jobs {
		tcs, err := vr.ResolveToolchains(vars, j.Matrix.Toolchains)
		if err != nil {
			return domain.Workflow{}, fmt.Errorf("job %q: %w", j.ID, err)
		}
		j.Matrix.Toolchains = tcs

		if j.Install.Toolchain != "" {
			pin, err := vr.ResolveToolchains(vars, []domain.Toolchain{j.Install.Toolchain})
			if err != nil {
				return domain.Workflow{}, fmt.Errorf("job %q: install: %w", j.ID, err)
			}
			j.Install.Toolchain = pin[0]
		}
		out.Jobs[i] = j
	}
	return out, nil
}
