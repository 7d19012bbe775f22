package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/aalvaropc/vgate/internal/domain"
	"github.com/aalvaropc/vgate/internal/infra/fsworkspace"
	"github.com/aalvaropc/vgate/internal/infra/logger"
	"github.com/aalvaropc/vgate/internal/infra/workspacefinder"
	"github.com/aalvaropc/vgate/internal/ports"
	"github.com/aalvaropc/vgate/internal/report"
	"github.com/aalvaropc/vgate/internal/ui/tui"
	"github.com/aalvaropc/vgate/internal/usecase"
)

// runOptions holds the flags shared by run, watch and the dashboard.
type runOptions struct {
	workflow    string
	revision    string
	executor    string
	jobs        []string
	toolchains  []string
	platforms   []string
	vars        []string
	parallel    int
	stepTimeout time.Duration
	noSave      bool

	// allPlatforms keeps every platform for triggers that would otherwise
	// narrow to what this host can run.
	allPlatforms bool
}

func (o runOptions) request(ws *workspaceCtx) (usecase.GateRequest, error) {
	wfPath, err := resolveWorkflowPath(ws, o.workflow)
	if err != nil {
		return usecase.GateRequest{}, err
	}
	filter, err := parseFilter(o.jobs, o.toolchains, o.platforms)
	if err != nil {
		return usecase.GateRequest{}, err
	}
	vars, err := parseVars(o.vars)
	if err != nil {
		return usecase.GateRequest{}, err
	}

	req := usecase.GateRequest{
		WorkflowPath: wfPath,
		Revision:     o.revision,
		Filter:       filter,
		Parallel:     ws.cfg.Defaults.Parallel,
		StepTimeout:  ws.cfg.Defaults.StepTimeout,
		Vars:         vars,
	}
	if o.parallel > 0 {
		req.Parallel = o.parallel
	}
	if o.stepTimeout > 0 {
		req.StepTimeout = o.stepTimeout
	}
	return req, nil
}

func (o runOptions) gate(observer ports.RunObserver, progress io.Writer) gateOptions {
	return gateOptions{
		revision: o.revision,
		executor: o.executor,
		observer: observer,
		noSave:   o.noSave,
		progress: progress,
	}
}

func runCmd() *cobra.Command {
	var workspace string
	var opts runOptions
	var format string
	var useTUI bool

	c := &cobra.Command{
		Use:   "run",
		Short: "Run the verification gate: every matrix cell, aggregated into one verdict",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := report.CheckFormat(format); err != nil {
				return err
			}

			ws, err := loadWorkspace(workspace)
			if err != nil {
				return err
			}
			defer setupLogging(cmd, ws.root)()

			req, err := opts.request(ws)
			if err != nil {
				return err
			}

			if useTUI {
				return tui.Run(tui.Deps{
					WorkspaceLocator:     workspacefinder.NewFinder(),
					WorkspaceInitializer: fsworkspace.NewInitializer(),
					NewGate:              tuiGate(opts),
					ListRuns:             listRuns,
					Logger:               logger.L(),
					Root:                 ws.root,
					AutoRun:              true,
				})
			}

			var observer ports.RunObserver
			if format == report.FormatPretty || format == "" {
				observer = newProgressPrinter(cmd.ErrOrStderr())
			}

			var progress io.Writer
			if debug, _ := cmd.Flags().GetBool("debug"); debug {
				progress = cmd.ErrOrStderr()
			}

			uc, closeEx, err := newGate(cmd.Context(), ws, opts.gate(observer, progress))
			if err != nil {
				return err
			}
			defer func() { _ = closeEx() }()

			run, runID, err := uc.Execute(cmd.Context(), req)
			if err != nil {
				// Partial runs (cancelled, store failure) are still worth showing.
				if len(run.Cells) > 0 {
					_ = report.WriteRun(cmd.OutOrStdout(), run, runID, format)
				}
				return err
			}

			if err := report.WriteRun(cmd.OutOrStdout(), run, runID, format); err != nil {
				return err
			}
			return gateError(run)
		},
	}

	c.Flags().StringVarP(&workspace, "workspace", "w", "", "Workspace root (optional; autodetected if omitted)")
	addRunFlags(c, &opts)
	c.Flags().StringVar(&format, "format", report.FormatPretty, "Output format: pretty|markdown|json")
	c.Flags().BoolVar(&useTUI, "tui", false, "Show a live dashboard instead of printing a report")

	return c
}

func addRunFlags(c *cobra.Command, o *runOptions) {
	addGateFlags(c, o)
	c.Flags().StringVar(&o.revision, "revision", "", "Commit, branch or tag to evaluate in private worktrees (default: working tree in place)")
}

// addGateFlags registers everything run accepts except the revision.
func addGateFlags(c *cobra.Command, o *runOptions) {
	c.Flags().StringVarP(&o.workflow, "workflow", "f", "", "Workflow name or path (defaults to the workspace default)")
	c.Flags().StringVar(&o.executor, "executor", "", "Executor: local|container (defaults to vgate.yaml)")
	addFilterFlags(c, o)
	c.Flags().StringArrayVar(&o.vars, "var", nil, "Override a workflow variable, KEY=VALUE (repeatable)")
	c.Flags().IntVar(&o.parallel, "parallel", 0, "Maximum cells running at once (defaults to vgate.yaml)")
	c.Flags().DurationVar(&o.stepTimeout, "step-timeout", 0, "Per-command timeout, e.g. 30m (defaults to vgate.yaml; 0 = none)")
	c.Flags().BoolVar(&o.noSave, "no-save", false, "Do not save run artifact under runs/")
}

func addFilterFlags(c *cobra.Command, o *runOptions) {
	c.Flags().StringArrayVar(&o.jobs, "job", nil, "Only run cells of this job (repeatable)")
	c.Flags().StringArrayVar(&o.toolchains, "toolchain", nil, "Only run cells with this toolchain (repeatable)")
	c.Flags().StringArrayVar(&o.platforms, "platform", nil, "Only run cells on this platform (repeatable)")
}

// addTriggerFlags is for hooks and watchers, which default to the platforms
// the executor can host here.
func addTriggerFlags(c *cobra.Command, o *runOptions) {
	c.Flags().BoolVar(&o.allPlatforms, "all-platforms", false, "Keep cells for platforms this host cannot run (they fail the gate)")
}

// narrowToHost restricts an unfiltered trigger to the platforms the executor
// supports on this machine and reports the choice on w.
func (o *runOptions) narrowToHost(ws *workspaceCtx, w io.Writer) error {
	if len(o.platforms) > 0 || o.allPlatforms {
		return nil
	}
	hosted, err := hostPlatforms(ws, o.executor)
	if err != nil {
		return err
	}
	if len(hosted) == 0 {
		return nil
	}
	o.platforms = hosted
	fmt.Fprintf(w, "Limiting cells to platform(s) %s (use --platform or --all-platforms to change)\n", strings.Join(hosted, ", "))
	return nil
}

// gateError turns a failing verdict into the command's error so the process
// exits non-zero.
func gateError(run domain.GateRun) error {
	if run.Verdict == domain.VerdictPass {
		return nil
	}
	s := run.Summary()
	if s.Total == 0 {
		return fmt.Errorf("gate failed: no cells ran")
	}
	return fmt.Errorf("gate failed: %d of %d cells did not pass", s.Failed+s.Cancelled, s.Total)
}

// tuiGate prepares gate runs for the dashboard of whichever workspace it opens.
func tuiGate(opts runOptions) func(root string) (tui.GateFunc, error) {
	return func(root string) (tui.GateFunc, error) {
		ws, err := loadWorkspaceAt(root)
		if err != nil {
			return nil, err
		}
		req, err := opts.request(ws)
		if err != nil {
			return nil, err
		}

		return func(ctx context.Context, obs ports.RunObserver) (domain.GateRun, string, error) {
			uc, closeEx, err := newGate(ctx, ws, opts.gate(obs, nil))
			if err != nil {
				return domain.GateRun{}, "", err
			}
			defer func() { _ = closeEx() }()
			return uc.Execute(ctx, req)
		}, nil
	}
}

func listRuns(root string) ([]domain.RunRef, error) {
	ws, err := loadWorkspaceAt(root)
	if err != nil {
		return nil, err
	}
	return ws.store.ListRuns()
}

