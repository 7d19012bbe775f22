package cli

import (
	"github.com/spf13/cobra"

	"github.com/aalvaropc/vgate/internal/report"
	"github.com/aalvaropc/vgate/internal/usecase"
)

func matrixCmd() *cobra.Command {
	var workspace string
	var opts runOptions
	var format string

	c := &cobra.Command{
		Use:   "matrix",
		Short: "Show the expanded matrix and the commands each cell would run",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := report.CheckFormat(format); err != nil {
				return err
			}

			ws, err := loadWorkspace(workspace)
			if err != nil {
				return err
			}

			req, err := opts.request(ws)
			if err != nil {
				return err
			}

			plan, err := usecase.NewPlanGate(ws.workflows).Execute(req.WorkflowPath, req.Filter, req.Vars)
			if err != nil {
				return err
			}
			return report.WritePlan(cmd.OutOrStdout(), plan, format)
		},
	}

	c.Flags().StringVarP(&workspace, "workspace", "w", "", "Workspace root (optional; autodetected if omitted)")
	c.Flags().StringVarP(&opts.workflow, "workflow", "f", "", "Workflow name or path (defaults to the workspace default)")
	c.Flags().StringArrayVar(&opts.jobs, "job", nil, "Only show cells of this job (repeatable)")
	c.Flags().StringArrayVar(&opts.toolchains, "toolchain", nil, "Only show cells with this toolchain (repeatable)")
	c.Flags().StringArrayVar(&opts.platforms, "platform", nil, "Only show cells on this platform (repeatable)")
	c.Flags().StringArrayVar(&opts.vars, "var", nil, "Override a workflow variable, KEY=VALUE (repeatable)")
	c.Flags().StringVar(&format, "format", report.FormatPretty, "Output format: pretty|markdown|json")
	return c
}
