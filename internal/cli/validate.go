package cli

import (
	"github.com/spf13/cobra"

	"github.com/aalvaropc/vgate/internal/report"
	"github.com/aalvaropc/vgate/internal/usecase"
)

func validateCmd() *cobra.Command {
	var workspace string
	var workflow string
	var vars []string

	c := &cobra.Command{
		Use:   "validate",
		Short: "Validate a workflow: matrix, commands and variables (runs nothing)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ws, err := loadWorkspace(workspace)
			if err != nil {
				return err
			}

			path, err := resolveWorkflowPath(ws, workflow)
			if err != nil {
				return err
			}

			overrides, err := parseVars(vars)
			if err != nil {
				return err
			}

			uc := usecase.NewValidateWorkflow(ws.workflows)
			rep, err := uc.Execute(cmd.Context(), path, overrides)
			if rep.Workflow != "" || len(rep.Findings) > 0 {
				report.WriteValidation(cmd.OutOrStdout(), rep)
			}
			return err
		},
	}

	c.Flags().StringVarP(&workspace, "workspace", "w", "", "Workspace root (optional; autodetected if omitted)")
	c.Flags().StringVarP(&workflow, "workflow", "f", "", "Workflow name or path (defaults to the workspace default)")
	c.Flags().StringArrayVar(&vars, "var", nil, "Override a workflow variable, KEY=VALUE (repeatable)")
	return c
}
