package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aalvaropc/vgate/internal/report"
	"github.com/aalvaropc/vgate/internal/usecase/query"
)

func runsCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "runs",
		Short: "Inspect stored gate runs",
	}

	c.AddCommand(runsListCmd(), runsShowCmd())
	return c
}

func runsListCmd() *cobra.Command {
	var workspace string
	var format string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored runs, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := report.CheckFormat(format); err != nil {
				return err
			}

			ws, err := loadWorkspace(workspace)
			if err != nil {
				return err
			}

			refs, err := ws.store.ListRuns()
			if err != nil {
				return err
			}
			return report.WriteRuns(cmd.OutOrStdout(), refs, format)
		},
	}

	cmd.Flags().StringVarP(&workspace, "workspace", "w", "", "Workspace root (optional; autodetected if omitted)")
	cmd.Flags().StringVar(&format, "format", report.FormatPretty, "Output format: pretty|markdown|json")
	return cmd
}

func runsShowCmd() *cobra.Command {
	var workspace string
	var format string
	var expr string

	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show a stored run, or query it with a JSONPath expression",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := loadWorkspace(workspace)
			if err != nil {
				return err
			}

			run, err := ws.store.LoadRun(args[0])
			if err != nil {
				return err
			}

			if expr != "" {
				out, err := query.Select(run, expr)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), out)
				return nil
			}

			return report.WriteRun(cmd.OutOrStdout(), run, args[0], format)
		},
	}

	cmd.Flags().StringVarP(&workspace, "workspace", "w", "", "Workspace root (optional; autodetected if omitted)")
	cmd.Flags().StringVar(&format, "format", report.FormatPretty, "Output format: pretty|markdown|json")
	cmd.Flags().StringVarP(&expr, "query", "q", "", `JSONPath over the run, e.g. '$.cells[?(@.status=="failed")].cell.platform'`)
	return cmd
}
