package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aalvaropc/vgate/internal/domain"
	"github.com/aalvaropc/vgate/internal/infra/gitcheckout"
	"github.com/aalvaropc/vgate/internal/infra/githook"
)

func hookCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "hook",
		Short: "Gate pushes with a git pre-push hook",
	}

	c.AddCommand(hookInstallCmd(), hookUninstallCmd())
	return c
}

func hookInstallCmd() *cobra.Command {
	var workspace string
	var opts runOptions
	var force bool

	cmd := &cobra.Command{
		Use:   "install",
		Short: "Install a pre-push hook that blocks pushes failing the gate",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ws, err := loadWorkspace(workspace)
			if err != nil {
				return err
			}

			if err := opts.narrowToHost(ws, cmd.OutOrStdout()); err != nil {
				return err
			}
			filter, err := parseFilter(opts.jobs, opts.toolchains, opts.platforms)
			if err != nil {
				return err
			}

			hooksDir, err := gitcheckout.HooksDir(cmd.Context(), ws.root)
			if err != nil {
				return err
			}

			bin, err := os.Executable()
			if err != nil {
				bin = "vgate"
			}

			workflow := opts.workflow
			if workflow == "" {
				workflow = ws.cfg.Defaults.Workflow
			}

			path, err := githook.Install(hooksDir, hookSpec(bin, ws.root, workflow, opts.executor, filter), force)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Installed %s\n", path)
			return nil
		},
	}

	cmd.Flags().StringVarP(&workspace, "workspace", "w", "", "Workspace root (optional; autodetected if omitted)")
	cmd.Flags().StringVarP(&opts.workflow, "workflow", "f", "", "Workflow the hook runs (defaults to the workspace default)")
	cmd.Flags().StringVar(&opts.executor, "executor", "", "Executor the hook runs with (defaults to vgate.yaml)")
	addFilterFlags(cmd, &opts)
	addTriggerFlags(cmd, &opts)
	cmd.Flags().BoolVar(&force, "force", false, "Replace an existing pre-push hook not written by vgate")
	return cmd
}

func hookSpec(bin, root, workflow, executor string, f domain.MatrixFilter) githook.Spec {
	s := githook.Spec{
		Binary:    bin,
		Workspace: root,
		Workflow:  workflow,
		Executor:  executor,
		Jobs:      f.Jobs,
	}
	for _, t := range f.Toolchains {
		s.Toolchains = append(s.Toolchains, string(t))
	}
	for _, p := range f.Platforms {
		s.Platforms = append(s.Platforms, string(p))
	}
	return s
}

func hookUninstallCmd() *cobra.Command {
	var workspace string

	cmd := &cobra.Command{
		Use:   "uninstall",
		Short: "Remove the vgate pre-push hook",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ws, err := loadWorkspace(workspace)
			if err != nil {
				return err
			}

			hooksDir, err := gitcheckout.HooksDir(cmd.Context(), ws.root)
			if err != nil {
				return err
			}
			if err := githook.Uninstall(hooksDir); err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), "Removed pre-push hook")
			return nil
		},
	}

	cmd.Flags().StringVarP(&workspace, "workspace", "w", "", "Workspace root (optional; autodetected if omitted)")
	return cmd
}
