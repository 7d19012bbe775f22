package cli

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aalvaropc/vgate/internal/infra/fsworkspace"
	"github.com/aalvaropc/vgate/internal/infra/logger"
	"github.com/aalvaropc/vgate/internal/infra/workspacefinder"
	"github.com/aalvaropc/vgate/internal/ui/tui"
)

// Execute runs the CLI and exits 1 on any error, including a failing gate.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := newRootCmd()
	if err := cmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var debug bool

	cmd := &cobra.Command{
		Use:          "vgate",
		Short:        "vgate: verification gate for Rust crates across toolchains and platforms",
		SilenceUsage: true,
		RunE: func(_ *cobra.Command, _ []string) error {
			wd, err := os.Getwd()
			if err != nil {
				wd = "."
			}
			wd, _ = filepath.Abs(wd)

			finder := workspacefinder.NewFinder()

			logRoot := wd
			if root, ferr := finder.FindRoot(wd); ferr == nil && root != "" {
				logRoot = root
			}

			cleanup, _ := logger.Setup(logger.Config{
				Root:  logRoot,
				Debug: debug,
			})
			if cleanup != nil {
				defer func() { _ = cleanup() }()
			}

			deps := tui.Deps{
				WorkspaceLocator:     finder,
				WorkspaceInitializer: fsworkspace.NewInitializer(),
				NewGate:              tuiGate(runOptions{}),
				ListRuns:             listRuns,
				Logger:               logger.L(),
				Debug:                debug,
			}

			return tui.Run(deps)
		},
	}

	cmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable verbose logging to .vgate/logs/vgate.log")

	cmd.AddCommand(
		initCmd(),
		validateCmd(),
		matrixCmd(),
		runCmd(),
		runsCmd(),
		workflowsCmd(),
		watchCmd(),
		hookCmd(),
		versionCmd(),
	)
	return cmd
}
