package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aalvaropc/vgate/internal/domain"
	"github.com/aalvaropc/vgate/internal/infra/gitcheckout"
	"github.com/aalvaropc/vgate/internal/infra/gitwatch"
	"github.com/aalvaropc/vgate/internal/infra/logger"
	"github.com/aalvaropc/vgate/internal/report"
)

func watchCmd() *cobra.Command {
	var workspace string
	var opts runOptions
	var format string

	c := &cobra.Command{
		Use:   "watch",
		Short: "Re-run the gate on every new commit (branch updates, pulls, rebases)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := report.CheckFormat(format); err != nil {
				return err
			}

			ws, err := loadWorkspace(workspace)
			if err != nil {
				return err
			}
			defer setupLogging(cmd, ws.root)()
			log := logger.Component("watch")

			if err := opts.narrowToHost(ws, cmd.ErrOrStderr()); err != nil {
				return err
			}
			if _, err := opts.request(ws); err != nil {
				return err
			}

			ctx := cmd.Context()
			gitDir, err := gitcheckout.GitDir(ctx, ws.root)
			if err != nil {
				return &domain.OpError{Op: "cli.watch", Kind: domain.KindNotFound, Path: ws.root, Err: err}
			}

			out := cmd.OutOrStdout()
			head := func(ctx context.Context) (string, error) { return gitcheckout.Head(ctx, ws.root) }

			w := gitwatch.New(gitDir, head, gitwatch.WithLogger(log))
			fmt.Fprintf(cmd.ErrOrStderr(), "Watching %s for new commits (ctrl+c to stop)\n", gitDir)

			return w.Watch(ctx, func(sha string) {
				o := opts
				o.revision = sha

				req, err := o.request(ws)
				if err != nil {
					log.Error("watch.request.failed", "err", err)
					fmt.Fprintf(cmd.ErrOrStderr(), "error: %v\n", err)
					return
				}

				uc, closeEx, err := newGate(ctx, ws, o.gate(newProgressPrinter(cmd.ErrOrStderr()), nil))
				if err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "error: %v\n", err)
					return
				}
				defer func() { _ = closeEx() }()

				fmt.Fprintf(cmd.ErrOrStderr(), "\n▶ %s\n", sha)
				run, runID, err := uc.Execute(ctx, req)
				if err != nil {
					if !domain.IsCancellation(err) {
						fmt.Fprintf(cmd.ErrOrStderr(), "error: %v\n", err)
					}
					return
				}
				_ = report.WriteRun(out, run, runID, format)
				log.Info("watch.gate", "revision", sha, "verdict", run.Verdict, "run_id", runID)
			})
		},
	}

	c.Flags().StringVarP(&workspace, "workspace", "w", "", "Workspace root (optional; autodetected if omitted)")
	addGateFlags(c, &opts)
	addTriggerFlags(c, &opts)
	c.Flags().StringVar(&format, "format", report.FormatPretty, "Output format: pretty|markdown|json")
	return c
}
