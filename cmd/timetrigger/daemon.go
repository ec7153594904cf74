package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"timetrigger/internal/daemon"
	logx "timetrigger/pkg/logx"
)

func newDaemonCmd(g *globalFlags) *cobra.Command {
	var schedule string
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run passes on a schedule until interrupted",
		Long: `Run a pass at startup and then on every tick of daemon.schedule (cron
expression, "@every 15m", or a duration). With daemon.watch the tasks directory
is watched and changes trigger a pass. Passes never overlap.

Sends READY/STOPPING (and WATCHDOG when configured) to systemd.`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(g)
			if err != nil {
				return err
			}
			defer a.Close()

			if schedule != "" {
				a.cfg.Daemon.Schedule = schedule
			}
			ev, err := a.evaluator("")
			if err != nil {
				return err
			}
			r, err := a.runner(ev, false)
			if err != nil {
				return err
			}

			d, err := daemon.New(daemon.Config{
				Schedule: a.cfg.Daemon.Schedule,
				Location: a.loc,
				Watch:    a.cfg.Daemon.Watch,
				Dir:      a.cfg.TasksDir,
				Debounce: a.cfg.DaemonDebounce(),
			}, func(ctx context.Context) error {
				return r.Run(ctx).Err(false)
			}, a.log.With(logx.String("comp", "daemon")))
			if err != nil {
				return fmt.Errorf("%w: daemon.schedule: %w", errUsage, err)
			}
			return d.Run(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&schedule, "schedule", "", "override daemon.schedule")
	return cmd
}
