package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

type runFlags struct {
	dryRun bool
	strict bool
	now    string
}

func newRunCmd(g *globalFlags) *cobra.Command {
	f := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Scan the tasks directory once and fire every due webhook",
		Long: `Scan the tasks directory once, fire the webhook of every due task in
filename order, mark fired tasks executed and commit the change.

Invalid task files and failed webhooks are logged and skipped; the exit status
is only non-zero when the tasks directory is unreadable or state could not be
persisted, unless --strict is set.`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(cmd, g, f)
		},
	}
	cmd.Flags().BoolVar(&f.dryRun, "dry-run", false, "report due tasks without firing or persisting")
	cmd.Flags().BoolVar(&f.strict, "strict", false, "exit non-zero when any task is invalid or its webhook fails")
	cmd.Flags().StringVar(&f.now, "now", "", `evaluate as if the time were this ("2006-01-02 15:04:05" in the project timezone, or RFC 3339)`)
	return cmd
}

func runOnce(cmd *cobra.Command, g *globalFlags, f *runFlags) error {
	a, err := loadApp(g)
	if err != nil {
		return err
	}
	defer a.Close()

	ev, err := a.evaluator(f.now)
	if err != nil {
		return err
	}
	r, err := a.runner(ev, f.dryRun)
	if err != nil {
		return err
	}
	rep := r.Run(cmd.Context())
	if f.dryRun {
		fmt.Fprintln(cmd.OutOrStdout(), rep.Summary())
	}
	return rep.Err(f.strict)
}
