package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"timetrigger/internal/config"
	"timetrigger/internal/secrets"
)

func newValidateCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the config and every task file without firing anything",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(g)
			if err != nil {
				return err
			}
			defer a.Close()

			if _, err := secrets.Parse(os.Getenv(a.cfg.Secrets.Env)); err != nil {
				return fmt.Errorf("%w: %s: %w", config.ErrInvalid, a.cfg.Secrets.Env, err)
			}

			entries, bad, err := a.loader.Load()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, le := range bad {
				fmt.Fprintf(out, "INVALID %s: %v\n", le.Path, le.Err)
			}
			fmt.Fprintf(out, "%d task(s) ok, %d invalid in %s\n", len(entries), len(bad), a.cfg.TasksDir)
			if len(bad) > 0 {
				return fmt.Errorf("%w: %d invalid task file(s)", config.ErrInvalid, len(bad))
			}
			return nil
		},
	}
}
