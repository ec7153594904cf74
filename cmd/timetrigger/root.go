package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var errUsage = errors.New("usage")

type globalFlags struct {
	configPath string
	tasksDir   string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:           "timetrigger",
		Short:         "Fire one-shot webhooks from a directory of JSON task files",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return fmt.Errorf("%w: %w", errUsage, err)
	})
	root.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "config file (.json, .yaml); default timetrigger.{json,yaml,yml} if present")
	root.PersistentFlags().StringVar(&g.tasksDir, "tasks-dir", "", "override tasks_dir")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "override logging.level (trace|debug|info|warn|error)")

	root.AddCommand(
		newRunCmd(g),
		newValidateCmd(g),
		newListCmd(g),
		newDaemonCmd(g),
	)
	return root
}

func noArgs(cmd *cobra.Command, args []string) error {
	if len(args) > 0 {
		return fmt.Errorf("%w: %s takes no arguments", errUsage, cmd.CommandPath())
	}
	return nil
}
