package main

import (
	"fmt"
	"net/url"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"timetrigger/internal/window"
)

func newListCmd(g *globalFlags) *cobra.Command {
	var now string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks with their trigger time and state (from the task files)",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(g)
			if err != nil {
				return err
			}
			defer a.Close()

			ev, err := a.evaluator(now)
			if err != nil {
				return err
			}
			entries, bad, err := a.loader.Load()
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintf(w, "ID\tTRIGGER\tSTATE\tWHEN\tMETHOD\tTARGET\n")
			for _, e := range entries {
				d := ev.Evaluate(e.Trigger, e.Descriptor.Executed)
				when := ""
				switch d.State {
				case window.Due:
					when = relative(d.Lateness) + " late"
				case window.NotYet:
					when = "in " + relative(-d.Lateness)
				case window.Executed:
					when = e.Descriptor.ExecutedAt
				}
				trigger := e.Descriptor.TriggerTime
				if !e.Trigger.IsZero() {
					trigger = e.Trigger.Format("2006-01-02 15:04:05 -07:00")
				}
				_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					e.ID, trigger, d.State, when, e.Method, host(e.Descriptor.WebhookURL))
			}
			for _, le := range bad {
				_, _ = fmt.Fprintf(w, "%s\t-\tinvalid\t-\t-\t%v\n", le.ID, le.Err)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&now, "now", "", "evaluate as if the time were this")
	return cmd
}

func relative(d time.Duration) string {
	switch {
	case d >= 48*time.Hour:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	case d >= time.Minute:
		return d.Truncate(time.Minute).String()
	default:
		return d.Truncate(time.Second).String()
	}
}

// host keeps tokens in paths and queries off the terminal.
func host(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "?"
	}
	return u.Scheme + "://" + u.Host
}
