package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/xraph/rvoc/job"
)

func newRunJobCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "run-job <kind>",
		Short: "Run one job kind immediately, outside the queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, cleanup, err := a.buildEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()
			return eng.Scheduler().RunOnce(cmd.Context(), job.Kind(args[0]))
		},
	}
}

func newListJobsCmd(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list-jobs",
		Short: "List the rows of the job queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			st, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			jobs, err := st.ListJobs(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(jobs)
			}
			for _, j := range jobs {
				state := "idle"
				if j.InProgress {
					state = "running"
					if j.ReservedAt != nil {
						state += " since " + j.ReservedAt.UTC().Format(time.RFC3339)
					}
				}
				fmt.Fprintf(out, "%-28s  next=%s  %s\n",
					j.Name, j.ScheduledExecutionTime.UTC().Format(time.RFC3339), state)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "JSON output")
	return cmd
}
