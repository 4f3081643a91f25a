package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newApplyMigrationsCmd(a *app) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "apply-migrations",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			st, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			pending, err := st.PendingMigrations(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(pending) == 0 {
				fmt.Fprintln(out, "database is up to date")
				return nil
			}
			for _, name := range pending {
				fmt.Fprintln(out, "pending:", name)
			}
			if dryRun {
				return nil
			}
			if err := st.Migrate(ctx); err != nil {
				return err
			}
			fmt.Fprintf(out, "applied %d migration(s)\n", len(pending))
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Only list pending migrations")
	return cmd
}
