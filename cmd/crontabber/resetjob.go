package main

import (
	"fmt"

	"github.com/mozilla/crontabber/internal/admin"
	"github.com/spf13/cobra"
)

// resetJobCmd deletes a job's persisted JobState row (spec.md §4.9),
// forcing its next invocation to treat it as never having run.
func resetJobCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset-job [identifier]",
		Short: "Delete a job's persisted state.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			env, err := buildEnvironment(ctx)
			if err != nil {
				return err
			}
			defer env.store.Close()

			identifier := args[0]
			if err := admin.ResetJob(ctx, env.store, env.registry, identifier); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "reset %s\n", identifier)
			return nil
		},
	}
}
