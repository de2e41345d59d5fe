package main

import (
	"fmt"

	"github.com/mozilla/crontabber/internal/admin"
	"github.com/spf13/cobra"
)

// nagiosCmd emits the single-line Nagios-style health summary of
// spec.md §4.9, exiting 0/1/2 per admin.NagiosStatus.
func nagiosCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "nagios",
		Short: "Print a Nagios-style health summary and exit 0/1/2.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			env, err := buildEnvironment(ctx)
			if err != nil {
				return err
			}
			defer env.store.Close()

			status, summary := admin.Nagios(ctx, env.store, env.registry)
			fmt.Fprintln(cmd.OutOrStdout(), summary)
			if status == admin.NagiosOK {
				return nil
			}
			return withExitCode(status.ExitCode(), fmt.Errorf("nagios: %s", status))
		},
	}
}
