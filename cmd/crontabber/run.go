package main

import (
	"fmt"
	"time"

	"github.com/mozilla/crontabber/internal/admin"
	"github.com/spf13/cobra"
)

var (
	jobFilter string
	force     bool
)

// runCmd is the default periodic invocation of spec.md §4.7: acquire
// the process gate, walk every configured job in topological order,
// execute what is due, and exit. With --job it restricts the walk to
// one job (optionally --force, refused for backfill jobs).
func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one invocation of the scheduler.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			env, err := buildEnvironment(ctx)
			if err != nil {
				return err
			}
			defer env.store.Close()

			now := time.Now().UTC()

			if jobFilter != "" {
				result, err := admin.RunOne(ctx, env.runner, env.registry, now, jobFilter, force)
				if err != nil {
					return err
				}
				return reportResult(cmd, result)
			}

			result, err := env.runner.Run(ctx, now)
			if err != nil {
				return err
			}
			return reportResult(cmd, result)
		},
	}
	cmd.Flags().StringVar(&jobFilter, "job", "", "restrict the walk to this job identifier")
	cmd.Flags().BoolVar(&force, "force", false, "bypass due-time and dependency-failure checks for --job (never for backfill jobs)")
	return cmd
}

func reportResult(cmd *cobra.Command, result interface{ AnyFailures() bool }) error {
	if result.AnyFailures() {
		return fmt.Errorf("one or more jobs failed")
	}
	fmt.Fprintln(cmd.OutOrStdout(), "OK")
	return nil
}
