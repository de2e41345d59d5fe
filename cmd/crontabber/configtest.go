package main

import (
	"fmt"

	"github.com/mozilla/crontabber/internal/admin"
	"github.com/mozilla/crontabber/internal/cronerr"
	"github.com/spf13/cobra"
)

// configTestCmd validates admin.conf's job list and dependency graph.
// It builds the same environment as the other commands, so a
// configured database is still opened (and its tables created if
// missing) before validation. Per spec.md §4.9 its exit code is the
// count of misconfigured jobs: buildEnvironment already surfaces a
// ConfigError fatally if registry.Build or graph.New failed, so a
// single bad job line exits 1 here.
func configTestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "configtest",
		Short: "Validate the configured job list and dependency graph.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			env, err := buildEnvironment(ctx)
			if err != nil {
				if kind, ok := configErrorKind(err); ok {
					return withExitCode(1, fmt.Errorf("configtest: %s: %w", kind, err))
				}
				return err
			}
			defer env.store.Close()

			misconfigured, err := admin.ConfigTest(env.registry, env.graph)
			if err != nil {
				return withExitCode(misconfigured, err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "configtest: OK")
			return nil
		},
	}
}

func configErrorKind(err error) (cronerr.ConfigKind, bool) {
	var ce *cronerr.ConfigError
	if !cronerr.IsConfigError(err) {
		return "", false
	}
	for e := err; e != nil; {
		if c, ok := e.(*cronerr.ConfigError); ok {
			ce = c
			break
		}
		u, ok := e.(interface{ Unwrap() error })
		if !ok {
			break
		}
		e = u.Unwrap()
	}
	if ce == nil {
		return "", false
	}
	return ce.Kind, true
}
