package main

import (
	"encoding/json"
	"fmt"

	"github.com/mozilla/crontabber/internal/admin"
	"github.com/spf13/cobra"
)

var listFormat string

// listCmd prints every configured job in topological order, annotated
// with whatever persisted state exists for it (spec.md §4.9).
func listCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List configured jobs and their state.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			env, err := buildEnvironment(ctx)
			if err != nil {
				return err
			}
			defer env.store.Close()

			summaries, err := admin.List(ctx, env.store, env.registry, env.graph)
			if err != nil {
				return err
			}

			if listFormat == "json" {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(summaries)
			}

			for _, s := range summaries {
				line := fmt.Sprintf("%-30s %-10s", s.Identifier, s.Frequency)
				if s.IsBackfill {
					line += " [backfill]"
				}
				if len(s.DependsOn) > 0 {
					line += fmt.Sprintf(" depends_on=%v", s.DependsOn)
				}
				if s.LastError != "" {
					line += fmt.Sprintf(" last_error=%q", s.LastError)
				}
				fmt.Fprintln(cmd.OutOrStdout(), line)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&listFormat, "format", "text", "output format: text or json")
	return cmd
}
