package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// newAnalyticsCmd creates the "convctx analytics" subcommand.
func newAnalyticsCmd(a *app) *cobra.Command {
	var (
		user  string
		since time.Duration
	)
	cmd := &cobra.Command{
		Use:   "analytics",
		Short: "Aggregate a user's indexed exchanges",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.manager(cmd)
			if err != nil {
				return err
			}
			var from time.Time
			if since > 0 {
				from = time.Now().Add(-since)
			}
			report, err := m.Analytics(cmd.Context(), user, from)
			if err != nil {
				return fmt.Errorf("analytics: %w", err)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		},
	}
	userFlag(cmd, &user)
	cmd.Flags().DurationVar(&since, "since", 0, "only exchanges newer than this (e.g. 24h)")
	return cmd
}
