package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// newStatusCmd creates the "convctx status" subcommand.
func newStatusCmd(a *app) *cobra.Command {
	var (
		user    string
		asJSON  bool
		trimAll bool
	)
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show conversation statistics for a user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.manager(cmd)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if trimAll {
				fmt.Fprintf(out, "Trimmed %d cache entries\n", m.TrimAll(cmd.Context()))
			}

			s := m.GetSummary(cmd.Context(), user)
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(s)
			}

			fmt.Fprintf(out, "User: %s\n", s.UserID)
			fmt.Fprintf(out, "Recent messages: %d\n", s.RecentCount)
			fmt.Fprintf(out, "Total messages: %d\n", s.TotalCount)
			if s.LastConversation != nil {
				fmt.Fprintf(out, "Last conversation: %s\n", s.LastConversation.Format(time.RFC3339))
			}
			if len(s.TopIntents) > 0 {
				parts := make([]string, len(s.TopIntents))
				for i, ic := range s.TopIntents {
					parts[i] = fmt.Sprintf("%s (%d)", ic.Intent, ic.Count)
				}
				fmt.Fprintf(out, "Top intents: %s\n", strings.Join(parts, ", "))
			}
			return nil
		},
	}
	userFlag(cmd, &user)
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	cmd.Flags().BoolVar(&trimAll, "trim", false, "trim every known cache hash first")
	return cmd
}
