package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/becomeliminal/convctx/memory"
)

// newAddCmd creates the "convctx add" subcommand.
func newAddCmd(a *app) *cobra.Command {
	var in memory.ExchangeInput
	cmd := &cobra.Command{
		Use:   "add <message>",
		Short: "Record one exchange",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.manager(cmd)
			if err != nil {
				return err
			}
			in.UserMessage = strings.Join(args, " ")
			id, err := m.AddExchange(cmd.Context(), in)
			if err != nil {
				return fmt.Errorf("add: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Recorded %s\n", id)
			return nil
		},
	}
	userFlag(cmd, &in.UserID)
	cmd.Flags().StringVar(&in.Username, "username", "", "display name")
	cmd.Flags().StringVarP(&in.Response, "response", "r", "", "bot response")
	cmd.Flags().StringVar(&in.Intent, "intent", "", "classified intent")
	cmd.Flags().BoolVar(&in.ContextUsed, "context-used", false, "mark the response as context-informed")
	return cmd
}
