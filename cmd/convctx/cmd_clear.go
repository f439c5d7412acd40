package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/becomeliminal/convctx/core"
)

// newClearCmd creates the "convctx clear" subcommand.
func newClearCmd(a *app) *cobra.Command {
	var user string
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete a user's history from both tiers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.manager(cmd)
			if err != nil {
				return err
			}
			err = m.ClearHistory(cmd.Context(), user)
			var partial *core.PartialClearError
			switch {
			case err == nil:
				fmt.Fprintf(cmd.OutOrStdout(), "Cleared history for %s\n", user)
			case errors.As(err, &partial) && !partial.Total():
				fmt.Fprintf(cmd.OutOrStdout(), "Partially cleared history for %s: %v\n", user, err)
			default:
				return fmt.Errorf("clear: %w", err)
			}
			return nil
		},
	}
	userFlag(cmd, &user)
	return cmd
}
