package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// newPatchCmd creates the "convctx patch" subcommand.
func newPatchCmd(a *app) *cobra.Command {
	var user string
	cmd := &cobra.Command{
		Use:   "patch <exchange-id> <response>",
		Short: "Replace the response of a recorded exchange",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.manager(cmd)
			if err != nil {
				return err
			}
			id, response := args[0], strings.Join(args[1:], " ")
			if err := m.PatchResponse(cmd.Context(), id, user, response); err != nil {
				return fmt.Errorf("patch: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Patched %s\n", id)
			return nil
		},
	}
	userFlag(cmd, &user)
	return cmd
}
