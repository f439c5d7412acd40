package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/becomeliminal/convctx/memory"
)

// newDetectCmd creates the "convctx detect" subcommand. It needs no backends.
func newDetectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "detect <text>",
		Short: "Report whether text asks to clear the history",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if memory.DetectClearIntent(strings.Join(args, " ")) {
				fmt.Fprintln(cmd.OutOrStdout(), "clear intent: yes")
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "clear intent: no")
			}
			return nil
		},
	}
}
