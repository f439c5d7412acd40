package main

import (
	"github.com/spf13/cobra"

	"github.com/becomeliminal/convctx/memory"
)

// newExportCmd creates the "convctx export" subcommand.
func newExportCmd(a *app) *cobra.Command {
	var user, format string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write a user's indexed exchanges as JSON or JSON lines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.manager(cmd)
			if err != nil {
				return err
			}
			return m.Export(cmd.Context(), user, cmd.OutOrStdout(), memory.ExportFormat(format))
		},
	}
	userFlag(cmd, &user)
	cmd.Flags().StringVarP(&format, "format", "f", string(memory.ExportJSON), "json or jsonl")
	return cmd
}
