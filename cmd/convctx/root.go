package main

import (
	"github.com/spf13/cobra"

	"github.com/becomeliminal/convctx/config"
	"github.com/becomeliminal/convctx/memory"
)

// app holds the backends shared by one command invocation.
type app struct {
	configPath string
	stack      *config.Stack
	owned      bool
}

// manager opens the configured stack on first use.
func (a *app) manager(cmd *cobra.Command) (*memory.ConversationManager, error) {
	if a.stack == nil {
		cfg, err := config.Load(a.configPath)
		if err != nil {
			return nil, err
		}
		stack, err := config.Open(cmd.Context(), cfg, nil)
		if err != nil {
			return nil, err
		}
		a.stack, a.owned = stack, true
	}
	return a.stack.Manager, nil
}

func (a *app) close() error {
	if !a.owned || a.stack == nil {
		return nil
	}
	err := a.stack.Close()
	a.stack, a.owned = nil, false
	return err
}

// newRootCmd creates the root convctx command with all subcommands attached.
func newRootCmd() *cobra.Command {
	return newRootCmdWithStack(nil)
}

// newRootCmdWithStack wires the subcommands to an already opened stack.
// A nil stack is opened from configuration when a command first needs it.
func newRootCmdWithStack(stack *config.Stack) *cobra.Command {
	a := &app{stack: stack}
	cmd := &cobra.Command{
		Use:   "convctx",
		Short: "Conversation context engine",
		Long: "convctx records conversation exchanges and assembles relevant history\n" +
			"from a recency cache and a vector similarity index.\n\n" +
			"Backends are selected with a YAML file (--config or CONVCTX_CONFIG) and\n" +
			"CONVCTX_* environment variables. The default in-memory backends do not\n" +
			"outlive a single invocation; use redis and sqlite (or a chromem path) to\n" +
			"keep history between runs.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.close()
		},
	}
	cmd.PersistentFlags().StringVar(&a.configPath, "config", "", "path to a YAML config file")

	cmd.AddCommand(
		newAddCmd(a),
		newContextCmd(a),
		newClearCmd(a),
		newStatusCmd(a),
		newDetectCmd(),
		newPatchCmd(a),
		newExportCmd(a),
		newAnalyticsCmd(a),
		newDemoCmd(a),
	)
	return cmd
}

func userFlag(cmd *cobra.Command, user *string) {
	cmd.Flags().StringVarP(user, "user", "u", "", "user id (required)")
	_ = cmd.MarkFlagRequired("user")
}
