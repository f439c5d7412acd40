package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/becomeliminal/convctx/engine"
)

// demoScript is a short conversation that touches every engine path.
var demoScript = []string{
	"How do I write python functions?",
	"What's the weather like in Lisbon today?",
	"Can you show me python functions with default arguments?",
	"Schedule a reminder for the python meetup tomorrow",
	"Please clear my conversation history",
	"Do you remember anything about python?",
}

// demoClassifier tags messages with a coarse intent.
func demoClassifier(ctx context.Context, msg string) string {
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "schedule"), strings.Contains(lower, "remind"):
		return "scheduling"
	case strings.Contains(lower, "python"), strings.Contains(lower, "code"):
		return "programming_help"
	case strings.Contains(lower, "weather"):
		return "weather"
	}
	return "general"
}

// demoResponder answers from the supplied context. Scheduling requests
// complete asynchronously.
func demoResponder(ctx context.Context, req engine.Request) (engine.Reply, error) {
	if req.Intent == "scheduling" {
		return engine.Reply{Text: "Working on it...", Pending: true}, nil
	}
	if req.Context == "" {
		return engine.Reply{Text: "Noted: " + req.Message}, nil
	}
	return engine.Reply{Text: fmt.Sprintf("Building on our chat about %s: %s", strings.Join(req.Topics, ", "), req.Message)}, nil
}

// newDemoCmd creates the "convctx demo" subcommand.
func newDemoCmd(a *app) *cobra.Command {
	var user string
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run a scripted conversation through the engine",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.manager(cmd)
			if err != nil {
				return err
			}
			e := engine.NewEngine(m, engine.ResponderFunc(demoResponder),
				engine.WithClassifier(engine.ClassifierFunc(demoClassifier)),
				engine.WithMinConfidence(m.Config().MinConfidence))

			out := cmd.OutOrStdout()
			for _, msg := range demoScript {
				res, err := e.Handle(cmd.Context(), engine.Input{UserID: user, Username: "Demo", Message: msg})
				if err != nil {
					return fmt.Errorf("demo: %w", err)
				}
				fmt.Fprintf(out, "> %s\n", msg)
				fmt.Fprintf(out, "< [%s] %s (confidence %.2f, context %t)\n", res.Type, res.Text, res.Confidence, res.ContextUsed)
				if res.Warning != "" {
					fmt.Fprintf(out, "  warning: %s\n", res.Warning)
				}

				if res.Type == engine.OutputPending {
					done := "Reminder set: " + msg
					if err := e.Complete(cmd.Context(), user, res.ExchangeID, done); err != nil {
						return fmt.Errorf("demo: %w", err)
					}
					fmt.Fprintf(out, "< [completed] %s\n", done)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&user, "user", "u", "demo-user", "user id")
	return cmd
}
