package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/becomeliminal/convctx/memory"
)

// newContextCmd creates the "convctx context" subcommand.
func newContextCmd(a *app) *cobra.Command {
	var (
		user         string
		noSimilarity bool
		maxChars     int
		process      bool
	)
	cmd := &cobra.Command{
		Use:   "context <message>",
		Short: "Assemble the context for a message",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.manager(cmd)
			if err != nil {
				return err
			}
			msg := strings.Join(args, " ")
			out := cmd.OutOrStdout()

			if process {
				b := m.ProcessContext(cmd.Context(), user, msg, maxChars)
				printContext(cmd, b.Text, b.Confidence, b.MessageCount)
				fmt.Fprintf(out, "Summary: %s\n", b.Summary)
				if len(b.Topics) > 0 {
					fmt.Fprintf(out, "Topics: %s\n", strings.Join(b.Topics, ", "))
				}
				fmt.Fprintf(out, "Chunks: %d\n", b.ChunksProcessed)
				return nil
			}

			c := m.Assemble(cmd.Context(), user, msg, memory.AssembleOptions{
				MaxChars:          maxChars,
				IncludeSimilarity: !noSimilarity,
			})
			printContext(cmd, c.Text, c.Confidence, len(c.Messages))
			if len(c.Messages) > 0 {
				fmt.Fprintf(out, "Sources: %d recent, %d similar\n", c.FromRecency, c.FromSimilarity)
			}
			return nil
		},
	}
	userFlag(cmd, &user)
	cmd.Flags().BoolVar(&noSimilarity, "no-similarity", false, "use the recency cache only")
	cmd.Flags().IntVar(&maxChars, "max-chars", 0, "rendering budget (default from config)")
	cmd.Flags().BoolVar(&process, "process", false, "also summarize and extract topics")
	return cmd
}

func printContext(cmd *cobra.Command, text string, confidence float64, messages int) {
	out := cmd.OutOrStdout()
	if text == "" {
		fmt.Fprintln(out, "No previous conversation history")
	} else {
		fmt.Fprint(out, text)
	}
	fmt.Fprintf(out, "Confidence: %.2f (%d messages)\n", confidence, messages)
}
