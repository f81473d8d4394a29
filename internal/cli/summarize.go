package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var summarizeAsJSON bool

var summarizeCmd = &cobra.Command{
	Use:   "summarize <session-id>",
	Short: "Summarize a session",
	Long: `Summarize a session's conversation and suggest a next action for the agent.

Examples:
  csbot summarize 3b7c4f7e-...
  csbot summarize 3b7c4f7e-... --json`,
	Args: cobra.ExactArgs(1),
	RunE: runSummarize,
}

func init() {
	summarizeCmd.Flags().BoolVar(&summarizeAsJSON, "json", false, "print the summary as JSON")
}

func runSummarize(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	b, err := getBackend(ctx)
	if err != nil {
		return err
	}
	defer b.Close()

	sum, err := b.Summarize(ctx, args[0])
	if err != nil {
		return fmt.Errorf("summarize: %w", err)
	}

	if summarizeAsJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(sum)
	}
	printSummary(cmd.OutOrStdout(), sum)
	return nil
}
