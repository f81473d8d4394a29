package cli

import (
	"fmt"
	"io"

	"github.com/raphaelgruber/csbot-go/internal/metrics"
	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show runtime statistics",
	Long: `Show call counts, latencies and token usage.

Statistics are in-memory. Without --server they cover only this process,
which is mostly useful right after 'csbot chat'.

Examples:
  csbot stats --server http://localhost:8000`,
	Args: cobra.NoArgs,
	RunE: runStats,
}

func runStats(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	b, err := getBackend(ctx)
	if err != nil {
		return err
	}
	defer b.Close()

	snap, err := b.Stats(ctx)
	if err != nil {
		return fmt.Errorf("get stats: %w", err)
	}
	printStats(cmd.OutOrStdout(), snap)
	return nil
}

// printStats displays runtime statistics.
func printStats(w io.Writer, s *metrics.Snapshot) {
	fmt.Fprintf(w, "Runtime Statistics (in-memory, since start)\n")
	fmt.Fprintf(w, "═══════════════════════════════════════════════\n")
	fmt.Fprintf(w, "Uptime: %.1f seconds\n", s.UptimeSeconds)
	fmt.Fprintf(w, "Escalations: %d, degraded replies: %d\n", s.Escalations, s.Degraded)

	sections := []struct {
		title  string
		op     *metrics.OperationSnapshot
		tokens bool
	}{
		{"Embeddings", s.Embedding, false},
		{"LLM Complete", s.LLMComplete, true},
		{"Summarize", s.Summarize, true},
		{"FAQ Search", s.FAQSearch, false},
		{"Store Append", s.StoreAppend, false},
		{"Store Recent", s.StoreRecent, false},
	}
	for _, sec := range sections {
		if sec.op == nil {
			continue
		}
		fmt.Fprintf(w, "\n%s:\n", sec.title)
		printOpStats(w, sec.op)
		if sec.tokens {
			printTokenStats(w, sec.op)
		}
	}
}

// printOpStats displays timing statistics for an operation.
func printOpStats(w io.Writer, op *metrics.OperationSnapshot) {
	fmt.Fprintf(w, "  Calls: %d, Total: %dms\n", op.Count, op.TotalTimeMs)
	fmt.Fprintf(w, "  Time: avg %.1fms, min %dms, max %dms\n",
		op.AvgTimeMs, op.MinTimeMs, op.MaxTimeMs)
}

// printTokenStats displays token statistics if available.
func printTokenStats(w io.Writer, op *metrics.OperationSnapshot) {
	if op.Tokens == nil {
		return
	}
	fmt.Fprintf(w, "  Tokens In:  %d total, avg %.0f\n", op.Tokens.Input, op.Tokens.AvgInput)
	fmt.Fprintf(w, "  Tokens Out: %d total, avg %.0f\n", op.Tokens.Output, op.Tokens.AvgOutput)
}
