package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/raphaelgruber/csbot-go/internal/models"
	"github.com/raphaelgruber/csbot-go/internal/parser"
	"github.com/raphaelgruber/csbot-go/internal/service"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	faqSample bool
	faqDryRun bool
	faqAsJSON bool
)

var faqCmd = &cobra.Command{
	Use:   "faq",
	Short: "Manage the FAQ catalog",
	Long: `Manage the FAQ catalog used to ground replies.

FAQ commands always run in-process against the configured store.`,
}

var faqSeedCmd = &cobra.Command{
	Use:   "seed [file]",
	Short: "Embed and store FAQs from a file",
	Long: `Embed and store FAQs from a YAML, JSON or Markdown file.

YAML and JSON files hold a list of {question, answer, metadata} items.
Markdown files use each "## heading" as a question and the text below it
as the answer; frontmatter becomes metadata for every entry.

Seeding appends; running it twice stores the entries twice.

Examples:
  csbot faq seed --sample
  csbot faq seed faqs.yaml
  csbot faq seed help-center.md --dry-run`,
	Args: cobra.MaximumNArgs(1),
	RunE: runFAQSeed,
}

var faqListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored FAQs",
	Args:  cobra.NoArgs,
	RunE:  runFAQList,
}

func init() {
	faqSeedCmd.Flags().BoolVar(&faqSample, "sample", false, "seed the built-in sample catalog")
	faqSeedCmd.Flags().BoolVar(&faqDryRun, "dry-run", false, "parse and print the FAQs without storing them")
	faqListCmd.Flags().BoolVar(&faqAsJSON, "json", false, "print FAQs as JSON")

	faqCmd.AddCommand(faqSeedCmd)
	faqCmd.AddCommand(faqListCmd)
}

func runFAQSeed(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	var inputs []models.FAQInput
	switch {
	case faqSample && len(args) > 0:
		return errors.New("give either a file or --sample, not both")
	case faqSample:
		inputs = service.SampleFAQs
	case len(args) == 1:
		parsed, err := parser.ParseFAQFile(args[0])
		if err != nil {
			return err
		}
		inputs = parsed
	default:
		return errors.New("a file or --sample is required")
	}

	if faqDryRun {
		for i, in := range inputs {
			fmt.Printf("%d. %s\n   %s\n", i+1, in.Question, in.Answer)
		}
		fmt.Printf("\n%d FAQs parsed\n", len(inputs))
		return nil
	}

	a, err := getApp(ctx)
	if err != nil {
		return err
	}

	if term.IsTerminal(int(os.Stdout.Fd())) {
		_, err := runIngestProgress(ctx, a.FAQs, inputs)
		return err
	}

	result, err := a.FAQs.Ingest(ctx, inputs, func(done, total int) {
		logger.Debug("faq ingestion progress", "done", done, "total", total)
	})
	fmt.Print(renderIngestResult(defaultTheme, result, err, false))
	return err
}

func runFAQList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := getApp(ctx)
	if err != nil {
		return err
	}

	faqs, err := a.FAQs.List(ctx)
	if err != nil {
		return fmt.Errorf("list faqs: %w", err)
	}

	if faqAsJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(faqs)
	}

	if len(faqs) == 0 {
		fmt.Println("No FAQs stored. Seed some with 'csbot faq seed --sample'.")
		return nil
	}
	for _, f := range faqs {
		fmt.Printf("%s %s\n", defaultTheme.statusStyle().Render(fmt.Sprintf("[%d]", f.ID)), f.Question)
		fmt.Printf("    %s\n", f.Answer)
	}
	fmt.Printf("\n%d FAQs\n", len(faqs))
	return nil
}
