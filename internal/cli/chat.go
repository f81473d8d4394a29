package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/raphaelgruber/csbot-go/internal/models"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	chatSession string
	chatUser    string
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with the support assistant",
	Long: `Start an interactive chat. Each line read from stdin is sent as one
customer message. A new session is created unless --session is given.

Commands inside the chat:
  /summary   summarize the conversation so far
  /quit      leave the chat

Examples:
  csbot chat
  csbot chat --session 3b7c4f7e-...
  echo "How do I reset my password?" | csbot chat
  csbot chat --server http://localhost:8000`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVarP(&chatSession, "session", "s", "", "continue an existing session")
	chatCmd.Flags().StringVar(&chatUser, "user", "", "user ID for a new session")
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	b, err := getBackend(ctx)
	if err != nil {
		return err
	}
	defer b.Close()

	sessionID := chatSession
	if sessionID == "" {
		var userID *string
		if chatUser != "" {
			userID = &chatUser
		}
		sess, err := b.CreateSession(ctx, userID, map[string]any{"channel": "cli"})
		if err != nil {
			return fmt.Errorf("create session: %w", err)
		}
		sessionID = sess.ID
	}

	interactive := term.IsTerminal(int(os.Stdin.Fd()))
	if interactive {
		fmt.Println(defaultTheme.hintStyle().Render("Session " + sessionID + ". Type /quit to leave."))
	}

	return chatLoop(ctx, b, sessionID, os.Stdin, cmd.OutOrStdout(), interactive)
}

// chatLoop reads one message per line until EOF or /quit.
func chatLoop(ctx context.Context, b backend, sessionID string, in io.Reader, out io.Writer, interactive bool) error {
	scanner := bufio.NewScanner(in)
	for {
		if interactive {
			fmt.Fprint(out, defaultTheme.statusStyle().Render("you> "))
		}
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		switch line {
		case "/quit", "/exit":
			return nil
		case "/summary":
			sum, err := b.Summarize(ctx, sessionID)
			if err != nil {
				fmt.Fprintln(out, defaultTheme.errorStyle().Render("summary failed: "+err.Error()))
				continue
			}
			printSummary(out, sum)
			continue
		}

		reply, err := b.Send(ctx, sessionID, line)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			fmt.Fprintln(out, defaultTheme.errorStyle().Render("error: "+err.Error()))
			continue
		}
		printReply(out, reply)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	return nil
}

func printReply(out io.Writer, reply *models.ChatReply) {
	fmt.Fprintf(out, "%s %s\n", defaultTheme.completedStyle().Render("bot>"), reply.Reply)

	if reply.Escalated {
		fmt.Fprintln(out, defaultTheme.errorStyle().Render("  ↳ escalated to a human agent"))
		if reply.Summary != nil {
			fmt.Fprintf(out, "  ↳ handoff note: %s\n", *reply.Summary)
		}
	}

	if verbose && len(reply.FAQs) > 0 {
		for _, f := range reply.FAQs {
			fmt.Fprintln(out, defaultTheme.hintStyle().Render(
				fmt.Sprintf("  [faq %d, %.2f] %s", f.Entry.ID, f.Score, f.Entry.Question)))
		}
	}
}

func printSummary(out io.Writer, sum *models.Summary) {
	fmt.Fprintln(out, defaultTheme.completedStyle().Render("Summary:"))
	fmt.Fprintf(out, "  %s\n", sum.Summary)
	if sum.NextAction != nil {
		fmt.Fprintf(out, "%s %s\n", defaultTheme.completedStyle().Render("Next action:"), *sum.NextAction)
	}
}
