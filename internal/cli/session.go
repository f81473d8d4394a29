package cli

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

var (
	sessionUser    string
	sessionMeta    []string
	messagesLimit  int
	messagesOffset int
	messagesAsJSON bool
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage chat sessions",
}

var sessionCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Start a new session",
	Long: `Start a new chat session and print its ID.

Examples:
  csbot session create
  csbot session create --user u-42 --meta channel=web --meta plan=pro`,
	Args: cobra.NoArgs,
	RunE: runSessionCreate,
}

var sessionMessagesCmd = &cobra.Command{
	Use:   "messages <session-id>",
	Short: "Show a session's history",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionMessages,
}

func init() {
	sessionCreateCmd.Flags().StringVar(&sessionUser, "user", "", "user ID to attach to the session")
	sessionCreateCmd.Flags().StringArrayVar(&sessionMeta, "meta", nil, "metadata as key=value (repeatable)")

	sessionMessagesCmd.Flags().IntVarP(&messagesLimit, "limit", "l", 100, "maximum messages to show")
	sessionMessagesCmd.Flags().IntVar(&messagesOffset, "offset", 0, "messages to skip")
	sessionMessagesCmd.Flags().BoolVar(&messagesAsJSON, "json", false, "print messages as JSON")

	sessionCmd.AddCommand(sessionCreateCmd)
	sessionCmd.AddCommand(sessionMessagesCmd)
}

func runSessionCreate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	meta, err := parseMeta(sessionMeta)
	if err != nil {
		return err
	}
	var userID *string
	if sessionUser != "" {
		userID = &sessionUser
	}

	b, err := getBackend(ctx)
	if err != nil {
		return err
	}
	defer b.Close()

	sess, err := b.CreateSession(ctx, userID, meta)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	fmt.Println(sess.ID)
	return nil
}

func runSessionMessages(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	b, err := getBackend(ctx)
	if err != nil {
		return err
	}
	defer b.Close()

	msgs, err := b.Messages(ctx, args[0], messagesLimit, messagesOffset)
	if err != nil {
		return fmt.Errorf("list messages: %w", err)
	}

	if messagesAsJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(msgs)
	}

	if len(msgs) == 0 {
		fmt.Println("No messages.")
		return nil
	}
	for _, m := range msgs {
		marker := ""
		if m.Escalated {
			marker = " " + defaultTheme.errorStyle().Render("[escalated]")
		}
		fmt.Printf("%s %-9s%s %s\n", m.CreatedAt.Local().Format("15:04:05"), m.Role, marker, m.Content)
	}
	return nil
}

// parseMeta turns key=value pairs into a metadata map. Values that parse
// as numbers or booleans keep that type.
func parseMeta(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	meta := make(map[string]any, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid --meta %q: want key=value", p)
		}
		meta[k] = metaValue(v)
	}
	return meta, nil
}

func metaValue(v string) any {
	switch v {
	case "true":
		return true
	case "false":
		return false
	}
	if i, err := strconv.ParseInt(v, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return f
	}
	return v
}
