package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/capitalize-ai/ragchat/internal/model"
	natsclient "github.com/capitalize-ai/ragchat/internal/nats"
	"github.com/capitalize-ai/ragchat/pkg/logger"
)

type options struct {
	server  string
	token   string
	timeout time.Duration
}

func (o *options) client() *Client {
	return NewClient(o.server, o.token)
}

// NewRootCommand builds the chatctl command tree writing to out and errOut.
func NewRootCommand(out, errOut io.Writer) *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "chatctl",
		Short:         "Command-line client for the ragchat streaming chat service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.SetErr(errOut)

	root.PersistentFlags().StringVar(&opts.server, "server", envOr("RAGCHAT_SERVER", "http://localhost:8080"), "API base URL")
	root.PersistentFlags().StringVar(&opts.token, "token", os.Getenv("RAGCHAT_TOKEN"), "bearer token")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 5*time.Minute, "request timeout")

	root.AddCommand(
		newAskCommand(opts),
		newChatsCommand(opts),
		newHistoryCommand(opts),
		newDeleteCommand(opts),
		newSearchCommand(opts),
		newAttachmentURLCommand(opts),
		newModelsCommand(opts),
		newEventsCommand(),
	)
	return root
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func newAskCommand(opts *options) *cobra.Command {
	var chatID, mode, modelKey string

	cmd := &cobra.Command{
		Use:   "ask [prompt]",
		Short: "Send a prompt and stream the answer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()

			req := &model.ChatRequest{
				UserPrompt:         strings.Join(args, " "),
				ChatID:             chatID,
				Mode:               model.Mode(mode),
				Model:              modelKey,
				UserMessageID:      uuid.NewString(),
				AssistantMessageID: uuid.NewString(),
			}

			out, errOut := cmd.OutOrStdout(), cmd.ErrOrStderr()
			err := opts.client().Ask(ctx, req, func(ev Event) error {
				switch ev.Name {
				case model.EventMessage:
					text, err := ev.Text()
					if err != nil {
						return err
					}
					fmt.Fprint(out, text)
				case model.EventNewChat:
					fmt.Fprintln(errOut)
					fmt.Fprintf(errOut, "new chat: %s\n", newChatID(ev))
				default:
					text, err := ev.Text()
					if err != nil {
						return err
					}
					fmt.Fprintf(errOut, "%s: %s\n", ev.Name, text)
				}
				return nil
			})
			fmt.Fprintln(out)
			return err
		},
	}

	cmd.Flags().StringVar(&chatID, "chat", "", "continue an existing chat")
	cmd.Flags().StringVar(&mode, "mode", string(model.ModeKnowledgeBase), "knowledge_base or general")
	cmd.Flags().StringVar(&modelKey, "model", "", "model key (see `chatctl models`)")
	return cmd
}

func newChatID(ev Event) string {
	var conv model.Conversation
	if err := json.Unmarshal([]byte(ev.Data), &conv); err != nil {
		return "?"
	}
	return conv.ID
}

func newChatsCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "chats",
		Short: "List conversations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := opts.client().Chats(cmd.Context())
			if err != nil {
				return err
			}
			for _, item := range items {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", item.ID, item.Title)
			}
			return nil
		},
	}
}

func newHistoryCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "history [chat-id]",
		Short: "Print the turns of a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			turns, err := opts.client().History(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			for _, t := range turns {
				line := fmt.Sprintf("[%s] %s", t.Role, t.Content)
				if t.Attachment != nil {
					line += fmt.Sprintf(" (attachment: %s)", t.Attachment.FileName)
				}
				fmt.Fprintln(cmd.OutOrStdout(), line)
			}
			return nil
		},
	}
}

func newDeleteCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "delete [chat-id]",
		Short: "Delete a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.client().Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		},
	}
}

func newSearchCommand(opts *options) *cobra.Command {
	var limit, offset int

	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search conversation titles and turns",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := opts.client().Search(cmd.Context(), strings.Join(args, " "), limit, offset)
			if err != nil {
				return err
			}
			for _, r := range resp.Results {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\t%s\n", r.ChatID, r.MatchType, r.Title, r.MatchedContent)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "%d of %d results\n", len(resp.Results), resp.TotalCount)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "results per page (server default when zero)")
	cmd.Flags().IntVar(&offset, "offset", 0, "results to skip")
	return cmd
}

func newAttachmentURLCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "attachment-url [s3-key]",
		Short: "Print a short-lived download URL for a stored attachment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := opts.client().AttachmentURL(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), resp.PresignedURL)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", time.UnixMilli(resp.ExpiresAt).UTC().Format(time.RFC3339))
			return nil
		},
	}
}

func newModelsCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the model keys the server can route",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			def, keys, err := opts.client().Models(cmd.Context())
			if err != nil {
				return err
			}
			for _, k := range keys {
				marker := " "
				if k == def {
					marker = "*"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", marker, k)
			}
			return nil
		},
	}
}

func newEventsCommand() *cobra.Command {
	var natsURL, userID string
	var after uint64
	var limit int

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Read completed-turn events for a subject from JetStream",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == "" {
				return errors.New("--user is required")
			}
			ctx := cmd.Context()

			client, err := natsclient.Connect(ctx, natsclient.Config{URL: natsURL}, logger.NewNop())
			if err != nil {
				return err
			}
			defer client.Close()

			events, last, err := natsclient.NewTurnPublisher(client).RecentTurns(ctx, userID, after, limit)
			if err != nil {
				return err
			}
			for _, ev := range events {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\t%s\t%d chars\n",
					time.UnixMilli(ev.CreatedAt).UTC().Format(time.RFC3339), ev.ChatID, ev.Mode, ev.Model, ev.ResponseChars)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "last sequence: %d\n", last)
			return nil
		},
	}

	cmd.Flags().StringVar(&natsURL, "nats", envOr("NATS_URL", "nats://localhost:4222"), "NATS server URL")
	cmd.Flags().StringVar(&userID, "user", "", "subject whose turns to read")
	cmd.Flags().Uint64Var(&after, "after", 0, "only events after this stream sequence")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum events to read")
	return cmd
}
