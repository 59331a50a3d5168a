package main

import (
	"cmp"
	"fmt"

	"github.com/picatz/apistyles"
	"github.com/picatz/apistyles/internal/chat"
	"github.com/picatz/apistyles/internal/repl"
	"github.com/picatz/apistyles/internal/tools"
	"github.com/picatz/apistyles/internal/tools/weather"
	"github.com/spf13/cobra"
)

func newChatCommand(a *app) *cobra.Command {
	var (
		system string
		stream bool
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat in the turn-based style, replaying the message list every turn",
		Args:  cobra.NoArgs,
	}
	cmd.Flags().StringVar(&system, "system", "", "system prompt (default from the config file)")
	cmd.Flags().BoolVar(&stream, "stream", false, "write replies as they arrive instead of rendering markdown")

	cmd.RunE = a.run(func(cmd *cobra.Command, args []string) error {
		client, err := a.client()
		if err != nil {
			return err
		}

		registry, err := tools.NewRegistry(weather.Tool())
		if err != nil {
			return err
		}

		opts := []chat.Option{
			chat.WithTools(registry),
			chat.WithLimits(a.cfg.RateLimiters().For(apistyles.StyleTurnBased)),
			chat.WithTranscript(a.transcript),
			chat.WithMaxToolRounds(a.cfg.Conversation.MaxToolRounds),
			chat.WithMaxSchemaRetries(a.cfg.Conversation.MaxSchemaRetries),
			chat.WithCompaction(int64(a.cfg.Conversation.CompactAtTokens)),
			chat.WithLogger(a.logger),
		}
		if prompt := cmp.Or(system, a.cfg.Conversation.SystemPrompt); prompt != "" {
			opts = append(opts, chat.WithSystemPrompt(prompt))
		}

		c := chat.New(client, a.cfg.Models.Chat, opts...)
		return runSession(cmd, a, repl.Chat(c), stream)
	})

	return cmd
}

// runSession drives conv interactively on the command's input and output.
func runSession(cmd *cobra.Command, a *app, conv repl.Conversation, stream bool) error {
	session, restore, err := repl.NewSession(conv, a.transcript, cmd.InOrStdin(), cmd.OutOrStdout())
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	defer restore()
	session.Stream = stream

	session.Run(cmd.Context())

	a.logger.InfoContext(cmd.Context(), "session ended",
		"style", conv.Style(),
		"conversation", conv.ID(),
		"usage", conv.Usage().String(),
	)
	return nil
}
