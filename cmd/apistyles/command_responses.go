package main

import (
	"cmp"
	"fmt"

	"github.com/picatz/apistyles"
	"github.com/picatz/apistyles/internal/repl"
	"github.com/picatz/apistyles/internal/responses"
	"github.com/picatz/apistyles/internal/tools"
	"github.com/picatz/apistyles/internal/tools/weather"
	"github.com/spf13/cobra"
)

func newResponsesCommand(a *app) *cobra.Command {
	var (
		instructions string
		stream       bool
	)

	cmd := &cobra.Command{
		Use:   "responses",
		Short: "Chat in the managed style, continuing from the previous response",
		Args:  cobra.NoArgs,
	}
	cmd.Flags().StringVar(&instructions, "instructions", "", "instructions sent with every request (default the configured system prompt)")
	cmd.Flags().BoolVar(&stream, "stream", false, "write output text and lifecycle events as they arrive")

	cmd.RunE = a.run(func(cmd *cobra.Command, args []string) error {
		t, err := a.thread(cmp.Or(instructions, a.cfg.Conversation.SystemPrompt))
		if err != nil {
			return err
		}
		return runSession(cmd, a, repl.Responses(t), stream)
	})

	cmd.AddCommand(
		newResponsesGetCommand(a),
		newResponsesDeleteCommand(a),
	)
	return cmd
}

func (a *app) thread(instructions string) (*responses.Thread, error) {
	client, err := a.client()
	if err != nil {
		return nil, err
	}

	registry, err := tools.NewRegistry(weather.Tool())
	if err != nil {
		return nil, err
	}

	opts := []responses.Option{
		responses.WithTools(registry),
		responses.WithParseModel(a.cfg.Models.Parse),
		responses.WithLimits(a.cfg.RateLimiters().For(apistyles.StyleManaged)),
		responses.WithTranscript(a.transcript),
		responses.WithMaxToolRounds(a.cfg.Conversation.MaxToolRounds),
		responses.WithLogger(a.logger),
	}
	if instructions != "" {
		opts = append(opts, responses.WithInstructions(instructions))
	}
	return responses.New(client, a.cfg.Models.Responses, opts...), nil
}

func newResponsesGetCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <response-id>",
		Short: "Show a stored response",
		Args:  cobra.ExactArgs(1),
	}

	cmd.RunE = a.run(func(cmd *cobra.Command, args []string) error {
		t, err := a.thread("")
		if err != nil {
			return err
		}

		resp, err := t.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "id:       %s\n", resp.ID)
		fmt.Fprintf(out, "status:   %s\n", resp.Status)
		fmt.Fprintf(out, "model:    %s\n", resp.Model)
		if resp.PreviousResponseID != "" {
			fmt.Fprintf(out, "previous: %s\n", resp.PreviousResponseID)
		}
		fmt.Fprintf(out, "tokens:   %d (in=%d out=%d)\n", resp.Usage.TotalTokens, resp.Usage.InputTokens, resp.Usage.OutputTokens)
		for _, item := range resp.Output {
			if item.Type == "function_call" {
				fmt.Fprintf(out, "call:     %s(%s)\n", item.Name, item.Arguments)
			}
		}
		if text := resp.OutputText(); text != "" {
			fmt.Fprintf(out, "\n%s\n", text)
		}
		return nil
	})
	return cmd
}

func newResponsesDeleteCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <response-id>...",
		Short: "Delete stored responses",
		Args:  cobra.MinimumNArgs(1),
	}

	cmd.RunE = a.run(func(cmd *cobra.Command, args []string) error {
		t, err := a.thread("")
		if err != nil {
			return err
		}

		for _, id := range args {
			if err := t.Delete(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted response %q\n", id)
		}
		return nil
	})
	return cmd
}
