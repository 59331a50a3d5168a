package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newHistoryCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [conversation]",
		Short: "List recorded conversations, or show the turns of one",
		Args:  cobra.MaximumNArgs(1),
	}

	cmd.RunE = a.run(func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()

		if len(args) == 0 {
			ids, err := a.transcript.Conversations(cmd.Context())
			if err != nil {
				return err
			}
			for _, id := range ids {
				records, err := a.transcript.Conversation(cmd.Context(), id)
				if err != nil {
					return err
				}
				if len(records) == 0 {
					continue
				}
				first := records[0]
				fmt.Fprintf(out, "%s  %-9s  %2d turns  %s\n", id, first.Style, len(records), first.CreatedAt.Local().Format(time.DateTime))
			}
			return nil
		}

		records, err := a.transcript.Conversation(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if len(records) == 0 {
			return fmt.Errorf("no conversation %q", args[0])
		}

		for _, rec := range records {
			fmt.Fprintf(out, "[%s] %s %s\n", rec.CreatedAt.Local().Format(time.DateTime), rec.Style, rec.Model)
			fmt.Fprintf(out, "user: %s\n", rec.Request)
			for _, call := range rec.ToolCalls {
				fmt.Fprintf(out, "tool: %s(%s) -> %s\n", call.Name, call.Arguments, call.Output)
			}
			fmt.Fprintf(out, "assistant: %s\n", rec.Response)
			if rec.ResponseID != "" {
				fmt.Fprintf(out, "response: %s (previous %q)\n", rec.ResponseID, rec.PreviousResponseID)
			}
			fmt.Fprintf(out, "%s\n\n", rec.Usage)
		}
		return nil
	})
	return cmd
}
