package repl

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// CommandFunc executes a command.
type CommandFunc func(ctx context.Context, s *Session, input string)

// Command is a built-in session command.
type Command struct {
	// Name of the command. If Matches is nil, the command runs when the input
	// equals the name.
	Name string

	Description string

	// Matches, when set, decides whether the input runs this command.
	Matches func(input string) bool

	// Run executes the command. Commands without one are only documented.
	Run CommandFunc
}

// defaultHistory is how many records the history command shows.
const defaultHistory = 10

var builtinCommands = []Command{
	{
		Name:        "exit",
		Description: "Exit the session.",
	},
	{
		Name:        "clear",
		Description: "Clear the terminal screen.",
		Run: func(ctx context.Context, s *Session, input string) {
			s.clearScreen()
		},
	},
	{
		Name:        "erase",
		Description: "Start the conversation over.",
		Run: func(ctx context.Context, s *Session, input string) {
			s.Conversation.Reset()
			s.OutWriter.WriteString("Conversation erased.\n")
		},
	},
	{
		Name:        "erase all",
		Description: "Start over and delete the transcript and any state stored on the service.",
		Run: func(ctx context.Context, s *Session, input string) {
			s.OutWriter.WriteString("\nAre you sure? (y/n): ")
			s.OutWriter.Flush()

			confirmation, err := s.Terminal.ReadLine()
			if err != nil {
				s.OutWriter.WriteString(fmt.Sprintf("Error reading confirmation: %s\n", err))
				return
			}
			if strings.ToLower(strings.TrimSpace(confirmation)) != "y" {
				s.OutWriter.WriteString("Nothing erased.\n")
				return
			}

			id := s.Conversation.ID()
			if p, ok := s.Conversation.(Purger); ok {
				if err := p.Purge(ctx); err != nil {
					s.OutWriter.WriteString(fmt.Sprintf("Error deleting stored responses: %s\n", err))
				}
			}
			s.Conversation.Reset()

			if s.Transcript != nil {
				if err := s.Transcript.Forget(ctx, id); err != nil {
					s.OutWriter.WriteString(fmt.Sprintf("Error deleting transcript: %s\n", err))
					return
				}
			}
			s.OutWriter.WriteString("Conversation and stored state erased.\n")
		},
	},
	{
		Name:        "help",
		Description: "Show help for commands.",
		Run: func(ctx context.Context, s *Session, input string) {
			s.ShowHelp()
		},
	},
	{
		Name:        "tokens",
		Description: "Show what the conversation has cost so far.",
		Run: func(ctx context.Context, s *Session, input string) {
			u := s.Conversation.Usage()
			s.OutWriter.WriteString(fmt.Sprintf("Tokens used: %d (in=%d out=%d)\n", u.TotalTokens, u.InputTokens, u.OutputTokens))
			s.OutWriter.WriteString(fmt.Sprintf("Requests: %d, items sent: %d, held: %d\n", u.Requests, u.ItemsSent, s.Conversation.Len()))
		},
	},
	{
		Name:        "history",
		Description: "Show the recorded turns of this conversation; 'history <n>' limits the count.",
		Matches: func(input string) bool {
			parts := strings.Fields(input)
			switch {
			case len(parts) == 1:
				return parts[0] == "history"
			case len(parts) == 2 && parts[0] == "history":
				_, err := strconv.Atoi(parts[1])
				return err == nil
			default:
				return false
			}
		},
		Run: func(ctx context.Context, s *Session, input string) {
			n := defaultHistory
			if parts := strings.Fields(input); len(parts) == 2 {
				n, _ = strconv.Atoi(parts[1])
			}
			if n <= 0 {
				s.OutWriter.WriteString("Invalid number of turns to show.\n")
				return
			}

			if s.Transcript == nil {
				s.OutWriter.WriteString("No transcript is being kept.\n")
				return
			}

			records, err := s.Transcript.Conversation(ctx, s.Conversation.ID())
			if err != nil {
				s.OutWriter.WriteString(fmt.Sprintf("Error reading transcript: %s\n", err))
				return
			}
			if len(records) == 0 {
				s.OutWriter.WriteString("No turns recorded yet.\n")
				return
			}
			if len(records) > n {
				records = records[len(records)-n:]
			}

			for _, rec := range records {
				s.OutWriter.WriteString(fmt.Sprintf("\tuser: %s\n", rec.Request))
				for _, call := range rec.ToolCalls {
					s.OutWriter.WriteString(fmt.Sprintf("\ttool %s(%s): %s\n", call.Name, call.Arguments, call.Output))
				}
				s.OutWriter.WriteString(fmt.Sprintf("\tassistant: %s\n", rec.Response))
				s.OutWriter.WriteString(fmt.Sprintf("\ttokens: %d, items sent: %d\n", rec.Usage.TotalTokens, rec.Usage.ItemsSent))
				s.OutWriter.WriteString("---\n")
			}
		},
	},
}
