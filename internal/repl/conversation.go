package repl

import (
	"context"
	"fmt"
	"io"

	"github.com/picatz/apistyles"
	"github.com/picatz/apistyles/internal/chat"
	"github.com/picatz/apistyles/internal/responses"
)

// Conversation is the state a Session sends messages through.
type Conversation interface {
	// Send delivers the user's text and returns the model's reply.
	Send(ctx context.Context, text string) (string, error)

	// Reset starts the conversation over.
	Reset()

	// Len is the amount of state held: messages for the turn-based style,
	// chained responses for the managed one.
	Len() int

	Usage() apistyles.Usage
	Style() apistyles.Style

	// ID names the conversation in the transcript.
	ID() string
}

// Purger is implemented by conversations that keep state on the service.
type Purger interface {
	Purge(ctx context.Context) error
}

// Streamer is implemented by conversations that can write a reply to w as it
// arrives. The returned text is the complete reply.
type Streamer interface {
	Stream(ctx context.Context, text string, w io.Writer) (string, error)
}

// event writes a faint line describing something other than reply text,
// starting a new line if text was being written.
func event(w io.Writer, inText *bool, format string, args ...any) {
	if *inText {
		fmt.Fprintln(w)
		*inText = false
	}
	fmt.Fprintln(w, styleFaint.Render("· "+fmt.Sprintf(format, args...)))
}

// Chat adapts a turn-based conversation.
func Chat(c *chat.Conversation) Conversation {
	return chatConversation{c}
}

type chatConversation struct {
	c *chat.Conversation
}

func (a chatConversation) Send(ctx context.Context, text string) (string, error) {
	turn, err := a.c.Send(ctx, text)
	if err != nil {
		return "", err
	}
	return turn.Text, nil
}

// Stream writes raw content fragments as they arrive. Executed tool calls
// are noted on their own line.
func (a chatConversation) Stream(ctx context.Context, text string, w io.Writer) (string, error) {
	var inText bool
	turn, err := a.c.Stream(ctx, text, func(d chat.Delta) error {
		switch {
		case d.Text != "":
			inText = true
			_, err := io.WriteString(w, d.Text)
			return err
		case d.Refusal != "":
			inText = true
			_, err := io.WriteString(w, d.Refusal)
			return err
		case d.ToolCall != nil:
			event(w, &inText, "tool %s(%s)", d.ToolCall.Name, d.ToolCall.Arguments)
		}
		return nil
	})
	if inText {
		fmt.Fprintln(w)
	}
	if err != nil {
		return "", err
	}
	return turn.Text, nil
}

func (a chatConversation) Reset()                 { a.c.Reset() }
func (a chatConversation) Len() int               { return a.c.Len() }
func (a chatConversation) Usage() apistyles.Usage { return a.c.Usage() }
func (a chatConversation) Style() apistyles.Style { return apistyles.StyleTurnBased }
func (a chatConversation) ID() string             { return a.c.ID }

// Responses adapts a managed thread. Purging deletes every response the
// thread stored on the service.
func Responses(t *responses.Thread) Conversation {
	return threadConversation{t}
}

type threadConversation struct {
	t *responses.Thread
}

func (a threadConversation) Send(ctx context.Context, text string) (string, error) {
	turn, err := a.t.Send(ctx, text)
	if err != nil {
		return "", err
	}
	return turn.Text, nil
}

// Stream writes output text deltas as they arrive and every other lifecycle
// event on its own line.
func (a threadConversation) Stream(ctx context.Context, text string, w io.Writer) (string, error) {
	var inText bool
	turn, err := a.t.Stream(ctx, text, func(ev responses.Event) error {
		switch ev.Type {
		case responses.EventOutputTextDelta:
			inText = true
			_, err := io.WriteString(w, ev.Delta)
			return err
		case responses.EventFunctionCallArgsDone:
			event(w, &inText, "%s %s", ev.Type, ev.Arguments)
		case responses.EventToolOutput:
			event(w, &inText, "%s %s", ev.Type, ev.ToolCall.Name)
		case responses.EventFailed, responses.EventIncomplete, responses.EventError:
			event(w, &inText, "%s %s", ev.Type, ev.Message)
		default:
			event(w, &inText, "%s %s", ev.Type, ev.ResponseID)
		}
		return nil
	})
	if inText {
		fmt.Fprintln(w)
	}
	if err != nil {
		return "", err
	}
	return turn.Text, nil
}

func (a threadConversation) Reset()                          { a.t.Reset() }
func (a threadConversation) Len() int                        { return a.t.Len() }
func (a threadConversation) Usage() apistyles.Usage          { return a.t.Usage() }
func (a threadConversation) Style() apistyles.Style          { return apistyles.StyleManaged }
func (a threadConversation) ID() string                      { return a.t.ID }
func (a threadConversation) Purge(ctx context.Context) error { return a.t.DeleteAll(ctx) }
