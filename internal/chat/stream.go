package chat

import (
	"context"
	"fmt"
	"time"

	"github.com/openai/openai-go"
	"github.com/picatz/apistyles/internal/metrics"
	"github.com/picatz/apistyles/internal/storage"
	"github.com/picatz/apistyles/internal/tools"
)

// Delta is one piece of a streamed turn. Exactly one field is set.
type Delta struct {
	// Text is a raw content fragment, in arrival order.
	Text string

	// Refusal is a refusal fragment.
	Refusal string

	// ToolCall is set once a requested tool call has been executed.
	ToolCall *storage.ToolCall
}

// Stream is Send with the reply streamed to fn as it arrives. Tool calls that
// complete in the stream are executed and the history is replayed in a new
// stream, the same as Send. An error returned by fn stops the turn.
func (c *Conversation) Stream(ctx context.Context, text string, fn func(Delta) error) (*Turn, error) {
	c.maybeCompact(ctx)

	mark := len(c.Messages)
	c.Messages = append(c.Messages, openai.UserMessage(text))

	turn := &Turn{}
	for round := 0; ; round++ {
		params := c.params()
		params.StreamOptions = openai.ChatCompletionStreamOptionsParam{IncludeUsage: openai.Bool(true)}
		if c.Tools.Len() > 0 {
			params.Tools = c.Tools.ChatTools()
			params.ToolChoice = openai.ChatCompletionToolChoiceOptionUnionParam{OfAuto: openai.String("auto")}
		}

		msg, err := c.streamOnce(ctx, params, turn, fn)
		if err != nil {
			c.Messages = c.Messages[:mark]
			return nil, err
		}
		c.Messages = append(c.Messages, msg.ToParam())

		if len(msg.ToolCalls) == 0 {
			turn.Text = msg.Content
			break
		}

		if round >= c.MaxToolRounds {
			c.Messages = c.Messages[:mark]
			return nil, fmt.Errorf("%w: stopped after %d rounds", tools.ErrMaxToolRounds, round+1)
		}

		for _, tc := range msg.ToolCalls {
			call := c.runTool(ctx, turn, tc.ID, tc.Function.Name, tc.Function.Arguments)
			if err := fn(Delta{ToolCall: &call}); err != nil {
				c.Messages = c.Messages[:mark]
				return nil, err
			}
		}
	}

	c.record(ctx, text, turn)
	return turn, nil
}

func (c *Conversation) streamOnce(ctx context.Context, params openai.ChatCompletionNewParams, turn *Turn, fn func(Delta) error) (*openai.ChatCompletionMessage, error) {
	u, err := c.waitAndMeasure(ctx, params)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	stream := c.Client.Chat.Completions.NewStreaming(ctx, params)
	defer stream.Close()

	acc := openai.ChatCompletionAccumulator{}
	for stream.Next() {
		chunk := stream.Current()
		if !acc.AddChunk(chunk) {
			err = fmt.Errorf("failed to accumulate chat completion chunk %q", chunk.ID)
			break
		}

		if len(chunk.Choices) == 0 {
			continue
		}

		delta := chunk.Choices[0].Delta
		switch {
		case delta.Content != "":
			err = fn(Delta{Text: delta.Content})
		case delta.Refusal != "":
			err = fn(Delta{Refusal: delta.Refusal})
		}
		if err != nil {
			break
		}
	}
	if err == nil {
		if err = stream.Err(); err != nil {
			err = fmt.Errorf("failed to stream chat completion: %w", err)
		}
	}

	metrics.ObserveRequest(style, c.Model, len(params.Messages), started, err)
	if err != nil {
		return nil, err
	}

	c.account(ctx, turn, u, acc.Usage, acc.ID)

	if len(acc.Choices) == 0 {
		return nil, ErrNoChoices
	}
	if err := finished(acc.Choices[0].FinishReason); err != nil {
		return nil, err
	}
	return &acc.Choices[0].Message, nil
}
