package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
)

// SummaryPrefix starts the system message that replaces compacted history.
const SummaryPrefix = "Summary of previous messages for context: "

var compactInstructions = strings.Join([]string{
	"You are an expert at summarizing conversations.",
	"Write a detailed recap of the given conversation, including all important details.",
	"Ignore irrelevant content.",
}, " ")

// WithCompaction summarizes the history into a single system message before a
// turn once the last request and its reply used at least tokens. Zero
// disables compaction.
func WithCompaction(tokens int64) Option {
	return func(c *Conversation) { c.CompactAt = tokens }
}

// maybeCompact runs Compact when the history has reached CompactAt. A failed
// compaction is logged and the turn goes ahead with the full history.
func (c *Conversation) maybeCompact(ctx context.Context) {
	if c.CompactAt <= 0 || c.historyTokens < c.CompactAt {
		return
	}

	if err := c.Compact(ctx); err != nil {
		c.Logger.WarnContext(ctx, "failed to compact history", "style", style, "tokens", c.historyTokens, "error", err)
	}
}

// Compact replaces everything after the system prompt with a model written
// summary of it. The summary request counts as a request in Usage, and the
// messages and tokens no longer replayed are added to ItemsCompacted and
// TokensCompacted.
func (c *Conversation) Compact(ctx context.Context) error {
	keep := 0
	if c.System != "" {
		keep = 1
	}
	if len(c.Messages) <= keep {
		return nil
	}

	text, err := render(c.Messages[keep:])
	if err != nil {
		return err
	}

	params := openai.ChatCompletionNewParams{
		Model: c.Model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(compactInstructions),
			openai.UserMessage(text),
		},
	}

	prior := c.historyTokens
	turn := &Turn{}
	msg, err := c.complete(ctx, params, turn)
	if err != nil {
		c.historyTokens = prior
		return fmt.Errorf("failed to summarize history: %w", err)
	}

	removed := len(c.Messages) - keep
	c.Messages = append(c.Messages[:keep:keep], openai.SystemMessage(SummaryPrefix+msg.Content))
	c.historyTokens = turn.Usage.OutputTokens

	c.usage.Compactions++
	c.usage.ItemsCompacted += int64(removed - 1)
	c.usage.TokensCompacted += max(0, prior-turn.Usage.OutputTokens)

	c.Logger.InfoContext(ctx, "compacted history",
		"style", style,
		"conversation", c.ID,
		"messages", removed,
		"tokens", prior,
	)
	return nil
}

type renderedMessage struct {
	Role      string          `json:"role"`
	Content   json.RawMessage `json:"content"`
	ToolCalls []struct {
		Function struct {
			Name      string `json:"name"`
			Arguments string `json:"arguments"`
		} `json:"function"`
	} `json:"tool_calls"`
}

// render writes msgs as "role:\ncontent" blocks for the summarizer.
func render(msgs []openai.ChatCompletionMessageParamUnion) (string, error) {
	var b strings.Builder
	for _, m := range msgs {
		raw, err := json.Marshal(m)
		if err != nil {
			return "", fmt.Errorf("failed to encode message: %w", err)
		}

		var rm renderedMessage
		if err := json.Unmarshal(raw, &rm); err != nil {
			return "", fmt.Errorf("failed to decode message: %w", err)
		}

		var content string
		if err := json.Unmarshal(rm.Content, &content); err != nil {
			content = string(rm.Content)
		}

		b.WriteString(rm.Role + ":\n")
		if content != "" && content != "null" {
			b.WriteString(content + "\n")
		}
		for _, call := range rm.ToolCalls {
			fmt.Fprintf(&b, "called %s(%s)\n", call.Function.Name, call.Function.Arguments)
		}
	}
	return b.String(), nil
}
