// Package chat implements the turn-based message list style on top of the
// chat completions endpoint.
//
// The caller owns the conversation: every request carries the whole history,
// tool calls come back as records on the assistant message and are answered
// with one tool message per call id before the history is replayed again.
package chat

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/openai/openai-go"
	"github.com/picatz/apistyles"
	"github.com/picatz/apistyles/internal/metrics"
	"github.com/picatz/apistyles/internal/storage"
	"github.com/picatz/apistyles/internal/tools"
)

// ErrNoChoices is returned when a completion comes back without any choice.
var ErrNoChoices = errors.New("completion has no choices")

// ErrIncomplete is returned when a completion stops before the model finished,
// at the token limit or by the content filter. The history is not extended
// with the partial message.
var ErrIncomplete = errors.New("completion incomplete")

// DefaultMaxSchemaRetries is how many corrective re-prompts SendJSON makes
// before giving up.
const DefaultMaxSchemaRetries = 2

var style = apistyles.StyleTurnBased.String()

// Conversation is a client-held message list. It is not safe for concurrent use.
type Conversation struct {
	Client *openai.Client
	Model  string
	System string

	// Messages is the full history, replayed with every request.
	Messages []openai.ChatCompletionMessageParamUnion

	Tools            *tools.Registry
	Limits           *apistyles.Limits
	MaxToolRounds    int
	MaxSchemaRetries int

	// CompactAt is the token count at which the history is summarized
	// before the next turn. Zero disables compaction.
	CompactAt int64

	// ID names the conversation in the transcript.
	ID         string
	Transcript *storage.Transcript
	Logger     *slog.Logger

	usage         apistyles.Usage
	historyTokens int64
}

// Option configures a Conversation.
type Option func(*Conversation)

// WithSystemPrompt sets the system message placed at the start of the history.
func WithSystemPrompt(prompt string) Option {
	return func(c *Conversation) { c.System = prompt }
}

// WithTools makes the registry's tools available to the model.
func WithTools(r *tools.Registry) Option {
	return func(c *Conversation) { c.Tools = r }
}

// WithLimits sets the client-side rate limits waited on before each request.
func WithLimits(l *apistyles.Limits) Option {
	return func(c *Conversation) { c.Limits = l }
}

// WithTranscript records every completed turn under the conversation id.
func WithTranscript(t *storage.Transcript) Option {
	return func(c *Conversation) { c.Transcript = t }
}

// WithMaxToolRounds bounds the tool call loop of a single turn.
func WithMaxToolRounds(n int) Option {
	return func(c *Conversation) { c.MaxToolRounds = n }
}

// WithMaxSchemaRetries bounds the corrective re-prompts of SendJSON.
func WithMaxSchemaRetries(n int) Option {
	return func(c *Conversation) { c.MaxSchemaRetries = n }
}

// WithLogger sets the logger for request and tool events.
func WithLogger(l *slog.Logger) Option {
	return func(c *Conversation) { c.Logger = l }
}

// New starts an empty conversation.
func New(client *openai.Client, model string, opts ...Option) *Conversation {
	c := &Conversation{
		Client:           client,
		Model:            cmp.Or(model, apistyles.DefaultModel(apistyles.StyleTurnBased)),
		MaxToolRounds:    tools.DefaultMaxToolRounds,
		MaxSchemaRetries: DefaultMaxSchemaRetries,
		Logger:           slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.Reset()
	return c
}

// Reset drops the history, keeping only the system prompt, and starts a new
// transcript conversation.
func (c *Conversation) Reset() {
	c.Messages = nil
	if c.System != "" {
		c.Messages = append(c.Messages, openai.SystemMessage(c.System))
	}
	c.usage = apistyles.Usage{}
	c.historyTokens = 0
	c.ID = storage.NewConversationID()
}

// Len is the number of messages the next request will replay, before the new
// user message is added.
func (c *Conversation) Len() int {
	return len(c.Messages)
}

// Usage is what the conversation has cost since it was started or reset.
func (c *Conversation) Usage() apistyles.Usage {
	return c.usage
}

// Turn is the outcome of one user message.
type Turn struct {
	// Text is the final assistant content.
	Text string

	// ResponseID is the id of the last completion.
	ResponseID string

	// ToolCalls are the calls executed on the way to Text.
	ToolCalls []storage.ToolCall

	// HistoryLen is the number of messages sent with the last request.
	HistoryLen int

	Usage apistyles.Usage
}

// Send appends text as a user message and runs the tool loop until the model
// answers without tool calls. On error the history is left as it was before
// the call.
func (c *Conversation) Send(ctx context.Context, text string) (*Turn, error) {
	c.maybeCompact(ctx)

	mark := len(c.Messages)
	c.Messages = append(c.Messages, openai.UserMessage(text))

	turn := &Turn{}
	for round := 0; ; round++ {
		params := c.params()
		if c.Tools.Len() > 0 {
			params.Tools = c.Tools.ChatTools()
			params.ToolChoice = openai.ChatCompletionToolChoiceOptionUnionParam{OfAuto: openai.String("auto")}
		}

		msg, err := c.complete(ctx, params, turn)
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

		for _, call := range msg.ToolCalls {
			c.runTool(ctx, turn, call.ID, call.Function.Name, call.Function.Arguments)
		}
	}

	c.record(ctx, text, turn)
	return turn, nil
}

// runTool executes one call and appends its tool message. Failures are
// reported to the model as an error object rather than ending the turn.
func (c *Conversation) runTool(ctx context.Context, turn *Turn, id, name, args string) storage.ToolCall {
	out, err := c.Tools.Output(ctx, name, args)

	call := storage.ToolCall{ID: id, Name: name, Arguments: args, Output: out}
	if err != nil {
		call.Error = err.Error()
		c.Logger.WarnContext(ctx, "tool call failed", "style", style, "tool", name, "error", err)
	}

	c.Messages = append(c.Messages, openai.ToolMessage(out, id))
	turn.ToolCalls = append(turn.ToolCalls, call)
	turn.Usage.ToolCalls++
	c.usage.ToolCalls++
	return call
}

func (c *Conversation) params() openai.ChatCompletionNewParams {
	return openai.ChatCompletionNewParams{
		Model:    c.Model,
		Messages: c.Messages,
	}
}

// waitAndMeasure waits on the rate limits for a request and returns the
// usage it accounts for before the response is known.
func (c *Conversation) waitAndMeasure(ctx context.Context, params openai.ChatCompletionNewParams) (apistyles.Usage, error) {
	size := 0
	if b, err := json.Marshal(params.Messages); err == nil {
		size = len(b)
	}

	if err := c.Limits.Wait(ctx, apistyles.EstimateTokens(size)); err != nil {
		return apistyles.Usage{}, err
	}

	return apistyles.Usage{
		Requests:  1,
		ItemsSent: int64(len(params.Messages)),
		BytesSent: int64(size),
	}, nil
}

func (c *Conversation) account(ctx context.Context, turn *Turn, u apistyles.Usage, usage openai.CompletionUsage, id string) {
	u.InputTokens = usage.PromptTokens
	u.OutputTokens = usage.CompletionTokens
	u.TotalTokens = usage.TotalTokens

	metrics.ObserveTokens(style, c.Model, u.InputTokens, u.OutputTokens)

	c.usage.Add(u)
	c.historyTokens = u.TotalTokens
	turn.Usage.Add(u)
	turn.ResponseID = id
	turn.HistoryLen = int(u.ItemsSent)

	c.Logger.DebugContext(ctx, "chat completion",
		"id", id,
		"model", c.Model,
		"messages", u.ItemsSent,
		"bytes", u.BytesSent,
		"tokens", u.TotalTokens,
	)
}

func (c *Conversation) complete(ctx context.Context, params openai.ChatCompletionNewParams, turn *Turn) (*openai.ChatCompletionMessage, error) {
	u, err := c.waitAndMeasure(ctx, params)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	resp, err := c.Client.Chat.Completions.New(ctx, params)
	metrics.ObserveRequest(style, c.Model, len(params.Messages), started, err)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat completion: %w", err)
	}

	c.account(ctx, turn, u, resp.Usage, resp.ID)

	if len(resp.Choices) == 0 {
		return nil, ErrNoChoices
	}
	if err := finished(resp.Choices[0].FinishReason); err != nil {
		return nil, err
	}
	return &resp.Choices[0].Message, nil
}

func finished(reason string) error {
	switch reason {
	case "length", "content_filter":
		return fmt.Errorf("%w: finish_reason %s", ErrIncomplete, reason)
	}
	return nil
}

func (c *Conversation) record(ctx context.Context, request string, turn *Turn) {
	if c.Transcript == nil {
		return
	}

	_, err := c.Transcript.Append(ctx, storage.Record{
		Style:        style,
		Model:        c.Model,
		Conversation: c.ID,
		Request:      request,
		Response:     turn.Text,
		ResponseID:   turn.ResponseID,
		ToolCalls:    turn.ToolCalls,
		HistoryLen:   turn.HistoryLen,
		Usage:        turn.Usage,
	})
	if err != nil {
		c.Logger.WarnContext(ctx, "failed to record transcript", "style", style, "error", err)
	}
}
