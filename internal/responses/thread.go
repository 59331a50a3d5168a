package responses

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/responses"
	"github.com/picatz/apistyles"
	"github.com/picatz/apistyles/internal/metrics"
	"github.com/picatz/apistyles/internal/storage"
	"github.com/picatz/apistyles/internal/tools"
)

// ErrFailed is returned when the service reports a response as failed or
// incomplete. The chain does not advance onto such a response.
var ErrFailed = errors.New("response failed")

var style = apistyles.StyleManaged.String()

// Thread is a conversation whose state lives on the service. It is not safe
// for concurrent use.
type Thread struct {
	Client       *openai.Client
	Model        string
	Instructions string

	// ParseModel is used by Parse; it defaults to Model.
	ParseModel string

	Tools         *tools.Registry
	Limits        *apistyles.Limits
	MaxToolRounds int

	// PreviousResponseID is the id the next request continues from. Empty
	// starts a new conversation.
	PreviousResponseID string

	// ID names the conversation in the transcript.
	ID         string
	Transcript *storage.Transcript
	Logger     *slog.Logger

	chain   []string
	created []string
	usage   apistyles.Usage
}

// Option configures a Thread.
type Option func(*Thread)

// WithInstructions sets the system level instructions sent with every request.
func WithInstructions(s string) Option {
	return func(t *Thread) { t.Instructions = s }
}

// WithParseModel sets the model used for structured output requests.
func WithParseModel(model string) Option {
	return func(t *Thread) { t.ParseModel = model }
}

// WithTools makes the registry's tools available to the model.
func WithTools(r *tools.Registry) Option {
	return func(t *Thread) { t.Tools = r }
}

// WithLimits sets the client-side rate limits waited on before each request.
func WithLimits(l *apistyles.Limits) Option {
	return func(t *Thread) { t.Limits = l }
}

// WithTranscript records every completed turn under the thread id.
func WithTranscript(tr *storage.Transcript) Option {
	return func(t *Thread) { t.Transcript = tr }
}

// WithMaxToolRounds bounds the function call loop of a single turn.
func WithMaxToolRounds(n int) Option {
	return func(t *Thread) { t.MaxToolRounds = n }
}

// WithLogger sets the logger for request and tool events.
func WithLogger(l *slog.Logger) Option {
	return func(t *Thread) { t.Logger = l }
}

// New starts an empty thread.
func New(client *openai.Client, model string, opts ...Option) *Thread {
	t := &Thread{
		Client:        client,
		Model:         cmp.Or(model, apistyles.DefaultModel(apistyles.StyleManaged)),
		MaxToolRounds: tools.DefaultMaxToolRounds,
		Logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.Reset()
	return t
}

// Reset forgets the current chain so the next request starts a new
// conversation. Responses created so far remain stored and are still removed
// by DeleteAll.
func (t *Thread) Reset() {
	t.PreviousResponseID = ""
	t.chain = nil
	t.usage = apistyles.Usage{}
	t.ID = storage.NewConversationID()
}

// Len is the number of responses in the current chain.
func (t *Thread) Len() int {
	return len(t.chain)
}

// Usage is what the thread has cost since it was started or reset.
func (t *Thread) Usage() apistyles.Usage {
	return t.usage
}

// Created lists every response id this thread created, oldest first.
func (t *Thread) Created() []string {
	return append([]string(nil), t.created...)
}

// Turn is the outcome of one user message.
type Turn struct {
	Text       string
	ResponseID string

	// PreviousResponseID is what the turn continued from.
	PreviousResponseID string

	ToolCalls []storage.ToolCall

	// ItemsSent is the number of input items in the last request.
	ItemsSent int

	Usage apistyles.Usage
}

func userInput(text string) responses.ResponseInputParam {
	return responses.ResponseInputParam{
		responses.ResponseInputItemParamOfMessage(text, responses.EasyInputMessageRoleUser),
	}
}

func (t *Thread) params(model string, input responses.ResponseInputParam, withTools bool) responses.ResponseNewParams {
	params := responses.ResponseNewParams{
		Model: model,
		Input: responses.ResponseNewParamsInputUnion{OfInputItemList: input},
		Store: openai.Bool(true),
	}
	if t.Instructions != "" {
		params.Instructions = openai.String(t.Instructions)
	}
	if t.PreviousResponseID != "" {
		params.PreviousResponseID = openai.String(t.PreviousResponseID)
	}
	if withTools && t.Tools.Len() > 0 {
		params.Tools = t.Tools.ResponseTools()
		params.ToolChoice = responses.ResponseNewParamsToolChoiceUnion{
			OfToolChoiceMode: openai.Opt(responses.ToolChoiceOptionsAuto),
		}
	}
	return params
}

// Send continues the thread with text and runs any function calls the model
// asks for, answering each round with only the function_call_output items.
// On error the thread continues from where it was before the call.
func (t *Thread) Send(ctx context.Context, text string) (*Turn, error) {
	mark := t.checkpoint()
	turn := &Turn{PreviousResponseID: t.PreviousResponseID}

	input := userInput(text)
	for round := 0; ; round++ {
		resp, err := t.create(ctx, t.params(t.Model, input, true), turn)
		if err != nil {
			t.rewind(mark)
			return nil, err
		}

		calls := functionCalls(resp)
		if len(calls) == 0 {
			turn.Text = resp.OutputText()
			break
		}

		if round >= t.MaxToolRounds {
			t.rewind(mark)
			return nil, fmt.Errorf("%w: stopped after %d rounds", tools.ErrMaxToolRounds, round+1)
		}

		input = t.runTools(ctx, turn, calls)
	}

	t.record(ctx, text, turn)
	return turn, nil
}

func functionCalls(resp *responses.Response) []responses.ResponseOutputItemUnion {
	var calls []responses.ResponseOutputItemUnion
	for _, item := range resp.Output {
		if item.Type == "function_call" {
			calls = append(calls, item)
		}
	}
	return calls
}

// runTools executes calls and returns the input items that answer them.
// Failures are reported to the model as an error object.
func (t *Thread) runTools(ctx context.Context, turn *Turn, calls []responses.ResponseOutputItemUnion) responses.ResponseInputParam {
	var input responses.ResponseInputParam
	for _, item := range calls {
		out, err := t.Tools.Output(ctx, item.Name, item.Arguments)

		call := storage.ToolCall{ID: item.CallID, Name: item.Name, Arguments: item.Arguments, Output: out}
		if err != nil {
			call.Error = err.Error()
			t.Logger.WarnContext(ctx, "tool call failed", "style", style, "tool", item.Name, "error", err)
		}

		turn.ToolCalls = append(turn.ToolCalls, call)
		turn.Usage.ToolCalls++
		t.usage.ToolCalls++

		input = append(input, responses.ResponseInputItemParamOfFunctionCallOutput(item.CallID, out))
	}
	return input
}

type checkpoint struct {
	previous string
	chain    int
}

func (t *Thread) checkpoint() checkpoint {
	return checkpoint{previous: t.PreviousResponseID, chain: len(t.chain)}
}

func (t *Thread) rewind(m checkpoint) {
	t.PreviousResponseID = m.previous
	t.chain = t.chain[:m.chain]
}

func (t *Thread) waitAndMeasure(ctx context.Context, params responses.ResponseNewParams) (apistyles.Usage, error) {
	items := params.Input.OfInputItemList

	size := 0
	if b, err := json.Marshal(items); err == nil {
		size = len(b)
	}

	if err := t.Limits.Wait(ctx, apistyles.EstimateTokens(size)); err != nil {
		return apistyles.Usage{}, err
	}

	return apistyles.Usage{
		Requests:  1,
		ItemsSent: int64(len(items)),
		BytesSent: int64(size),
	}, nil
}

// accept accounts for a finished response and advances the chain to it.
func (t *Thread) accept(ctx context.Context, turn *Turn, u apistyles.Usage, resp *responses.Response) error {
	u.InputTokens = resp.Usage.InputTokens
	u.OutputTokens = resp.Usage.OutputTokens
	u.TotalTokens = resp.Usage.TotalTokens

	metrics.ObserveTokens(style, string(resp.Model), u.InputTokens, u.OutputTokens)

	t.usage.Add(u)
	turn.Usage.Add(u)
	turn.ItemsSent = int(u.ItemsSent)

	if resp.ID != "" {
		t.created = append(t.created, resp.ID)
	}

	t.Logger.DebugContext(ctx, "response",
		"id", resp.ID,
		"previous_response_id", t.PreviousResponseID,
		"status", resp.Status,
		"items", u.ItemsSent,
		"bytes", u.BytesSent,
		"tokens", u.TotalTokens,
	)

	switch resp.Status {
	case responses.ResponseStatusFailed:
		return fmt.Errorf("%w: %s: %s", ErrFailed, resp.Error.Code, resp.Error.Message)
	case responses.ResponseStatusIncomplete:
		return fmt.Errorf("%w: incomplete: %s", ErrFailed, resp.IncompleteDetails.Reason)
	}

	t.PreviousResponseID = resp.ID
	t.chain = append(t.chain, resp.ID)
	turn.ResponseID = resp.ID
	return nil
}

func (t *Thread) create(ctx context.Context, params responses.ResponseNewParams, turn *Turn) (*responses.Response, error) {
	u, err := t.waitAndMeasure(ctx, params)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	resp, err := t.Client.Responses.New(ctx, params)
	metrics.ObserveRequest(style, params.Model, len(params.Input.OfInputItemList), started, err)
	if err != nil {
		return nil, fmt.Errorf("failed to create response: %w", err)
	}

	if err := t.accept(ctx, turn, u, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (t *Thread) record(ctx context.Context, request string, turn *Turn) {
	if t.Transcript == nil {
		return
	}

	_, err := t.Transcript.Append(ctx, storage.Record{
		Style:              style,
		Model:              t.Model,
		Conversation:       t.ID,
		Request:            request,
		Response:           turn.Text,
		ResponseID:         turn.ResponseID,
		PreviousResponseID: turn.PreviousResponseID,
		ToolCalls:          turn.ToolCalls,
		HistoryLen:         turn.ItemsSent,
		Usage:              turn.Usage,
	})
	if err != nil {
		t.Logger.WarnContext(ctx, "failed to record transcript", "style", style, "error", err)
	}
}

// Get retrieves a stored response.
func (t *Thread) Get(ctx context.Context, id string) (*responses.Response, error) {
	resp, err := t.Client.Responses.Get(ctx, id, responses.ResponseGetParams{})
	if err != nil {
		return nil, fmt.Errorf("failed to get response %q: %w", id, err)
	}
	return resp, nil
}

// Delete removes a stored response. Deleting a response in the current chain
// breaks continuation, so the thread is reset when that happens.
func (t *Thread) Delete(ctx context.Context, id string) error {
	if err := t.Client.Responses.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete response %q: %w", id, err)
	}

	t.forget(id)
	for _, c := range t.chain {
		if c == id {
			t.Reset()
			break
		}
	}
	return nil
}

// DeleteAll removes every stored response this thread created. Responses that
// are already gone are not an error.
func (t *Thread) DeleteAll(ctx context.Context) error {
	var errs []error
	for _, id := range t.Created() {
		err := t.Delete(ctx, id)

		var apiErr *openai.Error
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			t.forget(id)
			continue
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	t.Reset()
	return errors.Join(errs...)
}

func (t *Thread) forget(id string) {
	t.created = slices.DeleteFunc(t.created, func(c string) bool { return c == id })
}
