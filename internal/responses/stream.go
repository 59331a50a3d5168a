package responses

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/openai/openai-go/responses"
	"github.com/picatz/apistyles/internal/metrics"
	"github.com/picatz/apistyles/internal/storage"
	"github.com/picatz/apistyles/internal/tools"
)

// EventType identifies a streamed lifecycle event.
type EventType string

// Events forwarded from the service.
const (
	EventCreated              EventType = "response.created"
	EventInProgress           EventType = "response.in_progress"
	EventOutputTextDelta      EventType = "response.output_text.delta"
	EventFunctionCallArgsDone EventType = "response.function_call_arguments.done"
	EventCompleted            EventType = "response.completed"
	EventFailed               EventType = "response.failed"
	EventIncomplete           EventType = "response.incomplete"
	EventError                EventType = "error"
)

// EventToolOutput is emitted locally after a requested function call ran.
const EventToolOutput EventType = "function_call_output"

// Event is one typed streaming event. Fields not relevant to Type are empty.
type Event struct {
	Type     EventType
	Sequence int64

	// ResponseID is set for lifecycle events.
	ResponseID string

	// Delta is an output text fragment.
	Delta string

	// Arguments are the complete arguments of a function call.
	Arguments string

	// ToolCall is set for EventToolOutput.
	ToolCall *storage.ToolCall

	// Message describes an error or failure.
	Message string
}

var forwarded = map[string]EventType{
	string(EventCreated):              EventCreated,
	string(EventInProgress):           EventInProgress,
	string(EventOutputTextDelta):      EventOutputTextDelta,
	string(EventFunctionCallArgsDone): EventFunctionCallArgsDone,
	string(EventCompleted):            EventCompleted,
	string(EventFailed):               EventFailed,
	string(EventIncomplete):           EventIncomplete,
	string(EventError):                EventError,
}

// ErrStreamEnded is returned when a stream closes before a terminal
// lifecycle event.
var ErrStreamEnded = errors.New("stream ended without a final response")

// Stream is Send with the lifecycle streamed to fn. Function calls found in
// the completed response are executed and the thread continues in a new
// stream with only their outputs. An error returned by fn stops the turn.
func (t *Thread) Stream(ctx context.Context, text string, fn func(Event) error) (*Turn, error) {
	mark := t.checkpoint()
	turn := &Turn{PreviousResponseID: t.PreviousResponseID}

	input := userInput(text)
	for round := 0; ; round++ {
		resp, err := t.streamOnce(ctx, t.params(t.Model, input, true), turn, fn)
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

		first := len(turn.ToolCalls)
		input = t.runTools(ctx, turn, calls)
		for i := first; i < len(turn.ToolCalls); i++ {
			if err := fn(Event{Type: EventToolOutput, ToolCall: &turn.ToolCalls[i]}); err != nil {
				t.rewind(mark)
				return nil, err
			}
		}
	}

	t.record(ctx, text, turn)
	return turn, nil
}

func convert(ev responses.ResponseStreamEventUnion) (Event, bool) {
	typ, ok := forwarded[ev.Type]
	if !ok {
		return Event{}, false
	}

	out := Event{Type: typ, Sequence: ev.SequenceNumber}
	switch typ {
	case EventCreated, EventInProgress, EventCompleted:
		out.ResponseID = ev.Response.ID
	case EventFailed:
		out.ResponseID = ev.Response.ID
		out.Message = ev.Response.Error.Message
	case EventIncomplete:
		out.ResponseID = ev.Response.ID
		out.Message = ev.Response.IncompleteDetails.Reason
	case EventOutputTextDelta:
		out.Delta = ev.Delta.OfString
	case EventFunctionCallArgsDone:
		out.Arguments = ev.Arguments
	case EventError:
		out.Message = ev.Message
	}
	return out, true
}

func (t *Thread) streamOnce(ctx context.Context, params responses.ResponseNewParams, turn *Turn, fn func(Event) error) (*responses.Response, error) {
	u, err := t.waitAndMeasure(ctx, params)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	stream := t.Client.Responses.NewStreaming(ctx, params)
	defer stream.Close()

	var final *responses.Response
	for stream.Next() {
		raw := stream.Current()

		ev, ok := convert(raw)
		if !ok {
			continue
		}

		if err = fn(ev); err != nil {
			break
		}

		switch ev.Type {
		case EventCompleted, EventFailed, EventIncomplete:
			resp := raw.Response
			final = &resp
		case EventError:
			err = fmt.Errorf("stream error: %s", ev.Message)
		}
		if err != nil {
			break
		}
	}
	if err == nil {
		if err = stream.Err(); err != nil {
			err = fmt.Errorf("failed to stream response: %w", err)
		}
	}
	if err == nil && final == nil {
		err = ErrStreamEnded
	}

	metrics.ObserveRequest(style, params.Model, len(params.Input.OfInputItemList), started, err)
	if err != nil {
		return nil, err
	}

	if err := t.accept(ctx, turn, u, final); err != nil {
		return nil, err
	}
	return final, nil
}
