package responses_test

import (
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/openai/openai-go"
	"github.com/picatz/apistyles"
	"github.com/picatz/apistyles/internal/openaitest"
	"github.com/picatz/apistyles/internal/responses"
	"github.com/picatz/apistyles/internal/schema"
	"github.com/picatz/apistyles/internal/storage"
	"github.com/picatz/apistyles/internal/storage/memory"
	"github.com/picatz/apistyles/internal/tools"
	"github.com/picatz/apistyles/internal/tools/weather"
	"github.com/shoenig/test/must"
)

var parisCall = openaitest.ToolCall{ID: "call_1", Name: weather.Name, Arguments: `{"city":"Paris"}`}

func newThread(t *testing.T, srv *openaitest.Server, opts ...responses.Option) *responses.Thread {
	t.Helper()

	registry, err := tools.NewRegistry(weather.Tool())
	must.NoError(t, err)

	opts = append([]responses.Option{responses.WithTools(registry)}, opts...)
	return responses.New(srv.Client(), "mock-model", opts...)
}

func input(t *testing.T, req openaitest.Request) []map[string]any {
	t.Helper()

	raw, ok := req.Body["input"].([]any)
	must.True(t, ok, must.Sprintf("request has no input list: %v", req.Body))

	out := make([]map[string]any, len(raw))
	for i, item := range raw {
		out[i] = item.(map[string]any)
	}
	return out
}

func TestThread_weatherThenAdvice(t *testing.T) {
	srv := openaitest.NewServer(t,
		openaitest.Response("resp_1", openaitest.FunctionCall(parisCall)),
		openaitest.Response("resp_2", openaitest.OutputText("It is 17C and raining in Paris.")),
		openaitest.Response("resp_3", openaitest.OutputText(`{"umbrella":true,"rationale":"Rain is expected."}`)),
	)
	th := newThread(t, srv, responses.WithParseModel(apistyles.ModelGPT4oStructured))

	turn, err := th.Send(t.Context(), "What's the weather in Paris today?")
	must.NoError(t, err)
	must.Eq(t, "It is 17C and raining in Paris.", turn.Text)
	must.Eq(t, "resp_2", turn.ResponseID)
	must.Eq(t, "", turn.PreviousResponseID)
	must.SliceLen(t, 1, turn.ToolCalls)
	must.Eq(t, "resp_2", th.PreviousResponseID)
	must.Eq(t, 2, th.Len())

	reqs := srv.Requests()
	must.SliceLen(t, 2, reqs)
	must.Eq(t, "/v1/responses", reqs[0].Path)
	must.MapNotContainsKey(t, reqs[0].Body, "previous_response_id")
	must.Eq(t, "auto", reqs[0].Body["tool_choice"])

	tool := reqs[0].Body["tools"].([]any)[0].(map[string]any)
	must.Eq(t, "function", tool["type"])
	must.Eq(t, weather.Name, tool["name"])

	// Only the function call output is sent, chained to the first response.
	second := input(t, reqs[1])
	must.SliceLen(t, 1, second)
	must.Eq(t, "function_call_output", second[0]["type"])
	must.Eq(t, "call_1", second[0]["call_id"])
	must.Eq(t, `{"city":"Paris","temp_c":17,"condition":"rain"}`, second[0]["output"])
	must.Eq(t, "resp_1", reqs[1].Body["previous_response_id"])

	advice, err := responses.Parse[apistyles.PackAdvice](t.Context(), th, "Great, should I pack an umbrella? Return JSON only.")
	must.NoError(t, err)
	must.True(t, advice.Umbrella)

	third := srv.Last()
	must.SliceLen(t, 1, input(t, third))
	must.Eq(t, "resp_2", third.Body["previous_response_id"])
	must.Eq[any](t, apistyles.ModelGPT4oStructured, third.Body["model"])
	must.MapNotContainsKey(t, third.Body, "tools")

	format := third.Body["text"].(map[string]any)["format"].(map[string]any)
	must.Eq(t, "json_schema", format["type"])
	must.Eq(t, "PackAdvice", format["name"])
	must.Eq(t, true, format["strict"])

	usage := th.Usage()
	must.Eq(t, int64(3), usage.Requests)
	must.Eq(t, int64(3), usage.ItemsSent)
	must.Eq(t, int64(90), usage.TotalTokens)
	must.Eq(t, []string{"resp_1", "resp_2", "resp_3"}, th.Created())
}

func TestParse_refusal(t *testing.T) {
	srv := openaitest.NewServer(t, openaitest.Response("resp_1", openaitest.OutputRefusal("I can't help with that.")))
	th := newThread(t, srv)

	_, err := responses.Parse[apistyles.RepoSummary](t.Context(), th, "Summarize.")
	must.ErrorIs(t, err, schema.ErrRefusal)
	must.Eq(t, "", th.PreviousResponseID)
}

func TestParse_repoSummary(t *testing.T) {
	srv := openaitest.NewServer(t, openaitest.Response("resp_1",
		openaitest.OutputText(`{"name":"awesome-embeddings","topics":["embeddings"],"risk_level":"low"}`)))
	th := newThread(t, srv, responses.WithInstructions("Extract repo info into the schema."))

	summary, err := responses.Parse[apistyles.RepoSummary](t.Context(), th, "Summarize repo: awesome-embeddings.")
	must.NoError(t, err)
	must.Eq(t, "awesome-embeddings", summary.Name)
	must.Eq(t, "Extract repo info into the schema.", srv.Last().Body["instructions"])
}

func TestSend_failedResponse(t *testing.T) {
	srv := openaitest.NewServer(t,
		openaitest.Response("resp_1", openaitest.OutputText("hi")),
		openaitest.FailedResponse("resp_2", "server_error", "the model crashed"),
	)
	th := newThread(t, srv)

	_, err := th.Send(t.Context(), "hello")
	must.NoError(t, err)

	_, err = th.Send(t.Context(), "again")
	must.ErrorIs(t, err, responses.ErrFailed)
	must.ErrorContains(t, err, "the model crashed")
	must.Eq(t, "resp_1", th.PreviousResponseID)
	must.Eq(t, 1, th.Len())
}

func TestSend_incompleteResponse(t *testing.T) {
	srv := openaitest.NewServer(t,
		openaitest.Response("resp_1", openaitest.OutputText("hi")),
		openaitest.IncompleteResponse("resp_2", "max_output_tokens", openaitest.OutputText("It is 17C and rai")),
	)
	th := newThread(t, srv)

	_, err := th.Send(t.Context(), "hello")
	must.NoError(t, err)

	turn, err := th.Send(t.Context(), "Weather in Paris?")
	must.Nil(t, turn)
	must.ErrorIs(t, err, responses.ErrFailed)
	must.ErrorContains(t, err, "max_output_tokens")
	must.Eq(t, "resp_1", th.PreviousResponseID)
	must.Eq(t, 1, th.Len())

	// The truncated response still cost a request.
	must.Eq(t, int64(2), th.Usage().Requests)
}

func TestSend_maxToolRounds(t *testing.T) {
	srv := openaitest.NewServer(t,
		openaitest.Response("resp_1", openaitest.FunctionCall(parisCall)),
		openaitest.Response("resp_2", openaitest.FunctionCall(parisCall)),
	)
	th := newThread(t, srv, responses.WithMaxToolRounds(1))

	_, err := th.Send(t.Context(), "Weather?")
	must.ErrorIs(t, err, tools.ErrMaxToolRounds)
	must.Eq(t, "", th.PreviousResponseID)
}

func TestSend_apiError(t *testing.T) {
	srv := openaitest.NewServer(t, openaitest.Error(http.StatusBadRequest, "previous response not found"))
	th := newThread(t, srv)
	th.PreviousResponseID = "resp_gone"

	_, err := th.Send(t.Context(), "hello")
	var apiErr *openai.Error
	must.ErrorAs(t, err, &apiErr)
	must.Eq(t, http.StatusBadRequest, apiErr.StatusCode)
	must.Eq(t, "resp_gone", th.PreviousResponseID)
}

func TestStream(t *testing.T) {
	srv := openaitest.NewServer(t,
		openaitest.ResponseStream("resp_1", openaitest.FunctionCall(parisCall)),
		openaitest.ResponseStream("resp_2", openaitest.OutputText("Rainy in Paris.")),
	)
	th := newThread(t, srv)

	var (
		text  strings.Builder
		types []responses.EventType
	)
	turn, err := th.Stream(t.Context(), "Weather in Paris?", func(ev responses.Event) error {
		types = append(types, ev.Type)
		text.WriteString(ev.Delta)
		return nil
	})
	must.NoError(t, err)
	must.Eq(t, "Rainy in Paris.", text.String())
	must.Eq(t, "Rainy in Paris.", turn.Text)
	must.Eq(t, "resp_2", th.PreviousResponseID)
	must.SliceLen(t, 1, turn.ToolCalls)

	must.Eq(t, []responses.EventType{
		responses.EventCreated,
		responses.EventInProgress,
		responses.EventFunctionCallArgsDone,
		responses.EventCompleted,
		responses.EventToolOutput,
		responses.EventCreated,
		responses.EventInProgress,
		responses.EventOutputTextDelta,
		responses.EventOutputTextDelta,
		responses.EventOutputTextDelta,
		responses.EventCompleted,
	}, types)

	second := srv.Last()
	must.Eq(t, true, second.Body["stream"])
	must.Eq(t, "resp_1", second.Body["previous_response_id"])
	must.Eq(t, "function_call_output", input(t, second)[0]["type"])
}

func TestStream_errorEvent(t *testing.T) {
	srv := openaitest.NewServer(t, openaitest.ResponseStreamError("resp_1", "overloaded"))
	th := newThread(t, srv)

	_, err := th.Stream(t.Context(), "hi", func(responses.Event) error { return nil })
	must.ErrorContains(t, err, "overloaded")
	must.Eq(t, "", th.PreviousResponseID)
}

func TestStream_incomplete(t *testing.T) {
	srv := openaitest.NewServer(t,
		openaitest.IncompleteResponseStream("resp_1", "max_output_tokens", openaitest.OutputText("It is rai")),
	)
	th := newThread(t, srv)

	var last responses.Event
	_, err := th.Stream(t.Context(), "Weather?", func(ev responses.Event) error {
		last = ev
		return nil
	})
	must.ErrorIs(t, err, responses.ErrFailed)
	must.ErrorContains(t, err, "max_output_tokens")
	must.False(t, errors.Is(err, responses.ErrStreamEnded))
	must.Eq(t, responses.EventIncomplete, last.Type)
	must.Eq(t, "resp_1", last.ResponseID)
	must.Eq(t, "max_output_tokens", last.Message)
	must.Eq(t, "", th.PreviousResponseID)
	must.Eq(t, 0, th.Len())
}

func TestStream_callbackError(t *testing.T) {
	srv := openaitest.NewServer(t, openaitest.ResponseStream("resp_1", openaitest.OutputText("a b")))
	th := newThread(t, srv)

	stop := errors.New("stop")
	_, err := th.Stream(t.Context(), "hi", func(responses.Event) error { return stop })
	must.ErrorIs(t, err, stop)
}

func TestThread_getDelete(t *testing.T) {
	srv := openaitest.NewServer(t,
		openaitest.Response("resp_1", openaitest.OutputText("hi")),
		openaitest.Response("resp_1", openaitest.OutputText("hi")),
		openaitest.Deleted("resp_1"),
	)
	th := newThread(t, srv)

	_, err := th.Send(t.Context(), "hello")
	must.NoError(t, err)

	resp, err := th.Get(t.Context(), "resp_1")
	must.NoError(t, err)
	must.Eq(t, "hi", resp.OutputText())
	must.Eq(t, http.MethodGet, srv.Last().Method)

	must.NoError(t, th.Delete(t.Context(), "resp_1"))
	must.Eq(t, http.MethodDelete, srv.Last().Method)
	must.Eq(t, "/v1/responses/resp_1", srv.Last().Path)

	// Deleting part of the chain starts over.
	must.Eq(t, "", th.PreviousResponseID)
	must.SliceEmpty(t, th.Created())
}

func TestThread_deleteAll(t *testing.T) {
	srv := openaitest.NewServer(t,
		openaitest.Response("resp_1", openaitest.OutputText("one")),
		openaitest.Response("resp_2", openaitest.OutputText("two")),
		openaitest.Deleted("resp_1"),
		openaitest.Error(http.StatusNotFound, "no such response"),
	)
	th := newThread(t, srv)

	_, err := th.Send(t.Context(), "one")
	must.NoError(t, err)
	_, err = th.Send(t.Context(), "two")
	must.NoError(t, err)

	must.NoError(t, th.DeleteAll(t.Context()))
	must.SliceEmpty(t, th.Created())
	must.Eq(t, 0, th.Len())
}

func TestThread_transcript(t *testing.T) {
	srv := openaitest.NewServer(t,
		openaitest.Response("resp_1", openaitest.OutputText("one")),
		openaitest.Response("resp_2", openaitest.OutputText("two")),
	)
	log := storage.NewTranscript(memory.NewBackend[string, storage.Record]())
	th := newThread(t, srv, responses.WithTranscript(log))

	_, err := th.Send(t.Context(), "first")
	must.NoError(t, err)
	_, err = th.Send(t.Context(), "second")
	must.NoError(t, err)

	records, err := log.Conversation(t.Context(), th.ID)
	must.NoError(t, err)
	must.SliceLen(t, 2, records)
	must.Eq(t, "responses", records[1].Style)
	must.Eq(t, "resp_2", records[1].ResponseID)
	must.Eq(t, "resp_1", records[1].PreviousResponseID)
	must.Eq(t, 1, records[1].HistoryLen)
}
