// Package openaitest provides a scripted fake of the chat completions and
// responses endpoints for tests. Replies are served in the order they were
// queued, and every request body is kept for inspection.
package openaitest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Request is a request received by the fake server.
type Request struct {
	Method string
	Path   string
	Body   map[string]any
}

// Reply is a scripted answer. Events, when set, are sent as a server-sent
// event stream instead of JSON.
type Reply struct {
	Status int
	JSON   any
	Events []Event
}

// Event is one server-sent event. Name may be empty.
type Event struct {
	Name string
	Data any
}

// Server is a fake OpenAI API.
type Server struct {
	*httptest.Server

	t        testing.TB
	mu       sync.Mutex
	replies  []Reply
	requests []Request
}

// NewServer starts a fake server that answers with replies in order.
func NewServer(t testing.TB, replies ...Reply) *Server {
	t.Helper()

	s := &Server{t: t, replies: replies}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)
	return s
}

// Enqueue adds replies to the end of the script.
func (s *Server) Enqueue(replies ...Reply) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replies = append(s.replies, replies...)
}

// Requests returns a copy of the requests received so far.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// Last returns the most recent request.
func (s *Server) Last() Request {
	reqs := s.Requests()
	if len(reqs) == 0 {
		s.t.Fatalf("openaitest: no requests received")
	}
	return reqs[len(reqs)-1]
}

// Client returns a client pointed at the fake server, without retries.
func (s *Server) Client() *openai.Client {
	client := openai.NewClient(
		option.WithBaseURL(s.URL+"/v1/"),
		option.WithAPIKey("test"),
		option.WithMaxRetries(0),
	)
	return &client
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	req := Request{Method: r.Method, Path: r.URL.Path}

	body, err := io.ReadAll(r.Body)
	if err == nil && len(body) > 0 {
		if err := json.Unmarshal(body, &req.Body); err != nil {
			s.t.Errorf("openaitest: request body is not a JSON object: %v", err)
		}
	}

	s.mu.Lock()
	s.requests = append(s.requests, req)
	if len(s.replies) == 0 {
		s.mu.Unlock()
		s.t.Errorf("openaitest: unexpected request %s %s", r.Method, r.URL.Path)
		http.Error(w, `{"error":{"message":"no scripted reply"}}`, http.StatusInternalServerError)
		return
	}
	reply := s.replies[0]
	s.replies = s.replies[1:]
	s.mu.Unlock()

	if reply.Events != nil {
		writeEvents(w, reply.Events)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if reply.Status != 0 {
		w.WriteHeader(reply.Status)
	}
	json.NewEncoder(w).Encode(reply.JSON)
}

func writeEvents(w http.ResponseWriter, events []Event) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")

	flusher, _ := w.(http.Flusher)
	for _, ev := range events {
		var data string
		switch d := ev.Data.(type) {
		case string:
			data = d
		default:
			b, _ := json.Marshal(d)
			data = string(b)
		}

		if ev.Name != "" {
			fmt.Fprintf(w, "event: %s\n", ev.Name)
		}
		fmt.Fprintf(w, "data: %s\n\n", data)
		if flusher != nil {
			flusher.Flush()
		}
	}
}

// Error is an API error reply with the given status.
func Error(status int, message string) Reply {
	return Reply{
		Status: status,
		JSON: map[string]any{
			"error": map[string]any{
				"message": message,
				"type":    "invalid_request_error",
				"code":    strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_")),
			},
		},
	}
}

// ToolCall describes a function call the fake model makes.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

var usage = map[string]any{"prompt_tokens": 20, "completion_tokens": 10, "total_tokens": 30}

func chatToolCalls(calls []ToolCall) []map[string]any {
	var out []map[string]any
	for _, c := range calls {
		out = append(out, map[string]any{
			"id":   c.ID,
			"type": "function",
			"function": map[string]any{
				"name":      c.Name,
				"arguments": c.Arguments,
			},
		})
	}
	return out
}

// ChatText is a chat completion whose assistant message has content.
func ChatText(id, content string) Reply {
	return chatCompletion(id, map[string]any{"role": "assistant", "content": content}, "stop")
}

// ChatTruncated is a chat completion cut off by the token limit.
func ChatTruncated(id, content string) Reply {
	return chatCompletion(id, map[string]any{"role": "assistant", "content": content}, "length")
}

// ChatRefusal is a chat completion whose assistant message is a refusal.
func ChatRefusal(id, refusal string) Reply {
	return chatCompletion(id, map[string]any{"role": "assistant", "content": nil, "refusal": refusal}, "stop")
}

// ChatToolCalls is a chat completion asking for tool calls.
func ChatToolCalls(id string, calls ...ToolCall) Reply {
	return chatCompletion(id, map[string]any{
		"role":       "assistant",
		"content":    nil,
		"tool_calls": chatToolCalls(calls),
	}, "tool_calls")
}

func chatCompletion(id string, message map[string]any, finish string) Reply {
	return Reply{JSON: map[string]any{
		"id":      id,
		"object":  "chat.completion",
		"created": 0,
		"model":   "mock-model",
		"choices": []map[string]any{{
			"index":         0,
			"message":       message,
			"finish_reason": finish,
			"logprobs":      nil,
		}},
		"usage": usage,
	}}
}

func chatChunk(id string, delta map[string]any, finish any) Event {
	return Event{Data: map[string]any{
		"id":      id,
		"object":  "chat.completion.chunk",
		"created": 0,
		"model":   "mock-model",
		"choices": []map[string]any{{
			"index":         0,
			"delta":         delta,
			"finish_reason": finish,
		}},
	}}
}

func chatStream(id string, body []Event, finish string) Reply {
	events := []Event{chatChunk(id, map[string]any{"role": "assistant", "content": ""}, nil)}
	events = append(events, body...)
	events = append(events,
		chatChunk(id, map[string]any{}, finish),
		Event{Data: map[string]any{
			"id":      id,
			"object":  "chat.completion.chunk",
			"created": 0,
			"model":   "mock-model",
			"choices": []any{},
			"usage":   usage,
		}},
		Event{Data: "[DONE]"},
	)
	return Reply{Events: events}
}

// ChatTextStream streams content as the given fragments.
func ChatTextStream(id string, fragments ...string) Reply {
	return chatStream(id, textChunks(id, fragments), "stop")
}

// ChatTruncatedStream streams content that is cut off by the token limit.
func ChatTruncatedStream(id string, fragments ...string) Reply {
	return chatStream(id, textChunks(id, fragments), "length")
}

func textChunks(id string, fragments []string) []Event {
	var body []Event
	for _, f := range fragments {
		body = append(body, chatChunk(id, map[string]any{"content": f}, nil))
	}
	return body
}

// ChatToolCallStream streams a single tool call.
func ChatToolCallStream(id string, call ToolCall) Reply {
	body := []Event{
		chatChunk(id, map[string]any{"tool_calls": []map[string]any{{
			"index":    0,
			"id":       call.ID,
			"type":     "function",
			"function": map[string]any{"name": call.Name, "arguments": ""},
		}}}, nil),
		chatChunk(id, map[string]any{"tool_calls": []map[string]any{{
			"index":    0,
			"function": map[string]any{"arguments": call.Arguments},
		}}}, nil),
	}
	return chatStream(id, body, "tool_calls")
}
