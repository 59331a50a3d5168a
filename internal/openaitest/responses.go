package openaitest

import "fmt"

var responseUsage = map[string]any{"input_tokens": 20, "output_tokens": 10, "total_tokens": 30}

// OutputText is an assistant message output item.
func OutputText(text string) map[string]any {
	return map[string]any{
		"type":   "message",
		"id":     "msg_" + fmt.Sprint(len(text)),
		"role":   "assistant",
		"status": "completed",
		"content": []map[string]any{{
			"type":        "output_text",
			"text":        text,
			"annotations": []any{},
		}},
	}
}

// OutputRefusal is an assistant message output item holding a refusal.
func OutputRefusal(text string) map[string]any {
	return map[string]any{
		"type":    "message",
		"id":      "msg_refusal",
		"role":    "assistant",
		"status":  "completed",
		"content": []map[string]any{{"type": "refusal", "refusal": text}},
	}
}

// FunctionCall is a function_call output item.
func FunctionCall(call ToolCall) map[string]any {
	return map[string]any{
		"type":      "function_call",
		"id":        "fc_" + call.ID,
		"call_id":   call.ID,
		"name":      call.Name,
		"arguments": call.Arguments,
		"status":    "completed",
	}
}

func response(id, status string, output []map[string]any) map[string]any {
	if output == nil {
		output = []map[string]any{}
	}
	return map[string]any{
		"id":                  id,
		"object":              "response",
		"created_at":          0,
		"status":              status,
		"model":               "mock-model",
		"output":              output,
		"parallel_tool_calls": true,
		"tool_choice":         "auto",
		"tools":               []any{},
		"usage":               responseUsage,
	}
}

// Response is a completed response with the given output items.
func Response(id string, output ...map[string]any) Reply {
	return Reply{JSON: response(id, "completed", output)}
}

// FailedResponse is a response the service marked as failed.
func FailedResponse(id, code, message string) Reply {
	r := response(id, "failed", nil)
	r["error"] = map[string]any{"code": code, "message": message}
	return Reply{JSON: r}
}

// IncompleteResponse is a response the service stopped early, for example
// with reason "max_output_tokens".
func IncompleteResponse(id, reason string, output ...map[string]any) Reply {
	return Reply{JSON: incomplete(id, reason, output)}
}

func incomplete(id, reason string, output []map[string]any) map[string]any {
	r := response(id, "incomplete", output)
	r["incomplete_details"] = map[string]any{"reason": reason}
	return r
}

// Deleted acknowledges a response deletion.
func Deleted(id string) Reply {
	return Reply{JSON: map[string]any{"id": id, "object": "response.deleted", "deleted": true}}
}

// ResponseStream streams a completed response: the created and in_progress
// lifecycle events, a text delta per word of any output text, the arguments
// of any function call, then response.completed.
func ResponseStream(id string, output ...map[string]any) Reply {
	return responseStream(id, output, "response.completed", response(id, "completed", output))
}

// IncompleteResponseStream streams a response that ends with
// response.incomplete.
func IncompleteResponseStream(id, reason string, output ...map[string]any) Reply {
	return responseStream(id, output, "response.incomplete", incomplete(id, reason, output))
}

func responseStream(id string, output []map[string]any, terminal string, final map[string]any) Reply {
	seq := 0
	next := func(name string, data map[string]any) Event {
		seq++
		data["type"] = name
		data["sequence_number"] = seq
		return Event{Name: name, Data: data}
	}

	inProgress := response(id, "in_progress", nil)
	events := []Event{
		next("response.created", map[string]any{"response": inProgress}),
		next("response.in_progress", map[string]any{"response": inProgress}),
	}

	for i, item := range output {
		switch item["type"] {
		case "message":
			for _, c := range item["content"].([]map[string]any) {
				text, _ := c["text"].(string)
				for _, frag := range fragments(text) {
					events = append(events, next("response.output_text.delta", map[string]any{
						"item_id":       item["id"],
						"output_index":  i,
						"content_index": 0,
						"delta":         frag,
					}))
				}
			}
		case "function_call":
			events = append(events, next("response.function_call_arguments.done", map[string]any{
				"item_id":      item["id"],
				"output_index": i,
				"arguments":    item["arguments"],
			}))
		}
	}

	events = append(events, next(terminal, map[string]any{"response": final}))
	return Reply{Events: events}
}

// ResponseStreamError streams a response that ends with an error event.
func ResponseStreamError(id, message string) Reply {
	return Reply{Events: []Event{
		{Name: "response.created", Data: map[string]any{"type": "response.created", "sequence_number": 1, "response": response(id, "in_progress", nil)}},
		{Name: "error", Data: map[string]any{"type": "error", "sequence_number": 2, "code": "server_error", "message": message}},
	}}
}

// fragments splits s after every space, keeping the spaces.
func fragments(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == ' ' {
			out = append(out, s[start:i+1])
			start = i + 1
		}
	}
	if start < len(s) {
		out = append(out, s[start:])
	}
	return out
}
