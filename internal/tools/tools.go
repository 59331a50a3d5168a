// Package tools holds the application functions a model may call, and
// renders them into the tool declarations each API style expects.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/responses"
	"github.com/openai/openai-go/shared"
	"github.com/picatz/apistyles/internal/metrics"
	"github.com/picatz/apistyles/internal/schema"
)

// ErrUnknownTool is returned when the model calls a tool that is not registered.
var ErrUnknownTool = errors.New("unknown tool")

// ErrMaxToolRounds is returned when the model keeps asking for tool calls past
// the configured number of rounds.
var ErrMaxToolRounds = errors.New("too many tool call rounds")

// DefaultMaxToolRounds bounds how many times one turn may go back to the model
// with tool results.
const DefaultMaxToolRounds = 8

// Handler runs a tool with the raw JSON arguments produced by the model and
// returns a value that is JSON encoded as the tool output.
type Handler func(ctx context.Context, args json.RawMessage) (any, error)

// Tool is a function the model may ask the caller to run.
type Tool struct {
	Name        string
	Description string

	// Parameters is the JSON schema of the arguments object.
	Parameters map[string]any

	// Strict asks the service to generate arguments that always match
	// Parameters exactly.
	Strict bool

	Handler Handler
}

// NewTool builds a strict tool whose parameter schema is inferred from Args.
// Arguments are validated against that schema before fn runs.
func NewTool[Args any](name, description string, fn func(context.Context, Args) (any, error)) (*Tool, error) {
	s, err := schema.For[Args]()
	if err != nil {
		return nil, fmt.Errorf("failed to build tool %q: %w", name, err)
	}

	return &Tool{
		Name:        name,
		Description: description,
		Parameters:  s.Map(),
		Strict:      true,
		Handler: func(ctx context.Context, raw json.RawMessage) (any, error) {
			args, err := schema.Decode[Args](string(raw))
			if err != nil {
				return nil, fmt.Errorf("invalid arguments for %s: %w", name, err)
			}
			return fn(ctx, args)
		},
	}, nil
}

// Registry keeps the mapping between tool names and implementations.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*Tool
}

// NewRegistry returns a registry holding the given tools.
func NewRegistry(tools ...*Tool) (*Registry, error) {
	r := &Registry{tools: make(map[string]*Tool)}
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register inserts a tool when its name is not in use.
func (r *Registry) Register(tool *Tool) error {
	if tool == nil {
		return fmt.Errorf("tool is nil")
	}
	if tool.Name == "" {
		return fmt.Errorf("tool name is empty")
	}
	if tool.Handler == nil {
		return fmt.Errorf("tool %s has no handler", tool.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.tools == nil {
		r.tools = make(map[string]*Tool)
	}
	if _, exists := r.tools[tool.Name]; exists {
		return fmt.Errorf("tool %s already registered", tool.Name)
	}

	r.tools[tool.Name] = tool
	return nil
}

// Get fetches a tool by name.
func (r *Registry) Get(name string) (*Tool, bool) {
	if r == nil {
		return nil, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tools[name]
	return t, ok
}

// Names returns the registered tool names, sorted.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Len is the number of registered tools. A nil registry has none.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Call runs the named tool with the model supplied JSON arguments and returns
// the JSON encoded result.
func (r *Registry) Call(ctx context.Context, name, arguments string) (out string, err error) {
	label := name
	defer func() { metrics.ObserveTool(label, err) }()

	t, ok := r.Get(name)
	if !ok {
		label = metrics.UnknownTool
		return "", fmt.Errorf("%w: %q", ErrUnknownTool, name)
	}

	if arguments == "" {
		arguments = "{}"
	}

	result, err := t.Handler(ctx, json.RawMessage(arguments))
	if err != nil {
		return "", fmt.Errorf("tool %s failed: %w", name, err)
	}

	b, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("failed to encode %s result: %w", name, err)
	}
	return string(b), nil
}

// Output is what gets sent back to the model for a call: the result, or an
// error object when the call failed, so the model can recover.
func (r *Registry) Output(ctx context.Context, name, arguments string) (string, error) {
	out, err := r.Call(ctx, name, arguments)
	if err == nil {
		return out, nil
	}

	b, _ := json.Marshal(map[string]string{"error": err.Error()})
	return string(b), err
}

// ChatTools renders the registry in the nested
// {"type":"function","function":{...}} shape used by chat completions.
func (r *Registry) ChatTools() []openai.ChatCompletionToolParam {
	var params []openai.ChatCompletionToolParam
	for _, name := range r.Names() {
		t, _ := r.Get(name)

		fn := shared.FunctionDefinitionParam{
			Name:       t.Name,
			Parameters: shared.FunctionParameters(t.Parameters),
		}
		if t.Description != "" {
			fn.Description = openai.String(t.Description)
		}
		if t.Strict {
			fn.Strict = openai.Bool(true)
		}

		params = append(params, openai.ChatCompletionToolParam{Function: fn})
	}
	return params
}

// ResponseTools renders the registry in the flat
// {"type":"function","name":...} shape used by the responses API.
func (r *Registry) ResponseTools() []responses.ToolUnionParam {
	var params []responses.ToolUnionParam
	for _, name := range r.Names() {
		t, _ := r.Get(name)

		p := responses.ToolParamOfFunction(t.Name, t.Parameters, t.Strict)
		if t.Description != "" {
			p.OfFunction.Description = openai.String(t.Description)
		}
		params = append(params, p)
	}
	return params
}
