package apistyles

import "github.com/openai/openai-go"

// Model is a model identifier understood by the remote service.
type Model = string

const (
	// ModelGPT5Mini is the small general purpose model used for the turn-based
	// examples and for plain structured extraction.
	ModelGPT5Mini Model = "gpt-5-mini"

	// ModelGPT4oMini is used for the first, tool calling, turn of the managed
	// example.
	ModelGPT4oMini Model = openai.ChatModelGPT4oMini

	// ModelGPT4oStructured is the first snapshot that supports strict structured
	// outputs; the managed example parses typed advice with it.
	ModelGPT4oStructured Model = openai.ChatModelGPT4o2024_08_06
)

// DefaultModel returns the model a style uses when none is configured.
func DefaultModel(s Style) Model {
	switch s {
	case StyleManaged:
		return ModelGPT4oMini
	default:
		return ModelGPT5Mini
	}
}
