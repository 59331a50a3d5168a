package apistyles

import "fmt"

// Usage accumulates what a conversation cost, per style.
type Usage struct {
	// Requests is the number of remote calls made.
	Requests int64 `json:"requests,omitzero"`

	// InputTokens, OutputTokens and TotalTokens are as reported by the service.
	InputTokens  int64 `json:"input_tokens,omitzero"`
	OutputTokens int64 `json:"output_tokens,omitzero"`
	TotalTokens  int64 `json:"total_tokens,omitzero"`

	// ItemsSent counts messages (turn-based) or input items (managed) sent over
	// all requests. For the turn-based style this grows with every replay.
	ItemsSent int64 `json:"items_sent,omitzero"`

	// BytesSent is the size of the serialized messages or input items.
	BytesSent int64 `json:"bytes_sent,omitzero"`

	// SchemaRetries counts re-prompts caused by output that failed validation.
	SchemaRetries int64 `json:"schema_retries,omitzero"`

	// ToolCalls counts tool invocations executed by the caller.
	ToolCalls int64 `json:"tool_calls,omitzero"`

	// Compactions counts summaries that replaced the replayed history.
	// ItemsCompacted and TokensCompacted are what they took out of every
	// later request.
	Compactions     int64 `json:"compactions,omitzero"`
	ItemsCompacted  int64 `json:"items_compacted,omitzero"`
	TokensCompacted int64 `json:"tokens_compacted,omitzero"`
}

// Add accumulates other into u.
func (u *Usage) Add(other Usage) {
	u.Requests += other.Requests
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.TotalTokens += other.TotalTokens
	u.ItemsSent += other.ItemsSent
	u.BytesSent += other.BytesSent
	u.SchemaRetries += other.SchemaRetries
	u.ToolCalls += other.ToolCalls
	u.Compactions += other.Compactions
	u.ItemsCompacted += other.ItemsCompacted
	u.TokensCompacted += other.TokensCompacted
}

// String implements fmt.Stringer.
func (u Usage) String() string {
	s := fmt.Sprintf("requests=%d tokens=%d (in=%d out=%d) items_sent=%d bytes_sent=%d retries=%d tool_calls=%d",
		u.Requests, u.TotalTokens, u.InputTokens, u.OutputTokens, u.ItemsSent, u.BytesSent, u.SchemaRetries, u.ToolCalls)
	if u.Compactions > 0 {
		s += fmt.Sprintf(" compactions=%d (items=%d tokens=%d)", u.Compactions, u.ItemsCompacted, u.TokensCompacted)
	}
	return s
}
