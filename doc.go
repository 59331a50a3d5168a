// Package apistyles compares two ways of talking to a hosted language model.
//
// The turn-based style (Chat Completions) is stateless: the caller keeps the
// conversation as a list of role-tagged messages and replays all of it on every
// call, executes tool calls itself, and validates JSON output on its own.
//
// The managed style (Responses) keeps conversation state on the server: the
// caller continues with an opaque previous response identifier, sends only what
// is new, and can ask for output that is enforced against a strict schema.
//
// The root package holds the vocabulary shared by both implementations in
// internal/chat and internal/responses: styles, default models, usage
// accounting, client-side rate limits and the example payload types.
package apistyles
