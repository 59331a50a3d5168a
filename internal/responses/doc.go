// Package responses implements the managed iteration style on top of the
// responses endpoint.
//
// The service keeps the conversation. A Thread only remembers the id of the
// last response and continues from it with previous_response_id, sending just
// what is new: the next user turn, or the outputs of the function calls the
// model asked for. Structured replies are requested with a strict json_schema
// text format and mapped directly onto a Go type.
//
// https://platform.openai.com/docs/api-reference/responses
package responses
