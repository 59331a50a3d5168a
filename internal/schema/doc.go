// Package schema is the typed-parse helper shared by both API styles.
//
// It infers a strict JSON schema from a Go type, hands that schema to the
// remote service as a structured output format, and maps the raw model output
// back onto the Go type after validating it. Inference and validation are done
// by [jsonschema-go].
//
// [jsonschema-go]: https://github.com/google/jsonschema-go
package schema
