package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"unicode"

	"github.com/google/jsonschema-go/jsonschema"
)

// ErrInvalidJSON is returned when model output is not parseable JSON at all.
var ErrInvalidJSON = errors.New("output is not valid JSON")

// ErrRefusal is returned when the model declines to produce structured output.
var ErrRefusal = errors.New("model refused to answer")

// ValidationError is returned when model output is valid JSON but does not
// match the expected schema (missing keys, wrong types, extra fields).
type ValidationError struct {
	// Schema is the name of the schema that was violated.
	Schema string

	// Raw is the unmodified output that failed validation.
	Raw string

	// Err is the underlying validator error.
	Err error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("output does not match schema %q: %s", e.Schema, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Schema is a resolved JSON schema inferred from a Go type.
type Schema struct {
	// Name is a format name accepted by the API: [a-zA-Z0-9_-], at most 64 characters.
	Name string

	root     *jsonschema.Schema
	resolved *jsonschema.Resolved
	doc      map[string]any
}

// Map returns the schema as a generic JSON object, suitable for request
// parameters that take a schema as map[string]any. Callers get their own copy.
func (s *Schema) Map() map[string]any {
	return cloneMap(s.doc)
}

// String returns the schema as indented JSON.
func (s *Schema) String() string {
	b, err := json.MarshalIndent(s.doc, "", "  ")
	if err != nil {
		return fmt.Sprintf("<invalid schema %s: %s>", s.Name, err)
	}
	return string(b)
}

// Validate checks an already decoded JSON value against the schema.
func (s *Schema) Validate(instance any) error {
	return s.resolved.Validate(instance)
}

// ValidateJSON parses raw and validates the result against the schema.
func (s *Schema) ValidateJSON(raw []byte) error {
	var instance any
	if err := json.Unmarshal(raw, &instance); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidJSON, err)
	}

	if err := s.Validate(instance); err != nil {
		return &ValidationError{Schema: s.Name, Raw: string(raw), Err: err}
	}

	return nil
}

var cache sync.Map // reflect.Type -> *Schema

// For returns the strict schema for T.
//
// Every exported field without omitempty or omitzero is required, and unknown
// properties are rejected, which is what strict structured outputs expect.
// Results are cached per type.
func For[T any]() (*Schema, error) {
	t := reflect.TypeFor[T]()

	if cached, ok := cache.Load(t); ok {
		return cached.(*Schema), nil
	}

	root, err := jsonschema.For[T](nil)
	if err != nil {
		return nil, fmt.Errorf("failed to infer schema for %s: %w", t, err)
	}

	s, err := newSchema(FormatName(t.Name()), root)
	if err != nil {
		return nil, err
	}

	actual, _ := cache.LoadOrStore(t, s)
	return actual.(*Schema), nil
}

// MustFor is like For but panics on error. It is meant for package-level
// variables over types known to be representable.
func MustFor[T any]() *Schema {
	s, err := For[T]()
	if err != nil {
		panic(err)
	}
	return s
}

func newSchema(name string, root *jsonschema.Schema) (*Schema, error) {
	resolved, err := root.Resolve(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve schema %q: %w", name, err)
	}

	b, err := json.Marshal(root)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema %q: %w", name, err)
	}

	var doc map[string]any
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode schema %q: %w", name, err)
	}

	return &Schema{
		Name:     name,
		root:     root,
		resolved: resolved,
		doc:      doc,
	}, nil
}

// Decode maps raw model output onto T.
//
// The output is parsed, validated against the schema for T and only then
// unmarshaled, so a value that is returned always has the full shape of T.
// Surrounding markdown code fences are tolerated since JSON mode models
// occasionally add them.
func Decode[T any](raw string) (T, error) {
	var zero T

	s, err := For[T]()
	if err != nil {
		return zero, err
	}

	b := []byte(stripFences(raw))

	if err := s.ValidateJSON(b); err != nil {
		return zero, err
	}

	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		return zero, &ValidationError{Schema: s.Name, Raw: raw, Err: err}
	}

	return v, nil
}

// FormatName turns a Go type name into a response format name. Characters
// outside [a-zA-Z0-9_-] are replaced by underscores and the result is
// truncated to 64 characters.
func FormatName(name string) string {
	if name == "" {
		return "output"
	}

	var b strings.Builder
	for _, r := range name {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)), r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}

	out := b.String()
	if len(out) > 64 {
		out = out[:64]
	}
	return out
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}

	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		switch v := v.(type) {
		case map[string]any:
			out[k] = cloneMap(v)
		case []any:
			out[k] = cloneSlice(v)
		default:
			out[k] = v
		}
	}
	return out
}

func cloneSlice(s []any) []any {
	out := make([]any, len(s))
	for i, v := range s {
		switch v := v.(type) {
		case map[string]any:
			out[i] = cloneMap(v)
		case []any:
			out[i] = cloneSlice(v)
		default:
			out[i] = v
		}
	}
	return out
}
