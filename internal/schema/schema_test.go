package schema_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/picatz/apistyles/internal/schema"
	"github.com/shoenig/test/must"
)

type packAdvice struct {
	Umbrella  bool   `json:"umbrella"`
	Rationale string `json:"rationale"`
}

type repoSummary struct {
	Name      string   `json:"name"`
	Topics    []string `json:"topics"`
	RiskLevel string   `json:"risk_level"`
	Notes     string   `json:"notes,omitempty"`
}

func TestFor_strictObject(t *testing.T) {
	s, err := schema.For[repoSummary]()
	must.NoError(t, err)
	must.Eq(t, "repoSummary", s.Name)

	m := s.Map()
	must.Eq(t, "object", m["type"].(string))
	must.Eq(t, false, m["additionalProperties"].(bool))

	required := m["required"].([]any)
	must.SliceContainsSubset(t, required, []any{"name", "topics", "risk_level"})
	must.SliceNotContains(t, required, any("notes"))

	// Map hands out copies.
	m["type"] = "array"
	must.Eq(t, "object", s.Map()["type"].(string))
}

func TestFor_cached(t *testing.T) {
	a, err := schema.For[packAdvice]()
	must.NoError(t, err)

	b, err := schema.For[packAdvice]()
	must.NoError(t, err)

	must.True(t, a == b)
}

func TestDecode(t *testing.T) {
	advice, err := schema.Decode[packAdvice](`{"umbrella": true, "rationale": "rain in Paris"}`)
	must.NoError(t, err)
	must.True(t, advice.Umbrella)
	must.Eq(t, "rain in Paris", advice.Rationale)
}

func TestDecode_codeFence(t *testing.T) {
	advice, err := schema.Decode[packAdvice]("```json\n{\"umbrella\": false, \"rationale\": \"sunny\"}\n```")
	must.NoError(t, err)
	must.False(t, advice.Umbrella)
}

func TestDecode_invalidJSON(t *testing.T) {
	_, err := schema.Decode[packAdvice](`Sure! Bring an umbrella.`)
	must.Error(t, err)
	must.True(t, errors.Is(err, schema.ErrInvalidJSON))
}

func TestDecode_shapeDrift(t *testing.T) {
	cases := map[string]string{
		"missing key":   `{"umbrella": true}`,
		"wrong type":    `{"umbrella": "yes", "rationale": "rain"}`,
		"renamed key":   `{"bring_umbrella": true, "rationale": "rain"}`,
		"extra key":     `{"umbrella": true, "rationale": "rain", "temp_c": 17}`,
		"not an object": `[true, "rain"]`,
	}

	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := schema.Decode[packAdvice](raw)
			must.Error(t, err)

			var verr *schema.ValidationError
			must.True(t, errors.As(err, &verr))
			must.Eq(t, "packAdvice", verr.Schema)
			must.Eq(t, raw, verr.Raw)
			must.False(t, errors.Is(err, schema.ErrInvalidJSON))
		})
	}
}

func TestFormatName(t *testing.T) {
	must.Eq(t, "output", schema.FormatName(""))
	must.Eq(t, "PackAdvice", schema.FormatName("PackAdvice"))
	must.Eq(t, "Pair_int_string_", schema.FormatName("Pair[int,string]"))
	must.Eq(t, 64, len(schema.FormatName(strings.Repeat("x", 100))))
}
