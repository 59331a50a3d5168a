package apistyles_test

import (
	"testing"

	"github.com/picatz/apistyles"
	"github.com/shoenig/test/must"
)

func TestParseStyle(t *testing.T) {
	for input, want := range map[string]apistyles.Style{
		"chat":        apistyles.StyleTurnBased,
		" Turn-Based": apistyles.StyleTurnBased,
		"completions": apistyles.StyleTurnBased,
		"responses":   apistyles.StyleManaged,
		"MANAGED":     apistyles.StyleManaged,
	} {
		got, err := apistyles.ParseStyle(input)
		must.NoError(t, err)
		must.Eq(t, want, got)
	}

	_, err := apistyles.ParseStyle("assistants")
	must.ErrorContains(t, err, "unknown API style")
}

func TestStyle_Set(t *testing.T) {
	var s apistyles.Style
	must.NoError(t, s.Set("managed"))
	must.Eq(t, apistyles.StyleManaged, s)
	must.Eq(t, "style", s.Type())
	must.Error(t, s.Set("nope"))
	must.Eq(t, apistyles.StyleManaged, s)
}

func TestDefaultModel(t *testing.T) {
	must.Eq(t, apistyles.ModelGPT5Mini, apistyles.DefaultModel(apistyles.StyleTurnBased))
	must.Eq(t, apistyles.ModelGPT4oMini, apistyles.DefaultModel(apistyles.StyleManaged))
}

func TestUsage_Add(t *testing.T) {
	var u apistyles.Usage
	u.Add(apistyles.Usage{Requests: 1, InputTokens: 10, OutputTokens: 5, TotalTokens: 15, ItemsSent: 1})
	u.Add(apistyles.Usage{Requests: 1, InputTokens: 30, OutputTokens: 5, TotalTokens: 35, ItemsSent: 3, SchemaRetries: 1})

	must.Eq(t, apistyles.Usage{
		Requests:      2,
		InputTokens:   40,
		OutputTokens:  10,
		TotalTokens:   50,
		ItemsSent:     4,
		SchemaRetries: 1,
	}, u)
	must.StrContains(t, u.String(), "requests=2 tokens=50")
}
