package responses

import (
	"cmp"
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/responses"
	"github.com/picatz/apistyles/internal/schema"
)

// Parse continues the thread with text and asks for a reply constrained to
// the strict JSON schema of T, which is returned as a typed value. Only the
// new user turn is sent. A refusal is returned as schema.ErrRefusal.
func Parse[T any](ctx context.Context, t *Thread, text string) (T, error) {
	var zero T

	s, err := schema.For[T]()
	if err != nil {
		return zero, err
	}

	params := t.params(cmp.Or(t.ParseModel, t.Model), userInput(text), false)
	params.Text = responses.ResponseTextConfigParam{
		Format: responses.ResponseFormatTextConfigUnionParam{
			OfJSONSchema: &responses.ResponseFormatTextJSONSchemaConfigParam{
				Name:   s.Name,
				Schema: s.Map(),
				Strict: openai.Bool(true),
			},
		},
	}

	mark := t.checkpoint()
	turn := &Turn{PreviousResponseID: t.PreviousResponseID}

	resp, err := t.create(ctx, params, turn)
	if err != nil {
		t.rewind(mark)
		return zero, err
	}

	if refusal := refusalText(resp); refusal != "" {
		t.rewind(mark)
		return zero, fmt.Errorf("%w: %s", schema.ErrRefusal, refusal)
	}

	raw := resp.OutputText()
	v, err := schema.Decode[T](raw)
	if err != nil {
		t.rewind(mark)
		return zero, err
	}

	turn.Text = raw
	t.record(ctx, text, turn)
	return v, nil
}

func refusalText(resp *responses.Response) string {
	for _, item := range resp.Output {
		for _, content := range item.Content {
			if content.Type == "refusal" {
				return content.Refusal
			}
		}
	}
	return ""
}
