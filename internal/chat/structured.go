package chat

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/shared"
	"github.com/picatz/apistyles/internal/metrics"
	"github.com/picatz/apistyles/internal/schema"
)

// SendJSON sends text in JSON mode and decodes the reply into T.
//
// JSON mode only promises syntactically valid JSON, so the reply is validated
// against the schema of T here. When it does not match, the error and the
// schema are sent back as a corrective user message, up to MaxSchemaRetries
// times. The final failure wraps schema.ErrInvalidJSON or a
// *schema.ValidationError. On any error the history is restored.
func SendJSON[T any](ctx context.Context, c *Conversation, text string) (T, error) {
	var zero T

	s, err := schema.For[T]()
	if err != nil {
		return zero, err
	}

	c.maybeCompact(ctx)

	mark := len(c.Messages)
	c.Messages = append(c.Messages, openai.UserMessage(text))

	turn := &Turn{}
	for attempt := 0; ; attempt++ {
		params := c.params()
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}

		msg, err := c.complete(ctx, params, turn)
		if err != nil {
			c.Messages = c.Messages[:mark]
			return zero, err
		}
		c.Messages = append(c.Messages, msg.ToParam())

		if msg.Refusal != "" {
			c.Messages = c.Messages[:mark]
			return zero, fmt.Errorf("%w: %s", schema.ErrRefusal, msg.Refusal)
		}

		v, err := schema.Decode[T](msg.Content)
		if err == nil {
			turn.Text = msg.Content
			c.record(ctx, text, turn)
			return v, nil
		}

		var verr *schema.ValidationError
		if !errors.Is(err, schema.ErrInvalidJSON) && !errors.As(err, &verr) {
			c.Messages = c.Messages[:mark]
			return zero, err
		}

		if attempt >= c.MaxSchemaRetries {
			c.Messages = c.Messages[:mark]
			return zero, fmt.Errorf("reply did not match %s after %d retries: %w", s.Name, attempt, err)
		}

		c.Logger.InfoContext(ctx, "retrying structured output", "style", style, "schema", s.Name, "attempt", attempt+1, "error", err)
		metrics.ObserveSchemaRetry(style)
		c.usage.SchemaRetries++
		turn.Usage.SchemaRetries++

		c.Messages = append(c.Messages, openai.UserMessage(correction(s, err)))
	}
}

func correction(s *schema.Schema, err error) string {
	return fmt.Sprintf("Your last reply was rejected: %s.\n"+
		"Reply again with only a JSON object that matches this JSON schema exactly, with no other keys:\n%s",
		err, s.String())
}

// Parse sends text with a strict json_schema response format derived from T,
// so the service constrains the reply to the schema, and decodes the result.
func Parse[T any](ctx context.Context, c *Conversation, text string) (T, error) {
	var zero T

	s, err := schema.For[T]()
	if err != nil {
		return zero, err
	}

	c.maybeCompact(ctx)

	mark := len(c.Messages)
	c.Messages = append(c.Messages, openai.UserMessage(text))

	params := c.params()
	params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
		OfJSONSchema: &shared.ResponseFormatJSONSchemaParam{
			JSONSchema: shared.ResponseFormatJSONSchemaJSONSchemaParam{
				Name:   s.Name,
				Schema: s.Map(),
				Strict: openai.Bool(true),
			},
		},
	}

	turn := &Turn{}
	msg, err := c.complete(ctx, params, turn)
	if err != nil {
		c.Messages = c.Messages[:mark]
		return zero, err
	}

	if msg.Refusal != "" {
		c.Messages = c.Messages[:mark]
		return zero, fmt.Errorf("%w: %s", schema.ErrRefusal, msg.Refusal)
	}

	v, err := schema.Decode[T](msg.Content)
	if err != nil {
		c.Messages = c.Messages[:mark]
		return zero, err
	}

	c.Messages = append(c.Messages, msg.ToParam())
	turn.Text = msg.Content
	c.record(ctx, text, turn)
	return v, nil
}
