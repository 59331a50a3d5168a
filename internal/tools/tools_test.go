package tools_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/picatz/apistyles/internal/metrics"
	"github.com/picatz/apistyles/internal/schema"
	"github.com/picatz/apistyles/internal/tools"
	"github.com/picatz/apistyles/internal/tools/weather"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shoenig/test/must"
)

func TestRegistry_register(t *testing.T) {
	r, err := tools.NewRegistry(weather.Tool())
	must.NoError(t, err)
	must.Eq(t, 1, r.Len())

	err = r.Register(weather.Tool())
	must.ErrorContains(t, err, "already registered")

	err = r.Register(&tools.Tool{Handler: func(context.Context, json.RawMessage) (any, error) { return nil, nil }})
	must.ErrorContains(t, err, "name is empty")

	err = r.Register(&tools.Tool{Name: "noop"})
	must.ErrorContains(t, err, "no handler")

	must.NoError(t, r.Register(&tools.Tool{
		Name:    "a_first",
		Handler: func(context.Context, json.RawMessage) (any, error) { return "ok", nil },
	}))
	must.Eq(t, []string{"a_first", weather.Name}, r.Names())
}

func TestRegistry_call(t *testing.T) {
	r, err := tools.NewRegistry(weather.Tool())
	must.NoError(t, err)

	out, err := r.Call(t.Context(), weather.Name, `{"city":"Paris"}`)
	must.NoError(t, err)
	must.Eq(t, `{"city":"Paris","temp_c":17,"condition":"rain"}`, out)

	_, err = r.Call(t.Context(), "get_time", `{}`)
	must.ErrorIs(t, err, tools.ErrUnknownTool)

	_, err = r.Call(t.Context(), weather.Name, `{"town":"Paris"}`)
	var verr *schema.ValidationError
	must.ErrorAs(t, err, &verr)

	_, err = r.Call(t.Context(), weather.Name, `not json`)
	must.ErrorIs(t, err, schema.ErrInvalidJSON)
}

func TestRegistry_callUnknownMetricLabel(t *testing.T) {
	r, err := tools.NewRegistry(weather.Tool())
	must.NoError(t, err)

	before := testutil.ToFloat64(metrics.ToolExecutionsTotal.WithLabelValues(metrics.UnknownTool, "error"))
	_, err = r.Call(t.Context(), "rm_rf_everything", `{}`)
	must.ErrorIs(t, err, tools.ErrUnknownTool)
	must.Eq(t, before+1, testutil.ToFloat64(metrics.ToolExecutionsTotal.WithLabelValues(metrics.UnknownTool, "error")))

	families, err := metrics.Registry.Gather()
	must.NoError(t, err)
	for _, f := range families {
		for _, m := range f.GetMetric() {
			for _, l := range m.GetLabel() {
				must.NotEq(t, "rm_rf_everything", l.GetValue())
			}
		}
	}
}

func TestRegistry_output(t *testing.T) {
	r, err := tools.NewRegistry(&tools.Tool{
		Name: "broken",
		Handler: func(context.Context, json.RawMessage) (any, error) {
			return nil, errors.New("service unavailable")
		},
	})
	must.NoError(t, err)

	out, err := r.Output(t.Context(), "broken", "")
	must.Error(t, err)

	var body map[string]string
	must.NoError(t, json.Unmarshal([]byte(out), &body))
	must.StrContains(t, body["error"], "service unavailable")
}

func TestRegistry_shapes(t *testing.T) {
	r, err := tools.NewRegistry(weather.Tool())
	must.NoError(t, err)

	chat := r.ChatTools()
	must.SliceLen(t, 1, chat)

	b, err := json.Marshal(chat[0])
	must.NoError(t, err)

	var nested map[string]any
	must.NoError(t, json.Unmarshal(b, &nested))
	must.Eq(t, "function", nested["type"])
	fn := nested["function"].(map[string]any)
	must.Eq(t, weather.Name, fn["name"])
	must.Eq(t, "Get current weather by city.", fn["description"])
	must.MapContainsKey(t, fn, "parameters")

	resp := r.ResponseTools()
	must.SliceLen(t, 1, resp)

	b, err = json.Marshal(resp[0])
	must.NoError(t, err)

	var flat map[string]any
	must.NoError(t, json.Unmarshal(b, &flat))
	must.Eq(t, "function", flat["type"])
	must.Eq(t, weather.Name, flat["name"])
	must.Eq(t, true, flat["strict"])
	must.MapNotContainsKey(t, flat, "function")

	params := flat["parameters"].(map[string]any)
	must.Eq(t, false, params["additionalProperties"])
	must.Eq[any](t, []any{"city"}, params["required"])
}

func TestRegistry_nil(t *testing.T) {
	var r *tools.Registry
	must.Eq(t, 0, r.Len())
	must.SliceEmpty(t, r.ChatTools())
	must.SliceEmpty(t, r.ResponseTools())
}
