// Package compare runs the same scenarios under both API styles and reports
// what each one cost.
package compare

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/openai/openai-go"
	"github.com/picatz/apistyles"
	"github.com/picatz/apistyles/internal/chat"
	"github.com/picatz/apistyles/internal/responses"
	"github.com/picatz/apistyles/internal/storage"
	"github.com/picatz/apistyles/internal/tools"
	"github.com/picatz/apistyles/internal/tools/weather"
)

// Scenario names a scripted conversation.
type Scenario string

const (
	// ScenarioWeather asks for the weather with a tool, then for typed packing
	// advice in a second turn.
	ScenarioWeather Scenario = "weather"

	// ScenarioSummary extracts a typed repository summary in a single turn.
	ScenarioSummary Scenario = "summarize"
)

// Scenarios lists every scenario in the order Run executes them.
var Scenarios = []Scenario{ScenarioWeather, ScenarioSummary}

// Prompts used by the scenarios.
const (
	WeatherSystemPrompt   = "You are a helpful assistant."
	WeatherQuestion       = "What's the weather in Paris today?"
	AdviceQuestion        = "Great, should I pack an umbrella? Return JSON only."
	SummaryInstructions   = "Extract repo info into the schema."
	DefaultSummaryRequest = "Summarize repo: awesome-embeddings. It collects embedding models and vector search tools."
)

// Result is the outcome of one scenario under one style.
type Result struct {
	Scenario Scenario
	Style    apistyles.Style

	// Text is the free text reply of the tool calling turn, if any.
	Text string

	// Value is the typed reply, PackAdvice or RepoSummary.
	Value any

	// HistoryLen is the number of messages (turn-based) or chained responses
	// (managed) held once the scenario finished.
	HistoryLen int

	Usage    apistyles.Usage
	Duration time.Duration
	Err      error
}

// Answer is the typed reply as compact JSON, or the error text.
func (r Result) Answer() string {
	if r.Err != nil {
		return "error: " + r.Err.Error()
	}
	b, err := json.Marshal(r.Value)
	if err != nil {
		return fmt.Sprint(r.Value)
	}
	return string(b)
}

// Runner executes scenarios against one client.
type Runner struct {
	Client *openai.Client

	// ChatModel and ResponsesModel default to apistyles.DefaultModel.
	ChatModel      string
	ResponsesModel string

	// ParseModel is the model the managed style parses typed replies with.
	ParseModel string

	// Summary is the request text of ScenarioSummary.
	Summary string

	Limits     *apistyles.RateLimiters
	Transcript *storage.Transcript
	Logger     *slog.Logger
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.Default()
	}
	return r.Logger
}

func (r *Runner) registry() (*tools.Registry, error) {
	return tools.NewRegistry(weather.Tool())
}

func (r *Runner) conversation(registry *tools.Registry, system string) *chat.Conversation {
	opts := []chat.Option{
		chat.WithLimits(r.Limits.For(apistyles.StyleTurnBased)),
		chat.WithTranscript(r.Transcript),
		chat.WithLogger(r.logger()),
	}
	if system != "" {
		opts = append(opts, chat.WithSystemPrompt(system))
	}
	if registry != nil {
		opts = append(opts, chat.WithTools(registry))
	}
	return chat.New(r.Client, r.ChatModel, opts...)
}

func (r *Runner) thread(registry *tools.Registry, instructions string) *responses.Thread {
	opts := []responses.Option{
		responses.WithLimits(r.Limits.For(apistyles.StyleManaged)),
		responses.WithTranscript(r.Transcript),
		responses.WithLogger(r.logger()),
		responses.WithParseModel(cmp.Or(r.ParseModel, apistyles.ModelGPT4oStructured)),
	}
	if instructions != "" {
		opts = append(opts, responses.WithInstructions(instructions))
	}
	if registry != nil {
		opts = append(opts, responses.WithTools(registry))
	}
	return responses.New(r.Client, r.ResponsesModel, opts...)
}

// Weather runs ScenarioWeather under style s.
func (r *Runner) Weather(ctx context.Context, s apistyles.Style) (res Result) {
	res = Result{Scenario: ScenarioWeather, Style: s}
	started := time.Now()
	defer func() { res.Duration = time.Since(started) }()

	registry, err := r.registry()
	if err != nil {
		res.Err = err
		return res
	}

	switch s {
	case apistyles.StyleManaged:
		th := r.thread(registry, "")
		defer func() { res.Usage, res.HistoryLen = th.Usage(), th.Len() }()

		turn, err := th.Send(ctx, WeatherQuestion)
		if err != nil {
			res.Err = err
			return res
		}
		res.Text = turn.Text

		advice, err := responses.Parse[apistyles.PackAdvice](ctx, th, AdviceQuestion)
		if err != nil {
			res.Err = err
			return res
		}
		res.Value = advice
	default:
		c := r.conversation(registry, WeatherSystemPrompt)
		defer func() { res.Usage, res.HistoryLen = c.Usage(), c.Len() }()

		turn, err := c.Send(ctx, WeatherQuestion)
		if err != nil {
			res.Err = err
			return res
		}
		res.Text = turn.Text

		advice, err := chat.SendJSON[apistyles.PackAdvice](ctx, c, AdviceQuestion)
		if err != nil {
			res.Err = err
			return res
		}
		res.Value = advice
	}
	return res
}

// Summarize runs ScenarioSummary under style s. The turn-based style asks for
// JSON mode and validates locally, the managed style uses a strict schema.
func (r *Runner) Summarize(ctx context.Context, s apistyles.Style) (res Result) {
	res = Result{Scenario: ScenarioSummary, Style: s}
	started := time.Now()
	defer func() { res.Duration = time.Since(started) }()

	request := cmp.Or(r.Summary, DefaultSummaryRequest)

	switch s {
	case apistyles.StyleManaged:
		th := r.thread(nil, SummaryInstructions)
		defer func() { res.Usage, res.HistoryLen = th.Usage(), th.Len() }()

		summary, err := responses.Parse[apistyles.RepoSummary](ctx, th, request)
		if err != nil {
			res.Err = err
			return res
		}
		res.Value = summary
	default:
		c := r.conversation(nil, SummaryInstructions)
		defer func() { res.Usage, res.HistoryLen = c.Usage(), c.Len() }()

		summary, err := chat.SendJSON[apistyles.RepoSummary](ctx, c, request)
		if err != nil {
			res.Err = err
			return res
		}
		res.Value = summary
	}
	return res
}

// Run executes each scenario under every style, in order. A failing
// scenario is reported in its Result and does not stop the others, unless
// ctx is done.
func (r *Runner) Run(ctx context.Context, scenarios ...Scenario) (*Report, error) {
	if len(scenarios) == 0 {
		scenarios = Scenarios
	}

	report := &Report{}
	for _, sc := range scenarios {
		for _, s := range apistyles.Styles {
			if err := ctx.Err(); err != nil {
				return report, err
			}

			var res Result
			switch sc {
			case ScenarioWeather:
				res = r.Weather(ctx, s)
			case ScenarioSummary:
				res = r.Summarize(ctx, s)
			default:
				return report, fmt.Errorf("unknown scenario %q", sc)
			}

			r.logger().InfoContext(ctx, "scenario finished",
				"scenario", sc,
				"style", s,
				"requests", res.Usage.Requests,
				"tokens", res.Usage.TotalTokens,
				"items_sent", res.Usage.ItemsSent,
				"duration", res.Duration,
				"error", res.Err,
			)
			report.Results = append(report.Results, res)
		}
	}
	return report, nil
}
