// Package metrics exposes Prometheus collectors for remote calls, token use,
// history growth and tool execution, labeled by API style.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/openai/openai-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// LLMBuckets are latency buckets from 100ms to 120s.
var LLMBuckets = []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120}

// HistoryBuckets cover the number of messages or input items in one request.
var HistoryBuckets = prometheus.ExponentialBuckets(1, 2, 10)

var (
	// RequestsTotal counts remote API calls by style, model and status.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "apistyles_requests_total",
			Help: "Remote API requests",
		},
		[]string{"style", "model", "status"},
	)

	// RequestDuration records remote call latency in seconds.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "apistyles_request_duration_seconds",
			Help:    "Remote API request duration",
			Buckets: LLMBuckets,
		},
		[]string{"style", "model"},
	)

	// TokensTotal counts tokens by direction (input/output).
	TokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "apistyles_tokens_total",
			Help: "Token count",
		},
		[]string{"style", "model", "direction"},
	)

	// ItemsSent records how many messages or input items went out per request.
	ItemsSent = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "apistyles_request_items",
			Help:    "Messages or input items sent per request",
			Buckets: HistoryBuckets,
		},
		[]string{"style"},
	)

	// ToolExecutionsTotal counts tool executions by name and outcome.
	ToolExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "apistyles_tool_executions_total",
			Help: "Tool executions",
		},
		[]string{"tool_name", "status"},
	)

	// SchemaRetriesTotal counts re-prompts after output failed validation.
	SchemaRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "apistyles_schema_retries_total",
			Help: "Structured output retries",
		},
		[]string{"style"},
	)
)

// Registry holds every collector of this package.
var Registry = prometheus.NewRegistry()

func init() {
	Registry.MustRegister(collectors()...)
}

func collectors() []prometheus.Collector {
	return []prometheus.Collector{
		RequestsTotal,
		RequestDuration,
		TokensTotal,
		ItemsSent,
		ToolExecutionsTotal,
		SchemaRetriesTotal,
	}
}

// Handler serves the collectors in the Prometheus exposition format, along
// with the Go runtime and process collectors of the default registry.
func Handler() http.Handler {
	return promhttp.HandlerFor(prometheus.Gatherers{Registry, prometheus.DefaultGatherer}, promhttp.HandlerOpts{})
}

// Status maps a call error to a low-cardinality label value: "ok", the HTTP
// status code of an API error, "canceled", or "error".
func Status(err error) string {
	if err == nil {
		return "ok"
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return strconv.Itoa(apiErr.StatusCode)
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "canceled"
	}

	return "error"
}

// ObserveRequest records one remote call.
func ObserveRequest(style, model string, items int, started time.Time, err error) {
	RequestsTotal.WithLabelValues(style, model, Status(err)).Inc()
	RequestDuration.WithLabelValues(style, model).Observe(time.Since(started).Seconds())
	ItemsSent.WithLabelValues(style).Observe(float64(items))
}

// ObserveTokens records token usage reported by the service.
func ObserveTokens(style, model string, input, output int64) {
	TokensTotal.WithLabelValues(style, model, "input").Add(float64(input))
	TokensTotal.WithLabelValues(style, model, "output").Add(float64(output))
}

// UnknownTool is the tool label used for calls to names that are not
// registered, so model supplied names do not become label values.
const UnknownTool = "unknown"

// ObserveTool records one tool execution.
func ObserveTool(name string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	ToolExecutionsTotal.WithLabelValues(name, status).Inc()
}

// ObserveSchemaRetry records one corrective re-prompt.
func ObserveSchemaRetry(style string) {
	SchemaRetriesTotal.WithLabelValues(style).Inc()
}
