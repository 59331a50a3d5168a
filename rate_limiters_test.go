package apistyles_test

import (
	"context"
	"testing"
	"time"

	"github.com/picatz/apistyles"
	"github.com/shoenig/test/must"
	"golang.org/x/time/rate"
)

func TestNewLimits(t *testing.T) {
	limits := apistyles.NewLimits(60, 1000)

	must.Eq(t, rate.Every(time.Second), limits.Requests.Limit())
	must.Eq(t, 60, limits.Requests.Burst())
	must.Eq(t, 1000, limits.Tokens.Burst())

	// The whole burst is available immediately.
	for i := range 60 {
		must.True(t, limits.Requests.Allow(), must.Sprintf("unexpected rate limit at %d", i))
	}
	must.False(t, limits.Requests.Allow())
}

func TestLimits_Wait_disabled(t *testing.T) {
	limits := apistyles.NewLimits(0, 0)

	for range 1000 {
		must.NoError(t, limits.Wait(t.Context(), 1_000_000))
	}
}

func TestLimits_Wait_clampsOversizedEstimate(t *testing.T) {
	limits := apistyles.NewLimits(10, 100)

	// Larger than the burst, but still admitted once.
	must.NoError(t, limits.Wait(t.Context(), 10_000))
	must.False(t, limits.Tokens.Allow())
}

func TestLimits_Wait_canceled(t *testing.T) {
	limits := apistyles.NewLimits(1, 0)
	must.True(t, limits.Requests.Allow())

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	must.Error(t, limits.Wait(ctx, 0))
}

func TestLimits_Wait_nil(t *testing.T) {
	var limits *apistyles.Limits
	must.NoError(t, limits.Wait(t.Context(), 10))
}

func TestRateLimiters_For(t *testing.T) {
	rl := apistyles.NewRateLimiters(10, 10)

	must.True(t, rl.For(apistyles.StyleTurnBased) == rl.Chat)
	must.True(t, rl.For(apistyles.StyleManaged) == rl.Responses)
	must.True(t, rl.Chat != rl.Responses)

	var none *apistyles.RateLimiters
	must.Nil(t, none.For(apistyles.StyleManaged))
}

func TestEstimateTokens(t *testing.T) {
	must.Eq(t, 0, apistyles.EstimateTokens(0))
	must.Eq(t, 1, apistyles.EstimateTokens(1))
	must.Eq(t, 1, apistyles.EstimateTokens(4))
	must.Eq(t, 2, apistyles.EstimateTokens(5))
}
