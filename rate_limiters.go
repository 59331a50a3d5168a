package apistyles

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// Limits is a pair of request and token limiters for one API style.
type Limits struct {
	Requests *rate.Limiter
	Tokens   *rate.Limiter
}

// NewLimits returns limits allowing requestsPerMinute requests and
// tokensPerMinute tokens, each with a burst of one minute's worth.
//
// A non-positive value disables that limiter.
func NewLimits(requestsPerMinute, tokensPerMinute int) *Limits {
	return &Limits{
		Requests: perMinute(requestsPerMinute),
		Tokens:   perMinute(tokensPerMinute),
	}
}

func perMinute(n int) *rate.Limiter {
	if n <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(n)), n)
}

// Wait blocks until a request carrying roughly estimatedTokens tokens may be
// sent, or ctx is done.
//
// Estimates larger than the token burst are clamped, so one oversized request
// drains the bucket instead of failing outright.
func (l *Limits) Wait(ctx context.Context, estimatedTokens int) error {
	if l == nil {
		return nil
	}

	if err := l.Requests.Wait(ctx); err != nil {
		return fmt.Errorf("failed to wait for request rate limit: %w", err)
	}

	if estimatedTokens <= 0 || l.Tokens.Limit() == rate.Inf {
		return nil
	}

	if burst := l.Tokens.Burst(); estimatedTokens > burst {
		estimatedTokens = burst
	}

	if err := l.Tokens.WaitN(ctx, estimatedTokens); err != nil {
		return fmt.Errorf("failed to wait for token rate limit: %w", err)
	}

	return nil
}

// RateLimiters holds the client-side limiters for both API styles.
//
// They are not enforced by the remote service's client library; the chat and
// responses packages call Wait before every request they send.
//
// # Example
//
//	limits := apistyles.RateLimits.For(apistyles.StyleManaged)
//	if err := limits.Wait(ctx, apistyles.EstimateTokens(len(prompt))); err != nil {
//	    return err
//	}
type RateLimiters struct {
	Chat      *Limits
	Responses *Limits
}

// RateLimits is the default set of rate limiters.
//
// # Multiple Organizations
//
// If using multiple organizations, users should create their own rate
// limiters using the NewRateLimiters function.
var RateLimits = NewRateLimiters(DefaultRequestsPerMinute, DefaultTokensPerMinute)

const (
	// DefaultRequestsPerMinute is the default per-style request budget.
	DefaultRequestsPerMinute = 500

	// DefaultTokensPerMinute is the default per-style token budget.
	DefaultTokensPerMinute = 200_000
)

// NewRateLimiters returns independent limiters for each style.
func NewRateLimiters(requestsPerMinute, tokensPerMinute int) *RateLimiters {
	return &RateLimiters{
		Chat:      NewLimits(requestsPerMinute, tokensPerMinute),
		Responses: NewLimits(requestsPerMinute, tokensPerMinute),
	}
}

// For returns the limits for the given style.
func (rl *RateLimiters) For(s Style) *Limits {
	if rl == nil {
		return nil
	}
	switch s {
	case StyleManaged:
		return rl.Responses
	default:
		return rl.Chat
	}
}

// EstimateTokens is a rough token estimate for n bytes of request payload,
// about four bytes per token for English text and JSON.
func EstimateTokens(n int) int {
	if n <= 0 {
		return 0
	}
	return (n + 3) / 4
}
