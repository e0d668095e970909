// Package ratelimit provides rate limiting middleware for LLM clients.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"triad/pkg/agent/llm"
	"triad/pkg/agent/middleware/metrics"
)

// NewLimiter returns a limiter admitting requestsPerMinute requests, or nil
// when requestsPerMinute is not positive (unlimited).
func NewLimiter(requestsPerMinute int) *rate.Limiter {
	if requestsPerMinute <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(requestsPerMinute)), 1)
}

// Middleware waits on limiter before each request. A nil limiter disables throttling.
// Limiters are shared by every client of the same provider so the three roles draw
// from one budget.
func Middleware(limiter *rate.Limiter, recorder metrics.Recorder) llm.Middleware {
	if recorder == nil {
		recorder = metrics.Nop()
	}
	return func(next llm.LLMClient) llm.LLMClient {
		if limiter == nil {
			return next
		}
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				model := next.GetModelName()
				start := time.Now()
				if !limiter.Allow() {
					recorder.IncThrottle(model, "rate_limit")
					if err := limiter.Wait(ctx); err != nil {
						recorder.IncThrottle(model, "wait_cancelled")
						return llm.CompletionResponse{}, fmt.Errorf("rate limit wait: %w", err)
					}
				}
				recorder.ObserveQueueWait(model, time.Since(start))
				return next.Complete(ctx, req) //nolint:wrapcheck // pass through unchanged
			},
			next.GetModelName,
		)
	}
}
