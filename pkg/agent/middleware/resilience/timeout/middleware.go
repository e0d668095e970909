// Package timeout bounds each LLM request with its own deadline.
package timeout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"triad/pkg/agent/llm"
	"triad/pkg/agent/llmerrors"
)

// Middleware returns a middleware that applies a per-request timeout.
// A deadline hit by this middleware (not the caller) is reported as transient
// so the retry layer above can try again.
func Middleware(timeout time.Duration) llm.Middleware {
	return func(next llm.LLMClient) llm.LLMClient {
		if timeout <= 0 {
			return next
		}
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				reqCtx, cancel := context.WithTimeout(ctx, timeout)
				defer cancel()

				resp, err := next.Complete(reqCtx, req)
				if err != nil && ctx.Err() == nil && errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
					return resp, llmerrors.NewErrorWithCause(llmerrors.ErrorTypeTransient, err,
						fmt.Sprintf("request timed out after %s", timeout))
				}
				return resp, err //nolint:wrapcheck // pass through unchanged
			},
			next.GetModelName,
		)
	}
}
