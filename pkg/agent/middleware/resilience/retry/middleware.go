package retry

import (
	"context"
	"fmt"

	"triad/pkg/agent/llm"
	"triad/pkg/agent/llmerrors"
	"triad/pkg/logx"
)

// Middleware returns a middleware function that wraps an LLM client with retry logic.
// Once a retryable error exhausts the policy it is reported as ErrorTypeServiceUnavailable.
func Middleware(policy *Policy, logger *logx.Logger) llm.Middleware {
	return func(next llm.LLMClient) llm.LLMClient {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				var lastErr error

				for attempt := 1; attempt <= policy.Config.MaxAttempts; attempt++ {
					if attempt > 1 {
						delay := policy.CalculateDelay(attempt, lastErr)
						if logger != nil {
							logger.Warn("Retrying LLM request (attempt %d/%d) in %s: %v",
								attempt, policy.Config.MaxAttempts, delay, lastErr)
						}
						if err := policy.sleep(ctx, delay); err != nil {
							return llm.CompletionResponse{}, fmt.Errorf("retry cancelled: %w", err)
						}
					}

					resp, err := next.Complete(ctx, req)
					if err == nil {
						return resp, nil
					}
					lastErr = err

					if !policy.ShouldRetry(err) {
						break
					}
				}

				if policy.ShouldRetry(lastErr) {
					return llm.CompletionResponse{}, llmerrors.NewServiceUnavailableError(lastErr, policy.Config.MaxAttempts)
				}
				return llm.CompletionResponse{}, lastErr
			},
			next.GetModelName,
		)
	}
}
