package metrics

import (
	"context"
	"strings"
	"time"

	"triad/pkg/agent/llm"
	"triad/pkg/agent/llmerrors"
	"triad/pkg/config"
	"triad/pkg/logx"
	"triad/pkg/utils"
)

const (
	statusSuccess = "success"
	statusError   = "error"
)

// UsageExtractor returns the token usage of a completed request.
type UsageExtractor func(req llm.CompletionRequest, resp llm.CompletionResponse) llm.Usage

// DefaultUsageExtractor trusts provider-reported counts and falls back to a
// tiktoken estimate when the provider reported nothing.
func DefaultUsageExtractor(req llm.CompletionRequest, resp llm.CompletionResponse) llm.Usage {
	if resp.Usage.PromptTokens > 0 || resp.Usage.CompletionTokens > 0 {
		return resp.Usage
	}

	var prompt strings.Builder
	for i := range req.Messages {
		msg := &req.Messages[i]
		prompt.WriteString(msg.Content)
		prompt.WriteByte('\n')
		for j := range msg.ToolResults {
			prompt.WriteString(msg.ToolResults[j].Content)
			prompt.WriteByte('\n')
		}
	}
	completion := resp.Content
	for i := range resp.ToolCalls {
		completion += resp.ToolCalls[i].Name
		for _, v := range resp.ToolCalls[i].Parameters {
			if s, ok := v.(string); ok {
				completion += s
			}
		}
	}
	return llm.Usage{
		PromptTokens:     utils.CountTokensSimple(prompt.String()),
		CompletionTokens: utils.CountTokensSimple(completion),
		Estimated:        true,
	}
}

// Middleware fills resp.Usage (tokens and USD cost) and records metrics for
// every request. role labels the metrics with the worker role.
func Middleware(recorder Recorder, pricing config.Pricing, role string, usageExtractor UsageExtractor, logger *logx.Logger) llm.Middleware {
	if recorder == nil {
		recorder = Nop()
	}
	if usageExtractor == nil {
		usageExtractor = DefaultUsageExtractor
	}

	return func(next llm.LLMClient) llm.LLMClient {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				model := next.GetModelName()
				start := time.Now()
				resp, err := next.Complete(ctx, req)
				duration := time.Since(start)

				if err != nil {
					recorder.ObserveRequest(model, role, 0, 0, 0, false, llmerrors.TypeOf(err).String(), duration)
					if logger != nil {
						logger.Warn("LLM request failed: model=%s role=%s duration=%dms err=%v", model, role, duration.Milliseconds(), err)
					}
					return resp, err //nolint:wrapcheck // pass through unchanged
				}

				usage := usageExtractor(req, resp)
				usage.CostUSD = pricing.Cost(usage.PromptTokens, usage.CompletionTokens)
				resp.Usage = usage

				recorder.ObserveRequest(model, role, usage.PromptTokens, usage.CompletionTokens, usage.CostUSD, true, "", duration)
				if logger != nil {
					logger.Debug("LLM request: model=%s role=%s tokens=%d+%d cost=$%.4f duration=%dms",
						model, role, usage.PromptTokens, usage.CompletionTokens, usage.CostUSD, duration.Milliseconds())
				}
				return resp, nil
			},
			next.GetModelName,
		)
	}
}
