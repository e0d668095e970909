// Package agent provides the LLM client factory with middleware chain construction.
package agent

import (
	"fmt"

	"golang.org/x/time/rate"

	"triad/pkg/agent/internal/llmimpl/anthropic"
	"triad/pkg/agent/internal/llmimpl/google"
	"triad/pkg/agent/internal/llmimpl/ollama"
	"triad/pkg/agent/internal/llmimpl/openai"
	"triad/pkg/agent/llm"
	"triad/pkg/agent/middleware/metrics"
	"triad/pkg/agent/middleware/resilience/ratelimit"
	"triad/pkg/agent/middleware/resilience/retry"
	"triad/pkg/agent/middleware/resilience/timeout"
	"triad/pkg/config"
	"triad/pkg/logx"
)

// LLMClientFactory creates LLM clients with properly configured middleware chains.
// All clients it creates share one rate limiter.
type LLMClientFactory struct {
	config          config.LLMConfig
	metricsRecorder metrics.Recorder
	limiter         *rate.Limiter
	provider        string
	apiKey          string
}

// NewLLMClientFactory resolves the provider and API key up front so a
// misconfiguration fails before any task starts.
func NewLLMClientFactory(cfg config.LLMConfig, recorder metrics.Recorder) (*LLMClientFactory, error) {
	provider, err := cfg.ResolvedProvider()
	if err != nil {
		return nil, fmt.Errorf("failed to determine provider for model %s: %w", cfg.Model, err)
	}

	apiKey := cfg.APIKey
	if apiKey == "" {
		if name := config.APIKeyEnv(provider); name != "" {
			apiKey, err = config.GetSecret(name)
			if err != nil {
				return nil, fmt.Errorf("failed to get API key for provider %s: %w", provider, err)
			}
		}
	}

	llmCfg := llm.LLMConfig{
		Provider:    provider,
		APIKey:      apiKey,
		BaseURL:     cfg.BaseURL,
		ModelName:   cfg.Model,
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
	}
	if err := llmCfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid LLM configuration: %w", err)
	}

	if recorder == nil {
		recorder = metrics.Nop()
	}
	return &LLMClientFactory{
		config:          cfg,
		metricsRecorder: recorder,
		limiter:         ratelimit.NewLimiter(cfg.RequestsPerMinute),
		provider:        provider,
		apiKey:          apiKey,
	}, nil
}

// Provider returns the resolved provider name.
func (f *LLMClientFactory) Provider() string {
	return f.provider
}

// CreateClient creates a client for role with the full middleware chain.
func (f *LLMClientFactory) CreateClient(role string, logger *logx.Logger) (llm.LLMClient, error) {
	var rawClient llm.LLMClient
	switch f.provider {
	case config.ProviderOpenAI:
		rawClient = openai.NewClient(f.apiKey, f.config.BaseURL, f.config.Model)
	case config.ProviderAnthropic:
		rawClient = anthropic.NewClaudeClient(f.apiKey, f.config.BaseURL, f.config.Model)
	case config.ProviderGoogle:
		rawClient = google.NewGeminiClientWithModel(f.apiKey, f.config.BaseURL, f.config.Model)
	case config.ProviderOllama:
		rawClient = ollama.NewOllamaClientWithModel(f.config.BaseURL, f.config.Model)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", f.provider)
	}
	return f.Wrap(rawClient, role, logger), nil
}

// Wrap applies the middleware chain to a raw client:
// Metrics -> Retry -> RateLimit -> Timeout -> RawClient.
func (f *LLMClientFactory) Wrap(rawClient llm.LLMClient, role string, logger *logx.Logger) llm.LLMClient {
	retryConfig := retry.DefaultConfig
	retryConfig.MaxAttempts = f.config.MaxRetries + 1

	pricing := config.PricingFor(f.config.Model, config.Pricing{
		InputCPM:  f.config.InputCPM,
		OutputCPM: f.config.OutputCPM,
	})

	return llm.Chain(rawClient,
		metrics.Middleware(f.metricsRecorder, pricing, role, nil, logger),
		retry.Middleware(retry.NewPolicy(retryConfig), logger),
		ratelimit.Middleware(f.limiter, f.metricsRecorder),
		timeout.Middleware(f.config.RequestTimeout),
	)
}
