package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"triad/pkg/agent/llm"
	"triad/pkg/agent/llmerrors"
	"triad/pkg/config"
)

type scriptedClient struct {
	responses []llm.CompletionResponse
	errs      []error
	calls     int
}

func (s *scriptedClient) Complete(_ context.Context, _ llm.CompletionRequest) (llm.CompletionResponse, error) {
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return llm.CompletionResponse{}, s.errs[i]
	}
	if i < len(s.responses) {
		return s.responses[i], nil
	}
	return llm.CompletionResponse{Content: "done"}, nil
}

func (s *scriptedClient) GetModelName() string { return "gpt-4o" }

func testLLMConfig() config.LLMConfig {
	return config.LLMConfig{
		Provider:  config.ProviderOpenAI,
		Model:     "gpt-4o",
		APIKey:    "test-key",
		MaxTokens: 1024,
	}
}

func TestNewLLMClientFactory(t *testing.T) {
	t.Run("explicit key", func(t *testing.T) {
		f, err := NewLLMClientFactory(testLLMConfig(), nil)
		require.NoError(t, err)
		assert.Equal(t, config.ProviderOpenAI, f.Provider())
	})

	t.Run("provider inferred from model", func(t *testing.T) {
		cfg := testLLMConfig()
		cfg.Provider = ""
		cfg.Model = "claude-sonnet-4-5"
		f, err := NewLLMClientFactory(cfg, nil)
		require.NoError(t, err)
		assert.Equal(t, config.ProviderAnthropic, f.Provider())
	})

	t.Run("key from environment", func(t *testing.T) {
		t.Setenv("GEMINI_API_KEY", "env-key")
		cfg := testLLMConfig()
		cfg.Provider = config.ProviderGoogle
		cfg.Model = "gemini-2.5-flash"
		cfg.APIKey = ""
		f, err := NewLLMClientFactory(cfg, nil)
		require.NoError(t, err)
		assert.Equal(t, "env-key", f.apiKey)
	})

	t.Run("missing key", func(t *testing.T) {
		t.Setenv("ANTHROPIC_API_KEY", "")
		cfg := testLLMConfig()
		cfg.Provider = config.ProviderAnthropic
		cfg.APIKey = ""
		_, err := NewLLMClientFactory(cfg, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "ANTHROPIC_API_KEY")
	})

	t.Run("ollama needs no key", func(t *testing.T) {
		cfg := testLLMConfig()
		cfg.Provider = config.ProviderOllama
		cfg.Model = "qwen3"
		cfg.APIKey = ""
		f, err := NewLLMClientFactory(cfg, nil)
		require.NoError(t, err)
		client, err := f.CreateClient("coder", nil)
		require.NoError(t, err)
		assert.Equal(t, "qwen3", client.GetModelName())
	})

	t.Run("unknown model", func(t *testing.T) {
		cfg := testLLMConfig()
		cfg.Provider = ""
		cfg.Model = "mystery-model"
		_, err := NewLLMClientFactory(cfg, nil)
		require.Error(t, err)
	})
}

func TestCreateClientPerProvider(t *testing.T) {
	for _, provider := range []string{config.ProviderOpenAI, config.ProviderAnthropic, config.ProviderGoogle} {
		t.Run(provider, func(t *testing.T) {
			cfg := testLLMConfig()
			cfg.Provider = provider
			f, err := NewLLMClientFactory(cfg, nil)
			require.NoError(t, err)
			client, err := f.CreateClient("planner", nil)
			require.NoError(t, err)
			assert.Equal(t, "gpt-4o", client.GetModelName())
		})
	}
}

func TestWrapFillsCostAndRetries(t *testing.T) {
	cfg := testLLMConfig()
	cfg.MaxRetries = 2
	cfg.InputCPM = 1
	cfg.OutputCPM = 1
	f, err := NewLLMClientFactory(cfg, nil)
	require.NoError(t, err)

	raw := &scriptedClient{
		errs:      []error{llmerrors.NewError(llmerrors.ErrorTypeTransient, "502 bad gateway")},
		responses: []llm.CompletionResponse{{}, {Content: "ok", Usage: llm.Usage{PromptTokens: 500_000, CompletionTokens: 500_000}}},
	}
	client := f.Wrap(raw, "tester", nil)
	assert.Equal(t, "gpt-4o", client.GetModelName())

	// One transient failure costs a single ~500ms backoff.
	resp, err := client.Complete(context.Background(), llm.CompletionRequest{Messages: []llm.CompletionMessage{llm.NewUserMessage("x")}})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
	assert.InDelta(t, 1.0, resp.Usage.CostUSD, 1e-9)
	assert.Equal(t, 2, raw.calls)
}
