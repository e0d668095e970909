package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubClient struct {
	calls int
}

func (s *stubClient) Complete(_ context.Context, req CompletionRequest) (CompletionResponse, error) {
	s.calls++
	return CompletionResponse{Content: req.Messages[len(req.Messages)-1].Content}, nil
}

func (s *stubClient) GetModelName() string { return "stub" }

func tagging(tag string, order *[]string) Middleware {
	return func(next LLMClient) LLMClient {
		return WrapClient(
			func(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
				*order = append(*order, tag)
				return next.Complete(ctx, req)
			},
			next.GetModelName,
		)
	}
}

func TestChainOrder(t *testing.T) {
	var order []string
	base := &stubClient{}
	client := Chain(base, tagging("outer", &order), tagging("inner", &order))

	resp, err := client.Complete(context.Background(), CompletionRequest{
		Messages: []CompletionMessage{NewUserMessage("ping")},
	})
	require.NoError(t, err)
	assert.Equal(t, "ping", resp.Content)
	assert.Equal(t, []string{"outer", "inner"}, order)
	assert.Equal(t, 1, base.calls)
	assert.Equal(t, "stub", client.GetModelName())
}

func TestChainWithoutMiddleware(t *testing.T) {
	base := &stubClient{}
	assert.Same(t, LLMClient(base), Chain(base))
}

func TestUsageAdd(t *testing.T) {
	a := Usage{PromptTokens: 10, CompletionTokens: 5, CostUSD: 0.5}
	b := Usage{PromptTokens: 1, CompletionTokens: 2, CostUSD: 0.25, Estimated: true}
	sum := a.Add(b)
	assert.Equal(t, 11, sum.PromptTokens)
	assert.Equal(t, 7, sum.CompletionTokens)
	assert.Equal(t, 18, sum.TotalTokens())
	assert.InDelta(t, 0.75, sum.CostUSD, 1e-12)
	assert.True(t, sum.Estimated)
}

func TestLLMConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     LLMConfig
		wantErr bool
	}{
		{"ok", LLMConfig{APIKey: "k", ModelName: "gpt-4o", MaxTokens: 10, Temperature: 0.2}, false},
		{"ollama without key", LLMConfig{Provider: "ollama", ModelName: "llama3", MaxTokens: 10}, false},
		{"missing key", LLMConfig{ModelName: "gpt-4o", MaxTokens: 10}, true},
		{"missing model", LLMConfig{APIKey: "k", MaxTokens: 10}, true},
		{"zero tokens", LLMConfig{APIKey: "k", ModelName: "m"}, true},
		{"hot", LLMConfig{APIKey: "k", ModelName: "m", MaxTokens: 1, Temperature: 2.5}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
