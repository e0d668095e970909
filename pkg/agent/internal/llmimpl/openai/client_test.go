package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"triad/pkg/agent/llm"
	"triad/pkg/agent/llmerrors"
	"triad/pkg/tools"
)

func newTestServer(t *testing.T, status int, body string, seen *map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		if seen != nil {
			raw, _ := io.ReadAll(r.Body)
			_ = json.Unmarshal(raw, seen)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestCompleteText(t *testing.T) {
	var req map[string]any
	srv := newTestServer(t, http.StatusOK, `{
		"id": "c1", "object": "chat.completion", "created": 1, "model": "gpt-4o",
		"choices": [{"index": 0, "finish_reason": "stop",
			"message": {"role": "assistant", "content": "PLAN: fix it"}}],
		"usage": {"prompt_tokens": 12, "completion_tokens": 4, "total_tokens": 16}
	}`, &req)

	client := NewClient("test-key", srv.URL+"/v1/", "gpt-4o")
	resp, err := client.Complete(context.Background(), llm.CompletionRequest{
		Messages:  []llm.CompletionMessage{llm.NewSystemMessage("sys"), llm.NewUserMessage("hello")},
		MaxTokens: 100,
	})
	require.NoError(t, err)
	assert.Equal(t, "PLAN: fix it", resp.Content)
	assert.Equal(t, "stop", resp.StopReason)
	assert.Equal(t, 12, resp.Usage.PromptTokens)
	assert.Equal(t, 4, resp.Usage.CompletionTokens)

	assert.Equal(t, "gpt-4o", req["model"])
	msgs, ok := req["messages"].([]any)
	require.True(t, ok)
	assert.Len(t, msgs, 2)
}

func TestCompleteToolCalls(t *testing.T) {
	srv := newTestServer(t, http.StatusOK, `{
		"id": "c2", "object": "chat.completion", "created": 1, "model": "gpt-4o",
		"choices": [{"index": 0, "finish_reason": "tool_calls",
			"message": {"role": "assistant", "content": null, "tool_calls": [
				{"id": "call_1", "type": "function",
				 "function": {"name": "write_file", "arguments": "{\"file_path\":\"a.py\",\"text\":\"x = 1\"}"}}
			]}}],
		"usage": {"prompt_tokens": 20, "completion_tokens": 8, "total_tokens": 28}
	}`, nil)

	client := NewClient("test-key", srv.URL+"/v1/", "gpt-4o")
	resp, err := client.Complete(context.Background(), llm.CompletionRequest{
		Messages: []llm.CompletionMessage{llm.NewUserMessage("write it")},
		Tools: []tools.ToolDefinition{{
			Name: "write_file",
			InputSchema: tools.InputSchema{
				Type:       "object",
				Properties: map[string]tools.Property{"file_path": {Type: "string"}, "text": {Type: "string"}},
				Required:   []string{"file_path", "text"},
			},
		}},
	})
	require.NoError(t, err)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "call_1", resp.ToolCalls[0].ID)
	assert.Equal(t, "write_file", resp.ToolCalls[0].Name)
	assert.Equal(t, "a.py", resp.ToolCalls[0].Parameters["file_path"])
}

func TestCompleteClassifiesStatus(t *testing.T) {
	tests := []struct {
		status int
		want   llmerrors.ErrorType
	}{
		{http.StatusTooManyRequests, llmerrors.ErrorTypeRateLimit},
		{http.StatusUnauthorized, llmerrors.ErrorTypeAuth},
		{http.StatusBadRequest, llmerrors.ErrorTypeBadPrompt},
		{http.StatusBadGateway, llmerrors.ErrorTypeTransient},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := newTestServer(t, tt.status, `{"error": {"message": "nope", "type": "x"}}`, nil)
			client := NewClient("k", srv.URL+"/v1/", "gpt-4o")
			_, err := client.Complete(context.Background(), llm.CompletionRequest{
				Messages: []llm.CompletionMessage{llm.NewUserMessage("hi")},
			})
			require.Error(t, err)
			assert.True(t, llmerrors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestConvertMessagesToolRoundTrip(t *testing.T) {
	msgs, err := convertMessages([]llm.CompletionMessage{
		llm.NewUserMessage("go"),
		{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{{ID: "c1", Name: "read_file", Parameters: map[string]any{"file_path": "a"}}}},
		{Role: llm.RoleUser, ToolResults: []llm.ToolResult{{ToolCallID: "c1", Content: "{}"}}},
	})
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	require.NotNil(t, msgs[1].OfAssistant)
	assert.Equal(t, "c1", msgs[1].OfAssistant.ToolCalls[0].ID)
	require.NotNil(t, msgs[2].OfTool)
	assert.Equal(t, "c1", msgs[2].OfTool.ToolCallID)

	_, err = convertMessages(nil)
	assert.Error(t, err)
}

func TestConvertPropertyToSchema(t *testing.T) {
	prop := tools.Property{
		Type:  "array",
		Items: &tools.Property{Type: "string", Enum: []string{"a", "b"}},
	}
	schema := convertPropertyToSchema(&prop)
	assert.Equal(t, "array", schema["type"])
	items, ok := schema["items"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, items["enum"])
}
