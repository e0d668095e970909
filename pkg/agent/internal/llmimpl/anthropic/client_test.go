package anthropic

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"triad/pkg/agent/llm"
	"triad/pkg/agent/llmerrors"
)

// TestEnsureAlternation tests the message alternation logic.
func TestEnsureAlternation(t *testing.T) {
	tests := []struct {
		name         string
		input        []llm.CompletionMessage
		expectSystem string
		expectMsgLen int
		errContains  string
	}{
		{
			name:        "empty messages",
			input:       []llm.CompletionMessage{},
			errContains: "message list cannot be empty",
		},
		{
			name: "system message extracted",
			input: []llm.CompletionMessage{
				{Role: llm.RoleSystem, Content: "You are helpful"},
				{Role: llm.RoleUser, Content: "Hello"},
			},
			expectSystem: "You are helpful",
			expectMsgLen: 1,
		},
		{
			name: "multiple system messages concatenated",
			input: []llm.CompletionMessage{
				{Role: llm.RoleSystem, Content: "You are helpful"},
				{Role: llm.RoleSystem, Content: "And concise"},
				{Role: llm.RoleUser, Content: "Hello"},
			},
			expectSystem: "You are helpful\n\nAnd concise",
			expectMsgLen: 1,
		},
		{
			name: "consecutive user messages merged",
			input: []llm.CompletionMessage{
				{Role: llm.RoleUser, Content: "Hello"},
				{Role: llm.RoleUser, Content: "Again"},
			},
			expectMsgLen: 1,
		},
		{
			name: "tool exchange kept",
			input: []llm.CompletionMessage{
				{Role: llm.RoleUser, Content: "go"},
				{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{{ID: "t1", Name: "read_file"}}},
				{Role: llm.RoleUser, ToolResults: []llm.ToolResult{{ToolCallID: "t1", Content: "{}"}}},
			},
			expectMsgLen: 3,
		},
		{
			name: "ends with assistant",
			input: []llm.CompletionMessage{
				{Role: llm.RoleUser, Content: "Hello"},
				{Role: llm.RoleAssistant, Content: "Hi"},
			},
			errContains: "last message must be user role",
		},
		{
			name: "starts with assistant",
			input: []llm.CompletionMessage{
				{Role: llm.RoleAssistant, Content: "Hi"},
			},
			errContains: "first message must be user role",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			system, msgs, err := ensureAlternation(tt.input)
			if tt.errContains != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errContains)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expectSystem, system)
			assert.Len(t, msgs, tt.expectMsgLen)
		})
	}
}

func TestEnsureAlternationMergesContent(t *testing.T) {
	_, msgs, err := ensureAlternation([]llm.CompletionMessage{
		{Role: llm.RoleUser, Content: "Hello"},
		{Role: llm.RoleUser, Content: "Again"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Hello\n\nAgain", msgs[0].Content)
}

func TestComplete(t *testing.T) {
	var seen map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &seen)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "msg_1", "type": "message", "role": "assistant", "model": "claude-sonnet-4-5",
			"content": [
				{"type": "text", "text": "Writing the fix."},
				{"type": "tool_use", "id": "toolu_1", "name": "write_file", "input": {"file_path": "a.py", "text": "x"}}
			],
			"stop_reason": "tool_use", "stop_sequence": null,
			"usage": {"input_tokens": 30, "output_tokens": 9}
		}`)
	}))
	defer srv.Close()

	client := NewClaudeClient("k", srv.URL+"/", "claude-sonnet-4-5")
	resp, err := client.Complete(context.Background(), llm.CompletionRequest{
		Messages:  []llm.CompletionMessage{llm.NewSystemMessage("sys"), llm.NewUserMessage("fix")},
		MaxTokens: 256,
	})
	require.NoError(t, err)
	assert.Equal(t, "Writing the fix.", resp.Content)
	assert.Equal(t, "tool_use", resp.StopReason)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "toolu_1", resp.ToolCalls[0].ID)
	assert.Equal(t, "a.py", resp.ToolCalls[0].Parameters["file_path"])
	assert.Equal(t, 30, resp.Usage.PromptTokens)
	assert.Equal(t, 9, resp.Usage.CompletionTokens)

	assert.Equal(t, "claude-sonnet-4-5", seen["model"])
	assert.NotNil(t, seen["system"])
}

func TestCompleteClassifiesRateLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"type":"error","error":{"type":"rate_limit_error","message":"slow down"}}`)
	}))
	defer srv.Close()

	client := NewClaudeClient("k", srv.URL+"/", "claude-sonnet-4-5")
	_, err := client.Complete(context.Background(), llm.CompletionRequest{
		Messages:  []llm.CompletionMessage{llm.NewUserMessage("hi")},
		MaxTokens: 10,
	})
	require.Error(t, err)
	assert.True(t, llmerrors.Is(err, llmerrors.ErrorTypeRateLimit), "got %v", err)
}
