package google

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"triad/pkg/agent/llm"
	"triad/pkg/tools"
)

func TestNewGeminiClientWithModel(t *testing.T) {
	client := NewGeminiClientWithModel("test-key", "", "gemini-2.5-flash")
	require.NotNil(t, client)
	assert.Equal(t, "gemini-2.5-flash", client.GetModelName())
}

func TestConvertMessagesToGemini(t *testing.T) {
	tests := []struct {
		name       string
		messages   []llm.CompletionMessage
		wantLen    int
		wantSystem string
		wantErr    bool
	}{
		{
			name:     "empty messages",
			messages: nil,
			wantErr:  true,
		},
		{
			name: "system extracted",
			messages: []llm.CompletionMessage{
				llm.NewSystemMessage("be brief"),
				llm.NewUserMessage("hello"),
			},
			wantLen:    1,
			wantSystem: "be brief",
		},
		{
			name: "tool exchange",
			messages: []llm.CompletionMessage{
				llm.NewUserMessage("go"),
				{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{{ID: "c1", Name: "read_file", Parameters: map[string]any{"file_path": "a"}}}},
				{Role: llm.RoleUser, ToolResults: []llm.ToolResult{{ToolCallID: "c1", Name: "read_file", Content: "A"}}},
			},
			wantLen: 3,
		},
		{
			name:     "unsupported role",
			messages: []llm.CompletionMessage{{Role: "tool", Content: "x"}},
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			contents, system, err := convertMessagesToGemini(tt.messages)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, contents, tt.wantLen)
			assert.Equal(t, tt.wantSystem, system)
		})
	}
}

func TestConvertMessagesToGeminiRoles(t *testing.T) {
	contents, _, err := convertMessagesToGemini([]llm.CompletionMessage{
		llm.NewUserMessage("go"),
		{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{{ID: "c1", Name: "read_file"}}},
		{Role: llm.RoleUser, ToolResults: []llm.ToolResult{{ToolCallID: "c1", Name: "read_file", Content: "A"}}},
	})
	require.NoError(t, err)
	assert.Equal(t, "user", contents[0].Role)
	assert.Equal(t, "model", contents[1].Role)
	require.NotNil(t, contents[1].Parts[0].FunctionCall)
	assert.Equal(t, "read_file", contents[1].Parts[0].FunctionCall.Name)
	require.NotNil(t, contents[2].Parts[0].FunctionResponse)
	assert.Equal(t, "read_file", contents[2].Parts[0].FunctionResponse.Name)
	assert.Equal(t, "A", contents[2].Parts[0].FunctionResponse.Response["content"])
}

func TestConvertToolsToGemini(t *testing.T) {
	decls := convertToolsToGemini([]tools.ToolDefinition{{
		Name:        "list_directory",
		Description: "List files",
		InputSchema: tools.InputSchema{
			Type: "object",
			Properties: map[string]tools.Property{
				"dir_path": {Type: "string"},
				"tags":     {Type: "array", Items: &tools.Property{Type: "string"}},
				"mode":     {Type: "string", Enum: []string{"a", "b"}},
			},
			Required: []string{"dir_path"},
		},
	}})
	require.Len(t, decls, 1)
	assert.Equal(t, "list_directory", decls[0].Name)
	assert.Equal(t, genai.TypeObject, decls[0].Parameters.Type)
	assert.Equal(t, genai.TypeString, decls[0].Parameters.Properties["dir_path"].Type)
	assert.Equal(t, genai.TypeArray, decls[0].Parameters.Properties["tags"].Type)
	assert.Equal(t, genai.TypeString, decls[0].Parameters.Properties["tags"].Items.Type)
	assert.Equal(t, []string{"a", "b"}, decls[0].Parameters.Properties["mode"].Enum)
}

func TestConvertFunctionCallsFromGemini(t *testing.T) {
	calls := convertFunctionCallsFromGemini([]*genai.FunctionCall{
		{Name: "read_file", Args: map[string]any{"file_path": "x"}},
		{ID: "abc", Name: "write_file"},
	})
	require.Len(t, calls, 2)
	assert.Equal(t, "read_file", calls[0].ID)
	assert.Equal(t, "x", calls[0].Parameters["file_path"])
	assert.Equal(t, "abc", calls[1].ID)
}

func TestGetStopReason(t *testing.T) {
	assert.Equal(t, "unknown", getStopReason(nil))
	assert.Equal(t, "end_turn", getStopReason(&genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{FinishReason: genai.FinishReasonStop}},
	}))
	assert.Equal(t, "max_tokens", getStopReason(&genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{FinishReason: genai.FinishReasonMaxTokens}},
	}))
}
