// Package ollama provides the Ollama client for the LLM interface.
// Ollama is a local LLM runtime that allows running open-source models.
package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"

	"triad/pkg/agent/llm"
	"triad/pkg/agent/llmerrors"
	"triad/pkg/tools"
)

// DefaultHost is used when no base URL is configured.
const DefaultHost = "http://localhost:11434"

// Client wraps the Ollama API client to implement llm.LLMClient interface.
type Client struct {
	client  *api.Client
	model   string
	hostURL string
}

// NewOllamaClientWithModel creates a new Ollama client with specific model.
// hostURL should be the Ollama server URL (e.g., "http://localhost:11434").
func NewOllamaClientWithModel(hostURL, model string) llm.LLMClient {
	if hostURL == "" {
		hostURL = DefaultHost
	}
	parsedURL, err := url.Parse(hostURL)
	if err != nil || parsedURL.Scheme == "" || parsedURL.Host == "" {
		parsedURL, _ = url.Parse(DefaultHost)
	}

	return &Client{
		client:  api.NewClient(parsedURL, http.DefaultClient),
		model:   model,
		hostURL: parsedURL.String(),
	}
}

// Complete implements the llm.LLMClient interface.
//
//nolint:gocritic // CompletionRequest size acceptable for interface consistency
func (o *Client) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	messages, err := convertMessagesToOllama(in.Messages)
	if err != nil {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeBadPrompt, fmt.Sprintf("message conversion error: %v", err))
	}

	stream := false
	req := &api.ChatRequest{
		Model:    o.model,
		Messages: messages,
		Stream:   &stream,
		Options: map[string]any{
			"temperature": in.Temperature,
			"num_predict": in.MaxTokens,
		},
	}
	if len(in.Tools) > 0 {
		req.Tools, err = convertToolsToOllama(in.Tools)
		if err != nil {
			return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeBadPrompt, fmt.Sprintf("tool conversion error: %v", err))
		}
	}

	var response api.ChatResponse
	err = o.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		response = resp
		return nil
	})
	if err != nil {
		return llm.CompletionResponse{}, classifyError(err)
	}

	result := llm.CompletionResponse{
		Content:    response.Message.Content,
		StopReason: getStopReason(&response),
		Usage: llm.Usage{
			PromptTokens:     response.PromptEvalCount,
			CompletionTokens: response.EvalCount,
		},
	}
	if len(response.Message.ToolCalls) > 0 {
		result.ToolCalls, err = convertToolCallsFromOllama(response.Message.ToolCalls)
		if err != nil {
			return llm.CompletionResponse{}, llmerrors.NewErrorWithCause(llmerrors.ErrorTypeTransient, err, "malformed tool calls")
		}
	}
	if result.Content == "" && len(result.ToolCalls) == 0 {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "Ollama returned no content and no tool calls")
	}
	return result, nil
}

// GetModelName returns the model name for this client.
func (o *Client) GetModelName() string {
	return o.model
}

// wire mirrors of the Ollama chat schema. Going through JSON keeps the
// conversion independent of how the api package represents argument maps.
type wireToolCall struct {
	ID       string `json:"id,omitempty"`
	Function struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	} `json:"function"`
}

type wireMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content"`
	ToolCalls  []wireToolCall `json:"tool_calls,omitempty"`
	ToolName   string         `json:"tool_name,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
}

// convertMessagesToOllama converts our message format to Ollama's Message format.
// Tool results are sent as separate messages with role "tool".
func convertMessagesToOllama(messages []llm.CompletionMessage) ([]api.Message, error) {
	if len(messages) == 0 {
		return nil, fmt.Errorf("message list cannot be empty")
	}

	wire := make([]wireMessage, 0, len(messages))
	for i := range messages {
		msg := &messages[i]
		for j := range msg.ToolResults {
			tr := &msg.ToolResults[j]
			wire = append(wire, wireMessage{
				Role:       "tool",
				Content:    tr.Content,
				ToolName:   tr.Name,
				ToolCallID: tr.ToolCallID,
			})
		}
		if len(msg.ToolResults) > 0 && msg.Content == "" {
			continue
		}

		wm := wireMessage{Role: string(msg.Role), Content: msg.Content}
		for j := range msg.ToolCalls {
			tc := &msg.ToolCalls[j]
			var call wireToolCall
			call.ID = tc.ID
			call.Function.Name = tc.Name
			call.Function.Arguments = tc.Parameters
			if call.Function.Arguments == nil {
				call.Function.Arguments = map[string]any{}
			}
			wm.ToolCalls = append(wm.ToolCalls, call)
		}
		wire = append(wire, wm)
	}

	raw, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("marshal messages: %w", err)
	}
	var result []api.Message
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("decode messages: %w", err)
	}
	return result, nil
}

// convertToolsToOllama converts our tool definitions to Ollama's Tool format.
func convertToolsToOllama(toolDefs []tools.ToolDefinition) (api.Tools, error) {
	type wireFunction struct {
		Name        string            `json:"name"`
		Description string            `json:"description"`
		Parameters  tools.InputSchema `json:"parameters"`
	}
	type wireTool struct {
		Type     string       `json:"type"`
		Function wireFunction `json:"function"`
	}

	wire := make([]wireTool, len(toolDefs))
	for i := range toolDefs {
		td := &toolDefs[i]
		schema := td.InputSchema
		if schema.Type == "" {
			schema.Type = "object"
		}
		wire[i] = wireTool{
			Type: "function",
			Function: wireFunction{
				Name:        td.Name,
				Description: td.Description,
				Parameters:  schema,
			},
		}
	}

	raw, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("marshal tools: %w", err)
	}
	var result api.Tools
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("decode tools: %w", err)
	}
	return result, nil
}

// convertToolCallsFromOllama extracts tool calls from Ollama response.
func convertToolCallsFromOllama(calls []api.ToolCall) ([]llm.ToolCall, error) {
	raw, err := json.Marshal(calls)
	if err != nil {
		return nil, fmt.Errorf("marshal tool calls: %w", err)
	}
	var wire []wireToolCall
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("decode tool calls: %w", err)
	}

	result := make([]llm.ToolCall, len(wire))
	for i := range wire {
		// Generate an ID if not provided
		id := wire[i].ID
		if id == "" {
			id = fmt.Sprintf("call_%d", i)
		}
		result[i] = llm.ToolCall{
			ID:         id,
			Name:       wire[i].Function.Name,
			Parameters: wire[i].Function.Arguments,
		}
	}
	return result, nil
}

// getStopReason converts Ollama's done_reason to our stop reason format.
func getStopReason(resp *api.ChatResponse) string {
	if !resp.Done {
		return "incomplete"
	}

	switch resp.DoneReason {
	case "stop", "":
		return "end_turn"
	case "length":
		return "max_tokens"
	default:
		return resp.DoneReason
	}
}

// classifyError converts Ollama errors to our error types.
func classifyError(err error) error {
	errStr := err.Error()
	switch {
	case strings.Contains(errStr, "connection refused"):
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeTransient, err, "Ollama server not reachable")
	case strings.Contains(errStr, "model") && strings.Contains(errStr, "not found"):
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeBadPrompt, err, "Ollama model not found")
	default:
		return llmerrors.Classify(err)
	}
}
