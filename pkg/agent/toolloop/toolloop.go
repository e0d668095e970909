// Package toolloop runs the LLM tool-calling loop behind one worker invocation.
package toolloop

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"triad/pkg/agent/llm"
	"triad/pkg/contextmgr"
	"triad/pkg/logx"
	"triad/pkg/tools"
)

// ToolProvider interface defines what toolloop needs from a tool provider.
type ToolProvider interface {
	Get(name string) (tools.Tool, error)
	List() []tools.ToolDefinition
}

// ToolLoop manages LLM interactions with tool calling.
type ToolLoop struct {
	llmClient llm.LLMClient
	logger    *logx.Logger
}

// New creates a new ToolLoop instance.
func New(llmClient llm.LLMClient, logger *logx.Logger) *ToolLoop {
	if logger == nil {
		logger = logx.NewLogger("toolloop")
	}
	return &ToolLoop{
		llmClient: llmClient,
		logger:    logger,
	}
}

// Config defines how the tool loop behaves.
//
//nolint:govet // fieldalignment: struct fields ordered for clarity over memory alignment
type Config struct {
	// ContextManager holds the conversation. The loop appends to it; callers that
	// must not see intermediate tool traffic pass a clone.
	ContextManager *contextmgr.ContextManager

	// ToolProvider executes tool calls. Nil runs the loop without tools.
	ToolProvider ToolProvider

	// InitialPrompt is added as a user message before the first call (optional).
	InitialPrompt string

	MaxIterations int
	MaxTokens     int
	Temperature   float32
}

// Run executes the tool loop until the model answers without tool calls.
// The returned Outcome is always populated; err is non-nil unless Kind is OutcomeSuccess.
func (tl *ToolLoop) Run(ctx context.Context, cfg *Config) (Outcome, error) {
	if cfg.ContextManager == nil {
		return Outcome{Kind: OutcomeLLMError}, fmt.Errorf("ContextManager is required")
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 10
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}

	if cfg.InitialPrompt != "" {
		cfg.ContextManager.AddMessage(contextmgr.RoleUser, cfg.InitialPrompt)
	}

	var toolDefs []tools.ToolDefinition
	if cfg.ToolProvider != nil {
		toolDefs = cfg.ToolProvider.List()
	}

	var out Outcome
	for iteration := 0; iteration < cfg.MaxIterations; iteration++ {
		out.Iterations = iteration + 1
		if err := ctx.Err(); err != nil {
			return tl.fail(out, OutcomeCanceled, fmt.Errorf("%w: %w", ErrGracefulShutdown, err))
		}

		messages := buildMessages(cfg.ContextManager)
		req := llm.CompletionRequest{
			Messages:    messages,
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
			Tools:       toolDefs,
		}

		tl.logger.Debug("Starting LLM call to model '%s' with %d messages, %d tools (iteration %d)",
			tl.llmClient.GetModelName(), len(messages), len(toolDefs), iteration+1)

		start := time.Now()
		resp, err := tl.llmClient.Complete(ctx, req)
		duration := time.Since(start)
		if err != nil {
			tl.logger.Error("LLM call failed after %.3gs: %v", duration.Seconds(), err)
			kind := OutcomeLLMError
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				kind = OutcomeCanceled
			}
			return tl.fail(out, kind, fmt.Errorf("LLM completion failed: %w", err))
		}
		out.Usage = out.Usage.Add(resp.Usage)

		tl.logger.Debug("LLM call completed in %.3gs, response length: %d chars, tool calls: %d",
			duration.Seconds(), len(resp.Content), len(resp.ToolCalls))

		if len(resp.ToolCalls) == 0 {
			cfg.ContextManager.AddAssistantMessage(resp.Content)
			out.Kind = OutcomeSuccess
			out.Content = resp.Content
			return out, nil
		}

		toolCalls := make([]contextmgr.ToolCall, len(resp.ToolCalls))
		for i := range resp.ToolCalls {
			toolCalls[i] = contextmgr.ToolCall{
				ID:         resp.ToolCalls[i].ID,
				Name:       resp.ToolCalls[i].Name,
				Parameters: resp.ToolCalls[i].Parameters,
			}
		}
		cfg.ContextManager.AddAssistantMessageWithTools(resp.Content, toolCalls)

		// Every tool call gets a result, including failed and unknown ones.
		for i := range resp.ToolCalls {
			toolCall := &resp.ToolCalls[i]
			out.ToolCalls++
			resultStr, isError := tl.execTool(ctx, cfg.ToolProvider, toolCall)
			cfg.ContextManager.AddToolResult(toolCall.ID, toolCall.Name, resultStr, isError)
		}
	}

	tl.logger.Warn("Maximum tool iterations (%d) reached", cfg.MaxIterations)
	return tl.fail(out, OutcomeMaxIterations, fmt.Errorf("%w (%d)", ErrMaxIterations, cfg.MaxIterations))
}

func (tl *ToolLoop) fail(out Outcome, kind OutcomeKind, err error) (Outcome, error) {
	out.Kind = kind
	out.Err = err
	return out, err
}

func (tl *ToolLoop) execTool(ctx context.Context, provider ToolProvider, call *llm.ToolCall) (string, bool) {
	if provider == nil {
		return fmt.Sprintf("Tool failed: no tools available for %s", call.Name), true
	}
	tool, err := provider.Get(call.Name)
	if err != nil {
		tl.logger.Warn("Unknown tool %s: %v", call.Name, err)
		return formatToolResult(nil, err)
	}

	start := time.Now()
	result, err := tool.Exec(ctx, call.Parameters)
	if err != nil {
		tl.logger.Warn("Tool %s failed after %.3fs: %v", call.Name, time.Since(start).Seconds(), err)
	} else {
		tl.logger.Debug("Tool %s completed in %.3fs", call.Name, time.Since(start).Seconds())
	}
	return formatToolResult(result, err)
}

// buildMessages converts context manager messages to llm.CompletionMessage format.
func buildMessages(cm *contextmgr.ContextManager) []llm.CompletionMessage {
	contextMessages := cm.GetMessages()

	messages := make([]llm.CompletionMessage, 0, len(contextMessages))
	for i := range contextMessages {
		msg := &contextMessages[i]

		var toolCalls []llm.ToolCall
		if len(msg.ToolCalls) > 0 {
			toolCalls = make([]llm.ToolCall, len(msg.ToolCalls))
			for j := range msg.ToolCalls {
				toolCalls[j] = llm.ToolCall{
					ID:         msg.ToolCalls[j].ID,
					Name:       msg.ToolCalls[j].Name,
					Parameters: msg.ToolCalls[j].Parameters,
				}
			}
		}

		var toolResults []llm.ToolResult
		if len(msg.ToolResults) > 0 {
			toolResults = make([]llm.ToolResult, len(msg.ToolResults))
			for j := range msg.ToolResults {
				toolResults[j] = llm.ToolResult{
					ToolCallID: msg.ToolResults[j].ToolCallID,
					Name:       msg.ToolResults[j].Name,
					Content:    msg.ToolResults[j].Content,
					IsError:    msg.ToolResults[j].IsError,
				}
			}
		}

		messages = append(messages, llm.CompletionMessage{
			Role:        llm.CompletionRole(msg.Role),
			Content:     msg.Content,
			ToolCalls:   toolCalls,
			ToolResults: toolResults,
		})
	}

	return messages
}

// formatToolResult converts tool execution result to string format for context.
func formatToolResult(result any, err error) (string, bool) {
	if err != nil {
		return fmt.Sprintf("Tool failed: %v", err), true
	}

	isError := false
	if resultMap, ok := result.(map[string]any); ok {
		if success, ok := resultMap["success"].(bool); ok && !success {
			isError = true
		}
	}

	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Sprintf("%v", result), isError
	}
	return string(data), isError
}
