// Package contextmgr holds the append-only conversation log a worker sends to its model.
package contextmgr

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"triad/pkg/utils"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	Parameters map[string]any
	ID         string
	Name       string
}

// ToolResult answers a ToolCall.
type ToolResult struct {
	ToolCallID string
	Name       string
	Content    string
	IsError    bool
}

// Message represents a single message in the conversation context.
type Message struct {
	Timestamp   time.Time
	Role        string
	Content     string
	ToolCalls   []ToolCall
	ToolResults []ToolResult
}

// ContextManager manages conversation context and token counting.
// Messages are only ever appended; there is no compaction or removal.
type ContextManager struct {
	counter  *utils.TokenCounter
	messages []Message
	mu       sync.RWMutex
}

// NewContextManager creates a new context manager instance.
func NewContextManager() *ContextManager {
	return &ContextManager{
		messages: make([]Message, 0),
	}
}

// NewContextManagerWithModel creates a context manager that counts tokens with
// the tokenizer for model.
func NewContextManagerWithModel(model string) *ContextManager {
	cm := NewContextManager()
	if counter, err := utils.NewTokenCounter(model); err == nil {
		cm.counter = counter
	}
	return cm
}

// AddMessage stores a role/content pair in the context.
func (cm *ContextManager) AddMessage(role, content string) {
	cm.append(Message{Role: role, Content: content})
}

// AddAssistantMessage stores a plain assistant reply.
func (cm *ContextManager) AddAssistantMessage(content string) {
	cm.append(Message{Role: RoleAssistant, Content: content})
}

// AddAssistantMessageWithTools stores an assistant reply that requested tool calls.
func (cm *ContextManager) AddAssistantMessageWithTools(content string, calls []ToolCall) {
	cm.append(Message{
		Role:      RoleAssistant,
		Content:   content,
		ToolCalls: append([]ToolCall(nil), calls...),
	})
}

// AddToolResult records the answer to a tool call. Consecutive results share
// one user message so each assistant turn is followed by exactly one reply.
func (cm *ContextManager) AddToolResult(toolCallID, name, content string, isError bool) {
	result := ToolResult{ToolCallID: toolCallID, Name: name, Content: content, IsError: isError}

	cm.mu.Lock()
	defer cm.mu.Unlock()
	if n := len(cm.messages); n > 0 {
		last := &cm.messages[n-1]
		if last.Role == RoleUser && last.Content == "" && len(last.ToolResults) > 0 {
			last.ToolResults = append(last.ToolResults, result)
			return
		}
	}
	cm.messages = append(cm.messages, Message{
		Timestamp:   time.Now(),
		Role:        RoleUser,
		ToolResults: []ToolResult{result},
	})
}

func (cm *ContextManager) append(msg Message) {
	msg.Timestamp = time.Now()
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.messages = append(cm.messages, msg)
}

// GetMessages returns a copy of all messages in the context.
func (cm *ContextManager) GetMessages() []Message {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	result := make([]Message, len(cm.messages))
	copy(result, cm.messages)
	return result
}

// GetMessageCount returns the number of messages in the context.
func (cm *ContextManager) GetMessageCount() int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.messages)
}

// Clone returns an independent copy. Appends to the clone never reach cm.
func (cm *ContextManager) Clone() *ContextManager {
	return &ContextManager{
		counter:  cm.counter,
		messages: cm.GetMessages(),
	}
}

// CountTokens estimates the token size of the whole context.
func (cm *ContextManager) CountTokens() int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	total := 0
	for i := range cm.messages {
		msg := &cm.messages[i]
		total += cm.count(msg.Content)
		for j := range msg.ToolResults {
			total += cm.count(msg.ToolResults[j].Content)
		}
		for j := range msg.ToolCalls {
			total += cm.count(fmt.Sprint(msg.ToolCalls[j].Parameters))
		}
	}
	return total
}

func (cm *ContextManager) count(s string) int {
	if s == "" {
		return 0
	}
	if cm.counter != nil {
		return cm.counter.CountTokens(s)
	}
	return utils.CountTokensSimple(s)
}

// GetContextSummary returns a brief summary of the context state.
func (cm *ContextManager) GetContextSummary() string {
	messages := cm.GetMessages()
	if len(messages) == 0 {
		return "Empty context"
	}

	roleCounts := make(map[string]int)
	for i := range messages {
		roleCounts[messages[i].Role]++
	}
	roleBreakdown := make([]string, 0, len(roleCounts))
	for role, count := range roleCounts {
		roleBreakdown = append(roleBreakdown, fmt.Sprintf("%s: %d", role, count))
	}
	sort.Strings(roleBreakdown)

	return fmt.Sprintf("%d messages (%d tokens) - %s",
		len(messages), cm.CountTokens(), strings.Join(roleBreakdown, ", "))
}
