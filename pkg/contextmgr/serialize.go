package contextmgr

import (
	"encoding/json"
	"fmt"
	"time"
)

// SerializedMessage represents a Message in a format suitable for JSON serialization.
type SerializedMessage struct {
	Role        string             `json:"role"`
	Content     string             `json:"content"`
	Timestamp   int64              `json:"timestamp,omitempty"` // Unix millis
	ToolCalls   []SerializedCall   `json:"tool_calls,omitempty"`
	ToolResults []SerializedResult `json:"tool_results,omitempty"`
}

// SerializedCall represents a ToolCall in serialized form.
//
//nolint:govet // struct alignment optimization not critical for serialization types.
type SerializedCall struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// SerializedResult represents a ToolResult in serialized form.
type SerializedResult struct {
	ToolCallID string `json:"tool_call_id"`
	Name       string `json:"name,omitempty"`
	Content    string `json:"content"`
	IsError    bool   `json:"is_error,omitempty"`
}

// Serialize converts the messages to JSON bytes.
func (cm *ContextManager) Serialize() ([]byte, error) {
	messages := cm.GetMessages()
	out := make([]SerializedMessage, len(messages))
	for i := range messages {
		msg := &messages[i]
		sm := SerializedMessage{
			Role:    msg.Role,
			Content: msg.Content,
		}
		if !msg.Timestamp.IsZero() {
			sm.Timestamp = msg.Timestamp.UnixMilli()
		}
		for j := range msg.ToolCalls {
			tc := &msg.ToolCalls[j]
			sm.ToolCalls = append(sm.ToolCalls, SerializedCall{ID: tc.ID, Name: tc.Name, Parameters: tc.Parameters})
		}
		for j := range msg.ToolResults {
			tr := &msg.ToolResults[j]
			sm.ToolResults = append(sm.ToolResults, SerializedResult{
				ToolCallID: tr.ToolCallID, Name: tr.Name, Content: tr.Content, IsError: tr.IsError,
			})
		}
		out[i] = sm
	}

	data, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize context: %w", err)
	}
	return data, nil
}

// Deserialize restores a context manager from Serialize output.
func Deserialize(data []byte) (*ContextManager, error) {
	var in []SerializedMessage
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("failed to deserialize context: %w", err)
	}

	cm := NewContextManager()
	for i := range in {
		sm := &in[i]
		msg := Message{Role: sm.Role, Content: sm.Content}
		if sm.Timestamp != 0 {
			msg.Timestamp = time.UnixMilli(sm.Timestamp)
		}
		for j := range sm.ToolCalls {
			sc := &sm.ToolCalls[j]
			msg.ToolCalls = append(msg.ToolCalls, ToolCall{ID: sc.ID, Name: sc.Name, Parameters: sc.Parameters})
		}
		for j := range sm.ToolResults {
			sr := &sm.ToolResults[j]
			msg.ToolResults = append(msg.ToolResults, ToolResult{
				ToolCallID: sr.ToolCallID, Name: sr.Name, Content: sr.Content, IsError: sr.IsError,
			})
		}
		cm.messages = append(cm.messages, msg)
	}
	return cm, nil
}
