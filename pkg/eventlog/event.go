package eventlog

import (
	"encoding/json"
	"fmt"
	"time"
)

// Kind classifies an event line.
type Kind string

const (
	KindStep   Kind = "step"   // one worker invocation
	KindRound  Kind = "round"  // one completed coder + tester round
	KindFinish Kind = "finish" // run outcome
	KindGrade  Kind = "grade"  // grading result for the task
)

// Event is one JSONL record of the audit log.
//
//nolint:govet // fieldalignment: field order is the on-disk key order
type Event struct {
	Timestamp time.Time `json:"ts"`
	Kind      Kind      `json:"kind"`
	RunID     string    `json:"run_id"`
	TaskIndex int       `json:"task_index,omitempty"`
	Round     int       `json:"round,omitempty"`
	Role      string    `json:"role,omitempty"`
	Input     string    `json:"input,omitempty"`
	Output    string    `json:"output,omitempty"`
	Signal    string    `json:"signal,omitempty"`
	State     string    `json:"state,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	CostUSD   float64   `json:"cost_usd,omitempty"`
	Tokens    int64     `json:"tokens,omitempty"`
	Error     string    `json:"error,omitempty"`
	Detail    string    `json:"detail,omitempty"`
}

// ToJSON encodes the event as a single line.
func (e *Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// FromJSON decodes one line.
func FromJSON(data []byte) (*Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("failed to decode event: %w", err)
	}
	return &e, nil
}
