package persistence

import "time"

// Grade is the pass counts reported by the grading service for a run.
type Grade struct {
	FailToPassPassed int `json:"fail_to_pass_passed"`
	FailToPassTotal  int `json:"fail_to_pass_total"`
	PassToPassPassed int `json:"pass_to_pass_passed"`
	PassToPassTotal  int `json:"pass_to_pass_total"`
}

// RunRecord is one stored orchestration run.
//
//nolint:govet // fieldalignment: mirrors the column order
type RunRecord struct {
	ID         string    `json:"id"`
	TaskIndex  int       `json:"task_index"`
	InstanceID string    `json:"instance_id"`
	Task       string    `json:"task"`
	State      string    `json:"state"`
	Reason     string    `json:"reason"`
	Rounds     int       `json:"rounds"`
	Replans    int       `json:"replans"`
	CostUSD    float64   `json:"cost_usd"`
	Tokens     int64     `json:"tokens"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	EndedAt    time.Time `json:"ended_at,omitempty"`
	Grade      *Grade    `json:"grade,omitempty"`
}

// RoundRow is one stored round of a run.
//
//nolint:govet // fieldalignment: mirrors the column order
type RoundRow struct {
	RunID       string        `json:"run_id"`
	Index       int           `json:"index"`
	Input       string        `json:"input"`
	CoderOutput string        `json:"coder_output"`
	Feedback    string        `json:"feedback"`
	Signal      string        `json:"signal"`
	CostUSD     float64       `json:"cost_usd"`
	Tokens      int64         `json:"tokens"`
	Duration    time.Duration `json:"duration"`
}
