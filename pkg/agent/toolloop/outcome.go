package toolloop

import (
	"fmt"

	"triad/pkg/agent/llm"
)

// OutcomeKind categorizes the result of a toolloop execution.
type OutcomeKind int

const (
	// OutcomeSuccess indicates the model answered without requesting more tools.
	OutcomeSuccess OutcomeKind = iota

	// OutcomeMaxIterations indicates MaxIterations was reached while the model still called tools.
	OutcomeMaxIterations

	// OutcomeLLMError indicates the LLM client failed (network, API error, etc.).
	OutcomeLLMError

	// OutcomeCanceled indicates the context was cancelled or its deadline passed.
	OutcomeCanceled
)

// String returns human-readable name for OutcomeKind.
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "Success"
	case OutcomeMaxIterations:
		return "MaxIterations"
	case OutcomeLLMError:
		return "LLMError"
	case OutcomeCanceled:
		return "Canceled"
	default:
		return fmt.Sprintf("OutcomeKind(%d)", k)
	}
}

// Outcome is the result of one loop execution. Usage covers every completion
// made during the loop, including the ones before a failure.
//
//nolint:govet // Field order optimized for readability over memory alignment
type Outcome struct {
	Kind       OutcomeKind
	Content    string
	Usage      llm.Usage
	Iterations int
	ToolCalls  int
	Err        error
}
