package feedback

import (
	"context"
	"strings"

	"triad/pkg/usage"
)

// Signal is the control directive found in tester output.
type Signal string

const (
	SignalNone      Signal = "none"
	SignalTerminate Signal = "terminate"
	SignalReplan    Signal = "replan"
)

// Signal keywords, matched as case-insensitive substrings.
const (
	KeywordTerminate = "TERMINATE"
	KeywordReplan    = "REPLAN"
)

// Verdict is the tester's decision for one round. Feedback always holds the
// tester's raw text.
type Verdict struct {
	Signal   Signal
	Feedback string
}

// Continue is a verdict asking the coder to act on feedback.
func Continue(feedback string) Verdict { return Verdict{Signal: SignalNone, Feedback: feedback} }

// Replan is a verdict sending feedback back to the planner.
func Replan(feedback string) Verdict { return Verdict{Signal: SignalReplan, Feedback: feedback} }

// Terminate is a verdict ending the run as resolved.
func Terminate(feedback string) Verdict { return Verdict{Signal: SignalTerminate, Feedback: feedback} }

// ParseVerdict derives a verdict from free text. TERMINATE wins over REPLAN
// when both appear. Prose that merely mentions either word still counts.
func ParseVerdict(text string) Verdict {
	upper := strings.ToUpper(text)
	switch {
	case strings.Contains(upper, KeywordTerminate):
		return Terminate(text)
	case strings.Contains(upper, KeywordReplan):
		return Replan(text)
	default:
		return Continue(text)
	}
}

// Invoker is the worker contract the loop depends on.
type Invoker interface {
	Invoke(ctx context.Context, input string) (string, usage.Delta, error)
}

// Reviewer wraps the tester so that callers receive a Verdict instead of text.
type Reviewer struct {
	tester Invoker
}

// NewReviewer returns a Reviewer backed by tester.
func NewReviewer(tester Invoker) *Reviewer {
	return &Reviewer{tester: tester}
}

// Review asks the tester to evaluate report.
func (r *Reviewer) Review(ctx context.Context, report string) (Verdict, usage.Delta, error) {
	text, delta, err := r.tester.Invoke(ctx, report)
	if err != nil {
		return Verdict{}, delta, err
	}
	return ParseVerdict(text), delta, nil
}
