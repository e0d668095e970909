// Package metrics provides usage accounting and metrics middleware for LLM clients.
package metrics

import "time"

// Recorder records LLM operation metrics.
type Recorder interface {
	// ObserveRequest records a completed LLM request.
	ObserveRequest(
		model, role string,
		promptTokens, completionTokens int,
		cost float64,
		success bool,
		errorType string,
		duration time.Duration,
	)

	// IncThrottle counts a rate-limit wait or rejection.
	IncThrottle(model, reason string)

	// ObserveQueueWait records time spent waiting for rate limit availability.
	ObserveQueueWait(model string, duration time.Duration)
}

// NoopRecorder discards all metrics.
type NoopRecorder struct{}

// Nop returns a recorder that discards all metrics.
func Nop() Recorder {
	return NoopRecorder{}
}

func (NoopRecorder) ObserveRequest(_, _ string, _, _ int, _ float64, _ bool, _ string, _ time.Duration) {
}

func (NoopRecorder) IncThrottle(_, _ string) {}

func (NoopRecorder) ObserveQueueWait(_ string, _ time.Duration) {}
