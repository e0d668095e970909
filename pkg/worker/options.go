package worker

import (
	"time"

	"triad/pkg/logx"
	"triad/pkg/usage"
)

// Option configures a Worker.
type Option func(*Worker)

// WithInvokeTimeout bounds every Invoke call. Zero disables the deadline.
func WithInvokeTimeout(d time.Duration) Option {
	return func(w *Worker) { w.invokeTimeout = d }
}

// WithMaxToolIterations caps the tool-calling turns of one invocation.
func WithMaxToolIterations(n int) Option {
	return func(w *Worker) { w.maxToolIterations = n }
}

// WithMaxTokens sets the completion token limit per LLM call.
func WithMaxTokens(n int) Option {
	return func(w *Worker) { w.maxTokens = n }
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float32) Option {
	return func(w *Worker) { w.temperature = t }
}

// WithUsageSink additionally records every usage delta into r, typically the
// run's shared accumulator.
func WithUsageSink(r usage.Recorder) Option {
	return func(w *Worker) { w.sink = r }
}

// WithLogger overrides the worker's logger.
func WithLogger(l *logx.Logger) Option {
	return func(w *Worker) { w.logger = l }
}
