// Package worker implements the role-bound text-in/text-out worker used for
// the Planner, Coder and Tester.
package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"triad/pkg/agent/llm"
	"triad/pkg/agent/toolloop"
	"triad/pkg/config"
	"triad/pkg/contextmgr"
	"triad/pkg/logx"
	"triad/pkg/tools"
	"triad/pkg/usage"
)

// ErrEmptyInput is returned by Invoke when called with blank input.
var ErrEmptyInput = errors.New("worker input must not be empty")

const (
	defaultMaxToolIterations = 25
	defaultMaxTokens         = 4096
)

// Worker is one role-configured generation capability with private,
// append-only conversation history and a running usage counter.
// Invocations on the same Worker are serialized.
//
//nolint:govet // fieldalignment: grouped by concern
type Worker struct {
	role   config.Role
	client llm.LLMClient
	tools  *tools.Registry
	root   *tools.Root
	logger *logx.Logger
	tracer trace.Tracer

	mu      sync.Mutex
	history *contextmgr.ContextManager
	counter usage.Accumulator
	sink    usage.Recorder

	invokeTimeout     time.Duration
	maxToolIterations int
	maxTokens         int
	temperature       float32
}

// New builds a worker for role whose file tools are confined to root.
func New(role config.Role, client llm.LLMClient, root string, opts ...Option) (*Worker, error) {
	if client == nil {
		return nil, fmt.Errorf("worker %s: llm client is required", role.Name)
	}
	r, err := tools.NewRoot(root)
	if err != nil {
		return nil, fmt.Errorf("worker %s: %w", role.Name, err)
	}
	registry, err := tools.NewWorkspaceTools(r)
	if err != nil {
		return nil, fmt.Errorf("worker %s: failed to build tools: %w", role.Name, err)
	}

	w := &Worker{
		role:              role,
		client:            client,
		tools:             registry,
		root:              r,
		history:           contextmgr.NewContextManagerWithModel(client.GetModelName()),
		tracer:            otel.Tracer("triad/worker"),
		maxToolIterations: defaultMaxToolIterations,
		maxTokens:         defaultMaxTokens,
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = logx.NewLogger(strings.ToLower(role.Name))
	}
	return w, nil
}

// Role returns the worker's static role.
func (w *Worker) Role() config.Role { return w.role }

// Root returns the absolute workspace root.
func (w *Worker) Root() string { return w.root.Dir() }

// Invoke frames input with the role, runs it against the model with the
// workspace tools, and returns the final response text plus the usage spent.
// A failed generation is returned unchanged; the usage spent before the
// failure is still reported and counted.
func (w *Worker) Invoke(ctx context.Context, input string) (string, usage.Delta, error) {
	if strings.TrimSpace(input) == "" {
		return "", usage.Delta{}, ErrEmptyInput
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	ctx, span := w.tracer.Start(ctx, "worker.invoke",
		trace.WithAttributes(
			attribute.String("role", string(w.role.Kind)),
			attribute.Int("history.messages", w.history.GetMessageCount()),
		))
	defer span.End()

	if w.invokeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.invokeTimeout)
		defer cancel()
	}

	prompt := FramePrompt(w.role, input)
	start := time.Now()

	// The loop works on a scratch copy so that tool traffic and failed
	// attempts never reach the worker's history.
	scratch := w.history.Clone()
	out, err := toolloop.New(w.client, w.logger).Run(ctx, &toolloop.Config{
		ContextManager: scratch,
		ToolProvider:   w.tools,
		InitialPrompt:  prompt,
		MaxIterations:  w.maxToolIterations,
		MaxTokens:      w.maxTokens,
		Temperature:    w.temperature,
	})

	delta := usage.Delta{CostUSD: out.Usage.CostUSD, Tokens: int64(out.Usage.TotalTokens())}
	w.record(delta)
	span.SetAttributes(
		attribute.Int("tool_calls", out.ToolCalls),
		attribute.Int64("tokens", delta.Tokens),
		attribute.Float64("cost_usd", delta.CostUSD),
	)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, out.Kind.String())
		w.logger.Error("%s invocation failed after %d iterations (%s): %v",
			w.role.Name, out.Iterations, out.Kind, err)
		return "", delta, fmt.Errorf("%s: %w", w.role.Name, err)
	}

	w.history.AddMessage(contextmgr.RoleUser, prompt)
	w.history.AddAssistantMessage(out.Content)

	w.logger.Info("%s responded in %s (%d tool calls, %s)",
		w.role.Name, time.Since(start).Round(time.Millisecond), out.ToolCalls, delta)
	return out.Content, delta, nil
}

func (w *Worker) record(delta usage.Delta) {
	w.counter.Record(delta)
	if w.sink != nil {
		w.sink.Record(delta)
	}
}

// Usage returns the cumulative cost and tokens of every invocation so far.
func (w *Worker) Usage() usage.Delta {
	return w.counter.Totals()
}

// History returns a copy of the worker's conversation.
func (w *Worker) History() []contextmgr.Message {
	return w.history.GetMessages()
}
