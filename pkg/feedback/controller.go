// Package feedback implements the bounded Planner -> Coder -> Tester loop.
package feedback

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"triad/pkg/config"
	"triad/pkg/logx"
	"triad/pkg/usage"
)

var (
	// ErrWorkerFailed wraps any worker error that aborted a run.
	ErrWorkerFailed = errors.New("worker invocation failed")

	// ErrInvalidTransition indicates a bug in the loop itself.
	ErrInvalidTransition = errors.New("invalid state transition")
)

// noOutput replaces a blank worker response before it is passed on, since
// workers reject empty input.
const noOutput = "(no text output was produced in the previous step)"

// Team holds the three workers of one run.
type Team struct {
	Planner Invoker
	Coder   Invoker
	Tester  Invoker
}

func (t Team) validate() error {
	switch {
	case t.Planner == nil:
		return errors.New("planner is required")
	case t.Coder == nil:
		return errors.New("coder is required")
	case t.Tester == nil:
		return errors.New("tester is required")
	}
	return nil
}

// Config bounds the loop.
type Config struct {
	MaxRounds int
}

// Observer is notified as a run progresses. Observers must not block for
// long and cannot fail the run.
type Observer interface {
	OnStep(ctx context.Context, run *Run, step Step)
	OnRound(ctx context.Context, run *Run, rec RoundRecord)
	OnFinish(ctx context.Context, run *Run)
}

// NopObserver can be embedded to implement only some Observer methods.
type NopObserver struct{}

func (NopObserver) OnStep(context.Context, *Run, Step)         {}
func (NopObserver) OnRound(context.Context, *Run, RoundRecord) {}
func (NopObserver) OnFinish(context.Context, *Run)             {}

// Option configures a Controller.
type Option func(*Controller)

// WithObserver adds an observer.
func WithObserver(o Observer) Option {
	return func(c *Controller) { c.observers = append(c.observers, o) }
}

// WithLogger overrides the controller logger.
func WithLogger(l *logx.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// WithRunID fixes the ID given to the next run instead of a random UUID.
func WithRunID(id string) Option {
	return func(c *Controller) { c.runID = id }
}

// Controller drives one run at a time over a fixed team.
type Controller struct {
	team      Team
	reviewer  *Reviewer
	cfg       Config
	observers []Observer
	logger    *logx.Logger
	tracer    trace.Tracer
	runID     string
}

// NewController validates team and cfg.
func NewController(team Team, cfg Config, opts ...Option) (*Controller, error) {
	if err := team.validate(); err != nil {
		return nil, err
	}
	if cfg.MaxRounds <= 0 {
		cfg.MaxRounds = config.DefaultMaxRounds
	}
	c := &Controller{
		team:     team,
		reviewer: NewReviewer(team.Tester),
		cfg:      cfg,
		tracer:   otel.Tracer("triad/feedback"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logx.NewLogger("controller")
	}
	return c, nil
}

// Run executes the loop for task until the tester signals TERMINATE, the
// round bound is reached, or a worker fails. The returned Run is always
// non-nil; the error is non-nil only for FAILED runs.
func (c *Controller) Run(ctx context.Context, task string) (*Run, error) {
	id := c.runID
	if id == "" {
		id = uuid.NewString()
	}
	run := newRun(id, task)

	ctx, span := c.tracer.Start(ctx, "feedback.run",
		trace.WithAttributes(
			attribute.String("run.id", run.ID),
			attribute.Int("max_rounds", c.cfg.MaxRounds),
		))
	defer span.End()

	err := c.loop(ctx, run)
	run.EndedAt = time.Now()
	if err != nil {
		run.Err = err
		span.RecordError(err)
		span.SetStatus(codes.Error, string(run.State))
	}
	span.SetAttributes(
		attribute.String("state", string(run.State)),
		attribute.String("reason", string(run.Reason)),
		attribute.Int("rounds", len(run.Rounds)),
	)

	totals := run.Usage()
	c.logger.Info("run %s finished: %s (%s) after %d rounds, %d replans, %s",
		run.ID, run.State, run.Reason, len(run.Rounds), run.Replans(), totals)
	for _, o := range c.observers {
		o.OnFinish(ctx, run)
	}
	return run, err
}

func (c *Controller) loop(ctx context.Context, run *Run) error {
	plan, _, err := c.invoke(ctx, run, 0, config.RolePlanner, c.team.Planner, run.Task)
	if err != nil {
		return c.fail(run, err)
	}
	run.Plans = append(run.Plans, plan)
	if err := c.transition(run, StateCoding); err != nil {
		return err
	}

	input := plan
	for round := 1; ; round++ {
		rec, err := c.round(ctx, run, round, input)
		if err != nil {
			return c.fail(run, err)
		}

		switch {
		case rec.Signal == SignalTerminate:
			run.Reason = ReasonTerminated
			if run.Replans() > 0 {
				run.Reason = ReasonReplannedResolved
			}
			return c.transition(run, StateTerminated)

		case round >= c.cfg.MaxRounds:
			run.Reason = ReasonMaxRounds
			return c.transition(run, StateExhausted)

		case rec.Signal == SignalReplan:
			if err := c.transition(run, StateReplanning); err != nil {
				return err
			}
			plan, _, err := c.invoke(ctx, run, round, config.RolePlanner, c.team.Planner, nonBlank(rec.Feedback))
			if err != nil {
				return c.fail(run, err)
			}
			run.Plans = append(run.Plans, plan)
			input = plan

		default:
			input = rec.Feedback
		}

		if err := c.transition(run, StateCoding); err != nil {
			return err
		}
	}
}

// round runs the coder on input and the tester on the coder's report.
func (c *Controller) round(ctx context.Context, run *Run, index int, input string) (RoundRecord, error) {
	ctx, span := c.tracer.Start(ctx, "feedback.round", trace.WithAttributes(attribute.Int("round", index)))
	defer span.End()

	start := time.Now()

	report, coderUsage, err := c.invoke(ctx, run, index, config.RoleCoder, c.team.Coder, nonBlank(input))
	if err != nil {
		return RoundRecord{}, err
	}
	if err := c.transition(run, StateTesting); err != nil {
		return RoundRecord{}, err
	}

	var verdict Verdict
	_, testerUsage, err := c.observe(ctx, run, index, config.RoleTester, nonBlank(report), func(ctx context.Context, in string) (string, usage.Delta, error) {
		v, delta, err := c.reviewer.Review(ctx, in)
		verdict = v
		return v.Feedback, delta, err
	})
	if err != nil {
		return RoundRecord{}, err
	}

	rec := RoundRecord{
		Index:       index,
		Input:       input,
		CoderOutput: report,
		Feedback:    verdict.Feedback,
		Signal:      verdict.Signal,
		Usage:       coderUsage.Add(testerUsage),
		Duration:    time.Since(start),
	}
	run.Rounds = append(run.Rounds, rec)
	span.SetAttributes(attribute.String("signal", string(rec.Signal)))

	c.logger.Info("round %d/%d: signal=%s", index, c.cfg.MaxRounds, rec.Signal)
	for _, o := range c.observers {
		o.OnRound(ctx, run, rec)
	}
	return rec, nil
}

func (c *Controller) invoke(
	ctx context.Context, run *Run, round int, kind config.RoleKind, w Invoker, input string,
) (string, usage.Delta, error) {
	return c.observe(ctx, run, round, kind, input, w.Invoke)
}

// observe performs one worker call, records its usage on the run and
// reports the step.
func (c *Controller) observe(
	ctx context.Context, run *Run, round int, kind config.RoleKind, input string,
	call func(context.Context, string) (string, usage.Delta, error),
) (string, usage.Delta, error) {
	start := time.Now()
	out, delta, err := call(ctx, input)
	run.record(kind, delta)

	step := Step{Round: round, Role: kind, Input: input, Output: out, Usage: delta, Duration: time.Since(start), Err: err}
	for _, o := range c.observers {
		o.OnStep(ctx, run, step)
	}
	if err != nil {
		return "", delta, fmt.Errorf("%w: %s: %w", ErrWorkerFailed, kind, err)
	}
	return out, delta, nil
}

func (c *Controller) transition(run *Run, to State) error {
	if !IsValidTransition(run.State, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, run.State, to)
	}
	c.logger.Debug("run %s: %s -> %s", run.ID, run.State, to)
	run.State = to
	run.stateLog = append(run.stateLog, to)
	return nil
}

func (c *Controller) fail(run *Run, err error) error {
	run.Reason = ReasonWorkerFailed
	if terr := c.transition(run, StateFailed); terr != nil {
		return errors.Join(err, terr)
	}
	return err
}

func nonBlank(s string) string {
	if strings.TrimSpace(s) == "" {
		return noOutput
	}
	return s
}
