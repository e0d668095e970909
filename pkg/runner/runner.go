// Package runner executes tasks end to end: fetch, prepare the repository,
// run the feedback loop, stage and grade.
package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"triad/pkg/eventlog"
	"triad/pkg/feedback"
	"triad/pkg/grading"
	"triad/pkg/logx"
	"triad/pkg/persistence"
	"triad/pkg/tasksource"
	"triad/pkg/workspace"
)

// ErrEmptyProblem is returned for a task without a problem statement.
var ErrEmptyProblem = errors.New("task has an empty problem statement")

// TaskSource fetches task records.
type TaskSource interface {
	Fetch(ctx context.Context, index int) (*tasksource.Task, error)
}

// Grader grades a prepared workspace.
type Grader interface {
	Grade(ctx context.Context, req grading.Request) (*grading.Result, error)
}

// Workspace prepares and stages task repositories.
type Workspace interface {
	Prepare(ctx context.Context, dir, url, ref string) error
	StageAll(ctx context.Context, dir string) error
	ChangedFiles(dir string) ([]string, error)
}

var _ Workspace = (*workspace.Git)(nil)

// Config holds the runner's static settings.
type Config struct {
	ReposDir    string
	RepoMount   string
	MaxRounds   int
	Concurrency int
}

// Option configures a Runner.
type Option func(*Runner)

// WithEventLog records every run to w.
func WithEventLog(w *eventlog.Writer) Option {
	return func(r *Runner) { r.events = w }
}

// WithStore persists runs, rounds and grades to s.
func WithStore(s *persistence.Store) Option {
	return func(r *Runner) { r.store = s }
}

// WithRegisterer registers task-level metrics with reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(r *Runner) { r.metrics = newTaskMetrics(reg) }
}

// Runner runs tasks. It never interprets tester output itself.
type Runner struct {
	cfg     Config
	tasks   TaskSource
	ws      Workspace
	grader  Grader
	teams   TeamFunc
	events  *eventlog.Writer
	store   *persistence.Store
	metrics *taskMetrics
	logger  *logx.Logger
	tracer  trace.Tracer
}

// New creates a Runner. grader may be nil to skip grading.
func New(cfg Config, tasks TaskSource, ws Workspace, grader Grader, teams TeamFunc, opts ...Option) *Runner {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	r := &Runner{
		cfg:    cfg,
		tasks:  tasks,
		ws:     ws,
		grader: grader,
		teams:  teams,
		logger: logx.NewLogger("runner"),
		tracer: otel.Tracer("triad/runner"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunTask runs one task to completion. The report is always returned, with
// Err set when the task failed at any stage.
func (r *Runner) RunTask(ctx context.Context, index int) (*Report, error) {
	ctx, span := r.tracer.Start(ctx, "runner.task", trace.WithAttributes(attribute.Int("task.index", index)))
	defer span.End()

	start := time.Now()
	report := &Report{Index: index}
	err := r.runTask(ctx, index, report)
	report.Duration = time.Since(start)
	if err != nil {
		report.fail(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "task failed")
		r.logger.Error("task %d failed: %v", index, err)
	}
	r.metrics.observe(report)
	return report, err
}

func (r *Runner) runTask(ctx context.Context, index int, report *Report) error {
	r.logger.Info("___ TASK %d ___", index)

	task, err := r.tasks.Fetch(ctx, index)
	if err != nil {
		return fmt.Errorf("fetch task: %w", err)
	}
	report.InstanceID = task.InstanceID
	if strings.TrimSpace(task.ProblemStatement) == "" {
		return ErrEmptyProblem
	}

	if err := os.MkdirAll(r.cfg.ReposDir, 0755); err != nil {
		return fmt.Errorf("failed to create repos directory: %w", err)
	}
	dir := workspace.RepoDir(r.cfg.ReposDir, index)
	if err := r.ws.Prepare(ctx, dir, task.RepoURL, task.Ref); err != nil {
		return fmt.Errorf("prepare workspace: %w", err)
	}

	team, err := r.teams(ctx, dir)
	if err != nil {
		return fmt.Errorf("build team: %w", err)
	}

	var opts []feedback.Option
	if r.events != nil {
		opts = append(opts, feedback.WithObserver(eventlog.NewObserver(r.events, index)))
	}
	if r.store != nil {
		opts = append(opts, feedback.WithObserver(r.store.NewObserver(index, task.InstanceID)))
	}
	controller, err := feedback.NewController(team, feedback.Config{MaxRounds: r.cfg.MaxRounds}, opts...)
	if err != nil {
		return err
	}

	r.logger.Info("repository: %s, using %d length prompt", dir, len(task.ProblemStatement))
	run, err := controller.Run(ctx, task.ProblemStatement)
	report.fromRun(run)
	r.logger.Info("total costs: $%.2f, total tokens: %d", report.Usage.CostUSD, report.Usage.Tokens)
	if err != nil {
		return fmt.Errorf("feedback loop: %w", err)
	}

	if err := r.ws.StageAll(ctx, dir); err != nil {
		// Grading reads the working tree, so a staging failure is not fatal.
		r.logger.Warn("git add failed for %s: %v", dir, err)
	}
	if files, err := r.ws.ChangedFiles(dir); err == nil {
		report.ChangedFiles = files
	}

	if r.grader == nil {
		return nil
	}
	return r.grade(ctx, task, report)
}

func (r *Runner) grade(ctx context.Context, task *tasksource.Task, report *Report) error {
	res, err := r.grader.Grade(ctx, grading.Request{
		InstanceID: task.InstanceID,
		RepoDir:    workspace.MountedRepoDir(r.cfg.RepoMount, task.Index),
		FailToPass: task.FailToPass,
		PassToPass: task.PassToPass,
	})
	if err != nil {
		return fmt.Errorf("grade: %w", err)
	}

	summary := res.Summary()
	report.Grade = &summary
	r.logger.Info("FAIL_TO_PASS passed: %d/%d", summary.FailToPassPassed, summary.FailToPassTotal)
	r.logger.Info("PASS_TO_PASS passed: %d/%d", summary.PassToPassPassed, summary.PassToPassTotal)

	if r.store != nil {
		if err := r.store.SaveGrade(ctx, report.RunID, persistence.Grade(summary)); err != nil {
			r.logger.Warn("failed to store grade: %v", err)
		}
	}
	if r.events != nil {
		err := r.events.WriteEvent(&eventlog.Event{
			Kind:      eventlog.KindGrade,
			RunID:     report.RunID,
			TaskIndex: task.Index,
			Detail:    summary.String(),
		})
		if err != nil {
			r.logger.Warn("failed to log grade: %v", err)
		}
	}
	return nil
}

// RunBatch runs every index, at most Concurrency at a time. A failing task
// never stops the others; reports come back in input order.
func (r *Runner) RunBatch(ctx context.Context, indexes []int) []Report {
	reports := make([]Report, len(indexes))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Concurrency)

	for i, index := range indexes {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				reports[i] = Report{Index: index}
				reports[i].fail(fmt.Errorf("skipped: %w", err))
				return nil
			}
			report, _ := r.RunTask(gctx, index)
			reports[i] = *report
			return nil
		})
	}
	_ = g.Wait()
	return reports
}
