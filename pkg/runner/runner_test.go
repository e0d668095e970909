package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"triad/pkg/config"
	"triad/pkg/eventlog"
	"triad/pkg/feedback"
	"triad/pkg/grading"
	"triad/pkg/persistence"
	"triad/pkg/tasksource"
	"triad/pkg/usage"
)

type fakeTasks struct {
	tasks map[int]*tasksource.Task
}

func (f *fakeTasks) Fetch(_ context.Context, index int) (*tasksource.Task, error) {
	t, ok := f.tasks[index]
	if !ok {
		return nil, fmt.Errorf("task %d: %w", index, &tasksource.StatusError{StatusCode: 404})
	}
	return t, nil
}

type fakeWorkspace struct {
	mu       sync.Mutex
	prepared []string
	staged   []string
	failDir  string
}

func (f *fakeWorkspace) Prepare(_ context.Context, dir, _, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if dir == f.failDir {
		return errors.New("clone failed")
	}
	f.prepared = append(f.prepared, dir)
	return nil
}

func (f *fakeWorkspace) StageAll(_ context.Context, dir string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.staged = append(f.staged, dir)
	return nil
}

func (f *fakeWorkspace) ChangedFiles(string) ([]string, error) { return []string{"a.py"}, nil }

type fakeGrader struct {
	mu       sync.Mutex
	requests []grading.Request
	err      error
}

func (f *fakeGrader) Grade(_ context.Context, req grading.Request) (*grading.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return &grading.Result{
		InstanceID: req.InstanceID,
		TestsStatus: map[string]grading.Outcome{
			grading.CategoryFailToPass: {Success: req.FailToPass},
			grading.CategoryPassToPass: {Success: req.PassToPass},
		},
	}, nil
}

// echoWorker answers with a fixed text and a fixed usage delta.
type echoWorker struct {
	text  string
	delta usage.Delta
	err   error
}

func (w echoWorker) Invoke(context.Context, string) (string, usage.Delta, error) {
	return w.text, w.delta, w.err
}

func teamOf(testerText string, coderErr error) TeamFunc {
	return func(context.Context, string) (feedback.Team, error) {
		return feedback.Team{
			Planner: echoWorker{text: "plan", delta: usage.Delta{CostUSD: 0.1, Tokens: 100}},
			Coder:   echoWorker{text: "report", delta: usage.Delta{CostUSD: 0.2, Tokens: 200}, err: coderErr},
			Tester:  echoWorker{text: testerText, delta: usage.Delta{CostUSD: 0.05, Tokens: 50}},
		}, nil
	}
}

func task(index int) *tasksource.Task {
	return &tasksource.Task{
		Index:            index,
		InstanceID:       fmt.Sprintf("inst-%d", index),
		ProblemStatement: "fix the bug",
		RepoURL:          "https://example.com/r.git",
		Ref:              "main",
		FailToPass:       []string{"t1"},
		PassToPass:       []string{"p1", "p2"},
	}
}

func newTasks(indexes ...int) *fakeTasks {
	f := &fakeTasks{tasks: map[int]*tasksource.Task{}}
	for _, i := range indexes {
		f.tasks[i] = task(i)
	}
	return f
}

func testConfig(t *testing.T) Config {
	return Config{ReposDir: filepath.Join(t.TempDir(), "repos"), RepoMount: "/repos", MaxRounds: 3}
}

func TestRunTaskResolved(t *testing.T) {
	ws := &fakeWorkspace{}
	grader := &fakeGrader{}
	cfg := testConfig(t)
	r := New(cfg, newTasks(5), ws, grader, teamOf("TERMINATE", nil))

	report, err := r.RunTask(context.Background(), 5)
	require.NoError(t, err)

	assert.Equal(t, feedback.StateTerminated, report.State)
	assert.Equal(t, feedback.ReasonTerminated, report.Reason)
	assert.Equal(t, 1, report.Rounds)
	assert.Equal(t, usage.Delta{CostUSD: 0.35, Tokens: 350}, report.Usage)
	assert.Equal(t, usage.Delta{CostUSD: 0.2, Tokens: 200}, report.RoleUsage[config.RoleCoder])
	assert.Equal(t, []string{"a.py"}, report.ChangedFiles)

	assert.Equal(t, []string{filepath.Join(cfg.ReposDir, "repo_5")}, ws.prepared)
	assert.Equal(t, ws.prepared, ws.staged)

	require.Len(t, grader.requests, 1)
	assert.Equal(t, "/repos/repo_5", grader.requests[0].RepoDir)
	assert.Equal(t, "inst-5", grader.requests[0].InstanceID)
	require.NotNil(t, report.Grade)
	assert.Equal(t, grading.Summary{FailToPassPassed: 1, FailToPassTotal: 1, PassToPassPassed: 2, PassToPassTotal: 2}, *report.Grade)
}

func TestRunTaskExhaustedStillGraded(t *testing.T) {
	grader := &fakeGrader{}
	r := New(testConfig(t), newTasks(1), &fakeWorkspace{}, grader, teamOf("still wrong", nil))

	report, err := r.RunTask(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, feedback.StateExhausted, report.State)
	assert.Equal(t, 3, report.Rounds)
	assert.Len(t, grader.requests, 1)
}

func TestRunTaskWorkerFailureSkipsGrading(t *testing.T) {
	ws := &fakeWorkspace{}
	grader := &fakeGrader{}
	r := New(testConfig(t), newTasks(1), ws, grader, teamOf("TERMINATE", errors.New("llm down")))

	report, err := r.RunTask(context.Background(), 1)
	require.ErrorIs(t, err, feedback.ErrWorkerFailed)
	assert.Equal(t, feedback.StateFailed, report.State)
	assert.Equal(t, err, report.Err)
	assert.NotEmpty(t, report.Error)
	assert.Empty(t, grader.requests)
	assert.Empty(t, ws.staged)
	// Spend up to and including the failed call is still reported.
	assert.Equal(t, int64(300), report.Usage.Tokens)
}

func TestRunTaskSetupFailures(t *testing.T) {
	cfg := testConfig(t)

	t.Run("fetch", func(t *testing.T) {
		r := New(cfg, newTasks(), &fakeWorkspace{}, nil, teamOf("TERMINATE", nil))
		report, err := r.RunTask(context.Background(), 9)
		var se *tasksource.StatusError
		require.True(t, errors.As(err, &se))
		assert.Empty(t, report.State)
	})

	t.Run("empty problem", func(t *testing.T) {
		tasks := newTasks(2)
		tasks.tasks[2].ProblemStatement = "  "
		r := New(cfg, tasks, &fakeWorkspace{}, nil, teamOf("TERMINATE", nil))
		_, err := r.RunTask(context.Background(), 2)
		require.ErrorIs(t, err, ErrEmptyProblem)
	})

	t.Run("prepare", func(t *testing.T) {
		ws := &fakeWorkspace{failDir: filepath.Join(cfg.ReposDir, "repo_3")}
		r := New(cfg, newTasks(3), ws, nil, teamOf("TERMINATE", nil))
		_, err := r.RunTask(context.Background(), 3)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "clone failed")
	})
}

func TestRunTaskGradingFailure(t *testing.T) {
	grader := &fakeGrader{err: grading.ErrEmptyResult}
	r := New(testConfig(t), newTasks(4), &fakeWorkspace{}, grader, teamOf("TERMINATE", nil))

	report, err := r.RunTask(context.Background(), 4)
	require.ErrorIs(t, err, grading.ErrEmptyResult)
	assert.Equal(t, feedback.StateTerminated, report.State)
	assert.Nil(t, report.Grade)
}

func TestRunBatchIsolatesFailures(t *testing.T) {
	for _, concurrency := range []int{1, 3} {
		t.Run(fmt.Sprintf("concurrency=%d", concurrency), func(t *testing.T) {
			cfg := testConfig(t)
			cfg.Concurrency = concurrency
			tasks := newTasks(3, 5, 6)
			reg := prometheus.NewRegistry()
			r := New(cfg, tasks, &fakeWorkspace{}, &fakeGrader{}, teamOf("TERMINATE", nil), WithRegisterer(reg))

			reports := r.RunBatch(context.Background(), []int{3, 4, 5, 6})
			require.Len(t, reports, 4)
			for i, want := range []int{3, 4, 5, 6} {
				assert.Equal(t, want, reports[i].Index)
			}
			assert.Error(t, reports[1].Err, "task 4 does not exist")
			for _, i := range []int{0, 2, 3} {
				assert.NoError(t, reports[i].Err)
				assert.Equal(t, feedback.StateTerminated, reports[i].State)
			}

			s := Summarize(reports)
			assert.Equal(t, 4, s.Tasks)
			assert.Equal(t, 1, s.Failed)
			assert.Equal(t, 3, s.Solved)
			assert.Equal(t, 3, s.ByState[feedback.StateTerminated])
			assert.Equal(t, usage.Delta{CostUSD: 1.05, Tokens: 1050}, s.Usage)

			assert.InDelta(t, 3, testutil.ToFloat64(r.metrics.tasks.WithLabelValues("TERMINATED")), 0)
			assert.InDelta(t, 1, testutil.ToFloat64(r.metrics.tasks.WithLabelValues("FAILED_SETUP")), 0)
		})
	}
}

func TestRunBatchCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := New(testConfig(t), newTasks(1, 2), &fakeWorkspace{}, nil, teamOf("TERMINATE", nil))

	reports := r.RunBatch(ctx, []int{1, 2})
	for _, rep := range reports {
		require.Error(t, rep.Err)
		assert.ErrorIs(t, rep.Err, context.Canceled)
	}
}

func TestRunTaskRecordsToStoreAndEventLog(t *testing.T) {
	dir := t.TempDir()
	store, err := persistence.Open(filepath.Join(dir, "triad.db"))
	require.NoError(t, err)
	defer store.Close()
	events, err := eventlog.NewWriter(filepath.Join(dir, "logs"))
	require.NoError(t, err)
	defer events.Close()

	r := New(testConfig(t), newTasks(8), &fakeWorkspace{}, &fakeGrader{}, teamOf("TERMINATE", nil),
		WithStore(store), WithEventLog(events))
	report, err := r.RunTask(context.Background(), 8)
	require.NoError(t, err)

	run, rounds, err := store.GetRun(context.Background(), report.RunID)
	require.NoError(t, err)
	assert.Equal(t, "TERMINATED", run.State)
	assert.Equal(t, "inst-8", run.InstanceID)
	require.NotNil(t, run.Grade)
	assert.Equal(t, 1, run.Grade.FailToPassPassed)
	assert.Len(t, rounds, 1)

	logged, err := eventlog.ReadEvents(events.GetCurrentLogFile())
	require.NoError(t, err)
	logged = eventlog.FilterRun(logged, report.RunID)
	require.NotEmpty(t, logged)
	assert.Equal(t, eventlog.KindGrade, logged[len(logged)-1].Kind)
}

func TestPrintReports(t *testing.T) {
	reports := []Report{
		{Index: 3, InstanceID: "inst-3", State: feedback.StateTerminated, Rounds: 1,
			Usage: usage.Delta{CostUSD: 0.5, Tokens: 10},
			Grade: &grading.Summary{FailToPassPassed: 1, FailToPassTotal: 1}},
		{Index: 4},
	}
	reports[1].fail(errors.New("task 4: not found"))

	var buf bytes.Buffer
	PrintReports(&buf, reports)
	out := buf.String()
	assert.Contains(t, out, "inst-3")
	assert.Contains(t, out, "task 4: not found")
	assert.Contains(t, out, "Tasks: 2  failed: 1  graded: 1  solved: 1")
	assert.Contains(t, out, "FAIL_TO_PASS passed: 1/1")
}
