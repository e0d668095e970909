package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"triad/pkg/agent"
	llmmetrics "triad/pkg/agent/middleware/metrics"
	"triad/pkg/eventlog"
	"triad/pkg/grading"
	"triad/pkg/logx"
	"triad/pkg/persistence"
	"triad/pkg/runner"
	"triad/pkg/tasksource"
	"triad/pkg/webui"
	"triad/pkg/workspace"
)

const taskFetchTimeout = 30 * time.Second

func newRunCmd(a *app) *cobra.Command {
	var (
		from, to    int
		concurrency int
		maxRounds   int
		noGrade     bool
		serve       bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the feedback loop over a range of registry tasks",
		Long: `Fetch each task in [from, to] from the task registry, check out its
repository, run planner/coder/tester until the tester accepts or the round
limit is hit, then grade the result. A failing task never stops the batch.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			flags := cmd.Flags()
			if flags.Changed("from") {
				a.cfg.Tasks.From = from
			}
			if flags.Changed("to") {
				a.cfg.Tasks.To = to
			}
			if flags.Changed("concurrency") {
				a.cfg.Tasks.Concurrency = concurrency
			}
			if flags.Changed("max-rounds") {
				a.cfg.Loop.MaxRounds = maxRounds
			}
			if err := a.cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			return a.runBatch(cmd.Context(), !noGrade, serve)
		},
	}

	cmd.Flags().IntVar(&from, "from", 0, "First task index (overrides tasks.from)")
	cmd.Flags().IntVar(&to, "to", 0, "Last task index, inclusive (overrides tasks.to)")
	cmd.Flags().IntVarP(&concurrency, "concurrency", "j", 0, "Tasks to run at once (overrides tasks.concurrency)")
	cmd.Flags().IntVar(&maxRounds, "max-rounds", 0, "Coder/tester rounds per task (overrides loop.max_rounds)")
	cmd.Flags().BoolVar(&noGrade, "no-grade", false, "Skip the grading service")
	cmd.Flags().BoolVar(&serve, "serve", false, "Serve run status on server.addr while the batch runs")
	return cmd
}

func (a *app) runBatch(ctx context.Context, grade, serve bool) error {
	logger := logx.NewLogger("triad")
	cfg := a.cfg

	reg := prometheus.NewRegistry()
	factory, err := agent.NewLLMClientFactory(cfg.LLM, llmmetrics.NewPrometheusRecorder(reg))
	if err != nil {
		return fmt.Errorf("failed to create LLM client factory: %w", err)
	}

	events, err := eventlog.NewWriter(cfg.Paths.LogsDir)
	if err != nil {
		return fmt.Errorf("failed to open event log: %w", err)
	}
	defer func() {
		if cerr := events.Close(); cerr != nil {
			logger.Warn("failed to close event log: %v", cerr)
		}
	}()

	store, err := persistence.Open(a.dbPath())
	if err != nil {
		return fmt.Errorf("failed to open run database: %w", err)
	}
	defer func() { _ = store.Close() }()

	if serve {
		srv, err := webui.NewServer(store, reg, cfg.Server.Addr)
		if err != nil {
			return fmt.Errorf("failed to create status server: %w", err)
		}
		go func() {
			if err := srv.Start(); err != nil {
				logger.Error("status server stopped: %v", err)
			}
		}()
		defer shutdownServer(srv, logger)
	}

	var grader runner.Grader
	if grade {
		grader = grading.NewClient(cfg.Grading.APIURL, cfg.Grading.Timeout)
	}

	r := runner.New(
		runner.Config{
			ReposDir:    cfg.Paths.ReposDir,
			RepoMount:   cfg.Grading.RepoMount,
			MaxRounds:   cfg.Loop.MaxRounds,
			Concurrency: cfg.Tasks.Concurrency,
		},
		tasksource.NewClient(cfg.Tasks.APIURL, taskFetchTimeout),
		workspace.NewGit(),
		grader,
		runner.NewTeamBuilder(factory, a.roles, cfg),
		runner.WithEventLog(events),
		runner.WithStore(store),
		runner.WithRegisterer(reg),
	)

	indexes := cfg.Tasks.TaskIndexes()
	logger.Info("running %d tasks (%d..%d) with %s, concurrency %d",
		len(indexes), cfg.Tasks.From, cfg.Tasks.To, cfg.LLM.Model, cfg.Tasks.Concurrency)

	reports := r.RunBatch(ctx, indexes)
	runner.PrintReports(os.Stdout, reports)

	if err := dumpMetrics(filepath.Join(cfg.Paths.LogsDir, "metrics.prom"), reg); err != nil {
		logger.Warn("failed to write metrics: %v", err)
	}

	if errors.Is(ctx.Err(), context.Canceled) {
		return errors.New("interrupted")
	}
	return nil
}

func dumpMetrics(path string, g prometheus.Gatherer) error {
	f, err := os.Create(path)
	if err != nil {
		return err //nolint:wrapcheck // caller logs
	}
	if err := llmmetrics.WriteText(f, g); err != nil {
		_ = f.Close()
		return err //nolint:wrapcheck // caller logs
	}
	return f.Close() //nolint:wrapcheck // caller logs
}

func shutdownServer(srv *webui.Server, logger *logx.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("status server shutdown: %v", err)
	}
}
