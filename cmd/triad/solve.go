package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"triad/pkg/agent"
	llmmetrics "triad/pkg/agent/middleware/metrics"
	"triad/pkg/config"
	"triad/pkg/eventlog"
	"triad/pkg/feedback"
	"triad/pkg/logx"
	"triad/pkg/runner"
)

func newSolveCmd(a *app) *cobra.Command {
	var (
		dir       string
		task      string
		maxRounds int
	)

	cmd := &cobra.Command{
		Use:   "solve",
		Short: "Run the feedback loop once on a local directory",
		Long: `Run planner/coder/tester against an existing directory with a task given
inline or read from a file (--task @issue.md). No registry, checkout or
grading is involved.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("max-rounds") {
				a.cfg.Loop.MaxRounds = maxRounds
			}
			if err := a.cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			text, err := readTask(task)
			if err != nil {
				return err
			}
			root, err := filepath.Abs(dir)
			if err != nil {
				return fmt.Errorf("failed to resolve %s: %w", dir, err)
			}
			return a.solve(cmd, root, text)
		},
	}

	cmd.Flags().StringVarP(&dir, "dir", "d", ".", "Directory the workers may read and write")
	cmd.Flags().StringVarP(&task, "task", "t", "", "Task text, or @path to read it from a file")
	cmd.Flags().IntVar(&maxRounds, "max-rounds", 0, "Coder/tester rounds (overrides loop.max_rounds)")
	_ = cmd.MarkFlagRequired("task")
	return cmd
}

// readTask resolves an inline task or an @file reference.
func readTask(arg string) (string, error) {
	text := arg
	if path, ok := strings.CutPrefix(arg, "@"); ok {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("failed to read task file: %w", err)
		}
		text = string(data)
	}
	if strings.TrimSpace(text) == "" {
		return "", errors.New("task is empty")
	}
	return text, nil
}

func (a *app) solve(cmd *cobra.Command, root, task string) error {
	ctx := cmd.Context()
	logger := logx.NewLogger("triad")

	factory, err := agent.NewLLMClientFactory(a.cfg.LLM, llmmetrics.NewPrometheusRecorder(prometheus.NewRegistry()))
	if err != nil {
		return fmt.Errorf("failed to create LLM client factory: %w", err)
	}
	team, err := runner.NewTeamBuilder(factory, a.roles, a.cfg)(ctx, root)
	if err != nil {
		return fmt.Errorf("failed to build team: %w", err)
	}

	opts := []feedback.Option{feedback.WithLogger(logger)}
	events, err := eventlog.NewWriter(a.cfg.Paths.LogsDir)
	if err != nil {
		logger.Warn("event log disabled: %v", err)
	} else {
		defer func() { _ = events.Close() }()
		opts = append(opts, feedback.WithObserver(eventlog.NewObserver(events, 0)))
	}

	controller, err := feedback.NewController(team, feedback.Config{MaxRounds: a.cfg.Loop.MaxRounds}, opts...)
	if err != nil {
		return err //nolint:wrapcheck // already descriptive
	}

	run, runErr := controller.Run(ctx, task)
	printRun(cmd.OutOrStdout(), run)
	return runErr
}

func printRun(w io.Writer, run *feedback.Run) {
	stateColor := color.New(color.FgYellow)
	switch {
	case run.State == feedback.StateFailed:
		stateColor = color.New(color.FgRed)
	case run.Resolved():
		stateColor = color.New(color.FgGreen)
	}

	_, _ = fmt.Fprintf(w, "Run %s: ", run.ID)
	_, _ = stateColor.Fprintf(w, "%s", run.State)
	if run.Reason != feedback.ReasonNone {
		_, _ = fmt.Fprintf(w, " (%s)", run.Reason)
	}
	_, _ = fmt.Fprintf(w, "\nRounds: %d  Replans: %d  Duration: %s\n", len(run.Rounds), run.Replans(), run.Duration().Round(time.Millisecond))
	_, _ = fmt.Fprintf(w, "Usage: %s\n", run.Usage())
	for _, kind := range config.AllRoles {
		_, _ = fmt.Fprintf(w, "  %-8s %s\n", kind, run.RoleUsage(kind))
	}
	if n := len(run.Rounds); n > 0 {
		last := run.Rounds[n-1]
		_, _ = fmt.Fprintf(w, "\nFinal coder output:\n%s\n\nFinal tester feedback:\n%s\n", last.CoderOutput, last.Feedback)
	}
	if run.Err != nil {
		_, _ = color.New(color.FgRed).Fprintf(w, "\nError: %v\n", run.Err)
	}
}
