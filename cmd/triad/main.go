// Command triad runs the planner/coder/tester feedback loop over coding tasks.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"triad/pkg/config"
	"triad/pkg/logx"
	"triad/pkg/version"
)

// app holds what every subcommand needs after the root pre-run.
type app struct {
	configPath string
	projectDir string
	logLevel   string

	cfg   *config.Config
	roles *config.RolePack
}

func main() {
	os.Exit(execute(os.Args[1:]))
}

// execute runs the CLI and returns the process exit code, so that defers
// run before os.Exit.
func execute(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCmd(&app{})
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	logx.Sync()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "triad",
		Short: "Planner, coder and tester agents iterating on coding tasks",
		Long: `triad drives three LLM workers over a repository: a planner writes a plan,
a coder implements it, and a tester reviews the result. The tester either
accepts the change (TERMINATE), asks for a new plan (REPLAN), or sends
feedback straight back to the coder for another round.

Examples:
  triad run                          # run the configured task range
  triad run --from 3 --to 5 -j 2     # three tasks, two at a time
  triad solve --dir ./repo --task @issue.md
  triad serve                        # browse stored runs`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}
	root.SetVersionTemplate(version.String() + "\n")

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "triad.yaml", "Path to the YAML config file")
	root.PersistentFlags().StringVar(&a.projectDir, "projectdir", ".", "Project directory holding .triad/ secrets")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Override log.level (debug, info, warn, error)")

	root.AddCommand(
		newRunCmd(a),
		newSolveCmd(a),
		newServeCmd(a),
		newStatsCmd(a),
		newSecretsCmd(a),
		newVersionCmd(),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if err := logx.Init(logx.Options{Level: cfg.Log.Level, File: cfg.Log.File, JSON: cfg.Log.JSON}); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	a.cfg = cfg

	// The secrets command manages the file itself.
	if cmd.Name() == "version" || (cmd.Parent() != nil && cmd.Parent().Name() == "secrets") {
		return nil
	}
	if err := loadSecrets(a.projectDir); err != nil {
		return err
	}

	if cfg.RolesFile != "" {
		a.roles, err = config.LoadRoles(cfg.RolesFile)
	} else {
		a.roles, err = config.DefaultRoles()
	}
	if err != nil {
		return fmt.Errorf("failed to load roles: %w", err)
	}
	return nil
}

// dbPath is paths.db_path, defaulting to a database beside the event logs.
func (a *app) dbPath() string {
	if a.cfg.Paths.DBPath != "" {
		return a.cfg.Paths.DBPath
	}
	return filepath.Join(a.cfg.Paths.LogsDir, "triad.db")
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}
}
