package runner

import (
	"context"
	"fmt"

	"triad/pkg/agent"
	"triad/pkg/config"
	"triad/pkg/feedback"
	"triad/pkg/logx"
	"triad/pkg/worker"
)

// TeamFunc builds the three workers for one run, confined to root.
type TeamFunc func(ctx context.Context, root string) (feedback.Team, error)

// NewTeamBuilder returns a TeamFunc that creates one LLM-backed worker per
// role, each with its own client from factory.
func NewTeamBuilder(factory *agent.LLMClientFactory, roles *config.RolePack, cfg *config.Config) TeamFunc {
	return func(_ context.Context, root string) (feedback.Team, error) {
		workers := make(map[config.RoleKind]*worker.Worker, len(config.AllRoles))
		for _, kind := range config.AllRoles {
			role, err := roles.Get(kind)
			if err != nil {
				return feedback.Team{}, err
			}
			logger := logx.NewLogger(string(kind))
			client, err := factory.CreateClient(string(kind), logger)
			if err != nil {
				return feedback.Team{}, fmt.Errorf("failed to create %s client: %w", kind, err)
			}
			w, err := worker.New(role, client, root,
				worker.WithInvokeTimeout(cfg.Loop.InvokeTimeout),
				worker.WithMaxToolIterations(cfg.Loop.MaxToolIterations),
				worker.WithMaxTokens(cfg.LLM.MaxTokens),
				worker.WithTemperature(cfg.LLM.Temperature),
				worker.WithLogger(logger),
			)
			if err != nil {
				return feedback.Team{}, err
			}
			workers[kind] = w
		}
		return feedback.Team{
			Planner: workers[config.RolePlanner],
			Coder:   workers[config.RoleCoder],
			Tester:  workers[config.RoleTester],
		}, nil
	}
}
