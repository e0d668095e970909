// Package metrics reads aggregated LLM usage back out of a Prometheus server
// that scrapes triad's /metrics endpoint.
package metrics

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
)

// RoleUsage is the aggregated spend of one worker role.
type RoleUsage struct {
	Role             string  `json:"role"`
	PromptTokens     int64   `json:"prompt_tokens"`
	CompletionTokens int64   `json:"completion_tokens"`
	TotalTokens      int64   `json:"total_tokens"`
	TotalCost        float64 `json:"total_cost_usd"`
}

// QueryService queries a Prometheus server.
type QueryService struct {
	queryAPI v1.API
	now      func() time.Time
}

// NewQueryService creates a query service for the server at prometheusURL.
func NewQueryService(prometheusURL string) (*QueryService, error) {
	client, err := api.NewClient(api.Config{
		Address: prometheusURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus client: %w", err)
	}

	return &QueryService{
		queryAPI: v1.NewAPI(client),
		now:      time.Now,
	}, nil
}

// GetRoleUsage returns token and cost totals per role, sorted by role.
func (q *QueryService) GetRoleUsage(ctx context.Context) ([]RoleUsage, error) {
	byRole := make(map[string]*RoleUsage)
	get := func(role string) *RoleUsage {
		u, ok := byRole[role]
		if !ok {
			u = &RoleUsage{Role: role}
			byRole[role] = u
		}
		return u
	}

	prompt, err := q.sumByRole(ctx, `sum by (role) (triad_llm_tokens_total{type="prompt"})`)
	if err != nil {
		return nil, fmt.Errorf("failed to query prompt tokens: %w", err)
	}
	for role, v := range prompt {
		get(role).PromptTokens = int64(v)
	}

	completion, err := q.sumByRole(ctx, `sum by (role) (triad_llm_tokens_total{type="completion"})`)
	if err != nil {
		return nil, fmt.Errorf("failed to query completion tokens: %w", err)
	}
	for role, v := range completion {
		get(role).CompletionTokens = int64(v)
	}

	cost, err := q.sumByRole(ctx, `sum by (role) (triad_llm_cost_usd_total)`)
	if err != nil {
		return nil, fmt.Errorf("failed to query cost: %w", err)
	}
	for role, v := range cost {
		get(role).TotalCost = v
	}

	out := make([]RoleUsage, 0, len(byRole))
	for _, u := range byRole {
		u.TotalTokens = u.PromptTokens + u.CompletionTokens
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Role < out[j].Role })
	return out, nil
}

func (q *QueryService) sumByRole(ctx context.Context, query string) (map[string]float64, error) {
	result, _, err := q.queryAPI.Query(ctx, query, q.now())
	if err != nil {
		return nil, err //nolint:wrapcheck // caller names the query
	}
	out := make(map[string]float64)
	vector, ok := result.(model.Vector)
	if !ok {
		return out, nil
	}
	for _, sample := range vector {
		out[string(sample.Metric["role"])] = float64(sample.Value)
	}
	return out, nil
}
