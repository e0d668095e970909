// Package tasksource fetches task records from the task registry.
package tasksource

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"triad/pkg/logx"
)

// Task is one benchmark task.
//
//nolint:govet // fieldalignment: ordered for readability
type Task struct {
	Index            int      `json:"index"`
	InstanceID       string   `json:"instance_id"`
	ProblemStatement string   `json:"problem_statement"`
	CloneCommand     string   `json:"clone_command"`
	RepoURL          string   `json:"repo_url"`
	Ref              string   `json:"ref"`
	FailToPass       []string `json:"fail_to_pass"`
	PassToPass       []string `json:"pass_to_pass"`
}

// wireTask is the registry's JSON shape. The test lists arrive as
// JSON-encoded strings.
type wireTask struct {
	ProblemStatement string          `json:"Problem_statement"`
	GitClone         string          `json:"git_clone"`
	FailToPass       json.RawMessage `json:"FAIL_TO_PASS"`
	PassToPass       json.RawMessage `json:"PASS_TO_PASS"`
	InstanceID       string          `json:"instance_id"`
}

// StatusError is a non-success response from the registry.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("invalid task API response: %d %s", e.StatusCode, e.Body)
}

// Client talks to the task registry. Tasks live at baseURL + index.
type Client struct {
	baseURL string
	client  *http.Client
	logger  *logx.Logger
}

// NewClient creates a registry client.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		logger:  logx.NewLogger("tasksource"),
	}
}

// Fetch retrieves and decodes task index.
func (c *Client) Fetch(ctx context.Context, index int) (*Task, error) {
	url := c.baseURL + strconv.Itoa(index)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	c.logger.Debug("GET %s", url)
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("task %d: request failed: %w", index, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("task %d: failed to read response: %w", index, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("task %d: %w", index, &StatusError{StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(body))})
	}

	return decodeTask(index, body)
}

func decodeTask(index int, body []byte) (*Task, error) {
	var w wireTask
	if err := json.Unmarshal(body, &w); err != nil {
		return nil, fmt.Errorf("task %d: failed to decode response: %w", index, err)
	}

	repoURL, ref, err := ParseCloneCommand(w.GitClone)
	if err != nil {
		return nil, fmt.Errorf("task %d: %w", index, err)
	}
	failToPass, err := decodeTestList(w.FailToPass)
	if err != nil {
		return nil, fmt.Errorf("task %d: FAIL_TO_PASS: %w", index, err)
	}
	passToPass, err := decodeTestList(w.PassToPass)
	if err != nil {
		return nil, fmt.Errorf("task %d: PASS_TO_PASS: %w", index, err)
	}

	return &Task{
		Index:            index,
		InstanceID:       w.InstanceID,
		ProblemStatement: w.ProblemStatement,
		CloneCommand:     w.GitClone,
		RepoURL:          repoURL,
		Ref:              ref,
		FailToPass:       failToPass,
		PassToPass:       passToPass,
	}, nil
}

// decodeTestList accepts a JSON-encoded string holding a list, a plain list,
// or nothing.
func decodeTestList(raw json.RawMessage) ([]string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return []string{}, nil
	}
	if raw[0] == '"' {
		var encoded string
		if err := json.Unmarshal(raw, &encoded); err != nil {
			return nil, err
		}
		if encoded == "" {
			return []string{}, nil
		}
		raw = []byte(encoded)
	}
	list := []string{}
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("not a list of test ids: %w", err)
	}
	return list, nil
}
