// Package grading submits a prepared workspace to the grading service and
// summarizes the test outcome.
package grading

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"triad/pkg/logx"
)

// ErrEmptyResult is returned when the harness output carries no result for
// the instance.
var ErrEmptyResult = errors.New("no data in harnessOutput")

// Test categories reported by the harness.
const (
	CategoryFailToPass = "FAIL_TO_PASS"
	CategoryPassToPass = "PASS_TO_PASS"
)

// Request is the grading payload.
type Request struct {
	InstanceID string   `json:"instance_id"`
	RepoDir    string   `json:"repoDir"`
	FailToPass []string `json:"FAIL_TO_PASS"`
	PassToPass []string `json:"PASS_TO_PASS"`
}

// Outcome lists test ids that succeeded and failed in one category.
type Outcome struct {
	Success []string `json:"success"`
	Failure []string `json:"failure"`
}

// Passed returns the number of succeeding tests.
func (o Outcome) Passed() int { return len(o.Success) }

// Total returns the number of tests run.
func (o Outcome) Total() int { return len(o.Success) + len(o.Failure) }

// Result is the harness verdict for one instance.
type Result struct {
	InstanceID  string             `json:"instance_id"`
	TestsStatus map[string]Outcome `json:"tests_status"`
	Resolved    bool               `json:"resolved,omitempty"`
}

// Category returns the outcome of one test category (zero when absent).
func (r *Result) Category(name string) Outcome {
	return r.TestsStatus[name]
}

// Summary is the pass counts per category.
type Summary struct {
	FailToPassPassed int `json:"fail_to_pass_passed"`
	FailToPassTotal  int `json:"fail_to_pass_total"`
	PassToPassPassed int `json:"pass_to_pass_passed"`
	PassToPassTotal  int `json:"pass_to_pass_total"`
}

// Summary counts passed and total tests per category.
func (r *Result) Summary() Summary {
	f2p, p2p := r.Category(CategoryFailToPass), r.Category(CategoryPassToPass)
	return Summary{
		FailToPassPassed: f2p.Passed(),
		FailToPassTotal:  f2p.Total(),
		PassToPassPassed: p2p.Passed(),
		PassToPassTotal:  p2p.Total(),
	}
}

// Add returns the element-wise sum of s and o.
func (s Summary) Add(o Summary) Summary {
	return Summary{
		FailToPassPassed: s.FailToPassPassed + o.FailToPassPassed,
		FailToPassTotal:  s.FailToPassTotal + o.FailToPassTotal,
		PassToPassPassed: s.PassToPassPassed + o.PassToPassPassed,
		PassToPassTotal:  s.PassToPassTotal + o.PassToPassTotal,
	}
}

// Solved reports whether every FAIL_TO_PASS and PASS_TO_PASS test passed.
func (s Summary) Solved() bool {
	return s.FailToPassTotal > 0 &&
		s.FailToPassPassed == s.FailToPassTotal &&
		s.PassToPassPassed == s.PassToPassTotal
}

func (s Summary) String() string {
	return fmt.Sprintf("FAIL_TO_PASS passed: %d/%d, PASS_TO_PASS passed: %d/%d",
		s.FailToPassPassed, s.FailToPassTotal, s.PassToPassPassed, s.PassToPassTotal)
}

// StatusError is a non-success response from the grading service.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("grading service returned %d: %s", e.StatusCode, e.Body)
}

// Client calls the grading service.
type Client struct {
	url    string
	client *http.Client
	logger *logx.Logger
}

// NewClient creates a client posting to url. Grading runs the test suite, so
// the timeout is generous.
func NewClient(url string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	return &Client{
		url:    url,
		client: &http.Client{Timeout: timeout},
		logger: logx.NewLogger("grading"),
	}
}

// Grade submits req and decodes the harness result for req.InstanceID.
func (c *Client) Grade(ctx context.Context, req Request) (*Result, error) {
	if req.FailToPass == nil {
		req.FailToPass = []string{}
	}
	if req.PassToPass == nil {
		req.PassToPass = []string{}
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal grading request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("grading request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read grading response: %w", err)
	}
	c.logger.Info("grading %s: %d in %s", req.InstanceID, resp.StatusCode, time.Since(start).Round(time.Second))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(body))}
	}

	return ParseResponse(body, req.InstanceID)
}

// ParseResponse decodes a grading response body. harnessOutput is itself a
// JSON document keyed by instance id; when instanceID is not present and the
// document has exactly one entry, that entry is used.
func ParseResponse(body []byte, instanceID string) (*Result, error) {
	var envelope struct {
		HarnessOutput string `json:"harnessOutput"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("failed to decode grading response: %w", err)
	}
	if envelope.HarnessOutput == "" {
		return nil, ErrEmptyResult
	}

	var byInstance map[string]Result
	if err := json.Unmarshal([]byte(envelope.HarnessOutput), &byInstance); err != nil {
		return nil, fmt.Errorf("failed to decode harnessOutput: %w", err)
	}
	if len(byInstance) == 0 {
		return nil, ErrEmptyResult
	}

	key := instanceID
	result, ok := byInstance[key]
	if !ok {
		if len(byInstance) != 1 {
			return nil, fmt.Errorf("%w: instance %q not among %v", ErrEmptyResult, instanceID, keys(byInstance))
		}
		for k, v := range byInstance {
			key, result = k, v
		}
	}
	if result.TestsStatus == nil {
		return nil, fmt.Errorf("%w: no tests_status for %s", ErrEmptyResult, key)
	}
	result.InstanceID = key
	return &result, nil
}

func keys(m map[string]Result) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
