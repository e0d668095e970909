package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"triad/pkg/agent/llm"
)

type countingClient struct{ calls int }

func (c *countingClient) Complete(_ context.Context, _ llm.CompletionRequest) (llm.CompletionResponse, error) {
	c.calls++
	return llm.CompletionResponse{Content: "ok"}, nil
}

func (c *countingClient) GetModelName() string { return "m" }

type throttleRecorder struct {
	mu        sync.Mutex
	throttles []string
	waits     int
}

func (r *throttleRecorder) ObserveRequest(string, string, int, int, float64, bool, string, time.Duration) {
}

func (r *throttleRecorder) IncThrottle(_, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.throttles = append(r.throttles, reason)
}

func (r *throttleRecorder) ObserveQueueWait(string, time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.waits++
}

func TestNewLimiterUnlimited(t *testing.T) {
	assert.Nil(t, NewLimiter(0))
	assert.NotNil(t, NewLimiter(60))
}

func TestNilLimiterPassthrough(t *testing.T) {
	base := &countingClient{}
	assert.Same(t, base, Middleware(nil, nil)(base))
}

func TestThrottledRequestWaitsThenRuns(t *testing.T) {
	rec := &throttleRecorder{}
	base := &countingClient{}
	client := llm.Chain(base, Middleware(NewLimiter(6000), rec)) // one every 10ms

	for range 3 {
		_, err := client.Complete(context.Background(), llm.CompletionRequest{})
		require.NoError(t, err)
	}
	assert.Equal(t, 3, base.calls)
	assert.Equal(t, 3, rec.waits)
}

func TestCancelledWhileThrottled(t *testing.T) {
	rec := &throttleRecorder{}
	base := &countingClient{}
	client := llm.Chain(base, Middleware(NewLimiter(1), rec))

	_, err := client.Complete(context.Background(), llm.CompletionRequest{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = client.Complete(ctx, llm.CompletionRequest{})
	require.Error(t, err)
	assert.Equal(t, 1, base.calls)
	assert.Contains(t, rec.throttles, "wait_cancelled")
}
