package metrics

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func vectorBody(samples map[string]string) string {
	parts := make([]string, 0, len(samples))
	for role, value := range samples {
		parts = append(parts, fmt.Sprintf(`{"metric":{"role":%q},"value":[1700000000,%q]}`, role, value))
	}
	return `{"status":"success","data":{"resultType":"vector","result":[` + strings.Join(parts, ",") + `]}}`
}

func TestGetRoleUsage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/query", r.URL.Path)
		assert.NoError(t, r.ParseForm())
		query := r.Form.Get("query")

		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.Contains(query, `type="prompt"`):
			fmt.Fprint(w, vectorBody(map[string]string{"coder": "1000", "planner": "200"}))
		case strings.Contains(query, `type="completion"`):
			fmt.Fprint(w, vectorBody(map[string]string{"coder": "500", "tester": "40"}))
		case strings.Contains(query, "triad_llm_cost_usd_total"):
			fmt.Fprint(w, vectorBody(map[string]string{"coder": "0.75", "planner": "0.1", "tester": "0.02"}))
		default:
			http.Error(w, "unexpected query", http.StatusBadRequest)
		}
	}))
	defer srv.Close()

	q, err := NewQueryService(srv.URL)
	require.NoError(t, err)

	got, err := q.GetRoleUsage(t.Context())
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, "coder", got[0].Role)
	assert.Equal(t, int64(1000), got[0].PromptTokens)
	assert.Equal(t, int64(500), got[0].CompletionTokens)
	assert.Equal(t, int64(1500), got[0].TotalTokens)
	assert.InDelta(t, 0.75, got[0].TotalCost, 1e-9)

	assert.Equal(t, "planner", got[1].Role)
	assert.Equal(t, int64(200), got[1].TotalTokens)

	assert.Equal(t, "tester", got[2].Role)
	assert.Equal(t, int64(40), got[2].CompletionTokens)
	assert.InDelta(t, 0.02, got[2].TotalCost, 1e-9)
}

func TestGetRoleUsageServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"status":"error","errorType":"bad_data","error":"parse error"}`)
	}))
	defer srv.Close()

	q, err := NewQueryService(srv.URL)
	require.NoError(t, err)

	_, err = q.GetRoleUsage(t.Context())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "prompt tokens")
}
