package grading

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func harness(t *testing.T, inner string) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]string{"harnessOutput": inner})
	require.NoError(t, err)
	return body
}

const sampleHarness = `{
	"astropy__astropy-12907": {
		"patch_is_None": false,
		"resolved": false,
		"tests_status": {
			"FAIL_TO_PASS": {"success": ["t1"], "failure": ["t2"]},
			"PASS_TO_PASS": {"success": ["p1", "p2", "p3"], "failure": []}
		}
	}
}`

func TestGrade(t *testing.T) {
	var got Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write(harness(t, sampleHarness))
	}))
	defer srv.Close()

	res, err := NewClient(srv.URL+"/test", 0).Grade(context.Background(), Request{
		InstanceID: "astropy__astropy-12907",
		RepoDir:    "/repos/repo_3",
		FailToPass: []string{"t1", "t2"},
	})
	require.NoError(t, err)

	assert.Equal(t, "/repos/repo_3", got.RepoDir)
	assert.Equal(t, []string{"t1", "t2"}, got.FailToPass)
	assert.Equal(t, []string{}, got.PassToPass)

	assert.Equal(t, "astropy__astropy-12907", res.InstanceID)
	sum := res.Summary()
	assert.Equal(t, Summary{FailToPassPassed: 1, FailToPassTotal: 2, PassToPassPassed: 3, PassToPassTotal: 3}, sum)
	assert.False(t, sum.Solved())
	assert.Equal(t, "FAIL_TO_PASS passed: 1/2, PASS_TO_PASS passed: 3/3", sum.String())
}

func TestGradeRequestUsesWireNames(t *testing.T) {
	data, err := json.Marshal(Request{InstanceID: "i", RepoDir: "/repos/repo_1"})
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	for _, k := range []string{"instance_id", "repoDir", "FAIL_TO_PASS", "PASS_TO_PASS"} {
		assert.Contains(t, m, k)
	}
}

func TestGradeNonSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("harness crashed"))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, 0).Grade(context.Background(), Request{InstanceID: "x"})
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusInternalServerError, se.StatusCode)
	assert.Equal(t, "harness crashed", se.Body)
}

func TestParseResponse(t *testing.T) {
	tests := []struct {
		name     string
		body     []byte
		instance string
		wantKey  string
		wantErr  error
	}{
		{name: "exact key", body: harness(t, sampleHarness), instance: "astropy__astropy-12907", wantKey: "astropy__astropy-12907"},
		{name: "sole key fallback", body: harness(t, sampleHarness), instance: "other", wantKey: "astropy__astropy-12907"},
		{name: "missing harness output", body: []byte(`{}`), wantErr: ErrEmptyResult},
		{name: "empty harness output", body: harness(t, ""), wantErr: ErrEmptyResult},
		{name: "empty object", body: harness(t, "{}"), wantErr: ErrEmptyResult},
		{name: "no tests_status", body: harness(t, `{"a": {"resolved": true}}`), instance: "a", wantErr: ErrEmptyResult},
		{
			name:     "ambiguous",
			body:     harness(t, `{"a": {"tests_status": {}}, "b": {"tests_status": {}}}`),
			instance: "c",
			wantErr:  ErrEmptyResult,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := ParseResponse(tt.body, tt.instance)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantKey, res.InstanceID)
		})
	}

	_, err := ParseResponse([]byte("not json"), "x")
	require.Error(t, err)
	_, err = ParseResponse(harness(t, "not json"), "x")
	require.Error(t, err)
}

func TestSummaryAdd(t *testing.T) {
	a := Summary{FailToPassPassed: 1, FailToPassTotal: 1, PassToPassPassed: 2, PassToPassTotal: 2}
	b := Summary{FailToPassPassed: 0, FailToPassTotal: 3, PassToPassPassed: 5, PassToPassTotal: 6}
	assert.True(t, a.Solved())
	assert.Equal(t, Summary{FailToPassPassed: 1, FailToPassTotal: 4, PassToPassPassed: 7, PassToPassTotal: 8}, a.Add(b))
	assert.False(t, Summary{}.Solved())
}
