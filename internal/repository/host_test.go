package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/google/go-github/v57/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/cigen/internal/config"
	"github.com/fyrsmithlabs/cigen/internal/orchestrator"
)

const widgetURL = "https://github.com/acme/widget"

// newHostService points a Service at an httptest GitHub API.
func newHostService(t *testing.T, mux *http.ServeMux) (*Service, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	client := github.NewClient(nil)
	base, err := url.Parse(srv.URL + "/")
	require.NoError(t, err)
	client.BaseURL = base

	svc, err := New(context.Background(),
		config.GitHubConfig{RequestsPerSecond: 1000, Burst: 100},
		config.GitConfig{WorkDir: t.TempDir()},
		WithGitHubClient(client),
		WithHTTPClient(srv.Client()),
		WithRetry(RetryConfig{MaxRetries: 2, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond}),
		WithLogLines(3),
	)
	require.NoError(t, err)
	return svc, srv
}

func writeJSON(t *testing.T, w http.ResponseWriter, status int, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

func TestService_GetInfo(t *testing.T) {
	calls := 0
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/acme/widget", func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		writeJSON(t, w, http.StatusOK, map[string]any{
			"name":             "widget",
			"default_branch":   "main",
			"language":         "Go",
			"description":      "A widget",
			"topics":           []string{"cli", "tools"},
			"stargazers_count": 42,
			"html_url":         widgetURL,
		})
	})
	svc, _ := newHostService(t, mux)

	info, err := svc.GetInfo(context.Background(), widgetURL+".git")
	require.NoError(t, err)
	assert.Equal(t, 2, calls, "502 is retried")
	assert.Equal(t, orchestrator.RepoInfo{
		Owner:         "acme",
		Name:          "widget",
		DefaultBranch: "main",
		Language:      "Go",
		Description:   "A widget",
		Topics:        []string{"cli", "tools"},
		Stars:         42,
		HTMLURL:       widgetURL,
	}, info)
}

func TestService_GetInfo_NotFound(t *testing.T) {
	calls := 0
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/acme/widget", func(w http.ResponseWriter, r *http.Request) {
		calls++
		writeJSON(t, w, http.StatusNotFound, map[string]string{"message": "Not Found"})
	})
	svc, _ := newHostService(t, mux)

	_, err := svc.GetInfo(context.Background(), widgetURL)
	require.Error(t, err)
	assert.Equal(t, 1, calls)

	_, err = svc.GetInfo(context.Background(), "not a url")
	assert.ErrorIs(t, err, ErrInvalidRepoURL)
}

func TestService_GetRunResult_NoRun(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/acme/widget/actions/runs", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "abc123", r.URL.Query().Get("head_sha"))
		writeJSON(t, w, http.StatusOK, map[string]any{"total_count": 0, "workflow_runs": []any{}})
	})
	svc, _ := newHostService(t, mux)

	_, err := svc.GetRunResult(context.Background(), widgetURL, "abc123")
	assert.ErrorIs(t, err, orchestrator.ErrNoRun)
}

func TestService_GetRunResult_InProgress(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/acme/widget/actions/runs", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusOK, map[string]any{
			"total_count":   1,
			"workflow_runs": []map[string]any{{"id": 7, "status": "in_progress", "html_url": "https://github.com/acme/widget/actions/runs/7"}},
		})
	})
	svc, _ := newHostService(t, mux)

	run, err := svc.GetRunResult(context.Background(), widgetURL, "abc123")
	require.NoError(t, err)
	assert.Equal(t, orchestrator.RunInProgress, run.State)
	assert.False(t, run.Completed())
	assert.Empty(t, run.FailureDetail)
}

func TestService_GetRunResult_Success(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/acme/widget/actions/runs", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusOK, map[string]any{
			"total_count":   1,
			"workflow_runs": []map[string]any{{"id": 7, "status": "completed", "conclusion": "success"}},
		})
	})
	mux.HandleFunc("GET /repos/acme/widget/actions/runs/7/jobs", func(w http.ResponseWriter, r *http.Request) {
		t.Error("jobs are not fetched for successful runs")
	})
	svc, _ := newHostService(t, mux)

	run, err := svc.GetRunResult(context.Background(), widgetURL, "abc123")
	require.NoError(t, err)
	assert.True(t, run.Succeeded())
}

func TestService_GetRunResult_FailureDetail(t *testing.T) {
	mux := http.NewServeMux()
	var srvURL string
	mux.HandleFunc("GET /repos/acme/widget/actions/runs", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusOK, map[string]any{
			"total_count": 2,
			"workflow_runs": []map[string]any{
				{"id": 8, "status": "completed", "conclusion": "failure", "html_url": "https://github.com/acme/widget/actions/runs/8"},
				{"id": 7, "status": "completed", "conclusion": "success"},
			},
		})
	})
	mux.HandleFunc("GET /repos/acme/widget/actions/runs/8/jobs", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusOK, map[string]any{
			"total_count": 2,
			"jobs": []map[string]any{
				{"id": 90, "name": "lint", "conclusion": "success"},
				{"id": 91, "name": "test", "conclusion": "failure", "steps": []map[string]any{
					{"number": 1, "name": "Set up job", "conclusion": "success"},
					{"number": 4, "name": "Run go test ./...", "conclusion": "failure"},
				}},
			},
		})
	})
	mux.HandleFunc("GET /repos/acme/widget/actions/jobs/91/logs", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, srvURL+"/blobs/91", http.StatusFound)
	})
	mux.HandleFunc("GET /blobs/91", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "setup\ndownload\n--- FAIL: TestParse (0.00s)\nFAIL\nexit status 1\n")
	})
	svc, srv := newHostService(t, mux)
	srvURL = srv.URL

	run, err := svc.GetRunResult(context.Background(), widgetURL, "abc123")
	require.NoError(t, err)
	assert.Equal(t, "failure", run.Conclusion)
	assert.Equal(t, "https://github.com/acme/widget/actions/runs/8", run.URL)
	assert.Contains(t, run.FailureDetail, `Job "test": failure`)
	assert.Contains(t, run.FailureDetail, "Failed step 4: Run go test ./...")
	assert.Contains(t, run.FailureDetail, "--- FAIL: TestParse")
	assert.NotContains(t, run.FailureDetail, "download", "only the log tail is kept")
	assert.NotContains(t, run.FailureDetail, "lint")
}

func TestService_GetRunResult_LogDownloadFails(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/acme/widget/actions/runs", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusOK, map[string]any{
			"total_count":   1,
			"workflow_runs": []map[string]any{{"id": 8, "status": "completed", "conclusion": "failure"}},
		})
	})
	mux.HandleFunc("GET /repos/acme/widget/actions/runs/8/jobs", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusOK, map[string]any{
			"total_count": 1,
			"jobs":        []map[string]any{{"id": 91, "name": "build", "conclusion": "failure"}},
		})
	})
	mux.HandleFunc("GET /repos/acme/widget/actions/jobs/91/logs", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusGone, map[string]string{"message": "logs expired"})
	})
	svc, _ := newHostService(t, mux)

	run, err := svc.GetRunResult(context.Background(), widgetURL, "abc123")
	require.NoError(t, err, "missing logs do not fail the lookup")
	assert.Equal(t, `Job "build": failure`, run.FailureDetail)
}

func TestService_OpenMergeRequest(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /repos/acme/widget/pulls", func(w http.ResponseWriter, r *http.Request) {
		var body github.NewPullRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Add CI workflow ci.yml", body.GetTitle())
		assert.Equal(t, "cigen/gpt-4o-mini", body.GetHead())
		assert.Equal(t, "main", body.GetBase())
		assert.True(t, strings.HasPrefix(body.GetBody(), "Builds and tests"))
		writeJSON(t, w, http.StatusCreated, map[string]any{"number": 12, "html_url": widgetURL + "/pull/12"})
	})
	svc, _ := newHostService(t, mux)

	got, err := svc.OpenMergeRequest(context.Background(), widgetURL, orchestrator.MergeRequest{
		Head:  "cigen/gpt-4o-mini",
		Base:  "main",
		Title: "Add CI workflow ci.yml",
		Body:  "Builds and tests the module.",
	})
	require.NoError(t, err)
	assert.Equal(t, widgetURL+"/pull/12", got)
}

func TestService_OpenMergeRequest_Rejected(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /repos/acme/widget/pulls", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusUnprocessableEntity, map[string]any{"message": "A pull request already exists"})
	})
	svc, _ := newHostService(t, mux)

	_, err := svc.OpenMergeRequest(context.Background(), widgetURL, orchestrator.MergeRequest{Head: "a", Base: "b"})
	assert.ErrorContains(t, err, "create pull request a -> b")
}

func TestParseRepoURL(t *testing.T) {
	tests := []struct {
		raw         string
		owner, name string
		wantErr     bool
	}{
		{raw: "https://github.com/acme/widget", owner: "acme", name: "widget"},
		{raw: "https://github.com/acme/widget.git", owner: "acme", name: "widget"},
		{raw: "https://github.com/acme/widget/", owner: "acme", name: "widget"},
		{raw: "git@github.com:acme/widget.git", owner: "acme", name: "widget"},
		{raw: "https://ghe.example.test/scm/acme/widget", owner: "acme", name: "widget"},
		{raw: "https://github.com/acme", wantErr: true},
		{raw: "widget", wantErr: true},
		{raw: "git@github.com", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			owner, name, err := parseRepoURL(tt.raw)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidRepoURL)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, fmt.Sprintf("%s/%s", tt.owner, tt.name), owner+"/"+name)
		})
	}
}

func TestTail(t *testing.T) {
	assert.Equal(t, "c\nd", tail("a\nb\nc\nd\n", 2))
	assert.Equal(t, "a\nb", tail("a\nb", 5))
	assert.Equal(t, "a\nb", tail("a\nb", 0))
}
