package forge

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greg-hellings/forgeclient/pkg/forgeerr"
)

func githubRepoPayload() map[string]any {
	return map[string]any{
		"id":               1296269,
		"name":             "hello",
		"full_name":        "octo/hello",
		"owner":            map[string]any{"login": "octo", "id": 1},
		"description":      "demo",
		"html_url":         "https://github.com/octo/hello",
		"default_branch":   "main",
		"private":          false,
		"visibility":       "public",
		"stargazers_count": 80,
		"forks_count":      9,
		"created_at":       "2020-01-26T19:01:12Z",
		"updated_at":       "2024-01-26T19:14:43Z",
	}
}

func TestGitHubAdapter_GetRepositoryRoundTrip(t *testing.T) {
	var auth atomic.Value
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/octo/hello", func(w http.ResponseWriter, r *http.Request) {
		auth.Store(r.Header.Get("Authorization"))
		writeJSON(w, http.StatusOK, githubRepoPayload())
	})
	a := newTestGitHub(t, mux)

	found, err := a.FindRepository(context.Background(), "octo/hello")
	require.NoError(t, err)
	assert.Equal(t, SlugID("octo/hello"), found.ID)
	assert.Equal(t, "octo", found.Owner)
	assert.Equal(t, "hello", found.Name)
	assert.Equal(t, BackendGitHub, found.Backend)
	assert.Equal(t, VisibilityPublic, found.Visibility)
	require.NotNil(t, found.Stars)
	assert.Equal(t, 80, *found.Stars)
	require.NotNil(t, found.Description)
	assert.Equal(t, "demo", *found.Description)

	again, err := a.GetRepository(context.Background(), found.ID)
	require.NoError(t, err)
	assert.Equal(t, found, again)
	assert.Equal(t, "Bearer ghp_testtokentesttokentesttoken", auth.Load())
}

func TestGitHubAdapter_NotFound(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/octo/missing", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]any{"message": "Not Found"})
	})
	a := newTestGitHub(t, mux)

	_, err := a.GetRepository(context.Background(), SlugID("octo/missing"))
	require.Error(t, err)
	assert.ErrorIs(t, err, forgeerr.ErrBackendAPI)
	assert.Equal(t, http.StatusNotFound, forgeerr.StatusCode(err))
	assert.True(t, forgeerr.IsNotFound(err))

	var fe *forgeerr.Error
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "github", fe.Backend)
	assert.Equal(t, "GetRepository", fe.Op)
}

func TestGitHubAdapter_Unauthorized(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "Bad credentials"})
	})
	a := newTestGitHub(t, mux)

	_, err := a.CurrentUser(context.Background())
	assert.ErrorIs(t, err, forgeerr.ErrUnauthorized)
}

func TestGitHubAdapter_RateLimited(t *testing.T) {
	var calls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Retry-After", "0")
		writeJSON(w, http.StatusTooManyRequests, map[string]any{"message": "slow down"})
	})
	a := newTestGitHub(t, mux)

	_, err := a.CurrentUser(context.Background())
	require.Error(t, err)
	assert.True(t, forgeerr.IsRateLimited(err))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls), "one attempt plus two retries")
}

func TestGitHubAdapter_ValidationMessage(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/user/repos", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"message": "Repository creation failed.",
			"errors":  []map[string]any{{"resource": "Repository", "code": "custom", "field": "name", "message": "name already exists on this account"}},
		})
	})
	a := newTestGitHub(t, mux)

	_, err := a.CreateRepository(context.Background(), CreateRepositoryInput{Name: "hello"})
	require.Error(t, err)
	assert.ErrorIs(t, err, forgeerr.ErrBackendAPI)
	assert.Equal(t, http.StatusUnprocessableEntity, forgeerr.StatusCode(err))
	assert.Contains(t, err.Error(), "name already exists")

	var fe *forgeerr.Error
	require.True(t, errors.As(err, &fe))
	assert.Contains(t, fe.Body, `"Repository creation failed."`)
}

func TestGitHubAdapter_ExhaustedQuotaStillReachesTransport(t *testing.T) {
	var calls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			w.Header().Set("X-RateLimit-Limit", "5000")
			w.Header().Set("X-RateLimit-Remaining", "0")
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(2*time.Second).Unix(), 10))
		}
		writeJSON(w, http.StatusOK, map[string]any{"id": 1, "login": "octo"})
	})
	a := newTestGitHub(t, mux)

	_, err := a.CurrentUser(context.Background())
	require.NoError(t, err)
	user, err := a.CurrentUser(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "octo", user.Username)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls), "the second call must be sent, not rejected locally")
}

func TestGitHubAdapter_RejectsNumericRepositoryID(t *testing.T) {
	a := newTestGitHub(t, http.NotFoundHandler())

	_, err := a.GetRepository(context.Background(), NumericID(1296269))
	require.Error(t, err)
	assert.ErrorIs(t, err, forgeerr.ErrUnsupportedIdentifier)
	assert.Contains(t, err.Error(), "FindRepository")

	_, err = a.GetComment(context.Background(), SlugID("octo/hello"), IssueThread(1), SlugID("abc"))
	assert.ErrorIs(t, err, forgeerr.ErrUnsupportedIdentifier)

	_, err = a.ListComments(context.Background(), SlugID("octo/hello"), Thread{Number: 3}, ListOptions{})
	assert.ErrorIs(t, err, forgeerr.ErrUnsupportedIdentifier)
}

func TestGitHubAdapter_ListIssuesDropsPullRequests(t *testing.T) {
	var query atomic.Value
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/octo/hello/issues", func(w http.ResponseWriter, r *http.Request) {
		query.Store(r.URL.Query())
		writeJSON(w, http.StatusOK, []map[string]any{
			{"id": 1, "number": 1, "title": "bug", "state": "open", "labels": []map[string]any{{"name": "bug"}}},
			{"id": 2, "number": 2, "title": "pr", "state": "open", "pull_request": map[string]any{"url": "https://api.github.com/repos/octo/hello/pulls/2"}},
			{"id": 3, "number": 3, "title": "no labels", "state": "open"},
		})
	})
	a := newTestGitHub(t, mux)

	issues, err := a.ListIssues(context.Background(), SlugID("octo/hello"), IssueListOptions{ListOptions: ListOptions{PerPage: 500}})
	require.NoError(t, err)
	require.Len(t, issues, 2)
	assert.Equal(t, 1, issues[0].Number)
	assert.Equal(t, []string{"bug"}, issues[0].Labels)
	assert.NotNil(t, issues[1].Labels)
	assert.Empty(t, issues[1].Labels)

	q := query.Load().(url.Values)
	assert.Equal(t, "open", q.Get("state"))
	assert.Equal(t, "100", q.Get("per_page"))
}

func TestGitHubAdapter_ListPullRequestsMerged(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/octo/hello/pulls", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "closed", r.URL.Query().Get("state"))
		writeJSON(w, http.StatusOK, []map[string]any{
			{"id": 10, "number": 5, "title": "merged", "state": "closed", "merged_at": "2024-02-01T10:00:00Z",
				"head": map[string]any{"ref": "feature"}, "base": map[string]any{"ref": "main"}},
			{"id": 11, "number": 6, "title": "rejected", "state": "closed", "closed_at": "2024-02-02T10:00:00Z"},
		})
	})
	a := newTestGitHub(t, mux)

	prs, err := a.ListPullRequests(context.Background(), SlugID("octo/hello"), PullRequestListOptions{State: StateMerged})
	require.NoError(t, err)
	require.Len(t, prs, 1)
	assert.Equal(t, StateMerged, prs[0].State)
	require.NotNil(t, prs[0].MergedAt)
	assert.Equal(t, "feature", prs[0].SourceBranch)
	assert.Equal(t, "main", prs[0].TargetBranch)
}

func TestGitHubAdapter_UpdatePullRequestDraftUnsupported(t *testing.T) {
	var calls int32
	a := newTestGitHub(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))

	draft := true
	_, err := a.UpdatePullRequest(context.Background(), SlugID("octo/hello"), 5, UpdatePullRequestInput{Draft: &draft})
	assert.ErrorIs(t, err, forgeerr.ErrUnsupportedOperation)

	merged := StateMerged
	_, err = a.UpdatePullRequest(context.Background(), SlugID("octo/hello"), 5, UpdatePullRequestInput{State: &merged})
	assert.ErrorIs(t, err, forgeerr.ErrUnsupportedOperation)

	assert.Zero(t, atomic.LoadInt32(&calls), "rejected updates must not reach the backend")
}

func TestGitHubAdapter_UpdateIssueSendsState(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/octo/hello/issues/4", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		body := decodeBody(t, r)
		assert.Equal(t, "closed", body["state"])
		assert.Equal(t, []any{"wontfix"}, body["labels"])
		writeJSON(w, http.StatusOK, map[string]any{"id": 40, "number": 4, "title": "t", "state": "closed",
			"closed_at": "2024-03-01T00:00:00Z", "labels": []map[string]any{{"name": "wontfix"}}})
	})
	a := newTestGitHub(t, mux)

	closed := StateClosed
	labels := []string{"wontfix"}
	issue, err := a.UpdateIssue(context.Background(), SlugID("octo/hello"), 4, UpdateIssueInput{State: &closed, Labels: &labels})
	require.NoError(t, err)
	assert.Equal(t, StateClosed, issue.State)
	assert.NotNil(t, issue.ClosedAt)
}

func TestGitHubAdapter_Comments(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/octo/hello/issues/7/comments", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			assert.Equal(t, "hi", decodeBody(t, r)["body"])
			writeJSON(w, http.StatusCreated, map[string]any{"id": 99, "body": "hi", "user": map[string]any{"login": "octo", "id": 1}})
			return
		}
		writeJSON(w, http.StatusOK, []map[string]any{{"id": 98, "body": "first"}})
	})
	mux.HandleFunc("/repos/octo/hello/issues/comments/99", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"id": 99, "body": "edited"})
	})
	a := newTestGitHub(t, mux)
	ctx := context.Background()
	repo := SlugID("octo/hello")

	created, err := a.CreateComment(ctx, repo, PullRequestThread(7), "hi")
	require.NoError(t, err)
	assert.Equal(t, NumericID(99), created.ID)
	assert.Equal(t, "octo", created.Author.DisplayName)

	list, err := a.ListComments(ctx, repo, PullRequestThread(7), ListOptions{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "first", list[0].Body)

	edited, err := a.UpdateComment(ctx, repo, PullRequestThread(7), created.ID, "edited")
	require.NoError(t, err)
	assert.Equal(t, "edited", edited.Body)
}

func TestGitHubAdapter_ListBranchesMarksDefault(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/octo/hello", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, githubRepoPayload())
	})
	mux.HandleFunc("/repos/octo/hello/branches", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []map[string]any{
			{"name": "main", "protected": true, "commit": map[string]any{"sha": "abc"}},
			{"name": "dev", "commit": map[string]any{"sha": "def"}},
		})
	})
	a := newTestGitHub(t, mux)

	branches, err := a.ListBranches(context.Background(), SlugID("octo/hello"))
	require.NoError(t, err)
	require.Len(t, branches, 2)
	assert.Equal(t, Branch{Name: "main", Protected: true, Default: true, CommitSHA: "abc"}, branches[0])
	assert.False(t, branches[1].Default)
}

func TestGitHubAdapter_PullRequestDiff(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/octo/hello/pulls/5/files", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []map[string]any{
			{"filename": "a.go", "status": "modified", "additions": 3, "deletions": 1, "patch": "@@"},
			{"filename": "b.go", "status": "added", "additions": 10},
			{"filename": "c.go", "previous_filename": "old.go", "status": "renamed"},
		})
	})
	a := newTestGitHub(t, mux)

	diff, err := a.GetPullRequestDiff(context.Background(), SlugID("octo/hello"), 5)
	require.NoError(t, err)
	assert.Equal(t, 13, diff.Additions)
	assert.Equal(t, 1, diff.Deletions)
	require.Len(t, diff.Files, 3)
	assert.True(t, diff.Files[1].IsNew)
	assert.Nil(t, diff.Files[1].OldPath)
	require.NotNil(t, diff.Files[2].OldPath)
	assert.Equal(t, "old.go", *diff.Files[2].OldPath)
	assert.True(t, diff.Files[2].IsRenamed)
}

func TestGitHubAdapter_ConditionalRequests(t *testing.T) {
	var full, notModified int32
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/octo/hello", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("If-None-Match") == `"r1"` {
			atomic.AddInt32(&notModified, 1)
			w.WriteHeader(http.StatusNotModified)
			return
		}
		atomic.AddInt32(&full, 1)
		w.Header().Set("ETag", `"r1"`)
		writeJSON(w, http.StatusOK, githubRepoPayload())
	})
	a := newTestGitHub(t, mux)

	first, err := a.GetRepository(context.Background(), SlugID("octo/hello"))
	require.NoError(t, err)
	second, err := a.GetRepository(context.Background(), SlugID("octo/hello"))
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), atomic.LoadInt32(&full))
	assert.Equal(t, int32(1), atomic.LoadInt32(&notModified))
}

func TestGitHubAdapter_BaseURL(t *testing.T) {
	a, err := NewGitHubAdapter(AdapterOptions{Token: "ghp_x", Logger: discardLogger()})
	require.NoError(t, err)
	assert.Equal(t, DefaultGitHubBaseURL, a.BaseURL())
	assert.Equal(t, BackendGitHub, a.Backend())

	enterprise, err := NewGitHubAdapter(AdapterOptions{BaseURL: "https://ghe.example.com/api/v3", Logger: discardLogger()})
	require.NoError(t, err)
	assert.Equal(t, "https://ghe.example.com/api/v3/", enterprise.BaseURL())

	_, err = NewGitHubAdapter(AdapterOptions{BaseURL: "not a url"})
	assert.Error(t, err)
}
