package forge

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-github/v57/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greg-hellings/forgeclient/pkg/forgeerr"
)

func TestGitHubConverters_RequiredFields(t *testing.T) {
	tests := []struct {
		description string
		convert     func() error
		entity      string
	}{
		{"repository without id", func() error {
			_, err := githubRepository(&github.Repository{FullName: github.String("a/b")})
			return err
		}, "repository"},
		{"repository without full name", func() error {
			_, err := githubRepository(&github.Repository{ID: github.Int64(1)})
			return err
		}, "repository"},
		{"issue without title", func() error {
			_, err := githubIssue(&github.Issue{ID: github.Int64(1), Number: github.Int(1)})
			return err
		}, "issue"},
		{"pull request without number", func() error {
			_, err := githubPullRequest(&github.PullRequest{ID: github.Int64(1), Title: github.String("x")})
			return err
		}, "pull request"},
		{"comment without id", func() error {
			_, err := githubComment(&github.IssueComment{Body: github.String("x")})
			return err
		}, "comment"},
		{"author without id or login", func() error {
			_, err := githubIssue(&github.Issue{ID: github.Int64(1), Number: github.Int(1), Title: github.String("x"), User: &github.User{}})
			return err
		}, "issue"},
	}

	for _, tt := range tests {
		t.Run(tt.description, func(t *testing.T) {
			err := tt.convert()
			require.Error(t, err)
			assert.ErrorIs(t, err, forgeerr.ErrConversion)
			var fe *forgeerr.Error
			require.True(t, errors.As(err, &fe))
			assert.Equal(t, tt.entity, fe.Entity)
		})
	}
}

func TestGitHubPullRequest_MergedFallsBackToClosedAt(t *testing.T) {
	closed := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	pr, err := githubPullRequest(&github.PullRequest{
		ID:       github.Int64(1),
		Number:   github.Int(2),
		Title:    github.String("x"),
		State:    github.String("closed"),
		Merged:   github.Bool(true),
		ClosedAt: &github.Timestamp{Time: closed},
	})
	require.NoError(t, err)
	assert.Equal(t, StateMerged, pr.State)
	require.NotNil(t, pr.MergedAt)
	assert.Equal(t, closed, *pr.MergedAt)
	assert.NotNil(t, pr.Labels)
	assert.NotNil(t, pr.Assignees)
}

func TestGitHubRepository_Visibility(t *testing.T) {
	base := func() *github.Repository {
		return &github.Repository{ID: github.Int64(1), FullName: github.String("a/b")}
	}

	r := base()
	r.Private = github.Bool(true)
	repo, err := githubRepository(r)
	require.NoError(t, err)
	assert.Equal(t, VisibilityPrivate, repo.Visibility)

	r = base()
	r.Visibility = github.String("internal")
	repo, err = githubRepository(r)
	require.NoError(t, err)
	assert.Equal(t, VisibilityInternal, repo.Visibility)

	repo, err = githubRepository(base())
	require.NoError(t, err)
	assert.Equal(t, Visibility(""), repo.Visibility)
	assert.Equal(t, "b", repo.Name)
	assert.Equal(t, "a", repo.Owner)
}

func TestGitLabConverters(t *testing.T) {
	title := "t"
	_, err := gitlabIssue(&glIssue{IID: 1, Title: &title})
	assert.ErrorIs(t, err, forgeerr.ErrConversion, "missing id")

	_, err = gitlabProject(&glProject{ID: 1, PathWithNamespace: "noslash"})
	assert.ErrorIs(t, err, forgeerr.ErrConversion, "path without namespace")

	issue, err := gitlabIssue(&glIssue{ID: 1, IID: 2, Title: &title, State: "opened"})
	require.NoError(t, err)
	assert.NotNil(t, issue.Labels)
	assert.NotNil(t, issue.Assignees)
	assert.Equal(t, StateOpen, issue.State)

	noZone := "2024-01-02T03:04:05.000"
	parsed, err := parseTime("created_at", &noZone)
	require.NoError(t, err)
	assert.Equal(t, 2024, parsed.Year())

	bad := "2024-13-45"
	_, err = parseTime("created_at", &bad)
	assert.Error(t, err)

	mr, err := gitlabMergeRequest(&glMergeRequest{glIssue: glIssue{ID: 1, IID: 3, Title: &title, State: "opened"}, WorkInProgress: true})
	require.NoError(t, err)
	assert.True(t, mr.Draft)
	assert.Nil(t, mr.MergedAt)
}

func TestNewPullRequestDiff(t *testing.T) {
	empty := NewPullRequestDiff(nil)
	assert.NotNil(t, empty.Files)
	assert.Zero(t, empty.Additions)

	diff := NewPullRequestDiff([]FileDiff{{NewPath: "a", Additions: 2, Deletions: 1}, {NewPath: "b", Additions: 5}})
	assert.Equal(t, 7, diff.Additions)
	assert.Equal(t, 1, diff.Deletions)
}
