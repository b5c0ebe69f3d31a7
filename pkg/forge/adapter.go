// Package forge provides a unified client for code hosting backends
// (GitHub, GitLab). It defines the backend-agnostic data model, the Adapter
// interface implemented by one adapter per backend, and a Factory that
// picks the backend and credential and binds the adapter to a Transport.
package forge

import (
	"context"

	"github.com/greg-hellings/forgeclient/pkg/transport"
)

// DefaultPageSize is the page size requested when ListOptions.PerPage is unset.
const (
	DefaultPageSize = 30
	MaxPageSize     = 100
)

// ListOptions selects one page of a listing. Adapters return exactly that
// page; aggregating pages is up to the caller.
type ListOptions struct {
	Page    int // 1-based; 0 means the first page
	PerPage int // 0 means DefaultPageSize, capped at MaxPageSize
}

func (o ListOptions) normalized() (page, perPage int) {
	page, perPage = o.Page, o.PerPage
	if page < 1 {
		page = 1
	}
	if perPage <= 0 {
		perPage = DefaultPageSize
	}
	if perPage > MaxPageSize {
		perPage = MaxPageSize
	}
	return page, perPage
}

// IssueListOptions filters ListIssues.
type IssueListOptions struct {
	ListOptions
	// State is open (also when empty), closed or all.
	State  State
	Labels []string
}

// PullRequestListOptions filters ListPullRequests.
type PullRequestListOptions struct {
	ListOptions
	// State is open (also when empty), closed, merged or all.
	State State
}

// CreateRepositoryInput describes a new repository.
type CreateRepositoryInput struct {
	Name        string
	Description *string
	Visibility  Visibility
	// Owner is an organization (GitHub) or group path (GitLab). Empty
	// creates the repository under the authenticated user.
	Owner    string
	AutoInit bool
}

// UpdateRepositoryInput changes repository settings. Nil fields are left as is.
type UpdateRepositoryInput struct {
	Name          *string
	Description   *string
	DefaultBranch *string
	Visibility    *Visibility
	Archived      *bool
}

// CreateIssueInput describes a new issue. Assignees are usernames.
type CreateIssueInput struct {
	Title     string
	Body      *string
	Labels    []string
	Assignees []string
}

// UpdateIssueInput changes an issue. Nil fields are left as is; State
// accepts open or closed.
type UpdateIssueInput struct {
	Title     *string
	Body      *string
	State     *State
	Labels    *[]string
	Assignees *[]string
}

// CreatePullRequestInput describes a new pull request.
type CreatePullRequestInput struct {
	Title        string
	Body         *string
	SourceBranch string
	TargetBranch string
	Draft        bool
}

// UpdatePullRequestInput changes a pull request. Nil fields are left as
// is; State accepts open or closed.
type UpdatePullRequestInput struct {
	Title        *string
	Body         *string
	State        *State
	TargetBranch *string
	Draft        *bool
}

// ThreadKind says whether a comment thread belongs to an issue or a pull request.
type ThreadKind int

const (
	ThreadIssue ThreadKind = iota + 1
	ThreadPullRequest
)

func (k ThreadKind) String() string {
	switch k {
	case ThreadIssue:
		return "issue"
	case ThreadPullRequest:
		return "pull request"
	}
	return "unknown"
}

// Thread addresses the comments of one issue or pull request.
type Thread struct {
	Kind   ThreadKind
	Number int
}

// IssueThread is the comment thread of issue number.
func IssueThread(number int) Thread { return Thread{Kind: ThreadIssue, Number: number} }

// PullRequestThread is the comment thread of pull request number.
func PullRequestThread(number int) Thread { return Thread{Kind: ThreadPullRequest, Number: number} }

// Adapter is the operation contract every backend implements. All methods
// are safe for concurrent use. Errors are *forgeerr.Error values.
type Adapter interface {
	// Backend returns the backend this adapter talks to.
	Backend() Backend

	// RateLimit returns the quota reported on the latest response, if any.
	RateLimit() (transport.RateLimit, bool)

	// CurrentUser returns the account the token belongs to.
	CurrentUser(ctx context.Context) (*User, error)

	// ListRepositories lists repositories visible to the authenticated user.
	ListRepositories(ctx context.Context, opts ListOptions) ([]Repository, error)
	// GetRepository fetches a repository by the identifier shape native to the backend.
	GetRepository(ctx context.Context, id ID) (*Repository, error)
	// FindRepository fetches a repository by "owner/name" on any backend.
	FindRepository(ctx context.Context, fullName string) (*Repository, error)
	CreateRepository(ctx context.Context, in CreateRepositoryInput) (*Repository, error)
	UpdateRepository(ctx context.Context, id ID, in UpdateRepositoryInput) (*Repository, error)

	ListIssues(ctx context.Context, repo ID, opts IssueListOptions) ([]Issue, error)
	GetIssue(ctx context.Context, repo ID, number int) (*Issue, error)
	CreateIssue(ctx context.Context, repo ID, in CreateIssueInput) (*Issue, error)
	UpdateIssue(ctx context.Context, repo ID, number int, in UpdateIssueInput) (*Issue, error)

	ListPullRequests(ctx context.Context, repo ID, opts PullRequestListOptions) ([]PullRequest, error)
	GetPullRequest(ctx context.Context, repo ID, number int) (*PullRequest, error)
	CreatePullRequest(ctx context.Context, repo ID, in CreatePullRequestInput) (*PullRequest, error)
	UpdatePullRequest(ctx context.Context, repo ID, number int, in UpdatePullRequestInput) (*PullRequest, error)

	ListComments(ctx context.Context, repo ID, thread Thread, opts ListOptions) ([]Comment, error)
	GetComment(ctx context.Context, repo ID, thread Thread, commentID ID) (*Comment, error)
	CreateComment(ctx context.Context, repo ID, thread Thread, body string) (*Comment, error)
	UpdateComment(ctx context.Context, repo ID, thread Thread, commentID ID, body string) (*Comment, error)

	// ListBranches lists the first MaxPageSize branches, marking the default one.
	ListBranches(ctx context.Context, repo ID) ([]Branch, error)

	// GetPullRequestDiff returns the first MaxPageSize changed files of a pull request.
	GetPullRequestDiff(ctx context.Context, repo ID, number int) (*PullRequestDiff, error)
}
