package forge

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"

	"github.com/greg-hellings/forgeclient/pkg/forgeerr"
	"github.com/greg-hellings/forgeclient/pkg/transport"
)

// DefaultGitHubBaseURL is the REST root of github.com.
const DefaultGitHubBaseURL = "https://api.github.com/"

// AdapterOptions configures an adapter.
type AdapterOptions struct {
	// Token is sent as a bearer token (GitHub) or private token (GitLab).
	Token string

	// BaseURL is the REST root. GitHub Enterprise uses https://host/api/v3/,
	// self-hosted GitLab https://host/api/v4/. Empty uses the public default.
	BaseURL string

	// Transport carries every request. Defaults to transport.New with
	// default options.
	Transport *transport.Transport

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

func (o AdapterOptions) withDefaults() AdapterOptions {
	if o.Transport == nil {
		o.Transport = transport.New(transport.Options{Logger: o.Logger})
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// parseBaseURL parses raw and guarantees the trailing slash both SDKs
// need to resolve relative paths.
func parseBaseURL(raw string) (*url.URL, error) {
	if !strings.HasSuffix(raw, "/") {
		raw += "/"
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", raw, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q: scheme and host are required", raw)
	}
	return u, nil
}

// GitHubAdapter implements Adapter against the GitHub REST API.
// Repositories are addressed by SlugID("owner/name"); comments by NumericID.
type GitHubAdapter struct {
	client    *github.Client
	transport *transport.Transport
	baseURL   *url.URL
	logger    *slog.Logger
}

var _ Adapter = (*GitHubAdapter)(nil)

// NewGitHubAdapter creates a GitHub adapter bound to opts.Transport.
func NewGitHubAdapter(opts AdapterOptions) (*GitHubAdapter, error) {
	opts = opts.withDefaults()

	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = DefaultGitHubBaseURL
	}
	u, err := parseBaseURL(baseURL)
	if err != nil {
		return nil, err
	}

	var rt http.RoundTripper = opts.Transport
	if opts.Token != "" {
		rt = &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: opts.Token}),
			Base:   opts.Transport,
		}
	}

	client := github.NewClient(&http.Client{Transport: rt})
	client.BaseURL = u
	client.UserAgent = transport.DefaultUserAgent

	return &GitHubAdapter{
		client:    client,
		transport: opts.Transport,
		baseURL:   u,
		logger:    opts.Logger,
	}, nil
}

// Backend implements Adapter.
func (a *GitHubAdapter) Backend() Backend { return BackendGitHub }

// BaseURL returns the REST root the adapter is bound to.
func (a *GitHubAdapter) BaseURL() string { return a.baseURL.String() }

// RateLimit implements Adapter.
func (a *GitHubAdapter) RateLimit() (transport.RateLimit, bool) { return a.transport.RateLimit() }

func (a *GitHubAdapter) fail(op, entity string, resp *github.Response, err error) error {
	status := 0
	if resp != nil && resp.Response != nil {
		status = resp.StatusCode
	}
	mapped := mapError(BackendGitHub, op, entity, status, err)
	a.logger.Debug("GitHub request failed", "op", op, "status", status, "error", mapped)
	return mapped
}

func (a *GitHubAdapter) repoPath(op string, id ID) (owner, name string, err error) {
	slug, ok := id.Slug()
	if !ok {
		return "", "", forgeerr.UnsupportedIdentifier(string(BackendGitHub), op,
			fmt.Sprintf("GitHub repositories are addressed by owner/name, got %s id %q (use FindRepository)",
				idKindName(id), id.String()))
	}
	owner, name, err = SplitFullName(slug)
	if err != nil {
		return "", "", forgeerr.UnsupportedIdentifier(string(BackendGitHub), op, err.Error())
	}
	return owner, name, nil
}

func commentNumber(backend Backend, op string, id ID) (int64, error) {
	n, ok := id.Numeric()
	if !ok {
		return 0, forgeerr.UnsupportedIdentifier(string(backend), op,
			fmt.Sprintf("comment ids are numeric, got %s id %q", idKindName(id), id.String()))
	}
	return n, nil
}

func checkThread(backend Backend, op string, t Thread) error {
	if t.Kind != ThreadIssue && t.Kind != ThreadPullRequest {
		return forgeerr.UnsupportedIdentifier(string(backend), op, fmt.Sprintf("unknown thread kind %d", int(t.Kind)))
	}
	if t.Number <= 0 {
		return forgeerr.UnsupportedIdentifier(string(backend), op, fmt.Sprintf("invalid %s number %d", t.Kind, t.Number))
	}
	return nil
}

func idKindName(id ID) string {
	switch id.Kind() {
	case IDNumeric:
		return "numeric"
	case IDSlug:
		return "owner/name"
	}
	return "empty"
}

// remoteCtx disables go-github's local rate limit short-circuit so every
// call reaches the Transport, whose retry policy owns quota waits.
func remoteCtx(ctx context.Context) context.Context {
	return context.WithValue(ctx, github.BypassRateLimitCheck, true)
}

// CurrentUser implements Adapter.
func (a *GitHubAdapter) CurrentUser(ctx context.Context) (*User, error) {
	const op = "CurrentUser"
	u, resp, err := a.client.Users.Get(remoteCtx(ctx), "")
	if err != nil {
		return nil, a.fail(op, "user", resp, err)
	}
	out, err := githubUser(u)
	if err != nil {
		return nil, forgeerr.WithContext(err, string(BackendGitHub), op)
	}
	return &out, nil
}

// ListRepositories implements Adapter with GET /user/repos.
func (a *GitHubAdapter) ListRepositories(ctx context.Context, opts ListOptions) ([]Repository, error) {
	const op = "ListRepositories"
	page, perPage := opts.normalized()

	req, err := a.client.NewRequest(http.MethodGet,
		fmt.Sprintf("user/repos?sort=updated&page=%d&per_page=%d", page, perPage), nil)
	if err != nil {
		return nil, fmt.Errorf("github: %s: %w", op, err)
	}
	var raw []*github.Repository
	resp, err := a.client.Do(remoteCtx(ctx), req, &raw)
	if err != nil {
		return nil, a.fail(op, "repository", resp, err)
	}

	out := make([]Repository, 0, len(raw))
	for _, r := range raw {
		repo, err := githubRepository(r)
		if err != nil {
			return nil, forgeerr.WithContext(err, string(BackendGitHub), op)
		}
		out = append(out, *repo)
	}
	return out, nil
}

// GetRepository implements Adapter. id must be a SlugID.
func (a *GitHubAdapter) GetRepository(ctx context.Context, id ID) (*Repository, error) {
	const op = "GetRepository"
	owner, name, err := a.repoPath(op, id)
	if err != nil {
		return nil, err
	}
	return a.getRepository(ctx, op, owner, name)
}

// FindRepository implements Adapter.
func (a *GitHubAdapter) FindRepository(ctx context.Context, fullName string) (*Repository, error) {
	const op = "FindRepository"
	owner, name, err := SplitFullName(fullName)
	if err != nil {
		return nil, forgeerr.UnsupportedIdentifier(string(BackendGitHub), op, err.Error())
	}
	return a.getRepository(ctx, op, owner, name)
}

func (a *GitHubAdapter) getRepository(ctx context.Context, op, owner, name string) (*Repository, error) {
	r, resp, err := a.client.Repositories.Get(remoteCtx(ctx), owner, name)
	if err != nil {
		return nil, a.fail(op, "repository", resp, err)
	}
	repo, err := githubRepository(r)
	if err != nil {
		return nil, forgeerr.WithContext(err, string(BackendGitHub), op)
	}
	return repo, nil
}

// CreateRepository implements Adapter. Owner, when set, is an organization.
func (a *GitHubAdapter) CreateRepository(ctx context.Context, in CreateRepositoryInput) (*Repository, error) {
	const op = "CreateRepository"
	if in.Name == "" {
		return nil, forgeerr.UnsupportedOperation(string(BackendGitHub), op, "repository name is required")
	}
	body := &github.Repository{
		Name:        github.String(in.Name),
		Description: in.Description,
	}
	if in.AutoInit {
		body.AutoInit = github.Bool(true)
	}
	switch in.Visibility {
	case "":
	case VisibilityPrivate:
		body.Private = github.Bool(true)
	case VisibilityPublic:
		body.Private = github.Bool(false)
	default:
		body.Visibility = github.String(string(in.Visibility))
	}

	r, resp, err := a.client.Repositories.Create(remoteCtx(ctx), in.Owner, body)
	if err != nil {
		return nil, a.fail(op, "repository", resp, err)
	}
	repo, err := githubRepository(r)
	if err != nil {
		return nil, forgeerr.WithContext(err, string(BackendGitHub), op)
	}
	return repo, nil
}

// UpdateRepository implements Adapter.
func (a *GitHubAdapter) UpdateRepository(ctx context.Context, id ID, in UpdateRepositoryInput) (*Repository, error) {
	const op = "UpdateRepository"
	owner, name, err := a.repoPath(op, id)
	if err != nil {
		return nil, err
	}
	body := &github.Repository{
		Name:          in.Name,
		Description:   in.Description,
		DefaultBranch: in.DefaultBranch,
		Archived:      in.Archived,
	}
	if in.Visibility != nil {
		body.Visibility = github.String(string(*in.Visibility))
	}

	r, resp, err := a.client.Repositories.Edit(remoteCtx(ctx), owner, name, body)
	if err != nil {
		return nil, a.fail(op, "repository", resp, err)
	}
	repo, err := githubRepository(r)
	if err != nil {
		return nil, forgeerr.WithContext(err, string(BackendGitHub), op)
	}
	return repo, nil
}

// githubListState translates a unified filter into GitHub's state parameter.
func githubListState(s State) string {
	switch s {
	case "", StateOpen:
		return "open"
	case StateClosed, StateMerged:
		return "closed"
	}
	return "all"
}

// ListIssues implements Adapter. GitHub's issues endpoint also returns
// pull requests; those are dropped.
func (a *GitHubAdapter) ListIssues(ctx context.Context, repo ID, opts IssueListOptions) ([]Issue, error) {
	const op = "ListIssues"
	owner, name, err := a.repoPath(op, repo)
	if err != nil {
		return nil, err
	}
	page, perPage := opts.normalized()

	raw, resp, err := a.client.Issues.ListByRepo(remoteCtx(ctx), owner, name, &github.IssueListByRepoOptions{
		State:       githubListState(opts.State),
		Labels:      opts.Labels,
		ListOptions: github.ListOptions{Page: page, PerPage: perPage},
	})
	if err != nil {
		return nil, a.fail(op, "issue", resp, err)
	}

	out := make([]Issue, 0, len(raw))
	for _, i := range raw {
		if i.IsPullRequest() {
			continue
		}
		issue, err := githubIssue(i)
		if err != nil {
			return nil, forgeerr.WithContext(err, string(BackendGitHub), op)
		}
		if matchesState(opts.State, issue.State) {
			out = append(out, *issue)
		}
	}
	return out, nil
}

// GetIssue implements Adapter.
func (a *GitHubAdapter) GetIssue(ctx context.Context, repo ID, number int) (*Issue, error) {
	const op = "GetIssue"
	owner, name, err := a.repoPath(op, repo)
	if err != nil {
		return nil, err
	}
	i, resp, err := a.client.Issues.Get(remoteCtx(ctx), owner, name, number)
	if err != nil {
		return nil, a.fail(op, "issue", resp, err)
	}
	return a.issue(op, i)
}

func (a *GitHubAdapter) issue(op string, i *github.Issue) (*Issue, error) {
	issue, err := githubIssue(i)
	if err != nil {
		return nil, forgeerr.WithContext(err, string(BackendGitHub), op)
	}
	return issue, nil
}

// CreateIssue implements Adapter.
func (a *GitHubAdapter) CreateIssue(ctx context.Context, repo ID, in CreateIssueInput) (*Issue, error) {
	const op = "CreateIssue"
	owner, name, err := a.repoPath(op, repo)
	if err != nil {
		return nil, err
	}
	body := &github.IssueRequest{Title: github.String(in.Title), Body: in.Body}
	if in.Labels != nil {
		body.Labels = &in.Labels
	}
	if in.Assignees != nil {
		body.Assignees = &in.Assignees
	}

	i, resp, err := a.client.Issues.Create(remoteCtx(ctx), owner, name, body)
	if err != nil {
		return nil, a.fail(op, "issue", resp, err)
	}
	return a.issue(op, i)
}

// UpdateIssue implements Adapter.
func (a *GitHubAdapter) UpdateIssue(ctx context.Context, repo ID, number int, in UpdateIssueInput) (*Issue, error) {
	const op = "UpdateIssue"
	owner, name, err := a.repoPath(op, repo)
	if err != nil {
		return nil, err
	}
	body := &github.IssueRequest{
		Title:     in.Title,
		Body:      in.Body,
		Labels:    in.Labels,
		Assignees: in.Assignees,
	}
	if in.State != nil {
		state, err := writableState(BackendGitHub, op, *in.State)
		if err != nil {
			return nil, err
		}
		body.State = github.String(string(state))
	}

	i, resp, err := a.client.Issues.Edit(remoteCtx(ctx), owner, name, number, body)
	if err != nil {
		return nil, a.fail(op, "issue", resp, err)
	}
	return a.issue(op, i)
}

// writableState accepts the states an update may set.
func writableState(backend Backend, op string, s State) (State, error) {
	switch s {
	case StateOpen, StateClosed:
		return s, nil
	}
	return "", forgeerr.UnsupportedOperation(string(backend), op,
		fmt.Sprintf("cannot set state %q; only open and closed are writable", s))
}

// ListPullRequests implements Adapter.
func (a *GitHubAdapter) ListPullRequests(ctx context.Context, repo ID, opts PullRequestListOptions) ([]PullRequest, error) {
	const op = "ListPullRequests"
	owner, name, err := a.repoPath(op, repo)
	if err != nil {
		return nil, err
	}
	page, perPage := opts.normalized()

	raw, resp, err := a.client.PullRequests.List(remoteCtx(ctx), owner, name, &github.PullRequestListOptions{
		State:       githubListState(opts.State),
		ListOptions: github.ListOptions{Page: page, PerPage: perPage},
	})
	if err != nil {
		return nil, a.fail(op, "pull request", resp, err)
	}

	out := make([]PullRequest, 0, len(raw))
	for _, p := range raw {
		pr, err := githubPullRequest(p)
		if err != nil {
			return nil, forgeerr.WithContext(err, string(BackendGitHub), op)
		}
		if matchesState(opts.State, pr.State) {
			out = append(out, *pr)
		}
	}
	return out, nil
}

// GetPullRequest implements Adapter.
func (a *GitHubAdapter) GetPullRequest(ctx context.Context, repo ID, number int) (*PullRequest, error) {
	const op = "GetPullRequest"
	owner, name, err := a.repoPath(op, repo)
	if err != nil {
		return nil, err
	}
	p, resp, err := a.client.PullRequests.Get(remoteCtx(ctx), owner, name, number)
	if err != nil {
		return nil, a.fail(op, "pull request", resp, err)
	}
	return a.pullRequest(op, p)
}

func (a *GitHubAdapter) pullRequest(op string, p *github.PullRequest) (*PullRequest, error) {
	pr, err := githubPullRequest(p)
	if err != nil {
		return nil, forgeerr.WithContext(err, string(BackendGitHub), op)
	}
	return pr, nil
}

// CreatePullRequest implements Adapter.
func (a *GitHubAdapter) CreatePullRequest(ctx context.Context, repo ID, in CreatePullRequestInput) (*PullRequest, error) {
	const op = "CreatePullRequest"
	owner, name, err := a.repoPath(op, repo)
	if err != nil {
		return nil, err
	}
	p, resp, err := a.client.PullRequests.Create(remoteCtx(ctx), owner, name, &github.NewPullRequest{
		Title: github.String(in.Title),
		Head:  github.String(in.SourceBranch),
		Base:  github.String(in.TargetBranch),
		Body:  in.Body,
		Draft: github.Bool(in.Draft),
	})
	if err != nil {
		return nil, a.fail(op, "pull request", resp, err)
	}
	return a.pullRequest(op, p)
}

// UpdatePullRequest implements Adapter. The REST API cannot toggle draft
// state, so a Draft change fails with UnsupportedOperation.
func (a *GitHubAdapter) UpdatePullRequest(ctx context.Context, repo ID, number int, in UpdatePullRequestInput) (*PullRequest, error) {
	const op = "UpdatePullRequest"
	owner, name, err := a.repoPath(op, repo)
	if err != nil {
		return nil, err
	}
	if in.Draft != nil {
		return nil, forgeerr.UnsupportedOperation(string(BackendGitHub), op,
			"the GitHub REST API cannot change a pull request's draft state")
	}
	body := &github.PullRequest{Title: in.Title, Body: in.Body}
	if in.State != nil {
		state, err := writableState(BackendGitHub, op, *in.State)
		if err != nil {
			return nil, err
		}
		body.State = github.String(string(state))
	}
	if in.TargetBranch != nil {
		body.Base = &github.PullRequestBranch{Ref: in.TargetBranch}
	}

	p, resp, err := a.client.PullRequests.Edit(remoteCtx(ctx), owner, name, number, body)
	if err != nil {
		return nil, a.fail(op, "pull request", resp, err)
	}
	return a.pullRequest(op, p)
}

// ListComments implements Adapter. Issue and pull request conversations
// share GitHub's issue comments endpoint.
func (a *GitHubAdapter) ListComments(ctx context.Context, repo ID, thread Thread, opts ListOptions) ([]Comment, error) {
	const op = "ListComments"
	owner, name, err := a.repoPath(op, repo)
	if err != nil {
		return nil, err
	}
	if err := checkThread(BackendGitHub, op, thread); err != nil {
		return nil, err
	}
	page, perPage := opts.normalized()

	raw, resp, err := a.client.Issues.ListComments(remoteCtx(ctx), owner, name, thread.Number, &github.IssueListCommentsOptions{
		ListOptions: github.ListOptions{Page: page, PerPage: perPage},
	})
	if err != nil {
		return nil, a.fail(op, "comment", resp, err)
	}

	out := make([]Comment, 0, len(raw))
	for _, c := range raw {
		comment, err := githubComment(c)
		if err != nil {
			return nil, forgeerr.WithContext(err, string(BackendGitHub), op)
		}
		out = append(out, *comment)
	}
	return out, nil
}

// GetComment implements Adapter.
func (a *GitHubAdapter) GetComment(ctx context.Context, repo ID, thread Thread, commentID ID) (*Comment, error) {
	const op = "GetComment"
	owner, name, err := a.repoPath(op, repo)
	if err != nil {
		return nil, err
	}
	if err := checkThread(BackendGitHub, op, thread); err != nil {
		return nil, err
	}
	n, err := commentNumber(BackendGitHub, op, commentID)
	if err != nil {
		return nil, err
	}
	c, resp, err := a.client.Issues.GetComment(remoteCtx(ctx), owner, name, n)
	if err != nil {
		return nil, a.fail(op, "comment", resp, err)
	}
	return a.comment(op, c)
}

func (a *GitHubAdapter) comment(op string, c *github.IssueComment) (*Comment, error) {
	comment, err := githubComment(c)
	if err != nil {
		return nil, forgeerr.WithContext(err, string(BackendGitHub), op)
	}
	return comment, nil
}

// CreateComment implements Adapter.
func (a *GitHubAdapter) CreateComment(ctx context.Context, repo ID, thread Thread, body string) (*Comment, error) {
	const op = "CreateComment"
	owner, name, err := a.repoPath(op, repo)
	if err != nil {
		return nil, err
	}
	if err := checkThread(BackendGitHub, op, thread); err != nil {
		return nil, err
	}
	c, resp, err := a.client.Issues.CreateComment(remoteCtx(ctx), owner, name, thread.Number, &github.IssueComment{Body: github.String(body)})
	if err != nil {
		return nil, a.fail(op, "comment", resp, err)
	}
	return a.comment(op, c)
}

// UpdateComment implements Adapter.
func (a *GitHubAdapter) UpdateComment(ctx context.Context, repo ID, thread Thread, commentID ID, body string) (*Comment, error) {
	const op = "UpdateComment"
	owner, name, err := a.repoPath(op, repo)
	if err != nil {
		return nil, err
	}
	if err := checkThread(BackendGitHub, op, thread); err != nil {
		return nil, err
	}
	n, err := commentNumber(BackendGitHub, op, commentID)
	if err != nil {
		return nil, err
	}
	c, resp, err := a.client.Issues.EditComment(remoteCtx(ctx), owner, name, n, &github.IssueComment{Body: github.String(body)})
	if err != nil {
		return nil, a.fail(op, "comment", resp, err)
	}
	return a.comment(op, c)
}

// ListBranches implements Adapter. The branch list and the repository
// metadata holding the default branch are fetched concurrently.
func (a *GitHubAdapter) ListBranches(ctx context.Context, repo ID) ([]Branch, error) {
	const op = "ListBranches"
	owner, name, err := a.repoPath(op, repo)
	if err != nil {
		return nil, err
	}

	var (
		raw  []*github.Branch
		meta *github.Repository
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		branches, resp, err := a.client.Repositories.ListBranches(remoteCtx(gctx), owner, name, &github.BranchListOptions{
			ListOptions: github.ListOptions{PerPage: MaxPageSize},
		})
		if err != nil {
			return a.fail(op, "branch", resp, err)
		}
		raw = branches
		return nil
	})
	g.Go(func() error {
		r, resp, err := a.client.Repositories.Get(remoteCtx(gctx), owner, name)
		if err != nil {
			return a.fail(op, "repository", resp, err)
		}
		meta = r
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	defaultBranch := meta.GetDefaultBranch()
	out := make([]Branch, 0, len(raw))
	for _, b := range raw {
		branch, err := githubBranch(b, defaultBranch)
		if err != nil {
			return nil, forgeerr.WithContext(err, string(BackendGitHub), op)
		}
		out = append(out, *branch)
	}
	return out, nil
}

// GetPullRequestDiff implements Adapter.
func (a *GitHubAdapter) GetPullRequestDiff(ctx context.Context, repo ID, number int) (*PullRequestDiff, error) {
	const op = "GetPullRequestDiff"
	owner, name, err := a.repoPath(op, repo)
	if err != nil {
		return nil, err
	}
	raw, resp, err := a.client.PullRequests.ListFiles(remoteCtx(ctx), owner, name, number, &github.ListOptions{PerPage: MaxPageSize})
	if err != nil {
		return nil, a.fail(op, "file diff", resp, err)
	}

	files := make([]FileDiff, 0, len(raw))
	for _, f := range raw {
		fd, err := githubFileDiff(f)
		if err != nil {
			return nil, forgeerr.WithContext(err, string(BackendGitHub), op)
		}
		files = append(files, *fd)
	}
	return NewPullRequestDiff(files), nil
}
