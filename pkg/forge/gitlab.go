package forge

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	gitlab "gitlab.com/gitlab-org/api/client-go"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/greg-hellings/forgeclient/pkg/forgeerr"
	"github.com/greg-hellings/forgeclient/pkg/transport"
)

// DefaultGitLabBaseURL is the REST root of gitlab.com.
const DefaultGitLabBaseURL = "https://gitlab.com/api/v4/"

// GitLabAdapter implements Adapter against the GitLab REST v4 API.
// Projects are addressed by NumericID; use FindRepository to resolve a
// "group/project" path. Merge requests are exposed as pull requests and
// their iid as the number.
type GitLabAdapter struct {
	client    *gitlab.Client
	transport *transport.Transport
	baseURL   *url.URL
	logger    *slog.Logger
}

var _ Adapter = (*GitLabAdapter)(nil)

// NewGitLabAdapter creates a GitLab adapter bound to opts.Transport. The
// SDK's own retries and limiter are disabled; the Transport owns both.
func NewGitLabAdapter(opts AdapterOptions) (*GitLabAdapter, error) {
	opts = opts.withDefaults()

	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = DefaultGitLabBaseURL
	}
	u, err := parseBaseURL(baseURL)
	if err != nil {
		return nil, err
	}

	client, err := gitlab.NewClient(opts.Token,
		gitlab.WithBaseURL(u.String()),
		gitlab.WithHTTPClient(opts.Transport.Client()),
		gitlab.WithoutRetries(),
		gitlab.WithCustomLimiter(rate.NewLimiter(rate.Inf, 0)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create GitLab client: %w", err)
	}
	client.UserAgent = transport.DefaultUserAgent

	return &GitLabAdapter{
		client:    client,
		transport: opts.Transport,
		baseURL:   client.BaseURL(),
		logger:    opts.Logger,
	}, nil
}

// Backend implements Adapter.
func (a *GitLabAdapter) Backend() Backend { return BackendGitLab }

// BaseURL returns the REST root the adapter is bound to.
func (a *GitLabAdapter) BaseURL() string { return a.baseURL.String() }

// RateLimit implements Adapter.
func (a *GitLabAdapter) RateLimit() (transport.RateLimit, bool) { return a.transport.RateLimit() }

// call performs one request. opt is encoded as the query string for GET
// and as the JSON body otherwise; the response is decoded into v.
func (a *GitLabAdapter) call(ctx context.Context, op, entity, method, path string, opt, v any) error {
	req, err := a.client.NewRequest(method, path, opt, []gitlab.RequestOptionFunc{gitlab.WithContext(ctx)})
	if err != nil {
		return fmt.Errorf("gitlab: %s: %w", op, err)
	}
	resp, err := a.client.Do(req, v)
	if err != nil {
		status := 0
		if resp != nil && resp.Response != nil {
			status = resp.StatusCode
		}
		mapped := mapError(BackendGitLab, op, entity, status, err)
		a.logger.Debug("GitLab request failed", "op", op, "path", path, "status", status, "error", mapped)
		return mapped
	}
	return nil
}

func (a *GitLabAdapter) projectPath(op string, id ID) (string, error) {
	n, ok := id.Numeric()
	if !ok {
		return "", forgeerr.UnsupportedIdentifier(string(BackendGitLab), op,
			fmt.Sprintf("GitLab projects are addressed by numeric id, got %s id %q (use FindRepository)",
				idKindName(id), id.String()))
	}
	return fmt.Sprintf("projects/%d", n), nil
}

func threadPath(project string, t Thread) string {
	if t.Kind == ThreadPullRequest {
		return fmt.Sprintf("%s/merge_requests/%d/notes", project, t.Number)
	}
	return fmt.Sprintf("%s/issues/%d/notes", project, t.Number)
}

func listOptions(o ListOptions) glListOptions {
	page, perPage := o.normalized()
	return glListOptions{Page: page, PerPage: perPage}
}

// gitlabListState translates a unified filter into GitLab's state parameter.
func gitlabListState(s State, mergeRequests bool) string {
	switch s {
	case "", StateOpen:
		return "opened"
	case StateClosed:
		return "closed"
	case StateMerged:
		if mergeRequests {
			return "merged"
		}
		return "closed"
	}
	return "all"
}

func stateEvent(s State) string {
	if s == StateClosed {
		return "close"
	}
	return "reopen"
}

// CurrentUser implements Adapter.
func (a *GitLabAdapter) CurrentUser(ctx context.Context) (*User, error) {
	const op = "CurrentUser"
	var raw glUser
	if err := a.call(ctx, op, "user", http.MethodGet, "user", nil, &raw); err != nil {
		return nil, err
	}
	u, err := gitlabUser(&raw)
	if err != nil {
		return nil, forgeerr.WithContext(err, string(BackendGitLab), op)
	}
	return &u, nil
}

// ListRepositories implements Adapter with the projects the user is a member of.
func (a *GitLabAdapter) ListRepositories(ctx context.Context, opts ListOptions) ([]Repository, error) {
	const op = "ListRepositories"
	var raw []glProject
	q := glProjectListOptions{glListOptions: listOptions(opts), Membership: true, OrderBy: "last_activity_at"}
	if err := a.call(ctx, op, "repository", http.MethodGet, "projects", q, &raw); err != nil {
		return nil, err
	}
	out := make([]Repository, 0, len(raw))
	for i := range raw {
		repo, err := gitlabProject(&raw[i])
		if err != nil {
			return nil, forgeerr.WithContext(err, string(BackendGitLab), op)
		}
		out = append(out, *repo)
	}
	return out, nil
}

func (a *GitLabAdapter) project(ctx context.Context, op, method, path string, opt any) (*Repository, error) {
	var raw glProject
	if err := a.call(ctx, op, "repository", method, path, opt, &raw); err != nil {
		return nil, err
	}
	repo, err := gitlabProject(&raw)
	if err != nil {
		return nil, forgeerr.WithContext(err, string(BackendGitLab), op)
	}
	return repo, nil
}

// GetRepository implements Adapter. id must be a NumericID.
func (a *GitLabAdapter) GetRepository(ctx context.Context, id ID) (*Repository, error) {
	const op = "GetRepository"
	path, err := a.projectPath(op, id)
	if err != nil {
		return nil, err
	}
	return a.project(ctx, op, http.MethodGet, path, nil)
}

// FindRepository implements Adapter. fullName may include subgroups.
func (a *GitLabAdapter) FindRepository(ctx context.Context, fullName string) (*Repository, error) {
	const op = "FindRepository"
	if _, _, err := SplitFullName(fullName); err != nil {
		return nil, forgeerr.UnsupportedIdentifier(string(BackendGitLab), op, err.Error())
	}
	return a.project(ctx, op, http.MethodGet, "projects/"+url.PathEscape(strings.Trim(fullName, "/")), nil)
}

// CreateRepository implements Adapter. Owner, when set, is a group path
// resolved to its namespace id.
func (a *GitLabAdapter) CreateRepository(ctx context.Context, in CreateRepositoryInput) (*Repository, error) {
	const op = "CreateRepository"
	if in.Name == "" {
		return nil, forgeerr.UnsupportedOperation(string(BackendGitLab), op, "repository name is required")
	}
	body := glProjectRequest{
		Name:        &in.Name,
		Description: in.Description,
	}
	if in.Visibility != "" {
		v := string(in.Visibility)
		body.Visibility = &v
	}
	if in.AutoInit {
		t := true
		body.InitWithReadme = &t
	}
	if in.Owner != "" {
		var ns glNamespace
		if err := a.call(ctx, op, "namespace", http.MethodGet, "namespaces/"+url.PathEscape(in.Owner), nil, &ns); err != nil {
			return nil, err
		}
		body.NamespaceID = &ns.ID
	}
	return a.project(ctx, op, http.MethodPost, "projects", body)
}

// UpdateRepository implements Adapter. Archiving uses the dedicated
// archive/unarchive endpoints.
func (a *GitLabAdapter) UpdateRepository(ctx context.Context, id ID, in UpdateRepositoryInput) (*Repository, error) {
	const op = "UpdateRepository"
	path, err := a.projectPath(op, id)
	if err != nil {
		return nil, err
	}

	var repo *Repository
	body := glProjectRequest{Name: in.Name, Description: in.Description, DefaultBranch: in.DefaultBranch}
	if in.Visibility != nil {
		v := string(*in.Visibility)
		body.Visibility = &v
	}
	if body != (glProjectRequest{}) {
		if repo, err = a.project(ctx, op, http.MethodPut, path, body); err != nil {
			return nil, err
		}
	}
	if in.Archived != nil {
		action := "/unarchive"
		if *in.Archived {
			action = "/archive"
		}
		if repo, err = a.project(ctx, op, http.MethodPost, path+action, nil); err != nil {
			return nil, err
		}
	}
	if repo == nil {
		return a.project(ctx, op, http.MethodGet, path, nil)
	}
	return repo, nil
}

// userIDs resolves usernames to GitLab user ids.
func (a *GitLabAdapter) userIDs(ctx context.Context, op string, usernames []string) ([]int64, error) {
	ids := make([]int64, 0, len(usernames))
	for _, name := range usernames {
		var users []glUser
		if err := a.call(ctx, op, "user", http.MethodGet, "users", glUserSearch{Username: name}, &users); err != nil {
			return nil, err
		}
		if len(users) == 0 {
			return nil, forgeerr.WithContext(
				forgeerr.FromStatus(http.StatusNotFound, fmt.Sprintf("unknown user %q", name), nil),
				string(BackendGitLab), op)
		}
		ids = append(ids, users[0].ID)
	}
	return ids, nil
}

// ListIssues implements Adapter.
func (a *GitLabAdapter) ListIssues(ctx context.Context, repo ID, opts IssueListOptions) ([]Issue, error) {
	const op = "ListIssues"
	path, err := a.projectPath(op, repo)
	if err != nil {
		return nil, err
	}
	q := glIssueListOptions{
		glListOptions: listOptions(opts.ListOptions),
		State:         gitlabListState(opts.State, false),
		Labels:        strings.Join(opts.Labels, ","),
	}
	if q.State == "all" {
		q.State = ""
	}

	var raw []glIssue
	if err := a.call(ctx, op, "issue", http.MethodGet, path+"/issues", q, &raw); err != nil {
		return nil, err
	}
	out := make([]Issue, 0, len(raw))
	for i := range raw {
		issue, err := gitlabIssue(&raw[i])
		if err != nil {
			return nil, forgeerr.WithContext(err, string(BackendGitLab), op)
		}
		if matchesState(opts.State, issue.State) {
			out = append(out, *issue)
		}
	}
	return out, nil
}

func (a *GitLabAdapter) issue(ctx context.Context, op, method, path string, opt any) (*Issue, error) {
	var raw glIssue
	if err := a.call(ctx, op, "issue", method, path, opt, &raw); err != nil {
		return nil, err
	}
	issue, err := gitlabIssue(&raw)
	if err != nil {
		return nil, forgeerr.WithContext(err, string(BackendGitLab), op)
	}
	return issue, nil
}

// GetIssue implements Adapter. number is the project-local iid.
func (a *GitLabAdapter) GetIssue(ctx context.Context, repo ID, number int) (*Issue, error) {
	const op = "GetIssue"
	path, err := a.projectPath(op, repo)
	if err != nil {
		return nil, err
	}
	return a.issue(ctx, op, http.MethodGet, fmt.Sprintf("%s/issues/%d", path, number), nil)
}

// CreateIssue implements Adapter.
func (a *GitLabAdapter) CreateIssue(ctx context.Context, repo ID, in CreateIssueInput) (*Issue, error) {
	const op = "CreateIssue"
	path, err := a.projectPath(op, repo)
	if err != nil {
		return nil, err
	}
	body := glIssueRequest{Title: &in.Title, Description: in.Body}
	if len(in.Labels) > 0 {
		labels := strings.Join(in.Labels, ",")
		body.Labels = &labels
	}
	if len(in.Assignees) > 0 {
		ids, err := a.userIDs(ctx, op, in.Assignees)
		if err != nil {
			return nil, err
		}
		body.AssigneeIDs = &ids
	}
	return a.issue(ctx, op, http.MethodPost, path+"/issues", body)
}

// UpdateIssue implements Adapter.
func (a *GitLabAdapter) UpdateIssue(ctx context.Context, repo ID, number int, in UpdateIssueInput) (*Issue, error) {
	const op = "UpdateIssue"
	path, err := a.projectPath(op, repo)
	if err != nil {
		return nil, err
	}
	body := glIssueRequest{Title: in.Title, Description: in.Body}
	if in.State != nil {
		state, err := writableState(BackendGitLab, op, *in.State)
		if err != nil {
			return nil, err
		}
		event := stateEvent(state)
		body.StateEvent = &event
	}
	if in.Labels != nil {
		labels := strings.Join(*in.Labels, ",")
		body.Labels = &labels
	}
	if in.Assignees != nil {
		ids, err := a.userIDs(ctx, op, *in.Assignees)
		if err != nil {
			return nil, err
		}
		body.AssigneeIDs = &ids
	}
	return a.issue(ctx, op, http.MethodPut, fmt.Sprintf("%s/issues/%d", path, number), body)
}

// ListPullRequests implements Adapter.
func (a *GitLabAdapter) ListPullRequests(ctx context.Context, repo ID, opts PullRequestListOptions) ([]PullRequest, error) {
	const op = "ListPullRequests"
	path, err := a.projectPath(op, repo)
	if err != nil {
		return nil, err
	}
	q := glIssueListOptions{
		glListOptions: listOptions(opts.ListOptions),
		State:         gitlabListState(opts.State, true),
	}

	var raw []glMergeRequest
	if err := a.call(ctx, op, "pull request", http.MethodGet, path+"/merge_requests", q, &raw); err != nil {
		return nil, err
	}
	out := make([]PullRequest, 0, len(raw))
	for i := range raw {
		pr, err := gitlabMergeRequest(&raw[i])
		if err != nil {
			return nil, forgeerr.WithContext(err, string(BackendGitLab), op)
		}
		if matchesState(opts.State, pr.State) {
			out = append(out, *pr)
		}
	}
	return out, nil
}

func (a *GitLabAdapter) mergeRequest(ctx context.Context, op, method, path string, opt any) (*PullRequest, error) {
	var raw glMergeRequest
	if err := a.call(ctx, op, "pull request", method, path, opt, &raw); err != nil {
		return nil, err
	}
	pr, err := gitlabMergeRequest(&raw)
	if err != nil {
		return nil, forgeerr.WithContext(err, string(BackendGitLab), op)
	}
	return pr, nil
}

// GetPullRequest implements Adapter. number is the merge request iid.
func (a *GitLabAdapter) GetPullRequest(ctx context.Context, repo ID, number int) (*PullRequest, error) {
	const op = "GetPullRequest"
	path, err := a.projectPath(op, repo)
	if err != nil {
		return nil, err
	}
	return a.mergeRequest(ctx, op, http.MethodGet, fmt.Sprintf("%s/merge_requests/%d", path, number), nil)
}

// CreatePullRequest implements Adapter. Draft merge requests are marked
// with the "Draft: " title prefix.
func (a *GitLabAdapter) CreatePullRequest(ctx context.Context, repo ID, in CreatePullRequestInput) (*PullRequest, error) {
	const op = "CreatePullRequest"
	path, err := a.projectPath(op, repo)
	if err != nil {
		return nil, err
	}
	title := draftTitle(in.Title, in.Draft)
	body := glMergeRequestRequest{
		Title:        &title,
		Description:  in.Body,
		SourceBranch: &in.SourceBranch,
		TargetBranch: &in.TargetBranch,
	}
	return a.mergeRequest(ctx, op, http.MethodPost, path+"/merge_requests", body)
}

// UpdatePullRequest implements Adapter. Toggling draft rewrites the title
// prefix, fetching the current title when the update does not set one.
func (a *GitLabAdapter) UpdatePullRequest(ctx context.Context, repo ID, number int, in UpdatePullRequestInput) (*PullRequest, error) {
	const op = "UpdatePullRequest"
	path, err := a.projectPath(op, repo)
	if err != nil {
		return nil, err
	}
	mrPath := fmt.Sprintf("%s/merge_requests/%d", path, number)

	body := glMergeRequestRequest{Title: in.Title, Description: in.Body, TargetBranch: in.TargetBranch}
	if in.State != nil {
		state, err := writableState(BackendGitLab, op, *in.State)
		if err != nil {
			return nil, err
		}
		event := stateEvent(state)
		body.StateEvent = &event
	}
	if in.Draft != nil {
		title := ""
		if in.Title != nil {
			title = *in.Title
		} else {
			current, err := a.mergeRequest(ctx, op, http.MethodGet, mrPath, nil)
			if err != nil {
				return nil, err
			}
			title = current.Title
		}
		title = draftTitle(title, *in.Draft)
		body.Title = &title
	}
	return a.mergeRequest(ctx, op, http.MethodPut, mrPath, body)
}

var draftPrefixes = []string{"draft:", "[draft]", "(draft)", "wip:", "[wip]"}

// draftTitle adds or strips the draft marker GitLab derives draft state from.
func draftTitle(title string, draft bool) string {
	stripped := strings.TrimSpace(title)
	for changed := true; changed; {
		changed = false
		lower := strings.ToLower(stripped)
		for _, p := range draftPrefixes {
			if strings.HasPrefix(lower, p) {
				stripped = strings.TrimSpace(stripped[len(p):])
				changed = true
				break
			}
		}
	}
	if draft {
		return "Draft: " + stripped
	}
	return stripped
}

// ListComments implements Adapter. System notes (label changes, pushes)
// are not comments and are omitted.
func (a *GitLabAdapter) ListComments(ctx context.Context, repo ID, thread Thread, opts ListOptions) ([]Comment, error) {
	const op = "ListComments"
	path, err := a.projectPath(op, repo)
	if err != nil {
		return nil, err
	}
	if err := checkThread(BackendGitLab, op, thread); err != nil {
		return nil, err
	}

	var raw []glNote
	if err := a.call(ctx, op, "comment", http.MethodGet, threadPath(path, thread), listOptions(opts), &raw); err != nil {
		return nil, err
	}
	out := make([]Comment, 0, len(raw))
	for i := range raw {
		if raw[i].System {
			continue
		}
		c, err := gitlabNote(&raw[i])
		if err != nil {
			return nil, forgeerr.WithContext(err, string(BackendGitLab), op)
		}
		out = append(out, *c)
	}
	return out, nil
}

func (a *GitLabAdapter) note(ctx context.Context, op, method, path string, opt any) (*Comment, error) {
	var raw glNote
	if err := a.call(ctx, op, "comment", method, path, opt, &raw); err != nil {
		return nil, err
	}
	c, err := gitlabNote(&raw)
	if err != nil {
		return nil, forgeerr.WithContext(err, string(BackendGitLab), op)
	}
	return c, nil
}

func (a *GitLabAdapter) notePath(op string, repo ID, thread Thread, commentID ID) (string, error) {
	path, err := a.projectPath(op, repo)
	if err != nil {
		return "", err
	}
	if err := checkThread(BackendGitLab, op, thread); err != nil {
		return "", err
	}
	n, err := commentNumber(BackendGitLab, op, commentID)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/%d", threadPath(path, thread), n), nil
}

// GetComment implements Adapter.
func (a *GitLabAdapter) GetComment(ctx context.Context, repo ID, thread Thread, commentID ID) (*Comment, error) {
	const op = "GetComment"
	path, err := a.notePath(op, repo, thread, commentID)
	if err != nil {
		return nil, err
	}
	return a.note(ctx, op, http.MethodGet, path, nil)
}

// CreateComment implements Adapter.
func (a *GitLabAdapter) CreateComment(ctx context.Context, repo ID, thread Thread, body string) (*Comment, error) {
	const op = "CreateComment"
	path, err := a.projectPath(op, repo)
	if err != nil {
		return nil, err
	}
	if err := checkThread(BackendGitLab, op, thread); err != nil {
		return nil, err
	}
	return a.note(ctx, op, http.MethodPost, threadPath(path, thread), glNoteRequest{Body: body})
}

// UpdateComment implements Adapter.
func (a *GitLabAdapter) UpdateComment(ctx context.Context, repo ID, thread Thread, commentID ID, body string) (*Comment, error) {
	const op = "UpdateComment"
	path, err := a.notePath(op, repo, thread, commentID)
	if err != nil {
		return nil, err
	}
	return a.note(ctx, op, http.MethodPut, path, glNoteRequest{Body: body})
}

// ListBranches implements Adapter. The branch list and the project
// metadata holding the default branch are fetched concurrently.
func (a *GitLabAdapter) ListBranches(ctx context.Context, repo ID) ([]Branch, error) {
	const op = "ListBranches"
	path, err := a.projectPath(op, repo)
	if err != nil {
		return nil, err
	}

	var (
		raw  []glBranch
		meta glProject
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		q := glListOptions{PerPage: MaxPageSize}
		return a.call(gctx, op, "branch", http.MethodGet, path+"/repository/branches", q, &raw)
	})
	g.Go(func() error {
		return a.call(gctx, op, "repository", http.MethodGet, path, nil, &meta)
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]Branch, 0, len(raw))
	for i := range raw {
		b, err := gitlabBranch(&raw[i], meta.DefaultBranch)
		if err != nil {
			return nil, forgeerr.WithContext(err, string(BackendGitLab), op)
		}
		out = append(out, *b)
	}
	return out, nil
}

// GetPullRequestDiff implements Adapter. Line counts are computed from
// the diff text since GitLab does not report them per file.
func (a *GitLabAdapter) GetPullRequestDiff(ctx context.Context, repo ID, number int) (*PullRequestDiff, error) {
	const op = "GetPullRequestDiff"
	path, err := a.projectPath(op, repo)
	if err != nil {
		return nil, err
	}

	var raw []glDiff
	q := glListOptions{PerPage: MaxPageSize}
	if err := a.call(ctx, op, "file diff", http.MethodGet, fmt.Sprintf("%s/merge_requests/%d/diffs", path, number), q, &raw); err != nil {
		return nil, err
	}
	files := make([]FileDiff, 0, len(raw))
	for i := range raw {
		fd, err := gitlabDiff(&raw[i])
		if err != nil {
			return nil, forgeerr.WithContext(err, string(BackendGitLab), op)
		}
		files = append(files, *fd)
	}
	return NewPullRequestDiff(files), nil
}
