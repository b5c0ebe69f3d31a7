package forge

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/go-github/v57/github"

	"github.com/greg-hellings/forgeclient/pkg/forgeerr"
)

func githubConversion(entity string, cause error) error {
	return forgeerr.Conversion(string(BackendGitHub), entity, cause)
}

func githubTime(ts *github.Timestamp) *time.Time {
	if ts == nil || ts.IsZero() {
		return nil
	}
	t := ts.Time
	return &t
}

func githubTimeValue(ts *github.Timestamp) time.Time {
	if t := githubTime(ts); t != nil {
		return *t
	}
	return time.Time{}
}

// githubUser converts a go-github user. A user needs an id or a login.
func githubUser(u *github.User) (User, error) {
	if u == nil {
		return User{}, githubConversion("user", errors.New("missing user"))
	}
	if u.GetID() == 0 && u.GetLogin() == "" {
		return User{}, githubConversion("user", errors.New("missing id and login"))
	}
	out := User{
		Username:    u.GetLogin(),
		DisplayName: u.GetName(),
		AvatarURL:   u.GetAvatarURL(),
	}
	if u.ID != nil {
		out.ID = NumericID(u.GetID())
	}
	if out.DisplayName == "" {
		out.DisplayName = out.Username
	}
	return out, nil
}

// optionalGitHubUser converts u, returning the zero User when u is nil.
func optionalGitHubUser(u *github.User) (User, error) {
	if u == nil {
		return User{}, nil
	}
	return githubUser(u)
}

func githubUsers(users []*github.User) ([]User, error) {
	out := make([]User, 0, len(users))
	for _, u := range users {
		cu, err := githubUser(u)
		if err != nil {
			return nil, err
		}
		out = append(out, cu)
	}
	return out, nil
}

func githubLabels(labels []*github.Label) []string {
	out := make([]string, 0, len(labels))
	for _, l := range labels {
		if name := l.GetName(); name != "" {
			out = append(out, name)
		}
	}
	return out
}

// githubRepository converts a go-github repository. The unified id is the
// full name, which is what GitHub's REST paths are keyed by.
func githubRepository(r *github.Repository) (*Repository, error) {
	if r == nil {
		return nil, githubConversion("repository", errors.New("missing repository"))
	}
	if r.GetID() == 0 {
		return nil, githubConversion("repository", errors.New("missing id"))
	}
	fullName := r.GetFullName()
	if fullName == "" && r.GetOwner().GetLogin() != "" && r.GetName() != "" {
		fullName = r.GetOwner().GetLogin() + "/" + r.GetName()
	}
	owner, name, err := SplitFullName(fullName)
	if err != nil {
		return nil, githubConversion("repository", fmt.Errorf("full name: %w", err))
	}
	if r.GetName() != "" {
		name = r.GetName()
	}

	out := &Repository{
		ID:            SlugID(fullName),
		Name:          name,
		FullName:      fullName,
		Description:   r.Description,
		URL:           r.GetHTMLURL(),
		DefaultBranch: r.GetDefaultBranch(),
		Backend:       BackendGitHub,
		Owner:         owner,
		Archived:      r.Archived,
		Stars:         r.StargazersCount,
		Forks:         r.ForksCount,
		CreatedAt:     githubTime(r.CreatedAt),
		UpdatedAt:     githubTime(r.UpdatedAt),
	}
	switch {
	case r.GetVisibility() != "":
		out.Visibility = Visibility(r.GetVisibility())
	case r.Private != nil && r.GetPrivate():
		out.Visibility = VisibilityPrivate
	case r.Private != nil:
		out.Visibility = VisibilityPublic
	}
	return out, nil
}

// githubIssue converts a go-github issue. Pull requests returned by the
// issues endpoint convert too; callers filter them with IsPullRequest.
func githubIssue(i *github.Issue) (*Issue, error) {
	if i == nil {
		return nil, githubConversion("issue", errors.New("missing issue"))
	}
	switch {
	case i.GetID() == 0:
		return nil, githubConversion("issue", errors.New("missing id"))
	case i.GetNumber() == 0:
		return nil, githubConversion("issue", errors.New("missing number"))
	case i.Title == nil:
		return nil, githubConversion("issue", errors.New("missing title"))
	}

	author, err := optionalGitHubUser(i.User)
	if err != nil {
		return nil, githubConversion("issue", fmt.Errorf("author: %w", err))
	}
	assignees, err := githubUsers(i.Assignees)
	if err != nil {
		return nil, githubConversion("issue", fmt.Errorf("assignees: %w", err))
	}

	return &Issue{
		ID:        NumericID(i.GetID()),
		Number:    i.GetNumber(),
		Title:     i.GetTitle(),
		Body:      i.Body,
		State:     issueState(NormalizeState(i.GetState())),
		Author:    author,
		Assignees: assignees,
		Labels:    githubLabels(i.Labels),
		CreatedAt: githubTimeValue(i.CreatedAt),
		UpdatedAt: githubTimeValue(i.UpdatedAt),
		ClosedAt:  githubTime(i.ClosedAt),
		URL:       i.GetHTMLURL(),
	}, nil
}

// githubPullRequest converts a go-github pull request. GitHub reports
// merged pull requests as closed; merged_at or merged promotes them.
func githubPullRequest(p *github.PullRequest) (*PullRequest, error) {
	if p == nil {
		return nil, githubConversion("pull request", errors.New("missing pull request"))
	}
	switch {
	case p.GetID() == 0:
		return nil, githubConversion("pull request", errors.New("missing id"))
	case p.GetNumber() == 0:
		return nil, githubConversion("pull request", errors.New("missing number"))
	case p.Title == nil:
		return nil, githubConversion("pull request", errors.New("missing title"))
	}

	author, err := optionalGitHubUser(p.User)
	if err != nil {
		return nil, githubConversion("pull request", fmt.Errorf("author: %w", err))
	}
	assignees, err := githubUsers(p.Assignees)
	if err != nil {
		return nil, githubConversion("pull request", fmt.Errorf("assignees: %w", err))
	}

	out := &PullRequest{
		ID:           NumericID(p.GetID()),
		Number:       p.GetNumber(),
		Title:        p.GetTitle(),
		Body:         p.Body,
		State:        NormalizeState(p.GetState()),
		Author:       author,
		Assignees:    assignees,
		Labels:       githubLabels(p.Labels),
		CreatedAt:    githubTimeValue(p.CreatedAt),
		UpdatedAt:    githubTimeValue(p.UpdatedAt),
		ClosedAt:     githubTime(p.ClosedAt),
		URL:          p.GetHTMLURL(),
		SourceBranch: p.GetHead().GetRef(),
		TargetBranch: p.GetBase().GetRef(),
		Draft:        p.GetDraft(),
		MergedAt:     githubTime(p.MergedAt),
	}
	if out.MergedAt != nil || p.GetMerged() {
		out.State = StateMerged
	}
	if out.State == StateMerged && out.MergedAt == nil {
		fallback := out.UpdatedAt
		if out.ClosedAt != nil {
			fallback = *out.ClosedAt
		}
		out.MergedAt = &fallback
	}
	return out, nil
}

// githubComment converts an issue comment (GitHub keeps pull request
// conversation comments on the issues endpoint too).
func githubComment(c *github.IssueComment) (*Comment, error) {
	if c == nil {
		return nil, githubConversion("comment", errors.New("missing comment"))
	}
	if c.GetID() == 0 {
		return nil, githubConversion("comment", errors.New("missing id"))
	}
	author, err := optionalGitHubUser(c.User)
	if err != nil {
		return nil, githubConversion("comment", fmt.Errorf("author: %w", err))
	}
	return &Comment{
		ID:        NumericID(c.GetID()),
		Body:      c.GetBody(),
		Author:    author,
		CreatedAt: githubTimeValue(c.CreatedAt),
		UpdatedAt: githubTimeValue(c.UpdatedAt),
		URL:       c.GetHTMLURL(),
	}, nil
}

// githubBranch converts a branch; isDefault comes from the repository.
func githubBranch(b *github.Branch, defaultBranch string) (*Branch, error) {
	if b == nil || b.GetName() == "" {
		return nil, githubConversion("branch", errors.New("missing name"))
	}
	return &Branch{
		Name:      b.GetName(),
		Protected: b.GetProtected(),
		Default:   b.GetName() == defaultBranch,
		CommitSHA: b.GetCommit().GetSHA(),
	}, nil
}

// githubFileDiff converts one changed file of a pull request.
func githubFileDiff(f *github.CommitFile) (*FileDiff, error) {
	if f == nil || f.GetFilename() == "" {
		return nil, githubConversion("file diff", errors.New("missing filename"))
	}
	out := &FileDiff{
		NewPath:   f.GetFilename(),
		Diff:      f.GetPatch(),
		Additions: f.GetAdditions(),
		Deletions: f.GetDeletions(),
	}
	switch f.GetStatus() {
	case "added":
		out.IsNew = true
	case "removed":
		out.IsDeleted = true
	case "renamed":
		out.IsRenamed = true
	}
	if !out.IsNew {
		old := f.GetFilename()
		if f.GetPreviousFilename() != "" {
			old = f.GetPreviousFilename()
		}
		out.OldPath = &old
	}
	return out, nil
}

// issueState keeps issues within {open, closed}.
func issueState(s State) State {
	if s == StateClosed {
		return StateClosed
	}
	return StateOpen
}
