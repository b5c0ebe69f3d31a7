package forge

import (
	"errors"
	"fmt"
	"time"

	"github.com/greg-hellings/forgeclient/pkg/forgeerr"
)

func gitlabConversion(entity string, cause error) error {
	return forgeerr.Conversion(string(BackendGitLab), entity, cause)
}

// parseTime reads an optional ISO-8601 timestamp.
func parseTime(field string, raw *string) (*time.Time, error) {
	if raw == nil || *raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, *raw)
	if err != nil {
		// Some GitLab endpoints send dates without a zone offset.
		if t2, err2 := time.Parse("2006-01-02T15:04:05.000", *raw); err2 == nil {
			return &t2, nil
		}
		return nil, fmt.Errorf("%s: malformed timestamp %q: %w", field, *raw, err)
	}
	return &t, nil
}

func parseTimeValue(field string, raw *string) (time.Time, error) {
	t, err := parseTime(field, raw)
	if err != nil || t == nil {
		return time.Time{}, err
	}
	return *t, nil
}

func gitlabUser(u *glUser) (User, error) {
	if u == nil {
		return User{}, gitlabConversion("user", errors.New("missing user"))
	}
	if u.ID == 0 && u.Username == "" {
		return User{}, gitlabConversion("user", errors.New("missing id and username"))
	}
	out := User{
		Username:    u.Username,
		DisplayName: u.Name,
		AvatarURL:   u.AvatarURL,
	}
	if u.ID != 0 {
		out.ID = NumericID(u.ID)
	}
	if out.DisplayName == "" {
		out.DisplayName = out.Username
	}
	return out, nil
}

func optionalGitLabUser(u *glUser) (User, error) {
	if u == nil {
		return User{}, nil
	}
	return gitlabUser(u)
}

func gitlabUsers(users []glUser) ([]User, error) {
	out := make([]User, 0, len(users))
	for i := range users {
		cu, err := gitlabUser(&users[i])
		if err != nil {
			return nil, err
		}
		out = append(out, cu)
	}
	return out, nil
}

func gitlabLabels(labels []string) []string {
	if labels == nil {
		return []string{}
	}
	return append([]string(nil), labels...)
}

// gitlabProject converts a project. The unified id is the numeric project id.
func gitlabProject(p *glProject) (*Repository, error) {
	if p == nil {
		return nil, gitlabConversion("repository", errors.New("missing project"))
	}
	if p.ID == 0 {
		return nil, gitlabConversion("repository", errors.New("missing id"))
	}
	owner, name, err := SplitFullName(p.PathWithNamespace)
	if err != nil {
		return nil, gitlabConversion("repository", fmt.Errorf("path_with_namespace: %w", err))
	}
	if p.Name != "" {
		name = p.Name
	}
	created, err := parseTime("created_at", p.CreatedAt)
	if err != nil {
		return nil, gitlabConversion("repository", err)
	}
	updatedRaw := p.UpdatedAt
	if updatedRaw == nil {
		updatedRaw = p.LastActivityAt
	}
	updated, err := parseTime("updated_at", updatedRaw)
	if err != nil {
		return nil, gitlabConversion("repository", err)
	}

	return &Repository{
		ID:            NumericID(p.ID),
		Name:          name,
		FullName:      p.PathWithNamespace,
		Description:   p.Description,
		URL:           p.WebURL,
		DefaultBranch: p.DefaultBranch,
		Backend:       BackendGitLab,
		Owner:         owner,
		Visibility:    Visibility(p.Visibility),
		Archived:      p.Archived,
		Stars:         p.StarCount,
		Forks:         p.ForksCount,
		CreatedAt:     created,
		UpdatedAt:     updated,
	}, nil
}

type gitlabCommon struct {
	author    User
	assignees []User
	createdAt time.Time
	updatedAt time.Time
	closedAt  *time.Time
}

func gitlabIssueCommon(entity string, i *glIssue) (gitlabCommon, error) {
	var c gitlabCommon
	switch {
	case i.ID == 0:
		return c, gitlabConversion(entity, errors.New("missing id"))
	case i.IID == 0:
		return c, gitlabConversion(entity, errors.New("missing iid"))
	case i.Title == nil:
		return c, gitlabConversion(entity, errors.New("missing title"))
	}
	var err error
	if c.author, err = optionalGitLabUser(i.Author); err != nil {
		return c, gitlabConversion(entity, fmt.Errorf("author: %w", err))
	}
	if c.assignees, err = gitlabUsers(i.Assignees); err != nil {
		return c, gitlabConversion(entity, fmt.Errorf("assignees: %w", err))
	}
	if c.createdAt, err = parseTimeValue("created_at", i.CreatedAt); err != nil {
		return c, gitlabConversion(entity, err)
	}
	if c.updatedAt, err = parseTimeValue("updated_at", i.UpdatedAt); err != nil {
		return c, gitlabConversion(entity, err)
	}
	if c.closedAt, err = parseTime("closed_at", i.ClosedAt); err != nil {
		return c, gitlabConversion(entity, err)
	}
	return c, nil
}

func gitlabIssue(i *glIssue) (*Issue, error) {
	if i == nil {
		return nil, gitlabConversion("issue", errors.New("missing issue"))
	}
	c, err := gitlabIssueCommon("issue", i)
	if err != nil {
		return nil, err
	}
	return &Issue{
		ID:        NumericID(i.ID),
		Number:    i.IID,
		Title:     *i.Title,
		Body:      i.Description,
		State:     issueState(NormalizeState(i.State)),
		Author:    c.author,
		Assignees: c.assignees,
		Labels:    gitlabLabels(i.Labels),
		CreatedAt: c.createdAt,
		UpdatedAt: c.updatedAt,
		ClosedAt:  c.closedAt,
		URL:       i.WebURL,
	}, nil
}

func gitlabMergeRequest(m *glMergeRequest) (*PullRequest, error) {
	if m == nil {
		return nil, gitlabConversion("pull request", errors.New("missing merge request"))
	}
	c, err := gitlabIssueCommon("pull request", &m.glIssue)
	if err != nil {
		return nil, err
	}
	mergedAt, err := parseTime("merged_at", m.MergedAt)
	if err != nil {
		return nil, gitlabConversion("pull request", err)
	}

	out := &PullRequest{
		ID:           NumericID(m.ID),
		Number:       m.IID,
		Title:        *m.Title,
		Body:         m.Description,
		State:        NormalizeState(m.State),
		Author:       c.author,
		Assignees:    c.assignees,
		Labels:       gitlabLabels(m.Labels),
		CreatedAt:    c.createdAt,
		UpdatedAt:    c.updatedAt,
		ClosedAt:     c.closedAt,
		URL:          m.WebURL,
		SourceBranch: m.SourceBranch,
		TargetBranch: m.TargetBranch,
		Draft:        m.Draft || m.WorkInProgress,
		MergedAt:     mergedAt,
	}
	if out.State == StateMerged && out.MergedAt == nil {
		fallback := out.UpdatedAt
		out.MergedAt = &fallback
	}
	return out, nil
}

func gitlabNote(n *glNote) (*Comment, error) {
	if n == nil {
		return nil, gitlabConversion("comment", errors.New("missing note"))
	}
	if n.ID == 0 {
		return nil, gitlabConversion("comment", errors.New("missing id"))
	}
	author, err := optionalGitLabUser(n.Author)
	if err != nil {
		return nil, gitlabConversion("comment", fmt.Errorf("author: %w", err))
	}
	created, err := parseTimeValue("created_at", n.CreatedAt)
	if err != nil {
		return nil, gitlabConversion("comment", err)
	}
	updated, err := parseTimeValue("updated_at", n.UpdatedAt)
	if err != nil {
		return nil, gitlabConversion("comment", err)
	}
	return &Comment{
		ID:        NumericID(n.ID),
		Body:      n.Body,
		Author:    author,
		CreatedAt: created,
		UpdatedAt: updated,
	}, nil
}

func gitlabBranch(b *glBranch, defaultBranch string) (*Branch, error) {
	if b == nil || b.Name == "" {
		return nil, gitlabConversion("branch", errors.New("missing name"))
	}
	out := &Branch{
		Name:      b.Name,
		Protected: b.Protected,
		Default:   b.Name == defaultBranch,
	}
	if b.Commit != nil {
		out.CommitSHA = b.Commit.ID
	}
	return out, nil
}

func gitlabDiff(d *glDiff) (*FileDiff, error) {
	if d == nil || (d.NewPath == "" && d.OldPath == "") {
		return nil, gitlabConversion("file diff", errors.New("missing old and new path"))
	}
	additions, deletions := countDiffLines(d.Diff)
	out := &FileDiff{
		NewPath:   d.NewPath,
		Diff:      d.Diff,
		Additions: additions,
		Deletions: deletions,
		IsNew:     d.NewFile,
		IsDeleted: d.DeletedFile,
		IsRenamed: d.RenamedFile,
	}
	if out.NewPath == "" {
		out.NewPath = d.OldPath
	}
	if !d.NewFile {
		old := d.OldPath
		if old == "" {
			old = d.NewPath
		}
		out.OldPath = &old
	}
	return out, nil
}
