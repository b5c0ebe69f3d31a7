package forge

import "time"

// Backend names one code-hosting REST API.
type Backend string

const (
	BackendGitHub Backend = "github"
	BackendGitLab Backend = "gitlab"
)

// Backends lists every supported backend.
var Backends = []Backend{BackendGitHub, BackendGitLab}

// Valid reports whether b is a supported backend.
func (b Backend) Valid() bool {
	return b == BackendGitHub || b == BackendGitLab
}

func (b Backend) String() string { return string(b) }

// State is the unified lifecycle state of an issue or pull request.
type State string

const (
	StateOpen   State = "open"
	StateClosed State = "closed"
	StateMerged State = "merged"
	// StateAll is only meaningful as a list filter.
	StateAll State = "all"
)

// Visibility of a repository.
type Visibility string

const (
	VisibilityPublic   Visibility = "public"
	VisibilityPrivate  Visibility = "private"
	VisibilityInternal Visibility = "internal"
)

// User is an account on a backend.
type User struct {
	ID          ID     `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
}

// Repository is a GitHub repository or a GitLab project.
type Repository struct {
	ID            ID         `json:"id"`
	Name          string     `json:"name"`
	FullName      string     `json:"fullName"`
	Description   *string    `json:"description"`
	URL           string     `json:"url"`
	DefaultBranch string     `json:"defaultBranch"`
	Backend       Backend    `json:"backend"`
	Owner         string     `json:"owner"`
	Visibility    Visibility `json:"visibility,omitempty"`
	Archived      *bool      `json:"archived,omitempty"`
	Stars         *int       `json:"stars,omitempty"`
	Forks         *int       `json:"forks,omitempty"`
	CreatedAt     *time.Time `json:"createdAt,omitempty"`
	UpdatedAt     *time.Time `json:"updatedAt,omitempty"`
}

// Issue is a repository issue. Number is unique within its repository
// only; ID is backend-global.
type Issue struct {
	ID        ID         `json:"id"`
	Number    int        `json:"number"`
	Title     string     `json:"title"`
	Body      *string    `json:"body"`
	State     State      `json:"state"`
	Author    User       `json:"author"`
	Assignees []User     `json:"assignees"`
	Labels    []string   `json:"labels"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
	ClosedAt  *time.Time `json:"closedAt"`
	URL       string     `json:"url"`
}

// PullRequest is a GitHub pull request or a GitLab merge request.
// State merged implies MergedAt is set.
type PullRequest struct {
	ID           ID         `json:"id"`
	Number       int        `json:"number"`
	Title        string     `json:"title"`
	Body         *string    `json:"body"`
	State        State      `json:"state"`
	Author       User       `json:"author"`
	Assignees    []User     `json:"assignees"`
	Labels       []string   `json:"labels"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
	ClosedAt     *time.Time `json:"closedAt"`
	URL          string     `json:"url"`
	SourceBranch string     `json:"sourceBranch"`
	TargetBranch string     `json:"targetBranch"`
	Draft        bool       `json:"draft"`
	MergedAt     *time.Time `json:"mergedAt"`
}

// Comment is a comment on an issue or pull request thread.
type Comment struct {
	ID        ID        `json:"id"`
	Body      string    `json:"body"`
	Author    User      `json:"author"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	URL       string    `json:"url,omitempty"`
}

// Branch of a repository. Default is derived from the repository's
// default branch.
type Branch struct {
	Name      string `json:"name"`
	Protected bool   `json:"protected"`
	Default   bool   `json:"default"`
	CommitSHA string `json:"commitSha,omitempty"`
}

// FileDiff is the change to one file. OldPath is nil for added files.
type FileDiff struct {
	OldPath   *string `json:"oldPath"`
	NewPath   string  `json:"newPath"`
	Diff      string  `json:"diff"`
	Additions int     `json:"additions"`
	Deletions int     `json:"deletions"`
	IsNew     bool    `json:"isNew"`
	IsDeleted bool    `json:"isDeleted"`
	IsRenamed bool    `json:"isRenamed"`
}

// PullRequestDiff aggregates the file diffs of a pull request.
type PullRequestDiff struct {
	Files     []FileDiff `json:"files"`
	Additions int        `json:"additions"`
	Deletions int        `json:"deletions"`
}

// NewPullRequestDiff sums the per-file counters of files.
func NewPullRequestDiff(files []FileDiff) *PullRequestDiff {
	d := &PullRequestDiff{Files: files}
	if d.Files == nil {
		d.Files = []FileDiff{}
	}
	for _, f := range d.Files {
		d.Additions += f.Additions
		d.Deletions += f.Deletions
	}
	return d
}
