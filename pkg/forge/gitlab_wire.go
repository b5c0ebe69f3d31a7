package forge

// GitLab REST v4 payloads. Only the fields forgeclient reads are declared;
// everything else in the response is ignored. Timestamps stay strings so
// malformed values surface as conversion errors.

type glUser struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url"`
}

type glNamespace struct {
	ID       int64  `json:"id"`
	FullPath string `json:"full_path"`
	Kind     string `json:"kind"`
}

type glProject struct {
	ID                int64        `json:"id"`
	Name              string       `json:"name"`
	Path              string       `json:"path"`
	PathWithNamespace string       `json:"path_with_namespace"`
	Description       *string      `json:"description"`
	WebURL            string       `json:"web_url"`
	DefaultBranch     string       `json:"default_branch"`
	Visibility        string       `json:"visibility"`
	Archived          *bool        `json:"archived"`
	StarCount         *int         `json:"star_count"`
	ForksCount        *int         `json:"forks_count"`
	CreatedAt         *string      `json:"created_at"`
	LastActivityAt    *string      `json:"last_activity_at"`
	UpdatedAt         *string      `json:"updated_at"`
	Namespace         *glNamespace `json:"namespace"`
}

type glIssue struct {
	ID          int64    `json:"id"`
	IID         int      `json:"iid"`
	Title       *string  `json:"title"`
	Description *string  `json:"description"`
	State       string   `json:"state"`
	Author      *glUser  `json:"author"`
	Assignees   []glUser `json:"assignees"`
	Labels      []string `json:"labels"`
	CreatedAt   *string  `json:"created_at"`
	UpdatedAt   *string  `json:"updated_at"`
	ClosedAt    *string  `json:"closed_at"`
	WebURL      string   `json:"web_url"`
}

type glMergeRequest struct {
	glIssue
	SourceBranch   string  `json:"source_branch"`
	TargetBranch   string  `json:"target_branch"`
	Draft          bool    `json:"draft"`
	WorkInProgress bool    `json:"work_in_progress"`
	MergedAt       *string `json:"merged_at"`
}

type glNote struct {
	ID        int64   `json:"id"`
	Body      string  `json:"body"`
	Author    *glUser `json:"author"`
	CreatedAt *string `json:"created_at"`
	UpdatedAt *string `json:"updated_at"`
	System    bool    `json:"system"`
}

type glCommit struct {
	ID string `json:"id"`
}

type glBranch struct {
	Name      string    `json:"name"`
	Protected bool      `json:"protected"`
	Default   bool      `json:"default"`
	Commit    *glCommit `json:"commit"`
}

type glDiff struct {
	OldPath     string `json:"old_path"`
	NewPath     string `json:"new_path"`
	Diff        string `json:"diff"`
	NewFile     bool   `json:"new_file"`
	RenamedFile bool   `json:"renamed_file"`
	DeletedFile bool   `json:"deleted_file"`
}

// Request bodies and query strings. GET options are encoded by the SDK
// with go-querystring url tags, write bodies as JSON.

type glListOptions struct {
	Page    int `url:"page,omitempty" json:"-"`
	PerPage int `url:"per_page,omitempty" json:"-"`
}

type glProjectListOptions struct {
	glListOptions
	Membership bool   `url:"membership,omitempty"`
	OrderBy    string `url:"order_by,omitempty"`
}

type glIssueListOptions struct {
	glListOptions
	State  string `url:"state,omitempty"`
	Labels string `url:"labels,omitempty"`
}

type glUserSearch struct {
	Username string `url:"username"`
}

type glProjectRequest struct {
	Name           *string `json:"name,omitempty"`
	Path           *string `json:"path,omitempty"`
	NamespaceID    *int64  `json:"namespace_id,omitempty"`
	Description    *string `json:"description,omitempty"`
	Visibility     *string `json:"visibility,omitempty"`
	DefaultBranch  *string `json:"default_branch,omitempty"`
	InitWithReadme *bool   `json:"initialize_with_readme,omitempty"`
}

type glIssueRequest struct {
	Title       *string  `json:"title,omitempty"`
	Description *string  `json:"description,omitempty"`
	Labels      *string  `json:"labels,omitempty"`
	AssigneeIDs *[]int64 `json:"assignee_ids,omitempty"`
	StateEvent  *string  `json:"state_event,omitempty"`
}

type glMergeRequestRequest struct {
	Title        *string `json:"title,omitempty"`
	Description  *string `json:"description,omitempty"`
	SourceBranch *string `json:"source_branch,omitempty"`
	TargetBranch *string `json:"target_branch,omitempty"`
	StateEvent   *string `json:"state_event,omitempty"`
}

type glNoteRequest struct {
	Body string `json:"body"`
}
