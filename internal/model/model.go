// Package model defines the domain entities exchanged between the upstream
// clients, the aggregation service, and the tool registry. Entities are
// read-only snapshots of upstream state; they live in caches and per-request
// memory only.
package model

import "time"

// Sprint states as reported by the issue tracker.
const (
	SprintStateActive = "active"
	SprintStateFuture = "future"
	SprintStateClosed = "closed"
)

// Sprint is a bounded work iteration on a tracker board.
// Closed sprints are immutable; active sprints may still mutate upstream.
type Sprint struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	State        string     `json:"state"`
	StartDate    *time.Time `json:"startDate,omitempty"`
	EndDate      *time.Time `json:"endDate,omitempty"`
	CompleteDate *time.Time `json:"completeDate,omitempty"`
	Goal         string     `json:"goal,omitempty"`
	BoardID      string     `json:"boardId"`
}

// Issue is a tracker work item. The Tier classification is derived from
// labels, components, and type via the configured rule set; it is stable
// for a given issue.
type Issue struct {
	Key         string       `json:"key"`
	ID          string       `json:"id"`
	Summary     string       `json:"summary"`
	Status      string       `json:"status"`
	IssueType   string       `json:"issueType"`
	Priority    string       `json:"priority"`
	Assignee    string       `json:"assignee,omitempty"`
	Reporter    string       `json:"reporter,omitempty"`
	StoryPoints float64      `json:"storyPoints,omitempty"`
	Created     time.Time    `json:"created"`
	Updated     time.Time    `json:"updated"`
	Resolved    *time.Time   `json:"resolved,omitempty"`
	SprintID    string       `json:"sprintId,omitempty"`
	Labels      []string     `json:"labels,omitempty"`
	Components  []string     `json:"components,omitempty"`
	EpicLink    string       `json:"epicLink,omitempty"`
	ParentKey   string       `json:"parentKey,omitempty"`
	Tier        int          `json:"tier,omitempty"`
	BlockedBy   []string     `json:"blockedBy,omitempty"`
	Changelog   []Transition `json:"changelog,omitempty"`
}

// Transition is a single status change from an issue changelog.
type Transition struct {
	From string    `json:"from"`
	To   string    `json:"to"`
	At   time.Time `json:"at"`
}

// CommitAuthor identifies the author of a commit.
type CommitAuthor struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Login string `json:"login,omitempty"`
}

// Commit is a source-control commit with issue keys extracted from its message.
type Commit struct {
	SHA         string       `json:"sha"`
	Message     string       `json:"message"`
	Author      CommitAuthor `json:"author"`
	CommittedAt time.Time    `json:"committedAt"`
	URL         string       `json:"url"`
	Additions   int          `json:"additions,omitempty"`
	Deletions   int          `json:"deletions,omitempty"`
	IssueKeys   []string     `json:"issueKeys,omitempty"`
}

// Pull request states.
const (
	PRStateOpen   = "open"
	PRStateMerged = "merged"
	PRStateClosed = "closed"
)

// Review is a single pull request review.
type Review struct {
	Author      string    `json:"author"`
	State       string    `json:"state"`
	SubmittedAt time.Time `json:"submittedAt"`
}

// PullRequest is a source-control pull request. IssueKeys are extracted from
// title+body. Enhanced fields (reviews, timing) are required for closed
// sprints; basic fields suffice for active ones.
type PullRequest struct {
	Number       int        `json:"number"`
	Title        string     `json:"title"`
	Body         string     `json:"body,omitempty"`
	State        string     `json:"state"`
	Author       string     `json:"author"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
	MergedAt     *time.Time `json:"mergedAt,omitempty"`
	ClosedAt     *time.Time `json:"closedAt,omitempty"`
	Additions    int        `json:"additions"`
	Deletions    int        `json:"deletions"`
	FilesChanged int        `json:"filesChanged"`
	Commits      int        `json:"commits"`
	Reviews      []Review   `json:"reviews,omitempty"`
	Comments     int        `json:"comments"`
	Labels       []string   `json:"labels,omitempty"`
	Assignees    []string   `json:"assignees,omitempty"`
	IssueKeys    []string   `json:"issueKeys,omitempty"`
	Enhanced     bool       `json:"enhanced,omitempty"`
}

// Board types.
const (
	BoardTypeScrum  = "scrum"
	BoardTypeKanban = "kanban"
)

// BoardInfo describes a tracker board.
type BoardInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ProjectKey  string `json:"projectKey,omitempty"`
	ProjectName string `json:"projectName,omitempty"`
	Type        string `json:"type"`
}
