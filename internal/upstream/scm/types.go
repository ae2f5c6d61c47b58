package scm

import (
	"time"

	"github.com/sprintforge/sprintforge/internal/model"
)

// Wire DTOs for the SCM REST and GraphQL APIs.

type commitDTO struct {
	SHA    string `json:"sha"`
	Commit struct {
		Message string `json:"message"`
		Author  struct {
			Name  string    `json:"name"`
			Email string    `json:"email"`
			Date  time.Time `json:"date"`
		} `json:"author"`
	} `json:"commit"`
	Author *struct {
		Login string `json:"login"`
	} `json:"author"`
	HTMLURL string `json:"html_url"`
	Stats   *struct {
		Additions int `json:"additions"`
		Deletions int `json:"deletions"`
	} `json:"stats"`
}

func (c commitDTO) toModel() model.Commit {
	commit := model.Commit{
		SHA:     c.SHA,
		Message: c.Commit.Message,
		Author: model.CommitAuthor{
			Name:  c.Commit.Author.Name,
			Email: c.Commit.Author.Email,
		},
		CommittedAt: c.Commit.Author.Date,
		URL:         c.HTMLURL,
		IssueKeys:   model.ExtractIssueKeys(c.Commit.Message),
	}

	if c.Author != nil {
		commit.Author.Login = c.Author.Login
	}

	if c.Stats != nil {
		commit.Additions = c.Stats.Additions
		commit.Deletions = c.Stats.Deletions
	}

	return commit
}

type pullDTO struct {
	Number int    `json:"number"`
	Title  string `json:"title"`
	Body   string `json:"body"`
	State  string `json:"state"`
	User   *struct {
		Login string `json:"login"`
	} `json:"user"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	MergedAt     *time.Time `json:"merged_at"`
	ClosedAt     *time.Time `json:"closed_at"`
	Additions    int        `json:"additions"`
	Deletions    int        `json:"deletions"`
	ChangedFiles int        `json:"changed_files"`
	Commits      int        `json:"commits"`
	Comments     int        `json:"comments"`
	Labels       []struct {
		Name string `json:"name"`
	} `json:"labels"`
	Assignees []struct {
		Login string `json:"login"`
	} `json:"assignees"`
}

func (p pullDTO) toModel() model.PullRequest {
	pr := model.PullRequest{
		Number:       p.Number,
		Title:        p.Title,
		Body:         p.Body,
		State:        p.State,
		CreatedAt:    p.CreatedAt,
		UpdatedAt:    p.UpdatedAt,
		MergedAt:     p.MergedAt,
		ClosedAt:     p.ClosedAt,
		Additions:    p.Additions,
		Deletions:    p.Deletions,
		FilesChanged: p.ChangedFiles,
		Commits:      p.Commits,
		Comments:     p.Comments,
		IssueKeys:    model.ExtractIssueKeys(p.Title + "\n" + p.Body),
	}

	if p.User != nil {
		pr.Author = p.User.Login
	}

	if p.MergedAt != nil {
		pr.State = model.PRStateMerged
	}

	for _, label := range p.Labels {
		pr.Labels = append(pr.Labels, label.Name)
	}

	for _, assignee := range p.Assignees {
		pr.Assignees = append(pr.Assignees, assignee.Login)
	}

	return pr
}

type reviewDTO struct {
	User *struct {
		Login string `json:"login"`
	} `json:"user"`
	State       string    `json:"state"`
	SubmittedAt time.Time `json:"submitted_at"`
}

func (r reviewDTO) toModel() model.Review {
	review := model.Review{State: r.State, SubmittedAt: r.SubmittedAt}

	if r.User != nil {
		review.Author = r.User.Login
	}

	return review
}

// GraphQL search response shapes.

type graphQLResponse struct {
	Data struct {
		Search struct {
			IssueCount int `json:"issueCount"`
			PageInfo   struct {
				HasNextPage bool   `json:"hasNextPage"`
				EndCursor   string `json:"endCursor"`
			} `json:"pageInfo"`
			Nodes []graphQLPR `json:"nodes"`
		} `json:"search"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

type graphQLPR struct {
	Number int    `json:"number"`
	Title  string `json:"title"`
	Body   string `json:"body"`
	State  string `json:"state"`
	Author *struct {
		Login string `json:"login"`
	} `json:"author"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
	MergedAt     *time.Time `json:"mergedAt"`
	ClosedAt     *time.Time `json:"closedAt"`
	Additions    int        `json:"additions"`
	Deletions    int        `json:"deletions"`
	ChangedFiles int        `json:"changedFiles"`
	Commits      struct {
		TotalCount int `json:"totalCount"`
	} `json:"commits"`
	Comments struct {
		TotalCount int `json:"totalCount"`
	} `json:"comments"`
	Labels struct {
		Nodes []struct {
			Name string `json:"name"`
		} `json:"nodes"`
	} `json:"labels"`
}

func (p graphQLPR) toModel() model.PullRequest {
	pr := model.PullRequest{
		Number:       p.Number,
		Title:        p.Title,
		Body:         p.Body,
		State:        normalizeGraphQLState(p.State),
		CreatedAt:    p.CreatedAt,
		UpdatedAt:    p.UpdatedAt,
		MergedAt:     p.MergedAt,
		ClosedAt:     p.ClosedAt,
		Additions:    p.Additions,
		Deletions:    p.Deletions,
		FilesChanged: p.ChangedFiles,
		Commits:      p.Commits.TotalCount,
		Comments:     p.Comments.TotalCount,
		IssueKeys:    model.ExtractIssueKeys(p.Title + "\n" + p.Body),
	}

	if p.Author != nil {
		pr.Author = p.Author.Login
	}

	for _, label := range p.Labels.Nodes {
		pr.Labels = append(pr.Labels, label.Name)
	}

	return pr
}

// normalizeGraphQLState lowers the GraphQL enum (OPEN, MERGED, CLOSED) to
// the model's state values.
func normalizeGraphQLState(state string) string {
	switch state {
	case "MERGED":
		return model.PRStateMerged
	case "CLOSED":
		return model.PRStateClosed
	default:
		return model.PRStateOpen
	}
}
