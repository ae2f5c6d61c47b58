// Package scm implements the source-control client. It is dual-backed:
// REST for commits, basic pull requests, and per-PR enhancement, and
// GraphQL for date-bounded PR discovery, which REST pagination cannot
// express. GraphQL is preferred whenever a token is configured.
package scm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sprintforge/sprintforge/internal/model"
	"github.com/sprintforge/sprintforge/internal/upstream"
	"github.com/sprintforge/sprintforge/pkg/cache"
)

// Provider is the rate-limiter / breaker identity for the SCM.
const Provider = "scm"

// Pagination and windowing limits.
const (
	perPage = 100

	// DefaultMaxCommitPages bounds REST commit pagination per window.
	DefaultMaxCommitPages = 10

	// MaxWindowPRs caps date-window PR discovery; results beyond it are
	// truncated and reported to the caller.
	MaxWindowPRs = 1000
)

// timeFormat is the date format used in GraphQL search qualifiers.
const timeFormat = "2006-01-02"

// Config holds SCM client construction parameters.
type Config struct {
	BaseURL      string
	GraphQLURL   string
	Token        string
	GraphQLToken string

	// EnhanceBatch is the concurrent per-PR detail fetch batch size.
	// Zero uses the default.
	EnhanceBatch int
}

// Client is the SCM API client.
type Client struct {
	cfg    Config
	pipe   *upstream.Pipeline
	cache  *cache.Manager
	logger *slog.Logger
}

// NewClient creates an SCM client. cacheManager may be nil to disable the
// client-level caching of GraphQL windows and enhanced PRs.
func NewClient(cfg Config, pipe *upstream.Pipeline, cacheManager *cache.Manager, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{cfg: cfg, pipe: pipe, cache: cacheManager, logger: logger}
}

// HasGraphQL reports whether the preferred GraphQL path is configured.
func (c *Client) HasGraphQL() bool {
	return c.cfg.GraphQLToken != "" && c.cfg.GraphQLURL != ""
}

func (c *Client) headers() map[string]string {
	h := map[string]string{}
	if c.cfg.Token != "" {
		h["Authorization"] = "Bearer " + c.cfg.Token
	}

	return h
}

// windowTTL picks the cache TTL for a date window: windows entirely in the
// past are immutable and cache long.
func windowTTL(until time.Time) time.Duration {
	if until.Before(time.Now()) {
		return model.TTLClosedSprint
	}

	return model.TTLActiveSprint
}

// GetCommits returns commits in [since, until], newest first, with issue
// keys extracted from each message. Pagination stops at maxPages. Windows
// cache whole under the repo commits key, so invalidation can target them.
func (c *Client) GetCommits(ctx context.Context, owner, repo string, since, until time.Time, maxPages int) ([]model.Commit, error) {
	if maxPages <= 0 {
		maxPages = DefaultMaxCommitPages
	}

	cacheKey := fmt.Sprintf("repo:%s/%s:commits:%s:%s",
		owner, repo, since.UTC().Format(time.RFC3339), until.UTC().Format(time.RFC3339))

	if c.cache != nil {
		if val, ok := c.cache.Get(ctx, cacheKey); ok {
			var commits []model.Commit
			if json.Unmarshal(val, &commits) == nil {
				return commits, nil
			}
		}
	}

	var commits []model.Commit

	for page := 1; page <= maxPages; page++ {
		params := url.Values{}
		params.Set("since", since.UTC().Format(time.RFC3339))
		params.Set("until", until.UTC().Format(time.RFC3339))
		params.Set("per_page", strconv.Itoa(perPage))
		params.Set("page", strconv.Itoa(page))

		body, err := c.pipe.Do(ctx, upstream.Request{
			URL:     c.cfg.BaseURL + "/repos/" + owner + "/" + repo + "/commits",
			Query:   params,
			Headers: c.headers(),
		})
		if err != nil {
			return nil, err
		}

		var dtos []commitDTO

		err = json.Unmarshal(body, &dtos)
		if err != nil {
			return nil, upstream.NewError(upstream.KindInternal, "decode commits", err)
		}

		for _, dto := range dtos {
			commits = append(commits, dto.toModel())
		}

		if len(dtos) < perPage {
			break
		}
	}

	if c.cache != nil {
		encoded, err := json.Marshal(commits)
		if err == nil {
			_ = c.cache.Set(ctx, cacheKey, encoded, windowTTL(until))
		}
	}

	return commits, nil
}

// GetPullRequestsInWindow returns PRs created in [since, until]. The
// GraphQL path is preferred when configured; otherwise REST listing with
// client-side date filtering is used. truncated reports whether the
// MaxWindowPRs cap cut off results.
func (c *Client) GetPullRequestsInWindow(ctx context.Context, owner, repo string, since, until time.Time) (prs []model.PullRequest, truncated bool, err error) {
	if c.HasGraphQL() {
		return c.searchPullRequestsGraphQL(ctx, owner, repo, since, until)
	}

	prs, err = c.listPullRequestsREST(ctx, owner, repo, since, until)

	return prs, false, err
}

// listPullRequestsREST is the fallback PR discovery path. REST listing is
// ordered by creation desc, so pagination stops once a page falls entirely
// before the window.
func (c *Client) listPullRequestsREST(ctx context.Context, owner, repo string, since, until time.Time) ([]model.PullRequest, error) {
	ttl := windowTTL(until)

	var prs []model.PullRequest

	for page := 1; page <= DefaultMaxCommitPages; page++ {
		params := url.Values{}
		params.Set("state", "all")
		params.Set("sort", "created")
		params.Set("direction", "desc")
		params.Set("per_page", strconv.Itoa(perPage))
		params.Set("page", strconv.Itoa(page))

		body, err := c.pipe.Do(ctx, upstream.Request{
			URL:      c.cfg.BaseURL + "/repos/" + owner + "/" + repo + "/pulls",
			Query:    params,
			Headers:  c.headers(),
			CacheTTL: ttl,
		})
		if err != nil {
			return nil, err
		}

		var dtos []pullDTO

		err = json.Unmarshal(body, &dtos)
		if err != nil {
			return nil, upstream.NewError(upstream.KindInternal, "decode pull requests", err)
		}

		pastWindow := false

		for _, dto := range dtos {
			if dto.CreatedAt.After(until) {
				continue
			}

			if dto.CreatedAt.Before(since) {
				pastWindow = true

				break
			}

			prs = append(prs, dto.toModel())
		}

		if pastWindow || len(dtos) < perPage {
			break
		}
	}

	return prs, nil
}

// GetEnhancedPullRequest fetches a PR with reviews, commit count, and
// file-change totals. Results cache under the enhanced-PR namespace.
func (c *Client) GetEnhancedPullRequest(ctx context.Context, owner, repo string, number int) (*model.PullRequest, error) {
	cacheKey := fmt.Sprintf("pr:%s/%s:%d:enhanced", owner, repo, number)

	if c.cache != nil {
		if val, ok := c.cache.Get(ctx, cacheKey); ok {
			var pr model.PullRequest
			if json.Unmarshal(val, &pr) == nil {
				return &pr, nil
			}
		}
	}

	base := c.cfg.BaseURL + "/repos/" + owner + "/" + repo + "/pulls/" + strconv.Itoa(number)

	body, err := c.pipe.Do(ctx, upstream.Request{URL: base, Headers: c.headers()})
	if err != nil {
		return nil, err
	}

	var dto pullDTO

	err = json.Unmarshal(body, &dto)
	if err != nil {
		return nil, upstream.NewError(upstream.KindInternal, "decode pull request", err)
	}

	pr := dto.toModel()

	reviewsBody, err := c.pipe.Do(ctx, upstream.Request{URL: base + "/reviews", Headers: c.headers()})
	if err != nil {
		return nil, err
	}

	var reviewDTOs []reviewDTO

	err = json.Unmarshal(reviewsBody, &reviewDTOs)
	if err != nil {
		return nil, upstream.NewError(upstream.KindInternal, "decode reviews", err)
	}

	for _, rdto := range reviewDTOs {
		pr.Reviews = append(pr.Reviews, rdto.toModel())
	}

	pr.Enhanced = true

	if c.cache != nil {
		encoded, encodeErr := json.Marshal(pr)
		if encodeErr == nil {
			ttl := model.TTLActiveSprint
			if pr.State != model.PRStateOpen {
				ttl = model.TTLClosedSprint
			}

			_ = c.cache.Set(ctx, cacheKey, encoded, ttl)
		}
	}

	return &pr, nil
}

// SearchCommitsByMessage returns window commits whose message contains the
// given substring, case-insensitively. An empty query matches everything.
func (c *Client) SearchCommitsByMessage(ctx context.Context, owner, repo, query string, since, until time.Time) ([]model.Commit, error) {
	commits, err := c.GetCommits(ctx, owner, repo, since, until, 0)
	if err != nil {
		return nil, err
	}

	matched := make([]model.Commit, 0)

	for _, commit := range commits {
		if query == "" || containsFold(commit.Message, query) {
			matched = append(matched, commit)
		}
	}

	return matched, nil
}

// FindCommitsWithIssueRefs returns window commits referencing at least one
// issue key.
func (c *Client) FindCommitsWithIssueRefs(ctx context.Context, owner, repo string, since, until time.Time) ([]model.Commit, error) {
	commits, err := c.GetCommits(ctx, owner, repo, since, until, 0)
	if err != nil {
		return nil, err
	}

	matched := make([]model.Commit, 0)

	for _, commit := range commits {
		if len(commit.IssueKeys) > 0 {
			matched = append(matched, commit)
		}
	}

	return matched, nil
}

// GetDefaultBranch returns the repository's default branch name.
func (c *Client) GetDefaultBranch(ctx context.Context, owner, repo string) (string, error) {
	body, err := c.pipe.Do(ctx, upstream.Request{
		URL:      c.cfg.BaseURL + "/repos/" + owner + "/" + repo,
		Headers:  c.headers(),
		CacheTTL: model.TTLClosedSprint,
	})
	if err != nil {
		return "", err
	}

	var meta struct {
		DefaultBranch string `json:"default_branch"`
	}

	err = json.Unmarshal(body, &meta)
	if err != nil {
		return "", upstream.NewError(upstream.KindInternal, "decode repo metadata", err)
	}

	return meta.DefaultBranch, nil
}

// containsFold is a case-insensitive substring check.
func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}
