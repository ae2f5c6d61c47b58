// Package tracker implements the issue-tracker REST client: boards,
// sprints, sprint issues, issue details, and sanitised JQL search. All
// requests flow through the shared upstream pipeline for rate limiting,
// circuit breaking, and retries; sprint and issue entities cache at the
// client under their entity keys so invalidation can target them.
package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/sprintforge/sprintforge/internal/model"
	"github.com/sprintforge/sprintforge/internal/upstream"
	"github.com/sprintforge/sprintforge/pkg/cache"
)

// Provider is the rate-limiter / breaker identity for the tracker.
const Provider = "tracker"

// Pagination defaults.
const (
	DefaultMaxResults = 100
	maxSprintPages    = 20
)

// searchTokenCost is the rate-limit charge for JQL search, a known
// expensive endpoint.
const searchTokenCost = 3

// ErrJQLRejected indicates the JQL query contained a forbidden token.
var ErrJQLRejected = errors.New("jql query rejected by sanitiser")

// forbiddenJQLTokens are rejected case-insensitively anywhere in a query.
var forbiddenJQLTokens = []string{"delete", "drop", "script", "exec(", "eval("}

// Client is the tracker API client.
type Client struct {
	baseURL string
	token   string
	pipe    *upstream.Pipeline
	cache   *cache.Manager
	group   singleflight.Group
	logger  *slog.Logger
}

// NewClient creates a tracker client rooted at baseURL (no trailing slash).
// token is sent as a bearer credential on every request. cacheManager may
// be nil to disable entity caching.
func NewClient(baseURL, token string, pipe *upstream.Pipeline, cacheManager *cache.Manager, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		pipe:    pipe,
		cache:   cacheManager,
		logger:  logger,
	}
}

// readCached decodes a client-cached entry into out. Misses and undecodable
// entries report false.
func (c *Client) readCached(ctx context.Context, key string, out any) bool {
	if c.cache == nil {
		return false
	}

	val, ok := c.cache.Get(ctx, key)
	if !ok {
		return false
	}

	return json.Unmarshal(val, out) == nil
}

// storeCached writes value under key. Cache failures are silent; the caller
// already holds the fetched value.
func (c *Client) storeCached(ctx context.Context, key string, value any, ttl time.Duration) {
	if c.cache == nil {
		return
	}

	encoded, err := json.Marshal(value)
	if err != nil {
		return
	}

	_ = c.cache.Set(ctx, key, encoded, ttl)
}

// get issues a GET through the pipeline and decodes into out. A positive
// ttl caches the raw response at the pipeline tier.
func (c *Client) get(ctx context.Context, path string, query url.Values, ttl time.Duration, tokens int, out any) error {
	headers := map[string]string{}
	if c.token != "" {
		headers["Authorization"] = "Bearer " + c.token
	}

	body, err := c.pipe.Do(ctx, upstream.Request{
		URL:      c.baseURL + path,
		Query:    query,
		Headers:  headers,
		CacheTTL: ttl,
		Tokens:   tokens,
	})
	if err != nil {
		return err
	}

	err = json.Unmarshal(body, out)
	if err != nil {
		return upstream.NewError(upstream.KindInternal, "decode tracker response", err)
	}

	return nil
}

// ListBoards searches boards by name, id, or project key. An empty query
// lists all boards up to limit.
func (c *Client) ListBoards(ctx context.Context, query string, limit int) ([]model.BoardInfo, error) {
	if limit <= 0 {
		limit = DefaultMaxResults
	}

	params := url.Values{}
	params.Set("maxResults", strconv.Itoa(limit))

	if query != "" {
		params.Set("name", query)
	}

	var page boardPage

	err := c.get(ctx, "/rest/agile/1.0/board", params, model.TTLFutureSprint, 1, &page)
	if err != nil {
		return nil, err
	}

	boards := make([]model.BoardInfo, 0, len(page.Values))
	for _, dto := range page.Values {
		boards = append(boards, dto.toModel())
	}

	return boards, nil
}

// ListSprints returns the board's sprints in the given state. Closed
// sprints are paginated; other states fit one page. Results cache under
// the board's sprint-list key for the state.
func (c *Client) ListSprints(ctx context.Context, boardID, state string) ([]model.Sprint, error) {
	cacheKey := fmt.Sprintf("board:%s:sprints:%s", boardID, state)

	var cached []model.Sprint
	if c.readCached(ctx, cacheKey, &cached) {
		return cached, nil
	}

	result, err, _ := c.group.Do(cacheKey, func() (any, error) {
		sprints, err := c.fetchSprints(ctx, boardID, state)
		if err != nil {
			return nil, err
		}

		c.storeCached(ctx, cacheKey, sprints, model.TTLForState(state))

		return sprints, nil
	})
	if err != nil {
		return nil, err
	}

	return result.([]model.Sprint), nil
}

func (c *Client) fetchSprints(ctx context.Context, boardID, state string) ([]model.Sprint, error) {
	var sprints []model.Sprint

	startAt := 0

	for range maxSprintPages {
		params := url.Values{}
		params.Set("state", state)
		params.Set("startAt", strconv.Itoa(startAt))
		params.Set("maxResults", strconv.Itoa(DefaultMaxResults))

		var page sprintPage

		err := c.get(ctx, "/rest/agile/1.0/board/"+url.PathEscape(boardID)+"/sprint", params, 0, 1, &page)
		if err != nil {
			return nil, err
		}

		for _, dto := range page.Values {
			sprints = append(sprints, dto.toModel())
		}

		if page.IsLast || len(page.Values) == 0 || state != model.SprintStateClosed {
			break
		}

		startAt += len(page.Values)
	}

	return sprints, nil
}

// GetSprint fetches a single sprint descriptor. Results cache under the
// sprint's entity key with a TTL chosen by its fetched state.
func (c *Client) GetSprint(ctx context.Context, sprintID string) (*model.Sprint, error) {
	cacheKey := "sprint:" + sprintID

	var cached model.Sprint
	if c.readCached(ctx, cacheKey, &cached) {
		return &cached, nil
	}

	result, err, _ := c.group.Do(cacheKey, func() (any, error) {
		var dto sprintDTO

		err := c.get(ctx, "/rest/agile/1.0/sprint/"+url.PathEscape(sprintID), nil, 0, 1, &dto)
		if err != nil {
			return nil, err
		}

		sprint := dto.toModel()
		c.storeCached(ctx, cacheKey, sprint, model.TTLForState(sprint.State))

		return &sprint, nil
	})
	if err != nil {
		return nil, err
	}

	return result.(*model.Sprint), nil
}

// ListSprintIssues returns all issues in a sprint, paginating maxResults at
// a time. fields narrows the response; empty means the server default. Full
// fetches cache under the sprint's issues key; narrowed fetches bypass the
// cache so they cannot shadow the full entry.
func (c *Client) ListSprintIssues(ctx context.Context, sprintID string, fields []string, maxResults int) ([]model.Issue, error) {
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}

	if len(fields) > 0 {
		return c.fetchSprintIssues(ctx, sprintID, fields, maxResults)
	}

	cacheKey := fmt.Sprintf("sprint:%s:issues", sprintID)

	var cached []model.Issue
	if c.readCached(ctx, cacheKey, &cached) {
		return cached, nil
	}

	result, err, _ := c.group.Do(cacheKey, func() (any, error) {
		issues, err := c.fetchSprintIssues(ctx, sprintID, nil, maxResults)
		if err != nil {
			return nil, err
		}

		c.storeCached(ctx, cacheKey, issues, model.TTLActiveSprint)

		return issues, nil
	})
	if err != nil {
		return nil, err
	}

	return result.([]model.Issue), nil
}

func (c *Client) fetchSprintIssues(ctx context.Context, sprintID string, fields []string, maxResults int) ([]model.Issue, error) {
	var issues []model.Issue

	startAt := 0

	for {
		params := url.Values{}
		params.Set("startAt", strconv.Itoa(startAt))
		params.Set("maxResults", strconv.Itoa(maxResults))

		if len(fields) > 0 {
			params.Set("fields", strings.Join(fields, ","))
		}

		var page issuePage

		err := c.get(ctx, "/rest/agile/1.0/sprint/"+url.PathEscape(sprintID)+"/issue", params, 0, 1, &page)
		if err != nil {
			return nil, err
		}

		for _, dto := range page.Issues {
			issues = append(issues, dto.toModel())
		}

		startAt += len(page.Issues)

		if len(page.Issues) == 0 || startAt >= page.Total {
			break
		}
	}

	return issues, nil
}

// GetIssueDetails fetches a single issue; expand may include "changelog"
// for status transition history. Results cache under the issue's entity
// key; a cached entry without transitions does not satisfy a changelog
// request.
func (c *Client) GetIssueDetails(ctx context.Context, key string, expand []string) (*model.Issue, error) {
	normalized := model.NormalizeIssueKey(key)
	cacheKey := "issue:" + normalized
	needChangelog := slices.Contains(expand, "changelog")

	var cached model.Issue
	if c.readCached(ctx, cacheKey, &cached) && (!needChangelog || len(cached.Changelog) > 0) {
		return &cached, nil
	}

	flightKey := cacheKey
	if needChangelog {
		flightKey += ":changelog"
	}

	result, err, _ := c.group.Do(flightKey, func() (any, error) {
		params := url.Values{}
		if len(expand) > 0 {
			params.Set("expand", strings.Join(expand, ","))
		}

		var dto issueDTO

		err := c.get(ctx, "/rest/api/2/issue/"+url.PathEscape(normalized), params, 0, 1, &dto)
		if err != nil {
			return nil, err
		}

		issue := dto.toModel()
		c.storeCached(ctx, cacheKey, issue, model.TTLActiveSprint)

		return &issue, nil
	})
	if err != nil {
		return nil, err
	}

	return result.(*model.Issue), nil
}

// SearchIssues runs a sanitised JQL query. Queries containing destructive
// or script-invocation tokens are rejected before any request is made.
func (c *Client) SearchIssues(ctx context.Context, jql string, fields []string, maxResults int) ([]model.Issue, error) {
	err := SanitizeJQL(jql)
	if err != nil {
		return nil, upstream.NewError(upstream.KindValidation, "invalid jql query", err)
	}

	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}

	params := url.Values{}
	params.Set("jql", jql)
	params.Set("maxResults", strconv.Itoa(maxResults))

	if len(fields) > 0 {
		params.Set("fields", strings.Join(fields, ","))
	}

	var page issuePage

	err = c.get(ctx, "/rest/api/2/search", params, model.TTLActiveSprint, searchTokenCost, &page)
	if err != nil {
		return nil, err
	}

	issues := make([]model.Issue, 0, len(page.Issues))
	for _, dto := range page.Issues {
		issues = append(issues, dto.toModel())
	}

	return issues, nil
}

// SanitizeJQL rejects queries carrying destructive or script-invocation
// tokens. Matching is case-insensitive on whole substrings.
func SanitizeJQL(jql string) error {
	lowered := strings.ToLower(jql)

	for _, token := range forbiddenJQLTokens {
		if strings.Contains(lowered, token) {
			return fmt.Errorf("%w: contains %q", ErrJQLRejected, token)
		}
	}

	return nil
}
