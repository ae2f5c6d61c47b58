package scm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sprintforge/sprintforge/internal/model"
	"github.com/sprintforge/sprintforge/internal/upstream"
)

// prSearchQuery discovers pull requests by creation-date window. The search
// API is the only surface that can express a date-bounded PR listing in a
// single paginated query.
const prSearchQuery = `
query($searchQuery: String!, $cursor: String) {
  search(query: $searchQuery, type: ISSUE, first: 100, after: $cursor) {
    issueCount
    pageInfo {
      hasNextPage
      endCursor
    }
    nodes {
      ... on PullRequest {
        number
        title
        body
        state
        author { login }
        createdAt
        updatedAt
        mergedAt
        closedAt
        additions
        deletions
        changedFiles
        commits { totalCount }
        comments { totalCount }
        labels(first: 20) { nodes { name } }
      }
    }
  }
}`

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type cachedWindow struct {
	PRs       []model.PullRequest `json:"prs"`
	Truncated bool                `json:"truncated"`
}

// searchPullRequestsGraphQL pages through the search API collecting PRs
// created in [since, until]. Windows larger than MaxWindowPRs are cut off
// and reported as truncated. POST requests bypass the pipeline's response
// cache, so the assembled window is cached here under the repo namespace.
func (c *Client) searchPullRequestsGraphQL(ctx context.Context, owner, repo string, since, until time.Time) ([]model.PullRequest, bool, error) {
	cacheKey := fmt.Sprintf("repo:%s/%s:prs:graphql:%s..%s",
		owner, repo, since.Format(timeFormat), until.Format(timeFormat))

	if c.cache != nil {
		if val, ok := c.cache.Get(ctx, cacheKey); ok {
			var window cachedWindow
			if json.Unmarshal(val, &window) == nil {
				return window.PRs, window.Truncated, nil
			}
		}
	}

	searchQuery := fmt.Sprintf("repo:%s/%s is:pr created:%s..%s",
		owner, repo, since.Format(timeFormat), until.Format(timeFormat))

	var (
		prs       []model.PullRequest
		truncated bool
		cursor    string
	)

	for {
		page, err := c.searchPage(ctx, searchQuery, cursor)
		if err != nil {
			return nil, false, err
		}

		for _, node := range page.Data.Search.Nodes {
			if len(prs) >= MaxWindowPRs {
				truncated = true

				break
			}

			prs = append(prs, node.toModel())
		}

		if truncated || !page.Data.Search.PageInfo.HasNextPage {
			break
		}

		cursor = page.Data.Search.PageInfo.EndCursor
	}

	if c.cache != nil {
		encoded, err := json.Marshal(cachedWindow{PRs: prs, Truncated: truncated})
		if err == nil {
			_ = c.cache.Set(ctx, cacheKey, encoded, windowTTL(until))
		}
	}

	return prs, truncated, nil
}

// searchPage issues one GraphQL search request. Transport errors carry the
// pipeline's taxonomy; in-band GraphQL errors map to upstream failures.
func (c *Client) searchPage(ctx context.Context, searchQuery, cursor string) (*graphQLResponse, error) {
	variables := map[string]any{"searchQuery": searchQuery}
	if cursor != "" {
		variables["cursor"] = cursor
	}

	payload, err := json.Marshal(graphQLRequest{Query: prSearchQuery, Variables: variables})
	if err != nil {
		return nil, upstream.NewError(upstream.KindInternal, "encode graphql request", err)
	}

	body, err := c.pipe.Do(ctx, upstream.Request{
		Method:  http.MethodPost,
		URL:     c.cfg.GraphQLURL,
		Body:    payload,
		Headers: map[string]string{"Authorization": "Bearer " + c.cfg.GraphQLToken},
	})
	if err != nil {
		return nil, err
	}

	var page graphQLResponse

	err = json.Unmarshal(body, &page)
	if err != nil {
		return nil, upstream.NewError(upstream.KindInternal, "decode graphql response", err)
	}

	if len(page.Errors) > 0 {
		messages := make([]string, 0, len(page.Errors))
		for _, gqlErr := range page.Errors {
			messages = append(messages, gqlErr.Message)
		}

		return nil, upstream.NewError(upstream.KindUpstreamFailure,
			"graphql search failed: "+strings.Join(messages, "; "), nil)
	}

	return &page, nil
}
