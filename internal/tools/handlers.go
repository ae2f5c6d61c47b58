package tools

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/sprintforge/sprintforge/internal/model"
	"github.com/sprintforge/sprintforge/internal/report"
	"github.com/sprintforge/sprintforge/internal/upstream"
	"github.com/sprintforge/sprintforge/internal/upstream/scm"
	"github.com/sprintforge/sprintforge/internal/upstream/tracker"
	"github.com/sprintforge/sprintforge/pkg/cache"
	"github.com/sprintforge/sprintforge/pkg/resilience"
)

// Tool names.
const (
	ToolGetSprints               = "get_sprints"
	ToolGetSprintIssues          = "get_sprint_issues"
	ToolGetIssueDetails          = "get_issue_details"
	ToolSearchIssuesJQL          = "search_issues_jql"
	ToolGetCommits               = "get_commits"
	ToolGetPullRequests          = "get_pull_requests"
	ToolSearchCommitsByMessage   = "search_commits_by_message"
	ToolFindCommitsWithIssueRefs = "find_commits_with_issue_refs"
	ToolGenerateSprintReport     = "generate_sprint_report"
	ToolGenerateComprehensive    = "generate_comprehensive_report"
	ToolGetSprintMetrics         = "get_sprint_metrics"
	ToolHealthCheck              = "health_check"
	ToolCacheStats               = "cache_stats"
	ToolSearchBoards             = "search_boards"
)

// defaultWindowDays is the commit/PR lookback when no dates are given.
const defaultWindowDays = 14

// Deps are the shared dependencies handlers close over. Tracker and Reports
// are required; SCM may be nil, failing SCM-backed tools at invocation.
type Deps struct {
	Tracker *tracker.Client
	SCM     *scm.Client
	Reports *report.Service
	Cache   *cache.Manager
	Breaker *resilience.Breaker
	Logger  *slog.Logger

	// DefaultOwner and DefaultRepo fill omitted repository references.
	DefaultOwner string
	DefaultRepo  string

	// Quotas maps tool names to per-minute invocation caps.
	Quotas map[string]int

	Version string
}

// RegisterAll registers the full tool set on reg.
func RegisterAll(reg *Registry, deps Deps) error {
	defs := []Tool{
		{
			Name:        ToolGetSprints,
			Description: "List a board's sprints filtered by state (active, future, or closed).",
			InputSchema: schemaGetSprints,
			Handler:     deps.handleGetSprints,
		},
		{
			Name:        ToolGetSprintIssues,
			Description: "List all issues in a sprint with story points, status, and assignee.",
			InputSchema: schemaGetSprintIssues,
			Handler:     deps.handleGetSprintIssues,
		},
		{
			Name:        ToolGetIssueDetails,
			Description: "Fetch one issue by key, optionally expanding the status changelog.",
			InputSchema: schemaGetIssueDetails,
			Handler:     deps.handleGetIssueDetails,
		},
		{
			Name:        ToolSearchIssuesJQL,
			Description: "Run a sanitised JQL query against the tracker.",
			InputSchema: schemaSearchIssuesJQL,
			Handler:     deps.handleSearchIssuesJQL,
		},
		{
			Name:        ToolGetCommits,
			Description: "List repository commits in a date window with extracted issue keys.",
			InputSchema: schemaCommitWindow,
			Handler:     deps.handleGetCommits,
		},
		{
			Name:        ToolGetPullRequests,
			Description: "List pull requests created in a date window.",
			InputSchema: schemaPullRequestWindow,
			Handler:     deps.handleGetPullRequests,
		},
		{
			Name:        ToolSearchCommitsByMessage,
			Description: "Find window commits whose message contains a substring.",
			InputSchema: schemaSearchCommits,
			Handler:     deps.handleSearchCommitsByMessage,
		},
		{
			Name:        ToolFindCommitsWithIssueRefs,
			Description: "Find window commits referencing at least one issue key.",
			InputSchema: schemaCommitWindow,
			Handler:     deps.handleFindCommitsWithIssueRefs,
		},
		{
			Name:        ToolGenerateSprintReport,
			Description: "Generate a sprint report with selectable sections.",
			InputSchema: schemaGenerateReport,
			Handler:     deps.handleGenerateSprintReport,
		},
		{
			Name:        ToolGenerateComprehensive,
			Description: "Generate a sprint report with every section enabled.",
			InputSchema: schemaComprehensiveReport,
			Handler:     deps.handleGenerateComprehensive,
		},
		{
			Name:        ToolGetSprintMetrics,
			Description: "Compute the deterministic metrics for one sprint.",
			InputSchema: schemaGetSprintMetrics,
			Handler:     deps.handleGetSprintMetrics,
		},
		{
			Name:        ToolHealthCheck,
			Description: "Report cache health, breaker states, and upstream configuration.",
			InputSchema: schemaEmpty,
			Handler:     deps.handleHealthCheck,
		},
		{
			Name:        ToolCacheStats,
			Description: "Report cache tier statistics.",
			InputSchema: schemaEmpty,
			Handler:     deps.handleCacheStats,
		},
		{
			Name:        ToolSearchBoards,
			Description: "Search tracker boards by name or project.",
			InputSchema: schemaSearchBoards,
			Handler:     deps.handleSearchBoards,
		},
	}

	for _, def := range defs {
		def.QuotaPerMinute = deps.Quotas[def.Name]

		err := reg.Register(def)
		if err != nil {
			return err
		}
	}

	return nil
}

func decode[T any](rawInput json.RawMessage) (T, error) {
	var input T

	err := json.Unmarshal(rawInput, &input)
	if err != nil {
		return input, upstream.NewError(upstream.KindValidation, "decode tool input", err)
	}

	return input, nil
}

// repoRef resolves owner/repo against the configured defaults and checks
// that the SCM client exists.
func (d Deps) repoRef(owner, repo string) (string, string, error) {
	if d.SCM == nil {
		return "", "", upstream.NewError(upstream.KindUpstreamFailure, "SCM is not configured", nil)
	}

	if owner == "" {
		owner = d.DefaultOwner
	}

	if repo == "" {
		repo = d.DefaultRepo
	}

	if owner == "" || repo == "" {
		return "", "", upstream.NewError(upstream.KindValidation, "owner and repo are required", nil)
	}

	return owner, repo, nil
}

// parseWindow resolves an optional date window, defaulting to the trailing
// two weeks.
func parseWindow(since, until string) (time.Time, time.Time, error) {
	now := time.Now().UTC()

	start := now.AddDate(0, 0, -defaultWindowDays)
	end := now

	if since != "" {
		parsed, err := parseDate(since)
		if err != nil {
			return start, end, err
		}

		start = parsed
	}

	if until != "" {
		parsed, err := parseDate(until)
		if err != nil {
			return start, end, err
		}

		end = parsed
	}

	if end.Before(start) {
		return start, end, upstream.NewError(upstream.KindValidation, "until precedes since", nil)
	}

	return start, end, nil
}

func parseDate(value string) (time.Time, error) {
	parsed, err := time.Parse(time.RFC3339, value)
	if err == nil {
		return parsed, nil
	}

	parsed, err = time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, upstream.NewError(upstream.KindValidation, "invalid date: "+value, err)
	}

	return parsed, nil
}

func (d Deps) handleGetSprints(ctx context.Context, rawInput json.RawMessage) (any, error) {
	input, err := decode[struct {
		BoardID string `json:"boardId"`
		State   string `json:"state"`
	}](rawInput)
	if err != nil {
		return nil, err
	}

	state := input.State
	if state == "" {
		state = model.SprintStateActive
	}

	return d.Tracker.ListSprints(ctx, input.BoardID, state)
}

func (d Deps) handleGetSprintIssues(ctx context.Context, rawInput json.RawMessage) (any, error) {
	input, err := decode[struct {
		SprintID   string   `json:"sprintId"`
		Fields     []string `json:"fields"`
		MaxResults int      `json:"maxResults"`
	}](rawInput)
	if err != nil {
		return nil, err
	}

	return d.Tracker.ListSprintIssues(ctx, input.SprintID, input.Fields, input.MaxResults)
}

func (d Deps) handleGetIssueDetails(ctx context.Context, rawInput json.RawMessage) (any, error) {
	input, err := decode[struct {
		IssueKey string   `json:"issueKey"`
		Expand   []string `json:"expand"`
	}](rawInput)
	if err != nil {
		return nil, err
	}

	return d.Tracker.GetIssueDetails(ctx, input.IssueKey, input.Expand)
}

func (d Deps) handleSearchIssuesJQL(ctx context.Context, rawInput json.RawMessage) (any, error) {
	input, err := decode[struct {
		JQL        string   `json:"jql"`
		Fields     []string `json:"fields"`
		MaxResults int      `json:"maxResults"`
	}](rawInput)
	if err != nil {
		return nil, err
	}

	return d.Tracker.SearchIssues(ctx, input.JQL, input.Fields, input.MaxResults)
}

type commitWindowInput struct {
	Owner    string `json:"owner"`
	Repo     string `json:"repo"`
	Since    string `json:"since"`
	Until    string `json:"until"`
	MaxPages int    `json:"maxPages"`
}

func (d Deps) handleGetCommits(ctx context.Context, rawInput json.RawMessage) (any, error) {
	input, err := decode[commitWindowInput](rawInput)
	if err != nil {
		return nil, err
	}

	owner, repo, err := d.repoRef(input.Owner, input.Repo)
	if err != nil {
		return nil, err
	}

	since, until, err := parseWindow(input.Since, input.Until)
	if err != nil {
		return nil, err
	}

	return d.SCM.GetCommits(ctx, owner, repo, since, until, input.MaxPages)
}

func (d Deps) handleGetPullRequests(ctx context.Context, rawInput json.RawMessage) (any, error) {
	input, err := decode[commitWindowInput](rawInput)
	if err != nil {
		return nil, err
	}

	owner, repo, err := d.repoRef(input.Owner, input.Repo)
	if err != nil {
		return nil, err
	}

	since, until, err := parseWindow(input.Since, input.Until)
	if err != nil {
		return nil, err
	}

	prs, truncated, err := d.SCM.GetPullRequestsInWindow(ctx, owner, repo, since, until)
	if err != nil {
		return nil, err
	}

	return map[string]any{"pullRequests": prs, "truncated": truncated}, nil
}

func (d Deps) handleSearchCommitsByMessage(ctx context.Context, rawInput json.RawMessage) (any, error) {
	input, err := decode[struct {
		commitWindowInput

		Query string `json:"query"`
	}](rawInput)
	if err != nil {
		return nil, err
	}

	owner, repo, err := d.repoRef(input.Owner, input.Repo)
	if err != nil {
		return nil, err
	}

	since, until, err := parseWindow(input.Since, input.Until)
	if err != nil {
		return nil, err
	}

	return d.SCM.SearchCommitsByMessage(ctx, owner, repo, input.Query, since, until)
}

func (d Deps) handleFindCommitsWithIssueRefs(ctx context.Context, rawInput json.RawMessage) (any, error) {
	input, err := decode[commitWindowInput](rawInput)
	if err != nil {
		return nil, err
	}

	owner, repo, err := d.repoRef(input.Owner, input.Repo)
	if err != nil {
		return nil, err
	}

	since, until, err := parseWindow(input.Since, input.Until)
	if err != nil {
		return nil, err
	}

	return d.SCM.FindCommitsWithIssueRefs(ctx, owner, repo, since, until)
}

type reportInput struct {
	SprintID              string `json:"sprintId"`
	Owner                 string `json:"owner"`
	Repo                  string `json:"repo"`
	IncludeTier1          bool   `json:"includeTier1"`
	IncludeTier2          bool   `json:"includeTier2"`
	IncludeTier3          bool   `json:"includeTier3"`
	IncludeForwardLooking bool   `json:"includeForwardLooking"`
	IncludeEnhancedSCM    bool   `json:"includeEnhancedSCM"`
	NoCache               bool   `json:"noCache"`
}

func (input reportInput) toRequest(deps Deps) report.Request {
	owner := input.Owner
	if owner == "" {
		owner = deps.DefaultOwner
	}

	repo := input.Repo
	if repo == "" {
		repo = deps.DefaultRepo
	}

	return report.Request{
		SprintID:              input.SprintID,
		Owner:                 owner,
		Repo:                  repo,
		IncludeTier1:          input.IncludeTier1,
		IncludeTier2:          input.IncludeTier2,
		IncludeTier3:          input.IncludeTier3,
		IncludeForwardLooking: input.IncludeForwardLooking,
		IncludeEnhancedSCM:    input.IncludeEnhancedSCM,
		NoCache:               input.NoCache,
	}
}

func (d Deps) handleGenerateSprintReport(ctx context.Context, rawInput json.RawMessage) (any, error) {
	input, err := decode[reportInput](rawInput)
	if err != nil {
		return nil, err
	}

	return d.Reports.Generate(ctx, input.toRequest(d))
}

func (d Deps) handleGenerateComprehensive(ctx context.Context, rawInput json.RawMessage) (any, error) {
	input, err := decode[reportInput](rawInput)
	if err != nil {
		return nil, err
	}

	input.IncludeTier1 = true
	input.IncludeTier2 = true
	input.IncludeTier3 = true
	input.IncludeForwardLooking = true
	input.IncludeEnhancedSCM = true

	return d.Reports.Generate(ctx, input.toRequest(d))
}

func (d Deps) handleGetSprintMetrics(ctx context.Context, rawInput json.RawMessage) (any, error) {
	input, err := decode[reportInput](rawInput)
	if err != nil {
		return nil, err
	}

	generated, err := d.Reports.Generate(ctx, input.toRequest(d))
	if err != nil {
		return nil, err
	}

	return generated.Metrics, nil
}

func (d Deps) handleHealthCheck(_ context.Context, _ json.RawMessage) (any, error) {
	health := map[string]any{
		"status":  "ok",
		"version": d.Version,
		"upstreams": map[string]bool{
			"tracker": d.Tracker != nil,
			"scm":     d.SCM != nil,
		},
	}

	if d.Cache != nil {
		stats := d.Cache.Stats()
		health["cache"] = map[string]any{
			"entries": stats.Entries,
			"hitRate": stats.HitRate,
			"errors":  stats.Errors,
		}
	}

	if d.Breaker != nil {
		states := d.Breaker.States()
		health["breakers"] = states

		for _, state := range states {
			if state != "closed" {
				health["status"] = "degraded"
			}
		}
	}

	return health, nil
}

func (d Deps) handleCacheStats(_ context.Context, _ json.RawMessage) (any, error) {
	if d.Cache == nil {
		return nil, upstream.NewError(upstream.KindUpstreamFailure, "cache is not configured", nil)
	}

	return d.Cache.Stats(), nil
}

func (d Deps) handleSearchBoards(ctx context.Context, rawInput json.RawMessage) (any, error) {
	input, err := decode[struct {
		Query string `json:"query"`
		Limit int    `json:"limit"`
	}](rawInput)
	if err != nil {
		return nil, err
	}

	return d.Tracker.ListBoards(ctx, input.Query, input.Limit)
}
