package model

import "time"

// SprintMetrics are the deterministic per-sprint computations.
// CompletedIssues never exceeds TotalIssues; CompletionRate is in [0, 1].
type SprintMetrics struct {
	TotalIssues          int             `json:"totalIssues"`
	CompletedIssues      int             `json:"completedIssues"`
	CompletionRate       float64         `json:"completionRate"`
	TotalStoryPoints     float64         `json:"totalStoryPoints"`
	CompletedStoryPoints float64         `json:"completedStoryPoints"`
	Velocity             float64         `json:"velocity"`
	VelocityPercentage   float64         `json:"velocityPercentage"`
	ByStatus             map[string]int  `json:"byStatus"`
	ByType               map[string]int  `json:"byType"`
	ByPriority           map[string]int  `json:"byPriority"`
	ByAssignee           map[string]int  `json:"byAssignee"`
	CycleTime            *CycleTimeStats `json:"cycleTime,omitempty"`
	BugResolutionRate    float64         `json:"bugResolutionRate"`
}

// CycleTimeStats summarises issue cycle times (in-progress to resolution).
type CycleTimeStats struct {
	MedianHours  float64 `json:"medianHours"`
	P90Hours     float64 `json:"p90Hours"`
	AverageHours float64 `json:"averageHours"`
	Samples      int     `json:"samples"`
}

// VelocitySprint is one sprint's contribution to the velocity history.
type VelocitySprint struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Commitment float64 `json:"commitment"`
	Completed  float64 `json:"completed"`
	Velocity   float64 `json:"velocity"`
}

// Velocity trend values.
const (
	TrendIncreasing = "increasing"
	TrendDecreasing = "decreasing"
	TrendStable     = "stable"
)

// VelocityHistory aggregates velocity across recent sprints.
type VelocityHistory struct {
	Sprints []VelocitySprint `json:"sprints"`
	Average float64          `json:"average"`
	Trend   string           `json:"trend"`
}

// BurndownPoint is one sample of the remaining-work series.
type BurndownPoint struct {
	Date      time.Time `json:"date"`
	Remaining float64   `json:"remaining"`
}

// CommitActivity summarises commits in the sprint window.
type CommitActivity struct {
	TotalCommits int            `json:"totalCommits"`
	ByAuthor     map[string]int `json:"byAuthor"`
	WithIssueRef int            `json:"withIssueRef"`
}

// PullRequestStats summarises pull requests in the sprint window.
type PullRequestStats struct {
	TotalPRs  int     `json:"totalPRs"`
	Merged    int     `json:"merged"`
	Open      int     `json:"open"`
	Closed    int     `json:"closed"`
	MergeRate float64 `json:"mergeRate"`
}

// CodeChanges totals line and file deltas across PRs.
type CodeChanges struct {
	Additions    int `json:"additions"`
	Deletions    int `json:"deletions"`
	FilesChanged int `json:"filesChanged"`
}

// ReviewStats summarises review activity across enhanced PRs.
type ReviewStats struct {
	TotalReviews    int     `json:"totalReviews"`
	AvgReviewsPerPR float64 `json:"avgReviewsPerPR"`
	EnhancedPRs     int     `json:"enhancedPRs"`
}

// EnhancedSCM is the optional source-control analytics block.
// Traceability is the fraction of PRs carrying at least one issue key.
type EnhancedSCM struct {
	CommitActivity   CommitActivity   `json:"commitActivity"`
	PullRequestStats PullRequestStats `json:"pullRequestStats"`
	CodeChanges      CodeChanges      `json:"codeChanges"`
	ReviewStats      ReviewStats      `json:"reviewStats"`
	Traceability     float64          `json:"traceability"`
}

// Carryover reasons, in heuristic precedence order.
const (
	CarryoverComplexity   = "complexity"
	CarryoverDependencies = "dependencies"
	CarryoverScope        = "scope"
	CarryoverUnknown      = "unknown"
)

// CarryoverItem is an incomplete issue annotated with a heuristic reason.
type CarryoverItem struct {
	Key         string  `json:"key"`
	Summary     string  `json:"summary"`
	StoryPoints float64 `json:"storyPoints,omitempty"`
	Reason      string  `json:"reason"`
}

// Confidence levels for the velocity forecast.
const (
	ConfidenceLow    = "low"
	ConfidenceMedium = "medium"
	ConfidenceHigh   = "high"
)

// ForwardLooking is the optional planning block.
type ForwardLooking struct {
	ForecastedVelocity float64         `json:"forecastedVelocity"`
	ConfidenceLevel    string          `json:"confidenceLevel"`
	AvailableCapacity  float64         `json:"availableCapacity"`
	CarryoverItems     []CarryoverItem `json:"carryoverItems"`
	Recommendations    []string        `json:"recommendations"`
}

// IssueActivity links an issue key to the commits and PRs referencing it.
type IssueActivity struct {
	Commits      []string `json:"commits"`
	PullRequests []int    `json:"pullRequests"`
}

// ReportMetadata carries provenance and diagnostics for a generated report.
type ReportMetadata struct {
	GeneratedAt       time.Time `json:"generatedAt"`
	GeneratorVersion  string    `json:"generatorVersion"`
	CacheHits         int64     `json:"cacheHits"`
	UpstreamLatencyMs int64     `json:"upstreamLatencyMs"`
	Warnings          []string  `json:"warnings"`
}

// SprintReport is the aggregation output.
type SprintReport struct {
	Sprint       Sprint                   `json:"sprint"`
	Metrics      SprintMetrics            `json:"metrics"`
	Tier1Issues  []Issue                  `json:"tier1Issues,omitempty"`
	Tier2Issues  []Issue                  `json:"tier2Issues,omitempty"`
	Tier3Issues  []Issue                  `json:"tier3Issues,omitempty"`
	Commits      []Commit                 `json:"commits"`
	PullRequests []PullRequest            `json:"pullRequests"`
	Velocity     VelocityHistory          `json:"velocity"`
	Burndown     []BurndownPoint          `json:"burndown,omitempty"`
	EnhancedSCM  *EnhancedSCM             `json:"enhancedGitHub,omitempty"`
	Forward      *ForwardLooking          `json:"forwardLooking,omitempty"`
	IssueIndex   map[string]IssueActivity `json:"issueIndex,omitempty"`
	Metadata     ReportMetadata           `json:"metadata"`
}
