package report

import (
	"strings"
	"time"

	"github.com/sprintforge/sprintforge/internal/model"
	"github.com/sprintforge/sprintforge/pkg/mathutil"
)

// completedStatuses are the tracker statuses counted as done, compared
// case-insensitively.
var completedStatuses = map[string]struct{}{
	"done":     {},
	"closed":   {},
	"resolved": {},
}

// inProgressStatus marks the start of an issue's cycle time.
const inProgressStatus = "in progress"

func isCompleted(status string) bool {
	_, ok := completedStatuses[strings.ToLower(status)]

	return ok
}

// unassignedBucket groups issues without an assignee in distributions.
const unassignedBucket = "unassigned"

// computeMetrics derives the deterministic per-sprint numbers from the
// issue set. All rates are in [0, 1]; empty input yields zeros.
func computeMetrics(sprint model.Sprint, issues []model.Issue) model.SprintMetrics {
	metrics := model.SprintMetrics{
		ByStatus:   map[string]int{},
		ByType:     map[string]int{},
		ByPriority: map[string]int{},
		ByAssignee: map[string]int{},
	}

	since, until := sprintWindow(sprint)

	var (
		cycleHours   []float64
		bugsCreated  int
		bugsResolved int
	)

	for _, issue := range issues {
		metrics.TotalIssues++
		metrics.TotalStoryPoints += issue.StoryPoints

		metrics.ByStatus[issue.Status]++
		metrics.ByType[issue.IssueType]++
		metrics.ByPriority[issue.Priority]++

		assignee := issue.Assignee
		if assignee == "" {
			assignee = unassignedBucket
		}
		metrics.ByAssignee[assignee]++

		if isCompleted(issue.Status) {
			metrics.CompletedIssues++
			metrics.CompletedStoryPoints += issue.StoryPoints
		}

		if issue.Resolved != nil && inWindow(*issue.Resolved, since, until) {
			metrics.Velocity += issue.StoryPoints
		}

		if hours, ok := cycleTimeHours(issue); ok {
			cycleHours = append(cycleHours, hours)
		}

		if issue.IssueType == "Bug" {
			if inWindow(issue.Created, since, until) {
				bugsCreated++
			}

			if issue.Resolved != nil && inWindow(*issue.Resolved, since, until) {
				bugsResolved++
			}
		}
	}

	if metrics.TotalIssues > 0 {
		metrics.CompletionRate = float64(metrics.CompletedIssues) / float64(metrics.TotalIssues)
	}

	if metrics.TotalStoryPoints > 0 {
		metrics.VelocityPercentage = mathutil.Clamp01(metrics.Velocity / metrics.TotalStoryPoints)
	}

	if bugsCreated > 0 {
		metrics.BugResolutionRate = mathutil.Clamp01(float64(bugsResolved) / float64(bugsCreated))
	}

	if len(cycleHours) > 0 {
		metrics.CycleTime = &model.CycleTimeStats{
			MedianHours:  mathutil.Median(cycleHours),
			P90Hours:     mathutil.Percentile(cycleHours, 90),
			AverageHours: mathutil.Mean(cycleHours),
			Samples:      len(cycleHours),
		}
	}

	return metrics
}

// cycleTimeHours measures resolution minus the first in-progress transition.
// Issues without a resolution or changelog contribute no sample.
func cycleTimeHours(issue model.Issue) (float64, bool) {
	if issue.Resolved == nil {
		return 0, false
	}

	for _, transition := range issue.Changelog {
		if strings.ToLower(transition.To) != inProgressStatus {
			continue
		}

		elapsed := issue.Resolved.Sub(transition.At)
		if elapsed < 0 {
			return 0, false
		}

		return elapsed.Hours(), true
	}

	return 0, false
}

func inWindow(t, since, until time.Time) bool {
	return !t.Before(since) && !t.After(until)
}

// sprintWindow resolves the sprint's date bounds. Sprints without dates
// (some future sprints) fall back to the trailing two weeks.
func sprintWindow(sprint model.Sprint) (time.Time, time.Time) {
	if sprint.StartDate != nil && sprint.EndDate != nil {
		return *sprint.StartDate, *sprint.EndDate
	}

	until := time.Now().UTC()

	return until.AddDate(0, 0, -14), until
}
