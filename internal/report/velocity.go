package report

import (
	"context"
	"sort"

	"github.com/sprintforge/sprintforge/internal/model"
	"github.com/sprintforge/sprintforge/pkg/mathutil"
)

// velocityHistorySprints is how many closed sprints feed the velocity
// history and forecast.
const velocityHistorySprints = 5

// trendBand is the slope threshold, as a fraction of the mean velocity,
// separating a stable trend from a directional one.
const trendBand = 0.05

// historicalVelocity builds the velocity history from the board's most
// recent closed sprints, excluding the sprint under report. It also returns
// resolved-issue counts per assignee for the latest closed sprint, the team
// performance input to the forward-looking block.
func (s *Service) historicalVelocity(ctx context.Context, boardID, excludeSprintID string) (model.VelocityHistory, map[string]int, error) {
	history := model.VelocityHistory{Trend: model.TrendStable}

	if boardID == "" || boardID == "0" {
		return history, nil, nil
	}

	closed, err := s.tracker.ListSprints(ctx, boardID, model.SprintStateClosed)
	if err != nil {
		return history, nil, err
	}

	// Oldest first by end date so the trend slope reads chronologically.
	sort.SliceStable(closed, func(i, j int) bool {
		left, right := closed[i].EndDate, closed[j].EndDate
		if left == nil || right == nil {
			return left == nil
		}

		return left.Before(*right)
	})

	recent := make([]model.Sprint, 0, velocityHistorySprints)
	for _, sprint := range closed {
		if sprint.ID == excludeSprintID {
			continue
		}

		recent = append(recent, sprint)
	}

	if len(recent) > velocityHistorySprints {
		recent = recent[len(recent)-velocityHistorySprints:]
	}

	var teamResolved map[string]int

	for i, sprint := range recent {
		issues, err := s.tracker.ListSprintIssues(ctx, sprint.ID, nil, 0)
		if err != nil {
			return history, nil, err
		}

		entry := model.VelocitySprint{ID: sprint.ID, Name: sprint.Name}

		for _, issue := range issues {
			entry.Commitment += issue.StoryPoints

			if isCompleted(issue.Status) {
				entry.Completed += issue.StoryPoints
			}
		}

		entry.Velocity = entry.Completed
		history.Sprints = append(history.Sprints, entry)

		if i == len(recent)-1 {
			teamResolved = resolvedByAssignee(issues)
		}
	}

	velocities := make([]float64, 0, len(history.Sprints))
	for _, entry := range history.Sprints {
		velocities = append(velocities, entry.Velocity)
	}

	history.Average = mathutil.Mean(velocities)
	history.Trend = velocityTrend(velocities)

	return history, teamResolved, nil
}

// velocityTrend labels the direction of the velocity series. The slope of a
// linear fit is compared against a band of the mean.
func velocityTrend(velocities []float64) string {
	if len(velocities) < 2 {
		return model.TrendStable
	}

	mean := mathutil.Mean(velocities)
	if mean == 0 {
		return model.TrendStable
	}

	slope := mathutil.LinearSlope(velocities)

	switch {
	case slope > trendBand*mean:
		return model.TrendIncreasing
	case slope < -trendBand*mean:
		return model.TrendDecreasing
	default:
		return model.TrendStable
	}
}

func resolvedByAssignee(issues []model.Issue) map[string]int {
	resolved := map[string]int{}

	for _, issue := range issues {
		if !isCompleted(issue.Status) {
			continue
		}

		assignee := issue.Assignee
		if assignee == "" {
			assignee = unassignedBucket
		}

		resolved[assignee]++
	}

	return resolved
}
