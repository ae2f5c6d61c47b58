package report

import (
	"context"
	"sort"

	"github.com/sprintforge/sprintforge/internal/model"
)

// burndownIssueCap bounds per-issue changelog fetches for the burndown
// series. Sprints beyond the cap get a series from the sampled subset.
const burndownIssueCap = 50

// computeBurndown derives the remaining-work series for a sprint from issue
// status changelogs. The sprint issue list rides the shared request cache,
// so running concurrently with the main issue fetch costs one upstream
// call. Sprints without dates or without any changelog data yield no series.
func (s *Service) computeBurndown(ctx context.Context, sprint model.Sprint) ([]model.BurndownPoint, error) {
	if sprint.StartDate == nil || sprint.EndDate == nil {
		return nil, nil
	}

	issues, err := s.tracker.ListSprintIssues(ctx, sprint.ID, nil, 0)
	if err != nil {
		return nil, err
	}

	type completion struct {
		at     model.Transition
		points float64
	}

	var (
		total       float64
		completions []completion
		sawLog      bool
	)

	for i, issue := range issues {
		total += issue.StoryPoints

		if i >= burndownIssueCap {
			continue
		}

		log := issue.Changelog
		if len(log) == 0 {
			detailed, detailErr := s.tracker.GetIssueDetails(ctx, issue.Key, []string{"changelog"})
			if detailErr != nil {
				s.logger.Debug("burndown changelog fetch skipped",
					"issue", issue.Key, "error", detailErr)

				continue
			}

			log = detailed.Changelog
		}

		if len(log) > 0 {
			sawLog = true
		}

		for _, transition := range log {
			if !isCompleted(transition.To) {
				continue
			}

			if inWindow(transition.At, *sprint.StartDate, *sprint.EndDate) {
				completions = append(completions, completion{at: transition, points: issue.StoryPoints})
			}

			break
		}
	}

	if !sawLog {
		return nil, nil
	}

	sort.Slice(completions, func(i, j int) bool {
		return completions[i].at.At.Before(completions[j].at.At)
	})

	points := []model.BurndownPoint{{Date: *sprint.StartDate, Remaining: total}}

	remaining := total
	for _, done := range completions {
		remaining -= done.points
		if remaining < 0 {
			remaining = 0
		}

		points = append(points, model.BurndownPoint{Date: done.at.At, Remaining: remaining})
	}

	points = append(points, model.BurndownPoint{Date: *sprint.EndDate, Remaining: remaining})

	return points, nil
}
