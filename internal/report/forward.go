package report

import (
	"fmt"
	"strings"

	"github.com/sprintforge/sprintforge/internal/model"
	"github.com/sprintforge/sprintforge/pkg/mathutil"
)

// Forecast confidence thresholds on the coefficient of variation
// (stddev / mean) of the velocity history.
const (
	highConfidenceCV   = 0.15
	mediumConfidenceCV = 0.30

	// minConfidenceSamples is the history size below which confidence never
	// exceeds medium.
	minConfidenceSamples = 3
)

// complexityPointThreshold marks an incomplete issue as carried over for
// complexity reasons.
const complexityPointThreshold = 8

// scopeChangeLabels mark issues whose scope shifted mid-sprint.
var scopeChangeLabels = map[string]struct{}{
	"scope-change": {},
	"descoped":     {},
}

// blockedLabel marks an issue waiting on an external dependency.
const blockedLabel = "blocked"

// forwardLooking builds the planning block: a weighted velocity forecast,
// carryover analysis of incomplete issues, and threshold-driven
// recommendations. teamResolved sizes the capacity estimate.
func forwardLooking(history model.VelocityHistory, issues []model.Issue, teamResolved map[string]int) *model.ForwardLooking {
	velocities := make([]float64, 0, len(history.Sprints))
	for _, sprint := range history.Sprints {
		velocities = append(velocities, sprint.Velocity)
	}

	forward := &model.ForwardLooking{
		ForecastedVelocity: forecastVelocity(velocities),
		ConfidenceLevel:    forecastConfidence(velocities),
	}

	var carryoverPoints float64

	dependencyCount := 0

	for _, issue := range issues {
		if isCompleted(issue.Status) {
			continue
		}

		item := model.CarryoverItem{
			Key:         issue.Key,
			Summary:     issue.Summary,
			StoryPoints: issue.StoryPoints,
			Reason:      carryoverReason(issue),
		}

		if item.Reason == model.CarryoverDependencies {
			dependencyCount++
		}

		carryoverPoints += issue.StoryPoints
		forward.CarryoverItems = append(forward.CarryoverItems, item)
	}

	forward.AvailableCapacity = forward.ForecastedVelocity - carryoverPoints
	if forward.AvailableCapacity < 0 {
		forward.AvailableCapacity = 0
	}

	forward.Recommendations = recommendations(forward, carryoverPoints, dependencyCount, teamResolved)

	return forward
}

// forecastVelocity is the weighted mean of the velocity history with the
// newest sprint weighted highest.
func forecastVelocity(velocities []float64) float64 {
	if len(velocities) == 0 {
		return 0
	}

	weights := make([]float64, len(velocities))
	for i := range weights {
		weights[i] = float64(i + 1)
	}

	return mathutil.WeightedMean(velocities, weights)
}

func forecastConfidence(velocities []float64) string {
	mean := mathutil.Mean(velocities)
	if mean == 0 {
		return model.ConfidenceLow
	}

	cv := mathutil.StdDev(velocities) / mean

	switch {
	case cv < highConfidenceCV && len(velocities) >= minConfidenceSamples:
		return model.ConfidenceHigh
	case cv < mediumConfidenceCV:
		return model.ConfidenceMedium
	default:
		return model.ConfidenceLow
	}
}

// carryoverReason applies the heuristic precedence: oversized issues are
// complexity, blocked issues are dependencies, relabelled scope is scope,
// anything else is unknown.
func carryoverReason(issue model.Issue) string {
	if issue.StoryPoints > complexityPointThreshold {
		return model.CarryoverComplexity
	}

	if len(issue.BlockedBy) > 0 {
		return model.CarryoverDependencies
	}

	for _, label := range issue.Labels {
		lowered := strings.ToLower(label)

		if lowered == blockedLabel {
			return model.CarryoverDependencies
		}

		if _, ok := scopeChangeLabels[lowered]; ok {
			return model.CarryoverScope
		}
	}

	return model.CarryoverUnknown
}

func recommendations(forward *model.ForwardLooking, carryoverPoints float64, dependencyCount int, teamResolved map[string]int) []string {
	var recs []string

	if carryoverPoints > 0 {
		recs = append(recs, fmt.Sprintf("Plan for %.0f carryover points before taking new work", carryoverPoints))
	}

	if dependencyCount > 0 {
		recs = append(recs, fmt.Sprintf("Resolve %d blocked dependencies first", dependencyCount))
	}

	if forward.ForecastedVelocity > 0 && carryoverPoints > forward.ForecastedVelocity/2 {
		recs = append(recs, "Carryover exceeds half the forecasted velocity; reduce the new commitment")
	}

	if forward.ConfidenceLevel == model.ConfidenceLow {
		recs = append(recs, "Velocity history is volatile; treat the forecast as indicative only")
	}

	if len(teamResolved) > 0 {
		recs = append(recs, fmt.Sprintf("Last sprint %d team members resolved issues; balance assignments accordingly", len(teamResolved)))
	}

	return recs
}
