package report

import (
	"strings"

	"github.com/sprintforge/sprintforge/internal/model"
)

// Business-impact tiers.
const (
	TierCustomerImpacting = 1
	TierInternal          = 2
	TierTechnicalDebt     = 3
)

// TierRules classifies issues into business-impact tiers. Rule precedence
// is labels, then components, then issue type; within a rule the issue's
// own ordering decides ties.
type TierRules struct {
	LabelTiers     map[string]int
	ComponentTiers map[string]int
}

// DefaultTierRules returns the stock label rule set. Component rules are
// deployment-specific and default to empty.
func DefaultTierRules() TierRules {
	return TierRules{
		LabelTiers: map[string]int{
			"customer-impacting": TierCustomerImpacting,
			"internal":           TierInternal,
			"tech-debt":          TierTechnicalDebt,
			"refactor":           TierTechnicalDebt,
		},
		ComponentTiers: map[string]int{},
	}
}

// Classify returns the issue's tier, or 0 when no rule matches.
func (r TierRules) Classify(issue model.Issue) int {
	for _, label := range issue.Labels {
		if tier, ok := r.LabelTiers[strings.ToLower(label)]; ok {
			return tier
		}
	}

	for _, component := range issue.Components {
		if tier, ok := r.ComponentTiers[strings.ToLower(component)]; ok {
			return tier
		}
	}

	switch {
	case issue.IssueType == "Bug" && isHighPriority(issue.Priority):
		return TierCustomerImpacting
	case issue.IssueType == "Task":
		return TierInternal
	case issue.IssueType == "Sub-task":
		return TierTechnicalDebt
	}

	return 0
}

func isHighPriority(priority string) bool {
	switch strings.ToLower(priority) {
	case "highest", "high", "critical", "blocker":
		return true
	}

	return false
}
