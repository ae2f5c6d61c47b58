package report

import (
	"github.com/sprintforge/sprintforge/internal/model"
)

// buildIssueIndex inverts the commit and PR issue references into a map
// keyed by issue key. Keys referenced by no activity are absent.
func buildIssueIndex(commits []model.Commit, prs []model.PullRequest) map[string]model.IssueActivity {
	if len(commits) == 0 && len(prs) == 0 {
		return nil
	}

	index := map[string]model.IssueActivity{}

	for _, commit := range commits {
		for _, key := range commit.IssueKeys {
			activity := index[key]
			activity.Commits = append(activity.Commits, commit.SHA)
			index[key] = activity
		}
	}

	for _, pr := range prs {
		for _, key := range pr.IssueKeys {
			activity := index[key]
			activity.PullRequests = append(activity.PullRequests, pr.Number)
			index[key] = activity
		}
	}

	return index
}

// traceability is the fraction of PRs referencing at least one issue key.
func traceability(prs []model.PullRequest) float64 {
	if len(prs) == 0 {
		return 0
	}

	referenced := 0
	for _, pr := range prs {
		if len(pr.IssueKeys) > 0 {
			referenced++
		}
	}

	return float64(referenced) / float64(len(prs))
}

// enhancedSCMBlock summarises commit, PR, code-change, and review activity
// for the sprint window.
func enhancedSCMBlock(commits []model.Commit, prs []model.PullRequest) *model.EnhancedSCM {
	block := &model.EnhancedSCM{
		CommitActivity: model.CommitActivity{ByAuthor: map[string]int{}},
		Traceability:   traceability(prs),
	}

	for _, commit := range commits {
		block.CommitActivity.TotalCommits++

		author := commit.Author.Login
		if author == "" {
			author = commit.Author.Name
		}
		block.CommitActivity.ByAuthor[author]++

		if len(commit.IssueKeys) > 0 {
			block.CommitActivity.WithIssueRef++
		}
	}

	for _, pr := range prs {
		block.PullRequestStats.TotalPRs++

		switch pr.State {
		case model.PRStateMerged:
			block.PullRequestStats.Merged++
		case model.PRStateOpen:
			block.PullRequestStats.Open++
		default:
			block.PullRequestStats.Closed++
		}

		block.CodeChanges.Additions += pr.Additions
		block.CodeChanges.Deletions += pr.Deletions
		block.CodeChanges.FilesChanged += pr.FilesChanged

		if pr.Enhanced {
			block.ReviewStats.EnhancedPRs++
			block.ReviewStats.TotalReviews += len(pr.Reviews)
		}
	}

	if block.PullRequestStats.TotalPRs > 0 {
		block.PullRequestStats.MergeRate =
			float64(block.PullRequestStats.Merged) / float64(block.PullRequestStats.TotalPRs)
	}

	if block.ReviewStats.EnhancedPRs > 0 {
		block.ReviewStats.AvgReviewsPerPR =
			float64(block.ReviewStats.TotalReviews) / float64(block.ReviewStats.EnhancedPRs)
	}

	return block
}
