package scm

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sprintforge/sprintforge/internal/model"
)

// Enhancement limits. Per-PR detail costs three upstream calls, so only the
// most relevant PRs in a window are enhanced, in small parallel batches with
// a courtesy pause between them.
const (
	// DefaultEnhanceCap bounds how many PRs get per-PR detail calls.
	DefaultEnhanceCap = 15

	enhanceBatchSize  = 5
	enhanceBatchPause = 100 * time.Millisecond
)

// EnhancePullRequests replaces up to cap entries of prs with their enhanced
// form (reviews, commit counts, file-change totals). A PR whose enhancement
// fails keeps its basic form; the failure is logged and never aborts the
// batch. The input slice is modified in place and returned.
func (c *Client) EnhancePullRequests(ctx context.Context, owner, repo string, prs []model.PullRequest, limit int) []model.PullRequest {
	if limit <= 0 {
		limit = DefaultEnhanceCap
	}

	if limit > len(prs) {
		limit = len(prs)
	}

	batch := c.cfg.EnhanceBatch
	if batch <= 0 {
		batch = enhanceBatchSize
	}

	for start := 0; start < limit; start += batch {
		end := start + batch
		if end > limit {
			end = limit
		}

		group, groupCtx := errgroup.WithContext(ctx)

		for i := start; i < end; i++ {
			group.Go(func() error {
				enhanced, err := c.GetEnhancedPullRequest(groupCtx, owner, repo, prs[i].Number)
				if err != nil {
					c.logger.Warn("pull request enhancement failed, keeping basic form",
						"repo", owner+"/"+repo, "number", prs[i].Number, "error", err)

					return nil
				}

				prs[i] = *enhanced

				return nil
			})
		}

		// Handlers never return errors; Wait is a join point.
		_ = group.Wait()

		if end < limit {
			select {
			case <-time.After(enhanceBatchPause):
			case <-ctx.Done():
				return prs
			}
		}
	}

	return prs
}
