// Package report implements the sprint report aggregation service. One
// request fans out to the tracker and SCM concurrently, joins at a single
// barrier, and computes all metrics locally from the gathered data. Tracker
// failures are fatal; SCM failures degrade the report and surface as
// metadata warnings.
package report

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sprintforge/sprintforge/internal/model"
	"github.com/sprintforge/sprintforge/internal/upstream"
	"github.com/sprintforge/sprintforge/internal/upstream/scm"
	"github.com/sprintforge/sprintforge/internal/upstream/tracker"
	"github.com/sprintforge/sprintforge/pkg/cache"
)

// Warning messages surfaced in report metadata.
const (
	WarnSCMNotConfigured = "SCM not configured"
	WarnSCMCircuitOpen   = "SCM circuit open"
)

// Request selects the sprint and the report sections to produce.
type Request struct {
	SprintID string
	Owner    string
	Repo     string

	IncludeTier1          bool
	IncludeTier2          bool
	IncludeTier3          bool
	IncludeForwardLooking bool
	IncludeEnhancedSCM    bool

	// NoCache skips the report cache read; the generated report is still
	// written back for subsequent callers.
	NoCache bool
}

// flagsHash encodes the section flags into the report cache key so distinct
// shapes never share an entry.
func (r Request) flagsHash() string {
	bits := 0

	flags := []bool{r.IncludeTier1, r.IncludeTier2, r.IncludeTier3, r.IncludeForwardLooking, r.IncludeEnhancedSCM}
	for i, set := range flags {
		if set {
			bits |= 1 << i
		}
	}

	return strconv.FormatInt(int64(bits), 16)
}

// Options configures a Service. Tracker is required; SCM and Cache may be
// nil, disabling their sections.
type Options struct {
	Tracker *tracker.Client
	SCM     *scm.Client
	Cache   *cache.Manager
	Logger  *slog.Logger

	Rules      *TierRules
	EnhanceCap int
	Version    string
}

// Service generates sprint reports.
type Service struct {
	tracker *tracker.Client
	scm     *scm.Client
	cache   *cache.Manager
	logger  *slog.Logger

	rules      TierRules
	enhanceCap int
	version    string
}

// NewService creates a report service from opts.
func NewService(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	rules := DefaultTierRules()
	if opts.Rules != nil {
		rules = *opts.Rules
	}

	enhanceCap := opts.EnhanceCap
	if enhanceCap <= 0 {
		enhanceCap = scm.DefaultEnhanceCap
	}

	return &Service{
		tracker:    opts.Tracker,
		scm:        opts.SCM,
		cache:      opts.Cache,
		logger:     logger,
		rules:      rules,
		enhanceCap: enhanceCap,
		version:    opts.Version,
	}
}

// Generate produces the sprint report for req. The sprint descriptor fetch
// and the issue list are fatal on failure; every SCM failure and historical
// lookup failure degrades to a metadata warning instead.
func (s *Service) Generate(ctx context.Context, req Request) (*model.SprintReport, error) {
	if req.SprintID == "" {
		return nil, upstream.NewError(upstream.KindValidation, "sprintId is required", nil)
	}

	cacheKey := fmt.Sprintf("report:%s:%s", req.SprintID, req.flagsHash())

	if !req.NoCache && s.cache != nil {
		if val, ok := s.cache.Get(ctx, cacheKey); ok {
			var cached model.SprintReport
			if json.Unmarshal(val, &cached) == nil {
				return &cached, nil
			}
		}
	}

	started := time.Now()
	hitsBefore := s.cacheHits()

	sprint, err := s.tracker.GetSprint(ctx, req.SprintID)
	if err != nil {
		return nil, err
	}

	var (
		warnMu   sync.Mutex
		warnings []string
	)

	warn := func(msg string) {
		warnMu.Lock()
		warnings = append(warnings, msg)
		warnMu.Unlock()
	}

	scmConfigured := s.scm != nil && req.Owner != "" && req.Repo != ""
	if !scmConfigured {
		warn(WarnSCMNotConfigured)
	}

	since, until := sprintWindow(*sprint)

	var (
		issues       []model.Issue
		commits      []model.Commit
		prs          []model.PullRequest
		history      model.VelocityHistory
		teamResolved map[string]int
		burndown     []model.BurndownPoint
	)

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		fetched, fetchErr := s.tracker.ListSprintIssues(groupCtx, req.SprintID, nil, 0)
		if fetchErr != nil {
			return fetchErr
		}

		issues = fetched

		return nil
	})

	if scmConfigured {
		group.Go(func() error {
			fetched, fetchErr := s.scm.GetCommits(groupCtx, req.Owner, req.Repo, since, until, 0)
			if fetchErr != nil {
				warn(scmWarning("commit history unavailable", fetchErr))

				return nil
			}

			commits = fetched

			return nil
		})

		group.Go(func() error {
			fetched, truncated, fetchErr := s.scm.GetPullRequestsInWindow(groupCtx, req.Owner, req.Repo, since, until)
			if fetchErr != nil {
				warn(scmWarning("pull request history unavailable", fetchErr))

				return nil
			}

			if truncated {
				warn(fmt.Sprintf("pull request window truncated at %d", scm.MaxWindowPRs))
			}

			prs = fetched

			return nil
		})
	}

	group.Go(func() error {
		hist, resolved, histErr := s.historicalVelocity(groupCtx, sprint.BoardID, req.SprintID)
		if histErr != nil {
			warn("velocity history unavailable: " + string(upstream.KindOf(histErr)))

			return nil
		}

		history = hist
		teamResolved = resolved

		return nil
	})

	group.Go(func() error {
		points, burnErr := s.computeBurndown(groupCtx, *sprint)
		if burnErr != nil {
			warn("burndown unavailable: " + string(upstream.KindOf(burnErr)))

			return nil
		}

		burndown = points

		return nil
	})

	err = group.Wait()
	if err != nil {
		return nil, err
	}

	// Enhancement is the last upstream touch; everything after computes
	// locally from gathered data.
	if req.IncludeEnhancedSCM && scmConfigured && len(prs) > 0 {
		prs = s.scm.EnhancePullRequests(ctx, req.Owner, req.Repo, prs, s.enhanceCap)
	}

	report := &model.SprintReport{
		Sprint:       *sprint,
		Metrics:      computeMetrics(*sprint, issues),
		Commits:      commits,
		PullRequests: prs,
		Velocity:     history,
		Burndown:     burndown,
		IssueIndex:   buildIssueIndex(commits, prs),
	}

	s.fillTiers(report, issues, req)

	if req.IncludeEnhancedSCM && scmConfigured {
		report.EnhancedSCM = enhancedSCMBlock(commits, prs)
	}

	if req.IncludeForwardLooking {
		report.Forward = forwardLooking(history, issues, teamResolved)
	}

	report.Metadata = model.ReportMetadata{
		GeneratedAt:       time.Now().UTC(),
		GeneratorVersion:  s.version,
		CacheHits:         s.cacheHits() - hitsBefore,
		UpstreamLatencyMs: time.Since(started).Milliseconds(),
		Warnings:          dedupe(warnings),
	}

	s.storeReport(ctx, cacheKey, sprint.State, report)

	return report, nil
}

// fillTiers classifies every issue and populates the requested tier slices.
func (s *Service) fillTiers(report *model.SprintReport, issues []model.Issue, req Request) {
	for _, issue := range issues {
		issue.Tier = s.rules.Classify(issue)

		switch {
		case issue.Tier == TierCustomerImpacting && req.IncludeTier1:
			report.Tier1Issues = append(report.Tier1Issues, issue)
		case issue.Tier == TierInternal && req.IncludeTier2:
			report.Tier2Issues = append(report.Tier2Issues, issue)
		case issue.Tier == TierTechnicalDebt && req.IncludeTier3:
			report.Tier3Issues = append(report.Tier3Issues, issue)
		}
	}
}

func (s *Service) storeReport(ctx context.Context, key, state string, report *model.SprintReport) {
	if s.cache == nil {
		return
	}

	encoded, err := json.Marshal(report)
	if err != nil {
		s.logger.Warn("report cache store skipped", "key", key, "error", err)

		return
	}

	err = s.cache.Set(ctx, key, encoded, model.TTLForState(state))
	if err != nil {
		s.logger.Warn("report cache store skipped", "key", key, "error", err)
	}
}

func (s *Service) cacheHits() int64 {
	if s.cache == nil {
		return 0
	}

	return s.cache.Stats().Hits
}

// scmWarning maps an SCM failure onto a stable warning message. Circuit
// isolation gets its own message so operators can tell throttling from
// outage.
func scmWarning(what string, err error) string {
	if upstream.KindOf(err) == upstream.KindCircuitOpen {
		return WarnSCMCircuitOpen
	}

	return what + ": " + string(upstream.KindOf(err))
}

func dedupe(values []string) []string {
	if len(values) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(values))
	unique := make([]string, 0, len(values))

	for _, value := range values {
		if _, ok := seen[value]; ok {
			continue
		}

		seen[value] = struct{}{}
		unique = append(unique, value)
	}

	return unique
}
