package model

import (
	"regexp"
	"strings"
	"time"
)

// issueKeyPattern matches canonical tracker issue keys such as PROJ-123.
// The project prefix must be uppercase; lowercase variants are not keys.
var issueKeyPattern = regexp.MustCompile(`[A-Z][A-Z0-9]+-\d+`)

// ExtractIssueKeys returns all issue keys found in text, deduplicated while
// preserving first-occurrence order. It is idempotent: extracting from the
// joined result yields the same set.
func ExtractIssueKeys(text string) []string {
	matches := issueKeyPattern.FindAllString(text, -1)
	if len(matches) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(matches))
	keys := make([]string, 0, len(matches))

	for _, m := range matches {
		if _, dup := seen[m]; dup {
			continue
		}

		seen[m] = struct{}{}
		keys = append(keys, m)
	}

	return keys
}

// NormalizeIssueKey canonicalises a key to the PROJ-NUM form with an
// uppercase project prefix. Whitespace is trimmed; the numeric part is kept
// as-is.
func NormalizeIssueKey(key string) string {
	return strings.ToUpper(strings.TrimSpace(key))
}

// Smart TTL bounds by sprint lifecycle (spec'd caching conventions).
const (
	TTLActiveSprint = 5 * time.Minute
	TTLClosedSprint = 30 * time.Minute
	TTLFutureSprint = 15 * time.Minute
)

// TTLForState returns the conventional cache TTL for data belonging to a
// sprint in the given state. Closed sprint data is immutable and may be
// cached long; active data mutates and must stay fresh.
func TTLForState(state string) time.Duration {
	switch state {
	case SprintStateClosed:
		return TTLClosedSprint
	case SprintStateFuture:
		return TTLFutureSprint
	default:
		return TTLActiveSprint
	}
}
