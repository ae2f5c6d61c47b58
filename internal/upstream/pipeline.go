package upstream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/sprintforge/sprintforge/pkg/cache"
	"github.com/sprintforge/sprintforge/pkg/resilience"
)

// Pipeline defaults.
const (
	DefaultRequestDeadline = 30 * time.Second
	DefaultMaxAttempts     = 3
	DefaultBaseDelay       = time.Second
	DefaultMaxDelay        = 30 * time.Second

	// backoffMultiplier doubles the delay per attempt.
	backoffMultiplier = 2

	// jitterFraction is the share of the delay randomized to de-sync retries.
	jitterFraction = 0.25

	// maxResponseBytes bounds upstream response bodies (16 MB).
	maxResponseBytes = 16 << 20
)

// RetryConfig holds the backoff policy for retriable failures.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}

	if c.BaseDelay <= 0 {
		c.BaseDelay = DefaultBaseDelay
	}

	if c.MaxDelay <= 0 {
		c.MaxDelay = DefaultMaxDelay
	}

	return c
}

// Request describes one upstream call through the pipeline.
type Request struct {
	Method   string
	URL      string
	Query    url.Values
	Body     []byte
	Headers  map[string]string
	CacheTTL time.Duration
	// Tokens is the rate-limit cost; expensive endpoints (search) charge
	// more. Zero means one.
	Tokens int
}

// Pipeline wraps every upstream request with caching, rate limiting,
// circuit breaking, deadline enforcement, and retry with backoff. One
// pipeline serves one (provider, credential) pair.
type Pipeline struct {
	Provider   string
	Credential string

	HTTPClient *http.Client
	Cache      *cache.Manager
	Limiter    *resilience.RateLimiter
	Breaker    *resilience.Breaker
	Logger     *slog.Logger
	Retry      RetryConfig
	Deadline   time.Duration

	group singleflight.Group
}

// NewPipeline builds a pipeline with defaults for unset fields.
func NewPipeline(provider, credential string, httpClient *http.Client, cacheManager *cache.Manager,
	limiter *resilience.RateLimiter, breaker *resilience.Breaker, logger *slog.Logger,
) *Pipeline {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultRequestDeadline}
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Pipeline{
		Provider:   provider,
		Credential: credential,
		HTTPClient: httpClient,
		Cache:      cacheManager,
		Limiter:    limiter,
		Breaker:    breaker,
		Logger:     logger,
		Retry:      RetryConfig{}.withDefaults(),
		Deadline:   DefaultRequestDeadline,
	}
}

// CacheKey builds the stable cache key for a request:
// <provider>:<endpoint>:<sorted-params>. Query parameters are ordered so
// equivalent requests share a key.
func (p *Pipeline) CacheKey(req Request) string {
	endpoint := req.URL
	if u, err := url.Parse(req.URL); err == nil {
		endpoint = strings.TrimPrefix(u.Path, "/")
	}

	if len(req.Query) == 0 {
		return p.Provider + ":" + endpoint
	}

	params := make([]string, 0, len(req.Query))
	for key, values := range req.Query {
		sorted := make([]string, len(values))
		copy(sorted, values)
		sort.Strings(sorted)

		params = append(params, key+"="+strings.Join(sorted, ","))
	}

	sort.Strings(params)

	return p.Provider + ":" + endpoint + ":" + strings.Join(params, "&")
}

// Do executes the request through the full pipeline and returns the
// response body. Read-only requests with a positive TTL are served from
// cache when possible and coalesced so concurrent misses on one key issue
// a single upstream call.
func (p *Pipeline) Do(ctx context.Context, req Request) ([]byte, error) {
	if req.Method == "" {
		req.Method = http.MethodGet
	}

	cacheable := req.Method == http.MethodGet && req.CacheTTL > 0 && p.Cache != nil
	if !cacheable {
		return p.execute(ctx, req)
	}

	key := p.CacheKey(req)

	if val, ok := p.Cache.Get(ctx, key); ok {
		return val, nil
	}

	body, err, _ := p.group.Do(key, func() (any, error) {
		// Re-check under the flight: another caller may have populated it.
		if val, ok := p.Cache.Get(ctx, key); ok {
			return val, nil
		}

		fetched, fetchErr := p.execute(ctx, req)
		if fetchErr != nil {
			return nil, fetchErr
		}

		setErr := p.Cache.Set(ctx, key, fetched, req.CacheTTL)
		if setErr != nil {
			p.Logger.Warn("response cache store skipped", "key", key, "error", setErr)
		}

		return fetched, nil
	})
	if err != nil {
		return nil, err
	}

	return body.([]byte), nil
}

// execute runs the limiter, breaker, HTTP attempt, and retry loop.
func (p *Pipeline) execute(ctx context.Context, req Request) ([]byte, error) {
	retry := p.Retry.withDefaults()

	var lastErr error

	for attempt := 1; attempt <= retry.MaxAttempts; attempt++ {
		if p.Limiter != nil {
			err := p.Limiter.Acquire(ctx, p.Provider, p.Credential, req.Tokens)
			if err != nil {
				if errors.Is(err, resilience.ErrRateLimitExceeded) {
					return nil, NewError(KindRateLimit, "rate limit wait exhausted", err)
				}

				return nil, err
			}
		}

		var body []byte

		attemptFn := func() error {
			var attemptErr error
			body, attemptErr = p.attempt(ctx, req)

			return attemptErr
		}

		var err error
		if p.Breaker != nil {
			err = p.Breaker.Do(p.Provider, countsForBreaker, attemptFn)
		} else {
			err = attemptFn()
		}

		if err == nil {
			return body, nil
		}

		if errors.Is(err, resilience.ErrCircuitOpen) {
			return nil, NewError(KindCircuitOpen, p.Provider+" provider isolated", err)
		}

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		if !retriable(err) {
			return nil, p.terminal(err)
		}

		lastErr = err

		if attempt == retry.MaxAttempts {
			break
		}

		delay := p.retryDelay(retry, attempt, err)

		p.Logger.Debug("upstream retry",
			"provider", p.Provider, "attempt", attempt, "delay", delay, "error", err)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, p.terminal(lastErr)
}

// retryDelay computes exponential backoff with jitter, honouring an
// upstream Retry-After advisory when present. A 429 advisory also pauses
// the token bucket for other callers.
func (p *Pipeline) retryDelay(retry RetryConfig, attempt int, err error) time.Duration {
	var se *statusError
	if errors.As(err, &se) && se.retryAfter > 0 {
		advised := time.Duration(se.retryAfter) * time.Second

		if p.Limiter != nil && se.status == http.StatusTooManyRequests {
			p.Limiter.PauseUntil(p.Provider, p.Credential, time.Now().Add(advised))
		}

		return advised
	}

	delay := retry.BaseDelay
	for range attempt - 1 {
		delay *= backoffMultiplier
	}

	if delay > retry.MaxDelay {
		delay = retry.MaxDelay
	}

	jitter := time.Duration(rand.Int63n(int64(float64(delay)*jitterFraction) + 1))

	return delay + jitter
}

// terminal maps a final error onto the taxonomy.
func (p *Pipeline) terminal(err error) error {
	if err == nil {
		return NewError(KindInternal, "upstream call failed", nil)
	}

	var se *statusError
	if errors.As(err, &se) {
		return classifyStatus(se)
	}

	var typed *Error
	if errors.As(err, &typed) {
		return typed
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return NewError(KindUpstreamTimeout, "upstream request timed out", err)
	}

	return NewError(KindUpstreamTimeout, "upstream unreachable after retries", err)
}

// attempt performs one HTTP round trip under the per-request deadline.
func (p *Pipeline) attempt(ctx context.Context, req Request) ([]byte, error) {
	deadline := p.Deadline
	if deadline <= 0 {
		deadline = DefaultRequestDeadline
	}

	attemptCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	target := req.URL
	if len(req.Query) > 0 {
		sep := "?"
		if strings.Contains(target, "?") {
			sep = "&"
		}

		target += sep + req.Query.Encode()
	}

	var bodyReader io.Reader
	if len(req.Body) > 0 {
		bodyReader = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(attemptCtx, req.Method, target, bodyReader)
	if err != nil {
		return nil, NewError(KindInternal, "build request", err)
	}

	httpReq.Header.Set("Accept", "application/json")

	if len(req.Body) > 0 {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	for key, value := range req.Headers {
		httpReq.Header.Set(key, value)
	}

	resp, err := p.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("round trip: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, &statusError{
			status:     resp.StatusCode,
			body:       truncateBody(body),
			retryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}

	return body, nil
}

// errorBodyLimit bounds the response excerpt preserved on status errors.
const errorBodyLimit = 512

func truncateBody(body []byte) string {
	if len(body) > errorBodyLimit {
		return string(body[:errorBodyLimit])
	}

	return string(body)
}

// parseRetryAfter reads a Retry-After header in seconds form. HTTP-date
// form is not produced by the supported upstreams.
func parseRetryAfter(value string) int {
	if value == "" {
		return 0
	}

	seconds, err := strconv.Atoi(value)
	if err != nil || seconds < 0 {
		return 0
	}

	return seconds
}
