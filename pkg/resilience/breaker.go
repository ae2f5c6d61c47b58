package resilience

import (
	"errors"
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

// Circuit breaker defaults.
const (
	DefaultFailureThreshold = 5
	DefaultCooldown         = 60 * time.Second

	// halfOpenProbes is the number of probe requests allowed in HalfOpen.
	halfOpenProbes = 3

	// rollingWindow resets the failure counts while Closed.
	rollingWindow = 5 * time.Minute

	// ratioMinSamples is the minimum sample count before the failure-ratio
	// trip condition applies.
	ratioMinSamples = 10

	// ratioThreshold trips the breaker when exceeded with enough samples.
	ratioThreshold = 0.5
)

// ErrCircuitOpen indicates the provider is isolated; retry after cooldown.
var ErrCircuitOpen = errors.New("circuit open")

// BreakerConfig holds per-provider breaker parameters.
type BreakerConfig struct {
	FailureThreshold int
	Cooldown         time.Duration
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = DefaultFailureThreshold
	}

	if c.Cooldown <= 0 {
		c.Cooldown = DefaultCooldown
	}

	return c
}

// Breaker isolates failing providers with a shared per-provider three-state
// machine (Closed, Open, HalfOpen). Only failures the caller classifies as
// retriable count toward tripping; 4xx-style terminal errors pass through
// without moving the state machine.
type Breaker struct {
	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
	configs  map[string]BreakerConfig
}

// NewBreaker creates a breaker registry with per-provider configs.
// Providers absent from configs use the defaults.
func NewBreaker(configs map[string]BreakerConfig) *Breaker {
	if configs == nil {
		configs = map[string]BreakerConfig{}
	}

	return &Breaker{
		breakers: make(map[string]*gobreaker.CircuitBreaker),
		configs:  configs,
	}
}

func (b *Breaker) breakerFor(provider string) *gobreaker.CircuitBreaker {
	b.mu.Lock()
	defer b.mu.Unlock()

	cb, ok := b.breakers[provider]
	if ok {
		return cb
	}

	cfg := b.configs[provider].withDefaults()

	cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        provider,
		MaxRequests: halfOpenProbes,
		Interval:    rollingWindow,
		Timeout:     cfg.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.ConsecutiveFailures >= uint32(cfg.FailureThreshold) {
				return true
			}

			return counts.Requests >= ratioMinSamples &&
				float64(counts.TotalFailures)/float64(counts.Requests) > ratioThreshold
		},
	})
	b.breakers[provider] = cb

	return cb
}

// nonRetriableError carries a terminal error through gobreaker as a success
// so it does not count toward tripping.
type nonRetriableError struct {
	err error
}

// Do runs fn behind the provider's breaker. retriable classifies fn's
// error: retriable failures (5xx, connection errors, timeouts) count toward
// the trip conditions; everything else is recorded as success. When the
// circuit is open, Do fails fast with ErrCircuitOpen.
func (b *Breaker) Do(provider string, retriable func(error) bool, fn func() error) error {
	cb := b.breakerFor(provider)

	result, err := cb.Execute(func() (any, error) {
		fnErr := fn()
		if fnErr == nil {
			return nil, nil
		}

		if retriable != nil && !retriable(fnErr) {
			return &nonRetriableError{err: fnErr}, nil
		}

		return nil, fnErr
	})

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrCircuitOpen
	}

	if err != nil {
		return err
	}

	if wrapped, ok := result.(*nonRetriableError); ok {
		return wrapped.err
	}

	return nil
}

// State returns the provider's breaker state name: "closed", "open", or
// "half-open". Unseen providers are closed.
func (b *Breaker) State(provider string) string {
	b.mu.Lock()
	cb, ok := b.breakers[provider]
	b.mu.Unlock()

	if !ok {
		return "closed"
	}

	switch cb.State() {
	case gobreaker.StateOpen:
		return "open"
	case gobreaker.StateHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// States returns the state of every provider seen so far.
func (b *Breaker) States() map[string]string {
	b.mu.Lock()
	providers := make([]string, 0, len(b.breakers))

	for provider := range b.breakers {
		providers = append(providers, provider)
	}
	b.mu.Unlock()

	states := make(map[string]string, len(providers))
	for _, provider := range providers {
		states[provider] = b.State(provider)
	}

	return states
}
