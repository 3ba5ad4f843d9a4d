package circuitbreaker

import "time"

// Config holds the configuration for a circuit breaker. It is fixed at
// breaker creation; later GetOrCreate calls with a different config do not
// change an existing breaker.
type Config struct {
	// FailureThreshold is the number of consecutive failures that trips the
	// circuit regardless of the windowed failure rate.
	FailureThreshold int

	// RecoveryTimeout is how long an open circuit waits before admitting
	// trial calls in half-open state.
	RecoveryTimeout time.Duration

	// SuccessThreshold is the number of consecutive half-open successes
	// required to close the circuit.
	SuccessThreshold int

	// CallTimeout bounds every protected call. A call exceeding it is
	// recorded as a failure with a TimeoutError.
	CallTimeout time.Duration

	// MinimumCalls is the minimum number of calls in the sliding window
	// before the failure-rate trip is evaluated.
	MinimumCalls int

	// FailureRateThreshold is the windowed failure ratio (0.0-1.0) that
	// trips the circuit once MinimumCalls is satisfied.
	FailureRateThreshold float64

	// SlidingWindowSize is the capacity of the call-history window.
	SlidingWindowSize int

	// HalfOpenMaxCalls caps the number of trial calls admitted while
	// half-open; further calls are rejected.
	HalfOpenMaxCalls int

	// IsFailure classifies an operation error as a counted failure. Nil
	// means every non-nil error counts. Timeouts always count as failures.
	IsFailure func(error) bool

	// Clock provides time abstraction for testing. Nil means SystemClock.
	Clock Clock
}

// DefaultConfig returns a conservative default configuration.
func DefaultConfig() Config {
	return Config{
		FailureThreshold:     5,
		RecoveryTimeout:      60 * time.Second,
		SuccessThreshold:     3,
		CallTimeout:          30 * time.Second,
		MinimumCalls:         10,
		FailureRateThreshold: 0.5,
		SlidingWindowSize:    100,
		HalfOpenMaxCalls:     5,
	}
}

// ScraperConfig returns configuration tuned for storefront scraping.
// Scrape targets fail in bursts, so the circuit trips early and backs off
// for several minutes.
func ScraperConfig() Config {
	cfg := DefaultConfig()
	cfg.FailureThreshold = 3
	cfg.RecoveryTimeout = 5 * time.Minute
	cfg.SuccessThreshold = 2
	cfg.CallTimeout = 30 * time.Second
	cfg.MinimumCalls = 5
	cfg.FailureRateThreshold = 0.4
	return cfg
}

// MarketplaceAPIConfig returns configuration tuned for marketplace pricing
// API calls.
func MarketplaceAPIConfig() Config {
	cfg := DefaultConfig()
	cfg.FailureThreshold = 5
	cfg.RecoveryTimeout = 3 * time.Minute
	cfg.SuccessThreshold = 3
	cfg.CallTimeout = 15 * time.Second
	cfg.MinimumCalls = 10
	cfg.FailureRateThreshold = 0.5
	return cfg
}

// DatabaseConfig returns configuration tuned for database operations.
func DatabaseConfig() Config {
	cfg := DefaultConfig()
	cfg.FailureThreshold = 5
	cfg.RecoveryTimeout = time.Minute
	cfg.SuccessThreshold = 3
	cfg.CallTimeout = 30 * time.Second
	cfg.MinimumCalls = 20
	cfg.FailureRateThreshold = 0.6
	return cfg
}

// CacheConfig returns configuration tuned for cache lookups. Cache outages
// recover quickly, so the circuit retries soon.
func CacheConfig() Config {
	cfg := DefaultConfig()
	cfg.FailureThreshold = 3
	cfg.RecoveryTimeout = 30 * time.Second
	cfg.SuccessThreshold = 2
	cfg.CallTimeout = 5 * time.Second
	cfg.MinimumCalls = 10
	cfg.FailureRateThreshold = 0.4
	return cfg
}

// withDefaults fills zero-valued fields from DefaultConfig.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = def.FailureThreshold
	}
	if c.RecoveryTimeout <= 0 {
		c.RecoveryTimeout = def.RecoveryTimeout
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = def.SuccessThreshold
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = def.CallTimeout
	}
	if c.MinimumCalls <= 0 {
		c.MinimumCalls = def.MinimumCalls
	}
	if c.FailureRateThreshold <= 0 || c.FailureRateThreshold > 1 {
		c.FailureRateThreshold = def.FailureRateThreshold
	}
	if c.SlidingWindowSize <= 0 {
		c.SlidingWindowSize = def.SlidingWindowSize
	}
	if c.HalfOpenMaxCalls <= 0 {
		c.HalfOpenMaxCalls = def.HalfOpenMaxCalls
	}
	// More required successes than admitted trial calls can never close the
	// circuit: admissions are counted, not released, so the success count
	// would stall below the threshold with every further call rejected.
	if c.SuccessThreshold > c.HalfOpenMaxCalls {
		c.SuccessThreshold = c.HalfOpenMaxCalls
	}
	if c.IsFailure == nil {
		c.IsFailure = func(err error) bool { return err != nil }
	}
	if c.Clock == nil {
		c.Clock = &SystemClock{}
	}
	return c
}
