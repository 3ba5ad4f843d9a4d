// Package resilience groups the fault tolerance primitives that keep the
// arbitrage pipeline running while its dependencies misbehave.
//
// Subpackages:
//   - circuitbreaker: windowed circuit breakers for scrapers, marketplace
//     APIs, the database, and the cache, plus a process-wide registry
//   - retry: exponential backoff with jitter for transient failures
//   - health: concurrent health check engine with status aggregation
//   - recovery: cooldown-gated automatic remediation of failing checks
//
// Usage Example:
//
//	cb := registry.GetOrCreate("amazon_scraper", circuitbreaker.ScraperConfig())
//	err := cb.Execute(ctx, func(ctx context.Context) error {
//	    return retry.WithBackoff(ctx, retry.ScraperConfig(), func() error {
//	        return scrapeListing(ctx)
//	    })
//	})
package resilience
