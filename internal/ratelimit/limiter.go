package ratelimit

import "context"

// RateLimiter paces outbound calls to the enrichment provider, keyed by
// provider scope so independent providers would not contend.
type RateLimiter interface {
	Allow(ctx context.Context, scope string) (bool, error)
	Wait(ctx context.Context, scope string) error
}
