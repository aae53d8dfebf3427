// Package ratelimiter implements a token bucket rate limiter with a
// pluggable storage backend. It exists to throttle the pre-session
// two-factor endpoints, where an attacker who knows a user ID could
// otherwise brute-force 6-digit codes and backup codes.
//
// A Bucket holds Config (capacity, refill rate, refill interval) and
// delegates token accounting to a Store. The in-memory store is sufficient
// for a single instance; a shared backend can implement Store for
// multi-instance deployments.
//
//	limiter, err := ratelimiter.NewBucket(ratelimiter.NewMemoryStore(), ratelimiter.Config{
//		Capacity:       5,
//		RefillRate:     1,
//		RefillInterval: time.Minute,
//	})
//
//	res, err := limiter.Allow(ctx, claimedUserID)
//	if err != nil || !res.Allowed() {
//		// deny, optionally with res.RetryAfter()
//	}
package ratelimiter
