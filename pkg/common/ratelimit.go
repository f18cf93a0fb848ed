package common

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiter is a token bucket whose limits can be changed at runtime.
type RateLimiter struct {
	limiter *rate.Limiter
	mu      sync.RWMutex
}

// NewRateLimiter creates a RateLimiter allowing rps requests per second
// with bursts of up to burst requests.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// Wait blocks until a request is allowed or ctx ends.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	return rl.limiter.Wait(ctx)
}

// UpdateLimits adjusts the rate and burst.
func (rl *RateLimiter) UpdateLimits(rps float64, burst int) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.limiter.SetLimit(rate.Limit(rps))
	rl.limiter.SetBurst(burst)
}

// KeyedRateLimiter hands out one RateLimiter per key, created on first use
// with the same limits. It is used to throttle each downstream host on its
// own.
type KeyedRateLimiter struct {
	rps   float64
	burst int

	mu       sync.Mutex
	limiters map[string]*RateLimiter
}

// NewKeyedRateLimiter creates an empty KeyedRateLimiter.
func NewKeyedRateLimiter(rps float64, burst int) *KeyedRateLimiter {
	return &KeyedRateLimiter{rps: rps, burst: burst, limiters: make(map[string]*RateLimiter)}
}

// Wait blocks until a request for key is allowed or ctx ends.
func (k *KeyedRateLimiter) Wait(ctx context.Context, key string) error {
	return k.limiter(key).Wait(ctx)
}

func (k *KeyedRateLimiter) limiter(key string) *RateLimiter {
	k.mu.Lock()
	defer k.mu.Unlock()

	rl, ok := k.limiters[key]
	if !ok {
		rl = NewRateLimiter(k.rps, k.burst)
		k.limiters[key] = rl
	}
	return rl
}
