package provider

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"
)

// RateLimited wraps a provider with a global limiter plus per-session
// limiters, so one busy session cannot starve the rest.
type RateLimited struct {
	inner Provider

	globalLimiter   *rate.Limiter
	sessionLimiters map[string]*rate.Limiter
	mu              sync.Mutex

	requestsPerSecond float64
	burst             int
}

// sessionKey carries the idea id through context to the limiter.
type sessionKey struct{}

// WithSession tags ctx with the idea id used for per-session limiting.
func WithSession(ctx context.Context, ideaID string) context.Context {
	return context.WithValue(ctx, sessionKey{}, ideaID)
}

// NewRateLimited wraps inner with rate limiting.
func NewRateLimited(inner Provider, requestsPerSecond float64, burst int) *RateLimited {
	return &RateLimited{
		inner:             inner,
		globalLimiter:     rate.NewLimiter(rate.Limit(requestsPerSecond), burst),
		sessionLimiters:   make(map[string]*rate.Limiter),
		requestsPerSecond: requestsPerSecond,
		burst:             burst,
	}
}

// Name returns the wrapped provider's name.
func (r *RateLimited) Name() string {
	return r.inner.Name()
}

// Invoke waits for both limiters, then delegates. A context cancelled while
// waiting surfaces as an ordinary invocation error.
func (r *RateLimited) Invoke(ctx context.Context, req Request) (*Response, error) {
	if err := r.globalLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("global rate limit: %w", err)
	}
	if id, ok := ctx.Value(sessionKey{}).(string); ok && id != "" {
		if err := r.sessionLimiter(id).Wait(ctx); err != nil {
			return nil, fmt.Errorf("session rate limit: %w", err)
		}
	}
	return r.inner.Invoke(ctx, req)
}

func (r *RateLimited) sessionLimiter(ideaID string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	limiter, ok := r.sessionLimiters[ideaID]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(r.requestsPerSecond), r.burst)
		r.sessionLimiters[ideaID] = limiter
	}
	return limiter
}
