package provider

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"farewatch/internal/model"
)

// RateLimited wraps a Provider with a client-side request rate limit so a
// refresh sweep cannot trip the backend's quota.
type RateLimited struct {
	provider Provider
	limiter  *rate.Limiter
	name     string
}

// NewRateLimited creates a rate limited provider. rps may be fractional for
// less than one request per second; burst is the maximum burst size.
func NewRateLimited(provider Provider, rps float64, burst int) *RateLimited {
	return &RateLimited{
		provider: provider,
		limiter:  rate.NewLimiter(rate.Limit(rps), burst),
		name:     provider.Name(),
	}
}

// FetchFare waits for rate limiter permission, then forwards to the
// underlying provider.
func (r *RateLimited) FetchFare(ctx context.Context, route model.Route) (model.Fare, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return model.Fare{}, fmt.Errorf("rate limit wait canceled: %w", err)
	}
	return r.provider.FetchFare(ctx, route)
}

// Name returns the wrapped provider's name.
func (r *RateLimited) Name() string {
	return r.name
}

var _ Provider = (*RateLimited)(nil)
