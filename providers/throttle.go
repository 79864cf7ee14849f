package providers

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/ratelimit-gateway/admission-gateway/models"
)

// Throttled wraps an Adapter with a token-bucket limiter, so a burst of
// classification requests cannot exceed a third-party provider's own rate
// limit. When the bucket is empty the call is skipped (not queued) and
// Check returns nil, consistent with every adapter's "swallow errors"
// contract.
type Throttled struct {
	inner   Adapter
	limiter *rate.Limiter
}

// NewThrottled limits inner to requestsPerSecond sustained, with burst as
// the instantaneous allowance.
func NewThrottled(inner Adapter, requestsPerSecond float64, burst int) *Throttled {
	return &Throttled{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burst),
	}
}

func (t *Throttled) Name() string    { return t.inner.Name() }
func (t *Throttled) Priority() int   { return t.inner.Priority() }
func (t *Throttled) IsEnabled() bool { return t.inner.IsEnabled() }

func (t *Throttled) Check(ctx context.Context, address string) *models.ProviderResult {
	if !t.limiter.Allow() {
		return nil
	}
	return t.inner.Check(ctx, address)
}
