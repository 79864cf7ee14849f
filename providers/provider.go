// Package providers holds the provider adapters: third-party IP
// intelligence lookups consulted by the reputation engine after its
// cache/manual-block/Tor/ASN layers come up empty.
package providers

import (
	"context"
	"time"

	"github.com/ratelimit-gateway/admission-gateway/models"
)

// Adapter is the capability set every provider must implement:
// an enabled gate, a priority (lower runs earlier), and a check that never
// returns an error to its caller — a failed or timed-out call yields a nil
// result so one misbehaving provider cannot stall the pipeline. The adapters
// in this package do not log these failures.
type Adapter interface {
	Name() string
	Priority() int
	IsEnabled() bool
	Check(ctx context.Context, address string) *models.ProviderResult
}

// Registry is the static, priority-ordered adapter list the reputation
// engine consults. It is built once at startup from config and never
// mutated afterward.
type Registry struct {
	adapters []Adapter
}

// NewRegistry sorts adapters by Priority ascending once, at construction,
// so the reputation engine can just iterate Enabled() in order without
// ever re-sorting.
func NewRegistry(adapters ...Adapter) *Registry {
	sorted := make([]Adapter, len(adapters))
	copy(sorted, adapters)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j].Priority() < sorted[j-1].Priority(); j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}
	return &Registry{adapters: sorted}
}

// Enabled returns the registered adapters whose IsEnabled() is true, in
// priority order.
func (r *Registry) Enabled() []Adapter {
	var enabled []Adapter
	for _, a := range r.adapters {
		if a.IsEnabled() {
			enabled = append(enabled, a)
		}
	}
	return enabled
}

// withTimeout derives a context bounded by the per-call deadline every
// adapter enforces.
func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, timeout)
}
