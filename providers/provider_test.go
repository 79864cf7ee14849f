package providers

import (
	"context"
	"testing"

	"github.com/ratelimit-gateway/admission-gateway/models"
)

type fakeAdapter struct {
	name     string
	priority int
	enabled  bool
	result   *models.ProviderResult
	calls    int
}

func (f *fakeAdapter) Name() string    { return f.name }
func (f *fakeAdapter) Priority() int   { return f.priority }
func (f *fakeAdapter) IsEnabled() bool { return f.enabled }
func (f *fakeAdapter) Check(ctx context.Context, address string) *models.ProviderResult {
	f.calls++
	return f.result
}

func TestRegistrySortsByPriority(t *testing.T) {
	low := &fakeAdapter{name: "low", priority: 10, enabled: true}
	high := &fakeAdapter{name: "high", priority: 1, enabled: true}
	mid := &fakeAdapter{name: "mid", priority: 5, enabled: true}

	reg := NewRegistry(low, high, mid)
	enabled := reg.Enabled()

	if len(enabled) != 3 {
		t.Fatalf("Enabled() returned %d adapters, want 3", len(enabled))
	}
	if enabled[0].Name() != "high" || enabled[1].Name() != "mid" || enabled[2].Name() != "low" {
		names := []string{enabled[0].Name(), enabled[1].Name(), enabled[2].Name()}
		t.Errorf("Enabled() order = %v, want [high mid low]", names)
	}
}

func TestRegistryFiltersDisabled(t *testing.T) {
	on := &fakeAdapter{name: "on", priority: 1, enabled: true}
	off := &fakeAdapter{name: "off", priority: 2, enabled: false}

	reg := NewRegistry(on, off)
	enabled := reg.Enabled()

	if len(enabled) != 1 || enabled[0].Name() != "on" {
		t.Errorf("Enabled() = %v, want only [on]", enabled)
	}
}

func TestRegistryEmptyWhenAllDisabled(t *testing.T) {
	reg := NewRegistry(&fakeAdapter{name: "off", enabled: false})
	if enabled := reg.Enabled(); len(enabled) != 0 {
		t.Errorf("Enabled() = %v, want empty", enabled)
	}
}

func TestThrottledSkipsCallWhenBucketEmpty(t *testing.T) {
	inner := &fakeAdapter{name: "inner", enabled: true, result: &models.ProviderResult{IsProxy: true}}
	throttled := NewThrottled(inner, 0, 1)

	first := throttled.Check(context.Background(), "1.2.3.4")
	if first == nil {
		t.Fatal("first call within burst should reach the inner adapter")
	}

	second := throttled.Check(context.Background(), "1.2.3.4")
	if second != nil {
		t.Error("second call with an exhausted bucket and zero refill rate should return nil")
	}
	if inner.calls != 1 {
		t.Errorf("inner adapter called %d times, want 1", inner.calls)
	}
}

func TestThrottledDelegatesMetadata(t *testing.T) {
	inner := &fakeAdapter{name: "delegate", priority: 3, enabled: true}
	throttled := NewThrottled(inner, 5, 2)

	if throttled.Name() != "delegate" {
		t.Errorf("Name() = %q, want %q", throttled.Name(), "delegate")
	}
	if throttled.Priority() != 3 {
		t.Errorf("Priority() = %d, want 3", throttled.Priority())
	}
	if !throttled.IsEnabled() {
		t.Error("IsEnabled() = false, want true")
	}
}
