package ratelimiter

import (
	"testing"
	"time"
)

func TestAlignWindow(t *testing.T) {
	tests := []struct {
		name          string
		now           time.Time
		windowSeconds int
		want          time.Time
	}{
		{
			name:          "mid-window aligns down to window start",
			now:           time.Date(2026, 1, 1, 12, 0, 45, 0, time.UTC),
			windowSeconds: 60,
			want:          time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
		},
		{
			name:          "exact boundary stays put",
			now:           time.Date(2026, 1, 1, 12, 1, 0, 0, time.UTC),
			windowSeconds: 60,
			want:          time.Date(2026, 1, 1, 12, 1, 0, 0, time.UTC),
		},
		{
			name:          "one second before boundary aligns to previous window",
			now:           time.Date(2026, 1, 1, 12, 0, 59, 0, time.UTC),
			windowSeconds: 60,
			want:          time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := alignWindow(tt.now, tt.windowSeconds); !got.Equal(tt.want) {
				t.Errorf("alignWindow() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCacheKeyIsStableAndDistinguishesWindows(t *testing.T) {
	w1 := time.Unix(1000, 0)
	w2 := time.Unix(2000, 0)

	k1 := cacheKey("id-a", w1)
	k1Again := cacheKey("id-a", w1)
	k2 := cacheKey("id-a", w2)
	kOther := cacheKey("id-b", w1)

	if k1 != k1Again {
		t.Errorf("cacheKey not stable: %q vs %q", k1, k1Again)
	}
	if k1 == k2 {
		t.Errorf("cacheKey collided across windows: %q", k1)
	}
	if k1 == kOther {
		t.Errorf("cacheKey collided across identifiers: %q", k1)
	}
}

func TestFailOpenAllowsWithZeroBudget(t *testing.T) {
	result := failOpen()
	if !result.Allowed {
		t.Error("failOpen() should allow the request")
	}
	if result.Remaining != 0 {
		t.Errorf("failOpen() Remaining = %d, want 0", result.Remaining)
	}
}
