package ratelimiter

import (
	"context"
	"log"
	"math"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ratelimit-gateway/admission-gateway/models"
	"github.com/ratelimit-gateway/admission-gateway/repository"
)

// Store is the Counter Store: Postgres-backed and linearizable per
// bucket, fronted by an optional Redis read-through cache. Postgres is
// authoritative and Redis only warms the read path. Every write still goes
// through Postgres; the cache is refreshed from the write's result, never
// incremented independently, so the two never drift.
type Store struct {
	counters *repository.CounterRepository
	cache    *redis.Client
}

func New(counters *repository.CounterRepository, cache *redis.Client) *Store {
	return &Store{counters: counters, cache: cache}
}

// Check implements fixed- and sliding-window semantics. On
// any store error it fails open: allowed=true, zero budget. The admission
// pipeline is responsible for logging the error at the call site.
func (s *Store) Check(ctx context.Context, identifier string, cfg models.RateLimitConfig, now time.Time) (models.CounterResult, error) {
	if cfg.Sliding {
		return s.checkSliding(ctx, identifier, cfg, now)
	}
	return s.checkFixed(ctx, identifier, cfg, now)
}

func (s *Store) checkFixed(ctx context.Context, identifier string, cfg models.RateLimitConfig, now time.Time) (models.CounterResult, error) {
	windowStart := alignWindow(now, cfg.WindowSeconds)
	resetAt := windowStart.Add(time.Duration(cfg.WindowSeconds) * time.Second)

	c, cacheHit := s.cacheGet(ctx, identifier, windowStart)
	if !cacheHit {
		var err error
		c, err = s.counters.GetCount(ctx, identifier, windowStart)
		if err != nil {
			return failOpen(), err
		}
	}

	if c >= int64(cfg.Limit) {
		return models.CounterResult{Allowed: false, Remaining: 0, ResetAt: resetAt, Limit: cfg.Limit, WindowSeconds: cfg.WindowSeconds}, nil
	}

	newCount, err := s.counters.Increment(ctx, identifier, windowStart, now)
	if err != nil {
		return failOpen(), err
	}
	s.cacheSet(ctx, identifier, windowStart, newCount, cfg.WindowSeconds)

	if newCount > int64(cfg.Limit) {
		return models.CounterResult{Allowed: false, Remaining: 0, ResetAt: resetAt, Limit: cfg.Limit, WindowSeconds: cfg.WindowSeconds}, nil
	}
	remaining := int(math.Max(0, float64(cfg.Limit)-float64(newCount)))
	return models.CounterResult{Allowed: true, Remaining: remaining, ResetAt: resetAt, Limit: cfg.Limit, WindowSeconds: cfg.WindowSeconds}, nil
}

// checkSliding mirrors checkFixed's compare-and-set pattern: it increments
// the current bucket first and recomputes the effective count from that
// atomically-returned post-increment value, rather than deciding from a
// plain read taken before the increment. Two concurrent checks racing the
// same bucket therefore can't both observe effective < limit before either
// increment lands — the second one to land always sees the first's count.
func (s *Store) checkSliding(ctx context.Context, identifier string, cfg models.RateLimitConfig, now time.Time) (models.CounterResult, error) {
	windowStart := alignWindow(now, cfg.WindowSeconds)
	prevStart := windowStart.Add(-time.Duration(cfg.WindowSeconds) * time.Second)
	resetAt := now.Add(time.Duration(cfg.WindowSeconds) * time.Second)

	prev, err := s.counters.GetCount(ctx, identifier, prevStart)
	if err != nil {
		return failOpen(), err
	}

	newCur, err := s.counters.Increment(ctx, identifier, windowStart, now)
	if err != nil {
		return failOpen(), err
	}
	s.cacheSet(ctx, identifier, windowStart, newCur, cfg.WindowSeconds)

	elapsed := now.Sub(windowStart).Seconds()
	overlap := math.Max(0, (float64(cfg.WindowSeconds)-elapsed)/float64(cfg.WindowSeconds))
	effective := float64(prev)*overlap + float64(newCur)

	if effective > float64(cfg.Limit) {
		return models.CounterResult{Allowed: false, Remaining: 0, ResetAt: resetAt, Limit: cfg.Limit, WindowSeconds: cfg.WindowSeconds}, nil
	}

	remaining := int(math.Max(0, math.Floor(float64(cfg.Limit)-effective)))
	return models.CounterResult{Allowed: true, Remaining: remaining, ResetAt: resetAt, Limit: cfg.Limit, WindowSeconds: cfg.WindowSeconds}, nil
}

func (s *Store) cacheGet(ctx context.Context, identifier string, windowStart time.Time) (int64, bool) {
	if s.cache == nil {
		return 0, false
	}
	val, err := s.cache.Get(ctx, cacheKey(identifier, windowStart)).Result()
	if err != nil {
		if err != redis.Nil {
			log.Printf("ratelimiter: cache read unavailable, falling back to store: %v", err)
		}
		return 0, false
	}
	count, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, false
	}
	return count, true
}

func (s *Store) cacheSet(ctx context.Context, identifier string, windowStart time.Time, count int64, windowSeconds int) {
	if s.cache == nil {
		return
	}
	ttl := time.Duration(windowSeconds) * time.Second
	if err := s.cache.Set(ctx, cacheKey(identifier, windowStart), count, ttl).Err(); err != nil {
		log.Printf("ratelimiter: cache write failed, bucket stays Postgres-only: %v", err)
	}
}

func cacheKey(identifier string, windowStart time.Time) string {
	return "ratelimit:bucket:" + identifier + ":" + strconv.FormatInt(windowStart.Unix(), 10)
}

// Cleanup deletes buckets older than two window lengths.
func (s *Store) Cleanup(ctx context.Context, windowSeconds int, now time.Time) (int64, error) {
	cutoff := now.Add(-2 * time.Duration(windowSeconds) * time.Second)
	return s.counters.Cleanup(ctx, cutoff)
}

func alignWindow(now time.Time, windowSeconds int) time.Time {
	secs := now.Unix()
	aligned := (secs / int64(windowSeconds)) * int64(windowSeconds)
	return time.Unix(aligned, 0).UTC()
}

func failOpen() models.CounterResult {
	return models.CounterResult{Allowed: true, Remaining: 0}
}
