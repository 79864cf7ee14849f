// Package torlist implements the Tor-list updater: a background task
// that periodically refreshes the set of known Tor exit addresses the
// reputation engine consults.
package torlist

import (
	"context"
	"log"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/ratelimit-gateway/admission-gateway/repository"
)

// Updater owns the Tor-list scheduler and the in-flight-fetch guard flag,
// the two pieces of state that make periodic refresh and graceful shutdown
// safe to run concurrently.
type Updater struct {
	repo         *repository.ReputationRepository
	client       *resty.Client
	url          string
	interval     time.Duration
	fetchTimeout time.Duration
	enabled      bool

	inFlight atomic.Bool

	mu         sync.RWMutex
	lastUpdate time.Time

	stopCh chan struct{}
	doneCh chan struct{}
}

func New(repo *repository.ReputationRepository, url string, interval, fetchTimeout time.Duration, enabled bool) *Updater {
	client := resty.New().SetHeader("User-Agent", "admission-gateway-torlist/1.0")
	return &Updater{
		repo:         repo,
		client:       client,
		url:          url,
		interval:     interval,
		fetchTimeout: fetchTimeout,
		enabled:      enabled,
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
	}
}

// Start runs an initial fetch (unless disabled) and then refreshes on a
// fixed interval until Stop is called or ctx is canceled.
func (u *Updater) Start(ctx context.Context) {
	if !u.enabled {
		close(u.doneCh)
		return
	}

	go func() {
		defer close(u.doneCh)

		u.fetch(ctx)

		ticker := time.NewTicker(u.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-u.stopCh:
				return
			case <-ticker.C:
				u.fetch(ctx)
			}
		}
	}()
}

// Stop signals the scheduler to exit and blocks until any in-flight fetch
// finishes, so shutdown never interrupts a fetch midway.
func (u *Updater) Stop() {
	if !u.enabled {
		return
	}
	close(u.stopCh)
	<-u.doneCh
}

// LastUpdate reports when the Tor list was last successfully refreshed.
func (u *Updater) LastUpdate() time.Time {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.lastUpdate
}

// fetch enforces the single-in-flight-fetch guard and retains existing data on any failure.
func (u *Updater) fetch(ctx context.Context) {
	if !u.inFlight.CompareAndSwap(false, true) {
		return
	}
	defer u.inFlight.Store(false)

	callCtx, cancel := context.WithTimeout(ctx, u.fetchTimeout)
	defer cancel()

	resp, err := u.client.R().SetContext(callCtx).Get(u.url)
	if err != nil {
		log.Printf("torlist: fetch failed, retaining existing list: %v", err)
		return
	}
	if resp.IsError() {
		log.Printf("torlist: fetch returned HTTP %d, retaining existing list", resp.StatusCode())
		return
	}

	addresses := parseExitList(resp.String())
	if len(addresses) == 0 {
		log.Printf("torlist: fetch parsed to zero addresses, retaining existing list")
		return
	}

	now := time.Now()
	if err := u.repo.SyncTorExits(callCtx, addresses, now); err != nil {
		log.Printf("torlist: sync failed, retaining existing list: %v", err)
		return
	}

	u.mu.Lock()
	u.lastUpdate = now
	u.mu.Unlock()
}

// parseExitList expects newline-separated IPv4 literals, with blank and
// "#"-prefixed lines discarded, and rejects octets with leading zeros.
func parseExitList(body string) []string {
	lines := strings.Split(body, "\n")
	addresses := make([]string, 0, len(lines))
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		if isValidIPv4(trimmed) {
			addresses = append(addresses, trimmed)
		}
	}
	return addresses
}

func isValidIPv4(s string) bool {
	octets := strings.Split(s, ".")
	if len(octets) != 4 {
		return false
	}
	for _, o := range octets {
		if len(o) == 0 || len(o) > 3 {
			return false
		}
		if len(o) > 1 && o[0] == '0' {
			return false
		}
		n, err := strconv.Atoi(o)
		if err != nil || n < 0 || n > 255 {
			return false
		}
	}
	return true
}
