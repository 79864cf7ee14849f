// Package admission implements the Admission Pipeline: the top-level
// check orchestration over the Ban Registry, Geo-Block Registry, API-Key
// Registry, Counter Store, and Request Log, plus the burst/baseline abuse
// detector.
package admission

import (
	"context"
	"log"
	"time"

	"github.com/ratelimit-gateway/admission-gateway/kafka"
	"github.com/ratelimit-gateway/admission-gateway/models"
	"github.com/ratelimit-gateway/admission-gateway/ratelimiter"
	"github.com/ratelimit-gateway/admission-gateway/repository"
)

// Pipeline is the Admission Pipeline.
type Pipeline struct {
	bans      *repository.BanRepository
	geo       *repository.GeoBlockRepository
	keys      *repository.APIKeyRepository
	counters  *ratelimiter.Store
	logs      *repository.RequestLogRepository
	detector  *AbuseDetector
	producer  *kafka.Producer

	defaultCfg     models.RateLimitConfig
	logAllRequests bool
}

func New(
	bans *repository.BanRepository,
	geo *repository.GeoBlockRepository,
	keys *repository.APIKeyRepository,
	counters *ratelimiter.Store,
	logs *repository.RequestLogRepository,
	detector *AbuseDetector,
	producer *kafka.Producer,
	defaultCfg models.RateLimitConfig,
	logAllRequests bool,
) *Pipeline {
	return &Pipeline{
		bans:           bans,
		geo:            geo,
		keys:           keys,
		counters:       counters,
		logs:           logs,
		detector:       detector,
		producer:       producer,
		defaultCfg:     defaultCfg,
		logAllRequests: logAllRequests,
	}
}

// Check runs ban, geo-block, key, counter, and abuse-detector checks in
// order and returns the first one that denies the request. On any
// unexpected store error mid-pipeline it fails open, favoring availability
// of the guarded workload over false denials under infrastructure
// degradation, and logs the error rather than propagating it.
func (p *Pipeline) Check(ctx context.Context, envelope models.RequestEnvelope) models.Decision {
	now := time.Now()

	identifier, hasKeyToken := deriveIdentifier(envelope)
	if identifier == "" {
		return models.Decision{Allowed: false, Reason: models.ReasonInvalidKey}
	}

	if ban, err := p.bans.IsBanned(ctx, identifier, now); err != nil {
		log.Printf("admission: ban check failed, failing open: %v", err)
		return failOpen()
	} else if ban != nil {
		decision := models.Decision{Allowed: false, Reason: models.ReasonBanned}
		if ban.ExpiresAt != nil {
			retryAfter := int(ban.ExpiresAt.Sub(now).Seconds())
			decision.RetryAfter = &retryAfter
		}
		p.finish(ctx, identifier, envelope, decision, now)
		return decision
	}

	if envelope.Country != "" {
		geoEnabled, err := p.geo.IsEnabled(ctx)
		if err != nil {
			log.Printf("admission: geo-enabled check failed, failing open: %v", err)
			return failOpen()
		}
		if geoEnabled {
			blocked, err := p.geo.IsBlocked(ctx, envelope.Country)
			if err != nil {
				log.Printf("admission: geo-block check failed, failing open: %v", err)
				return failOpen()
			}
			if blocked {
				decision := models.Decision{Allowed: false, Reason: models.ReasonGeoBlocked}
				p.finish(ctx, identifier, envelope, decision, now)
				return decision
			}
		}
	}

	effectiveCfg := p.defaultCfg
	if hasKeyToken {
		key, err := p.keys.Lookup(ctx, envelope.APIKey, now)
		if err != nil {
			log.Printf("admission: key lookup failed, failing open: %v", err)
			return failOpen()
		}
		if key == nil {
			decision := models.Decision{Allowed: false, Reason: models.ReasonInvalidKey}
			p.finish(ctx, identifier, envelope, decision, now)
			return decision
		}
		if key.IsExpired(now) {
			decision := models.Decision{Allowed: false, Reason: models.ReasonExpiredKey}
			p.finish(ctx, identifier, envelope, decision, now)
			return decision
		}
		effectiveCfg = models.RateLimitConfig{Limit: key.Limit, WindowSeconds: key.WindowSeconds, Sliding: p.defaultCfg.Sliding}
		identifier = key.ID.String()
	}

	result, err := p.counters.Check(ctx, identifier, effectiveCfg, now)
	if err != nil {
		log.Printf("admission: counter check failed, failing open: %v", err)
		return failOpen()
	}

	if !result.Allowed {
		retryAfter := int(result.ResetAt.Sub(now).Seconds())
		decision := models.Decision{
			Allowed:    false,
			Reason:     models.ReasonRateLimited,
			Remaining:  0,
			ResetAt:    result.ResetAt,
			Limit:      result.Limit,
			RetryAfter: &retryAfter,
		}
		p.finish(ctx, identifier, envelope, decision, now)
		return decision
	}

	decision := models.Decision{
		Allowed:   true,
		Reason:    models.ReasonOK,
		Remaining: result.Remaining,
		ResetAt:   result.ResetAt,
		Limit:     result.Limit,
	}

	if p.detector != nil {
		if fired, err := p.detector.Check(ctx, identifier, now); err != nil {
			log.Printf("admission: abuse detector failed, allowing request: %v", err)
		} else if fired {
			decision = models.Decision{
				Allowed:   false,
				Reason:    models.ReasonBanned,
				Remaining: 0,
				ResetAt:   result.ResetAt,
				Limit:     result.Limit,
			}
		}
	}

	p.finish(ctx, identifier, envelope, decision, now)
	return decision
}

// deriveIdentifier picks the rate-limit identifier: the API key if one
// was supplied, otherwise the caller's address. hasKeyToken reports
// whether an API-key token was supplied — not whether it later resolves.
func deriveIdentifier(envelope models.RequestEnvelope) (string, bool) {
	if envelope.APIKey != "" {
		return envelope.APIKey, true
	}
	if envelope.Address != "" {
		return envelope.Address, false
	}
	return "", false
}

// finish implements write policy (log on denial, or always
// when configured to) and publishes the AdmissionDecided event for every
// resolved decision, allowed or not, so downstream consumers see the full
// decision stream regardless of the request log's retention policy.
func (p *Pipeline) finish(ctx context.Context, identifier string, envelope models.RequestEnvelope, decision models.Decision, now time.Time) {
	if !decision.Allowed || p.logAllRequests {
		entry := &models.RequestLogEntry{
			Identifier: identifier,
			Path:       envelope.Path,
			Method:     envelope.Method,
			Allowed:    decision.Allowed,
			ReasonCode: decision.Reason,
			Country:    envelope.Country,
			UserAgent:  envelope.UserAgent,
			Timestamp:  now,
		}
		if err := p.logs.Log(ctx, entry); err != nil {
			log.Printf("admission: failed to write request log: %v", err)
		}
	}

	if p.producer != nil {
		event := kafka.NewAdmissionDecidedEvent(identifier, decision, envelope.Path, envelope.Method, envelope.UserAgent, now)
		if err := p.producer.PublishAdmissionDecided(ctx, event); err != nil {
			log.Printf("admission: failed to publish decision event: %v", err)
		}
	}
}

func failOpen() models.Decision {
	return models.Decision{Allowed: true, Reason: models.ReasonOK}
}
