// Package reputation implements the Reputation Engine: the layered
// pipeline that classifies a network address as tor/vpn/proxy/hosting/
// residential/unknown.
package reputation

import (
	"context"
	"log"
	"strconv"
	"time"

	"github.com/ratelimit-gateway/admission-gateway/kafka"
	"github.com/ratelimit-gateway/admission-gateway/models"
	"github.com/ratelimit-gateway/admission-gateway/providers"
	"github.com/ratelimit-gateway/admission-gateway/repository"
)

// Engine is the Reputation Engine.
type Engine struct {
	repo        *repository.ReputationRepository
	asnLookup   providers.Adapter
	registry    *providers.Registry
	producer    *kafka.Producer
	torEnabled  bool
	cacheTTL    time.Duration
}

func New(repo *repository.ReputationRepository, asnLookup providers.Adapter, registry *providers.Registry, producer *kafka.Producer, torEnabled bool, cacheTTL time.Duration) *Engine {
	return &Engine{
		repo:       repo,
		asnLookup:  asnLookup,
		registry:   registry,
		producer:   producer,
		torEnabled: torEnabled,
		cacheTTL:   cacheTTL,
	}
}

// Classify runs the layered classification pipeline, stopping at
// the first layer that produces a result.
func (e *Engine) Classify(ctx context.Context, address string, bypassCache bool) (*models.Classification, error) {
	now := time.Now()
	e.incrementStat(ctx, "check", now)

	if !bypassCache {
		if rec, err := e.repo.GetReputation(ctx, address, now); err == nil && rec != nil {
			e.incrementStat(ctx, "cache_hit", now)
			return e.fromRecord(rec, models.SourceCache), nil
		}
	}

	if result := e.classifyLayers(ctx, address, now); result != nil {
		e.finish(ctx, result, now)
		return result, nil
	}

	fallback := &models.Classification{
		Address:    address,
		Type:       models.TypeUnknown,
		Confidence: 30,
		Reason:     "no classification signal available",
		Source:     models.SourceHeuristic,
	}
	e.finish(ctx, fallback, now)
	return fallback, nil
}

// classifyLayers runs steps 2 through 6 of the pipeline; nil means no layer
// produced a result and the caller should fall back to step 7.
func (e *Engine) classifyLayers(ctx context.Context, address string, now time.Time) *models.Classification {
	if c := e.checkManualAddressBlock(ctx, address, now); c != nil {
		return c
	}
	if c := e.checkManualCIDRBlocks(ctx, address, now); c != nil {
		return c
	}
	if c := e.checkTor(ctx, address, now); c != nil {
		return c
	}
	if c := e.checkASNHeuristic(ctx, address, now); c != nil {
		return c
	}
	return e.checkProviders(ctx, address)
}

func (e *Engine) checkManualAddressBlock(ctx context.Context, address string, now time.Time) *models.Classification {
	block, err := e.repo.GetManualBlock(ctx, address, models.ManualBlockAddress, now)
	if err != nil || block == nil {
		return nil
	}
	return &models.Classification{
		Address:    address,
		Type:       models.TypeProxy,
		Confidence: 100,
		Reason:     "Manually blocked: " + block.Reason,
		Source:     models.SourceManual,
	}
}

func (e *Engine) checkManualCIDRBlocks(ctx context.Context, address string, now time.Time) *models.Classification {
	blocks, err := e.repo.ActiveCidrBlocks(ctx, now)
	if err != nil {
		return nil
	}
	for _, b := range blocks {
		if cidrContains(b.Identifier, address) {
			return &models.Classification{
				Address:    address,
				Type:       models.TypeProxy,
				Confidence: 100,
				Reason:     "Manually blocked: " + b.Reason,
				Source:     models.SourceManual,
			}
		}
	}
	return nil
}

func (e *Engine) checkTor(ctx context.Context, address string, now time.Time) *models.Classification {
	if !e.torEnabled {
		return nil
	}
	isExit, err := e.repo.IsTorExit(ctx, address)
	if err != nil || !isExit {
		return nil
	}
	return &models.Classification{
		Address:    address,
		Type:       models.TypeTor,
		Confidence: 100,
		Source:     models.SourceTorList,
	}
}

// checkASNHeuristic always returns a classification once the ASN is
// resolved, including the tentative residential case at confidence 60: a
// resolved ASN with no hosting/VPN match still ends the pipeline at this
// layer rather than falling through to the provider layer.
func (e *Engine) checkASNHeuristic(ctx context.Context, address string, now time.Time) *models.Classification {
	if e.asnLookup == nil {
		return nil
	}
	result := e.asnLookup.Check(ctx, address)
	if result == nil || result.ASN == nil {
		return nil
	}
	asn := *result.ASN

	if manual, err := e.repo.GetManualBlock(ctx, strconv.Itoa(asn), models.ManualBlockASN, now); err == nil && manual != nil {
		return &models.Classification{
			Address:    address,
			Type:       models.TypeProxy,
			Confidence: 100,
			Reason:     "Manually blocked: " + manual.Reason,
			Source:     models.SourceManual,
			ASN:        &asn,
			ASNOrg:     result.ASNOrg,
			Country:    result.Country,
		}
	}

	asnRecord, err := e.repo.GetAsn(ctx, asn, now)
	if err != nil {
		return nil
	}
	if asnRecord == nil {
		asnRecord = &models.AsnRecord{
			ASN:       asn,
			OrgName:   result.ASNOrg,
			IsHosting: false,
			IsVPN:     false,
			Country:   result.Country,
			ExpiresAt: now.Add(24 * time.Hour),
		}
		if err := e.repo.UpsertAsn(ctx, asnRecord); err != nil {
			log.Printf("reputation: failed to cache ASN %d metadata: %v", asn, err)
		}
	}

	switch {
	case asnRecord.IsHosting:
		return &models.Classification{Address: address, Type: models.TypeHosting, Confidence: 85, Source: models.SourceHeuristic, ASN: &asn, ASNOrg: result.ASNOrg, Country: result.Country}
	case asnRecord.IsVPN:
		return &models.Classification{Address: address, Type: models.TypeVPN, Confidence: 85, Source: models.SourceHeuristic, ASN: &asn, ASNOrg: result.ASNOrg, Country: result.Country}
	default:
		return &models.Classification{Address: address, Type: models.TypeResidential, Confidence: 60, Reason: "tentative: no hosting/VPN ASN match", Source: models.SourceHeuristic, ASN: &asn, ASNOrg: result.ASNOrg, Country: result.Country}
	}
}

// checkProviders consults adapters in priority order, preferring the
// provider cache; it returns the first result
// carrying any positive indicator, collapsing tor > vpn > proxy > hosting.
func (e *Engine) checkProviders(ctx context.Context, address string) *models.Classification {
	if e.registry == nil {
		return nil
	}
	now := time.Now()
	for _, adapter := range e.registry.Enabled() {
		result := e.providerResult(ctx, adapter, address, now)
		if result == nil {
			continue
		}
		if !result.IsProxy && !result.IsVPN && !result.IsTor && !result.IsHosting {
			continue
		}
		return &models.Classification{
			Address:    address,
			Type:       collapseProviderType(result),
			Confidence: result.Confidence,
			Source:     models.SourceProvider,
			ASN:        result.ASN,
			ASNOrg:     result.ASNOrg,
			Country:    result.Country,
		}
	}
	return nil
}

func collapseProviderType(r *models.ProviderResult) models.ReputationType {
	switch {
	case r.IsTor:
		return models.TypeTor
	case r.IsVPN:
		return models.TypeVPN
	case r.IsProxy:
		return models.TypeProxy
	case r.IsHosting:
		return models.TypeHosting
	default:
		return models.TypeUnknown
	}
}

func (e *Engine) providerResult(ctx context.Context, adapter providers.Adapter, address string, now time.Time) *models.ProviderResult {
	if cached, err := e.repo.GetProviderCached(ctx, address, adapter.Name(), now); err == nil && cached != nil {
		return decodeProviderCache(address, cached.RawResponse)
	}

	result := adapter.Check(ctx, address)
	if result == nil {
		return nil
	}
	if raw := encodeProviderResult(result); raw != nil {
		if err := e.repo.SetProviderCached(ctx, address, adapter.Name(), raw, e.cacheTTL, now); err != nil {
			log.Printf("reputation: failed to cache provider %s result: %v", adapter.Name(), err)
		}
	}
	return result
}

func (e *Engine) fromRecord(rec *models.ReputationRecord, source models.ReputationSource) *models.Classification {
	return &models.Classification{
		Address:    rec.Address,
		Type:       rec.Type(),
		Confidence: rec.Confidence,
		Reason:     rec.Reason,
		Source:     source,
		ASN:        rec.ASN,
		ASNOrg:     rec.ASNOrg,
		Country:    rec.Country,
	}
}

// finish writes the classification through to the reputation cache, bumps
// the per-type stat counter, and emits a decision log at warn level for
// suspicious classifications, "After pipeline" step.
func (e *Engine) finish(ctx context.Context, c *models.Classification, now time.Time) {
	rec := &models.ReputationRecord{
		Address:     c.Address,
		Proxy:       c.Type == models.TypeProxy,
		VPN:         c.Type == models.TypeVPN,
		Tor:         c.Type == models.TypeTor,
		Hosting:     c.Type == models.TypeHosting,
		Residential: c.Type == models.TypeResidential,
		Confidence:  c.Confidence,
		Reason:      c.Reason,
		Source:      c.Source,
		ASN:         c.ASN,
		ASNOrg:      c.ASNOrg,
		Country:     c.Country,
	}
	if err := e.repo.UpsertReputation(ctx, rec, e.cacheTTL, now); err != nil {
		log.Printf("reputation: failed to cache classification for %s: %v", c.Address, err)
	}

	e.incrementStat(ctx, "classify_"+string(c.Type), now)

	if c.Type != models.TypeUnknown && c.Type != models.TypeResidential {
		log.Printf("WARN reputation: %s classified as %s (confidence=%d source=%s)", c.Address, c.Type, c.Confidence, c.Source)
	} else {
		log.Printf("DEBUG reputation: %s classified as %s (confidence=%d source=%s)", c.Address, c.Type, c.Confidence, c.Source)
	}

	if e.producer != nil {
		event := kafka.NewReputationClassifiedEvent(*c, now)
		if err := e.producer.PublishReputationClassified(ctx, event); err != nil {
			log.Printf("reputation: failed to publish classification event: %v", err)
		}
	}
}

func (e *Engine) incrementStat(ctx context.Context, name string, now time.Time) {
	if err := e.repo.IncrementStat(ctx, name, 1, now); err != nil {
		log.Printf("reputation: failed to increment stat %q: %v", name, err)
	}
}
