package admission

import (
	"context"
	"fmt"
	"time"

	"github.com/ratelimit-gateway/admission-gateway/models"
	"github.com/ratelimit-gateway/admission-gateway/repository"
)

// AbuseDetector is the burst/baseline detector invoked from the admission
// pipeline only after the rate-limit check has allowed the request.
type AbuseDetector struct {
	logs   *repository.RequestLogRepository
	bans   *repository.BanRepository
	config models.AbuseDetectorConfig
}

func NewAbuseDetector(logs *repository.RequestLogRepository, bans *repository.BanRepository, config models.AbuseDetectorConfig) *AbuseDetector {
	return &AbuseDetector{logs: logs, bans: bans, config: config}
}

// Check implements the absolute burst rule and the baseline-spike rule. A
// true return means an auto-ban was created and the caller should flip the
// decision to denied. Auto-ban creation must not fail silently: if it
// fails, Check returns (false, err) so the caller logs the failure and the
// request is allowed.
func (d *AbuseDetector) Check(ctx context.Context, identifier string, now time.Time) (bool, error) {
	current, err := d.logs.CountInWindow(ctx, identifier, d.config.BurstWindowSeconds, now)
	if err != nil {
		return false, err
	}

	if current >= d.config.BurstThreshold {
		reason := fmt.Sprintf("Burst detection: %d requests in %ds", current, d.config.BurstWindowSeconds)
		return d.fire(ctx, identifier, reason, now)
	}

	baseline, err := d.logs.BaselineRatePerMinute(ctx, identifier, 60, now)
	if err != nil {
		return false, err
	}

	currentRate := float64(current) / (float64(d.config.BurstWindowSeconds) / 60.0)
	if baseline > 0 && currentRate > baseline*d.config.BurstMultiplier {
		reason := fmt.Sprintf("Baseline spike: %.2f req/min vs baseline %.2f", currentRate, baseline)
		return d.fire(ctx, identifier, reason, now)
	}

	return false, nil
}

func (d *AbuseDetector) fire(ctx context.Context, identifier, reason string, now time.Time) (bool, error) {
	if _, err := d.bans.CreateAutoBan(ctx, identifier, reason, d.config.AutoBanDurationSecs, now); err != nil {
		return false, err
	}
	return true, nil
}
