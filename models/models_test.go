package models_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ratelimit-gateway/admission-gateway/models"
)

func TestApiKeyIsExpired(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	tests := []struct {
		name      string
		expiresAt *time.Time
		want      bool
	}{
		{"no expiry never expires", nil, false},
		{"expiry in the future", &future, false},
		{"expiry in the past", &past, true},
		{"expiry exactly now", &now, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k := &models.ApiKey{ExpiresAt: tt.expiresAt}
			assert.Equal(t, tt.want, k.IsExpired(now))
		})
	}
}

func TestBanIsActive(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	tests := []struct {
		name      string
		expiresAt *time.Time
		want      bool
	}{
		{"permanent ban is active", nil, true},
		{"ban expiring in the future is active", &future, true},
		{"ban expired in the past is inactive", &past, false},
		{"ban expiring exactly now is inactive", &now, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &models.Ban{ExpiresAt: tt.expiresAt}
			assert.Equal(t, tt.want, b.IsActive(now))
		})
	}
}

func TestReputationRecordType(t *testing.T) {
	tests := []struct {
		name string
		rec  models.ReputationRecord
		want models.ReputationType
	}{
		{"all unset is unknown", models.ReputationRecord{}, models.TypeUnknown},
		{"tor wins over everything", models.ReputationRecord{Tor: true, VPN: true, Proxy: true}, models.TypeTor},
		{"vpn wins over proxy and hosting", models.ReputationRecord{VPN: true, Proxy: true, Hosting: true}, models.TypeVPN},
		{"proxy wins over hosting", models.ReputationRecord{Proxy: true, Hosting: true}, models.TypeProxy},
		{"hosting alone", models.ReputationRecord{Hosting: true}, models.TypeHosting},
		{"residential alone", models.ReputationRecord{Residential: true}, models.TypeResidential},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.rec.Type())
		})
	}
}

func TestReputationRecordIsExpired(t *testing.T) {
	now := time.Now()
	fresh := models.ReputationRecord{ExpiresAt: now.Add(time.Minute)}
	stale := models.ReputationRecord{ExpiresAt: now.Add(-time.Minute)}

	assert.False(t, fresh.IsExpired(now))
	assert.True(t, stale.IsExpired(now))
}

func TestManualBlockEntryIsActive(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Hour)

	permanent := &models.ManualBlockEntry{}
	assert.True(t, permanent.IsActive(now))

	expired := &models.ManualBlockEntry{ExpiresAt: &past}
	assert.False(t, expired.IsActive(now))
}

func TestCoreError(t *testing.T) {
	err := models.NewValidationError("limit must be positive")
	assert.Equal(t, models.ErrValidation, err.Kind)
	assert.Equal(t, "validation_error: limit must be positive", err.Error())

	nf := models.NewNotFoundError("key not found")
	assert.Equal(t, models.ErrNotFound, nf.Kind)

	ie := models.NewInternalError("store unavailable")
	assert.Equal(t, models.ErrInternal, ie.Kind)
}
