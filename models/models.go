package models

import (
	"time"

	"github.com/google/uuid"
)

// ApiKey is a caller-issued credential. Only the fingerprint is persisted;
// the plaintext is returned once, at Create/Rotate time, and never stored.
type ApiKey struct {
	ID             uuid.UUID
	KeyFingerprint string
	DisplayName    string
	Limit          int
	WindowSeconds  int
	Active         bool
	CreatedAt      time.Time
	ExpiresAt      *time.Time
	LastUsedAt     *time.Time
	Metadata       map[string]string
}

// IsExpired reports whether the key's expiry has passed as of now.
// A key can have Active=true past its ExpiresAt;
// callers must check both Active and IsExpired.
func (k *ApiKey) IsExpired(now time.Time) bool {
	return k.ExpiresAt != nil && !k.ExpiresAt.After(now)
}

// RateLimitConfig is the effective rate-limit configuration for a check,
// either the global default or an API key's override.
type RateLimitConfig struct {
	Limit         int
	WindowSeconds int
	Sliding       bool
}

// CounterBucket is one fixed-length window's hit count for an identifier.
type CounterBucket struct {
	Identifier  string
	WindowStart time.Time
	Count       int64
	LastTouched time.Time
}

// CounterResult is the outcome of a Counter Store Check.
type CounterResult struct {
	Allowed       bool
	Remaining     int
	ResetAt       time.Time
	Limit         int
	WindowSeconds int
}

// BanCreatedBy distinguishes operator-issued bans from detector-issued ones.
type BanCreatedBy string

const (
	BanCreatedBySystem BanCreatedBy = "system"
	BanCreatedByAdmin  BanCreatedBy = "admin"
)

// Ban is a (possibly time-limited) denial of an identifier.
type Ban struct {
	ID         uuid.UUID
	Identifier string
	Reason     string
	BannedAt   time.Time
	ExpiresAt  *time.Time
	CreatedBy  BanCreatedBy
}

// IsActive reports whether the ban is in force at the given instant.
func (b *Ban) IsActive(now time.Time) bool {
	return b.ExpiresAt == nil || b.ExpiresAt.After(now)
}

// DecisionReason is the machine-readable code carried by an admission
// Decision.
type DecisionReason string

const (
	ReasonOK          DecisionReason = "ok"
	ReasonRateLimited DecisionReason = "rate_limited"
	ReasonBanned      DecisionReason = "banned"
	ReasonGeoBlocked  DecisionReason = "geo_blocked"
	ReasonInvalidKey  DecisionReason = "invalid_key"
	ReasonExpiredKey  DecisionReason = "expired_key"
)

// RequestLogEntry is one append-only row describing an admission decision.
type RequestLogEntry struct {
	ID         uuid.UUID
	Identifier string
	Path       string
	Method     string
	Allowed    bool
	ReasonCode DecisionReason
	Country    string
	UserAgent  string
	Timestamp  time.Time
}

// GeoBlockSetting is the enabled flag plus the set of blocked countries.
type GeoBlockSetting struct {
	Enabled          bool
	BlockedCountries map[string]struct{}
}

// ReputationSource discriminates how a Classification was produced.
type ReputationSource string

const (
	SourceCache     ReputationSource = "cache"
	SourceHeuristic ReputationSource = "heuristic"
	SourceProvider  ReputationSource = "provider"
	SourceManual    ReputationSource = "manual"
	SourceTorList   ReputationSource = "tor_list"
)

// ReputationType is the collapsed five-way (plus unknown) classification tag.
type ReputationType string

const (
	TypeTor         ReputationType = "tor"
	TypeVPN         ReputationType = "vpn"
	TypeProxy       ReputationType = "proxy"
	TypeHosting     ReputationType = "hosting"
	TypeResidential ReputationType = "residential"
	TypeUnknown     ReputationType = "unknown"
)

// ReputationRecord is the persisted, TTL-scoped classification of an address.
type ReputationRecord struct {
	Address     string
	Proxy       bool
	VPN         bool
	Tor         bool
	Hosting     bool
	Residential bool
	Confidence  int
	Reason      string
	Source      ReputationSource
	ASN         *int
	ASNOrg      string
	Country     string
	CheckedAt   time.Time
	ExpiresAt   time.Time
}

// Type collapses the independent boolean bits to the single tag the
// classification fired on, in tor > vpn > proxy > hosting > residential
// priority order.
func (r *ReputationRecord) Type() ReputationType {
	switch {
	case r.Tor:
		return TypeTor
	case r.VPN:
		return TypeVPN
	case r.Proxy:
		return TypeProxy
	case r.Hosting:
		return TypeHosting
	case r.Residential:
		return TypeResidential
	default:
		return TypeUnknown
	}
}

// IsExpired reports whether the record may no longer be served from cache.
func (r *ReputationRecord) IsExpired(now time.Time) bool {
	return !r.ExpiresAt.After(now)
}

// AsnRecord is a cached or seeded classification of an autonomous system.
type AsnRecord struct {
	ASN       int
	OrgName   string
	IsHosting bool
	IsVPN     bool
	Country   string
	ExpiresAt time.Time
}

// ManualBlockKind enumerates the identifier shapes a manual block can target.
type ManualBlockKind string

const (
	ManualBlockAddress ManualBlockKind = "address"
	ManualBlockASN     ManualBlockKind = "asn"
	ManualBlockCIDR    ManualBlockKind = "cidr"
)

// ManualBlockEntry is an operator-created denylist entry.
type ManualBlockEntry struct {
	ID         uuid.UUID
	Identifier string
	Kind       ManualBlockKind
	Reason     string
	BlockedBy  string
	BlockedAt  time.Time
	ExpiresAt  *time.Time
}

// IsActive reports whether the manual block is still in force.
func (m *ManualBlockEntry) IsActive(now time.Time) bool {
	return m.ExpiresAt == nil || m.ExpiresAt.After(now)
}

// TorExitEntry is one row of the Tor-list updater's output table.
type TorExitEntry struct {
	Address   string
	FirstSeen time.Time
	LastSeen  time.Time
	IsExit    bool
}

// ProviderCacheEntry is a normalized, TTL-scoped cache of one provider's
// response for one address.
type ProviderCacheEntry struct {
	Address      string
	ProviderName string
	RawResponse  []byte
	ExpiresAt    time.Time
}

// ProviderResult is the normalized shape every provider adapter returns.
type ProviderResult struct {
	Address    string
	IsProxy    bool
	IsVPN      bool
	IsTor      bool
	IsHosting  bool
	Confidence int
	ASN        *int
	ASNOrg     string
	Country    string
	Raw        []byte
}

// Classification is the Reputation Engine's response shape.
type Classification struct {
	Address    string
	Type       ReputationType
	Confidence int
	Reason     string
	Source     ReputationSource
	ASN        *int
	ASNOrg     string
	Country    string
}

// RequestEnvelope is the admission endpoint's input.
type RequestEnvelope struct {
	Address   string
	APIKey    string
	Path      string
	Method    string
	Country   string
	UserAgent string
}

// Decision is the admission endpoint's output.
type Decision struct {
	Allowed    bool
	Reason     DecisionReason
	Remaining  int
	ResetAt    time.Time
	Limit      int
	RetryAfter *int
}

// AbuseDetectorConfig holds the burst/baseline detector's tuning.
type AbuseDetectorConfig struct {
	BurstThreshold      int
	BurstWindowSeconds  int
	BurstMultiplier     float64
	AutoBanDurationSecs int
}

// AggregateStats is the Aggregate admin query's response shape.
type AggregateStats struct {
	Total          int64
	Allowed        int64
	Blocked        int64
	ByReason       map[DecisionReason]int64
	TopIdentifiers []IdentifierCount
	TopPaths       []PathCount
	ActiveBans     int64
	ActiveKeys     int64
}

// IdentifierCount pairs an identifier with an occurrence count.
type IdentifierCount struct {
	Identifier string
	Count      int64
}

// PathCount pairs a path with an occurrence count.
type PathCount struct {
	Path  string
	Count int64
}

// ErrorKind tags a CoreError by what kind of failure it represents.
type ErrorKind string

const (
	ErrValidation         ErrorKind = "validation_error"
	ErrNotFound           ErrorKind = "not_found"
	ErrInvalidCredentials ErrorKind = "invalid_credentials"
	ErrInternal           ErrorKind = "internal_error"
)

// CoreError is the tagged error type admin-facing operations return for
// validation and not-found failures; callers branch on Kind rather than on
// Go error identity. Store errors are passed through unwrapped, and the
// admin handlers answer them as internal errors.
type CoreError struct {
	Kind    ErrorKind
	Message string
}

func (e *CoreError) Error() string {
	return string(e.Kind) + ": " + e.Message
}

func NewValidationError(msg string) *CoreError {
	return &CoreError{Kind: ErrValidation, Message: msg}
}

func NewNotFoundError(msg string) *CoreError {
	return &CoreError{Kind: ErrNotFound, Message: msg}
}

func NewInternalError(msg string) *CoreError {
	return &CoreError{Kind: ErrInternal, Message: msg}
}
