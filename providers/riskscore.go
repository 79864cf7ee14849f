package providers

import (
	"context"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/ratelimit-gateway/admission-gateway/models"
)

// RiskScore is the "Reputation provider" reference adapter:
// API-key gated, priority 8. Derives hosting/VPN/proxy from a usage-type
// string and an abuse-confidence score; final confidence = min(score+50, 100).
type RiskScore struct {
	client  *resty.Client
	apiKey  string
	timeout time.Duration
}

func NewRiskScore(apiKey string, timeout time.Duration) *RiskScore {
	client := resty.New().SetHeader("User-Agent", "admission-gateway-riskscore/1.0")
	return &RiskScore{client: client, apiKey: apiKey, timeout: timeout}
}

func (p *RiskScore) Name() string    { return "riskscore" }
func (p *RiskScore) Priority() int   { return 8 }
func (p *RiskScore) IsEnabled() bool { return strings.TrimSpace(p.apiKey) != "" }

type riskScoreResponse struct {
	UsageType            string `json:"usageType"`
	AbuseConfidenceScore int    `json:"abuseConfidenceScore"`
	ASN                  int    `json:"asn"`
	ASNOrg               string `json:"asnOrg"`
	CountryCode          string `json:"countryCode"`
}

func (p *RiskScore) Check(ctx context.Context, address string) *models.ProviderResult {
	callCtx, cancel := withTimeout(ctx, p.timeout)
	defer cancel()

	var result riskScoreResponse
	resp, err := p.client.R().
		SetContext(callCtx).
		SetHeader("Key", p.apiKey).
		SetQueryParam("ipAddress", address).
		SetResult(&result).
		Get("https://api.riskscore.io/v2/check")
	if err != nil || resp.IsError() {
		return nil
	}

	usage := strings.ToLower(result.UsageType)
	confidence := result.AbuseConfidenceScore + 50
	if confidence > 100 {
		confidence = 100
	}

	provider := &models.ProviderResult{
		Address:    address,
		IsHosting:  strings.Contains(usage, "hosting") || strings.Contains(usage, "datacenter"),
		IsVPN:      strings.Contains(usage, "vpn"),
		IsProxy:    strings.Contains(usage, "proxy"),
		Confidence: confidence,
		ASNOrg:     result.ASNOrg,
		Country:    result.CountryCode,
		Raw:        resp.Body(),
	}
	if result.ASN != 0 {
		asn := result.ASN
		provider.ASN = &asn
	}
	return provider
}
