package providers

import (
	"context"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/ratelimit-gateway/admission-gateway/models"
)

// PrivacyGuard is the "Privacy provider" reference adapter:
// token-gated, priority 5, confidence 90. proxy = provider's proxy OR relay.
type PrivacyGuard struct {
	client  *resty.Client
	token   string
	timeout time.Duration
}

func NewPrivacyGuard(token string, timeout time.Duration) *PrivacyGuard {
	client := resty.New().SetHeader("User-Agent", "admission-gateway-privacyguard/1.0")
	return &PrivacyGuard{client: client, token: token, timeout: timeout}
}

func (p *PrivacyGuard) Name() string    { return "privacyguard" }
func (p *PrivacyGuard) Priority() int   { return 5 }
func (p *PrivacyGuard) IsEnabled() bool { return strings.TrimSpace(p.token) != "" }

type privacyGuardResponse struct {
	Privacy struct {
		VPN     bool `json:"vpn"`
		Proxy   bool `json:"proxy"`
		Tor     bool `json:"tor"`
		Relay   bool `json:"relay"`
		Hosting bool `json:"hosting"`
	} `json:"privacy"`
	ASN struct {
		Number  int    `json:"number"`
		Org     string `json:"org"`
		Country string `json:"country"`
	} `json:"asn"`
}

func (p *PrivacyGuard) Check(ctx context.Context, address string) *models.ProviderResult {
	callCtx, cancel := withTimeout(ctx, p.timeout)
	defer cancel()

	var result privacyGuardResponse
	resp, err := p.client.R().
		SetContext(callCtx).
		SetHeader("Authorization", "Bearer "+p.token).
		SetQueryParam("ip", address).
		SetResult(&result).
		Get("https://api.privacyguard.io/v1/lookup")
	if err != nil || resp.IsError() {
		return nil
	}

	provider := &models.ProviderResult{
		Address:    address,
		IsProxy:    result.Privacy.Proxy || result.Privacy.Relay,
		IsVPN:      result.Privacy.VPN,
		IsTor:      result.Privacy.Tor,
		IsHosting:  result.Privacy.Hosting,
		Confidence: 90,
		ASNOrg:     result.ASN.Org,
		Country:    result.ASN.Country,
		Raw:        resp.Body(),
	}
	if result.ASN.Number != 0 {
		asn := result.ASN.Number
		provider.ASN = &asn
	}
	return provider
}
