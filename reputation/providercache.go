package reputation

import (
	"encoding/json"
	"log"

	"github.com/ratelimit-gateway/admission-gateway/models"
)

// cachedProvider is the normalized shape stored in provider_cache_entries,
// independent of each adapter's own raw response format.
type cachedProvider struct {
	IsProxy    bool   `json:"is_proxy"`
	IsVPN      bool   `json:"is_vpn"`
	IsTor      bool   `json:"is_tor"`
	IsHosting  bool   `json:"is_hosting"`
	Confidence int    `json:"confidence"`
	ASN        *int   `json:"asn,omitempty"`
	ASNOrg     string `json:"asn_org,omitempty"`
	Country    string `json:"country,omitempty"`
}

func encodeProviderResult(r *models.ProviderResult) []byte {
	data, err := json.Marshal(cachedProvider{
		IsProxy:    r.IsProxy,
		IsVPN:      r.IsVPN,
		IsTor:      r.IsTor,
		IsHosting:  r.IsHosting,
		Confidence: r.Confidence,
		ASN:        r.ASN,
		ASNOrg:     r.ASNOrg,
		Country:    r.Country,
	})
	if err != nil {
		log.Printf("reputation: failed to encode provider result for cache: %v", err)
		return nil
	}
	return data
}

func decodeProviderCache(address string, raw []byte) *models.ProviderResult {
	var c cachedProvider
	if err := json.Unmarshal(raw, &c); err != nil {
		log.Printf("reputation: failed to decode cached provider result: %v", err)
		return nil
	}
	return &models.ProviderResult{
		Address:    address,
		IsProxy:    c.IsProxy,
		IsVPN:      c.IsVPN,
		IsTor:      c.IsTor,
		IsHosting:  c.IsHosting,
		Confidence: c.Confidence,
		ASN:        c.ASN,
		ASNOrg:     c.ASNOrg,
		Country:    c.Country,
	}
}
