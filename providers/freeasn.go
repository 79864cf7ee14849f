package providers

import (
	"context"
	"regexp"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/ratelimit-gateway/admission-gateway/models"
)

// FreeASN is the "Free ASN-only" reference adapter: always
// enabled, used by the ASN-heuristic layer of the reputation engine to
// resolve an address to its autonomous system. Confidence 75.
type FreeASN struct {
	client  *resty.Client
	timeout time.Duration
}

func NewFreeASN(timeout time.Duration) *FreeASN {
	client := resty.New().SetHeader("User-Agent", "admission-gateway-freeasn/1.0")
	return &FreeASN{client: client, timeout: timeout}
}

func (p *FreeASN) Name() string    { return "freeasn" }
func (p *FreeASN) Priority() int   { return 1 }
func (p *FreeASN) IsEnabled() bool { return true }

type freeASNResponse struct {
	AS      string `json:"as"`
	Org     string `json:"org"`
	ISP     string `json:"isp"`
	Country string `json:"country"`
}

var asNumberPattern = regexp.MustCompile(`^AS(\d+)`)

// Check resolves address's ASN via a free ASN-lookup endpoint. Field
// mapping : "as" holds "AS<digits> <org>"; org falls back
// to isp when absent.
func (p *FreeASN) Check(ctx context.Context, address string) *models.ProviderResult {
	callCtx, cancel := withTimeout(ctx, p.timeout)
	defer cancel()

	var result freeASNResponse
	resp, err := p.client.R().
		SetContext(callCtx).
		SetQueryParam("fields", "as,org,isp,country").
		SetResult(&result).
		Get("http://ip-api.com/json/" + address)
	if err != nil || resp.IsError() {
		return nil
	}

	org := result.Org
	if org == "" {
		org = result.ISP
	}

	provider := &models.ProviderResult{
		Address:    address,
		Confidence: 75,
		ASNOrg:     org,
		Country:    result.Country,
		Raw:        resp.Body(),
	}

	if m := asNumberPattern.FindStringSubmatch(result.AS); m != nil {
		if asn, err := strconv.Atoi(m[1]); err == nil {
			provider.ASN = &asn
		}
	}

	return provider
}
