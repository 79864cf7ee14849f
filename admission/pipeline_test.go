package admission

import (
	"testing"

	"github.com/ratelimit-gateway/admission-gateway/models"
)

func TestDeriveIdentifier(t *testing.T) {
	tests := []struct {
		name         string
		envelope     models.RequestEnvelope
		wantID       string
		wantHasToken bool
	}{
		{
			name:         "api key present takes precedence over address",
			envelope:     models.RequestEnvelope{APIKey: "key-123", Address: "1.2.3.4"},
			wantID:       "key-123",
			wantHasToken: true,
		},
		{
			name:         "address used when no api key",
			envelope:     models.RequestEnvelope{Address: "1.2.3.4"},
			wantID:       "1.2.3.4",
			wantHasToken: false,
		},
		{
			name:         "neither present yields empty identifier",
			envelope:     models.RequestEnvelope{},
			wantID:       "",
			wantHasToken: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, hasToken := deriveIdentifier(tt.envelope)
			if id != tt.wantID {
				t.Errorf("deriveIdentifier() id = %q, want %q", id, tt.wantID)
			}
			if hasToken != tt.wantHasToken {
				t.Errorf("deriveIdentifier() hasToken = %v, want %v", hasToken, tt.wantHasToken)
			}
		})
	}
}

func TestFailOpenAllowsRequest(t *testing.T) {
	decision := failOpen()
	if !decision.Allowed {
		t.Error("failOpen() should allow the request")
	}
	if decision.Reason != models.ReasonOK {
		t.Errorf("failOpen() Reason = %v, want %v", decision.Reason, models.ReasonOK)
	}
}
