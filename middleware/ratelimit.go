package middleware

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/ratelimit-gateway/admission-gateway/admission"
	"github.com/ratelimit-gateway/admission-gateway/models"
)

// AdmissionMiddleware is the HTTP adapter over admission.Pipeline: it builds
// the request envelope, calls Check, writes the rate-limit response
// headers, and either forwards the request or answers 403/429 itself.
type AdmissionMiddleware struct {
	pipeline *admission.Pipeline
}

func NewAdmissionMiddleware(pipeline *admission.Pipeline) *AdmissionMiddleware {
	return &AdmissionMiddleware{pipeline: pipeline}
}

func (m *AdmissionMiddleware) Admit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		envelope := models.RequestEnvelope{
			Address:   getClientIP(r),
			APIKey:    r.Header.Get("X-API-Key"),
			Path:      r.URL.Path,
			Method:    r.Method,
			UserAgent: r.UserAgent(),
			Country:   r.Header.Get("X-Country-Code"),
		}

		decision := m.pipeline.Check(r.Context(), envelope)

		if decision.Limit > 0 {
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
		}
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
		if !decision.ResetAt.IsZero() {
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(decision.ResetAt.Unix(), 10))
		}

		if !decision.Allowed {
			if decision.RetryAfter != nil {
				w.Header().Set("Retry-After", strconv.Itoa(*decision.RetryAfter))
			}
			status := http.StatusForbidden
			if decision.Reason == models.ReasonRateLimited {
				status = http.StatusTooManyRequests
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"allowed": false,
				"reason":  decision.Reason,
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}

// getClientIP resolves the caller's address from the proxy header
// precedence names: cf-connecting-ip, then the first of a
// comma-split x-forwarded-for, then x-real-ip, falling back to the
// connection's remote address.
func getClientIP(r *http.Request) string {
	if cf := r.Header.Get("Cf-Connecting-Ip"); cf != "" {
		return cf
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}

	if xri := r.Header.Get("X-Real-Ip"); xri != "" {
		return xri
	}

	ip := r.RemoteAddr
	if colonIdx := strings.LastIndex(ip, ":"); colonIdx != -1 {
		ip = ip[:colonIdx]
	}
	return strings.Trim(ip, "[]")
}
