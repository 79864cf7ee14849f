package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{
			name:    "cf-connecting-ip takes precedence",
			headers: map[string]string{"Cf-Connecting-Ip": "1.1.1.1", "X-Forwarded-For": "2.2.2.2", "X-Real-Ip": "3.3.3.3"},
			remote:  "4.4.4.4:5555",
			want:    "1.1.1.1",
		},
		{
			name:    "x-forwarded-for used when no cf header, first of list",
			headers: map[string]string{"X-Forwarded-For": "2.2.2.2, 9.9.9.9", "X-Real-Ip": "3.3.3.3"},
			remote:  "4.4.4.4:5555",
			want:    "2.2.2.2",
		},
		{
			name:    "x-real-ip used when neither cf nor xff present",
			headers: map[string]string{"X-Real-Ip": "3.3.3.3"},
			remote:  "4.4.4.4:5555",
			want:    "3.3.3.3",
		},
		{
			name:   "falls back to remote addr with port stripped",
			remote: "4.4.4.4:5555",
			want:   "4.4.4.4",
		},
		{
			name:   "falls back to bracketed ipv6 remote addr",
			remote: "[::1]:5555",
			want:   "::1",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			if got := getClientIP(req); got != tt.want {
				t.Errorf("getClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCORSSetsHeadersAndForwards(t *testing.T) {
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	CORS(next).ServeHTTP(rec, req)

	if !called {
		t.Error("CORS should forward non-OPTIONS requests to next")
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, "*")
	}
}

func TestCORSShortCircuitsOptions(t *testing.T) {
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	req := httptest.NewRequest(http.MethodOptions, "/", nil)
	rec := httptest.NewRecorder()
	CORS(next).ServeHTTP(rec, req)

	if called {
		t.Error("CORS should not forward OPTIONS requests to next")
	}
	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNoContent)
	}
}
