package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ratelimit-gateway/admission-gateway/models"
)

func TestPageParamsDefaults(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/admin/keys", nil)
	limit, offset := pageParams(req)
	if limit != 50 || offset != 0 {
		t.Errorf("pageParams() = (%d, %d), want (50, 0)", limit, offset)
	}
}

func TestPageParamsFromQuery(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/admin/keys?limit=10&offset=20", nil)
	limit, offset := pageParams(req)
	if limit != 10 || offset != 20 {
		t.Errorf("pageParams() = (%d, %d), want (10, 20)", limit, offset)
	}
}

func TestPageParamsIgnoresInvalidValues(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/admin/keys?limit=-5&offset=abc", nil)
	limit, offset := pageParams(req)
	if limit != 50 || offset != 0 {
		t.Errorf("pageParams() = (%d, %d), want defaults (50, 0)", limit, offset)
	}
}

func TestWriteErrorMapsCoreErrorKinds(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"validation error maps to 400", models.NewValidationError("bad input"), http.StatusBadRequest},
		{"not found maps to 404", models.NewNotFoundError("missing"), http.StatusNotFound},
		{"invalid credentials maps to 401", &models.CoreError{Kind: models.ErrInvalidCredentials, Message: "nope"}, http.StatusUnauthorized},
		{"internal error maps to 500", models.NewInternalError("boom"), http.StatusInternalServerError},
		{"unknown error type maps to 500", errors.New("plain error"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeError(rec, tt.err)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestHealthCheck(t *testing.T) {
	h := &AdminHandler{}
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	h.HealthCheck(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body["status"] != "healthy" {
		t.Errorf("status field = %q, want %q", body["status"], "healthy")
	}
}
