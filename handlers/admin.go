package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/ratelimit-gateway/admission-gateway/models"
	"github.com/ratelimit-gateway/admission-gateway/repository"
)

// AdminHandler is a thin HTTP façade: it exposes the repositories'
// create/list/get/rotate/deactivate/delete operations over HTTP and holds
// no state of its own. The ban and reputation stores are the source of
// truth; there is no separate in-memory cache to keep in sync with them.
type AdminHandler struct {
	keys  *repository.APIKeyRepository
	bans  *repository.BanRepository
	geo   *repository.GeoBlockRepository
	rep   *repository.ReputationRepository
	logs  *repository.RequestLogRepository
}

func NewAdminHandler(
	keys *repository.APIKeyRepository,
	bans *repository.BanRepository,
	geo *repository.GeoBlockRepository,
	rep *repository.ReputationRepository,
	logs *repository.RequestLogRepository,
) *AdminHandler {
	return &AdminHandler{keys: keys, bans: bans, geo: geo, rep: rep, logs: logs}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, err error) {
	if coreErr, ok := err.(*models.CoreError); ok {
		status := http.StatusInternalServerError
		switch coreErr.Kind {
		case models.ErrValidation:
			status = http.StatusBadRequest
		case models.ErrNotFound:
			status = http.StatusNotFound
		case models.ErrInvalidCredentials:
			status = http.StatusUnauthorized
		}
		writeJSON(w, status, map[string]string{"error": coreErr.Message, "kind": string(coreErr.Kind)})
		return
	}
	log.Printf("handlers: internal error: %v", err)
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
}

// --- API keys ---

func (h *AdminHandler) CreateKey(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name          string            `json:"name"`
		Limit         int               `json:"limit"`
		WindowSeconds int               `json:"window_seconds"`
		ExpiresAt     *time.Time        `json:"expires_at"`
		Metadata      map[string]string `json:"metadata"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	key, plaintext, err := h.keys.Create(r.Context(), req.Name, req.Limit, req.WindowSeconds, req.ExpiresAt, req.Metadata, time.Now())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"key": key, "plaintext": plaintext})
}

func (h *AdminHandler) ListKeys(w http.ResponseWriter, r *http.Request) {
	limit, offset := pageParams(r)
	keys, err := h.keys.List(r.Context(), limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"keys": keys, "count": len(keys)})
}

func (h *AdminHandler) GetKey(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.URL.Query().Get("id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}
	key, err := h.keys.GetById(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if key == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "key not found"})
		return
	}
	writeJSON(w, http.StatusOK, key)
}

func (h *AdminHandler) RotateKey(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.URL.Query().Get("id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}
	key, plaintext, err := h.keys.Rotate(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"key": key, "plaintext": plaintext})
}

func (h *AdminHandler) DeactivateKey(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.URL.Query().Get("id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}
	if err := h.keys.Deactivate(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "key deactivated"})
}

func (h *AdminHandler) DeleteKey(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.URL.Query().Get("id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}
	if err := h.keys.Delete(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "key deleted"})
}

// --- Bans ---

func (h *AdminHandler) CreateBan(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Identifier      string `json:"identifier"`
		Reason          string `json:"reason"`
		DurationSeconds *int   `json:"duration_seconds"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	ban, err := h.bans.Create(r.Context(), req.Identifier, req.Reason, req.DurationSeconds, models.BanCreatedByAdmin, time.Now())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ban)
}

func (h *AdminHandler) ListBans(w http.ResponseWriter, r *http.Request) {
	limit, offset := pageParams(r)
	bans, err := h.bans.ListActive(r.Context(), time.Now(), limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"bans": bans, "count": len(bans)})
}

func (h *AdminHandler) RemoveBan(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.URL.Query().Get("id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}
	if err := h.bans.Remove(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "ban removed"})
}

// --- Geo-block ---

func (h *AdminHandler) GetGeoBlock(w http.ResponseWriter, r *http.Request) {
	settings, err := h.geo.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settings[0])
}

func (h *AdminHandler) SetGeoBlock(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if err := h.geo.SetEnabled(r.Context(), req.Enabled); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"enabled": req.Enabled})
}

func (h *AdminHandler) AddGeoBlockCountry(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code string `json:"code"`
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if err := h.geo.Add(r.Context(), req.Code, req.Name); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"code": req.Code})
}

func (h *AdminHandler) RemoveGeoBlockCountry(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if err := h.geo.Remove(r.Context(), code); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "country removed"})
}

func (h *AdminHandler) ReplaceGeoBlockCountries(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Codes []string `json:"codes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if err := h.geo.ReplaceAll(r.Context(), req.Codes); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": len(req.Codes)})
}

// --- Manual reputation blocks ---

func (h *AdminHandler) AddManualBlock(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Identifier string     `json:"identifier"`
		Kind       string     `json:"kind"`
		Reason     string     `json:"reason"`
		BlockedBy  string     `json:"blocked_by"`
		ExpiresAt  *time.Time `json:"expires_at"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	entry, err := h.rep.AddManualBlock(r.Context(), req.Identifier, models.ManualBlockKind(req.Kind), req.Reason, req.BlockedBy, req.ExpiresAt, time.Now())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (h *AdminHandler) RemoveManualBlock(w http.ResponseWriter, r *http.Request) {
	identifier := r.URL.Query().Get("identifier")
	kind := r.URL.Query().Get("kind")
	if err := h.rep.RemoveManualBlock(r.Context(), identifier, models.ManualBlockKind(kind)); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "manual block removed"})
}

func (h *AdminHandler) ListManualBlocks(w http.ResponseWriter, r *http.Request) {
	entries, err := h.rep.ListManualBlocks(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"blocks": entries, "count": len(entries)})
}

// --- Aggregate stats ---

func (h *AdminHandler) Aggregate(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	start := now.Add(-24 * time.Hour)
	stats, err := h.logs.Aggregate(r.Context(), start, now, 10)
	if err != nil {
		writeError(w, err)
		return
	}
	if count, err := h.bans.CountActive(r.Context(), now); err == nil {
		stats.ActiveBans = count
	}
	if count, err := h.keys.CountActive(r.Context(), now); err == nil {
		stats.ActiveKeys = count
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *AdminHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "service": "admission-gateway"})
}

func pageParams(r *http.Request) (limit, offset int) {
	limit = 50
	offset = 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed >= 0 {
			offset = parsed
		}
	}
	return limit, offset
}
