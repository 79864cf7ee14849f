package repository

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/ratelimit-gateway/admission-gateway/models"
)

// APIKeyRepository is the API-Key Registry.
type APIKeyRepository struct {
	db *sql.DB
}

func NewAPIKeyRepository(db *sql.DB) *APIKeyRepository {
	return &APIKeyRepository{db: db}
}

// Fingerprint hashes a plaintext key with SHA-256, hex-encoded lowercase
//.
func Fingerprint(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}

// generatePlaintext returns an "rl_"-prefixed, URL-safe token with at least
// 128 bits of entropy.
func generatePlaintext() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return "rl_" + base64.RawURLEncoding.EncodeToString(buf), nil
}

// Create validates and inserts a new key, returning the record and the
// one-time plaintext. Validation failures return a *models.CoreError tagged
// validation_error and perform no write.
func (r *APIKeyRepository) Create(ctx context.Context, name string, limit, windowSeconds int, expiresAt *time.Time, metadata map[string]string, now time.Time) (*models.ApiKey, string, error) {
	if err := validateKeyFields(name, limit, windowSeconds, expiresAt, now); err != nil {
		return nil, "", err
	}

	plaintext, err := generatePlaintext()
	if err != nil {
		return nil, "", err
	}

	key := &models.ApiKey{
		ID:             uuid.New(),
		KeyFingerprint: Fingerprint(plaintext),
		DisplayName:    name,
		Limit:          limit,
		WindowSeconds:  windowSeconds,
		Active:         true,
		CreatedAt:      now,
		ExpiresAt:      expiresAt,
		Metadata:       metadata,
	}

	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return nil, "", err
	}

	query := `INSERT INTO api_keys (id, key_fingerprint, display_name, "limit", window_seconds, active, created_at, expires_at, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err = r.db.ExecContext(ctx, query, key.ID, key.KeyFingerprint, key.DisplayName, key.Limit, key.WindowSeconds, key.Active, key.CreatedAt, key.ExpiresAt, metaJSON)
	if err != nil {
		return nil, "", err
	}
	return key, plaintext, nil
}

func validateKeyFields(name string, limit, windowSeconds int, expiresAt *time.Time, now time.Time) error {
	if name == "" || len(name) > 100 {
		return models.NewValidationError("name must be non-empty and at most 100 characters")
	}
	if limit < 1 {
		return models.NewValidationError("limit must be >= 1")
	}
	if windowSeconds < 1 {
		return models.NewValidationError("window_seconds must be >= 1")
	}
	if expiresAt != nil && !expiresAt.After(now) {
		return models.NewValidationError("expires_at must be strictly in the future")
	}
	return nil
}

// Lookup hashes plaintext and returns the active, non-expired row. Per
// Open Questions, an expired key may still have active=true, so
// both conditions are checked here rather than relying on the active column
// alone. As a side effect it touches last_used_at.
func (r *APIKeyRepository) Lookup(ctx context.Context, plaintext string, now time.Time) (*models.ApiKey, error) {
	fingerprint := Fingerprint(plaintext)
	key, err := r.getByFingerprint(ctx, fingerprint)
	if err != nil || key == nil {
		return nil, err
	}
	if !key.Active || key.IsExpired(now) {
		return nil, nil
	}

	if _, err := r.db.ExecContext(ctx, `UPDATE api_keys SET last_used_at = $1 WHERE id = $2`, now, key.ID); err != nil {
		return nil, err
	}
	key.LastUsedAt = &now
	return key, nil
}

func (r *APIKeyRepository) getByFingerprint(ctx context.Context, fingerprint string) (*models.ApiKey, error) {
	query := `SELECT id, key_fingerprint, display_name, "limit", window_seconds, active, created_at, expires_at, last_used_at, metadata
		FROM api_keys WHERE key_fingerprint = $1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, fingerprint))
}

func (r *APIKeyRepository) scanOne(row *sql.Row) (*models.ApiKey, error) {
	k := &models.ApiKey{}
	var expiresAt, lastUsedAt sql.NullTime
	var metaJSON []byte
	err := row.Scan(&k.ID, &k.KeyFingerprint, &k.DisplayName, &k.Limit, &k.WindowSeconds, &k.Active, &k.CreatedAt, &expiresAt, &lastUsedAt, &metaJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if expiresAt.Valid {
		t := expiresAt.Time
		k.ExpiresAt = &t
	}
	if lastUsedAt.Valid {
		t := lastUsedAt.Time
		k.LastUsedAt = &t
	}
	if len(metaJSON) > 0 {
		_ = json.Unmarshal(metaJSON, &k.Metadata)
	}
	return k, nil
}

func (r *APIKeyRepository) GetById(ctx context.Context, id uuid.UUID) (*models.ApiKey, error) {
	query := `SELECT id, key_fingerprint, display_name, "limit", window_seconds, active, created_at, expires_at, last_used_at, metadata
		FROM api_keys WHERE id = $1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

func (r *APIKeyRepository) List(ctx context.Context, limit, offset int) ([]*models.ApiKey, error) {
	query := `SELECT id, key_fingerprint, display_name, "limit", window_seconds, active, created_at, expires_at, last_used_at, metadata
		FROM api_keys ORDER BY created_at DESC LIMIT $1 OFFSET $2`
	rows, err := r.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []*models.ApiKey
	for rows.Next() {
		k := &models.ApiKey{}
		var expiresAt, lastUsedAt sql.NullTime
		var metaJSON []byte
		if err := rows.Scan(&k.ID, &k.KeyFingerprint, &k.DisplayName, &k.Limit, &k.WindowSeconds, &k.Active, &k.CreatedAt, &expiresAt, &lastUsedAt, &metaJSON); err != nil {
			return nil, err
		}
		if expiresAt.Valid {
			t := expiresAt.Time
			k.ExpiresAt = &t
		}
		if lastUsedAt.Valid {
			t := lastUsedAt.Time
			k.LastUsedAt = &t
		}
		if len(metaJSON) > 0 {
			_ = json.Unmarshal(metaJSON, &k.Metadata)
		}
		keys = append(keys, k)
	}
	return keys, nil
}

// Rotate replaces the fingerprint with a freshly generated plaintext's
// fingerprint and resets last_used_at, keeping the record id unchanged
//.
func (r *APIKeyRepository) Rotate(ctx context.Context, id uuid.UUID) (*models.ApiKey, string, error) {
	plaintext, err := generatePlaintext()
	if err != nil {
		return nil, "", err
	}
	fingerprint := Fingerprint(plaintext)

	query := `UPDATE api_keys SET key_fingerprint = $1, last_used_at = NULL WHERE id = $2`
	res, err := r.db.ExecContext(ctx, query, fingerprint, id)
	if err != nil {
		return nil, "", err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, "", err
	}
	if affected == 0 {
		return nil, "", models.NewNotFoundError("api key not found")
	}

	key, err := r.GetById(ctx, id)
	if err != nil {
		return nil, "", err
	}
	return key, plaintext, nil
}

func (r *APIKeyRepository) Deactivate(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `UPDATE api_keys SET active = false WHERE id = $1`, id)
	return err
}

func (r *APIKeyRepository) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM api_keys WHERE id = $1`, id)
	return err
}

func (r *APIKeyRepository) CountActive(ctx context.Context, now time.Time) (int64, error) {
	var count int64
	query := `SELECT COUNT(*) FROM api_keys WHERE active = true AND (expires_at IS NULL OR expires_at > $1)`
	err := r.db.QueryRowContext(ctx, query, now).Scan(&count)
	return count, err
}

// IsExpired reports whether key has passed its expiry.
func (r *APIKeyRepository) IsExpired(key *models.ApiKey, now time.Time) bool {
	return key.IsExpired(now)
}
