package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/ratelimit-gateway/admission-gateway/models"
)

// BanRepository is the Ban Registry.
type BanRepository struct {
	db *sql.DB
}

func NewBanRepository(db *sql.DB) *BanRepository {
	return &BanRepository{db: db}
}

// IsBanned returns the newest active ban for identifier, tie-broken by
// banned_at DESC, or nil if none is active.
func (r *BanRepository) IsBanned(ctx context.Context, identifier string, now time.Time) (*models.Ban, error) {
	query := `SELECT id, identifier, reason, banned_at, expires_at, created_by
		FROM bans
		WHERE identifier = $1 AND (expires_at IS NULL OR expires_at > $2)
		ORDER BY banned_at DESC
		LIMIT 1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, identifier, now))
}

func (r *BanRepository) scanOne(row *sql.Row) (*models.Ban, error) {
	b := &models.Ban{}
	var expiresAt sql.NullTime
	var createdBy string
	err := row.Scan(&b.ID, &b.Identifier, &b.Reason, &b.BannedAt, &expiresAt, &createdBy)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if expiresAt.Valid {
		t := expiresAt.Time
		b.ExpiresAt = &t
	}
	b.CreatedBy = models.BanCreatedBy(createdBy)
	return b, nil
}

// Create inserts a new ban row. durationSeconds nil means permanent.
func (r *BanRepository) Create(ctx context.Context, identifier, reason string, durationSeconds *int, createdBy models.BanCreatedBy, now time.Time) (*models.Ban, error) {
	ban := &models.Ban{
		ID:         uuid.New(),
		Identifier: identifier,
		Reason:     reason,
		BannedAt:   now,
		CreatedBy:  createdBy,
	}
	if durationSeconds != nil {
		expiresAt := now.Add(time.Duration(*durationSeconds) * time.Second)
		ban.ExpiresAt = &expiresAt
	}

	query := `INSERT INTO bans (id, identifier, reason, banned_at, expires_at, created_by) VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := r.db.ExecContext(ctx, query, ban.ID, ban.Identifier, ban.Reason, ban.BannedAt, ban.ExpiresAt, string(ban.CreatedBy))
	if err != nil {
		return nil, err
	}
	return ban, nil
}

// CreateAutoBan creates a system ban with the configured default duration.
// Creating a duplicate auto-ban while one is active is permitted — it
// becomes ban history, not an error.
func (r *BanRepository) CreateAutoBan(ctx context.Context, identifier, reason string, durationSeconds int, now time.Time) (*models.Ban, error) {
	return r.Create(ctx, identifier, reason, &durationSeconds, models.BanCreatedBySystem, now)
}

func (r *BanRepository) Remove(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM bans WHERE id = $1`, id)
	return err
}

func (r *BanRepository) RemoveAll(ctx context.Context, identifier string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM bans WHERE identifier = $1`, identifier)
	return err
}

func (r *BanRepository) ListActive(ctx context.Context, now time.Time, limit, offset int) ([]*models.Ban, error) {
	query := `SELECT id, identifier, reason, banned_at, expires_at, created_by
		FROM bans
		WHERE expires_at IS NULL OR expires_at > $1
		ORDER BY banned_at DESC
		LIMIT $2 OFFSET $3`
	rows, err := r.db.QueryContext(ctx, query, now, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bans []*models.Ban
	for rows.Next() {
		b := &models.Ban{}
		var expiresAt sql.NullTime
		var createdBy string
		if err := rows.Scan(&b.ID, &b.Identifier, &b.Reason, &b.BannedAt, &expiresAt, &createdBy); err != nil {
			return nil, err
		}
		if expiresAt.Valid {
			t := expiresAt.Time
			b.ExpiresAt = &t
		}
		b.CreatedBy = models.BanCreatedBy(createdBy)
		bans = append(bans, b)
	}
	return bans, nil
}

// Cleanup deletes expired ban rows and returns the number removed.
func (r *BanRepository) Cleanup(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM bans WHERE expires_at IS NOT NULL AND expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CountActive returns how many identifiers currently carry an active ban.
func (r *BanRepository) CountActive(ctx context.Context, now time.Time) (int64, error) {
	var count int64
	query := `SELECT COUNT(DISTINCT identifier) FROM bans WHERE expires_at IS NULL OR expires_at > $1`
	err := r.db.QueryRowContext(ctx, query, now).Scan(&count)
	return count, err
}
