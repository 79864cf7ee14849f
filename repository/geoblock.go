package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/ratelimit-gateway/admission-gateway/models"
)

// GeoBlockRepository is the Geo-Block Registry.
type GeoBlockRepository struct {
	db *sql.DB
}

func NewGeoBlockRepository(db *sql.DB) *GeoBlockRepository {
	return &GeoBlockRepository{db: db}
}

func (r *GeoBlockRepository) IsEnabled(ctx context.Context) (bool, error) {
	var enabled bool
	err := r.db.QueryRowContext(ctx, `SELECT enabled FROM geo_block_settings WHERE id = 1`).Scan(&enabled)
	return enabled, err
}

func (r *GeoBlockRepository) SetEnabled(ctx context.Context, enabled bool) error {
	_, err := r.db.ExecContext(ctx, `UPDATE geo_block_settings SET enabled = $1 WHERE id = 1`, enabled)
	return err
}

// IsBlocked case-folds code to uppercase before comparing against stored entries.
func (r *GeoBlockRepository) IsBlocked(ctx context.Context, code string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM geo_block_countries WHERE code = $1)`
	err := r.db.QueryRowContext(ctx, query, strings.ToUpper(code)).Scan(&exists)
	return exists, err
}

func (r *GeoBlockRepository) Add(ctx context.Context, code, name string) error {
	query := `INSERT INTO geo_block_countries (code, name) VALUES ($1, $2) ON CONFLICT (code) DO UPDATE SET name = EXCLUDED.name`
	_, err := r.db.ExecContext(ctx, query, strings.ToUpper(code), name)
	return err
}

func (r *GeoBlockRepository) Remove(ctx context.Context, code string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM geo_block_countries WHERE code = $1`, strings.ToUpper(code))
	return err
}

func (r *GeoBlockRepository) List(ctx context.Context) ([]models.GeoBlockSetting, error) {
	enabled, err := r.IsEnabled(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, `SELECT code FROM geo_block_countries`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	codes := make(map[string]struct{})
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, err
		}
		codes[code] = struct{}{}
	}

	return []models.GeoBlockSetting{{Enabled: enabled, BlockedCountries: codes}}, nil
}

// ReplaceAll atomically swaps the blocked-country set for entries.
func (r *GeoBlockRepository) ReplaceAll(ctx context.Context, entries []string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM geo_block_countries`); err != nil {
		return err
	}
	for _, code := range entries {
		if _, err := tx.ExecContext(ctx, `INSERT INTO geo_block_countries (code) VALUES ($1) ON CONFLICT (code) DO NOTHING`, strings.ToUpper(code)); err != nil {
			return err
		}
	}
	return tx.Commit()
}
