package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/ratelimit-gateway/admission-gateway/models"
)

// CounterRepository is the Postgres-backed Counter Store. The atomic
// load-or-create-and-increment is a single upsert statement, so the
// row-level lock Postgres takes during the upsert is what makes two
// concurrent increments on the same bucket linearizable.
type CounterRepository struct {
	db *sql.DB
}

func NewCounterRepository(db *sql.DB) *CounterRepository {
	return &CounterRepository{db: db}
}

// GetBucket returns the bucket at windowStart, or nil if it does not exist
// yet (buckets are created lazily on first admitted hit).
func (r *CounterRepository) GetBucket(ctx context.Context, identifier string, windowStart time.Time) (*models.CounterBucket, error) {
	b := &models.CounterBucket{}
	query := `SELECT identifier, window_start, count, last_touched FROM counter_buckets WHERE identifier = $1 AND window_start = $2`
	err := r.db.QueryRowContext(ctx, query, identifier, windowStart).Scan(&b.Identifier, &b.WindowStart, &b.Count, &b.LastTouched)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

// GetCount returns the bucket's current count without modifying it, or 0
// when the bucket does not exist yet. Callers compare this against the
// limit and apply an increment separately (see Increment). Used by the
// fixed-window read path and for the previous window's count in the
// sliding-window check.
func (r *CounterRepository) GetCount(ctx context.Context, identifier string, windowStart time.Time) (int64, error) {
	b, err := r.GetBucket(ctx, identifier, windowStart)
	if err != nil {
		return 0, err
	}
	if b == nil {
		return 0, nil
	}
	return b.Count, nil
}

// Increment atomically creates-or-bumps the bucket at windowStart by one and
// returns the post-increment count. The ON CONFLICT clause is the
// compare-and-set: two concurrent increments on the same
// (identifier, window_start) row serialize on Postgres's row lock.
func (r *CounterRepository) Increment(ctx context.Context, identifier string, windowStart time.Time, now time.Time) (int64, error) {
	query := `
		INSERT INTO counter_buckets (identifier, window_start, count, last_touched)
		VALUES ($1, $2, 1, $3)
		ON CONFLICT (identifier, window_start)
		DO UPDATE SET count = counter_buckets.count + 1, last_touched = $3
		RETURNING count`
	var count int64
	err := r.db.QueryRowContext(ctx, query, identifier, windowStart, now).Scan(&count)
	return count, err
}

// Cleanup deletes buckets older than the retention floor. Returns rows removed.
func (r *CounterRepository) Cleanup(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM counter_buckets WHERE window_start < $1`, olderThan)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
