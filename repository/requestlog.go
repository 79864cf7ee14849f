package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/ratelimit-gateway/admission-gateway/models"
)

// RequestLogRepository is the Request Log: append-only, time-indexed,
// consulted only by the burst detector and by admin aggregate queries.
type RequestLogRepository struct {
	db *sql.DB
}

func NewRequestLogRepository(db *sql.DB) *RequestLogRepository {
	return &RequestLogRepository{db: db}
}

func (r *RequestLogRepository) Log(ctx context.Context, entry *models.RequestLogEntry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	query := `INSERT INTO request_logs (id, identifier, path, method, allowed, reason_code, country, user_agent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := r.db.ExecContext(ctx, query, entry.ID, entry.Identifier, entry.Path, entry.Method, entry.Allowed, string(entry.ReasonCode), entry.Country, entry.UserAgent, entry.Timestamp)
	return err
}

// CountInWindow returns how many log rows exist for identifier in the last
// seconds, used by the abuse detector's absolute rule.
func (r *RequestLogRepository) CountInWindow(ctx context.Context, identifier string, seconds int, now time.Time) (int, error) {
	var count int
	since := now.Add(-time.Duration(seconds) * time.Second)
	query := `SELECT COUNT(*) FROM request_logs WHERE identifier = $1 AND created_at > $2`
	err := r.db.QueryRowContext(ctx, query, identifier, since).Scan(&count)
	return count, err
}

// BaselineRatePerMinute returns count/periodMinutes, the baseline rule's
// comparison point.
func (r *RequestLogRepository) BaselineRatePerMinute(ctx context.Context, identifier string, periodMinutes int, now time.Time) (float64, error) {
	count, err := r.CountInWindow(ctx, identifier, periodMinutes*60, now)
	if err != nil {
		return 0, err
	}
	if periodMinutes <= 0 {
		return 0, nil
	}
	return float64(count) / float64(periodMinutes), nil
}

// RecentFor returns the most recent log rows for identifier, newest first.
func (r *RequestLogRepository) RecentFor(ctx context.Context, identifier string, limit int) ([]*models.RequestLogEntry, error) {
	query := `SELECT id, identifier, path, method, allowed, reason_code, country, user_agent, created_at
		FROM request_logs WHERE identifier = $1 ORDER BY created_at DESC LIMIT $2`
	rows, err := r.db.QueryContext(ctx, query, identifier, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanLogRows(rows)
}

// Aggregate computes the admin-dashboard totals over [start, end]: overall
// counts, the allowed/blocked split, per-reason breakdown, and the top-N
// identifiers and paths by occurrence.
func (r *RequestLogRepository) Aggregate(ctx context.Context, start, end time.Time, topN int) (*models.AggregateStats, error) {
	stats := &models.AggregateStats{ByReason: make(map[models.DecisionReason]int64)}

	totalsQuery := `SELECT
		COUNT(*),
		COUNT(*) FILTER (WHERE allowed),
		COUNT(*) FILTER (WHERE NOT allowed)
		FROM request_logs WHERE created_at BETWEEN $1 AND $2`
	if err := r.db.QueryRowContext(ctx, totalsQuery, start, end).Scan(&stats.Total, &stats.Allowed, &stats.Blocked); err != nil {
		return nil, err
	}

	reasonRows, err := r.db.QueryContext(ctx, `SELECT reason_code, COUNT(*) FROM request_logs WHERE created_at BETWEEN $1 AND $2 GROUP BY reason_code`, start, end)
	if err != nil {
		return nil, err
	}
	defer reasonRows.Close()
	for reasonRows.Next() {
		var code string
		var count int64
		if err := reasonRows.Scan(&code, &count); err != nil {
			return nil, err
		}
		stats.ByReason[models.DecisionReason(code)] = count
	}

	idRows, err := r.db.QueryContext(ctx, `SELECT identifier, COUNT(*) c FROM request_logs WHERE created_at BETWEEN $1 AND $2 GROUP BY identifier ORDER BY c DESC LIMIT $3`, start, end, topN)
	if err != nil {
		return nil, err
	}
	defer idRows.Close()
	for idRows.Next() {
		var ic models.IdentifierCount
		if err := idRows.Scan(&ic.Identifier, &ic.Count); err != nil {
			return nil, err
		}
		stats.TopIdentifiers = append(stats.TopIdentifiers, ic)
	}

	pathRows, err := r.db.QueryContext(ctx, `SELECT path, COUNT(*) c FROM request_logs WHERE created_at BETWEEN $1 AND $2 GROUP BY path ORDER BY c DESC LIMIT $3`, start, end, topN)
	if err != nil {
		return nil, err
	}
	defer pathRows.Close()
	for pathRows.Next() {
		var pc models.PathCount
		if err := pathRows.Scan(&pc.Path, &pc.Count); err != nil {
			return nil, err
		}
		stats.TopPaths = append(stats.TopPaths, pc)
	}

	return stats, nil
}

// Cleanup deletes log rows older than retentionDays.
func (r *RequestLogRepository) Cleanup(ctx context.Context, retentionDays int, now time.Time) (int64, error) {
	cutoff := now.AddDate(0, 0, -retentionDays)
	res, err := r.db.ExecContext(ctx, `DELETE FROM request_logs WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func scanLogRows(rows *sql.Rows) ([]*models.RequestLogEntry, error) {
	var entries []*models.RequestLogEntry
	for rows.Next() {
		e := &models.RequestLogEntry{}
		var country, userAgent sql.NullString
		var reasonCode string
		if err := rows.Scan(&e.ID, &e.Identifier, &e.Path, &e.Method, &e.Allowed, &reasonCode, &country, &userAgent, &e.Timestamp); err != nil {
			return nil, err
		}
		e.ReasonCode = models.DecisionReason(reasonCode)
		e.Country = country.String
		e.UserAgent = userAgent.String
		entries = append(entries, e)
	}
	return entries, nil
}
