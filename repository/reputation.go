package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/ratelimit-gateway/admission-gateway/models"
)

// ReputationRepository is the Reputation Store: a thin data-access layer
// over ReputationRecord, AsnRecord, TorExitEntry, ManualBlockEntry,
// ProviderCacheEntry and the daily stat counters. Every lookup is
// TTL-filtered at the query boundary; every write is an upsert on the
// natural key.
type ReputationRepository struct {
	db *sql.DB
}

func NewReputationRepository(db *sql.DB) *ReputationRepository {
	return &ReputationRepository{db: db}
}

func (r *ReputationRepository) GetReputation(ctx context.Context, address string, now time.Time) (*models.ReputationRecord, error) {
	query := `SELECT address, proxy, vpn, tor, hosting, residential, confidence, reason, source, asn, asn_org, country, checked_at, expires_at
		FROM reputation_records WHERE address = $1 AND expires_at > $2`
	rec := &models.ReputationRecord{}
	var reason, asnOrg, country sql.NullString
	var asn sql.NullInt64
	var source string
	err := r.db.QueryRowContext(ctx, query, address, now).Scan(
		&rec.Address, &rec.Proxy, &rec.VPN, &rec.Tor, &rec.Hosting, &rec.Residential,
		&rec.Confidence, &reason, &source, &asn, &asnOrg, &country, &rec.CheckedAt, &rec.ExpiresAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	rec.Reason = reason.String
	rec.Source = models.ReputationSource(source)
	rec.ASNOrg = asnOrg.String
	rec.Country = country.String
	if asn.Valid {
		v := int(asn.Int64)
		rec.ASN = &v
	}
	return rec, nil
}

func (r *ReputationRepository) UpsertReputation(ctx context.Context, rec *models.ReputationRecord, ttl time.Duration, now time.Time) error {
	rec.CheckedAt = now
	rec.ExpiresAt = now.Add(ttl)

	query := `INSERT INTO reputation_records (address, proxy, vpn, tor, hosting, residential, confidence, reason, source, asn, asn_org, country, checked_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (address) DO UPDATE SET
			proxy = EXCLUDED.proxy, vpn = EXCLUDED.vpn, tor = EXCLUDED.tor, hosting = EXCLUDED.hosting,
			residential = EXCLUDED.residential, confidence = EXCLUDED.confidence, reason = EXCLUDED.reason,
			source = EXCLUDED.source, asn = EXCLUDED.asn, asn_org = EXCLUDED.asn_org, country = EXCLUDED.country,
			checked_at = EXCLUDED.checked_at, expires_at = EXCLUDED.expires_at`
	_, err := r.db.ExecContext(ctx, query, rec.Address, rec.Proxy, rec.VPN, rec.Tor, rec.Hosting, rec.Residential,
		rec.Confidence, rec.Reason, string(rec.Source), rec.ASN, rec.ASNOrg, rec.Country, rec.CheckedAt, rec.ExpiresAt)
	return err
}

func (r *ReputationRepository) GetAsn(ctx context.Context, asn int, now time.Time) (*models.AsnRecord, error) {
	query := `SELECT asn, org_name, is_hosting, is_vpn, country, expires_at FROM asn_records WHERE asn = $1 AND expires_at > $2`
	rec := &models.AsnRecord{}
	var country sql.NullString
	err := r.db.QueryRowContext(ctx, query, asn, now).Scan(&rec.ASN, &rec.OrgName, &rec.IsHosting, &rec.IsVPN, &country, &rec.ExpiresAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	rec.Country = country.String
	return rec, nil
}

func (r *ReputationRepository) UpsertAsn(ctx context.Context, rec *models.AsnRecord) error {
	query := `INSERT INTO asn_records (asn, org_name, is_hosting, is_vpn, country, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (asn) DO UPDATE SET
			org_name = EXCLUDED.org_name, is_hosting = EXCLUDED.is_hosting,
			is_vpn = EXCLUDED.is_vpn, country = EXCLUDED.country, expires_at = EXCLUDED.expires_at`
	_, err := r.db.ExecContext(ctx, query, rec.ASN, rec.OrgName, rec.IsHosting, rec.IsVPN, rec.Country, rec.ExpiresAt)
	return err
}

func (r *ReputationRepository) IsTorExit(ctx context.Context, address string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM tor_exit_entries WHERE address = $1 AND is_exit)`
	err := r.db.QueryRowContext(ctx, query, address).Scan(&exists)
	return exists, err
}

// SyncTorExits bulk-upserts addresses in one transaction, stamping
// last_seen = now. Syncing the same set twice leaves
// exactly one row per address.
func (r *ReputationRepository) SyncTorExits(ctx context.Context, addresses []string, now time.Time) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO tor_exit_entries (address, first_seen, last_seen, is_exit)
		VALUES ($1, $2, $2, true)
		ON CONFLICT (address) DO UPDATE SET last_seen = $2, is_exit = true`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, addr := range addresses {
		if _, err := stmt.ExecContext(ctx, addr, now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *ReputationRepository) TorExitCount(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tor_exit_entries WHERE is_exit`).Scan(&count)
	return count, err
}

func (r *ReputationRepository) GetManualBlock(ctx context.Context, identifier string, kind models.ManualBlockKind, now time.Time) (*models.ManualBlockEntry, error) {
	query := `SELECT id, identifier, kind, reason, blocked_by, blocked_at, expires_at
		FROM manual_block_entries WHERE identifier = $1 AND kind = $2 AND (expires_at IS NULL OR expires_at > $3)`
	return r.scanManualBlock(r.db.QueryRowContext(ctx, query, identifier, string(kind), now))
}

func (r *ReputationRepository) scanManualBlock(row *sql.Row) (*models.ManualBlockEntry, error) {
	m := &models.ManualBlockEntry{}
	var kind, reason, blockedBy sql.NullString
	var expiresAt sql.NullTime
	err := row.Scan(&m.ID, &m.Identifier, &kind, &reason, &blockedBy, &m.BlockedAt, &expiresAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	m.Kind = models.ManualBlockKind(kind.String)
	m.Reason = reason.String
	m.BlockedBy = blockedBy.String
	if expiresAt.Valid {
		t := expiresAt.Time
		m.ExpiresAt = &t
	}
	return m, nil
}

func (r *ReputationRepository) AddManualBlock(ctx context.Context, identifier string, kind models.ManualBlockKind, reason, blockedBy string, expiresAt *time.Time, now time.Time) (*models.ManualBlockEntry, error) {
	entry := &models.ManualBlockEntry{
		ID:         uuid.New(),
		Identifier: identifier,
		Kind:       kind,
		Reason:     reason,
		BlockedBy:  blockedBy,
		BlockedAt:  now,
		ExpiresAt:  expiresAt,
	}
	query := `INSERT INTO manual_block_entries (id, identifier, kind, reason, blocked_by, blocked_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (identifier, kind) DO UPDATE SET
			reason = EXCLUDED.reason, blocked_by = EXCLUDED.blocked_by, blocked_at = EXCLUDED.blocked_at, expires_at = EXCLUDED.expires_at`
	_, err := r.db.ExecContext(ctx, query, entry.ID, entry.Identifier, string(entry.Kind), entry.Reason, entry.BlockedBy, entry.BlockedAt, entry.ExpiresAt)
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (r *ReputationRepository) RemoveManualBlock(ctx context.Context, identifier string, kind models.ManualBlockKind) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM manual_block_entries WHERE identifier = $1 AND kind = $2`, identifier, string(kind))
	return err
}

func (r *ReputationRepository) ListManualBlocks(ctx context.Context) ([]*models.ManualBlockEntry, error) {
	query := `SELECT id, identifier, kind, reason, blocked_by, blocked_at, expires_at FROM manual_block_entries ORDER BY blocked_at DESC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*models.ManualBlockEntry
	for rows.Next() {
		m := &models.ManualBlockEntry{}
		var kind, reason, blockedBy sql.NullString
		var expiresAt sql.NullTime
		if err := rows.Scan(&m.ID, &m.Identifier, &kind, &reason, &blockedBy, &m.BlockedAt, &expiresAt); err != nil {
			return nil, err
		}
		m.Kind = models.ManualBlockKind(kind.String)
		m.Reason = reason.String
		m.BlockedBy = blockedBy.String
		if expiresAt.Valid {
			t := expiresAt.Time
			m.ExpiresAt = &t
		}
		entries = append(entries, m)
	}
	return entries, nil
}

// ActiveCidrBlocks returns every active CIDR-kind manual block entry (the
// CIDR itself is the entry's Identifier), for the reputation engine's CIDR
// membership scan.
func (r *ReputationRepository) ActiveCidrBlocks(ctx context.Context, now time.Time) ([]*models.ManualBlockEntry, error) {
	query := `SELECT id, identifier, kind, reason, blocked_by, blocked_at, expires_at
		FROM manual_block_entries WHERE kind = 'cidr' AND (expires_at IS NULL OR expires_at > $1)`
	rows, err := r.db.QueryContext(ctx, query, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*models.ManualBlockEntry
	for rows.Next() {
		m := &models.ManualBlockEntry{}
		var kind, reason, blockedBy sql.NullString
		var expiresAt sql.NullTime
		if err := rows.Scan(&m.ID, &m.Identifier, &kind, &reason, &blockedBy, &m.BlockedAt, &expiresAt); err != nil {
			return nil, err
		}
		m.Kind = models.ManualBlockKind(kind.String)
		m.Reason = reason.String
		m.BlockedBy = blockedBy.String
		if expiresAt.Valid {
			t := expiresAt.Time
			m.ExpiresAt = &t
		}
		entries = append(entries, m)
	}
	return entries, nil
}

func (r *ReputationRepository) GetProviderCached(ctx context.Context, address, provider string, now time.Time) (*models.ProviderCacheEntry, error) {
	query := `SELECT address, provider_name, raw_response, expires_at FROM provider_cache_entries
		WHERE address = $1 AND provider_name = $2 AND expires_at > $3`
	entry := &models.ProviderCacheEntry{}
	err := r.db.QueryRowContext(ctx, query, address, provider, now).Scan(&entry.Address, &entry.ProviderName, &entry.RawResponse, &entry.ExpiresAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (r *ReputationRepository) SetProviderCached(ctx context.Context, address, provider string, raw []byte, ttl time.Duration, now time.Time) error {
	expiresAt := now.Add(ttl)
	query := `INSERT INTO provider_cache_entries (address, provider_name, raw_response, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (address, provider_name) DO UPDATE SET raw_response = EXCLUDED.raw_response, expires_at = EXCLUDED.expires_at`
	_, err := r.db.ExecContext(ctx, query, address, provider, raw, expiresAt)
	return err
}

// IncrementStat bumps today's bucket for the named stat by n.
func (r *ReputationRepository) IncrementStat(ctx context.Context, name string, n int64, now time.Time) error {
	query := `INSERT INTO stat_counters (stat_name, day, count) VALUES ($1, $2, $3)
		ON CONFLICT (stat_name, day) DO UPDATE SET count = stat_counters.count + $3`
	_, err := r.db.ExecContext(ctx, query, name, now.Format("2006-01-02"), n)
	return err
}

func (r *ReputationRepository) AggregateStats(ctx context.Context) (map[string]int64, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT stat_name, SUM(count) FROM stat_counters GROUP BY stat_name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[string]int64)
	for rows.Next() {
		var name string
		var total int64
		if err := rows.Scan(&name, &total); err != nil {
			return nil, err
		}
		result[name] = total
	}
	return result, nil
}

// Cleanup expires reputation, ASN cache, and provider cache rows, and trims
// stats older than 90 days.
func (r *ReputationRepository) Cleanup(ctx context.Context, now time.Time) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM reputation_records WHERE expires_at <= $1`, now); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM asn_records WHERE expires_at <= $1`, now); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM provider_cache_entries WHERE expires_at <= $1`, now); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM manual_block_entries WHERE expires_at IS NOT NULL AND expires_at <= $1`, now); err != nil {
		return err
	}
	cutoff := now.AddDate(0, 0, -90).Format("2006-01-02")
	if _, err := tx.ExecContext(ctx, `DELETE FROM stat_counters WHERE day < $1`, cutoff); err != nil {
		return err
	}
	return tx.Commit()
}
