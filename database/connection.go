package database

import (
	"database/sql"
	"time"

	_ "github.com/lib/pq"
)

type Database struct {
	conn *sql.DB
}

func New(dsn string) (*Database, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, err
	}

	return &Database{conn: db}, nil
}

func (d *Database) Conn() *sql.DB {
	return d.conn
}

func (d *Database) Close() error {
	return d.conn.Close()
}

func (d *Database) Ping() error {
	return d.conn.Ping()
}

// InitSchema creates every table the Counter, Ban, Key, Log, GeoBlock, and
// Reputation stores need and seeds the well-known cloud/VPN ASN list. Run
// once at startup before the server accepts requests.
func (d *Database) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS api_keys (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		key_fingerprint TEXT UNIQUE NOT NULL,
		display_name TEXT NOT NULL,
		"limit" INT NOT NULL,
		window_seconds INT NOT NULL,
		active BOOLEAN DEFAULT true,
		created_at TIMESTAMP NOT NULL DEFAULT now(),
		expires_at TIMESTAMP,
		last_used_at TIMESTAMP,
		metadata JSONB DEFAULT '{}'::jsonb
	);

	CREATE TABLE IF NOT EXISTS counter_buckets (
		identifier TEXT NOT NULL,
		window_start TIMESTAMP NOT NULL,
		count BIGINT NOT NULL DEFAULT 0,
		last_touched TIMESTAMP NOT NULL DEFAULT now(),
		PRIMARY KEY (identifier, window_start)
	);

	CREATE TABLE IF NOT EXISTS bans (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		identifier TEXT NOT NULL,
		reason TEXT NOT NULL,
		banned_at TIMESTAMP NOT NULL DEFAULT now(),
		expires_at TIMESTAMP,
		created_by TEXT NOT NULL CHECK (created_by IN ('system', 'admin'))
	);

	CREATE TABLE IF NOT EXISTS request_logs (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		identifier TEXT NOT NULL,
		path TEXT NOT NULL,
		method TEXT NOT NULL,
		allowed BOOLEAN NOT NULL,
		reason_code TEXT NOT NULL,
		country TEXT,
		user_agent TEXT,
		created_at TIMESTAMP NOT NULL DEFAULT now()
	);

	CREATE TABLE IF NOT EXISTS geo_block_settings (
		id INT PRIMARY KEY DEFAULT 1,
		enabled BOOLEAN NOT NULL DEFAULT false,
		CHECK (id = 1)
	);

	CREATE TABLE IF NOT EXISTS geo_block_countries (
		code TEXT PRIMARY KEY,
		name TEXT
	);

	INSERT INTO geo_block_settings (id, enabled) VALUES (1, false)
	ON CONFLICT (id) DO NOTHING;

	CREATE TABLE IF NOT EXISTS reputation_records (
		address TEXT PRIMARY KEY,
		proxy BOOLEAN NOT NULL DEFAULT false,
		vpn BOOLEAN NOT NULL DEFAULT false,
		tor BOOLEAN NOT NULL DEFAULT false,
		hosting BOOLEAN NOT NULL DEFAULT false,
		residential BOOLEAN NOT NULL DEFAULT false,
		confidence INT NOT NULL DEFAULT 0,
		reason TEXT,
		source TEXT NOT NULL,
		asn INT,
		asn_org TEXT,
		country TEXT,
		checked_at TIMESTAMP NOT NULL DEFAULT now(),
		expires_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS asn_records (
		asn INT PRIMARY KEY,
		org_name TEXT NOT NULL,
		is_hosting BOOLEAN NOT NULL DEFAULT false,
		is_vpn BOOLEAN NOT NULL DEFAULT false,
		country TEXT,
		expires_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS manual_block_entries (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		identifier TEXT NOT NULL,
		kind TEXT NOT NULL CHECK (kind IN ('address', 'asn', 'cidr')),
		reason TEXT,
		blocked_by TEXT,
		blocked_at TIMESTAMP NOT NULL DEFAULT now(),
		expires_at TIMESTAMP,
		UNIQUE (identifier, kind)
	);

	CREATE TABLE IF NOT EXISTS tor_exit_entries (
		address TEXT PRIMARY KEY,
		first_seen TIMESTAMP NOT NULL DEFAULT now(),
		last_seen TIMESTAMP NOT NULL DEFAULT now(),
		is_exit BOOLEAN NOT NULL DEFAULT true
	);

	CREATE TABLE IF NOT EXISTS provider_cache_entries (
		address TEXT NOT NULL,
		provider_name TEXT NOT NULL,
		raw_response JSONB,
		expires_at TIMESTAMP NOT NULL,
		PRIMARY KEY (address, provider_name)
	);

	CREATE TABLE IF NOT EXISTS stat_counters (
		stat_name TEXT NOT NULL,
		day DATE NOT NULL,
		count BIGINT NOT NULL DEFAULT 0,
		PRIMARY KEY (stat_name, day)
	);

	CREATE INDEX IF NOT EXISTS idx_counter_buckets_window ON counter_buckets(window_start);
	CREATE INDEX IF NOT EXISTS idx_bans_identifier ON bans(identifier);
	CREATE INDEX IF NOT EXISTS idx_bans_expires ON bans(expires_at);
	CREATE INDEX IF NOT EXISTS idx_request_logs_identifier ON request_logs(identifier);
	CREATE INDEX IF NOT EXISTS idx_request_logs_created ON request_logs(created_at);
	CREATE INDEX IF NOT EXISTS idx_reputation_expires ON reputation_records(expires_at);
	CREATE INDEX IF NOT EXISTS idx_manual_block_identifier ON manual_block_entries(identifier);
	CREATE INDEX IF NOT EXISTS idx_provider_cache_expires ON provider_cache_entries(expires_at);
	`
	if _, err := d.conn.Exec(schema); err != nil {
		return err
	}
	return d.seedAsnRecords()
}

// knownHostingASNs and knownVPNASNs are the well-known cloud-provider and
// VPN-provider autonomous systems seeded into asn_records at startup.
var knownHostingASNs = []struct {
	asn     int
	org     string
	country string
}{
	{16509, "Amazon.com, Inc. (AWS)", "US"},
	{15169, "Google LLC (GCP)", "US"},
	{8075, "Microsoft Corporation (Azure)", "US"},
	{13335, "Cloudflare, Inc.", "US"},
	{20940, "Akamai International B.V.", "NL"},
	{16276, "OVH SAS", "FR"},
	{24940, "Hetzner Online GmbH", "DE"},
	{14061, "DigitalOcean, LLC", "US"},
	{63949, "Linode, LLC", "US"},
	{20473, "The Constant Company, LLC (Vultr)", "US"},
	{37963, "Hangzhou Alibaba Advertising Co., Ltd.", "CN"},
}

var knownVPNASNs = []struct {
	asn     int
	org     string
	country string
}{
	{9009, "M247 Europe SRL", "RO"},
	{212238, "Datacamp Limited", "GB"},
	{42926, "TEFINCOM S.A. (NordVPN)", "PA"},
}

func (d *Database) seedAsnRecords() error {
	stmt := `INSERT INTO asn_records (asn, org_name, is_hosting, is_vpn, country, expires_at)
		VALUES ($1, $2, $3, $4, $5, now() + interval '100 years')
		ON CONFLICT (asn) DO NOTHING`

	for _, a := range knownHostingASNs {
		if _, err := d.conn.Exec(stmt, a.asn, a.org, true, false, a.country); err != nil {
			return err
		}
	}
	for _, a := range knownVPNASNs {
		if _, err := d.conn.Exec(stmt, a.asn, a.org, false, true, a.country); err != nil {
			return err
		}
	}
	return nil
}
