// Package storage is the relational persistence layer: idempotent trade
// and signal ingestion, append-only metric/exposure history, market and
// wallet upserts, and the runtime config-override table. Written against
// database/sql and sqlx.DB idioms so swapping the driver (e.g. to
// lib/pq/pgx for Postgres) is a connection-string and driver-name change,
// not a rewrite.
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// Store wraps a sqlx.DB with the platform's schema and repository methods.
type Store struct {
	db *sqlx.DB
}

// Open connects to the SQLite database at dsn and applies pending
// migrations. dsn is a modernc.org/sqlite connection string, e.g.
// "file:polymarket.db?_pragma=journal_mode(WAL)".
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sqlx.ConnectContext(ctx, "sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect storage: %w", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite + WAL: single writer is simplest and safe
	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate storage: %w", err)
	}
	return s, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying sqlx.DB for callers that need raw access
// (migrations test helpers, transactions spanning multiple repository
// calls).
func (s *Store) DB() *sqlx.DB {
	return s.db
}

const schemaVersionTable = `
CREATE TABLE IF NOT EXISTS schema_migrations (
	version    INTEGER PRIMARY KEY,
	applied_at TEXT NOT NULL
)`

var migrations = []string{
	schemaMarkets,
	schemaTags,
	schemaMarketMetrics,
	schemaWalletExposure,
	schemaTrades,
	schemaWallets,
	schemaSignalEvents,
	schemaAlertLog,
	schemaAppConfig,
	schemaOrderbookHeader,
}

// migrate applies every not-yet-applied migration in order. Migrations are
// forward-only: there is no down-migration path, matching the append-mostly
// nature of the schema.
func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaVersionTable); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	var applied int
	if err := s.db.GetContext(ctx, &applied, `SELECT COUNT(*) FROM schema_migrations`); err != nil {
		return fmt.Errorf("count migrations: %w", err)
	}

	for i := applied; i < len(migrations); i++ {
		if _, err := s.db.ExecContext(ctx, migrations[i]); err != nil {
			return fmt.Errorf("apply migration %d: %w", i, err)
		}
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)`,
			i, time.Now().UTC().Format(time.RFC3339)); err != nil {
			return fmt.Errorf("record migration %d: %w", i, err)
		}
	}
	return nil
}

const schemaMarkets = `
CREATE TABLE markets (
	condition_id TEXT PRIMARY KEY,
	market_id    TEXT,
	event_id     TEXT,
	slug         TEXT NOT NULL,
	question     TEXT NOT NULL,
	tag_ids      TEXT NOT NULL DEFAULT '[]',
	neg_risk     INTEGER NOT NULL DEFAULT 0,
	outcomes     TEXT NOT NULL DEFAULT '[]',
	token_ids    TEXT NOT NULL DEFAULT '[]',
	start_time   TEXT,
	end_time     TEXT,
	last_seen_at TEXT NOT NULL
)`

const schemaTags = `
CREATE TABLE tags (
	id         INTEGER PRIMARY KEY,
	label      TEXT NOT NULL,
	slug       TEXT NOT NULL,
	updated_at TEXT NOT NULL
)`

const schemaMarketMetrics = `
CREATE TABLE market_metrics_ts (
	condition_id    TEXT NOT NULL,
	ts              TEXT NOT NULL,
	volume          TEXT NOT NULL,
	liquidity       TEXT NOT NULL,
	open_interest   TEXT NOT NULL,
	best_bid_yes    TEXT NOT NULL,
	best_ask_yes    TEXT NOT NULL,
	spread_yes      TEXT NOT NULL,
	PRIMARY KEY (condition_id, ts)
);
CREATE INDEX idx_market_metrics_ts ON market_metrics_ts (ts)`

const schemaWalletExposure = `
CREATE TABLE wallet_exposure (
	wallet       TEXT NOT NULL,
	condition_id TEXT NOT NULL,
	token_id     TEXT NOT NULL,
	size         TEXT NOT NULL,
	redeemable   INTEGER NOT NULL,
	as_of        TEXT NOT NULL
);
CREATE INDEX idx_wallet_exposure_wallet ON wallet_exposure (wallet, as_of)`

const schemaTrades = `
CREATE TABLE trades (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	transaction_hash TEXT,
	composite_hash   TEXT,
	wallet           TEXT NOT NULL,
	condition_id     TEXT NOT NULL,
	token_id         TEXT NOT NULL,
	side             TEXT NOT NULL,
	price            TEXT NOT NULL,
	size             TEXT NOT NULL,
	notional_usd     TEXT NOT NULL,
	trade_ts         TEXT NOT NULL,
	ingested_at      TEXT NOT NULL
);
CREATE UNIQUE INDEX idx_trades_tx_hash ON trades (transaction_hash) WHERE transaction_hash IS NOT NULL AND transaction_hash != '';
CREATE UNIQUE INDEX idx_trades_composite_hash ON trades (composite_hash) WHERE composite_hash IS NOT NULL AND composite_hash != '';
CREATE INDEX idx_trades_wallet ON trades (wallet, trade_ts);
CREATE INDEX idx_trades_condition ON trades (condition_id, trade_ts)`

const schemaWallets = `
CREATE TABLE wallets (
	address                TEXT PRIMARY KEY,
	first_seen_at          TEXT NOT NULL,
	last_seen_at           TEXT NOT NULL,
	first_trade_ts         TEXT NOT NULL,
	lifetime_notional_usd  TEXT NOT NULL DEFAULT '0',
	last_7d_notional_usd   TEXT NOT NULL DEFAULT '0'
)`

const schemaSignalEvents = `
CREATE TABLE signal_events (
	id           TEXT PRIMARY KEY,
	signal_type  TEXT NOT NULL,
	dedupe_key   TEXT NOT NULL UNIQUE,
	created_at   TEXT NOT NULL,
	severity     INTEGER NOT NULL,
	wallet       TEXT,
	condition_id TEXT,
	payload      TEXT NOT NULL DEFAULT '{}'
);
CREATE INDEX idx_signal_events_created ON signal_events (created_at)`

const schemaAlertLog = `
CREATE TABLE alert_log (
	id                TEXT PRIMARY KEY,
	signal_event_id   TEXT NOT NULL,
	channel           TEXT NOT NULL,
	notification_key  TEXT NOT NULL,
	sent_at           TEXT NOT NULL,
	status            TEXT NOT NULL,
	error             TEXT,
	severity          INTEGER NOT NULL
);
CREATE INDEX idx_alert_log_key ON alert_log (notification_key, sent_at)`

const schemaAppConfig = `
CREATE TABLE app_config (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	updated_by TEXT NOT NULL DEFAULT ''
)`

// schemaOrderbookHeader persists only the book's metadata (tick size,
// min order size, neg-risk flag, last-applied hash/timestamp), not price
// levels — the in-memory cache is the single source of truth for levels.
// This row exists so a restarted process can tell how stale its
// just-booted in-memory cache is before the first heal cycle completes.
const schemaOrderbookHeader = `
CREATE TABLE orderbook_latest_header (
	token_id       TEXT PRIMARY KEY,
	condition_id   TEXT NOT NULL,
	tick_size      TEXT NOT NULL,
	min_order_size TEXT NOT NULL,
	neg_risk       INTEGER NOT NULL,
	as_of          TEXT NOT NULL,
	hash           TEXT
)`
