// Package types defines shared data structures used across all packages.
//
// This package is the common vocabulary for the platform — market
// metadata, order book levels, trades, wallets, and signal events. It has
// no dependencies on internal packages, so it can be imported by any layer.
package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// ————————————————————————————————————————————————————————————————————————
// Core enums
// ————————————————————————————————————————————————————————————————————————

// Side represents the direction of a trade: BUY or SELL.
type Side string

const (
	BUY  Side = "BUY"
	SELL Side = "SELL"
)

// SignalType enumerates the kinds of SignalEvent this platform emits.
type SignalType string

const (
	SignalLargeTakerTrade     SignalType = "LARGE_TAKER_TRADE"
	SignalLargeNewWalletTrade SignalType = "LARGE_NEW_WALLET_TRADE"
	SignalDormantReactivation SignalType = "DORMANT_WALLET_REACTIVATION"
	SignalArbBuyBoth          SignalType = "ARB_BUY_BOTH"
	SignalNewMarket           SignalType = "NEW_MARKET"
)

// AlertStatus is the outcome of one delivery attempt.
type AlertStatus string

const (
	AlertSent       AlertStatus = "SENT"
	AlertFailed     AlertStatus = "FAILED"
	AlertSuppressed AlertStatus = "SUPPRESSED"
)

// ————————————————————————————————————————————————————————————————————————
// Market metadata (§3 Market)
// ————————————————————————————————————————————————————————————————————————

// Market is keyed by condition_id (0x-prefixed 64 hex). Created when first
// observed via the events sync job; mutated by later syncs; never deleted.
type Market struct {
	ConditionID string     `db:"condition_id" json:"condition_id"`
	MarketID    string     `db:"market_id" json:"market_id,omitempty"`
	EventID     string     `db:"event_id" json:"event_id,omitempty"`
	Slug        string     `db:"slug" json:"slug"`
	Question    string     `db:"question" json:"question"`
	TagIDs      IntSet     `db:"tag_ids" json:"tag_ids"`
	NegRisk     bool       `db:"neg_risk" json:"neg_risk"`
	Outcomes    StrList    `db:"outcomes" json:"outcomes"`
	TokenIDs    StrList    `db:"token_ids" json:"token_ids"` // ordered [yes, no] for binary markets
	StartTime   *time.Time `db:"start_time" json:"start_time,omitempty"`
	EndTime     *time.Time `db:"end_time" json:"end_time,omitempty"`
	LastSeenAt  time.Time  `db:"last_seen_at" json:"last_seen_at"`
}

// IsBinary reports whether the market has exactly two outcomes and both
// token IDs known — the precondition for arbitrage evaluation (§4.I).
func (m Market) IsBinary() bool {
	return len(m.Outcomes) == 2 && len(m.TokenIDs) == 2 &&
		m.TokenIDs[0] != "" && m.TokenIDs[1] != ""
}

// YesTokenID returns the YES token ID for a binary market, or "".
func (m Market) YesTokenID() string {
	if len(m.TokenIDs) < 1 {
		return ""
	}
	return m.TokenIDs[0]
}

// NoTokenID returns the NO token ID for a binary market, or "".
func (m Market) NoTokenID() string {
	if len(m.TokenIDs) < 2 {
		return ""
	}
	return m.TokenIDs[1]
}

// MarketMetricSnapshot is an append-only time series keyed by
// (condition_id, ts) — §3 retention: 1-minute granularity for 30 days,
// hourly downsample to 1 year.
type MarketMetricSnapshot struct {
	ConditionID  string          `db:"condition_id" json:"condition_id"`
	TS           time.Time       `db:"ts" json:"ts"`
	Volume       decimal.Decimal `db:"volume" json:"volume"`
	Liquidity    decimal.Decimal `db:"liquidity" json:"liquidity"`
	OpenInterest decimal.Decimal `db:"open_interest" json:"open_interest"`
	BestBidYes   decimal.Decimal `db:"best_bid_yes" json:"best_bid_yes"`
	BestAskYes   decimal.Decimal `db:"best_ask_yes" json:"best_ask_yes"`
	SpreadYes    decimal.Decimal `db:"spread_yes" json:"spread_yes"`
}

// WalletExposure is an append-only row mirroring the upstream positions
// endpoint for a tracked wallet (§4.G sync_positions).
type WalletExposure struct {
	Wallet      string          `db:"wallet" json:"wallet"`
	ConditionID string          `db:"condition_id" json:"condition_id"`
	TokenID     string          `db:"token_id" json:"token_id"`
	Size        decimal.Decimal `db:"size" json:"size"`
	Redeemable  bool            `db:"redeemable" json:"redeemable"`
	AsOf        time.Time       `db:"as_of" json:"as_of"`
}

// ————————————————————————————————————————————————————————————————————————
// Order book (§3 OrderbookLatest)
// ————————————————————————————————————————————————————————————————————————

// PriceLevel is a single bid or ask level in an aggregated order book.
type PriceLevel struct {
	Price decimal.Decimal `json:"price"`
	Size  decimal.Decimal `json:"size"`
}

// OrderbookLatest is the mastered-in-memory, periodically-flushed view of
// one token's order book (§3). Bids sorted descending, asks ascending.
type OrderbookLatest struct {
	TokenID      string          `db:"token_id" json:"token_id"`
	ConditionID  string          `db:"condition_id" json:"condition_id"`
	Bids         []PriceLevel    `db:"-" json:"bids"`
	Asks         []PriceLevel    `db:"-" json:"asks"`
	TickSize     decimal.Decimal `db:"tick_size" json:"tick_size"`
	MinOrderSize decimal.Decimal `db:"min_order_size" json:"min_order_size"`
	NegRisk      bool            `db:"neg_risk" json:"neg_risk"`
	AsOf         time.Time       `db:"as_of" json:"as_of"`
	Hash         string          `db:"hash" json:"hash,omitempty"`
}

// ————————————————————————————————————————————————————————————————————————
// Trades and wallets (§3 Trade, Wallet)
// ————————————————————————————————————————————————————————————————————————

// Trade is append-only; never mutated. Uniquely identified by
// TransactionHash when present, else by CompositeHash.
type Trade struct {
	ID              int64           `db:"id" json:"id"`
	TransactionHash string          `db:"transaction_hash" json:"transaction_hash,omitempty"`
	CompositeHash   string          `db:"composite_hash" json:"composite_hash,omitempty"`
	Wallet          string          `db:"wallet" json:"wallet"`
	ConditionID     string          `db:"condition_id" json:"condition_id"`
	TokenID         string          `db:"token_id" json:"token_id"`
	Side            Side            `db:"side" json:"side"`
	Price           decimal.Decimal `db:"price" json:"price"`
	Size            decimal.Decimal `db:"size" json:"size"`
	NotionalUSD     decimal.Decimal `db:"notional_usd" json:"notional_usd"`
	TradeTS         time.Time       `db:"trade_ts" json:"trade_ts"`
	IngestedAt      time.Time       `db:"ingested_at" json:"ingested_at"`
}

// DedupeKey returns the identity used for at-least-once ingestion dedupe.
func (t Trade) DedupeKey() string {
	if t.TransactionHash != "" {
		return t.TransactionHash
	}
	return t.CompositeHash
}

// Wallet is keyed by canonical address (proxy-wallet preferred, else
// user/owner). Created on first trade observation; updated on every
// subsequent observation.
type Wallet struct {
	Address             string          `db:"address" json:"address"`
	FirstSeenAt          time.Time       `db:"first_seen_at" json:"first_seen_at"`
	LastSeenAt           time.Time       `db:"last_seen_at" json:"last_seen_at"`
	FirstTradeTS         time.Time       `db:"first_trade_ts" json:"first_trade_ts"`
	LifetimeNotionalUSD  decimal.Decimal `db:"lifetime_notional_usd" json:"lifetime_notional_usd"`
	Last7dNotionalUSD    decimal.Decimal `db:"last_7d_notional_usd" json:"last_7d_notional_usd"`
}

// ————————————————————————————————————————————————————————————————————————
// Signals and alerts (§3 SignalEvent, AlertLog)
// ————————————————————————————————————————————————————————————————————————

// SignalEvent is append-only; uniquely identified by DedupeKey.
type SignalEvent struct {
	ID          string     `db:"id" json:"id"`
	SignalType  SignalType `db:"signal_type" json:"signal_type"`
	DedupeKey   string     `db:"dedupe_key" json:"dedupe_key"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	Severity    int        `db:"severity" json:"severity"`
	Wallet      string     `db:"wallet" json:"wallet,omitempty"`
	ConditionID string     `db:"condition_id" json:"condition_id,omitempty"`
	Payload     JSONMap    `db:"payload" json:"payload"`
}

// AppConfigOverride is one row of the runtime config-override table (§3
// AppConfig, §5/§6 precedence: baked defaults < this table < environment).
type AppConfigOverride struct {
	Key       string    `db:"key" json:"key"`
	Value     string    `db:"value" json:"value"` // JSON-encoded scalar or object
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
	UpdatedBy string    `db:"updated_by" json:"updated_by"`
}

// AlertLog is one row per delivery attempt.
type AlertLog struct {
	ID              string      `db:"id" json:"id"`
	SignalEventID   string      `db:"signal_event_id" json:"signal_event_id"`
	Channel         string      `db:"channel" json:"channel"`
	NotificationKey string      `db:"notification_key" json:"notification_key"`
	SentAt          time.Time   `db:"sent_at" json:"sent_at"`
	Status          AlertStatus `db:"status" json:"status"`
	Error           string      `db:"error" json:"error,omitempty"`
	Severity        int         `db:"severity" json:"severity"`
}
