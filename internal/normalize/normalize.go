// Package normalize converts the duck-typed upstream payload shapes in
// pkg/types into the platform's canonical domain types. Every function here
// is pure and side-effect free: callers decide what to do with a
// ParseError/ValidationFailure (log, count, drop), normalize never panics
// or treats a bad record as fatal.
package normalize

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"polymarket-signals/internal/errs"
	"polymarket-signals/pkg/types"
)

// Market converts a GammaEvent page entry into a Market row. lastSeenAt is
// the ingestion timestamp the caller stamps every discovered/refreshed row
// with, not a field on the upstream payload.
func Market(ev types.GammaEvent, lastSeenAt time.Time) (types.Market, error) {
	if ev.ConditionID == "" {
		return types.Market{}, errs.New(errs.ValidationFailure, "normalize.Market",
			fmt.Errorf("missing conditionId"))
	}

	tagIDs := make([]int, 0, len(ev.Tags))
	for _, t := range ev.Tags {
		tagIDs = append(tagIDs, t.ID)
	}

	m := types.Market{
		ConditionID: ev.ConditionID,
		EventID:     ev.ID,
		Slug:        ev.Slug,
		Question:    ev.Question,
		TagIDs:      types.NewIntSet(tagIDs...),
		NegRisk:     ev.ResolvedNegRisk(),
		Outcomes:    types.StrList(ev.Outcomes),
		TokenIDs:    types.StrList(ev.ClobTokenIds),
		LastSeenAt:  lastSeenAt,
	}

	if ev.StartDate != "" {
		if t, err := parseRESTTimestamp(ev.StartDate); err == nil {
			m.StartTime = &t
		}
	}
	if ev.EndDate != "" {
		if t, err := parseRESTTimestamp(ev.EndDate); err == nil {
			m.EndTime = &t
		}
	}

	return m, nil
}

// Trade converts one Data API trade record into an append-only Trade row.
// wallet resolution prefers ProxyWallet, falling back to User, matching how
// the upstream's own wallet-of-record varies by endpoint version.
func Trade(t types.DataAPITrade) (types.Trade, error) {
	wallet := t.ProxyWallet
	if wallet == "" {
		wallet = t.User
	}
	if wallet == "" {
		return types.Trade{}, errs.New(errs.ValidationFailure, "normalize.Trade",
			fmt.Errorf("missing wallet"))
	}
	if t.ConditionID == "" || t.Asset == "" {
		return types.Trade{}, errs.New(errs.ValidationFailure, "normalize.Trade",
			fmt.Errorf("missing market/asset"))
	}

	price, err := decimal.NewFromString(string(t.Price))
	if err != nil {
		return types.Trade{}, errs.New(errs.ParseError, "normalize.Trade", err)
	}
	size, err := decimal.NewFromString(string(t.Size))
	if err != nil {
		return types.Trade{}, errs.New(errs.ParseError, "normalize.Trade", err)
	}
	if price.IsNegative() || size.IsNegative() || size.IsZero() {
		return types.Trade{}, errs.New(errs.ValidationFailure, "normalize.Trade",
			fmt.Errorf("non-positive price or size: price=%s size=%s", price, size))
	}

	side := types.Side(strings.ToUpper(t.Side))
	if side != types.BUY && side != types.SELL {
		return types.Trade{}, errs.New(errs.ValidationFailure, "normalize.Trade",
			fmt.Errorf("unknown side %q", t.Side))
	}

	tradeTS, err := parseEpochMillis(string(t.TimestampMs))
	if err != nil {
		return types.Trade{}, errs.New(errs.ParseError, "normalize.Trade", err)
	}

	trade := types.Trade{
		TransactionHash: t.TransactionHash,
		Wallet:          wallet,
		ConditionID:     t.ConditionID,
		TokenID:         t.Asset,
		Side:            side,
		Price:           price,
		Size:            size,
		NotionalUSD:     price.Mul(size),
		TradeTS:         tradeTS,
	}
	if trade.TransactionHash == "" {
		trade.CompositeHash = compositeHash(trade)
	}
	return trade, nil
}

// compositeHash builds a stable dedupe key for trades the upstream didn't
// tag with an on-chain transaction hash (seen on some batched endpoints).
func compositeHash(t types.Trade) string {
	return fmt.Sprintf("%s:%s:%s:%s:%s:%d",
		t.Wallet, t.ConditionID, t.TokenID, t.Side, t.Price.String(), t.TradeTS.UnixNano())
}

// Book converts a REST book response into an OrderbookLatest snapshot,
// sorting bids descending and asks ascending as the cache invariant requires.
func Book(b types.BookResponse) (types.OrderbookLatest, error) {
	if b.AssetID == "" {
		return types.OrderbookLatest{}, errs.New(errs.ValidationFailure, "normalize.Book",
			fmt.Errorf("missing asset_id"))
	}

	bids, err := levels(b.Bids)
	if err != nil {
		return types.OrderbookLatest{}, errs.New(errs.ParseError, "normalize.Book", err)
	}
	asks, err := levels(b.Asks)
	if err != nil {
		return types.OrderbookLatest{}, errs.New(errs.ParseError, "normalize.Book", err)
	}
	sortDescending(bids)
	sortAscending(asks)

	tick, _ := decimal.NewFromString(b.TickSize)
	minSize, _ := decimal.NewFromString(b.MinOrderSize)

	asOf := time.Now().UTC()
	if b.Timestamp != "" {
		if t, err := parseRESTTimestamp(b.Timestamp); err == nil {
			asOf = t
		}
	}

	return types.OrderbookLatest{
		TokenID:      b.AssetID,
		ConditionID:  b.Market,
		Bids:         bids,
		Asks:         asks,
		TickSize:     tick,
		MinOrderSize: minSize,
		NegRisk:      b.NegRisk,
		AsOf:         asOf,
		Hash:         b.Hash,
	}, nil
}

func levels(raw []types.RESTPriceLevel) ([]types.PriceLevel, error) {
	out := make([]types.PriceLevel, 0, len(raw))
	for _, r := range raw {
		price, err := decimal.NewFromString(r.Price)
		if err != nil {
			return nil, err
		}
		size, err := decimal.NewFromString(r.Size)
		if err != nil {
			return nil, err
		}
		if size.IsZero() {
			continue
		}
		out = append(out, types.PriceLevel{Price: price, Size: size})
	}
	return out, nil
}

func sortDescending(levels []types.PriceLevel) {
	for i := 1; i < len(levels); i++ {
		for j := i; j > 0 && levels[j].Price.GreaterThan(levels[j-1].Price); j-- {
			levels[j], levels[j-1] = levels[j-1], levels[j]
		}
	}
}

func sortAscending(levels []types.PriceLevel) {
	for i := 1; i < len(levels); i++ {
		for j := i; j > 0 && levels[j].Price.LessThan(levels[j-1].Price); j-- {
			levels[j], levels[j-1] = levels[j-1], levels[j]
		}
	}
}

// WalletExposure converts one positions-endpoint row into an append-only
// exposure record.
func WalletExposure(p types.PositionEntry, wallet string, asOf time.Time) (types.WalletExposure, error) {
	size, err := decimal.NewFromString(string(p.Size))
	if err != nil {
		return types.WalletExposure{}, errs.New(errs.ParseError, "normalize.WalletExposure", err)
	}
	return types.WalletExposure{
		Wallet:      wallet,
		ConditionID: p.ConditionID,
		TokenID:     p.Asset,
		Size:        size,
		Redeemable:  p.Redeemable,
		AsOf:        asOf,
	}, nil
}

// parseRESTTimestamp parses the RFC3339 timestamps REST endpoints send.
func parseRESTTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse RFC3339 timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}

// parseEpochMillis parses the millisecond-epoch-as-string timestamps the
// websocket and Data API send, normalizing to the same absolute instant
// parseRESTTimestamp produces for REST payloads.
func parseEpochMillis(s string) (time.Time, error) {
	ms, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse epoch millis %q: %w", s, err)
	}
	return time.UnixMilli(ms).UTC(), nil
}
