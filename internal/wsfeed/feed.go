// Package wsfeed is the websocket consumer for the market channel: a single
// connection subscribed to the tracked universe's token IDs, routing
// book/price_change/tick_size_change events into the in-memory order book
// cache, reconnecting with jittered exponential backoff and forcing a REST
// heal on every reconnect so the cache never trusts a possibly-missed
// sequence of deltas.
package wsfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"polymarket-signals/internal/metrics"
	"polymarket-signals/internal/orderbook"
	"polymarket-signals/pkg/types"
)

// State is the consumer's connection lifecycle stage.
type State int32

const (
	Disconnected State = iota
	Connecting
	Subscribing
	Live
	Draining
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "Disconnected"
	case Connecting:
		return "Connecting"
	case Subscribing:
		return "Subscribing"
	case Live:
		return "Live"
	case Draining:
		return "Draining"
	default:
		return "Unknown"
	}
}

const (
	pingInterval     = 50 * time.Second
	readTimeout      = 90 * time.Second
	writeTimeout     = 10 * time.Second
	minReconnectWait = time.Second
	maxReconnectWait = 30 * time.Second
	maxSubscriptions = 400
)

// Healer forces a REST snapshot refresh for the given token IDs, called
// once right after every successful (re)subscribe so the cache never
// depends solely on a possibly-gapped sequence of websocket deltas.
type Healer interface {
	HealTokens(ctx context.Context, tokenIDs []string) error
}

// Feed owns the single market-channel websocket connection.
type Feed struct {
	url    string
	cache  *orderbook.Cache
	healer Healer
	metric *metrics.Registry
	log    *slog.Logger

	state atomic.Int32

	connMu sync.Mutex
	conn   *websocket.Conn

	subMu sync.RWMutex
	sub   map[string]struct{}
}

// New builds a market-channel feed.
func New(wsURL string, cache *orderbook.Cache, healer Healer, m *metrics.Registry, log *slog.Logger) *Feed {
	return &Feed{
		url:    wsURL,
		cache:  cache,
		healer: healer,
		metric: m,
		log:    log.With("component", "wsfeed"),
		sub:    make(map[string]struct{}),
	}
}

// State returns the current connection state.
func (f *Feed) State() State {
	return State(f.state.Load())
}

func (f *Feed) setState(s State) {
	f.state.Store(int32(s))
	if f.metric != nil {
		f.metric.WSConnectionState.Set(float64(s))
	}
}

// UpdateUniverse reconciles the desired tracked token set against the live
// subscription, subscribing to additions and unsubscribing removals. Safe
// to call at any time, including while Disconnected (the new set becomes
// the initial subscription on the next connect).
func (f *Feed) UpdateUniverse(ctx context.Context, desired []string) error {
	if len(desired) > maxSubscriptions {
		f.log.Warn("universe exceeds max subscriptions, truncating", "desired", len(desired), "max", maxSubscriptions)
		desired = desired[:maxSubscriptions]
	}
	desiredSet := make(map[string]struct{}, len(desired))
	for _, id := range desired {
		desiredSet[id] = struct{}{}
	}

	f.subMu.Lock()
	var toAdd, toRemove []string
	for id := range desiredSet {
		if _, ok := f.sub[id]; !ok {
			toAdd = append(toAdd, id)
		}
	}
	for id := range f.sub {
		if _, ok := desiredSet[id]; !ok {
			toRemove = append(toRemove, id)
		}
	}
	for _, id := range toAdd {
		f.sub[id] = struct{}{}
	}
	for _, id := range toRemove {
		delete(f.sub, id)
	}
	f.subMu.Unlock()

	if f.State() != Live {
		return nil // will be picked up as the initial subscription set
	}
	if len(toAdd) > 0 {
		if err := f.writeJSON(types.WSUpdateMsg{AssetIDs: toAdd, Operation: "subscribe"}); err != nil {
			return fmt.Errorf("subscribe update: %w", err)
		}
		if f.healer != nil {
			if err := f.healer.HealTokens(ctx, toAdd); err != nil {
				f.log.Warn("heal after subscribe update failed", "err", err)
			}
		}
	}
	if len(toRemove) > 0 {
		if err := f.writeJSON(types.WSUpdateMsg{AssetIDs: toRemove, Operation: "unsubscribe"}); err != nil {
			return fmt.Errorf("unsubscribe update: %w", err)
		}
		for _, id := range toRemove {
			f.cache.RemoveToken(id)
		}
	}
	return nil
}

// Run connects and maintains the connection with jittered exponential
// backoff, reconnecting until ctx is cancelled.
func (f *Feed) Run(ctx context.Context) error {
	backoff := minReconnectWait
	for {
		err := f.connectAndRead(ctx)
		if ctx.Err() != nil {
			f.setState(Disconnected)
			return ctx.Err()
		}

		f.setState(Disconnected)
		if f.metric != nil {
			f.metric.WSReconnectsTotal.Inc()
		}
		wait := jitter(backoff)
		f.log.Warn("websocket disconnected, reconnecting", "err", err, "wait", wait)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}

		backoff *= 2
		if backoff > maxReconnectWait {
			backoff = maxReconnectWait
		}
	}
}

func jitter(base time.Duration) time.Duration {
	// +/- 20% jitter around base, matching the "exponential backoff with
	// jitter" requirement without synchronizing reconnect storms.
	delta := time.Duration(rand.Int63n(int64(base) / 5))
	if rand.Intn(2) == 0 {
		return base + delta
	}
	return base - delta
}

func (f *Feed) connectAndRead(ctx context.Context) error {
	f.setState(Connecting)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	f.connMu.Lock()
	f.conn = conn
	f.connMu.Unlock()
	defer func() {
		f.connMu.Lock()
		conn.Close()
		f.conn = nil
		f.connMu.Unlock()
	}()

	f.setState(Subscribing)
	subscribedIDs, err := f.sendInitialSubscription()
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	if f.healer != nil && len(subscribedIDs) > 0 {
		if err := f.healer.HealTokens(ctx, subscribedIDs); err != nil {
			f.log.Warn("heal after reconnect failed", "err", err)
		}
	}

	f.setState(Live)
	f.log.Info("websocket connected", "subscriptions", len(subscribedIDs))

	pingCtx, cancelPing := context.WithCancel(ctx)
	defer cancelPing()
	go f.pingLoop(pingCtx)

	for {
		if ctx.Err() != nil {
			f.setState(Draining)
			return ctx.Err()
		}
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		f.dispatch(msg)
	}
}

func (f *Feed) sendInitialSubscription() ([]string, error) {
	f.subMu.RLock()
	ids := make([]string, 0, len(f.sub))
	for id := range f.sub {
		ids = append(ids, id)
	}
	f.subMu.RUnlock()

	if err := f.writeJSON(types.WSSubscribeMsg{Type: "market", AssetIDs: ids}); err != nil {
		return nil, err
	}
	return ids, nil
}

func (f *Feed) dispatch(data []byte) {
	var envelope types.WSEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		f.log.Debug("ignoring non-json ws message", "len", len(data))
		return
	}

	switch envelope.EventType {
	case "book":
		var evt types.WSBookEvent
		if err := json.Unmarshal(data, &evt); err != nil {
			f.log.Error("unmarshal book event", "err", err)
			return
		}
		f.applyBook(evt)
	case "price_change":
		var evt types.WSPriceChangeEvent
		if err := json.Unmarshal(data, &evt); err != nil {
			f.log.Error("unmarshal price_change event", "err", err)
			return
		}
		f.applyPriceChange(evt)
	case "tick_size_change":
		var evt types.WSTickSizeChangeEvent
		if err := json.Unmarshal(data, &evt); err != nil {
			f.log.Error("unmarshal tick_size_change event", "err", err)
			return
		}
		f.applyTickSizeChange(evt)
	case "last_trade_price", "new_market", "market_resolved", "best_bid_ask":
		f.log.Debug("informational ws event", "type", envelope.EventType)
	default:
		f.log.Debug("unknown ws event type", "type", envelope.EventType)
	}
}

func (f *Feed) applyBook(evt types.WSBookEvent) {
	bids, err := toLevels(evt.NormalizedBids())
	if err != nil {
		f.log.Warn("drop malformed book bids", "asset", evt.AssetID, "err", err)
		return
	}
	asks, err := toLevels(evt.NormalizedAsks())
	if err != nil {
		f.log.Warn("drop malformed book asks", "asset", evt.AssetID, "err", err)
		return
	}
	asOf := time.Now().UTC()
	if ms, err := parseMillis(evt.Timestamp); err == nil {
		asOf = ms
	}
	f.cache.ApplySnapshot(types.OrderbookLatest{
		TokenID:     evt.AssetID,
		ConditionID: evt.Market,
		Bids:        bids,
		Asks:        asks,
		Hash:        evt.Hash,
		AsOf:        asOf,
	})
}

func (f *Feed) applyPriceChange(evt types.WSPriceChangeEvent) {
	byAsset := make(map[string][]types.WSPriceChange)
	for _, pc := range evt.PriceChanges {
		byAsset[pc.AssetID] = append(byAsset[pc.AssetID], pc)
	}
	ts := time.Now().UTC()
	if parsed, err := parseMillis(evt.Timestamp); err == nil {
		ts = parsed
	}
	for assetID, changes := range byAsset {
		hash := ""
		if len(changes) > 0 {
			hash = changes[len(changes)-1].Hash
		}
		f.cache.ApplyPriceChange(assetID, changes, hash, ts)
	}
}

func (f *Feed) applyTickSizeChange(evt types.WSTickSizeChangeEvent) {
	tick, err := decimal.NewFromString(evt.NewTick)
	if err != nil {
		f.log.Warn("drop malformed tick_size_change", "asset", evt.AssetID, "err", err)
		return
	}
	f.cache.SetTickSize(evt.AssetID, tick)
}

func toLevels(raw []types.RESTPriceLevel) ([]types.PriceLevel, error) {
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
		out = append(out, types.PriceLevel{Price: price, Size: size})
	}
	return out, nil
}

func parseMillis(s string) (time.Time, error) {
	var ms int64
	_, err := fmt.Sscanf(s, "%d", &ms)
	if err != nil || ms == 0 {
		return time.Time{}, fmt.Errorf("invalid millis timestamp %q", s)
	}
	return time.UnixMilli(ms).UTC(), nil
}

func (f *Feed) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := f.writeMessage(websocket.TextMessage, []byte("PING")); err != nil {
				f.log.Warn("ping failed", "err", err)
				return
			}
		}
	}
}

func (f *Feed) writeJSON(v interface{}) error {
	f.connMu.Lock()
	defer f.connMu.Unlock()
	if f.conn == nil {
		return fmt.Errorf("websocket not connected")
	}
	f.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return f.conn.WriteJSON(v)
}

func (f *Feed) writeMessage(msgType int, data []byte) error {
	f.connMu.Lock()
	defer f.connMu.Unlock()
	if f.conn == nil {
		return fmt.Errorf("websocket not connected")
	}
	f.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return f.conn.WriteMessage(msgType, data)
}
