// Package orderbook is the in-memory, per-token order book cache. It is
// mastered outside the database: REST snapshots and websocket events both
// mutate it directly, and only a slow-cadence header flush touches storage
// (for crash-recovery staleness bookkeeping, never for price levels).
package orderbook

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"polymarket-signals/pkg/types"
)

// book is one token's mutable order book, serialized by its own mutex so a
// burst of price_change events on one token never blocks reads/writes on
// another.
type book struct {
	mu           sync.RWMutex
	conditionID  string
	bids         []types.PriceLevel // sorted descending by price
	asks         []types.PriceLevel // sorted ascending by price
	tickSize     decimal.Decimal
	minOrderSize decimal.Decimal
	negRisk      bool
	hash         string
	asOf         time.Time
}

// Cache is the token_id -> book map. Map membership (add/remove token) is
// guarded separately from a book's internal price-level mutations so
// adding a new tracked token never blocks an in-flight book mutation.
type Cache struct {
	mu     sync.RWMutex
	books  map[string]*book
	nowFn  func() time.Time
}

// New builds an empty cache.
func New() *Cache {
	return &Cache{books: make(map[string]*book), nowFn: time.Now}
}

// EnsureToken registers tokenID if absent, a no-op otherwise. Called when
// the universe job adds a market to the tracked set, before any snapshot
// or websocket event for that token has arrived.
func (c *Cache) EnsureToken(tokenID, conditionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.books[tokenID]; !ok {
		c.books[tokenID] = &book{conditionID: conditionID}
	}
}

// RemoveToken drops a token from the cache entirely, called when the
// universe job stops tracking a market.
func (c *Cache) RemoveToken(tokenID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.books, tokenID)
}

// Tokens returns the currently tracked token IDs.
func (c *Cache) Tokens() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.books))
	for id := range c.books {
		out = append(out, id)
	}
	return out
}

func (c *Cache) getOrCreate(tokenID string) *book {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.books[tokenID]
	if !ok {
		b = &book{}
		c.books[tokenID] = b
	}
	return b
}

// ApplySnapshot replaces a token's book wholesale — the REST heal path and
// the websocket's full book_event both call this. A snapshot whose AsOf is
// not strictly newer than the book's current AsOf is dropped: REST polling
// and the websocket consumer both write here, and either can be the one
// lagging at any given moment.
func (c *Cache) ApplySnapshot(snap types.OrderbookLatest) {
	b := c.getOrCreate(snap.TokenID)
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.asOf.IsZero() && !snap.AsOf.After(b.asOf) {
		return
	}
	if snap.ConditionID != "" {
		b.conditionID = snap.ConditionID
	}
	b.bids = append([]types.PriceLevel(nil), snap.Bids...)
	b.asks = append([]types.PriceLevel(nil), snap.Asks...)
	b.tickSize = snap.TickSize
	b.minOrderSize = snap.MinOrderSize
	b.negRisk = snap.NegRisk
	b.hash = snap.Hash
	b.asOf = c.now(snap.AsOf)
}

// ApplyPriceChange applies one or more incremental level updates to a
// token's book: a size of zero removes the level, any other size upserts
// it, and the side (BUY=bid, SELL=ask) is preserved as sorted per §4.D.
func (c *Cache) ApplyPriceChange(tokenID string, changes []types.WSPriceChange, hash string, ts time.Time) {
	b := c.getOrCreate(tokenID)
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.asOf.IsZero() && !ts.IsZero() && ts.Before(b.asOf) {
		return
	}

	for _, ch := range changes {
		price, err := decimal.NewFromString(ch.Price)
		if err != nil {
			continue
		}
		size, err := decimal.NewFromString(ch.Size)
		if err != nil {
			continue
		}
		if ch.Side == string(types.BUY) {
			b.bids = upsertLevel(b.bids, price, size, true)
		} else {
			b.asks = upsertLevel(b.asks, price, size, false)
		}
	}
	if hash != "" {
		b.hash = hash
	}
	b.asOf = c.now(ts)
}

// upsertLevel inserts/updates/removes a single price level while keeping
// the slice sorted — descending for bids, ascending for asks.
func upsertLevel(levels []types.PriceLevel, price, size decimal.Decimal, descending bool) []types.PriceLevel {
	idx := -1
	for i, lvl := range levels {
		if lvl.Price.Equal(price) {
			idx = i
			break
		}
	}

	if size.IsZero() {
		if idx >= 0 {
			levels = append(levels[:idx], levels[idx+1:]...)
		}
		return levels
	}

	if idx >= 0 {
		levels[idx].Size = size
		return levels
	}

	// insert keeping sort order
	insertAt := len(levels)
	for i, lvl := range levels {
		if descending && price.GreaterThan(lvl.Price) {
			insertAt = i
			break
		}
		if !descending && price.LessThan(lvl.Price) {
			insertAt = i
			break
		}
	}
	levels = append(levels, types.PriceLevel{})
	copy(levels[insertAt+1:], levels[insertAt:])
	levels[insertAt] = types.PriceLevel{Price: price, Size: size}
	return levels
}

// Get returns a snapshot copy of a token's current book and whether it
// exists at all.
func (c *Cache) Get(tokenID string) (types.OrderbookLatest, bool) {
	c.mu.RLock()
	b, ok := c.books[tokenID]
	c.mu.RUnlock()
	if !ok {
		return types.OrderbookLatest{}, false
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return types.OrderbookLatest{
		TokenID:      tokenID,
		ConditionID:  b.conditionID,
		Bids:         append([]types.PriceLevel(nil), b.bids...),
		Asks:         append([]types.PriceLevel(nil), b.asks...),
		TickSize:     b.tickSize,
		MinOrderSize: b.minOrderSize,
		NegRisk:      b.negRisk,
		Hash:         b.hash,
		AsOf:         b.asOf,
	}, true
}

// SetTickSize updates a token's minimum price increment in place
// (tick_size_change, spec §4.E). This bypasses the AsOf-gated snapshot
// path deliberately: a tick-size change carries no book AsOf of its own,
// and re-submitting the current book through ApplySnapshot would always
// be dropped as stale since its AsOf can never be strictly after what's
// already stored.
func (c *Cache) SetTickSize(tokenID string, tick decimal.Decimal) {
	c.mu.RLock()
	b, ok := c.books[tokenID]
	c.mu.RUnlock()
	if !ok {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tickSize = tick
}

// Age returns how long ago tokenID's book last changed, and whether the
// token is tracked at all.
func (c *Cache) Age(tokenID string, now time.Time) (time.Duration, bool) {
	c.mu.RLock()
	b, ok := c.books[tokenID]
	c.mu.RUnlock()
	if !ok {
		return 0, false
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.asOf.IsZero() {
		return 0, false
	}
	return now.Sub(b.asOf), true
}

func (c *Cache) now(ts time.Time) time.Time {
	if ts.IsZero() {
		return c.nowFn()
	}
	return ts
}
