package jobs

import (
	"context"
	"fmt"

	"polymarket-signals/internal/errs"
	"polymarket-signals/internal/httppool"
	"polymarket-signals/internal/normalize"
	"polymarket-signals/internal/orderbook"
	"polymarket-signals/internal/storage"
	"polymarket-signals/pkg/types"
)

// RESTHealer implements wsfeed.Healer by fetching a fresh book snapshot per
// token from the CLOB REST endpoint, the same path sync_orderbooks polls.
// wsfeed calls this once per reconnect/resubscribe so the cache never
// trusts a websocket delta sequence that might have a gap at the seam.
type RESTHealer struct {
	pool  *httppool.Pool
	cache *orderbook.Cache
	store *storage.Store
}

// NewRESTHealer builds a RESTHealer.
func NewRESTHealer(pool *httppool.Pool, cache *orderbook.Cache, store *storage.Store) *RESTHealer {
	return &RESTHealer{pool: pool, cache: cache, store: store}
}

// HealTokens fetches and applies one snapshot per token ID, continuing
// past individual failures so one bad token doesn't block the heal of the
// rest of the universe.
func (h *RESTHealer) HealTokens(ctx context.Context, tokenIDs []string) error {
	var firstErr error
	for _, tokenID := range tokenIDs {
		var resp types.BookResponse
		if err := h.pool.Get(ctx, "clob", "/book", map[string]string{"token_id": tokenID}, &resp); err != nil {
			if !errs.Is(err, errs.Throttled) && !errs.Is(err, errs.TransientUpstream) && firstErr == nil {
				firstErr = err
			}
			continue
		}
		book, err := normalize.Book(resp)
		if err != nil {
			continue
		}
		h.cache.ApplySnapshot(book)
		if h.store != nil {
			_ = h.store.UpsertOrderbookHeader(ctx, book)
		}
	}
	if firstErr != nil {
		return fmt.Errorf("heal tokens: %w", firstErr)
	}
	return nil
}
