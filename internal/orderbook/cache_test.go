package orderbook

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"polymarket-signals/pkg/types"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestApplySnapshotThenGet(t *testing.T) {
	t.Parallel()
	c := New()

	c.ApplySnapshot(types.OrderbookLatest{
		TokenID:     "tok-1",
		ConditionID: "cond-1",
		Bids:        []types.PriceLevel{{Price: dec("0.55"), Size: dec("100")}, {Price: dec("0.54"), Size: dec("200")}},
		Asks:        []types.PriceLevel{{Price: dec("0.57"), Size: dec("150")}},
		Hash:        "abc123",
		AsOf:        time.Now(),
	})

	book, ok := c.Get("tok-1")
	if !ok {
		t.Fatalf("expected token present")
	}
	if len(book.Bids) != 2 || !book.Bids[0].Price.Equal(dec("0.55")) {
		t.Fatalf("unexpected bids: %+v", book.Bids)
	}
	if len(book.Asks) != 1 || !book.Asks[0].Price.Equal(dec("0.57")) {
		t.Fatalf("unexpected asks: %+v", book.Asks)
	}
}

func TestGetUnknownTokenReturnsFalse(t *testing.T) {
	t.Parallel()
	c := New()
	_, ok := c.Get("nope")
	if ok {
		t.Fatalf("expected ok=false for unknown token")
	}
}

func TestApplyPriceChangeUpsertsLevel(t *testing.T) {
	t.Parallel()
	c := New()
	c.ApplySnapshot(types.OrderbookLatest{
		TokenID: "tok-1",
		Bids:    []types.PriceLevel{{Price: dec("0.50"), Size: dec("100")}},
		Asks:    []types.PriceLevel{{Price: dec("0.60"), Size: dec("100")}},
		AsOf:    time.Now(),
	})

	c.ApplyPriceChange("tok-1", []types.WSPriceChange{
		{Price: "0.51", Size: "50", Side: "BUY"},
	}, "hash2", time.Now())

	book, _ := c.Get("tok-1")
	if len(book.Bids) != 2 {
		t.Fatalf("expected new bid level inserted, got %+v", book.Bids)
	}
	if !book.Bids[0].Price.Equal(dec("0.51")) {
		t.Fatalf("expected 0.51 to sort to best bid, got %+v", book.Bids)
	}
}

func TestApplyPriceChangeZeroSizeRemovesLevel(t *testing.T) {
	t.Parallel()
	c := New()
	c.ApplySnapshot(types.OrderbookLatest{
		TokenID: "tok-1",
		Bids:    []types.PriceLevel{{Price: dec("0.50"), Size: dec("100")}, {Price: dec("0.49"), Size: dec("80")}},
		AsOf:    time.Now(),
	})

	c.ApplyPriceChange("tok-1", []types.WSPriceChange{
		{Price: "0.50", Size: "0", Side: "BUY"},
	}, "hash3", time.Now())

	book, _ := c.Get("tok-1")
	if len(book.Bids) != 1 || !book.Bids[0].Price.Equal(dec("0.49")) {
		t.Fatalf("expected 0.50 level removed, got %+v", book.Bids)
	}
}

func TestAgeReportsUnknownTokenAsMissing(t *testing.T) {
	t.Parallel()
	c := New()
	_, ok := c.Age("nope", time.Now())
	if ok {
		t.Fatalf("expected ok=false for untracked token")
	}
}

func TestAgeMeasuresSinceLastUpdate(t *testing.T) {
	t.Parallel()
	c := New()
	start := time.Now()
	c.ApplySnapshot(types.OrderbookLatest{TokenID: "tok-1", AsOf: start})

	age, ok := c.Age("tok-1", start.Add(5*time.Second))
	if !ok {
		t.Fatalf("expected token tracked")
	}
	if age != 5*time.Second {
		t.Fatalf("expected age 5s, got %v", age)
	}
}

func TestRemoveTokenDropsFromCache(t *testing.T) {
	t.Parallel()
	c := New()
	c.EnsureToken("tok-1", "cond-1")
	c.RemoveToken("tok-1")
	_, ok := c.Get("tok-1")
	if ok {
		t.Fatalf("expected token removed")
	}
}
