package signals

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"polymarket-signals/internal/config"
	"polymarket-signals/internal/errs"
	"polymarket-signals/internal/metrics"
	"polymarket-signals/internal/orderbook"
	"polymarket-signals/internal/storage"
	"polymarket-signals/pkg/types"
)

// ArbEvaluator scans every tracked binary market's cached order books for
// a depth-aware two-sided arbitrage (spec §4.I).
type ArbEvaluator struct {
	cache  *orderbook.Cache
	store  *storage.Store
	cfg    *config.Store
	metric *metrics.Registry

	lastEmitted map[string]time.Time // condition_id -> last ARB_BUY_BOTH emission, cooldown gate
}

// NewArbEvaluator builds an ArbEvaluator.
func NewArbEvaluator(cache *orderbook.Cache, store *storage.Store, cfg *config.Store, m *metrics.Registry) *ArbEvaluator {
	return &ArbEvaluator{cache: cache, store: store, cfg: cfg, metric: m, lastEmitted: make(map[string]time.Time)}
}

// EvaluateMarket checks one binary market for an executable arbitrage and,
// if found and not suppressed by cooldown/dedupe, persists an
// ARB_BUY_BOTH SignalEvent. now is threaded through rather than read from
// time.Now() so tests can exercise the staleness and cooldown paths
// deterministically.
func (e *ArbEvaluator) EvaluateMarket(ctx context.Context, market types.Market, now time.Time) error {
	if !market.IsBinary() {
		return nil
	}
	cfg := e.cfg.Snapshot()

	if last, ok := e.lastEmitted[market.ConditionID]; ok && now.Sub(last) < cfg.Arb.CooldownPerMarket {
		return nil
	}

	yesBook, ok := e.cache.Get(market.YesTokenID())
	if !ok {
		return nil
	}
	noBook, ok := e.cache.Get(market.NoTokenID())
	if !ok {
		return nil
	}

	yesAge := now.Sub(yesBook.AsOf)
	noAge := now.Sub(noBook.AsOf)
	maxAge := yesAge
	if noAge > maxAge {
		maxAge = noAge
	}
	if maxAge > cfg.Arb.MaxBookAge {
		return nil
	}

	if len(yesBook.Asks) == 0 || len(noBook.Asks) == 0 {
		return nil
	}

	bestAskYes := yesBook.Asks[0].Price
	bestAskNo := noBook.Asks[0].Price
	minEdge := decimal.NewFromFloat(cfg.Arb.MinEdge)
	oneMinusMinEdge := decimalOne.Sub(minEdge)
	if bestAskYes.Add(bestAskNo).GreaterThanOrEqual(oneMinusMinEdge) {
		return nil
	}

	minQ := decimal.NewFromFloat(cfg.Arb.MinExecutableShares)
	maxSharesToEvaluate := decimal.NewFromFloat(cfg.Arb.MaxSharesToEvaluate)
	feeBps := decimal.NewFromInt(int64(cfg.Arb.FeeBps))

	sumYes := totalSize(yesBook.Asks)
	sumNo := totalSize(noBook.Asks)
	maxQ := decimal.Min(sumYes, sumNo)
	if maxQ.GreaterThan(maxSharesToEvaluate) {
		maxQ = maxSharesToEvaluate
	}
	if maxQ.LessThan(minQ) {
		return nil
	}

	totalAvgCost := func(q decimal.Decimal) (decimal.Decimal, decimal.Decimal, decimal.Decimal) {
		avgYes := avgAsk(yesBook.Asks, q)
		avgNo := avgAsk(noBook.Asks, q)
		sum := avgYes.Add(avgNo)
		fee := sum.Mul(feeBps).Div(decimal.NewFromInt(10000))
		return sum.Add(fee), avgYes, avgNo
	}

	satisfiesAt := func(q decimal.Decimal) bool {
		cost, _, _ := totalAvgCost(q)
		return cost.LessThan(oneMinusMinEdge)
	}

	if !satisfiesAt(minQ) {
		return nil
	}

	// avg_ask is non-decreasing in q, so total_avg_cost is non-decreasing
	// and satisfiesAt is a monotone predicate over [min, maxQ] — binary
	// search finds the largest q still satisfying it.
	lo, hi := minQ, maxQ
	for hi.Sub(lo).GreaterThan(decimalBisectTolerance) {
		mid := lo.Add(hi).Div(decimalTwo)
		if satisfiesAt(mid) {
			lo = mid
		} else {
			hi = mid
		}
	}
	qMax := lo

	cost, avgYesAtQ, avgNoAtQ := totalAvgCost(qMax)
	edgeAtQMax := decimalOne.Sub(cost)
	costAtMin, avgYesAtMin, avgNoAtMin := totalAvgCost(minQ)
	edgeAtMinQ := decimalOne.Sub(costAtMin)

	severity := arbSeverity(edgeAtQMax, qMax, maxAge)

	evt := types.SignalEvent{
		ID:          uuid.NewString(),
		SignalType:  types.SignalArbBuyBoth,
		DedupeKey:   fmt.Sprintf("%s:%s:%s:%s", types.SignalArbBuyBoth, market.ConditionID, edgeAtQMax.Round(4).String(), qMax.Round(2).String()),
		CreatedAt:   now,
		Severity:    severity,
		ConditionID: market.ConditionID,
		Payload: types.JSONMap{
			"yes_token_id":         market.YesTokenID(),
			"no_token_id":          market.NoTokenID(),
			"yes_as_of":            yesBook.AsOf.Format(time.RFC3339),
			"no_as_of":             noBook.AsOf.Format(time.RFC3339),
			"best_ask_yes":         bestAskYes.String(),
			"best_ask_no":          bestAskNo.String(),
			"top_of_book_sum":      bestAskYes.Add(bestAskNo).String(),
			"edge_min":             cfg.Arb.MinEdge,
			"q_max":                qMax.String(),
			"edge_at_min_q":        edgeAtMinQ.String(),
			"edge_at_q_max":        edgeAtQMax.String(),
			"avg_ask_yes_at_q":     avgYesAtQ.String(),
			"avg_ask_no_at_q":      avgNoAtQ.String(),
			"avg_ask_yes_at_min_q": avgYesAtMin.String(),
			"avg_ask_no_at_min_q":  avgNoAtMin.String(),
			"yes_levels":           levelsUpTo(yesBook.Asks, qMax),
			"no_levels":            levelsUpTo(noBook.Asks, qMax),
			"neg_risk":             market.NegRisk,
		},
	}

	err := e.store.InsertSignalEvent(ctx, evt)
	if errs.Is(err, errs.ConstraintCollision) {
		e.lastEmitted[market.ConditionID] = now
		return nil
	}
	if err != nil {
		return fmt.Errorf("insert arb signal %s: %w", evt.DedupeKey, err)
	}
	e.lastEmitted[market.ConditionID] = now
	if e.metric != nil {
		e.metric.SignalsEmittedTotal.WithLabelValues(string(types.SignalArbBuyBoth)).Inc()
	}
	return nil
}

var (
	decimalOne             = decimal.NewFromInt(1)
	decimalTwo             = decimal.NewFromInt(2)
	decimalBisectTolerance = decimal.NewFromFloat(0.5)
	decimalZero            = decimal.Zero
)

// avgAsk is the volume-weighted average price paid filling q shares
// greedily from levels, sorted ascending by price. Returns 0 for q <= 0. If
// q exceeds total depth, the unfilled remainder adds no cost, so the result
// is not a real fill price (callers bound q by totalSize first).
func avgAsk(levels []types.PriceLevel, q decimal.Decimal) decimal.Decimal {
	remaining := q
	cost := decimalZero
	for _, lvl := range levels {
		if remaining.LessThanOrEqual(decimalZero) {
			break
		}
		take := decimal.Min(remaining, lvl.Size)
		cost = cost.Add(take.Mul(lvl.Price))
		remaining = remaining.Sub(take)
	}
	if q.LessThanOrEqual(decimalZero) {
		return decimalZero
	}
	return cost.Div(q)
}

func totalSize(levels []types.PriceLevel) decimal.Decimal {
	sum := decimalZero
	for _, lvl := range levels {
		sum = sum.Add(lvl.Size)
	}
	return sum
}

func levelsUpTo(levels []types.PriceLevel, q decimal.Decimal) []map[string]string {
	remaining := q
	out := make([]map[string]string, 0, len(levels))
	for _, lvl := range levels {
		if remaining.LessThanOrEqual(decimalZero) {
			break
		}
		take := decimal.Min(remaining, lvl.Size)
		out = append(out, map[string]string{"price": lvl.Price.String(), "size": take.String()})
		remaining = remaining.Sub(take)
	}
	return out
}

func arbSeverity(edgeAtQMax, qMax decimal.Decimal, maxAge time.Duration) int {
	sev := 2
	switch {
	case edgeAtQMax.GreaterThanOrEqual(decimal.NewFromFloat(0.015)) && qMax.GreaterThanOrEqual(decimal.NewFromInt(500)):
		sev = 4
	case edgeAtQMax.GreaterThanOrEqual(decimal.NewFromFloat(0.010)) && qMax.GreaterThanOrEqual(decimal.NewFromInt(100)):
		sev = 3
	}
	if maxAge > 5*time.Second {
		sev--
	}
	if sev > 5 {
		sev = 5
	}
	if sev < 1 {
		sev = 1
	}
	return sev
}
