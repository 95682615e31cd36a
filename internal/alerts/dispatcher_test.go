package alerts

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"polymarket-signals/internal/config"
	"polymarket-signals/internal/metrics"
	"polymarket-signals/internal/storage"
	"polymarket-signals/pkg/types"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type noOverrides struct{}

func (noOverrides) ListConfigOverrides(ctx context.Context) ([]types.AppConfigOverride, error) {
	return nil, nil
}

// fakeChannel records every Send call and fails the first N attempts,
// for exercising sendWithRetry and the dedupe-window logic without a
// real network driver.
type fakeChannel struct {
	name       string
	failFirstN int
	sent       []string
}

func (c *fakeChannel) Name() string { return c.name }

func (c *fakeChannel) Send(_ context.Context, formatted string, _ types.SignalEvent) error {
	c.sent = append(c.sent, formatted)
	if len(c.sent) <= c.failFirstN {
		return errors.New("delivery refused")
	}
	return nil
}

func newTestDispatcher(t *testing.T, channels []Channel, rules []Rule) (*Dispatcher, *storage.Store) {
	t.Helper()
	store, err := storage.Open(context.Background(), "file:"+t.Name()+"?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	var cfg config.Config
	cfg.Alerts.DedupeWindow = time.Hour
	cfgStore := config.NewStore(cfg, noOverrides{}, discardLogger())

	return New(store, cfgStore, channels, rules, metrics.New(), discardLogger()), store
}

func insertSignal(t *testing.T, store *storage.Store, wallet string, severity int, createdAt time.Time) {
	t.Helper()
	evt := types.SignalEvent{
		ID:         "sig-" + wallet + createdAt.Format(time.RFC3339Nano),
		SignalType: types.SignalLargeTakerTrade,
		DedupeKey:  "LARGE_TAKER_TRADE:" + wallet + createdAt.Format(time.RFC3339Nano),
		CreatedAt:  createdAt,
		Severity:   severity,
		Wallet:     wallet,
		Payload:    types.JSONMap{},
	}
	if err := store.InsertSignalEvent(context.Background(), evt); err != nil {
		t.Fatalf("insert signal event: %v", err)
	}
}

// Scenario 6: two signals for the same wallet within the dedupe window at
// the same severity produce one SENT alert and one SUPPRESSED alert.
func TestDispatchSuppressesWithinDedupeWindow(t *testing.T) {
	t.Parallel()
	ch := &fakeChannel{name: "log"}
	d, store := newTestDispatcher(t, []Channel{ch}, []Rule{{MinSeverity: 1}})
	ctx := context.Background()

	now := time.Now().UTC()
	insertSignal(t, store, "0xA", 3, now)
	if err := d.Dispatch(ctx); err != nil {
		t.Fatalf("first dispatch: %v", err)
	}

	insertSignal(t, store, "0xA", 3, now.Add(time.Minute))
	if err := d.Dispatch(ctx); err != nil {
		t.Fatalf("second dispatch: %v", err)
	}

	if len(ch.sent) != 1 {
		t.Fatalf("expected exactly one delivered message, got %d: %+v", len(ch.sent), ch.sent)
	}

	logs, err := store.LastAlertForKey(ctx, "log", "LARGE_TAKER_TRADE:0xA")
	if err != nil {
		t.Fatalf("last alert for key: %v", err)
	}
	if logs.Status != types.AlertSuppressed {
		t.Fatalf("expected the second attempt's log row to be suppressed, got %s", logs.Status)
	}
}

// A higher-severity signal within the dedupe window still delivers,
// since deliverTo only suppresses when the new severity does not exceed
// the previously-sent severity.
func TestDispatchEscalatingSeverityBypassesDedupe(t *testing.T) {
	t.Parallel()
	ch := &fakeChannel{name: "log"}
	d, store := newTestDispatcher(t, []Channel{ch}, []Rule{{MinSeverity: 1}})
	ctx := context.Background()

	now := time.Now().UTC()
	insertSignal(t, store, "0xB", 2, now)
	if err := d.Dispatch(ctx); err != nil {
		t.Fatalf("first dispatch: %v", err)
	}
	insertSignal(t, store, "0xB", 4, now.Add(time.Minute))
	if err := d.Dispatch(ctx); err != nil {
		t.Fatalf("second dispatch: %v", err)
	}

	if len(ch.sent) != 2 {
		t.Fatalf("expected escalating severity to bypass suppression, got %d sends", len(ch.sent))
	}
}

func TestRouteAppliesFirstMatchingRuleInOrder(t *testing.T) {
	t.Parallel()
	log := &fakeChannel{name: "log"}
	slack := &fakeChannel{name: "slack"}
	rules := []Rule{
		{SignalTypes: []types.SignalType{types.SignalArbBuyBoth}, MinSeverity: 1, ChannelNames: []string{"slack"}},
		{MinSeverity: 1, ChannelNames: []string{"log"}},
	}
	d, _ := newTestDispatcher(t, []Channel{log, slack}, rules)

	arbEvt := types.SignalEvent{SignalType: types.SignalArbBuyBoth, Severity: 3}
	got := d.route(arbEvt)
	if len(got) != 1 || got[0] != "slack" {
		t.Fatalf("expected arb signal to route to slack via first rule, got %v", got)
	}

	tradeEvt := types.SignalEvent{SignalType: types.SignalLargeTakerTrade, Severity: 3}
	got = d.route(tradeEvt)
	if len(got) != 1 || got[0] != "log" {
		t.Fatalf("expected trade signal to fall through to the catch-all rule, got %v", got)
	}
}

func TestSendWithRetryRecoversAfterTransientFailures(t *testing.T) {
	t.Parallel()
	ch := &fakeChannel{name: "log", failFirstN: 2}
	err := sendWithRetry(context.Background(), ch, "hello", types.SignalEvent{})
	if err != nil {
		t.Fatalf("expected retry to eventually succeed, got %v", err)
	}
	if len(ch.sent) != 3 {
		t.Fatalf("expected 3 attempts, got %d", len(ch.sent))
	}
}

func TestSendWithRetryGivesUpAfterMaxAttempts(t *testing.T) {
	t.Parallel()
	ch := &fakeChannel{name: "log", failFirstN: maxSendAttempts}
	err := sendWithRetry(context.Background(), ch, "hello", types.SignalEvent{})
	if err == nil {
		t.Fatalf("expected exhausted retries to return an error")
	}
	if len(ch.sent) != maxSendAttempts {
		t.Fatalf("expected exactly %d attempts, got %d", maxSendAttempts, len(ch.sent))
	}
}

func TestNotificationKeyPrefersWalletOverCondition(t *testing.T) {
	t.Parallel()
	evt := types.SignalEvent{SignalType: types.SignalArbBuyBoth, Wallet: "0xA", ConditionID: "0xcond"}
	if got := notificationKey(evt); got != "ARB_BUY_BOTH:0xA" {
		t.Fatalf("expected wallet-keyed notification key, got %s", got)
	}
	evt.Wallet = ""
	if got := notificationKey(evt); got != "ARB_BUY_BOTH:0xcond" {
		t.Fatalf("expected condition-keyed fallback, got %s", got)
	}
}
