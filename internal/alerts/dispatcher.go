// Package alerts reads undispatched SignalEvents, evaluates delivery
// rules, suppresses duplicates within the configured dedupe window, and
// delivers formatted messages through one or more pluggable channel
// drivers.
package alerts

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"polymarket-signals/internal/config"
	"polymarket-signals/internal/metrics"
	"polymarket-signals/internal/storage"
	"polymarket-signals/pkg/types"
)

// Channel is a single pluggable delivery driver. Formatted carries the
// human-readable message; metadata carries the structured fields a richer
// driver (Slack, email) might want beyond the plain string.
type Channel interface {
	Name() string
	Send(ctx context.Context, formatted string, evt types.SignalEvent) error
}

// Rule filters which SignalEvents a declared rule applies to and which
// channels it routes to. Rules are evaluated in declared order; the first
// matching rule's channel list wins (spec §4.J step 1).
type Rule struct {
	SignalTypes  []types.SignalType // empty matches any
	MinSeverity  int
	ChannelNames []string // empty routes to every configured channel
}

func (r Rule) matches(evt types.SignalEvent) bool {
	if evt.Severity < r.MinSeverity {
		return false
	}
	if len(r.SignalTypes) == 0 {
		return true
	}
	for _, st := range r.SignalTypes {
		if st == evt.SignalType {
			return true
		}
	}
	return false
}

// Dispatcher is the alert_dispatcher job body (spec §4.J).
type Dispatcher struct {
	store    *storage.Store
	cfg      *config.Store
	channels map[string]Channel
	rules    []Rule
	metric   *metrics.Registry
	log      *slog.Logger

	cursor string // created_at of the last signal event processed
}

// New builds a Dispatcher from its configured channel drivers and rule
// set. An empty rule set means every signal routes to every channel.
func New(store *storage.Store, cfg *config.Store, channels []Channel, rules []Rule, m *metrics.Registry, log *slog.Logger) *Dispatcher {
	byName := make(map[string]Channel, len(channels))
	for _, ch := range channels {
		byName[ch.Name()] = ch
	}
	return &Dispatcher{
		store:    store,
		cfg:      cfg,
		channels: byName,
		rules:    rules,
		metric:   m,
		log:      log.With("component", "alert_dispatcher"),
	}
}

// Dispatch processes every undispatched SignalEvent once: evaluates rules,
// computes the notification key, checks the dedupe window, and delivers.
func (d *Dispatcher) Dispatch(ctx context.Context) error {
	cfg := d.cfg.Snapshot()

	events, err := d.store.ListUndispatchedSignals(ctx, d.cursor, 200)
	if err != nil {
		return fmt.Errorf("list undispatched signals: %w", err)
	}

	for _, evt := range events {
		targets := d.route(evt)
		for _, chName := range targets {
			if err := d.deliverTo(ctx, chName, evt, cfg.Alerts.DedupeWindow); err != nil {
				d.log.Error("alert delivery failed", "channel", chName, "signal_type", evt.SignalType, "err", err)
			}
		}
		if evt.CreatedAt.Format(time.RFC3339Nano) > d.cursor {
			d.cursor = evt.CreatedAt.Format(time.RFC3339Nano)
		}
	}
	return nil
}

// route applies the declared rules in order, returning the channel names
// the first matching rule selects. No matching rule means no delivery.
func (d *Dispatcher) route(evt types.SignalEvent) []string {
	for _, r := range d.rules {
		if !r.matches(evt) {
			continue
		}
		if len(r.ChannelNames) > 0 {
			return r.ChannelNames
		}
		all := make([]string, 0, len(d.channels))
		for name := range d.channels {
			all = append(all, name)
		}
		return all
	}
	return nil
}

func (d *Dispatcher) deliverTo(ctx context.Context, chName string, evt types.SignalEvent, dedupeWindow time.Duration) error {
	ch, ok := d.channels[chName]
	if !ok {
		return fmt.Errorf("unknown channel %q", chName)
	}

	notificationKey := notificationKey(evt)
	prior, err := d.store.LastAlertForKey(ctx, chName, notificationKey)
	if err == nil && prior.Status == types.AlertSent && time.Since(prior.SentAt) < dedupeWindow && evt.Severity <= prior.Severity {
		return d.logAttempt(ctx, evt, chName, notificationKey, types.AlertSuppressed, "")
	}

	formatted := formatMessage(evt)
	sendErr := sendWithRetry(ctx, ch, formatted, evt)
	if sendErr != nil {
		if err := d.logAttempt(ctx, evt, chName, notificationKey, types.AlertFailed, sendErr.Error()); err != nil {
			return err
		}
		return sendErr
	}

	if d.metric != nil {
		d.metric.AlertsSentTotal.WithLabelValues(chName).Inc()
	}
	return d.logAttempt(ctx, evt, chName, notificationKey, types.AlertSent, "")
}

func (d *Dispatcher) logAttempt(ctx context.Context, evt types.SignalEvent, channel, notificationKey string, status types.AlertStatus, errMsg string) error {
	if status == types.AlertSuppressed && d.metric != nil {
		d.metric.AlertsSuppressedTotal.WithLabelValues(channel).Inc()
	}
	row := types.AlertLog{
		ID:              uuid.NewString(),
		SignalEventID:   evt.ID,
		Channel:         channel,
		NotificationKey: notificationKey,
		SentAt:          time.Now().UTC(),
		Status:          status,
		Error:           errMsg,
		Severity:        evt.Severity,
	}
	return d.store.InsertAlertLog(ctx, row)
}

const maxSendAttempts = 3

// sendWithRetry delivers through one channel with exponential backoff
// (spec §4.J step 4: "retry with exponential backoff up to N attempts").
func sendWithRetry(ctx context.Context, ch Channel, formatted string, evt types.SignalEvent) error {
	var lastErr error
	wait := 500 * time.Millisecond
	for attempt := 1; attempt <= maxSendAttempts; attempt++ {
		lastErr = ch.Send(ctx, formatted, evt)
		if lastErr == nil {
			return nil
		}
		if attempt == maxSendAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		wait *= 2
	}
	return lastErr
}

// notificationKey implements spec §4.J step 2: signal_type + ':' +
// (wallet | condition_id).
func notificationKey(evt types.SignalEvent) string {
	principal := evt.Wallet
	if principal == "" {
		principal = evt.ConditionID
	}
	return string(evt.SignalType) + ":" + principal
}

// formatMessage renders severity, type, principal numbers, and a deep
// link — spec §4.J's required message content.
func formatMessage(evt types.SignalEvent) string {
	principal := evt.Wallet
	if principal == "" {
		principal = evt.ConditionID
	}
	return fmt.Sprintf("[severity %d] %s %s — https://polymarket.com/signals/%s",
		evt.Severity, evt.SignalType, principal, evt.ID)
}
