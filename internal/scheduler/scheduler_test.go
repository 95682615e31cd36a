package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"polymarket-signals/internal/metrics"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunsImmediatelyOnStartup(t *testing.T) {
	t.Parallel()
	var runs atomic.Int32
	job := Job{Name: "immediate", Interval: time.Hour, Run: func(ctx context.Context) error {
		runs.Add(1)
		return nil
	}}
	s := New([]Job{job}, metrics.New(), discardLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	s.Run(ctx)

	if runs.Load() < 1 {
		t.Fatalf("expected at least one immediate run, got %d", runs.Load())
	}
}

func TestOverlappingTickIsSkipped(t *testing.T) {
	t.Parallel()
	var concurrent atomic.Int32
	var maxConcurrent atomic.Int32
	job := Job{Name: "slow", Interval: 10 * time.Millisecond, Run: func(ctx context.Context) error {
		n := concurrent.Add(1)
		if n > maxConcurrent.Load() {
			maxConcurrent.Store(n)
		}
		time.Sleep(80 * time.Millisecond)
		concurrent.Add(-1)
		return nil
	}}
	s := New([]Job{job}, metrics.New(), discardLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	s.Run(ctx)

	if maxConcurrent.Load() > 1 {
		t.Fatalf("expected overlap suppression, saw %d concurrent runs", maxConcurrent.Load())
	}
}

func TestFailureDoesNotStopSubsequentTicks(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	job := Job{Name: "flaky", Interval: 10 * time.Millisecond, Run: func(ctx context.Context) error {
		calls.Add(1)
		return errors.New("boom")
	}}
	s := New([]Job{job}, metrics.New(), discardLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	s.Run(ctx)

	if calls.Load() < 2 {
		t.Fatalf("expected multiple ticks despite failures, got %d", calls.Load())
	}

	status := s.Status()
	if len(status) != 1 || status[0].LastError == nil {
		t.Fatalf("expected last error recorded, got %+v", status)
	}
}

func TestStatusReportsLastSuccess(t *testing.T) {
	t.Parallel()
	job := Job{Name: "ok", Interval: time.Hour, Run: func(ctx context.Context) error {
		return nil
	}}
	s := New([]Job{job}, metrics.New(), discardLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	s.Run(ctx)

	status := s.Status()
	if len(status) != 1 || status[0].LastSuccess.IsZero() {
		t.Fatalf("expected LastSuccess set, got %+v", status)
	}
}
