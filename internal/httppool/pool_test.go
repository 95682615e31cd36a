package httppool

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"polymarket-signals/internal/errs"
	"polymarket-signals/internal/metrics"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestGetDecodesJSONBody(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"hello": "world"})
	}))
	defer srv.Close()

	p := New([]UpstreamConfig{{
		Name: "gamma", BaseURL: srv.URL, RequestTimeout: 2 * time.Second,
		BurstCapacity: 10, RatePerSecond: 100,
	}}, 4, metrics.New(), discardLogger())

	var out map[string]string
	if err := p.Get(context.Background(), "gamma", "/markets", nil, &out); err != nil {
		t.Fatalf("get: %v", err)
	}
	if out["hello"] != "world" {
		t.Fatalf("unexpected body: %v", out)
	}
}

func TestGetClassifies5xxAsTransientUpstream(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := New([]UpstreamConfig{{
		Name: "clob", BaseURL: srv.URL, RequestTimeout: 2 * time.Second,
		BurstCapacity: 10, RatePerSecond: 100,
	}}, 4, metrics.New(), discardLogger())

	var out map[string]string
	err := p.Get(context.Background(), "clob", "/book", nil, &out)
	if err == nil {
		t.Fatalf("expected error")
	}
	if !errs.Is(err, errs.TransientUpstream) {
		t.Fatalf("expected TransientUpstream, got %v", err)
	}
}

func TestGetClassifies429AsThrottled(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := New([]UpstreamConfig{{
		Name: "data", BaseURL: srv.URL, RequestTimeout: 2 * time.Second,
		BurstCapacity: 10, RatePerSecond: 100,
	}}, 4, metrics.New(), discardLogger())

	var out map[string]string
	err := p.Get(context.Background(), "data", "/trades", nil, &out)
	if !errs.Is(err, errs.Throttled) {
		t.Fatalf("expected Throttled, got %v", err)
	}
}

func TestGetUnknownUpstreamIsFatalConfig(t *testing.T) {
	t.Parallel()
	p := New(nil, 4, metrics.New(), discardLogger())
	var out map[string]string
	err := p.Get(context.Background(), "nope", "/x", nil, &out)
	if !errs.Is(err, errs.FatalConfig) {
		t.Fatalf("expected FatalConfig, got %v", err)
	}
}

func TestGetRespectsContextCancellation(t *testing.T) {
	t.Parallel()
	p := New([]UpstreamConfig{{
		Name: "gamma", BaseURL: "http://127.0.0.1:1", RequestTimeout: time.Second,
		BurstCapacity: 0, RatePerSecond: 0.001,
	}}, 4, metrics.New(), discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var out map[string]string
	err := p.Get(ctx, "gamma", "/x", nil, &out)
	if !errs.Is(err, errs.Cancellation) {
		t.Fatalf("expected Cancellation, got %v", err)
	}
}
