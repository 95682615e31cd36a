// Package httppool is the shared REST execution surface for every upstream
// this platform reads from (Gamma, CLOB, Data API). It owns per-upstream
// rate pacing, bounded concurrency, retry-with-jittered-backoff, and the
// request accounting internal/metrics exposes. No upstream here ever
// accepts write/order-placement calls — every method is GET-only.
package httppool

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"polymarket-signals/internal/errs"
	"polymarket-signals/internal/metrics"
)

// UpstreamConfig describes one REST surface the pool talks to.
type UpstreamConfig struct {
	Name           string // "gamma" | "clob" | "data"
	BaseURL        string
	RequestTimeout time.Duration
	BurstCapacity  float64
	RatePerSecond  float64
}

// Pool fans GET requests out to multiple upstreams, each self-paced by its
// own token bucket, all sharing one bounded-concurrency semaphore so a slow
// upstream cannot starve the others of goroutines.
type Pool struct {
	clients  map[string]*resty.Client
	limiters map[string]*TokenBucket
	sem      chan struct{}
	metrics  *metrics.Registry
	log      *slog.Logger
}

// New builds a Pool from per-upstream configs and a global concurrency cap,
// mirroring the teacher's per-category TokenBucket split but generalized to
// upstream name instead of CLOB operation category.
func New(upstreams []UpstreamConfig, maxConcurrency int, m *metrics.Registry, log *slog.Logger) *Pool {
	p := &Pool{
		clients:  make(map[string]*resty.Client, len(upstreams)),
		limiters: make(map[string]*TokenBucket, len(upstreams)),
		sem:      make(chan struct{}, maxConcurrency),
		metrics:  m,
		log:      log,
	}
	for _, u := range upstreams {
		p.clients[u.Name] = resty.New().
			SetBaseURL(u.BaseURL).
			SetTimeout(u.RequestTimeout).
			SetRetryCount(3).
			SetRetryWaitTime(500 * time.Millisecond).
			SetRetryMaxWaitTime(5 * time.Second).
			AddRetryCondition(func(r *resty.Response, err error) bool {
				if err != nil {
					return true
				}
				return r.StatusCode() >= 500
			})
		p.limiters[u.Name] = NewTokenBucket(u.BurstCapacity, u.RatePerSecond)
	}
	return p
}

// Get issues a GET request against upstream/path, decoding the JSON
// response body into result. query is appended as URL query parameters.
func (p *Pool) Get(ctx context.Context, upstream, path string, query map[string]string, result interface{}) error {
	client, ok := p.clients[upstream]
	if !ok {
		return errs.New(errs.FatalConfig, "httppool.Get", fmt.Errorf("unknown upstream %q", upstream))
	}
	limiter := p.limiters[upstream]

	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return errs.New(errs.Cancellation, "httppool.Get", ctx.Err())
	}
	defer func() { <-p.sem }()

	if err := limiter.Wait(ctx); err != nil {
		return errs.New(errs.Cancellation, "httppool.Get", err)
	}

	start := time.Now()
	resp, err := client.R().
		SetContext(ctx).
		SetQueryParams(query).
		SetResult(result).
		Get(path)
	elapsed := time.Since(start)

	if p.metrics != nil {
		p.metrics.UpstreamLatencySecs.WithLabelValues(upstream).Observe(elapsed.Seconds())
	}

	if err != nil {
		p.recordStatus(upstream, "network_error")
		return errs.New(errs.TransientUpstream, "httppool.Get "+upstream+path, err)
	}

	switch {
	case resp.StatusCode() == http.StatusTooManyRequests:
		limiter.Widen(0.1)
		p.recordStatus(upstream, "429")
		return errs.New(errs.Throttled, "httppool.Get "+upstream+path,
			fmt.Errorf("status %d: %s", resp.StatusCode(), truncate(resp.String())))
	case resp.StatusCode() >= 500:
		p.recordStatus(upstream, "5xx")
		return errs.New(errs.TransientUpstream, "httppool.Get "+upstream+path,
			fmt.Errorf("status %d: %s", resp.StatusCode(), truncate(resp.String())))
	case resp.StatusCode() >= 400:
		p.recordStatus(upstream, "4xx")
		return errs.New(errs.ParseError, "httppool.Get "+upstream+path,
			fmt.Errorf("status %d: %s", resp.StatusCode(), truncate(resp.String())))
	}

	p.recordStatus(upstream, "2xx")
	limiter.Narrow(limiter.baseRate) // steady climb back after any earlier 429 widen
	return nil
}

func (p *Pool) recordStatus(upstream, status string) {
	if p.metrics == nil {
		return
	}
	p.metrics.UpstreamRequestsTotal.WithLabelValues(upstream, status).Inc()
}

func truncate(s string) string {
	const max = 200
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
