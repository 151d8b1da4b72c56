// Package keepalive keeps hosted deployments from idling out by
// periodically hitting the service's own health endpoint.
package keepalive

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/sethvargo/go-retry"
)

// Interval is how often the hosting platform must see traffic to keep the
// instance warm.
const Interval = 13 * time.Minute

// Pinger is a supervised periodic self-ping. Each tick retries with bounded
// exponential backoff; a tick that still fails increments the failure
// counter and is logged, but never stops the loop.
type Pinger struct {
	url       string
	interval  time.Duration
	retryBase time.Duration
	client    *http.Client
	failures  atomic.Uint64
}

// New creates a Pinger against baseURL's health endpoint.
func New(baseURL string) *Pinger {
	return &Pinger{
		url:       baseURL + "/api/health",
		interval:  Interval,
		retryBase: time.Second,
		client:    &http.Client{Timeout: 30 * time.Second},
	}
}

// Failures reports how many ticks have exhausted their retries.
func (p *Pinger) Failures() uint64 {
	return p.failures.Load()
}

// Run pings until the context ends.
func (p *Pinger) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.pingWithRetry(ctx); err != nil {
				p.failures.Add(1)
				log.Printf("keep-alive ping failed: %v", err)
				continue
			}
			log.Printf("keep-alive ping successful at %s", time.Now().UTC().Format(time.RFC3339))
		}
	}
}

// pingWithRetry attempts the health check up to three retries with
// exponential backoff starting at one second.
func (p *Pinger) pingWithRetry(ctx context.Context) error {
	backoff := retry.WithMaxRetries(3, retry.NewExponential(p.retryBase))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := p.ping(ctx); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
}

func (p *Pinger) ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed with status: %d", resp.StatusCode)
	}
	return nil
}
