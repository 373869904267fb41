// Package poll implements the periodic full-refetch ingestion path for
// clusters that do not use the live delta stream. Poll results flow into
// the same per-cluster stores as stream deltas, so the reducer stays the
// single point of truth regardless of ingestion path.
package poll

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/eventdeck/eventdeck/internal/events"
	"github.com/eventdeck/eventdeck/internal/metrics"
)

const defaultRequestTimeout = 15 * time.Second

// Result is one completed refetch, successful or not. Records are in
// the listing's order, newest first.
type Result struct {
	Cluster string
	Records []events.EventRecord
	Err     error
}

// Poller periodically fetches the full event listing for one cluster
// and reports each outcome on its result channel. The engine manager
// owns the channel and applies results to the cluster's store.
type Poller struct {
	cluster  string
	endpoint string
	interval time.Duration
	client   *http.Client
	out      chan<- Result
}

// New creates a Poller for the given cluster and REST listing endpoint.
func New(cluster, endpoint string, interval time.Duration, out chan<- Result) *Poller {
	return &Poller{
		cluster:  cluster,
		endpoint: endpoint,
		interval: interval,
		client:   &http.Client{Timeout: defaultRequestTimeout},
		out:      out,
	}
}

// Run polls until the context is cancelled. The first fetch happens
// immediately so a poll-path cluster populates without waiting a full
// interval.
func (p *Poller) Run(ctx context.Context) {
	slog.Info("starting event poller",
		"cluster", p.cluster,
		"endpoint", p.endpoint,
		"interval", p.interval)

	p.poll(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("stopping event poller", "cluster", p.cluster)
			return
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

// poll performs one fetch and delivers the result unless the context
// ends first.
func (p *Poller) poll(ctx context.Context) {
	records, err := p.fetch(ctx)
	outcome := "success"
	if err != nil {
		outcome = "error"
		slog.Warn("event poll failed",
			"cluster", p.cluster,
			"error", err)
	}
	metrics.PollRefreshes.WithLabelValues(p.cluster, outcome).Inc()

	select {
	case p.out <- Result{Cluster: p.cluster, Records: records, Err: err}:
	case <-ctx.Done():
	}
}

// fetch retrieves and decodes the full event listing.
func (p *Poller) fetch(ctx context.Context) ([]events.EventRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build poll request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("poll %s: %w", p.endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("poll %s: unexpected status %d", p.endpoint, resp.StatusCode)
	}

	var records []events.EventRecord
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return nil, fmt.Errorf("decode poll response: %w", err)
	}
	return records, nil
}
