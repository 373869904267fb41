// Package metrics exposes the engine's Prometheus collectors. All
// collectors register on the default registry and are served by the
// status server's /metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DeltasApplied counts deltas applied to per-cluster stores,
	// labeled by cluster tag and delta kind.
	DeltasApplied = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "eventdeck",
		Name:      "deltas_applied_total",
		Help:      "Number of stream deltas applied to cluster stores.",
	}, []string{"cluster", "kind"})

	// FramesDropped counts inbound frames discarded because they failed
	// to decode as a delta message.
	FramesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "eventdeck",
		Name:      "frames_dropped_total",
		Help:      "Number of malformed stream frames dropped.",
	}, []string{"cluster"})

	// ReconnectsScheduled counts reconnect attempts scheduled after a
	// connection loss.
	ReconnectsScheduled = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "eventdeck",
		Name:      "reconnects_scheduled_total",
		Help:      "Number of stream reconnect attempts scheduled.",
	}, []string{"cluster"})

	// Connected reports per-cluster stream connectivity (1 = open).
	Connected = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "eventdeck",
		Name:      "connected",
		Help:      "Whether the event stream for a cluster is open.",
	}, []string{"cluster"})

	// RingEvictions counts records evicted from bounded store backlogs.
	RingEvictions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "eventdeck",
		Name:      "ring_evictions_total",
		Help:      "Number of records evicted from bounded event backlogs.",
	}, []string{"cluster"})

	// PollRefreshes counts full refetches completed by the polling path,
	// labeled by outcome.
	PollRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "eventdeck",
		Name:      "poll_refreshes_total",
		Help:      "Number of poll-path full refetches, by outcome.",
	}, []string{"cluster", "outcome"})
)
