// Package store holds the per-cluster event collections. Each cluster
// has exactly one Store; all mutation flows through the ADDED, MODIFIED
// and DELETED reducer entry points regardless of whether a record came
// from the live stream or the polling path, so the reducer is the single
// point of truth for store contents.
package store

import (
	"fmt"

	"github.com/eventdeck/eventdeck/internal/events"
	"github.com/eventdeck/eventdeck/internal/metrics"
	"github.com/eventdeck/eventdeck/internal/ringbuf"
)

// State is a read-only snapshot of one cluster's store. Events are
// ordered newest-first (most recently added at index 0), matching the
// order deltas prepend.
type State struct {
	Cluster   string
	Events    []events.EventRecord
	Loading   bool
	LastError string
}

// Store is the keyed reducer for one cluster. The backlog lives in a
// fixed-capacity ring buffer, so memory stays bounded no matter how long
// the stream runs; once the buffer is full the oldest records fall off
// silently.
//
// A Store is owned by a single writer (the engine manager goroutine).
// The ring buffer's own locking makes snapshot reads safe from anywhere.
type Store struct {
	cluster   string
	buf       *ringbuf.Buffer[events.EventRecord]
	loading   bool
	lastError string
}

// New creates an empty Store for the named cluster with the given
// backlog capacity.
func New(cluster string, capacity int) (*Store, error) {
	buf, err := ringbuf.New[events.EventRecord](capacity)
	if err != nil {
		return nil, fmt.Errorf("store %s: %w", cluster, err)
	}
	return &Store{cluster: cluster, buf: buf}, nil
}

// Cluster returns the cluster tag this store belongs to.
func (s *Store) Cluster() string {
	return s.cluster
}

// Apply applies one delta to the store. Semantics per kind:
//
//   - ADDED: the record is prepended unconditionally. No key check is
//     performed, so a server that redelivers an ADDED after a reconnect
//     gap produces a duplicate row. That mirrors the wire contract as it
//     stands; dedup here would silently mask the redelivery.
//   - MODIFIED: the first (newest) record with the same (namespace,
//     name) is replaced in place, keeping its position. With no match
//     the delta is dropped; there is no insert-on-miss.
//   - DELETED: every record with the matching (namespace, name) is
//     removed. With no match this is a no-op, not an error.
//
// Unrelated records are never reordered. Deltas carrying a foreign
// cluster tag are rejected so a routing bug cannot merge clusters.
func (s *Store) Apply(d events.DeltaMessage) error {
	if d.ClusterTag != s.cluster {
		return fmt.Errorf("store %s: delta for cluster %s misrouted", s.cluster, d.ClusterTag)
	}

	switch d.Kind {
	case events.DeltaAdded:
		// Ring order is oldest-first, so a prepend-to-front is an
		// append at the newest end.
		evicted := s.buf.Push(d.Event)
		if evicted > 0 {
			metrics.RingEvictions.WithLabelValues(s.cluster).Add(float64(evicted))
		}

	case events.DeltaModified:
		items := s.buf.Snapshot()
		for i := len(items) - 1; i >= 0; i-- {
			if items[i].Key() == d.Event.Key() {
				items[i] = d.Event
				s.buf.Clear()
				s.buf.PushBatch(items)
				break
			}
		}
		// No match: silently dropped.

	case events.DeltaDeleted:
		items := s.buf.Snapshot()
		kept := make([]events.EventRecord, 0, len(items))
		for _, it := range items {
			if it.Key() != d.Event.Key() {
				kept = append(kept, it)
			}
		}
		if len(kept) != len(items) {
			s.buf.Clear()
			s.buf.PushBatch(kept)
		}

	default:
		return fmt.Errorf("store %s: unknown delta kind %q", s.cluster, d.Kind)
	}

	metrics.DeltasApplied.WithLabelValues(s.cluster, string(d.Kind)).Inc()
	return nil
}

// Replace swaps the entire backlog for the given records, newest first.
// This is the polling path's entry point: a full refetch replaces the
// store contents atomically with respect to readers. Records beyond the
// backlog capacity are truncated oldest-first, same as streaming.
func (s *Store) Replace(records []events.EventRecord) {
	// Reverse into ring order (oldest first) so capacity truncation
	// drops the oldest records.
	ordered := make([]events.EventRecord, len(records))
	for i, r := range records {
		r.ClusterTag = s.cluster
		ordered[len(records)-1-i] = r
	}
	s.buf.Clear()
	if evicted := s.buf.PushBatch(ordered); evicted > 0 {
		metrics.RingEvictions.WithLabelValues(s.cluster).Add(float64(evicted))
	}
	s.loading = false
	s.lastError = ""
}

// SetLoading marks the store as refreshing. Read snapshots carry the
// flag through to the presentation layer.
func (s *Store) SetLoading(loading bool) {
	s.loading = loading
}

// SetError records a fetch or stream error string for this cluster.
// Errors become state, they never interrupt aggregation of what is
// already buffered.
func (s *Store) SetError(msg string) {
	s.loading = false
	s.lastError = msg
}

// Snapshot returns the current store state with events newest-first.
func (s *Store) Snapshot() State {
	items := s.buf.Snapshot()
	out := make([]events.EventRecord, len(items))
	for i, it := range items {
		out[len(items)-1-i] = it
	}
	return State{
		Cluster:   s.cluster,
		Events:    out,
		Loading:   s.loading,
		LastError: s.lastError,
	}
}

// Len returns the number of buffered records.
func (s *Store) Len() int {
	return s.buf.Len()
}
