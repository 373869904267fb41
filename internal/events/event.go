// Package events defines the wire model for the multi-cluster event
// stream and the client that owns the duplex connection it arrives on.
package events

import (
	"encoding/json"
	"fmt"
	"time"
)

// DeltaKind identifies the effect of a single incremental update.
type DeltaKind string

const (
	DeltaAdded    DeltaKind = "ADDED"
	DeltaModified DeltaKind = "MODIFIED"
	DeltaDeleted  DeltaKind = "DELETED"
)

// EventRecord is one observed cluster event. Timestamps stay as the
// ISO-8601 strings the backend sends; parsing happens only where an
// ordering decision needs it.
//
// The identity key for reducer purposes is (ClusterTag, Namespace, Name).
// The same (Namespace, Name) pair in two different clusters denotes
// unrelated events and is never merged.
type EventRecord struct {
	Name               string `json:"name"`
	Namespace          string `json:"namespace"`
	Type               string `json:"type"`
	Reason             string `json:"reason"`
	Message            string `json:"message"`
	Count              int32  `json:"count"`
	FirstTimestamp     string `json:"firstTimestamp"`
	LastTimestamp      string `json:"lastTimestamp"`
	InvolvedObjectKind string `json:"involvedObjectKind"`
	InvolvedObjectName string `json:"involvedObjectName"`
	SourceComponent    string `json:"sourceComponent"`
	SourceHost         string `json:"sourceHost"`
	ClusterTag         string `json:"clusterTag"`
}

// Key returns the (namespace, name) portion of the record identity.
// Cluster scoping is handled by routing deltas to per-cluster stores, so
// the key deliberately excludes the cluster tag.
func (e EventRecord) Key() string {
	return e.Namespace + "/" + e.Name
}

// DeltaMessage is a single decoded incremental update. It is consumed
// exactly once by the reducer and then discarded; only its effect on the
// store persists.
type DeltaMessage struct {
	Kind       DeltaKind
	Event      EventRecord
	ClusterTag string
	ReceivedAt time.Time
}

// wireDelta is the raw server frame shape:
//
//	{"type":"ADDED","event":{...},"cluster":"prod-east","timestamp":"..."}
type wireDelta struct {
	Type      string       `json:"type"`
	Event     *EventRecord `json:"event"`
	Cluster   string       `json:"cluster"`
	Timestamp string       `json:"timestamp"`
}

// DecodeDelta parses one inbound frame into a DeltaMessage. It fails
// closed: any frame that is not valid JSON, carries an unknown type tag,
// or is missing its event payload or cluster tag is rejected with an
// error so the caller can log and drop it without touching the stores.
//
// ReceivedAt is stamped with the client clock, not server time.
func DecodeDelta(data []byte) (DeltaMessage, error) {
	var w wireDelta
	if err := json.Unmarshal(data, &w); err != nil {
		return DeltaMessage{}, fmt.Errorf("decode delta frame: %w", err)
	}

	kind := DeltaKind(w.Type)
	switch kind {
	case DeltaAdded, DeltaModified, DeltaDeleted:
	default:
		return DeltaMessage{}, fmt.Errorf("decode delta frame: unknown type %q", w.Type)
	}

	if w.Event == nil {
		return DeltaMessage{}, fmt.Errorf("decode delta frame: missing event payload")
	}
	if w.Cluster == "" {
		return DeltaMessage{}, fmt.Errorf("decode delta frame: missing cluster tag")
	}

	ev := *w.Event
	ev.ClusterTag = w.Cluster

	return DeltaMessage{
		Kind:       kind,
		Event:      ev,
		ClusterTag: w.Cluster,
		ReceivedAt: time.Now(),
	}, nil
}

// Subscription declares what the client wants the server to push. An
// empty set on any dimension means no filter on that dimension. Exactly
// one subscription is current per connection; sending a new one fully
// replaces the prior one server-side.
type Subscription struct {
	Clusters   []string `json:"clusters"`
	Namespaces []string `json:"namespaces"`
	Types      []string `json:"types"`
	Reasons    []string `json:"reasons"`
}

// Encode renders the subscribe frame. Wildcards are normalized so the
// live path and the poll path agree: the literal "all" entry collapses to
// an empty set, and nil slices become empty arrays rather than JSON null.
func (s Subscription) Encode() ([]byte, error) {
	norm := Subscription{
		Clusters:   normalizeSet(s.Clusters),
		Namespaces: normalizeSet(s.Namespaces),
		Types:      normalizeSet(s.Types),
		Reasons:    normalizeSet(s.Reasons),
	}
	data, err := json.Marshal(norm)
	if err != nil {
		return nil, fmt.Errorf("encode subscription: %w", err)
	}
	return data, nil
}

// normalizeSet maps nil and the "all" wildcard to the empty (no filter)
// set.
func normalizeSet(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "all" {
			return []string{}
		}
		out = append(out, v)
	}
	return out
}

// ParseTimestamp parses an ISO-8601 timestamp string, returning the zero
// time for anything unparseable. Records with malformed timestamps still
// aggregate; they just sort to the end.
func ParseTimestamp(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
