// Package aggregate merges per-cluster stores into the single sorted,
// filtered collection the presentation layer reads. Aggregation is a
// pure recomputation over store snapshots on every change; correctness
// over micro-optimization.
package aggregate

import (
	"sort"
	"strings"

	"github.com/eventdeck/eventdeck/internal/events"
	"github.com/eventdeck/eventdeck/internal/store"
)

// Selection names the clusters participating in aggregation. The zero
// value selects nothing; use AllClusters for the wildcard.
type Selection struct {
	All      bool
	Clusters []string
}

// AllClusters selects every known cluster store.
func AllClusters() Selection {
	return Selection{All: true}
}

// Only selects exactly the named clusters.
func Only(clusters ...string) Selection {
	return Selection{Clusters: clusters}
}

// includes reports whether the selection covers the given cluster.
func (s Selection) includes(cluster string) bool {
	if s.All {
		return true
	}
	for _, c := range s.Clusters {
		if c == cluster {
			return true
		}
	}
	return false
}

// Build produces the merged view:
//
//  1. concatenate records from the selected stores,
//  2. stable-sort by lastTimestamp descending with count descending as
//     the tie-break, so equal keys order deterministically,
//  3. apply the free-text filter (case-insensitive substring over
//     message, involved object name, reason and cluster tag).
//
// Facet filters (type, namespace, reason sets) are applied server-side
// through the subscription or at fetch time; re-deriving them here would
// let the live and polling paths disagree.
func Build(states []store.State, sel Selection, query string) *View {
	var merged []events.EventRecord
	for _, st := range states {
		if sel.includes(st.Cluster) {
			merged = append(merged, st.Events...)
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		ti := events.ParseTimestamp(merged[i].LastTimestamp)
		tj := events.ParseTimestamp(merged[j].LastTimestamp)
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return merged[i].Count > merged[j].Count
	})

	if query != "" {
		merged = filterRecords(merged, query)
	}

	return &View{records: merged}
}

// filterRecords keeps records matching the free-text query, preserving
// order.
func filterRecords(records []events.EventRecord, query string) []events.EventRecord {
	out := make([]events.EventRecord, 0, len(records))
	for _, r := range records {
		if matchesQuery(r, query) {
			out = append(out, r)
		}
	}
	return out
}

// matchesQuery is the shared free-text predicate for the aggregator
// filter and the windowed view's buffer search.
func matchesQuery(r events.EventRecord, query string) bool {
	q := strings.ToLower(query)
	for _, field := range []string{r.Message, r.InvolvedObjectName, r.Reason, r.ClusterTag} {
		if strings.Contains(strings.ToLower(field), q) {
			return true
		}
	}
	return false
}
