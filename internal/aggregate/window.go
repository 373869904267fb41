package aggregate

import "github.com/eventdeck/eventdeck/internal/events"

// View is the read-only facade over one aggregated collection. A View is
// immutable once built; the engine publishes a fresh View after each
// recomputation and readers keep whichever snapshot they loaded, so a
// reader never observes a half-applied delta.
type View struct {
	records []events.EventRecord
}

// EmptyView returns a view over nothing, used before the first
// aggregation completes.
func EmptyView() *View {
	return &View{}
}

// Len returns the number of records in the aggregated collection.
func (v *View) Len() int {
	return len(v.records)
}

// Records returns the full aggregated collection in presentation order.
// Callers must treat the slice as read-only.
func (v *View) Records() []events.EventRecord {
	return v.records
}

// Window returns the half-open slice [start, end) of the collection in
// its current order. Out-of-range indices clamp rather than error, so
// virtualized rendering can over-ask near the edges.
func (v *View) Window(start, end int) []events.EventRecord {
	if start < 0 {
		start = 0
	}
	if end > len(v.records) {
		end = len(v.records)
	}
	if start >= end {
		return []events.EventRecord{}
	}
	return v.records[start:end]
}

// Search returns the records matching a case-insensitive substring query
// over message, involved object name, reason and cluster tag, in their
// existing order. No re-sort and no second full copy beyond the matches.
func (v *View) Search(query string) []events.EventRecord {
	if query == "" {
		return v.records
	}
	return filterRecords(v.records, query)
}
