// Package status serves the engine's observability endpoints: per-cluster
// connection health, the aggregated event view, the recent activity tail
// and Prometheus metrics.
package status

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/eventdeck/eventdeck/internal/aggregate"
	"github.com/eventdeck/eventdeck/internal/cluster"
	"github.com/eventdeck/eventdeck/internal/events"
)

// Engine is the slice of the manager the status server reads from. All
// methods return point-in-time snapshots, so handlers never block
// ingestion.
type Engine interface {
	View() *aggregate.View
	GetHealth() *cluster.HealthSummary
	Activity() []string
}

// Server provides the HTTP status endpoints.
type Server struct {
	engine Engine
	addr   string
}

// NewServer creates a status server over the given engine.
// A zero port falls back to 8080.
func NewServer(engine Engine, port int) *Server {
	if port == 0 {
		port = 8080
	}
	return &Server{
		engine: engine,
		addr:   fmt.Sprintf(":%d", port),
	}
}

// Start begins serving. This is a blocking call meant to run in its own
// goroutine.
//
// Endpoints:
//   - GET /status/clusters - per-cluster connection health
//   - GET /status/activity - recent engine activity tail
//   - GET /events          - windowed slice of the aggregated view
//   - GET /metrics         - Prometheus metrics
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/status/clusters", s.handleClusters)
	mux.HandleFunc("/status/activity", s.handleActivity)
	mux.HandleFunc("/events", s.handleEvents)
	mux.Handle("/metrics", promhttp.Handler())

	slog.Info("starting status server", "address", s.addr)
	return http.ListenAndServe(s.addr, mux)
}

// handleClusters handles GET /status/clusters.
func (s *Server) handleClusters(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, s.engine.GetHealth())
}

// handleActivity handles GET /status/activity.
func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	lines := s.engine.Activity()
	writeJSON(w, struct {
		Lines []string `json:"lines"`
		Count int      `json:"count"`
	}{Lines: lines, Count: len(lines)})
}

// eventsResponse is the GET /events payload. Total is the size of the
// whole view so callers can page; Events is the requested window.
type eventsResponse struct {
	Total  int                  `json:"total"`
	Start  int                  `json:"start"`
	Events []events.EventRecord `json:"events"`
}

// handleEvents handles GET /events?start=&end=&q=.
//
// start and end select a half-open window of the view in its current
// order; they default to the whole collection and clamp out-of-range
// values. q applies the free-text filter before windowing.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	view := s.engine.View()
	records := view.Records()
	if q := r.URL.Query().Get("q"); q != "" {
		records = view.Search(q)
	}

	start, err := queryInt(r, "start", 0)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	end, err := queryInt(r, "end", len(records))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if start < 0 {
		start = 0
	}
	if end > len(records) {
		end = len(records)
	}
	window := []events.EventRecord{}
	if start < end {
		window = records[start:end]
	}

	writeJSON(w, eventsResponse{
		Total:  len(records),
		Start:  start,
		Events: window,
	})
}

// queryInt parses an optional integer query parameter.
func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s parameter: %q", name, raw)
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		slog.Error("failed to encode status response", "error", err)
	}
}
