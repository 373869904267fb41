package cluster

import (
	"sync"
	"time"
)

// ConnectionStatus represents the current state of a cluster's ingestion
// path.
type ConnectionStatus string

const (
	// StatusDisconnected indicates the connection is not established.
	StatusDisconnected ConnectionStatus = "disconnected"

	// StatusConnecting indicates the connection is being established.
	StatusConnecting ConnectionStatus = "connecting"

	// StatusActive indicates the connection is open and receiving deltas.
	StatusActive ConnectionStatus = "active"

	// StatusPolling indicates the cluster uses the periodic refetch path
	// instead of the live stream.
	StatusPolling ConnectionStatus = "polling"

	// StatusFailed indicates the last connection or poll attempt failed;
	// a retry is scheduled.
	StatusFailed ConnectionStatus = "failed"
)

// Connection tracks the observable state of a single cluster's ingestion
// path: status, last event time, counters and the most recent error. It
// is the record behind the status API's per-cluster entries.
//
// Connection state is written from the stream client's callbacks and the
// poller, and read by the status server, so access is mutex-guarded.
type Connection struct {
	config *ClusterConfig

	status     ConnectionStatus
	sessionID  string
	lastEvent  time.Time
	eventCount int64
	lastError  string
	retryCount int

	mu sync.RWMutex
}

// NewConnection creates a Connection for the given cluster in the
// disconnected state.
func NewConnection(config *ClusterConfig) *Connection {
	return &Connection{
		config: config,
		status: StatusDisconnected,
	}
}

// SetStatus updates the connection status. Entering StatusActive resets
// the retry counter and clears the error; entering StatusFailed counts a
// retry.
func (c *Connection) SetStatus(status ConnectionStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.status = status
	switch status {
	case StatusActive, StatusPolling:
		c.retryCount = 0
		c.lastError = ""
	case StatusFailed:
		c.retryCount++
	}
}

// SetError records a connection or poll error and flips the status to
// failed.
func (c *Connection) SetError(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status = StatusFailed
	c.lastError = msg
	c.retryCount++
}

// SetSessionID records the identifier of the current stream session.
func (c *Connection) SetSessionID(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessionID = id
}

// RecordEvent notes one event received from this cluster.
func (c *Connection) RecordEvent() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastEvent = time.Now()
	c.eventCount++
}

// Status returns the current connection status.
func (c *Connection) Status() ConnectionStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// Connected reports whether this cluster is currently receiving data
// (live stream open, or healthy polling).
func (c *Connection) Connected() bool {
	s := c.Status()
	return s == StatusActive || s == StatusPolling
}

// Health returns a point-in-time copy of the connection state for the
// status API.
func (c *Connection) Health() ClusterHealth {
	c.mu.RLock()
	defer c.mu.RUnlock()

	h := ClusterHealth{
		Name:       c.config.Name,
		Status:     c.status,
		SessionID:  c.sessionID,
		EventCount: c.eventCount,
		Labels:     c.config.Labels,
	}
	if c.config.UsesStream() {
		h.Mode = "stream"
	} else {
		h.Mode = "poll"
	}
	if !c.lastEvent.IsZero() {
		t := c.lastEvent
		h.LastEvent = &t
	}
	if c.lastError != "" {
		h.LastError = c.lastError
	}
	return h
}

// ClusterHealth is the status API's per-cluster entry.
type ClusterHealth struct {
	Name           string            `json:"name"`
	Status         ConnectionStatus  `json:"status"`
	Mode           string            `json:"mode"`
	SessionID      string            `json:"session_id,omitempty"`
	LastEvent      *time.Time        `json:"last_event,omitempty"`
	LastError      string            `json:"error,omitempty"`
	EventCount     int64             `json:"event_count"`
	BufferedEvents int               `json:"buffered_events"`
	Labels         map[string]string `json:"labels,omitempty"`
}

// HealthSummary is the top-level status API response.
type HealthSummary struct {
	Clusters []ClusterHealth `json:"clusters"`
	Summary  struct {
		Total     int `json:"total"`
		Active    int `json:"active"`
		Unhealthy int `json:"unhealthy"`
	} `json:"summary"`
}
