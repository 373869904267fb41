package events

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/eventdeck/eventdeck/internal/metrics"
)

// State is the client-side connection state. Transitions are
// Closed -> Connecting -> Open -> Closed, with Closed re-entering
// Connecting on the reconnect schedule unless Disconnect has run.
type State string

const (
	StateClosed     State = "closed"
	StateConnecting State = "connecting"
	StateOpen       State = "open"
)

const (
	defaultReconnectInterval = 5 * time.Second
	defaultDialTimeout       = 10 * time.Second
	defaultMaxFrameBytes     = 512 * 1024
	writeWait                = 10 * time.Second
)

// ClientConfig configures a Client.
type ClientConfig struct {
	// URL is the ws:// or wss:// stream endpoint.
	URL string

	// ClusterTag identifies the cluster this connection serves. Used
	// for logging and metrics labels only; the authoritative tag on
	// each delta comes from the frame itself.
	ClusterTag string

	// ReconnectInterval is the fixed delay between a connection loss
	// and the single reconnect attempt it schedules. Defaults to 5s.
	ReconnectInterval time.Duration

	// DialTimeout bounds the websocket handshake. Defaults to 10s.
	DialTimeout time.Duration

	// MaxFrameBytes caps inbound frame size. Defaults to 512KB.
	MaxFrameBytes int64

	// OnDelta is invoked for every successfully decoded delta, in the
	// order frames arrive on the connection. It runs on the connection's
	// read goroutine, so it must not block for long.
	OnDelta func(DeltaMessage)

	// OnStateChange, if set, is invoked after every state transition.
	OnStateChange func(State)
}

// Client owns exactly one duplex stream connection and the subscribe /
// delta wire protocol on it. It is constructed and owned explicitly by
// its caller; there is no package-level shared instance.
//
// Reconnection uses a fixed interval: each connection loss schedules
// exactly one reconnect attempt, and each failed attempt schedules
// exactly one further attempt. Attempts never overlap. The protocol has
// no sequence numbers, so deltas the server emits while the client is
// disconnected are lost, not queued; a reconnect is an acknowledged gap.
type Client struct {
	cfg ClientConfig

	mu         sync.Mutex
	state      State
	conn       *websocket.Conn
	current    *Subscription
	reconnect  bool
	retryTimer *time.Timer
	sessionID  string
	lastError  string

	// gen identifies the live connection attempt. Disconnect bumps it,
	// which detaches the read loop and close handling of any prior
	// connection before the socket is closed.
	gen uint64
}

// NewClient creates a Client for the given endpoint. The client starts
// in the Closed state; nothing is dialed until Connect is called.
func NewClient(cfg ClientConfig) *Client {
	if cfg.ReconnectInterval <= 0 {
		cfg.ReconnectInterval = defaultReconnectInterval
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = defaultDialTimeout
	}
	if cfg.MaxFrameBytes <= 0 {
		cfg.MaxFrameBytes = defaultMaxFrameBytes
	}
	return &Client{
		cfg:   cfg,
		state: StateClosed,
	}
}

// Connect opens the connection. It is a no-op while the client is Open
// or Connecting. Calling Connect re-enables the reconnect policy, so it
// is also the way to resume after Disconnect.
func (c *Client) Connect() {
	c.mu.Lock()
	if c.state == StateOpen || c.state == StateConnecting {
		c.mu.Unlock()
		return
	}
	c.reconnect = true
	c.stopRetryTimer()
	c.state = StateConnecting
	c.gen++
	gen := c.gen
	c.mu.Unlock()

	c.notify(StateConnecting)
	go c.dial(gen)
}

// Disconnect permanently disables the reconnect policy for this client,
// cancels any pending reconnect, detaches the connection's handlers and
// closes the socket. This is the only path that guarantees no further
// reconnect attempts. Safe to call more than once.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.reconnect = false
	c.stopRetryTimer()
	// Bumping the generation first means the close event from the
	// socket lands in a stale handler and cannot re-arm reconnection.
	c.gen++
	conn := c.conn
	c.conn = nil
	already := c.state == StateClosed
	c.state = StateClosed
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	metrics.Connected.WithLabelValues(c.cfg.ClusterTag).Set(0)
	if !already {
		c.notify(StateClosed)
	}
}

// Subscribe records the subscription as current unconditionally. If the
// connection is Open it is sent immediately; otherwise it is sent on the
// next successful open, at which point the most recently recorded
// subscription wins regardless of how many were set in between.
func (c *Client) Subscribe(sub Subscription) {
	c.mu.Lock()
	s := sub
	c.current = &s
	var err error
	if c.state == StateOpen && c.conn != nil {
		err = c.sendSubscriptionLocked()
	}
	c.mu.Unlock()

	if err != nil {
		// The write failure will surface as a read error shortly; the
		// subscription replays on the reconnect that follows.
		slog.Warn("subscription send failed",
			"cluster", c.cfg.ClusterTag,
			"error", err)
	}
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsConnected reports whether the connection is currently Open.
func (c *Client) IsConnected() bool {
	return c.State() == StateOpen
}

// SessionID returns the identifier of the current (or last) open
// connection, empty if the client never connected.
func (c *Client) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// LastError returns the most recent connection error string, empty while
// the connection is healthy.
func (c *Client) LastError() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastError
}

// dial performs one connection attempt for the given generation.
func (c *Client) dial(gen uint64) {
	dialer := websocket.Dialer{HandshakeTimeout: c.cfg.DialTimeout}
	conn, resp, err := dialer.Dial(c.cfg.URL, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		c.handleClosed(gen, fmt.Errorf("dial %s: %w", c.cfg.URL, err))
		return
	}

	c.mu.Lock()
	if gen != c.gen {
		// Disconnect ran while the handshake was in flight.
		c.mu.Unlock()
		conn.Close()
		return
	}
	conn.SetReadLimit(c.cfg.MaxFrameBytes)
	c.conn = conn
	c.state = StateOpen
	c.sessionID = uuid.NewString()
	c.lastError = ""
	sessionID := c.sessionID

	var subErr error
	if c.current != nil {
		subErr = c.sendSubscriptionLocked()
	}
	c.mu.Unlock()

	metrics.Connected.WithLabelValues(c.cfg.ClusterTag).Set(1)
	slog.Info("event stream connected",
		"cluster", c.cfg.ClusterTag,
		"session_id", sessionID,
		"endpoint", c.cfg.URL)
	if subErr != nil {
		slog.Warn("subscription replay failed",
			"cluster", c.cfg.ClusterTag,
			"error", subErr)
	}

	c.notify(StateOpen)
	go c.readLoop(gen, conn)
}

// readLoop consumes frames until the connection fails or is detached.
func (c *Client) readLoop(gen uint64, conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.handleClosed(gen, fmt.Errorf("read frame: %w", err))
			return
		}

		msg, derr := DecodeDelta(data)
		if derr != nil {
			// A malformed frame is dropped; the connection and all
			// subsequent frames keep going.
			metrics.FramesDropped.WithLabelValues(c.cfg.ClusterTag).Inc()
			slog.Warn("dropping malformed stream frame",
				"cluster", c.cfg.ClusterTag,
				"error", derr)
			continue
		}

		if c.cfg.OnDelta != nil {
			c.cfg.OnDelta(msg)
		}
	}
}

// handleClosed records a connection loss for the given generation and
// schedules the single reconnect attempt if the policy is still enabled.
// Calls for a stale generation are ignored; this is what makes a close
// event after Disconnect inert.
func (c *Client) handleClosed(gen uint64, err error) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.state = StateClosed
	if err != nil {
		c.lastError = err.Error()
	}
	scheduled := false
	if c.reconnect && c.retryTimer == nil {
		c.retryTimer = time.AfterFunc(c.cfg.ReconnectInterval, c.retryFire)
		scheduled = true
	}
	c.mu.Unlock()

	metrics.Connected.WithLabelValues(c.cfg.ClusterTag).Set(0)
	if scheduled {
		metrics.ReconnectsScheduled.WithLabelValues(c.cfg.ClusterTag).Inc()
	}
	slog.Warn("event stream closed",
		"cluster", c.cfg.ClusterTag,
		"error", err,
		"reconnect_scheduled", scheduled)
	c.notify(StateClosed)
}

// retryFire runs when the reconnect timer elapses.
func (c *Client) retryFire() {
	c.mu.Lock()
	c.retryTimer = nil
	if !c.reconnect || c.state != StateClosed {
		c.mu.Unlock()
		return
	}
	c.state = StateConnecting
	c.gen++
	gen := c.gen
	c.mu.Unlock()

	slog.Info("reconnecting event stream", "cluster", c.cfg.ClusterTag)
	c.notify(StateConnecting)
	go c.dial(gen)
}

// sendSubscriptionLocked writes the current subscription frame.
// Caller holds c.mu with c.conn non-nil.
func (c *Client) sendSubscriptionLocked() error {
	data, err := c.current.Encode()
	if err != nil {
		return err
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("write subscribe frame: %w", err)
	}
	return nil
}

// stopRetryTimer cancels a pending reconnect. Caller holds c.mu.
func (c *Client) stopRetryTimer() {
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
}

// notify invokes the state-change callback outside the client lock.
func (c *Client) notify(s State) {
	if c.cfg.OnStateChange != nil {
		c.cfg.OnStateChange(s)
	}
}
