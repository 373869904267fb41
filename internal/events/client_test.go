package events

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// streamServer is a test double for the backend stream endpoint. It
// counts connections, records inbound subscribe frames, and lets tests
// push delta frames to the connected client.
type streamServer struct {
	srv      *httptest.Server
	upgrader websocket.Upgrader

	dials    atomic.Int64
	inbound  chan []byte
	sessions chan *websocket.Conn
}

func newStreamServer(t *testing.T) *streamServer {
	t.Helper()
	s := &streamServer{
		inbound:  make(chan []byte, 16),
		sessions: make(chan *websocket.Conn, 16),
	}
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s.dials.Add(1)
		s.sessions <- conn
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			s.inbound <- data
		}
	}))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *streamServer) url() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http")
}

// waitSession blocks until the server accepts a connection.
func (s *streamServer) waitSession(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case conn := <-s.sessions:
		return conn
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for client connection")
		return nil
	}
}

// waitFrame blocks until the server receives a frame from the client.
func (s *streamServer) waitFrame(t *testing.T) []byte {
	t.Helper()
	select {
	case data := <-s.inbound:
		return data
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for client frame")
		return nil
	}
}

// stateRecorder collects state transitions from the client callback.
type stateRecorder struct {
	ch chan State
}

func newStateRecorder() *stateRecorder {
	return &stateRecorder{ch: make(chan State, 32)}
}

func (r *stateRecorder) record(s State) {
	r.ch <- s
}

func (r *stateRecorder) waitFor(t *testing.T, want State) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case got := <-r.ch:
			if got == want {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for state %q", want)
		}
	}
}

// TestSubscribeReplayOnConnect verifies that a subscription recorded
// while Closed is sent exactly once the connection opens, and that the
// most recently recorded subscription wins over earlier ones.
func TestSubscribeReplayOnConnect(t *testing.T) {
	server := newStreamServer(t)
	rec := newStateRecorder()

	client := NewClient(ClientConfig{
		URL:           server.url(),
		ClusterTag:    "prod-east",
		OnStateChange: rec.record,
	})
	defer client.Disconnect()

	// Two subscriptions set before connecting; only the latest may ever
	// reach the server.
	client.Subscribe(Subscription{Namespaces: []string{"staging-only"}})
	client.Subscribe(Subscription{Namespaces: []string{"default"}, Types: []string{"Warning"}})

	client.Connect()
	rec.waitFor(t, StateOpen)

	frame := server.waitFrame(t)
	var got Subscription
	if err := json.Unmarshal(frame, &got); err != nil {
		t.Fatalf("subscribe frame is not valid JSON: %v", err)
	}
	if len(got.Namespaces) != 1 || got.Namespaces[0] != "default" {
		t.Errorf("expected namespaces [default], got %v", got.Namespaces)
	}
	if len(got.Types) != 1 || got.Types[0] != "Warning" {
		t.Errorf("expected types [Warning], got %v", got.Types)
	}

	// Nothing else was sent: the superseded subscription never hit the
	// wire.
	select {
	case extra := <-server.inbound:
		t.Errorf("unexpected extra frame: %s", extra)
	case <-time.After(100 * time.Millisecond):
	}
}

// TestConnect_NoopWhileOpen verifies Connect does not open a second
// connection while one is open or being opened.
func TestConnect_NoopWhileOpen(t *testing.T) {
	server := newStreamServer(t)
	rec := newStateRecorder()

	client := NewClient(ClientConfig{
		URL:           server.url(),
		ClusterTag:    "c1",
		OnStateChange: rec.record,
	})
	defer client.Disconnect()

	client.Connect()
	rec.waitFor(t, StateOpen)
	client.Connect()
	client.Connect()

	time.Sleep(100 * time.Millisecond)
	if n := server.dials.Load(); n != 1 {
		t.Errorf("expected 1 connection, got %d", n)
	}
}

// TestMalformedFrameDropped verifies a frame that fails to decode is
// dropped while later frames on the same connection still flow.
func TestMalformedFrameDropped(t *testing.T) {
	server := newStreamServer(t)
	rec := newStateRecorder()
	deltas := make(chan DeltaMessage, 8)

	client := NewClient(ClientConfig{
		URL:           server.url(),
		ClusterTag:    "c1",
		OnDelta:       func(d DeltaMessage) { deltas <- d },
		OnStateChange: rec.record,
	})
	defer client.Disconnect()

	client.Connect()
	rec.waitFor(t, StateOpen)
	conn := server.waitSession(t)

	garbage := []string{
		`this is not json`,
		`{"type":"EXPLODED","event":{"name":"x","namespace":"ns"},"cluster":"c1"}`,
	}
	for _, g := range garbage {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(g)); err != nil {
			t.Fatalf("server write failed: %v", err)
		}
	}
	valid := `{"type":"ADDED","event":{"name":"pod-oom.1","namespace":"default","reason":"OOMKilled"},"cluster":"c1","timestamp":"2026-08-01T10:00:00Z"}`
	if err := conn.WriteMessage(websocket.TextMessage, []byte(valid)); err != nil {
		t.Fatalf("server write failed: %v", err)
	}

	select {
	case d := <-deltas:
		if d.Kind != DeltaAdded || d.Event.Name != "pod-oom.1" {
			t.Errorf("unexpected delta: %+v", d)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("valid delta never arrived after malformed frames")
	}

	if client.State() != StateOpen {
		t.Errorf("connection should survive malformed frames, state is %q", client.State())
	}
}

// TestReconnectAfterServerClose verifies that a server-side close
// schedules a reconnect at the fixed interval and the replacement
// connection replays the current subscription.
func TestReconnectAfterServerClose(t *testing.T) {
	server := newStreamServer(t)
	rec := newStateRecorder()

	client := NewClient(ClientConfig{
		URL:               server.url(),
		ClusterTag:        "c1",
		ReconnectInterval: 30 * time.Millisecond,
		OnStateChange:     rec.record,
	})
	defer client.Disconnect()

	client.Subscribe(Subscription{Reasons: []string{"OOMKilled"}})
	client.Connect()
	rec.waitFor(t, StateOpen)
	server.waitFrame(t) // initial subscribe

	first := server.waitSession(t)
	first.Close()

	rec.waitFor(t, StateClosed)
	rec.waitFor(t, StateOpen)

	frame := server.waitFrame(t)
	var got Subscription
	if err := json.Unmarshal(frame, &got); err != nil {
		t.Fatalf("replayed frame is not valid JSON: %v", err)
	}
	if len(got.Reasons) != 1 || got.Reasons[0] != "OOMKilled" {
		t.Errorf("expected subscription replay with reasons [OOMKilled], got %v", got.Reasons)
	}

	if n := server.dials.Load(); n < 2 {
		t.Errorf("expected at least 2 connections after reconnect, got %d", n)
	}
}

// TestDisconnectSuppressesRetry verifies that after Disconnect no
// reconnect is scheduled, even when the socket close event arrives
// afterwards, and that Connect is required to resume.
func TestDisconnectSuppressesRetry(t *testing.T) {
	server := newStreamServer(t)
	rec := newStateRecorder()

	client := NewClient(ClientConfig{
		URL:               server.url(),
		ClusterTag:        "c1",
		ReconnectInterval: 20 * time.Millisecond,
		OnStateChange:     rec.record,
	})

	client.Connect()
	rec.waitFor(t, StateOpen)
	if n := server.dials.Load(); n != 1 {
		t.Fatalf("expected 1 connection, got %d", n)
	}

	client.Disconnect()
	client.Disconnect() // double-disconnect is a safe no-op

	// The close event from the dropped socket and several reconnect
	// intervals go by; no new connection may appear.
	time.Sleep(150 * time.Millisecond)
	if n := server.dials.Load(); n != 1 {
		t.Errorf("reconnect ran after Disconnect: %d connections", n)
	}
	if client.State() != StateClosed {
		t.Errorf("expected Closed after Disconnect, got %q", client.State())
	}

	// Connect resumes service.
	client.Connect()
	rec.waitFor(t, StateOpen)
	if n := server.dials.Load(); n != 2 {
		t.Errorf("expected Connect to open a fresh connection, got %d", n)
	}
	client.Disconnect()
}

// TestDialFailureSchedulesRetry verifies a failed attempt schedules
// exactly one further attempt rather than giving up or spinning.
func TestDialFailureSchedulesRetry(t *testing.T) {
	rec := newStateRecorder()

	// Unroutable endpoint: every dial fails fast.
	client := NewClient(ClientConfig{
		URL:               "ws://127.0.0.1:1/stream",
		ClusterTag:        "c1",
		ReconnectInterval: 20 * time.Millisecond,
		DialTimeout:       100 * time.Millisecond,
		OnStateChange:     rec.record,
	})
	defer client.Disconnect()

	client.Connect()
	rec.waitFor(t, StateClosed)
	if client.LastError() == "" {
		t.Error("expected a recorded connection error")
	}

	// The retry fires and fails again.
	rec.waitFor(t, StateConnecting)
	rec.waitFor(t, StateClosed)
}
