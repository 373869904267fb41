package cluster

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eventdeck/eventdeck/internal/aggregate"
	"github.com/eventdeck/eventdeck/internal/events"
	"github.com/eventdeck/eventdeck/internal/poll"
	"github.com/eventdeck/eventdeck/internal/ringbuf"
	"github.com/eventdeck/eventdeck/internal/store"
)

// Manager orchestrates all cluster ingestion paths. It owns one stream
// client or poller per cluster, routes every delta by cluster tag into
// the matching store, and recomputes the merged view after each change.
//
// The manager runs as a single goroutine that is the only writer to the
// stores; stream clients and pollers hand their data over through
// channels. Readers never touch the stores directly: each recomputation
// publishes an immutable view by atomic pointer swap, so a reader can
// never observe a half-applied delta.
type Manager struct {
	registry *Registry

	// connections maps cluster name to its connection status record.
	connections map[string]*Connection

	// stores maps cluster name to its event store. Owned by the run
	// loop; nothing else mutates them.
	stores map[string]*store.Store

	// clients maps cluster name to its stream client (live path only).
	clients map[string]*events.Client

	pollers []*poll.Poller

	deltaCh chan events.DeltaMessage
	pollCh  chan poll.Result
	cmdCh   chan func()

	// view is the published aggregation snapshot.
	view atomic.Pointer[aggregate.View]

	// activity is a bounded tail of recent engine activity lines,
	// served by the status endpoint for quick diagnosis.
	activity *ringbuf.Buffer[string]

	selection aggregate.Selection
	query     string

	cfg    ManagerConfig
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// ManagerConfig holds the engine-level settings the manager needs.
type ManagerConfig struct {
	Clusters []ClusterConfig

	// RingCapacity bounds each cluster's event backlog.
	RingCapacity int

	// ActivityTailCapacity bounds the activity line tail.
	ActivityTailCapacity int

	// ChannelBufferSize sizes the delta and poll result channels.
	ChannelBufferSize int

	// ReconnectInterval is the fixed stream reconnect delay.
	ReconnectInterval time.Duration

	// DialTimeout bounds each websocket handshake.
	DialTimeout time.Duration

	// MaxFrameBytes is the largest inbound stream frame accepted.
	MaxFrameBytes int64

	// PollInterval is the refetch period for poll-path clusters.
	PollInterval time.Duration

	// Subscription is the initial subscription sent on every stream
	// connection once it opens.
	Subscription events.Subscription
}

// NewManager creates a Manager with one store and one connection record
// per configured cluster, plus a stream client or poller depending on
// the cluster's ingestion path. The manager is created stopped; call
// Start to begin ingesting.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	registry := NewRegistry()
	if err := registry.Load(cfg.Clusters); err != nil {
		return nil, err
	}

	activity, err := ringbuf.New[string](cfg.ActivityTailCapacity)
	if err != nil {
		return nil, fmt.Errorf("activity tail: %w", err)
	}

	m := &Manager{
		registry:    registry,
		connections: make(map[string]*Connection),
		stores:      make(map[string]*store.Store),
		clients:     make(map[string]*events.Client),
		deltaCh:     make(chan events.DeltaMessage, cfg.ChannelBufferSize),
		pollCh:      make(chan poll.Result, cfg.ChannelBufferSize),
		cmdCh:       make(chan func(), 16),
		activity:    activity,
		selection:   aggregate.AllClusters(),
		cfg:         cfg,
	}
	m.view.Store(aggregate.EmptyView())

	for _, clusterCfg := range registry.List() {
		conn := NewConnection(clusterCfg)
		m.connections[clusterCfg.Name] = conn

		st, err := store.New(clusterCfg.Name, cfg.RingCapacity)
		if err != nil {
			return nil, err
		}
		m.stores[clusterCfg.Name] = st

		if clusterCfg.UsesStream() {
			m.clients[clusterCfg.Name] = m.newStreamClient(clusterCfg, conn)
			slog.Info("stream client created for cluster",
				"cluster", clusterCfg.Name,
				"endpoint", clusterCfg.StreamEndpoint)
		} else {
			m.pollers = append(m.pollers, poll.New(
				clusterCfg.Name, clusterCfg.ListEndpoint, cfg.PollInterval, m.pollCh))
			slog.Info("poller created for cluster",
				"cluster", clusterCfg.Name,
				"endpoint", clusterCfg.ListEndpoint)
		}
	}

	return m, nil
}

// newStreamClient builds the stream client for one cluster, wiring its
// callbacks into the manager's channels and the connection record.
func (m *Manager) newStreamClient(clusterCfg *ClusterConfig, conn *Connection) *events.Client {
	return events.NewClient(events.ClientConfig{
		URL:               clusterCfg.StreamEndpoint,
		ClusterTag:        clusterCfg.Name,
		ReconnectInterval: m.cfg.ReconnectInterval,
		DialTimeout:       m.cfg.DialTimeout,
		MaxFrameBytes:     m.cfg.MaxFrameBytes,
		OnDelta:           m.enqueueDelta,
		OnStateChange: func(s events.State) {
			switch s {
			case events.StateConnecting:
				conn.SetStatus(StatusConnecting)
			case events.StateOpen:
				conn.SetStatus(StatusActive)
				if c := m.clients[clusterCfg.Name]; c != nil {
					conn.SetSessionID(c.SessionID())
				}
			case events.StateClosed:
				if c := m.clients[clusterCfg.Name]; c != nil && c.LastError() != "" {
					conn.SetError(c.LastError())
				} else {
					conn.SetStatus(StatusDisconnected)
				}
			}
		},
	})
}

// enqueueDelta hands a decoded delta to the run loop. Runs on the stream
// client's read goroutine; blocks for backpressure rather than dropping,
// and bails out if the manager is stopping.
func (m *Manager) enqueueDelta(d events.DeltaMessage) {
	select {
	case m.deltaCh <- d:
	case <-m.ctx.Done():
	}
}

// Start launches the run loop, connects every stream client and starts
// every poller. The initial subscription is recorded on each client
// before connecting, so the first frame the server receives is the
// current subscription and never a partial one.
func (m *Manager) Start(ctx context.Context) {
	m.ctx, m.cancel = context.WithCancel(ctx)

	slog.Info("starting engine manager",
		"cluster_count", m.registry.Count(),
		"stream_clusters", len(m.clients),
		"poll_clusters", len(m.pollers))

	m.wg.Add(1)
	go m.run()

	for name, client := range m.clients {
		client.Subscribe(m.cfg.Subscription)
		client.Connect()
		slog.Info("stream connect requested", "cluster", name)
	}

	for _, p := range m.pollers {
		m.wg.Add(1)
		go func(p *poll.Poller) {
			defer m.wg.Done()
			p.Run(m.ctx)
		}(p)
	}
}

// Stop disconnects every stream client, stops the pollers and waits for
// the run loop to drain. Safe to call once after Start.
func (m *Manager) Stop() {
	slog.Info("stopping engine manager")

	for _, client := range m.clients {
		client.Disconnect()
	}
	m.cancel()
	m.wg.Wait()

	slog.Info("engine manager stopped")
}

// run is the manager's single-writer loop: it applies deltas and poll
// results to the stores and recomputes the published view after every
// change.
func (m *Manager) run() {
	defer m.wg.Done()

	for {
		select {
		case <-m.ctx.Done():
			return

		case d := <-m.deltaCh:
			m.applyDelta(d)
			m.recompute()

		case r := <-m.pollCh:
			m.applyPoll(r)
			m.recompute()

		case fn := <-m.cmdCh:
			fn()
			m.recompute()
		}
	}
}

// applyDelta routes one delta to its cluster store.
func (m *Manager) applyDelta(d events.DeltaMessage) {
	st, ok := m.stores[d.ClusterTag]
	if !ok {
		slog.Warn("delta for unknown cluster dropped", "cluster", d.ClusterTag)
		return
	}
	if err := st.Apply(d); err != nil {
		slog.Warn("delta rejected", "cluster", d.ClusterTag, "error", err)
		return
	}

	if conn := m.connections[d.ClusterTag]; conn != nil {
		conn.RecordEvent()
	}
	m.activity.Push(fmt.Sprintf("%s %s %s %s/%s",
		d.ReceivedAt.Format(time.RFC3339), d.ClusterTag, d.Kind,
		d.Event.Namespace, d.Event.Name))
}

// applyPoll applies one refetch outcome to its cluster store.
func (m *Manager) applyPoll(r poll.Result) {
	st, ok := m.stores[r.Cluster]
	if !ok {
		return
	}
	conn := m.connections[r.Cluster]

	if r.Err != nil {
		st.SetError(r.Err.Error())
		if conn != nil {
			conn.SetError(r.Err.Error())
		}
		return
	}

	st.Replace(r.Records)
	if conn != nil {
		conn.SetStatus(StatusPolling)
		conn.RecordEvent()
	}
	m.activity.Push(fmt.Sprintf("%s %s REFRESH %d records",
		time.Now().Format(time.RFC3339), r.Cluster, len(r.Records)))
}

// recompute rebuilds the published view from current store snapshots.
func (m *Manager) recompute() {
	names := m.registry.Names()
	states := make([]store.State, 0, len(names))
	for _, name := range names {
		states = append(states, m.stores[name].Snapshot())
	}
	m.view.Store(aggregate.Build(states, m.selection, m.query))
}

// View returns the current aggregated view snapshot.
func (m *Manager) View() *aggregate.View {
	return m.view.Load()
}

// SetSelection changes the active cluster selection; the view is
// recomputed on the run loop.
func (m *Manager) SetSelection(sel aggregate.Selection) {
	m.cmdCh <- func() { m.selection = sel }
}

// SetQuery changes the free-text filter; the view is recomputed on the
// run loop.
func (m *Manager) SetQuery(query string) {
	m.cmdCh <- func() { m.query = query }
}

// Subscribe records a new subscription on every stream client. Open
// connections send it immediately; closed ones replay it when they next
// open.
func (m *Manager) Subscribe(sub events.Subscription) {
	for _, client := range m.clients {
		client.Subscribe(sub)
	}
}

// Connected reports whether every cluster's ingestion path is currently
// healthy. This is the single connectivity boolean behind the status
// indicator.
func (m *Manager) Connected() bool {
	for _, conn := range m.connections {
		if !conn.Connected() {
			return false
		}
	}
	return true
}

// Activity returns the recent activity tail, oldest first.
func (m *Manager) Activity() []string {
	return m.activity.Snapshot()
}

// GetHealth returns the status summary for every cluster connection.
func (m *Manager) GetHealth() *HealthSummary {
	summary := &HealthSummary{}

	for _, name := range m.registry.Names() {
		conn := m.connections[name]
		h := conn.Health()
		h.BufferedEvents = m.stores[name].Len()
		summary.Clusters = append(summary.Clusters, h)

		summary.Summary.Total++
		if conn.Connected() {
			summary.Summary.Active++
		} else if h.Status == StatusFailed || h.Status == StatusDisconnected {
			summary.Summary.Unhealthy++
		}
	}

	return summary
}
