// Package provider is the connection broker: it maps logical connection
// names onto shared physical store sessions and dispatches operations onto
// them without letting errors escape.
package provider

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/singleflight"

	"github.com/redbco/redb-broker/pkg/adapter"
	"github.com/redbco/redb-broker/pkg/config"
	"github.com/redbco/redb-broker/pkg/logger"
)

// Provider owns the configuration table, the logical pool of access
// wrappers and the physical connection registry.
type Provider struct {
	logger     *logger.Logger
	events     *EventLogger
	dialers    *adapter.Registry
	metrics    Collector
	registerer prometheus.Registerer
	debug      bool
	registry   *Registry

	mu       sync.Mutex
	table    config.Table
	wrappers map[string]*AccessWrapper
	shutdown bool
	group    singleflight.Group
}

// Option configures a Provider.
type Option func(*Provider)

// WithLogger sets the logger. The default discards console output.
func WithLogger(l *logger.Logger) Option {
	return func(p *Provider) { p.logger = l }
}

// WithDialers sets the dialer registry. The default is the global registry
// populated by the store packages.
func WithDialers(r *adapter.Registry) Option {
	return func(p *Provider) { p.dialers = r }
}

// WithRegisterer exposes the broker metrics on reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(p *Provider) { p.registerer = reg }
}

// WithCollector sets the telemetry collector directly.
func WithCollector(c Collector) Option {
	return func(p *Provider) { p.metrics = c }
}

// WithDebug enables call and query tracing.
func WithDebug(debug bool) Option {
	return func(p *Provider) { p.debug = debug }
}

// New creates a provider with an empty configuration table.
func New(opts ...Option) *Provider {
	p := &Provider{
		table:    config.Table{},
		wrappers: make(map[string]*AccessWrapper),
		registry: NewRegistry(),
	}
	for _, opt := range opts {
		opt(p)
	}

	if p.logger == nil {
		p.logger = logger.Nop()
	}
	if p.dialers == nil {
		p.dialers = adapter.GlobalRegistry()
	}
	if p.metrics == nil {
		p.metrics = NoopCollector()
		if p.registerer != nil {
			collector, err := NewPrometheusCollector(p.registerer)
			if err != nil {
				p.logger.Warn("Metrics disabled: %v", err)
			} else {
				p.metrics = collector
			}
		}
	}
	p.events = NewEventLogger(p.logger)
	return p
}

// ApplyConfig replaces the configuration table. Nothing is dialed until a
// name is first requested; wrappers already built keep their endpoint.
func (p *Provider) ApplyConfig(table config.Table) {
	p.mu.Lock()
	p.table = table.Clone()
	p.mu.Unlock()
}

// Get returns the access wrapper for name, building it on first use.
// Unknown names return nil without side effects, as does every call after
// Shutdown. Concurrent first access builds one wrapper.
func (p *Provider) Get(ctx context.Context, name string) *AccessWrapper {
	p.mu.Lock()
	if p.shutdown {
		_, configured := p.table[name]
		p.mu.Unlock()
		if configured {
			p.logger.Warn("Connection %s requested after shutdown", name)
		}
		return nil
	}
	if w, ok := p.wrappers[name]; ok {
		p.mu.Unlock()
		return w
	}
	endpoint, ok := p.table[name]
	p.mu.Unlock()
	if !ok {
		return nil
	}

	v, _, _ := p.group.Do(name, func() (interface{}, error) {
		p.mu.Lock()
		if w, ok := p.wrappers[name]; ok {
			p.mu.Unlock()
			return w, nil
		}
		p.mu.Unlock()

		// The wrapper outlives the request that triggers it, so the dial is
		// bounded by the endpoint timeout rather than the caller.
		w := p.build(context.WithoutCancel(ctx), name, endpoint)

		p.mu.Lock()
		if p.shutdown {
			p.mu.Unlock()
			w.Close()
			return nil, nil
		}
		p.wrappers[name] = w
		p.mu.Unlock()
		return w, nil
	})

	w, _ := v.(*AccessWrapper)
	return w
}

// build constructs a wrapper and attaches it to a physical connection.
// Failures leave the wrapper unconnected; they are logged, never returned.
func (p *Provider) build(ctx context.Context, name string, endpoint config.Endpoint) *AccessWrapper {
	kind, _ := endpoint.Kind()
	w := &AccessWrapper{
		name:     name,
		endpoint: endpoint,
		kind:     kind,
		provider: p,
	}
	ectx := w.eventContext("")
	if ectx.Kind == "" {
		ectx.Kind = endpoint.Type
	}

	if err := endpoint.Validate(); err != nil {
		p.events.LogConfigurationError(ectx, adapter.NewConfigurationError(name, "", err.Error()))
		return w
	}
	if kind == config.KindKeyValue {
		index, err := endpoint.KeyValueDB()
		if err != nil {
			p.events.LogConfigurationError(ectx, adapter.NewConfigurationError(name, "db", err.Error()))
			return w
		}
		w.desired = index
	}

	store, err := adapter.StoreFor(endpoint)
	if err != nil {
		p.events.LogConfigurationError(ectx, err)
		return w
	}

	start := time.Now()
	conn, reused, err := p.registry.Acquire(ctx, endpoint, store, func(ctx context.Context) (adapter.Client, error) {
		dialStart := time.Now()
		client, err := p.dialers.Dial(ctx, endpoint)
		if err != nil {
			p.metrics.IncDial(store, DialFailure)
			return nil, adapter.NewConnectionError(store, endpoint.Host, endpoint.Port, time.Since(dialStart), err)
		}
		p.metrics.IncDial(store, DialSuccess)
		return client, nil
	})
	if err != nil {
		elapsed := time.Since(start)
		var connErr *adapter.ConnectionError
		if errors.As(err, &connErr) {
			elapsed = connErr.Elapsed
		}
		p.metrics.IncCallError(store, adapter.Classify(err))
		p.events.LogConnectionFailure(ectx, elapsed, err)
		return w
	}

	w.conn = conn
	p.metrics.SetPhysicalConnections(p.registry.Len())
	p.events.LogConnectionSuccess(ectx, reused)
	return w
}

// release is called once per wrapper when it is closed. conn is nil for a
// wrapper that never connected.
func (p *Provider) release(w *AccessWrapper, conn *PhysicalConnection) {
	p.mu.Lock()
	if p.wrappers[w.name] == w {
		delete(p.wrappers, w.name)
	}
	p.mu.Unlock()

	if conn == nil {
		return
	}
	closed, lifetime, err := p.registry.Release(conn)
	if !closed {
		return
	}
	p.metrics.SetPhysicalConnections(p.registry.Len())
	p.events.LogConnectionClosed(EventContext{
		Kind:     string(conn.Kind),
		Name:     w.name,
		Host:     conn.Host,
		Port:     conn.Port,
		Database: conn.Database,
	}, lifetime, err)
}

// Call resolves name and invokes operation on it. Unknown names and every
// failure yield nil.
func (p *Provider) Call(ctx context.Context, name, operation string, args ...interface{}) interface{} {
	w := p.Get(ctx, name)
	if w == nil {
		return nil
	}
	return w.Invoke(ctx, operation, args...)
}

// Query resolves name and executes a relational statement on it.
func (p *Provider) Query(ctx context.Context, name, query string, params map[string]interface{}) adapter.Statement {
	w := p.Get(ctx, name)
	if w == nil {
		return nil
	}
	return w.Query(ctx, query, params)
}

// Shutdown closes every wrapper once. Physical connections shared by several
// wrappers are closed when the last of them is released. Later calls are
// no-ops.
func (p *Provider) Shutdown() {
	p.mu.Lock()
	if p.shutdown {
		p.mu.Unlock()
		return
	}
	p.shutdown = true
	wrappers := p.wrappers
	p.wrappers = make(map[string]*AccessWrapper)
	p.mu.Unlock()

	p.events.LogShutdown(len(wrappers), p.registry.Len())

	names := make([]string, 0, len(wrappers))
	for name := range wrappers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		wrappers[name].Close()
	}
}

// Names returns the configured logical names in sorted order.
func (p *Provider) Names() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	names := make([]string, 0, len(p.table))
	for name := range p.table {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Stats summarizes the provider state.
type Stats struct {
	Configured          int  `json:"configured"`
	Wrappers            int  `json:"wrappers"`
	PhysicalConnections int  `json:"physical_connections"`
	Shutdown            bool `json:"shutdown"`
}

// Stats returns pool and connection counts.
func (p *Provider) Stats() Stats {
	p.mu.Lock()
	stats := Stats{
		Configured: len(p.table),
		Wrappers:   len(p.wrappers),
		Shutdown:   p.shutdown,
	}
	p.mu.Unlock()
	stats.PhysicalConnections = p.registry.Len()
	return stats
}

// Connections returns a snapshot of the live physical connections.
func (p *Provider) Connections() []ConnectionInfo {
	return p.registry.Connections()
}

// ProbeResult is the outcome of pinging one physical connection. For a
// pooled wrapper that never connected, Name is set and Err is
// adapter.ErrNotConnected.
type ProbeResult struct {
	Name       string
	Connection ConnectionInfo
	Latency    time.Duration
	Err        error
}

// Probe pings every live physical connection and reports every pooled
// wrapper without one. Pings on a session are serialized with regular
// traffic.
func (p *Provider) Probe(ctx context.Context) []ProbeResult {
	conns, infos := p.registry.snapshot()

	results := make([]ProbeResult, 0, len(conns))
	for i, conn := range conns {
		start := time.Now()
		conn.mu.Lock()
		err := conn.client.Ping(ctx)
		conn.mu.Unlock()
		results = append(results, ProbeResult{Connection: infos[i], Latency: time.Since(start), Err: err})
	}

	p.mu.Lock()
	wrappers := make([]*AccessWrapper, 0, len(p.wrappers))
	for _, w := range p.wrappers {
		wrappers = append(wrappers, w)
	}
	p.mu.Unlock()
	sort.Slice(wrappers, func(i, j int) bool { return wrappers[i].name < wrappers[j].name })

	for _, w := range wrappers {
		if w.Connected() {
			continue
		}
		results = append(results, ProbeResult{
			Name: w.name,
			Connection: ConnectionInfo{
				Kind:     w.kind,
				Store:    w.store(),
				Host:     w.endpoint.Host,
				Port:     w.endpoint.Port,
				Database: w.endpoint.DatabaseName(),
			},
			Err: adapter.ErrNotConnected,
		})
	}
	return results
}
