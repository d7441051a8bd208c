package provider

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/redbco/redb-broker/pkg/adapter"
	"github.com/redbco/redb-broker/pkg/config"
)

// PhysicalConnection is one live client session, shared by every logical
// name whose endpoint matches it.
type PhysicalConnection struct {
	ID       string
	Kind     config.Kind
	Store    string
	Host     string
	Port     int
	Database string
	Created  time.Time

	client adapter.Client

	// mu serializes database alignment and the call that follows it.
	mu sync.Mutex

	// Guarded by the owning registry's mutex.
	refs   int
	closed bool
}

// NewPhysicalConnection records a freshly dialed client for endpoint.
func NewPhysicalConnection(endpoint config.Endpoint, store string, client adapter.Client) *PhysicalConnection {
	kind, _ := endpoint.Kind()
	return &PhysicalConnection{
		ID:       uuid.New().String(),
		Kind:     kind,
		Store:    store,
		Host:     endpoint.Host,
		Port:     endpoint.Port,
		Database: endpoint.DatabaseName(),
		Created:  time.Now(),
		client:   client,
	}
}

// Client returns the underlying store client.
func (c *PhysicalConnection) Client() adapter.Client {
	return c.client
}

// SelectedDB returns the key-value database the session currently points at.
func (c *PhysicalConnection) SelectedDB() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if selector, ok := c.client.(adapter.Selector); ok {
		return selector.Selected()
	}
	return 0
}

// Matches reports whether the connection serves endpoint. Key-value
// sessions switch databases on demand, so only relational connections
// compare the database.
func (c *PhysicalConnection) Matches(endpoint config.Endpoint, store string) bool {
	kind, ok := endpoint.Kind()
	if !ok || kind != c.Kind || store != c.Store {
		return false
	}
	if endpoint.Host != c.Host || endpoint.Port != c.Port {
		return false
	}
	if kind == config.KindRelational {
		return endpoint.DatabaseName() == c.Database
	}
	return true
}

// ConnectionInfo is a point-in-time view of a physical connection.
type ConnectionInfo struct {
	ID       string      `json:"id"`
	Kind     config.Kind `json:"kind"`
	Store    string      `json:"store"`
	Host     string      `json:"host"`
	Port     int         `json:"port"`
	Database string      `json:"database"`
	Created  time.Time   `json:"created"`
	Refs     int         `json:"refs"`
}

// DialFunc opens a new client for an endpoint.
type DialFunc func(ctx context.Context) (adapter.Client, error)

// Registry tracks physical connections so that aliased endpoints share one
// session.
type Registry struct {
	mu    sync.Mutex
	conns []*PhysicalConnection
	group singleflight.Group
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// FindMatch returns the first live connection serving endpoint, or nil.
func (r *Registry) FindMatch(endpoint config.Endpoint, store string) *PhysicalConnection {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.findLocked(endpoint, store)
}

func (r *Registry) findLocked(endpoint config.Endpoint, store string) *PhysicalConnection {
	for _, conn := range r.conns {
		if !conn.closed && conn.Matches(endpoint, store) {
			return conn
		}
	}
	return nil
}

// Register appends conn. It does not check for duplicates.
func (r *Registry) Register(conn *PhysicalConnection) {
	r.mu.Lock()
	r.conns = append(r.conns, conn)
	r.mu.Unlock()
}

// Acquire returns a connection serving endpoint and takes a reference on it.
// When none exists dial is called; concurrent first access for one endpoint
// shares a single dial. reused is false only for the first holder of a
// freshly dialed connection.
func (r *Registry) Acquire(ctx context.Context, endpoint config.Endpoint, store string, dial DialFunc) (conn *PhysicalConnection, reused bool, err error) {
	key := endpointKey(endpoint, store)

	for {
		r.mu.Lock()
		conn = r.findLocked(endpoint, store)
		if conn != nil {
			reused = conn.refs > 0
			conn.refs++
			r.mu.Unlock()
			return conn, reused, nil
		}
		r.mu.Unlock()

		v, err, _ := r.group.Do(key, func() (interface{}, error) {
			if existing := r.FindMatch(endpoint, store); existing != nil {
				return existing, nil
			}
			client, err := dial(ctx)
			if err != nil {
				return nil, err
			}
			created := NewPhysicalConnection(endpoint, store, client)
			r.Register(created)
			return created, nil
		})
		if err != nil {
			return nil, false, err
		}

		conn = v.(*PhysicalConnection)
		r.mu.Lock()
		if conn.closed {
			// Released to zero between the dial and this reference.
			r.mu.Unlock()
			continue
		}
		reused = conn.refs > 0
		conn.refs++
		r.mu.Unlock()
		return conn, reused, nil
	}
}

// Release drops one reference. The last release closes the client and
// removes the connection from the registry; closed reports whether that
// happened.
func (r *Registry) Release(conn *PhysicalConnection) (closed bool, lifetime time.Duration, err error) {
	r.mu.Lock()
	if conn.closed {
		r.mu.Unlock()
		return false, 0, nil
	}
	if conn.refs > 0 {
		conn.refs--
	}
	if conn.refs > 0 {
		r.mu.Unlock()
		return false, 0, nil
	}
	conn.closed = true
	for i, c := range r.conns {
		if c == conn {
			r.conns = append(r.conns[:i], r.conns[i+1:]...)
			break
		}
	}
	r.mu.Unlock()

	conn.mu.Lock()
	err = conn.client.Close()
	conn.mu.Unlock()

	return true, time.Since(conn.Created), err
}

// Len returns the number of live physical connections.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

// Connections returns a snapshot of the live physical connections in
// insertion order.
func (r *Registry) Connections() []ConnectionInfo {
	_, infos := r.snapshot()
	return infos
}

func (r *Registry) snapshot() ([]*PhysicalConnection, []ConnectionInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conns := make([]*PhysicalConnection, len(r.conns))
	copy(conns, r.conns)
	infos := make([]ConnectionInfo, 0, len(r.conns))
	for _, c := range r.conns {
		infos = append(infos, ConnectionInfo{
			ID:       c.ID,
			Kind:     c.Kind,
			Store:    c.Store,
			Host:     c.Host,
			Port:     c.Port,
			Database: c.Database,
			Created:  c.Created,
			Refs:     c.refs,
		})
	}
	return conns, infos
}

func endpointKey(endpoint config.Endpoint, store string) string {
	kind, _ := endpoint.Kind()
	key := fmt.Sprintf("%s|%s|%s", kind, store, endpoint.Address())
	if kind == config.KindRelational {
		key += "|" + endpoint.DatabaseName()
	}
	return key
}
