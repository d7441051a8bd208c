package provider

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redbco/redb-broker/pkg/adapter"
	"github.com/redbco/redb-broker/pkg/config"
)

// AccessWrapper is the handle returned for one logical connection name.
// Every failure behind it is logged and turned into a nil result.
type AccessWrapper struct {
	name     string
	endpoint config.Endpoint
	kind     config.Kind
	desired  int
	provider *Provider

	mu     sync.Mutex
	conn   *PhysicalConnection
	closed bool
}

// Name returns the logical connection name.
func (w *AccessWrapper) Name() string {
	return w.name
}

// Endpoint returns the endpoint the wrapper was built from.
func (w *AccessWrapper) Endpoint() config.Endpoint {
	return w.endpoint
}

// Connected reports whether the wrapper holds a physical connection.
func (w *AccessWrapper) Connected() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn != nil && !w.closed
}

// Connection returns the physical connection, nil when unconnected or closed.
func (w *AccessWrapper) Connection() *PhysicalConnection {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	return w.conn
}

// Invoke dispatches operation onto the store client. It returns nil when the
// wrapper is closed or unconnected, when the operation is unknown, or when
// the client fails; each case is logged.
func (w *AccessWrapper) Invoke(ctx context.Context, operation string, args ...interface{}) interface{} {
	result, err := w.invoke(ctx, operation, args...)
	if err != nil {
		w.report(operation, err)
		return nil
	}
	return result
}

// Query executes a relational statement with named parameters and returns
// the executed statement. The caller closes it. Nil is returned on failure
// and for key-value wrappers.
func (w *AccessWrapper) Query(ctx context.Context, query string, params map[string]interface{}) adapter.Statement {
	stmt, err := w.query(ctx, query, params)
	if err != nil {
		w.report("query", err)
		return nil
	}
	return stmt
}

// Close releases the wrapper's reference on its physical connection and
// evicts it from the pool, so the next Get builds a fresh wrapper. The
// connection is closed once no wrapper holds it. Repeated calls are no-ops.
func (w *AccessWrapper) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	conn := w.conn
	w.conn = nil
	w.mu.Unlock()

	w.provider.release(w, conn)
}

func (w *AccessWrapper) physical() (*PhysicalConnection, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil, adapter.ErrConnectionClosed
	}
	if w.conn == nil {
		return nil, adapter.ErrNotConnected
	}
	return w.conn, nil
}

func (w *AccessWrapper) invoke(ctx context.Context, operation string, args ...interface{}) (result interface{}, err error) {
	conn, err := w.physical()
	if err != nil {
		return nil, err
	}
	if !conn.client.Supports(operation) {
		return nil, adapter.NewUnsupportedOperationError(conn.Store, operation, "undefined method")
	}

	conn.mu.Lock()
	defer conn.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			result, err = nil, adapter.WrapError(conn.Store, operation, fmt.Errorf("panic: %v", r))
		}
	}()

	if w.kind == config.KindKeyValue {
		w.align(ctx, conn)
	}

	start := time.Now()
	result, err = conn.client.Invoke(ctx, operation, args...)
	elapsed := time.Since(start)

	w.provider.metrics.ObserveCall(conn.Store, operation, elapsed)
	if w.provider.debug {
		w.provider.events.LogCall(w.eventContext(operation), elapsed, args)
	}
	return result, err
}

// align selects the wrapper's database on the shared session when it
// differs from the one currently selected. The caller holds conn.mu.
func (w *AccessWrapper) align(ctx context.Context, conn *PhysicalConnection) {
	selector, ok := conn.client.(adapter.Selector)
	if !ok || selector.Selected() == w.desired {
		return
	}
	if err := selector.Select(ctx, w.desired); err != nil {
		w.provider.metrics.IncCallError(conn.Store, adapter.KindSelect)
		w.provider.events.LogSelectFailure(w.eventContext("select"), err)
	}
}

func (w *AccessWrapper) query(ctx context.Context, query string, params map[string]interface{}) (stmt adapter.Statement, err error) {
	conn, err := w.physical()
	if err != nil {
		return nil, err
	}
	executor, ok := conn.client.(adapter.StatementExecutor)
	if !ok {
		return nil, adapter.NewUnsupportedOperationError(conn.Store, "query", "store has no statement support")
	}

	diagnostic := DiagnosticSQL(query, params)

	conn.mu.Lock()
	defer conn.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			stmt, err = nil, adapter.WrapError(conn.Store, "query", fmt.Errorf("panic: %v", r))
		}
	}()

	start := time.Now()
	stmt, err = executor.Execute(ctx, query, params)
	elapsed := time.Since(start)

	w.provider.metrics.ObserveCall(conn.Store, "query", elapsed)
	if err != nil {
		return nil, fmt.Errorf("%w [%s]", err, diagnostic)
	}
	if w.provider.debug {
		w.provider.events.LogQuery(w.eventContext("query"), elapsed, diagnostic)
	}
	return stmt, nil
}

func (w *AccessWrapper) report(operation string, err error) {
	w.provider.metrics.IncCallError(w.store(), adapter.Classify(err))
	w.provider.events.LogOperationFailure(w.eventContext(operation), err)
}

func (w *AccessWrapper) store() string {
	if w.kind == config.KindKeyValue {
		return adapter.StoreRedis
	}
	return w.endpoint.DriverName()
}

func (w *AccessWrapper) eventContext(operation string) EventContext {
	return EventContext{
		Kind:      string(w.kind),
		Name:      w.name,
		Host:      w.endpoint.Host,
		Port:      w.endpoint.Port,
		Database:  w.endpoint.DatabaseName(),
		Operation: operation,
	}
}
