// Package adapter defines the contracts between the connection provider and
// the store-specific clients. A store adapter supplies a Dialer; the Client it
// returns is the opaque handle that operations are dispatched onto.
package adapter

import (
	"context"

	"github.com/redbco/redb-broker/pkg/config"
)

// Client is one live session to a store endpoint.
type Client interface {
	// Store returns the store identifier (redis, mysql, postgres).
	Store() string

	// Supports reports whether Invoke accepts the named operation.
	Supports(operation string) bool

	// Invoke runs a named operation with the given arguments.
	// Unknown operations return an UnsupportedOperationError.
	Invoke(ctx context.Context, operation string, args ...interface{}) (interface{}, error)

	// Ping verifies the session is alive.
	Ping(ctx context.Context) error

	// Close releases the session.
	Close() error
}

// Selector is implemented by key-value clients whose session carries a
// selected database.
type Selector interface {
	Select(ctx context.Context, index int) error

	// Selected reports the database the session currently points at. It
	// drops back to 0 when the client replaces a broken session.
	Selected() int
}

// StatementExecutor is implemented by relational clients. It prepares query,
// binds params through the driver and executes it.
type StatementExecutor interface {
	Execute(ctx context.Context, query string, params map[string]interface{}) (Statement, error)
}

// Statement is an executed prepared statement.
type Statement interface {
	// Columns returns the result columns, empty for statements without rows.
	Columns() []string

	// Fetch reads the remaining rows as column-name keyed maps.
	Fetch() ([]map[string]interface{}, error)

	// RowsAffected reports rows changed by a statement without a result set.
	RowsAffected() int64

	// LastInsertID reports the generated id, when the driver provides one.
	LastInsertID() int64

	Close() error
}

// Dialer opens clients for one store.
type Dialer interface {
	// Name returns the store identifier used for registration.
	Name() string

	// Dial opens a new session to the endpoint.
	Dial(ctx context.Context, endpoint config.Endpoint) (Client, error)
}

// DialFunc adapts a function to the Dialer interface.
type DialFunc struct {
	Store string
	Fn    func(ctx context.Context, endpoint config.Endpoint) (Client, error)
}

// Name returns the store identifier.
func (d DialFunc) Name() string { return d.Store }

// Dial calls Fn.
func (d DialFunc) Dial(ctx context.Context, endpoint config.Endpoint) (Client, error) {
	return d.Fn(ctx, endpoint)
}
