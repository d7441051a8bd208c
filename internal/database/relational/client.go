// Package relational implements the broker client for database/sql stores.
// Driver packages (mysql, postgres) open the *sql.DB and hand it to Open.
package relational

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/redbco/redb-broker/pkg/adapter"
)

// Supported operation names.
const (
	OpQuery    = "query"
	OpQueryRow = "queryrow"
	OpExec     = "exec"
	OpPing     = "ping"
	OpStats    = "stats"
)

// ExecResult is returned by the exec operation.
type ExecResult struct {
	RowsAffected int64 `json:"rows_affected"`
	LastInsertID int64 `json:"last_insert_id"`
}

// Client dispatches named operations onto a database/sql handle. The store
// name doubles as the sqlx driver name, which selects the bind syntax.
type Client struct {
	db    *sqlx.DB
	store string
}

// New wraps an open database handle.
func New(db *sql.DB, store string) *Client {
	return &Client{db: sqlx.NewDb(db, store), store: store}
}

// Open verifies the handle within timeout and runs the session setup
// statements. The handle is closed on failure.
func Open(ctx context.Context, db *sql.DB, store string, timeout time.Duration, setup ...string) (*Client, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping %s database: %w", store, err)
	}

	for _, stmt := range setup {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to run %q: %w", stmt, err)
		}
	}

	return New(db, store), nil
}

// DB returns the underlying handle.
func (c *Client) DB() *sql.DB {
	return c.db.DB
}

// Store returns the store identifier.
func (c *Client) Store() string {
	return c.store
}

// Supports reports whether the operation is dispatchable.
func (c *Client) Supports(operation string) bool {
	switch strings.ToLower(operation) {
	case OpQuery, OpQueryRow, OpExec, OpPing, OpStats:
		return true
	}
	return false
}

// Invoke runs a named operation. query, queryrow and exec take the SQL text
// as first argument followed by positional bind values.
func (c *Client) Invoke(ctx context.Context, operation string, args ...interface{}) (interface{}, error) {
	op := strings.ToLower(operation)
	switch op {
	case OpQuery, OpQueryRow, OpExec:
		if len(args) == 0 {
			return nil, adapter.WrapError(c.store, op, fmt.Errorf("missing SQL text"))
		}
		query, ok := args[0].(string)
		if !ok {
			return nil, adapter.WrapError(c.store, op, fmt.Errorf("SQL text must be a string, got %T", args[0]))
		}
		return c.run(ctx, op, query, args[1:])
	case OpPing:
		if err := c.Ping(ctx); err != nil {
			return nil, adapter.WrapError(c.store, op, err)
		}
		return true, nil
	case OpStats:
		return c.db.Stats(), nil
	default:
		return nil, adapter.NewUnsupportedOperationError(c.store, operation, "undefined method")
	}
}

func (c *Client) run(ctx context.Context, op, query string, args []interface{}) (interface{}, error) {
	if op == OpExec {
		res, err := c.db.ExecContext(ctx, query, args...)
		if err != nil {
			return nil, adapter.WrapError(c.store, op, err)
		}
		return toExecResult(res), nil
	}

	rows, err := c.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, adapter.WrapError(c.store, op, err)
	}
	defer rows.Close()

	result, err := fetchMaps(rows)
	if err != nil {
		return nil, adapter.WrapError(c.store, op, err)
	}
	if op == OpQueryRow {
		if len(result) == 0 {
			return nil, nil
		}
		return result[0], nil
	}
	return result, nil
}

// Execute prepares query, binds params by name and executes it. Statements
// that produce rows are queried, everything else is executed.
func (c *Client) Execute(ctx context.Context, query string, params map[string]interface{}) (adapter.Statement, error) {
	bound, args, err := Bind(query, params, c.db.DriverName())
	if err != nil {
		return nil, err
	}

	stmt, err := c.db.PreparexContext(ctx, bound)
	if err != nil {
		return nil, adapter.WrapError(c.store, "prepare", err)
	}

	if returnsRows(bound) {
		rows, err := stmt.QueryxContext(ctx, args...)
		if err != nil {
			stmt.Close()
			return nil, adapter.WrapError(c.store, "execute", err)
		}
		return &Statement{stmt: stmt, rows: rows}, nil
	}

	res, err := stmt.ExecContext(ctx, args...)
	if err != nil {
		stmt.Close()
		return nil, adapter.WrapError(c.store, "execute", err)
	}
	r := toExecResult(res)
	return &Statement{stmt: stmt, affected: r.RowsAffected, lastID: r.LastInsertID}, nil
}

// Ping verifies the database is reachable.
func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// Close closes the database handle.
func (c *Client) Close() error {
	return c.db.Close()
}

func toExecResult(res sql.Result) ExecResult {
	var out ExecResult
	if n, err := res.RowsAffected(); err == nil {
		out.RowsAffected = n
	}
	if id, err := res.LastInsertId(); err == nil {
		out.LastInsertID = id
	}
	return out
}

var rowKeywords = []string{"select", "show", "with", "describe", "desc", "explain", "values", "table"}

// returnsRows guesses from the leading keyword whether a statement yields a
// result set. INSERT/UPDATE/DELETE ... RETURNING also counts.
func returnsRows(query string) bool {
	q := strings.ToLower(strings.TrimLeft(query, " \t\r\n("))
	for _, kw := range rowKeywords {
		if strings.HasPrefix(q, kw) && (len(q) == len(kw) || !isIdentPart(q[len(kw)])) {
			return true
		}
	}
	return strings.Contains(q, " returning ")
}

func isIdentPart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}
