package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/redbco/redb-broker/pkg/adapter"
	"github.com/redbco/redb-broker/pkg/config"
)

// Dialer opens dedicated Redis sessions.
type Dialer struct{}

// NewDialer creates a new Redis dialer.
func NewDialer() adapter.Dialer {
	return &Dialer{}
}

// Name returns the store identifier.
func (d *Dialer) Name() string {
	return adapter.StoreRedis
}

// Dial connects to a Redis server and pins one connection from the client
// pool, so that SELECT applies to every later command on the session.
// The session always starts on database 0.
func (d *Dialer) Dial(ctx context.Context, endpoint config.Endpoint) (adapter.Client, error) {
	options := &redis.Options{
		Addr:     endpoint.Address(),
		Username: endpoint.User,
		Password: endpoint.Password,
		DB:       0,
		PoolSize: 1,
	}
	if timeout := endpoint.ConnectTimeout(); timeout > 0 {
		options.DialTimeout = timeout
	}

	rdb := redis.NewClient(options)
	conn := rdb.Conn()

	if err := conn.Ping(ctx).Err(); err != nil {
		conn.Close()
		rdb.Close()
		return nil, fmt.Errorf("error connecting to Redis: %w", err)
	}

	return &Client{rdb: rdb, conn: conn}, nil
}

// Client dispatches named commands onto a single Redis session.
// It is not safe for concurrent use; callers serialize access.
type Client struct {
	rdb  *redis.Client
	conn *redis.Conn
	db   int
}

// Store returns the store identifier.
func (c *Client) Store() string {
	return adapter.StoreRedis
}

// Supports reports whether the command is dispatchable.
func (c *Client) Supports(operation string) bool {
	_, ok := commands[strings.ToLower(operation)]
	return ok
}

// Invoke sends the command with its arguments and returns the decoded reply.
// A missing key yields a nil result and no error.
func (c *Client) Invoke(ctx context.Context, operation string, args ...interface{}) (interface{}, error) {
	name := strings.ToLower(operation)
	if _, ok := commands[name]; !ok {
		return nil, adapter.NewUnsupportedOperationError(adapter.StoreRedis, operation, "undefined method")
	}

	cmdArgs := make([]interface{}, 0, len(args)+1)
	cmdArgs = append(cmdArgs, name)
	cmdArgs = append(cmdArgs, args...)

	cmd := redis.NewCmd(ctx, cmdArgs...)
	_ = c.conn.Process(ctx, cmd)

	value, err := cmd.Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		c.resetIfBroken(err)
		return nil, adapter.WrapError(adapter.StoreRedis, name, err)
	}
	return value, nil
}

// Select switches the session's current database.
func (c *Client) Select(ctx context.Context, index int) error {
	if err := c.conn.Select(ctx, index).Err(); err != nil {
		c.resetIfBroken(err)
		return fmt.Errorf("%w: database %d: %v", adapter.ErrSelectFailed, index, err)
	}
	c.db = index
	return nil
}

// Selected returns the database the session currently points at.
func (c *Client) Selected() int {
	return c.db
}

// Ping verifies the session is alive.
func (c *Client) Ping(ctx context.Context) error {
	err := c.conn.Ping(ctx).Err()
	c.resetIfBroken(err)
	return err
}

// resetIfBroken swaps the pinned session for a fresh one when err came from
// the transport rather than a server reply. A sticky go-redis connection
// never recovers from a bad state on its own. The new session dials lazily
// on its next command and starts on database 0.
func (c *Client) resetIfBroken(err error) {
	if err == nil {
		return
	}
	var reply redis.Error
	if errors.As(err, &reply) {
		return
	}
	_ = c.conn.Close()
	c.conn = c.rdb.Conn()
	c.db = 0
}

// Close releases the pinned session and the underlying pool.
func (c *Client) Close() error {
	connErr := c.conn.Close()
	poolErr := c.rdb.Close()
	if connErr != nil && !errors.Is(connErr, redis.ErrClosed) {
		return connErr
	}
	return poolErr
}
