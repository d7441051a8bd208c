package provider

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redbco/redb-broker/pkg/adapter"
	"github.com/redbco/redb-broker/pkg/config"
)

// fakeClient is an in-memory key-value session with a selectable database.
type fakeClient struct {
	mu         sync.Mutex
	data       map[int]map[string]interface{}
	db         int
	selects    []int
	closes     int
	failSelect bool
}

func newFakeClient() *fakeClient {
	return &fakeClient{data: map[int]map[string]interface{}{}}
}

func (c *fakeClient) Store() string { return adapter.StoreRedis }

func (c *fakeClient) Supports(op string) bool {
	switch op {
	case "set", "get", "boom", "fail", "drop":
		return true
	}
	return false
}

func (c *fakeClient) Invoke(_ context.Context, op string, args ...interface{}) (interface{}, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch op {
	case "set":
		if c.data[c.db] == nil {
			c.data[c.db] = map[string]interface{}{}
		}
		c.data[c.db][args[0].(string)] = args[1]
		return "OK", nil
	case "get":
		return c.data[c.db][args[0].(string)], nil
	case "boom":
		panic("kaboom")
	case "fail":
		return nil, errors.New("WRONGTYPE")
	case "drop":
		// A broken session is replaced by one on database 0.
		c.db = 0
		return nil, errors.New("EOF")
	}
	return nil, adapter.NewUnsupportedOperationError(adapter.StoreRedis, op, "undefined method")
}

func (c *fakeClient) Select(_ context.Context, index int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.selects = append(c.selects, index)
	if c.failSelect {
		return adapter.ErrSelectFailed
	}
	c.db = index
	return nil
}

func (c *fakeClient) Selected() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.db
}

func (c *fakeClient) Ping(context.Context) error { return nil }

func (c *fakeClient) Close() error {
	c.mu.Lock()
	c.closes++
	c.mu.Unlock()
	return nil
}

func (c *fakeClient) selectCalls() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]int(nil), c.selects...)
}

func (c *fakeClient) closeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closes
}

// fakeDialer counts dials and hands out clients built by newClient.
type fakeDialer struct {
	store     string
	dials     atomic.Int32
	delay     time.Duration
	err       error
	newClient func() adapter.Client

	mu      sync.Mutex
	clients []adapter.Client
}

func (d *fakeDialer) Name() string { return d.store }

func (d *fakeDialer) Dial(ctx context.Context, _ config.Endpoint) (adapter.Client, error) {
	d.dials.Add(1)
	if d.delay > 0 {
		time.Sleep(d.delay)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d.err != nil {
		return nil, d.err
	}
	var client adapter.Client
	if d.newClient != nil {
		client = d.newClient()
	} else {
		client = newFakeClient()
	}
	d.mu.Lock()
	d.clients = append(d.clients, client)
	d.mu.Unlock()
	return client, nil
}

func (d *fakeDialer) client(i int) *fakeClient {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.clients[i].(*fakeClient)
}
