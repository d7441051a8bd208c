package mysql

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/go-sql-driver/mysql"

	"github.com/redbco/redb-broker/internal/database/relational"
	"github.com/redbco/redb-broker/pkg/adapter"
	"github.com/redbco/redb-broker/pkg/config"
)

const (
	charset  = "utf8mb4"
	setNames = "SET NAMES " + charset
)

// Dialer opens MySQL sessions through database/sql.
type Dialer struct{}

// NewDialer creates a new MySQL dialer.
func NewDialer() adapter.Dialer {
	return &Dialer{}
}

// Name returns the store identifier.
func (d *Dialer) Name() string {
	return config.DriverMySQL
}

// Dial connects to the endpoint's schema. Parameters are always bound
// server-side and the session charset is utf8mb4.
func (d *Dialer) Dial(ctx context.Context, endpoint config.Endpoint) (adapter.Client, error) {
	connector, err := mysql.NewConnector(driverConfig(endpoint))
	if err != nil {
		return nil, fmt.Errorf("failed to build MySQL connector: %w", err)
	}

	db := sql.OpenDB(connector)

	client, err := relational.Open(ctx, db, config.DriverMySQL, endpoint.ConnectTimeout(), setNames)
	if err != nil {
		return nil, err
	}
	return client, nil
}

func driverConfig(endpoint config.Endpoint) *mysql.Config {
	cfg := mysql.NewConfig()
	cfg.User = endpoint.User
	cfg.Passwd = endpoint.Password
	cfg.Net = "tcp"
	cfg.Addr = endpoint.Address()
	cfg.DBName = string(endpoint.Database)
	cfg.Timeout = endpoint.ConnectTimeout()
	cfg.InterpolateParams = false
	cfg.ParseTime = true
	cfg.Params = map[string]string{"charset": charset}
	return cfg
}
