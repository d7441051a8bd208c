package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/redbco/redb-broker/internal/database/relational"
	"github.com/redbco/redb-broker/pkg/adapter"
	"github.com/redbco/redb-broker/pkg/config"
)

const setEncoding = "SET client_encoding TO 'UTF8'"

// Dialer opens PostgreSQL sessions through the pgx database/sql bridge.
type Dialer struct{}

// NewDialer creates a new PostgreSQL dialer.
func NewDialer() adapter.Dialer {
	return &Dialer{}
}

// Name returns the store identifier.
func (d *Dialer) Name() string {
	return config.DriverPostgres
}

// Dial connects to the endpoint's database.
func (d *Dialer) Dial(ctx context.Context, endpoint config.Endpoint) (adapter.Client, error) {
	connConfig, err := driverConfig(endpoint)
	if err != nil {
		return nil, err
	}

	db := stdlib.OpenDB(*connConfig)

	client, err := relational.Open(ctx, db, config.DriverPostgres, endpoint.ConnectTimeout(), setEncoding)
	if err != nil {
		return nil, err
	}
	return client, nil
}

func driverConfig(endpoint config.Endpoint) (*pgx.ConnConfig, error) {
	cfg, err := pgx.ParseConfig("")
	if err != nil {
		return nil, fmt.Errorf("failed to build PostgreSQL config: %w", err)
	}
	cfg.Host = endpoint.Host
	cfg.Port = uint16(endpoint.Port)
	cfg.Database = string(endpoint.Database)
	cfg.User = endpoint.User
	cfg.Password = endpoint.Password
	cfg.ConnectTimeout = endpoint.ConnectTimeout()
	cfg.Fallbacks = nil
	if cfg.RuntimeParams == nil {
		cfg.RuntimeParams = map[string]string{}
	}
	cfg.RuntimeParams["application_name"] = "redb-broker"
	cfg.RuntimeParams["client_encoding"] = "UTF8"
	return cfg, nil
}
