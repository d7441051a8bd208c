package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redbco/redb-broker/pkg/adapter"
	"github.com/redbco/redb-broker/pkg/config"
)

func TestDriverConfig(t *testing.T) {
	ep := config.Endpoint{
		Type:     "postgres",
		Host:     "pg.internal",
		Port:     5432,
		Database: "reports",
		User:     "reader",
		Password: "pw",
		Timeout:  1.5,
	}

	cfg, err := driverConfig(ep)
	require.NoError(t, err)
	assert.Equal(t, "pg.internal", cfg.Host)
	assert.Equal(t, uint16(5432), cfg.Port)
	assert.Equal(t, "reports", cfg.Database)
	assert.Equal(t, "reader", cfg.User)
	assert.Equal(t, "pw", cfg.Password)
	assert.Equal(t, 1500*time.Millisecond, cfg.ConnectTimeout)
	assert.Empty(t, cfg.Fallbacks)
	assert.Equal(t, "redb-broker", cfg.RuntimeParams["application_name"])
	assert.Equal(t, "UTF8", cfg.RuntimeParams["client_encoding"])
}

func TestDialerRegistered(t *testing.T) {
	assert.Equal(t, "postgres", NewDialer().Name())
	assert.True(t, adapter.GlobalRegistry().IsRegistered("postgres"))
}

func TestDialUnreachable(t *testing.T) {
	ep := config.Endpoint{Type: "postgres", Host: "127.0.0.1", Port: 1, Database: "x", Timeout: 0.2}

	_, err := NewDialer().Dial(context.Background(), ep)
	require.Error(t, err)
}
