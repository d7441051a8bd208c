package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	redisstore "github.com/redbco/redb-broker/internal/database/redis"
	"github.com/redbco/redb-broker/internal/database/relational"
	"github.com/redbco/redb-broker/pkg/adapter"
	"github.com/redbco/redb-broker/pkg/config"
	"github.com/redbco/redb-broker/pkg/logger"
	"github.com/redbco/redb-broker/pkg/provider"
)

type fixture struct {
	server *Server
	redis  *miniredis.Miniredis
	mock   sqlmock.Sqlmock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s := miniredis.RunT(t)
	port, err := strconv.Atoi(s.Port())
	require.NoError(t, err)

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)

	dialers := adapter.NewRegistry()
	dialers.Register(redisstore.NewDialer())
	dialers.Register(adapter.DialFunc{
		Store: config.DriverMySQL,
		Fn: func(context.Context, config.Endpoint) (adapter.Client, error) {
			return relational.New(db, config.DriverMySQL), nil
		},
	})

	reg := prometheus.NewRegistry()
	p := provider.New(provider.WithDialers(dialers), provider.WithRegisterer(reg))
	p.ApplyConfig(config.Table{
		"cacheA": {Type: "keyvalue", Host: s.Host(), Port: port, Database: "1"},
		"orders": {Type: "relational", Host: "db", Port: 3306, Database: "shop"},
	})
	t.Cleanup(p.Shutdown)

	return &fixture{
		server: NewServer(p, logger.Nop(), reg),
		redis:  s,
		mock:   mock,
	}
}

func (f *fixture) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestCallSetGet(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/v1/call/cacheA/set", CallRequest{Args: []interface{}{"k", "v"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", decode(t, rec)["result"])

	rec = f.do(t, http.MethodPost, "/v1/call/cacheA/get", CallRequest{Args: []interface{}{"k"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "v", decode(t, rec)["result"])

	got, err := f.redis.DB(1).Get("k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)
}

func TestCallIntegerArguments(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/v1/call/cacheA/incrby", CallRequest{Args: []interface{}{"n", 5}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(5), decode(t, rec)["result"])
}

func TestCallUnknownOperationReturnsNull(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/v1/call/cacheA/frobnicate", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	out := decode(t, rec)
	assert.Contains(t, out, "result")
	assert.Nil(t, out["result"])
}

func TestCallUnknownName(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/v1/call/nope/get", CallRequest{Args: []interface{}{"k"}})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, decode(t, rec)["error"], "nope")
}

func TestCallBadBody(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/call/cacheA/get", strings.NewReader("{"))
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestQuery(t *testing.T) {
	f := newFixture(t)

	f.mock.ExpectPrepare("SELECT id, total FROM orders WHERE id = ?").
		ExpectQuery().
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "total"}).AddRow(int64(3), "9.50"))

	rec := f.do(t, http.MethodPost, "/v1/query/orders", QueryRequest{
		SQL:    "SELECT id, total FROM orders WHERE id = :id",
		Params: map[string]interface{}{"id": 3},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var out QueryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, []string{"id", "total"}, out.Columns)
	require.Len(t, out.Rows, 1)
	assert.Equal(t, float64(3), out.Rows[0]["id"])
	assert.Equal(t, "9.50", out.Rows[0]["total"])
}

func TestQueryExec(t *testing.T) {
	f := newFixture(t)

	f.mock.ExpectPrepare("UPDATE orders SET state = ? WHERE id = ?").
		ExpectExec().
		WithArgs("paid", int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	rec := f.do(t, http.MethodPost, "/v1/query/orders", QueryRequest{
		SQL:    "UPDATE orders SET state = :state WHERE id = :id",
		Params: map[string]interface{}{"state": "paid", "id": 3},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var out QueryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, int64(1), out.RowsAffected)
	assert.Empty(t, out.Rows)
}

func TestQueryOnKeyValue(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/v1/query/cacheA", QueryRequest{SQL: "SELECT 1"})
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestQueryRequiresSQL(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/v1/query/orders", QueryRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealth(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decode(t, rec)["status"])

	f.do(t, http.MethodPost, "/v1/call/cacheA/ping", nil)

	rec = f.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	out := decode(t, rec)
	checks := out["checks"].([]interface{})
	require.Len(t, checks, 1)
	assert.Equal(t, "healthy", checks[0].(map[string]interface{})["status"])

	f.redis.Close()
	rec = f.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "unhealthy", decode(t, rec)["status"])
}

func TestConnections(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodPost, "/v1/call/cacheA/ping", nil)

	rec := f.do(t, http.MethodGet, "/v1/connections", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	out := decode(t, rec)
	assert.Equal(t, []interface{}{"cacheA", "orders"}, out["names"])
	assert.Len(t, out["connections"], 1)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodPost, "/v1/call/cacheA/ping", nil)

	rec := f.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "redb_broker_call_duration_seconds")
	assert.Contains(t, rec.Body.String(), "redb_broker_dials_total")
}

func TestNormalizeNumber(t *testing.T) {
	assert.Equal(t, int64(5), normalizeNumber(float64(5)))
	assert.Equal(t, 2.5, normalizeNumber(2.5))
	assert.Equal(t, "x", normalizeNumber("x"))
}

func TestHealthReportsNamesThatNeverConnected(t *testing.T) {
	f := newFixture(t)
	f.redis.Close()

	rec := f.do(t, http.MethodPost, "/v1/call/cacheA/set", CallRequest{Args: []interface{}{"k", "v"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, decode(t, rec)["result"])

	rec = f.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	out := decode(t, rec)
	assert.Equal(t, "unhealthy", out["status"])
	checks := out["checks"].([]interface{})
	require.Len(t, checks, 1)
	check := checks[0].(map[string]interface{})
	assert.Equal(t, "cacheA", check["name"])
	assert.Equal(t, "no usable connection", check["message"])
}
