package relational

import (
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/redbco/redb-broker/pkg/adapter"
)

// castMarker stands in for :: casts while sqlx compiles the named query,
// which would otherwise read them as an escaped colon.
const castMarker = "\x00\x00"

// Bind rewrites :name placeholders into the positional syntax of driver
// (? for MySQL, $n for PostgreSQL) and returns the values in binding order.
// Parameter keys may be given with or without the leading colon.
func Bind(query string, params map[string]interface{}, driver string) (string, []interface{}, error) {
	values := make(map[string]interface{}, len(params))
	for k, v := range params {
		values[strings.TrimPrefix(k, ":")] = v
	}

	named, args, err := sqlx.Named(strings.ReplaceAll(query, "::", castMarker), values)
	if err != nil {
		if strings.Contains(err.Error(), "could not find name") {
			return "", nil, fmt.Errorf("%w: %v", adapter.ErrMissingParameter, err)
		}
		return "", nil, fmt.Errorf("failed to bind parameters: %w", err)
	}

	bound := sqlx.Rebind(sqlx.BindType(driver), named)
	return strings.ReplaceAll(bound, castMarker, "::"), args, nil
}
