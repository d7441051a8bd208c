package relational

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redbco/redb-broker/pkg/adapter"
)

func TestBind(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		params   map[string]interface{}
		driver   string
		want     string
		wantArgs []interface{}
	}{
		{
			name:     "question mark",
			query:    "SELECT * FROM t WHERE id = :id AND name = :name",
			params:   map[string]interface{}{"id": 42, "name": "x"},
			driver:   "mysql",
			want:     "SELECT * FROM t WHERE id = ? AND name = ?",
			wantArgs: []interface{}{42, "x"},
		},
		{
			name:     "dollar numbering follows occurrence",
			query:    "UPDATE t SET a = :a WHERE b = :b OR c = :a",
			params:   map[string]interface{}{"a": 1, "b": 2},
			driver:   "postgres",
			want:     "UPDATE t SET a = $1 WHERE b = $2 OR c = $3",
			wantArgs: []interface{}{1, 2, 1},
		},
		{
			name:     "keys with colon prefix",
			query:    "SELECT :v",
			params:   map[string]interface{}{":v": "ok"},
			driver:   "mysql",
			want:     "SELECT ?",
			wantArgs: []interface{}{"ok"},
		},
		{
			name:     "cast directly after parameter",
			query:    "SELECT :ts::timestamp",
			params:   map[string]interface{}{"ts": "2024-01-01"},
			driver:   "postgres",
			want:     "SELECT $1::timestamp",
			wantArgs: []interface{}{"2024-01-01"},
		},
		{
			name:     "cast on literal",
			query:    "SELECT '1'::int + :n",
			params:   map[string]interface{}{"n": 2},
			driver:   "postgres",
			want:     "SELECT '1'::int + $1",
			wantArgs: []interface{}{2},
		},
		{
			name:   "no placeholders",
			query:  "SELECT 1",
			driver: "mysql",
			want:   "SELECT 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, args, err := Bind(tt.query, tt.params, tt.driver)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			if len(tt.wantArgs) == 0 {
				assert.Empty(t, args)
			} else {
				assert.Equal(t, tt.wantArgs, args)
			}
		})
	}
}

func TestBindMissingParameter(t *testing.T) {
	_, _, err := Bind("SELECT * FROM t WHERE id = :id", map[string]interface{}{"other": 1}, "mysql")
	require.Error(t, err)
	assert.True(t, errors.Is(err, adapter.ErrMissingParameter))
	assert.Contains(t, err.Error(), "id")
}

func TestReturnsRows(t *testing.T) {
	assert.True(t, returnsRows("select 1"))
	assert.True(t, returnsRows("  (SELECT 1) UNION (SELECT 2)"))
	assert.True(t, returnsRows("WITH x AS (SELECT 1) SELECT * FROM x"))
	assert.True(t, returnsRows("SHOW TABLES"))
	assert.True(t, returnsRows("INSERT INTO t (a) VALUES ($1) RETURNING id"))
	assert.False(t, returnsRows("INSERT INTO t (a) VALUES (?)"))
	assert.False(t, returnsRows("UPDATE t SET a = 1"))
	assert.False(t, returnsRows("selector_update()"))
}
