package relational

import (
	"fmt"

	"github.com/jmoiron/sqlx"
)

// fetchMaps drains rows into column-name keyed maps. Text and blob columns
// arrive from the drivers as []byte and are returned as strings; NULL stays
// nil.
func fetchMaps(rows *sqlx.Rows) ([]map[string]interface{}, error) {
	result := make([]map[string]interface{}, 0)
	for rows.Next() {
		row := make(map[string]interface{})
		if err := rows.MapScan(row); err != nil {
			return nil, fmt.Errorf("error scanning row %d: %w", len(result)+1, err)
		}
		for name, v := range row {
			if b, ok := v.([]byte); ok {
				row[name] = string(b)
			}
		}
		result = append(result, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return result, nil
}
