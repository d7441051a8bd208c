package relational

import (
	"errors"

	"github.com/jmoiron/sqlx"
)

// Statement is an executed prepared statement. For queries it holds the open
// result set; Close releases the rows and the prepared statement.
type Statement struct {
	stmt     *sqlx.Stmt
	rows     *sqlx.Rows
	affected int64
	lastID   int64
}

// Columns returns the result columns, nil for statements without rows.
func (s *Statement) Columns() []string {
	if s.rows == nil {
		return nil
	}
	cols, err := s.rows.Columns()
	if err != nil {
		return nil
	}
	return cols
}

// Fetch reads the remaining rows as column-name keyed maps.
func (s *Statement) Fetch() ([]map[string]interface{}, error) {
	if s.rows == nil {
		return []map[string]interface{}{}, nil
	}
	return fetchMaps(s.rows)
}

// RowsAffected reports rows changed by a statement without a result set.
func (s *Statement) RowsAffected() int64 {
	return s.affected
}

// LastInsertID reports the generated id, when the driver provides one.
func (s *Statement) LastInsertID() int64 {
	return s.lastID
}

// Close releases the result set and the prepared statement.
func (s *Statement) Close() error {
	var errs []error
	if s.rows != nil {
		errs = append(errs, s.rows.Close())
	}
	if s.stmt != nil {
		errs = append(errs, s.stmt.Close())
	}
	return errors.Join(errs...)
}
