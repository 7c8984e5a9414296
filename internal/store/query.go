package store

import (
	"context"
	"strings"

	"github.com/xtxerr/lenedastat/internal/errors"
)

// QueryResult holds the rows of an ad-hoc query in column order.
type QueryResult struct {
	Columns []string
	Rows    [][]interface{}
}

// ExecSQL runs an operator query. Statements that return no rows report
// the affected row count in a single "rows_affected" column.
func (s *Store) ExecSQL(ctx context.Context, query string) (*QueryResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.NewMissingField("query")
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if !returnsRows(query) {
		res, err := s.db.ExecContext(ctx, query)
		if err != nil {
			return nil, dbErr("exec", err)
		}
		n, _ := res.RowsAffected()
		return &QueryResult{Columns: []string{"rows_affected"}, Rows: [][]interface{}{{n}}}, nil
	}

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, dbErr("query", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, dbErr("columns", err)
	}

	result := &QueryResult{Columns: columns}
	for rows.Next() {
		values := make([]interface{}, len(columns))
		ptrs := make([]interface{}, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, dbErr("scan", err)
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		result.Rows = append(result.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, dbErr("iterate", err)
	}
	return result, nil
}

// Maps returns the rows keyed by column name.
func (r *QueryResult) Maps() []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(r.Rows))
	for _, row := range r.Rows {
		m := make(map[string]interface{}, len(r.Columns))
		for i, col := range r.Columns {
			m[col] = row[i]
		}
		out = append(out, m)
	}
	return out
}

func returnsRows(query string) bool {
	fields := strings.Fields(strings.ToUpper(query))
	if len(fields) == 0 {
		return false
	}
	switch fields[0] {
	case "SELECT", "WITH", "SHOW", "DESCRIBE", "EXPLAIN", "PRAGMA", "VALUES", "SUMMARIZE", "FROM", "TABLE":
		return true
	}
	return false
}
