package executor

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/malbeclabs/genbi/pkg/profile"
)

type sqlQuerier struct {
	db *sql.DB
}

// OpenDuckDB opens a DuckDB database file. duckdb:///path, a bare path and
// :memory: are accepted; an empty path is an in-memory database.
func OpenDuckDB(ctx context.Context, conn profile.Connection) (Querier, error) {
	path := duckDBPath(conn.URL)
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open DuckDB: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping DuckDB: %w", err)
	}
	return &sqlQuerier{db: db}, nil
}

func duckDBPath(url string) string {
	if url == ":memory:" {
		return ""
	}
	if rest, ok := strings.CutPrefix(url, "duckdb://"); ok {
		return rest
	}
	return url
}

func (q *sqlQuerier) Query(ctx context.Context, query string, maxRows int) ([]string, [][]any, error) {
	rows, err := q.db.QueryContext(ctx, query)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, nil, err
	}

	out := [][]any{}
	for rows.Next() {
		if len(out) >= maxRows {
			break
		}
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, nil, err
		}
		for i, v := range values {
			values[i] = normalizeValue(v)
		}
		out = append(out, values)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	return columns, out, nil
}

func (q *sqlQuerier) Close() error {
	return q.db.Close()
}
