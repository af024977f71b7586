package executor

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/malbeclabs/genbi/pkg/profile"
)

type postgresQuerier struct {
	pool *pgxpool.Pool
}

// OpenPostgres opens a pgx pool. SQLAlchemy-style schemes such as
// postgresql+psycopg2:// are accepted.
func OpenPostgres(ctx context.Context, conn profile.Connection) (Querier, error) {
	pool, err := pgxpool.New(ctx, normalizePostgresURL(conn.URL))
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres pool: %w", err)
	}
	return &postgresQuerier{pool: pool}, nil
}

func normalizePostgresURL(url string) string {
	scheme, rest, ok := strings.Cut(url, "://")
	if !ok {
		return url
	}
	if base, _, found := strings.Cut(scheme, "+"); found {
		scheme = base
	}
	return scheme + "://" + rest
}

func (q *postgresQuerier) Query(ctx context.Context, sql string, maxRows int) ([]string, [][]any, error) {
	rows, err := q.pool.Query(ctx, sql)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	columns := make([]string, len(fields))
	for i, f := range fields {
		columns[i] = f.Name
	}

	out := [][]any{}
	for rows.Next() {
		if len(out) >= maxRows {
			break
		}
		values, err := rows.Values()
		if err != nil {
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

func (q *postgresQuerier) Close() error {
	q.pool.Close()
	return nil
}
