package executor

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/malbeclabs/genbi/pkg/profile"
)

type clickhouseQuerier struct {
	conn driver.Conn
}

// OpenClickHouse opens a native-protocol connection from a clickhouse:// DSN.
func OpenClickHouse(ctx context.Context, conn profile.Connection) (Querier, error) {
	options, err := clickhouse.ParseDSN(conn.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse ClickHouse DSN: %w", err)
	}
	if options.DialTimeout == 0 {
		options.DialTimeout = 5 * time.Second
	}
	if options.Settings == nil {
		options.Settings = clickhouse.Settings{}
	}
	if _, ok := options.Settings["max_execution_time"]; !ok {
		options.Settings["max_execution_time"] = 60
	}
	// Generated SQL is read-only.
	options.Settings["readonly"] = 2

	c, err := clickhouse.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to open ClickHouse connection: %w", err)
	}
	return &clickhouseQuerier{conn: c}, nil
}

func (q *clickhouseQuerier) Query(ctx context.Context, sql string, maxRows int) ([]string, [][]any, error) {
	rows, err := q.conn.Query(ctx, sql)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	columns := rows.Columns()
	types := rows.ColumnTypes()

	out := [][]any{}
	for rows.Next() {
		if len(out) >= maxRows {
			break
		}
		dest := make([]any, len(types))
		for i, ct := range types {
			dest[i] = reflect.New(ct.ScanType()).Interface()
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, nil, err
		}
		row := make([]any, len(dest))
		for i, d := range dest {
			row[i] = normalizeValue(reflect.ValueOf(d).Elem().Interface())
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	return columns, out, nil
}

func (q *clickhouseQuerier) Close() error {
	return q.conn.Close()
}
