// Package executor runs generated SQL against the database behind a profile and
// reports the outcome as a status code rather than an error.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/jonboulle/clockwork"
	"github.com/malbeclabs/genbi/pkg/profile"
)

const (
	defaultIdleTTL = 30 * time.Minute
	defaultMaxRows = 10_000
)

// Querier runs queries against one database.
type Querier interface {
	Query(ctx context.Context, sql string, maxRows int) (columns []string, rows [][]any, err error)
	Close() error
}

// Opener opens a Querier for a connection.
type Opener func(ctx context.Context, conn profile.Connection) (Querier, error)

// DefaultOpeners returns the openers for every supported dialect.
func DefaultOpeners() map[string]Opener {
	return map[string]Opener{
		profile.DialectPostgreSQL: OpenPostgres,
		profile.DialectClickHouse: OpenClickHouse,
		profile.DialectDuckDB:     OpenDuckDB,
	}
}

type Config struct {
	Logger *slog.Logger

	// Optional configuration.
	Openers map[string]Opener
	IdleTTL time.Duration
	MaxRows int
	Clock   clockwork.Clock
}

func (c *Config) Validate() error {
	if c.Logger == nil {
		return errors.New("logger is required")
	}
	if c.Openers == nil {
		c.Openers = DefaultOpeners()
	}
	if c.IdleTTL <= 0 {
		c.IdleTTL = defaultIdleTTL
	}
	if c.MaxRows <= 0 {
		c.MaxRows = defaultMaxRows
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	return nil
}

// Executor keeps one Querier per connection URL, closing those idle for longer
// than IdleTTL.
type Executor struct {
	log   *slog.Logger
	cfg   Config
	cache *ttlcache.Cache[string, Querier]

	closeOnce sync.Once
}

func New(cfg Config) (*Executor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log := cfg.Logger
	cache := ttlcache.New(
		ttlcache.WithTTL[string, Querier](cfg.IdleTTL),
	)
	cache.OnEviction(func(ctx context.Context, reason ttlcache.EvictionReason, item *ttlcache.Item[string, Querier]) {
		OpenConnections.Dec()
		if err := item.Value().Close(); err != nil {
			log.Warn("executor: failed to close connection", "error", err)
		}
	})
	go cache.Start()

	return &Executor{
		log:   log,
		cfg:   cfg,
		cache: cache,
	}, nil
}

// Close stops the idle sweeper and closes every cached connection.
func (e *Executor) Close() {
	e.closeOnce.Do(func() {
		e.cache.Stop()
		e.cache.DeleteAll()
	})
}

// Execute runs sql and never returns an error: failures have StatusCode 500.
func (e *Executor) Execute(ctx context.Context, conn profile.Connection, sql string) (result Result) {
	sql = strings.TrimSpace(sql)
	start := e.cfg.Clock.Now()
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("executor: panic during execution", "panic", r)
			result = failure(sql, fmt.Errorf("panic: %v", r))
		}
		ExecutionDuration.WithLabelValues(conn.Dialect).Observe(e.cfg.Clock.Since(start).Seconds())
		ExecutionsTotal.WithLabelValues(conn.Dialect, strconv.Itoa(result.StatusCode)).Inc()
	}()

	if sql == "" {
		return failure(sql, errors.New("empty SQL statement"))
	}

	q, err := e.querier(ctx, conn)
	if err != nil {
		e.log.Warn("executor: failed to open connection", "dialect", conn.Dialect, "error", err)
		return failure(sql, err)
	}

	columns, rows, err := q.Query(ctx, sql, e.cfg.MaxRows)
	if err != nil {
		e.log.Info("executor: query returned error", "dialect", conn.Dialect, "error", err)
		return failure(sql, err)
	}
	e.log.Debug("executor: query executed", "dialect", conn.Dialect, "rows", len(rows))

	return Result{
		StatusCode: StatusOK,
		SQL:        sql,
		Columns:    columns,
		Rows:       rows,
	}
}

func (e *Executor) querier(ctx context.Context, conn profile.Connection) (Querier, error) {
	key := conn.Dialect + "|" + conn.URL
	if item := e.cache.Get(key); item != nil {
		return item.Value(), nil
	}

	open, ok := e.cfg.Openers[conn.Dialect]
	if !ok {
		return nil, fmt.Errorf("unsupported dialect %q", conn.Dialect)
	}
	q, err := open(ctx, conn)
	if err != nil {
		return nil, err
	}

	// Another request may have opened the same connection meanwhile; keep one.
	item, loaded := e.cache.GetOrSet(key, q)
	if loaded {
		_ = q.Close()
		return item.Value(), nil
	}
	OpenConnections.Inc()
	return q, nil
}

func failure(sql string, err error) Result {
	return Result{
		StatusCode: StatusError,
		SQL:        sql,
		Error:      err.Error(),
	}
}
