package profile

import (
	"fmt"
	"log/slog"

	"github.com/jellydator/ttlcache/v3"
)

// ConnectionLookup resolves a named connection to its URL and dialect.
type ConnectionLookup interface {
	LookupConnection(name string) (Connection, error)
}

// Resolver turns a profile into a concrete connection. Profiles with a deferred
// db_url are resolved through the lookup once and cached for the process lifetime.
type Resolver struct {
	log    *slog.Logger
	lookup ConnectionLookup
	cache  *ttlcache.Cache[string, Connection]
}

func NewResolver(log *slog.Logger, lookup ConnectionLookup) *Resolver {
	return &Resolver{
		log:    log,
		lookup: lookup,
		cache: ttlcache.New(
			ttlcache.WithDisableTouchOnHit[string, Connection](),
		),
	}
}

func (r *Resolver) Resolve(p Profile) (Connection, error) {
	if p.DBURL != "" {
		dialect := p.DBType
		if dialect == "" {
			dialect = DialectFromURL(p.DBURL)
		}
		return Connection{Name: p.ConnName, URL: p.DBURL, Dialect: dialect}, nil
	}

	if item := r.cache.Get(p.Name); item != nil {
		return item.Value(), nil
	}

	// Concurrent misses may both look up; they compute the same value.
	conn, err := r.lookup.LookupConnection(p.ConnName)
	if err != nil {
		return Connection{}, fmt.Errorf("failed to resolve connection for profile %s: %w", p.Name, err)
	}
	if conn.Dialect == "" {
		conn.Dialect = DialectFromURL(conn.URL)
	}
	if p.DBType != "" {
		conn.Dialect = p.DBType
	}
	r.cache.Set(p.Name, conn, ttlcache.NoTTL)
	if r.log != nil {
		r.log.Debug("profile: resolved deferred connection", "profile", p.Name, "connection", p.ConnName, "dialect", conn.Dialect)
	}
	return conn, nil
}
