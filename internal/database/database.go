package database

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// DB is the session store: sessions, their speaker chunks and result documents.
type DB struct {
	Pool        *pgxpool.Pool
	pingTimeout time.Duration
	log         zerolog.Logger
}

// PoolOptions sizes the connection pool. Zero values fall back to defaults.
type PoolOptions struct {
	MaxConns    int
	MinConns    int
	PingTimeout time.Duration
}

const (
	defaultMaxConns    = 10
	defaultPingTimeout = 2 * time.Second
)

// poolConfig parses the DSN and applies pool sizing. MinConns is clamped to
// MaxConns so a worker count change cannot produce an invalid pool.
func poolConfig(databaseURL string, opts PoolOptions) (*pgxpool.Config, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	maxConns := opts.MaxConns
	if maxConns <= 0 {
		maxConns = defaultMaxConns
	}
	minConns := max(0, min(opts.MinConns, maxConns))
	cfg.MaxConns = int32(maxConns)
	cfg.MinConns = int32(minConns)
	cfg.ConnConfig.RuntimeParams["application_name"] = "intelliscript"
	return cfg, nil
}

// Connect opens the pool and verifies the server answers within the ping timeout.
func Connect(ctx context.Context, databaseURL string, opts PoolOptions, log zerolog.Logger) (*DB, error) {
	cfg, err := poolConfig(databaseURL, opts)
	if err != nil {
		return nil, err
	}
	pingTimeout := opts.PingTimeout
	if pingTimeout <= 0 {
		pingTimeout = defaultPingTimeout
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	db := &DB{Pool: pool, pingTimeout: pingTimeout, log: log}
	if err := db.HealthCheck(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping %s: %w", maskDSN(databaseURL), err)
	}

	log.Info().
		Str("url", maskDSN(databaseURL)).
		Int32("max_conns", cfg.MaxConns).
		Int32("min_conns", cfg.MinConns).
		Dur("ping_timeout", pingTimeout).
		Msg("session store connected")
	return db, nil
}

// HealthCheck pings the server, bounded by the configured ping timeout.
func (db *DB) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, db.pingTimeout)
	defer cancel()
	return db.Pool.Ping(ctx)
}

func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		if _, hasPass := u.User.Password(); hasPass {
			u.User = url.UserPassword(u.User.Username(), "***")
		}
	}
	return u.String()
}

func (db *DB) Close() {
	db.log.Info().Msg("closing session store pool")
	db.Pool.Close()
}
