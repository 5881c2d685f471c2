package db

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

const (
	defaultConnLifetime = time.Hour
	defaultConnIdleTime = 30 * time.Minute
	defaultPingTimeout  = 5 * time.Second
)

// PoolOptions bounds the connection pool. Zero values fall back to a small pool suited
// for an agent that only touches configuration rows.
type PoolOptions struct {
	MaxOpenConns int
	MaxIdleConns int
}

// NewPostgresDB creates a pgx/stdlib backed *sql.DB pool and validates the connection.
func NewPostgresDB(dsn string, opts PoolOptions) (*sql.DB, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("db: empty DSN")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}

	if opts.MaxOpenConns <= 0 {
		opts.MaxOpenConns = 2
	}
	if opts.MaxIdleConns <= 0 || opts.MaxIdleConns > opts.MaxOpenConns {
		opts.MaxIdleConns = opts.MaxOpenConns
	}

	db.SetMaxOpenConns(opts.MaxOpenConns)
	db.SetMaxIdleConns(opts.MaxIdleConns)
	db.SetConnMaxLifetime(defaultConnLifetime)
	db.SetConnMaxIdleTime(defaultConnIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), defaultPingTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}
