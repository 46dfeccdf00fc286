package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	_ "github.com/jackc/pgx/v5/stdlib"
)

type Options struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	ConnectAttempts int
}

// Open creates the pgx-backed pool and waits until Postgres answers a ping.
func Open(ctx context.Context, opts Options) (*sql.DB, error) {
	database, err := sql.Open("pgx", opts.URL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	database.SetMaxOpenConns(opts.MaxOpenConns)
	database.SetMaxIdleConns(opts.MaxIdleConns)
	database.SetConnMaxLifetime(opts.ConnMaxLifetime)
	database.SetConnMaxIdleTime(opts.ConnMaxIdleTime)

	if err := Ping(ctx, database, opts.ConnectAttempts, nil); err != nil {
		_ = database.Close()
		return nil, err
	}

	return database, nil
}

// Ping retries with exponential backoff so cold starts survive a database
// that is still booting.
func Ping(ctx context.Context, database *sql.DB, attempts int, notify func(error, time.Duration)) error {
	if attempts <= 0 {
		attempts = 1
	}

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = 200 * time.Millisecond
	expBackoff.MaxInterval = 5 * time.Second

	retryOpts := []backoff.RetryOption{
		backoff.WithBackOff(expBackoff),
		backoff.WithMaxTries(uint(attempts)), // #nosec G115 -- attempts is positive
	}
	if notify != nil {
		retryOpts = append(retryOpts, backoff.WithNotify(notify))
	}

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return struct{}{}, database.PingContext(pingCtx)
	}, retryOpts...)
	if err != nil {
		return fmt.Errorf("ping database: %w", err)
	}

	return nil
}
