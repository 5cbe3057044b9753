// Package db provides database connection helpers.
package db

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgxpool"
)

// connectBudget bounds how long startup keeps retrying an unreachable backend.
const connectBudget = 30 * time.Second

// NewPostgresPool creates and verifies a pgxpool connection pool.
// The ping is retried with exponential backoff so the service survives a
// database that is still starting up.
func NewPostgresPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}

	if err := retry(ctx, func() error { return pool.Ping(ctx) }); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}

	return pool, nil
}

// retry runs op with exponential backoff until it succeeds, ctx ends, or
// connectBudget elapses.
func retry(ctx context.Context, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.MaxElapsedTime = connectBudget
	return backoff.Retry(op, backoff.WithContext(b, ctx))
}
