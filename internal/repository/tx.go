package repository

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/souq-labs/souq-api/internal/domain/order"
)

const (
	defaultMaxRetries     = 3
	defaultInitialBackoff = 50 * time.Millisecond
)

var _ order.Store = (*Store)(nil)

// Store runs business transactions against PostgreSQL. Serialization
// failures and deadlocks are retried with exponential backoff and jitter;
// everything else aborts immediately.
type Store struct {
	pool       *pgxpool.Pool
	maxRetries int
}

// NewStore returns a Store that uses the given pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, maxRetries: defaultMaxRetries}
}

// InTx executes fn inside a single transaction. The transaction commits
// only when fn returns nil; any error rolls every staged mutation back.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx order.Tx) error) error {
	backoff := defaultInitialBackoff

	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
			return fn(ctx, &storeTx{tx: tx})
		})
		if err == nil {
			return nil
		}
		if !retryable(err) {
			return err
		}
		if attempt == s.maxRetries {
			return fmt.Errorf("max retries (%d) exceeded: %w", s.maxRetries, err)
		}

		jitter := time.Duration(rand.Int63n(int64(backoff / 4)))
		select {
		case <-time.After(backoff + jitter):
		case <-ctx.Done():
			return ctx.Err()
		}
		backoff *= 2
	}
}

// retryable reports whether the error is a transient concurrency conflict:
// serialization_failure (40001) or deadlock_detected (40P01).
func retryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}
