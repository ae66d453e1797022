package repository

import (
	"fmt"
	"testing"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestRetryable(t *testing.T) {
	assert.True(t, retryable(&pgconn.PgError{Code: "40001"}), "serialization failure")
	assert.True(t, retryable(&pgconn.PgError{Code: "40P01"}), "deadlock")
	assert.True(t, retryable(fmt.Errorf("in tx: %w", &pgconn.PgError{Code: "40001"})))

	assert.False(t, retryable(&pgconn.PgError{Code: "23505"}), "unique violation is not transient")
	assert.False(t, retryable(errors.New("connection refused")))
	assert.False(t, retryable(nil))
}
