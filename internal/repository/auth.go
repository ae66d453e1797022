package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/souq-labs/souq-api/internal/domain/auth"
)

const getTokenByHashSQL = `SELECT user_id, token_hash, role
	FROM auth_tokens WHERE token_hash = $1 AND active = TRUE`

var _ auth.Repository = (*TokenRepository)(nil)

// TokenRepository provides bearer token lookups backed by PostgreSQL.
type TokenRepository struct {
	pool *pgxpool.Pool
}

// NewTokenRepository returns a TokenRepository that uses the given pool.
func NewTokenRepository(pool *pgxpool.Pool) *TokenRepository {
	return &TokenRepository{pool: pool}
}

// FindByTokenHash looks up an active token by its HMAC-SHA256 hash.
func (r *TokenRepository) FindByTokenHash(ctx context.Context, hash string) (*auth.TokenInfo, error) {
	var info auth.TokenInfo
	err := r.pool.QueryRow(ctx, getTokenByHashSQL, hash).Scan(
		&info.UserID, &info.TokenHash, &info.Role,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, auth.ErrUnauthorized
		}
		return nil, fmt.Errorf("finding token by hash: %w", err)
	}
	return &info, nil
}
