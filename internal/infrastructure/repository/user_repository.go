package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sourcehub/sourcehub/internal/domain"
	"go.uber.org/zap"
)

const (
	selectUserByLoginQuery = `
SELECT id, username, email, password_hash, created_at
FROM users
WHERE username = $1 OR email = $1;`

	selectUserByIdQuery = `
SELECT id, username, email, password_hash, created_at
FROM users
WHERE id = $1;`

	// Tokens are stored as SHA-256 digests of the raw value.
	selectUserByTokenQuery = `
SELECT u.id, u.username, u.email, u.password_hash, u.created_at
FROM access_tokens t
JOIN users u ON u.id = t.user_id
WHERE t.token_digest = $1
  AND (t.expires_at IS NULL OR t.expires_at > CURRENT_TIMESTAMP);`
)

type UserRepository struct {
	db  *pgxpool.Pool
	log *zap.Logger
}

func NewUserRepository(db *pgxpool.Pool, log *zap.Logger) *UserRepository {
	return &UserRepository{
		db:  db,
		log: log,
	}
}

func (r *UserRepository) GetByLogin(ctx context.Context, usernameOrEmail string) (*domain.User, error) {
	return scanUser(r.db.QueryRow(ctx, selectUserByLoginQuery, usernameOrEmail))
}

func (r *UserRepository) GetById(ctx context.Context, userId string) (*domain.User, error) {
	return scanUser(r.db.QueryRow(ctx, selectUserByIdQuery, userId))
}

func (r *UserRepository) GetByTokenDigest(ctx context.Context, digest string) (*domain.User, error) {
	return scanUser(r.db.QueryRow(ctx, selectUserByTokenQuery, digest))
}

func scanUser(row rowScanner) (*domain.User, error) {
	u := &domain.User{}
	err := row.Scan(&u.Id, &u.Username, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if err != nil {
		return nil, handleDBError(err)
	}
	return u, nil
}
