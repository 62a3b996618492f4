package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/evms/internal/model"
)

// TokenRepo keeps the digests of issued refresh tokens so they can be
// rotated and revoked.
type TokenRepo struct{ DB *sql.DB }

func NewTokenRepo(db *sql.DB) *TokenRepo { return &TokenRepo{DB: db} }

func storeRefresh(ctx context.Context, q querier, t *model.RefreshToken) error {
	res, err := q.ExecContext(ctx,
		"INSERT INTO refresh_tokens (user_id, token_hash, expires_at) VALUES (?,?,?)",
		t.UserID, t.TokenHash, t.ExpiresAt.UTC())
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	t.ID = uint64(id)
	return nil
}

// Store inserts a refresh token row.
func (r *TokenRepo) Store(ctx context.Context, t *model.RefreshToken) error {
	return storeRefresh(ctx, r.DB, t)
}

// FindActive returns the token row for hash when it is neither revoked nor
// expired at now.
func (r *TokenRepo) FindActive(ctx context.Context, hash string, now time.Time) (*model.RefreshToken, error) {
	var (
		t       model.RefreshToken
		revoked sql.NullTime
	)
	err := r.DB.QueryRowContext(ctx,
		"SELECT id, user_id, token_hash, expires_at, revoked_at, created_at FROM refresh_tokens WHERE token_hash = ? LIMIT 1",
		hash).Scan(&t.ID, &t.UserID, &t.TokenHash, &t.ExpiresAt, &revoked, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	t.RevokedAt = timePtr(revoked)
	if t.RevokedAt != nil || !now.UTC().Before(t.ExpiresAt) {
		return nil, ErrNotFound
	}
	return &t, nil
}

// Rotate revokes oldHash and stores next in one transaction.  If oldHash
// was already revoked by a concurrent call ErrNotFound is returned and
// nothing is stored.
func (r *TokenRepo) Rotate(ctx context.Context, oldHash string, next *model.RefreshToken) error {
	return withTx(ctx, r.DB, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			"UPDATE refresh_tokens SET revoked_at = UTC_TIMESTAMP() WHERE token_hash = ? AND revoked_at IS NULL",
			oldHash)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		return storeRefresh(ctx, tx, next)
	})
}

// Revoke marks one token as revoked.
func (r *TokenRepo) Revoke(ctx context.Context, hash string) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked_at = UTC_TIMESTAMP() WHERE token_hash = ? AND revoked_at IS NULL",
		hash)
	return err
}

// RevokeAll revokes every active token of a user.
func (r *TokenRepo) RevokeAll(ctx context.Context, userID uint64) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked_at = UTC_TIMESTAMP() WHERE user_id = ? AND revoked_at IS NULL",
		userID)
	return err
}
