package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/averycrane/gatehouse/internal/database"
	"github.com/averycrane/gatehouse/internal/models"
	"github.com/google/uuid"
)

type RefreshTokenRepository struct {
	db *database.DB
}

func NewRefreshTokenRepository(db *database.DB) *RefreshTokenRepository {
	return &RefreshTokenRepository{db: db}
}

const refreshTokenColumns = `id, user_id, token_hash, expires_at, revoked_at, last_used_at,
		ip_address, user_agent, created_at`

func scanRefreshTokenRow(scanner rowScanner) (*models.RefreshToken, error) {
	var token models.RefreshToken
	var ipAddress, userAgent *string

	err := scanner.Scan(
		&token.ID, &token.UserID, &token.TokenHash, &token.ExpiresAt,
		&token.RevokedAt, &token.LastUsedAt, &ipAddress, &userAgent, &token.CreatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	if ipAddress != nil {
		token.IPAddress = *ipAddress
	}
	if userAgent != nil {
		token.UserAgent = *userAgent
	}

	return &token, nil
}

func (r *RefreshTokenRepository) Create(ctx context.Context, token *models.RefreshToken) (*models.RefreshToken, error) {
	if token.ID == "" {
		token.ID = uuid.New().String()
	}
	token.CreatedAt = time.Now()

	query := `
		INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at, ip_address, user_agent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING ` + refreshTokenColumns

	return scanRefreshTokenRow(r.db.Conn(ctx).QueryRow(ctx, query,
		token.ID, token.UserID, token.TokenHash, token.ExpiresAt,
		nullable(token.IPAddress), nullable(token.UserAgent), token.CreatedAt,
	))
}

func (r *RefreshTokenRepository) GetByID(ctx context.Context, id string) (*models.RefreshToken, error) {
	query := `SELECT ` + refreshTokenColumns + ` FROM refresh_tokens WHERE id = $1`
	return scanRefreshTokenRow(r.db.Conn(ctx).QueryRow(ctx, query, id))
}

// Revoke tombstones a token. The conditional update makes revocation
// first-writer-wins: concurrent rotations of the same token see exactly one
// winner. Returns false when the token was already revoked.
func (r *RefreshTokenRepository) Revoke(ctx context.Context, id string, revokedAt time.Time) (bool, error) {
	query := `UPDATE refresh_tokens SET revoked_at = $2 WHERE id = $1 AND revoked_at IS NULL`

	result, err := r.db.Conn(ctx).Exec(ctx, query, id, revokedAt)
	if err != nil {
		return false, database.MapPostgresError(err)
	}
	return result.RowsAffected() > 0, nil
}

// RevokeAllForUser tombstones every live token for the user and returns the
// count. Used by logout-all, password change and account deactivation.
func (r *RefreshTokenRepository) RevokeAllForUser(ctx context.Context, userID string, revokedAt time.Time) (int64, error) {
	query := `UPDATE refresh_tokens SET revoked_at = $2 WHERE user_id = $1 AND revoked_at IS NULL`

	result, err := r.db.Conn(ctx).Exec(ctx, query, userID, revokedAt)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return result.RowsAffected(), nil
}

// TouchLastUsed records usage without failing the caller's flow on error.
func (r *RefreshTokenRepository) TouchLastUsed(ctx context.Context, id string, usedAt time.Time) error {
	query := `UPDATE refresh_tokens SET last_used_at = $2 WHERE id = $1`

	_, err := r.db.Conn(ctx).Exec(ctx, query, id, usedAt)
	if err != nil {
		return database.MapPostgresError(err)
	}
	return nil
}

// DeleteExpiredBefore removes rows whose expiry is older than cutoff. Revoked
// but unexpired rows are kept so reuse of a rotated token stays detectable.
func (r *RefreshTokenRepository) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM refresh_tokens WHERE expires_at < $1`

	result, err := r.db.Conn(ctx).Exec(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired refresh tokens: %w", err)
	}
	return result.RowsAffected(), nil
}
