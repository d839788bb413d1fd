package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/averycrane/gatehouse/internal/database"
	"github.com/averycrane/gatehouse/internal/models"
	"github.com/google/uuid"
)

type VerificationTokenRepository struct {
	db *database.DB
}

func NewVerificationTokenRepository(db *database.DB) *VerificationTokenRepository {
	return &VerificationTokenRepository{db: db}
}

const verificationTokenColumns = `id, user_id, token_type, token_hash, email, expires_at, used_at, created_at`

func scanVerificationTokenRow(scanner rowScanner) (*models.VerificationToken, error) {
	var token models.VerificationToken
	var email *string

	err := scanner.Scan(
		&token.ID, &token.UserID, &token.TokenType, &token.TokenHash,
		&email, &token.ExpiresAt, &token.UsedAt, &token.CreatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	if email != nil {
		token.Email = *email
	}

	return &token, nil
}

func (r *VerificationTokenRepository) Create(ctx context.Context, token *models.VerificationToken) (*models.VerificationToken, error) {
	if token.ID == "" {
		token.ID = uuid.New().String()
	}
	token.CreatedAt = time.Now()

	query := `
		INSERT INTO verification_tokens (id, user_id, token_type, token_hash, email, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING ` + verificationTokenColumns

	return scanVerificationTokenRow(r.db.Conn(ctx).QueryRow(ctx, query,
		token.ID, token.UserID, token.TokenType, token.TokenHash,
		nullable(token.Email), token.ExpiresAt, token.CreatedAt,
	))
}

func (r *VerificationTokenRepository) GetByID(ctx context.Context, id string) (*models.VerificationToken, error) {
	query := `SELECT ` + verificationTokenColumns + ` FROM verification_tokens WHERE id = $1`
	return scanVerificationTokenRow(r.db.Conn(ctx).QueryRow(ctx, query, id))
}

// MarkUsed consumes a token. The conditional update guarantees at most one
// consumer wins under concurrent submissions of the same token. Returns false
// when the token was already used.
func (r *VerificationTokenRepository) MarkUsed(ctx context.Context, id string, usedAt time.Time) (bool, error) {
	query := `UPDATE verification_tokens SET used_at = $2 WHERE id = $1 AND used_at IS NULL`

	result, err := r.db.Conn(ctx).Exec(ctx, query, id, usedAt)
	if err != nil {
		return false, database.MapPostgresError(err)
	}
	return result.RowsAffected() > 0, nil
}

// InvalidateActiveForUser consumes every live token of one type for a user.
// Issuing a replacement token calls this first, so only the newest link works.
func (r *VerificationTokenRepository) InvalidateActiveForUser(ctx context.Context, userID string, tokenType models.VerificationTokenType, usedAt time.Time) (int64, error) {
	query := `
		UPDATE verification_tokens SET used_at = $3
		WHERE user_id = $1 AND token_type = $2 AND used_at IS NULL
	`

	result, err := r.db.Conn(ctx).Exec(ctx, query, userID, tokenType, usedAt)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return result.RowsAffected(), nil
}

// DeleteExpiredBefore removes dead rows during background cleanup.
func (r *VerificationTokenRepository) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM verification_tokens WHERE expires_at < $1`

	result, err := r.db.Conn(ctx).Exec(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired verification tokens: %w", err)
	}
	return result.RowsAffected(), nil
}
