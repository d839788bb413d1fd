package repositories

import (
	"context"
	"time"

	"github.com/averycrane/gatehouse/internal/database"
	"github.com/averycrane/gatehouse/internal/models"
)

type CredentialRepository struct {
	db *database.DB
}

func NewCredentialRepository(db *database.DB) *CredentialRepository {
	return &CredentialRepository{db: db}
}

const credentialColumns = `user_id, password_hash, password_changed_at, failed_login_attempts,
		lockout_until, last_login_at, created_at, updated_at`

func scanCredentialRow(scanner rowScanner) (*models.Credential, error) {
	var cred models.Credential

	err := scanner.Scan(
		&cred.UserID, &cred.PasswordHash, &cred.PasswordChangedAt,
		&cred.FailedLoginAttempts, &cred.LockoutUntil, &cred.LastLoginAt,
		&cred.CreatedAt, &cred.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &cred, nil
}

func (r *CredentialRepository) Create(ctx context.Context, cred *models.Credential) (*models.Credential, error) {
	now := time.Now()
	cred.CreatedAt = now
	cred.UpdatedAt = now

	query := `
		INSERT INTO credentials (user_id, password_hash, password_changed_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + credentialColumns

	return scanCredentialRow(r.db.Conn(ctx).QueryRow(ctx, query,
		cred.UserID, cred.PasswordHash, cred.PasswordChangedAt, cred.CreatedAt, cred.UpdatedAt,
	))
}

func (r *CredentialRepository) GetByUserID(ctx context.Context, userID string) (*models.Credential, error) {
	query := `SELECT ` + credentialColumns + ` FROM credentials WHERE user_id = $1`
	return scanCredentialRow(r.db.Conn(ctx).QueryRow(ctx, query, userID))
}

// RegisterFailure atomically increments the failed-attempt counter and starts
// a lockout once the incremented count reaches threshold. The counter is not
// reset when the lockout begins, so further failures extend nothing but stay
// counted. Returns the updated credential.
func (r *CredentialRepository) RegisterFailure(ctx context.Context, userID string, threshold int, lockoutUntil time.Time) (*models.Credential, error) {
	query := `
		UPDATE credentials
		SET failed_login_attempts = failed_login_attempts + 1,
			lockout_until = CASE
				WHEN failed_login_attempts + 1 >= $2 THEN $3
				ELSE lockout_until
			END,
			updated_at = $4
		WHERE user_id = $1
		RETURNING ` + credentialColumns

	return scanCredentialRow(r.db.Conn(ctx).QueryRow(ctx, query,
		userID, threshold, lockoutUntil, time.Now(),
	))
}

// RegisterSuccess clears the failure counter and any lockout, and stamps the
// login time.
func (r *CredentialRepository) RegisterSuccess(ctx context.Context, userID string, loginAt time.Time) error {
	query := `
		UPDATE credentials
		SET failed_login_attempts = 0, lockout_until = NULL, last_login_at = $2, updated_at = $3
		WHERE user_id = $1
	`

	result, err := r.db.Conn(ctx).Exec(ctx, query, userID, loginAt, time.Now())
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// UpdatePassword replaces the hash and clears lockout state. Every password
// change path (reset, authenticated change) lands here.
func (r *CredentialRepository) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	now := time.Now()
	query := `
		UPDATE credentials
		SET password_hash = $2, password_changed_at = $3,
			failed_login_attempts = 0, lockout_until = NULL, updated_at = $3
		WHERE user_id = $1
	`

	result, err := r.db.Conn(ctx).Exec(ctx, query, userID, passwordHash, now)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}
