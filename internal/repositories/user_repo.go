package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/averycrane/gatehouse/internal/database"
	"github.com/averycrane/gatehouse/internal/models"
	"github.com/google/uuid"
)

type UserRepository struct {
	db *database.DB
}

func NewUserRepository(db *database.DB) *UserRepository {
	return &UserRepository{db: db}
}

// rowScanner is satisfied by both pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

const userColumns = `id, email, normalized_email, display_name, avatar_url, locale, timezone,
		is_active, is_verified, custom_fields, custom_schema_version, created_at, updated_at`

// scanUserRow handles nullable fields and populates a User model from a database row
func scanUserRow(scanner rowScanner) (*models.User, error) {
	var user models.User
	var avatarURL, locale, timezone *string

	err := scanner.Scan(
		&user.ID, &user.Email, &user.NormalizedEmail, &user.DisplayName,
		&avatarURL, &locale, &timezone,
		&user.IsActive, &user.IsVerified,
		&user.CustomFields, &user.CustomSchemaVersion,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	if avatarURL != nil {
		user.AvatarURL = *avatarURL
	}
	if locale != nil {
		user.Locale = *locale
	}
	if timezone != nil {
		user.Timezone = *timezone
	}

	return &user, nil
}

func (r *UserRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	if user.CustomFields == nil {
		user.CustomFields = map[string]any{}
	}

	query := `
		INSERT INTO users (id, email, normalized_email, display_name, avatar_url, locale, timezone,
			is_active, is_verified, custom_fields, custom_schema_version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING ` + userColumns

	return scanUserRow(r.db.Conn(ctx).QueryRow(ctx, query,
		user.ID, user.Email, user.NormalizedEmail, user.DisplayName,
		nullable(user.AvatarURL), nullable(user.Locale), nullable(user.Timezone),
		user.IsActive, user.IsVerified,
		user.CustomFields, user.CustomSchemaVersion,
		user.CreatedAt, user.UpdatedAt,
	))
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUserRow(r.db.Conn(ctx).QueryRow(ctx, query, id))
}

func (r *UserRepository) GetByNormalizedEmail(ctx context.Context, normalizedEmail string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE normalized_email = $1`
	return scanUserRow(r.db.Conn(ctx).QueryRow(ctx, query, normalizedEmail))
}

// UpdateProfile persists the mutable profile fields.
func (r *UserRepository) UpdateProfile(ctx context.Context, user *models.User) (*models.User, error) {
	user.UpdatedAt = time.Now()

	query := `
		UPDATE users
		SET display_name = $1, avatar_url = $2, locale = $3, timezone = $4,
			custom_fields = $5, custom_schema_version = $6, updated_at = $7
		WHERE id = $8
		RETURNING ` + userColumns

	return scanUserRow(r.db.Conn(ctx).QueryRow(ctx, query,
		user.DisplayName, nullable(user.AvatarURL), nullable(user.Locale), nullable(user.Timezone),
		user.CustomFields, user.CustomSchemaVersion, user.UpdatedAt, user.ID,
	))
}

// SetVerified marks the user's email address as confirmed.
func (r *UserRepository) SetVerified(ctx context.Context, id string, verified bool) error {
	query := `UPDATE users SET is_verified = $1, updated_at = $2 WHERE id = $3`

	result, err := r.db.Conn(ctx).Exec(ctx, query, verified, time.Now(), id)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// UpdateEmail swaps the address after a confirmed email change. The new
// address is already verified by construction.
func (r *UserRepository) UpdateEmail(ctx context.Context, id, email, normalizedEmail string) error {
	query := `
		UPDATE users SET email = $1, normalized_email = $2, is_verified = TRUE, updated_at = $3
		WHERE id = $4
	`

	result, err := r.db.Conn(ctx).Exec(ctx, query, email, normalizedEmail, time.Now(), id)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// SetActive toggles the account. Deactivated users fail login and refresh.
func (r *UserRepository) SetActive(ctx context.Context, id string, active bool) error {
	query := `UPDATE users SET is_active = $1, updated_at = $2 WHERE id = $3`

	result, err := r.db.Conn(ctx).Exec(ctx, query, active, time.Now(), id)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *UserRepository) List(ctx context.Context, limit, offset int) ([]*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users ORDER BY created_at DESC LIMIT $1 OFFSET $2`

	rows, err := r.db.Conn(ctx).Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	users := make([]*models.User, 0)
	for rows.Next() {
		user, err := scanUserRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return users, nil
}

// nullable maps empty strings to NULL so optional columns stay NULL instead of
// storing empty text.
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
