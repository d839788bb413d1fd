package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/averycrane/gatehouse/internal/database"
	"github.com/averycrane/gatehouse/internal/models"
	"github.com/google/uuid"
)

type ExternalIdentityRepository struct {
	db *database.DB
}

func NewExternalIdentityRepository(db *database.DB) *ExternalIdentityRepository {
	return &ExternalIdentityRepository{db: db}
}

const externalIdentityColumns = `id, user_id, provider, provider_user_id, email, created_at`

func scanExternalIdentityRow(scanner rowScanner) (*models.ExternalIdentity, error) {
	var identity models.ExternalIdentity
	var email *string

	err := scanner.Scan(
		&identity.ID, &identity.UserID, &identity.Provider,
		&identity.ProviderUserID, &email, &identity.CreatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	if email != nil {
		identity.Email = *email
	}

	return &identity, nil
}

func (r *ExternalIdentityRepository) Create(ctx context.Context, identity *models.ExternalIdentity) (*models.ExternalIdentity, error) {
	if identity.ID == "" {
		identity.ID = uuid.New().String()
	}
	identity.CreatedAt = time.Now()

	query := `
		INSERT INTO external_identities (id, user_id, provider, provider_user_id, email, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + externalIdentityColumns

	return scanExternalIdentityRow(r.db.Conn(ctx).QueryRow(ctx, query,
		identity.ID, identity.UserID, identity.Provider,
		identity.ProviderUserID, nullable(identity.Email), identity.CreatedAt,
	))
}

// GetByProviderSubject resolves the unique (provider, subject) pair.
func (r *ExternalIdentityRepository) GetByProviderSubject(ctx context.Context, provider, providerUserID string) (*models.ExternalIdentity, error) {
	query := `
		SELECT ` + externalIdentityColumns + `
		FROM external_identities WHERE provider = $1 AND provider_user_id = $2
	`
	return scanExternalIdentityRow(r.db.Conn(ctx).QueryRow(ctx, query, provider, providerUserID))
}

func (r *ExternalIdentityRepository) ListByUserID(ctx context.Context, userID string) ([]*models.ExternalIdentity, error) {
	query := `
		SELECT ` + externalIdentityColumns + `
		FROM external_identities WHERE user_id = $1 ORDER BY created_at
	`

	rows, err := r.db.Conn(ctx).Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query external identities: %w", err)
	}
	defer rows.Close()

	identities := make([]*models.ExternalIdentity, 0)
	for rows.Next() {
		identity, err := scanExternalIdentityRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan external identity: %w", err)
		}
		identities = append(identities, identity)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return identities, nil
}
