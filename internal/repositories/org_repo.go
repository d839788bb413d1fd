package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/averycrane/gatehouse/internal/database"
	"github.com/averycrane/gatehouse/internal/models"
	"github.com/google/uuid"
)

type OrgRepository struct {
	db *database.DB
}

func NewOrgRepository(db *database.DB) *OrgRepository {
	return &OrgRepository{db: db}
}

const orgColumns = `id, name, slug, is_active, created_at, updated_at`

func scanOrgRow(scanner rowScanner) (*models.Organization, error) {
	var org models.Organization

	err := scanner.Scan(
		&org.ID, &org.Name, &org.Slug, &org.IsActive, &org.CreatedAt, &org.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &org, nil
}

func (r *OrgRepository) Create(ctx context.Context, org *models.Organization) (*models.Organization, error) {
	if org.ID == "" {
		org.ID = uuid.New().String()
	}
	now := time.Now()
	org.CreatedAt = now
	org.UpdatedAt = now

	query := `
		INSERT INTO organizations (id, name, slug, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + orgColumns

	created, err := scanOrgRow(r.db.Conn(ctx).QueryRow(ctx, query,
		org.ID, org.Name, org.Slug, org.IsActive, org.CreatedAt, org.UpdatedAt,
	))
	if errors.Is(err, models.ErrConflict) {
		return nil, models.ErrOrgSlugExists
	}
	if err != nil {
		return nil, err
	}

	return created, nil
}

func (r *OrgRepository) GetByID(ctx context.Context, id string) (*models.Organization, error) {
	query := `SELECT ` + orgColumns + ` FROM organizations WHERE id = $1`
	return scanOrgRow(r.db.Conn(ctx).QueryRow(ctx, query, id))
}

func (r *OrgRepository) GetBySlug(ctx context.Context, slug string) (*models.Organization, error) {
	query := `SELECT ` + orgColumns + ` FROM organizations WHERE slug = $1`
	return scanOrgRow(r.db.Conn(ctx).QueryRow(ctx, query, slug))
}
