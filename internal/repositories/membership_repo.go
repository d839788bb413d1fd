package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/averycrane/gatehouse/internal/database"
	"github.com/averycrane/gatehouse/internal/models"
	"github.com/google/uuid"
)

type MembershipRepository struct {
	db *database.DB
}

func NewMembershipRepository(db *database.DB) *MembershipRepository {
	return &MembershipRepository{db: db}
}

const membershipColumns = `id, user_id, org_id, role, created_at`

func scanMembershipRow(scanner rowScanner) (*models.Membership, error) {
	var membership models.Membership

	err := scanner.Scan(
		&membership.ID, &membership.UserID, &membership.OrgID,
		&membership.Role, &membership.CreatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &membership, nil
}

// Create inserts a membership, ignoring a duplicate (user, org) pair so
// repeated invitation accepts stay idempotent. Returns false when the
// membership already existed.
func (r *MembershipRepository) Create(ctx context.Context, membership *models.Membership) (bool, error) {
	if membership.ID == "" {
		membership.ID = uuid.New().String()
	}
	membership.CreatedAt = time.Now()

	query := `
		INSERT INTO memberships (id, user_id, org_id, role, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, org_id) DO NOTHING
	`

	result, err := r.db.Conn(ctx).Exec(ctx, query,
		membership.ID, membership.UserID, membership.OrgID,
		membership.Role, membership.CreatedAt,
	)
	if err != nil {
		return false, database.MapPostgresError(err)
	}
	return result.RowsAffected() > 0, nil
}

func (r *MembershipRepository) GetByUserAndOrg(ctx context.Context, userID, orgID string) (*models.Membership, error) {
	query := `SELECT ` + membershipColumns + ` FROM memberships WHERE user_id = $1 AND org_id = $2`
	return scanMembershipRow(r.db.Conn(ctx).QueryRow(ctx, query, userID, orgID))
}

// FirstForUser returns the user's earliest membership, the default binding
// when login does not name an organization.
func (r *MembershipRepository) FirstForUser(ctx context.Context, userID string) (*models.Membership, error) {
	query := `SELECT ` + membershipColumns + ` FROM memberships WHERE user_id = $1 ORDER BY created_at ASC LIMIT 1`
	return scanMembershipRow(r.db.Conn(ctx).QueryRow(ctx, query, userID))
}

// ListUserOrganizations returns the organizations the user belongs to with
// the role held in each, newest membership first.
func (r *MembershipRepository) ListUserOrganizations(ctx context.Context, userID string) ([]*models.UserOrganization, error) {
	query := `
		SELECT o.id, o.name, o.slug, o.is_active, o.created_at, o.updated_at, m.role, m.created_at
		FROM memberships m
		JOIN organizations o ON o.id = m.org_id
		WHERE m.user_id = $1
		ORDER BY m.created_at DESC
	`

	rows, err := r.db.Conn(ctx).Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query user organizations: %w", err)
	}
	defer rows.Close()

	orgs := make([]*models.UserOrganization, 0)
	for rows.Next() {
		var entry models.UserOrganization
		err := rows.Scan(
			&entry.Organization.ID, &entry.Organization.Name, &entry.Organization.Slug,
			&entry.Organization.IsActive, &entry.Organization.CreatedAt, &entry.Organization.UpdatedAt,
			&entry.Role, &entry.JoinedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user organization: %w", err)
		}
		orgs = append(orgs, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return orgs, nil
}

func (r *MembershipRepository) ListByOrg(ctx context.Context, orgID string) ([]*models.Membership, error) {
	query := `SELECT ` + membershipColumns + ` FROM memberships WHERE org_id = $1 ORDER BY created_at`

	rows, err := r.db.Conn(ctx).Query(ctx, query, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to query memberships: %w", err)
	}
	defer rows.Close()

	memberships := make([]*models.Membership, 0)
	for rows.Next() {
		membership, err := scanMembershipRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan membership: %w", err)
		}
		memberships = append(memberships, membership)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return memberships, nil
}
