package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/averycrane/gatehouse/internal/database"
	"github.com/averycrane/gatehouse/internal/models"
	"github.com/google/uuid"
)

type InvitationRepository struct {
	db *database.DB
}

func NewInvitationRepository(db *database.DB) *InvitationRepository {
	return &InvitationRepository{db: db}
}

const invitationColumns = `id, org_id, inviter_user_id, email, role, token_hash, expires_at, accepted_at, created_at`

func scanInvitationRow(scanner rowScanner) (*models.Invitation, error) {
	var invitation models.Invitation

	err := scanner.Scan(
		&invitation.ID, &invitation.OrgID, &invitation.InviterUserID,
		&invitation.Email, &invitation.Role, &invitation.TokenHash,
		&invitation.ExpiresAt, &invitation.AcceptedAt, &invitation.CreatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &invitation, nil
}

func (r *InvitationRepository) Create(ctx context.Context, invitation *models.Invitation) (*models.Invitation, error) {
	if invitation.ID == "" {
		invitation.ID = uuid.New().String()
	}
	invitation.CreatedAt = time.Now()

	query := `
		INSERT INTO invitations (id, org_id, inviter_user_id, email, role, token_hash, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING ` + invitationColumns

	return scanInvitationRow(r.db.Conn(ctx).QueryRow(ctx, query,
		invitation.ID, invitation.OrgID, invitation.InviterUserID,
		invitation.Email, invitation.Role, invitation.TokenHash,
		invitation.ExpiresAt, invitation.CreatedAt,
	))
}

func (r *InvitationRepository) GetByID(ctx context.Context, id string) (*models.Invitation, error) {
	query := `SELECT ` + invitationColumns + ` FROM invitations WHERE id = $1`
	return scanInvitationRow(r.db.Conn(ctx).QueryRow(ctx, query, id))
}

// MarkAccepted stamps the first accept. Zero rows affected means a previous
// accept already won, which callers treat as success for the same user.
func (r *InvitationRepository) MarkAccepted(ctx context.Context, id string, acceptedAt time.Time) (bool, error) {
	query := `UPDATE invitations SET accepted_at = $2 WHERE id = $1 AND accepted_at IS NULL`

	result, err := r.db.Conn(ctx).Exec(ctx, query, id, acceptedAt)
	if err != nil {
		return false, database.MapPostgresError(err)
	}
	return result.RowsAffected() > 0, nil
}

func (r *InvitationRepository) ListByOrg(ctx context.Context, orgID string) ([]*models.Invitation, error) {
	query := `SELECT ` + invitationColumns + ` FROM invitations WHERE org_id = $1 ORDER BY created_at DESC`

	rows, err := r.db.Conn(ctx).Query(ctx, query, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to query invitations: %w", err)
	}
	defer rows.Close()

	invitations := make([]*models.Invitation, 0)
	for rows.Next() {
		invitation, err := scanInvitationRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invitation: %w", err)
		}
		invitations = append(invitations, invitation)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return invitations, nil
}

// DeleteExpiredBefore removes unaccepted invitations past their expiry.
func (r *InvitationRepository) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM invitations WHERE expires_at < $1 AND accepted_at IS NULL`

	result, err := r.db.Conn(ctx).Exec(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired invitations: %w", err)
	}
	return result.RowsAffected(), nil
}
