package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/averycrane/gatehouse/internal/database"
	"github.com/averycrane/gatehouse/internal/models"
	"github.com/google/uuid"
)

type AuditRepository struct {
	db *database.DB
}

func NewAuditRepository(db *database.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

const auditEventColumns = `id, action, user_id, org_id, ip_address, user_agent, metadata, created_at`

func scanAuditEventRow(scanner rowScanner) (*models.AuditEvent, error) {
	var event models.AuditEvent
	var userID, orgID, ipAddress, userAgent *string

	err := scanner.Scan(
		&event.ID, &event.Action, &userID, &orgID,
		&ipAddress, &userAgent, &event.Metadata, &event.CreatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	if userID != nil {
		event.UserID = *userID
	}
	if orgID != nil {
		event.OrgID = *orgID
	}
	if ipAddress != nil {
		event.IPAddress = *ipAddress
	}
	if userAgent != nil {
		event.UserAgent = *userAgent
	}

	return &event, nil
}

func (r *AuditRepository) Insert(ctx context.Context, event *models.AuditEvent) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	event.CreatedAt = time.Now()

	if event.Metadata == nil {
		event.Metadata = map[string]string{}
	}

	query := `
		INSERT INTO audit_events (id, action, user_id, org_id, ip_address, user_agent, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.db.Conn(ctx).Exec(ctx, query,
		event.ID, event.Action, nullable(event.UserID), nullable(event.OrgID),
		nullable(event.IPAddress), nullable(event.UserAgent), event.Metadata, event.CreatedAt,
	)
	if err != nil {
		return database.MapPostgresError(err)
	}
	return nil
}

func (r *AuditRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*models.AuditEvent, error) {
	query := `
		SELECT ` + auditEventColumns + `
		FROM audit_events WHERE user_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3
	`
	return r.list(ctx, query, userID, limit, offset)
}

func (r *AuditRepository) ListByOrg(ctx context.Context, orgID string, limit, offset int) ([]*models.AuditEvent, error) {
	query := `
		SELECT ` + auditEventColumns + `
		FROM audit_events WHERE org_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3
	`
	return r.list(ctx, query, orgID, limit, offset)
}

func (r *AuditRepository) list(ctx context.Context, query string, args ...any) ([]*models.AuditEvent, error) {
	rows, err := r.db.Conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit events: %w", err)
	}
	defer rows.Close()

	events := make([]*models.AuditEvent, 0)
	for rows.Next() {
		event, err := scanAuditEventRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return events, nil
}
