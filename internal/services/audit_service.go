package services

import (
	"context"
	"log/slog"

	"github.com/averycrane/gatehouse/internal/models"
)

// AuditRepository defines the persistence contract for audit events
type AuditRepository interface {
	Insert(ctx context.Context, event *models.AuditEvent) error
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]*models.AuditEvent, error)
	ListByOrg(ctx context.Context, orgID string, limit, offset int) ([]*models.AuditEvent, error)
}

// AuditRecorder appends security-relevant events.
type AuditRecorder interface {
	Record(ctx context.Context, event *models.AuditEvent)
}

// AuditService persists append-only audit events and mirrors them to the
// structured log. Recording is best-effort: a storage failure is logged but
// never fails the action being audited.
type AuditService struct {
	repo   AuditRepository
	logger *slog.Logger
}

func NewAuditService(repo AuditRepository, logger *slog.Logger) *AuditService {
	return &AuditService{
		repo:   repo,
		logger: logger,
	}
}

func (s *AuditService) Record(ctx context.Context, event *models.AuditEvent) {
	s.logger.Info("audit event",
		slog.String("action", event.Action),
		slog.String("user_id", event.UserID),
		slog.String("org_id", event.OrgID),
		slog.String("ip", event.IPAddress))

	if err := s.repo.Insert(ctx, event); err != nil {
		s.logger.Error("failed to persist audit event",
			slog.String("action", event.Action),
			slog.Any("error", err))
	}
}

func (s *AuditService) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*models.AuditEvent, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.repo.ListByUser(ctx, userID, limit, offset)
}

func (s *AuditService) ListByOrg(ctx context.Context, orgID string, limit, offset int) ([]*models.AuditEvent, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.repo.ListByOrg(ctx, orgID, limit, offset)
}
