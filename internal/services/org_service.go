package services

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/averycrane/gatehouse/internal/auth"
	"github.com/averycrane/gatehouse/internal/config"
	"github.com/averycrane/gatehouse/internal/models"
	"github.com/google/uuid"
)

// OrgRepository defines the persistence contract for organizations
type OrgRepository interface {
	Create(ctx context.Context, org *models.Organization) (*models.Organization, error)
	GetByID(ctx context.Context, id string) (*models.Organization, error)
	GetBySlug(ctx context.Context, slug string) (*models.Organization, error)
}

// MembershipRepository defines the persistence contract for memberships
type MembershipRepository interface {
	Create(ctx context.Context, membership *models.Membership) (bool, error)
	GetByUserAndOrg(ctx context.Context, userID, orgID string) (*models.Membership, error)
	FirstForUser(ctx context.Context, userID string) (*models.Membership, error)
	ListUserOrganizations(ctx context.Context, userID string) ([]*models.UserOrganization, error)
	ListByOrg(ctx context.Context, orgID string) ([]*models.Membership, error)
}

// InvitationRepository defines the persistence contract for invitations
type InvitationRepository interface {
	Create(ctx context.Context, invitation *models.Invitation) (*models.Invitation, error)
	GetByID(ctx context.Context, id string) (*models.Invitation, error)
	MarkAccepted(ctx context.Context, id string, acceptedAt time.Time) (bool, error)
	ListByOrg(ctx context.Context, orgID string) ([]*models.Invitation, error)
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// OrgService manages organizations, memberships and the invitation flow.
type OrgService struct {
	orgs        OrgRepository
	memberships MembershipRepository
	invitations InvitationRepository
	email       EmailSender
	audit       AuditRecorder
	tx          TxRunner
	logger      *slog.Logger
	cfg         config.AuthConfig
}

func NewOrgService(
	orgs OrgRepository,
	memberships MembershipRepository,
	invitations InvitationRepository,
	email EmailSender,
	audit AuditRecorder,
	tx TxRunner,
	logger *slog.Logger,
	cfg config.AuthConfig,
) *OrgService {
	return &OrgService{
		orgs:        orgs,
		memberships: memberships,
		invitations: invitations,
		email:       email,
		audit:       audit,
		tx:          tx,
		logger:      logger,
		cfg:         cfg,
	}
}

// OrgResponse represents an organization in HTTP responses
type OrgResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Slug      string `json:"slug"`
	IsActive  bool   `json:"is_active"`
	Role      string `json:"role,omitempty"`
	CreatedAt string `json:"created_at"`
}

func orgModelToResponse(org *models.Organization) *OrgResponse {
	return &OrgResponse{
		ID:        org.ID,
		Name:      org.Name,
		Slug:      org.Slug,
		IsActive:  org.IsActive,
		CreatedAt: org.CreatedAt.Format(time.RFC3339),
	}
}

// CreateOrg creates an organization with the creator as admin. The slug is
// derived from the name when not given explicitly.
func (s *OrgService) CreateOrg(ctx context.Context, creatorUserID, name, slug string) (*OrgResponse, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, models.NewValidationError("org_name_invalid", "organization name is required")
	}

	if slug == "" {
		slug = Slugify(name)
	} else {
		slug = Slugify(slug)
	}
	if slug == "" {
		return nil, models.NewValidationError("org_slug_invalid", "organization slug is required")
	}

	var created *models.Organization
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		created, err = s.orgs.Create(ctx, &models.Organization{
			Name:     name,
			Slug:     slug,
			IsActive: true,
		})
		if err != nil {
			if errors.Is(err, models.ErrOrgSlugExists) {
				return models.ErrOrgSlugExists
			}
			s.logger.Error("failed to create organization", slog.Any("error", err))
			return models.ErrInternalServer
		}

		if _, err := s.memberships.Create(ctx, &models.Membership{
			UserID: creatorUserID,
			OrgID:  created.ID,
			Role:   models.RoleAdmin,
		}); err != nil {
			s.logger.Error("failed to create membership", slog.String("org_id", created.ID), slog.Any("error", err))
			return models.ErrInternalServer
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("organization created", slog.String("org_id", created.ID), slog.String("slug", created.Slug))
	s.audit.Record(ctx, &models.AuditEvent{
		Action: "org.created",
		UserID: creatorUserID,
		OrgID:  created.ID,
	})

	response := orgModelToResponse(created)
	response.Role = string(models.RoleAdmin)
	return response, nil
}

// MemberResponse represents an organization member in HTTP responses
type MemberResponse struct {
	UserID   string `json:"user_id"`
	Role     string `json:"role"`
	JoinedAt string `json:"joined_at"`
}

// ListMembers returns the roster of an organization. The requester must hold
// a membership themselves; outsiders get forbidden, not an empty list.
func (s *OrgService) ListMembers(ctx context.Context, orgID, requesterUserID string) ([]*MemberResponse, error) {
	if _, err := s.memberships.GetByUserAndOrg(ctx, requesterUserID, orgID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrForbidden
		}
		s.logger.Error("failed to load requester membership", slog.String("org_id", orgID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	members, err := s.memberships.ListByOrg(ctx, orgID)
	if err != nil {
		s.logger.Error("failed to list members", slog.String("org_id", orgID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	out := make([]*MemberResponse, 0, len(members))
	for _, member := range members {
		out = append(out, &MemberResponse{
			UserID:   member.UserID,
			Role:     string(member.Role),
			JoinedAt: member.CreatedAt.Format(time.RFC3339),
		})
	}
	return out, nil
}

// ListUserOrgs returns the organizations the user belongs to with the held
// role.
func (s *OrgService) ListUserOrgs(ctx context.Context, userID string) ([]*OrgResponse, error) {
	entries, err := s.memberships.ListUserOrganizations(ctx, userID)
	if err != nil {
		s.logger.Error("failed to list user organizations", slog.String("user_id", userID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	out := make([]*OrgResponse, 0, len(entries))
	for _, entry := range entries {
		response := orgModelToResponse(&entry.Organization)
		response.Role = string(entry.Role)
		out = append(out, response)
	}
	return out, nil
}

// InvitationResponse represents an invitation in HTTP responses
type InvitationResponse struct {
	ID         string `json:"id"`
	OrgID      string `json:"org_id"`
	Email      string `json:"email"`
	Role       string `json:"role"`
	ExpiresAt  string `json:"expires_at"`
	AcceptedAt string `json:"accepted_at,omitempty"`
	CreatedAt  string `json:"created_at"`
}

func invitationModelToResponse(invitation *models.Invitation) *InvitationResponse {
	response := &InvitationResponse{
		ID:        invitation.ID,
		OrgID:     invitation.OrgID,
		Email:     invitation.Email,
		Role:      string(invitation.Role),
		ExpiresAt: invitation.ExpiresAt.Format(time.RFC3339),
		CreatedAt: invitation.CreatedAt.Format(time.RFC3339),
	}
	if invitation.AcceptedAt != nil {
		response.AcceptedAt = invitation.AcceptedAt.Format(time.RFC3339)
	}
	return response
}

// Invite issues an invitation token for an email/role pair. The inviter must
// be an admin of the organization.
func (s *OrgService) Invite(ctx context.Context, orgID, inviterUserID, email string, role models.Role) (*InvitationResponse, error) {
	if !role.Valid() {
		return nil, models.NewValidationError("invalid_role", "role must be admin, member or readonly")
	}
	normalized := NormalizeEmail(email)
	if normalized == "" {
		return nil, models.NewValidationError("email_invalid", "email is required")
	}

	inviter, err := s.memberships.GetByUserAndOrg(ctx, inviterUserID, orgID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrForbidden
		}
		s.logger.Error("failed to load inviter membership", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	if inviter.Role != models.RoleAdmin {
		return nil, models.ErrForbidden
	}

	org, err := s.orgs.GetByID(ctx, orgID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		s.logger.Error("failed to load organization", slog.String("org_id", orgID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	secret, err := auth.NewSecret()
	if err != nil {
		s.logger.Error("failed to generate invitation secret", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	created, err := s.invitations.Create(ctx, &models.Invitation{
		OrgID:         orgID,
		InviterUserID: inviterUserID,
		Email:         normalized,
		Role:          role,
		TokenHash:     auth.HashSecret(secret),
		ExpiresAt:     time.Now().Add(s.cfg.InvitationExpiry),
	})
	if err != nil {
		s.logger.Error("failed to persist invitation", slog.String("org_id", orgID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.logger.Info("invitation issued",
		slog.String("org_id", orgID),
		slog.String("invitation_id", created.ID),
		slog.String("role", string(role)))
	s.audit.Record(ctx, &models.AuditEvent{
		Action:   "invitation.issued",
		UserID:   inviterUserID,
		OrgID:    orgID,
		Metadata: map[string]string{"role": string(role)},
	})

	token := auth.FormatToken(created.ID, secret)
	if err := s.email.SendInvitationEmail(ctx, normalized, org.Name, token); err != nil {
		s.logger.Error("failed to send invitation email", slog.String("invitation_id", created.ID), slog.Any("error", err))
	}

	return invitationModelToResponse(created), nil
}

// AcceptInvitation consumes an invitation for the authenticated user. The
// user's email must match the invited address case-insensitively. Accepting
// twice is a no-op success; accepted_at is only ever set once.
func (s *OrgService) AcceptInvitation(ctx context.Context, opaqueToken, userID, userEmail string) (*OrgResponse, error) {
	id, secret, err := auth.SplitToken(opaqueToken)
	if err != nil {
		return nil, models.ErrInviteInvalid
	}

	invitation, err := s.invitations.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrInviteInvalid
		}
		s.logger.Error("failed to load invitation", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if !auth.VerifySecret(secret, invitation.TokenHash) {
		return nil, models.ErrInviteInvalid
	}
	if invitation.Expired(time.Now()) {
		return nil, models.ErrInviteExpired
	}
	if NormalizeEmail(userEmail) != NormalizeEmail(invitation.Email) {
		return nil, models.ErrInviteEmailMismatch
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := s.invitations.MarkAccepted(ctx, invitation.ID, time.Now()); err != nil {
			s.logger.Error("failed to mark invitation accepted", slog.Any("error", err))
			return models.ErrInternalServer
		}

		created, err := s.memberships.Create(ctx, &models.Membership{
			UserID: userID,
			OrgID:  invitation.OrgID,
			Role:   invitation.Role,
		})
		if err != nil {
			s.logger.Error("failed to create membership", slog.String("org_id", invitation.OrgID), slog.Any("error", err))
			return models.ErrInternalServer
		}
		if !created {
			s.logger.Info("invitation accept was a no-op, membership exists",
				slog.String("org_id", invitation.OrgID), slog.String("user_id", userID))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, &models.AuditEvent{
		Action: "invitation.accepted",
		UserID: userID,
		OrgID:  invitation.OrgID,
	})

	org, err := s.orgs.GetByID(ctx, invitation.OrgID)
	if err != nil {
		s.logger.Error("failed to load organization", slog.String("org_id", invitation.OrgID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	response := orgModelToResponse(org)
	response.Role = string(invitation.Role)
	return response, nil
}

// ListInvitations returns the invitations issued for an organization.
func (s *OrgService) ListInvitations(ctx context.Context, orgID string) ([]*InvitationResponse, error) {
	invitations, err := s.invitations.ListByOrg(ctx, orgID)
	if err != nil {
		s.logger.Error("failed to list invitations", slog.String("org_id", orgID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	out := make([]*InvitationResponse, 0, len(invitations))
	for _, invitation := range invitations {
		out = append(out, invitationModelToResponse(invitation))
	}
	return out, nil
}

var slugPattern = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify lowercases, replaces runs of non-alphanumerics with hyphens and
// trims hyphens from both ends.
func Slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = slugPattern.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// randomSlugSuffix returns a short random suffix for slug collisions.
func randomSlugSuffix() string {
	return uuid.New().String()[:8]
}
