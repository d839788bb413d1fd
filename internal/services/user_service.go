package services

import (
	"context"
	"errors"
	"log/slog"

	"github.com/averycrane/gatehouse/internal/config"
	"github.com/averycrane/gatehouse/internal/hooks"
	"github.com/averycrane/gatehouse/internal/models"
)

// UserService handles profile reads and updates plus account deactivation.
type UserService struct {
	users      UserRepository
	identities ExternalIdentityRepository
	tokens     TokenProvider
	hooks      *hooks.Registry
	audit      AuditRecorder
	tx         TxRunner
	logger     *slog.Logger
	cfg        config.AuthConfig
}

func NewUserService(
	users UserRepository,
	identities ExternalIdentityRepository,
	tokens TokenProvider,
	hookRegistry *hooks.Registry,
	audit AuditRecorder,
	tx TxRunner,
	logger *slog.Logger,
	cfg config.AuthConfig,
) *UserService {
	return &UserService{
		users:      users,
		identities: identities,
		tokens:     tokens,
		hooks:      hookRegistry,
		audit:      audit,
		tx:         tx,
		logger:     logger,
		cfg:        cfg,
	}
}

// ProfileResponse is the authenticated user's own view of their account.
type ProfileResponse struct {
	*UserResponse
	LinkedProviders []string `json:"linked_providers"`
}

// UpdateProfileRequest carries the mutable profile fields. Nil pointers leave
// the current value untouched.
type UpdateProfileRequest struct {
	DisplayName  *string
	AvatarURL    *string
	Locale       *string
	Timezone     *string
	CustomFields map[string]any
}

func (s *UserService) GetProfile(ctx context.Context, userID string) (*ProfileResponse, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		s.logger.Error("failed to load user", slog.String("user_id", userID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	identities, err := s.identities.ListByUserID(ctx, userID)
	if err != nil {
		s.logger.Error("failed to list identities", slog.String("user_id", userID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	providers := make([]string, 0, len(identities))
	for _, identity := range identities {
		providers = append(providers, identity.Provider)
	}

	return &ProfileResponse{
		UserResponse:    userModelToResponse(user),
		LinkedProviders: providers,
	}, nil
}

// UpdateProfile applies partial profile changes. Custom fields are validated
// against the schema registered for the configured version before anything is
// written.
func (s *UserService) UpdateProfile(ctx context.Context, userID string, req UpdateProfileRequest) (*UserResponse, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		s.logger.Error("failed to load user", slog.String("user_id", userID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if req.DisplayName != nil {
		user.DisplayName = *req.DisplayName
	}
	if req.AvatarURL != nil {
		user.AvatarURL = *req.AvatarURL
	}
	if req.Locale != nil {
		user.Locale = *req.Locale
	}
	if req.Timezone != nil {
		user.Timezone = *req.Timezone
	}
	if req.CustomFields != nil {
		validated, err := s.hooks.ValidateProfile(s.cfg.ProfileSchemaVersion, req.CustomFields)
		if err != nil {
			return nil, err
		}
		user.CustomFields = validated
		user.CustomSchemaVersion = s.cfg.ProfileSchemaVersion
	}

	updated, err := s.users.UpdateProfile(ctx, user)
	if err != nil {
		s.logger.Error("failed to update profile", slog.String("user_id", userID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.logger.Info("profile updated", slog.String("user_id", userID))
	return userModelToResponse(updated), nil
}

// ListUsers returns a page of accounts, newest first. Serves the admin user
// directory; callers are gated by scope before reaching here.
func (s *UserService) ListUsers(ctx context.Context, limit, offset int) ([]*UserResponse, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	users, err := s.users.List(ctx, limit, offset)
	if err != nil {
		s.logger.Error("failed to list users", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	out := make([]*UserResponse, 0, len(users))
	for _, user := range users {
		out = append(out, userModelToResponse(user))
	}
	return out, nil
}

// Deactivate disables the account and revokes every session as one unit.
func (s *UserService) Deactivate(ctx context.Context, userID string) error {
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.users.SetActive(ctx, userID, false); err != nil {
			if errors.Is(err, models.ErrNotFound) {
				return models.ErrNotFound
			}
			s.logger.Error("failed to deactivate user", slog.String("user_id", userID), slog.Any("error", err))
			return models.ErrInternalServer
		}
		return s.tokens.RevokeAllForUser(ctx, userID)
	})
	if err != nil {
		return err
	}

	s.logger.Info("account deactivated", slog.String("user_id", userID))
	s.audit.Record(ctx, &models.AuditEvent{Action: "user.deactivated", UserID: userID})
	return nil
}
