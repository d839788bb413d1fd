package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/averycrane/gatehouse/internal/auth"
	"github.com/averycrane/gatehouse/internal/config"
	"github.com/averycrane/gatehouse/internal/hooks"
	"github.com/averycrane/gatehouse/internal/models"
	pkgauth "github.com/averycrane/gatehouse/pkg/auth"
)

// UserRepository defines the persistence contract for users
type UserRepository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByNormalizedEmail(ctx context.Context, normalizedEmail string) (*models.User, error)
	UpdateProfile(ctx context.Context, user *models.User) (*models.User, error)
	SetVerified(ctx context.Context, id string, verified bool) error
	UpdateEmail(ctx context.Context, id, email, normalizedEmail string) error
	SetActive(ctx context.Context, id string, active bool) error
	List(ctx context.Context, limit, offset int) ([]*models.User, error)
}

// CredentialRepository defines the persistence contract for credentials
type CredentialRepository interface {
	Create(ctx context.Context, cred *models.Credential) (*models.Credential, error)
	GetByUserID(ctx context.Context, userID string) (*models.Credential, error)
	RegisterFailure(ctx context.Context, userID string, threshold int, lockoutUntil time.Time) (*models.Credential, error)
	RegisterSuccess(ctx context.Context, userID string, loginAt time.Time) error
	UpdatePassword(ctx context.Context, userID, passwordHash string) error
}

// VerificationTokenRepository defines the persistence contract for single-use
// verification tokens
type VerificationTokenRepository interface {
	Create(ctx context.Context, token *models.VerificationToken) (*models.VerificationToken, error)
	GetByID(ctx context.Context, id string) (*models.VerificationToken, error)
	MarkUsed(ctx context.Context, id string, usedAt time.Time) (bool, error)
	InvalidateActiveForUser(ctx context.Context, userID string, tokenType models.VerificationTokenType, usedAt time.Time) (int64, error)
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// TokenProvider is the session lifecycle surface the auth flows depend on.
type TokenProvider interface {
	Issue(ctx context.Context, user *models.User, role models.Role, orgID string, meta ClientMeta) (*TokenPair, error)
	Rotate(ctx context.Context, opaqueToken string, meta ClientMeta) (string, string, error)
	Revoke(ctx context.Context, opaqueToken string) error
	RevokeAllForUser(ctx context.Context, userID string) error
	GenerateAccessToken(user *models.User, role models.Role, orgID string) (string, int64, error)
}

// AuthService orchestrates registration, login, session refresh and the
// single-use token flows (email verify, password reset, email change).
type AuthService struct {
	users         UserRepository
	creds         CredentialRepository
	verifications VerificationTokenRepository
	memberships   MembershipRepository
	orgs          OrgRepository
	tokens        TokenProvider
	email         EmailSender
	hooks         *hooks.Registry
	limiter       RateLimiter
	audit         AuditRecorder
	tx            TxRunner
	logger        *slog.Logger
	cfg           config.AuthConfig
}

func NewAuthService(
	users UserRepository,
	creds CredentialRepository,
	verifications VerificationTokenRepository,
	memberships MembershipRepository,
	orgs OrgRepository,
	tokens TokenProvider,
	email EmailSender,
	hookRegistry *hooks.Registry,
	limiter RateLimiter,
	audit AuditRecorder,
	tx TxRunner,
	logger *slog.Logger,
	cfg config.AuthConfig,
) *AuthService {
	return &AuthService{
		users:         users,
		creds:         creds,
		verifications: verifications,
		memberships:   memberships,
		orgs:          orgs,
		tokens:        tokens,
		email:         email,
		hooks:         hookRegistry,
		limiter:       limiter,
		audit:         audit,
		tx:            tx,
		logger:        logger,
		cfg:           cfg,
	}
}

// NormalizeEmail produces the canonical lookup form of an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// UserResponse represents a user in HTTP responses
type UserResponse struct {
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	DisplayName  string         `json:"display_name"`
	AvatarURL    string         `json:"avatar_url,omitempty"`
	Locale       string         `json:"locale,omitempty"`
	Timezone     string         `json:"timezone,omitempty"`
	IsActive     bool           `json:"is_active"`
	IsVerified   bool           `json:"is_verified"`
	CustomFields map[string]any `json:"custom_fields,omitempty"`
	CreatedAt    string         `json:"created_at"`
	UpdatedAt    string         `json:"updated_at"`
}

// AuthResponse represents the response from operations that establish a session
type AuthResponse struct {
	*TokenPair
	OrgID string        `json:"org_id"`
	Role  string        `json:"role"`
	User  *UserResponse `json:"user"`
}

type RegisterRequest struct {
	Email       string
	Password    string
	DisplayName string
	OrgName     string
	Meta        ClientMeta
}

type LoginRequest struct {
	Email    string
	Password string
	OrgID    string
	Meta     ClientMeta
}

func userModelToResponse(user *models.User) *UserResponse {
	return &UserResponse{
		ID:           user.ID,
		Email:        user.Email,
		DisplayName:  user.DisplayName,
		AvatarURL:    user.AvatarURL,
		Locale:       user.Locale,
		Timezone:     user.Timezone,
		IsActive:     user.IsActive,
		IsVerified:   user.IsVerified,
		CustomFields: user.CustomFields,
		CreatedAt:    user.CreatedAt.Format(time.RFC3339),
		UpdatedAt:    user.UpdatedAt.Format(time.RFC3339),
	}
}

// Register creates an unverified user with its credential, a personal
// organization with the creator as admin, and a pending email-verify token,
// all in one transaction. The verification email goes out after commit and
// its failure does not undo the registration.
func (s *AuthService) Register(ctx context.Context, req RegisterRequest) (*UserResponse, error) {
	normalized := NormalizeEmail(req.Email)
	if normalized == "" {
		return nil, models.NewValidationError("email_invalid", "email is required")
	}

	if err := s.hooks.CheckEmailDomain(normalized); err != nil {
		return nil, err
	}
	if err := s.hooks.CheckPassword(req.Password); err != nil {
		return nil, err
	}

	if _, err := s.users.GetByNormalizedEmail(ctx, normalized); err == nil {
		return nil, models.ErrEmailExists
	} else if !errors.Is(err, models.ErrNotFound) {
		s.logger.Error("failed to check existing email", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	// Hash before opening the transaction: argon2 is deliberately expensive
	// and must not hold a database transaction open.
	passwordHash, err := pkgauth.HashPassword(req.Password)
	if err != nil {
		s.logger.Error("failed to hash password", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	displayName := strings.TrimSpace(req.DisplayName)
	if displayName == "" {
		displayName = localPart(normalized)
	}

	var created *models.User
	var verifyToken string
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		now := time.Now()

		created, err = s.users.Create(ctx, &models.User{
			Email:               strings.TrimSpace(req.Email),
			NormalizedEmail:     normalized,
			DisplayName:         displayName,
			IsActive:            true,
			CustomSchemaVersion: s.cfg.ProfileSchemaVersion,
		})
		if err != nil {
			if errors.Is(err, models.ErrConflict) {
				return models.ErrEmailExists
			}
			s.logger.Error("failed to create user", slog.Any("error", err))
			return models.ErrInternalServer
		}

		changedAt := now
		if _, err := s.creds.Create(ctx, &models.Credential{
			UserID:            created.ID,
			PasswordHash:      passwordHash,
			PasswordChangedAt: &changedAt,
		}); err != nil {
			s.logger.Error("failed to create credential", slog.String("user_id", created.ID), slog.Any("error", err))
			return models.ErrInternalServer
		}

		orgName := strings.TrimSpace(req.OrgName)
		if orgName == "" {
			orgName = displayName
		}
		if err := s.createPersonalOrg(ctx, created.ID, orgName); err != nil {
			return err
		}

		verifyToken, err = s.issueVerificationToken(ctx, created.ID, models.TokenTypeEmailVerify, "", s.cfg.EmailVerifyExpiry)
		if err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("user registered", slog.String("user_id", created.ID))
	s.audit.Record(ctx, &models.AuditEvent{
		Action:    "user.registered",
		UserID:    created.ID,
		IPAddress: req.Meta.IPAddress,
		UserAgent: req.Meta.UserAgent,
	})

	if err := s.email.SendVerificationEmail(ctx, created.Email, verifyToken); err != nil {
		s.logger.Error("failed to send verification email", slog.String("user_id", created.ID), slog.Any("error", err))
	}

	return userModelToResponse(created), nil
}

// createPersonalOrg creates the registration-time organization with the user
// as admin, retrying the slug with a random suffix on collision.
func (s *AuthService) createPersonalOrg(ctx context.Context, userID, name string) error {
	slug := Slugify(name)

	org, err := s.orgs.Create(ctx, &models.Organization{
		Name:     name,
		Slug:     slug,
		IsActive: true,
	})
	if errors.Is(err, models.ErrOrgSlugExists) {
		org, err = s.orgs.Create(ctx, &models.Organization{
			Name:     name,
			Slug:     slug + "-" + randomSlugSuffix(),
			IsActive: true,
		})
	}
	if err != nil {
		s.logger.Error("failed to create personal org", slog.String("user_id", userID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	if _, err := s.memberships.Create(ctx, &models.Membership{
		UserID: userID,
		OrgID:  org.ID,
		Role:   models.RoleAdmin,
	}); err != nil {
		s.logger.Error("failed to create membership", slog.String("user_id", userID), slog.Any("error", err))
		return models.ErrInternalServer
	}
	return nil
}

// VerifyEmail consumes an email-verify token and flips the user to verified.
func (s *AuthService) VerifyEmail(ctx context.Context, opaqueToken string) error {
	record, err := s.resolveVerificationToken(ctx, opaqueToken, models.TokenTypeEmailVerify)
	if err != nil {
		return err
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		used, err := s.verifications.MarkUsed(ctx, record.ID, time.Now())
		if err != nil {
			s.logger.Error("failed to consume verification token", slog.Any("error", err))
			return models.ErrInternalServer
		}
		if !used {
			return models.ErrTokenExpired
		}
		if err := s.users.SetVerified(ctx, record.UserID, true); err != nil {
			s.logger.Error("failed to mark user verified", slog.String("user_id", record.UserID), slog.Any("error", err))
			return models.ErrInternalServer
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("email verified", slog.String("user_id", record.UserID))
	s.audit.Record(ctx, &models.AuditEvent{Action: "user.email_verified", UserID: record.UserID})
	return nil
}

// ResendVerification reissues the email-verify token. Success-shaped whether
// or not the email exists, with a per-address cooldown.
func (s *AuthService) ResendVerification(ctx context.Context, email string) error {
	normalized := NormalizeEmail(email)

	if err := s.limiter.Allow(ctx, "resend_verify:"+normalized, 1, time.Minute); err != nil {
		return err
	}

	user, err := s.users.GetByNormalizedEmail(ctx, normalized)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil
		}
		s.logger.Error("failed to look up user for resend", slog.Any("error", err))
		return models.ErrInternalServer
	}
	if user.IsVerified {
		return nil
	}

	var token string
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		token, err = s.issueVerificationToken(ctx, user.ID, models.TokenTypeEmailVerify, "", s.cfg.EmailVerifyExpiry)
		return err
	})
	if err != nil {
		return err
	}

	if err := s.email.SendVerificationEmail(ctx, user.Email, token); err != nil {
		s.logger.Error("failed to send verification email", slog.String("user_id", user.ID), slog.Any("error", err))
	}
	return nil
}

// unknownUserPasswordHash is a well-formed argon2id hash that matches no
// real password. Login compares against it when the email has no account,
// so a failed attempt costs the same key derivation whether or not the
// address exists.
const unknownUserPasswordHash = "$argon2id$v=19$m=65536,t=1,p=4$u9PLVcnLY0Nyf3qjR4GmUg$Jd6farWVZqLkBYWzfTmKJc0PyCK0UYO1uScMR0vVXDc"

// Login verifies credentials and establishes a session bound to one
// membership. Every branch that could reveal whether an email is registered
// collapses into invalid_credentials, and the unknown-email branches still
// burn a full password hash so response timing gives nothing away either.
func (s *AuthService) Login(ctx context.Context, req LoginRequest) (*AuthResponse, error) {
	normalized := NormalizeEmail(req.Email)

	user, err := s.users.GetByNormalizedEmail(ctx, normalized)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			_ = pkgauth.ComparePassword(unknownUserPasswordHash, req.Password)
			s.logger.Info("login failed: invalid credentials")
			return nil, models.ErrInvalidCredentials
		}
		s.logger.Error("failed to look up user", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if !user.IsActive {
		s.logger.Info("login blocked: account disabled", slog.String("user_id", user.ID))
		return nil, models.ErrAccountDisabled
	}

	cred, err := s.creds.GetByUserID(ctx, user.ID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			_ = pkgauth.ComparePassword(unknownUserPasswordHash, req.Password)
			s.logger.Info("login failed: invalid credentials")
			return nil, models.ErrInvalidCredentials
		}
		s.logger.Error("failed to load credential", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if !user.IsVerified {
		s.logger.Info("login blocked: email not verified", slog.String("user_id", user.ID))
		return nil, models.ErrEmailNotVerified
	}

	now := time.Now()
	if cred.Locked(now) {
		// Fail fast without hashing so lockout does not amplify CPU cost.
		s.logger.Info("login blocked: account locked", slog.String("user_id", user.ID))
		s.audit.Record(ctx, &models.AuditEvent{
			Action:    "login.locked",
			UserID:    user.ID,
			IPAddress: req.Meta.IPAddress,
			UserAgent: req.Meta.UserAgent,
		})
		return nil, models.ErrAccountLocked
	}

	if err := pkgauth.ComparePassword(cred.PasswordHash, req.Password); err != nil {
		updated, ferr := s.creds.RegisterFailure(ctx, user.ID, s.cfg.LockoutThreshold, now.Add(s.cfg.LockoutDuration))
		if ferr != nil {
			s.logger.Error("failed to record login failure", slog.String("user_id", user.ID), slog.Any("error", ferr))
		} else if updated.Locked(now) {
			s.audit.Record(ctx, &models.AuditEvent{
				Action:    "login.lockout_started",
				UserID:    user.ID,
				IPAddress: req.Meta.IPAddress,
				UserAgent: req.Meta.UserAgent,
			})
		}
		s.logger.Info("login failed: invalid credentials", slog.String("user_id", user.ID))
		return nil, models.ErrInvalidCredentials
	}

	var response *AuthResponse
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.creds.RegisterSuccess(ctx, user.ID, now); err != nil {
			s.logger.Error("failed to clear lockout state", slog.String("user_id", user.ID), slog.Any("error", err))
			return models.ErrInternalServer
		}

		membership, err := s.resolveMembership(ctx, user.ID, req.OrgID)
		if err != nil {
			return err
		}

		pair, err := s.tokens.Issue(ctx, user, membership.Role, membership.OrgID, req.Meta)
		if err != nil {
			return err
		}

		response = &AuthResponse{
			TokenPair: pair,
			OrgID:     membership.OrgID,
			Role:      string(membership.Role),
			User:      userModelToResponse(user),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("user logged in", slog.String("user_id", user.ID))
	s.audit.Record(ctx, &models.AuditEvent{
		Action:    "login.success",
		UserID:    user.ID,
		OrgID:     response.OrgID,
		IPAddress: req.Meta.IPAddress,
		UserAgent: req.Meta.UserAgent,
	})

	return response, nil
}

// Refresh rotates a refresh token and mints a fresh access token against the
// user's current membership, so role changes since login take effect.
func (s *AuthService) Refresh(ctx context.Context, opaqueToken string, meta ClientMeta) (*AuthResponse, error) {
	var response *AuthResponse
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		newToken, userID, err := s.tokens.Rotate(ctx, opaqueToken, meta)
		if err != nil {
			return err
		}

		user, err := s.users.GetByID(ctx, userID)
		if err != nil {
			s.logger.Error("failed to load user for refresh", slog.String("user_id", userID), slog.Any("error", err))
			return models.ErrInternalServer
		}
		if !user.IsActive {
			return models.ErrAccountDisabled
		}

		membership, err := s.resolveMembership(ctx, user.ID, "")
		if err != nil {
			return err
		}

		accessToken, expiresIn, err := s.tokens.GenerateAccessToken(user, membership.Role, membership.OrgID)
		if err != nil {
			return err
		}

		response = &AuthResponse{
			TokenPair: &TokenPair{
				AccessToken:  accessToken,
				RefreshToken: newToken,
				TokenType:    "Bearer",
				ExpiresIn:    expiresIn,
			},
			OrgID: membership.OrgID,
			Role:  string(membership.Role),
			User:  userModelToResponse(user),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return response, nil
}

// Logout revokes a single refresh token.
func (s *AuthService) Logout(ctx context.Context, opaqueToken string) error {
	return s.tokens.Revoke(ctx, opaqueToken)
}

// RequestPasswordReset issues a reset token when the email exists. The
// response shape is identical either way.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) error {
	normalized := NormalizeEmail(email)

	user, err := s.users.GetByNormalizedEmail(ctx, normalized)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.logger.Info("password reset requested for unknown email")
			return nil
		}
		s.logger.Error("failed to look up user for reset", slog.Any("error", err))
		return models.ErrInternalServer
	}

	var token string
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		token, err = s.issueVerificationToken(ctx, user.ID, models.TokenTypePasswordReset, "", s.cfg.PasswordResetExpiry)
		return err
	})
	if err != nil {
		return err
	}

	s.audit.Record(ctx, &models.AuditEvent{Action: "password.reset_requested", UserID: user.ID})

	if err := s.email.SendPasswordResetEmail(ctx, user.Email, token); err != nil {
		s.logger.Error("failed to send password reset email", slog.String("user_id", user.ID), slog.Any("error", err))
	}
	return nil
}

// ConfirmPasswordReset consumes a reset token, replaces the password and
// revokes every session for the user.
func (s *AuthService) ConfirmPasswordReset(ctx context.Context, opaqueToken, newPassword string) error {
	if err := s.hooks.CheckPassword(newPassword); err != nil {
		return err
	}

	record, err := s.resolveVerificationToken(ctx, opaqueToken, models.TokenTypePasswordReset)
	if err != nil {
		return err
	}

	passwordHash, err := pkgauth.HashPassword(newPassword)
	if err != nil {
		s.logger.Error("failed to hash password", slog.Any("error", err))
		return models.ErrInternalServer
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		used, err := s.verifications.MarkUsed(ctx, record.ID, time.Now())
		if err != nil {
			s.logger.Error("failed to consume reset token", slog.Any("error", err))
			return models.ErrInternalServer
		}
		if !used {
			return models.ErrTokenExpired
		}
		if err := s.creds.UpdatePassword(ctx, record.UserID, passwordHash); err != nil {
			s.logger.Error("failed to update password", slog.String("user_id", record.UserID), slog.Any("error", err))
			return models.ErrInternalServer
		}
		return s.tokens.RevokeAllForUser(ctx, record.UserID)
	})
	if err != nil {
		return err
	}

	s.logger.Info("password reset completed", slog.String("user_id", record.UserID))
	s.audit.Record(ctx, &models.AuditEvent{Action: "password.reset_completed", UserID: record.UserID})
	return nil
}

// ChangePassword replaces the password after verifying the current one, then
// revokes every session.
func (s *AuthService) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	cred, err := s.creds.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrInvalidPassword
		}
		s.logger.Error("failed to load credential", slog.String("user_id", userID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	if err := pkgauth.ComparePassword(cred.PasswordHash, currentPassword); err != nil {
		return models.ErrInvalidPassword
	}

	if err := s.hooks.CheckPassword(newPassword); err != nil {
		return err
	}

	passwordHash, err := pkgauth.HashPassword(newPassword)
	if err != nil {
		s.logger.Error("failed to hash password", slog.Any("error", err))
		return models.ErrInternalServer
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.creds.UpdatePassword(ctx, userID, passwordHash); err != nil {
			s.logger.Error("failed to update password", slog.String("user_id", userID), slog.Any("error", err))
			return models.ErrInternalServer
		}
		return s.tokens.RevokeAllForUser(ctx, userID)
	})
	if err != nil {
		return err
	}

	s.logger.Info("password changed", slog.String("user_id", userID))
	s.audit.Record(ctx, &models.AuditEvent{Action: "password.changed", UserID: userID})
	return nil
}

// RequestEmailChange starts the two-phase email change: the token carries the
// pending new address and is mailed to it, so receiving the mail is the
// verification.
func (s *AuthService) RequestEmailChange(ctx context.Context, userID, newEmail, currentPassword string) error {
	normalized := NormalizeEmail(newEmail)
	if normalized == "" {
		return models.NewValidationError("email_invalid", "email is required")
	}

	cred, err := s.creds.GetByUserID(ctx, userID)
	if err != nil {
		s.logger.Error("failed to load credential", slog.String("user_id", userID), slog.Any("error", err))
		return models.ErrInternalServer
	}
	if err := pkgauth.ComparePassword(cred.PasswordHash, currentPassword); err != nil {
		return models.ErrInvalidPassword
	}

	if err := s.hooks.CheckEmailDomain(normalized); err != nil {
		return err
	}

	if _, err := s.users.GetByNormalizedEmail(ctx, normalized); err == nil {
		return models.ErrEmailExists
	} else if !errors.Is(err, models.ErrNotFound) {
		s.logger.Error("failed to check email uniqueness", slog.Any("error", err))
		return models.ErrInternalServer
	}

	var token string
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		token, err = s.issueVerificationToken(ctx, userID, models.TokenTypeEmailChange, strings.TrimSpace(newEmail), s.cfg.EmailChangeExpiry)
		return err
	})
	if err != nil {
		return err
	}

	s.audit.Record(ctx, &models.AuditEvent{Action: "email.change_requested", UserID: userID})

	if err := s.email.SendEmailChangeEmail(ctx, strings.TrimSpace(newEmail), token); err != nil {
		s.logger.Error("failed to send email change email", slog.String("user_id", userID), slog.Any("error", err))
	}
	return nil
}

// ConfirmEmailChange consumes the token and moves the account to the pending
// address carried in it, marking the account verified.
func (s *AuthService) ConfirmEmailChange(ctx context.Context, opaqueToken string) error {
	record, err := s.resolveVerificationToken(ctx, opaqueToken, models.TokenTypeEmailChange)
	if err != nil {
		return err
	}
	if record.Email == "" {
		return models.ErrTokenInvalid
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		used, err := s.verifications.MarkUsed(ctx, record.ID, time.Now())
		if err != nil {
			s.logger.Error("failed to consume email change token", slog.Any("error", err))
			return models.ErrInternalServer
		}
		if !used {
			return models.ErrTokenExpired
		}
		if err := s.users.UpdateEmail(ctx, record.UserID, record.Email, NormalizeEmail(record.Email)); err != nil {
			if errors.Is(err, models.ErrConflict) {
				return models.ErrEmailExists
			}
			s.logger.Error("failed to update email", slog.String("user_id", record.UserID), slog.Any("error", err))
			return models.ErrInternalServer
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("email changed", slog.String("user_id", record.UserID))
	s.audit.Record(ctx, &models.AuditEvent{Action: "email.changed", UserID: record.UserID})
	return nil
}

// resolveMembership binds a session to one membership: the named org when
// given, otherwise the user's earliest membership.
func (s *AuthService) resolveMembership(ctx context.Context, userID, orgID string) (*models.Membership, error) {
	var membership *models.Membership
	var err error

	if orgID != "" {
		membership, err = s.memberships.GetByUserAndOrg(ctx, userID, orgID)
	} else {
		membership, err = s.memberships.FirstForUser(ctx, userID)
	}
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrOrgMembershipMissing
		}
		s.logger.Error("failed to resolve membership", slog.String("user_id", userID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	return membership, nil
}

// issueVerificationToken invalidates any live token of the same type and
// creates the replacement, returning its opaque wire form.
func (s *AuthService) issueVerificationToken(ctx context.Context, userID string, tokenType models.VerificationTokenType, email string, expiry time.Duration) (string, error) {
	now := time.Now()
	if _, err := s.verifications.InvalidateActiveForUser(ctx, userID, tokenType, now); err != nil {
		s.logger.Error("failed to invalidate previous tokens", slog.String("user_id", userID), slog.Any("error", err))
		return "", models.ErrInternalServer
	}

	secret, err := auth.NewSecret()
	if err != nil {
		s.logger.Error("failed to generate token secret", slog.Any("error", err))
		return "", models.ErrInternalServer
	}

	record, err := s.verifications.Create(ctx, &models.VerificationToken{
		UserID:    userID,
		TokenType: tokenType,
		TokenHash: auth.HashSecret(secret),
		Email:     email,
		ExpiresAt: now.Add(expiry),
	})
	if err != nil {
		s.logger.Error("failed to persist verification token", slog.String("user_id", userID), slog.Any("error", err))
		return "", models.ErrInternalServer
	}

	return auth.FormatToken(record.ID, secret), nil
}

// resolveVerificationToken checks an opaque token without consuming it.
// Unknown ids, wrong types and hash mismatches collapse into token_invalid so
// guessing gains no oracle; used and expired collapse into token_expired.
func (s *AuthService) resolveVerificationToken(ctx context.Context, opaqueToken string, wantType models.VerificationTokenType) (*models.VerificationToken, error) {
	id, secret, err := auth.SplitToken(opaqueToken)
	if err != nil {
		return nil, models.ErrTokenMalformed
	}

	record, err := s.verifications.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrTokenInvalid
		}
		s.logger.Error("failed to load verification token", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if record.TokenType != wantType || !auth.VerifySecret(secret, record.TokenHash) {
		return nil, models.ErrTokenInvalid
	}
	if record.Used() || record.Expired(time.Now()) {
		return nil, models.ErrTokenExpired
	}

	return record, nil
}

func localPart(email string) string {
	if at := strings.Index(email, "@"); at > 0 {
		return email[:at]
	}
	return email
}
