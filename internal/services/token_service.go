package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/averycrane/gatehouse/internal/auth"
	"github.com/averycrane/gatehouse/internal/models"
)

// RefreshTokenRepository defines the persistence contract for refresh tokens
type RefreshTokenRepository interface {
	Create(ctx context.Context, token *models.RefreshToken) (*models.RefreshToken, error)
	GetByID(ctx context.Context, id string) (*models.RefreshToken, error)
	Revoke(ctx context.Context, id string, revokedAt time.Time) (bool, error)
	RevokeAllForUser(ctx context.Context, userID string, revokedAt time.Time) (int64, error)
	TouchLastUsed(ctx context.Context, id string, usedAt time.Time) error
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// TxRunner runs a function inside one storage transaction. Repository calls
// made with the function's context join that transaction.
type TxRunner interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// ClientMeta is the request metadata recorded against issued sessions.
type ClientMeta struct {
	IPAddress string
	UserAgent string
}

// TokenPair is an issued session: a short-lived signed access token and a
// long-lived opaque refresh token.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

// TokenService issues access/refresh token pairs and manages the refresh
// token lifecycle: rotation on use, revocation on logout and on credential
// changes.
type TokenService struct {
	refreshRepo   RefreshTokenRepository
	tm            *auth.TokenManager
	tx            TxRunner
	logger        *slog.Logger
	refreshExpiry time.Duration
}

func NewTokenService(refreshRepo RefreshTokenRepository, tm *auth.TokenManager, tx TxRunner, logger *slog.Logger, refreshExpiry time.Duration) *TokenService {
	return &TokenService{
		refreshRepo:   refreshRepo,
		tm:            tm,
		tx:            tx,
		logger:        logger,
		refreshExpiry: refreshExpiry,
	}
}

// Issue mints a token pair for a resolved membership.
func (s *TokenService) Issue(ctx context.Context, user *models.User, role models.Role, orgID string, meta ClientMeta) (*TokenPair, error) {
	scopes := models.ResolveScopes(role)

	accessToken, err := s.tm.GenerateAccessToken(user.ID, user.Email, role, orgID, scopes)
	if err != nil {
		s.logger.Error("failed to generate access token", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	secret, err := auth.NewSecret()
	if err != nil {
		s.logger.Error("failed to generate refresh secret", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	record := &models.RefreshToken{
		UserID:    user.ID,
		TokenHash: auth.HashSecret(secret),
		ExpiresAt: time.Now().Add(s.refreshExpiry),
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
	}

	created, err := s.refreshRepo.Create(ctx, record)
	if err != nil {
		s.logger.Error("failed to persist refresh token", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: auth.FormatToken(created.ID, secret),
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.tm.AccessExpiry().Seconds()),
	}, nil
}

// Rotate verifies an opaque refresh token, revokes it and creates its
// replacement as one atomic unit. The conditional revoke makes concurrent
// rotations of the same token yield exactly one winner; the loser observes
// the token as already revoked. Returns the new opaque token and the owning
// user id.
func (s *TokenService) Rotate(ctx context.Context, opaqueToken string, meta ClientMeta) (string, string, error) {
	record, err := s.verify(ctx, opaqueToken)
	if err != nil {
		return "", "", err
	}

	newSecret, err := auth.NewSecret()
	if err != nil {
		s.logger.Error("failed to generate refresh secret", slog.Any("error", err))
		return "", "", models.ErrInternalServer
	}

	var replacement *models.RefreshToken
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		now := time.Now()

		revoked, err := s.refreshRepo.Revoke(ctx, record.ID, now)
		if err != nil {
			s.logger.Error("failed to revoke refresh token", slog.String("token_id", record.ID), slog.Any("error", err))
			return models.ErrInternalServer
		}
		if !revoked {
			// A concurrent rotation won. Reuse of a rotated token signals
			// possible theft to the caller.
			return models.ErrRefreshExpired
		}

		if err := s.refreshRepo.TouchLastUsed(ctx, record.ID, now); err != nil {
			s.logger.Warn("failed to stamp last_used_at", slog.String("token_id", record.ID), slog.Any("error", err))
		}

		replacement, err = s.refreshRepo.Create(ctx, &models.RefreshToken{
			UserID:    record.UserID,
			TokenHash: auth.HashSecret(newSecret),
			ExpiresAt: now.Add(s.refreshExpiry),
			IPAddress: meta.IPAddress,
			UserAgent: meta.UserAgent,
		})
		if err != nil {
			s.logger.Error("failed to persist rotated refresh token", slog.String("user_id", record.UserID), slog.Any("error", err))
			return models.ErrInternalServer
		}
		return nil
	})
	if err != nil {
		return "", "", err
	}

	return auth.FormatToken(replacement.ID, newSecret), record.UserID, nil
}

// Revoke tombstones a single refresh token. An already-revoked token is not
// distinguished from a live one beyond the generic invalid error, so logout
// leaks nothing about session existence.
func (s *TokenService) Revoke(ctx context.Context, opaqueToken string) error {
	id, secret, err := auth.SplitToken(opaqueToken)
	if err != nil {
		return models.ErrRefreshInvalid
	}

	record, err := s.refreshRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrRefreshInvalid
		}
		s.logger.Error("failed to load refresh token", slog.Any("error", err))
		return models.ErrInternalServer
	}

	if !auth.VerifySecret(secret, record.TokenHash) {
		return models.ErrRefreshInvalid
	}

	if _, err := s.refreshRepo.Revoke(ctx, record.ID, time.Now()); err != nil {
		s.logger.Error("failed to revoke refresh token", slog.String("token_id", record.ID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	return nil
}

// RevokeAllForUser invalidates every live session for the user. Called on
// password change, password reset and account deactivation.
func (s *TokenService) RevokeAllForUser(ctx context.Context, userID string) error {
	count, err := s.refreshRepo.RevokeAllForUser(ctx, userID, time.Now())
	if err != nil {
		s.logger.Error("failed to revoke user sessions", slog.String("user_id", userID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.logger.Info("revoked user sessions", slog.String("user_id", userID), slog.Int64("count", count))
	return nil
}

// GenerateAccessToken mints a fresh access token for an already-authenticated
// user, used after rotation when membership is re-resolved.
func (s *TokenService) GenerateAccessToken(user *models.User, role models.Role, orgID string) (string, int64, error) {
	accessToken, err := s.tm.GenerateAccessToken(user.ID, user.Email, role, orgID, models.ResolveScopes(role))
	if err != nil {
		s.logger.Error("failed to generate access token", slog.String("user_id", user.ID), slog.Any("error", err))
		return "", 0, models.ErrInternalServer
	}
	return accessToken, int64(s.tm.AccessExpiry().Seconds()), nil
}

// verify resolves and checks an opaque refresh token without mutating it.
func (s *TokenService) verify(ctx context.Context, opaqueToken string) (*models.RefreshToken, error) {
	id, secret, err := auth.SplitToken(opaqueToken)
	if err != nil {
		return nil, models.ErrRefreshInvalid
	}

	record, err := s.refreshRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrRefreshInvalid
		}
		s.logger.Error("failed to load refresh token", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if !auth.VerifySecret(secret, record.TokenHash) {
		return nil, models.ErrRefreshInvalid
	}

	if record.Revoked() || record.Expired(time.Now()) {
		return nil, models.ErrRefreshExpired
	}

	return record, nil
}
