package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/averycrane/gatehouse/internal/auth"
	"github.com/averycrane/gatehouse/internal/models"
	"github.com/averycrane/gatehouse/internal/services"
	pkghttp "github.com/averycrane/gatehouse/pkg/http"
)

// AuthServiceInterface defines the auth flows the handler depends on
type AuthServiceInterface interface {
	Register(ctx context.Context, req services.RegisterRequest) (*services.UserResponse, error)
	Login(ctx context.Context, req services.LoginRequest) (*services.AuthResponse, error)
	Refresh(ctx context.Context, opaqueToken string, meta services.ClientMeta) (*services.AuthResponse, error)
	Logout(ctx context.Context, opaqueToken string) error
	VerifyEmail(ctx context.Context, opaqueToken string) error
	ResendVerification(ctx context.Context, email string) error
	RequestPasswordReset(ctx context.Context, email string) error
	ConfirmPasswordReset(ctx context.Context, opaqueToken, newPassword string) error
	ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error
	RequestEmailChange(ctx context.Context, userID, newEmail, currentPassword string) error
	ConfirmEmailChange(ctx context.Context, opaqueToken string) error
}

// AbuseLimiter gates the unauthenticated auth endpoints by client identity.
type AbuseLimiter interface {
	AllowLogin(ctx context.Context, email, ip string) error
	AllowRegister(ctx context.Context, ip string) error
	AllowPasswordReset(ctx context.Context, ip string) error
}

// AuthHandler handles registration, login, refresh and the single-use token
// flows.
type AuthHandler struct {
	service  AuthServiceInterface
	limiter  AbuseLimiter
	ipConfig *pkghttp.IPConfig
}

func NewAuthHandler(service AuthServiceInterface, limiter AbuseLimiter, ipConfig *pkghttp.IPConfig) *AuthHandler {
	return &AuthHandler{
		service:  service,
		limiter:  limiter,
		ipConfig: ipConfig,
	}
}

// Request DTOs

type RegisterRequest struct {
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required"`
	DisplayName string `json:"display_name" validate:"max=200"`
	OrgName     string `json:"org_name" validate:"max=200"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	OrgID    string `json:"org_id"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type LogoutRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type TokenRequest struct {
	Token string `json:"token" validate:"required"`
}

type EmailRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type ConfirmPasswordResetRequest struct {
	Token       string `json:"token" validate:"required"`
	NewPassword string `json:"new_password" validate:"required"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required"`
}

type RequestEmailChangeRequest struct {
	NewEmail        string `json:"new_email" validate:"required,email"`
	CurrentPassword string `json:"current_password" validate:"required"`
}

func (h *AuthHandler) clientMeta(r *http.Request) services.ClientMeta {
	return services.ClientMeta{
		IPAddress: pkghttp.ClientIP(r, h.ipConfig),
		UserAgent: r.Header.Get("User-Agent"),
	}
}

func decodeAndValidate(w http.ResponseWriter, r *http.Request, req any) bool {
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		pkghttp.WriteBadRequest(w, "invalid request body")
		return false
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return false
	}
	return true
}

// Register handles POST /auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	meta := h.clientMeta(r)
	if err := h.limiter.AllowRegister(r.Context(), meta.IPAddress); err != nil {
		pkghttp.WriteServiceError(w, err)
		return
	}

	user, err := h.service.Register(r.Context(), services.RegisterRequest{
		Email:       req.Email,
		Password:    req.Password,
		DisplayName: req.DisplayName,
		OrgName:     req.OrgName,
		Meta:        meta,
	})
	if err != nil {
		pkghttp.WriteServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusCreated, user)
}

// Login handles POST /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	meta := h.clientMeta(r)
	if err := h.limiter.AllowLogin(r.Context(), req.Email, meta.IPAddress); err != nil {
		pkghttp.WriteServiceError(w, err)
		return
	}

	resp, err := h.service.Login(r.Context(), services.LoginRequest{
		Email:    req.Email,
		Password: req.Password,
		OrgID:    req.OrgID,
		Meta:     meta,
	})
	if err != nil {
		pkghttp.WriteServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, resp)
}

// Refresh handles POST /auth/refresh
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	resp, err := h.service.Refresh(r.Context(), req.RefreshToken, h.clientMeta(r))
	if err != nil {
		pkghttp.WriteServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, resp)
}

// Logout handles POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	var req LogoutRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	if err := h.service.Logout(r.Context(), req.RefreshToken); err != nil {
		// Revoking an unknown token still logs the client out
		if !errors.Is(err, models.ErrRefreshInvalid) {
			pkghttp.WriteServiceError(w, err)
			return
		}
	}

	w.WriteHeader(http.StatusNoContent)
}

// VerifyEmail handles POST /auth/verify-email
func (h *AuthHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req TokenRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	if err := h.service.VerifyEmail(r.Context(), req.Token); err != nil {
		pkghttp.WriteServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]string{
		"message": "email verified",
	})
}

// ResendVerification handles POST /auth/resend-verification. The response is
// identical whether or not the email exists.
func (h *AuthHandler) ResendVerification(w http.ResponseWriter, r *http.Request) {
	var req EmailRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	if err := h.service.ResendVerification(r.Context(), req.Email); err != nil {
		if errors.Is(err, models.ErrRateLimited) {
			pkghttp.WriteServiceError(w, err)
			return
		}
		// Other failures stay success-shaped to avoid an existence oracle
	}

	pkghttp.WriteJSON(w, http.StatusAccepted, map[string]string{
		"message": "if an account exists with this email, a verification email will be sent",
	})
}

// RequestPasswordReset handles POST /auth/password-reset. Success-shaped
// regardless of whether the email is registered.
func (h *AuthHandler) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req EmailRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	ip := pkghttp.ClientIP(r, h.ipConfig)
	if err := h.limiter.AllowPasswordReset(r.Context(), ip); err != nil {
		pkghttp.WriteServiceError(w, err)
		return
	}

	_ = h.service.RequestPasswordReset(r.Context(), req.Email)

	pkghttp.WriteJSON(w, http.StatusAccepted, map[string]string{
		"message": "if an account exists with this email, a password reset email will be sent",
	})
}

// ConfirmPasswordReset handles POST /auth/password-reset/confirm
func (h *AuthHandler) ConfirmPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req ConfirmPasswordResetRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	if err := h.service.ConfirmPasswordReset(r.Context(), req.Token, req.NewPassword); err != nil {
		pkghttp.WriteServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]string{
		"message": "password updated, please log in again",
	})
}

// ChangePassword handles POST /auth/password (authenticated)
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	claims := auth.ClaimsFromContext(r.Context())
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	var req ChangePasswordRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	if err := h.service.ChangePassword(r.Context(), claims.Subject, req.CurrentPassword, req.NewPassword); err != nil {
		pkghttp.WriteServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// RequestEmailChange handles POST /auth/email-change (authenticated)
func (h *AuthHandler) RequestEmailChange(w http.ResponseWriter, r *http.Request) {
	claims := auth.ClaimsFromContext(r.Context())
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	var req RequestEmailChangeRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	if err := h.service.RequestEmailChange(r.Context(), claims.Subject, req.NewEmail, req.CurrentPassword); err != nil {
		pkghttp.WriteServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusAccepted, map[string]string{
		"message": "confirmation email sent to the new address",
	})
}

// ConfirmEmailChange handles POST /auth/email-change/confirm
func (h *AuthHandler) ConfirmEmailChange(w http.ResponseWriter, r *http.Request) {
	var req TokenRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	if err := h.service.ConfirmEmailChange(r.Context(), req.Token); err != nil {
		pkghttp.WriteServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]string{
		"message": "email address updated",
	})
}
