package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/averycrane/gatehouse/internal/auth"
	"github.com/averycrane/gatehouse/internal/models"
	"github.com/averycrane/gatehouse/internal/services"
	pkghttp "github.com/averycrane/gatehouse/pkg/http"
)

// UserServiceInterface defines the profile operations
type UserServiceInterface interface {
	GetProfile(ctx context.Context, userID string) (*services.ProfileResponse, error)
	UpdateProfile(ctx context.Context, userID string, req services.UpdateProfileRequest) (*services.UserResponse, error)
	Deactivate(ctx context.Context, userID string) error
	ListUsers(ctx context.Context, limit, offset int) ([]*services.UserResponse, error)
}

// AuditQueryInterface exposes the audit trail for the authenticated user.
type AuditQueryInterface interface {
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]*models.AuditEvent, error)
}

// UserHandler handles the authenticated user's own account.
type UserHandler struct {
	service UserServiceInterface
	audit   AuditQueryInterface
}

func NewUserHandler(service UserServiceInterface, audit AuditQueryInterface) *UserHandler {
	return &UserHandler{
		service: service,
		audit:   audit,
	}
}

type UpdateProfileRequest struct {
	DisplayName  *string        `json:"display_name" validate:"omitempty,max=200"`
	AvatarURL    *string        `json:"avatar_url" validate:"omitempty,url,max=500"`
	Locale       *string        `json:"locale" validate:"omitempty,max=20"`
	Timezone     *string        `json:"timezone" validate:"omitempty,max=50"`
	CustomFields map[string]any `json:"custom_fields"`
}

// Me handles GET /users/me
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	claims := auth.ClaimsFromContext(r.Context())
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	profile, err := h.service.GetProfile(r.Context(), claims.Subject)
	if err != nil {
		pkghttp.WriteServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, profile)
}

// UpdateMe handles PATCH /users/me
func (h *UserHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	claims := auth.ClaimsFromContext(r.Context())
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	var req UpdateProfileRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	user, err := h.service.UpdateProfile(r.Context(), claims.Subject, services.UpdateProfileRequest{
		DisplayName:  req.DisplayName,
		AvatarURL:    req.AvatarURL,
		Locale:       req.Locale,
		Timezone:     req.Timezone,
		CustomFields: req.CustomFields,
	})
	if err != nil {
		pkghttp.WriteServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, user)
}

// DeactivateMe handles DELETE /users/me
func (h *UserHandler) DeactivateMe(w http.ResponseWriter, r *http.Request) {
	claims := auth.ClaimsFromContext(r.Context())
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	if err := h.service.Deactivate(r.Context(), claims.Subject); err != nil {
		pkghttp.WriteServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListUsers handles GET /admin/users
func (h *UserHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	claims := auth.ClaimsFromContext(r.Context())
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	users, err := h.service.ListUsers(r.Context(), limit, offset)
	if err != nil {
		pkghttp.WriteServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]any{"users": users})
}

// MyAuditEvents handles GET /users/me/audit-events
func (h *UserHandler) MyAuditEvents(w http.ResponseWriter, r *http.Request) {
	claims := auth.ClaimsFromContext(r.Context())
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	events, err := h.audit.ListByUser(r.Context(), claims.Subject, limit, offset)
	if err != nil {
		pkghttp.WriteServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]any{"events": events})
}
