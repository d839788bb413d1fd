package handlers

import (
	"context"
	"net/http"

	"github.com/averycrane/gatehouse/internal/auth"
	"github.com/averycrane/gatehouse/internal/models"
	"github.com/averycrane/gatehouse/internal/services"
	pkghttp "github.com/averycrane/gatehouse/pkg/http"
	"github.com/go-chi/chi/v5"
)

// OrgServiceInterface defines the organization and invitation operations
type OrgServiceInterface interface {
	CreateOrg(ctx context.Context, creatorUserID, name, slug string) (*services.OrgResponse, error)
	ListUserOrgs(ctx context.Context, userID string) ([]*services.OrgResponse, error)
	ListMembers(ctx context.Context, orgID, requesterUserID string) ([]*services.MemberResponse, error)
	Invite(ctx context.Context, orgID, inviterUserID, email string, role models.Role) (*services.InvitationResponse, error)
	AcceptInvitation(ctx context.Context, opaqueToken, userID, userEmail string) (*services.OrgResponse, error)
	ListInvitations(ctx context.Context, orgID string) ([]*services.InvitationResponse, error)
}

// OrgHandler handles organization membership and invitation requests.
type OrgHandler struct {
	service OrgServiceInterface
}

func NewOrgHandler(service OrgServiceInterface) *OrgHandler {
	return &OrgHandler{service: service}
}

type CreateOrgRequest struct {
	Name string `json:"name" validate:"required,min=1,max=200"`
	Slug string `json:"slug" validate:"max=100"`
}

type InviteRequest struct {
	Email string `json:"email" validate:"required,email"`
	Role  string `json:"role" validate:"required,oneof=admin member readonly"`
}

type AcceptInvitationRequest struct {
	Token string `json:"token" validate:"required"`
}

// Create handles POST /orgs
func (h *OrgHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims := auth.ClaimsFromContext(r.Context())
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	var req CreateOrgRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	org, err := h.service.CreateOrg(r.Context(), claims.Subject, req.Name, req.Slug)
	if err != nil {
		pkghttp.WriteServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusCreated, org)
}

// List handles GET /orgs
func (h *OrgHandler) List(w http.ResponseWriter, r *http.Request) {
	claims := auth.ClaimsFromContext(r.Context())
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	orgs, err := h.service.ListUserOrgs(r.Context(), claims.Subject)
	if err != nil {
		pkghttp.WriteServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]any{"organizations": orgs})
}

// ListMembers handles GET /orgs/{orgID}/members
func (h *OrgHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
	claims := auth.ClaimsFromContext(r.Context())
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}
	orgID := chi.URLParam(r, "orgID")

	members, err := h.service.ListMembers(r.Context(), orgID, claims.Subject)
	if err != nil {
		pkghttp.WriteServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]any{"members": members})
}

// Invite handles POST /orgs/{orgID}/invitations
func (h *OrgHandler) Invite(w http.ResponseWriter, r *http.Request) {
	claims := auth.ClaimsFromContext(r.Context())
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}
	orgID := chi.URLParam(r, "orgID")

	var req InviteRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	invitation, err := h.service.Invite(r.Context(), orgID, claims.Subject, req.Email, models.Role(req.Role))
	if err != nil {
		pkghttp.WriteServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusCreated, invitation)
}

// ListInvitations handles GET /orgs/{orgID}/invitations
func (h *OrgHandler) ListInvitations(w http.ResponseWriter, r *http.Request) {
	claims := auth.ClaimsFromContext(r.Context())
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}
	orgID := chi.URLParam(r, "orgID")

	invitations, err := h.service.ListInvitations(r.Context(), orgID)
	if err != nil {
		pkghttp.WriteServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]any{"invitations": invitations})
}

// AcceptInvitation handles POST /invitations/accept
func (h *OrgHandler) AcceptInvitation(w http.ResponseWriter, r *http.Request) {
	claims := auth.ClaimsFromContext(r.Context())
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	var req AcceptInvitationRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	org, err := h.service.AcceptInvitation(r.Context(), req.Token, claims.Subject, claims.Email)
	if err != nil {
		pkghttp.WriteServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, org)
}
