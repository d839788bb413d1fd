package handlers

import (
	"context"
	"net/http"

	"github.com/averycrane/gatehouse/internal/services"
	pkghttp "github.com/averycrane/gatehouse/pkg/http"
	"github.com/go-chi/chi/v5"
)

// OAuthServiceInterface defines the OAuth flow operations
type OAuthServiceInterface interface {
	AuthorizationURL(ctx context.Context, providerName, redirectURI string) (*services.AuthorizationResponse, error)
	Callback(ctx context.Context, providerName, code, state string, meta services.ClientMeta) (*services.AuthResponse, error)
}

// OAuthHandler handles the authorization-code + PKCE round trip.
type OAuthHandler struct {
	service  OAuthServiceInterface
	ipConfig *pkghttp.IPConfig
}

func NewOAuthHandler(service OAuthServiceInterface, ipConfig *pkghttp.IPConfig) *OAuthHandler {
	return &OAuthHandler{
		service:  service,
		ipConfig: ipConfig,
	}
}

type OAuthCallbackRequest struct {
	Code  string `json:"code" validate:"required"`
	State string `json:"state" validate:"required"`
}

// Authorize handles GET /auth/oauth/{provider}/authorize
func (h *OAuthHandler) Authorize(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	redirectURI := r.URL.Query().Get("redirect_uri")

	resp, err := h.service.AuthorizationURL(r.Context(), provider, redirectURI)
	if err != nil {
		pkghttp.WriteServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, resp)
}

// Callback handles POST /auth/oauth/{provider}/callback
func (h *OAuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")

	var req OAuthCallbackRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	meta := services.ClientMeta{
		IPAddress: pkghttp.ClientIP(r, h.ipConfig),
		UserAgent: r.Header.Get("User-Agent"),
	}

	resp, err := h.service.Callback(r.Context(), provider, req.Code, req.State, meta)
	if err != nil {
		pkghttp.WriteServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, resp)
}
