package routes

import (
	"time"

	"github.com/averycrane/gatehouse/internal/auth"
	"github.com/averycrane/gatehouse/internal/handlers"
	"github.com/averycrane/gatehouse/internal/middleware"
	"github.com/averycrane/gatehouse/internal/models"
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all application routes.
//
// Public auth endpoints sit behind a per-IP, per-endpoint rate limit in
// addition to the finer-grained limits the auth service applies per
// account. Authenticated routes are gated by scope; the services still
// re-check org membership, so the scope check is a fast-path rejection,
// not the only line of defense.
func RegisterRoutes(
	router chi.Router,
	authHandler *handlers.AuthHandler,
	oauthHandler *handlers.OAuthHandler,
	orgHandler *handlers.OrgHandler,
	userHandler *handlers.UserHandler,
	tokenManager *auth.TokenManager,
) {
	authLimit := middleware.RateLimitByEndpoint(20, 1*time.Minute)

	// Public routes, no authentication required
	router.Group(func(r chi.Router) {
		r.Use(authLimit)

		r.Post("/auth/register", authHandler.Register)
		r.Post("/auth/login", authHandler.Login)
		r.Post("/auth/refresh", authHandler.Refresh)
		r.Post("/auth/logout", authHandler.Logout)
		r.Post("/auth/verify-email", authHandler.VerifyEmail)
		r.Post("/auth/resend-verification", authHandler.ResendVerification)
		r.Post("/auth/password-reset", authHandler.RequestPasswordReset)
		r.Post("/auth/password-reset/confirm", authHandler.ConfirmPasswordReset)
		r.Post("/auth/email-change/confirm", authHandler.ConfirmEmailChange)

		r.Get("/auth/oauth/{provider}/authorize", oauthHandler.Authorize)
		r.Post("/auth/oauth/{provider}/callback", oauthHandler.Callback)
	})

	// Protected routes, authentication required
	router.Group(func(r chi.Router) {
		r.Use(auth.Middleware(tokenManager))

		// Any authenticated user can manage their own credentials, create
		// orgs, list their memberships, and accept invitations addressed
		// to their verified email.
		r.Post("/auth/password", authHandler.ChangePassword)
		r.Post("/auth/email-change", authHandler.RequestEmailChange)
		r.Post("/orgs", orgHandler.Create)
		r.Get("/orgs", orgHandler.List)
		r.Post("/invitations/accept", orgHandler.AcceptInvitation)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireScope(models.ScopeProfileRead))
			r.Get("/users/me", userHandler.Me)
			r.Get("/users/me/audit-events", userHandler.MyAuditEvents)
		})

		// Any role in the org can see its roster; the service refuses
		// requesters without a membership of {orgID}.
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireScope(models.ScopeOrgsRead))
			r.Get("/orgs/{orgID}/members", orgHandler.ListMembers)
		})

		// The user directory is admin-only via scope resolution.
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireScope(models.ScopeAdminUsersRead))
			r.Get("/admin/users", userHandler.ListUsers)
		})

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireScope(models.ScopeProfileWrite))
			r.Patch("/users/me", userHandler.UpdateMe)
			r.Delete("/users/me", userHandler.DeactivateMe)
		})

		// Invitation management is scoped to the org in the access token;
		// the service additionally verifies admin membership of {orgID}.
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireScope(models.ScopeInvitationsWrite))
			r.Post("/orgs/{orgID}/invitations", orgHandler.Invite)
			r.Get("/orgs/{orgID}/invitations", orgHandler.ListInvitations)
		})
	})
}
