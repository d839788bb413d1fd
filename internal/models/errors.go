package models

// Kind classifies a failure into one of the stable error classes exposed to
// clients. Handlers map kinds to HTTP status codes; services never return raw
// storage or network errors.
type Kind string

const (
	KindConflict    Kind = "conflict"
	KindAuthFailed  Kind = "auth_failed"
	KindForbidden   Kind = "forbidden"
	KindNotFound    Kind = "not_found"
	KindValidation  Kind = "validation"
	KindRateLimited Kind = "rate_limited"
	KindInternal    Kind = "internal"
)

// Error is the service-boundary error type. Code is a stable machine-readable
// identifier distinct from the human message, so clients can branch without
// string-matching prose.
type Error struct {
	Kind    Kind
	Code    string
	Message string
}

func (e *Error) Error() string { return e.Message }

// NewValidationError builds a validation failure with a distinct code, used by
// policy hooks to report exactly which rule rejected the input.
func NewValidationError(code, message string) *Error {
	return &Error{Kind: KindValidation, Code: code, Message: message}
}

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = &Error{Kind: KindNotFound, Code: "not_found", Message: "resource not found"}
	ErrConflict       = &Error{Kind: KindConflict, Code: "conflict", Message: "resource already exists"}
	ErrForbidden      = &Error{Kind: KindForbidden, Code: "forbidden", Message: "forbidden"}
	ErrRateLimited    = &Error{Kind: KindRateLimited, Code: "rate_limited", Message: "rate limit exceeded"}
	ErrInternalServer = &Error{Kind: KindInternal, Code: "internal_error", Message: "internal server error"}

	// Registration / account conflicts
	ErrEmailExists   = &Error{Kind: KindConflict, Code: "email_exists", Message: "email already registered"}
	ErrOrgSlugExists = &Error{Kind: KindConflict, Code: "org_slug_exists", Message: "organization slug already exists"}

	// Credential verification
	ErrInvalidCredentials = &Error{Kind: KindAuthFailed, Code: "invalid_credentials", Message: "invalid credentials"}
	ErrEmailNotVerified   = &Error{Kind: KindAuthFailed, Code: "email_not_verified", Message: "email address not verified"}
	ErrAccountLocked      = &Error{Kind: KindAuthFailed, Code: "account_locked", Message: "account is temporarily locked"}
	ErrAccountDisabled    = &Error{Kind: KindAuthFailed, Code: "account_disabled", Message: "account is disabled"}
	ErrInvalidPassword    = &Error{Kind: KindAuthFailed, Code: "invalid_password", Message: "current password is incorrect"}

	// Membership resolution
	ErrOrgMembershipMissing = &Error{Kind: KindAuthFailed, Code: "org_membership_missing", Message: "no membership for organization"}

	// Opaque token consumption. Malformed/unknown/used sub-conditions collapse
	// into these so token guessing gains no oracle.
	ErrTokenMalformed = &Error{Kind: KindValidation, Code: "token_malformed", Message: "malformed token"}
	ErrTokenInvalid   = &Error{Kind: KindValidation, Code: "token_invalid", Message: "invalid token"}
	ErrTokenExpired   = &Error{Kind: KindValidation, Code: "token_expired", Message: "token expired"}

	// Refresh token lifecycle
	ErrRefreshInvalid = &Error{Kind: KindAuthFailed, Code: "refresh_invalid", Message: "invalid refresh token"}
	ErrRefreshExpired = &Error{Kind: KindAuthFailed, Code: "refresh_expired", Message: "refresh token expired or revoked"}

	// OAuth flow
	ErrOAuthStateInvalid    = &Error{Kind: KindAuthFailed, Code: "oauth_state_invalid", Message: "invalid oauth state"}
	ErrOAuthRedirectMissing = &Error{Kind: KindAuthFailed, Code: "oauth_redirect_missing", Message: "redirect uri not configured"}
	ErrOAuthEmailUnverified = &Error{Kind: KindAuthFailed, Code: "oauth_email_unverified", Message: "email not verified by provider"}
	ErrOAuthExchangeFailed  = &Error{Kind: KindAuthFailed, Code: "oauth_exchange_failed", Message: "authorization code exchange failed"}
	ErrOAuthProviderUnknown = &Error{Kind: KindValidation, Code: "oauth_provider_unknown", Message: "unknown oauth provider"}

	// Invitations
	ErrInviteInvalid       = &Error{Kind: KindValidation, Code: "invite_invalid", Message: "invalid invitation token"}
	ErrInviteExpired       = &Error{Kind: KindValidation, Code: "invite_expired", Message: "invitation expired"}
	ErrInviteEmailMismatch = &Error{Kind: KindValidation, Code: "invite_email_mismatch", Message: "invitation email mismatch"}
)
