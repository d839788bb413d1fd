package hooks

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/averycrane/gatehouse/internal/config"
	"github.com/averycrane/gatehouse/internal/models"
)

// PasswordPolicy rejects a candidate password with a validation error naming
// the rule that failed.
type PasswordPolicy func(password string) error

// EmailDomainPolicy rejects an email address based on its domain.
type EmailDomainPolicy func(email string) error

// ProfileValidator checks custom profile fields against one schema version and
// returns the (possibly normalized) field set.
type ProfileValidator func(fields map[string]any) (map[string]any, error)

// Registry holds the policy hook chains, resolved once at startup and
// injected into the services that invoke them. Any hook in a chain may abort
// the operation.
type Registry struct {
	passwordPolicies    []PasswordPolicy
	emailDomainPolicies []EmailDomainPolicy
	profileValidators   map[int]ProfileValidator
}

func NewRegistry() *Registry {
	return &Registry{
		profileValidators: make(map[int]ProfileValidator),
	}
}

func (r *Registry) RegisterPasswordPolicy(policy PasswordPolicy) {
	r.passwordPolicies = append(r.passwordPolicies, policy)
}

func (r *Registry) RegisterEmailDomainPolicy(policy EmailDomainPolicy) {
	r.emailDomainPolicies = append(r.emailDomainPolicies, policy)
}

func (r *Registry) RegisterProfileValidator(version int, validator ProfileValidator) {
	r.profileValidators[version] = validator
}

// CheckPassword runs the password policy chain, stopping at the first failure.
func (r *Registry) CheckPassword(password string) error {
	for _, policy := range r.passwordPolicies {
		if err := policy(password); err != nil {
			return err
		}
	}
	return nil
}

// CheckEmailDomain runs the email-domain policy chain.
func (r *Registry) CheckEmailDomain(email string) error {
	for _, policy := range r.emailDomainPolicies {
		if err := policy(email); err != nil {
			return err
		}
	}
	return nil
}

// ValidateProfile validates custom fields against the validator registered
// for the schema version.
func (r *Registry) ValidateProfile(version int, fields map[string]any) (map[string]any, error) {
	validator, ok := r.profileValidators[version]
	if !ok {
		return nil, models.NewValidationError("profile_schema_unknown",
			fmt.Sprintf("no profile schema registered for version %d", version))
	}
	return validator(fields)
}

// DefaultPasswordPolicy builds the built-in policy from configuration. Each
// rule raises a distinct code so callers can report exactly what failed.
func DefaultPasswordPolicy(cfg config.PasswordConfig) PasswordPolicy {
	return func(password string) error {
		if len(password) < cfg.MinLength {
			return models.NewValidationError("password_too_short",
				fmt.Sprintf("password must be at least %d characters", cfg.MinLength))
		}
		if len(password) > cfg.MaxLength {
			return models.NewValidationError("password_too_long",
				fmt.Sprintf("password must be at most %d characters", cfg.MaxLength))
		}

		var hasUpper, hasLower, hasDigit, hasSpecial bool
		for _, r := range password {
			switch {
			case unicode.IsUpper(r):
				hasUpper = true
			case unicode.IsLower(r):
				hasLower = true
			case unicode.IsDigit(r):
				hasDigit = true
			case unicode.IsPunct(r) || unicode.IsSymbol(r):
				hasSpecial = true
			}
		}

		if cfg.RequireUpper && !hasUpper {
			return models.NewValidationError("password_upper_required",
				"password must include an uppercase letter")
		}
		if cfg.RequireLower && !hasLower {
			return models.NewValidationError("password_lower_required",
				"password must include a lowercase letter")
		}
		if cfg.RequireDigit && !hasDigit {
			return models.NewValidationError("password_digit_required",
				"password must include a digit")
		}
		if cfg.RequireSpecial && !hasSpecial {
			return models.NewValidationError("password_special_required",
				"password must include a special character")
		}
		return nil
	}
}

// DefaultEmailDomainPolicy allows any domain when the allow-list is empty.
func DefaultEmailDomainPolicy(allowedDomains []string) EmailDomainPolicy {
	allowed := make(map[string]bool, len(allowedDomains))
	for _, domain := range allowedDomains {
		allowed[strings.ToLower(domain)] = true
	}

	return func(email string) error {
		if len(allowed) == 0 {
			return nil
		}
		at := strings.LastIndex(email, "@")
		if at < 0 {
			return models.NewValidationError("email_invalid", "invalid email address")
		}
		domain := strings.ToLower(email[at+1:])
		if !allowed[domain] {
			return models.NewValidationError("email_domain_not_allowed",
				"email domain not allowed")
		}
		return nil
	}
}

const maxProfileFields = 32

// DefaultProfileValidator is the version-1 schema: a flat map of scalar
// values with a bounded field count.
func DefaultProfileValidator() ProfileValidator {
	return func(fields map[string]any) (map[string]any, error) {
		if len(fields) > maxProfileFields {
			return nil, models.NewValidationError("profile_too_many_fields",
				fmt.Sprintf("custom fields limited to %d entries", maxProfileFields))
		}
		for key, value := range fields {
			if strings.TrimSpace(key) == "" {
				return nil, models.NewValidationError("profile_field_invalid",
					"custom field names must be non-empty")
			}
			switch value.(type) {
			case string, bool, float64, int, int64, nil:
			default:
				return nil, models.NewValidationError("profile_field_invalid",
					fmt.Sprintf("custom field %q must be a scalar value", key))
			}
		}
		return fields, nil
	}
}
