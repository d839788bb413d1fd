package auth

import (
	"testing"
	"time"

	"github.com/averycrane/gatehouse/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndValidateAccessToken(t *testing.T) {
	tm := NewTokenManager("test-secret-at-least-32-characters!!", 15*time.Minute)

	scopes := models.ResolveScopes(models.RoleMember)
	tokenString, err := tm.GenerateAccessToken("user-1", "alice@example.com", models.RoleMember, "org-1", scopes)
	require.NoError(t, err)
	require.NotEmpty(t, tokenString)

	claims, err := tm.ValidateAccessToken(tokenString)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, "alice@example.com", claims.Email)
	assert.Equal(t, string(models.RoleMember), claims.Role)
	assert.Equal(t, "org-1", claims.OrgID)
	assert.Equal(t, scopes, claims.Scopes)
	assert.NotEmpty(t, claims.ID)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), claims.ExpiresAt.Time, 5*time.Second)
}

func TestValidateAccessToken_WrongSecret(t *testing.T) {
	tm := NewTokenManager("test-secret-at-least-32-characters!!", 15*time.Minute)
	other := NewTokenManager("another-secret-also-32-characters!!!", 15*time.Minute)

	tokenString, err := tm.GenerateAccessToken("user-1", "alice@example.com", models.RoleAdmin, "org-1", nil)
	require.NoError(t, err)

	_, err = other.ValidateAccessToken(tokenString)
	assert.Error(t, err)
}

func TestValidateAccessToken_Expired(t *testing.T) {
	tm := NewTokenManager("test-secret-at-least-32-characters!!", -1*time.Minute)

	tokenString, err := tm.GenerateAccessToken("user-1", "alice@example.com", models.RoleAdmin, "org-1", nil)
	require.NoError(t, err)

	_, err = tm.ValidateAccessToken(tokenString)
	assert.Error(t, err)
}

func TestValidateAccessToken_Garbage(t *testing.T) {
	tm := NewTokenManager("test-secret-at-least-32-characters!!", 15*time.Minute)

	_, err := tm.ValidateAccessToken("not.a.jwt")
	assert.Error(t, err)

	_, err = tm.ValidateAccessToken("")
	assert.Error(t, err)
}
