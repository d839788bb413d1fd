package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashPassword(t *testing.T) {
	hash, err := HashPassword("Str0ng!Pass")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hash, "$argon2id$"))
	assert.NotContains(t, hash, "Str0ng!Pass")

	// Same password hashes to different values (random salt)
	hash2, err := HashPassword("Str0ng!Pass")
	require.NoError(t, err)
	assert.NotEqual(t, hash, hash2)
}

func TestHashPassword_Empty(t *testing.T) {
	_, err := HashPassword("")
	assert.Error(t, err)
}

func TestComparePassword(t *testing.T) {
	hash, err := HashPassword("Str0ng!Pass")
	require.NoError(t, err)

	assert.NoError(t, ComparePassword(hash, "Str0ng!Pass"))
	assert.Error(t, ComparePassword(hash, "Str0ng!Pass2"))
	assert.Error(t, ComparePassword(hash, ""))
}

func TestComparePassword_MalformedHash(t *testing.T) {
	assert.Error(t, ComparePassword("not-a-hash", "whatever"))
	assert.Error(t, ComparePassword("$bcrypt$something", "whatever"))
}

func TestGenerateSecret(t *testing.T) {
	secret, err := GenerateSecret()
	require.NoError(t, err)
	assert.NotEmpty(t, secret)

	// URL-safe, no delimiter collision with the token format
	assert.NotContains(t, secret, ".")

	other, err := GenerateSecret()
	require.NoError(t, err)
	assert.NotEqual(t, secret, other)
}
