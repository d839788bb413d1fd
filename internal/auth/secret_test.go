package auth

import (
	"errors"
	"testing"

	"github.com/averycrane/gatehouse/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	id := uuid.New().String()
	secret, err := NewSecret()
	require.NoError(t, err)

	token := FormatToken(id, secret)
	gotID, gotSecret, err := SplitToken(token)
	require.NoError(t, err)
	assert.Equal(t, id, gotID)
	assert.Equal(t, secret, gotSecret)

	hash := HashSecret(secret)
	assert.True(t, VerifySecret(gotSecret, hash))
}

func TestSplitToken_Malformed(t *testing.T) {
	cases := []string{
		"",
		"nodelimiter",
		".leadingdelimiter",
		"trailingdelimiter.",
	}
	for _, token := range cases {
		_, _, err := SplitToken(token)
		assert.True(t, errors.Is(err, models.ErrTokenMalformed), "token %q", token)
	}
}

func TestVerifySecret_Tampered(t *testing.T) {
	secret, err := NewSecret()
	require.NoError(t, err)
	hash := HashSecret(secret)

	// Altering any single character of the secret fails verification
	for i := 0; i < len(secret); i++ {
		tampered := []byte(secret)
		if tampered[i] == 'A' {
			tampered[i] = 'B'
		} else {
			tampered[i] = 'A'
		}
		assert.False(t, VerifySecret(string(tampered), hash), "position %d", i)
	}

	assert.False(t, VerifySecret("", hash))
	assert.False(t, VerifySecret(secret, HashSecret("other")))
}

func TestHashSecret_Deterministic(t *testing.T) {
	secret := "fixed-secret-value"
	assert.Equal(t, HashSecret(secret), HashSecret(secret))
	assert.NotEqual(t, HashSecret(secret), HashSecret(secret+"x"))
	assert.NotContains(t, HashSecret(secret), secret)
}
