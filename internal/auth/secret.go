package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"

	"github.com/averycrane/gatehouse/internal/models"
	pkgauth "github.com/averycrane/gatehouse/pkg/auth"
)

// Opaque single-use tokens are "{record_id}.{secret}": the record id is the
// clear-text lookup key, the secret is high-entropy random and only its hash
// is persisted. The same scheme backs refresh tokens, verification tokens and
// invitations; they differ only in record schema and consumption transition.

// TokenDelimiter joins the record id and the secret. Neither half can contain
// it: ids are UUIDs, secrets are raw-URL base64.
const TokenDelimiter = "."

// FormatToken assembles the opaque wire form of a token.
func FormatToken(id, secret string) string {
	return id + TokenDelimiter + secret
}

// SplitToken separates an opaque token into record id and secret. Returns
// ErrTokenMalformed when the delimiter is absent or either half is empty.
func SplitToken(token string) (id, secret string, err error) {
	id, secret, found := strings.Cut(token, TokenDelimiter)
	if !found || id == "" || secret == "" {
		return "", "", models.ErrTokenMalformed
	}
	return id, secret, nil
}

// NewSecret generates the random half of an opaque token.
func NewSecret() (string, error) {
	return pkgauth.GenerateSecret()
}

// HashSecret produces the one-way hash persisted in place of the secret.
func HashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// VerifySecret compares a presented secret against a stored hash in constant
// time.
func VerifySecret(secret, storedHash string) bool {
	presented := HashSecret(secret)
	return subtle.ConstantTimeCompare([]byte(presented), []byte(storedHash)) == 1
}
