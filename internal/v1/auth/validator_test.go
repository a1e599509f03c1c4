package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newRSAValidator builds a Validator around a throwaway RSA key pair,
// bypassing the JWKS fetch.
func newRSAValidator(t *testing.T) (*Validator, *rsa.PrivateKey) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	issuer := "https://tenant-auth.test/"
	v := &Validator{
		issuer: issuer,
		keyFunc: func(token *jwt.Token) (interface{}, error) {
			return &key.PublicKey, nil
		},
	}
	return v, key
}

func signRSAToken(t *testing.T, key *rsa.PrivateKey, claims *TokenClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = "test-key"
	signed, err := token.SignedString(key)
	require.NoError(t, err)
	return signed
}

func rsaClaims() *TokenClaims {
	return &TokenClaims{
		DocumentID: "doc-1",
		TenantID:   "tenant-1",
		User:       UserInfo{ID: "user-1"},
		Scopes:     []string{ScopeDocRead, ScopeDocWrite},
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "https://tenant-auth.test/",
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
}

func TestValidatorAcceptsSignedToken(t *testing.T) {
	v, key := newRSAValidator(t)
	tokenString := signRSAToken(t, key, rsaClaims())

	claims, err := v.ValidateTokenClaims(tokenString, "doc-1", "tenant-1")
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.User.ID)
}

func TestValidatorRejectsWrongKey(t *testing.T) {
	v, _ := newRSAValidator(t)
	otherKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	tokenString := signRSAToken(t, otherKey, rsaClaims())

	_, err = v.ValidateTokenClaims(tokenString, "doc-1", "tenant-1")
	require.Error(t, err)

	var statusErr *ErrorWithStatus
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, 401, statusErr.Status)
}

func TestValidatorRejectsWrongIssuer(t *testing.T) {
	v, key := newRSAValidator(t)
	claims := rsaClaims()
	claims.Issuer = "https://someone-else.test/"
	tokenString := signRSAToken(t, key, claims)

	_, err := v.ValidateTokenClaims(tokenString, "doc-1", "tenant-1")
	assert.Error(t, err)
}

func TestValidatorRejectsBindingMismatch(t *testing.T) {
	v, key := newRSAValidator(t)
	tokenString := signRSAToken(t, key, rsaClaims())

	_, err := v.ValidateTokenClaims(tokenString, "other-doc", "tenant-1")
	require.Error(t, err)

	var statusErr *ErrorWithStatus
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, 403, statusErr.Status)
}
