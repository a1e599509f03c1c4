package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Scope tokens embedded in access tokens. The set is closed; the gateway
// only interprets these three.
const (
	ScopeDocRead      = "doc:read"
	ScopeDocWrite     = "doc:write"
	ScopeSummaryWrite = "summary:write"
)

// UserInfo identifies the authenticated user behind a connection.
type UserInfo struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// TokenClaims are the verified identity and authorization fields decoded
// from a bearer token. TenantID and DocumentID bind the token to a single
// document; Scopes bound what the holder may do with it.
type TokenClaims struct {
	DocumentID string   `json:"documentId"`
	TenantID   string   `json:"tenantId"`
	User       UserInfo `json:"user"`
	Scopes     []string `json:"scopes"`
	Ver        string   `json:"ver,omitempty"`
	jwt.RegisteredClaims
}

// ErrorWithStatus carries an HTTP-convention status code alongside the
// message surfaced to the client.
type ErrorWithStatus struct {
	Status  int
	Message string
}

func (e *ErrorWithStatus) Error() string {
	return fmt.Sprintf("%d: %s", e.Status, e.Message)
}

// NewErrorWithStatus builds a status-carrying error.
func NewErrorWithStatus(status int, message string) *ErrorWithStatus {
	return &ErrorWithStatus{Status: status, Message: message}
}

// ValidateTokenClaims verifies the token signature against the shared tenant
// secret and checks that the embedded tenantId/documentId match the values
// asserted on the connect envelope. Mismatches and bad signatures map to
// 401/403 status errors for the connect error path.
func ValidateTokenClaims(tokenString, documentID, tenantID string, secret []byte) (*TokenClaims, error) {
	claims := &TokenClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return nil, NewErrorWithStatus(401, "Invalid token")
	}
	if !token.Valid {
		return nil, NewErrorWithStatus(401, "Invalid token")
	}

	if claims.DocumentID != documentID || claims.TenantID != tenantID {
		return nil, NewErrorWithStatus(403, "Invalid token claims")
	}

	return claims, nil
}

// ValidateTokenClaimsExpiration checks that the token's lifetime is within
// maxTokenLifetimeSec of issuance and returns the remaining lifetime in
// milliseconds. Expired and over-long tokens are rejected.
func ValidateTokenClaimsExpiration(claims *TokenClaims, maxTokenLifetimeSec int64) (int64, error) {
	if claims.ExpiresAt == nil {
		return 0, NewErrorWithStatus(401, "Missing token expiration")
	}

	expiration := claims.ExpiresAt.Time
	if claims.IssuedAt != nil {
		lifetime := expiration.Sub(claims.IssuedAt.Time)
		if lifetime > time.Duration(maxTokenLifetimeSec)*time.Second {
			return 0, NewErrorWithStatus(401, "Token lifetime exceeds maximum")
		}
	}

	remaining := time.Until(expiration).Milliseconds()
	if remaining <= 0 {
		return 0, NewErrorWithStatus(401, "Expired token")
	}

	return remaining, nil
}

// CanRead reports whether the scope set permits reading document ops.
func CanRead(scopes []string) bool {
	return containsScope(scopes, ScopeDocRead)
}

// CanWrite reports whether the scope set permits submitting document ops.
func CanWrite(scopes []string) bool {
	return containsScope(scopes, ScopeDocWrite)
}

// CanSummarize reports whether the scope set permits writing summaries.
func CanSummarize(scopes []string) bool {
	return containsScope(scopes, ScopeSummaryWrite)
}

func containsScope(scopes []string, scope string) bool {
	for _, s := range scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// SecretValidator validates tokens against a shared HMAC tenant secret.
type SecretValidator struct {
	Secret []byte
}

func (v SecretValidator) ValidateTokenClaims(tokenString, documentID, tenantID string) (*TokenClaims, error) {
	return ValidateTokenClaims(tokenString, documentID, tenantID, v.Secret)
}
