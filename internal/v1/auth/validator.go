package auth

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v2/jwk"
)

// Validator verifies tokens for tenants that publish a JWKS key set instead
// of sharing an HMAC secret. It resolves the signing key by "kid" from a
// refreshed JWKS cache.
type Validator struct {
	keyFunc jwt.Keyfunc
	issuer  string
}

// NewValidator creates a Validator backed by the tenant authority's JWKS
// endpoint at https://<domain>/.well-known/jwks.json. The cache refreshes
// hourly; regOpts allows overriding refresh behavior in tests.
func NewValidator(ctx context.Context, domain string, regOpts ...jwk.RegisterOption) (*Validator, error) {
	issuerURL, err := url.Parse("https://" + domain + "/")
	if err != nil {
		return nil, fmt.Errorf("failed to parse issuer URL: %w", err)
	}

	jwksURL := issuerURL.JoinPath(".well-known/jwks.json").String()

	cache := jwk.NewCache(ctx)

	opts := []jwk.RegisterOption{jwk.WithRefreshInterval(1 * time.Hour)}
	opts = append(opts, regOpts...)

	err = cache.Register(jwksURL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to register JWKS URL in cache: %w", err)
	}

	// Fetch the keys for the first time to ensure connectivity.
	_, err = cache.Refresh(ctx, jwksURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch initial JWKS: %w", err)
	}

	keyFunc := func(token *jwt.Token) (interface{}, error) {
		kid, ok := token.Header["kid"].(string)
		if !ok {
			return nil, errors.New("kid header not found")
		}

		keys, err := cache.Get(ctx, jwksURL)
		if err != nil {
			return nil, fmt.Errorf("failed to get keys from cache: %w", err)
		}

		key, found := keys.LookupKeyID(kid)
		if !found {
			return nil, fmt.Errorf("key with kid %s not found", kid)
		}

		var pubKey interface{}
		if err := key.Raw(&pubKey); err != nil {
			return nil, fmt.Errorf("failed to get raw public key: %w", err)
		}

		return pubKey, nil
	}

	return &Validator{
		keyFunc: keyFunc,
		issuer:  issuerURL.String(),
	}, nil
}

// ValidateTokenClaims verifies the token signature against the tenant key
// set and checks the documentId/tenantId binding, mirroring the shared
// secret path.
func (v *Validator) ValidateTokenClaims(tokenString, documentID, tenantID string) (*TokenClaims, error) {
	claims := &TokenClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, v.keyFunc, jwt.WithIssuer(v.issuer))
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
