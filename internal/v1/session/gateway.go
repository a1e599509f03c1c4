package session

import (
	"github.com/coscribe/collab-gateway/internal/v1/auth"
	"github.com/coscribe/collab-gateway/internal/v1/config"
	"github.com/coscribe/collab-gateway/internal/v1/metrics"
	"github.com/coscribe/collab-gateway/internal/v1/ordering"
	"github.com/coscribe/collab-gateway/internal/v1/registry"
	"github.com/coscribe/collab-gateway/internal/v1/tenant"
	"github.com/coscribe/collab-gateway/internal/v1/throttle"
)

// ClaimsValidator verifies a token's signature and its binding to the
// asserted document and tenant. auth.Validator (JWKS) and
// auth.SecretValidator (shared HMAC secret) both satisfy it.
type ClaimsValidator interface {
	ValidateTokenClaims(tokenString, documentID, tenantID string) (*auth.TokenClaims, error)
}

// Gateway holds the collaborators and admission knobs shared by every
// socket. All mutable state lives on the per-socket connection.
type Gateway struct {
	validator ClaimsValidator
	tenants   tenant.Manager
	registry  registry.ClientRegistry
	orderers  ordering.Manager
	sink      metrics.Sink

	connectGuard *throttle.Guard
	submitGuard  *throttle.Guard

	maxClientsPerDocument int
	maxTokenLifetimeSec   int64
	tokenExpiryEnabled    bool
}

// GatewayDeps bundles the collaborators a Gateway consumes. Throttlers are
// optional; a nil limiter disables that guard.
type GatewayDeps struct {
	Validator        ClaimsValidator
	Tenants          tenant.Manager
	Registry         registry.ClientRegistry
	Orderers         ordering.Manager
	Sink             metrics.Sink
	ConnectThrottler throttle.Limiter
	SubmitThrottler  throttle.Limiter
}

// NewGateway builds the gateway core from its collaborators and config.
func NewGateway(deps GatewayDeps, cfg *config.Config) *Gateway {
	sink := deps.Sink
	if sink == nil {
		sink = metrics.LatencySink{}
	}

	return &Gateway{
		validator:             deps.Validator,
		tenants:               deps.Tenants,
		registry:              deps.Registry,
		orderers:              deps.Orderers,
		sink:                  sink,
		connectGuard:          throttle.NewGuard(deps.ConnectThrottler, "connect"),
		submitGuard:           throttle.NewGuard(deps.SubmitThrottler, "submit-op"),
		maxClientsPerDocument: cfg.MaxClientsPerDocument,
		maxTokenLifetimeSec:   cfg.MaxTokenLifetimeSec,
		tokenExpiryEnabled:    cfg.TokenExpiryEnabled,
	}
}
