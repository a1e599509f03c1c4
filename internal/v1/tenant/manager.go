// Package tenant talks to the tenant authority that vouches for tokens.
package tenant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/coscribe/collab-gateway/internal/v1/auth"
	"github.com/coscribe/collab-gateway/internal/v1/metrics"
)

// Manager verifies that a tenant accepts a presented token.
type Manager interface {
	VerifyToken(ctx context.Context, tenantID, token string) error
}

// HTTPManager verifies tokens against the tenant authority's REST endpoint.
type HTTPManager struct {
	endpoint string
	client   *http.Client
	cb       *gobreaker.CircuitBreaker
}

// NewHTTPManager points at the tenant authority base URL
// (e.g. "https://tenants.internal").
func NewHTTPManager(endpoint string) *HTTPManager {
	st := gobreaker.Settings{
		Name:        "tenant-manager",
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     15 * time.Second,
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			var stateVal float64
			switch to {
			case gobreaker.StateClosed:
				stateVal = 0
			case gobreaker.StateOpen:
				stateVal = 1
			case gobreaker.StateHalfOpen:
				stateVal = 2
			}
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateVal)
		},
	}

	return &HTTPManager{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 10 * time.Second},
		cb:       gobreaker.NewCircuitBreaker(st),
	}
}

// VerifyToken posts the token to /api/tenants/:id/validate. A non-2xx
// response maps to an auth.ErrorWithStatus carrying the upstream status so
// the connect pipeline can echo it.
func (m *HTTPManager) VerifyToken(ctx context.Context, tenantID, token string) error {
	body, err := json.Marshal(map[string]string{"token": token})
	if err != nil {
		return fmt.Errorf("failed to marshal verify request: %w", err)
	}

	_, err = m.cb.Execute(func() (interface{}, error) {
		url := fmt.Sprintf("%s/api/tenants/%s/validate", m.endpoint, tenantID)
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := m.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, auth.NewErrorWithStatus(resp.StatusCode, "Tenant rejected token")
		}
		return nil, nil
	})

	if err == gobreaker.ErrOpenState {
		metrics.CircuitBreakerFailures.WithLabelValues("tenant-manager").Inc()
		return auth.NewErrorWithStatus(http.StatusServiceUnavailable, "Tenant authority unavailable")
	}
	return err
}

// StaticManager accepts every tenant in the allow list; used in tests and
// single-tenant development setups. A nil list accepts everything.
type StaticManager struct {
	Tenants []string
}

func (s *StaticManager) VerifyToken(_ context.Context, tenantID, _ string) error {
	if len(s.Tenants) == 0 {
		return nil
	}
	for _, t := range s.Tenants {
		if t == tenantID {
			return nil
		}
	}
	return auth.NewErrorWithStatus(http.StatusForbidden, "Unknown tenant")
}
