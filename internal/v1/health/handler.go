// Package health exposes kubernetes-style liveness and readiness probes
// for the gateway.
package health

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/coscribe/collab-gateway/internal/v1/bus"
	"github.com/coscribe/collab-gateway/internal/v1/logging"
)

// TenantChecker checks the health of the tenant manager.
type TenantChecker interface {
	Check(ctx context.Context, endpoint string) string
}

// DefaultTenantChecker probes the tenant manager's REST endpoint.
type DefaultTenantChecker struct {
	client *http.Client
}

// Check verifies HTTP connectivity to the tenant manager.
func (c *DefaultTenantChecker) Check(ctx context.Context, endpoint string) string {
	client := c.client
	if client == nil {
		client = &http.Client{Timeout: 3 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"/api/tenants", nil)
	if err != nil {
		logging.Error(ctx, "Failed to build tenant manager health request", zap.Error(err), zap.String("endpoint", endpoint))
		return "unhealthy"
	}

	resp, err := client.Do(req)
	if err != nil {
		logging.Error(ctx, "Tenant manager health check failed", zap.Error(err), zap.String("endpoint", endpoint))
		return "unhealthy"
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusInternalServerError {
		logging.Warn(ctx, "Tenant manager is not serving", zap.Int("status", resp.StatusCode))
		return "unhealthy"
	}

	return "healthy"
}

// Handler manages health check endpoints
type Handler struct {
	redisService   *bus.Service
	tenantEndpoint string
	tenantChecker  TenantChecker
}

// NewHandler creates a new health check handler. tenantEndpoint may be empty
// when the gateway validates tokens locally; the check is skipped then.
func NewHandler(redisService *bus.Service, tenantEndpoint string) *Handler {
	return &Handler{
		redisService:   redisService,
		tenantEndpoint: tenantEndpoint,
		tenantChecker:  &DefaultTenantChecker{},
	}
}

// LivenessResponse represents the liveness probe response
type LivenessResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// ReadinessResponse represents the readiness probe response
type ReadinessResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks"`
	Timestamp string            `json:"timestamp"`
}

// Liveness handles the liveness probe endpoint
// GET /health/live
// Returns 200 if the process is alive (no dependency checks)
func (h *Handler) Liveness(c *gin.Context) {
	response := LivenessResponse{
		Status:    "alive",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	c.JSON(http.StatusOK, response)
}

// Readiness handles the readiness probe endpoint
// GET /health/ready
// Returns 200 only if all critical dependencies are healthy
// Returns 503 if any dependency is unhealthy
func (h *Handler) Readiness(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	checks := make(map[string]string)
	allHealthy := true

	redisStatus := h.checkRedis(ctx)
	checks["redis"] = redisStatus
	if redisStatus != "healthy" {
		allHealthy = false
	}

	if h.tenantEndpoint != "" {
		tenantStatus := h.checkTenantManager(ctx)
		checks["tenant_manager"] = tenantStatus
		if tenantStatus != "healthy" {
			allHealthy = false
		}
	}

	status := "ready"
	statusCode := http.StatusOK
	if !allHealthy {
		status = "unavailable"
		statusCode = http.StatusServiceUnavailable
	}

	response := ReadinessResponse{
		Status:    status,
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	c.JSON(statusCode, response)
}

// checkRedis verifies redis connectivity using PING. In single-instance
// mode there is no redis to check, so it reports healthy.
func (h *Handler) checkRedis(ctx context.Context) string {
	if h.redisService == nil {
		return "healthy"
	}

	if err := h.redisService.Ping(ctx); err != nil {
		logging.Error(ctx, "Redis health check failed", zap.Error(err))
		return "unhealthy"
	}

	return "healthy"
}

func (h *Handler) checkTenantManager(ctx context.Context) string {
	if h.tenantChecker == nil {
		return "unhealthy"
	}
	return h.tenantChecker.Check(ctx, h.tenantEndpoint)
}
