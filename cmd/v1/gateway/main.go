package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/coscribe/collab-gateway/internal/v1/auth"
	"github.com/coscribe/collab-gateway/internal/v1/bus"
	"github.com/coscribe/collab-gateway/internal/v1/config"
	"github.com/coscribe/collab-gateway/internal/v1/health"
	"github.com/coscribe/collab-gateway/internal/v1/logging"
	"github.com/coscribe/collab-gateway/internal/v1/ordering"
	"github.com/coscribe/collab-gateway/internal/v1/registry"
	"github.com/coscribe/collab-gateway/internal/v1/session"
	"github.com/coscribe/collab-gateway/internal/v1/tenant"
	"github.com/coscribe/collab-gateway/internal/v1/throttle"
	"github.com/coscribe/collab-gateway/internal/v1/tracing"
)

func main() {
	// Load .env file for local development.
	// Try multiple paths to handle different ways of running the app
	envPaths := []string{".env", "../../../.env", "../../.env"}
	var envLoaded bool

	for _, path := range envPaths {
		if err := godotenv.Load(path); err == nil {
			slog.Info("Loaded environment from", "path", path)
			envLoaded = true
			break
		}
	}

	if !envLoaded {
		slog.Warn("No .env file found in any expected location, relying on environment variables")
	}

	// Validate environment variables before starting the server
	cfg, err := config.ValidateEnv()
	if err != nil {
		slog.Error("Environment validation failed", "error", err)
		os.Exit(1)
	}

	if err := logging.Initialize(cfg.DevelopmentMode); err != nil {
		slog.Error("Failed to initialize logger", "error", err)
		os.Exit(1)
	}

	if cfg.DevelopmentMode {
		slog.Info("Running in DEVELOPMENT MODE")
	}

	// --- Tracing (Optional) ---
	if cfg.OtelCollector != "" {
		tp, err := tracing.InitTracer(context.Background(), "collab-gateway", cfg.OtelCollector)
		if err != nil {
			slog.Error("Failed to initialize tracer, continuing without tracing", "error", err)
		} else {
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := tp.Shutdown(ctx); err != nil {
					slog.Error("Failed to shut down tracer provider", "error", err)
				}
			}()
			slog.Info("✅ OpenTelemetry tracing initialized", "collector", cfg.OtelCollector)
		}
	}

	// --- Token Validator ---
	// A shared HMAC secret takes priority; otherwise claims are verified
	// against the tenant auth domain's JWKS.
	var validator session.ClaimsValidator
	if cfg.JWTSecret != "" {
		validator = auth.SecretValidator{Secret: []byte(cfg.JWTSecret)}
		slog.Info("✅ Shared-secret token validator initialized")
	} else {
		jwksValidator, err := auth.NewValidator(context.Background(), cfg.TenantAuthDomain)
		if err != nil {
			slog.Error("Failed to create auth validator", "error", err)
			os.Exit(1)
		}
		validator = jwksValidator
		slog.Info("✅ JWKS token validator initialized", "domain", cfg.TenantAuthDomain)
	}

	// --- Tenant Manager ---
	var tenants tenant.Manager
	if cfg.TenantAuthEndpoint != "" {
		tenants = tenant.NewHTTPManager(cfg.TenantAuthEndpoint)
		slog.Info("✅ Tenant manager initialized", "endpoint", cfg.TenantAuthEndpoint)
	} else {
		tenants = &tenant.StaticManager{}
		slog.Warn("⚠️ No tenant manager endpoint configured, accepting all tenants")
	}

	// --- Redis Bus Initialization (Optional) ---
	// Initialize Redis for distributed pub/sub if enabled
	var busService *bus.Service
	if cfg.RedisEnabled {
		var err error
		busService, err = bus.NewService(cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			slog.Error("Failed to connect to Redis, running in single-instance mode", "error", err)
			busService = nil // Fallback to single-instance mode
		} else {
			slog.Info("✅ Redis pub/sub initialized for distributed messaging", "addr", cfg.RedisAddr)
		}
	} else {
		slog.Info("Running in single-instance mode (Redis disabled)")
	}

	// --- Client Registry ---
	var clients registry.ClientRegistry
	if busService != nil {
		clients = registry.NewRedisRegistry(busService.Client())
	} else {
		clients = registry.NewMemoryRegistry()
	}

	// --- Throttlers ---
	// Throttle state lives in redis when available so limits hold across
	// pods; an empty rate disables that throttler.
	var connectThrottler, submitThrottler throttle.Limiter
	if cfg.RateLimitConnect != "" {
		l, err := throttle.NewUluleLimiter(cfg.RateLimitConnect, "Too Many Socket Connections", busService.Client())
		if err != nil {
			slog.Error("Failed to create connect throttler", "error", err)
			os.Exit(1)
		}
		connectThrottler = l
	}
	if cfg.RateLimitSubmitOp != "" {
		l, err := throttle.NewUluleLimiter(cfg.RateLimitSubmitOp, "Submit too fast", busService.Client())
		if err != nil {
			slog.Error("Failed to create submit throttler", "error", err)
			os.Exit(1)
		}
		submitThrottler = l
	}

	// --- Gateway Core and Hub ---
	orderers := ordering.NewLocalManager(nil)

	gateway := session.NewGateway(session.GatewayDeps{
		Validator:        validator,
		Tenants:          tenants,
		Registry:         clients,
		Orderers:         orderers,
		ConnectThrottler: connectThrottler,
		SubmitThrottler:  submitThrottler,
	}, cfg)

	allowedOrigins := splitOrigins(cfg.AllowedOrigins)
	hub := session.NewHub(gateway, busService, allowedOrigins)
	orderers.SetDeliverer(hub)

	// --- Set up Server ---
	if !cfg.DevelopmentMode {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()

	// Cors
	corsConfig := cors.DefaultConfig()
	if len(allowedOrigins) > 0 {
		corsConfig.AllowOrigins = allowedOrigins
	} else {
		corsConfig.AllowOrigins = []string{"http://localhost:3000"}
	}
	router.Use(cors.New(corsConfig))

	// Error handling and tracing
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("collab-gateway"))

	// Routing
	wsGroup := router.Group("/ws")
	{
		wsGroup.GET("", hub.ServeWs)
	}

	// Prometheus metrics endpoint
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Health check endpoints
	healthHandler := health.NewHandler(busService, cfg.TenantAuthEndpoint)
	router.GET("/health/live", healthHandler.Liveness)
	router.GET("/health/ready", healthHandler.Readiness)

	// Start the server.
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// --- Graceful Shutdown ---
	// Start the server in a goroutine so it doesn't block.
	go func() {
		slog.Info("Gateway starting", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Failed to run server", "error", err)
			syscall.Kill(os.Getpid(), syscall.SIGTERM)
		}
	}()

	// Wait for an interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("Shutting down server...")

	// The context is used to inform the server it has 30 seconds to finish
	// the requests it is currently handling
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Close all sockets and room subscriptions gracefully
	if err := hub.Shutdown(ctx); err != nil {
		slog.Error("Error during Hub shutdown:", "error", err)
	}

	// Shutdown HTTP server
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("Server forced to shutdown:", "error", err)
	}

	// Close Redis connection if it was initialized
	if busService != nil {
		if err := busService.Close(); err != nil {
			slog.Error("Failed to close Redis connection:", "error", err)
		} else {
			slog.Info("Redis connection closed")
		}
	}

	slog.Info("Server exiting")
}

// splitOrigins parses the comma-separated ALLOWED_ORIGINS value.
func splitOrigins(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}
