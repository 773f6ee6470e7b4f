package routes

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/proyectoio2/back/internal/infra/config"
	"github.com/proyectoio2/back/internal/transport/http/handlers"
	"github.com/proyectoio2/back/internal/transport/http/middleware"
	"github.com/proyectoio2/back/internal/usecase"
)

// ServiceSet groups the services the HTTP layer depends on.
type ServiceSet struct {
	Auth          *usecase.AuthService
	Registration  *usecase.RegistrationService
	Profile       *usecase.ProfileService
	PasswordReset *usecase.PasswordResetService
	Store         *usecase.StoreService
	Media         *usecase.MediaService
}

// Dependencies encapsulates the objects required to register routes.
type Dependencies struct {
	Config      *config.AppConfig
	Logger      *zap.Logger
	RateLimiter *middleware.RateLimiter
	Metrics     *middleware.HTTPMetrics
	Gatherer    prometheus.Gatherer
	Services    ServiceSet
	Database    DatabaseChecker
	Cache       CacheChecker
}

// DatabaseChecker exposes readiness behaviour for database connections.
type DatabaseChecker interface {
	Ping(ctx context.Context) error
}

// CacheChecker exposes readiness behaviour for cache backends.
type CacheChecker interface {
	Ping(ctx context.Context) error
}

// Register configures the Gin engine with routes and middleware.
func Register(deps Dependencies) *gin.Engine {
	if deps.Config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.EnrichContext())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(deps.Logger))
	r.Use(middleware.CORS(deps.Config.App.CORSOrigins))
	r.Use(deps.Metrics.Handler())

	var healthOptions []handlers.HealthOption
	if deps.Database != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("database", deps.Database.Ping))
	}
	if deps.Cache != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("redis", deps.Cache.Ping))
	}
	healthHandler := handlers.NewHealthHandler(healthOptions...)

	r.GET("/healthz", healthHandler.Status)
	r.GET("/readyz", healthHandler.Readiness)

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	if !deps.Config.IsProduction() {
		handlers.RegisterSwagger(r)
	}

	api := r.Group("/api/v1")
	if deps.Config.Telemetry.TracingEnabled {
		api.Use(tracing(deps.Config.Telemetry.ServiceName))
	}

	services := deps.Services
	if services.Auth == nil {
		return r
	}
	requireAuth := middleware.RequireAuth(services.Auth)

	authGroup := api.Group("/auth")
	authHandler := handlers.NewAuthHandler(services.Auth, services.Registration, services.Profile)
	authHandler.RegisterRoutes(authGroup, requireAuth, buildLoginMiddlewares(deps)...)

	if services.PasswordReset != nil {
		passwordHandler := handlers.NewPasswordHandler(services.PasswordReset)
		passwordHandler.RegisterRoutes(authGroup, buildPasswordResetMiddlewares(deps)...)
	}

	if services.Store != nil && services.Media != nil {
		storeHandler := handlers.NewStoreHandler(services.Store, services.Media)
		storeHandler.RegisterRoutes(api.Group("/store"), requireAuth, middleware.RequireAdmin())
	}

	return r
}

func buildLoginMiddlewares(deps Dependencies) []gin.HandlerFunc {
	return rateLimitRule(deps, "auth_login_ip", deps.Config.RateLimit.LoginMaxAttempts, time.Minute)
}

func buildPasswordResetMiddlewares(deps Dependencies) []gin.HandlerFunc {
	return rateLimitRule(deps, "password_reset_ip", deps.Config.RateLimit.PasswordResetMaxAttempts, time.Hour)
}

func rateLimitRule(deps Dependencies, name string, limit int, fallbackWindow time.Duration) []gin.HandlerFunc {
	if deps.RateLimiter == nil || limit <= 0 {
		return nil
	}

	window := deps.Config.RateLimit.WindowDuration
	if window <= 0 {
		window = fallbackWindow
	}

	rule := middleware.RateLimitRule{
		Name:       name,
		Limit:      limit,
		Window:     window,
		Identifier: middleware.ClientIPIdentifier(),
	}
	return []gin.HandlerFunc{deps.RateLimiter.RateLimit(rule)}
}
