// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// CORS, security headers, idempotency, and rate limiting.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
//   - Production-ready CORS and security header posture
package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/carmoa/go-carmarket-backend/internal/config"
	"github.com/carmoa/go-carmarket-backend/internal/domain"
	"github.com/carmoa/go-carmarket-backend/internal/http/handlers"
	"github.com/carmoa/go-carmarket-backend/internal/http/middleware"
	"github.com/carmoa/go-carmarket-backend/internal/registry"
	"github.com/carmoa/go-carmarket-backend/internal/repo"
	"github.com/carmoa/go-carmarket-backend/internal/services"
)

// consultationRepoShim adapts the repository free functions to the
// services.ConsultationRepo interface. This keeps services decoupled from the
// concrete repo package while reusing existing functions.
type consultationRepoShim struct{}

// CreateConsultation proxies repo.CreateConsultation.
func (consultationRepoShim) CreateConsultation(ctx context.Context, db *gorm.DB, r *domain.ConsultationRequest) (*domain.ConsultationRequest, error) {
	return repo.CreateConsultation(ctx, db, r)
}

// GetConsultation proxies repo.GetConsultation.
func (consultationRepoShim) GetConsultation(ctx context.Context, db *gorm.DB, id string) (*domain.ConsultationRequest, error) {
	return repo.GetConsultation(ctx, db, id)
}

// CountPendingByUserVehicle proxies repo.CountPendingByUserVehicle.
func (consultationRepoShim) CountPendingByUserVehicle(ctx context.Context, db *gorm.DB, userID, vehicleID string) (int64, error) {
	return repo.CountPendingByUserVehicle(ctx, db, userID, vehicleID)
}

// CountBySlot proxies repo.CountBySlot.
func (consultationRepoShim) CountBySlot(ctx context.Context, db *gorm.DB, vehicleID, date, clock string) (int64, error) {
	return repo.CountBySlot(ctx, db, vehicleID, date, clock)
}

// ListConsultations proxies repo.ListConsultations.
func (consultationRepoShim) ListConsultations(ctx context.Context, db *gorm.DB) ([]domain.ConsultationRequest, error) {
	return repo.ListConsultations(ctx, db)
}

// ListConsultationsByUser proxies repo.ListConsultationsByUser.
func (consultationRepoShim) ListConsultationsByUser(ctx context.Context, db *gorm.DB, userID string) ([]domain.ConsultationRequest, error) {
	return repo.ListConsultationsByUser(ctx, db, userID)
}

// ListConsultationsByDate proxies repo.ListConsultationsByDate.
func (consultationRepoShim) ListConsultationsByDate(ctx context.Context, db *gorm.DB, date string) ([]domain.ConsultationRequest, error) {
	return repo.ListConsultationsByDate(ctx, db, date)
}

// CountConsultationsByDate proxies repo.CountConsultationsByDate.
func (consultationRepoShim) CountConsultationsByDate(ctx context.Context, db *gorm.DB) ([]repo.DateStatusCount, error) {
	return repo.CountConsultationsByDate(ctx, db)
}

// UpdateConsultationStatus proxies repo.UpdateConsultationStatus.
func (consultationRepoShim) UpdateConsultationStatus(ctx context.Context, db *gorm.DB, id, status string) error {
	return repo.UpdateConsultationStatus(ctx, db, id, status)
}

// UpdateConsultationSlot proxies repo.UpdateConsultationSlot.
func (consultationRepoShim) UpdateConsultationSlot(ctx context.Context, db *gorm.DB, id, date, clock string) error {
	return repo.UpdateConsultationSlot(ctx, db, id, date, clock)
}

// vehicleRepoShim adapts the repository free functions to the
// services.VehicleRepo interface. It doubles as the VehicleReader and
// VehicleRemover used by the consultation and account services.
type vehicleRepoShim struct{}

// CreateVehicle proxies repo.CreateVehicle.
func (vehicleRepoShim) CreateVehicle(ctx context.Context, db *gorm.DB, v *domain.Vehicle) (*domain.Vehicle, error) {
	return repo.CreateVehicle(ctx, db, v)
}

// GetVehicle proxies repo.GetVehicle.
func (vehicleRepoShim) GetVehicle(ctx context.Context, db *gorm.DB, id string) (*domain.Vehicle, error) {
	return repo.GetVehicle(ctx, db, id)
}

// CountVehicles proxies repo.CountVehicles.
func (vehicleRepoShim) CountVehicles(ctx context.Context, db *gorm.DB) (int64, error) {
	return repo.CountVehicles(ctx, db)
}

// ListVehiclesPage proxies repo.ListVehiclesPage.
func (vehicleRepoShim) ListVehiclesPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.Vehicle, error) {
	return repo.ListVehiclesPage(ctx, db, offset, limit)
}

// ListVehiclesBySeller proxies repo.ListVehiclesBySeller.
func (vehicleRepoShim) ListVehiclesBySeller(ctx context.Context, db *gorm.DB, sellerID string) ([]domain.Vehicle, error) {
	return repo.ListVehiclesBySeller(ctx, db, sellerID)
}

// DeleteVehicle proxies repo.DeleteVehicle.
func (vehicleRepoShim) DeleteVehicle(ctx context.Context, db *gorm.DB, id string) error {
	return repo.DeleteVehicle(ctx, db, id)
}

// DeleteVehiclesBySeller proxies repo.DeleteVehiclesBySeller.
func (vehicleRepoShim) DeleteVehiclesBySeller(ctx context.Context, db *gorm.DB, sellerID string) (int64, error) {
	return repo.DeleteVehiclesBySeller(ctx, db, sellerID)
}

// accountRepoShim adapts the repository free functions to the
// services.AccountRepo interface. It also satisfies UserReader for the
// consultation service's notification path.
type accountRepoShim struct{}

// CreateUser proxies repo.CreateUser.
func (accountRepoShim) CreateUser(ctx context.Context, db *gorm.DB, u *domain.User) (*domain.User, error) {
	return repo.CreateUser(ctx, db, u)
}

// GetUser proxies repo.GetUser.
func (accountRepoShim) GetUser(ctx context.Context, db *gorm.DB, id string) (*domain.User, error) {
	return repo.GetUser(ctx, db, id)
}

// GetUserByEmail proxies repo.GetUserByEmail.
func (accountRepoShim) GetUserByEmail(ctx context.Context, db *gorm.DB, email string) (*domain.User, error) {
	return repo.GetUserByEmail(ctx, db, email)
}

// UpdatePushToken proxies repo.UpdatePushToken.
func (accountRepoShim) UpdatePushToken(ctx context.Context, db *gorm.DB, id, token string) error {
	return repo.UpdatePushToken(ctx, db, id, token)
}

// DeleteUser proxies repo.DeleteUser.
func (accountRepoShim) DeleteUser(ctx context.Context, db *gorm.DB, id string) error {
	return repo.DeleteUser(ctx, db, id)
}

// CreateVerificationCode proxies repo.CreateVerificationCode.
func (accountRepoShim) CreateVerificationCode(ctx context.Context, db *gorm.DB, phone, code string, ttl time.Duration) (*domain.VerificationCode, error) {
	return repo.CreateVerificationCode(ctx, db, phone, code, ttl)
}

// LatestVerificationCode proxies repo.LatestVerificationCode.
func (accountRepoShim) LatestVerificationCode(ctx context.Context, db *gorm.DB, phone string, now time.Time) (*domain.VerificationCode, error) {
	return repo.LatestVerificationCode(ctx, db, phone, now)
}

// ConfirmVerificationCode proxies repo.ConfirmVerificationCode.
func (accountRepoShim) ConfirmVerificationCode(ctx context.Context, db *gorm.DB, id string, now time.Time) error {
	return repo.ConfirmVerificationCode(ctx, db, id, now)
}

// HasConfirmedVerification proxies repo.HasConfirmedVerification.
func (accountRepoShim) HasConfirmedVerification(ctx context.Context, db *gorm.DB, phone string, window time.Duration, now time.Time) (bool, error) {
	return repo.HasConfirmedVerification(ctx, db, phone, window, now)
}

// Integrations groups the external dependencies the router injects into the
// services: push delivery, SMS dispatch, and the vehicle registry client.
// Any field may be nil, which disables the corresponding integration.
type Integrations struct {
	Push     services.PushSender
	SMS      services.CodeSender
	Registry registry.Client
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine. It configures observability (tracing, metrics), idempotency and rate
// limiting, CORS and security headers, health and metrics endpoints, and then
// mounts the versioned public API under /api/v*.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. Idempotency validator (before rate limiter to allow bypass on replay)
//  8. Rate limiter (per user/IP, bypass on replay)
//  9. CORS and Security headers
func RegisterRoutes(r *gin.Engine, db *gorm.DB, cfg config.Config, ext Integrations) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{
			"Authorization", // bearer tokens never reach the logs
		},
	}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (1 MiB for JSON; uploads opt out below)
	r.Use(limitBody(1 << 20))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) Idempotency validation (before rate limiting)
	r.Use(middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{
			MaxLen: 200,
		},
		func(ctx context.Context, userID, key string, now time.Time) (bool, error) {
			return repo.HasIdempotencyKey(ctx, db, userID, key, now)
		},
	))

	// 8) Token-bucket rate limiter per user/IP
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP())
	r.Use(rl.Handler())

	// 9) CORS posture (safe defaults: allow all if none configured)
	if len(cfg.CORS.AllowedOrigins) == 0 {
		// Force ACAO: * even for requests without an Origin header (helps tests and simple health checks).
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.HeaderIdempotencyKey},
			ExposeHeaders:    []string{"X-Request-ID", "ETag", "Content-Length"},
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		// Echo ACAO with the request Origin when it is in the allowlist (in addition to gin-contrib/cors).
		allowed := make(map[string]struct{}, len(cfg.CORS.AllowedOrigins))
		for _, o := range cfg.CORS.AllowedOrigins {
			allowed[o] = struct{}{}
		}
		r.Use(func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.HeaderIdempotencyKey},
			ExposeHeaders:    []string{"X-Request-ID", "ETag", "Content-Length"},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Security headers (HSTS only when enabled and request is HTTPS)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      false,
		EnablePolicy: true,
	}))

	// Compress list-heavy responses
	r.Use(gzip.Gzip(gzip.DefaultCompression))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	// Dependency injection: services ← repo/db/integrations
	accountSvc := services.NewAccountService(db, accountRepoShim{}, vehicleRepoShim{}, ext.SMS, cfg.JWTSecret)
	accountSvc.TokenTTL = cfg.TokenTTL
	accountSvc.CodeTTL = cfg.CodeTTL
	accountSvc.VerifyWindow = cfg.VerifyWindow

	vehicleSvc := services.NewVehicleService(db, vehicleRepoShim{}, ext.Registry)
	consultSvc := services.NewConsultationService(db, consultationRepoShim{}, vehicleRepoShim{}, accountRepoShim{}, ext.Push)

	h := handlers.New(accountSvc, vehicleSvc, consultSvc)
	h.UploadDir = cfg.Upload.Dir
	h.UploadBaseURL = cfg.Upload.BaseURL
	if cfg.IdempotencyTTL > 0 {
		h.IdemTTL = cfg.IdempotencyTTL
	}

	// Uploaded images are served statically under the public base URL.
	r.Static(cfg.Upload.BaseURL, cfg.Upload.Dir)

	auth := middleware.RequireAuth([]byte(cfg.JWTSecret))
	admin := middleware.RequireAdmin()

	// Public API
	apiBase := cfg.APIBasePath // e.g. "/api/v1"
	api := groupWithPrefix(r, apiBase)
	{
		// Accounts
		api.POST("/auth/phone/code", h.StartPhoneVerification)
		api.POST("/auth/phone/verify", h.ConfirmPhoneVerification)
		api.POST("/auth/register", h.Register)
		api.POST("/auth/login", h.Login)

		// Browsing is open; everything else requires a session
		api.GET("/vehicles", h.ListVehicles)
		api.GET("/vehicles/:id", h.GetVehicle)
	}

	authed := api.Group("", auth)
	{
		// Own profile
		authed.GET("/me", h.Me)
		authed.PUT("/me/push-token", h.UpdatePushToken)
		authed.DELETE("/me", h.DeleteMe)
		authed.GET("/me/vehicles", h.ListMyVehicles)
		authed.GET("/me/consultations", h.ListMyConsultations)

		// Listings
		authed.POST("/vehicles", h.CreateVehicle)
		authed.DELETE("/vehicles/:id", h.DeleteVehicle)
		authed.POST("/uploads/vehicle-image", h.UploadVehicleImage)

		// Consultation requests
		authed.POST("/consultations", h.CreateConsultation)
		authed.GET("/consultations/:id", h.GetConsultation)
	}

	adminGrp := api.Group("/admin", auth, admin)
	{
		adminGrp.GET("/consultations", h.ListConsultationsAdmin)
		adminGrp.POST("/consultations/:id/approve", h.ApproveConsultation)
		adminGrp.POST("/consultations/:id/reject", h.RejectConsultation)
		adminGrp.PUT("/consultations/:id/schedule", h.ScheduleConsultation)
		adminGrp.GET("/consultations/calendar", h.ConsultationCalendar)

		adminGrp.POST("/vehicles/lookup", h.LookupVehicle)
		adminGrp.POST("/vehicles/registry", h.CreateVehicleFromRegistry)
	}
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error. Image uploads get a higher cap so
// a full-size photo still fits.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := maxBytes
		if c.Request.Method == http.MethodPost && strings.HasSuffix(c.FullPath(), "/uploads/vehicle-image") {
			limit = 8 << 20
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
