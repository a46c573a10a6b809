// Command server runs the marketplace HTTP API: accounts with phone
// verification, vehicle listings (manual and registry-assisted), and the
// consultation request lifecycle.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/carmoa/go-carmarket-backend/internal/config"
	httpapi "github.com/carmoa/go-carmarket-backend/internal/http"
	"github.com/carmoa/go-carmarket-backend/internal/notify"
	"github.com/carmoa/go-carmarket-backend/internal/observability"
	"github.com/carmoa/go-carmarket-backend/internal/registry"
	"github.com/carmoa/go-carmarket-backend/internal/repo"
	"github.com/carmoa/go-carmarket-backend/internal/services"
	"github.com/carmoa/go-carmarket-backend/internal/sysutil"
)

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// .env is optional; real deployments use the process environment.
	_ = godotenv.Load()

	cfg := config.MustLoad()

	sysutil.SetLogLevel(cfg.LogLevel)
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open database")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate database")
	}

	ctx := context.Background()
	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("setup tracing")
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			log.Warn().Err(err).Msg("tracing shutdown")
		}
	}()

	ext := buildIntegrations(cfg)

	gin.SetMode(cfg.GinMode)
	engine := gin.New()
	httpapi.RegisterRoutes(engine, db, cfg, ext)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           engine,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	// Block until SIGINT/SIGTERM, then drain in-flight requests.
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info().Msg("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}

// buildIntegrations wires the optional external dependencies from config.
// Anything left unconfigured degrades to a safe no-op.
func buildIntegrations(cfg config.Config) httpapi.Integrations {
	ext := httpapi.Integrations{
		SMS: notify.LogSMS{},
	}

	if cfg.Push.ServerKey != "" {
		fcm := notify.NewFCMClient(cfg.Push.ServerKey)
		if cfg.Push.Endpoint != "" {
			fcm.Endpoint = cfg.Push.Endpoint
		}
		ext.Push = fcm
	} else {
		log.Info().Msg("push notifications disabled (no FCM_SERVER_KEY)")
	}

	if cfg.Registry.Endpoint != "" {
		ext.Registry = registry.NewHTTPClient(cfg.Registry.Endpoint, cfg.Registry.Token)
	} else {
		log.Info().Msg("registry lookups disabled (no REGISTRY_ENDPOINT)")
	}

	return ext
}

// Interface conformance for the injected integrations.
var (
	_ services.CodeSender = notify.LogSMS{}
	_ services.PushSender = (*notify.FCMClient)(nil)
)
