package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"

	"github.com/groot/groot/internal/config"
	"github.com/groot/groot/internal/domain/clinic"
	"github.com/groot/groot/internal/domain/doctor"
	"github.com/groot/groot/internal/domain/knowledge"
	"github.com/groot/groot/internal/domain/payment"
	"github.com/groot/groot/internal/domain/triage"
	"github.com/groot/groot/internal/platform/accesslog"
	"github.com/groot/groot/internal/platform/auth"
	"github.com/groot/groot/internal/platform/db"
	"github.com/groot/groot/internal/platform/middleware"
	"github.com/groot/groot/internal/platform/mpesa"
	"github.com/groot/groot/internal/platform/places"
	"github.com/groot/groot/internal/platform/telemetry"
)

const welcomeMessage = "Welcome to GROOT, AI platform for Ovarian Cyst Management"

// services holds the domain services the router exposes. accessLog and
// dbHealth may be nil.
type services struct {
	doctors   *doctor.Service
	triage    *triage.Service
	knowledge *knowledge.Service
	clinics   *clinic.Service
	payments  *payment.Service
	accessLog accesslog.Store
	dbHealth  db.Pinger
}

func (s services) setMetrics(m *telemetry.Metrics) {
	s.doctors.SetMetrics(m)
	s.triage.SetMetrics(m)
	s.knowledge.SetMetrics(m)
	s.clinics.SetMetrics(m)
	s.payments.SetMetrics(m)
}

func runServer(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := newLogger(cfg.Env)
	if err := cfg.Validate(); err != nil {
		logger.Error().Err(err).Msg("invalid configuration")
		return err
	}

	// Tracing
	shutdownTracing, err := telemetry.Setup(ctx, telemetry.TracingConfig{
		ServiceName:    "groot-server",
		ServiceVersion: version,
		Environment:    cfg.Env,
		Endpoint:       cfg.OTelEndpoint,
		Enabled:        cfg.TracingEnabled(),
	})
	if err != nil {
		return fmt.Errorf("set up tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Error().Err(err).Msg("failed to flush traces")
		}
	}()

	// Database
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Auth
	issuer, err := newTokenIssuer(cfg, logger)
	if err != nil {
		return err
	}
	revoked := auth.NewTokenRevocationStore()
	revoked.StartCleanup(ctx, 10*time.Minute)

	metrics := telemetry.NewMetrics()
	metrics.RegisterGauge("groot_db_pool_total_conns", "Open database connections.", func() int64 {
		return int64(pool.Stat().TotalConns())
	})
	metrics.RegisterGauge("groot_db_pool_acquired_conns", "Database connections in use.", func() int64 {
		return int64(pool.Stat().AcquiredConns())
	})
	metrics.RegisterGauge("groot_revoked_tokens", "Revoked access tokens not yet expired.", func() int64 {
		return int64(revoked.Count())
	})

	// Triage
	models, err := triage.LoadModels(cfg.ModelDir)
	if err != nil {
		return fmt.Errorf("load triage models: %w", err)
	}

	// Knowledge base
	knowledgeSvc, closeIndex, err := buildKnowledge(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("set up knowledge base: %w", err)
	}
	defer closeIndex()

	// Google Places
	var finder clinic.Finder
	if client, err := places.NewClient(cfg.GoogleMapsAPIKey, ""); err == nil {
		finder = client
	} else {
		logger.Warn().Err(err).Msg("clinic search disabled")
	}

	// M-Pesa
	var pusher payment.Pusher
	if cfg.MpesaConfigured() {
		client, err := mpesa.NewClient(mpesa.Config{
			BaseURL:          cfg.MpesaBaseURL,
			ConsumerKey:      cfg.MpesaConsumerKey,
			ConsumerSecret:   cfg.MpesaConsumerSecret,
			Shortcode:        cfg.MpesaShortcode,
			Passkey:          cfg.MpesaPasskey,
			CallbackURL:      cfg.MpesaCallbackURL,
			AccountReference: cfg.MpesaAccountReference,
		})
		if err != nil {
			return fmt.Errorf("set up m-pesa: %w", err)
		}
		pusher = client
	} else {
		logger.Warn().Msg("M-Pesa not configured, STK push disabled")
	}

	svc := services{
		doctors:   doctor.NewService(doctor.NewRepo(pool), issuer, revoked, logger),
		triage:    triage.NewService(models, triage.NewCatalogRepo(pool), triage.NewAssessmentRepo(pool), logger),
		knowledge: knowledgeSvc,
		clinics:   clinic.NewService(finder, logger),
		payments:  payment.NewService(payment.NewRepo(pool), pusher, logger),
		accessLog: accesslog.NewStore(pool),
		dbHealth:  pool,
	}
	svc.setMetrics(metrics)
	if n, err := svc.doctors.RestoreRevocations(ctx); err != nil {
		logger.Warn().Err(err).Msg("could not restore token revocations for inactive doctors")
	} else if n > 0 {
		logger.Info().Int("doctors", n).Msg("restored token revocations for inactive doctors")
	}

	e := newServer(cfg, logger, issuer, revoked, metrics, svc)

	addr := ":" + cfg.Port
	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Msg("starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	logger.Info().Msg("server stopped")
	return nil
}

// newServer builds the router: global middleware first, then the routes of
// every domain.
func newServer(cfg *config.Config, logger zerolog.Logger, issuer *auth.TokenIssuer,
	revoked *auth.TokenRevocationStore, metrics *telemetry.Metrics, svc services) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(telemetry.TracingMiddleware(otel.GetTracerProvider()))
	e.Use(middleware.SecurityHeaders(middleware.SecurityHeadersConfig{
		HSTS:             !cfg.IsDev(),
		DownloadPrefixes: []string{"/admin/access-log/export"},
	}))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout, "/knowledge/ingest"))
	e.Use(metrics.Middleware())

	if cfg.IsDev() {
		e.Use(auth.DevAuthMiddleware(issuer))
	} else {
		e.Use(auth.JWTMiddleware(issuer, revoked))
	}

	rateLimitCfg := middleware.DefaultRateLimitConfig()
	if cfg.RateLimitRPS > 0 {
		rateLimitCfg.RequestsPerSecond = cfg.RateLimitRPS
		rateLimitCfg.BurstSize = cfg.RateLimitBurst
	}
	e.Use(middleware.RateLimit(rateLimitCfg))

	if svc.accessLog != nil {
		e.Use(middleware.Audit(logger, svc.accessLog))
	} else {
		e.Use(middleware.Audit(logger))
	}

	e.GET("/", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"message": welcomeMessage})
	})
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	if svc.dbHealth != nil {
		e.GET("/health/db", db.HealthHandler(svc.dbHealth))
	}
	e.GET("/metrics", metrics.Handler())

	doctor.NewHandler(svc.doctors).RegisterRoutes(e.Group("/auth"))
	triage.NewHandler(svc.triage).RegisterRoutes(e.Group("/triage"))
	knowledge.NewHandler(svc.knowledge).RegisterRoutes(e.Group("/chat"), e.Group("/knowledge"))
	clinic.NewHandler(svc.clinics).RegisterRoutes(e.Group("/clinics"))
	payment.NewHandler(svc.payments).RegisterRoutes(e.Group("/payments"))
	if svc.accessLog != nil {
		accesslog.NewHandler(svc.accessLog).RegisterRoutes(e.Group("/admin", auth.RequireRole(auth.RoleAdmin)))
	}

	return e
}
