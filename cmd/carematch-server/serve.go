package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/carematch/carematch/internal/config"
	"github.com/carematch/carematch/internal/domain/availability"
	"github.com/carematch/carematch/internal/domain/booking"
	"github.com/carematch/carematch/internal/domain/casesession"
	"github.com/carematch/carematch/internal/domain/matching"
	"github.com/carematch/carematch/internal/domain/provider"
	"github.com/carematch/carematch/internal/platform/auth"
	"github.com/carematch/carematch/internal/platform/cache"
	"github.com/carematch/carematch/internal/platform/db"
	"github.com/carematch/carematch/internal/platform/metrics"
	"github.com/carematch/carematch/internal/platform/middleware"
	"github.com/carematch/carematch/internal/platform/reasoning"
	"github.com/carematch/carematch/internal/platform/telemetry"
)

func serveCmd() *cobra.Command {
	var migrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), migrate)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply pending migrations before serving")
	return cmd
}

func openCache(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (cache.Store, func(), error) {
	if cfg.RedisURL == "" {
		store := cache.NewMemoryStore()
		store.StartCleanup(ctx, time.Minute)
		logger.Info().Msg("using in-process cache")
		return store, func() {}, nil
	}
	store, err := cache.NewRedisStore(ctx, cfg.RedisURL, "carematch:")
	if err != nil {
		return nil, nil, err
	}
	logger.Info().Msg("connected to redis")
	return store, func() { _ = store.Close() }, nil
}

func runServer(ctx context.Context, migrate bool) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := newLogger(cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if cfg.IsDev() {
		logger.Warn().Msg("development auth is active: every request is granted the admin role")
	}

	pool, err := db.NewPool(ctx, poolConfig(cfg))
	if err != nil {
		return err
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	if migrate {
		migrator, err := db.NewMigrator(pool)
		if err != nil {
			return err
		}
		err = migrator.Up(ctx)
		migrator.Close()
		if err != nil {
			return err
		}
	}

	store, closeCache, err := openCache(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeCache()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	tp, err := telemetry.Setup(ctx, telemetry.Config{
		ServiceName:    "carematch-server",
		ServiceVersion: version,
		Environment:    cfg.Env,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		SampleRate:     cfg.TraceSampleRate,
	})
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(sctx); err != nil {
			logger.Warn().Err(err).Msg("trace exporter shutdown failed")
		}
	}()

	// Repositories
	providerRepo := provider.NewProviderRepoPG(pool)
	availabilityRepo := provider.NewAvailabilityRepoPG(pool)
	sessionRepo := casesession.NewSessionRepoPG(pool)
	profileRepo := casesession.NewProfileRepoPG(pool)
	appointmentRepo := booking.NewAppointmentRepoPG(pool)
	tx := db.NewTransactor(pool, logger)

	resolver := availability.NewResolver(providerRepo, availabilityRepo, logger)

	var specialization matching.SpecializationScorer
	if cfg.ReasoningEnabled() {
		gemini, err := reasoning.NewGeminiClient(ctx, reasoning.Config{
			APIKey: cfg.GeminiAPIKey,
			Model:  cfg.GeminiModel,
			RPS:    cfg.ReasoningRPS,
		})
		if err != nil {
			logger.Warn().Err(err).Msg("reasoning service unavailable; specialization uses keyword scoring")
		} else {
			defer gemini.Close()
			specialization = matching.NewReasoningScorer(gemini, store, cfg.SemanticCacheTTL, m)
		}
	}

	ranker := matching.NewRanker(matching.Config{
		CacheTTL:         cfg.MatchCacheTTL,
		Timeout:          cfg.MatchTimeout,
		ReasoningTimeout: cfg.ReasoningTimeout,
		MinResults:       cfg.MatchMinResults,
		MaxResults:       cfg.MatchMaxResults,
	}, matching.Deps{
		Sessions:     sessionRepo,
		Profiles:     profileRepo,
		Candidates:   providerRepo,
		Availability: matching.NewAvailabilityScorer(resolver, availabilityRepo, store, cfg.NextAvailableCacheTTL, m),
		Reasoning:    specialization,
		Analytics:    matching.NewAnalyticsRepoPG(pool),
		Cache:        store,
		Metrics:      m,
		Logger:       logger,
	})

	coordinator := booking.NewCoordinator(booking.Config{
		CancellationWindow: cfg.CancellationWindow,
		MaxDuration:        cfg.MaxAppointmentDuration,
		MeetingBaseURL:     cfg.MeetingBaseURL,
	}, providerRepo, sessionRepo, appointmentRepo, tx, m, logger)
	coordinator.SetMatchInvalidator(ranker)

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(tp.TracingMiddleware())
	e.Use(m.Middleware())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders(cfg.TLSEnabled))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
	}))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout, "/health", "/metrics"))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	e.GET("/health/db", db.HealthHandler(pool, db.PoolCheck(pool)))
	e.GET("/health/cache", db.HealthHandler(nil, db.Check{Name: "cache", Ping: store.Ping}))
	e.GET("/metrics", m.Handler())

	authMW := auth.DevAuthMiddleware()
	if !cfg.IsDev() {
		authMW = auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
			SigningKey: []byte(cfg.AuthSigningKey),
		})
	}
	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
		IdleTTL:           10 * time.Minute,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	api := e.Group("/api/v1", middleware.RateLimit(rateLimitCfg), authMW)

	provider.NewHandler(provider.NewService(providerRepo, availabilityRepo, tx)).RegisterRoutes(api)
	availability.NewHandler(resolver).RegisterRoutes(api)
	casesession.NewHandler(casesession.NewService(sessionRepo, profileRepo, tx, ranker, logger)).RegisterRoutes(api)
	matching.NewHandler(ranker).RegisterRoutes(api)
	booking.NewHandler(coordinator).RegisterRoutes(api)

	errc := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Bool("reasoning", specialization != nil).Msg("starting server")
		var err error
		if cfg.TLSEnabled {
			err = e.StartTLS(addr, cfg.TLSCertFile, cfg.TLSKeyFile)
		} else {
			err = e.Start(addr)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down server")
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(sctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	logger.Info().Msg("server stopped")
	return nil
}
