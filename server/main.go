package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/astralux/licensing/pkg/auth"
	"github.com/astralux/licensing/pkg/config"
	"github.com/astralux/licensing/pkg/health"
	"github.com/astralux/licensing/pkg/license"
	"github.com/astralux/licensing/pkg/store"
	"github.com/astralux/licensing/pkg/telemetry"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

var (
	configPath = flag.String("config", "/etc/license/server.yaml", "Config file path")
	listen     = flag.String("listen", "", "Listen address (overrides config)")
	Version    = "dev"
)

func main() {
	flag.Parse()
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("license server stopped")
	}
}

func run() error {
	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *listen != "" {
		cfg.Server.Listen = *listen
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := newLogger(cfg.Logging)
	log.Logger = logger
	logger.Info().Str("version", Version).Str("driver", cfg.Database.Driver).Msg("license server starting")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	provider, err := telemetry.SetupTracing(ctx, cfg.Tracing, Version, logger)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("tracer shutdown failed")
		}
	}()

	st, err := store.Open(ctx, cfg.Store())
	if err != nil {
		return err
	}
	defer st.Close()

	verifier, err := auth.NewAdminVerifier(cfg.Auth.AdminSecret)
	if err != nil {
		return err
	}

	metrics := telemetry.NewMetrics()
	opts := []license.Option{license.WithLogger(logger), license.WithRecorder(metrics)}
	srv := &Server{
		engine:   license.NewEngine(st, verifier, cfg.Policy(), opts...),
		detector: license.NewDetector(st, verifier, cfg.Thresholds(), opts...),
		admin:    verifier,
		health:   health.NewChecker(st, 2*time.Second, Version),
		metrics:  metrics,
		logger:   logger,
	}
	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}

	gin.SetMode(gin.ReleaseMode)
	router, err := srv.router(routeOptions{trustedProxies: cfg.Server.TrustedProxies, metricsPath: metricsPath})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:         cfg.Server.Listen,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("listen", cfg.Server.Listen).Msg("listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func newLogger(cfg config.LoggingConfig) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.DurationFieldUnit = time.Millisecond

	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.Level)))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if cfg.JSON {
		logger = zerolog.New(os.Stdout)
	} else {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}
	return logger.Level(level).With().Timestamp().Str("service", "license-server").Logger()
}
