// Command barrierd runs the barrier gateway: it ingests camera detections
// into the ledger, pulses barrier controllers on schedule or on detection,
// keeps the whitelist fresh, and serves the operator API.
//
// @title                      Barrier Gateway API
// @version                    1.0
// @description                Camera ingestion, barrier dispatch and whitelist administration.
// @BasePath                   /api
// @securityDefinitions.basic  BasicAuth
package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"

	"github.com/tbourn/barrier-gateway/internal/config"
	"github.com/tbourn/barrier-gateway/internal/domain"
	httpapi "github.com/tbourn/barrier-gateway/internal/http"
	"github.com/tbourn/barrier-gateway/internal/observability"
	"github.com/tbourn/barrier-gateway/internal/repo"
	"github.com/tbourn/barrier-gateway/internal/services"
	"github.com/tbourn/barrier-gateway/internal/sysutil"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// A missing .env is fine outside development.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		sysutil.ConfigureLogger(os.Stderr, "info", false)
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	sysutil.ConfigureLogger(os.Stdout, cfg.LogLevel, cfg.LogPretty)
	gin.SetMode(cfg.GinMode)

	if err := run(cfg); err != nil {
		log.Fatal().Err(err).Msg("barrierd stopped with error")
	}
}

func run(cfg config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ver := sysutil.FirstNonEmpty(os.Getenv("APP_VERSION"), version)
	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, ver,
		attribute.Int("gateway.barriers", len(cfg.Barriers)))
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			log.Warn().Err(err).Msg("otel shutdown")
		}
	}()

	// Ledger
	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		return err
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}
	if err := repo.Migrate(db, cfg.DBInitMode); err != nil {
		return err
	}
	if cfg.SeedSample {
		n, err := repo.SeedSampleTransactions(ctx, db, time.Now().Add(-time.Hour))
		if err != nil {
			return err
		}
		log.Info().Int("rows", n).Msg("sample transactions seeded")
	}
	ledger := repo.GormLedger{DB: db}

	// Engine
	whitelist := services.NewWhitelistCache(cfg.Whitelist.Sources, nil, cfg.Dispatch.HTTPTimeout)
	actuator := services.NewHTTPActuator(cfg.Dispatch.HTTPTimeout)
	fleet := services.BuildFleet(cfg.Barriers, cfg.Dispatch, ledger, whitelist, actuator)
	suppressor := services.NewDuplicateSuppressor(cfg.Dispatch.DuplicateWindow, cfg.Dispatch.SuppressionHorizon)
	gateway := services.NewGateway(fleet, ledger, suppressor, cfg.Dispatch.ReactiveEnabled)

	if len(fleet.All()) == 0 {
		log.Warn().Msg("no barriers configured; detections will be rejected")
	}
	for _, b := range fleet.All() {
		b.Subscribe(func(st domain.BarrierStatus) {
			log.Debug().Str("barrier", st.Name).Stringer("indicator", st.Indicator).Stringer("liveness", st.Liveness).Msg("barrier state changed")
		})
	}

	if cfg.Dispatch.ProbeOnStart {
		fleet.ProbeAll(ctx)
	}
	if cfg.Dispatch.SendInitialPulse {
		n := fleet.PulseAll(ctx, services.SourceStartup)
		log.Info().Int("pulsed", n).Msg("initial pulses sent")
	}

	sched := services.NewScheduler(fleet, whitelist, cfg.Whitelist.RefreshCron, cfg.Dispatch.RefreshOnStart)
	sched.Start(ctx)

	// HTTP
	r := gin.New()
	httpapi.RegisterRoutes(r, httpapi.Deps{
		Ingest:       gateway,
		Barriers:     fleet,
		Whitelist:    whitelist,
		Transactions: services.NewTransactionService(db),
	}, cfg)

	srv := &http.Server{
		Addr:              net.JoinHostPort("", cfg.Port),
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", ver).Int("barriers", len(fleet.All())).Msg("barrierd listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown requested")
	case serveErr = <-errCh:
		log.Error().Err(serveErr).Msg("http server failed")
	}

	sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Warn().Err(err).Msg("http shutdown")
	}
	if err := sched.Stop(sctx); err != nil {
		log.Warn().Err(err).Msg("scheduler did not drain in time")
	}
	return serveErr
}
