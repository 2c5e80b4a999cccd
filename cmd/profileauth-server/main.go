// Command profileauth-server serves the profileauth HTTP API backed by
// Postgres (users and refresh sessions) and Redis (verification codes and
// throttles).
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"

	"github.com/MrEthical07/profileauth"
	"github.com/MrEthical07/profileauth/internal/config"
	"github.com/MrEthical07/profileauth/internal/httpapi"
	"github.com/MrEthical07/profileauth/internal/logger"
	"github.com/MrEthical07/profileauth/internal/observability"
	otelexport "github.com/MrEthical07/profileauth/metrics/export/otel"
	"github.com/MrEthical07/profileauth/metrics/export/prometheus"
	"github.com/MrEthical07/profileauth/middleware"
	"github.com/MrEthical07/profileauth/notify"
	"github.com/MrEthical07/profileauth/store/postgres"
)

var (
	buildVersion = "N/A" // set by ldflags
	buildCommit  = "N/A" // set by ldflags
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	defer stop()

	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatalf("failed to parse config: %v", err)
	}
	logger := logger.New(cfg.LogLevel)
	logger.Info("starting profileauth-server", "version", buildVersion, "commit", buildCommit)

	if err := observability.InitSentry(cfg.Sentry.DSN, cfg.Sentry.Environment); err != nil {
		logger.Error("failed to init sentry", "error", err)
	}
	defer observability.FlushSentry()

	db, err := postgres.Open(ctx, cfg.Database.DSN)
	if err != nil {
		logger.Fatal("failed to initialize storage", "error", err)
	}
	defer db.Close()

	if cfg.Database.Migrate {
		if err := postgres.Migrate(ctx, db); err != nil {
			logger.Fatal("migrations failed", "error", err)
		}
	}
	store := postgres.New(db)

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Fatal("failed to reach redis", "error", err)
	}

	engineCfg := cfg.EngineConfig()
	builder := profileauth.New().
		WithConfig(engineCfg).
		WithRedis(rdb).
		WithUserProvider(store).
		WithSessionBackend(store).
		WithNotifier(notify.NewJSONWriterSender(os.Stdout, cfg.Auth.NotifyRedact)).
		WithLogger(logger.Logger)
	if engineCfg.Audit.Enabled {
		builder = builder.WithAuditSink(profileauth.NewSlogSink(logger.Logger))
	}
	engine, err := builder.Build()
	if err != nil {
		logger.Fatal("failed to build auth engine", "error", err)
	}
	defer engine.Close()

	report := engine.SecurityReport()
	logger.Info("security posture",
		"production", report.ProductionMode,
		"signing", report.SigningAlgorithm,
		"access_ttl", report.AccessTTL,
		"login_throttle", report.LoginThrottleActive,
		"weak_settings", report.WeakSettings,
	)

	otelExporter, err := otelexport.NewOTelExporter(otel.Meter("github.com/MrEthical07/profileauth"), engine)
	if err != nil {
		logger.Fatal("failed to register otel metrics", "error", err)
	}
	defer otelExporter.Close()

	proxies, err := observability.NewTrustedProxies(cfg.HTTP.TrustedProxies)
	if err != nil {
		logger.Fatal("failed to parse trusted proxies", "error", err)
	}

	mux := http.NewServeMux()
	httpapi.NewHandler(engine, middleware.CookieOptionsFromConfig(engineCfg), logger.Logger).Routes(mux)
	mux.Handle("GET /metrics", prometheus.NewPrometheusExporter(engine).Handler())

	handler := observability.RecoverMiddleware(logger.Logger,
		observability.RequestContextMiddleware(proxies,
			observability.RequestLoggingMiddleware(logger.Logger, proxies, mux),
		),
	)

	srv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", "address", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("received interruption signal, shutting down")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("error during server shutdown", "error", err)
	}

	logger.Info("shutdown complete", "audit_dropped", engine.AuditDropped())
}
