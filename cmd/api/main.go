package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/davidleathers/attendance-analytics-engine/internal/api/rest"
	"github.com/davidleathers/attendance-analytics-engine/internal/infrastructure/cache"
	"github.com/davidleathers/attendance-analytics-engine/internal/infrastructure/config"
	"github.com/davidleathers/attendance-analytics-engine/internal/infrastructure/database"
	"github.com/davidleathers/attendance-analytics-engine/internal/infrastructure/telemetry"
	"github.com/davidleathers/attendance-analytics-engine/internal/metrics"
	"github.com/davidleathers/attendance-analytics-engine/internal/service/analytics"
)

func main() {
	var (
		configPath = flag.String("config", "", "Path to configuration file")
		envFile    = flag.String("env-file", ".env", "Optional dotenv file loaded before configuration")
		migrate    = flag.Bool("migrate", false, "Apply database migrations before serving")
	)
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf("Failed to load %s: %v", *envFile, err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := telemetry.SetupLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to setup logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, logger, *migrate); err != nil {
		logger.Error("service failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger, migrateOnStart bool) error {
	logger.Info("starting attendance analytics service",
		zap.String("version", cfg.Version),
		zap.String("environment", cfg.Environment),
		zap.Int("port", cfg.Server.Port))

	provider, err := telemetry.InitializeOpenTelemetry(ctx, cfg.OpenTelemetry("attendance-analytics"))
	if err != nil {
		return fmt.Errorf("initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}()

	engineCfg, err := cfg.Engine.Resolve()
	if err != nil {
		return err
	}
	registry, err := metrics.NewRegistry("attendance-analytics")
	if err != nil {
		return fmt.Errorf("create metrics registry: %w", err)
	}
	engine := analytics.NewEngine(engineCfg, logger, registry)

	prom := newServiceMetrics(cfg.Version, cfg.Environment)
	checks := map[string]rest.HealthCheck{}

	var events rest.EventSource
	if cfg.Database.Enabled {
		if migrateOnStart {
			if err := database.Migrate(cfg.Database.URL, logger); err != nil {
				return err
			}
		}
		pool, err := database.NewConnectionPool(ctx, &cfg.Database, logger)
		if err != nil {
			return err
		}
		defer pool.Close()
		events = database.NewEventRepository(pool, logger)
		checks["database"] = pool.HealthCheck
		go prom.collectPoolStats(ctx, pool, 15*time.Second)
	}

	var (
		reports cache.ReportStore
		limiter rest.KeyedLimiter
	)
	if cfg.Redis.Enabled {
		cm, err := cache.NewCacheManager(&cfg.Redis, cfg.Server.RateLimit, logger)
		if err != nil {
			return err
		}
		defer func() { _ = cm.Close() }()
		reports = cm.Reports
		checks["redis"] = cm.HealthCheck
		if cfg.Server.RateLimit.Enabled {
			limiter = cm.RateLimiter
		}
		prom.reportCacheEnabled.Set(1)
	}
	if limiter == nil && cfg.Server.RateLimit.Enabled {
		mem := rest.NewInMemoryRateLimiter(cfg.Server.RateLimit.RequestsPerSecond, cfg.Server.RateLimit.BurstSize)
		go mem.RunPruner(ctx, time.Minute)
		limiter = mem
	}

	go prom.probeDependencies(ctx, checks, 30*time.Second)

	clientIP, err := rest.NewClientIPResolver(cfg.Server.TrustedProxies)
	if err != nil {
		return err
	}

	handlers := rest.NewHandlers(engine, events, reports, checks, logger)
	router := rest.NewRouter(rest.Config{
		RequestTimeout: cfg.Server.RequestTimeout,
		MaxBodyBytes:   cfg.Server.MaxBodyBytes,
		Limiter:        limiter,
		ClientIP:       clientIP,
		Gatherer:       prom.registry,
		HTTPMetrics:    rest.NewHTTPMetrics(prom.registry),
		Metrics:        registry,
	}, handlers, logger)

	return serve(ctx, cfg.Server, router, logger)
}

// serve runs the HTTP server until ctx is canceled, then drains it
func serve(ctx context.Context, cfg config.ServerConfig, handler http.Handler, logger *zap.Logger) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.WriteTimeout,
		ErrorLog:          zap.NewStdLog(logger.Named("http_server")),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down gracefully", zap.Duration("timeout", cfg.ShutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	return nil
}
