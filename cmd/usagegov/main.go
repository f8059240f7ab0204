package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/kailas-cloud/usagegov/internal/config"
	"github.com/kailas-cloud/usagegov/internal/db"
	"github.com/kailas-cloud/usagegov/internal/db/failover"
	dbMemory "github.com/kailas-cloud/usagegov/internal/db/memory"
	dbRedis "github.com/kailas-cloud/usagegov/internal/db/redis"
	dompricing "github.com/kailas-cloud/usagegov/internal/domain/pricing"
	domusage "github.com/kailas-cloud/usagegov/internal/domain/usage"
	logpkg "github.com/kailas-cloud/usagegov/internal/logger"
	"github.com/kailas-cloud/usagegov/internal/metrics"
	repousage "github.com/kailas-cloud/usagegov/internal/repository/usage"
	chiTransport "github.com/kailas-cloud/usagegov/internal/transport/chi"
	alertuc "github.com/kailas-cloud/usagegov/internal/usecase/alert"
	governoruc "github.com/kailas-cloud/usagegov/internal/usecase/governor"
	healthuc "github.com/kailas-cloud/usagegov/internal/usecase/health"
	predictuc "github.com/kailas-cloud/usagegov/internal/usecase/predict"
	pricinguc "github.com/kailas-cloud/usagegov/internal/usecase/pricing"
	"github.com/kailas-cloud/usagegov/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting usagegov API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("db_driver", cfg.Database.Driver),
		zap.Strings("db_addrs", cfg.Database.Addrs),
		zap.Int("services", len(cfg.Governor.Services)),
	)

	// Create usage store based on driver
	var primary db.Store
	switch cfg.Database.Driver {
	case "redis":
		primary, err = dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Database.Addrs,
			Username: cfg.Database.Username,
			Password: cfg.Database.Password,
		})
	case "memory":
		primary = dbMemory.NewStore()
	default:
		logger.Fatal("Unknown database driver", zap.String("driver", cfg.Database.Driver))
	}
	if err != nil {
		logger.Fatal("Failed to create usage store", zap.Error(err))
	}
	defer primary.Close()

	// Wait for store to be ready
	ctx := context.Background()
	if err := primary.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Usage store not ready", zap.Error(err))
	}
	logger.Info("Connected to usage store")

	// Register governor metrics explicitly (no init())
	metrics.RegisterGovernorMetrics()
	metrics.RegisterHTTPMetrics()

	// Metering must survive a primary outage: wrap the store so counters
	// divert to an in-process standby instead of being dropped.
	var store db.Store = primary
	var standby db.Store
	if cfg.Database.Driver == "redis" {
		standby = dbMemory.NewStore()
		store = failover.New(primary, standby, time.Duration(cfg.Database.OpTimeoutMs)*time.Millisecond, logger).
			WithFallbackHook(func(op string) {
				metrics.StoreFallbackTotal.WithLabelValues(op).Inc()
			})
	}

	// Repository
	repo := repousage.New(
		store,
		domusage.NewKeys(cfg.Storage.KeyPrefix),
		time.Duration(cfg.Governor.DailyTTLDays)*24*time.Hour,
		time.Duration(cfg.Governor.MonthlyTTLDays)*24*time.Hour,
	)

	// Pricing models and budgets from config (Validate already ran)
	models := make(map[string]dompricing.Model, len(cfg.Governor.Services))
	budgets := make(map[string]float64, len(cfg.Governor.Services))
	for name, svc := range cfg.Governor.Services {
		model, err := svc.PricingModel()
		if err != nil {
			logger.Fatal("Invalid pricing model", zap.String("service", name), zap.Error(err))
		}
		models[name] = model
		budgets[name] = svc.BudgetUSD
	}

	// Use case services
	costSvc := pricinguc.New(repo, models, budgets, cfg.Governor.TotalBudgetUSD)
	predictSvc := predictuc.New(repo, &cfg)
	alertEngine := alertuc.NewEngine(
		alertuc.MultiSink{alertuc.NewZapSink(logger), alertuc.NewPromSink()},
		alertuc.Thresholds{
			Warning:  cfg.Governor.Thresholds.Warning,
			Critical: cfg.Governor.Thresholds.Critical,
		},
	)
	govSvc := governoruc.New(repo, costSvc, predictSvc, alertEngine, &cfg, models, logger)
	healthSvc := healthuc.New(primary, standby)

	// Create chi server
	server := chiTransport.NewServer(govSvc, healthSvc, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	server.Register(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())

			// Set X-Request-ID in response header
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			// Per-request logger with request_id
			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line — one line per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
