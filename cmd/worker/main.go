package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"pennywise/internal/app"
	"pennywise/internal/config"
	"pennywise/internal/recurring"
	"pennywise/internal/scheduler"
	pkgconfig "pennywise/pkg/config"
	"pennywise/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	zlog, err := logger.NewLogger(cfg.Log.Level)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer zlog.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	zlog.Info("Starting pennywise worker...",
		zap.String("db_driver", cfg.DB.Driver),
		zap.Duration("interval", cfg.Scheduler.Interval),
		zap.Int("workers", cfg.Scheduler.Workers),
		zap.Bool("conditional_advance", cfg.Scheduler.ConditionalAdvance),
	)

	stores, err := app.OpenStores(ctx, cfg.DB, zlog)
	if err != nil {
		zlog.Fatal("Failed to init store", zap.Error(err))
	}
	defer stores.Close()

	recorder, closeMQ := app.NewAuditRecorder(cfg.MQ, stores.Audit, zlog)
	defer closeMQ()

	opts, closeRedis := app.EngineOptions(ctx, cfg.Scheduler, cfg.Redis, zlog)
	defer closeRedis()

	engine := recurring.NewEngine(stores.Rules, stores.Ledger, recorder, zlog, opts...)
	runner := scheduler.NewRunner(engine, cfg.Scheduler.Interval, cfg.Scheduler.RunTimeout, zlog)

	// Health and metrics only.
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	srv := &http.Server{
		Addr:              pkgconfig.GetEnv("WORKER_METRICS_ADDR", ":9091"),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Error("Metrics server failed", zap.Error(err))
		}
	}()

	runner.Run(ctx)

	zlog.Info("Shutting down worker gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Error("Metrics server shutdown error", zap.Error(err))
	}
	zlog.Info("worker shutdown complete")
}
