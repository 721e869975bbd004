package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"pennywise/internal/app"
	"pennywise/internal/config"
	"pennywise/internal/httpserver"
	"pennywise/internal/recurring"
	"pennywise/internal/service"
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

	zlog.Info("Starting pennywise api...",
		zap.String("db_driver", cfg.DB.Driver),
		zap.String("port", cfg.Server.Port),
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
	rules := recurring.NewService(stores.Rules, engine, stores.Ledger, recorder, zlog)
	auth := service.NewAuthService(stores.Users, cfg.JWT.Secret, zlog)

	router := httpserver.NewRouter(
		httpserver.NewAuthHandler(auth, zlog),
		httpserver.NewRecurringHandler(rules, zlog),
		auth,
		stores.Ping,
		zlog,
	)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router.Engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		zlog.Info("HTTP server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	zlog.Info("Shutting down api gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Error("HTTP server shutdown error", zap.Error(err))
	}
	zlog.Info("api shutdown complete")
}
