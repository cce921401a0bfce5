// cmd/assistant/main.go
package main

import (
	"context"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"payment-assistant/internal/api"
	"payment-assistant/internal/assistant/authn"
	"payment-assistant/internal/assistant/catalog"
	"payment-assistant/internal/assistant/directory"
	"payment-assistant/internal/assistant/intent"
	"payment-assistant/internal/assistant/orchestrator"
	"payment-assistant/internal/assistant/session"
	"payment-assistant/internal/assistant/settlement"
	"payment-assistant/internal/common/cache"
	"payment-assistant/internal/common/config"
	"payment-assistant/internal/common/logger"
	"payment-assistant/internal/common/observability"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallback := logger.New("info", "console")
		fallback.Fatal("config load failed", zap.Error(err))
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()

	log := logger.NewZapAdapter(zapLog)
	zapLog.Info("Starting payment assistant...")

	obs := observability.New(cfg.App.Name)
	defer obs.Shutdown()

	ctx := context.Background()

	// Redis is optional: without it the resolver and catalog just skip
	// their cache tier.
	redis := cache.NewRedis(cfg.Cache)
	if redis != nil {
		if err := redis.Ping(ctx); err != nil {
			zapLog.Warn("redis unreachable, continuing without cache", zap.Error(err))
			redis = nil
		} else {
			defer redis.Close()
			zapLog.Info("Redis connected successfully")
		}
	}

	classifier := intent.NewClassifier(intent.ConfigFromApp(cfg.GenAI), log)
	resolver := directory.NewResolver(directory.ConfigFromApp(cfg.Registries, cfg.Cache.TTL), redis, log)
	store := catalog.NewGateway(catalog.ConfigFromApp(cfg.Catalog, cfg.Cache.TTL), redis, log)
	settler := settlement.NewClient(settlement.ConfigFromApp(cfg.Gateway), log)
	login := authn.NewClient(authn.ConfigFromApp(cfg.Registries), log)

	sessions := session.NewManager()
	orch := orchestrator.New(classifier, resolver, store, settler, log, obs)
	handler := api.NewHandler(sessions, orch, login, log)

	srv := &http.Server{
		Addr:    cfg.Server.Address,
		Handler: handler.Router(),
	}

	go func() {
		zapLog.Info("HTTP server listening", zap.String("address", cfg.Server.Address))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLog.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, draining requests...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.GetDuration(cfg.Server.ShutdownTimeout))
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("HTTP server shutdown failed", zap.Error(err))
	}

	zapLog.Info("Payment assistant stopped gracefully")
}
