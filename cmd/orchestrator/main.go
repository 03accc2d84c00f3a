package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/finclick-ai/orchestrator/internal/broker"
	"github.com/finclick-ai/orchestrator/internal/config"
	"github.com/finclick-ai/orchestrator/internal/httpapi"
	"github.com/finclick-ai/orchestrator/internal/orchestrator"
	"github.com/finclick-ai/orchestrator/internal/registry"
	"github.com/finclick-ai/orchestrator/internal/results"
	"github.com/finclick-ai/orchestrator/internal/scheduler"
	"github.com/finclick-ai/orchestrator/internal/store"
	"github.com/finclick-ai/orchestrator/internal/workflows"
	"github.com/finclick-ai/orchestrator/internal/workload"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfgManager, err := config.NewManager(zap.NewNop())
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	cfg := cfgManager.Current()

	logger, err := buildLogger(cfg.Logging.Level)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	if err := cfgManager.Start(ctx); err != nil {
		logger.Warn("Config hot-reload unavailable", zap.Error(err))
	}
	defer cfgManager.Stop()

	// Core components.
	reg := registry.New(logger)
	tracker := workload.NewTracker(logger)
	sched := scheduler.New(reg, tracker, logger)

	catalog, err := workflows.DefaultCatalog()
	if err != nil {
		logger.Fatal("Failed to load workflow catalog", zap.Error(err))
	}
	engine := workflows.NewEngine(catalog, sched, reg, tracker, logger)

	brk := broker.New(logger,
		broker.WithQueueSize(cfg.Broker.QueueSize),
		broker.WithHistorySize(cfg.Broker.HistorySize),
	)
	brk.Start(ctx)
	defer brk.Stop()

	// Optional persistence backends.
	var opts []orchestrator.Option
	if cfg.Database.Enabled {
		st, err := store.New(cfg.Database.DSN, logger)
		if err != nil {
			logger.Fatal("Failed to connect to workflow history database", zap.Error(err))
		}
		defer st.Close()
		opts = append(opts, orchestrator.WithHistoryStore(st))
		logger.Info("Workflow history persistence enabled")
	}
	if cfg.Redis.Enabled {
		cache, err := results.New(cfg.Redis.Addr, logger)
		if err != nil {
			logger.Fatal("Failed to connect to result cache", zap.Error(err))
		}
		defer cache.Close()
		opts = append(opts, orchestrator.WithResultCache(cache))
		logger.Info("Result cache enabled", zap.String("addr", cfg.Redis.Addr))
	}

	sup := orchestrator.New(reg, tracker, engine, brk, logger, opts...)

	if err := seedRoster(sup); err != nil {
		logger.Fatal("Failed to register agent roster", zap.Error(err))
	}
	logger.Info("Agent roster registered", zap.Int("agents", reg.Count()))

	// API server.
	apiMux := http.NewServeMux()
	httpapi.NewHandler(sup, logger).RegisterRoutes(apiMux)
	apiServer := &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:     apiMux,
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 60 * time.Second,
	}
	go func() {
		logger.Info("API server listening", zap.Int("port", cfg.Server.Port))
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("API server failed", zap.Error(err))
		}
	}()

	// Metrics server.
	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Metrics.Port),
			Handler: metricsMux,
		}
		go func() {
			logger.Info("Metrics server listening", zap.Int("port", cfg.Metrics.Port))
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("Metrics server failed", zap.Error(err))
			}
		}()
	}

	// Wait for shutdown signal.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("Shutting down", zap.String("signal", sig.String()))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("API server shutdown failed", zap.Error(err))
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Metrics server shutdown failed", zap.Error(err))
		}
	}
}

func buildLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}
