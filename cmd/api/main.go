package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fasthttp/router"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	deliveryhttp "substrate-gateway/internal/adapter/delivery/http"
	handlerhttp "substrate-gateway/internal/adapter/handler/http"
	"substrate-gateway/internal/adapter/indexer/subscan"
	"substrate-gateway/internal/adapter/rpc"
	"substrate-gateway/internal/adapter/storage/memory"
	"substrate-gateway/internal/adapter/storage/networks"
	"substrate-gateway/internal/application"
	"substrate-gateway/internal/config"
	"substrate-gateway/internal/logger"
	"substrate-gateway/internal/metrics"
)

func main() {
	// --- Configuration ---
	cfgPath := "configs"
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("Failed to load configuration from %s: %v", cfgPath, err)
	}

	// --- Logger ---
	appLogger, err := logger.NewLogger(cfg.Logger, cfg.App)
	if err != nil {
		log.Fatalf("Failed to setup logger: %v", err)
	}
	defer appLogger.Sync() //nolint:errcheck
	appLogger.Info("Logger initialized", zap.Any("config", cfg.Logger))

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Metrics ---
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	// --- Dependency Injection (Manual) ---
	appLogger.Info("Initializing dependencies...")

	networkRepo, err := networks.NewRepository(cfg.Networks, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to load network registry", zap.Error(err))
	}
	cacheRepo := memory.NewCacheRepository(*cfg, appLogger)
	transport := rpc.NewWSTransport(rpc.OptionsFromConfig(cfg.Connection), appLogger)
	checker := rpc.NewChecker(appLogger)
	indexer := subscan.NewClient(cfg.Indexer, m, appLogger)

	connections := application.NewConnectionManager(
		rootCtx, networkRepo, transport, cfg.Connection.AttemptTimeout, m, appLogger,
	)
	addressService := application.NewAddressService(networkRepo, appLogger)
	chainService := application.NewChainService(
		rootCtx, networkRepo, connections, cacheRepo, indexer, m, appLogger, *cfg,
	)
	endpointService := application.NewEndpointService(
		rootCtx, networkRepo, cacheRepo, checker, m, appLogger, cfg.Checker,
	)

	chainHandler := handlerhttp.NewChainHandler(
		rootCtx, chainService, endpointService, addressService,
		cfg.Connection.AttemptTimeout+cfg.Connection.RequestTimeout, appLogger,
	)

	// --- HTTP Router & Server ---
	appLogger.Info("Setting up HTTP router...")
	r := router.New()
	deliveryhttp.RegisterRoutes(r, chainHandler, registry, appLogger)

	server := &fasthttp.Server{
		Handler: deliveryhttp.LoggingMiddleware(r.Handler, appLogger),
		Name:    cfg.App.Name,
	}

	serverAddr := ":" + cfg.Server.Port
	serveErr := make(chan error, 1)
	go func() {
		appLogger.Info("Starting HTTP server", zap.String("address", serverAddr))
		serveErr <- server.ListenAndServe(serverAddr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			appLogger.Error("HTTP server failed", zap.Error(err))
		}
		stop()
	case <-rootCtx.Done():
		appLogger.Info("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.ShutdownWithContext(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		appLogger.Warn("HTTP server shutdown failed", zap.Error(err))
	}
	if err := connections.Close(); err != nil {
		appLogger.Warn("Closing node connections failed", zap.Error(err))
	}
	appLogger.Info("Shutdown complete")
}
