package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/rl1809/wip-inventory/internal/adapter/handler"
	"github.com/rl1809/wip-inventory/internal/config"
	"github.com/rl1809/wip-inventory/internal/core/service"
	"github.com/rl1809/wip-inventory/internal/logging"
	"github.com/rl1809/wip-inventory/internal/observability"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := logging.New(logging.Config{
		ServiceName: cfg.ServiceName,
		Env:         string(cfg.AppEnv),
		Level:       cfg.LogLevel,
		Format:      cfg.LogFormat,
	})
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logging.Sync(logger)

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	otelShutdown, err := observability.Init(ctx, observability.Config{
		Enabled:       cfg.OTelEnabled,
		OTLPEndpoint:  cfg.OTelEndpoint,
		SamplingRatio: cfg.OTelSamplingRatio,
		ServiceName:   cfg.ServiceName,
		Environment:   string(cfg.AppEnv),
	})
	if err != nil {
		return err
	}

	backends, err := openInfra(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer backends.Close(logger)

	sink, closeAudit, err := buildAudit(ctx, cfg, backends, logger)
	if err != nil {
		return err
	}

	// Initialize services
	query := service.NewInventoryQuery(backends.ledger)
	locations := service.NewLocationDirectory(ctx, backends.catalog, logger)
	validator := service.NewTransferValidator(query, locations, logger)
	transfers := service.NewTransferService(backends.ledger, validator, backends.locker, sink, logger,
		service.WithRetry(cfg.PersistMaxRetries, cfg.PersistRetryDelay),
		service.WithLockTimeout(cfg.LockTimeout),
		service.WithPersistTimeout(cfg.PersistTimeout),
	)
	services := handler.Services{
		Query:     query,
		Transfers: transfers,
		Locations: locations,
		History:   service.NewHistoryService(backends.txlog),
	}
	logger.Info("services ready",
		zap.String("ledger", cfg.LedgerBackend),
		zap.String("lock", cfg.LockBackend),
		zap.Strings("locations", locations.ListLocations()),
	)

	// Initialize gRPC server
	grpcServer := grpc.NewServer()
	handler.RegisterInventoryServer(grpcServer, handler.NewGRPCHandler(services, logger))
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	if cfg.EnableGRPCReflection {
		reflection.Register(grpcServer)
	}

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return err
	}
	go func() {
		logger.Info("gRPC server listening", zap.String("addr", cfg.GRPCAddr))
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("gRPC server error", zap.Error(err))
		}
	}()

	// Initialize HTTP server
	ready := func() bool { return len(locations.ListLocations()) > 0 }
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler.NewRouter(handler.NewHTTPHandler(services, logger), ready),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("HTTP server listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(handler.InventoryServiceName, grpc_health_v1.HealthCheckResponse_SERVING)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	healthServer.Shutdown()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown", zap.Error(err))
	}
	logger.Info("HTTP server stopped")

	grpcServer.GracefulStop()
	logger.Info("gRPC server stopped")

	// In-flight requests are done; flush queued audit events
	closeAudit()
	logger.Info("audit sinks drained")

	if err := otelShutdown(shutdownCtx); err != nil {
		logger.Warn("otel shutdown", zap.Error(err))
	}
	return nil
}
