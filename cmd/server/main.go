package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"

	"github.com/asakaida/relata/internal/app"
	"github.com/asakaida/relata/internal/handlers"
	"github.com/asakaida/relata/internal/infrastructure/config"
	"github.com/asakaida/relata/internal/infrastructure/database"
	"github.com/asakaida/relata/internal/infrastructure/logging"
	"github.com/asakaida/relata/internal/infrastructure/metrics"
)

const defaultEnv = "dev"

func main() {
	// Get environment from ENV variable or use default
	env := os.Getenv("ENV")
	if env == "" {
		env = defaultEnv
	}

	// Initialize configuration
	if err := config.InitConfig(env); err != nil {
		log.Fatalf("Failed to initialize config: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(&cfg.Log)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	// Metrics: the collector observes the registry, the exporter publishes it
	collector := metrics.NewCollector()
	exporter := metrics.NewPrometheusExporter(collector, prometheus.DefaultRegisterer)
	collector.SetExporter(exporter)

	a, err := app.Open(context.Background(), cfg, logger, collector)
	if err != nil {
		logger.Fatal("Failed to open dataset", zap.Error(err))
	}
	if a.Cache != nil {
		collector.SetCache(a.Cache)
	}

	logger.Info("Dataset loaded",
		zap.String("path", cfg.Relation.DatasetPath),
		zap.Strings("collections", a.Dataset.Names()),
		zap.Bool("cache", cfg.Cache.Enabled))

	relationHandler := handlers.NewRelationHandler(a.Dataset, logger)

	// Reload table-backed collections on NOTIFY
	var refresher *database.Refresher
	if cfg.Database.Enabled {
		refresher = database.NewRefresher(cfg.Database.ConnectionString(), cfg.Database.NotifyChannel, func(table string) {
			if _, err := relationHandler.Refresh(context.Background(), table); err != nil {
				logger.Error("Failed to refresh dataset", zap.String("table", table), zap.Error(err))
			}
		}, logger)
		if err := refresher.Start(); err != nil {
			logger.Fatal("Failed to start refresher", zap.Error(err))
		}
	}

	// Create gRPC server
	grpcServer := grpc.NewServer(
		grpc.UnaryInterceptor(metrics.UnaryServerInterceptor(collector, exporter, logger)),
	)
	handlers.RegisterRelationServiceServer(grpcServer, relationHandler)

	// Register reflection service (for grpcurl, etc.)
	reflection.Register(grpcServer)

	// Start metrics server; /healthz reports database readiness
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := a.HealthCheck(); err != nil {
			logger.Warn("Health check failed", zap.Error(err))
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	metricsServer := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.MetricsPort),
		Handler: mux,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server error", zap.Error(err))
		}
	}()

	// Refresh gauges periodically
	stopGauges := make(chan struct{})
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				exporter.Update()
			case <-stopGauges:
				return
			}
		}
	}()

	// Start listening
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		logger.Fatal("Failed to listen", zap.String("addr", addr), zap.Error(err))
	}

	logger.Info("gRPC server listening",
		zap.String("addr", addr),
		zap.Int("metrics_port", cfg.Server.MetricsPort))

	// Start server in a goroutine
	serverErrors := make(chan error, 1)
	go func() {
		if err := grpcServer.Serve(listener); err != nil {
			serverErrors <- fmt.Errorf("gRPC server error: %w", err)
		}
	}()

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	// Wait for shutdown signal or server error
	select {
	case err := <-serverErrors:
		logger.Fatal("Server error", zap.Error(err))
	case sig := <-sigChan:
		logger.Info("Received signal, initiating graceful shutdown", zap.Stringer("signal", sig))

		// Create shutdown context with timeout
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		// Channel to notify when graceful stop completes
		stopped := make(chan struct{})
		go func() {
			grpcServer.GracefulStop()
			close(stopped)
		}()

		// Wait for graceful stop or timeout
		select {
		case <-stopped:
			logger.Info("Server stopped gracefully")
		case <-shutdownCtx.Done():
			logger.Warn("Shutdown timeout exceeded, forcing stop")
			grpcServer.Stop()
		}

		close(stopGauges)
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Error stopping metrics server", zap.Error(err))
		}

		if refresher != nil {
			if err := refresher.Stop(); err != nil {
				logger.Warn("Error stopping refresher", zap.Error(err))
			}
		}

		if err := relationHandler.Close(); err != nil {
			logger.Warn("Error releasing dataset", zap.Error(err))
		}
		if err := a.Close(); err != nil {
			logger.Warn("Error closing database", zap.Error(err))
		}

		logger.Info("Shutdown complete")
	}
}
