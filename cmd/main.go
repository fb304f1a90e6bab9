package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"storefront-sync/internal/api"
	"storefront-sync/internal/catalog"
	"storefront-sync/internal/config"
	"storefront-sync/internal/gateway"
	"storefront-sync/internal/logger"
	"storefront-sync/internal/metrics"
	"storefront-sync/internal/store"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

const (
	defaultAppName = "storefront-sync" // App name for logger
)

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Fprintln(os.Stderr, "INFO: .env file not found or error loading, relying on system environment variables.")
	}

	// --- Configuration Loading ---
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	logCfg := logger.ForEnvironment(cfg.AppEnv).WithOverrides(cfg.Log.Level, cfg.Log.Format)
	logCfg.Service = defaultAppName
	log, err := logger.New(logCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync() //nolint:errcheck
	zap.ReplaceGlobals(log)
	log.Info("configuration loaded", zap.String("app_env", cfg.AppEnv), zap.String("gateway", cfg.Gateway.BaseURL))

	categories, err := config.LoadCategories(cfg.Catalog.CategoriesFile)
	if err != nil {
		log.Fatal("loading categories", zap.Error(err))
	}

	// --- Gateway, store and engine ---
	gw, err := gateway.NewHTTPGateway(gateway.Config{
		BaseURL:   cfg.Gateway.BaseURL,
		Timeout:   cfg.Gateway.Timeout,
		RateQPS:   cfg.Gateway.RateQPS,
		RateBurst: cfg.Gateway.RateBurst,
		UserAgent: cfg.Gateway.UserAgent,
	}, log)
	if err != nil {
		log.Fatal("creating gateway", zap.Error(err))
	}

	tracerProvider := sdktrace.NewTracerProvider(sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.AlwaysSample())))
	collector := metrics.NewCollector()
	healthServer := health.NewServer()
	reporter := api.NewHealthReporter(healthServer, log)

	policy := store.PolicyLastSettledWins
	if cfg.Catalog.DiscardStale {
		policy = store.PolicyLatestIssuedWins
	}
	st := store.New(
		store.WithPolicy(policy),
		store.WithLogger(log),
		store.WithTracerProvider(tracerProvider),
		store.WithObserver(collector),
		store.WithObserver(reporter),
	)
	engine := catalog.NewEngine(st, gw, categories, log)
	log.Info("store ready", zap.Stringer("policy", policy), zap.Int("categories", len(categories)))

	bootCtx, cancelBoot := context.WithTimeout(context.Background(), 30*time.Second)
	if err := engine.Bootstrap(bootCtx); err != nil {
		// The service still starts; domains carry their errors and can be re-synced.
		log.Warn("initial sync failed", zap.Error(err))
	}
	cancelBoot()

	// --- Setup & Start HTTP Server ---
	httpRouter := chi.NewRouter()
	setupBaseMiddleware(httpRouter, log)
	registerHealthCheck(httpRouter, log, st)
	httpRouter.Handle(cfg.Metrics.Path, collector.Handler())
	api.NewHTTPHandler(engine, log).RegisterRoutes(httpRouter)

	httpServer := &http.Server{
		Addr:         ":" + cfg.HttpServer.Port,
		Handler:      httpRouter,
		ReadTimeout:  cfg.HttpServer.TimeoutRead,
		WriteTimeout: cfg.HttpServer.TimeoutWrite,
		IdleTimeout:  cfg.HttpServer.TimeoutIdle,
	}

	go func() {
		log.Info("HTTP server listening", zap.String("port", cfg.HttpServer.Port))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("HTTP server ListenAndServe error", zap.Error(err))
		}
		log.Info("HTTP server has stopped")
	}()

	// --- Setup & Start gRPC Server ---
	grpcServer := setupGRPCServer(log, healthServer)
	grpcListener, err := net.Listen("tcp", ":"+cfg.GrpcServer.Port)
	if err != nil {
		log.Fatal("failed to listen for gRPC", zap.String("port", cfg.GrpcServer.Port), zap.Error(err))
	}

	go func() {
		log.Info("gRPC server listening", zap.String("port", cfg.GrpcServer.Port))
		if err := grpcServer.Serve(grpcListener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			log.Fatal("gRPC server Serve error", zap.Error(err))
		}
		log.Info("gRPC server has stopped")
	}()

	// --- Graceful Shutdown ---
	shutdownComplete := make(chan struct{})
	go waitForShutdown(log, httpServer, grpcServer, reporter, tracerProvider, shutdownComplete)

	<-shutdownComplete // Block until graceful shutdown is complete
	log.Info("service shutdown sequence finished")
}

func setupBaseMiddleware(router *chi.Mux, log *zap.Logger) {
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(api.RequestLogger(log.Named("access")))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second)) // Default timeout for requests
	log.Info("base HTTP middleware registered")
}

func registerHealthCheck(router *chi.Mux, log *zap.Logger, st *store.Store) {
	healthPath := "/api/v1/healthz"
	router.Get(healthPath, func(w http.ResponseWriter, r *http.Request) {
		domains := make(map[store.Domain]string, len(store.AllDomains))
		for _, d := range store.AllDomains {
			status := st.Status(d)
			switch {
			case status.Error != nil && status.Error.Kind == store.KindTransport:
				domains[d] = "unreachable"
			case status.Loading:
				domains[d] = "loading"
			default:
				domains[d] = "healthy"
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK) // Always 200, but payload indicates detailed status
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":      "healthy",
			"serviceName": defaultAppName,
			"policy":      st.Policy().String(),
			"timestamp":   time.Now().UTC().Format(time.RFC3339),
			"domains":     domains,
		})
	})
	log.Info("HTTP health check registered", zap.String("path", healthPath))
}

func setupGRPCServer(log *zap.Logger, healthServer *health.Server) *grpc.Server {
	s := grpc.NewServer()

	// Per-domain health is driven by the store through the HealthReporter.
	grpc_health_v1.RegisterHealthServer(s, healthServer)
	log.Info("gRPC health check service registered")

	// Enable gRPC server reflection (useful for tools like grpcurl).
	reflection.Register(s)
	log.Info("gRPC reflection service registered")

	return s
}

func waitForShutdown(
	log *zap.Logger,
	httpServer *http.Server,
	grpcServer *grpc.Server,
	reporter *api.HealthReporter,
	tracerProvider *sdktrace.TracerProvider,
	shutdownComplete chan struct{},
) {
	defer close(shutdownComplete) // Ensure channel is closed when function exits

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	receivedSignal := <-sigChan
	log.Info("received signal, starting graceful shutdown", zap.Stringer("signal", receivedSignal))

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()

	reporter.Shutdown()

	log.Info("attempting to gracefully shut down gRPC server")
	stoppedGrpc := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(stoppedGrpc)
	}()

	log.Info("attempting to gracefully shut down HTTP server")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP server graceful shutdown failed", zap.Error(err))
	} else {
		log.Info("HTTP server gracefully shut down")
	}

	select {
	case <-stoppedGrpc:
		log.Info("gRPC server gracefully shut down")
	case <-shutdownCtx.Done():
		log.Warn("gRPC server graceful shutdown timed out, forcing stop", zap.Error(shutdownCtx.Err()))
		grpcServer.Stop()
	}

	if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
		log.Warn("tracer provider shutdown failed", zap.Error(err))
	}

	log.Info("graceful shutdown sequence completed")
}
