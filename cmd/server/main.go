package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"

	"github.com/pesio-ai/be-doc-approvals/internal/client"
	"github.com/pesio-ai/be-doc-approvals/internal/handler"
	"github.com/pesio-ai/be-doc-approvals/internal/platform/clock"
	"github.com/pesio-ai/be-doc-approvals/internal/platform/config"
	"github.com/pesio-ai/be-doc-approvals/internal/platform/database"
	"github.com/pesio-ai/be-doc-approvals/internal/platform/logger"
	"github.com/pesio-ai/be-doc-approvals/internal/platform/middleware"
	"github.com/pesio-ai/be-doc-approvals/internal/platform/tracing"
	"github.com/pesio-ai/be-doc-approvals/internal/repository"
	"github.com/pesio-ai/be-doc-approvals/internal/scheduler"
	"github.com/pesio-ai/be-doc-approvals/internal/seed"
	"github.com/pesio-ai/be-doc-approvals/internal/service"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(logger.Config{
		Level:       cfg.Service.LogLevel,
		Environment: cfg.Service.Environment,
		ServiceName: cfg.Service.Name,
		Version:     cfg.Service.Version,
	})

	log.Info().
		Str("service", cfg.Service.Name).
		Str("version", cfg.Service.Version).
		Str("environment", cfg.Service.Environment).
		Msg("Starting Document Approvals Service")

	loc, err := cfg.Service.Location()
	if err != nil {
		log.Fatal().Err(err).Str("timezone", cfg.Service.Timezone).Msg("Invalid timezone")
	}
	clock.Location = loc

	// Create context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Tracing.Enabled {
		shutdownTracing, err := tracing.InitStdout(cfg.Service.Name, cfg.Service.Version)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize tracing")
		}
		defer shutdownTracing(context.Background())
		log.Info().Msg("Tracing enabled (stdout exporter)")
	}

	// Initialize database
	db, err := database.New(ctx, database.Config{
		Host:        cfg.Database.Host,
		Port:        cfg.Database.Port,
		User:        cfg.Database.User,
		Password:    cfg.Database.Password,
		Database:    cfg.Database.Database,
		SSLMode:     cfg.Database.SSLMode,
		MaxConns:    cfg.Database.MaxConns,
		MinConns:    cfg.Database.MinConns,
		MaxConnTime: cfg.Database.MaxConnTime,
		MaxIdleTime: cfg.Database.MaxIdleTime,
		HealthCheck: cfg.Database.HealthCheck,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()
	log.Info().Msg("Database connection established")

	store := repository.NewPostgresStore(db)

	// Seed document types and route templates
	if cfg.Seed.RoutesFile != "" {
		f, err := seed.LoadFile(cfg.Seed.RoutesFile)
		if err != nil {
			log.Fatal().Err(err).Str("file", cfg.Seed.RoutesFile).Msg("Failed to load routes seed file")
		}
		sum, err := seed.Apply(ctx, store, f)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to apply routes seed")
		}
		log.Info().
			Int("document_types", sum.DocumentTypes).
			Int("templates", sum.Templates).
			Int("steps", sum.Steps).
			Msg("Routes seed applied")
	}

	// Notification sink
	var notifier service.Notifier = service.NewLogNotifier(log.Component("notifications"))
	if cfg.NATS.URL != "" {
		natsClient, err := client.ConnectNATS(ctx, cfg.NATS.URL, cfg.NATS.Stream, cfg.Service.Name, log.Logger)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to NATS")
		}
		defer natsClient.Close()
		notifier = client.NewNotificationPublisher(natsClient, log.Logger)
		log.Info().Str("url", cfg.NATS.URL).Str("stream", cfg.NATS.Stream).Msg("NATS notification publisher initialized")
	}

	// Initialize services
	workflowService := service.NewWorkflowService(store, notifier, log.Component("workflow"))
	directoryService := service.NewDirectoryService(store, log.Component("directory"))

	// Scheduler
	sched := scheduler.New(directoryService, loc, log.Component("scheduler"))
	if cfg.Scheduler.ReplacementSweep != "" {
		if err := sched.RegisterSweep(cfg.Scheduler.ReplacementSweep); err != nil {
			log.Fatal().Err(err).Msg("Failed to register replacement sweep")
		}
		sched.RunSweep(ctx)
	}
	sched.Start()

	// Setup HTTP routes
	httpHandler := handler.NewHTTPHandler(workflowService, directoryService, log)
	mux := http.NewServeMux()
	httpHandler.Register(mux)

	// Apply middleware
	var h http.Handler = mux
	h = middleware.RequestID(h)
	h = middleware.Logger(&log.Logger)(h)
	h = middleware.Recovery(&log.Logger)(h)
	h = middleware.CORS([]string{"*"})(h)
	h = middleware.Timeout(cfg.Server.RequestTimeout)(h)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      h,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("Starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("HTTP server failed")
		}
	}()

	// Start gRPC server
	grpcHandler := handler.NewGRPCHandler(workflowService, log.Logger)

	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(handler.LoggingInterceptor(log.Logger)))
	handler.RegisterDocumentApprovalsServer(grpcServer, grpcHandler)
	reflection.Register(grpcServer) // Enable reflection for debugging

	grpcListener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.GRPCPort))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create gRPC listener")
	}

	go func() {
		log.Info().Int("port", cfg.Server.GRPCPort).Msg("Starting gRPC server")
		if err := grpcServer.Serve(grpcListener); err != nil {
			log.Error().Err(err).Msg("gRPC server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	// Stop gRPC server gracefully
	grpcServer.GracefulStop()

	sched.Stop(shutdownCtx)

	log.Info().Msg("Server stopped")
}
