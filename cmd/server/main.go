package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/jonboulle/clockwork"

	"github.com/pesio-ai/be-plt-approvals/internal/client"
	"github.com/pesio-ai/be-plt-approvals/internal/config"
	"github.com/pesio-ai/be-plt-approvals/internal/database"
	"github.com/pesio-ai/be-plt-approvals/internal/handler"
	"github.com/pesio-ai/be-plt-approvals/internal/logger"
	"github.com/pesio-ai/be-plt-approvals/internal/middleware"
	"github.com/pesio-ai/be-plt-approvals/internal/repository"
	"github.com/pesio-ai/be-plt-approvals/internal/repository/memory"
	"github.com/pesio-ai/be-plt-approvals/internal/service"
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
		Msg("Starting Approvals Service (PLT-3)")

	// Create context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize stores
	var (
		moduleStore   service.ModuleStore
		flowStore     service.FlowStore
		instanceStore service.InstanceStore
	)
	switch cfg.Database.Driver {
	case "memory":
		store := memory.NewStore()
		moduleStore, flowStore, instanceStore = store, store, store
		log.Warn().Msg("Using in-memory store, state will not survive restarts")
	default:
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

		moduleStore = repository.NewModuleRepository(db)
		flowStore = repository.NewFlowRepository(db)
		instanceStore = repository.NewInstanceRepository(db)
	}

	// Initialize HTTP service clients
	directoryClient := client.NewDirectoryClient(cfg.Directory.BaseURL)
	intakeClient := client.NewIntakeClient(cfg.Intake.BaseURL)
	log.Info().
		Str("directory_url", cfg.Directory.BaseURL).
		Str("intake_url", cfg.Intake.BaseURL).
		Msg("Service clients initialized")

	// Initialize event publisher
	var publisher service.EventPublisherInterface
	if cfg.NATS.URL != "" {
		natsPublisher, err := client.NewEventPublisher(cfg.NATS.URL, cfg.NATS.SubjectPrefix, log.Logger)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to NATS")
		}
		defer natsPublisher.Close()
		publisher = natsPublisher
		log.Info().Str("nats_url", cfg.NATS.URL).Msg("Event publisher initialized")
	} else {
		log.Warn().Msg("NATS_URL not set, event publishing disabled")
	}

	// Initialize services
	clock := clockwork.NewRealClock()
	flowResolver := service.NewFlowResolver(flowStore, log)
	approverResolver := service.NewApproverResolver(directoryClient)
	orchestrator := service.NewApprovalOrchestrator(
		flowResolver, approverResolver, instanceStore,
		intakeClient, directoryClient, publisher,
		cfg.Approval.AdminRole, clock, log)
	catalog := service.NewCatalogService(moduleStore, flowStore, log)

	// Start expiry sweeper
	sweeper := service.NewExpirySweeper(orchestrator, instanceStore,
		cfg.Approval.SweepInterval, cfg.Approval.SweepBatch, clock, log)
	go sweeper.Run(ctx)

	// Setup HTTP routes
	router := mux.NewRouter()
	handler.NewHTTPHandler(orchestrator, catalog, log).Register(router)

	// Apply middleware
	var h http.Handler = router
	h = middleware.RequestID(h)
	h = middleware.Logger(&log.Logger)(h)
	h = middleware.Recovery(&log.Logger)(h)
	h = middleware.CORS([]string{"*"})(h)
	h = middleware.Timeout(30 * time.Second)(h)

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

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	log.Info().Msg("Server stopped")
}
