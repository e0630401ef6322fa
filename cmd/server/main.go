package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"

	"github.com/orvio-ai/be-order-verification/internal/client"
	"github.com/orvio-ai/be-order-verification/internal/clock"
	"github.com/orvio-ai/be-order-verification/internal/config"
	"github.com/orvio-ai/be-order-verification/internal/database"
	"github.com/orvio-ai/be-order-verification/internal/handler"
	"github.com/orvio-ai/be-order-verification/internal/logger"
	"github.com/orvio-ai/be-order-verification/internal/middleware"
	"github.com/orvio-ai/be-order-verification/internal/repository"
	"github.com/orvio-ai/be-order-verification/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{
		Level:       os.Getenv("LOG_LEVEL"),
		Environment: cfg.Service.Environment,
		ServiceName: cfg.Service.Name,
		Version:     cfg.Service.Version,
	})

	log.Info().
		Str("service", cfg.Service.Name).
		Str("version", cfg.Service.Version).
		Str("environment", cfg.Service.Environment).
		Msg("Starting order verification service")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.New(ctx, database.Config{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		Database: cfg.Database.Database,
		SSLMode:  cfg.Database.SSLMode,
		MaxConns: cfg.Database.MaxConns,
		MinConns: cfg.Database.MinConns,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()
	log.Info().Msg("Database connection established")

	// Repositories
	orderRepo := repository.NewOrderRepository(db)
	receiptRepo := repository.NewReceiptRepository(db)
	escalationRepo := repository.NewEscalationRepository(db)
	otpRepo := repository.NewOTPRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	// Notification publisher (fire-and-forget; disabled without NATS_URL)
	notifier, err := client.NewNotificationPublisher(cfg.NATS.URL, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create notification publisher")
	}

	// Services
	clk := clock.NewSystem()
	lifecycleService := service.NewOrderLifecycleService(orderRepo, auditRepo, clk, log)
	otpService := service.NewOTPService(otpRepo, clk, cfg.OTP, log)
	verificationService := service.NewReceiptVerificationService(
		receiptRepo, orderRepo, escalationRepo, lifecycleService,
		auditRepo, notifier, clk, cfg.Policy, log)
	escalationService := service.NewEscalationService(
		escalationRepo, lifecycleService, otpService,
		auditRepo, notifier, clk, log)

	// HTTP routes
	httpHandler := handler.NewHTTPHandler(lifecycleService, verificationService, escalationService, log)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(&log.Logger))
	r.Use(middleware.Logger(&log.Logger))
	r.Use(middleware.Timeout(cfg.Server.RequestTimeout))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := db.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unhealthy"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})

	httpHandler.Routes(r)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
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

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	log.Info().Msg("Server stopped")
}
