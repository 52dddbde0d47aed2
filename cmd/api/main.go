// Package main is the entry point for the API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/guardforce/messaging-platform/internal/config"
	"github.com/guardforce/messaging-platform/internal/directory"
	"github.com/guardforce/messaging-platform/internal/handler"
	natsclient "github.com/guardforce/messaging-platform/internal/nats"
	"github.com/guardforce/messaging-platform/internal/service"
	"github.com/guardforce/messaging-platform/internal/store"
	"github.com/guardforce/messaging-platform/pkg/logger"
	"github.com/guardforce/messaging-platform/pkg/tracing"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// Initialize logger
	var log *logger.Logger
	var err error
	if cfg.Env == "development" {
		log, err = logger.NewDevelopment()
	} else {
		log, err = logger.New(cfg.LogLevel)
	}
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = log.Sync() }()
	logger.SetGlobal(log)

	log.Info("Starting API server", zap.String("signal_backend", cfg.CallSignalBackend))

	// Initialize tracing if enabled
	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "messaging-platform", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("Failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	// Open and migrate the database
	db, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	result, err := db.Migrate()
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	log.Info("Database ready",
		zap.String("path", cfg.DatabasePath),
		zap.Uint("schema_version", result.Version),
		zap.Bool("migrated", result.Changed),
	)

	// Contact directory
	var dir directory.Directory
	if cfg.DirectoryURL != "" {
		dir = directory.NewHTTP(cfg.DirectoryURL, cfg.DirectoryToken, cfg.DirectoryCacheTTL, log)
	} else {
		fileDir, err := directory.LoadFile(cfg.DirectoryFile)
		if err != nil {
			return err
		}
		dir = fileDir
	}

	// Call signal channel
	var (
		signals   service.SignalLog
		readiness handler.ReadinessChecker
	)
	switch cfg.CallSignalBackend {
	case config.SignalBackendNATS:
		natsClient, err := natsclient.Connect(ctx, natsclient.Config{
			URL:      cfg.NATSURL,
			Name:     "messaging-platform",
			CAFile:   cfg.NATSCAFile,
			CertFile: cfg.NATSCertFile,
			KeyFile:  cfg.NATSKeyFile,
			Token:    cfg.NATSToken,

			ConnectTimeout: cfg.NATSTimeout,
		}, log)
		if err != nil {
			return fmt.Errorf("connect to NATS: %w", err)
		}
		defer natsClient.Close()

		stream := natsclient.NewSignalStream(natsClient, cfg.CallSignalRetention)
		if err := stream.EnsureStream(ctx); err != nil {
			return fmt.Errorf("ensure signal stream: %w", err)
		}
		signals, readiness = stream, stream
	default:
		signalLog := store.NewSignalLog(db, cfg.CallSignalRetention)
		signals, readiness = signalLog, signalLog
	}

	// Initialize services
	conversationSvc := service.NewConversationService(db, dir, log)
	messageSvc := service.NewMessageService(db, log)
	broadcastSvc := service.NewBroadcastService(db, dir, cfg.BroadcastRoles, log)
	callSvc := service.NewCallService(db, signals, cfg.CallRoomBaseURL, log)
	unreadSvc := service.NewUnreadService(db)
	contactSvc := service.NewContactService(dir)

	router := handler.NewRouter(handler.RouterConfig{
		JWTSecret:          cfg.JWTSecret,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimitRequests:  cfg.RateLimitRequests,
		RateLimitWindow:    cfg.RateLimitWindow,
		BroadcastRoles:     cfg.BroadcastRoles,
		Logger:             log,
		Health:             handler.NewHealthHandler(db, readiness),
		Conversations:      handler.NewConversationHandler(conversationSvc, log),
		Messages:           handler.NewMessageHandler(messageSvc, log),
		Broadcasts:         handler.NewBroadcastHandler(broadcastSvc, log),
		Calls:              handler.NewCallHandler(callSvc, log),
		Inbox:              handler.NewInboxHandler(unreadSvc, contactSvc, log),
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		log.Info("Server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serverErr:
		return fmt.Errorf("server: %w", err)
	}

	log.Info("Shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server stopped")
	return nil
}
