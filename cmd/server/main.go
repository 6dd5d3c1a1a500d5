package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SAP-F-2025/quiro-companion/internal/backend"
	"github.com/SAP-F-2025/quiro-companion/internal/config"
	"github.com/SAP-F-2025/quiro-companion/internal/events"
	"github.com/SAP-F-2025/quiro-companion/internal/handlers"
	"github.com/SAP-F-2025/quiro-companion/internal/scanner"
	"github.com/SAP-F-2025/quiro-companion/internal/services"
	"github.com/SAP-F-2025/quiro-companion/internal/utils"
	"github.com/SAP-F-2025/quiro-companion/internal/validator"
	"github.com/SAP-F-2025/quiro-companion/internal/ws"
	"github.com/gin-gonic/gin"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		utils.NewDefaultLogger().LogError(err, "Invalid configuration")
		os.Exit(1)
	}

	logger := utils.NewEnvironmentLogger(cfg.Environment, "quiro-companion")
	slogger := utils.ToSlogLogger(logger)
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	if cfg.BackendURL == "" {
		logger.Warn("BACKEND_URL is not set; searches will report the missing configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	local := events.NewChannelEventPublisher(cfg.Events.SessionsTopic, slogger)
	publisher, err := cfg.Events.CreateEventPublisher(slogger, local)
	if err != nil {
		logger.LogError(err, "Failed to create event publisher")
		os.Exit(1)
	}
	defer publisher.Close()

	scannerCfg := scanner.DefaultConfig()
	scannerCfg.FPS = cfg.ScannerFPS
	scannerCfg.Region = scanner.Region{Width: cfg.ScannerRegion, Height: cfg.ScannerRegion}

	registry := services.NewSessionRegistry(services.RegistryConfig{
		Backend: backend.NewClient(backend.ClientConfig{
			BaseURL: cfg.BackendURL,
			Timeout: cfg.BackendTimeout,
			Logger:  slogger,
		}),
		ScannerConfig:  scannerCfg,
		Publisher:      publisher,
		Logger:         slogger,
		AnswerDuration: cfg.AnswerDuration,
		RequestTimeout: cfg.BackendTimeout,
		IdleTimeout:    cfg.SessionIdleTimeout,
	})
	go registry.RunReaper(ctx, time.Minute)

	hub := ws.NewHub(slogger)
	messages, err := local.Subscribe(ctx)
	if err != nil {
		logger.LogError(err, "Failed to subscribe to session events")
		os.Exit(1)
	}
	go hub.Run(ctx, messages)

	hm := handlers.NewHandlerManager(registry, hub, validator.New(), logger, cfg.AllowedOrigins)
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           hm.NewRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Companion server listening", "port", cfg.Port, "backend_configured", cfg.BackendURL != "")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.LogError(err, "Server stopped unexpectedly")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.LogError(err, "Graceful shutdown failed")
	}
	registry.CloseAll(shutdownCtx)
}
