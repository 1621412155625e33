package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/ryanmac/youtube-extraction-service/internal/api"
	"github.com/ryanmac/youtube-extraction-service/internal/app"
	"github.com/ryanmac/youtube-extraction-service/internal/config"
	"github.com/ryanmac/youtube-extraction-service/internal/logger"
)

func main() {
	// Support CONFIG_PATH environment variable for production deployments
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	appLogger := app.NewLogger(cfg, "youtube-extraction-api")
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, appLogger)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize application")
	}
	defer a.Close()

	if cfg.Auth.APIKey == "" {
		appLogger.Warn("auth.api_key is empty, every protected route will reject requests")
	}

	drain, err := a.StartDispatcher()
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to start job dispatcher")
	}

	janitorCtx, stopJanitor := context.WithCancel(context.Background())
	defer stopJanitor()
	go a.Jobs.RunJanitor(janitorCtx, cfg.Jobs.PurgeInterval)

	router := api.SetupRouter(cfg, api.Services{
		Jobs:      a.Jobs,
		Retriever: a.Retrieval,
		Channels:  a.Channels,
	}, appLogger)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		appLogger.WithFields(logger.Fields{
			"port":  cfg.Server.Port,
			"mode":  cfg.Server.Mode,
			"queue": cfg.Queue.Mode,
		}).Info("Starting API server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.WithError(err).Fatal("Failed to start server")
		}
	}()

	<-ctx.Done()
	appLogger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Error("Server forced to shutdown")
	}
	if err := drain(cfg.Server.ShutdownTimeout); err != nil {
		appLogger.WithError(err).Warn("Job dispatcher did not drain cleanly")
	}

	appLogger.Info("Server exited")
}
