package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ryanmac/youtube-extraction-service/internal/app"
	"github.com/ryanmac/youtube-extraction-service/internal/config"
	"github.com/ryanmac/youtube-extraction-service/internal/logger"
	"github.com/ryanmac/youtube-extraction-service/internal/queue"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	appLogger := app.NewLogger(cfg, "youtube-extraction-worker")
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, appLogger)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize application")
	}
	defer a.Close()

	consumer, err := queue.NewNSQConsumer(context.WithoutCancel(ctx), &cfg.Queue, a.Jobs.Execute)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to create consumer")
	}
	if err := consumer.Connect(); err != nil {
		appLogger.WithError(err).Fatal("Failed to connect consumer")
	}

	go a.Jobs.RunJanitor(ctx, cfg.Jobs.PurgeInterval)

	appLogger.WithFields(logger.Fields{
		"topic":   cfg.Queue.Topic,
		"channel": cfg.Queue.Channel,
		"workers": cfg.Queue.Workers,
	}).Info("Worker consuming ingestion tasks")

	<-ctx.Done()
	appLogger.Info("Stopping worker, waiting for in-flight jobs...")
	consumer.Stop()
	appLogger.Info("Worker exited")
}
