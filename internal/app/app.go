// Package app wires configuration into the repositories and services shared
// by the binaries under cmd/.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ryanmac/youtube-extraction-service/internal/config"
	"github.com/ryanmac/youtube-extraction-service/internal/logger"
	"github.com/ryanmac/youtube-extraction-service/internal/queue"
	"github.com/ryanmac/youtube-extraction-service/internal/repository"
	"github.com/ryanmac/youtube-extraction-service/internal/retry"
	"github.com/ryanmac/youtube-extraction-service/internal/service"
	"github.com/ryanmac/youtube-extraction-service/internal/source"
	"github.com/ryanmac/youtube-extraction-service/internal/storage"
	"gorm.io/gorm"
)

const cacheGCInterval = 10 * time.Minute

// App holds the long-lived dependencies of one process.
type App struct {
	Config *config.Config
	Logger *logger.Logger

	DB     *gorm.DB
	Qdrant *repository.QdrantRepository
	Cache  *repository.BadgerCache

	Channels  *service.ChannelService
	Ingest    *service.IngestService
	Retrieval *service.RetrievalService
	Jobs      *service.JobService

	stopGC context.CancelFunc
}

// NewLogger builds the process logger from cfg and installs it as default.
func NewLogger(cfg *config.Config, service string) *logger.Logger {
	log := logger.New(logger.Config{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		ServiceName: service,
		Environment: cfg.App.Env,
		File:        cfg.Log.File,
		FileOnly:    cfg.Log.FileOnly,
		MaxSizeMB:   cfg.Log.MaxSizeMB,
		MaxBackups:  cfg.Log.MaxBackups,
		MaxAgeDays:  cfg.Log.MaxAgeDays,
		Compress:    cfg.Log.Compress,
	})
	logger.SetDefault(log)
	return log
}

// RetryPolicy returns the provider retry policy configured under ingest.
func RetryPolicy(cfg *config.IngestConfig) retry.Policy {
	p := retry.DefaultPolicy()
	if cfg.RetryAttempts > 0 {
		p.MaxAttempts = cfg.RetryAttempts
	}
	if cfg.RetryInitial > 0 {
		p.Initial = cfg.RetryInitial
	}
	if cfg.RetryMax > 0 {
		p.Max = cfg.RetryMax
	}
	return p
}

// New connects every backing store and builds the services. The caller must
// Close the returned App.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	a := &App{Config: cfg, Logger: log}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	a.DB = db

	policy := RetryPolicy(&cfg.Ingest)
	a.Qdrant, err = repository.NewQdrantRepository(&repository.QdrantConnectionConfig{
		Host:            cfg.Qdrant.Host,
		Port:            cfg.Qdrant.Port,
		Collection:      cfg.Qdrant.Collection,
		APIKey:          cfg.Qdrant.APIKey,
		UseTLS:          cfg.Qdrant.UseTLS,
		VectorDimension: cfg.Embedding.Dimensions,
		MaxBatchBytes:   cfg.Ingest.MaxBatchBytes,
		Retry:           policy,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Qdrant repository: %w", err)
	}
	if err := a.Qdrant.EnsureCollection(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure Qdrant collection: %w", err)
	}

	a.Cache, err = repository.OpenBadgerCache(cfg.Cache.Path, cfg.Cache.InMemory)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}
	gcCtx, stopGC := context.WithCancel(context.Background())
	a.stopGC = stopGC
	go a.Cache.RunGC(gcCtx, cacheGCInterval)

	transcripts, err := newTranscriptSource(ctx, cfg)
	if err != nil {
		return nil, err
	}
	chunker, err := service.NewChunker(cfg.Ingest.Tokenizer)
	if err != nil {
		return nil, err
	}

	catalog := source.NewYouTubeCatalog(&cfg.YouTube)
	embedder := service.NewEmbedder(service.NewOpenAIEmbeddingProvider(&cfg.Embedding), policy, cfg.Ingest.EmbedPause)

	a.Channels = service.NewChannelService(catalog, a.Cache, a.Qdrant, cfg.Cache.MetadataTTL)
	a.Ingest = service.NewIngestService(a.Channels, catalog, transcripts, chunker, embedder, a.Qdrant, a.Cache,
		service.IngestConfig{
			MaxVideosPerChannel: cfg.Ingest.MaxVideosPerChannel,
			ChunkSize:           cfg.Ingest.ChunkSize,
			TrustIndexProbe:     cfg.Ingest.TrustIndexProbe,
		})
	a.Retrieval = service.NewRetrievalService(embedder, a.Qdrant)
	a.Jobs = service.NewJobService(repository.NewJobRepository(db), a.Ingest, cfg.Jobs.Retention)

	ok = true
	return a, nil
}

// newTranscriptSource returns the caption client, fronted by the object
// store archive when storage is enabled.
func newTranscriptSource(ctx context.Context, cfg *config.Config) (source.TranscriptSource, error) {
	var src source.TranscriptSource = source.NewHTTPTranscripts(&cfg.Transcript)
	if !cfg.Storage.Enabled {
		return src, nil
	}

	store, err := storage.NewStorage(&cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	if err := store.EnsureBucket(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure storage bucket: %w", err)
	}
	return source.NewArchivedTranscripts(src, store, cfg.Storage.Prefix), nil
}

// StartDispatcher attaches the configured task transport to the job service
// and returns a function that drains it.
func (a *App) StartDispatcher() (func(timeout time.Duration) error, error) {
	switch a.Config.Queue.Mode {
	case "nsq":
		d, err := queue.NewNSQDispatcher(&a.Config.Queue)
		if err != nil {
			return nil, err
		}
		a.Jobs.SetDispatcher(d)
		return func(time.Duration) error {
			d.Close()
			return nil
		}, nil
	default:
		d, err := queue.NewLocalDispatcher(a.Config.Queue.Workers, a.Jobs.Execute)
		if err != nil {
			return nil, err
		}
		d.SetRejectHandler(a.Jobs.Abandon)
		a.Jobs.SetDispatcher(d)
		return d.Close, nil
	}
}

// Close releases every store that was opened.
func (a *App) Close() {
	var errs []error
	if a.stopGC != nil {
		a.stopGC()
	}
	if a.Cache != nil {
		errs = append(errs, a.Cache.Close())
	}
	if a.Qdrant != nil {
		errs = append(errs, a.Qdrant.Close())
	}
	if a.DB != nil {
		if sqlDB, err := a.DB.DB(); err == nil {
			errs = append(errs, sqlDB.Close())
		}
	}
	if err := errors.Join(errs...); err != nil {
		a.Logger.WithError(err).Warn("Errors while closing resources")
	}
}
