package service

import (
	"context"
	"fmt"
	"time"

	"github.com/ryanmac/youtube-extraction-service/internal/domain"
	"github.com/ryanmac/youtube-extraction-service/internal/logger"
	"github.com/ryanmac/youtube-extraction-service/internal/source"
)

// DefaultMaxVideosPerChannel caps how many uploads one job visits.
const DefaultMaxVideosPerChannel = 1000

// RunObserver receives job milestones. Calls must not block for long.
type RunObserver interface {
	ChannelResolved(ctx context.Context, channelID string, totalVideos int)
	Progress(ctx context.Context, percent float64, processedVideos int)
}

// IngestConfig holds orchestrator tunables.
type IngestConfig struct {
	MaxVideosPerChannel int
	ChunkSize           int
	// TrustIndexProbe treats an existing segment 0 as proof that a video
	// was ingested and backfills its marker.
	TrustIndexProbe bool
}

// IngestService runs the per-channel ingestion pipeline.
type IngestService struct {
	channels    *ChannelService
	catalog     source.Catalog
	transcripts source.TranscriptSource
	chunker     Chunker
	embedder    *Embedder
	store       VectorStore
	cache       Cache
	cfg         IngestConfig
}

func NewIngestService(
	channels *ChannelService,
	catalog source.Catalog,
	transcripts source.TranscriptSource,
	chunker Chunker,
	embedder *Embedder,
	store VectorStore,
	cache Cache,
	cfg IngestConfig,
) *IngestService {
	if cfg.MaxVideosPerChannel <= 0 {
		cfg.MaxVideosPerChannel = DefaultMaxVideosPerChannel
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 200
	}
	return &IngestService{
		channels:    channels,
		catalog:     catalog,
		transcripts: transcripts,
		chunker:     chunker,
		embedder:    embedder,
		store:       store,
		cache:       cache,
		cfg:         cfg,
	}
}

type videoOutcome int

const (
	videoIngested videoOutcome = iota
	videoAlreadyProcessed
	videoNoTranscript
)

// Run ingests up to videoLimit uploads of the channel named by channelRef.
// Videos are processed one at a time in catalog order; the first video
// error aborts the run.
func (s *IngestService) Run(ctx context.Context, channelRef string, videoLimit int, observer RunObserver) (*domain.JobResult, error) {
	start := time.Now()
	ctx = logger.SetComponent(ctx, "ingest")

	channelID, err := s.channels.ResolveChannelID(ctx, channelRef)
	if err != nil {
		logger.CtxError(ctx, "Failed to resolve channel %q: %v", channelRef, err)
		return nil, err
	}
	ctx = logger.WithField(ctx, logger.FieldChannelID, channelID)

	limit := s.cfg.MaxVideosPerChannel
	if videoLimit > 0 && videoLimit < limit {
		limit = videoLimit
	}
	videoIDs, err := s.catalog.ListVideoIDs(ctx, channelID, limit)
	if err != nil {
		logger.CtxError(ctx, "Failed to list videos: %v", err)
		return nil, fmt.Errorf("list videos for %s: %w", channelID, err)
	}

	total := len(videoIDs)
	if observer != nil {
		observer.ChannelResolved(ctx, channelID, total)
	}
	logger.CtxInfo(ctx, "Starting ingestion of %d videos", total)

	result := &domain.JobResult{ChannelID: channelID, TotalVideos: total}
	for i, videoID := range videoIDs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vctx := logger.WithField(ctx, logger.FieldVideoID, videoID)

		// Embedding progress is folded into the current video's share.
		done := i
		itemProgress := ProgressFunc(func(ctx context.Context, completed, items int) {
			if observer == nil || items <= 0 {
				return
			}
			frac := float64(completed) / float64(items)
			observer.Progress(ctx, (float64(done)+frac)/float64(total)*100, done)
		})

		outcome, records, err := s.processVideo(vctx, channelID, videoID, itemProgress)
		if err != nil {
			logger.CtxError(vctx, "Video processing failed: %v", err)
			return nil, fmt.Errorf("process video %s: %w", videoID, err)
		}

		switch outcome {
		case videoIngested:
			result.IngestedVideos++
			result.Records += records
		default:
			result.SkippedVideos++
		}
		result.ProcessedVideos = i + 1
		result.Progress = Percent(i+1, total)
		if observer != nil {
			observer.Progress(ctx, result.Progress, result.ProcessedVideos)
		}
	}
	result.Progress = 100

	logger.With(logger.Fields{
		logger.FieldChannelID: channelID,
		"ingested":            result.IngestedVideos,
		"skipped":             result.SkippedVideos,
	}).WithCount(result.Records).
		WithDuration(time.Since(start).Milliseconds()).
		Info(ctx, "Channel ingestion completed")
	return result, nil
}

// processVideo embeds and stores one video's transcript. The processed marker
// is written only after every record has been stored.
func (s *IngestService) processVideo(ctx context.Context, channelID, videoID string, progress ProgressReporter) (videoOutcome, int, error) {
	markerKey := ProcessedKey(videoID)
	done, err := s.cache.Exists(ctx, markerKey)
	if err != nil {
		return 0, 0, fmt.Errorf("check processed marker: %w", err)
	}
	if done {
		logger.CtxDebug(ctx, "Video already processed, skipping")
		return videoAlreadyProcessed, 0, nil
	}

	if s.cfg.TrustIndexProbe {
		exists, err := s.store.Exists(ctx, domain.SegmentKey(videoID, 0))
		if err != nil {
			return 0, 0, fmt.Errorf("probe index: %w", err)
		}
		if exists {
			if err := s.cache.Set(ctx, markerKey, []byte("1"), 0); err != nil {
				return 0, 0, fmt.Errorf("backfill processed marker: %w", err)
			}
			logger.CtxInfo(ctx, "Video found in index, marker backfilled")
			return videoAlreadyProcessed, 0, nil
		}
	}

	text, ok, err := s.transcripts.Transcript(ctx, videoID)
	if err != nil {
		return 0, 0, fmt.Errorf("fetch transcript: %w", err)
	}
	if !ok {
		logger.CtxInfo(ctx, "No transcript available, skipping video")
		return videoNoTranscript, 0, nil
	}

	chunks := s.chunker.Chunk(text, s.cfg.ChunkSize)
	if len(chunks) == 0 {
		logger.CtxInfo(ctx, "Transcript produced no segments, skipping video")
		return videoNoTranscript, 0, nil
	}

	vectors, err := s.embedder.EmbedBatch(ctx, chunks, progress)
	if err != nil {
		return 0, 0, err
	}
	if len(vectors) != len(chunks) {
		return 0, 0, fmt.Errorf("%w: %d embeddings for %d segments", domain.ErrValidation, len(vectors), len(chunks))
	}

	records := make([]domain.Record, len(chunks))
	for i, text := range chunks {
		seg := domain.Segment{ChannelID: channelID, VideoID: videoID, Index: i, Text: text}
		records[i] = domain.NewRecord(seg, vectors[i])
	}
	if err := s.store.Upsert(ctx, records); err != nil {
		return 0, 0, err
	}

	if err := s.cache.Set(ctx, markerKey, []byte("1"), 0); err != nil {
		return 0, 0, fmt.Errorf("set processed marker: %w", err)
	}
	logger.With(logger.Fields{logger.FieldVideoID: videoID}).
		WithCount(len(records)).
		Info(ctx, "Video ingested")
	return videoIngested, len(records), nil
}
