package service

import (
	"context"
	"time"

	"github.com/ryanmac/youtube-extraction-service/internal/domain"
)

// VectorStore is the vector index as seen by the pipeline.
type VectorStore interface {
	Upsert(ctx context.Context, records []domain.Record) error
	Exists(ctx context.Context, key string) (bool, error)
	Fetch(ctx context.Context, keys []string) (map[string]domain.Record, error)
	Query(ctx context.Context, vector []float32, filter domain.Filter, topK int) ([]domain.Match, error)
	List(ctx context.Context, filter domain.Filter, limit int) ([]domain.Record, error)
	ChannelExists(ctx context.Context, channelID string) (bool, error)
	Count(ctx context.Context, filter domain.Filter) (uint64, error)
	DistinctVideos(ctx context.Context, filter domain.Filter) (map[string]struct{}, error)
	DescribeStats(ctx context.Context) (domain.IndexStats, error)
}

// Cache is a key-value store with optional expiry. A zero ttl never expires.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Exists(ctx context.Context, key string) (bool, error)
}

// Cache key layout.
const (
	processedKeyPrefix       = "processed:"
	channelMetadataKeyPrefix = "channel_metadata:"
	channelIDKeyPrefix       = "channel_id:"
)

// ProcessedKey is the marker set once every record of a video is stored.
func ProcessedKey(videoID string) string { return processedKeyPrefix + videoID }

func channelMetadataKey(channelID string) string { return channelMetadataKeyPrefix + channelID }

func channelIDKey(handle string) string { return channelIDKeyPrefix + handle }
