package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ryanmac/youtube-extraction-service/internal/domain"
	"github.com/ryanmac/youtube-extraction-service/internal/logger"
	"github.com/ryanmac/youtube-extraction-service/internal/source"
)

// DefaultMetadataTTL bounds cached channel ids and metadata.
const DefaultMetadataTTL = 7 * 24 * time.Hour

// ChannelService resolves channel references and serves channel metadata
// through the cache.
type ChannelService struct {
	catalog source.Catalog
	cache   Cache
	store   VectorStore
	ttl     time.Duration
}

func NewChannelService(catalog source.Catalog, cache Cache, store VectorStore, ttl time.Duration) *ChannelService {
	if ttl <= 0 {
		ttl = DefaultMetadataTTL
	}
	return &ChannelService{catalog: catalog, cache: cache, store: store, ttl: ttl}
}

// ResolveChannelID turns a channel reference into a channel id. Handles are
// looked up once per ttl.
func (s *ChannelService) ResolveChannelID(ctx context.Context, ref string) (string, error) {
	channelID, handle, err := source.ParseChannelRef(ref)
	if err != nil {
		return "", err
	}
	if channelID != "" {
		return channelID, nil
	}

	key := channelIDKey(handle)
	if cached, ok, err := s.cache.Get(ctx, key); err != nil {
		logger.CtxWarn(ctx, "Channel id cache read failed for %s: %v", handle, err)
	} else if ok && len(cached) > 0 {
		return string(cached), nil
	}

	channelID, err = s.catalog.ResolveHandle(ctx, handle)
	if err != nil {
		return "", fmt.Errorf("resolve channel handle %s: %w", handle, err)
	}
	if err := s.cache.Set(ctx, key, []byte(channelID), s.ttl); err != nil {
		logger.CtxWarn(ctx, "Failed to cache channel id for %s: %v", handle, err)
	}
	return channelID, nil
}

// Metadata returns the cached catalog resource, fetching it on a miss.
func (s *ChannelService) Metadata(ctx context.Context, channelID string) (domain.ChannelMetadata, error) {
	raw, ok, err := s.cache.Get(ctx, channelMetadataKey(channelID))
	if err != nil {
		logger.CtxWarn(ctx, "Channel metadata cache read failed for %s: %v", channelID, err)
	}
	if ok {
		var meta domain.ChannelMetadata
		if err := json.Unmarshal(raw, &meta); err == nil {
			return meta, nil
		}
		logger.CtxWarn(ctx, "Discarding undecodable metadata for %s", channelID)
	}
	return s.fetchMetadata(ctx, channelID)
}

// RefreshMetadata bypasses the cache and overwrites the cached entry.
func (s *ChannelService) RefreshMetadata(ctx context.Context, ref string) (domain.ChannelMetadata, error) {
	channelID, err := s.ResolveChannelID(ctx, ref)
	if err != nil {
		return nil, err
	}
	return s.fetchMetadata(ctx, channelID)
}

func (s *ChannelService) fetchMetadata(ctx context.Context, channelID string) (domain.ChannelMetadata, error) {
	meta, err := s.catalog.ChannelMetadata(ctx, channelID)
	if err != nil {
		return nil, fmt.Errorf("fetch channel metadata %s: %w", channelID, err)
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("encode channel metadata: %w", err)
	}
	if err := s.cache.Set(ctx, channelMetadataKey(channelID), raw, s.ttl); err != nil {
		logger.CtxWarn(ctx, "Failed to cache metadata for %s: %v", channelID, err)
	}
	return meta, nil
}

// Info summarizes what the index holds for a channel.
func (s *ChannelService) Info(ctx context.Context, ref string) (*domain.ChannelInfo, error) {
	channelID, err := s.ResolveChannelID(ctx, ref)
	if err != nil {
		return nil, err
	}
	ctx = logger.WithField(ctx, logger.FieldChannelID, channelID)

	meta, err := s.Metadata(ctx, channelID)
	if err != nil {
		return nil, err
	}

	filter := domain.Filter{ChannelIDs: []string{channelID}}
	total, err := s.store.Count(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("count channel records: %w", err)
	}
	info := &domain.ChannelInfo{ChannelID: channelID, TotalEmbeddings: total, Metadata: meta}
	if total == 0 {
		return info, nil
	}

	videos, err := s.store.DistinctVideos(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list channel videos: %w", err)
	}
	info.UniqueVideoCount = len(videos)
	return info, nil
}
