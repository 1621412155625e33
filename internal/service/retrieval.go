package service

import (
	"context"
	"fmt"
	"time"

	"github.com/ryanmac/youtube-extraction-service/internal/domain"
	"github.com/ryanmac/youtube-extraction-service/internal/logger"
)

// RetrievalService answers relevance and recency queries over the index.
type RetrievalService struct {
	embedder *Embedder
	store    VectorStore
}

func NewRetrievalService(embedder *Embedder, store VectorStore) *RetrievalService {
	return &RetrievalService{embedder: embedder, store: store}
}

// RetrieveRelevant returns up to limit matches for query, each expanded with
// contextWindow neighbouring segments on either side. Results keep the
// index's similarity order. An empty channelIDs searches every channel.
func (s *RetrievalService) RetrieveRelevant(ctx context.Context, query string, channelIDs []string, limit, contextWindow int) ([]domain.RelevantChunk, error) {
	start := time.Now()
	ctx = logger.SetComponent(ctx, "retrieval")
	if limit <= 0 || query == "" {
		return []domain.RelevantChunk{}, nil
	}
	if contextWindow < 0 {
		contextWindow = 0
	}

	vec, err := s.embedder.Embed(ctx, query)
	if err != nil || len(vec) == 0 {
		logger.CtxWarn(ctx, "Query embedding failed, returning no results: %v", err)
		return []domain.RelevantChunk{}, nil
	}

	filter := domain.Filter{}
	if len(channelIDs) > 0 {
		known, err := s.knownChannels(ctx, channelIDs)
		if err != nil {
			return nil, err
		}
		if len(known) == 0 {
			logger.CtxInfo(ctx, "None of the requested channels are indexed: %v", channelIDs)
			return []domain.RelevantChunk{}, nil
		}
		filter.ChannelIDs = known
	}

	matches, err := s.store.Query(ctx, vec, filter, limit)
	if err != nil {
		return nil, fmt.Errorf("query index: %w", err)
	}

	results := make([]domain.RelevantChunk, 0, len(matches))
	for _, m := range matches {
		chunk, err := s.expand(ctx, m, contextWindow)
		if err != nil {
			return nil, err
		}
		results = append(results, chunk)
	}

	logger.With(logger.Fields{"channels": len(filter.ChannelIDs)}).
		WithCount(len(results)).
		WithDuration(time.Since(start).Milliseconds()).
		Info(ctx, "Relevant chunks retrieved")
	return results, nil
}

func (s *RetrievalService) knownChannels(ctx context.Context, channelIDs []string) ([]string, error) {
	known := make([]string, 0, len(channelIDs))
	seen := make(map[string]bool, len(channelIDs))
	for _, id := range channelIDs {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ok, err := s.store.ChannelExists(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("probe channel %s: %w", id, err)
		}
		if ok {
			known = append(known, id)
		}
	}
	return known, nil
}

// expand attaches the stored neighbours of m. Missing neighbours are omitted.
func (s *RetrievalService) expand(ctx context.Context, m domain.Match, window int) (domain.RelevantChunk, error) {
	chunk := domain.RelevantChunk{
		MainChunk:     m.Metadata.Text,
		ContextBefore: []string{},
		ContextAfter:  []string{},
		Score:         m.Score,
	}
	videoID, index, err := m.Position()
	if err != nil {
		logger.CtxWarn(ctx, "Skipping context for unparseable key %q: %v", m.Key, err)
		return chunk, nil
	}
	chunk.VideoID = videoID
	chunk.ChunkIndex = index
	if window == 0 {
		return chunk, nil
	}

	keys := make([]string, 0, 2*window)
	for i := index - window; i <= index+window; i++ {
		if i < 0 || i == index {
			continue
		}
		keys = append(keys, domain.SegmentKey(videoID, i))
	}
	neighbours, err := s.store.Fetch(ctx, keys)
	if err != nil {
		return chunk, fmt.Errorf("fetch context for %s: %w", m.Key, err)
	}

	for i := index - window; i < index; i++ {
		if rec, ok := neighbours[domain.SegmentKey(videoID, i)]; ok && i >= 0 {
			chunk.ContextBefore = append(chunk.ContextBefore, rec.Metadata.Text)
		}
	}
	for i := index + 1; i <= index+window; i++ {
		if rec, ok := neighbours[domain.SegmentKey(videoID, i)]; ok {
			chunk.ContextAfter = append(chunk.ContextAfter, rec.Metadata.Text)
		}
	}
	return chunk, nil
}

// RetrieveRecent returns up to limit segments of a channel. There is no
// timestamp in the index, so the order is the index's scroll order.
func (s *RetrievalService) RetrieveRecent(ctx context.Context, channelID string, limit int) ([]domain.Segment, error) {
	if limit <= 0 {
		return []domain.Segment{}, nil
	}
	records, err := s.store.List(ctx, domain.Filter{ChannelIDs: []string{channelID}}, limit)
	if err != nil {
		return nil, fmt.Errorf("list channel records: %w", err)
	}
	out := make([]domain.Segment, 0, len(records))
	for _, rec := range records {
		out = append(out, domain.Segment{
			ChannelID: rec.Metadata.ChannelID,
			VideoID:   rec.Metadata.VideoID,
			Index:     rec.Metadata.ChunkIndex,
			Text:      rec.Metadata.Text,
		})
	}
	return out, nil
}

// Stats reports the index's capacity figures.
func (s *RetrievalService) Stats(ctx context.Context) (domain.IndexStats, error) {
	return s.store.DescribeStats(ctx)
}
