package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ryanmac/youtube-extraction-service/internal/domain"
	"github.com/ryanmac/youtube-extraction-service/internal/retry"
)

// memStore is an in-memory VectorStore scoring by dot product.
type memStore struct {
	mu          sync.Mutex
	records     map[string]domain.Record
	upsertCalls int
	failUpsert  error
}

func newMemStore() *memStore {
	return &memStore{records: map[string]domain.Record{}}
}

func (m *memStore) Upsert(_ context.Context, records []domain.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upsertCalls++
	if m.failUpsert != nil {
		return domain.Wrap(domain.ErrUpsertFailed, "upsert", m.failUpsert)
	}
	for _, r := range records {
		m.records[r.Key] = r
	}
	return nil
}

func (m *memStore) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.records[key]
	return ok, nil
}

func (m *memStore) Fetch(_ context.Context, keys []string) (map[string]domain.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[string]domain.Record{}
	for _, k := range keys {
		if r, ok := m.records[k]; ok {
			out[k] = r
		}
	}
	return out, nil
}

func matchesFilter(r domain.Record, f domain.Filter) bool {
	if f.VideoID != "" && r.Metadata.VideoID != f.VideoID {
		return false
	}
	if len(f.ChannelIDs) == 0 {
		return true
	}
	for _, id := range f.ChannelIDs {
		if r.Metadata.ChannelID == id {
			return true
		}
	}
	return false
}

func (m *memStore) sortedKeys() []string {
	keys := make([]string, 0, len(m.records))
	for k := range m.records {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (m *memStore) Query(_ context.Context, vector []float32, f domain.Filter, topK int) ([]domain.Match, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Match
	for _, k := range m.sortedKeys() {
		r := m.records[k]
		if !matchesFilter(r, f) {
			continue
		}
		var score float32
		for i := range vector {
			if i < len(r.Embedding) {
				score += vector[i] * r.Embedding[i]
			}
		}
		out = append(out, domain.Match{Key: r.Key, Score: score, Metadata: r.Metadata})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

func (m *memStore) List(_ context.Context, f domain.Filter, limit int) ([]domain.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Record
	for _, k := range m.sortedKeys() {
		if r := m.records[k]; matchesFilter(r, f) && len(out) < limit {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memStore) ChannelExists(ctx context.Context, channelID string) (bool, error) {
	recs, err := m.List(ctx, domain.Filter{ChannelIDs: []string{channelID}}, 1)
	return len(recs) > 0, err
}

func (m *memStore) Count(_ context.Context, f domain.Filter) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n uint64
	for _, r := range m.records {
		if matchesFilter(r, f) {
			n++
		}
	}
	return n, nil
}

func (m *memStore) DistinctVideos(_ context.Context, f domain.Filter) (map[string]struct{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[string]struct{}{}
	for _, r := range m.records {
		if matchesFilter(r, f) {
			out[r.Metadata.VideoID] = struct{}{}
		}
	}
	return out, nil
}

func (m *memStore) DescribeStats(_ context.Context) (domain.IndexStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return domain.IndexStats{TotalRecordCount: uint64(len(m.records)), Collection: "test"}, nil
}

func (m *memStore) keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sortedKeys()
}

func (m *memStore) put(channelID, videoID string, idx int, text string, vec ...float32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := domain.NewRecord(domain.Segment{ChannelID: channelID, VideoID: videoID, Index: idx, Text: text}, vec)
	m.records[rec.Key] = rec
}

// memCache is a Cache without expiry handling.
type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
	ttls map[string]time.Duration
}

func newMemCache() *memCache {
	return &memCache{data: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (c *memCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *memCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	c.ttls[key] = ttl
	return nil
}

func (c *memCache) Exists(_ context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.data[key]
	return ok, nil
}

// wordProvider embeds text as [word count, 1, len(text)] and counts calls.
type wordProvider struct {
	mu    sync.Mutex
	calls int
	fail  map[string]int
}

func (p *wordProvider) Embed(_ context.Context, text string) ([]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.fail != nil && p.fail[text] > 0 {
		p.fail[text]--
		return nil, errors.New("provider unavailable")
	}
	return []float32{float32(len(strings.Fields(text))), 1, float32(len(text))}, nil
}

func (p *wordProvider) Model() string { return "word-test" }

func (p *wordProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func fastPolicy() retry.Policy {
	return retry.Policy{MaxAttempts: 3, Initial: time.Millisecond, Max: 2 * time.Millisecond}
}

// stubCatalog serves fixed channels and uploads.
type stubCatalog struct {
	handles  map[string]string
	uploads  map[string][]string
	metadata map[string]domain.ChannelMetadata
	resolves int
	fetches  int
}

func (c *stubCatalog) ResolveHandle(_ context.Context, handle string) (string, error) {
	c.resolves++
	if id, ok := c.handles[handle]; ok {
		return id, nil
	}
	return "", domain.ErrNotFound
}

func (c *stubCatalog) ChannelMetadata(_ context.Context, channelID string) (domain.ChannelMetadata, error) {
	c.fetches++
	if m, ok := c.metadata[channelID]; ok {
		return m, nil
	}
	return nil, domain.ErrNotFound
}

func (c *stubCatalog) ListVideoIDs(_ context.Context, channelID string, limit int) ([]string, error) {
	ids := c.uploads[channelID]
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

// stubTranscripts serves fixed transcripts; errs forces a transport error.
type stubTranscripts struct {
	texts map[string]string
	errs  map[string]error
	calls int
}

func (s *stubTranscripts) Transcript(_ context.Context, videoID string) (string, bool, error) {
	s.calls++
	if err := s.errs[videoID]; err != nil {
		return "", false, err
	}
	text, ok := s.texts[videoID]
	return text, ok, nil
}

// memJobs is a JobStore applying the same progress guard as the database.
type memJobs struct {
	mu           sync.Mutex
	jobs         map[string]*domain.IngestJob
	history      map[string][]float64
	failComplete error
}

func newMemJobs() *memJobs {
	return &memJobs{jobs: map[string]*domain.IngestJob{}, history: map[string][]float64{}}
}

func (m *memJobs) Create(_ context.Context, job *domain.IngestJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *job
	m.jobs[job.ID] = &cp
	return nil
}

func (m *memJobs) Get(_ context.Context, id string) (*domain.IngestJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, domain.Wrap(domain.ErrNotFound, "get job", errors.New(id))
	}
	cp := *job
	return &cp, nil
}

func (m *memJobs) MarkStarted(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if job, ok := m.jobs[id]; ok && job.State == domain.JobStatePending {
		job.State = domain.JobStateStarted
	}
	return nil
}

func (m *memJobs) SetChannel(_ context.Context, id, channelID string, total int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if job, ok := m.jobs[id]; ok {
		job.ChannelID = channelID
		job.TotalVideos = total
	}
	return nil
}

func (m *memJobs) UpdateProgress(_ context.Context, id string, progress float64, processed int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history[id] = append(m.history[id], progress)
	job, ok := m.jobs[id]
	if !ok || job.State.Terminal() || progress < job.Progress {
		return nil
	}
	job.State = domain.JobStateProgress
	job.Progress = progress
	job.ProcessedVideos = processed
	return nil
}

func (m *memJobs) Complete(_ context.Context, id string, result domain.JobResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failComplete != nil {
		return m.failComplete
	}
	if job, ok := m.jobs[id]; ok {
		job.State = domain.JobStateSuccess
		job.Progress = 100
		job.ChannelID = result.ChannelID
		job.ProcessedVideos = result.ProcessedVideos
	}
	return nil
}

func (m *memJobs) Fail(_ context.Context, id, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if job, ok := m.jobs[id]; ok {
		job.State = domain.JobStateFailed
		job.Error = message
	}
	return nil
}

func (m *memJobs) PurgeExpired(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, job := range m.jobs {
		if job.State.Terminal() && job.UpdatedAt.Before(cutoff) {
			delete(m.jobs, id)
			n++
		}
	}
	return n, nil
}

func (m *memJobs) progressHistory(id string) []float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]float64(nil), m.history[id]...)
}
