package repository

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/ryanmac/youtube-extraction-service/internal/domain"
	"github.com/ryanmac/youtube-extraction-service/internal/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDim = 3

func newTestRepo(t *testing.T, budget int) (*QdrantRepository, *fakePoints) {
	t.Helper()
	points := newFakePoints()
	repo := newQdrantRepository(points, &fakeCollections{}, &QdrantConnectionConfig{
		Collection:      "test",
		VectorDimension: testDim,
		MaxBatchBytes:   budget,
		Retry:           retry.Policy{MaxAttempts: 3, Initial: time.Millisecond, Max: time.Millisecond},
	})
	return repo, points
}

func record(channel, video string, idx int, vec ...float32) domain.Record {
	return domain.NewRecord(domain.Segment{
		ChannelID: channel,
		VideoID:   video,
		Index:     idx,
		Text:      video + " segment " + strings.Repeat("x", idx),
	}, vec)
}

func TestPointIDIsDeterministic(t *testing.T) {
	assert.Equal(t, PointID("abc_0"), PointID("abc_0"))
	assert.NotEqual(t, PointID("abc_0"), PointID("abc_1"))
}

func TestUpsertAndFetch(t *testing.T) {
	repo, _ := newTestRepo(t, 0)
	ctx := context.Background()

	recs := []domain.Record{
		record("chan", "vid", 0, 1, 0, 0),
		record("chan", "vid", 1, 0, 1, 0),
	}
	require.NoError(t, repo.Upsert(ctx, recs))

	got, err := repo.Fetch(ctx, []string{"vid_0", "vid_1", "vid_9"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, recs[1].Metadata, got["vid_1"].Metadata)

	ok, err := repo.Exists(ctx, "vid_0")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.Exists(ctx, "other_0")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUpsertOverwritesByKey(t *testing.T) {
	repo, points := newTestRepo(t, 0)
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, []domain.Record{record("chan", "vid", 0, 1, 0, 0)}))
	require.NoError(t, repo.Upsert(ctx, []domain.Record{record("chan", "vid", 0, 0, 1, 0)}))

	n, err := repo.Count(ctx, domain.Filter{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	assert.Len(t, points.points, 1)
}

func TestUpsertSplitsIntoBudgetedBatches(t *testing.T) {
	recs := []domain.Record{
		record("chan", "vid", 0, 1, 0, 0),
		record("chan", "vid", 1, 1, 0, 0),
		record("chan", "vid", 2, 1, 0, 0),
	}
	budget := estimateRecordSize(recs[2]) * 2
	repo, points := newTestRepo(t, budget)

	require.NoError(t, repo.Upsert(context.Background(), recs))
	require.Len(t, points.upsertCalls, 2)
	assert.Len(t, points.upsertCalls[0], 2)
	assert.Len(t, points.upsertCalls[1], 1)
}

func TestUpsertRetriesEachBatchIndependently(t *testing.T) {
	recs := []domain.Record{
		record("chan", "vid", 0, 1, 0, 0),
		record("chan", "vid", 1, 1, 0, 0),
	}
	repo, points := newTestRepo(t, estimateRecordSize(recs[1]))
	points.failUpserts[1] = 2

	require.NoError(t, repo.Upsert(context.Background(), recs))
	assert.Len(t, points.upsertCalls, 2)
	assert.Equal(t, 4, points.calls, "first batch once, second batch three times")
}

func TestUpsertFailsAfterRetryExhaustion(t *testing.T) {
	recs := []domain.Record{
		record("chan", "vid", 0, 1, 0, 0),
		record("chan", "vid", 1, 1, 0, 0),
	}
	repo, points := newTestRepo(t, estimateRecordSize(recs[1]))
	points.failUpserts[1] = 10

	err := repo.Upsert(context.Background(), recs)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUpsertFailed)
	assert.Len(t, points.upsertCalls, 1, "committed batch is not resent")
	assert.Equal(t, 4, points.calls)
}

func TestUpsertRejectsWrongDimension(t *testing.T) {
	repo, points := newTestRepo(t, 0)
	err := repo.Upsert(context.Background(), []domain.Record{record("chan", "vid", 0, 1, 2)})
	assert.ErrorIs(t, err, domain.ErrUpsertFailed)
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Zero(t, points.calls)
}

func TestUpsertValidatesEveryRecordBeforeWriting(t *testing.T) {
	recs := []domain.Record{
		record("chan", "vid", 0, 1, 0, 0),
		record("chan", "vid", 1, 1, 0, 0),
		record("chan", "vid", 2, 1, 0),
	}
	repo, points := newTestRepo(t, estimateRecordSize(recs[1]))

	err := repo.Upsert(context.Background(), recs)
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Zero(t, points.calls, "no batch is written when a later record is invalid")
	assert.Empty(t, points.points)
}

func TestQueryFiltersByChannel(t *testing.T) {
	repo, _ := newTestRepo(t, 0)
	ctx := context.Background()
	require.NoError(t, repo.Upsert(ctx, []domain.Record{
		record("chanA", "a", 0, 1, 0, 0),
		record("chanA", "a", 1, 0.5, 0, 0),
		record("chanB", "b", 0, 2, 0, 0),
		record("chanC", "c", 0, 3, 0, 0),
	}))

	matches, err := repo.Query(ctx, []float32{1, 0, 0}, domain.Filter{ChannelIDs: []string{"chanA"}}, 5)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "a_0", matches[0].Key)
	assert.Equal(t, "a_1", matches[1].Key)
	assert.Greater(t, matches[0].Score, matches[1].Score)

	matches, err = repo.Query(ctx, []float32{1, 0, 0}, domain.Filter{ChannelIDs: []string{"chanA", "chanB"}}, 1)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "b_0", matches[0].Key)
	assert.Equal(t, "chanB", matches[0].Metadata.ChannelID)
}

func TestChannelExistsListAndCount(t *testing.T) {
	repo, _ := newTestRepo(t, 0)
	ctx := context.Background()
	require.NoError(t, repo.Upsert(ctx, []domain.Record{
		record("chanA", "a", 0, 1, 0, 0),
		record("chanA", "a", 1, 1, 0, 0),
		record("chanA", "b", 0, 1, 0, 0),
	}))

	ok, err := repo.ChannelExists(ctx, "chanA")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = repo.ChannelExists(ctx, "chanZ")
	require.NoError(t, err)
	assert.False(t, ok)

	recs, err := repo.List(ctx, domain.Filter{ChannelIDs: []string{"chanA"}}, 2)
	require.NoError(t, err)
	assert.Len(t, recs, 2)

	n, err := repo.Count(ctx, domain.Filter{ChannelIDs: []string{"chanA"}, VideoID: "a"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	stats, err := repo.DescribeStats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, stats.TotalRecordCount)
	assert.Equal(t, "test", stats.Collection)
}

func TestDistinctVideosPagesThroughScroll(t *testing.T) {
	repo, _ := newTestRepo(t, 0)
	ctx := context.Background()
	var recs []domain.Record
	for v := 0; v < 30; v++ {
		for i := 0; i < 20; i++ {
			recs = append(recs, record("chan", "video"+strings.Repeat("v", v), i, 1, 0, 0))
		}
	}
	recs = append(recs, record("other", "elsewhere", 0, 1, 0, 0))
	require.NoError(t, repo.Upsert(ctx, recs))

	videos, err := repo.DistinctVideos(ctx, domain.Filter{ChannelIDs: []string{"chan"}})
	require.NoError(t, err)
	assert.Len(t, videos, 30)
	assert.NotContains(t, videos, "elsewhere")
}

func TestEnsureCollectionCreatesIndexes(t *testing.T) {
	points := newFakePoints()
	cols := &fakeCollections{}
	repo := newQdrantRepository(points, cols, &QdrantConnectionConfig{Collection: "test", VectorDimension: 1536})

	require.NoError(t, repo.EnsureCollection(context.Background()))
	require.NotNil(t, cols.created)
	assert.EqualValues(t, 1536, cols.created.GetVectorsConfig().GetParams().GetSize())
	assert.ElementsMatch(t, []string{"key", "channel_id", "video_id", "chunk_index"}, points.indexed)
}

func TestEnsureCollectionRejectsDimensionMismatch(t *testing.T) {
	cols := &fakeCollections{exists: true, size: 1024}
	repo := newQdrantRepository(newFakePoints(), cols, &QdrantConnectionConfig{Collection: "test", VectorDimension: 1536})
	err := repo.EnsureCollection(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1024")
}
