package repository

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"github.com/ryanmac/youtube-extraction-service/internal/domain"
	"github.com/ryanmac/youtube-extraction-service/internal/logger"
	"github.com/ryanmac/youtube-extraction-service/internal/retry"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
)

const (
	defaultVectorDimension = 1536

	payloadKey        = "key"
	payloadChannelID  = "channel_id"
	payloadVideoID    = "video_id"
	payloadChunkIndex = "chunk_index"
	payloadText       = "text"
)

// pointNamespace seeds the deterministic point ids derived from segment keys.
var pointNamespace = uuid.MustParse("6f1c8d0e-5a0b-4c52-9d0e-7b1f3a9e2c41")

// QdrantConnectionConfig holds configuration for the Qdrant connection.
type QdrantConnectionConfig struct {
	Host            string
	Port            int
	Collection      string
	APIKey          string // enables TLS
	UseTLS          bool
	VectorDimension int
	MaxBatchBytes   int
	Retry           retry.Policy
}

type pointsAPI interface {
	Upsert(ctx context.Context, in *pb.UpsertPoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
	Get(ctx context.Context, in *pb.GetPoints, opts ...grpc.CallOption) (*pb.GetResponse, error)
	Search(ctx context.Context, in *pb.SearchPoints, opts ...grpc.CallOption) (*pb.SearchResponse, error)
	Scroll(ctx context.Context, in *pb.ScrollPoints, opts ...grpc.CallOption) (*pb.ScrollResponse, error)
	Count(ctx context.Context, in *pb.CountPoints, opts ...grpc.CallOption) (*pb.CountResponse, error)
	CreateFieldIndex(ctx context.Context, in *pb.CreateFieldIndexCollection, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
}

type collectionsAPI interface {
	Get(ctx context.Context, in *pb.GetCollectionInfoRequest, opts ...grpc.CallOption) (*pb.GetCollectionInfoResponse, error)
	Create(ctx context.Context, in *pb.CreateCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
}

func apiKeyInterceptor(apiKey string) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		ctx = metadata.AppendToOutgoingContext(ctx, "api-key", apiKey)
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

// QdrantRepository is the vector store adapter for transcript segments.
// Every record is one point whose id is derived from the segment key, so
// re-ingesting a video overwrites its points in place.
type QdrantRepository struct {
	conn            *grpc.ClientConn
	points          pointsAPI
	collections     collectionsAPI
	collectionName  string
	vectorDimension int
	maxBatchBytes   int
	policy          retry.Policy
}

// NewQdrantRepository dials Qdrant. Local instances use plaintext; an API key
// or UseTLS switches to TLS 1.3 with the key sent as call metadata.
func NewQdrantRepository(cfg *QdrantConnectionConfig) (*QdrantRepository, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	var opts []grpc.DialOption
	if cfg.UseTLS || cfg.APIKey != "" {
		opts = append(opts, grpc.WithTransportCredentials(credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS13})))
		if cfg.APIKey != "" {
			opts = append(opts, grpc.WithUnaryInterceptor(apiKeyInterceptor(cfg.APIKey)))
		}
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}

	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to qdrant: %w", err)
	}

	repo := newQdrantRepository(pb.NewPointsClient(conn), pb.NewCollectionsClient(conn), cfg)
	repo.conn = conn
	return repo, nil
}

func newQdrantRepository(points pointsAPI, collections collectionsAPI, cfg *QdrantConnectionConfig) *QdrantRepository {
	dim := cfg.VectorDimension
	if dim <= 0 {
		dim = defaultVectorDimension
	}
	budget := cfg.MaxBatchBytes
	if budget <= 0 {
		budget = DefaultMaxBatchBytes
	}
	policy := cfg.Retry
	if policy.MaxAttempts == 0 {
		policy = retry.DefaultPolicy()
	}
	return &QdrantRepository{
		points:          points,
		collections:     collections,
		collectionName:  cfg.Collection,
		vectorDimension: dim,
		maxBatchBytes:   budget,
		policy:          policy,
	}
}

// Close closes the gRPC connection.
func (r *QdrantRepository) Close() error {
	if r.conn == nil {
		return nil
	}
	return r.conn.Close()
}

// Collection returns the collection name.
func (r *QdrantRepository) Collection() string {
	return r.collectionName
}

// EnsureCollection creates the collection and its payload indexes if the
// collection does not exist yet, and checks the vector size if it does.
func (r *QdrantRepository) EnsureCollection(ctx context.Context) error {
	info, err := r.collections.Get(ctx, &pb.GetCollectionInfoRequest{CollectionName: r.collectionName})
	if err == nil {
		if size, ok := collectionVectorSize(info.GetResult()); ok && size != uint64(r.vectorDimension) {
			return fmt.Errorf("collection %s has vector size %d, expected %d", r.collectionName, size, r.vectorDimension)
		}
		return nil
	}

	_, err = r.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: r.collectionName,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(r.vectorDimension),
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	for field, kind := range map[string]pb.FieldType{
		payloadKey:        pb.FieldType_FieldTypeKeyword,
		payloadChannelID:  pb.FieldType_FieldTypeKeyword,
		payloadVideoID:    pb.FieldType_FieldTypeKeyword,
		payloadChunkIndex: pb.FieldType_FieldTypeInteger,
	} {
		kind := kind
		if _, err := r.points.CreateFieldIndex(ctx, &pb.CreateFieldIndexCollection{
			CollectionName: r.collectionName,
			Wait:           boolPtr(true),
			FieldName:      field,
			FieldType:      &kind,
		}); err != nil {
			return fmt.Errorf("failed to index payload field %s: %w", field, err)
		}
	}

	logger.CtxInfo(ctx, "Created qdrant collection %s (dim=%d)", r.collectionName, r.vectorDimension)
	return nil
}

func boolPtr(v bool) *bool { return &v }

func collectionVectorSize(info *pb.CollectionInfo) (uint64, bool) {
	vectors := info.GetConfig().GetParams().GetVectorsConfig()
	if vectors == nil {
		return 0, false
	}
	if single := vectors.GetParams(); single != nil && single.GetSize() > 0 {
		return single.GetSize(), true
	}
	for _, p := range vectors.GetParamsMap().GetMap() {
		if p.GetSize() > 0 {
			return p.GetSize(), true
		}
	}
	return 0, false
}

// PointID maps a segment key to its deterministic point id.
func PointID(key string) string {
	return uuid.NewSHA1(pointNamespace, []byte(key)).String()
}

func pointIDValue(key string) *pb.PointId {
	return &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: PointID(key)}}
}

func stringValue(s string) *pb.Value {
	return &pb.Value{Kind: &pb.Value_StringValue{StringValue: s}}
}

func toPoint(rec domain.Record) *pb.PointStruct {
	return &pb.PointStruct{
		Id: pointIDValue(rec.Key),
		Vectors: &pb.Vectors{
			VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: rec.Embedding}},
		},
		Payload: map[string]*pb.Value{
			payloadKey:        stringValue(rec.Key),
			payloadChannelID:  stringValue(rec.Metadata.ChannelID),
			payloadVideoID:    stringValue(rec.Metadata.VideoID),
			payloadChunkIndex: {Kind: &pb.Value_IntegerValue{IntegerValue: int64(rec.Metadata.ChunkIndex)}},
			payloadText:       stringValue(rec.Metadata.Text),
		},
	}
}

func parsePayload(payload map[string]*pb.Value) (string, domain.Metadata) {
	return payload[payloadKey].GetStringValue(), domain.Metadata{
		ChannelID:  payload[payloadChannelID].GetStringValue(),
		VideoID:    payload[payloadVideoID].GetStringValue(),
		ChunkIndex: int(payload[payloadChunkIndex].GetIntegerValue()),
		Text:       payload[payloadText].GetStringValue(),
	}
}

// Upsert writes records in batches whose estimated serialized size stays
// within the byte budget. Each batch is retried on its own; once a batch
// exhausts its retries the error matches domain.ErrUpsertFailed and the
// remaining batches are not sent. Records are validated before any batch is
// written.
func (r *QdrantRepository) Upsert(ctx context.Context, records []domain.Record) error {
	if len(records) == 0 {
		return nil
	}
	for _, rec := range records {
		if len(rec.Embedding) != r.vectorDimension {
			return domain.Wrap(domain.ErrUpsertFailed, "upsert",
				fmt.Errorf("%w: record %s has %d dimensions, expected %d", domain.ErrValidation, rec.Key, len(rec.Embedding), r.vectorDimension))
		}
	}

	batches, sizes := packBatches(records, r.maxBatchBytes, estimateRecordSize)
	for i, batch := range batches {
		if sizes[i] > r.maxBatchBytes {
			logger.CtxWarn(ctx, "Record %s alone exceeds the %d byte batch budget", batch[0].Key, r.maxBatchBytes)
		}

		points := make([]*pb.PointStruct, len(batch))
		for j, rec := range batch {
			points[j] = toPoint(rec)
		}

		start := time.Now()
		err := retry.Do(ctx, r.policy, "qdrant upsert", func(ctx context.Context) error {
			_, err := r.points.Upsert(ctx, &pb.UpsertPoints{
				CollectionName: r.collectionName,
				Wait:           boolPtr(true),
				Points:         points,
			})
			return err
		})
		if err != nil {
			logger.CtxError(ctx, "Upserting batch %d/%d failed after retries: %v", i+1, len(batches), err)
			return domain.Wrap(domain.ErrUpsertFailed, "upsert", err)
		}

		logger.With(logger.Fields{
			logger.FieldCount: len(batch),
			logger.FieldSize:  sizes[i],
		}).WithDuration(time.Since(start).Milliseconds()).
			Info(ctx, "Upserted batch %d/%d (estimated %.2fKB)", i+1, len(batches), float64(sizes[i])/1024)
	}
	return nil
}

// Exists reports whether a record is stored under key.
func (r *QdrantRepository) Exists(ctx context.Context, key string) (bool, error) {
	found, err := r.Fetch(ctx, []string{key})
	if err != nil {
		return false, err
	}
	_, ok := found[key]
	return ok, nil
}

// Fetch reads the records stored under keys. Missing keys are absent from
// the result. Embeddings are not returned.
func (r *QdrantRepository) Fetch(ctx context.Context, keys []string) (map[string]domain.Record, error) {
	out := make(map[string]domain.Record, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	byID := make(map[string]string, len(keys))
	ids := make([]*pb.PointId, 0, len(keys))
	for _, k := range keys {
		id := PointID(k)
		if _, dup := byID[id]; dup {
			continue
		}
		byID[id] = k
		ids = append(ids, pointIDValue(k))
	}

	resp, err := r.points.Get(ctx, &pb.GetPoints{
		CollectionName: r.collectionName,
		Ids:            ids,
		WithPayload:    withPayload(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch points: %w", err)
	}

	for _, p := range resp.GetResult() {
		key, md := parsePayload(p.GetPayload())
		if key == "" {
			key = byID[p.GetId().GetUuid()]
		}
		out[key] = domain.Record{Key: key, Metadata: md}
	}
	return out, nil
}

// Query returns the topK most similar records matching filter, best first.
func (r *QdrantRepository) Query(ctx context.Context, vector []float32, filter domain.Filter, topK int) ([]domain.Match, error) {
	if topK <= 0 {
		return nil, nil
	}
	resp, err := r.points.Search(ctx, &pb.SearchPoints{
		CollectionName: r.collectionName,
		Vector:         vector,
		Limit:          uint64(topK),
		Filter:         buildFilter(filter),
		WithPayload:    withPayload(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	matches := make([]domain.Match, 0, len(resp.GetResult()))
	for _, p := range resp.GetResult() {
		key, md := parsePayload(p.GetPayload())
		if key == "" {
			key = domain.SegmentKey(md.VideoID, md.ChunkIndex)
		}
		matches = append(matches, domain.Match{Key: key, Score: p.GetScore(), Metadata: md})
	}
	return matches, nil
}

// List returns up to limit records matching filter in storage order.
func (r *QdrantRepository) List(ctx context.Context, filter domain.Filter, limit int) ([]domain.Record, error) {
	if limit <= 0 {
		return nil, nil
	}
	n := uint32(limit)
	resp, err := r.points.Scroll(ctx, &pb.ScrollPoints{
		CollectionName: r.collectionName,
		Filter:         buildFilter(filter),
		Limit:          &n,
		WithPayload:    withPayload(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scroll: %w", err)
	}

	out := make([]domain.Record, 0, len(resp.GetResult()))
	for _, p := range resp.GetResult() {
		key, md := parsePayload(p.GetPayload())
		out = append(out, domain.Record{Key: key, Metadata: md})
	}
	return out, nil
}

// ChannelExists reports whether any record belongs to channelID.
func (r *QdrantRepository) ChannelExists(ctx context.Context, channelID string) (bool, error) {
	recs, err := r.List(ctx, domain.Filter{ChannelIDs: []string{channelID}}, 1)
	if err != nil {
		return false, err
	}
	return len(recs) > 0, nil
}

// Count returns the exact number of records matching filter.
func (r *QdrantRepository) Count(ctx context.Context, filter domain.Filter) (uint64, error) {
	resp, err := r.points.Count(ctx, &pb.CountPoints{
		CollectionName: r.collectionName,
		Filter:         buildFilter(filter),
		Exact:          boolPtr(true),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count points: %w", err)
	}
	return resp.GetResult().GetCount(), nil
}

// DistinctVideos walks every record matching filter and returns the set of
// video ids seen.
func (r *QdrantRepository) DistinctVideos(ctx context.Context, filter domain.Filter) (map[string]struct{}, error) {
	videos := make(map[string]struct{})
	pageSize := uint32(256)
	var offset *pb.PointId

	for {
		resp, err := r.points.Scroll(ctx, &pb.ScrollPoints{
			CollectionName: r.collectionName,
			Filter:         buildFilter(filter),
			Offset:         offset,
			Limit:          &pageSize,
			WithPayload: &pb.WithPayloadSelector{
				SelectorOptions: &pb.WithPayloadSelector_Include{
					Include: &pb.PayloadIncludeSelector{Fields: []string{payloadVideoID}},
				},
			},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to scroll: %w", err)
		}
		for _, p := range resp.GetResult() {
			if v := p.GetPayload()[payloadVideoID].GetStringValue(); v != "" {
				videos[v] = struct{}{}
			}
		}
		offset = resp.GetNextPageOffset()
		if offset == nil || len(resp.GetResult()) == 0 {
			return videos, nil
		}
	}
}

// DescribeStats reports the total number of records in the collection.
func (r *QdrantRepository) DescribeStats(ctx context.Context) (domain.IndexStats, error) {
	total, err := r.Count(ctx, domain.Filter{})
	if err != nil {
		return domain.IndexStats{}, err
	}
	return domain.IndexStats{
		TotalRecordCount: total,
		Collection:       r.collectionName,
		Dimension:        r.vectorDimension,
	}, nil
}

func withPayload() *pb.WithPayloadSelector {
	return &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}}
}

func keywordCondition(field string, values []string) *pb.Condition {
	match := &pb.Match{MatchValue: &pb.Match_Keyword{Keyword: values[0]}}
	if len(values) > 1 {
		match = &pb.Match{MatchValue: &pb.Match_Keywords{Keywords: &pb.RepeatedStrings{Strings: values}}}
	}
	return &pb.Condition{
		ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{Key: field, Match: match},
		},
	}
}

func buildFilter(f domain.Filter) *pb.Filter {
	var must []*pb.Condition
	if len(f.ChannelIDs) > 0 {
		must = append(must, keywordCondition(payloadChannelID, f.ChannelIDs))
	}
	if f.VideoID != "" {
		must = append(must, keywordCondition(payloadVideoID, []string{f.VideoID}))
	}
	if len(must) == 0 {
		return nil
	}
	return &pb.Filter{Must: must}
}
