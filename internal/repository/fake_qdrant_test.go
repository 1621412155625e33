package repository

import (
	"context"
	"errors"
	"sort"
	"sync"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
)

// fakePoints is an in-memory stand-in for the Qdrant points service.
type fakePoints struct {
	mu          sync.Mutex
	points      map[string]*pb.PointStruct
	upsertCalls [][]*pb.PointStruct
	failUpserts map[int]int // call index -> remaining failures
	indexed     []string
	calls       int
}

func newFakePoints() *fakePoints {
	return &fakePoints{points: map[string]*pb.PointStruct{}, failUpserts: map[int]int{}}
}

func (f *fakePoints) Upsert(_ context.Context, in *pb.UpsertPoints, _ ...grpc.CallOption) (*pb.PointsOperationResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	batch := len(f.upsertCalls)
	f.calls++
	if n := f.failUpserts[batch]; n > 0 {
		f.failUpserts[batch] = n - 1
		return nil, errors.New("unavailable")
	}
	f.upsertCalls = append(f.upsertCalls, in.Points)
	for _, p := range in.Points {
		f.points[p.Id.GetUuid()] = p
	}
	return &pb.PointsOperationResponse{}, nil
}

func (f *fakePoints) Get(_ context.Context, in *pb.GetPoints, _ ...grpc.CallOption) (*pb.GetResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	resp := &pb.GetResponse{}
	for _, id := range in.Ids {
		if p, ok := f.points[id.GetUuid()]; ok {
			resp.Result = append(resp.Result, &pb.RetrievedPoint{Id: p.Id, Payload: p.Payload})
		}
	}
	return resp, nil
}

func (f *fakePoints) Search(_ context.Context, in *pb.SearchPoints, _ ...grpc.CallOption) (*pb.SearchResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var scored []*pb.ScoredPoint
	for _, p := range f.points {
		if !matches(in.Filter, p.Payload) {
			continue
		}
		scored = append(scored, &pb.ScoredPoint{Id: p.Id, Payload: p.Payload, Score: dot(in.Vector, p.Vectors.GetVector().GetData())})
	}
	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score == scored[j].Score {
			return scored[i].Id.GetUuid() < scored[j].Id.GetUuid()
		}
		return scored[i].Score > scored[j].Score
	})
	if uint64(len(scored)) > in.Limit {
		scored = scored[:in.Limit]
	}
	return &pb.SearchResponse{Result: scored}, nil
}

func (f *fakePoints) Scroll(_ context.Context, in *pb.ScrollPoints, _ ...grpc.CallOption) (*pb.ScrollResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []string
	for id, p := range f.points {
		if matches(in.Filter, p.Payload) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	start := 0
	if in.Offset != nil {
		start = sort.SearchStrings(ids, in.Offset.GetUuid())
	}
	limit := len(ids)
	if in.Limit != nil {
		limit = int(*in.Limit)
	}
	end := start + limit
	resp := &pb.ScrollResponse{}
	if end < len(ids) {
		resp.NextPageOffset = &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: ids[end]}}
	} else {
		end = len(ids)
	}
	for _, id := range ids[start:end] {
		p := f.points[id]
		resp.Result = append(resp.Result, &pb.RetrievedPoint{Id: p.Id, Payload: p.Payload})
	}
	return resp, nil
}

func (f *fakePoints) Count(_ context.Context, in *pb.CountPoints, _ ...grpc.CallOption) (*pb.CountResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n uint64
	for _, p := range f.points {
		if matches(in.Filter, p.Payload) {
			n++
		}
	}
	return &pb.CountResponse{Result: &pb.CountResult{Count: n}}, nil
}

func (f *fakePoints) CreateFieldIndex(_ context.Context, in *pb.CreateFieldIndexCollection, _ ...grpc.CallOption) (*pb.PointsOperationResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.indexed = append(f.indexed, in.FieldName)
	return &pb.PointsOperationResponse{}, nil
}

type fakeCollections struct {
	exists  bool
	size    uint64
	created *pb.CreateCollection
}

func (f *fakeCollections) Get(context.Context, *pb.GetCollectionInfoRequest, ...grpc.CallOption) (*pb.GetCollectionInfoResponse, error) {
	if !f.exists {
		return nil, errors.New("not found")
	}
	return &pb.GetCollectionInfoResponse{Result: &pb.CollectionInfo{
		Config: &pb.CollectionConfig{Params: &pb.CollectionParams{
			VectorsConfig: &pb.VectorsConfig{Config: &pb.VectorsConfig_Params{Params: &pb.VectorParams{Size: f.size}}},
		}},
	}}, nil
}

func (f *fakeCollections) Create(_ context.Context, in *pb.CreateCollection, _ ...grpc.CallOption) (*pb.CollectionOperationResponse, error) {
	f.created = in
	f.exists = true
	return &pb.CollectionOperationResponse{Result: true}, nil
}

func matches(filter *pb.Filter, payload map[string]*pb.Value) bool {
	for _, c := range filter.GetMust() {
		field := c.GetField()
		got := payload[field.GetKey()].GetStringValue()
		m := field.GetMatch()
		switch {
		case m.GetKeywords() != nil:
			ok := false
			for _, s := range m.GetKeywords().GetStrings() {
				if s == got {
					ok = true
				}
			}
			if !ok {
				return false
			}
		default:
			if m.GetKeyword() != got {
				return false
			}
		}
	}
	return true
}

func dot(a, b []float32) float32 {
	var s float32
	for i := range a {
		if i < len(b) {
			s += a[i] * b[i]
		}
	}
	return s
}
