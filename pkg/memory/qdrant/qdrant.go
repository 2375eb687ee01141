// Package qdrant implements memory.VectorStore backed by a Qdrant server
// over gRPC.
package qdrant

import (
	"context"
	"fmt"

	"github.com/jllopis/telos/pkg/memory"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Store talks to a single Qdrant instance.
type Store struct {
	client      pb.PointsClient
	collections pb.CollectionsClient
}

// New connects to the Qdrant gRPC endpoint at addr.
func New(addr string) (*Store, error) {
	conn, err := grpc.Dial(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("did not connect: %v", err)
	}

	return &Store{
		client:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
	}, nil
}

func (s *Store) CreateCollection(ctx context.Context, name string, vectorSize uint64) error {
	_, err := s.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: name,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     vectorSize,
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}
	return nil
}

func (s *Store) Upsert(ctx context.Context, collection string, points []memory.Point) error {
	qPoints := make([]*pb.PointStruct, len(points))
	for i, p := range points {
		qPoints[i] = &pb.PointStruct{
			Id: &pb.PointId{
				PointIdOptions: &pb.PointId_Uuid{Uuid: p.ID},
			},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{Data: p.Vector},
				},
			},
			Payload: toPayload(p.Payload),
		}
	}

	_, err := s.client.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: collection,
		Points:         qPoints,
	})
	if err != nil {
		return fmt.Errorf("failed to upsert points: %w", err)
	}

	return nil
}

func (s *Store) Search(ctx context.Context, collection string, vector []float32, limit int, scoreThreshold float32) ([]memory.SearchResult, error) {
	resp, err := s.client.Search(ctx, &pb.SearchPoints{
		CollectionName: collection,
		Vector:         vector,
		Limit:          uint64(limit),
		ScoreThreshold: &scoreThreshold,
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search points: %w", err)
	}

	results := make([]memory.SearchResult, len(resp.Result))
	for i, r := range resp.Result {
		var id string
		if r.Id.GetUuid() != "" {
			id = r.Id.GetUuid()
		} else {
			id = fmt.Sprintf("%d", r.Id.GetNum())
		}

		results[i] = memory.SearchResult{
			ID:    id,
			Score: r.Score,
			Point: memory.Point{
				ID:      id,
				Payload: fromPayload(r.Payload),
			},
		}
	}

	return results, nil
}

func toPayload(payload map[string]any) map[string]*pb.Value {
	out := make(map[string]*pb.Value, len(payload))
	for k, v := range payload {
		out[k] = toValue(v)
	}
	return out
}

func toValue(v any) *pb.Value {
	switch val := v.(type) {
	case nil:
		return &pb.Value{Kind: &pb.Value_NullValue{NullValue: pb.NullValue_NULL_VALUE}}
	case string:
		return &pb.Value{Kind: &pb.Value_StringValue{StringValue: val}}
	case bool:
		return &pb.Value{Kind: &pb.Value_BoolValue{BoolValue: val}}
	case int:
		return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: int64(val)}}
	case int64:
		return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: val}}
	case float64:
		return &pb.Value{Kind: &pb.Value_DoubleValue{DoubleValue: val}}
	case float32:
		return &pb.Value{Kind: &pb.Value_DoubleValue{DoubleValue: float64(val)}}
	case map[string]any:
		fields := make(map[string]*pb.Value, len(val))
		for k, item := range val {
			fields[k] = toValue(item)
		}
		return &pb.Value{Kind: &pb.Value_StructValue{StructValue: &pb.Struct{Fields: fields}}}
	case []any:
		values := make([]*pb.Value, len(val))
		for i, item := range val {
			values[i] = toValue(item)
		}
		return &pb.Value{Kind: &pb.Value_ListValue{ListValue: &pb.ListValue{Values: values}}}
	default:
		return &pb.Value{Kind: &pb.Value_StringValue{StringValue: fmt.Sprint(val)}}
	}
}

func fromPayload(payload map[string]*pb.Value) map[string]any {
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		out[k] = fromValue(v)
	}
	return out
}

func fromValue(v *pb.Value) any {
	switch kind := v.GetKind().(type) {
	case *pb.Value_StringValue:
		return kind.StringValue
	case *pb.Value_BoolValue:
		return kind.BoolValue
	case *pb.Value_IntegerValue:
		return kind.IntegerValue
	case *pb.Value_DoubleValue:
		return kind.DoubleValue
	case *pb.Value_StructValue:
		fields := make(map[string]any, len(kind.StructValue.GetFields()))
		for k, item := range kind.StructValue.GetFields() {
			fields[k] = fromValue(item)
		}
		return fields
	case *pb.Value_ListValue:
		values := make([]any, 0, len(kind.ListValue.GetValues()))
		for _, item := range kind.ListValue.GetValues() {
			values = append(values, fromValue(item))
		}
		return values
	default:
		return nil
	}
}
