package repository

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"github.com/timmy/topicmodel/internal/domain"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const payloadDocumentID = "document_id"

// pointNamespace scopes deterministic point ids.
var pointNamespace = uuid.MustParse("4b0f7d1e-9c3a-5e2b-8f61-0a9d2c7e3b14")

// QdrantConnectionConfig holds configuration for the Qdrant connection.
type QdrantConnectionConfig struct {
	Host             string
	Port             int
	APIKey           string // enables TLS automatically
	UseTLS           bool
	CollectionPrefix string
}

func apiKeyInterceptor(apiKey string) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		ctx = metadata.AppendToOutgoingContext(ctx, "api-key", apiKey)
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

// TopicIndex mirrors topic weight vectors into Qdrant, one collection per model.
type TopicIndex struct {
	conn          *grpc.ClientConn
	pointsClient  pb.PointsClient
	collectClient pb.CollectionsClient
	prefix        string
}

// NewTopicIndex connects to Qdrant.
// Supports both local Qdrant (insecure) and Qdrant Cloud (TLS + API key).
func NewTopicIndex(cfg *QdrantConnectionConfig) (*TopicIndex, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	var opts []grpc.DialOption
	if cfg.UseTLS || cfg.APIKey != "" {
		opts = append(opts, grpc.WithTransportCredentials(credentials.NewTLS(&tls.Config{
			MinVersion: tls.VersionTLS13,
		})))
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

	prefix := cfg.CollectionPrefix
	if prefix == "" {
		prefix = "topics"
	}

	return &TopicIndex{
		conn:          conn,
		pointsClient:  pb.NewPointsClient(conn),
		collectClient: pb.NewCollectionsClient(conn),
		prefix:        prefix,
	}, nil
}

// Close closes the gRPC connection.
func (r *TopicIndex) Close() error {
	return r.conn.Close()
}

// CollectionName returns the collection holding a model's vectors.
func (r *TopicIndex) CollectionName(modelID string) string {
	var b strings.Builder
	b.WriteString(r.prefix)
	b.WriteByte('_')
	for _, c := range modelID {
		if c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '-' || c == '_' {
			b.WriteRune(c)
		} else {
			b.WriteByte('_')
		}
	}
	b.WriteByte('_')
	b.WriteString(uuid.NewSHA1(pointNamespace, []byte(modelID)).String()[:8])
	return b.String()
}

// PointID returns the deterministic point id of a document under a model.
func PointID(modelID, documentID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(modelID+"\x00"+documentID)).String()
}

// EnsureCollection creates the model's collection with cosine distance if it doesn't exist.
func (r *TopicIndex) EnsureCollection(ctx context.Context, modelID string, dims int) error {
	name := r.CollectionName(modelID)
	info, err := r.collectClient.Get(ctx, &pb.GetCollectionInfoRequest{CollectionName: name})
	if err == nil {
		if size := info.GetResult().GetConfig().GetParams().GetVectorsConfig().GetParams().GetSize(); size != 0 && size != uint64(dims) {
			return fmt.Errorf("collection %s has vector size %d, expected %d", name, size, dims)
		}
		return nil
	}

	_, err = r.collectClient.Create(ctx, &pb.CreateCollection{
		CollectionName: name,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(dims),
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

// Upsert writes the dense topic vectors of assignments.
// Cosine distance is undefined for zero vectors, so their points are removed instead.
func (r *TopicIndex) Upsert(ctx context.Context, modelID string, dims int, assignments []domain.TopicAssignment) error {
	points := make([]*pb.PointStruct, 0, len(assignments))
	var zero []*pb.PointId
	for _, a := range assignments {
		vec := a.Topics.Dense(dims, 0)
		if isZero(vec) {
			zero = append(zero, &pb.PointId{
				PointIdOptions: &pb.PointId_Uuid{Uuid: PointID(modelID, a.DocumentID)},
			})
			continue
		}
		points = append(points, &pb.PointStruct{
			Id: &pb.PointId{
				PointIdOptions: &pb.PointId_Uuid{Uuid: PointID(modelID, a.DocumentID)},
			},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{Data: toFloat32(vec)},
				},
			},
			Payload: map[string]*pb.Value{
				payloadDocumentID: {Kind: &pb.Value_StringValue{StringValue: a.DocumentID}},
			},
		})
	}

	wait := true
	if len(zero) > 0 {
		_, err := r.pointsClient.Delete(ctx, &pb.DeletePoints{
			CollectionName: r.CollectionName(modelID),
			Wait:           &wait,
			Points: &pb.PointsSelector{
				PointsSelectorOneOf: &pb.PointsSelector_Points{
					Points: &pb.PointsIdsList{Ids: zero},
				},
			},
		})
		if err != nil {
			return fmt.Errorf("failed to delete points: %w", err)
		}
	}
	if len(points) == 0 {
		return nil
	}

	_, err := r.pointsClient.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: r.CollectionName(modelID),
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("failed to upsert points: %w", err)
	}
	return nil
}

// Search returns the document ids closest to vector, best first.
// The search is exact; ties come back in no particular order.
func (r *TopicIndex) Search(ctx context.Context, modelID string, vector []float64, limit int) ([]string, error) {
	exact := true
	resp, err := r.pointsClient.Search(ctx, &pb.SearchPoints{
		CollectionName: r.CollectionName(modelID),
		Vector:         toFloat32(vector),
		Limit:          uint64(limit),
		Params:         &pb.SearchParams{Exact: &exact},
		WithPayload: &pb.WithPayloadSelector{
			SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	ids := make([]string, 0, len(resp.GetResult()))
	for _, scored := range resp.GetResult() {
		if v, ok := scored.GetPayload()[payloadDocumentID]; ok {
			ids = append(ids, v.GetStringValue())
		}
	}
	return ids, nil
}

// DropCollection deletes a model's collection. A missing collection is not an error.
func (r *TopicIndex) DropCollection(ctx context.Context, modelID string) error {
	_, err := r.collectClient.Delete(ctx, &pb.DeleteCollection{CollectionName: r.CollectionName(modelID)})
	if err != nil && status.Code(err) != codes.NotFound {
		return fmt.Errorf("failed to delete collection: %w", err)
	}
	return nil
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}

func isZero(v []float64) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}
