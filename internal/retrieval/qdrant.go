package retrieval

import (
	"context"
	"fmt"
	"time"

	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
)

// QdrantStore implements Gateway over a Qdrant server reached via gRPC.
// Collections are expected to hold points with a "content" payload field and
// an "original_id" carrying the chunk's external id.
type QdrantStore struct {
	client *qdrant.Client
	embed  Embedder
}

// QdrantConfig holds connection options for the Qdrant backend.
type QdrantConfig struct {
	Host   string // e.g. "localhost"
	Port   uint32 // gRPC port, default 6334
	APIKey string // optional
}

// NewQdrantStore connects to Qdrant and wires the embedder used to vectorize
// search queries.
func NewQdrantStore(cfg QdrantConfig, embed Embedder) (*QdrantStore, error) {
	if cfg.Port == 0 {
		cfg.Port = 6334
	}
	keepaliveParams := grpc.WithKeepaliveParams(keepalive.ClientParameters{
		Time:                10 * time.Second,
		Timeout:             3 * time.Second,
		PermitWithoutStream: true,
	})
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   int(cfg.Port),
		APIKey: cfg.APIKey,
		GrpcOptions: []grpc.DialOption{
			grpc.WithTransportCredentials(insecure.NewCredentials()),
			keepaliveParams,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create qdrant client: %w", err)
	}
	return &QdrantStore{client: client, embed: embed}, nil
}

// Search vectorizes the query and returns chunks at or above threshold,
// best first. The call is bounded by a 30s timeout independent of the
// caller's deadline.
func (s *QdrantStore) Search(ctx context.Context, query, collection string, topK int, threshold float64) ([]Chunk, error) {
	searchCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	vector, err := s.embed.Embed(searchCtx, query)
	if err != nil {
		return nil, fmt.Errorf("vectorize query: %w", err)
	}

	points, err := s.client.Query(searchCtx, &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(topK)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("search collection %q: %w", collection, err)
	}

	chunks := make([]Chunk, 0, len(points))
	for _, point := range points {
		score := float64(point.Score)
		if score < threshold {
			continue
		}
		var metadata map[string]any
		if mv := point.Payload["metadata"]; mv != nil {
			if st := mv.GetStructValue(); st != nil {
				metadata = structToMap(st)
			}
		}
		chunks = append(chunks, Chunk{
			ID:         point.Payload["original_id"].GetStringValue(),
			Content:    point.Payload["content"].GetStringValue(),
			Similarity: score,
			Metadata:   metadata,
		})
	}
	return chunks, nil
}

func (s *QdrantStore) Close() error {
	if s.embed != nil {
		_ = s.embed.Close()
	}
	return s.client.Close()
}

func structToMap(st *qdrant.Struct) map[string]any {
	out := make(map[string]any, len(st.Fields))
	for k, v := range st.Fields {
		out[k] = valueToAny(v)
	}
	return out
}

func valueToAny(v *qdrant.Value) any {
	switch kind := v.Kind.(type) {
	case *qdrant.Value_StringValue:
		return kind.StringValue
	case *qdrant.Value_DoubleValue:
		return kind.DoubleValue
	case *qdrant.Value_IntegerValue:
		return kind.IntegerValue
	case *qdrant.Value_BoolValue:
		return kind.BoolValue
	case *qdrant.Value_ListValue:
		items := make([]any, 0, len(kind.ListValue.Values))
		for _, item := range kind.ListValue.Values {
			items = append(items, valueToAny(item))
		}
		return items
	case *qdrant.Value_StructValue:
		return structToMap(kind.StructValue)
	default:
		return nil
	}
}
