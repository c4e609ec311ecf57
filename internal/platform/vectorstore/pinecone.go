package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/pinecone-io/go-pinecone/v3/pinecone"
	"go.opentelemetry.io/otel/attribute"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/groot/groot/internal/platform/telemetry"
)

const pineconeBatchSize = 100

// ErrNotConfigured is returned by NewPinecone when no api key is set.
var ErrNotConfigured = errors.New("pinecone api key not set")

// pineconeConn is the slice of the SDK index connection this package uses.
type pineconeConn interface {
	UpsertVectors(ctx context.Context, in []*pinecone.Vector) (uint32, error)
	QueryByVectorValues(ctx context.Context, in *pinecone.QueryByVectorValuesRequest) (*pinecone.QueryVectorsResponse, error)
	DescribeIndexStats(ctx context.Context) (*pinecone.DescribeIndexStatsResponse, error)
	Close() error
}

// PineconeIndex stores vectors in a serverless Pinecone index. The index
// must use the cosine metric.
type PineconeIndex struct {
	host string
	conn pineconeConn
}

// NewPinecone connects to the index at host, e.g.
// "groot-abc123.svc.us-east-1.pinecone.io".
func NewPinecone(host, apiKey, namespace string) (*PineconeIndex, error) {
	if apiKey == "" {
		return nil, ErrNotConfigured
	}
	host = normalizePineconeHost(host)
	if host == "" {
		return nil, fmt.Errorf("pinecone index host is required")
	}

	client, err := pinecone.NewClient(pinecone.NewClientParams{ApiKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("pinecone client: %w", err)
	}
	conn, err := client.Index(pinecone.NewIndexConnParams{Host: host, Namespace: namespace})
	if err != nil {
		return nil, fmt.Errorf("pinecone index %s: %w", host, err)
	}
	return &PineconeIndex{host: host, conn: conn}, nil
}

func normalizePineconeHost(host string) string {
	host = strings.TrimSpace(host)
	host = strings.TrimPrefix(host, "https://")
	host = strings.TrimPrefix(host, "http://")
	return strings.TrimRight(host, "/")
}

func (p *PineconeIndex) Close() error { return p.conn.Close() }

// Upsert sends vectors in batches of 100.
func (p *PineconeIndex) Upsert(ctx context.Context, vectors []Vector) (err error) {
	ctx, span := telemetry.StartClientSpan(ctx, "pinecone.upsert",
		attribute.String("server.address", p.host), attribute.Int("vectors", len(vectors)))
	defer func() { telemetry.EndSpan(span, err) }()

	for start := 0; start < len(vectors); start += pineconeBatchSize {
		end := min(start+pineconeBatchSize, len(vectors))
		batch := make([]*pinecone.Vector, 0, end-start)
		for _, v := range vectors[start:end] {
			pv, err := toPineconeVector(v)
			if err != nil {
				return err
			}
			batch = append(batch, pv)
		}
		if _, err := p.conn.UpsertVectors(ctx, batch); err != nil {
			return fmt.Errorf("pinecone upsert batch %d-%d: %w", start, end, err)
		}
	}
	return nil
}

func (p *PineconeIndex) Query(ctx context.Context, vector []float32, topK int) (_ []Match, err error) {
	if topK <= 0 {
		return []Match{}, nil
	}
	ctx, span := telemetry.StartClientSpan(ctx, "pinecone.query",
		attribute.String("server.address", p.host), attribute.Int("top_k", topK))
	defer func() { telemetry.EndSpan(span, err) }()

	resp, err := p.conn.QueryByVectorValues(ctx, &pinecone.QueryByVectorValuesRequest{
		Vector:          vector,
		TopK:            uint32(topK),
		IncludeMetadata: true,
	})
	if err != nil {
		return nil, fmt.Errorf("pinecone query: %w", err)
	}
	matches := make([]Match, 0, len(resp.Matches))
	for _, sv := range resp.Matches {
		if sv == nil || sv.Vector == nil {
			continue
		}
		matches = append(matches, fromScoredVector(sv))
	}
	return SortMatches(matches, topK), nil
}

func (p *PineconeIndex) Count(ctx context.Context) (int64, error) {
	stats, err := p.conn.DescribeIndexStats(ctx)
	if err != nil {
		return 0, fmt.Errorf("pinecone stats: %w", err)
	}
	return int64(stats.TotalVectorCount), nil
}

func toPineconeVector(v Vector) (*pinecone.Vector, error) {
	values := v.Values
	pv := &pinecone.Vector{Id: v.ID, Values: &values}
	if len(v.Metadata) > 0 {
		md, err := structpb.NewStruct(v.Metadata)
		if err != nil {
			return nil, fmt.Errorf("vector %s metadata: %w", v.ID, err)
		}
		pv.Metadata = md
	}
	return pv, nil
}

func fromScoredVector(sv *pinecone.ScoredVector) Match {
	m := Match{ID: sv.Vector.Id, Score: float64(sv.Score)}
	if sv.Vector.Metadata != nil {
		m.Metadata = sv.Vector.Metadata.AsMap()
	}
	return m
}
