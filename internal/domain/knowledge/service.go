package knowledge

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/groot/groot/internal/platform/embedding"
	"github.com/groot/groot/internal/platform/telemetry"
	"github.com/groot/groot/internal/platform/vectorstore"
)

const (
	emptyQuestionAnswer = "Please ask a valid question."
	noAnswer            = "Sorry, I couldn’t find an answer."

	DefaultTopK = 5
	MaxTopK     = 20
)

// ErrNotConfigured is returned when no embedder or index is available.
var ErrNotConfigured = errors.New("knowledge base not configured")

// ChatResponse is the body returned by POST /chat.
type ChatResponse struct {
	Response string  `json:"response"`
	Source   string  `json:"source,omitempty"`
	Score    float64 `json:"score,omitempty"`
}

type Service struct {
	embedder     embedding.Embedder
	index        vectorstore.Index
	ingester     *Ingester
	documentsDir string
	metrics      *telemetry.Metrics
	logger       zerolog.Logger
}

// NewService builds the knowledge service. embedder and index may be nil
// when the integration is disabled; every operation then reports
// ErrNotConfigured.
func NewService(embedder embedding.Embedder, index vectorstore.Index, documentsDir string, logger zerolog.Logger) *Service {
	s := &Service{
		embedder:     embedder,
		index:        index,
		documentsDir: documentsDir,
		logger:       logger,
	}
	if embedder != nil && index != nil {
		s.ingester = NewIngester(embedder, index, logger)
	}
	return s
}

// SetMetrics attaches an optional operation counter.
func (s *Service) SetMetrics(m *telemetry.Metrics) {
	s.metrics = m
}

func (s *Service) configured() bool {
	return s.embedder != nil && s.index != nil
}

// Chat answers a question with the best-matching passage.
func (s *Service) Chat(ctx context.Context, message string) (*ChatResponse, error) {
	question := strings.TrimSpace(message)
	if question == "" {
		return &ChatResponse{Response: emptyQuestionAnswer}, nil
	}
	matches, err := s.Search(ctx, question, 1)
	if err != nil {
		s.metrics.RecordOperation("knowledge.chat", "failure")
		return nil, err
	}
	if len(matches) == 0 || matches[0].Text() == "" {
		s.metrics.RecordOperation("knowledge.chat", "no_answer")
		return &ChatResponse{Response: noAnswer}, nil
	}
	s.metrics.RecordOperation("knowledge.chat", "answered")
	top := matches[0]
	return &ChatResponse{Response: top.Text(), Source: top.Source(), Score: top.Score}, nil
}

// Search returns the topK nearest chunks for query. topK is clamped to
// [1, MaxTopK].
func (s *Service) Search(ctx context.Context, query string, topK int) ([]vectorstore.Match, error) {
	if !s.configured() {
		return nil, ErrNotConfigured
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("query is required")
	}
	topK = clampTopK(topK)

	vec, err := embedding.EmbedQuery(ctx, s.embedder, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	matches, err := s.index.Query(ctx, vec, topK)
	if err != nil {
		return nil, fmt.Errorf("query index: %w", err)
	}
	return matches, nil
}

func clampTopK(k int) int {
	if k < 1 {
		return 1
	}
	if k > MaxTopK {
		return MaxTopK
	}
	return k
}

// Ingest loads every PDF from the configured documents directory.
func (s *Service) Ingest(ctx context.Context) (*IngestReport, error) {
	if s.ingester == nil {
		return nil, ErrNotConfigured
	}
	report, err := s.ingester.IngestDir(ctx, s.documentsDir)
	if err != nil {
		s.metrics.RecordOperation("knowledge.ingest", "failure")
		return report, err
	}
	s.metrics.RecordOperation("knowledge.ingest", "success")
	return report, nil
}

// Stats reports the size of the index.
func (s *Service) Stats(ctx context.Context) (map[string]interface{}, error) {
	if !s.configured() {
		return nil, ErrNotConfigured
	}
	n, err := s.index.Count(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"vectors":    n,
		"embedder":   s.embedder.Name(),
		"dimensions": s.embedder.Dimensions(),
	}, nil
}
