// Package embedding turns text into dense vectors for the knowledge index.
// Two engines are available: OpenAI embeddings and Google Gemini embeddings.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNotConfigured is returned when an engine is requested without an API key.
var ErrNotConfigured = errors.New("embedding provider not configured")

// Embedder generates one vector per input text, in input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Name() string
}

// QueryEmbedder is implemented by engines that embed search queries
// differently from indexed documents.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Config selects and configures an engine.
type Config struct {
	Provider   string // "openai" or "genai"
	APIKey     string
	Model      string
	Dimensions int
	// BaseURL overrides the provider endpoint; empty uses the public API.
	BaseURL string
}

// New builds the engine named by cfg.Provider.
func New(ctx context.Context, cfg Config) (Embedder, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", "openai":
		return NewOpenAIEmbedder(cfg)
	case "genai", "gemini":
		return NewGenAIEmbedder(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
}

// EmbedOne embeds a single text.
func EmbedOne(ctx context.Context, e Embedder, text string) ([]float32, error) {
	vecs, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embedding: expected 1 vector, got %d", len(vecs))
	}
	return vecs[0], nil
}

// EmbedQuery embeds a search query, using the engine's query mode when it
// has one.
func EmbedQuery(ctx context.Context, e Embedder, text string) ([]float32, error) {
	if qe, ok := e.(QueryEmbedder); ok {
		return qe.EmbedQuery(ctx, text)
	}
	return EmbedOne(ctx, e, text)
}
