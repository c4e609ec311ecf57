package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNew_UnknownProvider(t *testing.T) {
	if _, err := New(context.Background(), Config{Provider: "cohere", APIKey: "k"}); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestNew_RequiresAPIKey(t *testing.T) {
	for _, provider := range []string{"openai", "genai"} {
		t.Run(provider, func(t *testing.T) {
			_, err := New(context.Background(), Config{Provider: provider})
			if !errors.Is(err, ErrNotConfigured) {
				t.Fatalf("expected ErrNotConfigured, got %v", err)
			}
		})
	}
}

func TestOpenAIEmbedder_OrdersByIndex(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Errorf("missing bearer token")
		}
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"object": "list",
			"model": "text-embedding-3-small",
			"data": [
				{"object": "embedding", "index": 1, "embedding": [0.0, 1.0]},
				{"object": "embedding", "index": 0, "embedding": [1.0, 0.0]}
			],
			"usage": {"prompt_tokens": 4, "total_tokens": 4}
		}`))
	}))
	defer srv.Close()

	e, err := NewOpenAIEmbedder(Config{APIKey: "sk-test", Dimensions: 2, BaseURL: srv.URL + "/"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	vecs, err := e.Embed(context.Background(), []string{"first", "second"})
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if len(vecs) != 2 || vecs[0][0] != 1 || vecs[1][1] != 1 {
		t.Errorf("unexpected vectors: %v", vecs)
	}
	if gotBody["model"] != "text-embedding-3-small" {
		t.Errorf("expected default model, got %v", gotBody["model"])
	}
	if gotBody["dimensions"] != float64(2) {
		t.Errorf("expected dimensions 2, got %v", gotBody["dimensions"])
	}
	if e.Dimensions() != 2 || e.Name() != "openai:text-embedding-3-small" {
		t.Errorf("unexpected metadata %d %s", e.Dimensions(), e.Name())
	}
}

func TestOpenAIEmbedder_EmptyInput(t *testing.T) {
	e, err := NewOpenAIEmbedder(Config{APIKey: "sk-test", BaseURL: "http://127.0.0.1:1/"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	vecs, err := e.Embed(context.Background(), nil)
	if err != nil || vecs != nil {
		t.Fatalf("expected nil result without a call, got %v %v", vecs, err)
	}
}

type fakeEmbedder struct {
	vecs [][]float32
}

func (f fakeEmbedder) Embed(context.Context, []string) ([][]float32, error) { return f.vecs, nil }
func (f fakeEmbedder) Dimensions() int                                      { return 2 }
func (f fakeEmbedder) Name() string                                         { return "fake" }

func TestEmbedOne(t *testing.T) {
	v, err := EmbedOne(context.Background(), fakeEmbedder{vecs: [][]float32{{1, 2}}}, "q")
	if err != nil || len(v) != 2 {
		t.Fatalf("unexpected result %v %v", v, err)
	}
	if _, err := EmbedOne(context.Background(), fakeEmbedder{}, "q"); err == nil {
		t.Fatal("expected error when no vector is returned")
	}
}

type queryAwareEmbedder struct {
	fakeEmbedder
	queries []string
}

func (q *queryAwareEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	q.queries = append(q.queries, text)
	return []float32{9, 9}, nil
}

func TestEmbedQuery_PrefersQueryMode(t *testing.T) {
	q := &queryAwareEmbedder{fakeEmbedder: fakeEmbedder{vecs: [][]float32{{1, 2}}}}
	v, err := EmbedQuery(context.Background(), q, "is this cyst dangerous?")
	if err != nil || v[0] != 9 {
		t.Fatalf("expected query-mode vector, got %v %v", v, err)
	}
	if len(q.queries) != 1 {
		t.Errorf("expected one query embedding, got %d", len(q.queries))
	}

	v, err = EmbedQuery(context.Background(), fakeEmbedder{vecs: [][]float32{{1, 2}}}, "q")
	if err != nil || v[0] != 1 {
		t.Errorf("expected fallback to Embed, got %v %v", v, err)
	}
}

func TestGenAIEmbedder_TaskTypes(t *testing.T) {
	var bodies []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		bodies = append(bodies, string(b))
		w.Header().Set("Content-Type", "application/json")
		var req struct {
			Requests []json.RawMessage `json:"requests"`
		}
		_ = json.Unmarshal(b, &req)
		embs := make([]map[string][]float32, max(len(req.Requests), 1))
		for i := range embs {
			embs[i] = map[string][]float32{"values": {0.6, 0.8}}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"embeddings": embs})
	}))
	defer srv.Close()

	e, err := NewGenAIEmbedder(context.Background(), Config{APIKey: "g-key", Dimensions: 2, BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	if _, err := e.Embed(context.Background(), []string{"Functional cysts usually resolve."}); err != nil {
		t.Fatalf("embed: %v", err)
	}
	if _, err := EmbedQuery(context.Background(), e, "Do cysts go away?"); err != nil {
		t.Fatalf("embed query: %v", err)
	}

	if len(bodies) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(bodies))
	}
	if !strings.Contains(bodies[0], taskRetrievalDocument) {
		t.Errorf("document embedding sent %s", bodies[0])
	}
	if !strings.Contains(bodies[1], taskRetrievalQuery) || strings.Contains(bodies[1], taskRetrievalDocument) {
		t.Errorf("query embedding sent %s", bodies[1])
	}
}
