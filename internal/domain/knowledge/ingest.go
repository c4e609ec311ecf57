package knowledge

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/groot/groot/internal/platform/embedding"
	"github.com/groot/groot/internal/platform/vectorstore"
)

const (
	defaultBatchSize   = 32
	defaultConcurrency = 4
)

// TextExtractor returns the plain text of a document on disk.
type TextExtractor func(path string) (string, error)

// Ingester embeds document chunks and writes them to the vector index.
type Ingester struct {
	embedder    embedding.Embedder
	index       vectorstore.Index
	logger      zerolog.Logger
	extract     TextExtractor
	chunkSize   int
	batchSize   int
	concurrency int
}

func NewIngester(embedder embedding.Embedder, index vectorstore.Index, logger zerolog.Logger) *Ingester {
	return &Ingester{
		embedder:    embedder,
		index:       index,
		logger:      logger,
		extract:     ExtractPDFText,
		chunkSize:   DefaultChunkSize,
		batchSize:   defaultBatchSize,
		concurrency: defaultConcurrency,
	}
}

// DocumentResult reports the outcome for one document.
type DocumentResult struct {
	Source string `json:"source"`
	Chunks int    `json:"chunks"`
	Error  string `json:"error,omitempty"`
}

// IngestReport summarises a directory ingest.
type IngestReport struct {
	Documents []DocumentResult `json:"documents"`
	Chunks    int              `json:"chunks"`
	Failed    int              `json:"failed"`
}

// ChunkID derives a stable vector id from the source, chunk position and
// text, so re-ingesting a document overwrites its vectors.
func ChunkID(source string, index int, text string) string {
	sum := sha256.Sum256([]byte(source + "\x00" + strconv.Itoa(index) + "\x00" + text))
	return hex.EncodeToString(sum[:16])
}

// IngestDir ingests every *.pdf file in dir, in name order. A document that
// fails is recorded in the report and the rest still run; a cancelled
// context stops the whole ingest.
func (in *Ingester) IngestDir(ctx context.Context, dir string) (*IngestReport, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read documents dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.EqualFold(filepath.Ext(e.Name()), ".pdf") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	report := &IngestReport{Documents: make([]DocumentResult, 0, len(names))}
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		in.logger.Info().Str("source", name).Msg("processing document")

		res := DocumentResult{Source: name}
		text, err := in.extract(filepath.Join(dir, name))
		if err == nil {
			res.Chunks, err = in.IngestText(ctx, name, text)
		}
		if err != nil {
			if ctx.Err() != nil {
				return report, ctx.Err()
			}
			res.Error = err.Error()
			report.Failed++
			in.logger.Error().Err(err).Str("source", name).Msg("document ingest failed")
		} else {
			in.logger.Info().Str("source", name).Int("chunks", res.Chunks).Msg("document ingested")
		}
		report.Chunks += res.Chunks
		report.Documents = append(report.Documents, res)
	}
	return report, nil
}

// IngestText chunks text and upserts one vector per chunk with metadata
// {source, chunk, text}. Batches are embedded concurrently.
func (in *Ingester) IngestText(ctx context.Context, source, text string) (int, error) {
	chunks := ChunkText(text, in.chunkSize)
	if len(chunks) == 0 {
		return 0, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(in.concurrency)
	var done atomic.Int64

	for start := 0; start < len(chunks); start += in.batchSize {
		end := start + in.batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		start, batch := start, chunks[start:end]
		g.Go(func() error {
			vecs, err := in.embedder.Embed(gctx, batch)
			if err != nil {
				return fmt.Errorf("embed chunks %d-%d: %w", start, start+len(batch)-1, err)
			}
			if len(vecs) != len(batch) {
				return fmt.Errorf("embed chunks %d-%d: got %d vectors", start, start+len(batch)-1, len(vecs))
			}
			vectors := make([]vectorstore.Vector, len(batch))
			for i, chunk := range batch {
				idx := start + i
				vectors[i] = vectorstore.Vector{
					ID:     ChunkID(source, idx, chunk),
					Values: vecs[i],
					Metadata: map[string]any{
						"source": source,
						"chunk":  idx,
						"text":   chunk,
					},
				}
			}
			if err := in.index.Upsert(gctx, vectors); err != nil {
				return fmt.Errorf("upsert chunks %d-%d: %w", start, start+len(batch)-1, err)
			}
			n := done.Add(int64(len(batch)))
			in.logger.Debug().Str("source", source).Int64("done", n).Int("total", len(chunks)).Msg("chunks ingested")
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	return len(chunks), nil
}
