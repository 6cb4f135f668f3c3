// Package ingest provides the ingestion pipeline that turns the tabular
// knowledge source into an embedded, persisted, queryable vector index.
// A run is a full rebuild: whatever the index held before is replaced.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/AtendeAI/atende-mvp/engine/domain"
	"github.com/AtendeAI/atende-mvp/engine/semantic"
	"github.com/AtendeAI/atende-mvp/pkg/fn"
)

// EmbedBatchSize is the max documents per embedding request.
const EmbedBatchSize = 100

// EmbedWorkers bounds concurrent embedding requests.
const EmbedWorkers = 2

// embedRetry tolerates transient model-server hiccups during a rebuild.
var embedRetry = fn.RetryOpts{
	MaxAttempts: 3,
	InitialWait: 200 * time.Millisecond,
	MaxWait:     2 * time.Second,
	Jitter:      true,
}

// Deps holds the external dependencies for the ingestion pipeline.
type Deps struct {
	Embedder semantic.Embedder
	Store    semantic.Store
	Logger   *slog.Logger
}

// EmbeddedBatch pairs documents with their embeddings, pre-aligned.
type EmbeddedBatch struct {
	Docs       []domain.Document
	Embeddings [][]float32
}

// Load reads the source at the given path.
var Load fn.Stage[string, []domain.Record] = func(_ context.Context, path string) fn.Result[[]domain.Record] {
	return fn.FromPair(LoadCSV(path))
}

// NewClean creates a stage that drops rows with no usable content, logging
// each skip. An all-invalid source still rebuilds (to an empty index).
func NewClean(log *slog.Logger) fn.Stage[[]domain.Record, []domain.Record] {
	return func(_ context.Context, records []domain.Record) fn.Result[[]domain.Record] {
		kept := fn.Filter(records, func(rec domain.Record) bool {
			if err := domain.ValidateRecord(rec); err != nil {
				log.Warn("ingest: skipping row", "error", err, "categoria", rec.Categoria)
				return false
			}
			return true
		})
		return fn.Ok(kept)
	}
}

// Build converts records into index documents, one per row, order preserved.
var Build = fn.MapStage(func(records []domain.Record) []domain.Document {
	return fn.Map(records, domain.DocumentFromRecord)
})

// NewEmbed creates a stage that embeds all document contents. Documents are
// chunked into batches embedded with bounded concurrency; each batch retries
// transient failures before the whole stage fails.
func NewEmbed(embedder semantic.Embedder) fn.Stage[[]domain.Document, EmbeddedBatch] {
	embedChunk := fn.RetryStage(embedRetry, func(ctx context.Context, group []domain.Document) fn.Result[[][]float32] {
		texts := fn.Map(group, func(d domain.Document) string { return d.Content })
		return fn.FromPair(embedder.EmbedBatch(ctx, texts))
	})

	return func(ctx context.Context, docs []domain.Document) fn.Result[EmbeddedBatch] {
		batched := fn.BatchStage(EmbedWorkers, embedChunk)(ctx, fn.Chunk(docs, EmbedBatchSize))
		vecs, err := batched.Unwrap()
		if err != nil {
			return fn.Err[EmbeddedBatch](fmt.Errorf("ingest: embed: %w", err))
		}
		flat := fn.FlatMap(vecs, func(v [][]float32) [][]float32 { return v })
		return fn.Ok(EmbeddedBatch{Docs: docs, Embeddings: flat})
	}
}

// NewStore creates the stage that rebuilds the persisted index and reports
// the number of indexed documents.
func NewStore(store semantic.Store) fn.Stage[EmbeddedBatch, int] {
	return func(ctx context.Context, batch EmbeddedBatch) fn.Result[int] {
		if err := store.Replace(ctx, batch.Docs, batch.Embeddings); err != nil {
			return fn.Err[int](fmt.Errorf("ingest: rebuild index: %w", err))
		}
		return fn.Ok(len(batch.Docs))
	}
}

// NewPipeline composes load → clean → build → embed → store. The input is
// the source path; the output is the indexed document count.
func NewPipeline(deps Deps) fn.Stage[string, int] {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}

	loaded := fn.TracedStage("ingest.load", Load)
	cleaned := fn.Then(loaded, fn.TracedStage("ingest.clean", NewClean(log)))
	built := fn.Then(cleaned, fn.TracedStage("ingest.build", Build))
	embedded := fn.Then(built, fn.TracedStage("ingest.embed", NewEmbed(deps.Embedder)))
	return fn.Then(embedded, fn.TracedStage("ingest.store", NewStore(deps.Store)))
}

// Run executes a full rebuild from the source at path and returns the number
// of indexed documents. Running concurrently with retrieval against the same
// index location is not supported; a reader may observe the swap.
func Run(ctx context.Context, deps Deps, path string) (int, error) {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}

	log.Info("ingest: rebuild start", "source", path)
	count, err := NewPipeline(deps)(ctx, path).Unwrap()
	if err != nil {
		return 0, err
	}
	log.Info("ingest: rebuild done", "indexed", count)
	return count, nil
}
