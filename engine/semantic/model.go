// Package semantic owns the persisted vector index. Two backends implement
// the same Store contract: a local SQLite-backed index (the default) and a
// remote Qdrant collection. Both follow full-rebuild semantics: Replace is
// the only mutation path, and it discards every previously stored document.
package semantic

import (
	"context"

	"github.com/AtendeAI/atende-mvp/engine/domain"
)

// SearchResult is a single similarity-search hit, nearest first.
type SearchResult struct {
	ID      string            `json:"id"`
	Score   float32           `json:"score"`
	Content string            `json:"content"`
	Meta    map[string]string `json:"meta"`
}

// Embedder converts text into fixed-dimension vectors. Two embeddings are
// comparable only if produced by the same model configuration.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Store is a persisted vector index.
//
// Replace assumes documents and embeddings are pre-aligned one-to-one. Search
// never re-embeds stored content; it only compares the query embedding
// against stored embeddings. Fewer than topK stored documents means all of
// them are returned.
type Store interface {
	Replace(ctx context.Context, docs []domain.Document, embeddings [][]float32) error
	Search(ctx context.Context, embedding []float32, topK int) ([]SearchResult, error)
	Count(ctx context.Context) (int, error)
	Close() error
}
