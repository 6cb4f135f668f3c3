// Package rag turns free-text questions into relevant knowledge-base
// documents. It embeds the query, runs a top-k similarity search against the
// persisted index, and returns the matches in rank order.
package rag

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/AtendeAI/atende-mvp/engine/domain"
	"github.com/AtendeAI/atende-mvp/engine/semantic"
)

// Options configures retrieval behaviour.
type Options struct {
	TopK int
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{TopK: 3}
}

// OpenStoreFunc lazily opens the persisted index. Called at most once per
// handle lifetime; the result is cached process-wide by the Retriever.
type OpenStoreFunc func() (semantic.Store, error)

// Retriever answers free-text queries from the persisted index.
//
// The index handle is opened lazily on first use and reused by every
// subsequent call. Initialization is mutex-guarded, so concurrent first
// calls construct the handle once. Reset drops the cached handle, forcing
// the next call to reopen the (possibly rebuilt) index.
type Retriever struct {
	embedder semantic.Embedder
	open     OpenStoreFunc
	opts     Options
	logger   *slog.Logger

	mu    sync.Mutex
	store semantic.Store
}

// New creates a Retriever. The store is not opened until the first Retrieve.
func New(embedder semantic.Embedder, open OpenStoreFunc, opts Options, logger *slog.Logger) *Retriever {
	if opts.TopK <= 0 {
		opts.TopK = DefaultOptions().TopK
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{embedder: embedder, open: open, opts: opts, logger: logger}
}

// handle returns the cached index handle, opening it if needed.
func (r *Retriever) handle() (semantic.Store, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.store != nil {
		return r.store, nil
	}
	store, err := r.open()
	if err != nil {
		return nil, fmt.Errorf("rag: open index: %w", err)
	}
	r.store = store
	return store, nil
}

// Reset drops the cached index handle. The next Retrieve reopens the index;
// used after an external rebuild replaced the persisted state.
func (r *Retriever) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.store != nil {
		if err := r.store.Close(); err != nil {
			r.logger.Warn("rag: close stale index handle", "error", err)
		}
		r.store = nil
	}
}

// Retrieve returns at most TopK documents relevant to the query, nearest
// first. An empty result set is valid: it means no indexed content matched
// or the index is empty, not an error.
func (r *Retriever) Retrieve(ctx context.Context, query string) ([]domain.Document, error) {
	store, err := r.handle()
	if err != nil {
		return nil, err
	}

	embedding, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("rag: embed query: %w", err)
	}

	results, err := store.Search(ctx, embedding, r.opts.TopK)
	if err != nil {
		return nil, fmt.Errorf("rag: similarity search: %w", err)
	}
	r.logger.Debug("rag: search done", "query_len", len(query), "results", len(results))

	docs := make([]domain.Document, len(results))
	for i, res := range results {
		meta := res.Meta
		if meta == nil {
			meta = map[string]string{}
		}
		docs[i] = domain.Document{Content: res.Content, Metadata: meta}
	}
	return docs, nil
}
