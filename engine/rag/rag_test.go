package rag

import (
	"context"
	"errors"
	"testing"

	"github.com/AtendeAI/atende-mvp/engine/domain"
	"github.com/AtendeAI/atende-mvp/engine/semantic"
)

// --- mocks ---

type mockEmbedder struct {
	vec []float32
	err error
}

func (m *mockEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	return m.vec, m.err
}

func (m *mockEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = m.vec
	}
	return out, m.err
}

type mockStore struct {
	results   []semantic.SearchResult
	searchErr error
	lastTopK  int
	closed    bool
}

func (m *mockStore) Replace(_ context.Context, _ []domain.Document, _ [][]float32) error {
	return nil
}

func (m *mockStore) Search(_ context.Context, _ []float32, topK int) ([]semantic.SearchResult, error) {
	m.lastTopK = topK
	if m.searchErr != nil {
		return nil, m.searchErr
	}
	if len(m.results) > topK {
		return m.results[:topK], nil
	}
	return m.results, nil
}

func (m *mockStore) Count(_ context.Context) (int, error) { return len(m.results), nil }

func (m *mockStore) Close() error {
	m.closed = true
	return nil
}

func opener(store semantic.Store, err error) (OpenStoreFunc, *int) {
	calls := 0
	return func() (semantic.Store, error) {
		calls++
		if err != nil {
			return nil, err
		}
		return store, nil
	}, &calls
}

// --- tests ---

func TestRetrieve_RankOrderedAndBounded(t *testing.T) {
	store := &mockStore{results: []semantic.SearchResult{
		{Content: "primeiro", Score: 0.9, Meta: map[string]string{"categoria": "a"}},
		{Content: "segundo", Score: 0.7, Meta: map[string]string{"categoria": "b"}},
		{Content: "terceiro", Score: 0.5, Meta: map[string]string{"categoria": "c"}},
		{Content: "quarto", Score: 0.1, Meta: map[string]string{"categoria": "d"}},
	}}
	open, _ := opener(store, nil)
	r := New(&mockEmbedder{vec: []float32{1, 0}}, open, DefaultOptions(), nil)

	docs, err := r.Retrieve(context.Background(), "reembolso")
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(docs) != 3 {
		t.Fatalf("got %d docs, want default k=3", len(docs))
	}
	if store.lastTopK != 3 {
		t.Errorf("search topK = %d, want 3", store.lastTopK)
	}
	if docs[0].Content != "primeiro" || docs[2].Content != "terceiro" {
		t.Errorf("order not preserved: %q ... %q", docs[0].Content, docs[2].Content)
	}
	if docs[0].Metadata["categoria"] != "a" {
		t.Errorf("metadata not carried: %+v", docs[0].Metadata)
	}
}

func TestRetrieve_EmptyIndexIsNotAnError(t *testing.T) {
	open, _ := opener(&mockStore{}, nil)
	r := New(&mockEmbedder{vec: []float32{1}}, open, Options{TopK: 5}, nil)

	docs, err := r.Retrieve(context.Background(), "qualquer")
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(docs) != 0 {
		t.Errorf("expected empty sequence, got %d", len(docs))
	}
}

func TestRetrieve_OpensIndexOnce(t *testing.T) {
	open, calls := opener(&mockStore{}, nil)
	r := New(&mockEmbedder{vec: []float32{1}}, open, DefaultOptions(), nil)

	ctx := context.Background()
	for range 3 {
		if _, err := r.Retrieve(ctx, "q"); err != nil {
			t.Fatal(err)
		}
	}
	if *calls != 1 {
		t.Errorf("index opened %d times, want 1", *calls)
	}
}

func TestRetrieve_ResetReopens(t *testing.T) {
	store := &mockStore{}
	open, calls := opener(store, nil)
	r := New(&mockEmbedder{vec: []float32{1}}, open, DefaultOptions(), nil)

	ctx := context.Background()
	if _, err := r.Retrieve(ctx, "q"); err != nil {
		t.Fatal(err)
	}
	r.Reset()
	if !store.closed {
		t.Error("stale handle not closed on Reset")
	}
	if _, err := r.Retrieve(ctx, "q"); err != nil {
		t.Fatal(err)
	}
	if *calls != 2 {
		t.Errorf("index opened %d times, want 2 after Reset", *calls)
	}
}

func TestRetrieve_OpenError(t *testing.T) {
	open, _ := opener(nil, domain.ErrIndexOpen)
	r := New(&mockEmbedder{vec: []float32{1}}, open, DefaultOptions(), nil)

	_, err := r.Retrieve(context.Background(), "q")
	if !errors.Is(err, domain.ErrIndexOpen) {
		t.Errorf("expected ErrIndexOpen, got %v", err)
	}
}

func TestRetrieve_EmbedError(t *testing.T) {
	open, _ := opener(&mockStore{}, nil)
	r := New(&mockEmbedder{err: errors.New("model not loaded")}, open, DefaultOptions(), nil)

	if _, err := r.Retrieve(context.Background(), "q"); err == nil {
		t.Fatal("expected embed error to propagate")
	}
}

func TestRetrieve_SearchError(t *testing.T) {
	open, _ := opener(&mockStore{searchErr: errors.New("boom")}, nil)
	r := New(&mockEmbedder{vec: []float32{1}}, open, DefaultOptions(), nil)

	if _, err := r.Retrieve(context.Background(), "q"); err == nil {
		t.Fatal("expected search error to propagate")
	}
}

func TestNew_DefaultsApplied(t *testing.T) {
	open, _ := opener(&mockStore{}, nil)
	r := New(&mockEmbedder{vec: []float32{1}}, open, Options{}, nil)
	if r.opts.TopK != 3 {
		t.Errorf("TopK default = %d, want 3", r.opts.TopK)
	}
}
