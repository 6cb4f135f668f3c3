package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/AtendeAI/atende-mvp/engine/domain"
)

func embedServer(t *testing.T, dims int, calls *atomic.Int64) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embeddings" {
			http.NotFound(w, r)
			return
		}
		if calls != nil {
			calls.Add(1)
		}
		var req ollamaEmbedReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", 400)
			return
		}
		vec := make([]float64, dims)
		for i := range vec {
			vec[i] = float64(len(req.Prompt)) / float64(i+1)
		}
		json.NewEncoder(w).Encode(map[string]any{"embedding": vec})
	}))
}

func TestEmbedReturnsVector(t *testing.T) {
	srv := embedServer(t, 4, nil)
	defer srv.Close()

	c := NewEmbedClient(srv.URL, "nomic-embed-text")
	vec, err := c.Embed(context.Background(), "como cancelar um pedido")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vec) != 4 {
		t.Fatalf("got %d dims, want 4", len(vec))
	}
}

func TestEmbedBatchPreservesOrder(t *testing.T) {
	srv := embedServer(t, 3, nil)
	defer srv.Close()

	c := NewEmbedClient(srv.URL, "nomic-embed-text")
	vecs, err := c.EmbedBatch(context.Background(), []string{"a", "bbbb"})
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if len(vecs) != 2 {
		t.Fatalf("got %d vectors, want 2", len(vecs))
	}
	// First component encodes prompt length; order must match input order.
	if vecs[0][0] >= vecs[1][0] {
		t.Fatalf("batch order not preserved: %v vs %v", vecs[0][0], vecs[1][0])
	}
}

func TestEmbedNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model not found", 404)
	}))
	defer srv.Close()

	c := NewEmbedClient(srv.URL, "missing-model")
	if _, err := c.Embed(context.Background(), "oi"); err == nil {
		t.Fatal("expected error on non-200 status")
	}
}

func TestProviderInitializesOnce(t *testing.T) {
	var calls atomic.Int64
	srv := embedServer(t, 8, &calls)
	defer srv.Close()

	p := NewProvider(srv.URL, "nomic-embed-text")

	first, err := p.Get(context.Background())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	second, err := p.Get(context.Background())
	if err != nil {
		t.Fatalf("second Get: %v", err)
	}
	if first != second {
		t.Fatal("expected the same client instance across Get calls")
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("warm-up ran %d times, want 1", got)
	}
	if p.Dims() != 8 {
		t.Fatalf("Dims() = %d, want 8", p.Dims())
	}
}

func TestProviderInitFailureIsSticky(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, "boom", 500)
	}))
	defer srv.Close()

	p := NewProvider(srv.URL, "nomic-embed-text")

	if _, err := p.Get(context.Background()); !errors.Is(err, domain.ErrEmbedderInit) {
		t.Fatalf("expected ErrEmbedderInit, got %v", err)
	}
	if _, err := p.Get(context.Background()); !errors.Is(err, domain.ErrEmbedderInit) {
		t.Fatalf("expected sticky ErrEmbedderInit, got %v", err)
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("init retried %d times, want 1", got)
	}
}

func TestProviderEmptyEmbedding(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"embedding": []float64{}})
	}))
	defer srv.Close()

	p := NewProvider(srv.URL, "nomic-embed-text")
	if _, err := p.Get(context.Background()); !errors.Is(err, domain.ErrEmbedderInit) {
		t.Fatalf("expected ErrEmbedderInit on empty embedding, got %v", err)
	}
}

func TestChatStreamDeliversTokens(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			http.NotFound(w, r)
			return
		}
		for _, tok := range []string{"Olá", ", ", "tudo bem?"} {
			fmt.Fprintf(w, `{"message":{"content":%q},"done":false}`+"\n", tok)
		}
		fmt.Fprintln(w, `{"message":{"content":""},"done":true}`)
	}))
	defer srv.Close()

	c := NewChatClient(srv.URL, "llama3")
	var sb strings.Builder
	err := c.Stream(context.Background(), []ChatMessage{{Role: "user", Content: "oi"}}, func(tok string) error {
		sb.WriteString(tok)
		return nil
	})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if got := sb.String(); got != "Olá, tudo bem?" {
		t.Fatalf("got %q", got)
	}
}

func TestChatStreamCallbackError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintln(w, `{"message":{"content":"x"},"done":false}`)
		fmt.Fprintln(w, `{"message":{"content":"y"},"done":true}`)
	}))
	defer srv.Close()

	c := NewChatClient(srv.URL, "llama3")
	want := errors.New("stop")
	err := c.Stream(context.Background(), nil, func(string) error { return want })
	if !errors.Is(err, want) {
		t.Fatalf("expected callback error, got %v", err)
	}
}
