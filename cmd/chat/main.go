// Package main implements the support chat server: answers customer
// questions over SSE, grounding every answer in the retrieved policy
// context before handing the conversation to the chat model.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/AtendeAI/atende-mvp/engine/domain"
	"github.com/AtendeAI/atende-mvp/engine/rag"
	"github.com/AtendeAI/atende-mvp/engine/semantic"
	"github.com/AtendeAI/atende-mvp/pkg/mid"
	"github.com/AtendeAI/atende-mvp/pkg/ollama"
)

const systemPrompt = `Você é um atendente virtual de uma loja online, educado e objetivo.
Responda sempre em português brasileiro.
Use APENAS o contexto de políticas fornecido para responder perguntas sobre
cancelamento, reembolso e trocas. Se o contexto não cobrir a dúvida, diga que
não encontrou a informação e oriente o cliente a falar com um atendente humano.
Nunca invente políticas, prazos ou valores.`

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	var (
		port       = envOr("PORT", "8090")
		ollamaURL  = envOr("OLLAMA_URL", "http://localhost:11434")
		embedModel = envOr("EMBED_MODEL", "nomic-embed-text")
		chatModel  = envOr("CHAT_MODEL", "llama3")
		indexDir   = envOr("INDEX_DIR", "./kb_index")
		qdrantURL  = os.Getenv("QDRANT_URL")
		collection = envOr("QDRANT_COLLECTION", "atende_kb")
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	provider := ollama.NewProvider(ollamaURL, embedModel)
	embedder, err := provider.Get(ctx)
	if err != nil {
		logger.Error("embedder warm-up failed", "err", err)
		os.Exit(1)
	}

	openStore := func() (semantic.Store, error) {
		if qdrantURL != "" {
			return semantic.NewQdrant(qdrantURL, collection, provider.Dims())
		}
		return semantic.OpenLocal(indexDir)
	}
	retriever := rag.New(embedder, openStore, rag.DefaultOptions(), logger)
	defer retriever.Reset()

	chatClient := ollama.NewChatClient(ollamaURL, chatModel)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/chat", handleChat(retriever, chatClient, logger))
	mux.HandleFunc("GET /api/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	handler := mid.Chain(mux,
		mid.Recover(logger),
		mid.Logger(logger),
		mid.CORS("*"),
	)

	srv := &http.Server{Addr: ":" + port, Handler: handler}

	go func() {
		logger.Info("chat server starting", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Shutdown(shutCtx)
}

type chatRequest struct {
	Question string `json:"question"`
}

type sourceDoc struct {
	Content   string `json:"content"`
	Categoria string `json:"categoria"`
	Fonte     string `json:"fonte"`
}

func handleChat(retriever *rag.Retriever, chatClient *ollama.ChatClient, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Question) == "" {
			http.Error(w, `{"detail":"question é obrigatória"}`, http.StatusBadRequest)
			return
		}

		ctx := r.Context()

		docs, err := retriever.Retrieve(ctx, req.Question)
		if err != nil {
			logger.Error("retrieval failed", "err", err)
			http.Error(w, `{"detail":"falha na busca de contexto"}`, http.StatusInternalServerError)
			return
		}

		sources := make([]sourceDoc, len(docs))
		var contextParts []string
		for i, doc := range docs {
			sources[i] = sourceDoc{
				Content:   doc.Content,
				Categoria: doc.Metadata[domain.MetaCategoria],
				Fonte:     doc.Metadata[domain.MetaFonte],
			}
			contextParts = append(contextParts, doc.Content)
		}

		contextText := "Nenhuma política relevante encontrada."
		if len(contextParts) > 0 {
			contextText = strings.Join(contextParts, "\n\n")
		}
		prompt := fmt.Sprintf("Contexto de políticas:\n%s\n\nPergunta do cliente: %s", contextText, req.Question)

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")

		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming not supported", http.StatusInternalServerError)
			return
		}

		sourcesJSON, _ := json.Marshal(sources)
		fmt.Fprintf(w, "event: sources\ndata: %s\n\n", sourcesJSON)
		flusher.Flush()

		messages := []ollama.ChatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		}
		err = chatClient.Stream(ctx, messages, func(token string) error {
			tokenJSON, _ := json.Marshal(map[string]string{"token": token})
			fmt.Fprintf(w, "event: token\ndata: %s\n\n", tokenJSON)
			flusher.Flush()
			return nil
		})
		if err != nil {
			logger.Error("chat stream failed", "err", err)
			fmt.Fprintf(w, "event: error\ndata: {\"detail\":\"modelo indisponível\"}\n\n")
			flusher.Flush()
			return
		}

		fmt.Fprintf(w, "event: done\ndata: {}\n\n")
		flusher.Flush()
	}
}
