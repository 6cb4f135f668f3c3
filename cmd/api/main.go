// Package main implements the tool middleware server: the HTTP surface the
// support agent calls to look up orders, cancel them, and retrieve policy
// context from the knowledge base.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"golang.org/x/time/rate"

	"github.com/AtendeAI/atende-mvp/engine/ingest"
	"github.com/AtendeAI/atende-mvp/engine/rag"
	"github.com/AtendeAI/atende-mvp/engine/semantic"
	"github.com/AtendeAI/atende-mvp/engine/tools"
	"github.com/AtendeAI/atende-mvp/pkg/legacy"
	"github.com/AtendeAI/atende-mvp/pkg/mid"
	"github.com/AtendeAI/atende-mvp/pkg/natsutil"
	"github.com/AtendeAI/atende-mvp/pkg/ollama"
)

// Config holds all environment-based configuration.
type Config struct {
	Port       string
	OllamaURL  string
	EmbedModel string
	IndexDir   string
	QdrantURL  string
	Collection string
	LegacyURL  string
	NatsURL    string
	CORSOrigin string
}

func loadConfig() Config {
	return Config{
		Port:       envOr("PORT", "8000"),
		OllamaURL:  envOr("OLLAMA_URL", "http://localhost:11434"),
		EmbedModel: envOr("EMBED_MODEL", "nomic-embed-text"),
		IndexDir:   envOr("INDEX_DIR", "./kb_index"),
		QdrantURL:  os.Getenv("QDRANT_URL"), // empty selects the local index
		Collection: envOr("QDRANT_COLLECTION", "atende_kb"),
		LegacyURL:  envOr("LEGACY_API_URL", "http://localhost:8001"),
		NatsURL:    os.Getenv("NATS_URL"), // empty disables rebuild announcements
		CORSOrigin: envOr("CORS_ORIGIN", "*"),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg := loadConfig()

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Warm up the embedding model ---
	provider := ollama.NewProvider(cfg.OllamaURL, cfg.EmbedModel)
	embedder, err := provider.Get(ctx)
	if err != nil {
		return fmt.Errorf("embedder warm-up: %w", err)
	}
	logger.Info("embedding model ready", "model", cfg.EmbedModel, "dims", provider.Dims())

	// --- Index backend ---
	openStore := func() (semantic.Store, error) {
		if cfg.QdrantURL != "" {
			return semantic.NewQdrant(cfg.QdrantURL, cfg.Collection, provider.Dims())
		}
		return semantic.OpenLocal(cfg.IndexDir)
	}
	retriever := rag.New(embedder, openStore, rag.DefaultOptions(), logger)
	defer retriever.Reset()

	// --- Rebuild announcements ---
	if cfg.NatsURL != "" {
		nc, err := nats.Connect(cfg.NatsURL)
		if err != nil {
			return fmt.Errorf("nats connect: %w", err)
		}
		defer nc.Close()

		sub, err := natsutil.Subscribe(nc, ingest.SubjectIndexRebuilt, func(_ context.Context, ev ingest.RebuiltEvent) {
			logger.Info("index rebuilt, dropping cached handle", "source", ev.Source, "docs", ev.Docs)
			retriever.Reset()
		})
		if err != nil {
			return fmt.Errorf("nats subscribe: %w", err)
		}
		defer sub.Unsubscribe()
		logger.Info("listening for rebuild announcements", "subject", ingest.SubjectIndexRebuilt)
	}

	// --- Tools ---
	orders := legacy.New(cfg.LegacyURL)
	registry := tools.NewRegistry()
	for _, t := range []tools.Tool{
		tools.NewConsultarPedido(orders),
		tools.NewCancelarPedido(orders),
		tools.NewConsultarPoliticas(retriever),
	} {
		if err := registry.Register(t); err != nil {
			return fmt.Errorf("register tool: %w", err)
		}
	}

	handler := mid.Chain(newMux(registry, logger),
		mid.Recover(logger),
		mid.Logger(logger),
		mid.CORS(cfg.CORSOrigin),
		mid.OTel("atende-api"),
		mid.RateLimit(rate.NewLimiter(rate.Limit(50), 100)),
	)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "port", cfg.Port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}
