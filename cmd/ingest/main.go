// Command ingest rebuilds the knowledge-base index from the tabular policy
// source. A run is a full replace: whatever the index held before is gone
// once the run succeeds.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/AtendeAI/atende-mvp/engine/ingest"
	"github.com/AtendeAI/atende-mvp/engine/semantic"
	"github.com/AtendeAI/atende-mvp/pkg/metrics"
	"github.com/AtendeAI/atende-mvp/pkg/natsutil"
	"github.com/AtendeAI/atende-mvp/pkg/ollama"
)

var met = metrics.New()

var (
	mRowsIndexed = met.Counter("atende_ingest_rows_indexed_total", "Documents written to the index")
	mRebuildOK   = met.Counter("atende_ingest_rebuilds_total", "Successful index rebuilds")
	mRebuildFail = met.Counter("atende_ingest_rebuild_errors_total", "Failed index rebuilds")
	mRebuildDur  = met.Histogram("atende_ingest_rebuild_duration_seconds", "Full rebuild time", nil)
	mIndexedDocs = met.Gauge("atende_ingest_index_docs", "Documents in the index after the last rebuild")
	mLastRebuild = met.Gauge("atende_ingest_last_rebuild_timestamp", "Epoch of last successful rebuild")
)

func main() {
	var (
		source      = flag.String("source", "base_conhecimento.csv", "tabular knowledge source")
		indexDir    = flag.String("index", "./kb_index", "index directory (local backend)")
		qdrantAddr  = flag.String("qdrant", "", "Qdrant gRPC address (overrides the local backend)")
		collection  = flag.String("collection", "atende_kb", "Qdrant collection name")
		ollamaURL   = flag.String("ollama", "http://localhost:11434", "Ollama base URL")
		embedModel  = flag.String("model", "nomic-embed-text", "Ollama embedding model")
		natsURL     = flag.String("nats", "", "NATS URL for rebuild announcements (optional)")
		metricsPort = flag.Int("metrics-port", 9091, "metrics HTTP port")
	)
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stderr, nil))
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	met.ServeAsync(*metricsPort)

	provider := ollama.NewProvider(*ollamaURL, *embedModel)
	embedder, err := provider.Get(ctx)
	if err != nil {
		log.Error("embedder warm-up failed", "error", err)
		os.Exit(1)
	}
	log.Info("embedding model ready", "model", *embedModel, "dims", provider.Dims())

	var store semantic.Store
	if *qdrantAddr != "" {
		store, err = semantic.NewQdrant(*qdrantAddr, *collection, provider.Dims())
	} else {
		store, err = semantic.OpenLocal(*indexDir)
	}
	if err != nil {
		log.Error("open index failed", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	start := time.Now()
	count, err := ingest.Run(ctx, ingest.Deps{Embedder: embedder, Store: store, Logger: log}, *source)
	mRebuildDur.Since(start)
	if err != nil {
		mRebuildFail.Inc()
		log.Error("rebuild failed", "source", *source, "error", err)
		os.Exit(1)
	}

	mRebuildOK.Inc()
	mRowsIndexed.Add(int64(count))
	mIndexedDocs.Set(int64(count))
	mLastRebuild.Set(time.Now().Unix())
	log.Info("rebuild complete", "source", *source, "indexed", count, "took", time.Since(start))

	if *natsURL != "" {
		announce(ctx, log, *natsURL, ingest.RebuiltEvent{
			Source:     *source,
			Docs:       count,
			FinishedAt: time.Now().UTC(),
		})
	}
}

func announce(ctx context.Context, log *slog.Logger, url string, ev ingest.RebuiltEvent) {
	nc, err := nats.Connect(url)
	if err != nil {
		log.Warn("nats connect failed, skipping announcement", "error", err)
		return
	}
	defer nc.Close()

	if err := natsutil.Publish(ctx, nc, ingest.SubjectIndexRebuilt, ev); err != nil {
		log.Warn("rebuild announcement failed", "error", err)
		return
	}
	nc.Flush()
	log.Info("rebuild announced", "subject", ingest.SubjectIndexRebuilt)
}
